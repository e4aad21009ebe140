// Package classifier routes a pending change set between direct commit and
// review.
//
// Classification is a pure function of the change set: the same input always
// produces the same decision. Rules are evaluated in priority order with the
// strictest condition first, so a change set matching multiple rules always
// resolves to the most restrictive verdict.
package classifier

import (
	"fmt"

	"github.com/fyrsmithlabs/shipd/internal/changeset"
)

// Verdict is the routing outcome for a change set.
type Verdict string

const (
	// DirectCommit means the change set may be published without review.
	DirectCommit Verdict = "direct-commit"
	// RequiresReview means the change set must go through the review
	// workflow before it reaches the shared branch.
	RequiresReview Verdict = "requires-review"
)

// Rule identifiers, one per routing rule.
const (
	RuleProtectedCategory = "protected-category"
	RuleLargeDocs         = "large-docs"
	RuleLargeTestScript   = "large-test-script"
	RuleDefaultDirect     = "default-direct"
)

// RoutingDecision is the classifier's output for one change set.
type RoutingDecision struct {
	// Verdict is the routing outcome.
	Verdict Verdict `json:"verdict"`

	// Rule is the identifier of the first rule that matched.
	Rule string `json:"rule"`

	// Reason is a human-readable justification for the verdict.
	Reason string `json:"reason"`
}

// Config holds the review thresholds. Zero values fall back to defaults.
type Config struct {
	// DocsReviewLines is the changed-line threshold above which pure
	// documentation changes require review (default 500).
	DocsReviewLines int `koanf:"docs_review_lines"`

	// TestScriptReviewLines is the changed-line threshold above which test
	// or script changes require review (default 50).
	TestScriptReviewLines int `koanf:"test_script_review_lines"`
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		DocsReviewLines:       500,
		TestScriptReviewLines: 50,
	}
}

// Classifier routes change sets. Stateless and safe for concurrent use.
type Classifier struct {
	cfg Config
}

// New creates a Classifier, applying defaults for zero thresholds.
func New(cfg Config) *Classifier {
	def := DefaultConfig()
	if cfg.DocsReviewLines == 0 {
		cfg.DocsReviewLines = def.DocsReviewLines
	}
	if cfg.TestScriptReviewLines == 0 {
		cfg.TestScriptReviewLines = def.TestScriptReviewLines
	}
	return &Classifier{cfg: cfg}
}

// Classify produces the routing decision for a change set.
//
// Rules in priority order, first match wins:
//  1. Any production, ci-config, or dependency-manifest file requires review,
//     regardless of size.
//  2. Documentation changes at or above the docs threshold require review.
//  3. Test or script changes at or above the test threshold require review.
//  4. Everything else commits directly.
//
// False negatives (reviewable work slipping through) cost more than false
// positives, so thresholds are conservative.
func (c *Classifier) Classify(cs *changeset.ChangeSet) RoutingDecision {
	for _, f := range cs.Files {
		switch f.Category {
		case changeset.CategoryProduction, changeset.CategoryCI, changeset.CategoryManifest:
			return RoutingDecision{
				Verdict: RequiresReview,
				Rule:    RuleProtectedCategory,
				Reason:  fmt.Sprintf("%s is tagged %s; protected categories always require review", f.Path, f.Category),
			}
		}
	}

	if docLines := cs.LinesByCategory(changeset.CategoryDocs); docLines >= c.cfg.DocsReviewLines {
		return RoutingDecision{
			Verdict: RequiresReview,
			Rule:    RuleLargeDocs,
			Reason:  fmt.Sprintf("documentation change of %d lines meets the %d-line review threshold", docLines, c.cfg.DocsReviewLines),
		}
	}

	if testLines := cs.LinesByCategory(changeset.CategoryTest, changeset.CategoryScript); testLines >= c.cfg.TestScriptReviewLines {
		return RoutingDecision{
			Verdict: RequiresReview,
			Rule:    RuleLargeTestScript,
			Reason:  fmt.Sprintf("test/script change of %d lines meets the %d-line review threshold", testLines, c.cfg.TestScriptReviewLines),
		}
	}

	return RoutingDecision{
		Verdict: DirectCommit,
		Rule:    RuleDefaultDirect,
		Reason:  "no protected categories and all size thresholds respected",
	}
}
