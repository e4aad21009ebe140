// Package orchestrator is the entry point for publish requests. It captures
// the pending change set, routes it through the classifier, and hands
// direct-commit work to the sync engine. Change sets that require review are
// returned with their routing decision and never touch the repository; the
// review workflow itself lives outside this service.
package orchestrator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/shipd/internal/changeset"
	"github.com/fyrsmithlabs/shipd/internal/classifier"
	"github.com/fyrsmithlabs/shipd/internal/engine"
)

// Publisher runs the safe-push protocol for one change set.
type Publisher interface {
	Publish(ctx context.Context, cs *changeset.ChangeSet, message string) *engine.SyncAttempt
}

// Result is the outcome of one publish request.
type Result struct {
	// Decision is the classifier's routing verdict.
	Decision classifier.RoutingDecision `json:"decision"`

	// Attempt is the sync attempt, present only when the decision allowed
	// a direct commit.
	Attempt *engine.SyncAttempt `json:"attempt,omitempty"`
}

// Routed reports whether the change set was diverted to review instead of
// being published.
func (r *Result) Routed() bool { return r.Attempt == nil }

// Orchestrator wires the classifier and the sync engine together.
type Orchestrator struct {
	root       string
	classifier *classifier.Classifier
	publisher  Publisher
	logger     *zap.Logger
}

// New creates an Orchestrator for the working copy at root.
func New(root string, cls *classifier.Classifier, pub Publisher, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{root: root, classifier: cls, publisher: pub, logger: logger}
}

// Capture reads the pending modifications from the working tree.
func (o *Orchestrator) Capture() (*changeset.ChangeSet, error) {
	cs, err := changeset.Capture(o.root)
	if err != nil {
		return nil, fmt.Errorf("capturing change set: %w", err)
	}
	return cs, nil
}

// Classify routes a change set without publishing anything.
func (o *Orchestrator) Classify(cs *changeset.ChangeSet) classifier.RoutingDecision {
	return o.classifier.Classify(cs)
}

// Publish classifies the change set and, when it qualifies for a direct
// commit, runs the safe-push protocol. A requires-review verdict comes back
// as a routed Result with no attempt.
func (o *Orchestrator) Publish(ctx context.Context, cs *changeset.ChangeSet, message string) *Result {
	decision := o.classifier.Classify(cs)
	o.logger.Info("change set classified",
		zap.String("verdict", string(decision.Verdict)),
		zap.String("rule", decision.Rule),
		zap.Int("files", len(cs.Files)),
		zap.Int("lines", cs.TotalChanged()),
	)
	if decision.Verdict == classifier.RequiresReview {
		return &Result{Decision: decision}
	}
	return &Result{
		Decision: decision,
		Attempt:  o.publisher.Publish(ctx, cs, message),
	}
}

// PublishPending captures the working tree's modifications and publishes
// them in one call.
func (o *Orchestrator) PublishPending(ctx context.Context, message string) (*Result, error) {
	cs, err := o.Capture()
	if err != nil {
		return nil, err
	}
	return o.Publish(ctx, cs, message), nil
}
