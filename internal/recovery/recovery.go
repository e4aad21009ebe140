// Package recovery maps an observed repository state to an ordered
// remediation plan. The advisor only describes corrective actions; it never
// executes them, because automatic recovery from an unknown bad state risks
// making it worse. Execution is the operator's call.
package recovery

import (
	"fmt"

	"github.com/fyrsmithlabs/shipd/internal/state"
)

// Severity classifies how urgent a remediation action is.
type Severity string

const (
	// SeverityBlocking means publishing cannot proceed until resolved.
	SeverityBlocking Severity = "blocking"
	// SeverityWarning means publishing may proceed but the condition
	// deserves attention.
	SeverityWarning Severity = "warning"
)

// Anomaly identifies the repository condition an action addresses.
type Anomaly string

const (
	// AnomalyMergeInProgress is an unfinished merge left in the working copy.
	AnomalyMergeInProgress Anomaly = "merge-in-progress"
	// AnomalyDetachedHead is a HEAD not attached to any branch.
	AnomalyDetachedHead Anomaly = "detached-head"
	// AnomalyStash is a non-empty stash predating the attempt.
	AnomalyStash Anomaly = "stash-not-empty"
	// AnomalyDiverged means local and remote histories have both advanced.
	AnomalyDiverged Anomaly = "diverged"
	// AnomalyDirty is uncommitted local modification.
	AnomalyDirty Anomaly = "dirty-working-tree"
)

// Action is one corrective step an operator can take.
type Action struct {
	// Anomaly is the condition this action addresses.
	Anomaly Anomaly `json:"anomaly"`

	// Severity indicates whether the condition blocks publishing.
	Severity Severity `json:"severity"`

	// Summary describes the condition and the suggested fix.
	Summary string `json:"summary"`

	// Command is a concrete git invocation the operator can run, when one
	// exists.
	Command string `json:"command,omitempty"`
}

// Plan is an ordered list of corrective actions, blocking conditions first.
type Plan struct {
	Actions []Action `json:"actions"`
}

// Blocked reports whether any action in the plan is blocking.
func (p *Plan) Blocked() bool {
	for _, a := range p.Actions {
		if a.Severity == SeverityBlocking {
			return true
		}
	}
	return false
}

// Empty reports whether the plan has nothing to suggest.
func (p *Plan) Empty() bool { return len(p.Actions) == 0 }

// Advise derives a remediation plan from a repository snapshot. It is a pure
// function of its input: the same state always yields the same plan.
func Advise(st *state.RepositoryState) *Plan {
	plan := &Plan{}

	if st.MergeInProgress {
		plan.Actions = append(plan.Actions, Action{
			Anomaly:  AnomalyMergeInProgress,
			Severity: SeverityBlocking,
			Summary:  "an earlier merge was never concluded; finish or abort it before publishing",
			Command:  "git merge --abort",
		})
	}
	if st.DetachedHead {
		plan.Actions = append(plan.Actions, Action{
			Anomaly:  AnomalyDetachedHead,
			Severity: SeverityBlocking,
			Summary:  "HEAD is detached; commits made here are not on any branch",
			Command:  "git switch -",
		})
	}
	if st.StashDepth > 0 {
		plan.Actions = append(plan.Actions, Action{
			Anomaly:  AnomalyStash,
			Severity: SeverityBlocking,
			Summary:  fmt.Sprintf("the stash holds %d pre-existing entries; inspect and clear them so the attempt baseline is unambiguous", st.StashDepth),
			Command:  "git stash list",
		})
	}
	if st.Diverged() {
		plan.Actions = append(plan.Actions, Action{
			Anomaly:  AnomalyDiverged,
			Severity: SeverityWarning,
			Summary:  fmt.Sprintf("local is %d ahead and %d behind the remote; integration will run during the next publish", st.Ahead, st.Behind),
			Command:  "git fetch",
		})
	}
	if len(st.DirtyFiles) > 0 {
		plan.Actions = append(plan.Actions, Action{
			Anomaly:  AnomalyDirty,
			Severity: SeverityWarning,
			Summary:  fmt.Sprintf("%d files carry uncommitted modifications; they will be snapshotted and restored if an attempt aborts", len(st.DirtyFiles)),
			Command:  "git status",
		})
	}
	return plan
}
