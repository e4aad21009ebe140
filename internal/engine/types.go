package engine

import (
	"time"

	"github.com/fyrsmithlabs/shipd/internal/gitops"
	"github.com/fyrsmithlabs/shipd/internal/resolver"
)

// StepName identifies one step of the safe-push protocol.
type StepName string

const (
	StepPreserve  StepName = "preserve"
	StepFetch     StepName = "fetch"
	StepStage     StepName = "stage"
	StepNormalize StepName = "normalize"
	StepCommit    StepName = "commit"
	StepIntegrate StepName = "integrate"
	StepPublish   StepName = "publish"
)

// StepStatus is the recorded result of one protocol step.
type StepStatus string

const (
	// StatusOK means the step completed on its first try.
	StatusOK StepStatus = "ok"
	// StatusRetried means the step completed after at least one retry.
	StatusRetried StepStatus = "retried"
	// StatusAutoResolved means the step completed by applying the
	// conflict policy.
	StatusAutoResolved StepStatus = "auto-resolved"
	// StatusFailed means the step ended the attempt.
	StatusFailed StepStatus = "failed"
)

// Outcome is the terminal result of a publish attempt.
type Outcome string

const (
	// Published means the local head is now the remote head.
	Published Outcome = "published"
	// Aborted means the attempt stopped and, where possible, the
	// pre-attempt baseline was restored.
	Aborted Outcome = "aborted"
	// ManualInterventionRequired means automatic progress is impossible
	// and an operator must act.
	ManualInterventionRequired Outcome = "manual-intervention-required"
)

// FailureClass categorizes why an attempt did not publish.
type FailureClass string

const (
	// FailureNone marks a published attempt.
	FailureNone FailureClass = ""
	// FailureTransient covers network fetch and push failures.
	FailureTransient FailureClass = "transient"
	// FailureContention means the remote kept advancing past the
	// integration retry bound.
	FailureContention FailureClass = "contention"
	// FailureConflictUnresolved means the resolver reported conflicts it
	// refuses to guess at.
	FailureConflictUnresolved FailureClass = "conflict-unresolved"
	// FailurePolicyViolation means a pre-commit hook rejected the change.
	FailurePolicyViolation FailureClass = "policy-violation"
	// FailurePrecondition means the working copy was unsafe before the
	// attempt started, and nothing was touched.
	FailurePrecondition FailureClass = "precondition-failed"
	// FailureCanceled means the caller canceled the attempt.
	FailureCanceled FailureClass = "canceled"
)

// Step is one append-only entry in an attempt's log.
type Step struct {
	// Name is the protocol step this entry records.
	Name StepName `json:"name"`

	// Status is the step's result.
	Status StepStatus `json:"status"`

	// Detail carries the failure message or a short note for retried and
	// auto-resolved steps.
	Detail string `json:"detail,omitempty"`
}

// SyncAttempt is the structured record of one run of the safe-push protocol.
// The step log is append-only; entries are never rewritten once recorded.
type SyncAttempt struct {
	// ID uniquely identifies this attempt.
	ID string `json:"id"`

	// Steps is the ordered log of step outcomes.
	Steps []Step `json:"steps"`

	// Outcome is the terminal result.
	Outcome Outcome `json:"outcome"`

	// Failure classifies a non-published outcome.
	Failure FailureClass `json:"failure,omitempty"`

	// Reason carries the human-readable cause of a refusal or terminal
	// failure, including a rejecting hook's message verbatim.
	Reason string `json:"reason,omitempty"`

	// CommitHash is the local commit the attempt created, when it got
	// that far. On Aborted outcomes after the commit step it tells the
	// caller which commit survived locally.
	CommitHash gitops.Ref `json:"commit_hash,omitempty"`

	// Conflicts is set when the resolver refused to merge automatically.
	Conflicts *resolver.ConflictReport `json:"conflicts,omitempty"`

	// IntegrationCycles counts how many integrate/publish rounds ran.
	IntegrationCycles int `json:"integration_cycles"`

	// StartedAt and FinishedAt bound the attempt in time.
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Failed reports whether the attempt ended without publishing.
func (a *SyncAttempt) Failed() bool {
	return a.Outcome != Published
}

// StepNames returns the ordered step names from the log.
func (a *SyncAttempt) StepNames() []StepName {
	names := make([]StepName, len(a.Steps))
	for i, s := range a.Steps {
		names[i] = s.Name
	}
	return names
}

func (a *SyncAttempt) record(name StepName, status StepStatus, detail string) {
	a.Steps = append(a.Steps, Step{Name: name, Status: status, Detail: detail})
}
