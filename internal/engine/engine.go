package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/shipd/internal/changeset"
	"github.com/fyrsmithlabs/shipd/internal/gitops"
	"github.com/fyrsmithlabs/shipd/internal/hooks"
	"github.com/fyrsmithlabs/shipd/internal/normalize"
	"github.com/fyrsmithlabs/shipd/internal/resolver"
	"github.com/fyrsmithlabs/shipd/internal/state"
)

// Inspector produces repository snapshots for precondition checks.
type Inspector interface {
	Inspect() (*state.RepositoryState, error)
}

// Options configures a SyncEngine.
type Options struct {
	// Hooks are the pre-commit validations. Optional.
	Hooks *hooks.Registry

	// Inspector supplies precondition snapshots. Defaults to a
	// state.Validator rooted at the working copy.
	Inspector Inspector

	// Logger defaults to a no-op logger.
	Logger *zap.Logger

	// Metrics defaults to instruments on the global meter provider.
	Metrics *Metrics

	// FetchBackoff is the pause before the single fetch retry.
	FetchBackoff time.Duration

	// MaxIntegrationCycles bounds the integrate/publish loop.
	MaxIntegrationCycles int
}

// SyncEngine runs the safe-push protocol against one working copy.
//
// The protocol stages a change set, commits it, integrates any concurrent
// remote history by building a fresh integration commit on top of the remote
// head, and publishes with a fast-forward push. It never force-pushes and
// never rewrites a commit that has already been pushed.
type SyncEngine struct {
	git       gitops.Engine
	root      string
	hooks     *hooks.Registry
	inspector Inspector
	logger    *zap.Logger
	metrics   *Metrics
	backoff   time.Duration
	maxCycles int
}

// New creates a SyncEngine for the working copy at root.
func New(git gitops.Engine, root string, opts Options) *SyncEngine {
	if opts.Hooks == nil {
		opts.Hooks = hooks.NewRegistry()
	}
	if opts.Inspector == nil {
		opts.Inspector = state.NewValidator(root)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(opts.Logger)
	}
	if opts.FetchBackoff <= 0 {
		opts.FetchBackoff = 2 * time.Second
	}
	if opts.MaxIntegrationCycles <= 0 {
		opts.MaxIntegrationCycles = 3
	}
	return &SyncEngine{
		git:       git,
		root:      root,
		hooks:     opts.Hooks,
		inspector: opts.Inspector,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		backoff:   opts.FetchBackoff,
		maxCycles: opts.MaxIntegrationCycles,
	}
}

// Publish runs the full protocol for one change set. All failures come back
// as structured results on the attempt; Publish itself never panics on
// domain errors.
func (e *SyncEngine) Publish(ctx context.Context, cs *changeset.ChangeSet, message string) *SyncAttempt {
	lock := acquireLock(e.root)
	defer releaseLock(lock)

	a := &SyncAttempt{ID: uuid.NewString(), StartedAt: time.Now()}
	defer func() {
		a.FinishedAt = time.Now()
		e.metrics.recordAttempt(ctx, a, a.FinishedAt.Sub(a.StartedAt))
		e.logger.Info("publish attempt finished",
			zap.String("attempt_id", a.ID),
			zap.String("outcome", string(a.Outcome)),
			zap.String("failure", string(a.Failure)),
			zap.Int("steps", len(a.Steps)),
			zap.Int("integration_cycles", a.IntegrationCycles),
		)
	}()

	// The protocol refuses to start in an inconsistent workspace. Nothing
	// has been touched at this point, so there is nothing to roll back.
	if cs == nil || cs.Empty() {
		return e.refuse(a, "change set is empty")
	}
	snapshot, err := e.inspector.Inspect()
	if err != nil {
		return e.refuse(a, fmt.Sprintf("inspecting repository: %v", err))
	}
	if v := snapshot.Violations(); len(v) > 0 {
		return e.refuse(a, strings.Join(v, "; "))
	}

	// Step 1: preserve the pre-attempt baseline.
	baseline, err := e.git.Snapshot()
	if err != nil {
		a.record(StepPreserve, StatusFailed, err.Error())
		return e.abort(a, FailureTransient)
	}
	a.record(StepPreserve, StatusOK, "")

	// Step 2: fetch, one retry with backoff.
	if canceled := e.checkCanceled(ctx, a, baseline); canceled {
		return a
	}
	if err := e.fetch(ctx, a); err != nil {
		e.restore(a, baseline)
		return e.abort(a, failureFor(err))
	}
	remoteHead, err := e.git.RemoteHead()
	if err != nil && !errors.Is(err, gitops.ErrNoRemoteHead) {
		a.record(StepFetch, StatusFailed, err.Error())
		e.restore(a, baseline)
		return e.abort(a, FailureTransient)
	}

	// Step 3: stage the change set.
	if canceled := e.checkCanceled(ctx, a, baseline); canceled {
		return a
	}
	paths := cs.Paths()
	if err := e.git.Stage(paths); err != nil {
		a.record(StepStage, StatusFailed, err.Error())
		e.restore(a, baseline)
		return e.abort(a, FailureTransient)
	}
	a.record(StepStage, StatusOK, "")

	// Step 4: normalize whitespace, best effort, re-stage rewrites.
	if canceled := e.checkCanceled(ctx, a, baseline); canceled {
		return a
	}
	e.normalizeStep(a, paths)

	// Step 5: commit, running pre-commit hooks first.
	if canceled := e.checkCanceled(ctx, a, baseline); canceled {
		return a
	}
	if done := e.commitStep(ctx, a, baseline, paths, message); done {
		return a
	}

	// Steps 6 and 7: integrate and publish, bounded by the cycle limit.
	// A local commit exists from here on; aborts keep it and report its
	// hash instead of restoring the baseline. Uncommitted content outside
	// the change set is snapshotted in the baseline and survives the
	// integration tree rebuild.
	preserved := preservedPaths(baseline, paths)
	return e.integrateAndPublish(ctx, a, baseline, preserved, remoteHead, message)
}

// preservedPaths lists the baseline's dirty paths that are not part of the
// change set. The precondition check deliberately admits them; integration
// must hand them back untouched.
func preservedPaths(b *gitops.Baseline, staged []string) []string {
	in := make(map[string]bool, len(staged))
	for _, p := range staged {
		in[p] = true
	}
	var keep []string
	for _, p := range b.DirtyPaths() {
		if !in[p] {
			keep = append(keep, p)
		}
	}
	return keep
}

func (e *SyncEngine) fetch(ctx context.Context, a *SyncAttempt) error {
	err := e.git.Fetch(ctx)
	if err == nil {
		a.record(StepFetch, StatusOK, "")
		return nil
	}
	if ctx.Err() != nil {
		a.record(StepFetch, StatusFailed, ctx.Err().Error())
		return ctx.Err()
	}
	select {
	case <-time.After(e.backoff):
	case <-ctx.Done():
		a.record(StepFetch, StatusFailed, ctx.Err().Error())
		return ctx.Err()
	}
	if retryErr := e.git.Fetch(ctx); retryErr != nil {
		a.record(StepFetch, StatusFailed, retryErr.Error())
		return retryErr
	}
	a.record(StepFetch, StatusRetried, fmt.Sprintf("first fetch failed: %v", err))
	return nil
}

func (e *SyncEngine) normalizeStep(a *SyncAttempt, paths []string) {
	res, err := normalize.Normalize(e.root, paths)
	if err != nil {
		// Best effort: a normalization problem never fails the attempt.
		a.record(StepNormalize, StatusOK, fmt.Sprintf("skipped: %v", err))
		return
	}
	if !res.Changed() {
		a.record(StepNormalize, StatusOK, "")
		return
	}
	if err := e.git.Stage(res.Rewritten); err != nil {
		a.record(StepNormalize, StatusOK, fmt.Sprintf("rewrote %d files but re-stage failed: %v", len(res.Rewritten), err))
		return
	}
	a.record(StepNormalize, StatusOK, fmt.Sprintf("rewrote %d files", len(res.Rewritten)))
}

// commitStep returns true when the attempt is terminal.
func (e *SyncEngine) commitStep(ctx context.Context, a *SyncAttempt, baseline *gitops.Baseline, paths []string, message string) bool {
	req := &hooks.Request{Root: e.root, Paths: paths, Message: message}
	res, err := e.hooks.RunPreCommit(ctx, req)
	if err != nil {
		return e.hookRejected(ctx, a, baseline, err)
	}

	retried := false
	if len(res.Mutated) > 0 {
		// A hook rewrote files: re-stage and give the hooks one more
		// pass before committing.
		if err := e.git.Stage(res.Mutated); err != nil {
			a.record(StepCommit, StatusFailed, err.Error())
			e.restore(a, baseline)
			e.abort(a, FailureTransient)
			return true
		}
		second, err := e.hooks.RunPreCommit(ctx, req)
		if err != nil {
			return e.hookRejected(ctx, a, baseline, err)
		}
		if len(second.Mutated) > 0 {
			if err := e.git.Stage(second.Mutated); err != nil {
				a.record(StepCommit, StatusFailed, err.Error())
				e.restore(a, baseline)
				e.abort(a, FailureTransient)
				return true
			}
		}
		retried = true
	}

	hash, err := e.git.Commit(message)
	if err != nil {
		a.record(StepCommit, StatusFailed, err.Error())
		e.restore(a, baseline)
		e.abort(a, FailureTransient)
		return true
	}
	a.CommitHash = hash
	if retried {
		a.record(StepCommit, StatusRetried, "hooks rewrote staged files, committed on retry")
	} else {
		a.record(StepCommit, StatusOK, "")
	}
	return false
}

func (e *SyncEngine) hookRejected(ctx context.Context, a *SyncAttempt, baseline *gitops.Baseline, err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		a.record(StepCommit, StatusFailed, err.Error())
		e.restore(a, baseline)
		e.abort(a, FailureCanceled)
		return true
	}
	// The hook's own message travels verbatim to the caller.
	a.record(StepCommit, StatusFailed, err.Error())
	a.Reason = err.Error()
	e.restore(a, baseline)
	e.abort(a, FailurePolicyViolation)
	return true
}

func (e *SyncEngine) integrateAndPublish(ctx context.Context, a *SyncAttempt, baseline *gitops.Baseline, preserved []string, remoteHead gitops.Ref, message string) *SyncAttempt {
	for {
		a.IntegrationCycles++

		// Step 6: integrate concurrent remote history.
		if terminal := e.integrate(a, baseline, preserved, remoteHead, message); terminal {
			return a
		}

		// Step 7: publish as a fast-forward.
		err := e.git.Push(ctx)
		if err == nil {
			a.record(StepPublish, StatusOK, "")
			a.Outcome = Published
			return a
		}
		if errors.Is(err, gitops.ErrRemoteAdvanced) {
			a.record(StepPublish, StatusRetried, "remote advanced during push")
			if a.IntegrationCycles >= e.maxCycles {
				a.Reason = fmt.Sprintf("remote kept advancing through %d integration cycles", a.IntegrationCycles)
				a.Outcome = ManualInterventionRequired
				a.Failure = FailureContention
				return a
			}
			if err := e.git.Fetch(ctx); err != nil {
				a.record(StepFetch, StatusFailed, err.Error())
				return e.abortKeepingCommit(a, failureFor(err))
			}
			head, err := e.git.RemoteHead()
			if err != nil {
				a.record(StepFetch, StatusFailed, err.Error())
				return e.abortKeepingCommit(a, FailureTransient)
			}
			remoteHead = head
			continue
		}
		a.record(StepPublish, StatusFailed, err.Error())
		return e.abortKeepingCommit(a, failureFor(err))
	}
}

// integrate reconciles the local head with remoteHead. When the remote did
// not move past our base there is nothing to do. Otherwise it three-way
// merges both trees and replaces the local commit with an integration commit
// built directly on the remote head, which keeps history linear and the
// subsequent push a plain fast-forward. Rebuilding the tree clobbers dirty
// paths outside the change set, so their snapshotted content is written back
// once the integration commit exists, and a failure after the reset rewinds
// the branch to the step-5 commit so the advertised hash stays reachable.
func (e *SyncEngine) integrate(a *SyncAttempt, baseline *gitops.Baseline, preserved []string, remoteHead gitops.Ref, message string) bool {
	localHead, err := e.git.Head()
	if err != nil {
		a.record(StepIntegrate, StatusFailed, err.Error())
		e.abortKeepingCommit(a, FailureTransient)
		return true
	}

	if remoteHead == gitops.Zero {
		a.record(StepIntegrate, StatusOK, "no remote head, first publish")
		return false
	}
	behind, err := e.git.IsAncestor(remoteHead, localHead)
	if err != nil {
		a.record(StepIntegrate, StatusFailed, err.Error())
		e.abortKeepingCommit(a, FailureTransient)
		return true
	}
	if behind {
		a.record(StepIntegrate, StatusOK, "remote unchanged since fetch")
		return false
	}

	base, err := e.git.MergeBase(localHead, remoteHead)
	if err != nil {
		a.record(StepIntegrate, StatusFailed, err.Error())
		e.abortKeepingCommit(a, FailureTransient)
		return true
	}
	input := resolver.Input{}
	if input.Base, err = e.git.TreeFiles(base); err == nil {
		if input.Local, err = e.git.TreeFiles(localHead); err == nil {
			input.Remote, err = e.git.TreeFiles(remoteHead)
		}
	}
	if err != nil {
		a.record(StepIntegrate, StatusFailed, err.Error())
		e.abortKeepingCommit(a, FailureTransient)
		return true
	}

	merged, report := resolver.Resolve(input)
	if report != nil {
		unresolved := report.Paths()
		a.record(StepIntegrate, StatusFailed, fmt.Sprintf("unresolved conflicts: %s", strings.Join(unresolved, ", ")))
		a.Conflicts = report
		a.Reason = "conflicts need a human decision"
		a.Outcome = ManualInterventionRequired
		a.Failure = FailureConflictUnresolved
		return true
	}

	if err := e.git.ResetHard(remoteHead); err != nil {
		a.record(StepIntegrate, StatusFailed, err.Error())
		e.abortKeepingCommit(a, FailureTransient)
		return true
	}
	if err := e.git.ApplyTree(merged.Files); err != nil {
		a.record(StepIntegrate, StatusFailed, err.Error())
		e.rewind(a, localHead, baseline, preserved)
		e.abortKeepingCommit(a, FailureTransient)
		return true
	}
	hash, err := e.git.Commit(message)
	if err != nil {
		if errors.Is(err, gitops.ErrNothingStaged) {
			// The merged tree equals the remote tree; the remote
			// already holds our content.
			a.record(StepIntegrate, StatusOK, "merged tree already on remote")
			a.CommitHash = remoteHead
			e.restorePreserved(a, baseline, preserved)
			return false
		}
		a.record(StepIntegrate, StatusFailed, err.Error())
		e.rewind(a, localHead, baseline, preserved)
		e.abortKeepingCommit(a, FailureTransient)
		return true
	}
	a.CommitHash = hash
	e.restorePreserved(a, baseline, preserved)

	if n := len(merged.AutoResolved); n > 0 {
		a.record(StepIntegrate, StatusAutoResolved, fmt.Sprintf("%d conflicts auto-resolved keeping local content", n))
	} else {
		a.record(StepIntegrate, StatusOK, "integrated concurrent remote history")
	}
	return false
}

func (e *SyncEngine) checkCanceled(ctx context.Context, a *SyncAttempt, baseline *gitops.Baseline) bool {
	if ctx.Err() == nil {
		return false
	}
	e.restore(a, baseline)
	a.Reason = ctx.Err().Error()
	e.abort(a, FailureCanceled)
	return true
}

// rewind moves the branch back to the step-5 commit after integration failed
// past the hard reset. Without it the attempt would advertise a hash no ref
// can reach.
func (e *SyncEngine) rewind(a *SyncAttempt, head gitops.Ref, baseline *gitops.Baseline, preserved []string) {
	if err := e.git.ResetHard(head); err != nil {
		e.logger.Error("failed to rewind to the attempt commit",
			zap.String("attempt_id", a.ID), zap.Error(err))
		return
	}
	e.restorePreserved(a, baseline, preserved)
}

func (e *SyncEngine) restorePreserved(a *SyncAttempt, baseline *gitops.Baseline, preserved []string) {
	if len(preserved) == 0 {
		return
	}
	if err := e.git.RestorePaths(baseline, preserved); err != nil {
		e.logger.Error("failed to restore uncommitted content outside the change set",
			zap.String("attempt_id", a.ID), zap.Error(err))
	}
}

func (e *SyncEngine) restore(a *SyncAttempt, baseline *gitops.Baseline) {
	if err := e.git.Restore(baseline); err != nil {
		e.logger.Error("failed to restore pre-attempt baseline",
			zap.String("attempt_id", a.ID), zap.Error(err))
	}
}

func (e *SyncEngine) refuse(a *SyncAttempt, reason string) *SyncAttempt {
	a.Reason = reason
	a.Outcome = Aborted
	a.Failure = FailurePrecondition
	return a
}

func (e *SyncEngine) abort(a *SyncAttempt, class FailureClass) *SyncAttempt {
	a.Outcome = Aborted
	a.Failure = class
	return a
}

// abortKeepingCommit ends the attempt after a local commit exists. The
// commit stays in local history; it is not remote-visible, so keeping it is
// safe and gives the caller something to retry or discard.
func (e *SyncEngine) abortKeepingCommit(a *SyncAttempt, class FailureClass) *SyncAttempt {
	a.Outcome = Aborted
	a.Failure = class
	return a
}

func failureFor(err error) FailureClass {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return FailureCanceled
	}
	return FailureTransient
}
