package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/shipd/internal/changeset"
	"github.com/fyrsmithlabs/shipd/internal/gitops"
	"github.com/fyrsmithlabs/shipd/internal/hooks"
	"github.com/fyrsmithlabs/shipd/internal/state"
)

// fakeGit is a scripted gitops.Engine. Each behavior can be overridden per
// test; defaults model a clean, undiverged repository.
type fakeGit struct {
	head   gitops.Ref
	remote gitops.Ref

	fetchErrs    []error // popped per call, nil entries mean success
	pushErrs     []error // popped per call, nil entries mean success
	commitErr    error
	applyTreeErr error
	isAncestorFn func(anc, desc gitops.Ref) (bool, error)
	mergeBaseFn  func(a, b gitops.Ref) (gitops.Ref, error)
	treeFilesFn  func(ref gitops.Ref) (map[string][]byte, error)

	commitSeq     int
	fetches       int
	stageCalls    [][]string
	commits       []string
	resets        []gitops.Ref
	applied       []map[string][]byte
	snapshots     int
	restores      int
	restoredPaths [][]string
	forcePushes   int
}

func newFakeGit() *fakeGit {
	return &fakeGit{head: "head0", remote: "head0"}
}

func (f *fakeGit) Head() (gitops.Ref, error) { return f.head, nil }

func (f *fakeGit) RemoteHead() (gitops.Ref, error) {
	if f.remote == gitops.Zero {
		return gitops.Zero, gitops.ErrNoRemoteHead
	}
	return f.remote, nil
}

func (f *fakeGit) Fetch(ctx context.Context) error {
	f.fetches++
	if len(f.fetchErrs) > 0 {
		err := f.fetchErrs[0]
		f.fetchErrs = f.fetchErrs[1:]
		return err
	}
	return nil
}

func (f *fakeGit) Stage(paths []string) error {
	f.stageCalls = append(f.stageCalls, paths)
	return nil
}

func (f *fakeGit) Commit(message string) (gitops.Ref, error) {
	if f.commitErr != nil {
		return gitops.Zero, f.commitErr
	}
	f.commitSeq++
	f.head = gitops.Ref(fmt.Sprintf("commit%d", f.commitSeq))
	f.commits = append(f.commits, message)
	return f.head, nil
}

func (f *fakeGit) Push(ctx context.Context) error {
	if len(f.pushErrs) > 0 {
		err := f.pushErrs[0]
		f.pushErrs = f.pushErrs[1:]
		if err != nil {
			return err
		}
	}
	f.remote = f.head
	return nil
}

func (f *fakeGit) MergeBase(a, b gitops.Ref) (gitops.Ref, error) {
	if f.mergeBaseFn != nil {
		return f.mergeBaseFn(a, b)
	}
	return "base", nil
}

func (f *fakeGit) IsAncestor(anc, desc gitops.Ref) (bool, error) {
	if f.isAncestorFn != nil {
		return f.isAncestorFn(anc, desc)
	}
	// Default: the remote never moved, every commit descends from it.
	return true, nil
}

func (f *fakeGit) TreeFiles(ref gitops.Ref) (map[string][]byte, error) {
	if f.treeFilesFn != nil {
		return f.treeFilesFn(ref)
	}
	return map[string][]byte{}, nil
}

func (f *fakeGit) ApplyTree(files map[string][]byte) error {
	if f.applyTreeErr != nil {
		return f.applyTreeErr
	}
	f.applied = append(f.applied, files)
	return nil
}

func (f *fakeGit) ResetHard(ref gitops.Ref) error {
	f.resets = append(f.resets, ref)
	f.head = ref
	return nil
}

func (f *fakeGit) Snapshot() (*gitops.Baseline, error) {
	f.snapshots++
	return &gitops.Baseline{}, nil
}

func (f *fakeGit) Restore(b *gitops.Baseline) error {
	f.restores++
	return nil
}

func (f *fakeGit) RestorePaths(b *gitops.Baseline, paths []string) error {
	f.restoredPaths = append(f.restoredPaths, paths)
	return nil
}

// fakeInspector returns a fixed snapshot.
type fakeInspector struct {
	st  *state.RepositoryState
	err error
}

func (f *fakeInspector) Inspect() (*state.RepositoryState, error) { return f.st, f.err }

func cleanInspector() *fakeInspector {
	return &fakeInspector{st: &state.RepositoryState{Branch: "main"}}
}

func docChangeSet(t *testing.T, root string) *changeset.ChangeSet {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "docs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "docs", "guide.md"), []byte("# guide\n"), 0o644))
	return &changeset.ChangeSet{
		Files: []changeset.FileChange{
			{Path: "docs/guide.md", Kind: changeset.KindModified, Category: changeset.CategoryDocs, Added: 40},
		},
		TotalAdded: 40,
		CapturedAt: time.Now(),
	}
}

func newTestEngine(t *testing.T, git *fakeGit, opts Options) (*SyncEngine, string) {
	t.Helper()
	root := t.TempDir()
	if opts.Inspector == nil {
		opts.Inspector = cleanInspector()
	}
	if opts.FetchBackoff == 0 {
		opts.FetchBackoff = time.Millisecond
	}
	opts.Logger = zap.NewNop()
	return New(git, root, opts), root
}

func TestPublishCleanRunSevenSteps(t *testing.T) {
	git := newFakeGit()
	eng, root := newTestEngine(t, git, Options{})
	cs := docChangeSet(t, root)

	a := eng.Publish(context.Background(), cs, "update guide")

	assert.Equal(t, Published, a.Outcome)
	assert.Equal(t, FailureNone, a.Failure)
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, gitops.Ref("commit1"), a.CommitHash)

	require.Len(t, a.Steps, 7)
	assert.Equal(t, []StepName{
		StepPreserve, StepFetch, StepStage, StepNormalize,
		StepCommit, StepIntegrate, StepPublish,
	}, a.StepNames())
	for _, s := range a.Steps {
		assert.Equal(t, StatusOK, s.Status, "step %s", s.Name)
	}
	assert.Equal(t, 1, a.IntegrationCycles)
	assert.Equal(t, 0, git.restores, "published attempts keep the new history")
	assert.Equal(t, git.head, git.remote)
}

func TestPublishEmptyChangeSetRefused(t *testing.T) {
	git := newFakeGit()
	eng, _ := newTestEngine(t, git, Options{})

	a := eng.Publish(context.Background(), &changeset.ChangeSet{}, "nothing")

	assert.Equal(t, Aborted, a.Outcome)
	assert.Equal(t, FailurePrecondition, a.Failure)
	assert.Empty(t, a.Steps)
	assert.Zero(t, git.snapshots)
	assert.Empty(t, git.stageCalls)
	assert.Empty(t, git.commits)
}

func TestPublishRefusesWhenMergeInProgress(t *testing.T) {
	git := newFakeGit()
	insp := &fakeInspector{st: &state.RepositoryState{Branch: "main", MergeInProgress: true}}
	eng, root := newTestEngine(t, git, Options{Inspector: insp})
	cs := docChangeSet(t, root)

	a := eng.Publish(context.Background(), cs, "update guide")

	assert.Equal(t, Aborted, a.Outcome)
	assert.Equal(t, FailurePrecondition, a.Failure)
	assert.Contains(t, a.Reason, "merge in progress")
	assert.Empty(t, a.Steps, "the protocol never started")
	assert.Empty(t, git.stageCalls)
	assert.Empty(t, git.commits)
}

func TestPublishRefusesOnStashAndDetachedHead(t *testing.T) {
	for _, st := range []*state.RepositoryState{
		{Branch: "main", StashDepth: 2},
		{DetachedHead: true},
	} {
		git := newFakeGit()
		eng, root := newTestEngine(t, git, Options{Inspector: &fakeInspector{st: st}})
		cs := docChangeSet(t, root)

		a := eng.Publish(context.Background(), cs, "update guide")
		assert.Equal(t, FailurePrecondition, a.Failure)
		assert.Empty(t, git.commits)
	}
}

func TestPublishFetchRetriesOnceThenSucceeds(t *testing.T) {
	git := newFakeGit()
	git.fetchErrs = []error{errors.New("connection reset"), nil}
	eng, root := newTestEngine(t, git, Options{})
	cs := docChangeSet(t, root)

	a := eng.Publish(context.Background(), cs, "update guide")

	assert.Equal(t, Published, a.Outcome)
	assert.Equal(t, 2, git.fetches)
	require.Len(t, a.Steps, 7)
	assert.Equal(t, StatusRetried, a.Steps[1].Status)
	assert.Contains(t, a.Steps[1].Detail, "connection reset")
}

func TestPublishFetchFailsTwiceAborts(t *testing.T) {
	git := newFakeGit()
	git.fetchErrs = []error{errors.New("network down"), errors.New("network down")}
	eng, root := newTestEngine(t, git, Options{})
	cs := docChangeSet(t, root)

	a := eng.Publish(context.Background(), cs, "update guide")

	assert.Equal(t, Aborted, a.Outcome)
	assert.Equal(t, FailureTransient, a.Failure)
	assert.Equal(t, 1, git.restores, "baseline restored on pre-commit abort")
	assert.Empty(t, git.commits)

	last := a.Steps[len(a.Steps)-1]
	assert.Equal(t, StepFetch, last.Name)
	assert.Equal(t, StatusFailed, last.Status)
}

func TestPublishHookRejectionSurfacedVerbatim(t *testing.T) {
	git := newFakeGit()
	reg := hooks.NewRegistry(hooks.Func{
		HookName: "policy",
		Fn: func(ctx context.Context, req *hooks.Request) (*hooks.Result, error) {
			return nil, errors.New("generated files must not be committed")
		},
	})
	eng, root := newTestEngine(t, git, Options{Hooks: reg})
	cs := docChangeSet(t, root)

	a := eng.Publish(context.Background(), cs, "update guide")

	assert.Equal(t, Aborted, a.Outcome)
	assert.Equal(t, FailurePolicyViolation, a.Failure)
	assert.Contains(t, a.Reason, "generated files must not be committed")
	assert.Equal(t, 1, git.restores)
	assert.Empty(t, git.commits, "no commit after a hook rejection")
}

func TestPublishHookMutationRestagesAndRetries(t *testing.T) {
	git := newFakeGit()
	runs := 0
	reg := hooks.NewRegistry(hooks.Func{
		HookName: "formatter",
		Fn: func(ctx context.Context, req *hooks.Request) (*hooks.Result, error) {
			runs++
			if runs == 1 {
				return &hooks.Result{Mutated: []string{"docs/guide.md"}}, nil
			}
			return &hooks.Result{}, nil
		},
	})
	eng, root := newTestEngine(t, git, Options{Hooks: reg})
	cs := docChangeSet(t, root)

	a := eng.Publish(context.Background(), cs, "update guide")

	assert.Equal(t, Published, a.Outcome)
	assert.Equal(t, 2, runs, "hooks ran again after the rewrite")

	var commitStep Step
	for _, s := range a.Steps {
		if s.Name == StepCommit {
			commitStep = s
		}
	}
	assert.Equal(t, StatusRetried, commitStep.Status)

	// The mutated file was staged again before committing.
	staged := false
	for _, call := range git.stageCalls {
		if len(call) == 1 && call[0] == "docs/guide.md" {
			staged = true
		}
	}
	assert.True(t, staged)
}

func TestPublishIntegratesDivergedRemote(t *testing.T) {
	git := newFakeGit()
	git.remote = "remoteA"
	git.isAncestorFn = func(anc, desc gitops.Ref) (bool, error) {
		return anc != "remoteA", nil
	}
	git.treeFilesFn = func(ref gitops.Ref) (map[string][]byte, error) {
		switch ref {
		case "base":
			return map[string][]byte{"shared.txt": []byte("shared\n")}, nil
		case "remoteA":
			return map[string][]byte{"shared.txt": []byte("shared\n"), "remote.txt": []byte("r\n")}, nil
		default: // local commit
			return map[string][]byte{"shared.txt": []byte("shared\n"), "docs/guide.md": []byte("# guide\n")}, nil
		}
	}
	eng, root := newTestEngine(t, git, Options{})
	cs := docChangeSet(t, root)

	a := eng.Publish(context.Background(), cs, "update guide")

	require.Equal(t, Published, a.Outcome)
	assert.Equal(t, []gitops.Ref{"remoteA"}, git.resets, "integration builds on the remote head")
	require.Len(t, git.applied, 1)
	assert.Contains(t, git.applied[0], "remote.txt")
	assert.Contains(t, git.applied[0], "docs/guide.md")
	assert.Len(t, git.commits, 2, "original commit plus integration commit")
	assert.Equal(t, gitops.Ref("commit2"), a.CommitHash)
}

func TestPublishIntegrationFailureKeepsCommitReachable(t *testing.T) {
	git := newFakeGit()
	git.remote = "remoteA"
	git.isAncestorFn = func(anc, desc gitops.Ref) (bool, error) {
		return anc != "remoteA", nil
	}
	git.treeFilesFn = func(ref gitops.Ref) (map[string][]byte, error) {
		switch ref {
		case "base":
			return map[string][]byte{}, nil
		case "remoteA":
			return map[string][]byte{"remote.txt": []byte("r\n")}, nil
		default:
			return map[string][]byte{"docs/guide.md": []byte("# guide\n")}, nil
		}
	}
	git.applyTreeErr = errors.New("disk full")
	eng, root := newTestEngine(t, git, Options{})
	cs := docChangeSet(t, root)

	a := eng.Publish(context.Background(), cs, "update guide")

	require.Equal(t, Aborted, a.Outcome)
	assert.Equal(t, FailureTransient, a.Failure)
	assert.Equal(t, gitops.Ref("commit1"), a.CommitHash)
	// The hard reset onto the remote head moved the branch away from the
	// advertised commit; the failure path must move it back.
	require.Equal(t, []gitops.Ref{"remoteA", "commit1"}, git.resets)
	assert.Equal(t, gitops.Ref("commit1"), git.head)
	assert.Zero(t, git.restores, "baseline is not restored once a commit exists")
}

func TestPublishConflictReportMeansManualIntervention(t *testing.T) {
	git := newFakeGit()
	git.remote = "remoteA"
	git.isAncestorFn = func(anc, desc gitops.Ref) (bool, error) {
		return anc != "remoteA", nil
	}
	// Both sides renamed base.go to different names: never auto-resolved.
	git.treeFilesFn = func(ref gitops.Ref) (map[string][]byte, error) {
		switch ref {
		case "base":
			return map[string][]byte{"base.go": []byte("package base\n")}, nil
		case "remoteA":
			return map[string][]byte{"remote_name.go": []byte("package base\n")}, nil
		default:
			return map[string][]byte{"local_name.go": []byte("package base\n")}, nil
		}
	}
	eng, root := newTestEngine(t, git, Options{})
	cs := docChangeSet(t, root)

	a := eng.Publish(context.Background(), cs, "update guide")

	assert.Equal(t, ManualInterventionRequired, a.Outcome)
	assert.Equal(t, FailureConflictUnresolved, a.Failure)
	require.NotNil(t, a.Conflicts)
	assert.Equal(t, []string{"base.go"}, a.Conflicts.Paths())
	assert.Empty(t, git.resets, "no integration commit was attempted")
	assert.Equal(t, gitops.Ref("commit1"), a.CommitHash, "the local commit survives for the caller")
}

func TestPublishBoundedRetryUnderContention(t *testing.T) {
	git := newFakeGit()
	git.pushErrs = []error{gitops.ErrRemoteAdvanced, gitops.ErrRemoteAdvanced, gitops.ErrRemoteAdvanced}
	eng, root := newTestEngine(t, git, Options{})
	cs := docChangeSet(t, root)

	a := eng.Publish(context.Background(), cs, "update guide")

	assert.Equal(t, ManualInterventionRequired, a.Outcome)
	assert.Equal(t, FailureContention, a.Failure)
	assert.Equal(t, 3, a.IntegrationCycles, "exactly three cycles, never more")

	retried := 0
	for _, s := range a.Steps {
		if s.Name == StepPublish && s.Status == StatusRetried {
			retried++
		}
	}
	assert.Equal(t, 3, retried)
}

func TestPublishSecondCycleSucceeds(t *testing.T) {
	git := newFakeGit()
	git.pushErrs = []error{gitops.ErrRemoteAdvanced, nil}
	eng, root := newTestEngine(t, git, Options{})
	cs := docChangeSet(t, root)

	a := eng.Publish(context.Background(), cs, "update guide")

	assert.Equal(t, Published, a.Outcome)
	assert.Equal(t, 2, a.IntegrationCycles)
}

func TestPublishCancellationBeforeCommitRestoresBaseline(t *testing.T) {
	git := newFakeGit()
	ctx, cancel := context.WithCancel(context.Background())
	reg := hooks.NewRegistry(hooks.Func{
		HookName: "canceler",
		Fn: func(ctx context.Context, req *hooks.Request) (*hooks.Result, error) {
			cancel()
			return nil, ctx.Err()
		},
	})
	eng, root := newTestEngine(t, git, Options{Hooks: reg})
	cs := docChangeSet(t, root)

	a := eng.Publish(ctx, cs, "update guide")

	assert.Equal(t, Aborted, a.Outcome)
	assert.Equal(t, FailureCanceled, a.Failure)
	assert.Equal(t, 1, git.restores)
	assert.Empty(t, git.commits)
}

func TestPublishCancellationAfterCommitKeepsCommit(t *testing.T) {
	git := newFakeGit()
	git.pushErrs = []error{context.Canceled}
	eng, root := newTestEngine(t, git, Options{})
	cs := docChangeSet(t, root)

	a := eng.Publish(context.Background(), cs, "update guide")

	assert.Equal(t, Aborted, a.Outcome)
	assert.Equal(t, FailureCanceled, a.Failure)
	assert.Equal(t, gitops.Ref("commit1"), a.CommitHash)
	assert.Zero(t, git.restores, "the local commit stays in place")
}

func TestPublishPushNetworkFailureAborts(t *testing.T) {
	git := newFakeGit()
	git.pushErrs = []error{errors.New("remote hung up")}
	eng, root := newTestEngine(t, git, Options{})
	cs := docChangeSet(t, root)

	a := eng.Publish(context.Background(), cs, "update guide")

	assert.Equal(t, Aborted, a.Outcome)
	assert.Equal(t, FailureTransient, a.Failure)
	assert.Equal(t, gitops.Ref("commit1"), a.CommitHash)
}

func TestPublishNoRemoteHeadFirstPublish(t *testing.T) {
	git := newFakeGit()
	git.remote = gitops.Zero
	eng, root := newTestEngine(t, git, Options{})
	cs := docChangeSet(t, root)

	a := eng.Publish(context.Background(), cs, "initial docs")

	assert.Equal(t, Published, a.Outcome)
	require.Len(t, a.Steps, 7)
	assert.Contains(t, a.Steps[5].Detail, "first publish")
}

func TestPublishNormalizeRewritesAndRestages(t *testing.T) {
	git := newFakeGit()
	eng, root := newTestEngine(t, git, Options{})
	require.NoError(t, os.MkdirAll(filepath.Join(root, "docs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "docs", "guide.md"), []byte("# guide  \ntext\t\n\n\n"), 0o644))
	cs := &changeset.ChangeSet{
		Files:      []changeset.FileChange{{Path: "docs/guide.md", Kind: changeset.KindModified, Category: changeset.CategoryDocs, Added: 4}},
		TotalAdded: 4,
	}

	a := eng.Publish(context.Background(), cs, "update guide")

	require.Equal(t, Published, a.Outcome)
	raw, err := os.ReadFile(filepath.Join(root, "docs", "guide.md"))
	require.NoError(t, err)
	assert.Equal(t, "# guide\ntext\n", string(raw))

	var normStep Step
	for _, s := range a.Steps {
		if s.Name == StepNormalize {
			normStep = s
		}
	}
	assert.Contains(t, normStep.Detail, "rewrote 1 files")
	require.GreaterOrEqual(t, len(git.stageCalls), 2, "rewritten file staged again")
}

func TestPublishSerializesPerWorkingCopy(t *testing.T) {
	git := newFakeGit()
	eng, root := newTestEngine(t, git, Options{})
	cs := docChangeSet(t, root)

	done := make(chan *SyncAttempt, 4)
	for i := 0; i < 4; i++ {
		go func() {
			done <- eng.Publish(context.Background(), cs, "concurrent publish")
		}()
	}
	for i := 0; i < 4; i++ {
		a := <-done
		assert.Equal(t, Published, a.Outcome)
	}
	assert.Len(t, git.commits, 4)
	assert.Zero(t, activeLocks(), "lock entries are released with the last attempt")
}
