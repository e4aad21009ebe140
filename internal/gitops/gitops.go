package gitops

import (
	"context"
	"errors"
)

// Ref identifies a commit by its full hex hash.
type Ref string

// Zero is the empty ref.
const Zero Ref = ""

// Sentinel errors surfaced to the sync protocol.
var (
	// ErrRemoteAdvanced is returned by Push when the remote rejected the
	// update because its head moved past ours (lost a publish race).
	ErrRemoteAdvanced = errors.New("remote advanced, push rejected as non-fast-forward")

	// ErrNoRemoteHead is returned when no remote-tracking ref exists yet
	// (first publish against an empty remote branch).
	ErrNoRemoteHead = errors.New("no remote-tracking head")

	// ErrNothingStaged is returned by Commit when the staged set is empty.
	ErrNothingStaged = errors.New("nothing staged to commit")
)

// Engine is the version-control engine the sync protocol drives.
//
// Implementations must be safe to call sequentially from one goroutine; the
// protocol serializes access per working copy.
type Engine interface {
	// Head returns the current local head commit.
	Head() (Ref, error)

	// RemoteHead returns the remote-tracking head for the configured
	// remote and branch, or ErrNoRemoteHead.
	RemoteHead() (Ref, error)

	// Fetch retrieves the latest remote history without touching the
	// working tree. Being already up to date is not an error.
	Fetch(ctx context.Context) error

	// Stage selects the given repository-relative paths into the pending
	// commit set, including deletions.
	Stage(paths []string) error

	// Commit creates a commit from the staged set.
	Commit(message string) (Ref, error)

	// Push publishes the local head to the remote branch as a
	// fast-forward. Returns ErrRemoteAdvanced when the remote rejected a
	// non-fast-forward update.
	Push(ctx context.Context) error

	// MergeBase returns the best common ancestor of two commits.
	MergeBase(a, b Ref) (Ref, error)

	// IsAncestor reports whether ancestor is reachable from descendant.
	IsAncestor(ancestor, descendant Ref) (bool, error)

	// TreeFiles materializes the full file set of a commit.
	TreeFiles(ref Ref) (map[string][]byte, error)

	// ApplyTree makes the working tree match exactly the given file set
	// and stages the result. Used to build integration commits.
	ApplyTree(files map[string][]byte) error

	// ResetHard moves the current branch and working tree to ref.
	ResetHard(ref Ref) error

	// Snapshot records the pre-attempt baseline: the local head plus the
	// content of every dirty path.
	Snapshot() (*Baseline, error)

	// Restore returns the repository to a previously captured baseline.
	Restore(b *Baseline) error

	// RestorePaths rewrites the snapshotted worktree content of the given
	// paths without moving the branch. Paths the baseline did not record
	// are skipped.
	RestorePaths(b *Baseline, paths []string) error
}
