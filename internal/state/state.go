// Package state inspects a working copy without mutating it. The snapshot it
// produces is taken fresh on every call; the repository changes underneath us
// and a cached view would lie.
package state

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/fyrsmithlabs/shipd/internal/gitops"
)

// RepositoryState is a point-in-time snapshot of the local/remote relationship.
type RepositoryState struct {
	Branch          string     `json:"branch"`
	LocalHead       gitops.Ref `json:"local_head"`
	RemoteHead      gitops.Ref `json:"remote_head,omitempty"`
	Ahead           int        `json:"ahead"`
	Behind          int        `json:"behind"`
	DirtyFiles      []string   `json:"dirty_files,omitempty"`
	StashDepth      int        `json:"stash_depth"`
	MergeInProgress bool       `json:"merge_in_progress"`
	DetachedHead    bool       `json:"detached_head"`
}

// Diverged reports whether both sides have advanced past their common base.
func (s *RepositoryState) Diverged() bool {
	return s.Ahead > 0 && s.Behind > 0
}

// Violations lists the conditions that make the working copy unsafe to
// publish from. An empty result means the sync protocol may start.
func (s *RepositoryState) Violations() []string {
	var v []string
	if s.MergeInProgress {
		v = append(v, "merge in progress")
	}
	if s.DetachedHead {
		v = append(v, "detached HEAD")
	}
	if s.StashDepth > 0 {
		v = append(v, fmt.Sprintf("stash is not empty (%d entries)", s.StashDepth))
	}
	return v
}

// Validator produces RepositoryState snapshots for one working copy.
type Validator struct {
	root   string
	remote string
	branch string
}

// Option configures a Validator.
type Option func(*Validator)

// WithRemote overrides the remote name used for divergence counting.
func WithRemote(name string) Option {
	return func(v *Validator) { v.remote = name }
}

// WithBranch overrides the branch whose remote counterpart is compared.
// Defaults to the currently checked-out branch.
func WithBranch(name string) Option {
	return func(v *Validator) { v.branch = name }
}

// NewValidator returns a Validator for the repository rooted at root.
func NewValidator(root string, opts ...Option) *Validator {
	v := &Validator{root: root, remote: "origin"}
	for _, o := range opts {
		o(v)
	}
	return v
}

// Inspect opens the repository and reads its current state. It performs no
// writes of any kind.
func (v *Validator) Inspect() (*RepositoryState, error) {
	repo, err := git.PlainOpen(v.root)
	if err != nil {
		return nil, fmt.Errorf("opening repository at %s: %w", v.root, err)
	}

	st := &RepositoryState{
		StashDepth:      stashDepth(v.root),
		MergeInProgress: mergeInProgress(v.root),
	}
	st.Branch, st.DetachedHead = headBranch(v.root)

	head, err := repo.Head()
	if err != nil {
		if err == plumbing.ErrReferenceNotFound {
			// Unborn branch: nothing committed yet.
			return st, v.readStatus(repo, st)
		}
		return nil, fmt.Errorf("reading HEAD: %w", err)
	}
	st.LocalHead = gitops.Ref(head.Hash().String())

	branch := v.branch
	if branch == "" {
		branch = st.Branch
	}
	if branch != "" {
		remoteRef := plumbing.NewRemoteReferenceName(v.remote, branch)
		if ref, err := repo.Reference(remoteRef, true); err == nil {
			st.RemoteHead = gitops.Ref(ref.Hash().String())
		}
	}

	if err := v.countDivergence(repo, st, head.Hash()); err != nil {
		return nil, err
	}
	return st, v.readStatus(repo, st)
}

func (v *Validator) readStatus(repo *git.Repository, st *RepositoryState) error {
	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("opening worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return fmt.Errorf("reading status: %w", err)
	}
	for path, fs := range status {
		if fs.Worktree == git.Unmodified && fs.Staging == git.Unmodified {
			continue
		}
		st.DirtyFiles = append(st.DirtyFiles, path)
	}
	sort.Strings(st.DirtyFiles)
	return nil
}

func (v *Validator) countDivergence(repo *git.Repository, st *RepositoryState, local plumbing.Hash) error {
	localSet, err := ancestors(repo, local)
	if err != nil {
		return fmt.Errorf("walking local history: %w", err)
	}
	if st.RemoteHead == gitops.Zero {
		st.Ahead = len(localSet)
		return nil
	}
	remoteSet, err := ancestors(repo, plumbing.NewHash(string(st.RemoteHead)))
	if err != nil {
		return fmt.Errorf("walking remote history: %w", err)
	}
	for h := range localSet {
		if !remoteSet[h] {
			st.Ahead++
		}
	}
	for h := range remoteSet {
		if !localSet[h] {
			st.Behind++
		}
	}
	return nil
}

// ancestors returns every commit reachable from h, h included.
func ancestors(repo *git.Repository, h plumbing.Hash) (map[plumbing.Hash]bool, error) {
	seen := make(map[plumbing.Hash]bool)
	queue := []plumbing.Hash{h}
	for len(queue) > 0 {
		cur := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		commit, err := repo.CommitObject(cur)
		if err != nil {
			return nil, err
		}
		for _, p := range commit.ParentHashes {
			if !seen[p] {
				queue = append(queue, p)
			}
		}
	}
	return seen, nil
}

// headBranch reads .git/HEAD directly. go-git resolves HEAD to a hash, which
// loses the symbolic-versus-detached distinction we need here.
func headBranch(root string) (branch string, detached bool) {
	raw, err := os.ReadFile(filepath.Join(root, ".git", "HEAD"))
	if err != nil {
		return "", false
	}
	head := strings.TrimSpace(string(raw))
	if strings.HasPrefix(head, "ref: refs/heads/") {
		return strings.TrimPrefix(head, "ref: refs/heads/"), false
	}
	return "", head != ""
}

// mergeInProgress reports whether a merge was started and never concluded.
// MERGE_HEAD exists exactly for the duration of an unfinished merge.
func mergeInProgress(root string) bool {
	_, err := os.Stat(filepath.Join(root, ".git", "MERGE_HEAD"))
	return err == nil
}

// stashDepth counts entries in the stash reflog. A missing log means an
// empty stash.
func stashDepth(root string) int {
	raw, err := os.ReadFile(filepath.Join(root, ".git", "logs", "refs", "stash"))
	if err != nil {
		return 0
	}
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	if len(lines) == 1 && lines[0] == "" {
		return 0
	}
	return len(lines)
}
