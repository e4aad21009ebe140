package gitops

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Options configures a GoGit engine.
type Options struct {
	// Remote is the remote name (default "origin").
	Remote string

	// Branch is the branch to publish. Empty means the branch HEAD is on.
	Branch string

	// AuthorName and AuthorEmail sign commits created by the engine.
	AuthorName  string
	AuthorEmail string
}

func (o *Options) applyDefaults() {
	if o.Remote == "" {
		o.Remote = "origin"
	}
	if o.AuthorName == "" {
		o.AuthorName = "shipd"
	}
	if o.AuthorEmail == "" {
		o.AuthorEmail = "shipd@localhost"
	}
}

// GoGit implements Engine on top of go-git.
type GoGit struct {
	root string
	repo *git.Repository
	opts Options
}

// Open opens the repository at root.
func Open(root string, opts Options) (*GoGit, error) {
	opts.applyDefaults()

	repo, err := git.PlainOpen(root)
	if err != nil {
		return nil, fmt.Errorf("opening repository %s: %w", root, err)
	}

	g := &GoGit{root: root, repo: repo, opts: opts}
	if g.opts.Branch == "" {
		head, err := repo.Head()
		if err != nil {
			return nil, fmt.Errorf("resolving current branch: %w", err)
		}
		if !head.Name().IsBranch() {
			return nil, fmt.Errorf("HEAD is not on a branch (detached at %s)", head.Hash())
		}
		g.opts.Branch = head.Name().Short()
	}
	return g, nil
}

// Root returns the working tree root.
func (g *GoGit) Root() string { return g.root }

// Branch returns the branch the engine publishes.
func (g *GoGit) Branch() string { return g.opts.Branch }

func (g *GoGit) Head() (Ref, error) {
	head, err := g.repo.Head()
	if err != nil {
		return Zero, fmt.Errorf("resolving HEAD: %w", err)
	}
	return Ref(head.Hash().String()), nil
}

func (g *GoGit) RemoteHead() (Ref, error) {
	name := plumbing.NewRemoteReferenceName(g.opts.Remote, g.opts.Branch)
	ref, err := g.repo.Reference(name, true)
	if err != nil {
		if err == plumbing.ErrReferenceNotFound {
			return Zero, ErrNoRemoteHead
		}
		return Zero, fmt.Errorf("resolving %s: %w", name, err)
	}
	return Ref(ref.Hash().String()), nil
}

func (g *GoGit) Fetch(ctx context.Context) error {
	err := g.repo.FetchContext(ctx, &git.FetchOptions{RemoteName: g.opts.Remote})
	if err != nil && err != git.NoErrAlreadyUpToDate {
		return fmt.Errorf("fetching %s: %w", g.opts.Remote, err)
	}
	return nil
}

func (g *GoGit) Stage(paths []string) error {
	wt, err := g.repo.Worktree()
	if err != nil {
		return fmt.Errorf("opening worktree: %w", err)
	}

	for _, p := range paths {
		full := filepath.Join(g.root, filepath.FromSlash(p))
		if _, err := os.Stat(full); os.IsNotExist(err) {
			// Stage the deletion.
			if _, err := wt.Remove(p); err != nil {
				return fmt.Errorf("staging deletion of %s: %w", p, err)
			}
			continue
		}
		if _, err := wt.Add(p); err != nil {
			return fmt.Errorf("staging %s: %w", p, err)
		}
	}
	return nil
}

func (g *GoGit) Commit(message string) (Ref, error) {
	wt, err := g.repo.Worktree()
	if err != nil {
		return Zero, fmt.Errorf("opening worktree: %w", err)
	}

	hash, err := wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  g.opts.AuthorName,
			Email: g.opts.AuthorEmail,
			When:  time.Now(),
		},
	})
	if err != nil {
		if err == git.ErrEmptyCommit {
			return Zero, ErrNothingStaged
		}
		return Zero, fmt.Errorf("creating commit: %w", err)
	}
	return Ref(hash.String()), nil
}

func (g *GoGit) Push(ctx context.Context) error {
	branchRef := plumbing.NewBranchReferenceName(g.opts.Branch)
	spec := config.RefSpec(fmt.Sprintf("%s:%s", branchRef, branchRef))

	err := g.repo.PushContext(ctx, &git.PushOptions{
		RemoteName: g.opts.Remote,
		RefSpecs:   []config.RefSpec{spec},
	})
	if err == nil || err == git.NoErrAlreadyUpToDate {
		return nil
	}
	if isNonFastForward(err) {
		return ErrRemoteAdvanced
	}
	return fmt.Errorf("pushing %s to %s: %w", g.opts.Branch, g.opts.Remote, err)
}

// isNonFastForward matches the rejection go-git reports when the remote ref
// moved past the pushed commit.
func isNonFastForward(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "non-fast-forward") ||
		strings.Contains(msg, "fetch first") ||
		strings.Contains(msg, "cannot lock ref")
}

func (g *GoGit) MergeBase(a, b Ref) (Ref, error) {
	ca, err := g.commit(a)
	if err != nil {
		return Zero, err
	}
	cb, err := g.commit(b)
	if err != nil {
		return Zero, err
	}

	bases, err := ca.MergeBase(cb)
	if err != nil {
		return Zero, fmt.Errorf("computing merge base of %s and %s: %w", a, b, err)
	}
	if len(bases) == 0 {
		return Zero, fmt.Errorf("no common ancestor between %s and %s", a, b)
	}
	return Ref(bases[0].Hash.String()), nil
}

func (g *GoGit) IsAncestor(ancestor, descendant Ref) (bool, error) {
	ca, err := g.commit(ancestor)
	if err != nil {
		return false, err
	}
	cd, err := g.commit(descendant)
	if err != nil {
		return false, err
	}
	ok, err := ca.IsAncestor(cd)
	if err != nil {
		return false, fmt.Errorf("checking ancestry: %w", err)
	}
	return ok, nil
}

func (g *GoGit) TreeFiles(ref Ref) (map[string][]byte, error) {
	commit, err := g.commit(ref)
	if err != nil {
		return nil, err
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("loading tree of %s: %w", ref, err)
	}

	files := make(map[string][]byte)
	err = tree.Files().ForEach(func(f *object.File) error {
		reader, err := f.Blob.Reader()
		if err != nil {
			return err
		}
		defer reader.Close()
		content, err := io.ReadAll(reader)
		if err != nil {
			return err
		}
		files[f.Name] = content
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("materializing tree of %s: %w", ref, err)
	}
	return files, nil
}

func (g *GoGit) ApplyTree(files map[string][]byte) error {
	wt, err := g.repo.Worktree()
	if err != nil {
		return fmt.Errorf("opening worktree: %w", err)
	}

	// Remove tracked files not present in the target tree.
	head, err := g.Head()
	if err != nil {
		return err
	}
	current, err := g.TreeFiles(head)
	if err != nil {
		return err
	}
	for p := range current {
		if _, keep := files[p]; !keep {
			if _, err := wt.Remove(p); err != nil {
				return fmt.Errorf("removing %s: %w", p, err)
			}
		}
	}

	// Write target contents; stage every path deterministically.
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		full := filepath.Join(g.root, filepath.FromSlash(p))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return fmt.Errorf("creating directory for %s: %w", p, err)
		}
		if err := os.WriteFile(full, files[p], 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", p, err)
		}
		if _, err := wt.Add(p); err != nil {
			return fmt.Errorf("staging %s: %w", p, err)
		}
	}
	return nil
}

func (g *GoGit) ResetHard(ref Ref) error {
	wt, err := g.repo.Worktree()
	if err != nil {
		return fmt.Errorf("opening worktree: %w", err)
	}
	err = wt.Reset(&git.ResetOptions{
		Mode:   git.HardReset,
		Commit: plumbing.NewHash(string(ref)),
	})
	if err != nil {
		return fmt.Errorf("hard reset to %s: %w", ref, err)
	}
	return nil
}

func (g *GoGit) commit(ref Ref) (*object.Commit, error) {
	commit, err := g.repo.CommitObject(plumbing.NewHash(string(ref)))
	if err != nil {
		return nil, fmt.Errorf("loading commit %s: %w", ref, err)
	}
	return commit, nil
}
