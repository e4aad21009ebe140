package gitops

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-git/go-git/v5"
)

// Baseline is the pre-attempt state of a working copy: the head commit and
// the content of every path that differed from it. Restoring a baseline
// returns the repository exactly to this state.
type Baseline struct {
	// Head is the commit the branch pointed at when the snapshot was taken.
	Head Ref

	// files maps dirty paths to their worktree content at snapshot time.
	// A nil value marks a path that did not exist in the worktree
	// (a staged or pending deletion).
	files map[string][]byte
}

// DirtyPaths returns the snapshotted dirty paths in sorted order.
func (b *Baseline) DirtyPaths() []string {
	paths := make([]string, 0, len(b.files))
	for p := range b.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func (g *GoGit) Snapshot() (*Baseline, error) {
	head, err := g.Head()
	if err != nil {
		return nil, err
	}

	wt, err := g.repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("opening worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("reading status: %w", err)
	}

	b := &Baseline{Head: head, files: make(map[string][]byte)}
	for p, fs := range status {
		if fs.Staging == git.Unmodified && fs.Worktree == git.Unmodified {
			continue
		}
		full := filepath.Join(g.root, filepath.FromSlash(p))
		content, err := os.ReadFile(full)
		if err != nil {
			if os.IsNotExist(err) {
				b.files[p] = nil
				continue
			}
			return nil, fmt.Errorf("snapshotting %s: %w", p, err)
		}
		b.files[p] = content
	}
	return b, nil
}

func (g *GoGit) Restore(b *Baseline) error {
	if b == nil {
		return fmt.Errorf("nil baseline")
	}

	if err := g.ResetHard(b.Head); err != nil {
		return err
	}

	for _, p := range b.DirtyPaths() {
		if err := g.restorePath(p, b.files[p]); err != nil {
			return err
		}
	}
	return nil
}

// RestorePaths rewrites the snapshotted worktree content of the given paths
// without moving the branch. Paths the baseline did not record are skipped.
// Integration rebuilds the working tree from the remote head; this puts back
// uncommitted edits that were never part of the published change set.
func (g *GoGit) RestorePaths(b *Baseline, paths []string) error {
	if b == nil {
		return fmt.Errorf("nil baseline")
	}
	for _, p := range paths {
		content, ok := b.files[p]
		if !ok {
			continue
		}
		if err := g.restorePath(p, content); err != nil {
			return err
		}
	}
	return nil
}

func (g *GoGit) restorePath(p string, content []byte) error {
	full := filepath.Join(g.root, filepath.FromSlash(p))
	if content == nil {
		if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("restoring deletion of %s: %w", p, err)
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("restoring %s: %w", p, err)
	}
	if err := os.WriteFile(full, content, 0o644); err != nil {
		return fmt.Errorf("restoring %s: %w", p, err)
	}
	return nil
}
