package changeset

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// Capture snapshots the pending modifications of a working tree into a
// ChangeSet.
//
// The snapshot compares the working tree against HEAD using go-git status.
// Line counts come from a line-level diff of each file against its HEAD
// blob; binary files (invalid UTF-8) are included with zero line counts.
// An unborn repository (no commits yet) treats every file as added.
func Capture(root string) (*ChangeSet, error) {
	repo, err := git.PlainOpen(root)
	if err != nil {
		return nil, fmt.Errorf("opening repository %s: %w", root, err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("opening worktree: %w", err)
	}

	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("reading worktree status: %w", err)
	}

	baseTree := headTree(repo)

	// Status map order is nondeterministic; a ChangeSet is ordered.
	paths := make([]string, 0, len(status))
	for p := range status {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	cs := &ChangeSet{CapturedAt: time.Now()}
	for _, p := range paths {
		fs := status[p]
		kind, oldPath := diffKind(fs)
		if kind == "" {
			continue
		}

		fc := FileChange{
			Path:     p,
			OldPath:  oldPath,
			Kind:     kind,
			Category: Categorize(p),
		}

		basePath := p
		if oldPath != "" {
			basePath = oldPath
		}
		fc.Added, fc.Removed = countLines(root, p, basePath, kind, baseTree)

		cs.Files = append(cs.Files, fc)
		cs.TotalAdded += fc.Added
		cs.TotalRemoved += fc.Removed
	}

	return cs, nil
}

// headTree returns the tree of HEAD, or nil for an unborn repository.
func headTree(repo *git.Repository) *object.Tree {
	head, err := repo.Head()
	if err != nil {
		return nil
	}
	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return nil
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil
	}
	return tree
}

// diffKind maps a go-git file status to a DiffKind. Returns "" for
// unmodified entries.
func diffKind(fs *git.FileStatus) (DiffKind, string) {
	if fs.Staging == git.Untracked && fs.Worktree == git.Untracked {
		return KindAdded, ""
	}
	if fs.Staging == git.Renamed {
		return KindRenamed, fs.Extra
	}
	if fs.Staging == git.Added {
		return KindAdded, ""
	}
	if fs.Staging == git.Deleted || fs.Worktree == git.Deleted {
		return KindDeleted, ""
	}
	if fs.Staging == git.Modified || fs.Worktree == git.Modified {
		return KindModified, ""
	}
	return "", ""
}

// countLines computes added/removed line counts for one file change.
func countLines(root, path, basePath string, kind DiffKind, baseTree *object.Tree) (added, removed int) {
	var oldText string
	if baseTree != nil && kind != KindAdded {
		if f, err := baseTree.File(basePath); err == nil {
			if content, err := f.Contents(); err == nil {
				oldText = content
			}
		}
	}

	var newText string
	if kind != KindDeleted {
		raw, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(path)))
		if err != nil {
			return 0, 0
		}
		if !utf8.Valid(raw) {
			// Binary, no line accounting.
			return 0, 0
		}
		newText = string(raw)
	}

	return diffLineCounts(oldText, newText)
}

// diffLineCounts counts inserted and deleted lines between two texts.
func diffLineCounts(oldText, newText string) (added, removed int) {
	if oldText == newText {
		return 0, 0
	}

	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(oldText, newText)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			added += lineCount(d.Text)
		case diffmatchpatch.DiffDelete:
			removed += lineCount(d.Text)
		}
	}
	return added, removed
}

func lineCount(text string) int {
	if text == "" {
		return 0
	}
	n := strings.Count(text, "\n")
	if !strings.HasSuffix(text, "\n") {
		n++
	}
	return n
}
