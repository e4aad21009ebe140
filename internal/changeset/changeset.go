package changeset

import (
	"time"
)

// DiffKind describes how a file changed relative to the last commit.
type DiffKind string

const (
	// KindAdded is a file that does not exist in HEAD.
	KindAdded DiffKind = "added"
	// KindModified is a file whose content differs from HEAD.
	KindModified DiffKind = "modified"
	// KindDeleted is a file present in HEAD but missing from the worktree.
	KindDeleted DiffKind = "deleted"
	// KindRenamed is a file moved from another path since HEAD.
	KindRenamed DiffKind = "renamed"
)

// Category tags a file by its role in the repository.
type Category string

const (
	CategoryProduction Category = "production"
	CategoryTest       Category = "test"
	CategoryDocs       Category = "documentation"
	CategoryScript     Category = "script"
	CategoryManifest   Category = "dependency-manifest"
	CategoryCI         Category = "ci-config"
)

// FileChange is one file-level modification in a ChangeSet.
type FileChange struct {
	// Path is the file path relative to the repository root.
	Path string `json:"path"`

	// OldPath is the previous path for renamed files, empty otherwise.
	OldPath string `json:"old_path,omitempty"`

	// Kind is the diff kind (added, modified, deleted, renamed).
	Kind DiffKind `json:"kind"`

	// Category is the file's role tag.
	Category Category `json:"category"`

	// Added is the number of lines added in this file.
	Added int `json:"added"`

	// Removed is the number of lines removed in this file.
	Removed int `json:"removed"`
}

// ChangeSet is the immutable set of modifications an actor wants to publish.
type ChangeSet struct {
	// Files is the ordered list of file changes.
	Files []FileChange `json:"files"`

	// TotalAdded is the sum of lines added across all files.
	TotalAdded int `json:"total_added"`

	// TotalRemoved is the sum of lines removed across all files.
	TotalRemoved int `json:"total_removed"`

	// CapturedAt is when this snapshot was taken from the working tree.
	CapturedAt time.Time `json:"captured_at"`
}

// Empty reports whether the change set contains no file changes.
func (cs *ChangeSet) Empty() bool {
	return len(cs.Files) == 0
}

// TotalChanged returns the total changed line count (added + removed).
func (cs *ChangeSet) TotalChanged() int {
	return cs.TotalAdded + cs.TotalRemoved
}

// Paths returns the paths of all files in the change set, in order.
func (cs *ChangeSet) Paths() []string {
	paths := make([]string, 0, len(cs.Files))
	for _, f := range cs.Files {
		paths = append(paths, f.Path)
	}
	return paths
}

// HasCategory reports whether any file carries the given category tag.
func (cs *ChangeSet) HasCategory(c Category) bool {
	for _, f := range cs.Files {
		if f.Category == c {
			return true
		}
	}
	return false
}

// LinesByCategory returns the total changed lines for files tagged with any
// of the given categories.
func (cs *ChangeSet) LinesByCategory(cats ...Category) int {
	want := make(map[Category]bool, len(cats))
	for _, c := range cats {
		want[c] = true
	}
	total := 0
	for _, f := range cs.Files {
		if want[f.Category] {
			total += f.Added + f.Removed
		}
	}
	return total
}
