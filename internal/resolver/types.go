package resolver

// ConflictKind classifies a conflicting path.
type ConflictKind string

const (
	// KindContent marks overlapping content edits on both sides.
	KindContent ConflictKind = "content"
	// KindRenameRename marks a path renamed differently on each side.
	KindRenameRename ConflictKind = "rename/rename"
	// KindDeleteModify marks a deletion on one side colliding with a
	// modification on the other.
	KindDeleteModify ConflictKind = "delete/modify"
)

// Choice is the resolution applied (or suggested) for a conflicting path.
type Choice string

const (
	// KeptLocal means the local side's content won.
	KeptLocal Choice = "kept-local"
	// KeptRemote means the remote side's content won.
	KeptRemote Choice = "kept-remote"
	// NeedsHuman means no safe automatic resolution exists.
	NeedsHuman Choice = "needs-human"
)

// Resolution records how one conflicting path was (or must be) handled.
type Resolution struct {
	// Path is the conflicting path in the merged tree. For rename/rename
	// conflicts this is the original path in the merge base.
	Path string `json:"path"`

	// RenamedTo holds the two divergent rename targets (local, remote)
	// for rename/rename conflicts, empty otherwise.
	RenamedTo []string `json:"renamed_to,omitempty"`

	// Kind classifies the conflict.
	Kind ConflictKind `json:"kind"`

	// Choice is the applied or suggested resolution.
	Choice Choice `json:"choice"`

	// Regions is the number of overlapping line regions resolved, for
	// content conflicts.
	Regions int `json:"regions,omitempty"`
}

// Input is the materialized three-way state handed to Resolve. Each map is
// a full file set: path to raw content.
type Input struct {
	Base   map[string][]byte
	Local  map[string][]byte
	Remote map[string][]byte
}

// MergeResult is a successful merge: the integration tree plus every
// resolution the ours-wins policy applied.
type MergeResult struct {
	// Files is the merged file set for the integration commit.
	Files map[string][]byte

	// AutoResolved lists the conflicts resolved by policy. Empty when the
	// merge was entirely clean.
	AutoResolved []Resolution
}

// ConflictReport is produced when at least one conflict has no safe
// automatic resolution.
type ConflictReport struct {
	// Entries holds every conflict found, resolved or not, so the caller
	// sees the full picture without re-deriving state.
	Entries []Resolution `json:"entries"`
}

// Unresolved returns the entries that need a human.
func (r *ConflictReport) Unresolved() []Resolution {
	var out []Resolution
	for _, e := range r.Entries {
		if e.Choice == NeedsHuman {
			out = append(out, e)
		}
	}
	return out
}

// Paths returns the conflicting paths in report order.
func (r *ConflictReport) Paths() []string {
	paths := make([]string, 0, len(r.Entries))
	for _, e := range r.Entries {
		paths = append(paths, e.Path)
	}
	return paths
}
