package resolver

import (
	"bytes"
	"sort"
)

type changeKind int

const (
	chNone changeKind = iota
	chAdded
	chModified
	chDeleted
)

// Resolve merges the local file set onto the remote one relative to their
// common base. Exactly one of the results is non-nil: a MergeResult when
// every conflict has a safe policy resolution, a ConflictReport otherwise.
func Resolve(in Input) (*MergeResult, *ConflictReport) {
	localCh := sideChanges(in.Base, in.Local)
	remoteCh := sideChanges(in.Base, in.Remote)
	localRen := detectRenames(in.Base, in.Local, localCh)
	remoteRen := detectRenames(in.Base, in.Remote, remoteCh)

	merged := make(map[string][]byte)
	handled := make(map[string]bool)
	var resolutions []Resolution

	record := func(r Resolution) { resolutions = append(resolutions, r) }

	// Renames first: they involve two paths per side and cannot be merged
	// path by path.
	for _, d := range sortedKeys(localRen) {
		a := localRen[d]
		if rt, ok := remoteRen[d]; ok {
			handled[d], handled[a], handled[rt] = true, true, true
			if rt != a {
				record(Resolution{Path: d, RenamedTo: []string{a, rt}, Kind: KindRenameRename, Choice: NeedsHuman})
				continue
			}
			// Both sides renamed to the same target.
			content, regions := mergeContent(in.Base[d], in.Local[a], in.Remote[a])
			merged[a] = content
			if regions > 0 {
				record(Resolution{Path: a, Kind: KindContent, Choice: KeptLocal, Regions: regions})
			}
			continue
		}

		switch remoteCh[d] {
		case chModified:
			// Rename carries the remote edit to the new path.
			content, regions := mergeContent(in.Base[d], in.Local[a], in.Remote[d])
			merged[a] = content
			handled[d], handled[a] = true, true
			if regions > 0 {
				record(Resolution{Path: a, Kind: KindContent, Choice: KeptLocal, Regions: regions})
			}
		case chDeleted:
			// Content wins over deletion.
			merged[a] = in.Local[a]
			handled[d], handled[a] = true, true
			record(Resolution{Path: a, Kind: KindDeleteModify, Choice: KeptLocal})
		}
	}

	for _, d := range sortedKeys(remoteRen) {
		if handled[d] {
			continue
		}
		b := remoteRen[d]
		switch localCh[d] {
		case chModified:
			content, regions := mergeContent(in.Base[d], in.Local[d], in.Remote[b])
			merged[b] = content
			handled[d], handled[b] = true, true
			if regions > 0 {
				record(Resolution{Path: b, Kind: KindContent, Choice: KeptLocal, Regions: regions})
			}
		case chDeleted:
			merged[b] = in.Remote[b]
			handled[d], handled[b] = true, true
			record(Resolution{Path: b, Kind: KindDeleteModify, Choice: KeptRemote})
		}
	}

	for _, p := range unionPaths(in) {
		if handled[p] {
			continue
		}
		lc, rc := localCh[p], remoteCh[p]

		switch {
		case lc == chNone && rc == chNone:
			if content, ok := in.Base[p]; ok {
				merged[p] = content
			}
		case rc == chNone:
			if lc != chDeleted {
				merged[p] = in.Local[p]
			}
		case lc == chNone:
			if rc != chDeleted {
				merged[p] = in.Remote[p]
			}
		case lc == chDeleted && rc == chDeleted:
			// Both sides agree.
		case lc == chDeleted:
			merged[p] = in.Remote[p]
			record(Resolution{Path: p, Kind: KindDeleteModify, Choice: KeptRemote})
		case rc == chDeleted:
			merged[p] = in.Local[p]
			record(Resolution{Path: p, Kind: KindDeleteModify, Choice: KeptLocal})
		default:
			// Changed on both sides.
			if bytes.Equal(in.Local[p], in.Remote[p]) {
				merged[p] = in.Local[p]
				continue
			}
			content, regions := mergeContent(in.Base[p], in.Local[p], in.Remote[p])
			merged[p] = content
			if regions > 0 {
				record(Resolution{Path: p, Kind: KindContent, Choice: KeptLocal, Regions: regions})
			}
		}
	}

	sort.Slice(resolutions, func(i, j int) bool { return resolutions[i].Path < resolutions[j].Path })

	for _, r := range resolutions {
		if r.Choice == NeedsHuman {
			return nil, &ConflictReport{Entries: resolutions}
		}
	}
	return &MergeResult{Files: merged, AutoResolved: resolutions}, nil
}

// sideChanges classifies every path that differs between base and side.
func sideChanges(base, side map[string][]byte) map[string]changeKind {
	ch := make(map[string]changeKind)
	for p, content := range side {
		baseContent, inBase := base[p]
		switch {
		case !inBase:
			ch[p] = chAdded
		case !bytes.Equal(baseContent, content):
			ch[p] = chModified
		}
	}
	for p := range base {
		if _, ok := side[p]; !ok {
			ch[p] = chDeleted
		}
	}
	return ch
}

// detectRenames pairs deletions with additions of identical content.
// Detection is exact-content: a rename combined with an edit degrades to an
// independent delete plus add, which the path-level rules still merge safely.
func detectRenames(base, side map[string][]byte, ch map[string]changeKind) map[string]string {
	var deleted, added []string
	for p, k := range ch {
		switch k {
		case chDeleted:
			deleted = append(deleted, p)
		case chAdded:
			added = append(added, p)
		}
	}
	sort.Strings(deleted)
	sort.Strings(added)

	renames := make(map[string]string)
	claimed := make(map[string]bool)
	for _, d := range deleted {
		for _, a := range added {
			if claimed[a] {
				continue
			}
			if bytes.Equal(base[d], side[a]) {
				renames[d] = a
				claimed[a] = true
				break
			}
		}
	}
	return renames
}

func unionPaths(in Input) []string {
	seen := make(map[string]bool)
	for p := range in.Base {
		seen[p] = true
	}
	for p := range in.Local {
		seen[p] = true
	}
	for p := range in.Remote {
		seen[p] = true
	}
	paths := make([]string, 0, len(seen))
	for p := range seen {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
