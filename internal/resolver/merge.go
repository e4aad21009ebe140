package resolver

import (
	"bytes"
	"sort"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// hunk is one edit against the base: base lines [start,end) are replaced by
// lines. start == end is a pure insertion before base line start.
type hunk struct {
	start, end int
	lines      []string
}

func (h hunk) insertion() bool { return h.start == h.end }

// mergeContent performs the three-way merge of one path's content.
// Returns the merged bytes and the number of overlapping regions resolved
// in favor of the local side.
func mergeContent(base, local, remote []byte) ([]byte, int) {
	if bytes.Equal(local, remote) {
		return local, 0
	}
	if !isText(base) || !isText(local) || !isText(remote) {
		// No line structure to merge: whole file resolves ours-wins.
		return local, 1
	}

	baseLines := splitLines(string(base))
	localHunks := diffHunks(string(base), string(local))
	remoteHunks := diffHunks(string(base), string(remote))

	merged, regions := applyHunks(baseLines, localHunks, remoteHunks)
	var buf bytes.Buffer
	for _, l := range merged {
		buf.WriteString(l)
	}
	return buf.Bytes(), regions
}

// diffHunks computes the line-level edit script from base to side.
func diffHunks(base, side string) []hunk {
	if base == side {
		return nil
	}

	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(base, side)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var hunks []hunk
	var cur *hunk
	pos := 0
	for _, d := range diffs {
		n := len(splitLines(d.Text))
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			if cur != nil {
				hunks = append(hunks, *cur)
				cur = nil
			}
			pos += n
		case diffmatchpatch.DiffDelete:
			if cur == nil {
				cur = &hunk{start: pos, end: pos}
			}
			cur.end += n
			pos += n
		case diffmatchpatch.DiffInsert:
			if cur == nil {
				cur = &hunk{start: pos, end: pos}
			}
			cur.lines = append(cur.lines, splitLines(d.Text)...)
		}
	}
	if cur != nil {
		hunks = append(hunks, *cur)
	}
	return hunks
}

// applyHunks merges the two edit scripts onto the base. Remote hunks that
// duplicate a local hunk apply once; remote hunks overlapping a local hunk
// are dropped (ours wins) and counted.
func applyHunks(baseLines []string, local, remote []hunk) ([]string, int) {
	regions := 0
	var kept []hunk
	for _, rh := range remote {
		if findIdentical(local, rh) {
			continue // both sides made the same edit
		}
		if overlapsAny(local, rh) {
			regions++
			continue
		}
		kept = append(kept, rh)
	}

	all := make([]hunk, 0, len(local)+len(kept))
	all = append(all, local...)
	all = append(all, kept...)
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].start != all[j].start {
			return all[i].start < all[j].start
		}
		// Insertions before replacements at the same position.
		return all[i].end < all[j].end
	})

	var out []string
	pos := 0
	for _, h := range all {
		if h.start > pos {
			out = append(out, baseLines[pos:h.start]...)
			pos = h.start
		}
		out = append(out, h.lines...)
		if h.end > pos {
			pos = h.end
		}
	}
	out = append(out, baseLines[pos:]...)
	return out, regions
}

func findIdentical(hunks []hunk, h hunk) bool {
	for _, o := range hunks {
		if o.start == h.start && o.end == h.end && equalLines(o.lines, h.lines) {
			return true
		}
	}
	return false
}

func overlapsAny(hunks []hunk, h hunk) bool {
	for _, o := range hunks {
		if overlaps(o, h) {
			return true
		}
	}
	return false
}

// overlaps reports whether two hunks contest the same base region. Two
// insertions at the same point contest it; hunks that merely touch do not.
func overlaps(a, b hunk) bool {
	if a.insertion() && b.insertion() {
		return a.start == b.start
	}
	return a.start < b.end && b.start < a.end
}

func equalLines(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// splitLines splits text into lines, each keeping its terminator. A final
// line without a newline is kept as-is, so concatenating the result
// restores the exact input.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	var lines []string
	start := 0
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			lines = append(lines, text[start:i+1])
			start = i + 1
		}
	}
	if start < len(text) {
		lines = append(lines, text[start:])
	}
	return lines
}

// isText reports whether content can be merged line-wise.
func isText(raw []byte) bool {
	if bytes.IndexByte(raw, 0) >= 0 {
		return false
	}
	return utf8.Valid(raw)
}
