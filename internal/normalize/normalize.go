// Package normalize rewrites whitespace violations in working tree files
// before they are staged.
//
// Normalization strips trailing whitespace per line and enforces exactly one
// newline at end of file. It is idempotent: a second pass over the same tree
// produces no further changes. Files that cannot be decoded as text are
// skipped and reported, never treated as an error.
package normalize

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"
)

// Result reports what a normalization pass did.
type Result struct {
	// Rewritten lists paths whose content changed on disk.
	Rewritten []string `json:"rewritten"`

	// SkippedBinary lists paths skipped because they are not text.
	SkippedBinary []string `json:"skipped_binary"`

	// SkippedMissing lists paths that no longer exist in the working tree
	// (deleted entries in the change set).
	SkippedMissing []string `json:"skipped_missing"`
}

// Changed reports whether the pass rewrote anything.
func (r *Result) Changed() bool {
	return len(r.Rewritten) > 0
}

// Normalize rewrites the given repository-relative paths in place under root.
//
// Unreadable and binary files are recorded and skipped. The only error
// returned is a failed write of an already-read text file, since that leaves
// the tree in a state the caller must know about.
func Normalize(root string, paths []string) (*Result, error) {
	res := &Result{}

	for _, p := range paths {
		full := filepath.Join(root, filepath.FromSlash(p))

		info, err := os.Stat(full)
		if err != nil || info.IsDir() {
			res.SkippedMissing = append(res.SkippedMissing, p)
			continue
		}

		raw, err := os.ReadFile(full)
		if err != nil {
			res.SkippedMissing = append(res.SkippedMissing, p)
			continue
		}

		if !isText(raw) {
			res.SkippedBinary = append(res.SkippedBinary, p)
			continue
		}

		fixed := Text(raw)
		if bytes.Equal(fixed, raw) {
			continue
		}

		if err := os.WriteFile(full, fixed, info.Mode().Perm()); err != nil {
			return res, fmt.Errorf("rewriting %s: %w", p, err)
		}
		res.Rewritten = append(res.Rewritten, p)
	}

	return res, nil
}

// Text normalizes a text buffer: trailing whitespace stripped from every
// line, exactly one trailing newline. An empty buffer stays empty.
func Text(raw []byte) []byte {
	if len(raw) == 0 {
		return raw
	}

	lines := bytes.Split(raw, []byte("\n"))
	for i, line := range lines {
		lines[i] = bytes.TrimRight(line, " \t\r")
	}

	// Drop trailing empty lines, then re-append the single final newline.
	end := len(lines)
	for end > 0 && len(lines[end-1]) == 0 {
		end--
	}
	if end == 0 {
		// Whitespace-only file collapses to a single newline.
		return []byte("\n")
	}

	out := bytes.Join(lines[:end], []byte("\n"))
	return append(out, '\n')
}

// isText reports whether raw looks like a text file. NUL bytes or invalid
// UTF-8 mark it binary, matching what the staging layer can safely rewrite.
func isText(raw []byte) bool {
	if bytes.IndexByte(raw, 0) >= 0 {
		return false
	}
	return utf8.Valid(raw)
}
