package normalize

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFixture(t *testing.T, root, path string, content []byte) string {
	t.Helper()
	full := filepath.Join(root, path)
	require.NoError(t, os.WriteFile(full, content, 0o644))
	return full
}

func TestTextStripsTrailingWhitespace(t *testing.T) {
	in := []byte("func main() {   \n\treturn\t\n}\n")
	assert.Equal(t, "func main() {\n\treturn\n}\n", string(Text(in)))
}

func TestTextEnforcesSingleFinalNewline(t *testing.T) {
	assert.Equal(t, "a\nb\n", string(Text([]byte("a\nb"))))
	assert.Equal(t, "a\nb\n", string(Text([]byte("a\nb\n\n\n"))))
	assert.Equal(t, "a\n", string(Text([]byte("a"))))
}

func TestTextCarriageReturns(t *testing.T) {
	assert.Equal(t, "a\nb\n", string(Text([]byte("a\r\nb\r\n"))))
}

func TestTextWhitespaceOnlyFile(t *testing.T) {
	assert.Equal(t, "\n", string(Text([]byte("   \n\t\n"))))
}

func TestTextEmptyUnchanged(t *testing.T) {
	assert.Empty(t, Text(nil))
}

func TestNormalizeRewritesInPlace(t *testing.T) {
	root := t.TempDir()
	full := writeFixture(t, root, "a.go", []byte("package a   \n"))

	res, err := Normalize(root, []string{"a.go"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.go"}, res.Rewritten)
	assert.True(t, res.Changed())

	got, err := os.ReadFile(full)
	require.NoError(t, err)
	assert.Equal(t, "package a\n", string(got))
}

func TestNormalizeIdempotent(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, "a.md", []byte("# title  \n\nbody\t\n\n"))

	first, err := Normalize(root, []string{"a.md"})
	require.NoError(t, err)
	require.True(t, first.Changed())

	second, err := Normalize(root, []string{"a.md"})
	require.NoError(t, err)
	assert.False(t, second.Changed(), "second pass must produce no further diff")
}

func TestNormalizeSkipsBinary(t *testing.T) {
	root := t.TempDir()
	original := []byte{0x00, 0x01, 0xff, '\n', ' '}
	full := writeFixture(t, root, "blob.bin", original)

	res, err := Normalize(root, []string{"blob.bin"})
	require.NoError(t, err)
	assert.Equal(t, []string{"blob.bin"}, res.SkippedBinary)
	assert.Empty(t, res.Rewritten)

	got, err := os.ReadFile(full)
	require.NoError(t, err)
	assert.Equal(t, original, got, "binary files pass through untouched")
}

func TestNormalizeSkipsMissing(t *testing.T) {
	res, err := Normalize(t.TempDir(), []string{"gone.go"})
	require.NoError(t, err)
	assert.Equal(t, []string{"gone.go"}, res.SkippedMissing)
}

func TestNormalizePreservesMode(t *testing.T) {
	root := t.TempDir()
	full := filepath.Join(root, "run.sh")
	require.NoError(t, os.WriteFile(full, []byte("#!/bin/sh \necho hi \n"), 0o755))

	_, err := Normalize(root, []string{"run.sh"})
	require.NoError(t, err)

	info, err := os.Stat(full)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
}
