// Package gittest builds throwaway git repositories for tests.
//
// Fixtures are created with go-git only, so tests never depend on a git
// binary or network transport. Remote-tracking refs are written directly
// into the ref storage, which is enough to exercise divergence handling
// without a live remote.
package gittest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"
)

// Init creates a repository with "main" as the default branch in a temp
// directory and returns its root and handle.
func Init(t *testing.T) (string, *git.Repository) {
	t.Helper()
	root := t.TempDir()
	repo, err := git.PlainInitWithOptions(root, &git.PlainInitOptions{
		InitOptions: git.InitOptions{DefaultBranch: plumbing.Main},
	})
	require.NoError(t, err)
	return root, repo
}

// WriteFile writes content under the repository root, creating parent
// directories as needed.
func WriteFile(t *testing.T, root, path, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(path))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

// RemoveFile deletes a file under the repository root.
func RemoveFile(t *testing.T, root, path string) {
	t.Helper()
	require.NoError(t, os.Remove(filepath.Join(root, filepath.FromSlash(path))))
}

// Add stages one path.
func Add(t *testing.T, repo *git.Repository, path string) {
	t.Helper()
	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add(path)
	require.NoError(t, err)
}

// CommitAll stages everything and commits, returning the new commit hash.
func CommitAll(t *testing.T, repo *git.Repository, msg string) plumbing.Hash {
	t.Helper()
	wt, err := repo.Worktree()
	require.NoError(t, err)
	require.NoError(t, wt.AddWithOptions(&git.AddOptions{All: true}))
	hash, err := wt.Commit(msg, &git.CommitOptions{
		Author: Signature(),
	})
	require.NoError(t, err)
	return hash
}

// Signature returns a fixed author identity for fixture commits.
func Signature() *object.Signature {
	return &object.Signature{
		Name:  "shipd test",
		Email: "shipd-test@fyrsmithlabs.dev",
		When:  time.Now(),
	}
}

// SetRemoteHead writes a remote-tracking ref (refs/remotes/<remote>/<branch>)
// pointing at hash.
func SetRemoteHead(t *testing.T, repo *git.Repository, remote, branch string, hash plumbing.Hash) {
	t.Helper()
	name := plumbing.NewRemoteReferenceName(remote, branch)
	require.NoError(t, repo.Storer.SetReference(plumbing.NewHashReference(name, hash)))
}

// InitWithCommit creates a repository containing one committed file and
// returns root, repo and the initial commit hash.
func InitWithCommit(t *testing.T) (string, *git.Repository, plumbing.Hash) {
	t.Helper()
	root, repo := Init(t)
	WriteFile(t, root, "README.md", "# fixture\n")
	hash := CommitAll(t, repo, "initial commit")
	return root, repo, hash
}
