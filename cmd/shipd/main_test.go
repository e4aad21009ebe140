package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/shipd/internal/config"
	"github.com/fyrsmithlabs/shipd/internal/gittest"
)

func TestShort(t *testing.T) {
	assert.Equal(t, "0123456789ab", short("0123456789abcdef0123456789abcdef01234567"))
	assert.Equal(t, "abc123", short("abc123"))
	assert.Equal(t, "(none)", short(""))
}

func TestRootCommandWiring(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"publish", "classify", "status", "advise", "serve", "mcp"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}

func TestBuildOrchestrator(t *testing.T) {
	root, _, _ := gittest.InitWithCommit(t)
	t.Setenv("HOME", t.TempDir())

	cfg, err := config.LoadWithFile("")
	require.NoError(t, err)

	orch, err := buildOrchestrator(cfg, zap.NewNop(), root)
	require.NoError(t, err)
	require.NotNil(t, orch)
}

func TestBuildOrchestratorNotARepo(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg, err := config.LoadWithFile("")
	require.NoError(t, err)

	_, err = buildOrchestrator(cfg, zap.NewNop(), t.TempDir())
	require.Error(t, err)
}
