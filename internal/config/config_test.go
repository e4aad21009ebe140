package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfig places a config file at the default location under a fake
// home directory and returns its path.
func writeConfig(t *testing.T, content string, perm os.FileMode) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	dir := filepath.Join(home, ".config", "shipd")
	require.NoError(t, os.MkdirAll(dir, 0o700))
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), perm))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir()) // no config file present

	cfg, err := LoadWithFile("")
	require.NoError(t, err)

	assert.Equal(t, "origin", cfg.Repository.Remote)
	assert.Equal(t, "shipd", cfg.Repository.AuthorName)
	assert.Equal(t, 2*time.Second, cfg.Sync.FetchBackoff)
	assert.Equal(t, 3, cfg.Sync.MaxIntegrationCycles)
	assert.Equal(t, 30*time.Second, cfg.Sync.NetworkTimeout)
	assert.Equal(t, 9347, cfg.Server.Port)
	assert.Equal(t, 500, cfg.Classifier.DocsReviewLines)
	assert.Equal(t, 50, cfg.Classifier.TestScriptReviewLines)
	assert.False(t, cfg.Hooks.DisableSecretScan)
}

func TestLoadFromYAML(t *testing.T) {
	path := writeConfig(t, `
repository:
  remote: upstream
  branch: main
sync:
  max_integration_cycles: 5
  fetch_backoff: 500ms
classifier:
  docs_review_lines: 800
hooks:
  disable_secret_scan: true
logging:
  level: debug
  format: json
`, 0o600)

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, "upstream", cfg.Repository.Remote)
	assert.Equal(t, "main", cfg.Repository.Branch)
	assert.Equal(t, 5, cfg.Sync.MaxIntegrationCycles)
	assert.Equal(t, 500*time.Millisecond, cfg.Sync.FetchBackoff)
	assert.Equal(t, 800, cfg.Classifier.DocsReviewLines)
	assert.True(t, cfg.Hooks.DisableSecretScan)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
`, 0o600)
	t.Setenv("SERVER_PORT", "9100")

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port)
}

func TestLoadRejectsWorldReadableFile(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9000\n", 0o644)

	_, err := LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insecure config file permissions")
}

func TestLoadRejectsPathOutsideAllowedDirs(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	outside := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(outside, []byte("server:\n  port: 9000\n"), 0o600))

	_, err := LoadWithFile(outside)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be in")
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"port out of range", "server:\n  port: 70000\n", "out of range"},
		{"too many cycles", "sync:\n  max_integration_cycles: 50\n", "out of range"},
		{"tiny timeout", "sync:\n  network_timeout: 10ms\n", "too small"},
		{"bad log level", "logging:\n  level: loud\n", "invalid log level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.yaml, 0o600)
			_, err := LoadWithFile(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateDirectly(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	require.NoError(t, cfg.Validate())

	cfg.Server.Port = 0
	require.Error(t, cfg.Validate())
}

func TestEnsureConfigDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	require.NoError(t, EnsureConfigDir())
	info, err := os.Stat(filepath.Join(home, ".config", "shipd"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())
}
