// Package config provides configuration loading for shipd.
package config

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/shipd/internal/classifier"
	"github.com/fyrsmithlabs/shipd/internal/logging"
)

// Config is the full shipd configuration.
type Config struct {
	Repository RepositoryConfig  `koanf:"repository"`
	Classifier classifier.Config `koanf:"classifier"`
	Sync       SyncConfig        `koanf:"sync"`
	Hooks      HooksConfig       `koanf:"hooks"`
	Server     ServerConfig      `koanf:"server"`
	Logging    logging.Config    `koanf:"logging"`
}

// RepositoryConfig identifies the working copy and its remote.
type RepositoryConfig struct {
	// Remote is the remote name publishes go to.
	Remote string `koanf:"remote"`

	// Branch is the branch to publish. Empty means the current branch.
	Branch string `koanf:"branch"`

	// AuthorName and AuthorEmail sign the commits shipd creates.
	AuthorName  string `koanf:"author_name"`
	AuthorEmail string `koanf:"author_email"`
}

// SyncConfig tunes the safe-push protocol.
type SyncConfig struct {
	// FetchBackoff is the pause before the single fetch retry.
	FetchBackoff time.Duration `koanf:"fetch_backoff"`

	// MaxIntegrationCycles bounds the integrate/publish loop.
	MaxIntegrationCycles int `koanf:"max_integration_cycles"`

	// NetworkTimeout bounds each fetch and push.
	NetworkTimeout time.Duration `koanf:"network_timeout"`
}

// HooksConfig selects the built-in pre-commit hooks.
type HooksConfig struct {
	// DisableSecretScan turns off the credential scan hook. The scan is
	// on unless explicitly disabled, so the zero value is the safe one.
	DisableSecretScan bool `koanf:"disable_secret_scan"`
}

// ServerConfig configures the diagnostics HTTP server.
type ServerConfig struct {
	// Port is the listen port.
	Port int `koanf:"port"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range (1-65535)", c.Server.Port)
	}
	if c.Sync.MaxIntegrationCycles < 1 || c.Sync.MaxIntegrationCycles > 10 {
		return fmt.Errorf("max_integration_cycles %d out of range (1-10)", c.Sync.MaxIntegrationCycles)
	}
	if c.Sync.NetworkTimeout < time.Second {
		return fmt.Errorf("network_timeout %s too small (minimum 1s)", c.Sync.NetworkTimeout)
	}
	if err := c.Logging.Validate(); err != nil {
		return err
	}
	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Repository.Remote == "" {
		cfg.Repository.Remote = "origin"
	}
	if cfg.Repository.AuthorName == "" {
		cfg.Repository.AuthorName = "shipd"
	}
	if cfg.Repository.AuthorEmail == "" {
		cfg.Repository.AuthorEmail = "shipd@localhost"
	}

	if cfg.Sync.FetchBackoff == 0 {
		cfg.Sync.FetchBackoff = 2 * time.Second
	}
	if cfg.Sync.MaxIntegrationCycles == 0 {
		cfg.Sync.MaxIntegrationCycles = 3
	}
	if cfg.Sync.NetworkTimeout == 0 {
		cfg.Sync.NetworkTimeout = 30 * time.Second
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9347
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	// Classifier thresholds default inside classifier.New; mirroring them
	// here keeps the loaded config self-describing.
	defaults := classifier.DefaultConfig()
	if cfg.Classifier.DocsReviewLines == 0 {
		cfg.Classifier.DocsReviewLines = defaults.DocsReviewLines
	}
	if cfg.Classifier.TestScriptReviewLines == 0 {
		cfg.Classifier.TestScriptReviewLines = defaults.TestScriptReviewLines
	}
}
