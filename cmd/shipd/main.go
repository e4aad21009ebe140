// Package main implements the shipd CLI: classify pending changes, publish
// them with the safe-push protocol, inspect repository state, and serve the
// HTTP and MCP surfaces.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/shipd/internal/classifier"
	"github.com/fyrsmithlabs/shipd/internal/config"
	"github.com/fyrsmithlabs/shipd/internal/engine"
	"github.com/fyrsmithlabs/shipd/internal/gitops"
	"github.com/fyrsmithlabs/shipd/internal/hooks"
	"github.com/fyrsmithlabs/shipd/internal/logging"
	"github.com/fyrsmithlabs/shipd/internal/orchestrator"
	"github.com/fyrsmithlabs/shipd/internal/state"
)

var (
	// configFile overrides the default config location.
	configFile string
	// repoPath is the working copy commands operate on.
	repoPath string
	// jsonOutput switches command output to JSON.
	jsonOutput bool
	// version information (set via ldflags during build)
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "shipd",
	Short: "Commit routing and safe synchronization for working copies",
	Long: `shipd classifies pending changes, commits the ones that qualify for a
direct commit, and publishes them without ever force-pushing. Changes that
touch protected categories are routed to review instead.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default ~/.config/shipd/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&repoPath, "repo", "C", ".", "path to the working copy")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit JSON instead of text")
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(adviseCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mcpCmd)
}

// setup loads configuration and builds the logger every command shares.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadWithFile(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("building logger: %w", err)
	}
	return cfg, logger, nil
}

// repoRoot resolves the --repo flag to an absolute path.
func repoRoot() (string, error) {
	root, err := filepath.Abs(repoPath)
	if err != nil {
		return "", fmt.Errorf("resolving repository path %q: %w", repoPath, err)
	}
	return root, nil
}

// buildOrchestrator wires the full publish path: git engine, pre-commit
// hooks, sync engine, classifier.
func buildOrchestrator(cfg *config.Config, logger *zap.Logger, root string) (*orchestrator.Orchestrator, error) {
	g, err := gitops.Open(root, gitops.Options{
		Remote:      cfg.Repository.Remote,
		Branch:      cfg.Repository.Branch,
		AuthorName:  cfg.Repository.AuthorName,
		AuthorEmail: cfg.Repository.AuthorEmail,
	})
	if err != nil {
		return nil, err
	}

	registry := hooks.NewRegistry()
	if !cfg.Hooks.DisableSecretScan {
		scan, err := hooks.NewSecretScan()
		if err != nil {
			return nil, fmt.Errorf("initializing secret scan: %w", err)
		}
		registry.Register(scan)
	}

	eng := engine.New(g, root, engine.Options{
		Hooks:                registry,
		Inspector:            newInspector(cfg, root),
		Logger:               logger,
		FetchBackoff:         cfg.Sync.FetchBackoff,
		MaxIntegrationCycles: cfg.Sync.MaxIntegrationCycles,
	})

	cls := classifier.New(cfg.Classifier)
	return orchestrator.New(root, cls, eng, logger), nil
}

// newInspector builds a state validator honoring the configured remote and
// branch.
func newInspector(cfg *config.Config, root string) *state.Validator {
	opts := []state.Option{state.WithRemote(cfg.Repository.Remote)}
	if cfg.Repository.Branch != "" {
		opts = append(opts, state.WithBranch(cfg.Repository.Branch))
	}
	return state.NewValidator(root, opts...)
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
