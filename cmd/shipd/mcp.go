package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	mcpserver "github.com/fyrsmithlabs/shipd/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve shipd's tools to agents over the Model Context Protocol",
	Long: `Start an MCP server on stdio. Agents get the same classification and
safe-push protocol as the CLI: repo_publish, change_classify, repo_state and
repo_advise.

Examples:
  # Run under an MCP-capable agent
  shipd mcp

  # Operate on a different working copy
  shipd mcp -C ~/src/notes`,
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	root, err := repoRoot()
	if err != nil {
		return err
	}
	orch, err := buildOrchestrator(cfg, logger, root)
	if err != nil {
		return err
	}

	srvCfg := mcpserver.DefaultConfig()
	srvCfg.Version = version
	srvCfg.Logger = logger

	srv, err := mcpserver.NewServer(srvCfg, orch, newInspector(cfg, root))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return srv.Run(ctx)
}
