// Package mcp exposes shipd to coding agents over the Model Context
// Protocol. Agents publish through the same orchestrator path as the CLI, so
// classification and the safe-push protocol apply identically no matter who
// is asking.
package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/shipd/internal/orchestrator"
	"github.com/fyrsmithlabs/shipd/internal/state"
)

// Inspector produces repository snapshots for the state and advise tools.
type Inspector interface {
	Inspect() (*state.RepositoryState, error)
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "shipd").
	Name string

	// Version is the server version (default: "1.0.0").
	Version string

	// Logger for structured logging.
	Logger *zap.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "shipd",
		Version: "1.0.0",
		Logger:  zap.NewNop(),
	}
}

// Server bridges MCP tool calls to the orchestrator and state validator.
type Server struct {
	mcp       *mcp.Server
	orch      *orchestrator.Orchestrator
	inspector Inspector
	logger    *zap.Logger
}

// NewServer creates an MCP server wired to the given services.
func NewServer(cfg *Config, orch *orchestrator.Orchestrator, inspector Inspector) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if orch == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}
	if inspector == nil {
		return nil, fmt.Errorf("inspector is required")
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		},
		nil,
	)

	s := &Server{
		mcp:       mcpServer,
		orch:      orch,
		inspector: inspector,
		logger:    cfg.Logger,
	}
	s.registerTools()
	return s, nil
}

// Run starts the MCP server on the stdio transport.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport")
	transport := &mcp.StdioTransport{}
	if err := s.mcp.Run(ctx, transport); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}
