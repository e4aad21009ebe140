package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/shipd/internal/classifier"
	httpserver "github.com/fyrsmithlabs/shipd/internal/http"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve repository state, advice and classification over HTTP",
	Long: `Start the read-only HTTP API. Publishing is not exposed over HTTP; use the
CLI or the MCP server for that.

Examples:
  # Serve on the configured port
  shipd serve

  # Override the port
  SERVER_PORT=8080 shipd serve`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	root, err := repoRoot()
	if err != nil {
		return err
	}

	srv, err := httpserver.NewServer(
		newInspector(cfg, root),
		classifier.New(cfg.Classifier),
		logger,
		&httpserver.Config{Port: cfg.Server.Port},
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	logger.Info("HTTP server started", zap.Int("port", cfg.Server.Port))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
