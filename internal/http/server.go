// Package http exposes shipd's read-side over HTTP: repository state,
// remediation advice and change-set classification. Publishing stays on the
// CLI and MCP surfaces; the HTTP API never mutates the repository.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/shipd/internal/changeset"
	"github.com/fyrsmithlabs/shipd/internal/classifier"
	"github.com/fyrsmithlabs/shipd/internal/recovery"
	"github.com/fyrsmithlabs/shipd/internal/state"
)

// Inspector produces repository snapshots for the state and advise routes.
type Inspector interface {
	Inspect() (*state.RepositoryState, error)
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// Server provides the diagnostics HTTP endpoints.
type Server struct {
	echo       *echo.Echo
	inspector  Inspector
	classifier *classifier.Classifier
	logger     *zap.Logger
	config     *Config
}

// NewServer creates the diagnostics server.
func NewServer(inspector Inspector, cls *classifier.Classifier, logger *zap.Logger, cfg *Config) (*Server, error) {
	if inspector == nil {
		return nil, fmt.Errorf("inspector cannot be nil")
	}
	if cls == nil {
		return nil, fmt.Errorf("classifier cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Host: "localhost", Port: 9347}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(NewHTTPMetrics(logger).MetricsMiddleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})

	s := &Server{
		echo:       e,
		inspector:  inspector,
		classifier: cls,
		logger:     logger,
		config:     cfg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)

	v1 := s.echo.Group("/api/v1")
	v1.GET("/state", s.handleState)
	v1.GET("/advise", s.handleAdvise)
	v1.POST("/classify", s.handleClassify)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// AdviseResponse is the response body for GET /api/v1/advise.
type AdviseResponse struct {
	State *state.RepositoryState `json:"state"`
	Plan  *recovery.Plan         `json:"plan"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleState(c echo.Context) error {
	st, err := s.inspector.Inspect()
	if err != nil {
		s.logger.Error("state inspection failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to inspect repository")
	}
	return c.JSON(http.StatusOK, st)
}

func (s *Server) handleAdvise(c echo.Context) error {
	st, err := s.inspector.Inspect()
	if err != nil {
		s.logger.Error("state inspection failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to inspect repository")
	}
	return c.JSON(http.StatusOK, AdviseResponse{State: st, Plan: recovery.Advise(st)})
}

func (s *Server) handleClassify(c echo.Context) error {
	var cs changeset.ChangeSet
	if err := c.Bind(&cs); err != nil {
		s.logger.Warn("invalid classify request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if cs.Empty() {
		return echo.NewHTTPError(http.StatusBadRequest, "files field is required")
	}
	return c.JSON(http.StatusOK, s.classifier.Classify(&cs))
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
