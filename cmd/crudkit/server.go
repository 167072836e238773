package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/artpar/crudkit/internal/engine"
	"github.com/artpar/crudkit/internal/shell/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess         = 0
	ExitConfigError     = 1
	ExitDatabaseError   = 2
	ExitSeedError       = 3
	ExitHTTPServerError = 4
)

// =============================================================================
// Server
// =============================================================================

// Server represents the crudkit application server.
type Server struct {
	config     *Config
	httpServer *http.Server
	backend    *engine.Backend
	logger     *slog.Logger
}

// NewServer creates a new server with the given config.
func NewServer(cfg *Config, logger *slog.Logger) (*Server, error) {
	if err := ensureDataDir(cfg.Database); err != nil {
		return nil, &ServerError{Op: "NewServer", Err: err, ExitCode: ExitDatabaseError}
	}

	backend, err := engine.Open(cfg.Database.Driver, cfg.Database.DSN, logger)
	if err != nil {
		return nil, &ServerError{Op: "NewServer", Err: err, ExitCode: ExitDatabaseError}
	}

	if cfg.Database.Seeds != "" {
		n, err := engine.LoadSeedFile(context.Background(), backend, cfg.Database.Seeds, logger)
		if err != nil {
			backend.Close()
			return nil, &ServerError{Op: "LoadSeeds", Err: err, ExitCode: ExitSeedError}
		}
		logger.Info("loaded seed file", "path", cfg.Database.Seeds, "entities", n)
	}

	var registry *prometheus.Registry
	if cfg.Metrics.Enabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	handler, err := engine.Setup(engine.SetupConfig{
		Backend:    backend,
		Root:       cfg.API.Root,
		Router:     cfg.API.Router,
		AuthSecret: []byte(cfg.Auth.Secret),
		AuthIssuer: cfg.Auth.Issuer,
		Registry:   registry,
		ServerURL:  cfg.API.PublicURL,
		Version:    Version,
		Logger:     logger,
	})
	if err != nil {
		backend.Close()
		return nil, &ServerError{Op: "NewServer", Err: err, ExitCode: ExitConfigError}
	}

	if cfg.Auth.Secret == "" {
		logger.Warn("bearer authentication disabled; set auth.secret to enable it")
	}

	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &Server{
		config:     cfg,
		httpServer: httpServer,
		backend:    backend,
		logger:     logger,
	}, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start starts the server and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server",
			"address", s.config.Server.Address(),
			"api_root", s.config.API.Root)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case sig := <-sigCh:
		s.logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		s.backend.Close()
		return &ServerError{
			Op:       "Start",
			Err:      err,
			ExitCode: ExitHTTPServerError,
		}
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown(context.Background())
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	if err := s.backend.Close(); err != nil {
		s.logger.Error("database close error", "error", err)
	}

	s.logger.Info("shutdown complete")
	return nil
}

// ensureDataDir creates the parent directory of a file-backed sqlite DSN.
func ensureDataDir(cfg DatabaseConfig) error {
	if cfg.Driver != store.DriverSQLite || cfg.DSN == "" || cfg.DSN == ":memory:" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.DSN), 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	return nil
}

// =============================================================================
// Server Error
// =============================================================================

// ServerError represents an error during server operation.
type ServerError struct {
	Op       string
	Err      error
	ExitCode int
}

func (e *ServerError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *ServerError) Unwrap() error {
	return e.Err
}
