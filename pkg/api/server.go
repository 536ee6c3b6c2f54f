// Package api provides the HTTP control surface for the directory
// service controller.
package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/wongsyrone/truenas-scale-middleware/internal/logger"
	"github.com/wongsyrone/truenas-scale-middleware/pkg/api/handlers"
	"github.com/wongsyrone/truenas-scale-middleware/pkg/api/jobs"
)

// Server provides the REST API HTTP server.
//
// The server supports graceful shutdown with configurable timeout.
type Server struct {
	server       *http.Server
	config       APIConfig
	jobs         *jobs.Manager
	shutdownOnce sync.Once
}

// NewServer creates a new API HTTP server.
//
// The server is created in a stopped state. Call Start() to begin
// serving requests.
func NewServer(config APIConfig, svc handlers.DirectoryService) *Server {
	config.ApplyDefaults()

	jm := jobs.NewManager()
	router := NewRouter(svc, jm)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", config.Port),
		Handler:      router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	return &Server{
		server: server,
		config: config,
		jobs:   jm,
	}
}

// Jobs exposes the job manager, mainly for tests.
func (s *Server) Jobs() *jobs.Manager {
	return s.jobs
}

// Start starts the API HTTP server and blocks until the context is
// cancelled or an error occurs. Cancellation triggers graceful
// shutdown.
func (s *Server) Start(ctx context.Context) error {
	go s.jobs.PruneLoop(ctx, time.Minute, s.config.JobRetention)

	errChan := make(chan error, 1)
	go func() {
		logger.Info("API server listening", "port", s.config.Port)

		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			select {
			case errChan <- err:
			default:
				// Context was cancelled, error is not needed
			}
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("API server shutdown signal received")
		// Don't use the cancelled ctx as it would cause immediate shutdown
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("API server failed: %w", err)
	}
}

// Stop initiates graceful shutdown of the API server.
//
// Stop is safe to call multiple times and safe to call concurrently
// with Start().
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("API server shutdown error: %w", err)
			logger.Error("API server shutdown error", "error", err)
		} else {
			logger.Info("API server stopped gracefully")
		}
	})
	return shutdownErr
}

// Port returns the TCP port the server is listening on.
func (s *Server) Port() int {
	return s.config.Port
}
