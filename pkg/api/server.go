package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/speexx/guetzli-service/internal/logger"
	"github.com/speexx/guetzli-service/pkg/job"
	"github.com/speexx/guetzli-service/pkg/store"
)

// Server provides the HTTP server for the image endpoints.
//
// Endpoints:
//   - POST /image: Upload an image for recompression
//   - GET /image/{contentID}/meta: Job status and metadata
//   - GET /image/{contentID}/source, /target: Downloads
//   - GET /health: Liveness probe
//
// The server supports graceful shutdown with configurable timeout.
type Server struct {
	server          *http.Server
	config          APIConfig
	shutdownTimeout time.Duration
	shutdownOnce    sync.Once
}

// NewServer creates a new API HTTP server.
//
// The server is created in a stopped state. Call Start() to begin
// serving requests.
//
// Defaults are applied here to ensure the server works correctly even
// when created directly (e.g., in tests). This is idempotent with the
// defaults applied during config loading.
func NewServer(config APIConfig, shutdownTimeout time.Duration, jobs *job.Coordinator, st *store.Store) *Server {
	config.applyDefaults()
	if shutdownTimeout <= 0 {
		shutdownTimeout = 5 * time.Second
	}

	router := NewRouter(jobs, st)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", config.Port),
		Handler:      router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	return &Server{
		server:          server,
		config:          config,
		shutdownTimeout: shutdownTimeout,
	}
}

// Start starts the API HTTP server and blocks until the context is
// cancelled or an error occurs.
//
// When the context is cancelled, Start initiates graceful shutdown and
// returns nil on success.
func (s *Server) Start(ctx context.Context) error {
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
		// Don't use the cancelled ctx as it would abort the shutdown
		// immediately.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
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
		logger.Debug("API server shutdown initiated")

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
