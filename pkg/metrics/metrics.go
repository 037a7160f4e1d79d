// Package metrics exposes prometheus collectors for the service and a
// standalone /metrics HTTP endpoint. Collection is always on; whether the
// endpoint is served is a configuration decision made in main.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/speexx/guetzli-service/internal/logger"
)

var (
	// UploadsTotal counts admitted uploads by source type (JPG/PNG).
	UploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "guetzli",
		Name:      "uploads_total",
		Help:      "Number of admitted image uploads by source type.",
	}, []string{"type"})

	// UploadsRejectedTotal counts rejected uploads by reason.
	UploadsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "guetzli",
		Name:      "uploads_rejected_total",
		Help:      "Number of rejected uploads by reason (too_large, unsupported_type).",
	}, []string{"reason"})

	// TransformsTotal counts finished transform jobs by outcome.
	TransformsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "guetzli",
		Name:      "transforms_total",
		Help:      "Number of finished transformations by outcome (transformed, failed).",
	}, []string{"outcome"})

	// TransformDuration observes wall-clock transform time.
	TransformDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "guetzli",
		Name:      "transform_duration_seconds",
		Help:      "Wall-clock duration of guetzli transformations.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 11), // 1s .. ~17min
	})

	// Transforming tracks entries currently holding a transform slot.
	Transforming = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "guetzli",
		Name:      "transforming",
		Help:      "Number of transformations currently running.",
	})

	// JanitorDeletedTotal counts entries removed by the janitor.
	JanitorDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "guetzli",
		Name:      "janitor_deleted_total",
		Help:      "Number of entries deleted by the age janitor.",
	})
)

// Server serves the prometheus registry over HTTP.
type Server struct {
	server *http.Server
}

// NewServer creates a metrics server on the given port serving /metrics.
func NewServer(port int) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &Server{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		logger.Info("metrics server listening", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("metrics server failed: %w", err)
	}
}
