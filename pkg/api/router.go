package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/speexx/guetzli-service/internal/logger"
	"github.com/speexx/guetzli-service/pkg/api/handlers"
	"github.com/speexx/guetzli-service/pkg/job"
	"github.com/speexx/guetzli-service/pkg/store"
)

// NewRouter creates and configures the chi router with all middleware
// and routes.
//
// The router is configured with:
//   - Request ID middleware for request tracking
//   - Real IP extraction for proper client identification
//   - Custom request logging using the internal logger
//   - Panic recovery to prevent server crashes
//
// Routes:
//   - POST /image - upload an image
//   - GET /image - list content ids
//   - GET /image/{contentID}/meta - metadata and job status
//   - GET /image/{contentID}/source - stored source image
//   - GET /image/{contentID}/target - transformed image
//   - GET /health, /health/ready - probes
func NewRouter(jobs *job.Coordinator, st *store.Store) http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	imageHandler := handlers.NewImageHandler(jobs)
	healthHandler := handlers.NewHealthHandler(st)

	r.Route("/image", func(r chi.Router) {
		r.Post("/", imageHandler.Upload)
		r.Get("/", imageHandler.List)
		r.Route("/{contentID}", func(r chi.Router) {
			r.Get("/meta", imageHandler.Meta)
			r.Get("/source", imageHandler.Source)
			r.Get("/target", imageHandler.Target)
		})
	})

	// Health routes - unauthenticated
	r.Route("/health", func(r chi.Router) {
		r.Get("/", healthHandler.Liveness)
		r.Get("/ready", healthHandler.Readiness)
	})

	// Root redirect to health for convenience
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/health", http.StatusTemporaryRedirect)
	})

	return r
}

// requestLogger is a custom middleware that logs requests using the
// internal logger.
//
// It logs:
//   - Request start (DEBUG level): method, path, remote addr
//   - Request completion (INFO level): method, path, status, duration
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		logger.Debug("API request started",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)

		// Wrap response writer to capture status code
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		duration := time.Since(start)

		logger.Info("API request completed",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", duration.String(),
		)
	})
}
