package handlers

import (
	"net/http"

	"github.com/speexx/guetzli-service/pkg/store"
)

// HealthHandler handles health check endpoints.
//
// Health endpoints are unauthenticated and provide:
//   - Liveness probe: Is the server process running?
//   - Readiness probe: Is the storage directory reachable?
type HealthHandler struct {
	store *store.Store
}

// NewHealthHandler creates a new health handler.
//
// The store parameter may be nil, in which case the readiness check
// reports unhealthy.
func NewHealthHandler(st *store.Store) *HealthHandler {
	return &HealthHandler{store: st}
}

// Liveness handles GET /health - simple liveness probe.
//
// Returns 200 OK if the server process is running. Designed for
// Kubernetes liveness probes; it succeeds as long as the HTTP server is
// responsive.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthyResponse(map[string]string{
		"service": "guetzlid",
	}))
}

// Readiness handles GET /health/ready - readiness probe.
//
// Returns 200 OK if the storage base directory can be enumerated,
// 503 Service Unavailable otherwise.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("store not initialized"))
		return
	}

	ids, err := h.store.List()
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse(err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, healthyResponse(map[string]interface{}{
		"entries": len(ids),
	}))
}
