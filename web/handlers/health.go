package handlers

import (
	"context"
	"net/http"
	"time"
)

// Version is reported by the health endpoint; set at build time via ldflags.
var Version = "dev"

// Pinger checks backend reachability. storage.Store implements it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BreakerStater reports the ingestion circuit breaker state.
// *ingest.Writer implements it.
type BreakerStater interface {
	BreakerState() string
}

// HealthHandler serves GET /api/health.
type HealthHandler struct {
	store   Pinger
	breaker BreakerStater
}

// NewHealthHandler creates a health handler. breaker may be nil.
func NewHealthHandler(store Pinger, breaker BreakerStater) *HealthHandler {
	return &HealthHandler{store: store, breaker: breaker}
}

// Health reports 200 when the store answers, 503 otherwise.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{Status: "healthy", Storage: "ok", Version: Version}
	if h.breaker != nil {
		resp.Breaker = h.breaker.BreakerState()
	}

	status := http.StatusOK
	if err := h.store.Ping(ctx); err != nil {
		resp.Status = "unhealthy"
		resp.Storage = err.Error()
		status = http.StatusServiceUnavailable
	}

	respondJSON(w, status, resp)
}
