package api

import (
	"context"
	"net/http"
	"time"
)

// Pinger is the minimal liveness check a backing store must support.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports process and database liveness for monitoring.
type HealthHandler struct {
	db Pinger
}

// NewHealthHandler builds a HealthHandler backed by db.
func NewHealthHandler(db Pinger) *HealthHandler {
	return &HealthHandler{db: db}
}

// RegisterHealth mounts GET /health on r.
func (h *HealthHandler) RegisterHealth(r interface {
	Get(pattern string, handlerFn http.HandlerFunc)
}) {
	r.Get("/health", h.ServeHTTP)
}

// ServeHTTP reports 200 with db status ok, or 503 if the ping fails.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		Error(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}

	JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
