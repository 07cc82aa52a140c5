package api

import (
	"context"
	"net/http"
	"time"
)

// ReadyCheck reports whether a downstream dependency is reachable.
type ReadyCheck func(ctx context.Context) error

// Health serves liveness and readiness probes.
type Health struct {
	checks map[string]ReadyCheck
}

// NewHealth creates a health handler with named readiness checks.
func NewHealth(checks map[string]ReadyCheck) *Health {
	return &Health{checks: checks}
}

// RegisterRoutes registers probe routes on the mux. No middleware so
// probes stay cheap.
func (h *Health) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.live)
	mux.HandleFunc("GET /ready", h.ready)
}

// live reports that the process is up.
func (*Health) live(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// ready runs every readiness check and reports the first failure.
func (h *Health) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"check":  name,
				"error":  err.Error(),
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
