package handler

import (
	"context"
	"net/http"
	"time"
)

// Pinger is a dependency probed by the readiness check.
type Pinger func(ctx context.Context) error

// HealthHandler serves the liveness and readiness endpoints.
type HealthHandler struct {
	checks   map[string]Pinger
	advisory map[string]Pinger
	timeout  time.Duration
}

// NewHealthHandler creates a HealthHandler probing checks on readiness. A
// failing advisory check (the block trigger, say) marks the service
// degraded without failing readiness.
func NewHealthHandler(checks, advisory map[string]Pinger) *HealthHandler {
	return &HealthHandler{checks: checks, advisory: advisory, timeout: 3 * time.Second}
}

// HealthCheck responds with a simple JSON status indicating the server is alive.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready pings every dependency and answers 503 if a required one fails.
// GET /api/ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	results := make(map[string]string, len(h.checks)+len(h.advisory))
	probe := func(checks map[string]Pinger) (failed bool) {
		for name, ping := range checks {
			if err := ping(ctx); err != nil {
				results[name] = err.Error()
				failed = true
				continue
			}
			results[name] = "ok"
		}
		return failed
	}

	status, state := http.StatusOK, "ready"
	switch {
	case probe(h.checks):
		status, state = http.StatusServiceUnavailable, "not_ready"
		probe(h.advisory)
	case probe(h.advisory):
		state = "degraded"
	}
	writeJSON(w, status, map[string]any{"status": state, "checks": results})
}
