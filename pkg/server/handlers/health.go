package handlers

import (
	"net/http"
	"time"

	"openclaw/hub/pkg/health"
)

// HealthHandler serves GET /health: liveness plus the per-provider health
// snapshot.
type HealthHandler struct {
	tracker *health.Tracker
	started time.Time
	version string
}

// NewHealthHandler creates the handler.
func NewHealthHandler(tracker *health.Tracker, version string) *HealthHandler {
	return &HealthHandler{tracker: tracker, started: time.Now(), version: version}
}

// ServeHTTP implements http.Handler.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "healthy",
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"version":        h.version,
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
		"providers":      h.tracker.Snapshot(),
	})
}
