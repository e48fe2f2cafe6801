package handlers

import (
	"net/http"
	"strconv"

	"openclaw/hub/pkg/storage"
)

// AlertsHandler serves the alert read and dismiss API.
type AlertsHandler struct {
	store *storage.Store
}

// NewAlertsHandler creates the handler.
func NewAlertsHandler(store *storage.Store) *AlertsHandler {
	return &AlertsHandler{store: store}
}

// List serves GET /api/alerts?limit=N: newest alerts regardless of state.
func (h *AlertsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 1000 {
			writeError(w, http.StatusBadRequest, ErrorPayload{
				Detail: "limit must be between 1 and 1000", Code: "invalid_request"})
			return
		}
		limit = parsed
	}

	alerts, err := h.store.ListAlerts(r.Context(), limit)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

// Active serves GET /api/alerts/active.
func (h *AlertsHandler) Active(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.store.ListActiveAlerts(r.Context())
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

// Dismiss serves POST /api/alerts/{id}/dismiss. Dismissal is permanent;
// the dedup window still applies to re-raising.
func (h *AlertsHandler) Dismiss(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, ErrorPayload{
			Detail: "invalid id", Code: "invalid_request"})
		return
	}

	if err := h.store.DismissAlert(r.Context(), id); err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "dismissed": true})
}
