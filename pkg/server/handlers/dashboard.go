package handlers

import (
	"net/http"
	"strconv"
	"time"

	"openclaw/hub/pkg/dashboard"
	"openclaw/hub/pkg/storage"
)

// DashboardHandler serves the read-only dashboard endpoints plus the
// global budget limits.
type DashboardHandler struct {
	dashboard *dashboard.Dashboard
	store     *storage.Store
}

// NewDashboardHandler creates the handler.
func NewDashboardHandler(d *dashboard.Dashboard, store *storage.Store) *DashboardHandler {
	return &DashboardHandler{dashboard: d, store: store}
}

// Stats serves GET /api/dashboard/stats.
func (h *DashboardHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.dashboard.Stats(r.Context())
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Usage serves GET /api/dashboard/usage?period=daily|weekly|monthly&anchor=YYYY-MM-DD.
func (h *DashboardHandler) Usage(w http.ResponseWriter, r *http.Request) {
	period := r.URL.Query().Get("period")
	if period == "" {
		period = "daily"
	}

	var anchor time.Time
	if raw := r.URL.Query().Get("anchor"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, ErrorPayload{
				Detail: "anchor must be YYYY-MM-DD", Code: "invalid_request"})
			return
		}
		anchor = parsed
	}

	points, err := h.dashboard.Usage(r.Context(), period, anchor)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"period": period,
		"points": points,
	})
}

// Requests serves GET /api/dashboard/requests?limit=N.
func (h *DashboardHandler) Requests(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 500 {
			writeError(w, http.StatusBadRequest, ErrorPayload{
				Detail: "limit must be between 1 and 500", Code: "invalid_request"})
			return
		}
		limit = parsed
	}

	requests, err := h.dashboard.RecentRequests(r.Context(), limit)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": requests})
}

// Budget serves GET /api/dashboard/budget: the global snapshot plus the
// configured display limits.
func (h *DashboardHandler) Budget(w http.ResponseWriter, r *http.Request) {
	limits, err := h.store.GetBudgetLimits(r.Context())
	if err != nil {
		writeMappedError(w, err)
		return
	}
	windows, err := h.dashboard.Budget(r.Context())
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"limits":  limits,
		"windows": windows,
	})
}

// UpdateBudget serves PUT /api/dashboard/budget. These limits are display
// defaults only; enforcement stays per-connection.
func (h *DashboardHandler) UpdateBudget(w http.ResponseWriter, r *http.Request) {
	var limits storage.BudgetLimits
	if err := decodeJSON(r, &limits); err != nil {
		writeError(w, http.StatusBadRequest, ErrorPayload{
			Detail: "request body is not a valid budget", Code: "invalid_request"})
		return
	}
	if limits.DailyUSD < 0 || limits.WeeklyUSD < 0 || limits.MonthlyUSD < 0 {
		writeError(w, http.StatusBadRequest, ErrorPayload{
			Detail: "budget limits must be non-negative", Code: "invalid_request"})
		return
	}

	if err := h.store.PutBudgetLimits(r.Context(), limits); err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, limits)
}
