package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"openclaw/hub/pkg/dashboard"
	"openclaw/hub/pkg/routing"
	"openclaw/hub/pkg/storage"
	"openclaw/hub/pkg/vault"
)

// ConnectionsHandler serves the connection management API. Credentials
// arrive in plaintext over loopback, are encrypted immediately, and only
// ever leave masked.
type ConnectionsHandler struct {
	store     *storage.Store
	vault     *vault.Vault
	dashboard *dashboard.Dashboard
}

// NewConnectionsHandler creates the handler.
func NewConnectionsHandler(store *storage.Store, v *vault.Vault, d *dashboard.Dashboard) *ConnectionsHandler {
	return &ConnectionsHandler{store: store, vault: v, dashboard: d}
}

type connectionRequest struct {
	Name            string  `json:"name"`
	Service         string  `json:"service"`
	Category        string  `json:"category"`
	BaseURL         string  `json:"base_url"`
	APIKey          string  `json:"api_key"`
	Enabled         *bool   `json:"enabled"`
	IsDefault       bool    `json:"is_default"`
	DailyLimitUSD   float64 `json:"daily_limit_usd"`
	WeeklyLimitUSD  float64 `json:"weekly_limit_usd"`
	MonthlyLimitUSD float64 `json:"monthly_limit_usd"`
}

func (req *connectionRequest) validate() error {
	if req.Name == "" {
		return fmt.Errorf("name is required")
	}
	switch req.Service {
	case routing.FamilyOpenAI, routing.FamilyAnthropic, routing.FamilyOllama:
	default:
		return fmt.Errorf("unknown service %q", req.Service)
	}
	if req.DailyLimitUSD < 0 || req.WeeklyLimitUSD < 0 || req.MonthlyLimitUSD < 0 {
		return fmt.Errorf("budget limits must be non-negative")
	}
	return nil
}

// List serves GET /api/dashboard/connections.
func (h *ConnectionsHandler) List(w http.ResponseWriter, r *http.Request) {
	views, err := h.dashboard.Connections(r.Context())
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"connections": views})
}

// Create serves POST /api/dashboard/connections.
func (h *ConnectionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req connectionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorPayload{
			Detail: "request body is not a valid connection", Code: "invalid_request"})
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, ErrorPayload{
			Detail: err.Error(), Code: "invalid_request"})
		return
	}

	encrypted, err := h.encryptKey(req.APIKey)
	if err != nil {
		writeMappedError(w, err)
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	conn := &storage.Connection{
		Name:            req.Name,
		Service:         req.Service,
		Category:        req.Category,
		BaseURL:         req.BaseURL,
		APIKeyEncrypted: encrypted,
		Enabled:         enabled,
		IsDefault:       req.IsDefault,
		DailyLimitUSD:   req.DailyLimitUSD,
		WeeklyLimitUSD:  req.WeeklyLimitUSD,
		MonthlyLimitUSD: req.MonthlyLimitUSD,
	}
	if err := h.store.CreateConnection(r.Context(), conn); err != nil {
		writeMappedError(w, err)
		return
	}

	view, err := h.dashboard.Connection(r.Context(), conn.ID)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// Get serves GET /api/dashboard/connections/{id}.
func (h *ConnectionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	view, err := h.dashboard.Connection(r.Context(), id)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Update serves PUT /api/dashboard/connections/{id}. An empty api_key
// keeps the stored credential.
func (h *ConnectionsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req connectionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorPayload{
			Detail: "request body is not a valid connection", Code: "invalid_request"})
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, ErrorPayload{
			Detail: err.Error(), Code: "invalid_request"})
		return
	}

	encrypted, err := h.encryptKey(req.APIKey)
	if err != nil {
		writeMappedError(w, err)
		return
	}

	conn, err := h.store.GetConnection(r.Context(), id)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	conn.Name = req.Name
	conn.Service = req.Service
	conn.Category = req.Category
	conn.BaseURL = req.BaseURL
	conn.APIKeyEncrypted = encrypted // empty keeps the stored value
	conn.IsDefault = req.IsDefault
	conn.DailyLimitUSD = req.DailyLimitUSD
	conn.WeeklyLimitUSD = req.WeeklyLimitUSD
	conn.MonthlyLimitUSD = req.MonthlyLimitUSD
	if req.Enabled != nil {
		conn.Enabled = *req.Enabled
	}

	if err := h.store.UpdateConnection(r.Context(), conn); err != nil {
		writeMappedError(w, err)
		return
	}

	view, err := h.dashboard.Connection(r.Context(), id)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Delete serves DELETE /api/dashboard/connections/{id}: the connection
// and its scoped cost configs go together.
func (h *ConnectionsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.store.DeleteConnectionCascade(r.Context(), id); err != nil {
		writeMappedError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Toggle serves POST /api/dashboard/connections/{id}/toggle.
func (h *ConnectionsHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	enabled, err := h.store.ToggleConnection(r.Context(), id)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "enabled": enabled})
}

type overrideRequest struct {
	Minutes int `json:"minutes"`
}

// Override serves POST /api/dashboard/connections/{id}/override: suspend
// budget enforcement for a bounded period.
func (h *ConnectionsHandler) Override(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req overrideRequest
	if err := decodeJSON(r, &req); err != nil || req.Minutes <= 0 {
		writeError(w, http.StatusBadRequest, ErrorPayload{
			Detail: "minutes must be a positive integer", Code: "invalid_request"})
		return
	}

	until, err := h.store.SetBudgetOverride(r.Context(), id, time.Duration(req.Minutes)*time.Minute)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "override_until": until})
}

func (h *ConnectionsHandler) encryptKey(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	return h.vault.Encrypt(plaintext)
}

// pathID parses the {id} path segment, writing the 400 itself on failure.
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, ErrorPayload{
			Detail: "invalid id", Code: "invalid_request"})
		return 0, false
	}
	return id, true
}
