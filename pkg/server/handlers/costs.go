package handlers

import (
	"net/http"

	"openclaw/hub/pkg/storage"
)

// CostsHandler serves the cost-configuration API: per-model USD rates,
// shared or scoped to a connection.
type CostsHandler struct {
	store *storage.Store
}

// NewCostsHandler creates the handler.
func NewCostsHandler(store *storage.Store) *CostsHandler {
	return &CostsHandler{store: store}
}

// List serves GET /api/dashboard/costs.
func (h *CostsHandler) List(w http.ResponseWriter, r *http.Request) {
	configs, err := h.store.ListCostConfigs(r.Context())
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"costs": configs})
}

type costRequest struct {
	ConnectionID  *int64  `json:"connection_id"`
	Model         string  `json:"model"`
	InputPerMTok  float64 `json:"input_cost_per_mtok"`
	OutputPerMTok float64 `json:"output_cost_per_mtok"`
}

func (req *costRequest) validate() (ErrorPayload, bool) {
	if req.Model == "" {
		return ErrorPayload{Detail: "model is required", Code: "invalid_request"}, false
	}
	if req.InputPerMTok < 0 || req.OutputPerMTok < 0 {
		return ErrorPayload{Detail: "rates must be non-negative", Code: "invalid_request"}, false
	}
	return ErrorPayload{}, true
}

// Upsert serves POST /api/dashboard/costs: create or replace the rate for
// a (connection, model) pair.
func (h *CostsHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	var req costRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorPayload{
			Detail: "request body is not a valid cost config", Code: "invalid_request"})
		return
	}
	if payload, ok := req.validate(); !ok {
		writeError(w, http.StatusBadRequest, payload)
		return
	}

	cc := &storage.CostConfig{
		ConnectionID:  req.ConnectionID,
		Model:         req.Model,
		InputPerMTok:  req.InputPerMTok,
		OutputPerMTok: req.OutputPerMTok,
	}
	if err := h.store.UpsertCostConfig(r.Context(), cc); err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cc)
}

// Update serves PUT /api/dashboard/costs/{id}: change the rates of an
// existing config.
func (h *CostsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req costRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorPayload{
			Detail: "request body is not a valid cost config", Code: "invalid_request"})
		return
	}
	if req.InputPerMTok < 0 || req.OutputPerMTok < 0 {
		writeError(w, http.StatusBadRequest, ErrorPayload{
			Detail: "rates must be non-negative", Code: "invalid_request"})
		return
	}

	if err := h.store.UpdateCostConfig(r.Context(), id, req.InputPerMTok, req.OutputPerMTok); err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":                   id,
		"input_cost_per_mtok":  req.InputPerMTok,
		"output_cost_per_mtok": req.OutputPerMTok,
	})
}
