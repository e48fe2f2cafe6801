package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"openclaw/hub/pkg/pipeline"
	"openclaw/hub/pkg/providers"
	"openclaw/hub/pkg/telemetry/metrics"
)

// Fallback annotation headers on completion responses.
const (
	HeaderFallback         = "X-Hub-Fallback"
	HeaderOriginalProvider = "X-Hub-Original-Provider"
	HeaderActualProvider   = "X-Hub-Actual-Provider"
)

// ChatHandler serves POST /v1/chat/completions.
type ChatHandler struct {
	pipeline *pipeline.Pipeline
	metrics  *metrics.Collector
}

// NewChatHandler creates the handler. metrics may be nil.
func NewChatHandler(p *pipeline.Pipeline, m *metrics.Collector) *ChatHandler {
	return &ChatHandler{pipeline: p, metrics: m}
}

// ServeHTTP implements http.Handler.
func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req providers.CompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorPayload{
			Detail: "request body is not valid JSON",
			Code:   "invalid_request",
		})
		return
	}

	start := time.Now()
	resp, err := h.pipeline.Complete(r.Context(), &req)
	if err != nil {
		h.recordFailure(&req, err, start)
		writeMappedError(w, err)
		return
	}

	h.metrics.RecordCompletion(resp.Provider, resp.Model, "success",
		time.Since(start), resp.PromptTokens, resp.CompletionTokens, resp.CostUSD)

	if resp.Fallback {
		h.metrics.RecordFallback(resp.OriginalProvider, resp.Provider)
		w.Header().Set(HeaderFallback, "true")
		w.Header().Set(HeaderOriginalProvider, resp.OriginalProvider)
		w.Header().Set(HeaderActualProvider, resp.Provider)
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *ChatHandler) recordFailure(req *providers.CompletionRequest, err error, start time.Time) {
	_, payload := mapError(err)
	if payload.Code == "budget_exceeded" {
		if window, ok := payload.Metadata["window"].(string); ok {
			h.metrics.RecordBudgetRejection(window)
		}
	}
	h.metrics.RecordCompletion("", req.Model, payload.Code, time.Since(start), 0, 0, 0)
}
