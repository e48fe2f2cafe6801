package handlers

import (
	"net/http"

	"openclaw/hub/pkg/pipeline"
)

// ModelsHandler serves GET /v1/models: available models grouped by
// provider family.
type ModelsHandler struct {
	pipeline *pipeline.Pipeline
}

// NewModelsHandler creates the handler.
func NewModelsHandler(p *pipeline.Pipeline) *ModelsHandler {
	return &ModelsHandler{pipeline: p}
}

// ServeHTTP implements http.Handler.
func (h *ModelsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	models, err := h.pipeline.Models(r.Context())
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": models})
}
