// Package handlers implements the gateway's HTTP endpoints.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"openclaw/hub/pkg/budget"
	"openclaw/hub/pkg/executor"
	"openclaw/hub/pkg/pipeline"
	"openclaw/hub/pkg/providers"
	"openclaw/hub/pkg/storage"
)

// ErrorPayload is the uniform error body: detail for humans, code for
// programs, metadata for structured context.
type ErrorPayload struct {
	Detail   string         `json:"detail"`
	Code     string         `json:"code,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, payload ErrorPayload) {
	writeJSON(w, status, payload)
}

// writeMappedError translates a pipeline error into its HTTP shape.
func writeMappedError(w http.ResponseWriter, err error) {
	status, payload := mapError(err)
	writeError(w, status, payload)
}

func mapError(err error) (int, ErrorPayload) {
	var (
		reqErr     *providers.RequestError
		authErr    *providers.AuthError
		badErr     *providers.BadRequestError
		noProvider *pipeline.NoProviderError
		exceeded   *budget.ExceededError
		exhausted  *executor.ExhaustedError
	)

	switch {
	case errors.As(err, &reqErr):
		return http.StatusBadRequest, ErrorPayload{
			Detail: reqErr.Error(),
			Code:   "invalid_request",
			Metadata: map[string]any{
				"field": reqErr.Field,
			},
		}

	case errors.As(err, &noProvider):
		return http.StatusServiceUnavailable, ErrorPayload{
			Detail: noProvider.Error(),
			Code:   "no_provider",
			Metadata: map[string]any{
				"model":  noProvider.Model,
				"family": noProvider.Family,
			},
		}

	case errors.As(err, &exceeded):
		return http.StatusTooManyRequests, ErrorPayload{
			Detail: exceeded.Error(),
			Code:   "budget_exceeded",
			Metadata: map[string]any{
				"connection_id": exceeded.ConnectionID,
				"window":        string(exceeded.Window),
				"limit_usd":     exceeded.Limit,
				"spent_usd":     exceeded.Spent,
			},
		}

	// Upstream classifications surface through the exhausted chain's
	// last cause.
	case errors.As(err, &authErr):
		status := authErr.StatusCode
		if status != http.StatusUnauthorized && status != http.StatusForbidden {
			status = http.StatusUnauthorized
		}
		return status, ErrorPayload{
			Detail: authErr.Error(),
			Code:   "upstream_auth",
			Metadata: map[string]any{
				"provider": authErr.Provider,
			},
		}

	case errors.As(err, &badErr):
		return http.StatusBadRequest, ErrorPayload{
			Detail: badErr.Error(),
			Code:   "upstream_rejected",
			Metadata: map[string]any{
				"provider": badErr.Provider,
			},
		}

	case errors.As(err, &exhausted):
		return http.StatusBadGateway, ErrorPayload{
			Detail: exhausted.Error(),
			Code:   "providers_exhausted",
			Metadata: map[string]any{
				"attempts":  exhausted.Attempts,
				"providers": exhausted.Providers,
			},
		}

	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, ErrorPayload{
			Detail: "request deadline exceeded",
			Code:   "timeout",
		}

	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, ErrorPayload{
			Detail: "not found",
			Code:   "not_found",
		}

	default:
		return http.StatusInternalServerError, ErrorPayload{
			Detail: "internal server error",
			Code:   "internal_error",
		}
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
