package providers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// RequestError represents a malformed canonical request, rejected before
// anything is sent upstream. Maps to HTTP 400 and is never retried.
type RequestError struct {
	// Field is the name of the invalid field
	Field string

	// Message describes what is invalid about the field
	Message string
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	return fmt.Sprintf("invalid request field %q: %s", e.Field, e.Message)
}

// AuthError represents an authentication failure (HTTP 401 or 403).
// Never retried against the same provider; the executor moves to the next
// provider in the chain.
type AuthError struct {
	// Provider is the name of the provider that rejected authentication
	Provider string

	// StatusCode is the upstream HTTP status (401 or 403)
	StatusCode int

	// Message is the error message from the provider
	Message string
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	return fmt.Sprintf("provider %q authentication failed (status %d): %s",
		e.Provider, e.StatusCode, e.Message)
}

// BadRequestError represents an upstream schema rejection (HTTP 400, 404,
// 422). Never retried; the executor moves to the next provider.
type BadRequestError struct {
	// Provider is the name of the provider that rejected the request
	Provider string

	// StatusCode is the upstream HTTP status
	StatusCode int

	// Message is the error message from the provider
	Message string
}

// Error implements the error interface.
func (e *BadRequestError) Error() string {
	return fmt.Sprintf("provider %q rejected request (status %d): %s",
		e.Provider, e.StatusCode, e.Message)
}

// RateLimitError represents a rate limit exceeded error (HTTP 429).
// Retried after max(Retry-After, backoff).
type RateLimitError struct {
	// Provider is the name of the provider that rate limited the request
	Provider string

	// RetryAfter is the duration the provider asked us to wait (zero when
	// the header was absent or unparsable)
	RetryAfter time.Duration

	// Message is the error message from the provider
	Message string
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("provider %q rate limit exceeded (retry after %s): %s",
			e.Provider, e.RetryAfter, e.Message)
	}
	return fmt.Sprintf("provider %q rate limit exceeded: %s", e.Provider, e.Message)
}

// TransientError represents a retryable failure: HTTP 5xx or a network
// error. Retried with exponential backoff.
type TransientError struct {
	// Provider is the name of the provider where the failure occurred
	Provider string

	// StatusCode is the upstream HTTP status (0 for network errors)
	StatusCode int

	// Message describes the failure
	Message string

	// Cause is the underlying error (if any)
	Cause error
}

// Error implements the error interface.
func (e *TransientError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider %q transient failure (status %d): %s",
			e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider %q transient failure: %s", e.Provider, e.Message)
}

// Unwrap returns the underlying error for error chain support.
func (e *TransientError) Unwrap() error {
	return e.Cause
}

// ClassifyStatus maps an upstream HTTP status to the error taxonomy. The
// Retry-After value only matters for 429.
func ClassifyStatus(provider string, status int, message string, retryAfter time.Duration) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &AuthError{Provider: provider, StatusCode: status, Message: message}
	case status == http.StatusBadRequest ||
		status == http.StatusNotFound ||
		status == http.StatusUnprocessableEntity:
		return &BadRequestError{Provider: provider, StatusCode: status, Message: message}
	case status == http.StatusTooManyRequests:
		return &RateLimitError{Provider: provider, RetryAfter: retryAfter, Message: message}
	default:
		return &TransientError{Provider: provider, StatusCode: status, Message: message}
	}
}

// ParseRetryAfter parses a Retry-After header value: either delta seconds
// or an HTTP date. Returns zero when absent or unparsable.
func ParseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(header); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
