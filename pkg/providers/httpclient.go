package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxErrorBodyBytes caps how much of an upstream error body is carried into
// error messages.
const maxErrorBodyBytes = 2048

// HTTPClient is the shared single-shot HTTP base all adapters embed. One
// call is one upstream request; classification happens here, retry policy
// does not.
type HTTPClient struct {
	name    string
	family  string
	baseURL string
	client  *http.Client

	// prepare stamps auth headers onto every request. It is the only place
	// plaintext credentials are used.
	prepare func(*http.Request)
}

// NewHTTPClient creates the shared base for an adapter.
func NewHTTPClient(name, family, baseURL string, prepare func(*http.Request)) *HTTPClient {
	if prepare == nil {
		prepare = func(*http.Request) {}
	}
	return &HTTPClient{
		name:    name,
		family:  family,
		baseURL: baseURL,
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		prepare: prepare,
	}
}

// Name returns the connection's display name.
func (c *HTTPClient) Name() string { return c.name }

// Family returns the provider family key.
func (c *HTTPClient) Family() string { return c.family }

// BaseURL returns the upstream base URL.
func (c *HTTPClient) BaseURL() string { return c.baseURL }

// Close releases idle connections.
func (c *HTTPClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

// PostJSON sends one JSON POST and decodes the JSON response into out.
func (c *HTTPClient) PostJSON(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, bytes.NewReader(body), out)
}

// GetJSON sends one GET and decodes the JSON response into out.
func (c *HTTPClient) GetJSON(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	c.prepare(req)

	resp, err := c.client.Do(req)
	if err != nil {
		// Cancellation propagates as-is so the executor can tell a caller
		// abort from an upstream outage.
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &TransientError{Provider: c.name, Message: "request failed", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		retryAfter := ParseRetryAfter(resp.Header.Get("Retry-After"))
		return ClassifyStatus(c.name, resp.StatusCode, upstreamMessage(raw), retryAfter)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransientError{Provider: c.name, Message: "failed to decode response", Cause: err}
	}
	return nil
}

// upstreamMessage pulls a human-readable message out of an error body.
// Handles the OpenAI shape ({"error":{"message":...}}), the plain
// {"detail":...} shape, and falls back to the raw body.
func upstreamMessage(raw []byte) string {
	var openaiShape struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &openaiShape); err == nil && openaiShape.Error.Message != "" {
		return openaiShape.Error.Message
	}

	var detailShape struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &detailShape); err == nil && detailShape.Detail != "" {
		return detailShape.Detail
	}

	if len(raw) == 0 {
		return "no error body"
	}
	return string(raw)
}
