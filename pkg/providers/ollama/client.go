// Package ollama adapts a local Ollama server. Completions go through the
// server's OpenAI compatibility endpoint, so the adapter is the openai
// client with Ollama's native /api/tags used for model listing and probing.
package ollama

import (
	"context"
	"time"

	"openclaw/hub/pkg/providers"
	"openclaw/hub/pkg/providers/openai"
)

// DefaultBaseURL is the standard local Ollama address.
const DefaultBaseURL = "http://localhost:11434"

// Client speaks to a local Ollama server.
type Client struct {
	*openai.Client
}

// New creates an adapter for the Ollama server at baseURL. No credentials;
// local models price at zero so no cost model is needed either.
func New(name, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	inner := openai.New(name, baseURL, "", providers.NewCostModel(nil, nil))
	return &Client{Client: inner}
}

// Family identifies the local provider family.
func (c *Client) Family() string { return "ollama" }

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// ListModels returns the locally pulled models from /api/tags.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	var out tagsResponse
	if err := c.GetJSON(ctx, "/api/tags", &out); err != nil {
		return nil, err
	}
	models := make([]string, 0, len(out.Models))
	for _, m := range out.Models {
		models = append(models, m.Name)
	}
	return models, nil
}

// Probe checks reachability via /api/tags, which answers even while a
// model is loading.
func (c *Client) Probe(ctx context.Context) (*providers.ProbeResult, error) {
	start := time.Now()
	if err := c.GetJSON(ctx, "/api/tags", &tagsResponse{}); err != nil {
		return nil, err
	}
	return &providers.ProbeResult{OK: true, LatencyMS: time.Since(start).Milliseconds()}, nil
}
