// Package anthropic implements the Messages API adapter. The canonical
// OpenAI-compatible shape is translated on the way in: system messages are
// extracted into the top-level system parameter the API requires.
package anthropic

import (
	"context"
	"net/http"
	"strings"
	"time"

	"openclaw/hub/pkg/providers"
)

// DefaultBaseURL is the hosted Anthropic endpoint.
const DefaultBaseURL = "https://api.anthropic.com"

const apiVersion = "2023-06-01"

// Client speaks the Anthropic Messages wire protocol.
type Client struct {
	*providers.HTTPClient
	cost *providers.CostModel
}

// New creates an adapter bound to one connection's base URL and key.
func New(name, baseURL, apiKey string, cost *providers.CostModel) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	prepare := func(r *http.Request) {
		r.Header.Set("x-api-key", apiKey)
		r.Header.Set("anthropic-version", apiVersion)
	}
	return &Client{
		HTTPClient: providers.NewHTTPClient(name, "anthropic", baseURL, prepare),
		cost:       cost,
	}
}

type messageRequest struct {
	Model       string              `json:"model"`
	MaxTokens   int                 `json:"max_tokens"`
	Temperature float64             `json:"temperature"`
	System      string              `json:"system,omitempty"`
	Messages    []providers.Message `json:"messages"`
}

type messageResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Complete sends one Messages API request.
func (c *Client) Complete(ctx context.Context, req *providers.CompletionRequest) (*providers.CompletionResponse, error) {
	system, rest := splitSystem(req.Messages)

	wire := messageRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		System:      system,
		Messages:    rest,
	}

	start := time.Now()
	var out messageResponse
	if err := c.PostJSON(ctx, "/v1/messages", wire, &out); err != nil {
		return nil, err
	}
	latency := time.Since(start).Milliseconds()

	var sb strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	model := out.Model
	if model == "" {
		model = req.Model
	}

	return &providers.CompletionResponse{
		Content:          sb.String(),
		Model:            model,
		PromptTokens:     out.Usage.InputTokens,
		CompletionTokens: out.Usage.OutputTokens,
		TotalTokens:      out.Usage.InputTokens + out.Usage.OutputTokens,
		CostUSD:          c.cost.Cost(ctx, model, out.Usage.InputTokens, out.Usage.OutputTokens),
		LatencyMS:        latency,
	}, nil
}

// splitSystem extracts system messages into the separate parameter the
// Messages API expects. Multiple system messages are joined with blank
// lines.
func splitSystem(messages []providers.Message) (string, []providers.Message) {
	var (
		system []string
		rest   []providers.Message
	)
	for _, m := range messages {
		if m.Role == "system" {
			system = append(system, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(system, "\n\n"), rest
}

type modelsResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// ListModels returns the identifiers the upstream advertises.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	var out modelsResponse
	if err := c.GetJSON(ctx, "/v1/models", &out); err != nil {
		return nil, err
	}
	models := make([]string, 0, len(out.Data))
	for _, m := range out.Data {
		models = append(models, m.ID)
	}
	return models, nil
}

// Probe checks reachability via the models endpoint, which exercises
// authentication without spending tokens.
func (c *Client) Probe(ctx context.Context) (*providers.ProbeResult, error) {
	start := time.Now()
	if err := c.GetJSON(ctx, "/v1/models", &modelsResponse{}); err != nil {
		return nil, err
	}
	return &providers.ProbeResult{OK: true, LatencyMS: time.Since(start).Milliseconds()}, nil
}
