// Package openai implements the OpenAI-compatible chat adapter. It also
// serves any server speaking the same wire protocol, which is why the
// ollama adapter builds on it.
package openai

import (
	"context"
	"net/http"
	"time"

	"openclaw/hub/pkg/providers"
)

// DefaultBaseURL is the hosted OpenAI endpoint.
const DefaultBaseURL = "https://api.openai.com"

// Client speaks the OpenAI chat completion wire protocol.
type Client struct {
	*providers.HTTPClient
	cost *providers.CostModel
}

// New creates an adapter bound to one connection's base URL and key. An
// empty key sends no Authorization header (local servers).
func New(name, baseURL, apiKey string, cost *providers.CostModel) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	prepare := func(r *http.Request) {
		if apiKey != "" {
			r.Header.Set("Authorization", "Bearer "+apiKey)
		}
	}
	return &Client{
		HTTPClient: providers.NewHTTPClient(name, "openai", baseURL, prepare),
		cost:       cost,
	}
}

// chatRequest is the provider wire shape.
type chatRequest struct {
	Model       string              `json:"model"`
	Messages    []providers.Message `json:"messages"`
	MaxTokens   int                 `json:"max_tokens"`
	Temperature float64             `json:"temperature"`
	Stream      bool                `json:"stream"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Complete sends one chat completion request.
func (c *Client) Complete(ctx context.Context, req *providers.CompletionRequest) (*providers.CompletionResponse, error) {
	wire := chatRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      false,
	}

	start := time.Now()
	var out chatResponse
	if err := c.PostJSON(ctx, "/v1/chat/completions", wire, &out); err != nil {
		return nil, err
	}
	latency := time.Since(start).Milliseconds()

	var content string
	if len(out.Choices) > 0 {
		content = out.Choices[0].Message.Content
	}
	model := out.Model
	if model == "" {
		model = req.Model
	}

	return &providers.CompletionResponse{
		Content:          content,
		Model:            model,
		PromptTokens:     out.Usage.PromptTokens,
		CompletionTokens: out.Usage.CompletionTokens,
		TotalTokens:      out.Usage.PromptTokens + out.Usage.CompletionTokens,
		CostUSD:          c.cost.Cost(ctx, model, out.Usage.PromptTokens, out.Usage.CompletionTokens),
		LatencyMS:        latency,
	}, nil
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

// Probe checks reachability via the models endpoint.
func (c *Client) Probe(ctx context.Context) (*providers.ProbeResult, error) {
	start := time.Now()
	if err := c.GetJSON(ctx, "/v1/models", &modelsResponse{}); err != nil {
		return nil, err
	}
	return &providers.ProbeResult{OK: true, LatencyMS: time.Since(start).Milliseconds()}, nil
}
