package providers

// Message is one turn of a conversation in the OpenAI-compatible shape.
// Role is one of "system", "user", "assistant".
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is the canonical chat completion request. Callers and
// the pipeline speak this shape; adapters translate to provider-native wire
// formats.
type CompletionRequest struct {
	// Model is the resolved model name. Aliases are translated before
	// dispatch; adapters never see them.
	Model string `json:"model"`

	// Messages is the conversation so far. Must be non-empty.
	Messages []Message `json:"messages"`

	// MaxTokens caps the completion length. Must be positive.
	MaxTokens int `json:"max_tokens"`

	// Temperature controls sampling randomness.
	Temperature float64 `json:"temperature"`
}

// Validate checks the request shape before it reaches an adapter.
func (r *CompletionRequest) Validate() error {
	if r.Model == "" {
		return &RequestError{Field: "model", Message: "model is required"}
	}
	if len(r.Messages) == 0 {
		return &RequestError{Field: "messages", Message: "messages must be non-empty"}
	}
	if r.MaxTokens <= 0 {
		return &RequestError{Field: "max_tokens", Message: "max_tokens must be positive"}
	}
	return nil
}

// CompletionResponse is the normalised result of one successful upstream
// call.
type CompletionResponse struct {
	// Content is the assistant's reply text.
	Content string `json:"content"`

	// Model is the model identifier the upstream echoed back.
	Model string `json:"model"`

	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`

	// TotalTokens is prompt plus completion, precomputed for the wire.
	TotalTokens int `json:"total_tokens"`

	// CostUSD is computed from the connection's cost configuration. Zero
	// when no rate is configured (free/local).
	CostUSD float64 `json:"cost_usd"`

	// LatencyMS is the upstream round-trip time.
	LatencyMS int64 `json:"latency_ms"`
}

// ProbeResult is the outcome of a health probe.
type ProbeResult struct {
	OK        bool  `json:"ok"`
	LatencyMS int64 `json:"latency_ms"`
}
