// Package providers defines the capability set every upstream adapter
// implements, the canonical request/response shapes, and the typed errors
// the executor classifies retries by.
//
// Adapters are single-shot: one Complete call is one upstream HTTP request.
// Retry, backoff and fallback live in the executor, which is generic over
// this interface.
package providers

import "context"

// Provider is the capability set of one provider family adapter bound to
// one connection's credentials.
//
// All methods accept a context for cancellation and deadline control and
// must return promptly when it is cancelled.
type Provider interface {
	// Complete sends one chat completion request upstream and returns the
	// normalised response. Failures are returned as one of the typed errors
	// in this package (AuthError, BadRequestError, RateLimitError,
	// TransientError).
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// ListModels returns the model identifiers the upstream advertises.
	ListModels(ctx context.Context) ([]string, error)

	// Probe performs a lightweight reachability check. Used by the health
	// monitor only.
	Probe(ctx context.Context) (*ProbeResult, error)

	// Name returns the connection's display name.
	Name() string

	// Family returns the provider family key ("openai", "anthropic",
	// "ollama").
	Family() string

	// Close releases the adapter's HTTP resources.
	Close() error
}
