// Package executor walks an ordered provider chain with retry, backoff and
// fallback. It is the only component that sleeps between attempts and the
// only one that decides whether an upstream error is worth another try.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"openclaw/hub/pkg/providers"
	"openclaw/hub/pkg/storage"
)

// Bound is one chain element: an adapter bound to the connection whose
// credentials it carries.
type Bound struct {
	Provider   providers.Provider
	Connection *storage.Connection
}

// Config controls retry behaviour. Zero values are replaced with the
// defaults (3 attempts, 1s base, growth 5).
type Config struct {
	// Enabled turns retries off entirely: one attempt per provider.
	Enabled bool

	// MaxAttempts is the per-provider attempt cap.
	MaxAttempts int

	// Base is the first backoff interval.
	Base time.Duration

	// Growth is the exponential multiplier: backoff(n) = Base·Growth^(n-1).
	Growth float64
}

// Result is a successful execution with its fallback annotations.
type Result struct {
	Response *providers.CompletionResponse

	// Connection is the connection that served the request.
	Connection *storage.Connection

	// Provider is the serving connection's family.
	Provider string

	// OriginalProvider is the primary's family. Differs from Provider only
	// when a fallback served the request.
	OriginalProvider string

	// Fallback reports whether a non-primary connection served.
	Fallback bool

	// Attempts counts upstream calls across the whole chain.
	Attempts int
}

// ExhaustedError is the terminal failure after every provider in the chain
// has been tried. Maps to HTTP 502.
type ExhaustedError struct {
	// Attempts counts upstream calls made before giving up
	Attempts int

	// Providers lists the families tried, in order
	Providers []string

	// Cause is the last provider error seen
	Cause error
}

// Error implements the error interface.
func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all providers exhausted after %d attempts (%v): %v",
		e.Attempts, e.Providers, e.Cause)
}

// Unwrap returns the underlying error for error chain support.
func (e *ExhaustedError) Unwrap() error {
	return e.Cause
}

// Executor runs completion requests through provider chains.
type Executor struct {
	cfg    Config
	logger *slog.Logger

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates an executor.
func New(cfg Config, logger *slog.Logger) *Executor {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Base <= 0 {
		cfg.Base = time.Second
	}
	if cfg.Growth < 1 {
		cfg.Growth = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{cfg: cfg, logger: logger, sleep: sleepCtx}
}

// Backoff returns the wait before retry n (1-based).
func (e *Executor) Backoff(attempt int) time.Duration {
	return time.Duration(float64(e.cfg.Base) * math.Pow(e.cfg.Growth, float64(attempt-1)))
}

// Execute walks the chain in order. Per provider: retry transient and
// rate-limited failures up to the attempt cap, move on immediately for
// auth and schema rejections. Cancellation aborts before the next sleep.
func (e *Executor) Execute(ctx context.Context, chain []Bound, req *providers.CompletionRequest) (*Result, error) {
	if len(chain) == 0 {
		return nil, fmt.Errorf("executor: empty provider chain")
	}

	maxAttempts := e.cfg.MaxAttempts
	if !e.cfg.Enabled {
		maxAttempts = 1
	}

	var (
		totalAttempts int
		tried         []string
		lastErr       error
	)
	original := chain[0].Connection.Service

	for i, bound := range chain {
		family := bound.Connection.Service
		tried = append(tried, family)

		for attempt := 1; attempt <= maxAttempts; attempt++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			totalAttempts++
			resp, err := bound.Provider.Complete(ctx, req)
			if err == nil {
				if i > 0 {
					e.logger.InfoContext(ctx, "Fallback provider served request",
						"original_provider", original,
						"actual_provider", family,
						"attempts", totalAttempts,
					)
				}
				return &Result{
					Response:         resp,
					Connection:       bound.Connection,
					Provider:         family,
					OriginalProvider: original,
					Fallback:         i > 0,
					Attempts:         totalAttempts,
				}, nil
			}
			lastErr = err

			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}

			wait, retryable := e.disposition(err, attempt)
			if !retryable {
				e.logger.WarnContext(ctx, "Provider failed permanently, trying next",
					"provider", family, "attempt", attempt, "error", err)
				break
			}
			if attempt == maxAttempts {
				break
			}

			e.logger.InfoContext(ctx, "Retrying after backoff",
				"provider", family, "attempt", attempt, "wait", wait, "error", err)
			if err := e.sleep(ctx, wait); err != nil {
				return nil, err
			}
		}

		e.logger.WarnContext(ctx, "Provider exhausted",
			"provider", family, "error", lastErr)
	}

	return nil, &ExhaustedError{Attempts: totalAttempts, Providers: tried, Cause: lastErr}
}

// disposition classifies an upstream error into (wait, retryable).
// Rate limits honour Retry-After when it exceeds the backoff.
func (e *Executor) disposition(err error, attempt int) (time.Duration, bool) {
	var (
		authErr *providers.AuthError
		badErr  *providers.BadRequestError
		rateErr *providers.RateLimitError
	)
	switch {
	case errors.As(err, &authErr), errors.As(err, &badErr):
		return 0, false
	case errors.As(err, &rateErr):
		wait := e.Backoff(attempt)
		if rateErr.RetryAfter > wait {
			wait = rateErr.RetryAfter
		}
		return wait, true
	default:
		// Transient (5xx/network) and anything unclassified.
		return e.Backoff(attempt), true
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
