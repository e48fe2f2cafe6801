package providers

import (
	"context"
	"log/slog"
	"sync"
)

// RateLookup resolves per-million-token USD rates for a model on the
// connection the adapter is bound to. ok is false when no rate is
// configured.
type RateLookup func(ctx context.Context, model string) (inputPerMTok, outputPerMTok float64, ok bool, err error)

// CostModel turns token usage into USD using a RateLookup. Unknown models
// price as zero (correct for local models, an undercount for unknown cloud
// models) and are warned about once per model.
type CostModel struct {
	lookup RateLookup
	logger *slog.Logger

	mu     sync.Mutex
	warned map[string]struct{}
}

// NewCostModel creates a cost model. A nil lookup prices everything at
// zero without warnings (local adapters).
func NewCostModel(lookup RateLookup, logger *slog.Logger) *CostModel {
	if logger == nil {
		logger = slog.Default()
	}
	return &CostModel{
		lookup: lookup,
		logger: logger,
		warned: make(map[string]struct{}),
	}
}

// Cost computes (prompt × input + completion × output) / 1e6 for the
// model's configured rates. Lookup failures degrade to zero cost; the call
// itself already succeeded and must not fail over bookkeeping.
func (c *CostModel) Cost(ctx context.Context, model string, promptTokens, completionTokens int) float64 {
	if c == nil || c.lookup == nil {
		return 0
	}

	input, output, ok, err := c.lookup(ctx, model)
	if err != nil {
		c.logger.Error("Cost rate lookup failed, pricing as zero",
			"model", model, "error", err)
		return 0
	}
	if !ok {
		c.warnOnce(model)
		return 0
	}

	return (float64(promptTokens)*input + float64(completionTokens)*output) / 1e6
}

func (c *CostModel) warnOnce(model string) {
	c.mu.Lock()
	_, seen := c.warned[model]
	if !seen {
		c.warned[model] = struct{}{}
	}
	c.mu.Unlock()

	if !seen {
		c.logger.Warn("No cost configuration for model, pricing as zero",
			"model", model)
	}
}
