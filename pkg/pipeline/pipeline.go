// Package pipeline is the single path every completion request travels:
// alias resolution, validation, routing, budget pre-flight, execution with
// retry and fallback, accounting, and health feedback. Exactly one request
// record is written per invocation, success or not.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"openclaw/hub/pkg/budget"
	"openclaw/hub/pkg/executor"
	"openclaw/hub/pkg/health"
	"openclaw/hub/pkg/providers"
	"openclaw/hub/pkg/routing"
	"openclaw/hub/pkg/storage"
)

// LocalAlias is the model alias that resolves to the configured default
// local model.
const LocalAlias = "local"

// NoProviderError means no enabled connection can serve the model's
// family. Maps to HTTP 503.
type NoProviderError struct {
	Model  string
	Family string
}

// Error implements the error interface.
func (e *NoProviderError) Error() string {
	return fmt.Sprintf("no enabled %s connection for model %q", e.Family, e.Model)
}

// Response is a completion plus its routing annotations.
type Response struct {
	*providers.CompletionResponse

	RequestID        string `json:"request_id"`
	Provider         string `json:"provider"`
	OriginalProvider string `json:"original_provider,omitempty"`
	Fallback         bool   `json:"fallback"`
	Attempts         int    `json:"attempts"`
}

// Pipeline wires the stages together.
type Pipeline struct {
	store             *storage.Store
	router            *routing.Router
	enforcer          *budget.Enforcer
	executor          *executor.Executor
	factory           *Factory
	tracker           *health.Tracker
	defaultLocalModel string
	logger            *slog.Logger
}

// New creates a pipeline.
func New(store *storage.Store, router *routing.Router, enforcer *budget.Enforcer, exec *executor.Executor, factory *Factory, tracker *health.Tracker, defaultLocalModel string, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		store:             store,
		router:            router,
		enforcer:          enforcer,
		executor:          exec,
		factory:           factory,
		tracker:           tracker,
		defaultLocalModel: defaultLocalModel,
		logger:            logger,
	}
}

// ResolveModel translates aliases to concrete model names.
func (p *Pipeline) ResolveModel(model string) string {
	if model == LocalAlias {
		return p.defaultLocalModel
	}
	return model
}

// Complete runs one request through the full pipeline. The returned error
// is one of the typed errors from validation, routing, budget, or
// execution; the HTTP layer maps them to status codes.
func (p *Pipeline) Complete(ctx context.Context, req *providers.CompletionRequest) (*Response, error) {
	start := time.Now()
	req.Model = p.ResolveModel(req.Model)

	if err := req.Validate(); err != nil {
		return nil, err
	}

	conns, err := p.store.ListConnections(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}

	chain := p.router.Route(req.Model, conns)
	if len(chain) == 0 {
		return nil, &NoProviderError{Model: req.Model, Family: p.router.FamilyFor(req.Model)}
	}
	primary := chain[0]

	// Budget pre-flight applies to the primary only: a fallback chosen at
	// execution time is serving precisely because the primary path failed,
	// and blocking it on the primary's budget would leave no path at all.
	if err := p.enforcer.Check(ctx, primary); err != nil {
		var exceeded *budget.ExceededError
		if errors.As(err, &exceeded) {
			p.record(ctx, req, primary.Service, start, nil, err)
		}
		return nil, err
	}

	bound, err := p.bind(chain)
	if err != nil {
		p.record(ctx, req, primary.Service, start, nil, err)
		return nil, err
	}

	result, err := p.executor.Execute(ctx, bound, req)
	if err != nil {
		p.recordHealthFailure(err, primary.Service)
		p.record(ctx, req, primary.Service, start, nil, err)
		return nil, err
	}

	p.tracker.RecordSuccess(result.Connection.Service, time.Duration(result.Response.LatencyMS)*time.Millisecond)
	id := p.record(ctx, req, result.Connection.Service, start, result.Response, nil)

	return &Response{
		CompletionResponse: result.Response,
		RequestID:          id,
		Provider:           result.Provider,
		OriginalProvider:   result.OriginalProvider,
		Fallback:           result.Fallback,
		Attempts:           result.Attempts,
	}, nil
}

// Models lists available models per enabled provider family. Partial
// results are fine: an unreachable provider contributes an empty list.
func (p *Pipeline) Models(ctx context.Context) (map[string][]string, error) {
	conns, err := p.store.ListConnections(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}

	out := make(map[string][]string)
	for _, conn := range conns {
		if !conn.Enabled {
			continue
		}
		if _, done := out[conn.Service]; done {
			continue
		}

		adapter, err := p.factory.Bind(conn)
		if err != nil {
			p.logger.WarnContext(ctx, "Skipping connection in model listing",
				"connection_id", conn.ID, "error", err)
			continue
		}
		models, err := adapter.ListModels(ctx)
		if err != nil {
			p.logger.WarnContext(ctx, "Model listing failed for provider",
				"provider", conn.Service, "error", err)
			models = nil
		}
		out[conn.Service] = models
		adapter.Close()
	}
	return out, nil
}

// Probe actively checks the routed connection for a provider family. Used
// by the monitor's probe loop.
func (p *Pipeline) Probe(ctx context.Context, service string) error {
	conns, err := p.store.ListConnections(ctx)
	if err != nil {
		return fmt.Errorf("failed to list connections: %w", err)
	}

	for _, conn := range conns {
		if !conn.Enabled || conn.Service != service {
			continue
		}
		adapter, err := p.factory.Bind(conn)
		if err != nil {
			return err
		}
		defer adapter.Close()

		result, err := adapter.Probe(ctx)
		if err != nil {
			return err
		}
		if !result.OK {
			return fmt.Errorf("probe of %s reported unhealthy", service)
		}
		return nil
	}
	return &NoProviderError{Family: service}
}

func (p *Pipeline) bind(chain []*storage.Connection) ([]executor.Bound, error) {
	bound := make([]executor.Bound, 0, len(chain))
	for _, conn := range chain {
		adapter, err := p.factory.Bind(conn)
		if err != nil {
			// A broken primary fails the request; a broken fallback just
			// shortens the chain.
			if len(bound) == 0 {
				return nil, err
			}
			p.logger.Warn("Skipping unbindable fallback connection",
				"connection_id", conn.ID, "error", err)
			continue
		}
		bound = append(bound, executor.Bound{Provider: adapter, Connection: conn})
	}
	return bound, nil
}

// recordHealthFailure feeds executor failures into the tracker for every
// provider the chain tried.
func (p *Pipeline) recordHealthFailure(err error, primary string) {
	var exhausted *executor.ExhaustedError
	if errors.As(err, &exhausted) {
		for _, family := range exhausted.Providers {
			p.tracker.RecordFailure(family)
		}
		return
	}
	if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		p.tracker.RecordFailure(primary)
	}
}

// record writes the one accounting row for this invocation. Persistence
// failures are logged loudly and never fail the caller: the user already
// has (or is owed) their response.
func (p *Pipeline) record(ctx context.Context, req *providers.CompletionRequest, provider string, start time.Time, resp *providers.CompletionResponse, reqErr error) string {
	row := &storage.Request{
		Model:     req.Model,
		Provider:  provider,
		LatencyMS: time.Since(start).Milliseconds(),
		Success:   reqErr == nil,
	}
	if resp != nil {
		row.PromptTokens = resp.PromptTokens
		row.CompletionTokens = resp.CompletionTokens
		row.CostUSD = resp.CostUSD
		row.LatencyMS = resp.LatencyMS
	}
	if reqErr != nil {
		row.Error = reqErr.Error()
	}

	// Detached context: a cancelled request must still be accounted for.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := p.store.InsertRequest(persistCtx, row); err != nil {
		p.logger.ErrorContext(ctx, "FAILED TO PERSIST REQUEST RECORD, accounting row lost",
			"model", req.Model,
			"provider", provider,
			"cost_usd", row.CostUSD,
			"error", err,
		)
	}
	return row.ID
}
