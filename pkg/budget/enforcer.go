// Package budget enforces per-connection USD limits before any upstream
// call is made. Checks are best-effort by design: no lock is held between
// pre-flight and the eventual cost write, so concurrent requests can
// overshoot by at most concurrency × single-request cost.
package budget

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"openclaw/hub/pkg/storage"
)

// SpendReader is the slice of the store the enforcer needs.
type SpendReader interface {
	AggregateSpend(ctx context.Context, service string, window storage.Window) (float64, error)
}

// ExceededError reports a budget window at or over its limit. Maps to
// HTTP 429.
type ExceededError struct {
	// ConnectionID is the connection whose budget is exhausted
	ConnectionID int64

	// Window is the exhausted budget window
	Window storage.Window

	// Limit is the configured USD limit for the window
	Limit float64

	// Spent is the current spend in the window
	Spent float64
}

// Error implements the error interface.
func (e *ExceededError) Error() string {
	return fmt.Sprintf("budget exceeded for connection %d: %s spend %.4f >= limit %.4f",
		e.ConnectionID, e.Window, e.Spent, e.Limit)
}

// WindowStatus is one window's standing, used by the alert check loop and
// the dashboard budget snapshot.
type WindowStatus struct {
	Window  storage.Window `json:"window"`
	Limit   float64        `json:"limit"`
	Spent   float64        `json:"spent"`
	Percent float64        `json:"percent"`
}

// Enforcer runs pre-flight budget checks against live spend aggregates.
type Enforcer struct {
	spend  SpendReader
	logger *slog.Logger
}

// New creates an enforcer.
func New(spend SpendReader, logger *slog.Logger) *Enforcer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Enforcer{spend: spend, logger: logger}
}

// Check verifies every non-zero window of the connection. A future
// budget_override_until suppresses all checks; an expired one is
// indistinguishable from no override.
func (e *Enforcer) Check(ctx context.Context, conn *storage.Connection) error {
	now := time.Now()
	if conn.OverrideActive(now) {
		e.logger.InfoContext(ctx, "Budget override active, skipping enforcement",
			"connection_id", conn.ID,
			"override_until", conn.BudgetOverrideUntil,
		)
		return nil
	}

	for _, w := range storage.Windows() {
		limit := conn.LimitFor(w)
		if limit <= 0 {
			continue
		}

		spent, err := e.spend.AggregateSpend(ctx, conn.Service, w)
		if err != nil {
			return fmt.Errorf("failed to compute %s spend: %w", w, err)
		}
		if spent >= limit {
			return &ExceededError{
				ConnectionID: conn.ID,
				Window:       w,
				Limit:        limit,
				Spent:        spent,
			}
		}
	}
	return nil
}

// Report returns the standing of every non-zero window without enforcing.
func (e *Enforcer) Report(ctx context.Context, conn *storage.Connection) ([]WindowStatus, error) {
	var statuses []WindowStatus
	for _, w := range storage.Windows() {
		limit := conn.LimitFor(w)
		if limit <= 0 {
			continue
		}

		spent, err := e.spend.AggregateSpend(ctx, conn.Service, w)
		if err != nil {
			return nil, fmt.Errorf("failed to compute %s spend: %w", w, err)
		}
		statuses = append(statuses, WindowStatus{
			Window:  w,
			Limit:   limit,
			Spent:   spent,
			Percent: spent / limit * 100,
		})
	}
	return statuses, nil
}
