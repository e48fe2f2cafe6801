// Package dashboard assembles the read models behind the dashboard API.
// It only reads: every view is derived from the store, the vault (for
// masked credentials) and the live health tracker.
package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"openclaw/hub/pkg/health"
	"openclaw/hub/pkg/storage"
	"openclaw/hub/pkg/vault"
)

// Connection-status derivation thresholds over the last 24 hours.
const (
	statusErrorRateThreshold = 0.05
	statusLatencyThresholdMS = 2000
)

// Stats is the tile row at the top of the dashboard.
type Stats struct {
	Requests24h   int64   `json:"requests_24h"`
	Errors24h     int64   `json:"errors_24h"`
	ErrorRate     float64 `json:"error_rate"`
	Tokens24h     int64   `json:"tokens_24h"`
	CostUSD24h    float64 `json:"cost_usd_24h"`
	AvgLatencyMS  float64 `json:"avg_latency_ms"`
	ActiveAlerts  int     `json:"active_alerts"`
	Connections   int     `json:"connections"`
	EnabledCount  int     `json:"enabled_connections"`

	// Budget is the global spend snapshot, repeated here so the overview
	// needs a single fetch.
	Budget []WindowSnapshot `json:"budget"`
}

// WindowSnapshot is one global budget window: the display-only limit
// against all-provider spend.
type WindowSnapshot struct {
	Window   storage.Window `json:"window"`
	LimitUSD float64        `json:"limit_usd"`
	SpentUSD float64        `json:"spent_usd"`
	Percent  float64        `json:"percent"`
}

// ConnectionView is a connection as the dashboard shows it: credential
// masked, status derived.
type ConnectionView struct {
	*storage.Connection

	MaskedKey string `json:"api_key_masked"`
	Status    string `json:"status"`

	Requests24h int64   `json:"requests_24h"`
	ErrorRate   float64 `json:"error_rate"`
	CostUSD24h  float64 `json:"cost_usd_24h"`
}

// Dashboard serves the read models.
type Dashboard struct {
	store   *storage.Store
	vault   *vault.Vault
	tracker *health.Tracker
	logger  *slog.Logger
}

// New creates a dashboard.
func New(store *storage.Store, v *vault.Vault, tracker *health.Tracker, logger *slog.Logger) *Dashboard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dashboard{store: store, vault: v, tracker: tracker, logger: logger}
}

// Stats builds the tile row.
func (d *Dashboard) Stats(ctx context.Context) (*Stats, error) {
	day, err := d.store.Stats24h(ctx)
	if err != nil {
		return nil, err
	}
	active, err := d.store.ListActiveAlerts(ctx)
	if err != nil {
		return nil, err
	}
	conns, err := d.store.ListConnections(ctx)
	if err != nil {
		return nil, err
	}

	enabled := 0
	for _, c := range conns {
		if c.Enabled {
			enabled++
		}
	}

	budget, err := d.Budget(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{
		Requests24h:  day.Requests,
		Errors24h:    day.Errors,
		ErrorRate:    day.ErrorRate(),
		Tokens24h:    day.PromptTokens + day.CompletionTokens,
		CostUSD24h:   day.CostUSD,
		AvgLatencyMS: day.AvgLatencyMS,
		ActiveAlerts: len(active),
		Connections:  len(conns),
		EnabledCount: enabled,
		Budget:       budget,
	}, nil
}

// Budget builds the global budget snapshot. These limits are display
// defaults only; enforcement is per-connection.
func (d *Dashboard) Budget(ctx context.Context) ([]WindowSnapshot, error) {
	limits, err := d.store.GetBudgetLimits(ctx)
	if err != nil {
		return nil, err
	}

	limitFor := map[storage.Window]float64{
		storage.WindowDaily:   limits.DailyUSD,
		storage.WindowWeekly:  limits.WeeklyUSD,
		storage.WindowMonthly: limits.MonthlyUSD,
	}

	snapshots := make([]WindowSnapshot, 0, 3)
	for _, w := range storage.Windows() {
		spent, err := d.store.TotalSpend(ctx, w)
		if err != nil {
			return nil, err
		}
		snap := WindowSnapshot{Window: w, LimitUSD: limitFor[w], SpentUSD: spent}
		if snap.LimitUSD > 0 {
			snap.Percent = spent / snap.LimitUSD * 100
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, nil
}

// Usage returns the per-day, per-provider time series.
func (d *Dashboard) Usage(ctx context.Context, granularity string, anchor time.Time) ([]storage.UsagePoint, error) {
	return d.store.UsageTimeseries(ctx, granularity, anchor)
}

// RecentRequests returns the newest accounting rows.
func (d *Dashboard) RecentRequests(ctx context.Context, limit int) ([]*storage.Request, error) {
	return d.store.RecentRequests(ctx, limit)
}

// Connections builds the connection list with masked credentials and
// derived status.
func (d *Dashboard) Connections(ctx context.Context) ([]*ConnectionView, error) {
	conns, err := d.store.ListConnections(ctx)
	if err != nil {
		return nil, err
	}

	views := make([]*ConnectionView, 0, len(conns))
	for _, conn := range conns {
		view := &ConnectionView{Connection: conn, MaskedKey: d.maskCredential(conn)}

		stats, err := d.store.ServiceStats24h(ctx, conn.Service)
		if err != nil {
			return nil, fmt.Errorf("failed to derive stats for connection %d: %w", conn.ID, err)
		}
		view.Requests24h = stats.Requests
		view.ErrorRate = stats.ErrorRate()
		view.CostUSD24h = stats.CostUSD
		view.Status = d.deriveStatus(conn, stats)

		views = append(views, view)
	}
	return views, nil
}

// Connection builds the view for one connection.
func (d *Dashboard) Connection(ctx context.Context, id int64) (*ConnectionView, error) {
	conn, err := d.store.GetConnection(ctx, id)
	if err != nil {
		return nil, err
	}
	stats, err := d.store.ServiceStats24h(ctx, conn.Service)
	if err != nil {
		return nil, err
	}
	return &ConnectionView{
		Connection:  conn,
		MaskedKey:   d.maskCredential(conn),
		Status:      d.deriveStatus(conn, stats),
		Requests24h: stats.Requests,
		ErrorRate:   stats.ErrorRate(),
		CostUSD24h:  stats.CostUSD,
	}, nil
}

// deriveStatus folds the live health state and 24h traffic into the
// three-valued status the dashboard shows.
func (d *Dashboard) deriveStatus(conn *storage.Connection, stats storage.DayStats) string {
	if !conn.Enabled {
		return "offline"
	}
	if d.tracker != nil && d.tracker.StateOf(conn.Service) == health.StateError {
		return "offline"
	}
	if d.tracker != nil && d.tracker.StateOf(conn.Service) == health.StateDegraded {
		return "degraded"
	}
	if stats.ErrorRate() > statusErrorRateThreshold || stats.AvgLatencyMS >= statusLatencyThresholdMS {
		return "degraded"
	}
	return "healthy"
}

// maskCredential decrypts only to mask. An undecryptable credential masks
// as empty rather than failing the whole view.
func (d *Dashboard) maskCredential(conn *storage.Connection) string {
	if conn.APIKeyEncrypted == "" {
		return ""
	}
	plaintext, err := d.vault.Decrypt(conn.APIKeyEncrypted)
	if err != nil {
		d.logger.Warn("Failed to decrypt credential for masking",
			"connection_id", conn.ID, "error", err)
		return ""
	}
	return vault.Mask(plaintext)
}
