package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{Path: filepath.Join(t.TempDir(), "hub.db")}, nil)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_BootstrapIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hub.db")
	ctx := context.Background()

	s1, err := Open(Config{Path: path}, nil)
	if err != nil {
		t.Fatalf("first open failed: %v", err)
	}
	conn := &Connection{Name: "local", Service: "ollama", Enabled: true}
	if err := s1.CreateConnection(ctx, conn); err != nil {
		t.Fatalf("failed to create connection: %v", err)
	}
	s1.Close()

	// Re-running bootstrap on an initialised database loses nothing.
	s2, err := Open(Config{Path: path}, nil)
	if err != nil {
		t.Fatalf("second open failed: %v", err)
	}
	defer s2.Close()

	conns, err := s2.ListConnections(ctx)
	if err != nil {
		t.Fatalf("failed to list connections: %v", err)
	}
	if len(conns) != 1 || conns[0].Name != "local" {
		t.Errorf("expected the original row to survive, got %+v", conns)
	}
}

func TestConnection_CRUDAndToggle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conn := &Connection{
		Name:            "openai-prod",
		Service:         "openai",
		Category:        "llm",
		APIKeyEncrypted: "ciphertext-1",
		Enabled:         true,
		DailyLimitUSD:   5,
	}
	if err := s.CreateConnection(ctx, conn); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if conn.ID == 0 {
		t.Fatal("expected assigned id")
	}

	got, err := s.GetConnection(ctx, conn.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.APIKeyEncrypted != "ciphertext-1" || got.DailyLimitUSD != 5 {
		t.Errorf("unexpected row: %+v", got)
	}

	// Toggle disabled then enabled restores the identical row modulo
	// updated_at.
	enabled, err := s.ToggleConnection(ctx, conn.ID)
	if err != nil || enabled {
		t.Fatalf("expected toggle to disable, got enabled=%v err=%v", enabled, err)
	}
	enabled, err = s.ToggleConnection(ctx, conn.ID)
	if err != nil || !enabled {
		t.Fatalf("expected toggle to enable, got enabled=%v err=%v", enabled, err)
	}

	after, err := s.GetConnection(ctx, conn.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	after.UpdatedAt = got.UpdatedAt
	if *after != *got {
		t.Errorf("toggle round trip changed the row:\n got %+v\nwant %+v", after, got)
	}

	if _, err := s.GetConnection(ctx, 9999); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateConnection_EmptyCredentialKeepsStored(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conn := &Connection{Name: "anthropic", Service: "anthropic", APIKeyEncrypted: "sealed-key", Enabled: true}
	if err := s.CreateConnection(ctx, conn); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	conn.Name = "anthropic-renamed"
	conn.APIKeyEncrypted = ""
	if err := s.UpdateConnection(ctx, conn); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	got, err := s.GetConnection(ctx, conn.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Name != "anthropic-renamed" {
		t.Errorf("expected rename applied, got %q", got.Name)
	}
	if got.APIKeyEncrypted != "sealed-key" {
		t.Errorf("empty credential should keep stored value, got %q", got.APIKeyEncrypted)
	}
}

func TestDeleteConnection_CascadesCostConfigs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conn := &Connection{Name: "openai", Service: "openai", Enabled: true}
	if err := s.CreateConnection(ctx, conn); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// Seeded defaults plus one explicit rate.
	cc := &CostConfig{ConnectionID: &conn.ID, Model: "gpt-4-turbo", InputPerMTok: 10, OutputPerMTok: 30}
	if err := s.UpsertCostConfig(ctx, cc); err != nil {
		t.Fatalf("upsert cost config failed: %v", err)
	}

	configs, err := s.ListCostConfigs(ctx)
	if err != nil {
		t.Fatalf("list cost configs failed: %v", err)
	}
	if len(configs) == 0 {
		t.Fatal("expected seeded cost configs")
	}

	if err := s.DeleteConnectionCascade(ctx, conn.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	configs, err = s.ListCostConfigs(ctx)
	if err != nil {
		t.Fatalf("list cost configs failed: %v", err)
	}
	for _, c := range configs {
		if c.ConnectionID != nil && *c.ConnectionID == conn.ID {
			t.Errorf("cost config survived cascade: %+v", c)
		}
	}
}

func TestBudgetLimits_SeededOnFirstRead(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	limits, err := s.GetBudgetLimits(ctx)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if limits != DefaultBudgetLimits {
		t.Errorf("expected defaults %+v, got %+v", DefaultBudgetLimits, limits)
	}

	limits.DailyUSD = 10
	if err := s.PutBudgetLimits(ctx, limits); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	got, err := s.GetBudgetLimits(ctx)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.DailyUSD != 10 || got.WeeklyUSD != 25 {
		t.Errorf("unexpected limits after put: %+v", got)
	}
}

func TestCostRate_ConnectionRowWinsOverLegacy(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conn := &Connection{Name: "openai", Service: "openai", Enabled: true}
	if err := s.CreateConnection(ctx, conn); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	legacy := &CostConfig{Model: "gpt-4o", InputPerMTok: 1, OutputPerMTok: 2}
	if err := s.UpsertCostConfig(ctx, legacy); err != nil {
		t.Fatalf("upsert legacy failed: %v", err)
	}
	scoped := &CostConfig{ConnectionID: &conn.ID, Model: "gpt-4o", InputPerMTok: 2.5, OutputPerMTok: 10}
	if err := s.UpsertCostConfig(ctx, scoped); err != nil {
		t.Fatalf("upsert scoped failed: %v", err)
	}

	in, out, ok, err := s.CostRate(ctx, conn.ID, "gpt-4o")
	if err != nil || !ok {
		t.Fatalf("cost rate lookup failed: ok=%v err=%v", ok, err)
	}
	if in != 2.5 || out != 10 {
		t.Errorf("expected connection-scoped rates, got in=%v out=%v", in, out)
	}

	// Unknown model prices as free.
	_, _, ok, err = s.CostRate(ctx, conn.ID, "qwen2.5:32b")
	if err != nil {
		t.Fatalf("cost rate lookup failed: %v", err)
	}
	if ok {
		t.Error("expected no rate for unknown model")
	}
}

func TestAggregateSpend_WindowsAndSources(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	insert := func(age time.Duration, provider string, cost float64) {
		t.Helper()
		if err := s.InsertRequest(ctx, &Request{
			CreatedAt: now.Add(-age), Model: "m", Provider: provider,
			CostUSD: cost, Success: true,
		}); err != nil {
			t.Fatalf("insert request failed: %v", err)
		}
	}

	insert(time.Hour, "openai", 1.00)
	insert(3*24*time.Hour, "openai", 2.00)
	insert(10*24*time.Hour, "openai", 4.00)
	insert(time.Hour, "anthropic", 8.00)

	if err := s.InsertAPICall(ctx, &APICall{
		CreatedAt: now.Add(-time.Hour), Service: "openai",
		Operation: "embedding", CostUSD: 0.50, Success: true,
	}); err != nil {
		t.Fatalf("insert api call failed: %v", err)
	}

	tests := []struct {
		window Window
		want   float64
	}{
		{WindowDaily, 1.50},
		{WindowWeekly, 3.50},
		{WindowMonthly, 7.50},
	}
	for _, tt := range tests {
		got, err := s.AggregateSpend(ctx, "openai", tt.window)
		if err != nil {
			t.Fatalf("aggregate %s failed: %v", tt.window, err)
		}
		if got != tt.want {
			t.Errorf("aggregate %s = %v, want %v", tt.window, got, tt.want)
		}
	}
}

func TestRecentRequestsAndOutcomes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i, success := range []bool{true, false, false, false} {
		if err := s.InsertRequest(ctx, &Request{
			CreatedAt: now.Add(time.Duration(i-10) * time.Minute),
			Model:     "gpt-4o", Provider: "openai", Success: success,
			LatencyMS: int64(100 * (i + 1)),
		}); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}

	recent, err := s.RecentRequests(ctx, 2)
	if err != nil {
		t.Fatalf("recent failed: %v", err)
	}
	if len(recent) != 2 || recent[0].CreatedAt.Before(recent[1].CreatedAt) {
		t.Errorf("expected newest first, got %+v", recent)
	}

	outcomes, err := s.RecentOutcomes(ctx, "openai", now.Add(-10*time.Minute), 3)
	if err != nil {
		t.Fatalf("outcomes failed: %v", err)
	}
	if len(outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(outcomes))
	}
	for i, ok := range outcomes {
		if ok {
			t.Errorf("outcome %d: expected failure (newest three are failures)", i)
		}
	}

	latencies, err := s.SuccessLatencies(ctx, "openai", 10, 0)
	if err != nil {
		t.Fatalf("latencies failed: %v", err)
	}
	if len(latencies) != 1 || latencies[0] != 100 {
		t.Errorf("expected single success latency 100, got %v", latencies)
	}
}

func TestUsageTimeseries_GroupsByDayAndProvider(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, r := range []struct {
		age      time.Duration
		provider string
		tokens   int
	}{
		{2 * time.Hour, "openai", 100},
		{2 * time.Hour, "openai", 50},
		{2 * time.Hour, "ollama", 10},
	} {
		if err := s.InsertRequest(ctx, &Request{
			CreatedAt: now.Add(-r.age), Model: "m", Provider: r.provider,
			PromptTokens: r.tokens, Success: true,
		}); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}

	points, err := s.UsageTimeseries(ctx, "daily", time.Time{})
	if err != nil {
		t.Fatalf("timeseries failed: %v", err)
	}

	byProvider := map[string]int64{}
	for _, p := range points {
		byProvider[p.Provider] += p.Tokens
	}
	if byProvider["openai"] != 150 || byProvider["ollama"] != 10 {
		t.Errorf("unexpected token sums: %v", byProvider)
	}
}

// A row written this very second must show up in the daily series: the
// window's exclusive upper bound has to clear the current second.
func TestUsageTimeseries_IncludesJustWrittenRows(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.InsertRequest(ctx, &Request{
		Model: "gpt-4o", Provider: "openai", PromptTokens: 10, Success: true,
	}); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	points, err := s.UsageTimeseries(ctx, "daily", time.Time{})
	if err != nil {
		t.Fatalf("timeseries failed: %v", err)
	}
	if len(points) != 1 || points[0].Requests != 1 {
		t.Fatalf("expected the fresh row in the daily series, got %+v", points)
	}
}

func TestStats24h(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := s.InsertRequest(ctx, &Request{
		CreatedAt: now.Add(-time.Hour), Model: "m", Provider: "openai",
		PromptTokens: 10, CompletionTokens: 20, CostUSD: 0.25, LatencyMS: 200, Success: true,
	}); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if err := s.InsertRequest(ctx, &Request{
		CreatedAt: now.Add(-time.Hour), Model: "m", Provider: "openai",
		LatencyMS: 400, Success: false, Error: "boom",
	}); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	stats, err := s.Stats24h(ctx)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.Requests != 2 || stats.Errors != 1 {
		t.Errorf("unexpected counts: %+v", stats)
	}
	if stats.PromptTokens != 10 || stats.CompletionTokens != 20 {
		t.Errorf("unexpected tokens: %+v", stats)
	}
	if stats.CostUSD != 0.25 || stats.AvgLatencyMS != 300 {
		t.Errorf("unexpected cost/latency: %+v", stats)
	}
	if stats.ErrorRate() != 0.5 {
		t.Errorf("unexpected error rate: %v", stats.ErrorRate())
	}
}

func TestAlerts_DedupAndLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alert := &Alert{ConnectionID: 1, Kind: AlertConsecutiveErrors, Severity: "error", Message: "3 failures"}
	created, err := s.InsertActiveAlert(ctx, alert)
	if err != nil || !created {
		t.Fatalf("expected first insert to create, got created=%v err=%v", created, err)
	}

	// Second insert with the same dedup key is a no-op while active.
	dup := &Alert{ConnectionID: 1, Kind: AlertConsecutiveErrors, Severity: "error", Message: "again"}
	created, err = s.InsertActiveAlert(ctx, dup)
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if created {
		t.Error("expected duplicate active alert to be suppressed")
	}

	// Different kind is a different dedup key.
	other := &Alert{ConnectionID: 1, Kind: AlertLatencySpike, Severity: "warning", Message: "slow"}
	created, err = s.InsertActiveAlert(ctx, other)
	if err != nil || !created {
		t.Fatalf("expected different kind to insert, got created=%v err=%v", created, err)
	}

	active, err := s.ListActiveAlerts(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("expected 2 active alerts, got %d", len(active))
	}

	resolved, err := s.ResolveAlert(ctx, 1, AlertConsecutiveErrors)
	if err != nil || !resolved {
		t.Fatalf("expected resolve, got resolved=%v err=%v", resolved, err)
	}

	// Within the 15-minute dedup window a resolved alert still suppresses a
	// new one.
	created, err = s.InsertActiveAlert(ctx, &Alert{ConnectionID: 1, Kind: AlertConsecutiveErrors, Severity: "error", Message: "again"})
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if created {
		t.Error("expected dedup window to suppress insert after resolve")
	}

	if err := s.DismissAlert(ctx, other.ID); err != nil {
		t.Fatalf("dismiss failed: %v", err)
	}
	active, err = s.ListActiveAlerts(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("expected no active alerts, got %d", len(active))
	}

	all, err := s.ListAlerts(ctx, 10)
	if err != nil {
		t.Fatalf("list all failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 alerts total, got %d", len(all))
	}
}

func TestBudgetOverride(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conn := &Connection{Name: "openai", Service: "openai", Enabled: true, DailyLimitUSD: 1}
	if err := s.CreateConnection(ctx, conn); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	until, err := s.SetBudgetOverride(ctx, conn.ID, time.Hour)
	if err != nil {
		t.Fatalf("override failed: %v", err)
	}
	if time.Until(until) < 55*time.Minute {
		t.Errorf("unexpected override expiry: %v", until)
	}

	got, err := s.GetConnection(ctx, conn.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !got.OverrideActive(time.Now()) {
		t.Error("expected override to be active")
	}
	if got.OverrideActive(time.Now().Add(2 * time.Hour)) {
		t.Error("expected override to expire")
	}
}
