package monitor

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"openclaw/hub/pkg/alerts"
	"openclaw/hub/pkg/budget"
	"openclaw/hub/pkg/health"
	"openclaw/hub/pkg/storage"
)

func testStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.Open(storage.Config{
		Path:     filepath.Join(t.TempDir(), "hub.db"),
		PoolSize: 2,
	}, nil)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func seedConnection(t *testing.T, store *storage.Store, daily float64) *storage.Connection {
	t.Helper()
	conn := &storage.Connection{
		Name:            "openai-main",
		Service:         "openai",
		APIKeyEncrypted: "enc",
		Enabled:         true,
		DailyLimitUSD:   daily,
	}
	if err := store.CreateConnection(context.Background(), conn); err != nil {
		t.Fatalf("failed to seed connection: %v", err)
	}
	return conn
}

func insertRequest(t *testing.T, store *storage.Store, at time.Time, success bool, latencyMS int64, cost float64) {
	t.Helper()
	err := store.InsertRequest(context.Background(), &storage.Request{
		CreatedAt: at,
		Model:     "gpt-4o",
		Provider:  "openai",
		CostUSD:   cost,
		LatencyMS: latencyMS,
		Success:   success,
	})
	if err != nil {
		t.Fatalf("failed to insert request: %v", err)
	}
}

func newTestMonitor(t *testing.T, store *storage.Store, probe ProbeFunc) *Monitor {
	t.Helper()
	cfg := Config{
		ProbePeriod:               30 * time.Second,
		ProbeTimeout:              5 * time.Second,
		CheckPeriod:               time.Minute,
		ConsecutiveErrorThreshold: 3,
		LatencyMultiplier:         3.0,
		BudgetThresholdPercent:    90,
	}
	tracker := health.NewTracker(3, 3.0, nil)
	enforcer := budget.New(store, nil)
	mgr := alerts.NewManager(store, nil, nil)
	return New(cfg, store, tracker, enforcer, mgr, probe, nil)
}

func activeKinds(t *testing.T, store *storage.Store) map[storage.AlertKind]bool {
	t.Helper()
	active, err := store.ListActiveAlerts(context.Background())
	if err != nil {
		t.Fatalf("failed to list alerts: %v", err)
	}
	kinds := make(map[storage.AlertKind]bool)
	for _, a := range active {
		kinds[a.Kind] = true
	}
	return kinds
}

func TestConsecutiveErrorsRaisesAndResolves(t *testing.T) {
	store := testStore(t)
	seedConnection(t, store, 0)
	m := newTestMonitor(t, store, nil)
	ctx := context.Background()
	now := time.Now()

	for i := range 3 {
		insertRequest(t, store, now.Add(-time.Duration(i)*time.Minute), false, 100, 0)
	}

	m.runChecks(ctx)
	active, err := store.ListActiveAlerts(ctx)
	if err != nil {
		t.Fatalf("failed to list alerts: %v", err)
	}
	if len(active) != 1 || active[0].Kind != storage.AlertConsecutiveErrors {
		t.Fatalf("expected consecutive-errors alert, got %+v", active)
	}
	if active[0].Severity != "error" {
		t.Errorf("consecutive-errors severity: got %q, want %q", active[0].Severity, "error")
	}

	// A success at the head of the window stops the condition.
	insertRequest(t, store, now.Add(time.Second), true, 100, 0)
	m.runChecks(ctx)
	if kinds := activeKinds(t, store); kinds[storage.AlertConsecutiveErrors] {
		t.Error("expected consecutive-errors alert to auto-resolve")
	}
}

func TestConsecutiveErrorsIgnoresStaleFailures(t *testing.T) {
	store := testStore(t)
	seedConnection(t, store, 0)
	m := newTestMonitor(t, store, nil)
	now := time.Now()

	// Old failures outside the 10-minute window must not fire.
	for i := range 3 {
		insertRequest(t, store, now.Add(-time.Hour-time.Duration(i)*time.Minute), false, 100, 0)
	}

	m.runChecks(context.Background())
	if kinds := activeKinds(t, store); kinds[storage.AlertConsecutiveErrors] {
		t.Error("stale failures must not raise an alert")
	}
}

func TestLatencySpikeRaises(t *testing.T) {
	store := testStore(t)
	seedConnection(t, store, 0)
	m := newTestMonitor(t, store, nil)
	now := time.Now()

	// 20 baseline successes at 100ms, then 10 recent at 500ms.
	for i := range 20 {
		insertRequest(t, store, now.Add(-time.Duration(40-i)*time.Minute), true, 100, 0)
	}
	for i := range 10 {
		insertRequest(t, store, now.Add(-time.Duration(10-i)*time.Minute), true, 500, 0)
	}

	m.runChecks(context.Background())
	if kinds := activeKinds(t, store); !kinds[storage.AlertLatencySpike] {
		t.Error("expected latency-spike alert")
	}
}

func TestLatencySpikeNeedsFullRecentWindow(t *testing.T) {
	store := testStore(t)
	seedConnection(t, store, 0)
	m := newTestMonitor(t, store, nil)
	now := time.Now()

	for i := range 5 {
		insertRequest(t, store, now.Add(-time.Duration(5-i)*time.Minute), true, 5000, 0)
	}

	m.runChecks(context.Background())
	if kinds := activeKinds(t, store); kinds[storage.AlertLatencySpike] {
		t.Error("too few samples must not raise a latency alert")
	}
}

func TestBudgetThresholdRaises(t *testing.T) {
	store := testStore(t)
	seedConnection(t, store, 10) // $10 daily limit
	m := newTestMonitor(t, store, nil)
	now := time.Now()

	insertRequest(t, store, now.Add(-time.Hour), true, 100, 9.50)

	m.runChecks(context.Background())
	if kinds := activeKinds(t, store); !kinds[storage.AlertBudgetThreshold] {
		t.Error("expected budget-threshold alert at 95%")
	}
}

func TestBudgetUnderThresholdResolves(t *testing.T) {
	store := testStore(t)
	conn := seedConnection(t, store, 10)
	m := newTestMonitor(t, store, nil)
	ctx := context.Background()

	mgr := alerts.NewManager(store, nil, nil)
	err := mgr.Raise(ctx, &storage.Alert{
		ConnectionID: conn.ID,
		Kind:         storage.AlertBudgetThreshold,
		Severity:     "warning",
		Message:      "stale",
	})
	if err != nil {
		t.Fatalf("raise failed: %v", err)
	}

	insertRequest(t, store, time.Now().Add(-time.Hour), true, 100, 0.50)
	m.runChecks(ctx)
	if kinds := activeKinds(t, store); kinds[storage.AlertBudgetThreshold] {
		t.Error("expected budget alert to auto-resolve at 5%")
	}
}

func TestDisabledConnectionSkipped(t *testing.T) {
	store := testStore(t)
	conn := seedConnection(t, store, 0)
	if _, err := store.ToggleConnection(context.Background(), conn.ID); err != nil {
		t.Fatalf("toggle failed: %v", err)
	}
	m := newTestMonitor(t, store, nil)
	now := time.Now()

	for i := range 3 {
		insertRequest(t, store, now.Add(-time.Duration(i)*time.Minute), false, 100, 0)
	}

	m.runChecks(context.Background())
	if kinds := activeKinds(t, store); len(kinds) != 0 {
		t.Errorf("disabled connections must not be checked, got %v", kinds)
	}
}

func TestProbesOnlyUnhealthyProviders(t *testing.T) {
	store := testStore(t)
	var mu sync.Mutex
	var probed []string
	probe := func(ctx context.Context, service string) error {
		mu.Lock()
		probed = append(probed, service)
		mu.Unlock()
		if service == "anthropic" {
			return errors.New("still down")
		}
		return nil
	}
	m := newTestMonitor(t, store, probe)

	m.tracker.RecordSuccess("ollama", 50*time.Millisecond)
	for range 3 {
		m.tracker.RecordFailure("openai")
		m.tracker.RecordFailure("anthropic")
	}

	m.runProbes(context.Background())
	mu.Lock()
	defer mu.Unlock()
	if len(probed) != 2 {
		t.Fatalf("expected 2 probes, got %v", probed)
	}
	for _, s := range probed {
		if s == "ollama" {
			t.Error("healthy provider must not be probed")
		}
	}
}

func TestProbeRecoveryAfterThreeSuccesses(t *testing.T) {
	store := testStore(t)
	probe := func(ctx context.Context, service string) error { return nil }
	m := newTestMonitor(t, store, probe)

	for range 3 {
		m.tracker.RecordFailure("openai")
	}

	for range 3 {
		m.runProbes(context.Background())
	}
	if got := m.tracker.StateOf("openai"); got != health.StateHealthy {
		t.Errorf("expected recovery after 3 probe successes, got %s", got)
	}
}
