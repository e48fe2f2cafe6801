package dashboard

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"openclaw/hub/pkg/health"
	"openclaw/hub/pkg/storage"
	"openclaw/hub/pkg/vault"
)

type fixture struct {
	store     *storage.Store
	vault     *vault.Vault
	tracker   *health.Tracker
	dashboard *Dashboard
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.Open(storage.Config{
		Path:     filepath.Join(t.TempDir(), "hub.db"),
		PoolSize: 2,
	}, nil)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	key, err := vault.GenerateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	v, err := vault.New(key)
	if err != nil {
		t.Fatalf("failed to open vault: %v", err)
	}

	tracker := health.NewTracker(3, 3.0, nil)
	return &fixture{
		store:     store,
		vault:     v,
		tracker:   tracker,
		dashboard: New(store, v, tracker, nil),
	}
}

func (f *fixture) addConnection(t *testing.T, service, apiKey string, enabled bool) *storage.Connection {
	t.Helper()
	var encrypted string
	if apiKey != "" {
		var err error
		encrypted, err = f.vault.Encrypt(apiKey)
		if err != nil {
			t.Fatalf("failed to encrypt: %v", err)
		}
	}
	conn := &storage.Connection{
		Name:            service + "-main",
		Service:         service,
		APIKeyEncrypted: encrypted,
		Enabled:         enabled,
	}
	if err := f.store.CreateConnection(context.Background(), conn); err != nil {
		t.Fatalf("failed to create connection: %v", err)
	}
	return conn
}

func (f *fixture) insertRequest(t *testing.T, service string, success bool, latencyMS int64, cost float64) {
	t.Helper()
	err := f.store.InsertRequest(context.Background(), &storage.Request{
		Model:     "gpt-4o",
		Provider:  service,
		CostUSD:   cost,
		LatencyMS: latencyMS,
		Success:   success,
	})
	if err != nil {
		t.Fatalf("failed to insert request: %v", err)
	}
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	f.addConnection(t, "openai", "sk-test", true)
	f.addConnection(t, "ollama", "", false)
	f.insertRequest(t, "openai", true, 200, 0.50)
	f.insertRequest(t, "openai", true, 400, 0.25)
	f.insertRequest(t, "openai", false, 100, 0)

	stats, err := f.dashboard.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.Requests24h != 3 || stats.Errors24h != 1 {
		t.Errorf("unexpected counts: %+v", stats)
	}
	if stats.CostUSD24h != 0.75 {
		t.Errorf("expected cost 0.75, got %v", stats.CostUSD24h)
	}
	if stats.Connections != 2 || stats.EnabledCount != 1 {
		t.Errorf("unexpected connection counts: %+v", stats)
	}
}

func TestBudgetSnapshotUsesSeededDefaults(t *testing.T) {
	f := newFixture(t)
	f.insertRequest(t, "openai", true, 100, 2.50)

	snaps, err := f.dashboard.Budget(context.Background())
	if err != nil {
		t.Fatalf("budget failed: %v", err)
	}
	if len(snaps) != 3 {
		t.Fatalf("expected 3 windows, got %d", len(snaps))
	}
	daily := snaps[0]
	if daily.Window != storage.WindowDaily || daily.LimitUSD != 5 {
		t.Errorf("unexpected daily snapshot: %+v", daily)
	}
	if daily.SpentUSD != 2.50 || daily.Percent != 50 {
		t.Errorf("expected 50%% of daily budget, got %+v", daily)
	}
}

func TestConnectionsMaskCredentials(t *testing.T) {
	f := newFixture(t)
	f.addConnection(t, "openai", "sk-proj-abcdef123456", true)
	f.addConnection(t, "ollama", "", true)

	views, err := f.dashboard.Connections(context.Background())
	if err != nil {
		t.Fatalf("connections failed: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("expected 2 views, got %d", len(views))
	}

	var openaiView, ollamaView *ConnectionView
	for _, v := range views {
		switch v.Service {
		case "openai":
			openaiView = v
		case "ollama":
			ollamaView = v
		}
	}
	if openaiView.MaskedKey != "sk-p...3456" {
		t.Errorf("unexpected mask: %q", openaiView.MaskedKey)
	}
	if strings.Contains(openaiView.MaskedKey, "abcdef") {
		t.Error("masked key leaks credential material")
	}
	if ollamaView.MaskedKey != "" {
		t.Errorf("credential-less connection should mask empty, got %q", ollamaView.MaskedKey)
	}
}

func TestStatusDerivation(t *testing.T) {
	f := newFixture(t)
	f.addConnection(t, "openai", "sk-test", true)
	f.addConnection(t, "anthropic", "sk-ant", true)
	disabled := f.addConnection(t, "ollama", "", false)

	// openai: healthy traffic.
	for range 20 {
		f.insertRequest(t, "openai", true, 200, 0)
	}
	// anthropic: error rate above 5%.
	for range 18 {
		f.insertRequest(t, "anthropic", true, 200, 0)
	}
	f.insertRequest(t, "anthropic", false, 200, 0)
	f.insertRequest(t, "anthropic", false, 200, 0)

	views, err := f.dashboard.Connections(context.Background())
	if err != nil {
		t.Fatalf("connections failed: %v", err)
	}
	byService := make(map[string]*ConnectionView)
	for _, v := range views {
		byService[v.Service] = v
	}

	if got := byService["openai"].Status; got != "healthy" {
		t.Errorf("openai status = %q, want healthy", got)
	}
	if got := byService["anthropic"].Status; got != "degraded" {
		t.Errorf("anthropic status = %q, want degraded", got)
	}
	if got := byService["ollama"].Status; got != "offline" {
		t.Errorf("disabled connection status = %q, want offline", got)
	}
	_ = disabled
}

func TestStatusReflectsTrackerState(t *testing.T) {
	f := newFixture(t)
	conn := f.addConnection(t, "openai", "sk-test", true)
	for range 6 {
		f.tracker.RecordFailure("openai")
	}

	view, err := f.dashboard.Connection(context.Background(), conn.ID)
	if err != nil {
		t.Fatalf("connection failed: %v", err)
	}
	if view.Status != "offline" {
		t.Errorf("errored provider should show offline, got %q", view.Status)
	}
}

func TestStatusHighLatencyDegrades(t *testing.T) {
	f := newFixture(t)
	conn := f.addConnection(t, "openai", "sk-test", true)
	for range 5 {
		f.insertRequest(t, "openai", true, 3000, 0)
	}

	view, err := f.dashboard.Connection(context.Background(), conn.ID)
	if err != nil {
		t.Fatalf("connection failed: %v", err)
	}
	if view.Status != "degraded" {
		t.Errorf("high-latency provider should be degraded, got %q", view.Status)
	}
}

func TestUsagePassthrough(t *testing.T) {
	f := newFixture(t)
	f.insertRequest(t, "openai", true, 100, 1.00)

	points, err := f.dashboard.Usage(context.Background(), "daily", time.Time{})
	if err != nil {
		t.Fatalf("usage failed: %v", err)
	}
	if len(points) != 1 || points[0].Provider != "openai" {
		t.Errorf("unexpected series: %+v", points)
	}
}
