package alerts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

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

func seedConnection(t *testing.T, store *storage.Store) *storage.Connection {
	t.Helper()
	conn := &storage.Connection{
		Name:            "openai-main",
		Service:         "openai",
		APIKeyEncrypted: "enc",
		Enabled:         true,
	}
	if err := store.CreateConnection(context.Background(), conn); err != nil {
		t.Fatalf("failed to seed connection: %v", err)
	}
	return conn
}

type recordingChannel struct {
	mu    sync.Mutex
	seen  []*storage.Alert
	fails bool
}

func (c *recordingChannel) Name() string { return "recording" }

func (c *recordingChannel) Notify(ctx context.Context, alert *storage.Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = append(c.seen, alert)
	if c.fails {
		return context.DeadlineExceeded
	}
	return nil
}

func (c *recordingChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

func TestRaise_NotifiesOnlyOnCreate(t *testing.T) {
	store := testStore(t)
	conn := seedConnection(t, store)
	ch := &recordingChannel{}
	m := NewManager(store, []Channel{ch}, nil)
	ctx := context.Background()

	alert := &storage.Alert{
		ConnectionID: conn.ID,
		Kind:         storage.AlertConsecutiveErrors,
		Severity:     "warning",
		Message:      "3 consecutive failures",
	}
	if err := m.Raise(ctx, alert); err != nil {
		t.Fatalf("raise failed: %v", err)
	}
	if ch.count() != 1 {
		t.Fatalf("expected 1 notification, got %d", ch.count())
	}

	// Duplicate while active: no new row, no new notification.
	dup := &storage.Alert{
		ConnectionID: conn.ID,
		Kind:         storage.AlertConsecutiveErrors,
		Severity:     "warning",
		Message:      "still failing",
	}
	if err := m.Raise(ctx, dup); err != nil {
		t.Fatalf("raise failed: %v", err)
	}
	if ch.count() != 1 {
		t.Errorf("duplicate raise must not notify, got %d notifications", ch.count())
	}
}

func TestRaise_ChannelFailureDoesNotPropagate(t *testing.T) {
	store := testStore(t)
	conn := seedConnection(t, store)
	ch := &recordingChannel{fails: true}
	m := NewManager(store, []Channel{ch}, nil)

	alert := &storage.Alert{
		ConnectionID: conn.ID,
		Kind:         storage.AlertLatencySpike,
		Severity:     "warning",
		Message:      "latency 3x baseline",
	}
	if err := m.Raise(context.Background(), alert); err != nil {
		t.Errorf("channel failure must not fail the raise, got %v", err)
	}
}

func TestResolve_NoopWithoutActiveAlert(t *testing.T) {
	store := testStore(t)
	conn := seedConnection(t, store)
	m := NewManager(store, nil, nil)

	if err := m.Resolve(context.Background(), conn.ID, storage.AlertBudgetThreshold); err != nil {
		t.Errorf("resolve without active alert must be a no-op, got %v", err)
	}
}

func TestRaiseResolveLifecycle(t *testing.T) {
	store := testStore(t)
	conn := seedConnection(t, store)
	m := NewManager(store, nil, nil)
	ctx := context.Background()

	alert := &storage.Alert{
		ConnectionID: conn.ID,
		Kind:         storage.AlertBudgetThreshold,
		Severity:     "warning",
		Message:      "daily budget at 92%",
	}
	if err := m.Raise(ctx, alert); err != nil {
		t.Fatalf("raise failed: %v", err)
	}
	if err := m.Resolve(ctx, conn.ID, storage.AlertBudgetThreshold); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	active, err := store.ListActiveAlerts(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("expected no active alerts after resolve, got %d", len(active))
	}
}

func TestWebhookChannelDelivers(t *testing.T) {
	received := make(chan storage.Alert, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var a storage.Alert
		if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
			t.Errorf("bad webhook payload: %v", err)
		}
		received <- a
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	ch := NewWebhookChannel(srv.URL, nil)
	defer ch.Close()

	alert := &storage.Alert{
		ID:           "a-1",
		ConnectionID: 1,
		Kind:         storage.AlertConsecutiveErrors,
		Severity:     "warning",
		Message:      "upstream failing",
	}
	if err := ch.Notify(context.Background(), alert); err != nil {
		t.Fatalf("notify failed: %v", err)
	}

	select {
	case got := <-received:
		if got.ID != "a-1" || got.Kind != storage.AlertConsecutiveErrors {
			t.Errorf("unexpected payload: %+v", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("webhook never delivered")
	}
}
