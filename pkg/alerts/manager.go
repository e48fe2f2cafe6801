// Package alerts persists alert conditions and dispatches notifications.
// Deduplication lives in the database: the manager only dispatches when
// the conditional insert actually created a row, so a crashed-and-restarted
// process never re-notifies an alert that is already active.
package alerts

import (
	"context"
	"fmt"
	"log/slog"

	"openclaw/hub/pkg/storage"
)

// Channel delivers one notification. Implementations must not block
// indefinitely; delivery is best-effort and failures are logged, never
// propagated to the raising code path.
type Channel interface {
	Notify(ctx context.Context, alert *storage.Alert) error
	Name() string
}

// Manager raises and resolves alerts against the store and fans out new
// ones to the configured channels.
type Manager struct {
	store    *storage.Store
	channels []Channel
	logger   *slog.Logger
}

// NewManager creates a manager. A nil channel slice means persist-only.
func NewManager(store *storage.Store, channels []Channel, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: store, channels: channels, logger: logger}
}

// Raise creates an alert unless one with the same (connection, kind) is
// already active or was created in the last 15 minutes. Notifications go
// out only for newly created alerts.
func (m *Manager) Raise(ctx context.Context, alert *storage.Alert) error {
	created, err := m.store.InsertActiveAlert(ctx, alert)
	if err != nil {
		return fmt.Errorf("failed to raise alert: %w", err)
	}
	if !created {
		return nil
	}

	m.logger.WarnContext(ctx, "Alert raised",
		"alert_id", alert.ID,
		"connection_id", alert.ConnectionID,
		"kind", alert.Kind,
		"severity", alert.Severity,
		"message", alert.Message,
	)
	m.dispatch(ctx, alert)
	return nil
}

// Resolve clears the active alert for (connection, kind), if any. A
// no-op when nothing is active, so condition checkers can call it
// unconditionally when their condition stops firing.
func (m *Manager) Resolve(ctx context.Context, connectionID int64, kind storage.AlertKind) error {
	resolved, err := m.store.ResolveAlert(ctx, connectionID, kind)
	if err != nil {
		return fmt.Errorf("failed to resolve alert: %w", err)
	}
	if resolved {
		m.logger.InfoContext(ctx, "Alert resolved",
			"connection_id", connectionID,
			"kind", kind,
		)
	}
	return nil
}

func (m *Manager) dispatch(ctx context.Context, alert *storage.Alert) {
	for _, ch := range m.channels {
		if err := ch.Notify(ctx, alert); err != nil {
			m.logger.WarnContext(ctx, "Alert notification failed",
				"channel", ch.Name(),
				"alert_id", alert.ID,
				"error", err,
			)
		}
	}
}
