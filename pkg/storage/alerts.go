package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// alertDedupWindow is the minimum gap between two alerts with the same
// dedup key, even after the first has resolved.
const alertDedupWindow = 15 * time.Minute

// DedupKey returns the identity under which at most one alert may be
// active.
func DedupKey(connectionID int64, kind AlertKind) string {
	return fmt.Sprintf("%d:%s", connectionID, kind)
}

// InsertActiveAlert inserts the alert unless an active alert with the same
// dedup key exists, or one was created within the last 15 minutes. The
// conditional insert is the per-dedup-key lock: concurrent callers race on
// the database, and exactly one wins. Returns whether the alert was
// created; the id and timestamp are written back on success.
func (s *Store) InsertActiveAlert(ctx context.Context, alert *Alert) (bool, error) {
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	now := time.Now().UTC().Truncate(time.Second)
	alert.CreatedAt = now
	if alert.Metadata == "" {
		alert.Metadata = "{}"
	}
	dedupKey := DedupKey(alert.ConnectionID, alert.Kind)

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts (id, created_at, connection_id, kind, dedup_key,
			severity, message, metadata)
		SELECT ?, ?, ?, ?, ?, ?, ?, ?
		WHERE NOT EXISTS (
			SELECT 1 FROM alerts
			WHERE dedup_key = ?
			  AND ((resolved_at IS NULL AND dismissed_at IS NULL) OR created_at > ?)
		)`,
		alert.ID, now.Unix(), alert.ConnectionID, alert.Kind, dedupKey,
		alert.Severity, alert.Message, alert.Metadata,
		dedupKey, now.Add(-alertDedupWindow).Unix(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert alert: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

// ResolveAlert sets resolved_at on the active alert for a dedup key.
// Returns whether an alert was resolved.
func (s *Store) ResolveAlert(ctx context.Context, connectionID int64, kind AlertKind) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE alerts SET resolved_at = ?
		WHERE dedup_key = ? AND resolved_at IS NULL AND dismissed_at IS NULL`,
		time.Now().UTC().Unix(), DedupKey(connectionID, kind),
	)
	if err != nil {
		return false, fmt.Errorf("failed to resolve alert: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

// DismissAlert marks one alert dismissed by id.
func (s *Store) DismissAlert(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE alerts SET dismissed_at = ? WHERE id = ? AND dismissed_at IS NULL`,
		time.Now().UTC().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to dismiss alert: %w", err)
	}
	return requireRow(res)
}

// ListActiveAlerts returns alerts that are neither resolved nor dismissed,
// newest first.
func (s *Store) ListActiveAlerts(ctx context.Context) ([]*Alert, error) {
	return s.queryAlerts(ctx, `
		SELECT id, created_at, resolved_at, dismissed_at, connection_id,
			kind, severity, message, metadata
		FROM alerts
		WHERE resolved_at IS NULL AND dismissed_at IS NULL
		ORDER BY created_at DESC`)
}

// ListAlerts returns the newest alerts regardless of state.
func (s *Store) ListAlerts(ctx context.Context, limit int) ([]*Alert, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.queryAlerts(ctx, `
		SELECT id, created_at, resolved_at, dismissed_at, connection_id,
			kind, severity, message, metadata
		FROM alerts
		ORDER BY created_at DESC
		LIMIT ?`, limit)
}

func (s *Store) queryAlerts(ctx context.Context, query string, args ...any) ([]*Alert, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*Alert
	for rows.Next() {
		var (
			alert       Alert
			createdAt   int64
			resolvedAt  sql.NullInt64
			dismissedAt sql.NullInt64
		)
		if err := rows.Scan(&alert.ID, &createdAt, &resolvedAt, &dismissedAt,
			&alert.ConnectionID, &alert.Kind, &alert.Severity,
			&alert.Message, &alert.Metadata); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alert.CreatedAt = time.Unix(createdAt, 0).UTC()
		alert.ResolvedAt = nullTime(resolvedAt)
		alert.DismissedAt = nullTime(dismissedAt)
		alerts = append(alerts, &alert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alerts: %w", err)
	}
	return alerts, nil
}

// HasActiveAlert reports whether an active alert exists for a dedup key.
func (s *Store) HasActiveAlert(ctx context.Context, connectionID int64, kind AlertKind) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM alerts
		WHERE dedup_key = ? AND resolved_at IS NULL AND dismissed_at IS NULL`,
		DedupKey(connectionID, kind),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check active alert: %w", err)
	}
	return n > 0, nil
}
