package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound indicates the referenced row does not exist.
var ErrNotFound = errors.New("storage: not found")

// defaultCostModels are seeded at zero cost when a connection of that
// service is created, so the dashboard has rows to edit instead of silently
// pricing everything at zero.
var defaultCostModels = map[string][]string{
	"openai":    {"gpt-4o", "gpt-4o-mini"},
	"anthropic": {"claude-sonnet-4", "claude-haiku-3-5"},
}

const connectionColumns = `id, name, service, category, base_url,
	api_key_encrypted, token_encrypted, credential_path_encrypted,
	enabled, is_default, daily_limit_usd, weekly_limit_usd, monthly_limit_usd,
	budget_override_until, created_at, updated_at`

// CreateConnection inserts a connection and seeds its default zero-cost
// model rates in the same transaction. The assigned id and timestamps are
// written back into conn.
func (s *Store) CreateConnection(ctx context.Context, conn *Connection) error {
	now := time.Now().UTC().Truncate(time.Second)
	conn.CreatedAt = now
	conn.UpdatedAt = now

	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO connections (name, service, category, base_url,
				api_key_encrypted, token_encrypted, credential_path_encrypted,
				enabled, is_default, daily_limit_usd, weekly_limit_usd,
				monthly_limit_usd, budget_override_until, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			conn.Name, conn.Service, conn.Category, conn.BaseURL,
			conn.APIKeyEncrypted, conn.TokenEncrypted, conn.CredentialPathEncrypted,
			conn.Enabled, conn.IsDefault, conn.DailyLimitUSD, conn.WeeklyLimitUSD,
			conn.MonthlyLimitUSD, unixOrNil(conn.BudgetOverrideUntil),
			now.Unix(), now.Unix(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert connection: %w", err)
		}

		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read connection id: %w", err)
		}
		conn.ID = id

		for _, model := range defaultCostModels[conn.Service] {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO cost_configs (connection_id, model,
					input_cost_per_mtok, output_cost_per_mtok, updated_at)
				VALUES (?, ?, 0, 0, ?)
				ON CONFLICT (connection_id, model) DO NOTHING`,
				id, model, now.Unix(),
			); err != nil {
				return fmt.Errorf("failed to seed cost config for %q: %w", model, err)
			}
		}
		return nil
	})
}

// UpdateConnection replaces the mutable fields of an existing connection.
// Empty encrypted-credential fields keep the stored value, so a dashboard
// edit that leaves the key blank does not wipe it.
func (s *Store) UpdateConnection(ctx context.Context, conn *Connection) error {
	now := time.Now().UTC().Truncate(time.Second)
	conn.UpdatedAt = now

	res, err := s.db.ExecContext(ctx, `
		UPDATE connections SET
			name = ?, service = ?, category = ?, base_url = ?,
			api_key_encrypted = CASE WHEN ? = '' THEN api_key_encrypted ELSE ? END,
			token_encrypted = CASE WHEN ? = '' THEN token_encrypted ELSE ? END,
			credential_path_encrypted = CASE WHEN ? = '' THEN credential_path_encrypted ELSE ? END,
			enabled = ?, is_default = ?,
			daily_limit_usd = ?, weekly_limit_usd = ?, monthly_limit_usd = ?,
			budget_override_until = ?, updated_at = ?
		WHERE id = ?`,
		conn.Name, conn.Service, conn.Category, conn.BaseURL,
		conn.APIKeyEncrypted, conn.APIKeyEncrypted,
		conn.TokenEncrypted, conn.TokenEncrypted,
		conn.CredentialPathEncrypted, conn.CredentialPathEncrypted,
		conn.Enabled, conn.IsDefault,
		conn.DailyLimitUSD, conn.WeeklyLimitUSD, conn.MonthlyLimitUSD,
		unixOrNil(conn.BudgetOverrideUntil), now.Unix(),
		conn.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update connection: %w", err)
	}
	return requireRow(res)
}

// ToggleConnection flips the enabled flag and returns the new value.
func (s *Store) ToggleConnection(ctx context.Context, id int64) (bool, error) {
	now := time.Now().UTC().Unix()

	res, err := s.db.ExecContext(ctx, `
		UPDATE connections SET enabled = NOT enabled, updated_at = ? WHERE id = ?`,
		now, id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to toggle connection: %w", err)
	}
	if err := requireRow(res); err != nil {
		return false, err
	}

	var enabled bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT enabled FROM connections WHERE id = ?`, id).Scan(&enabled); err != nil {
		return false, fmt.Errorf("failed to read toggled connection: %w", err)
	}
	return enabled, nil
}

// DeleteConnectionCascade deletes a connection and all cost configs that
// reference it in one transaction. The ON DELETE CASCADE constraint does the
// cost-config half.
func (s *Store) DeleteConnectionCascade(ctx context.Context, id int64) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM connections WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete connection: %w", err)
		}
		return requireRow(res)
	})
}

// GetConnection returns one connection by id.
func (s *Store) GetConnection(ctx context.Context, id int64) (*Connection, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+connectionColumns+` FROM connections WHERE id = ?`, id)
	conn, err := scanConnection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load connection: %w", err)
	}
	return conn, nil
}

// ListConnections returns all connections ordered by id. Disabled rows are
// included; router and monitor filter on the flag themselves.
func (s *Store) ListConnections(ctx context.Context) ([]*Connection, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+connectionColumns+` FROM connections ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	defer rows.Close()

	var conns []*Connection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}
		conns = append(conns, conn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating connections: %w", err)
	}
	return conns, nil
}

// SetBudgetOverride sets budget_override_until = now + duration. Overrides
// are never reversed; they expire naturally.
func (s *Store) SetBudgetOverride(ctx context.Context, id int64, duration time.Duration) (time.Time, error) {
	until := time.Now().UTC().Add(duration).Truncate(time.Second)

	res, err := s.db.ExecContext(ctx, `
		UPDATE connections SET budget_override_until = ?, updated_at = ? WHERE id = ?`,
		until.Unix(), time.Now().UTC().Unix(), id,
	)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to set budget override: %w", err)
	}
	if err := requireRow(res); err != nil {
		return time.Time{}, err
	}
	return until, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConnection(row rowScanner) (*Connection, error) {
	var (
		conn      Connection
		override  sql.NullInt64
		createdAt int64
		updatedAt int64
	)
	if err := row.Scan(
		&conn.ID, &conn.Name, &conn.Service, &conn.Category, &conn.BaseURL,
		&conn.APIKeyEncrypted, &conn.TokenEncrypted, &conn.CredentialPathEncrypted,
		&conn.Enabled, &conn.IsDefault,
		&conn.DailyLimitUSD, &conn.WeeklyLimitUSD, &conn.MonthlyLimitUSD,
		&override, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	conn.BudgetOverrideUntil = nullTime(override)
	conn.CreatedAt = time.Unix(createdAt, 0).UTC()
	conn.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &conn, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
