package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GetBudgetLimits returns the global limits singleton, seeding the default
// row on first read.
func (s *Store) GetBudgetLimits(ctx context.Context) (BudgetLimits, error) {
	var limits BudgetLimits

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`SELECT daily_usd, weekly_usd, monthly_usd FROM budget_limits WHERE id = 1`)
		err := row.Scan(&limits.DailyUSD, &limits.WeeklyUSD, &limits.MonthlyUSD)
		if errors.Is(err, sql.ErrNoRows) {
			limits = DefaultBudgetLimits
			_, err = tx.ExecContext(ctx, `
				INSERT INTO budget_limits (id, daily_usd, weekly_usd, monthly_usd)
				VALUES (1, ?, ?, ?)`,
				limits.DailyUSD, limits.WeeklyUSD, limits.MonthlyUSD,
			)
		}
		return err
	})
	if err != nil {
		return BudgetLimits{}, fmt.Errorf("failed to load budget limits: %w", err)
	}
	return limits, nil
}

// PutBudgetLimits replaces the global limits.
func (s *Store) PutBudgetLimits(ctx context.Context, limits BudgetLimits) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO budget_limits (id, daily_usd, weekly_usd, monthly_usd)
		VALUES (1, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			daily_usd = excluded.daily_usd,
			weekly_usd = excluded.weekly_usd,
			monthly_usd = excluded.monthly_usd`,
		limits.DailyUSD, limits.WeeklyUSD, limits.MonthlyUSD,
	)
	if err != nil {
		return fmt.Errorf("failed to store budget limits: %w", err)
	}
	return nil
}

// UpsertCostConfig inserts or updates the rate row for a (connection, model)
// pair. The assigned id and timestamp are written back into cc.
func (s *Store) UpsertCostConfig(ctx context.Context, cc *CostConfig) error {
	now := time.Now().UTC().Truncate(time.Second)
	cc.UpdatedAt = now

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO cost_configs (connection_id, model, input_cost_per_mtok,
			output_cost_per_mtok, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (connection_id, model) DO UPDATE SET
			input_cost_per_mtok = excluded.input_cost_per_mtok,
			output_cost_per_mtok = excluded.output_cost_per_mtok,
			updated_at = excluded.updated_at`,
		cc.ConnectionID, cc.Model, cc.InputPerMTok, cc.OutputPerMTok, now.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert cost config: %w", err)
	}

	if id, err := res.LastInsertId(); err == nil && id > 0 {
		cc.ID = id
	}
	return nil
}

// UpdateCostConfig updates an existing rate row by id.
func (s *Store) UpdateCostConfig(ctx context.Context, id int64, inputPerMTok, outputPerMTok float64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE cost_configs SET input_cost_per_mtok = ?, output_cost_per_mtok = ?,
			updated_at = ? WHERE id = ?`,
		inputPerMTok, outputPerMTok, time.Now().UTC().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update cost config: %w", err)
	}
	return requireRow(res)
}

// ListCostConfigs returns all rate rows, connection-scoped first.
func (s *Store) ListCostConfigs(ctx context.Context) ([]*CostConfig, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, connection_id, model, input_cost_per_mtok, output_cost_per_mtok, updated_at
		FROM cost_configs
		ORDER BY connection_id IS NULL, connection_id, model`)
	if err != nil {
		return nil, fmt.Errorf("failed to list cost configs: %w", err)
	}
	defer rows.Close()

	var configs []*CostConfig
	for rows.Next() {
		var (
			cc        CostConfig
			connID    sql.NullInt64
			updatedAt int64
		)
		if err := rows.Scan(&cc.ID, &connID, &cc.Model,
			&cc.InputPerMTok, &cc.OutputPerMTok, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan cost config: %w", err)
		}
		if connID.Valid {
			cc.ConnectionID = &connID.Int64
		}
		cc.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		configs = append(configs, &cc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cost configs: %w", err)
	}
	return configs, nil
}

// CostRate returns the per-million-token rates for a (connection, model)
// pair. A connection-scoped row wins; a legacy row without a connection id
// is the fallback. ok is false when no row matches, which callers price as
// free.
func (s *Store) CostRate(ctx context.Context, connectionID int64, model string) (inputPerMTok, outputPerMTok float64, ok bool, err error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT input_cost_per_mtok, output_cost_per_mtok
		FROM cost_configs
		WHERE model = ? AND (connection_id = ? OR connection_id IS NULL)
		ORDER BY connection_id IS NULL
		LIMIT 1`,
		model, connectionID,
	)
	err = row.Scan(&inputPerMTok, &outputPerMTok)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, false, nil
	}
	if err != nil {
		return 0, 0, false, fmt.Errorf("failed to load cost rate: %w", err)
	}
	return inputPerMTok, outputPerMTok, true, nil
}
