package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// InsertRequest appends one completed LLM call. Rows are never mutated or
// deleted. The id is assigned when empty.
func (s *Store) InsertRequest(ctx context.Context, req *Request) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}

	_, err := s.insertRequestStmt.ExecContext(ctx,
		req.ID, req.CreatedAt.Unix(), req.Model, req.Provider,
		req.PromptTokens, req.CompletionTokens, req.CostUSD, req.LatencyMS,
		req.Success, req.Error, req.WorkflowName,
	)
	if err != nil {
		return fmt.Errorf("failed to insert request: %w", err)
	}
	return nil
}

// InsertAPICall appends one completed non-LLM upstream call.
func (s *Store) InsertAPICall(ctx context.Context, call *APICall) error {
	if call.ID == "" {
		call.ID = uuid.NewString()
	}
	if call.CreatedAt.IsZero() {
		call.CreatedAt = time.Now().UTC()
	}
	if call.Metadata == "" {
		call.Metadata = "{}"
	}

	_, err := s.insertAPICallStmt.ExecContext(ctx,
		call.ID, call.CreatedAt.Unix(), call.Service, call.Operation,
		call.Endpoint, call.Method, call.StatusCode, call.LatencyMS,
		call.CostUSD, call.Metadata, call.Success, call.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to insert api call: %w", err)
	}
	return nil
}

// AggregateSpend sums cost over requests and api_calls for one provider
// service within a rolling window.
func (s *Store) AggregateSpend(ctx context.Context, service string, window Window) (float64, error) {
	since := time.Now().UTC().Add(-window.Duration()).Unix()

	var spend float64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE((SELECT SUM(cost_usd) FROM requests
				WHERE provider = ? AND created_at > ?), 0)
		     + COALESCE((SELECT SUM(cost_usd) FROM api_calls
				WHERE service = ? AND created_at > ?), 0)`,
		service, since, service, since,
	).Scan(&spend)
	if err != nil {
		return 0, fmt.Errorf("failed to aggregate spend: %w", err)
	}
	return spend, nil
}

// TotalSpend sums cost over every provider within a rolling window. Feeds
// the display-only global budget snapshot.
func (s *Store) TotalSpend(ctx context.Context, window Window) (float64, error) {
	since := time.Now().UTC().Add(-window.Duration()).Unix()

	var spend float64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE((SELECT SUM(cost_usd) FROM requests WHERE created_at > ?), 0)
		     + COALESCE((SELECT SUM(cost_usd) FROM api_calls WHERE created_at > ?), 0)`,
		since, since,
	).Scan(&spend)
	if err != nil {
		return 0, fmt.Errorf("failed to total spend: %w", err)
	}
	return spend, nil
}

// RecentRequests returns the newest rows, newest first.
func (s *Store) RecentRequests(ctx context.Context, limit int) ([]*Request, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, model, provider, prompt_tokens, completion_tokens,
			cost_usd, latency_ms, success, error, workflow_name
		FROM requests
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent requests: %w", err)
	}
	defer rows.Close()

	var reqs []*Request
	for rows.Next() {
		var (
			req       Request
			createdAt int64
		)
		if err := rows.Scan(&req.ID, &createdAt, &req.Model, &req.Provider,
			&req.PromptTokens, &req.CompletionTokens, &req.CostUSD,
			&req.LatencyMS, &req.Success, &req.Error, &req.WorkflowName); err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		req.CreatedAt = time.Unix(createdAt, 0).UTC()
		reqs = append(reqs, &req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating requests: %w", err)
	}
	return reqs, nil
}

// UsageTimeseries returns per-UTC-day, per-provider sums. Granularity
// "daily" covers the last 30 days ending now; "weekly" a 7-day window and
// "monthly" a 30-day window, both ending at the anchor date (inclusive).
func (s *Store) UsageTimeseries(ctx context.Context, granularity string, anchor time.Time) ([]UsagePoint, error) {
	if anchor.IsZero() {
		anchor = time.Now().UTC()
	}
	end := anchor.UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)

	var span time.Duration
	switch granularity {
	case "weekly":
		span = 7 * 24 * time.Hour
	case "monthly":
		span = 30 * 24 * time.Hour
	default:
		// The upper bound is exclusive in the query; round up so rows
		// written within the current second still count.
		end = time.Now().UTC().Add(time.Second)
		span = 30 * 24 * time.Hour
	}
	start := end.Add(-span)

	rows, err := s.db.QueryContext(ctx, `
		SELECT date(created_at, 'unixepoch') AS day, provider,
			COUNT(*), SUM(prompt_tokens + completion_tokens), SUM(cost_usd)
		FROM requests
		WHERE created_at >= ? AND created_at < ?
		GROUP BY day, provider
		ORDER BY day, provider`,
		start.Unix(), end.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query usage timeseries: %w", err)
	}
	defer rows.Close()

	var points []UsagePoint
	for rows.Next() {
		var p UsagePoint
		if err := rows.Scan(&p.Day, &p.Provider, &p.Requests, &p.Tokens, &p.CostUSD); err != nil {
			return nil, fmt.Errorf("failed to scan usage point: %w", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating usage points: %w", err)
	}
	return points, nil
}

// Stats24h aggregates the last 24 hours across all providers.
func (s *Store) Stats24h(ctx context.Context) (DayStats, error) {
	return s.dayStats(ctx, "")
}

// ServiceStats24h aggregates the last 24 hours for one provider service.
func (s *Store) ServiceStats24h(ctx context.Context, service string) (DayStats, error) {
	return s.dayStats(ctx, service)
}

func (s *Store) dayStats(ctx context.Context, service string) (DayStats, error) {
	since := time.Now().UTC().Add(-24 * time.Hour).Unix()

	query := `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN success THEN 0 ELSE 1 END), 0),
			COALESCE(SUM(prompt_tokens), 0),
			COALESCE(SUM(completion_tokens), 0),
			COALESCE(SUM(cost_usd), 0),
			COALESCE(AVG(latency_ms), 0)
		FROM requests
		WHERE created_at > ?`
	args := []any{since}
	if service != "" {
		query += ` AND provider = ?`
		args = append(args, service)
	}

	var stats DayStats
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&stats.Requests, &stats.Errors, &stats.PromptTokens,
		&stats.CompletionTokens, &stats.CostUSD, &stats.AvgLatencyMS,
	); err != nil {
		return DayStats{}, fmt.Errorf("failed to aggregate stats: %w", err)
	}
	return stats, nil
}

// RecentOutcomes returns the success flags of the newest requests for one
// provider since a cutoff, newest first. The monitor uses this for the
// consecutive-errors condition.
func (s *Store) RecentOutcomes(ctx context.Context, service string, since time.Time, limit int) ([]bool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT success FROM requests
		WHERE provider = ? AND created_at > ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`,
		service, since.Unix(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []bool
	for rows.Next() {
		var ok bool
		if err := rows.Scan(&ok); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		outcomes = append(outcomes, ok)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outcomes: %w", err)
	}
	return outcomes, nil
}

// SuccessLatencies returns latencies of successful requests for one
// provider, newest first, skipping offset rows. The monitor compares the
// recent window against the older baseline with this.
func (s *Store) SuccessLatencies(ctx context.Context, service string, limit, offset int) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT latency_ms FROM requests
		WHERE provider = ? AND success
		ORDER BY created_at DESC, rowid DESC
		LIMIT ? OFFSET ?`,
		service, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query latencies: %w", err)
	}
	defer rows.Close()

	var latencies []int64
	for rows.Next() {
		var ms int64
		if err := rows.Scan(&ms); err != nil {
			return nil, fmt.Errorf("failed to scan latency: %w", err)
		}
		latencies = append(latencies, ms)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating latencies: %w", err)
	}
	return latencies, nil
}
