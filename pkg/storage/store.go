// Package storage is the transactional gateway to the embedded SQLite
// database. Every row lifecycle (connections, cost configs, budget limits,
// requests, api_calls, alerts) goes through the Store; no other package
// issues SQL.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// Store wraps a SQLite database with the schema and queries the Hub needs.
// Safe for concurrent use.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	closeOnce sync.Once

	// Hot-path inserts are prepared once.
	insertRequestStmt *sql.Stmt
	insertAPICallStmt *sql.Stmt
}

// Config configures the store.
type Config struct {
	// Path is the database file location. ":memory:" is supported for tests.
	Path string

	// PoolSize caps open connections. Default: 8.
	PoolSize int

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds.
	BusyTimeout time.Duration
}

// Open opens (creating if needed) the database at cfg.Path, applies the WAL
// and foreign-key pragmas, and bootstraps any missing tables. Bootstrap is
// idempotent; existing rows are never touched.
func Open(cfg Config, logger *slog.Logger) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 8
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	// Foreign keys are per-connection state in SQLite, so they ride in the
	// DSN where every pooled connection picks them up.
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)",
		cfg.Path, cfg.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.PoolSize)
	db.SetMaxIdleConns(cfg.PoolSize)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db, logger: logger}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := s.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	logger.Info("Database opened", "path", cfg.Path, "pool_size", cfg.PoolSize)
	return s, nil
}

// initSchema creates any missing tables and indexes.
func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS connections (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		service TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		base_url TEXT NOT NULL DEFAULT '',
		api_key_encrypted TEXT NOT NULL DEFAULT '',
		token_encrypted TEXT NOT NULL DEFAULT '',
		credential_path_encrypted TEXT NOT NULL DEFAULT '',
		enabled INTEGER NOT NULL DEFAULT 1,
		is_default INTEGER NOT NULL DEFAULT 0,
		daily_limit_usd REAL NOT NULL DEFAULT 0,
		weekly_limit_usd REAL NOT NULL DEFAULT 0,
		monthly_limit_usd REAL NOT NULL DEFAULT 0,
		budget_override_until INTEGER,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_connections_service ON connections(service, enabled);

	CREATE TABLE IF NOT EXISTS cost_configs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		connection_id INTEGER REFERENCES connections(id) ON DELETE CASCADE,
		model TEXT NOT NULL,
		input_cost_per_mtok REAL NOT NULL DEFAULT 0,
		output_cost_per_mtok REAL NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL,
		UNIQUE (connection_id, model)
	);

	CREATE TABLE IF NOT EXISTS budget_limits (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		daily_usd REAL NOT NULL,
		weekly_usd REAL NOT NULL,
		monthly_usd REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS requests (
		id TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL,
		model TEXT NOT NULL,
		provider TEXT NOT NULL,
		prompt_tokens INTEGER NOT NULL DEFAULT 0,
		completion_tokens INTEGER NOT NULL DEFAULT 0,
		cost_usd REAL NOT NULL DEFAULT 0,
		latency_ms INTEGER NOT NULL DEFAULT 0,
		success INTEGER NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		workflow_name TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_requests_created_at ON requests(created_at);
	CREATE INDEX IF NOT EXISTS idx_requests_provider ON requests(provider, created_at);

	CREATE TABLE IF NOT EXISTS api_calls (
		id TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL,
		service TEXT NOT NULL,
		operation TEXT NOT NULL,
		endpoint TEXT NOT NULL DEFAULT '',
		method TEXT NOT NULL DEFAULT '',
		status_code INTEGER NOT NULL DEFAULT 0,
		latency_ms INTEGER NOT NULL DEFAULT 0,
		cost_usd REAL NOT NULL DEFAULT 0,
		metadata TEXT NOT NULL DEFAULT '{}',
		success INTEGER NOT NULL,
		error TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_api_calls_service ON api_calls(service, created_at);

	CREATE TABLE IF NOT EXISTS alerts (
		id TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL,
		resolved_at INTEGER,
		dismissed_at INTEGER,
		connection_id INTEGER NOT NULL,
		kind TEXT NOT NULL,
		dedup_key TEXT NOT NULL,
		severity TEXT NOT NULL,
		message TEXT NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}'
	);
	CREATE INDEX IF NOT EXISTS idx_alerts_active
		ON alerts(dedup_key) WHERE resolved_at IS NULL AND dismissed_at IS NULL;
	CREATE INDEX IF NOT EXISTS idx_alerts_created_at ON alerts(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// prepareStatements prepares the append-only hot paths.
func (s *Store) prepareStatements() error {
	var err error

	s.insertRequestStmt, err = s.db.Prepare(`
		INSERT INTO requests (id, created_at, model, provider, prompt_tokens,
			completion_tokens, cost_usd, latency_ms, success, error, workflow_name)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare request insert: %w", err)
	}

	s.insertAPICallStmt, err = s.db.Prepare(`
		INSERT INTO api_calls (id, created_at, service, operation, endpoint,
			method, status_code, latency_ms, cost_usd, metadata, success, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare api_call insert: %w", err)
	}

	return nil
}

// Close releases the database. Idempotent.
func (s *Store) Close() error {
	var closeErr error

	s.closeOnce.Do(func() {
		if s.insertRequestStmt != nil {
			s.insertRequestStmt.Close()
		}
		if s.insertAPICallStmt != nil {
			s.insertAPICallStmt.Close()
		}
		if s.db != nil {
			_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
			closeErr = s.db.Close()
		}
	})

	return closeErr
}

// inTx runs fn inside a transaction, rolling back on error.
func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// nullTime converts a nullable unix-seconds column.
func nullTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}

// unixOrNil converts an optional time to a nullable unix-seconds value.
func unixOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}
