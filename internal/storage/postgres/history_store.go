// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/websum/internal/store"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "websum_jobs"

// Config controls the Postgres connection pool used for job history rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

// HistoryStore implements store.HistoryRepository.
type HistoryStore struct {
	pool  pool
	table string
}

// NewHistoryStore connects to Postgres using cfg.
func NewHistoryStore(ctx context.Context, cfg Config) (*HistoryStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s, err := NewHistoryStoreWithPool(p, cfg.Table)
	if err != nil {
		p.Close()
		return nil, err
	}
	return s, nil
}

// NewHistoryStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewHistoryStoreWithPool(p pool, table string) (*HistoryStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &HistoryStore{pool: p, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *HistoryStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks connectivity; the server uses it as a readiness probe.
func (s *HistoryStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Schema returns the DDL for the history table.
func (s *HistoryStore) Schema() string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	job_id           TEXT PRIMARY KEY,
	conversation_key TEXT NOT NULL,
	url              TEXT NOT NULL,
	state            TEXT NOT NULL,
	submitted_at     TIMESTAMPTZ NOT NULL,
	started_at       TIMESTAMPTZ,
	finished_at      TIMESTAMPTZ,
	source           TEXT,
	locator          TEXT,
	error_message    TEXT
)`, s.table)
}

// Migrate creates the history table when missing.
func (s *HistoryStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, s.Schema()); err != nil {
		return fmt.Errorf("create history table: %w", err)
	}
	return nil
}

// RecordQueued implements store.HistoryRepository.
func (s *HistoryStore) RecordQueued(ctx context.Context, rec store.JobRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("job id is required")
	}
	query := fmt.Sprintf(`INSERT INTO %s (job_id, conversation_key, url, state, submitted_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (job_id) DO NOTHING`, s.table)
	if _, err := s.pool.Exec(ctx, query, rec.ID, rec.ConversationKey, rec.URL, rec.State, rec.SubmittedAt); err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// MarkRunning implements store.HistoryRepository.
func (s *HistoryStore) MarkRunning(ctx context.Context, jobID string, at time.Time) error {
	query := fmt.Sprintf(`UPDATE %s SET state = 'running', started_at = $1 WHERE job_id = $2`, s.table)
	if _, err := s.pool.Exec(ctx, query, at, jobID); err != nil {
		return fmt.Errorf("mark job running: %w", err)
	}
	return nil
}

// MarkAcquired implements store.HistoryRepository.
func (s *HistoryStore) MarkAcquired(ctx context.Context, jobID, source string) error {
	query := fmt.Sprintf(`UPDATE %s SET source = $1 WHERE job_id = $2`, s.table)
	if _, err := s.pool.Exec(ctx, query, source, jobID); err != nil {
		return fmt.Errorf("mark job acquired: %w", err)
	}
	return nil
}

// Complete implements store.HistoryRepository.
func (s *HistoryStore) Complete(ctx context.Context, jobID string, at time.Time, state string, locator, errMsg *string) error {
	query := fmt.Sprintf(`UPDATE %s SET state = $1, finished_at = $2, locator = $3, error_message = $4 WHERE job_id = $5`, s.table)
	if _, err := s.pool.Exec(ctx, query, state, at, locator, errMsg, jobID); err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return nil
}

// Get implements store.HistoryRepository.
func (s *HistoryStore) Get(ctx context.Context, jobID string) (store.JobRecord, error) {
	query := fmt.Sprintf(`SELECT job_id, conversation_key, url, state, submitted_at,
	started_at, finished_at, source, locator, error_message
FROM %s WHERE job_id = $1`, s.table)
	var rec store.JobRecord
	err := s.pool.QueryRow(ctx, query, jobID).Scan(
		&rec.ID, &rec.ConversationKey, &rec.URL, &rec.State, &rec.SubmittedAt,
		&rec.StartedAt, &rec.FinishedAt, &rec.Source, &rec.Locator, &rec.ErrorMessage,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.JobRecord{}, store.ErrNotFound
	}
	if err != nil {
		return store.JobRecord{}, fmt.Errorf("select job: %w", err)
	}
	return rec, nil
}
