package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"run-sphere/internal/config"
)

// ErrNotFound is returned when no run has the requested id.
var ErrNotFound = errors.New("run not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	language     TEXT NOT NULL,
	code_hash    TEXT NOT NULL,
	status       TEXT NOT NULL,
	failure      TEXT NOT NULL DEFAULT '',
	exit_code    INTEGER,
	duration_ms  BIGINT,
	timeout_ms   BIGINT NOT NULL,
	attempts     INTEGER NOT NULL DEFAULT 1,
	stdout_bytes INTEGER NOT NULL DEFAULT 0,
	stderr_bytes INTEGER NOT NULL DEFAULT 0,
	request_ip   TEXT NOT NULL DEFAULT '',
	request_id   TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS runs_created_at_idx ON runs (created_at DESC);
CREATE INDEX IF NOT EXISTS runs_language_status_idx ON runs (language, status);
`

// DB wraps a PostgreSQL connection pool for the run audit log.
type DB struct {
	pool *pgxpool.Pool
}

// New creates a new database connection pool.
func New(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing database DSN: %w", err)
	}

	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	pcfg.MinConns = 2
	if cfg.ConnMaxLifetime > 0 {
		pcfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	pcfg.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	log.Info().Msg("connected to PostgreSQL")
	return &DB{pool: pool}, nil
}

// EnsureSchema creates the runs table and its indexes if they are missing.
func (db *DB) EnsureSchema(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("creating runs schema: %w", err)
	}
	return nil
}

// Close shuts down the connection pool.
func (db *DB) Close() {
	db.pool.Close()
}

// Healthy checks database connectivity.
func (db *DB) Healthy(ctx context.Context) bool {
	return db.pool.Ping(ctx) == nil
}

// LogRun inserts a run record into the audit log. Writing the same id twice
// is a no-op so that retried writes stay idempotent.
func (db *DB) LogRun(ctx context.Context, rec *RunRecord) error {
	query := `
		INSERT INTO runs (id, language, code_hash, status, failure, exit_code,
			duration_ms, timeout_ms, attempts, stdout_bytes, stderr_bytes,
			request_ip, request_id, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO NOTHING`

	_, err := db.pool.Exec(ctx, query,
		rec.ID, rec.Language, rec.CodeHash, rec.Status, rec.Failure, rec.ExitCode,
		rec.DurationMS, rec.TimeoutMS, rec.Attempts, rec.StdoutBytes, rec.StderrBytes,
		rec.RequestIP, rec.RequestID, rec.CreatedAt, rec.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}
	return nil
}

const runColumns = `id, language, code_hash, status, failure, exit_code,
	duration_ms, timeout_ms, attempts, stdout_bytes, stderr_bytes,
	request_ip, request_id, created_at, completed_at`

func scanRun(row pgx.Row) (RunRecord, error) {
	var rec RunRecord
	err := row.Scan(
		&rec.ID, &rec.Language, &rec.CodeHash, &rec.Status, &rec.Failure, &rec.ExitCode,
		&rec.DurationMS, &rec.TimeoutMS, &rec.Attempts, &rec.StdoutBytes, &rec.StderrBytes,
		&rec.RequestIP, &rec.RequestID, &rec.CreatedAt, &rec.CompletedAt,
	)
	return rec, err
}

// GetRun retrieves a single run by ID.
func (db *DB) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	rec, err := scanRun(db.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM runs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying run %s: %w", id, err)
	}
	return &rec, nil
}

// ListRuns queries runs with optional filters, newest first.
func (db *DB) ListRuns(ctx context.Context, filter RunFilter) ([]RunRecord, error) {
	query := `SELECT ` + runColumns + `
		FROM runs
		WHERE ($1 = '' OR language = $1)
		  AND ($2 = '' OR status = $2)
		  AND ($3::timestamptz IS NULL OR created_at >= $3)
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5`

	rows, err := db.pool.Query(ctx, query,
		filter.Language, filter.Status, filter.Since, clampLimit(filter.Limit), filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	results := []RunRecord{}
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		results = append(results, rec)
	}

	return results, rows.Err()
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return 100
	}
	return limit
}
