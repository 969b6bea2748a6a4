// File: internal/store/store.go
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/verify-cli/internal/runner"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const schemaSQL = `
        CREATE TABLE IF NOT EXISTS verification_runs (
            run_id              UUID PRIMARY KEY,
            scenario            TEXT NOT NULL,
            target_url          TEXT NOT NULL,
            state               TEXT NOT NULL,
            navigation_attempts INTEGER NOT NULL,
            steps_completed     INTEGER NOT NULL,
            total_steps         INTEGER NOT NULL,
            artifacts           TEXT[] NOT NULL DEFAULT '{}',
            error_kind          TEXT,
            failed_step         INTEGER,
            error_reason        TEXT,
            started_at          TIMESTAMPTZ NOT NULL,
            finished_at         TIMESTAMPTZ NOT NULL
        );
        CREATE INDEX IF NOT EXISTS verification_runs_scenario_idx
            ON verification_runs (scenario, started_at DESC);
    `

const insertRunSQL = `
        INSERT INTO verification_runs (
            run_id, scenario, target_url, state, navigation_attempts, steps_completed,
            total_steps, artifacts, error_kind, failed_step, error_reason, started_at, finished_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
    `

const recentRunsSQL = `
        SELECT run_id, scenario, target_url, state, navigation_attempts, steps_completed,
            total_steps, artifacts, error_kind, error_reason, started_at, finished_at
        FROM verification_runs
        WHERE ($1 = '' OR scenario = $1)
        ORDER BY started_at DESC
        LIMIT $2
    `

// RunRecord is one stored run.
type RunRecord struct {
	RunID          string
	Scenario       string
	TargetURL      string
	State          string
	Attempts       int
	StepsCompleted int
	TotalSteps     int
	Artifacts      []string
	ErrorKind      *string
	ErrorReason    *string
	StartedAt      time.Time
	FinishedAt     time.Time
}

// Store records verification runs in PostgreSQL.
type Store struct {
	pool  DBPool
	log   *zap.Logger
	close func()
}

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool:  pool,
		log:   logger.Named("store"),
		close: func() {},
	}, nil
}

// Open connects a pool to databaseURL and makes sure the schema exists.
func Open(ctx context.Context, databaseURL string, logger *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	s, err := New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	s.close = pool.Close
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the pool when the store opened it.
func (s *Store) Close() {
	s.close()
}

// EnsureSchema creates the runs table if it is missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create verification_runs table: %w", err)
	}
	return nil
}

// RecordRun inserts one result.
func (s *Store) RecordRun(ctx context.Context, res *runner.Result) error {
	var (
		errorKind   *string
		failedStep  *int
		errorReason *string
	)
	if re := res.Error; re != nil {
		kind := string(re.Kind)
		reason := re.Reason()
		errorKind, errorReason = &kind, &reason
		if re.Step >= 0 {
			step := re.Step
			failedStep = &step
		}
	}
	artifacts := res.Artifacts
	if artifacts == nil {
		artifacts = []string{}
	}

	tag, err := s.pool.Exec(ctx, insertRunSQL,
		res.RunID, res.Scenario, res.TargetURL, string(res.State),
		res.Attempts, res.StepsCompleted, res.TotalSteps, artifacts,
		errorKind, failedStep, errorReason,
		res.Started.UTC(), res.Finished.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", res.RunID, err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("unexpected rows affected inserting run %s: %d", res.RunID, tag.RowsAffected())
	}
	s.log.Debug("Recorded verification run.", zap.String("run_id", res.RunID), zap.String("state", string(res.State)))
	return nil
}

// RecentRuns returns up to limit runs, newest first. An empty scenario matches all.
func (s *Store) RecentRuns(ctx context.Context, scenario string, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, recentRunsSQL, scenario, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(
			&r.RunID, &r.Scenario, &r.TargetURL, &r.State, &r.Attempts, &r.StepsCompleted,
			&r.TotalSteps, &r.Artifacts, &r.ErrorKind, &r.ErrorReason, &r.StartedAt, &r.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read runs: %w", err)
	}
	return records, nil
}
