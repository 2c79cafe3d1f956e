// Package history provides durable storage for past run verdicts.
//
// Log files persist after a run for inspection; the history database
// plays the same role for verdicts, so regressions can be spotted across
// runs without keeping terminal output around.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/fabricetriboix/skal-systest/internal/report"
)

//go:embed schema.sql
var schemaSQL string

// Store records run verdicts in a SQLite database.
type Store struct {
	db *sql.DB
}

// Open creates or opens a SQLite database at the given path. The schema
// is applied idempotently, so opening an existing database is safe.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to history database: %w", err)
	}

	// SQLite supports one writer at a time; a single connection avoids
	// SQLITE_BUSY under concurrent access.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying history schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("executing %q: %w", pragma, err)
		}
	}
	return nil
}

// Run is one recorded harness run.
type Run struct {
	ID         string
	Plan       string
	StartedAt  time.Time
	FinishedAt time.Time
	Verdict    *report.Verdict
}

// RunSummary is the listing view of a recorded run.
type RunSummary struct {
	ID         string    `json:"id"`
	Plan       string    `json:"plan"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Pass       bool      `json:"pass"`
	FailCount  int       `json:"fail_count"`
	Total      int       `json:"total"`
	LeakCount  int       `json:"leak_count"`
}

// RecordRun stores a run and its per-scenario outcomes in one
// transaction.
func (s *Store) RecordRun(ctx context.Context, run Run) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("recording run: %w", err)
	}
	defer tx.Rollback()

	v := run.Verdict
	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, plan, started_at, finished_at, pass, fail_count, total, leak_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.Plan,
		run.StartedAt.UTC().Format(time.RFC3339Nano),
		run.FinishedAt.UTC().Format(time.RFC3339Nano),
		v.Pass,
		v.FailCount,
		v.Total,
		len(v.Leaks),
	)
	if err != nil {
		return fmt.Errorf("recording run: %w", err)
	}

	for i, res := range v.Results {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO scenario_results (run_id, position, description, success)
			VALUES (?, ?, ?, ?)
		`, run.ID, i, res.Description, res.Success)
		if err != nil {
			return fmt.Errorf("recording scenario result: %w", err)
		}
	}

	for _, leak := range v.Leaks {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO leaks (run_id, basename, log_path)
			VALUES (?, ?, ?)
		`, run.ID, leak.Basename, leak.Path)
		if err != nil {
			return fmt.Errorf("recording leak: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("recording run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first, up to limit.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, plan, started_at, finished_at, pass, fail_count, total, leak_count
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var rs RunSummary
		var started, finished string
		if err := rows.Scan(&rs.ID, &rs.Plan, &started, &finished,
			&rs.Pass, &rs.FailCount, &rs.Total, &rs.LeakCount); err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		if rs.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("parsing started_at: %w", err)
		}
		if rs.FinishedAt, err = time.Parse(time.RFC3339Nano, finished); err != nil {
			return nil, fmt.Errorf("parsing finished_at: %w", err)
		}
		out = append(out, rs)
	}
	return out, rows.Err()
}
