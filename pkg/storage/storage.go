// Package storage keeps the local run-history database: one row per
// import run plus its per-event failures, so runs can be compared and
// audited without digging through the JSON artifacts.
package storage

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"
)

type DB struct {
	sql *sql.DB
}

func Open(path string) (*DB, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	// Ensure schema exists for convenience.
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS import_runs (
  id                 INTEGER PRIMARY KEY,
  run_date           TEXT NOT NULL,
  started_at         DATETIME NOT NULL,
  finished_at        DATETIME NOT NULL,
  dry_run            INTEGER NOT NULL CHECK (dry_run IN (0,1)),
  events_total       INTEGER NOT NULL,
  events_processed   INTEGER NOT NULL,
  deleted            INTEGER NOT NULL,
  created            INTEGER NOT NULL,
  failed             INTEGER NOT NULL,
  resolution_success INTEGER NOT NULL,
  resolution_failure INTEGER NOT NULL,
  validation_valid   INTEGER NOT NULL,
  validation_invalid INTEGER NOT NULL,
  can_proceed        INTEGER NOT NULL CHECK (can_proceed IN (0,1))
);
CREATE INDEX IF NOT EXISTS idx_runs_date ON import_runs(run_date);
CREATE TABLE IF NOT EXISTS run_failures (
  id              INTEGER PRIMARY KEY,
  run_id          INTEGER NOT NULL REFERENCES import_runs(id),
  stage           TEXT NOT NULL,
  source_event_id INTEGER NOT NULL,
  title           TEXT,
  reason          TEXT
);
CREATE INDEX IF NOT EXISTS idx_failures_run ON run_failures(run_id);
    `); err != nil {
		return nil, err
	}
	return &DB{sql: db}, nil
}

func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

// Run is one recorded import run.
type Run struct {
	ID                int64
	Date              string
	StartedAt         time.Time
	FinishedAt        time.Time
	DryRun            bool
	EventsTotal       int
	EventsProcessed   int
	Deleted           int
	Created           int
	Failed            int
	ResolutionSuccess int
	ResolutionFailure int
	ValidationValid   int
	ValidationInvalid int
	CanProceed        bool
}

// Failure is one per-event failure attached to a run.
type Failure struct {
	Stage         string
	SourceEventID int64
	Title         string
	Reason        string
}

// RecordRun inserts the run and its failures in one transaction and
// returns the new run ID.
func (d *DB) RecordRun(ctx context.Context, run Run, failures []Failure) (int64, error) {
	tx, err := d.sql.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `INSERT INTO import_runs(
  run_date, started_at, finished_at, dry_run,
  events_total, events_processed, deleted, created, failed,
  resolution_success, resolution_failure, validation_valid, validation_invalid,
  can_proceed) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		run.Date, run.StartedAt.UTC().Format(time.RFC3339), run.FinishedAt.UTC().Format(time.RFC3339), boolToInt(run.DryRun),
		run.EventsTotal, run.EventsProcessed, run.Deleted, run.Created, run.Failed,
		run.ResolutionSuccess, run.ResolutionFailure, run.ValidationValid, run.ValidationInvalid,
		boolToInt(run.CanProceed))
	if err != nil {
		return 0, err
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for _, f := range failures {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO run_failures(run_id, stage, source_event_id, title, reason) VALUES(?,?,?,?,?)`,
			runID, f.Stage, f.SourceEventID, f.Title, nullIfEmpty(f.Reason))
		if err != nil {
			return 0, err
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return runID, nil
}

// ListRuns returns the most recent runs, newest first.
func (d *DB) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT id, run_date, started_at, finished_at, dry_run,
  events_total, events_processed, deleted, created, failed,
  resolution_success, resolution_failure, validation_valid, validation_invalid,
  can_proceed FROM import_runs ORDER BY started_at DESC, id DESC LIMIT ?`
	rows, err := d.sql.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var startedStr, finishedStr string
		var dryInt, goInt int
		if err := rows.Scan(&r.ID, &r.Date, &startedStr, &finishedStr, &dryInt,
			&r.EventsTotal, &r.EventsProcessed, &r.Deleted, &r.Created, &r.Failed,
			&r.ResolutionSuccess, &r.ResolutionFailure, &r.ValidationValid, &r.ValidationInvalid,
			&goInt); err != nil {
			return nil, err
		}
		r.StartedAt = parseSQLiteTime(startedStr)
		r.FinishedAt = parseSQLiteTime(finishedStr)
		r.DryRun = dryInt == 1
		r.CanProceed = goInt == 1
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListFailures returns one run's recorded failures.
func (d *DB) ListFailures(ctx context.Context, runID int64) ([]Failure, error) {
	rows, err := d.sql.QueryContext(ctx,
		`SELECT stage, source_event_id, title, reason FROM run_failures WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Failure
	for rows.Next() {
		var f Failure
		var titleNS, reasonNS sql.NullString
		if err := rows.Scan(&f.Stage, &f.SourceEventID, &titleNS, &reasonNS); err != nil {
			return nil, err
		}
		f.Title = titleNS.String
		f.Reason = reasonNS.String
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type DateStats struct {
	Date       string
	RunCount   int
	LastTotal  int
	LastFailed int
	LastGo     bool
}

// GetStats aggregates runs per calendar date; the Last* columns come
// from the most recent run of that date.
func (d *DB) GetStats(ctx context.Context) ([]DateStats, error) {
	query := `
		SELECT
			r.run_date,
			COUNT(*),
			last.events_total,
			last.failed,
			last.can_proceed
		FROM
			import_runs r
			JOIN import_runs last ON last.id = (
				SELECT id FROM import_runs
				WHERE run_date = r.run_date
				ORDER BY started_at DESC, id DESC LIMIT 1
			)
		GROUP BY
			r.run_date
		ORDER BY
			r.run_date DESC;
	`
	rows, err := d.sql.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []DateStats
	for rows.Next() {
		var s DateStats
		var goInt int
		if err := rows.Scan(&s.Date, &s.RunCount, &s.LastTotal, &s.LastFailed, &goInt); err != nil {
			return nil, err
		}
		s.LastGo = goInt == 1
		stats = append(stats, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return stats, nil
}

// parseSQLiteTime handles both the CURRENT_TIMESTAMP format and RFC3339.
func parseSQLiteTime(s string) time.Time {
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Time{}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
