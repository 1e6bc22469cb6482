package runledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	config_name TEXT NOT NULL,
	mode        TEXT NOT NULL,
	sweep_dir   TEXT,
	jobs        INTEGER NOT NULL,
	failed      INTEGER NOT NULL DEFAULT 0,
	started_at  TEXT NOT NULL,
	ended_at    TEXT
);

CREATE TABLE IF NOT EXISTS jobs (
	id              TEXT PRIMARY KEY,
	run_id          TEXT NOT NULL REFERENCES runs(id),
	num             INTEGER NOT NULL,
	name            TEXT NOT NULL,
	override_dirname TEXT NOT NULL,
	output_dir      TEXT NOT NULL,
	config_digest   TEXT NOT NULL,
	status          TEXT NOT NULL,
	exit_code       INTEGER,
	error           TEXT,
	started_at      TEXT NOT NULL,
	ended_at        TEXT
);

CREATE INDEX IF NOT EXISTS idx_jobs_digest ON jobs(config_digest);
`

const statusRunning = "RUNNING"

// Ledger is a SQLite database of runs and jobs.
type Ledger struct {
	db *sql.DB
}

// Open opens or creates the ledger at path.
func Open(path string) (*Ledger, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create ledger directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize ledger schema: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// RunRecord is a row of the runs table.
type RunRecord struct {
	ID         string
	ConfigName string
	Mode       string
	SweepDir   string
	Jobs       int
	Failed     int
	StartedAt  time.Time
	EndedAt    *time.Time
}

// JobRecord is a row of the jobs table.
type JobRecord struct {
	ID              string
	RunID           string
	Num             int
	Name            string
	OverrideDirname string
	OutputDir       string
	ConfigDigest    string
	Status          string
	ExitCode        *int
	Error           string
	StartedAt       time.Time
	EndedAt         *time.Time
}

func (l *Ledger) insertRun(ctx context.Context, r RunRecord) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO runs (id, config_name, mode, sweep_dir, jobs, started_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.ConfigName, r.Mode, r.SweepDir, r.Jobs, formatTime(r.StartedAt))
	return err
}

func (l *Ledger) finishRun(ctx context.Context, id string, failed int, end time.Time) error {
	_, err := l.db.ExecContext(ctx, `UPDATE runs SET failed = ?, ended_at = ? WHERE id = ?`,
		failed, formatTime(end), id)
	return err
}

func (l *Ledger) insertJob(ctx context.Context, j JobRecord) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO jobs (id, run_id, num, name, override_dirname, output_dir, config_digest, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.RunID, j.Num, j.Name, j.OverrideDirname, j.OutputDir, j.ConfigDigest, j.Status, formatTime(j.StartedAt))
	return err
}

func (l *Ledger) finishJob(ctx context.Context, id, status string, exitCode int, jobErr error, end time.Time) error {
	var msg sql.NullString
	if jobErr != nil {
		msg = sql.NullString{String: jobErr.Error(), Valid: true}
	}
	_, err := l.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, exit_code = ?, error = ?, ended_at = ? WHERE id = ?`,
		status, exitCode, msg, formatTime(end), id)
	return err
}

// Runs returns every run, oldest first.
func (l *Ledger) Runs(ctx context.Context) ([]RunRecord, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, config_name, mode, COALESCE(sweep_dir, ''), jobs, failed, started_at, ended_at
		FROM runs ORDER BY started_at, rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var (
			r       RunRecord
			started string
			ended   sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.ConfigName, &r.Mode, &r.SweepDir, &r.Jobs, &r.Failed, &started, &ended); err != nil {
			return nil, err
		}
		if r.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		if r.EndedAt, err = parseNullTime(ended); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Jobs returns the jobs of a run in job order.
func (l *Ledger) Jobs(ctx context.Context, runID string) ([]JobRecord, error) {
	return l.queryJobs(ctx, `WHERE run_id = ? ORDER BY num`, runID)
}

// JobsByDigest returns every job that ran with the given config digest,
// oldest first.
func (l *Ledger) JobsByDigest(ctx context.Context, digest string) ([]JobRecord, error) {
	return l.queryJobs(ctx, `WHERE config_digest = ? ORDER BY started_at, rowid`, digest)
}

func (l *Ledger) queryJobs(ctx context.Context, where string, args ...any) ([]JobRecord, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, run_id, num, name, override_dirname, output_dir, config_digest, status,
		       exit_code, COALESCE(error, ''), started_at, ended_at
		FROM jobs `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []JobRecord
	for rows.Next() {
		var (
			j        JobRecord
			exitCode sql.NullInt64
			started  string
			ended    sql.NullString
		)
		if err := rows.Scan(&j.ID, &j.RunID, &j.Num, &j.Name, &j.OverrideDirname, &j.OutputDir,
			&j.ConfigDigest, &j.Status, &exitCode, &j.Error, &started, &ended); err != nil {
			return nil, err
		}
		if exitCode.Valid {
			code := int(exitCode.Int64)
			j.ExitCode = &code
		}
		if j.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		if j.EndedAt, err = parseNullTime(ended); err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
