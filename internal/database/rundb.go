package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/clsprep/internal/dataset"
	"github.com/nao1215/clsprep/internal/model"
)

// FileName is the name of the history database inside its directory.
const FileName = "clsprep.db"

// ErrRunNotFound is returned when a run id does not exist.
var ErrRunNotFound = errors.New("run not found")

// RunDB stores the history of preparation runs.
type RunDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures RunDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a RunDB in dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*RunDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("history database not found at %s", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// mode=rw refuses to create a missing file; mode=rwc allows it.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	rdb := &RunDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := rdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return rdb, nil
}

// Close closes the database connection.
func (rdb *RunDB) Close() error {
	return rdb.db.Close()
}

// Path returns the database file path.
func (rdb *RunDB) Path() string {
	return rdb.dbPath
}

// createTables creates the database schema if it doesn't exist.
// Timestamps are stored as RFC 3339 text.
func (rdb *RunDB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		status TEXT NOT NULL,
		engine_path TEXT NOT NULL,
		num_workers INTEGER NOT NULL,
		requested TEXT NOT NULL,
		error TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	CREATE TABLE IF NOT EXISTS dataset_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL REFERENCES runs(id),
		dataset TEXT NOT NULL,
		status TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		label_rows INTEGER NOT NULL DEFAULT 0,
		images INTEGER NOT NULL DEFAULT 0,
		run_json TEXT NOT NULL,
		error TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_dataset_runs_run ON dataset_runs(run_id);
	CREATE INDEX IF NOT EXISTS idx_dataset_runs_dataset ON dataset_runs(dataset);
	`

	_, err := rdb.db.ExecContext(context.Background(), schema)
	return err
}

// StartRun inserts a new run and returns its id.
func (rdb *RunDB) StartRun(ctx context.Context, summary *model.RunSummary) (int64, error) {
	requested, err := json.Marshal(summary.Requested)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize requested datasets: %w", err)
	}

	query := `
	INSERT INTO runs (started_at, status, engine_path, num_workers, requested)
	VALUES (?, ?, ?, ?, ?)
	`

	result, err := rdb.db.ExecContext(ctx, query,
		formatTime(summary.StartedAt),
		string(summary.Status),
		summary.EnginePath,
		summary.NumWorkers,
		string(requested),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}
	return result.LastInsertId()
}

// RecordDataset stores the outcome of one dataset of run runID.
func (rdb *RunDB) RecordDataset(ctx context.Context, runID int64, run *model.DatasetRun) error {
	runJSON, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to serialize dataset run: %w", err)
	}

	query := `
	INSERT INTO dataset_runs (run_id, dataset, status, started_at, finished_at, label_rows, images, run_json, error)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = rdb.db.ExecContext(ctx, query,
		runID,
		string(run.Dataset),
		string(run.Status),
		formatTime(run.StartedAt),
		nullTime(run.FinishedAt),
		run.LabelRows,
		run.Images,
		string(runJSON),
		nullString(run.ErrorMessage),
	)
	if err != nil {
		return fmt.Errorf("failed to insert dataset run: %w", err)
	}
	return nil
}

// FinishRun stores the final status of summary, which must have been started.
func (rdb *RunDB) FinishRun(ctx context.Context, summary *model.RunSummary) error {
	query := `
	UPDATE runs SET finished_at = ?, status = ?, error = ?
	WHERE id = ?
	`

	result, err := rdb.db.ExecContext(ctx, query,
		nullTime(summary.FinishedAt),
		string(summary.Status),
		nullString(summary.ErrorMessage),
		summary.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrRunNotFound, summary.ID)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first, with their dataset runs.
// A limit of zero or less returns every run.
func (rdb *RunDB) ListRuns(ctx context.Context, limit int) ([]*model.RunSummary, error) {
	query := `
	SELECT id, started_at, finished_at, status, engine_path, num_workers, requested, error
	FROM runs
	ORDER BY id DESC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := rdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var summaries []*model.RunSummary
	for rows.Next() {
		s, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	// Close before the nested queries: the pool holds a single connection.
	rows.Close()

	for _, s := range summaries {
		datasets, err := rdb.DatasetRuns(ctx, s.ID)
		if err != nil {
			return nil, err
		}
		s.Datasets = datasets
	}
	return summaries, nil
}

// GetRun returns the run with id, including its dataset runs.
func (rdb *RunDB) GetRun(ctx context.Context, id int64) (*model.RunSummary, error) {
	query := `
	SELECT id, started_at, finished_at, status, engine_path, num_workers, requested, error
	FROM runs
	WHERE id = ?
	`

	s, err := scanRun(rdb.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	datasets, err := rdb.DatasetRuns(ctx, id)
	if err != nil {
		return nil, err
	}
	s.Datasets = datasets
	return s, nil
}

// DatasetRuns returns the dataset runs of runID in processing order.
func (rdb *RunDB) DatasetRuns(ctx context.Context, runID int64) ([]*model.DatasetRun, error) {
	query := `
	SELECT run_json FROM dataset_runs
	WHERE run_id = ?
	ORDER BY id
	`

	rows, err := rdb.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query dataset runs: %w", err)
	}
	defer rows.Close()

	runs := make([]*model.DatasetRun, 0)
	for rows.Next() {
		var runJSON string
		if err := rows.Scan(&runJSON); err != nil {
			return nil, fmt.Errorf("failed to scan dataset run: %w", err)
		}
		var run model.DatasetRun
		if err := json.Unmarshal([]byte(runJSON), &run); err != nil {
			return nil, fmt.Errorf("failed to parse dataset run: %w", err)
		}
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}

// rowScanner is implemented by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*model.RunSummary, error) {
	var (
		s          model.RunSummary
		startedAt  string
		finishedAt sql.NullString
		status     string
		requested  string
		errMsg     sql.NullString
	)
	if err := row.Scan(&s.ID, &startedAt, &finishedAt, &status, &s.EnginePath, &s.NumWorkers, &requested, &errMsg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	var err error
	if s.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, err
	}
	if finishedAt.Valid {
		if s.FinishedAt, err = parseTime(finishedAt.String); err != nil {
			return nil, err
		}
	}
	s.Status = model.Status(status)
	s.ErrorMessage = errMsg.String

	var ids []dataset.ID
	if err := json.Unmarshal([]byte(requested), &ids); err != nil {
		return nil, fmt.Errorf("failed to parse requested datasets: %w", err)
	}
	s.Requested = ids
	s.Datasets = make([]*model.DatasetRun, 0)
	return &s, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(t), Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
