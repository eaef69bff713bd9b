// Package store persists the run ledger backed by SQLite: per-file and
// per-batch progress records powering the status command and the
// best-effort accounting of interrupted runs.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"vntransl/internal/config"
)

// Status is the lifecycle state of a ledger row.
type Status string

const (
	StatusPending     Status = "pending"
	StatusTranslating Status = "translating"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id         TEXT PRIMARY KEY,
    status     TEXT NOT NULL,
    started_at TEXT NOT NULL,
    ended_at   TEXT
);
CREATE TABLE IF NOT EXISTS files (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id     TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    path       TEXT NOT NULL,
    entries    INTEGER NOT NULL,
    batches    INTEGER NOT NULL,
    status     TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS batches (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    file_id     INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
    start_index INTEGER NOT NULL,
    size        INTEGER NOT NULL,
    status      TEXT NOT NULL,
    attempts    INTEGER NOT NULL DEFAULT 0,
    translator  TEXT,
    updated_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_files_run ON files(run_id);
CREATE INDEX IF NOT EXISTS idx_batches_file ON batches(file_id);
`

// Store manages ledger persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the ledger database in the project's
// state directory.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.StateDir(), "ledger.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db, path: dbPath}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// BeginRun records a new run session.
func (s *Store) BeginRun(ctx context.Context, runID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, status, started_at) VALUES (?, ?, ?)`,
		runID, StatusTranslating, now(),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// FinishRun marks the run terminal.
func (s *Store) FinishRun(ctx context.Context, runID string, status Status) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, ended_at = ? WHERE id = ?`,
		status, now(), runID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// RegisterFile records one document entering the run.
func (s *Store) RegisterFile(ctx context.Context, runID, path string, entries, batches int) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO files (run_id, path, entries, batches, status, updated_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		runID, path, entries, batches, StatusPending, now(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert file: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// RegisterBatch records one batch of a registered file.
func (s *Store) RegisterBatch(ctx context.Context, fileID int64, startIndex, size int) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO batches (file_id, start_index, size, status, updated_at)
         VALUES (?, ?, ?, ?, ?)`,
		fileID, startIndex, size, StatusPending, now(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert batch: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// MarkBatch transitions a batch to a terminal or in-flight state.
func (s *Store) MarkBatch(ctx context.Context, batchID int64, status Status, translator string, attempts int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE batches SET status = ?, translator = ?, attempts = ?, updated_at = ? WHERE id = ?`,
		status, nullable(translator), attempts, now(), batchID,
	)
	if err != nil {
		return fmt.Errorf("mark batch: %w", err)
	}
	return nil
}

// MarkFile transitions a file's ledger state.
func (s *Store) MarkFile(ctx context.Context, fileID int64, status Status) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE files SET status = ?, updated_at = ? WHERE id = ?`,
		status, now(), fileID,
	)
	if err != nil {
		return fmt.Errorf("mark file: %w", err)
	}
	return nil
}

// FileSummary is one row of the status overview.
type FileSummary struct {
	Path      string
	Entries   int
	Batches   int
	Completed int
	Failed    int
	Status    Status
	UpdatedAt string
}

// LatestRunSummaries reports per-file progress of the most recent run.
func (s *Store) LatestRunSummaries(ctx context.Context) (string, []FileSummary, error) {
	var runID string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM runs ORDER BY rowid DESC LIMIT 1`,
	).Scan(&runID)
	if err == sql.ErrNoRows {
		return "", nil, nil
	}
	if err != nil {
		return "", nil, fmt.Errorf("query latest run: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT f.path, f.entries, f.batches, f.status, f.updated_at,
                COALESCE(SUM(CASE WHEN b.status = 'completed' THEN 1 ELSE 0 END), 0),
                COALESCE(SUM(CASE WHEN b.status = 'failed' THEN 1 ELSE 0 END), 0)
           FROM files f LEFT JOIN batches b ON b.file_id = f.id
          WHERE f.run_id = ?
          GROUP BY f.id
          ORDER BY f.path`,
		runID,
	)
	if err != nil {
		return "", nil, fmt.Errorf("query file summaries: %w", err)
	}
	defer rows.Close()

	var summaries []FileSummary
	for rows.Next() {
		var summary FileSummary
		if err := rows.Scan(
			&summary.Path, &summary.Entries, &summary.Batches, &summary.Status,
			&summary.UpdatedAt, &summary.Completed, &summary.Failed,
		); err != nil {
			return "", nil, fmt.Errorf("scan file summary: %w", err)
		}
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return "", nil, fmt.Errorf("iterate file summaries: %w", err)
	}
	return runID, summaries, nil
}

func nullable(value string) any {
	if value == "" {
		return nil
	}
	return value
}
