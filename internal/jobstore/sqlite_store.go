// Package jobstore provides persisted job record stores: a SQLite-backed
// store for the service and an in-memory store for tests.
package jobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/book-expert/audiobook-service/internal/core"
	_ "modernc.org/sqlite"
)

const dirPermissions = 0o750

// SQLiteStore implements core.JobStore on a single SQLite file. WAL mode
// gives the single writer and concurrent readers read-your-writes visibility
// on single-row operations.
type SQLiteStore struct {
	db *sql.DB
}

// Open creates or opens the job database at path and ensures the schema.
func Open(ctx context.Context, path string) (*SQLiteStore, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		err := os.MkdirAll(dir, dirPermissions)
		if err != nil {
			return nil, fmt.Errorf("failed to create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	err = db.PingContext(ctx)
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("failed to ping sqlite: %w", err)
	}

	store := &SQLiteStore{db: db}

	err = store.initSchema(ctx)
	if err != nil {
		_ = db.Close()

		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS jobs (
    id TEXT PRIMARY KEY,
    created_at TIMESTAMP NOT NULL,
    status TEXT NOT NULL,
    input_filename TEXT NOT NULL,
    language TEXT,
    voice TEXT,
    duration_sec INTEGER NOT NULL DEFAULT 0,
    error TEXT,
    output_mp3_url TEXT,
    output_m4b_url TEXT,
    preview_text TEXT
);
CREATE INDEX IF NOT EXISTS idx_jobs_created ON jobs(created_at);
`

	_, err := s.db.ExecContext(ctx, ddl)
	if err != nil {
		return fmt.Errorf("failed to initialize job schema: %w", err)
	}

	return nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	err := s.db.Close()
	if err != nil {
		return fmt.Errorf("failed to close job store: %w", err)
	}

	return nil
}

// Insert stores a new job record.
func (s *SQLiteStore) Insert(ctx context.Context, job *core.Job) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs(id, created_at, status, input_filename, language, voice,
		                  duration_sec, error, output_mp3_url, output_m4b_url, preview_text)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.CreatedAt.UTC().Format(time.RFC3339Nano), string(job.Status),
		job.InputFilename, job.Language, job.Voice,
		job.DurationSeconds, job.Error, job.MP3Location, job.M4BLocation, job.PreviewText,
	)
	if err != nil {
		return fmt.Errorf("failed to insert job '%s': %w", job.ID, err)
	}

	return nil
}

// Get returns the job with the given id, or core.ErrJobNotFound.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*core.Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, created_at, status, input_filename, language, voice,
		        duration_sec, error, output_mp3_url, output_m4b_url, preview_text
		 FROM jobs WHERE id = ?`, id)

	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrJobNotFound
		}

		return nil, fmt.Errorf("failed to get job '%s': %w", id, err)
	}

	return job, nil
}

// Update replaces the full mutable record of an existing job.
func (s *SQLiteStore) Update(ctx context.Context, job *core.Job) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, duration_sec = ?, error = ?,
		                 output_mp3_url = ?, output_m4b_url = ?, preview_text = ?
		 WHERE id = ?`,
		string(job.Status), job.DurationSeconds, job.Error,
		job.MP3Location, job.M4BLocation, job.PreviewText, job.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update job '%s': %w", job.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result for job '%s': %w", job.ID, err)
	}

	if affected == 0 {
		return core.ErrJobNotFound
	}

	return nil
}

// ListRecent returns up to limit jobs, newest first.
func (s *SQLiteStore) ListRecent(ctx context.Context, limit int) ([]*core.Job, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at, status, input_filename, language, voice,
		        duration_sec, error, output_mp3_url, output_m4b_url, preview_text
		 FROM jobs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	defer func() { _ = rows.Close() }()

	var jobs []*core.Job

	for rows.Next() {
		job, scanErr := scanJob(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan job row: %w", scanErr)
		}

		jobs = append(jobs, job)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("failed to iterate job rows: %w", err)
	}

	return jobs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*core.Job, error) {
	var (
		job     core.Job
		created string
		status  string
	)

	err := row.Scan(&job.ID, &created, &status, &job.InputFilename,
		&job.Language, &job.Voice, &job.DurationSeconds, &job.Error,
		&job.MP3Location, &job.M4BLocation, &job.PreviewText)
	if err != nil {
		return nil, err
	}

	job.Status = core.JobStatus(status)

	ts, parseErr := time.Parse(time.RFC3339Nano, created)
	if parseErr == nil {
		job.CreatedAt = ts
	}

	return &job, nil
}
