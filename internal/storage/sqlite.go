package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/vishalkoriyalearning/rag-serve/internal/models"
)

// SQLiteJobStore is a JobStore backed by SQLite, so job records survive restarts.
type SQLiteJobStore struct {
	db *sql.DB
}

// NewSQLiteJobStore opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteJobStore(dbPath string) (*SQLiteJobStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteJobStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS index_jobs (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		file TEXT NOT NULL,
		chunks_indexed INTEGER NOT NULL DEFAULT 0,
		embedding_dim INTEGER NOT NULL DEFAULT 0,
		index_persisted INTEGER,
		error TEXT NOT NULL DEFAULT '',
		submitted_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_index_jobs_submitted_at ON index_jobs(submitted_at);
	CREATE INDEX IF NOT EXISTS idx_index_jobs_status ON index_jobs(status);
	`
	_, err := db.Exec(schema)
	return err
}

// Create inserts a queued job.
func (s *SQLiteJobStore) Create(ctx context.Context, job *models.Job) error {
	if err := checkCreate(job); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO index_jobs (id, status, file, submitted_at) VALUES (?, ?, ?, ?)`,
		job.ID, string(job.Status), job.File, job.SubmittedAt,
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return ErrAlreadyExists
	}
	return err
}

const jobColumns = `id, status, file, chunks_indexed, embedding_dim, index_persisted, error, submitted_at, finished_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.Job, error) {
	var (
		job       models.Job
		status    string
		persisted sql.NullBool
		finished  sql.NullTime
	)
	if err := row.Scan(&job.ID, &status, &job.File, &job.ChunksIndexed, &job.EmbeddingDim,
		&persisted, &job.Error, &job.SubmittedAt, &finished); err != nil {
		return nil, err
	}
	job.Status = models.JobStatus(status)
	if persisted.Valid {
		v := persisted.Bool
		job.IndexPersisted = &v
	}
	if finished.Valid {
		t := finished.Time
		job.FinishedAt = &t
	}
	return &job, nil
}

// Get returns a job by ID.
func (s *SQLiteJobStore) Get(ctx context.Context, id string) (*models.Job, error) {
	job, err := scanJob(s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM index_jobs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job %s: %w", id, err)
	}
	return job, nil
}

// Finish writes the terminal record of a queued job.
func (s *SQLiteJobStore) Finish(ctx context.Context, job *models.Job) error {
	if !job.Status.Terminal() {
		return ErrInvalidTransition
	}
	var persisted sql.NullBool
	if job.IndexPersisted != nil {
		persisted = sql.NullBool{Bool: *job.IndexPersisted, Valid: true}
	}
	var finished sql.NullTime
	if job.FinishedAt != nil {
		finished = sql.NullTime{Time: *job.FinishedAt, Valid: true}
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE index_jobs
		 SET status = ?, chunks_indexed = ?, embedding_dim = ?, index_persisted = ?, error = ?, finished_at = ?
		 WHERE id = ? AND status = ?`,
		string(job.Status), job.ChunksIndexed, job.EmbeddingDim, persisted, job.Error, finished,
		job.ID, string(models.JobQueued),
	)
	if err != nil {
		return fmt.Errorf("failed to finish job %s: %w", job.ID, err)
	}
	if n, _ := result.RowsAffected(); n == 1 {
		return nil
	}
	if _, err := s.Get(ctx, job.ID); err != nil {
		return err
	}
	return ErrInvalidTransition
}

// List returns up to limit jobs, newest first. limit <= 0 returns all.
func (s *SQLiteJobStore) List(ctx context.Context, limit int) ([]*models.Job, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM index_jobs ORDER BY submitted_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()
	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// FailQueued marks every queued job failed.
func (s *SQLiteJobStore) FailQueued(ctx context.Context, reason string) (int, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE index_jobs SET status = ?, error = ?, finished_at = ? WHERE status = ?`,
		string(models.JobFailed), reason, time.Now().UTC(), string(models.JobQueued),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to fail queued jobs: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

// Close closes the database.
func (s *SQLiteJobStore) Close() error {
	return s.db.Close()
}
