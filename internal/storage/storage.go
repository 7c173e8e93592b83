// Package storage holds the index job registry and disk accounting for the data directory.
package storage

import (
	"context"
	"errors"

	"github.com/vishalkoriyalearning/rag-serve/internal/models"
)

var (
	// ErrNotFound is returned for an unknown job id.
	ErrNotFound = errors.New("job not found")
	// ErrAlreadyExists is returned when creating a job whose id is taken.
	ErrAlreadyExists = errors.New("job already exists")
	// ErrInvalidTransition is returned when a terminal job would be written again,
	// or a job would be finished with a non-terminal status.
	ErrInvalidTransition = errors.New("invalid job status transition")
)

// JobStore records index jobs. Implementations must be safe for concurrent
// use and must enforce the queued -> completed|failed state machine.
type JobStore interface {
	// Create stores a new queued job.
	Create(ctx context.Context, job *models.Job) error
	// Get returns a copy of the job, or ErrNotFound.
	Get(ctx context.Context, id string) (*models.Job, error)
	// Finish replaces a queued job with its terminal record.
	Finish(ctx context.Context, job *models.Job) error
	// List returns up to limit jobs, most recently submitted first.
	List(ctx context.Context, limit int) ([]*models.Job, error)
	// FailQueued marks every job still queued as failed with reason. It is used
	// at startup, when no worker can still own those jobs.
	FailQueued(ctx context.Context, reason string) (int, error)
	Close() error
}

func checkCreate(job *models.Job) error {
	if job == nil || job.ID == "" {
		return errors.New("job id is required")
	}
	if job.Status != models.JobQueued {
		return ErrInvalidTransition
	}
	return nil
}
