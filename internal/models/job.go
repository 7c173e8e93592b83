// Package models defines the data structures shared by the indexing, search and HTTP layers.
package models

import "time"

// JobStatus is the lifecycle state of an index job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Terminal reports whether no further transition is allowed from s.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Job is one asynchronous indexing request. It moves from queued to exactly
// one terminal status.
type Job struct {
	ID     string    `json:"job_id"`
	Status JobStatus `json:"status"`
	File   string    `json:"file"`

	// Set on completion.
	ChunksIndexed  int   `json:"chunks_indexed,omitempty"`
	EmbeddingDim   int   `json:"embedding_dim,omitempty"`
	IndexPersisted *bool `json:"index_persisted,omitempty"`

	// Set on failure.
	Error string `json:"error,omitempty"`

	SubmittedAt time.Time  `json:"submitted_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

// Clone returns a deep copy of j.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	if j.IndexPersisted != nil {
		v := *j.IndexPersisted
		c.IndexPersisted = &v
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		c.FinishedAt = &t
	}
	return &c
}

// Complete marks j completed with the given results.
func (j *Job) Complete(chunks, dim int, persisted bool, at time.Time) {
	j.Status = JobCompleted
	j.ChunksIndexed = chunks
	j.EmbeddingDim = dim
	j.IndexPersisted = &persisted
	j.Error = ""
	j.FinishedAt = &at
}

// Fail marks j failed with msg.
func (j *Job) Fail(msg string, at time.Time) {
	j.Status = JobFailed
	j.Error = msg
	j.FinishedAt = &at
}
