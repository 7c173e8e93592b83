package storage

import (
	"context"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/vishalkoriyalearning/rag-serve/internal/models"
)

const shardCount = 32

type jobShard struct {
	mu   sync.RWMutex
	jobs map[string]*models.Job
}

// MemoryJobStore is a lock-striped in-memory JobStore. Jobs live for the
// lifetime of the process. Records are copied on the way in and out.
type MemoryJobStore struct {
	shards [shardCount]*jobShard
}

// NewMemoryJobStore returns an empty in-memory job store.
func NewMemoryJobStore() *MemoryJobStore {
	m := &MemoryJobStore{}
	for i := range m.shards {
		m.shards[i] = &jobShard{jobs: make(map[string]*models.Job)}
	}
	return m
}

func (m *MemoryJobStore) shardFor(id string) *jobShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return m.shards[h.Sum32()%shardCount]
}

// Create stores a new queued job.
func (m *MemoryJobStore) Create(_ context.Context, job *models.Job) error {
	if err := checkCreate(job); err != nil {
		return err
	}
	s := m.shardFor(job.ID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return ErrAlreadyExists
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

// Get returns a copy of the job.
func (m *MemoryJobStore) Get(_ context.Context, id string) (*models.Job, error) {
	s := m.shardFor(id)
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return job.Clone(), nil
}

// Finish replaces a queued job with its terminal record.
func (m *MemoryJobStore) Finish(_ context.Context, job *models.Job) error {
	if !job.Status.Terminal() {
		return ErrInvalidTransition
	}
	s := m.shardFor(job.ID)
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.jobs[job.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Status.Terminal() {
		return ErrInvalidTransition
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

// List returns up to limit jobs, newest first. limit <= 0 returns all.
func (m *MemoryJobStore) List(_ context.Context, limit int) ([]*models.Job, error) {
	var out []*models.Job
	for _, s := range m.shards {
		s.mu.RLock()
		for _, j := range s.jobs {
			out = append(out, j.Clone())
		}
		s.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// FailQueued marks all queued jobs failed.
func (m *MemoryJobStore) FailQueued(_ context.Context, reason string) (int, error) {
	n := 0
	now := time.Now().UTC()
	for _, s := range m.shards {
		s.mu.Lock()
		for _, j := range s.jobs {
			if j.Status == models.JobQueued {
				j.Fail(reason, now)
				n++
			}
		}
		s.mu.Unlock()
	}
	return n, nil
}

// Close is a no-op.
func (m *MemoryJobStore) Close() error {
	return nil
}
