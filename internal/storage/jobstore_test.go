package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vishalkoriyalearning/rag-serve/internal/models"
)

func jobStores(t *testing.T) map[string]JobStore {
	t.Helper()
	sqlite, err := NewSQLiteJobStore(filepath.Join(t.TempDir(), "sub", "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })
	return map[string]JobStore{
		"memory": NewMemoryJobStore(),
		"sqlite": sqlite,
	}
}

func queued(id string, at time.Time) *models.Job {
	return &models.Job{ID: id, Status: models.JobQueued, File: id + ".txt", SubmittedAt: at}
}

func TestJobStore_lifecycle(t *testing.T) {
	for name, store := range jobStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now().UTC().Truncate(time.Millisecond)

			require.NoError(t, store.Create(ctx, queued("a", now)))
			assert.ErrorIs(t, store.Create(ctx, queued("a", now)), ErrAlreadyExists)

			got, err := store.Get(ctx, "a")
			require.NoError(t, err)
			assert.Equal(t, models.JobQueued, got.Status)
			assert.Equal(t, "a.txt", got.File)
			assert.Nil(t, got.IndexPersisted)
			assert.Nil(t, got.FinishedAt)

			done := got.Clone()
			done.Complete(6, 384, true, now.Add(time.Second))
			require.NoError(t, store.Finish(ctx, done))

			got, err = store.Get(ctx, "a")
			require.NoError(t, err)
			assert.Equal(t, models.JobCompleted, got.Status)
			assert.Equal(t, 6, got.ChunksIndexed)
			assert.Equal(t, 384, got.EmbeddingDim)
			require.NotNil(t, got.IndexPersisted)
			assert.True(t, *got.IndexPersisted)
			require.NotNil(t, got.FinishedAt)

			again := got.Clone()
			again.Fail("late failure", now)
			assert.ErrorIs(t, store.Finish(ctx, again), ErrInvalidTransition)
			got, _ = store.Get(ctx, "a")
			assert.Equal(t, models.JobCompleted, got.Status, "terminal record must not be overwritten")
		})
	}
}

func TestJobStore_errors(t *testing.T) {
	for name, store := range jobStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := store.Get(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)

			failed := queued("missing", time.Now())
			failed.Fail("x", time.Now())
			assert.ErrorIs(t, store.Finish(ctx, failed), ErrNotFound)

			require.NoError(t, store.Create(ctx, queued("b", time.Now())))
			assert.ErrorIs(t, store.Finish(ctx, queued("b", time.Now())), ErrInvalidTransition)

			notQueued := queued("c", time.Now())
			notQueued.Status = models.JobCompleted
			assert.ErrorIs(t, store.Create(ctx, notQueued), ErrInvalidTransition)
		})
	}
}

func TestJobStore_ListAndFailQueued(t *testing.T) {
	for name, store := range jobStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Now().UTC().Truncate(time.Millisecond)
			for i := 0; i < 3; i++ {
				require.NoError(t, store.Create(ctx, queued(fmt.Sprintf("j%d", i), base.Add(time.Duration(i)*time.Second))))
			}
			done, _ := store.Get(ctx, "j0")
			done.Fail("boom", base)
			require.NoError(t, store.Finish(ctx, done))

			jobs, err := store.List(ctx, 2)
			require.NoError(t, err)
			require.Len(t, jobs, 2)
			assert.Equal(t, "j2", jobs[0].ID)
			assert.Equal(t, "j1", jobs[1].ID)

			n, err := store.FailQueued(ctx, "interrupted by restart")
			require.NoError(t, err)
			assert.Equal(t, 2, n)
			j1, _ := store.Get(ctx, "j1")
			assert.Equal(t, models.JobFailed, j1.Status)
			assert.Equal(t, "interrupted by restart", j1.Error)
			j0, _ := store.Get(ctx, "j0")
			assert.Equal(t, "boom", j0.Error)
		})
	}
}

func TestMemoryJobStore_concurrentWriters(t *testing.T) {
	store := NewMemoryJobStore()
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("job-%d", i)
			if err := store.Create(ctx, queued(id, time.Now())); err != nil {
				t.Error(err)
				return
			}
			j, _ := store.Get(ctx, id)
			j.Complete(i, 8, true, time.Now())
			if err := store.Finish(ctx, j); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()
	jobs, err := store.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, jobs, 100)
	for _, j := range jobs {
		assert.Equal(t, models.JobCompleted, j.Status)
	}
}

func TestSQLiteJobStore_survivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.db")
	store, err := NewSQLiteJobStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Create(context.Background(), queued("persist", time.Now().UTC())))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteJobStore(path)
	require.NoError(t, err)
	defer reopened.Close()
	got, err := reopened.Get(context.Background(), "persist")
	require.NoError(t, err)
	assert.Equal(t, models.JobQueued, got.Status)
}
