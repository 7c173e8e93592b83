package indexer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/vishalkoriyalearning/rag-serve/internal/embedding"
	"github.com/vishalkoriyalearning/rag-serve/internal/models"
	"github.com/vishalkoriyalearning/rag-serve/internal/storage"
	"github.com/vishalkoriyalearning/rag-serve/internal/vector"
)

var (
	// ErrNoText is recorded on a job whose document yields no text.
	ErrNoText = errors.New("no text extracted from document")
	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("indexer is closed")
)

// Extractor turns uploaded bytes into text.
type Extractor interface {
	ExtractBytes(content []byte, filename string) (string, error)
}

// Publisher makes a built index live.
type Publisher interface {
	Publish(gen vector.Generation, idx *vector.FlatIndex, chunks []string) error
	Published() vector.Generation
}

// Orchestrator runs index jobs (extract, chunk, embed, build, publish) on a
// bounded worker pool and records their status in a JobStore. Submitted jobs
// wait in an unbounded FIFO queue and a dispatcher hands them to the pool, so
// Submit never waits for a free worker.
//
// Jobs may run in parallel. Each job takes a sequence number at submission
// and the publisher rejects a generation older than the live one, so a job
// never replaces the index of a job submitted after it. A rejected job still
// completes, with index_persisted=false.
type Orchestrator struct {
	jobs      storage.JobStore
	extractor Extractor
	embedder  embedding.Embedder
	publisher Publisher

	chunkSize    int
	chunkOverlap int
	workers      int
	pollInterval time.Duration
	logger       *zap.Logger

	pool *ants.Pool
	seq  atomic.Uint64
	wg   sync.WaitGroup

	mu     sync.Mutex
	queue  []task
	closed bool
	wake   chan struct{}
}

// task is a submitted job waiting for a worker.
type task struct {
	job     *models.Job
	seq     uint64
	content []byte
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets a logger for job lifecycle events.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithChunking sets the chunk window and overlap, in words.
func WithChunking(size, overlap int) Option {
	return func(o *Orchestrator) {
		o.chunkSize = size
		o.chunkOverlap = overlap
	}
}

// WithWorkers sets the number of jobs that may run at once.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithPollInterval sets how often Wait re-reads a job record.
func WithPollInterval(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// New creates an Orchestrator and its worker pool. Sequence numbers continue
// from the publisher's live generation.
func New(jobs storage.JobStore, extractor Extractor, embedder embedding.Embedder, publisher Publisher, opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		jobs:         jobs,
		extractor:    extractor,
		embedder:     embedder,
		publisher:    publisher,
		chunkSize:    DefaultChunkSize,
		chunkOverlap: DefaultChunkOverlap,
		workers:      2,
		pollInterval: 100 * time.Millisecond,
		logger:       zap.NewNop(),
		wake:         make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.chunkSize <= 0 || o.chunkOverlap < 0 || o.chunkOverlap >= o.chunkSize {
		return nil, ErrInvalidChunkParams
	}
	pool, err := ants.NewPool(o.workers)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}
	o.pool = pool
	o.seq.Store(publisher.Published().Seq)
	go o.dispatch()
	return o, nil
}

// Submit records a queued job for content and schedules it. It returns the
// job id without waiting for the job to run or for a worker to free up.
func (o *Orchestrator) Submit(ctx context.Context, filename string, content []byte) (string, error) {
	o.mu.Lock()
	closed := o.closed
	o.mu.Unlock()
	if closed {
		return "", ErrClosed
	}

	job := &models.Job{
		ID:          uuid.New().String(),
		Status:      models.JobQueued,
		File:        filename,
		SubmittedAt: time.Now().UTC(),
	}
	seq := o.seq.Add(1)
	if err := o.jobs.Create(ctx, job); err != nil {
		return "", fmt.Errorf("failed to record job: %w", err)
	}
	o.logger.Info("index job queued", zap.String("job_id", job.ID), zap.String("file", filename), zap.Uint64("seq", seq))

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		o.finish(ctx, job, func(j *models.Job) { j.Fail(ErrClosed.Error(), time.Now().UTC()) })
		return "", ErrClosed
	}
	// Added under mu so that Close, which sets closed under mu, waits for it.
	o.wg.Add(1)
	o.queue = append(o.queue, task{job: job, seq: seq, content: content})
	o.mu.Unlock()
	o.signal()
	return job.ID, nil
}

func (o *Orchestrator) signal() {
	select {
	case o.wake <- struct{}{}:
	default:
	}
}

// dispatch moves queued tasks to the pool in submission order. It blocks on
// the pool instead of the submitter and exits once closed with an empty queue.
func (o *Orchestrator) dispatch() {
	for {
		o.mu.Lock()
		if len(o.queue) == 0 {
			closed := o.closed
			o.mu.Unlock()
			if closed {
				return
			}
			<-o.wake
			continue
		}
		t := o.queue[0]
		o.queue[0] = task{}
		o.queue = o.queue[1:]
		o.mu.Unlock()

		err := o.pool.Submit(func() {
			defer o.wg.Done()
			o.execute(context.Background(), t.job, t.seq, t.content)
		})
		if err != nil {
			o.logger.Error("failed to schedule index job", zap.String("job_id", t.job.ID), zap.Error(err))
			o.finish(context.Background(), t.job, func(j *models.Job) {
				j.Fail(fmt.Sprintf("failed to schedule job: %v", err), time.Now().UTC())
			})
			o.wg.Done()
		}
	}
}

type jobResult struct {
	chunks    int
	dim       int
	persisted bool
}

// execute runs one job and records its terminal status. Errors and panics
// from any stage fail the job.
func (o *Orchestrator) execute(ctx context.Context, job *models.Job, seq uint64, content []byte) {
	start := time.Now()
	log := o.logger.With(zap.String("job_id", job.ID), zap.String("file", job.File))
	log.Info("index job started")

	var (
		res jobResult
		err error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		res, err = o.run(ctx, job, seq, content, log)
	}()

	if err != nil {
		log.Error("index job failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		o.finish(ctx, job, func(j *models.Job) { j.Fail(err.Error(), time.Now().UTC()) })
		return
	}
	log.Info("index job completed",
		zap.Int("chunks", res.chunks),
		zap.Int("dimensions", res.dim),
		zap.Bool("index_persisted", res.persisted),
		zap.Duration("elapsed", time.Since(start)))
	o.finish(ctx, job, func(j *models.Job) { j.Complete(res.chunks, res.dim, res.persisted, time.Now().UTC()) })
}

func (o *Orchestrator) run(ctx context.Context, job *models.Job, seq uint64, content []byte, log *zap.Logger) (jobResult, error) {
	text, err := o.extractor.ExtractBytes(content, job.File)
	if err != nil {
		return jobResult{}, err
	}
	if strings.TrimSpace(text) == "" {
		return jobResult{}, ErrNoText
	}

	chunks, err := Chunk(text, o.chunkSize, o.chunkOverlap)
	if err != nil {
		return jobResult{}, err
	}
	log.Debug("document chunked", zap.Int("chunks", len(chunks)))

	matrix, err := o.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return jobResult{}, fmt.Errorf("embed chunks: %w", err)
	}
	if len(matrix) != len(chunks) {
		return jobResult{}, fmt.Errorf("embed chunks: got %d vectors for %d chunks", len(matrix), len(chunks))
	}
	dim := vector.Dim(matrix)
	log.Debug("chunks embedded", zap.Int("dimensions", dim))

	idx, err := vector.Build(matrix)
	if err != nil {
		return jobResult{}, fmt.Errorf("build index: %w", err)
	}

	res := jobResult{chunks: len(chunks), dim: dim, persisted: true}
	err = o.publisher.Publish(vector.Generation{Seq: seq, JobID: job.ID}, idx, chunks)
	switch {
	case errors.Is(err, vector.ErrSuperseded):
		log.Warn("index not published, a later submission is live", zap.Uint64("seq", seq))
		res.persisted = false
	case err != nil:
		return jobResult{}, fmt.Errorf("publish index: %w", err)
	}
	return res, nil
}

// finish applies update to a copy of job and stores it as the terminal record.
func (o *Orchestrator) finish(ctx context.Context, job *models.Job, update func(*models.Job)) {
	final := job.Clone()
	update(final)
	if err := o.jobs.Finish(ctx, final); err != nil {
		o.logger.Error("failed to record job status", zap.String("job_id", job.ID), zap.Error(err))
	}
}

// Status returns the job record, or storage.ErrNotFound for an unknown id.
func (o *Orchestrator) Status(ctx context.Context, id string) (*models.Job, error) {
	return o.jobs.Get(ctx, id)
}

// Wait polls the job until it reaches a terminal status or ctx is done.
func (o *Orchestrator) Wait(ctx context.Context, id string) (*models.Job, error) {
	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()
	for {
		job, err := o.jobs.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if job.Status.Terminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Running returns the number of jobs currently executing.
func (o *Orchestrator) Running() int {
	return o.pool.Running()
}

// Pending returns the number of submitted jobs still waiting for a worker.
func (o *Orchestrator) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queue)
}

// Close stops accepting jobs and waits for queued and running ones until ctx
// is done, then releases the pool. Jobs still queued at that point fail.
func (o *Orchestrator) Close(ctx context.Context) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	o.mu.Unlock()
	o.signal()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = fmt.Errorf("jobs still running at shutdown: %w", ctx.Err())
	}
	o.pool.Release()
	return err
}
