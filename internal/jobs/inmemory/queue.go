package inmemory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/statement-insights/internal/jobs"
	"github.com/dvloznov/statement-insights/internal/logger"
)

// DefaultWorkers is the number of concurrent workers started by Start.
const DefaultWorkers = 5

// ErrQueueClosed is returned after Stop or Close.
var ErrQueueClosed = errors.New("queue is closed")

// Queue is an in-memory job publisher and consumer backed by a buffered
// channel. It suits single-instance deployments and tests.
type Queue struct {
	jobChan   chan *jobs.AnalyzeUploadJob
	closeChan chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	store     jobs.JobStore
	closed    bool

	workers int
	backoff func(retry int) time.Duration
}

// NewQueue creates a queue. bufferSize determines how many jobs can wait
// before PublishAnalyzeUpload blocks; store may be nil.
func NewQueue(bufferSize int, store jobs.JobStore) *Queue {
	return &Queue{
		jobChan:   make(chan *jobs.AnalyzeUploadJob, bufferSize),
		closeChan: make(chan struct{}),
		store:     store,
		workers:   DefaultWorkers,
		backoff:   func(retry int) time.Duration { return time.Duration(retry) * time.Second },
	}
}

// WithWorkers sets the worker count used by Start.
func (q *Queue) WithWorkers(n int) *Queue {
	if n > 0 {
		q.workers = n
	}
	return q
}

// WithBackoff replaces the retry delay policy.
func (q *Queue) WithBackoff(f func(retry int) time.Duration) *Queue {
	q.backoff = f
	return q
}

// PublishAnalyzeUpload enqueues a job, filling in id, status and defaults.
func (q *Queue) PublishAnalyzeUpload(ctx context.Context, job *jobs.AnalyzeUploadJob) error {
	q.mu.RLock()
	closed := q.closed
	q.mu.RUnlock()

	if closed {
		return ErrQueueClosed
	}
	if job.UploadID == "" {
		return fmt.Errorf("PublishAnalyzeUpload: upload id is required")
	}

	if job.JobID == "" {
		job.JobID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = jobs.JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	if job.MaxRetries == 0 {
		job.MaxRetries = jobs.DefaultMaxRetries
	}

	if err := q.save(ctx, job); err != nil {
		return fmt.Errorf("PublishAnalyzeUpload: save job: %w", err)
	}

	select {
	case q.jobChan <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closeChan:
		return ErrQueueClosed
	}
}

// Start launches the workers. Each job is handled by exactly one worker.
func (q *Queue) Start(ctx context.Context, handler jobs.JobHandler) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, handler)
	}
	log := logger.FromContext(ctx)
	log.Info().Int("workers", q.workers).Msg("Job queue started")
	return nil
}

func (q *Queue) worker(ctx context.Context, handler jobs.JobHandler) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			return
		case job := <-q.jobChan:
			if job == nil {
				return
			}
			q.processJob(ctx, job, handler)
		}
	}
}

// processJob executes a single job and schedules a retry on failure.
func (q *Queue) processJob(ctx context.Context, job *jobs.AnalyzeUploadJob, handler jobs.JobHandler) {
	log := logger.FromContext(ctx).With().Str("job_id", job.JobID).Str("upload_id", job.UploadID).Logger()

	job.Status = jobs.JobStatusRunning
	started := time.Now().UTC()
	job.StartedAt = &started
	job.CompletedAt = nil
	q.saveLogged(ctx, job)

	err := handler(logger.WithContext(ctx, log), job)

	completed := time.Now().UTC()
	job.CompletedAt = &completed

	var retry *jobs.AnalyzeUploadJob
	switch {
	case err == nil:
		job.Status = jobs.JobStatusCompleted
		job.Error = ""
	case jobs.IsPermanent(err) || job.RetryCount >= job.MaxRetries:
		job.Status = jobs.JobStatusFailed
		job.Error = err.Error()
		log.Error().Err(err).Int("retries", job.RetryCount).Msg("Job failed")
	default:
		job.Error = err.Error()
		job.RetryCount++
		job.Status = jobs.JobStatusRetrying
		next := *job
		retry = &next
	}

	// The final state must be stored before a retry can overwrite it.
	q.saveLogged(ctx, job)

	if retry != nil {
		delay := q.backoff(retry.RetryCount)
		log.Warn().Err(err).Int("retry", retry.RetryCount).Dur("backoff", delay).Msg("Job failed, retrying")
		time.AfterFunc(delay, func() {
			retry.Status = jobs.JobStatusPending
			retry.StartedAt = nil
			retry.CompletedAt = nil
			if err := q.PublishAnalyzeUpload(ctx, retry); err != nil {
				log.Error().Err(err).Msg("Failed to re-enqueue job")
			}
		})
	}
}

func (q *Queue) save(ctx context.Context, job *jobs.AnalyzeUploadJob) error {
	if q.store == nil {
		return nil
	}
	return q.store.SaveJob(ctx, job)
}

func (q *Queue) saveLogged(ctx context.Context, job *jobs.AnalyzeUploadJob) {
	if err := q.save(ctx, job); err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Str("job_id", job.JobID).Msg("Failed to save job state")
	}
}

// Stop closes the queue and waits for in-flight jobs, bounded by ctx.
// Jobs still buffered are dropped and keep their stored status.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the queue without a deadline.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

var _ jobs.Publisher = (*Queue)(nil)
var _ jobs.Consumer = (*Queue)(nil)
