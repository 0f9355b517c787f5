// Package dispatch serializes work per key. Each key gets its own FIFO lane
// so jobs for the same chat never overlap, while a global semaphore bounds
// how many lanes run at once.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

var (
	// ErrLaneFull is returned when a key already has laneSize jobs waiting.
	ErrLaneFull = errors.New("lane full")
	// ErrStopped is returned for jobs submitted to or abandoned by a stopped queue.
	ErrStopped = errors.New("queue stopped")
)

const laneSize = 100

// Queue manages per-key lanes with a global concurrency semaphore.
type Queue struct {
	lanes     map[string]chan *Job
	semaphore *semaphore.Weighted

	ctx     context.Context
	cancel  context.CancelFunc
	stopped bool
	wg      sync.WaitGroup
	mu      sync.Mutex
}

// NewQueue creates a started Queue that allows up to maxConcurrent jobs to
// run simultaneously across all lanes.
func NewQueue(maxConcurrent int64) *Queue {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		lanes:     make(map[string]chan *Job),
		semaphore: semaphore.NewWeighted(maxConcurrent),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Stop cancels running jobs, closes all lanes, and waits for lane
// goroutines to exit. Jobs still waiting fail with ErrStopped.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	q.cancel()
	for _, lane := range q.lanes {
		close(lane)
	}
	q.mu.Unlock()
	q.wg.Wait()
}

// Enqueue adds a Job to its key's lane, creating the lane (and its
// goroutine) on first use.
func (q *Queue) Enqueue(job *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return ErrStopped
	}

	lane, exists := q.lanes[job.Key]
	if !exists {
		lane = make(chan *Job, laneSize)
		q.lanes[job.Key] = lane
		q.wg.Add(1)
		go q.processLane(job.Key, lane)
	}

	select {
	case lane <- job:
		return nil
	default:
		return fmt.Errorf("enqueue %s: %w", job.Key, ErrLaneFull)
	}
}

// Do enqueues fn on key's lane and waits until it has finished or been
// skipped. The lane stays held until fn returns, so fn may settle its
// result before the next job for key starts.
func (q *Queue) Do(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	job := NewJob(ctx, key, fn)
	if err := q.Enqueue(job); err != nil {
		return err
	}
	<-job.Done()
	return job.Err
}

// processLane drains a single lane, acquiring a semaphore slot before
// running each job. This keeps strict FIFO order within a key while the
// semaphore limits cross-key parallelism.
func (q *Queue) processLane(key string, lane chan *Job) {
	defer q.wg.Done()
	for job := range lane {
		q.run(key, job)
	}
}

func (q *Queue) run(key string, job *Job) {
	defer close(job.done)

	if err := job.ctx.Err(); err != nil {
		job.Err = err
		return
	}
	if err := q.semaphore.Acquire(q.ctx, 1); err != nil {
		job.Err = ErrStopped
		return
	}
	defer q.semaphore.Release(1)
	// Acquire may succeed on a done context when a slot is free.
	if q.ctx.Err() != nil {
		job.Err = ErrStopped
		return
	}

	// The job is cancelled by either its own context or queue shutdown.
	ctx, cancel := context.WithCancel(job.ctx)
	stop := context.AfterFunc(q.ctx, cancel)
	defer stop()
	defer cancel()

	start := time.Now()
	job.Err = job.Fn(ctx)
	slog.Debug("lane job finished",
		"job_id", job.ID,
		"key", key,
		"waited", start.Sub(job.queued),
		"took", time.Since(start),
		"error", job.Err,
	)
}
