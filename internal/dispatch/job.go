package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Job is one unit of work bound to a lane key.
type Job struct {
	ID  string
	Key string
	Fn  func(ctx context.Context) error
	Err error

	queued time.Time
	ctx    context.Context
	done   chan struct{}
}

// NewJob creates a queued Job. ctx bounds the job's execution; a job whose
// context is done by the time it reaches the head of its lane is skipped.
func NewJob(ctx context.Context, key string, fn func(ctx context.Context) error) *Job {
	return &Job{
		ID:     uuid.New().String(),
		Key:    key,
		Fn:     fn,
		queued: time.Now(),
		ctx:    ctx,
		done:   make(chan struct{}),
	}
}

// Done is closed once the job has finished or been skipped.
func (j *Job) Done() <-chan struct{} {
	return j.done
}
