package queue

import (
	"context"
	"errors"
)

// ErrNotFound is returned for operations on unknown job IDs.
var ErrNotFound = errors.New("queue: job not found")

// Store persists jobs and implements the queue semantics. Implementations
// must be safe for concurrent use.
type Store interface {
	// Enqueue appends a PENDING job to the queue and returns its ID.
	Enqueue(ctx context.Context, queue Kind, payload []byte, opts EnqueueOptions) (string, error)

	// Reserve atomically claims the oldest ready PENDING job: it marks the
	// job RUNNING, increments its attempts counter, and returns it. Returns
	// (nil, nil) when no job is ready.
	Reserve(ctx context.Context, queue Kind, workerID string) (*Job, error)

	// Complete marks a RUNNING job COMPLETED and stores its result.
	Complete(ctx context.Context, jobID string, result []byte) error

	// Fail records a failure. Retryable failures re-enqueue the job at the
	// tail with exponential backoff until attempts reach MaxAttempts; after
	// that, and for non-retryable failures, the job is terminally FAILED.
	Fail(ctx context.Context, jobID string, errMsg string, retryable bool) error

	// Progress updates a RUNNING job's progress percentage.
	Progress(ctx context.Context, jobID string, percent int) error

	// Cancel marks a PENDING or RUNNING job CANCELLED. The running worker
	// observes the state on its next queue interaction.
	Cancel(ctx context.Context, jobID string) error

	// Get returns a snapshot of the job.
	Get(ctx context.Context, jobID string) (*Job, error)

	// Subscribe registers an event consumer. The returned cancel function
	// must be called to release the subscription. Slow consumers miss
	// events rather than block the queue.
	Subscribe(buffer int) (<-chan Event, func())
}
