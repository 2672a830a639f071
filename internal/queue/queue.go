// Package queue provides the durable named job queues underneath the
// production pipeline.
//
// Each pipeline stage runs as a Job on a queue named by its kind. A Store
// persists jobs and implements atomic reservation, completion, failure with
// retry/backoff, progress, and cancellation. Two stores ship: an in-memory
// store for tests and single-process runs, and a PostgreSQL store for durable
// deployments. The worker Pool drains one queue with bounded concurrency and
// a start-rate limit.
package queue

import (
	"math/rand"
	"time"
)

// Kind names a queue. One queue per pipeline stage kind.
type Kind string

const (
	KindScriptGeneration Kind = "SCRIPT_GENERATION"
	KindTTSGeneration    Kind = "TTS_GENERATION"
	KindMusicGeneration  Kind = "MUSIC_GENERATION"
	KindAudioMixing      Kind = "AUDIO_MIXING"
)

// IsValid reports whether k is a recognised queue kind.
func (k Kind) IsValid() bool {
	switch k {
	case KindScriptGeneration, KindTTSGeneration, KindMusicGeneration, KindAudioMixing:
		return true
	}
	return false
}

// Status is the lifecycle state of a Job.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// DefaultMaxAttempts is the retry budget applied when EnqueueOptions does not
// override it.
const DefaultMaxAttempts = 3

// Job is one invocation of one pipeline stage.
type Job struct {
	ID    string
	Queue Kind

	// Payload is the stage-specific request, JSON-encoded by the caller.
	Payload []byte

	Status      Status
	Attempts    int
	MaxAttempts int

	// Progress in [0, 100], updated by the running worker.
	Progress int

	LastError string

	// Result is the stage-specific response, set on completion.
	Result []byte

	// NotBefore delays reservation, used for retry backoff.
	NotBefore time.Time

	CreatedAt   time.Time
	CompletedAt time.Time
}

// EnqueueOptions tunes a single enqueue.
type EnqueueOptions struct {
	// MaxAttempts overrides DefaultMaxAttempts when positive.
	MaxAttempts int
}

// EventType classifies queue events.
type EventType string

const (
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
	EventProgress  EventType = "progress"
)

// Event is one observable queue transition.
type Event struct {
	Type     EventType
	JobID    string
	Queue    Kind
	Progress int
	Error    string
}

// Retention bounds how many finished jobs a queue keeps for observability.
const (
	retainCompleted = 100
	retainFailed    = 200
	retainAge       = 24 * time.Hour
)

// backoffBase is the first retry delay; subsequent retries double it.
const backoffBase = 2 * time.Second

// backoffDelay computes the jittered exponential delay before retry number
// attempt (1-based). Jitter is +-20% so synchronized failures spread out.
func backoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := backoffBase << (attempt - 1)
	jitter := 0.8 + 0.4*rand.Float64()
	return time.Duration(float64(d) * jitter)
}
