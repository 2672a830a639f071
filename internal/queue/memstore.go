package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is an in-memory Store for tests and single-process runs.
// It is safe for concurrent use.
type MemStore struct {
	mu   sync.Mutex
	jobs map[string]*Job

	// order holds job IDs per queue in enqueue order; retried jobs are
	// re-appended so they rejoin at the tail.
	order map[Kind][]string

	subs   map[int]chan Event
	nextID int

	// now is replaceable for tests.
	now func() time.Time
}

var _ Store = (*MemStore)(nil)

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		jobs:  make(map[string]*Job),
		order: make(map[Kind][]string),
		subs:  make(map[int]chan Event),
		now:   time.Now,
	}
}

// Enqueue implements Store.
func (s *MemStore) Enqueue(_ context.Context, queue Kind, payload []byte, opts EnqueueOptions) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	job := &Job{
		ID:          uuid.NewString(),
		Queue:       queue,
		Payload:     payload,
		Status:      StatusPending,
		MaxAttempts: maxAttempts,
		CreatedAt:   s.now(),
	}
	s.jobs[job.ID] = job
	s.order[queue] = append(s.order[queue], job.ID)
	return job.ID, nil
}

// Reserve implements Store. Reservation order is FIFO over ready jobs.
func (s *MemStore) Reserve(_ context.Context, queue Kind, _ string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, id := range s.order[queue] {
		job := s.jobs[id]
		if job == nil || job.Status != StatusPending || now.Before(job.NotBefore) {
			continue
		}
		job.Status = StatusRunning
		job.Attempts++
		return snapshot(job), nil
	}
	return nil, nil
}

// Complete implements Store.
func (s *MemStore) Complete(_ context.Context, jobID string, result []byte) error {
	s.mu.Lock()
	job, ok := s.jobs[jobID]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	if job.Status.Terminal() {
		s.mu.Unlock()
		return nil
	}
	job.Status = StatusCompleted
	job.Progress = 100
	job.Result = result
	job.CompletedAt = s.now()
	s.pruneLocked(job.Queue)
	ev := Event{Type: EventCompleted, JobID: jobID, Queue: job.Queue, Progress: 100}
	s.mu.Unlock()

	s.publish(ev)
	return nil
}

// Fail implements Store.
func (s *MemStore) Fail(_ context.Context, jobID string, errMsg string, retryable bool) error {
	s.mu.Lock()
	job, ok := s.jobs[jobID]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	if job.Status.Terminal() {
		s.mu.Unlock()
		return nil
	}

	job.LastError = errMsg
	if retryable && job.Attempts < job.MaxAttempts {
		job.Status = StatusPending
		job.NotBefore = s.now().Add(backoffDelay(job.Attempts))
		// Rejoin at the tail.
		s.removeFromOrderLocked(job.Queue, jobID)
		s.order[job.Queue] = append(s.order[job.Queue], jobID)
		s.mu.Unlock()
		return nil
	}

	job.Status = StatusFailed
	job.CompletedAt = s.now()
	s.pruneLocked(job.Queue)
	ev := Event{Type: EventFailed, JobID: jobID, Queue: job.Queue, Error: errMsg}
	s.mu.Unlock()

	s.publish(ev)
	return nil
}

// Progress implements Store.
func (s *MemStore) Progress(_ context.Context, jobID string, percent int) error {
	s.mu.Lock()
	job, ok := s.jobs[jobID]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	if job.Status != StatusRunning {
		s.mu.Unlock()
		return nil
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	job.Progress = percent
	ev := Event{Type: EventProgress, JobID: jobID, Queue: job.Queue, Progress: percent}
	s.mu.Unlock()

	s.publish(ev)
	return nil
}

// Cancel implements Store.
func (s *MemStore) Cancel(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	if job.Status.Terminal() {
		return nil
	}
	job.Status = StatusCancelled
	job.CompletedAt = s.now()
	return nil
}

// Get implements Store.
func (s *MemStore) Get(_ context.Context, jobID string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	return snapshot(job), nil
}

// Subscribe implements Store.
func (s *MemStore) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

// publish delivers the event to every subscriber without blocking.
func (s *MemStore) publish(ev Event) {
	s.mu.Lock()
	subs := make([]chan Event, 0, len(s.subs))
	for _, ch := range s.subs {
		subs = append(subs, ch)
	}
	s.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// pruneLocked enforces the retention policy for one queue. Callers hold mu.
func (s *MemStore) pruneLocked(queue Kind) {
	type finished struct {
		id  string
		at  time.Time
		sta Status
	}
	var completed, failed []finished
	cutoff := s.now().Add(-retainAge)

	for _, id := range s.order[queue] {
		job := s.jobs[id]
		if job == nil {
			continue
		}
		switch job.Status {
		case StatusCompleted:
			completed = append(completed, finished{id, job.CompletedAt, job.Status})
		case StatusFailed, StatusCancelled:
			failed = append(failed, finished{id, job.CompletedAt, job.Status})
		}
	}

	drop := make(map[string]bool)
	collect := func(list []finished, keep int) {
		sort.Slice(list, func(i, j int) bool { return list[i].at.After(list[j].at) })
		for i, f := range list {
			if i >= keep || f.at.Before(cutoff) {
				drop[f.id] = true
			}
		}
	}
	collect(completed, retainCompleted)
	collect(failed, retainFailed)

	if len(drop) == 0 {
		return
	}
	for id := range drop {
		delete(s.jobs, id)
	}
	kept := s.order[queue][:0]
	for _, id := range s.order[queue] {
		if !drop[id] {
			kept = append(kept, id)
		}
	}
	s.order[queue] = kept
}

// removeFromOrderLocked drops one ID from a queue's order slice.
func (s *MemStore) removeFromOrderLocked(queue Kind, jobID string) {
	list := s.order[queue]
	for i, id := range list {
		if id == jobID {
			s.order[queue] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// snapshot copies a job so callers cannot mutate store state.
func snapshot(j *Job) *Job {
	cp := *j
	cp.Payload = append([]byte(nil), j.Payload...)
	cp.Result = append([]byte(nil), j.Result...)
	return &cp
}
