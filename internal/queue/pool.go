package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/Unmesh28/voice-ad-sub002/internal/faults"
)

// Handler executes one job. The returned bytes become the job's result. A
// returned error fails the job; whether the queue retries is decided by
// [faults.Retryable].
type Handler func(ctx context.Context, job *Job) ([]byte, error)

// DefaultPoolSettings returns the worker count and start budget (per minute)
// for a queue kind. Generation stages are throttled harder than the script
// stage because their providers meter by concurrent renders.
func DefaultPoolSettings(kind Kind) (workers, startsPerMinute int) {
	switch kind {
	case KindScriptGeneration:
		return 5, 10
	case KindTTSGeneration:
		return 3, 5
	case KindMusicGeneration:
		return 2, 5
	case KindAudioMixing:
		return 2, 5
	}
	return 1, 5
}

// Pool drains one queue with a fixed number of workers and a token-bucket
// limit on job starts.
type Pool struct {
	store   Store
	queue   Kind
	handler Handler

	workers int
	limiter *rate.Limiter
	poll    time.Duration
	log     *slog.Logger
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithWorkers overrides the worker count.
func WithWorkers(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithStartLimit overrides the start budget per minute.
func WithStartLimit(perMinute int) PoolOption {
	return func(p *Pool) {
		if perMinute > 0 {
			p.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
		}
	}
}

// WithPollInterval overrides how long an idle worker sleeps between polls.
func WithPollInterval(d time.Duration) PoolOption {
	return func(p *Pool) {
		if d > 0 {
			p.poll = d
		}
	}
}

// WithPoolLogger sets the pool's logger.
func WithPoolLogger(log *slog.Logger) PoolOption {
	return func(p *Pool) {
		if log != nil {
			p.log = log
		}
	}
}

// NewPool creates a Pool for one queue. Defaults come from
// [DefaultPoolSettings]; options override them.
func NewPool(store Store, queue Kind, handler Handler, opts ...PoolOption) (*Pool, error) {
	if store == nil {
		return nil, fmt.Errorf("queue: pool for %s: nil store", queue)
	}
	if handler == nil {
		return nil, fmt.Errorf("queue: pool for %s: nil handler", queue)
	}
	if !queue.IsValid() {
		return nil, fmt.Errorf("queue: pool: unknown queue kind %q", queue)
	}

	workers, perMinute := DefaultPoolSettings(queue)
	p := &Pool{
		store:   store,
		queue:   queue,
		handler: handler,
		workers: workers,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute),
		poll:    250 * time.Millisecond,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Run blocks draining the queue until ctx is cancelled. It returns ctx's
// error once every worker has stopped.
func (p *Pool) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < p.workers; i++ {
		workerID := fmt.Sprintf("%s-%d", p.queue, i)
		g.Go(func() error {
			return p.work(gctx, workerID)
		})
	}
	return g.Wait()
}

func (p *Pool) work(ctx context.Context, workerID string) error {
	for {
		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}

		job, err := p.store.Reserve(ctx, p.queue, workerID)
		if err != nil {
			p.log.Error("reserve failed", "queue", p.queue, "worker", workerID, "error", err)
			if err := sleep(ctx, p.poll); err != nil {
				return err
			}
			continue
		}
		if job == nil {
			if err := sleep(ctx, p.poll); err != nil {
				return err
			}
			continue
		}

		p.run(ctx, workerID, job)
	}
}

// run executes one reserved job and records the outcome. Store errors here
// are logged, not returned, so a flaky store does not kill the worker.
func (p *Pool) run(ctx context.Context, workerID string, job *Job) {
	start := time.Now()
	p.log.Info("job started",
		"queue", p.queue, "worker", workerID, "job", job.ID, "attempt", job.Attempts)

	result, err := p.handler(ctx, job)
	if err != nil {
		retryable := faults.Retryable(err) && ctx.Err() == nil
		p.log.Warn("job failed",
			"queue", p.queue, "job", job.ID, "attempt", job.Attempts,
			"retryable", retryable, "elapsed", time.Since(start), "error", err)
		if ferr := p.store.Fail(ctx, job.ID, err.Error(), retryable); ferr != nil {
			p.log.Error("record failure", "queue", p.queue, "job", job.ID, "error", ferr)
		}
		return
	}

	if cerr := p.store.Complete(ctx, job.ID, result); cerr != nil {
		p.log.Error("record completion", "queue", p.queue, "job", job.ID, "error", cerr)
		return
	}
	p.log.Info("job completed",
		"queue", p.queue, "job", job.ID, "elapsed", time.Since(start))
}

// sleep waits for d or until ctx is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
