package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for the jobs table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS jobs (
    id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
    queue        TEXT NOT NULL,
    payload      BYTEA NOT NULL DEFAULT ''::bytea,
    status       TEXT NOT NULL DEFAULT 'PENDING',
    attempts     INT NOT NULL DEFAULT 0,
    max_attempts INT NOT NULL DEFAULT 3,
    progress     INT NOT NULL DEFAULT 0,
    last_error   TEXT NOT NULL DEFAULT '',
    result       BYTEA,
    not_before   TIMESTAMPTZ NOT NULL DEFAULT now(),
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    completed_at TIMESTAMPTZ,
    tail_seq     BIGSERIAL
);
CREATE INDEX IF NOT EXISTS idx_jobs_queue_ready ON jobs(queue, tail_seq) WHERE status = 'PENDING';
CREATE INDEX IF NOT EXISTS idx_jobs_completed ON jobs(queue, status, completed_at);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a Store backed by a PostgreSQL database. Events are
// published in-process: the worker pool and the store live in the same
// binary, so a completed job's event reaches subscribers without LISTEN /
// NOTIFY round trips.
type PostgresStore struct {
	db DB

	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new [PostgresStore] using the given connection
// or pool. The caller is responsible for calling [PostgresStore.Migrate]
// before issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db, subs: make(map[int]chan Event)}
}

// Migrate executes the [Schema] DDL, creating the jobs table and indexes if
// they do not already exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("queue: migrate: %w", err)
	}
	return nil
}

// Enqueue implements Store.
func (s *PostgresStore) Enqueue(ctx context.Context, queue Kind, payload []byte, opts EnqueueOptions) (string, error) {
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	const query = `
		INSERT INTO jobs (queue, payload, max_attempts)
		VALUES ($1, $2, $3)
		RETURNING id`

	var id string
	if err := s.db.QueryRow(ctx, query, string(queue), payload, maxAttempts).Scan(&id); err != nil {
		return "", fmt.Errorf("queue: enqueue %s: %w", queue, err)
	}
	return id, nil
}

// Reserve implements Store. SKIP LOCKED keeps concurrent workers from
// claiming the same row.
func (s *PostgresStore) Reserve(ctx context.Context, queue Kind, workerID string) (*Job, error) {
	const query = `
		UPDATE jobs SET status = 'RUNNING', attempts = attempts + 1
		WHERE id = (
			SELECT id FROM jobs
			WHERE queue = $1 AND status = 'PENDING' AND not_before <= now()
			ORDER BY tail_seq
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING id, queue, payload, status, attempts, max_attempts, progress,
		          last_error, result, not_before, created_at,
		          COALESCE(completed_at, 'epoch'::timestamptz)`

	job, err := scanJob(s.db.QueryRow(ctx, query, string(queue)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("queue: reserve %s for %s: %w", queue, workerID, err)
	}
	return job, nil
}

// Complete implements Store.
func (s *PostgresStore) Complete(ctx context.Context, jobID string, result []byte) error {
	const query = `
		UPDATE jobs
		SET status = 'COMPLETED', progress = 100, result = $2, completed_at = now()
		WHERE id = $1 AND status NOT IN ('COMPLETED', 'FAILED', 'CANCELLED')
		RETURNING queue`

	var queue string
	err := s.db.QueryRow(ctx, query, jobID, result).Scan(&queue)
	if errors.Is(err, pgx.ErrNoRows) {
		return s.missingOrTerminal(ctx, jobID)
	}
	if err != nil {
		return fmt.Errorf("queue: complete %s: %w", jobID, err)
	}

	s.prune(ctx, Kind(queue))
	s.publish(Event{Type: EventCompleted, JobID: jobID, Queue: Kind(queue), Progress: 100})
	return nil
}

// Fail implements Store.
func (s *PostgresStore) Fail(ctx context.Context, jobID string, errMsg string, retryable bool) error {
	if retryable {
		// Retry path: back off and rejoin the tail. Applies only while the
		// retry budget lasts.
		const retryQuery = `
			UPDATE jobs
			SET status = 'PENDING', last_error = $2,
			    not_before = now() + ($3 * interval '1 millisecond'),
			    tail_seq = nextval('jobs_tail_seq_seq')
			WHERE id = $1 AND status = 'RUNNING' AND attempts < max_attempts
			RETURNING queue`

		var queue string
		var attempts int
		err := s.db.QueryRow(ctx, `SELECT attempts FROM jobs WHERE id = $1`, jobID).Scan(&attempts)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("queue: fail %s: %w", jobID, err)
		}

		delay := backoffDelay(attempts) / time.Millisecond
		err = s.db.QueryRow(ctx, retryQuery, jobID, errMsg, int64(delay)).Scan(&queue)
		if err == nil {
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("queue: fail %s: %w", jobID, err)
		}
		// Budget exhausted or job no longer running; fall through to the
		// terminal path.
	}

	const query = `
		UPDATE jobs
		SET status = 'FAILED', last_error = $2, completed_at = now()
		WHERE id = $1 AND status NOT IN ('COMPLETED', 'FAILED', 'CANCELLED')
		RETURNING queue`

	var queue string
	err := s.db.QueryRow(ctx, query, jobID, errMsg).Scan(&queue)
	if errors.Is(err, pgx.ErrNoRows) {
		return s.missingOrTerminal(ctx, jobID)
	}
	if err != nil {
		return fmt.Errorf("queue: fail %s: %w", jobID, err)
	}

	s.prune(ctx, Kind(queue))
	s.publish(Event{Type: EventFailed, JobID: jobID, Queue: Kind(queue), Error: errMsg})
	return nil
}

// Progress implements Store.
func (s *PostgresStore) Progress(ctx context.Context, jobID string, percent int) error {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	const query = `
		UPDATE jobs SET progress = $2
		WHERE id = $1 AND status = 'RUNNING'
		RETURNING queue`

	var queue string
	err := s.db.QueryRow(ctx, query, jobID, percent).Scan(&queue)
	if errors.Is(err, pgx.ErrNoRows) {
		return s.missingOrTerminal(ctx, jobID)
	}
	if err != nil {
		return fmt.Errorf("queue: progress %s: %w", jobID, err)
	}

	s.publish(Event{Type: EventProgress, JobID: jobID, Queue: Kind(queue), Progress: percent})
	return nil
}

// Cancel implements Store.
func (s *PostgresStore) Cancel(ctx context.Context, jobID string) error {
	const query = `
		UPDATE jobs SET status = 'CANCELLED', completed_at = now()
		WHERE id = $1 AND status NOT IN ('COMPLETED', 'FAILED', 'CANCELLED')`

	tag, err := s.db.Exec(ctx, query, jobID)
	if err != nil {
		return fmt.Errorf("queue: cancel %s: %w", jobID, err)
	}
	if tag.RowsAffected() == 0 {
		return s.missingOrTerminal(ctx, jobID)
	}
	return nil
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, jobID string) (*Job, error) {
	const query = `
		SELECT id, queue, payload, status, attempts, max_attempts, progress,
		       last_error, result, not_before, created_at,
		       COALESCE(completed_at, 'epoch'::timestamptz)
		FROM jobs WHERE id = $1`

	job, err := scanJob(s.db.QueryRow(ctx, query, jobID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("queue: get %s: %w", jobID, err)
	}
	return job, nil
}

// Subscribe implements Store.
func (s *PostgresStore) Subscribe(buffer int) (<-chan Event, func()) {
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

func (s *PostgresStore) publish(ev Event) {
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

// prune enforces the retention policy for one queue. Failures are logged by
// the database; pruning is best effort and never fails the caller.
func (s *PostgresStore) prune(ctx context.Context, queue Kind) {
	const query = `
		DELETE FROM jobs
		WHERE queue = $1 AND status = $2 AND (
			completed_at < now() - $4 * interval '1 hour'
			OR id IN (
				SELECT id FROM jobs
				WHERE queue = $1 AND status = $2
				ORDER BY completed_at DESC
				OFFSET $3
			)
		)`

	hours := int(retainAge / time.Hour)
	s.db.Exec(ctx, query, string(queue), string(StatusCompleted), retainCompleted, hours)
	s.db.Exec(ctx, query, string(queue), string(StatusFailed), retainFailed, hours)
}

// missingOrTerminal distinguishes an unknown job from one already finished.
// Operations on finished jobs are no-ops, matching MemStore.
func (s *PostgresStore) missingOrTerminal(ctx context.Context, jobID string) error {
	var status string
	err := s.db.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1`, jobID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("queue: lookup %s: %w", jobID, err)
	}
	return nil
}

func scanJob(row pgx.Row) (*Job, error) {
	var job Job
	var queue, status string
	if err := row.Scan(
		&job.ID, &queue, &job.Payload, &status, &job.Attempts, &job.MaxAttempts,
		&job.Progress, &job.LastError, &job.Result, &job.NotBefore,
		&job.CreatedAt, &job.CompletedAt,
	); err != nil {
		return nil, err
	}
	job.Queue = Kind(queue)
	job.Status = Status(status)
	return &job, nil
}
