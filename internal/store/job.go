package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/triage-api/internal/domain"
)

// JobStore defines the persistence interface for queued jobs. The
// durable queue in internal/queue is the only writer; it relies on
// ClaimJob being a single conditional update so concurrent dequeuers
// never both win the same row.
type JobStore interface {
	// CreateJob persists a new job row.
	CreateJob(ctx context.Context, job *domain.Job) error

	// GetJob retrieves a job by its unique ID.
	// Returns ErrJobNotFound if no row exists.
	GetJob(ctx context.Context, id uuid.UUID) (*domain.Job, error)

	// ExistsActive reports whether a pending or processing job exists on
	// the queue with the given job type and dedupe key.
	ExistsActive(ctx context.Context, queue, jobType, dedupeKey string) (bool, error)

	// ListDue returns pending jobs on the queue whose run_after is at or
	// before now, ordered by run_after ascending, limited to limit rows.
	ListDue(ctx context.Context, queue string, now time.Time, limit int) ([]*domain.Job, error)

	// ClaimJob attempts the pending -> processing transition for the
	// given job via a conditional update keyed on the current status.
	// Returns true if this caller won the claim, false if another caller
	// already transitioned the row.
	ClaimJob(ctx context.Context, id uuid.UUID, lockedAt time.Time) (bool, error)

	// UpdateJob writes the job's mutable fields (status, retry_count,
	// run_after, locked_at, error_message).
	// Returns ErrJobNotFound if no row exists.
	UpdateJob(ctx context.Context, job *domain.Job) error

	// RecoverStale rewinds processing jobs on the queue whose lock is
	// older than cutoff back to pending with the lock cleared.
	// Returns the number of rewound rows.
	RecoverStale(ctx context.Context, queue string, cutoff time.Time) (int, error)

	// DeleteFinishedBefore purges completed and failed jobs on the queue
	// last updated before cutoff. Returns the number of deleted rows.
	DeleteFinishedBefore(ctx context.Context, queue string, cutoff time.Time) (int, error)

	// WithTx returns a JobStore bound to the provided transaction.
	WithTx(tx *sql.Tx) JobStore
}

// DeadLetterStore persists the append-only records of jobs that
// exhausted their retries. The core only writes these rows.
type DeadLetterStore interface {
	// CreateDeadLetter appends a dead-letter record.
	CreateDeadLetter(ctx context.Context, record *domain.DeadLetter) error

	// ListDeadLetters returns the most recent records for the queue,
	// newest first. An empty queue name returns records for all queues.
	ListDeadLetters(ctx context.Context, queue string, limit int) ([]*domain.DeadLetter, error)

	// WithTx returns a DeadLetterStore bound to the provided transaction.
	WithTx(tx *sql.Tx) DeadLetterStore
}
