package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/triage-api/internal/domain"
	"github.com/phrazzld/triage-api/internal/platform/logger"
	"github.com/phrazzld/triage-api/internal/store"
)

// jobColumns is the scan order shared by all job queries.
const jobColumns = `id, queue, job_type, status, payload, dedupe_key,
	retry_count, max_retries, run_after, locked_at, error_message,
	created_at, updated_at`

// PostgresJobStore implements the store.JobStore interface using
// PostgreSQL.
type PostgresJobStore struct {
	db store.DBTX
}

// NewPostgresJobStore creates a new PostgresJobStore.
func NewPostgresJobStore(db store.DBTX) *PostgresJobStore {
	return &PostgresJobStore{db: db}
}

// WithTx returns a JobStore bound to the provided transaction.
func (s *PostgresJobStore) WithTx(tx *sql.Tx) store.JobStore {
	return &PostgresJobStore{db: tx}
}

// CreateJob persists a new job row.
func (s *PostgresJobStore) CreateJob(ctx context.Context, job *domain.Job) error {
	log := logger.FromContext(ctx)

	query := `
		INSERT INTO jobs (id, queue, job_type, status, payload, dedupe_key,
			retry_count, max_retries, run_after, locked_at, error_message,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := s.db.ExecContext(ctx, query,
		job.ID,
		job.Queue,
		job.JobType,
		job.Status,
		job.Payload,
		job.DedupeKey,
		job.RetryCount,
		job.MaxRetries,
		job.RunAfter,
		job.LockedAt,
		job.ErrorMessage,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to create job",
			"job_id", job.ID,
			"queue", job.Queue,
			"job_type", job.JobType,
			"error", err)
		return MapError(err)
	}

	return nil
}

// GetJob retrieves a job by its unique ID.
func (s *PostgresJobStore) GetJob(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	query := fmt.Sprintf(`SELECT %s FROM jobs WHERE id = $1`, jobColumns)

	row := s.db.QueryRowContext(ctx, query, id)
	job, err := scanJob(row)
	if err != nil {
		if IsNotFoundError(MapError(err)) {
			return nil, store.ErrJobNotFound
		}
		return nil, MapError(err)
	}

	return job, nil
}

// ExistsActive reports whether a pending or processing job exists on the
// queue with the given job type and dedupe key.
func (s *PostgresJobStore) ExistsActive(ctx context.Context, queue, jobType, dedupeKey string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM jobs
			WHERE queue = $1 AND job_type = $2 AND dedupe_key = $3
				AND status IN ('pending', 'processing')
		)
	`

	var exists bool
	if err := s.db.QueryRowContext(ctx, query, queue, jobType, dedupeKey).Scan(&exists); err != nil {
		return false, MapError(err)
	}

	return exists, nil
}

// ListDue returns due pending jobs ordered by run_after ascending.
func (s *PostgresJobStore) ListDue(ctx context.Context, queue string, now time.Time, limit int) ([]*domain.Job, error) {
	log := logger.FromContext(ctx)

	query := fmt.Sprintf(`
		SELECT %s FROM jobs
		WHERE queue = $1 AND status = 'pending' AND run_after <= $2
		ORDER BY run_after ASC
		LIMIT $3
	`, jobColumns)

	rows, err := s.db.QueryContext(ctx, query, queue, now, limit)
	if err != nil {
		log.Error("failed to query due jobs",
			"queue", queue,
			"error", err)
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job row: %w", err)
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating job rows: %w", err)
	}

	return jobs, nil
}

// ClaimJob attempts the pending -> processing transition via a single
// conditional update keyed on the row's current status. Exactly one of
// any number of racing callers wins.
func (s *PostgresJobStore) ClaimJob(ctx context.Context, id uuid.UUID, lockedAt time.Time) (bool, error) {
	query := `
		UPDATE jobs
		SET status = 'processing', locked_at = $1, updated_at = $2
		WHERE id = $3 AND status = 'pending'
	`

	result, err := s.db.ExecContext(ctx, query, lockedAt, time.Now().UTC(), id)
	if err != nil {
		return false, MapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected == 1, nil
}

// UpdateJob writes the job's mutable fields.
func (s *PostgresJobStore) UpdateJob(ctx context.Context, job *domain.Job) error {
	query := `
		UPDATE jobs
		SET status = $1, retry_count = $2, run_after = $3, locked_at = $4,
			error_message = $5, updated_at = $6
		WHERE id = $7
	`

	job.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, query,
		job.Status,
		job.RetryCount,
		job.RunAfter,
		job.LockedAt,
		job.ErrorMessage,
		job.UpdatedAt,
		job.ID,
	)
	if err != nil {
		return MapError(err)
	}

	return CheckRowsAffected(result, "job")
}

// RecoverStale rewinds processing jobs whose lock is older than cutoff
// back to pending with the lock cleared.
func (s *PostgresJobStore) RecoverStale(ctx context.Context, queue string, cutoff time.Time) (int, error) {
	log := logger.FromContext(ctx)

	query := `
		UPDATE jobs
		SET status = 'pending', locked_at = NULL, updated_at = $1
		WHERE queue = $2 AND status = 'processing' AND locked_at < $3
	`

	result, err := s.db.ExecContext(ctx, query, time.Now().UTC(), queue, cutoff)
	if err != nil {
		log.Error("failed to recover stale jobs",
			"queue", queue,
			"error", err)
		return 0, MapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return int(rowsAffected), nil
}

// DeleteFinishedBefore purges old completed and failed jobs.
func (s *PostgresJobStore) DeleteFinishedBefore(ctx context.Context, queue string, cutoff time.Time) (int, error) {
	query := `
		DELETE FROM jobs
		WHERE queue = $1 AND status IN ('completed', 'failed') AND updated_at < $2
	`

	result, err := s.db.ExecContext(ctx, query, queue, cutoff)
	if err != nil {
		return 0, MapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return int(rowsAffected), nil
}

// rowScanner lets scanJob work with both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var job domain.Job
	var lockedAt sql.NullTime
	var errorMessage sql.NullString

	err := row.Scan(
		&job.ID,
		&job.Queue,
		&job.JobType,
		&job.Status,
		&job.Payload,
		&job.DedupeKey,
		&job.RetryCount,
		&job.MaxRetries,
		&job.RunAfter,
		&lockedAt,
		&errorMessage,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if lockedAt.Valid {
		t := lockedAt.Time
		job.LockedAt = &t
	}
	job.ErrorMessage = errorMessage.String

	return &job, nil
}
