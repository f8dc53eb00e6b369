package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/phrazzld/triage-api/internal/domain"
	"github.com/phrazzld/triage-api/internal/platform/logger"
	"github.com/phrazzld/triage-api/internal/store"
)

// PostgresDeadLetterStore implements the store.DeadLetterStore interface
// using PostgreSQL.
type PostgresDeadLetterStore struct {
	db store.DBTX
}

// NewPostgresDeadLetterStore creates a new PostgresDeadLetterStore.
func NewPostgresDeadLetterStore(db store.DBTX) *PostgresDeadLetterStore {
	return &PostgresDeadLetterStore{db: db}
}

// WithTx returns a DeadLetterStore bound to the provided transaction.
func (s *PostgresDeadLetterStore) WithTx(tx *sql.Tx) store.DeadLetterStore {
	return &PostgresDeadLetterStore{db: tx}
}

// CreateDeadLetter appends a dead-letter record.
func (s *PostgresDeadLetterStore) CreateDeadLetter(ctx context.Context, record *domain.DeadLetter) error {
	log := logger.FromContext(ctx)

	query := `
		INSERT INTO dead_letters (id, queue_name, job_id, job_type, payload,
			error_message, retry_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.db.ExecContext(ctx, query,
		record.ID,
		record.QueueName,
		record.JobID,
		record.JobType,
		record.Payload,
		record.ErrorMessage,
		record.RetryCount,
		record.CreatedAt,
	)
	if err != nil {
		log.Error("failed to create dead-letter record",
			"job_id", record.JobID,
			"queue", record.QueueName,
			"error", err)
		return MapError(err)
	}

	return nil
}

// ListDeadLetters returns the most recent records, newest first.
func (s *PostgresDeadLetterStore) ListDeadLetters(ctx context.Context, queue string, limit int) ([]*domain.DeadLetter, error) {
	var query string
	var args []any

	if queue != "" {
		query = `
			SELECT id, queue_name, job_id, job_type, payload, error_message,
				retry_count, created_at
			FROM dead_letters
			WHERE queue_name = $1
			ORDER BY created_at DESC
			LIMIT $2
		`
		args = []any{queue, limit}
	} else {
		query = `
			SELECT id, queue_name, job_id, job_type, payload, error_message,
				retry_count, created_at
			FROM dead_letters
			ORDER BY created_at DESC
			LIMIT $1
		`
		args = []any{limit}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var records []*domain.DeadLetter
	for rows.Next() {
		var r domain.DeadLetter
		if err := rows.Scan(
			&r.ID,
			&r.QueueName,
			&r.JobID,
			&r.JobType,
			&r.Payload,
			&r.ErrorMessage,
			&r.RetryCount,
			&r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan dead-letter row: %w", err)
		}
		records = append(records, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dead-letter rows: %w", err)
	}

	return records, nil
}
