package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/phrazzld/triage-api/internal/domain"
	"github.com/phrazzld/triage-api/internal/store"
)

// PostgresExtractionLogStore implements the store.ExtractionLogStore
// interface using PostgreSQL. The table is append-only.
type PostgresExtractionLogStore struct {
	db store.DBTX
}

// NewPostgresExtractionLogStore creates a new PostgresExtractionLogStore.
func NewPostgresExtractionLogStore(db store.DBTX) *PostgresExtractionLogStore {
	return &PostgresExtractionLogStore{db: db}
}

// WithTx returns an ExtractionLogStore bound to the provided transaction.
func (s *PostgresExtractionLogStore) WithTx(tx *sql.Tx) store.ExtractionLogStore {
	return &PostgresExtractionLogStore{db: tx}
}

// CreateEntries appends log entries for consumed inputs. A duplicate key
// (the same input recorded twice, e.g. by overlapping runs) is swallowed:
// the log's only purpose is existence.
func (s *PostgresExtractionLogStore) CreateEntries(ctx context.Context, entries []*domain.ExtractionLogEntry) error {
	query := `
		INSERT INTO extraction_log (id, entity_kind, source_kind, source_id,
			extracted_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (entity_kind, source_kind, source_id) DO NOTHING
	`

	for _, entry := range entries {
		_, err := s.db.ExecContext(ctx, query,
			entry.ID,
			entry.EntityKind,
			entry.SourceKind,
			entry.SourceID,
			entry.ExtractedCount,
			entry.CreatedAt,
		)
		if err != nil {
			return MapError(err)
		}
	}

	return nil
}

// ProcessedIDs returns the subset of sourceIDs already recorded for the
// (entityKind, sourceKind) pair.
func (s *PostgresExtractionLogStore) ProcessedIDs(ctx context.Context, entityKind, sourceKind string, sourceIDs []string) (map[string]bool, error) {
	processed := make(map[string]bool)
	if len(sourceIDs) == 0 {
		return processed, nil
	}

	query := `
		SELECT source_id FROM extraction_log
		WHERE entity_kind = $1 AND source_kind = $2 AND source_id = ANY($3)
	`

	rows, err := s.db.QueryContext(ctx, query, entityKind, sourceKind, sourceIDs)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan extraction log row: %w", err)
		}
		processed[id] = true
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating extraction log rows: %w", err)
	}

	return processed, nil
}
