package postgres

import (
	"context"
	"database/sql"

	"github.com/phrazzld/triage-api/internal/domain"
	"github.com/phrazzld/triage-api/internal/store"
)

// PostgresVocabularyStore implements the store.VocabularyStore interface
// using PostgreSQL.
type PostgresVocabularyStore struct {
	db store.DBTX
}

// NewPostgresVocabularyStore creates a new PostgresVocabularyStore.
func NewPostgresVocabularyStore(db store.DBTX) *PostgresVocabularyStore {
	return &PostgresVocabularyStore{db: db}
}

// WithTx returns a VocabularyStore bound to the provided transaction.
func (s *PostgresVocabularyStore) WithTx(tx *sql.Tx) store.VocabularyStore {
	return &PostgresVocabularyStore{db: tx}
}

// CreateTerm inserts a term row. The unique index on term surfaces
// duplicates as store.ErrDuplicateTerm.
func (s *PostgresVocabularyStore) CreateTerm(ctx context.Context, term *domain.VocabularyTerm) error {
	query := `
		INSERT INTO vocabulary_terms (id, term, definition, created_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := s.db.ExecContext(ctx, query,
		term.ID, term.Term, term.Definition, term.CreatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return store.ErrDuplicateTerm
		}
		return MapError(err)
	}

	return nil
}
