package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/phrazzld/triage-api/internal/domain"
	"github.com/phrazzld/triage-api/internal/store"
)

// PostgresProjectStore implements the store.ProjectStore interface using
// PostgreSQL.
type PostgresProjectStore struct {
	db store.DBTX
}

// NewPostgresProjectStore creates a new PostgresProjectStore.
func NewPostgresProjectStore(db store.DBTX) *PostgresProjectStore {
	return &PostgresProjectStore{db: db}
}

// WithTx returns a ProjectStore bound to the provided transaction.
func (s *PostgresProjectStore) WithTx(tx *sql.Tx) store.ProjectStore {
	return &PostgresProjectStore{db: tx}
}

// CreateProject inserts a project. Unique indexes on path and on
// (owner, repo) surface duplicates as store.ErrDuplicateProject.
func (s *PostgresProjectStore) CreateProject(ctx context.Context, project *domain.Project) error {
	query := `
		INSERT INTO projects (id, name, path, owner, repo, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := s.db.ExecContext(ctx, query,
		project.ID, project.Name, project.Path, project.Owner,
		project.Repo, project.CreatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return store.ErrDuplicateProject
		}
		return MapError(err)
	}

	return nil
}

// GetProject retrieves a project by ID.
func (s *PostgresProjectStore) GetProject(ctx context.Context, id uuid.UUID) (*domain.Project, error) {
	query := `
		SELECT id, name, path, owner, repo, created_at
		FROM projects WHERE id = $1
	`

	var p domain.Project
	var path, owner, repo sql.NullString
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.Name, &path, &owner, &repo, &p.CreatedAt)
	if err != nil {
		if IsNotFoundError(MapError(err)) {
			return nil, store.ErrProjectNotFound
		}
		return nil, MapError(err)
	}
	p.Path = path.String
	p.Owner = owner.String
	p.Repo = repo.String

	return &p, nil
}

// ProjectExists reports whether a project exists with the given path or
// the given (owner, repo) pair. Empty identifiers never match.
func (s *PostgresProjectStore) ProjectExists(ctx context.Context, path, owner, repo string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM projects
			WHERE ($1 <> '' AND path = $1)
				OR ($2 <> '' AND $3 <> '' AND owner = $2 AND repo = $3)
		)
	`

	var exists bool
	if err := s.db.QueryRowContext(ctx, query, path, owner, repo).Scan(&exists); err != nil {
		return false, MapError(err)
	}

	return exists, nil
}
