package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/phrazzld/triage-api/internal/domain"
	"github.com/phrazzld/triage-api/internal/platform/logger"
	"github.com/phrazzld/triage-api/internal/store"
)

// PostgresDependencyStore implements the store.DependencyStore interface
// using PostgreSQL. The dependencies table carries a unique index on the
// ordered (task_id, depends_on_task_id) pair; inserts that hit it are
// surfaced as store.ErrDuplicateDependency.
type PostgresDependencyStore struct {
	db store.DBTX
}

// NewPostgresDependencyStore creates a new PostgresDependencyStore.
func NewPostgresDependencyStore(db store.DBTX) *PostgresDependencyStore {
	return &PostgresDependencyStore{db: db}
}

// WithTx returns a DependencyStore bound to the provided transaction.
func (s *PostgresDependencyStore) WithTx(tx *sql.Tx) store.DependencyStore {
	return &PostgresDependencyStore{db: tx}
}

// CreateDependency persists a new edge.
func (s *PostgresDependencyStore) CreateDependency(ctx context.Context, dep *domain.Dependency) error {
	log := logger.FromContext(ctx)

	query := `
		INSERT INTO dependencies (id, task_id, depends_on_task_id,
			dependency_type, confidence, reason, source_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.db.ExecContext(ctx, query,
		dep.ID,
		dep.TaskID,
		dep.DependsOnTaskID,
		dep.DependencyType,
		dep.Confidence,
		dep.Reason,
		dep.SourceType,
		dep.CreatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return store.ErrDuplicateDependency
		}
		log.Error("failed to create dependency",
			"task_id", dep.TaskID,
			"depends_on_task_id", dep.DependsOnTaskID,
			"error", err)
		return MapError(err)
	}

	return nil
}

// DependencyExists reports whether an edge exists for the ordered pair.
func (s *PostgresDependencyStore) DependencyExists(ctx context.Context, taskID, dependsOnTaskID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM dependencies
			WHERE task_id = $1 AND depends_on_task_id = $2
		)
	`

	var exists bool
	if err := s.db.QueryRowContext(ctx, query, taskID, dependsOnTaskID).Scan(&exists); err != nil {
		return false, MapError(err)
	}

	return exists, nil
}

// ListDependenciesOf returns edges where the given task is the dependent.
func (s *PostgresDependencyStore) ListDependenciesOf(ctx context.Context, taskID uuid.UUID) ([]*domain.Dependency, error) {
	return s.listEdges(ctx, "task_id", taskID)
}

// ListDependents returns edges where the given task is depended on.
func (s *PostgresDependencyStore) ListDependents(ctx context.Context, taskID uuid.UUID) ([]*domain.Dependency, error) {
	return s.listEdges(ctx, "depends_on_task_id", taskID)
}

func (s *PostgresDependencyStore) listEdges(ctx context.Context, column string, id uuid.UUID) ([]*domain.Dependency, error) {
	query := fmt.Sprintf(`
		SELECT id, task_id, depends_on_task_id, dependency_type,
			confidence, reason, source_type, created_at
		FROM dependencies
		WHERE %s = $1
		ORDER BY created_at ASC
	`, column)

	rows, err := s.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var deps []*domain.Dependency
	for rows.Next() {
		var dep domain.Dependency
		var reason sql.NullString
		if err := rows.Scan(
			&dep.ID,
			&dep.TaskID,
			&dep.DependsOnTaskID,
			&dep.DependencyType,
			&dep.Confidence,
			&reason,
			&dep.SourceType,
			&dep.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan dependency row: %w", err)
		}
		dep.Reason = reason.String
		deps = append(deps, &dep)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dependency rows: %w", err)
	}

	return deps, nil
}

// DeleteDependency removes an edge by ID.
func (s *PostgresDependencyStore) DeleteDependency(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM dependencies WHERE id = $1`

	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return MapError(err)
	}

	return CheckRowsAffected(result, "dependency")
}
