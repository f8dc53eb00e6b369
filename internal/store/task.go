package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/phrazzld/triage-api/internal/domain"
)

// TaskStore defines the persistence interface for tasks.
type TaskStore interface {
	// CreateTask persists a new task.
	CreateTask(ctx context.Context, task *domain.Task) error

	// GetTask retrieves a task by its unique ID.
	// Returns ErrTaskNotFound if no row exists.
	GetTask(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// UpdateTask writes the task's mutable fields.
	// Returns ErrTaskNotFound if no row exists.
	UpdateTask(ctx context.Context, task *domain.Task) error

	// ListTasksByStatus returns tasks in any of the given statuses,
	// ordered by created_at ascending. A zero limit means no limit.
	ListTasksByStatus(ctx context.Context, statuses []domain.TaskStatus, limit int) ([]*domain.Task, error)

	// ListChildTasks returns the child tasks of the given parent,
	// ordered by step number.
	ListChildTasks(ctx context.Context, parentID uuid.UUID) ([]*domain.Task, error)

	// WithTx returns a TaskStore bound to the provided transaction.
	WithTx(tx *sql.Tx) TaskStore
}

// DependencyStore defines the persistence interface for dependency
// edges. Creating a duplicate edge for an ordered (task, depends-on)
// pair returns ErrDuplicateDependency; callers treat it as a no-op.
type DependencyStore interface {
	// CreateDependency persists a new edge.
	CreateDependency(ctx context.Context, dep *domain.Dependency) error

	// DependencyExists reports whether an edge exists for the ordered
	// (taskID, dependsOnTaskID) pair.
	DependencyExists(ctx context.Context, taskID, dependsOnTaskID uuid.UUID) (bool, error)

	// ListDependenciesOf returns edges where the given task is the
	// dependent (task_id = taskID).
	ListDependenciesOf(ctx context.Context, taskID uuid.UUID) ([]*domain.Dependency, error)

	// ListDependents returns edges where the given task is depended on
	// (depends_on_task_id = taskID).
	ListDependents(ctx context.Context, taskID uuid.UUID) ([]*domain.Dependency, error)

	// DeleteDependency removes an edge by ID.
	// Returns ErrDependencyNotFound if no row exists.
	DeleteDependency(ctx context.Context, id uuid.UUID) error

	// WithTx returns a DependencyStore bound to the provided transaction.
	WithTx(tx *sql.Tx) DependencyStore
}

// ExtractionLogStore records which source inputs have already been
// processed so re-running extraction over the same range is a no-op.
type ExtractionLogStore interface {
	// CreateEntries appends log entries for consumed inputs.
	CreateEntries(ctx context.Context, entries []*domain.ExtractionLogEntry) error

	// ProcessedIDs returns the subset of sourceIDs that already have a
	// log entry for the (entityKind, sourceKind) pair.
	ProcessedIDs(ctx context.Context, entityKind, sourceKind string, sourceIDs []string) (map[string]bool, error)

	// WithTx returns an ExtractionLogStore bound to the provided
	// transaction.
	WithTx(tx *sql.Tx) ExtractionLogStore
}
