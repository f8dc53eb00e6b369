package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/triage-api/internal/domain"
	"github.com/phrazzld/triage-api/internal/platform/logger"
	"github.com/phrazzld/triage-api/internal/store"
)

// taskColumns is the scan order shared by all task queries.
const taskColumns = `id, date, source_type, title, description, priority,
	status, confidence, due_date, project_id, parent_id, step_number,
	similar_to_title, similar_to_status, similar_to_reason,
	merge_source_task_ids, merge_target_task_id, merged_at,
	elaboration_status, pending_elaboration, original_title,
	original_description, origin_message_id, origin_thread_id,
	hosting_owner, hosting_repo, hosting_number, accepted_at, rejected_at,
	started_at, paused_at, completed_at, created_at, updated_at`

// PostgresTaskStore implements the store.TaskStore interface using
// PostgreSQL.
type PostgresTaskStore struct {
	db store.DBTX
}

// NewPostgresTaskStore creates a new PostgresTaskStore.
func NewPostgresTaskStore(db store.DBTX) *PostgresTaskStore {
	return &PostgresTaskStore{db: db}
}

// WithTx returns a TaskStore bound to the provided transaction.
func (s *PostgresTaskStore) WithTx(tx *sql.Tx) store.TaskStore {
	return &PostgresTaskStore{db: tx}
}

// CreateTask persists a new task.
func (s *PostgresTaskStore) CreateTask(ctx context.Context, task *domain.Task) error {
	log := logger.FromContext(ctx)

	query := `
		INSERT INTO tasks (id, date, source_type, title, description,
			priority, status, confidence, due_date, project_id, parent_id,
			step_number, similar_to_title, similar_to_status,
			similar_to_reason, merge_source_task_ids, merge_target_task_id,
			merged_at, elaboration_status, pending_elaboration,
			original_title, original_description, origin_message_id,
			origin_thread_id, hosting_owner, hosting_repo, hosting_number,
			accepted_at, rejected_at, started_at, paused_at, completed_at,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25,
			$26, $27, $28, $29, $30, $31, $32, $33, $34)
	`

	mergeSources, err := marshalMergeSources(task.MergeSourceTaskIDs)
	if err != nil {
		return fmt.Errorf("failed to encode merge source task ids: %w", err)
	}

	_, err = s.db.ExecContext(ctx, query,
		task.ID,
		task.Date,
		task.SourceType,
		task.Title,
		task.Description,
		task.Priority,
		task.Status,
		task.Confidence,
		task.DueDate,
		nullUUID(task.ProjectID),
		nullUUID(task.ParentID),
		task.StepNumber,
		task.SimilarToTitle,
		task.SimilarToStatus,
		task.SimilarToReason,
		mergeSources,
		nullUUID(task.MergeTargetTaskID),
		task.MergedAt,
		task.ElaborationStatus,
		task.PendingElaboration,
		task.OriginalTitle,
		task.OriginalDescription,
		task.OriginMessageID,
		task.OriginThreadID,
		task.HostingOwner,
		task.HostingRepo,
		task.HostingNumber,
		task.AcceptedAt,
		task.RejectedAt,
		task.StartedAt,
		task.PausedAt,
		task.CompletedAt,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to create task",
			"task_id", task.ID,
			"source_type", task.SourceType,
			"error", err)
		return MapError(err)
	}

	return nil
}

// GetTask retrieves a task by its unique ID.
func (s *PostgresTaskStore) GetTask(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	query := fmt.Sprintf(`SELECT %s FROM tasks WHERE id = $1`, taskColumns)

	row := s.db.QueryRowContext(ctx, query, id)
	task, err := scanTask(row)
	if err != nil {
		if IsNotFoundError(MapError(err)) {
			return nil, store.ErrTaskNotFound
		}
		return nil, MapError(err)
	}

	return task, nil
}

// UpdateTask writes the task's mutable fields.
func (s *PostgresTaskStore) UpdateTask(ctx context.Context, task *domain.Task) error {
	query := `
		UPDATE tasks
		SET title = $1, description = $2, priority = $3, status = $4,
			confidence = $5, due_date = $6, project_id = $7,
			parent_id = $8, step_number = $9, similar_to_title = $10,
			similar_to_status = $11, similar_to_reason = $12,
			merge_source_task_ids = $13, merge_target_task_id = $14,
			merged_at = $15, elaboration_status = $16,
			pending_elaboration = $17, original_title = $18,
			original_description = $19, accepted_at = $20,
			rejected_at = $21, started_at = $22, paused_at = $23,
			completed_at = $24, updated_at = $25
		WHERE id = $26
	`

	mergeSources, err := marshalMergeSources(task.MergeSourceTaskIDs)
	if err != nil {
		return fmt.Errorf("failed to encode merge source task ids: %w", err)
	}

	task.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, query,
		task.Title,
		task.Description,
		task.Priority,
		task.Status,
		task.Confidence,
		task.DueDate,
		nullUUID(task.ProjectID),
		nullUUID(task.ParentID),
		task.StepNumber,
		task.SimilarToTitle,
		task.SimilarToStatus,
		task.SimilarToReason,
		mergeSources,
		nullUUID(task.MergeTargetTaskID),
		task.MergedAt,
		task.ElaborationStatus,
		task.PendingElaboration,
		task.OriginalTitle,
		task.OriginalDescription,
		task.AcceptedAt,
		task.RejectedAt,
		task.StartedAt,
		task.PausedAt,
		task.CompletedAt,
		task.UpdatedAt,
		task.ID,
	)
	if err != nil {
		return MapError(err)
	}

	return CheckRowsAffected(result, "task")
}

// ListTasksByStatus returns tasks in any of the given statuses, ordered
// by created_at ascending.
func (s *PostgresTaskStore) ListTasksByStatus(ctx context.Context, statuses []domain.TaskStatus, limit int) ([]*domain.Task, error) {
	log := logger.FromContext(ctx)

	if len(statuses) == 0 {
		return nil, nil
	}

	// Build a parameter placeholder per status.
	placeholders := ""
	args := make([]any, 0, len(statuses)+1)
	for i, status := range statuses {
		if i > 0 {
			placeholders += ", "
		}
		placeholders += fmt.Sprintf("$%d", i+1)
		args = append(args, status)
	}

	query := fmt.Sprintf(`
		SELECT %s FROM tasks
		WHERE status IN (%s)
		ORDER BY created_at ASC
	`, taskColumns, placeholders)

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(statuses)+1)
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query tasks by status", "error", err)
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	return collectTasks(rows)
}

// ListChildTasks returns the child tasks of the given parent, ordered by
// step number.
func (s *PostgresTaskStore) ListChildTasks(ctx context.Context, parentID uuid.UUID) ([]*domain.Task, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM tasks
		WHERE parent_id = $1
		ORDER BY step_number ASC
	`, taskColumns)

	rows, err := s.db.QueryContext(ctx, query, parentID)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	return collectTasks(rows)
}

func collectTasks(rows *sql.Rows) ([]*domain.Task, error) {
	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task rows: %w", err)
	}

	return tasks, nil
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var task domain.Task
	var description, priority sql.NullString
	var dueDate, mergedAt, acceptedAt, rejectedAt, startedAt, pausedAt, completedAt sql.NullTime
	var projectID, parentID, mergeTargetTaskID uuid.NullUUID
	var similarToTitle, similarToStatus, similarToReason sql.NullString
	var mergeSources []byte
	var elaborationStatus sql.NullString
	var originalTitle, originalDescription sql.NullString
	var originMessageID, originThreadID sql.NullString
	var hostingOwner, hostingRepo sql.NullString

	err := row.Scan(
		&task.ID,
		&task.Date,
		&task.SourceType,
		&task.Title,
		&description,
		&priority,
		&task.Status,
		&task.Confidence,
		&dueDate,
		&projectID,
		&parentID,
		&task.StepNumber,
		&similarToTitle,
		&similarToStatus,
		&similarToReason,
		&mergeSources,
		&mergeTargetTaskID,
		&mergedAt,
		&elaborationStatus,
		&task.PendingElaboration,
		&originalTitle,
		&originalDescription,
		&originMessageID,
		&originThreadID,
		&hostingOwner,
		&hostingRepo,
		&task.HostingNumber,
		&acceptedAt,
		&rejectedAt,
		&startedAt,
		&pausedAt,
		&completedAt,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	task.Description = description.String
	task.Priority = priority.String
	task.SimilarToTitle = similarToTitle.String
	task.SimilarToStatus = similarToStatus.String
	task.SimilarToReason = similarToReason.String
	task.ElaborationStatus = domain.ElaborationStatus(elaborationStatus.String)
	task.OriginalTitle = originalTitle.String
	task.OriginalDescription = originalDescription.String
	task.OriginMessageID = originMessageID.String
	task.OriginThreadID = originThreadID.String
	task.HostingOwner = hostingOwner.String
	task.HostingRepo = hostingRepo.String

	task.DueDate = nullTimePtr(dueDate)
	task.MergedAt = nullTimePtr(mergedAt)
	task.AcceptedAt = nullTimePtr(acceptedAt)
	task.RejectedAt = nullTimePtr(rejectedAt)
	task.StartedAt = nullTimePtr(startedAt)
	task.PausedAt = nullTimePtr(pausedAt)
	task.CompletedAt = nullTimePtr(completedAt)

	task.ProjectID = nullUUIDPtr(projectID)
	task.ParentID = nullUUIDPtr(parentID)
	task.MergeTargetTaskID = nullUUIDPtr(mergeTargetTaskID)

	if len(mergeSources) > 0 {
		if err := json.Unmarshal(mergeSources, &task.MergeSourceTaskIDs); err != nil {
			return nil, fmt.Errorf("failed to decode merge source task ids: %w", err)
		}
	}

	return &task, nil
}

func marshalMergeSources(ids []uuid.UUID) ([]byte, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return json.Marshal(ids)
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

func nullUUIDPtr(id uuid.NullUUID) *uuid.UUID {
	if !id.Valid {
		return nil
	}
	u := id.UUID
	return &u
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
