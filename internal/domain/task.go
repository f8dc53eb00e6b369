package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

// Possible task status values
const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusAccepted   TaskStatus = "accepted"
	TaskStatusRejected   TaskStatus = "rejected"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusPaused     TaskStatus = "paused"
	TaskStatusCompleted  TaskStatus = "completed"
)

// TaskSource identifies where a task was extracted from. It determines
// which side effect (if any) runs when the task is accepted, and which
// evidence sources the completion waterfall consults.
type TaskSource string

// Possible task source values
const (
	TaskSourceChat              TaskSource = "chat"
	TaskSourceCodeReview        TaskSource = "code_review"
	TaskSourceNote              TaskSource = "note"
	TaskSourceVoice             TaskSource = "voice"
	TaskSourceErrorLog          TaskSource = "error_log"
	TaskSourceManual            TaskSource = "manual"
	TaskSourceProfileSuggestion TaskSource = "profile_suggestion"
	TaskSourceVocabulary        TaskSource = "vocabulary"
	TaskSourcePromptImprovement TaskSource = "prompt_improvement"
	TaskSourceProjectSuggestion TaskSource = "project_suggestion"
	TaskSourceMerge             TaskSource = "merge"
)

// TaskPriority values, lowest to highest.
const (
	TaskPriorityLow    = "low"
	TaskPriorityMedium = "medium"
	TaskPriorityHigh   = "high"
)

// ElaborationStatus tracks the optional decomposition step that creates
// child tasks from a parent.
type ElaborationStatus string

// Possible elaboration status values
const (
	ElaborationNone      ElaborationStatus = ""
	ElaborationPending   ElaborationStatus = "pending"
	ElaborationCompleted ElaborationStatus = "completed"
)

// Common validation errors for Task
var (
	ErrEmptyTaskID    = errors.New("task ID cannot be empty")
	ErrEmptyTaskTitle = errors.New("task title cannot be empty")
)

// Task represents a user-facing unit of work with a lifecycle status and
// optional source provenance. A Task is exclusively owned by the task
// store; all mutation flows through the task service.
type Task struct {
	ID          uuid.UUID  `json:"id"`
	Date        time.Time  `json:"date"`
	SourceType  TaskSource `json:"source_type"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Priority    string     `json:"priority,omitempty"`
	Status      TaskStatus `json:"status"`
	Confidence  float64    `json:"confidence,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`

	ProjectID *uuid.UUID `json:"project_id,omitempty"`

	// ParentID/StepNumber encode an optional one-level decomposition:
	// children are created from an elaboration step on the parent.
	ParentID   *uuid.UUID `json:"parent_id,omitempty"`
	StepNumber int        `json:"step_number,omitempty"`

	// Similarity hints surfaced by the extractor for operator review.
	SimilarToTitle  string `json:"similar_to_title,omitempty"`
	SimilarToStatus string `json:"similar_to_status,omitempty"`
	SimilarToReason string `json:"similar_to_reason,omitempty"`

	// Merge bookkeeping. MergeSourceTaskIDs is only valid when
	// SourceType is TaskSourceMerge. MergeTargetTaskID is stamped onto
	// source tasks when they are merged away.
	MergeSourceTaskIDs []uuid.UUID `json:"merge_source_task_ids,omitempty"`
	MergeTargetTaskID  *uuid.UUID  `json:"merge_target_task_id,omitempty"`
	MergedAt           *time.Time  `json:"merged_at,omitempty"`

	ElaborationStatus  ElaborationStatus `json:"elaboration_status,omitempty"`
	PendingElaboration bool              `json:"pending_elaboration,omitempty"`

	// First-edit snapshots: set once, never overwritten by later edits.
	OriginalTitle       string `json:"original_title,omitempty"`
	OriginalDescription string `json:"original_description,omitempty"`

	// Provenance links used by the completion waterfall.
	OriginMessageID string `json:"origin_message_id,omitempty"`
	OriginThreadID  string `json:"origin_thread_id,omitempty"`
	HostingOwner    string `json:"hosting_owner,omitempty"`
	HostingRepo     string `json:"hosting_repo,omitempty"`
	HostingNumber   int    `json:"hosting_number,omitempty"`

	AcceptedAt  *time.Time `json:"accepted_at,omitempty"`
	RejectedAt  *time.Time `json:"rejected_at,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	PausedAt    *time.Time `json:"paused_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewTask creates a pending task from the given source.
func NewTask(sourceType TaskSource, title, description string) (*Task, error) {
	now := time.Now().UTC()

	task := &Task{
		ID:          uuid.New(),
		Date:        now,
		SourceType:  sourceType,
		Title:       title,
		Description: description,
		Priority:    TaskPriorityMedium,
		Status:      TaskStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}

	return task, nil
}

// Validate checks if the Task has valid data.
func (t *Task) Validate() error {
	if t.ID == uuid.Nil {
		return ErrEmptyTaskID
	}

	if strings.TrimSpace(t.Title) == "" {
		return ErrEmptyTaskTitle
	}

	if !isValidTaskStatus(t.Status) {
		return ErrInvalidTaskStatus
	}

	return nil
}

// taskTransitions encodes the branching state machine. completed and
// rejected have no outgoing edges; completed tasks may still be
// referenced as merge sources without a further status change.
var taskTransitions = map[TaskStatus][]TaskStatus{
	TaskStatusPending:    {TaskStatusAccepted, TaskStatusRejected},
	TaskStatusAccepted:   {TaskStatusInProgress, TaskStatusCompleted, TaskStatusRejected},
	TaskStatusInProgress: {TaskStatusPaused, TaskStatusCompleted},
	TaskStatusPaused:     {TaskStatusInProgress, TaskStatusCompleted},
}

// CanTransition reports whether the task may move to the given status.
// Note: accepted -> rejected is only reachable for suggestion-linked
// source types; the task service enforces that restriction since it
// depends on SourceType, not on status alone.
func (t *Task) CanTransition(to TaskStatus) bool {
	for _, allowed := range taskTransitions[t.Status] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the task is in a terminal status.
func (t *Task) Terminal() bool {
	return t.Status == TaskStatusCompleted || t.Status == TaskStatusRejected
}

// approvalOnlySources are the kinds whose acceptance is itself the
// complete action: accepting one skips the accepted resting state and
// lands directly on completed.
var approvalOnlySources = map[TaskSource]bool{
	TaskSourceProfileSuggestion: true,
	TaskSourceVocabulary:        true,
	TaskSourcePromptImprovement: true,
	TaskSourceProjectSuggestion: true,
}

// ApprovalOnly reports whether accepting this task completes it directly.
func (t *Task) ApprovalOnly() bool {
	return approvalOnlySources[t.SourceType]
}

// SuggestionLinked reports whether the task's source type has a linked
// suggestion record that acceptance or rejection must cascade to.
func (t *Task) SuggestionLinked() bool {
	switch t.SourceType {
	case TaskSourceProfileSuggestion, TaskSourceVocabulary, TaskSourcePromptImprovement:
		return true
	default:
		return false
	}
}

// HostingLinked reports whether the task references a code-hosting item
// the completion waterfall can inspect directly.
func (t *Task) HostingLinked() bool {
	return t.SourceType == TaskSourceCodeReview &&
		t.HostingOwner != "" && t.HostingRepo != "" && t.HostingNumber > 0
}

// ApplyEdit updates the title and description, preserving the pre-edit
// values in OriginalTitle/OriginalDescription on the first edit only.
func (t *Task) ApplyEdit(title, description string) {
	if title == t.Title && description == t.Description {
		return
	}

	if t.OriginalTitle == "" && t.OriginalDescription == "" {
		t.OriginalTitle = t.Title
		t.OriginalDescription = t.Description
	}

	if title != "" {
		t.Title = title
	}
	t.Description = description
	t.UpdatedAt = time.Now().UTC()
}

// isValidTaskStatus checks if the given status is a valid TaskStatus.
func isValidTaskStatus(status TaskStatus) bool {
	switch status {
	case TaskStatusPending, TaskStatusAccepted, TaskStatusRejected,
		TaskStatusInProgress, TaskStatusPaused, TaskStatusCompleted:
		return true
	default:
		return false
	}
}
