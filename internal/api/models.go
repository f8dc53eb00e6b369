package api

import (
	"time"

	"github.com/phrazzld/triage-api/internal/domain"
)

// Common request/response structures

// TaskResponse represents the response data for a task.
type TaskResponse struct {
	ID          string     `json:"id"`
	Date        time.Time  `json:"date"`
	SourceType  string     `json:"source_type"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Priority    string     `json:"priority,omitempty"`
	Status      string     `json:"status"`
	Confidence  float64    `json:"confidence,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`

	ProjectID *string `json:"project_id,omitempty"`
	ParentID  *string `json:"parent_id,omitempty"`

	MergeSourceTaskIDs []string `json:"merge_source_task_ids,omitempty"`
	MergeTargetTaskID  *string  `json:"merge_target_task_id,omitempty"`

	OriginalTitle       string `json:"original_title,omitempty"`
	OriginalDescription string `json:"original_description,omitempty"`

	AcceptedAt  *time.Time `json:"accepted_at,omitempty"`
	RejectedAt  *time.Time `json:"rejected_at,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	PausedAt    *time.Time `json:"paused_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DependencyResponse represents the response data for a dependency edge.
type DependencyResponse struct {
	ID              string    `json:"id"`
	TaskID          string    `json:"task_id"`
	DependsOnTaskID string    `json:"depends_on_task_id"`
	DependencyType  string    `json:"dependency_type"`
	Confidence      float64   `json:"confidence,omitempty"`
	Reason          string    `json:"reason,omitempty"`
	SourceType      string    `json:"source_type"`
	CreatedAt       time.Time `json:"created_at"`
}

// JobResponse represents the response data for a queued job.
type JobResponse struct {
	ID           string     `json:"id"`
	Queue        string     `json:"queue"`
	JobType      string     `json:"job_type"`
	Status       string     `json:"status"`
	RetryCount   int        `json:"retry_count"`
	MaxRetries   int        `json:"max_retries"`
	RunAfter     time.Time  `json:"run_after"`
	LockedAt     *time.Time `json:"locked_at,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// DeadLetterResponse represents the response data for a dead-letter
// record.
type DeadLetterResponse struct {
	ID           string    `json:"id"`
	QueueName    string    `json:"queue_name"`
	JobID        string    `json:"job_id"`
	JobType      string    `json:"job_type"`
	ErrorMessage string    `json:"error_message"`
	RetryCount   int       `json:"retry_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// taskToResponse converts a domain.Task to a TaskResponse.
func taskToResponse(task *domain.Task) TaskResponse {
	resp := TaskResponse{
		ID:                  task.ID.String(),
		Date:                task.Date,
		SourceType:          string(task.SourceType),
		Title:               task.Title,
		Description:         task.Description,
		Priority:            task.Priority,
		Status:              string(task.Status),
		Confidence:          task.Confidence,
		DueDate:             task.DueDate,
		OriginalTitle:       task.OriginalTitle,
		OriginalDescription: task.OriginalDescription,
		AcceptedAt:          task.AcceptedAt,
		RejectedAt:          task.RejectedAt,
		StartedAt:           task.StartedAt,
		PausedAt:            task.PausedAt,
		CompletedAt:         task.CompletedAt,
		CreatedAt:           task.CreatedAt,
		UpdatedAt:           task.UpdatedAt,
	}

	if task.ProjectID != nil {
		id := task.ProjectID.String()
		resp.ProjectID = &id
	}
	if task.ParentID != nil {
		id := task.ParentID.String()
		resp.ParentID = &id
	}
	if task.MergeTargetTaskID != nil {
		id := task.MergeTargetTaskID.String()
		resp.MergeTargetTaskID = &id
	}
	for _, id := range task.MergeSourceTaskIDs {
		resp.MergeSourceTaskIDs = append(resp.MergeSourceTaskIDs, id.String())
	}

	return resp
}

// dependencyToResponse converts a domain.Dependency to a
// DependencyResponse.
func dependencyToResponse(dep *domain.Dependency) DependencyResponse {
	return DependencyResponse{
		ID:              dep.ID.String(),
		TaskID:          dep.TaskID.String(),
		DependsOnTaskID: dep.DependsOnTaskID.String(),
		DependencyType:  string(dep.DependencyType),
		Confidence:      dep.Confidence,
		Reason:          dep.Reason,
		SourceType:      string(dep.SourceType),
		CreatedAt:       dep.CreatedAt,
	}
}

// jobToResponse converts a domain.Job to a JobResponse. The payload is
// deliberately omitted: it may carry raw source text.
func jobToResponse(job *domain.Job) JobResponse {
	return JobResponse{
		ID:           job.ID.String(),
		Queue:        job.Queue,
		JobType:      job.JobType,
		Status:       string(job.Status),
		RetryCount:   job.RetryCount,
		MaxRetries:   job.MaxRetries,
		RunAfter:     job.RunAfter,
		LockedAt:     job.LockedAt,
		ErrorMessage: job.ErrorMessage,
		CreatedAt:    job.CreatedAt,
	}
}

// deadLetterToResponse converts a domain.DeadLetter to a
// DeadLetterResponse.
func deadLetterToResponse(dl *domain.DeadLetter) DeadLetterResponse {
	return DeadLetterResponse{
		ID:           dl.ID.String(),
		QueueName:    dl.QueueName,
		JobID:        dl.JobID.String(),
		JobType:      dl.JobType,
		ErrorMessage: dl.ErrorMessage,
		RetryCount:   dl.RetryCount,
		CreatedAt:    dl.CreatedAt,
	}
}
