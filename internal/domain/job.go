package domain

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the processing state of a queued job.
type JobStatus string

// Possible job status values
const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Queue name constants. Each durable queue filters jobs by name so both
// queues share one row store.
const (
	// QueueFetch holds inbound source-fetch jobs (chat, code review,
	// notes, error logs). Enqueues on this queue are single-flight
	// deduplicated.
	QueueFetch = "fetch"

	// QueueAI holds LLM extraction jobs. No dedup: each fetched batch
	// gets its own extraction run.
	QueueAI = "ai"
)

// Job type constants
const (
	JobTypeFetchChat       = "fetch_chat"
	JobTypeFetchCodeReview = "fetch_code_review"
	JobTypeFetchNotes      = "fetch_notes"
	JobTypeFetchErrorLogs  = "fetch_error_logs"
	JobTypeFetchVoice      = "fetch_voice"
	JobTypeExtractTasks    = "extract_tasks"
)

// Common validation errors for Job
var (
	ErrEmptyJobID    = errors.New("job ID cannot be empty")
	ErrEmptyJobQueue = errors.New("job queue cannot be empty")
	ErrEmptyJobType  = errors.New("job type cannot be empty")
)

// Job represents one unit of queued work with retry bookkeeping.
// It is persisted as a row and mutated only by the owning queue.
type Job struct {
	ID      uuid.UUID       `json:"id"`
	Queue   string          `json:"queue"`
	JobType string          `json:"job_type"`
	Status  JobStatus       `json:"status"`
	Payload json.RawMessage `json:"payload"`

	// DedupeKey scopes single-flight deduplication: at most one active
	// (pending or processing) job per (JobType, DedupeKey) when the
	// owning queue enforces dedup. Empty on queues that do not.
	DedupeKey    string     `json:"dedupe_key,omitempty"`
	RetryCount   int        `json:"retry_count"`
	MaxRetries   int        `json:"max_retries"`
	RunAfter     time.Time  `json:"run_after"`
	LockedAt     *time.Time `json:"locked_at,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// NewJob creates a pending job on the given queue. runAfter controls the
// earliest dequeue time; a zero value means immediately eligible.
func NewJob(queue, jobType string, payload json.RawMessage, dedupeKey string, maxRetries int, runAfter time.Time) (*Job, error) {
	now := time.Now().UTC()
	if runAfter.IsZero() {
		runAfter = now
	}

	job := &Job{
		ID:         uuid.New(),
		Queue:      queue,
		JobType:    jobType,
		Status:     JobStatusPending,
		Payload:    payload,
		DedupeKey:  dedupeKey,
		RetryCount: 0,
		MaxRetries: maxRetries,
		RunAfter:   runAfter,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := job.Validate(); err != nil {
		return nil, err
	}

	return job, nil
}

// Validate checks if the Job has valid data.
func (j *Job) Validate() error {
	if j.ID == uuid.Nil {
		return ErrEmptyJobID
	}

	if j.Queue == "" {
		return ErrEmptyJobQueue
	}

	if j.JobType == "" {
		return ErrEmptyJobType
	}

	if !isValidJobStatus(j.Status) {
		return ErrInvalidJobStatus
	}

	return nil
}

// isValidJobStatus checks if the given status is a valid JobStatus.
func isValidJobStatus(status JobStatus) bool {
	switch status {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	default:
		return false
	}
}

// DeadLetter is the append-only record of a job that exhausted its
// retries. The core only writes these rows; operator tooling reads them.
type DeadLetter struct {
	ID           uuid.UUID       `json:"id"`
	QueueName    string          `json:"queue_name"`
	JobID        uuid.UUID       `json:"job_id"`
	JobType      string          `json:"job_type"`
	Payload      json.RawMessage `json:"payload"`
	ErrorMessage string          `json:"error_message"`
	RetryCount   int             `json:"retry_count"`
	CreatedAt    time.Time       `json:"created_at"`
}

// NewDeadLetter snapshots a terminally failed job.
func NewDeadLetter(job *Job, errorMessage string) *DeadLetter {
	return &DeadLetter{
		ID:           uuid.New(),
		QueueName:    job.Queue,
		JobID:        job.ID,
		JobType:      job.JobType,
		Payload:      job.Payload,
		ErrorMessage: errorMessage,
		RetryCount:   job.RetryCount,
		CreatedAt:    time.Now().UTC(),
	}
}
