package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/triage-api/internal/domain"
	"github.com/phrazzld/triage-api/internal/redact"
	"github.com/phrazzld/triage-api/internal/store"
)

// Common errors returned by the DurableQueue
var (
	ErrJobNotFound = errors.New("job not found")
)

// backoffBase is the delay after the first failure; each subsequent
// failure doubles it (30s, 60s, 120s, ...).
const backoffBase = 30 * time.Second

// DefaultMaxRetries is applied when Options leaves MaxRetries unset.
const DefaultMaxRetries = 3

// Options configures a DurableQueue instance.
type Options struct {
	// Name selects the job rows this queue owns.
	Name string

	// MaxRetries is the retry budget for jobs enqueued here.
	// Zero means DefaultMaxRetries.
	MaxRetries int

	// SingleFlight enables (jobType, dedupeKey) deduplication on
	// enqueue: while an identical job is pending or processing, further
	// enqueues are dropped.
	SingleFlight bool
}

// DurableQueue is a crash-recoverable job queue over a row store. Two
// instances share one store: the fetch queue (single-flight) and the AI
// queue. All mutation is store-only; the queue performs no other I/O.
//
// The queue tolerates multiple uncoordinated callers: the claim step is
// a conditional update, so racing dequeuers split the due set without
// overlap. Everything else assumes one logical writer per row.
type DurableQueue struct {
	name         string
	jobs         store.JobStore
	deadLetters  store.DeadLetterStore
	maxRetries   int
	singleFlight bool
	logger       *slog.Logger
	now          func() time.Time
}

// NewDurableQueue creates a queue over the given stores.
func NewDurableQueue(opts Options, jobs store.JobStore, deadLetters store.DeadLetterStore, logger *slog.Logger) *DurableQueue {
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	return &DurableQueue{
		name:         opts.Name,
		jobs:         jobs,
		deadLetters:  deadLetters,
		maxRetries:   maxRetries,
		singleFlight: opts.SingleFlight,
		logger:       logger.With("queue", opts.Name),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the queue's time source. Used by tests to make
// backoff and staleness deterministic.
func (q *DurableQueue) SetClock(now func() time.Time) {
	q.now = now
}

// Name returns the queue's name.
func (q *DurableQueue) Name() string {
	return q.name
}

// Enqueue persists a new pending job for the payload. When single-flight
// dedup is enabled and an identical pending/processing job exists, it
// returns (nil, nil) and inserts nothing. A zero runAfter means
// immediately eligible.
func (q *DurableQueue) Enqueue(ctx context.Context, payload Payload, runAfter time.Time) (*domain.Job, error) {
	jobType := payload.JobType()

	dedupeKey := ""
	if q.singleFlight {
		dedupeKey = payload.DedupeKey()
	}

	if q.singleFlight && dedupeKey != "" {
		exists, err := q.jobs.ExistsActive(ctx, q.name, jobType, dedupeKey)
		if err != nil {
			return nil, fmt.Errorf("failed to check for active job: %w", err)
		}
		if exists {
			q.logger.Debug("skipping enqueue, identical job already active",
				"job_type", jobType,
				"dedupe_key", dedupeKey)
			return nil, nil
		}
	}

	data, err := MarshalPayload(payload)
	if err != nil {
		return nil, err
	}

	// Resolve the default here rather than in NewJob so the queue's
	// injected clock governs eligibility.
	if runAfter.IsZero() {
		runAfter = q.now()
	}

	job, err := domain.NewJob(q.name, jobType, data, dedupeKey, q.maxRetries, runAfter)
	if err != nil {
		return nil, fmt.Errorf("failed to build job: %w", err)
	}

	if err := q.jobs.CreateJob(ctx, job); err != nil {
		// The partial unique index on (queue, job_type, dedupe_key) is
		// the backstop for two enqueues racing past ExistsActive; the
		// loser is dropped like any other single-flight duplicate.
		if q.singleFlight && dedupeKey != "" && store.IsDuplicateError(err) {
			q.logger.Debug("skipping enqueue, lost insert race to identical job",
				"job_type", jobType,
				"dedupe_key", dedupeKey)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to persist job: %w", err)
	}

	q.logger.Debug("job enqueued",
		"job_id", job.ID,
		"job_type", jobType,
		"run_after", job.RunAfter)

	return job, nil
}

// DequeueBatch returns up to limit due pending jobs, each transitioned
// to processing via an optimistic claim. Jobs lost to a concurrent
// claimer are skipped, so two racing callers never both receive the same
// job.
func (q *DurableQueue) DequeueBatch(ctx context.Context, limit int) ([]*domain.Job, error) {
	now := q.now()

	due, err := q.jobs.ListDue(ctx, q.name, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list due jobs: %w", err)
	}

	var claimed []*domain.Job
	for _, job := range due {
		won, err := q.jobs.ClaimJob(ctx, job.ID, now)
		if err != nil {
			return claimed, fmt.Errorf("failed to claim job %s: %w", job.ID, err)
		}
		if !won {
			continue
		}

		job.Status = domain.JobStatusProcessing
		lockedAt := now
		job.LockedAt = &lockedAt
		claimed = append(claimed, job)
	}

	return claimed, nil
}

// Ack marks a job completed.
func (q *DurableQueue) Ack(ctx context.Context, jobID uuid.UUID) error {
	job, err := q.jobs.GetJob(ctx, jobID)
	if err != nil {
		if store.IsNotFoundError(err) {
			return ErrJobNotFound
		}
		return fmt.Errorf("failed to load job: %w", err)
	}

	job.Status = domain.JobStatusCompleted
	job.LockedAt = nil

	if err := q.jobs.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}

	return nil
}

// Fail records a job failure. Below the retry budget the job recycles to
// pending with exponential backoff (30s doubling per prior failure) and
// the lock cleared; at the budget it goes terminally failed and a
// dead-letter record is written with the redacted error message.
func (q *DurableQueue) Fail(ctx context.Context, jobID uuid.UUID, message string) error {
	job, err := q.jobs.GetJob(ctx, jobID)
	if err != nil {
		if store.IsNotFoundError(err) {
			return ErrJobNotFound
		}
		return fmt.Errorf("failed to load job: %w", err)
	}

	// Error messages may carry connection strings or file paths from
	// external collaborators; scrub before persisting.
	message = redact.String(message)

	priorRetries := job.RetryCount
	job.RetryCount++
	job.ErrorMessage = message
	job.LockedAt = nil

	if job.RetryCount < job.MaxRetries {
		job.Status = domain.JobStatusPending
		job.RunAfter = q.now().Add(backoffBase << priorRetries)

		if err := q.jobs.UpdateJob(ctx, job); err != nil {
			return fmt.Errorf("failed to recycle job: %w", err)
		}

		q.logger.Warn("job failed, retrying",
			"job_id", job.ID,
			"job_type", job.JobType,
			"retry_count", job.RetryCount,
			"run_after", job.RunAfter,
			"error", message)
		return nil
	}

	job.Status = domain.JobStatusFailed

	if err := q.jobs.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}

	record := domain.NewDeadLetter(job, message)
	if err := q.deadLetters.CreateDeadLetter(ctx, record); err != nil {
		return fmt.Errorf("failed to write dead-letter record: %w", err)
	}

	q.logger.Error("job exhausted retries, moved to dead letters",
		"job_id", job.ID,
		"job_type", job.JobType,
		"retry_count", job.RetryCount,
		"error", message)

	return nil
}

// RecoverStale rewinds processing jobs whose lock is older than the
// timeout back to pending. A worker that died mid-processing must not
// permanently strand its job; callers invoke this on a periodic sweep.
func (q *DurableQueue) RecoverStale(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := q.now().Add(-olderThan)

	recovered, err := q.jobs.RecoverStale(ctx, q.name, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to recover stale jobs: %w", err)
	}

	if recovered > 0 {
		q.logger.Info("recovered stale jobs",
			"count", recovered,
			"older_than", olderThan)
	}

	return recovered, nil
}

// Cleanup purges completed and failed jobs older than the retention
// window.
func (q *DurableQueue) Cleanup(ctx context.Context, retentionDays int) (int, error) {
	cutoff := q.now().AddDate(0, 0, -retentionDays)

	deleted, err := q.jobs.DeleteFinishedBefore(ctx, q.name, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up finished jobs: %w", err)
	}

	if deleted > 0 {
		q.logger.Info("cleaned up finished jobs",
			"count", deleted,
			"retention_days", retentionDays)
	}

	return deleted, nil
}
