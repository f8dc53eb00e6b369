package queue

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/triage-api/internal/domain"
	"github.com/phrazzld/triage-api/internal/store"
)

// MockJobStore is an in-memory JobStore for testing.
type MockJobStore struct {
	mutex sync.Mutex
	jobs  map[uuid.UUID]*domain.Job

	// ClaimFn overrides claim behavior when set, so tests can simulate
	// losing a claim race.
	ClaimFn func(ctx context.Context, id uuid.UUID, lockedAt time.Time) (bool, error)

	// CreateFn overrides insert behavior when set, so tests can simulate
	// the unique index rejecting a racing insert.
	CreateFn func(ctx context.Context, job *domain.Job) error
}

func NewMockJobStore() *MockJobStore {
	return &MockJobStore{jobs: make(map[uuid.UUID]*domain.Job)}
}

func (m *MockJobStore) CreateJob(ctx context.Context, job *domain.Job) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, job)
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()
	copied := *job
	m.jobs[job.ID] = &copied
	return nil
}

func (m *MockJobStore) GetJob(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, store.ErrJobNotFound
	}
	copied := *job
	return &copied, nil
}

func (m *MockJobStore) ExistsActive(ctx context.Context, queue, jobType, dedupeKey string) (bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	for _, job := range m.jobs {
		if job.Queue == queue && job.JobType == jobType && job.DedupeKey == dedupeKey &&
			(job.Status == domain.JobStatusPending || job.Status == domain.JobStatusProcessing) {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockJobStore) ListDue(ctx context.Context, queue string, now time.Time, limit int) ([]*domain.Job, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	var due []*domain.Job
	for _, job := range m.jobs {
		if job.Queue == queue && job.Status == domain.JobStatusPending && !job.RunAfter.After(now) {
			copied := *job
			due = append(due, &copied)
			if len(due) == limit {
				break
			}
		}
	}
	return due, nil
}

func (m *MockJobStore) ClaimJob(ctx context.Context, id uuid.UUID, lockedAt time.Time) (bool, error) {
	if m.ClaimFn != nil {
		return m.ClaimFn(ctx, id, lockedAt)
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()
	job, ok := m.jobs[id]
	if !ok || job.Status != domain.JobStatusPending {
		return false, nil
	}
	job.Status = domain.JobStatusProcessing
	locked := lockedAt
	job.LockedAt = &locked
	return true, nil
}

func (m *MockJobStore) UpdateJob(ctx context.Context, job *domain.Job) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if _, ok := m.jobs[job.ID]; !ok {
		return store.ErrJobNotFound
	}
	copied := *job
	m.jobs[job.ID] = &copied
	return nil
}

func (m *MockJobStore) RecoverStale(ctx context.Context, queue string, cutoff time.Time) (int, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	recovered := 0
	for _, job := range m.jobs {
		if job.Queue == queue && job.Status == domain.JobStatusProcessing &&
			job.LockedAt != nil && job.LockedAt.Before(cutoff) {
			job.Status = domain.JobStatusPending
			job.LockedAt = nil
			recovered++
		}
	}
	return recovered, nil
}

func (m *MockJobStore) DeleteFinishedBefore(ctx context.Context, queue string, cutoff time.Time) (int, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	deleted := 0
	for id, job := range m.jobs {
		if job.Queue == queue && job.UpdatedAt.Before(cutoff) &&
			(job.Status == domain.JobStatusCompleted || job.Status == domain.JobStatusFailed) {
			delete(m.jobs, id)
			deleted++
		}
	}
	return deleted, nil
}

func (m *MockJobStore) WithTx(tx *sql.Tx) store.JobStore {
	return m
}

// Job returns the stored state of a job for assertions.
func (m *MockJobStore) Job(id uuid.UUID) *domain.Job {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil
	}
	copied := *job
	return &copied
}

// MockDeadLetterStore is an in-memory DeadLetterStore for testing.
type MockDeadLetterStore struct {
	mutex   sync.Mutex
	Records []*domain.DeadLetter
}

func (m *MockDeadLetterStore) CreateDeadLetter(ctx context.Context, record *domain.DeadLetter) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.Records = append(m.Records, record)
	return nil
}

func (m *MockDeadLetterStore) ListDeadLetters(ctx context.Context, queue string, limit int) ([]*domain.DeadLetter, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	var out []*domain.DeadLetter
	for _, record := range m.Records {
		if queue == "" || record.QueueName == queue {
			out = append(out, record)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *MockDeadLetterStore) WithTx(tx *sql.Tx) store.DeadLetterStore {
	return m
}
