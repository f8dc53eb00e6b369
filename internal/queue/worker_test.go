package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/phrazzld/triage-api/internal/domain"
	"github.com/phrazzld/triage-api/internal/events"
	"github.com/phrazzld/triage-api/internal/extraction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerDrain(t *testing.T) {
	ctx := context.Background()

	t.Run("acks successful job", func(t *testing.T) {
		q, jobs, _ := newTestQueue(t, Options{Name: domain.QueueAI})
		w := NewWorker(q, WorkerConfig{}, testLogger())

		var handled int
		w.Register(domain.JobTypeExtractTasks, func(ctx context.Context, job *domain.Job) error {
			handled++
			return nil
		})

		job, err := q.Enqueue(ctx, ExtractionPayload{SourceKind: domain.SourceKindChat}, time.Time{})
		require.NoError(t, err)

		w.Drain(ctx)

		assert.Equal(t, 1, handled)
		assert.Equal(t, domain.JobStatusCompleted, jobs.Job(job.ID).Status)
	})

	t.Run("fails job when handler errors", func(t *testing.T) {
		q, jobs, _ := newTestQueue(t, Options{Name: domain.QueueAI})
		w := NewWorker(q, WorkerConfig{}, testLogger())

		w.Register(domain.JobTypeExtractTasks, func(ctx context.Context, job *domain.Job) error {
			return errors.New("extraction blew up")
		})

		job, err := q.Enqueue(ctx, ExtractionPayload{SourceKind: domain.SourceKindChat}, time.Time{})
		require.NoError(t, err)

		w.Drain(ctx)

		stored := jobs.Job(job.ID)
		assert.Equal(t, domain.JobStatusPending, stored.Status)
		assert.Equal(t, 1, stored.RetryCount)
		assert.Contains(t, stored.ErrorMessage, "extraction blew up")
	})

	t.Run("fails job with no registered handler", func(t *testing.T) {
		q, jobs, _ := newTestQueue(t, Options{Name: domain.QueueAI})
		w := NewWorker(q, WorkerConfig{}, testLogger())

		job, err := q.Enqueue(ctx, ExtractionPayload{SourceKind: domain.SourceKindChat}, time.Time{})
		require.NoError(t, err)

		w.Drain(ctx)

		stored := jobs.Job(job.ID)
		assert.Equal(t, 1, stored.RetryCount)
		assert.Contains(t, stored.ErrorMessage, "no handler registered")
	})
}

// MockFetcher implements Fetcher for handler tests.
type MockFetcher struct {
	Items      []domain.SourceItem
	Err        error
	LastSource string
	LastLimit  int
}

func (m *MockFetcher) FetchItems(ctx context.Context, source string, since time.Time, limit int) ([]domain.SourceItem, error) {
	m.LastSource = source
	m.LastLimit = limit
	return m.Items, m.Err
}

// MockEmitter records emitted events.
type MockEmitter struct {
	Events []*events.JobRequestEvent
	Err    error
}

func (m *MockEmitter) EmitEvent(ctx context.Context, event *events.JobRequestEvent) error {
	m.Events = append(m.Events, event)
	return m.Err
}

func TestFetchHandler(t *testing.T) {
	ctx := context.Background()

	fetchJob := func(t *testing.T, source string) *domain.Job {
		t.Helper()
		raw, err := MarshalPayload(FetchPayload{Source: source})
		require.NoError(t, err)
		job, err := domain.NewJob(domain.QueueFetch, FetchPayload{Source: source}.JobType(), raw, source, 3, time.Time{})
		require.NoError(t, err)
		return job
	}

	t.Run("emits extraction request for fetched items", func(t *testing.T) {
		fetcher := &MockFetcher{Items: []domain.SourceItem{{ID: "m1", Text: "please fix the build"}}}
		emitter := &MockEmitter{}
		handler := NewFetchHandler(fetcher, emitter)

		err := handler(ctx, fetchJob(t, domain.SourceKindChat))
		require.NoError(t, err)

		assert.Equal(t, domain.SourceKindChat, fetcher.LastSource)
		assert.Equal(t, defaultFetchLimit, fetcher.LastLimit)
		require.Len(t, emitter.Events, 1)
		assert.Equal(t, domain.JobTypeExtractTasks, emitter.Events[0].Type)

		var payload ExtractionPayload
		require.NoError(t, emitter.Events[0].UnmarshalPayload(&payload))
		assert.Equal(t, domain.SourceKindChat, payload.SourceKind)
		require.Len(t, payload.Items, 1)
		assert.Equal(t, "m1", payload.Items[0].ID)
	})

	t.Run("no event for empty fetch", func(t *testing.T) {
		emitter := &MockEmitter{}
		handler := NewFetchHandler(&MockFetcher{}, emitter)

		err := handler(ctx, fetchJob(t, domain.SourceKindChat))
		require.NoError(t, err)
		assert.Empty(t, emitter.Events)
	})

	t.Run("voice items never flow to extraction", func(t *testing.T) {
		fetcher := &MockFetcher{Items: []domain.SourceItem{{ID: "v1", Text: "finished the migration today"}}}
		emitter := &MockEmitter{}
		handler := NewFetchHandler(fetcher, emitter)

		err := handler(ctx, fetchJob(t, domain.SourceKindVoice))
		require.NoError(t, err)
		assert.Empty(t, emitter.Events)
	})

	t.Run("fetch failure propagates", func(t *testing.T) {
		handler := NewFetchHandler(&MockFetcher{Err: errors.New("gateway down")}, &MockEmitter{})

		err := handler(ctx, fetchJob(t, domain.SourceKindChat))
		assert.ErrorContains(t, err, "gateway down")
	})
}

// MockExtractionRunner implements ExtractionRunner for handler tests.
type MockExtractionRunner struct {
	Result    *extraction.Result
	Err       error
	LastKind  string
	LastItems []domain.SourceItem
	TimesUsed int
}

func (m *MockExtractionRunner) Run(ctx context.Context, sourceKind string, items []domain.SourceItem) (*extraction.Result, error) {
	m.TimesUsed++
	m.LastKind = sourceKind
	m.LastItems = items
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Result, nil
}

func TestExtractionHandler(t *testing.T) {
	ctx := context.Background()

	extractionJob := func(t *testing.T) *domain.Job {
		t.Helper()
		raw, err := MarshalPayload(ExtractionPayload{
			SourceKind: domain.SourceKindNote,
			Items:      []domain.SourceItem{{ID: "n1", Text: "todo: rotate the API keys"}},
		})
		require.NoError(t, err)
		job, err := domain.NewJob(domain.QueueAI, domain.JobTypeExtractTasks, raw, "", 3, time.Time{})
		require.NoError(t, err)
		return job
	}

	t.Run("runs pipeline over payload items", func(t *testing.T) {
		runner := &MockExtractionRunner{Result: &extraction.Result{Processed: 1, TasksCreated: 1}}
		handler := NewExtractionHandler(runner)

		err := handler(ctx, extractionJob(t))
		require.NoError(t, err)

		assert.Equal(t, 1, runner.TimesUsed)
		assert.Equal(t, domain.SourceKindNote, runner.LastKind)
		require.Len(t, runner.LastItems, 1)
	})

	t.Run("pipeline failure propagates", func(t *testing.T) {
		handler := NewExtractionHandler(&MockExtractionRunner{Err: errors.New("model quota exceeded")})

		err := handler(ctx, extractionJob(t))
		assert.ErrorContains(t, err, "model quota exceeded")
	})
}

func TestEnqueueHandler(t *testing.T) {
	ctx := context.Background()

	t.Run("enqueues extraction request", func(t *testing.T) {
		q, jobs, _ := newTestQueue(t, Options{Name: domain.QueueAI})
		handler := NewEnqueueHandler(q)

		event, err := events.NewJobRequestEvent(domain.JobTypeExtractTasks, ExtractionPayload{
			SourceKind: domain.SourceKindChat,
			Items:      []domain.SourceItem{{ID: "m1", Text: "ship it"}},
		})
		require.NoError(t, err)

		require.NoError(t, handler.HandleEvent(ctx, event))

		due, err := jobs.ListDue(ctx, domain.QueueAI, time.Now().UTC(), 10)
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.Equal(t, domain.JobTypeExtractTasks, due[0].JobType)
	})

	t.Run("rejects unknown event type", func(t *testing.T) {
		q, _, _ := newTestQueue(t, Options{Name: domain.QueueAI})
		handler := NewEnqueueHandler(q)

		event, err := events.NewJobRequestEvent("reindex_everything", map[string]string{})
		require.NoError(t, err)

		assert.Error(t, handler.HandleEvent(ctx, event))
	})
}
