package extraction

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/triage-api/internal/domain"
	"github.com/phrazzld/triage-api/internal/ratelimit"
	"github.com/phrazzld/triage-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockExtractor scripts extraction replies per prompt invocation.
type MockExtractor struct {
	ExtractFn func(ctx context.Context, prompt string) (string, error)
	Prompts   []string
}

func (m *MockExtractor) Extract(ctx context.Context, prompt string) (string, error) {
	m.Prompts = append(m.Prompts, prompt)
	return m.ExtractFn(ctx, prompt)
}

// MockTaskStore keeps created tasks in memory.
type MockTaskStore struct {
	Tasks []*domain.Task
}

func (m *MockTaskStore) CreateTask(ctx context.Context, task *domain.Task) error {
	copied := *task
	m.Tasks = append(m.Tasks, &copied)
	return nil
}

func (m *MockTaskStore) GetTask(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	for _, task := range m.Tasks {
		if task.ID == id {
			copied := *task
			return &copied, nil
		}
	}
	return nil, store.ErrTaskNotFound
}

func (m *MockTaskStore) UpdateTask(ctx context.Context, task *domain.Task) error {
	for i, stored := range m.Tasks {
		if stored.ID == task.ID {
			copied := *task
			m.Tasks[i] = &copied
			return nil
		}
	}
	return store.ErrTaskNotFound
}

func (m *MockTaskStore) ListTasksByStatus(ctx context.Context, statuses []domain.TaskStatus, limit int) ([]*domain.Task, error) {
	var out []*domain.Task
	for _, task := range m.Tasks {
		for _, status := range statuses {
			if task.Status == status {
				copied := *task
				out = append(out, &copied)
				break
			}
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MockTaskStore) ListChildTasks(ctx context.Context, parentID uuid.UUID) ([]*domain.Task, error) {
	var out []*domain.Task
	for _, task := range m.Tasks {
		if task.ParentID != nil && *task.ParentID == parentID {
			copied := *task
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *MockTaskStore) WithTx(tx *sql.Tx) store.TaskStore { return m }

// MockDependencyStore keeps edges in memory and enforces pair uniqueness.
type MockDependencyStore struct {
	Edges []*domain.Dependency
}

func (m *MockDependencyStore) CreateDependency(ctx context.Context, dep *domain.Dependency) error {
	for _, edge := range m.Edges {
		if edge.TaskID == dep.TaskID && edge.DependsOnTaskID == dep.DependsOnTaskID {
			return store.ErrDuplicateDependency
		}
	}
	copied := *dep
	m.Edges = append(m.Edges, &copied)
	return nil
}

func (m *MockDependencyStore) DependencyExists(ctx context.Context, taskID, dependsOnTaskID uuid.UUID) (bool, error) {
	for _, edge := range m.Edges {
		if edge.TaskID == taskID && edge.DependsOnTaskID == dependsOnTaskID {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockDependencyStore) ListDependenciesOf(ctx context.Context, taskID uuid.UUID) ([]*domain.Dependency, error) {
	var out []*domain.Dependency
	for _, edge := range m.Edges {
		if edge.TaskID == taskID {
			copied := *edge
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *MockDependencyStore) ListDependents(ctx context.Context, taskID uuid.UUID) ([]*domain.Dependency, error) {
	var out []*domain.Dependency
	for _, edge := range m.Edges {
		if edge.DependsOnTaskID == taskID {
			copied := *edge
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *MockDependencyStore) DeleteDependency(ctx context.Context, id uuid.UUID) error {
	for i, edge := range m.Edges {
		if edge.ID == id {
			m.Edges = append(m.Edges[:i], m.Edges[i+1:]...)
			return nil
		}
	}
	return store.ErrDependencyNotFound
}

func (m *MockDependencyStore) WithTx(tx *sql.Tx) store.DependencyStore { return m }

// MockExtractionLogStore keeps idempotency entries in memory.
type MockExtractionLogStore struct {
	Entries []*domain.ExtractionLogEntry
}

func (m *MockExtractionLogStore) CreateEntries(ctx context.Context, entries []*domain.ExtractionLogEntry) error {
	m.Entries = append(m.Entries, entries...)
	return nil
}

func (m *MockExtractionLogStore) ProcessedIDs(ctx context.Context, entityKind, sourceKind string, sourceIDs []string) (map[string]bool, error) {
	known := make(map[string]bool)
	for _, entry := range m.Entries {
		if entry.EntityKind == entityKind && entry.SourceKind == sourceKind {
			known[entry.SourceID] = true
		}
	}
	out := make(map[string]bool)
	for _, id := range sourceIDs {
		if known[id] {
			out[id] = true
		}
	}
	return out, nil
}

func (m *MockExtractionLogStore) WithTx(tx *sql.Tx) store.ExtractionLogStore { return m }

// Entry returns the log entry for a source ID, or nil.
func (m *MockExtractionLogStore) Entry(sourceID string) *domain.ExtractionLogEntry {
	for _, entry := range m.Entries {
		if entry.SourceID == sourceID {
			return entry
		}
	}
	return nil
}

func newTestPipeline(extractor Extractor) (*Pipeline, *MockTaskStore, *MockDependencyStore, *MockExtractionLogStore) {
	tasks := &MockTaskStore{}
	deps := &MockDependencyStore{}
	extLog := &MockExtractionLogStore{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := NewPipeline(extractor, tasks, deps, extLog, ratelimit.NewLimiter(0), logger)
	return p, tasks, deps, extLog
}

func reply(tasks string) string {
	return "```json\n{\"tasks\":[" + tasks + "]}\n```"
}

func TestPipelineRun(t *testing.T) {
	ctx := context.Background()

	t.Run("creates tasks from proposals", func(t *testing.T) {
		extractor := &MockExtractor{
			ExtractFn: func(ctx context.Context, prompt string) (string, error) {
				return reply(`{"title":"Fix login timeout","priority":"high","confidence":0.85,"due_date":"2026-09-01"}`), nil
			},
		}
		p, tasks, _, extLog := newTestPipeline(extractor)

		items := []domain.SourceItem{{
			ID:        "m1",
			Text:      "the login keeps timing out, someone should fix it",
			ThreadID:  "t9",
			Timestamp: time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
		}}

		result, err := p.Run(ctx, domain.SourceKindChat, items)
		require.NoError(t, err)

		assert.Equal(t, 1, result.Processed)
		assert.Equal(t, 1, result.TasksCreated)
		assert.Zero(t, result.Duplicates)
		assert.Zero(t, result.Failed)

		require.Len(t, tasks.Tasks, 1)
		created := tasks.Tasks[0]
		assert.Equal(t, "Fix login timeout", created.Title)
		assert.Equal(t, domain.TaskPriorityHigh, created.Priority)
		assert.Equal(t, domain.TaskSourceChat, created.SourceType)
		assert.Equal(t, items[0].Timestamp, created.Date)
		assert.InDelta(t, 0.85, created.Confidence, 0.001)
		require.NotNil(t, created.DueDate)
		assert.Equal(t, "2026-09-01", created.DueDate.Format("2006-01-02"))

		// Chat provenance for the completion waterfall.
		assert.Equal(t, "m1", created.OriginMessageID)
		assert.Equal(t, "t9", created.OriginThreadID)

		entry := extLog.Entry("m1")
		require.NotNil(t, entry)
		assert.Equal(t, 1, entry.ExtractedCount)
	})

	t.Run("second run is a no-op", func(t *testing.T) {
		calls := 0
		extractor := &MockExtractor{
			ExtractFn: func(ctx context.Context, prompt string) (string, error) {
				calls++
				return reply(`{"title":"Rotate API keys"}`), nil
			},
		}
		p, tasks, _, _ := newTestPipeline(extractor)

		items := []domain.SourceItem{{ID: "n1", Text: "rotate the keys"}}

		first, err := p.Run(ctx, domain.SourceKindNote, items)
		require.NoError(t, err)
		assert.Equal(t, 1, first.Processed)

		second, err := p.Run(ctx, domain.SourceKindNote, items)
		require.NoError(t, err)
		assert.Zero(t, second.Processed)
		assert.Equal(t, 1, second.Duplicates)
		assert.Zero(t, second.TasksCreated)
		assert.Equal(t, 1, calls)
		assert.Len(t, tasks.Tasks, 1)
	})

	t.Run("failed extraction is retryable", func(t *testing.T) {
		failing := true
		extractor := &MockExtractor{
			ExtractFn: func(ctx context.Context, prompt string) (string, error) {
				if failing {
					return "", errors.New("model overloaded")
				}
				return reply(`{"title":"Investigate OOM"}`), nil
			},
		}
		p, tasks, _, extLog := newTestPipeline(extractor)

		items := []domain.SourceItem{{ID: "e1", Text: "process killed by OOM"}}

		result, err := p.Run(ctx, domain.SourceKindNote, items)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Failed)
		assert.Zero(t, result.Processed)
		assert.Nil(t, extLog.Entry("e1"), "failed input must not be recorded")

		failing = false
		result, err = p.Run(ctx, domain.SourceKindNote, items)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Processed)
		assert.Len(t, tasks.Tasks, 1)
	})

	t.Run("malformed reply consumes input without tasks", func(t *testing.T) {
		extractor := &MockExtractor{
			ExtractFn: func(ctx context.Context, prompt string) (string, error) {
				return "no structured output here", nil
			},
		}
		p, tasks, _, extLog := newTestPipeline(extractor)

		result, err := p.Run(ctx, domain.SourceKindChat, []domain.SourceItem{{ID: "m2", Text: "hello"}})
		require.NoError(t, err)

		assert.Equal(t, 1, result.Processed)
		assert.Zero(t, result.TasksCreated)
		assert.Empty(t, tasks.Tasks)

		entry := extLog.Entry("m2")
		require.NotNil(t, entry)
		assert.Zero(t, entry.ExtractedCount)
	})

	t.Run("error logs grouped into one extraction", func(t *testing.T) {
		extractor := &MockExtractor{
			ExtractFn: func(ctx context.Context, prompt string) (string, error) {
				return reply(`{"title":"Fix db timeout"}`), nil
			},
		}
		p, tasks, _, extLog := newTestPipeline(extractor)

		at := time.Date(2026, 8, 1, 8, 0, 0, 0, time.UTC)
		items := []domain.SourceItem{
			{ID: "e1", Text: "2026-08-01T08:00:00Z db timeout after 5001 ms", Timestamp: at},
			{ID: "e2", Text: "2026-08-01T09:00:00Z db timeout after 7002 ms", Timestamp: at.Add(time.Hour)},
			{ID: "e3", Text: "2026-08-01T10:00:00Z db timeout after 9003 ms", Timestamp: at.Add(2 * time.Hour)},
		}

		result, err := p.Run(ctx, domain.SourceKindErrorLog, items)
		require.NoError(t, err)

		assert.Equal(t, 3, result.Processed)
		assert.Equal(t, 1, result.TasksCreated)
		require.Len(t, extractor.Prompts, 1)
		assert.Contains(t, extractor.Prompts[0], "occurred 3 times")
		assert.Len(t, tasks.Tasks, 1)

		// Representative carries the count; siblings are recorded with zero.
		assert.Equal(t, 1, extLog.Entry("e1").ExtractedCount)
		assert.Zero(t, extLog.Entry("e2").ExtractedCount)
		assert.Zero(t, extLog.Entry("e3").ExtractedCount)
	})

	t.Run("dependencies resolved within batch and against store", func(t *testing.T) {
		stored, err := domain.NewTask(domain.TaskSourceManual, "Provision staging cluster", "")
		require.NoError(t, err)
		stored.Status = domain.TaskStatusAccepted

		replies := []string{
			reply(`{"title":"Define schema migration"}`),
			reply(fmt.Sprintf(`{"title":"Backfill data","dependencies":[{"title":"%s"},{"title":"%s"},{"title":"%s"}]}`,
				"Define schema migration", "provision staging cluster", "win the lottery")),
		}
		call := 0
		extractor := &MockExtractor{
			ExtractFn: func(ctx context.Context, prompt string) (string, error) {
				r := replies[call]
				call++
				return r, nil
			},
		}
		p, tasks, deps, _ := newTestPipeline(extractor)
		tasks.Tasks = append(tasks.Tasks, stored)

		items := []domain.SourceItem{
			{ID: "n1", Text: "we need the schema migration defined"},
			{ID: "n2", Text: "then backfill the data"},
		}

		result, err := p.Run(ctx, domain.SourceKindNote, items)
		require.NoError(t, err)

		// Unresolvable "win the lottery" is dropped.
		assert.Equal(t, 2, result.EdgesCreated)
		require.Len(t, deps.Edges, 2)

		var dependents []uuid.UUID
		for _, edge := range deps.Edges {
			dependents = append(dependents, edge.DependsOnTaskID)
			assert.Equal(t, domain.DependencySourceAuto, edge.SourceType)
		}
		assert.Contains(t, dependents, stored.ID)
	})

	t.Run("unknown source kind", func(t *testing.T) {
		p, _, _, _ := newTestPipeline(&MockExtractor{})
		_, err := p.Run(ctx, "carrier_pigeon", nil)
		assert.Error(t, err)
	})
}
