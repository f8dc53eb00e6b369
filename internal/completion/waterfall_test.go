package completion

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/triage-api/internal/domain"
	"github.com/phrazzld/triage-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockTaskStore serves accepted tasks and parent/child lookups in memory.
type MockTaskStore struct {
	Tasks []*domain.Task
}

func (m *MockTaskStore) CreateTask(ctx context.Context, task *domain.Task) error {
	m.Tasks = append(m.Tasks, task)
	return nil
}

func (m *MockTaskStore) GetTask(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	for _, task := range m.Tasks {
		if task.ID == id {
			return task, nil
		}
	}
	return nil, store.ErrTaskNotFound
}

func (m *MockTaskStore) UpdateTask(ctx context.Context, task *domain.Task) error {
	return nil
}

func (m *MockTaskStore) ListTasksByStatus(ctx context.Context, statuses []domain.TaskStatus, limit int) ([]*domain.Task, error) {
	var out []*domain.Task
	for _, task := range m.Tasks {
		for _, status := range statuses {
			if task.Status == status {
				out = append(out, task)
				break
			}
		}
	}
	return out, nil
}

func (m *MockTaskStore) ListChildTasks(ctx context.Context, parentID uuid.UUID) ([]*domain.Task, error) {
	var out []*domain.Task
	for _, task := range m.Tasks {
		if task.ParentID != nil && *task.ParentID == parentID {
			out = append(out, task)
		}
	}
	return out, nil
}

func (m *MockTaskStore) WithTx(tx *sql.Tx) store.TaskStore { return m }

// MockHostingClient answers item-state lookups from a scripted state.
type MockHostingClient struct {
	State *HostingItemState
	Err   error
	Calls int
}

func (m *MockHostingClient) GetItemState(ctx context.Context, owner, repo string, number int) (*HostingItemState, error) {
	m.Calls++
	return m.State, m.Err
}

// MockJudge returns a scripted verdict and records what it was asked.
type MockJudge struct {
	Verdict  *Verdict
	Err      error
	Calls    int
	Contexts []string
	Sources  []string
}

func (m *MockJudge) Judge(ctx context.Context, task *domain.Task, contextText, sourceLabel string) (*Verdict, error) {
	m.Calls++
	m.Contexts = append(m.Contexts, contextText)
	m.Sources = append(m.Sources, sourceLabel)
	return m.Verdict, m.Err
}

type MockSessionSource struct {
	Messages []string
	Err      error
	Calls    int
}

func (m *MockSessionSource) RecentSessionMessages(ctx context.Context, projectID string, sessions, messagesPerSession int) ([]string, error) {
	m.Calls++
	return m.Messages, m.Err
}

type MockThreadSource struct {
	Messages []string
	Err      error
	Calls    int
}

func (m *MockThreadSource) MessagesAfter(ctx context.Context, threadID, originMessageID string) ([]string, error) {
	m.Calls++
	return m.Messages, m.Err
}

type MockTranscriptSource struct {
	Segments []string
	Err      error
	Calls    int
}

func (m *MockTranscriptSource) RecentSegments(ctx context.Context, since time.Time, limit int) ([]string, error) {
	m.Calls++
	return m.Segments, m.Err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func acceptedTask(t *testing.T, title string) *domain.Task {
	t.Helper()
	task, err := domain.NewTask(domain.TaskSourceChat, title, "")
	require.NoError(t, err)
	task.Status = domain.TaskStatusAccepted
	return task
}

func hostingTask(t *testing.T) *domain.Task {
	t.Helper()
	task, err := domain.NewTask(domain.TaskSourceCodeReview, "Review retry middleware", "")
	require.NoError(t, err)
	task.Status = domain.TaskStatusAccepted
	task.HostingOwner = "acme"
	task.HostingRepo = "widgets"
	task.HostingNumber = 42
	return task
}

func TestWaterfallHostingTier(t *testing.T) {
	ctx := context.Background()

	t.Run("merged item completes without the judge", func(t *testing.T) {
		task := hostingTask(t)
		hosting := &MockHostingClient{State: &HostingItemState{State: "merged"}}
		judge := &MockJudge{Verdict: &Verdict{Completed: true}}
		sessions := &MockSessionSource{Messages: []string{"shipped it"}}

		w := NewWaterfall(&MockTaskStore{}, hosting, judge, sessions, nil, nil, discardLogger())

		s, err := w.Evaluate(ctx, task)
		require.NoError(t, err)
		require.NotNil(t, s)
		assert.Equal(t, SourceCodeHosting, s.Source)
		assert.Equal(t, 1.0, s.Confidence)
		assert.Contains(t, s.Reason, "acme/widgets#42 was merged")

		// Hosting short-circuits every later tier.
		assert.Zero(t, judge.Calls)
		assert.Zero(t, sessions.Calls)
	})

	t.Run("closed item suggests with lower confidence", func(t *testing.T) {
		hosting := &MockHostingClient{State: &HostingItemState{State: "closed"}}
		w := NewWaterfall(&MockTaskStore{}, hosting, nil, nil, nil, nil, discardLogger())

		s, err := w.Evaluate(ctx, hostingTask(t))
		require.NoError(t, err)
		require.NotNil(t, s)
		assert.Equal(t, 0.9, s.Confidence)
		assert.Contains(t, s.Reason, "was closed")
	})

	t.Run("open item is no evidence", func(t *testing.T) {
		hosting := &MockHostingClient{State: &HostingItemState{State: "open"}}
		w := NewWaterfall(&MockTaskStore{}, hosting, nil, nil, nil, nil, discardLogger())

		s, err := w.Evaluate(ctx, hostingTask(t))
		require.NoError(t, err)
		assert.Nil(t, s)
	})

	t.Run("lookup failure is no evidence, not an error", func(t *testing.T) {
		hosting := &MockHostingClient{Err: errors.New("rate limited")}
		w := NewWaterfall(&MockTaskStore{}, hosting, nil, nil, nil, nil, discardLogger())

		s, err := w.Evaluate(ctx, hostingTask(t))
		require.NoError(t, err)
		assert.Nil(t, s)
	})

	t.Run("unlinked task skips the hosting client", func(t *testing.T) {
		hosting := &MockHostingClient{State: &HostingItemState{State: "merged"}}
		w := NewWaterfall(&MockTaskStore{}, hosting, nil, nil, nil, nil, discardLogger())

		s, err := w.Evaluate(ctx, acceptedTask(t, "Write release notes"))
		require.NoError(t, err)
		assert.Nil(t, s)
		assert.Zero(t, hosting.Calls)
	})
}

func TestWaterfallJudgeTiers(t *testing.T) {
	ctx := context.Background()

	t.Run("session evidence yields a suggestion", func(t *testing.T) {
		projectID := uuid.New()
		task := acceptedTask(t, "Wire retry middleware")
		task.ProjectID = &projectID

		judge := &MockJudge{Verdict: &Verdict{
			Completed:  true,
			Reason:     "session shows the middleware merged and tested",
			Confidence: 0.8,
			Evidence:   "ran the retry suite, all green",
		}}
		sessions := &MockSessionSource{Messages: []string{"retry middleware is done"}}

		w := NewWaterfall(&MockTaskStore{}, nil, judge, sessions, nil, nil, discardLogger())

		s, err := w.Evaluate(ctx, task)
		require.NoError(t, err)
		require.NotNil(t, s)
		assert.Equal(t, SourceCodingSession, s.Source)
		assert.Equal(t, task.ID.String(), s.TaskID)
		assert.InDelta(t, 0.8, s.Confidence, 0.001)
		require.Len(t, judge.Sources, 1)
		assert.Equal(t, SourceCodingSession, judge.Sources[0])
		assert.Contains(t, judge.Contexts[0], "retry middleware is done")
	})

	t.Run("tiers fall through in priority order", func(t *testing.T) {
		projectID := uuid.New()
		task := acceptedTask(t, "Fix login timeout")
		task.ProjectID = &projectID
		task.OriginThreadID = "t1"
		task.OriginMessageID = "m1"

		// Sessions say nothing, the thread convinces the judge.
		sessions := &MockSessionSource{Messages: []string{"unrelated work"}}
		threads := &MockThreadSource{Messages: []string{"login is fixed now, thanks"}}
		transcripts := &MockTranscriptSource{Segments: []string{"talked about groceries"}}

		seq := &sequencedJudge{verdicts: []*Verdict{nil, {Completed: true, Reason: "user confirmed the fix", Confidence: 0.7}}}
		w := NewWaterfall(&MockTaskStore{}, nil, seq, sessions, threads, transcripts, discardLogger())

		s, err := w.Evaluate(ctx, task)
		require.NoError(t, err)
		require.NotNil(t, s)
		assert.Equal(t, SourceChatThread, s.Source)
		assert.Equal(t, []string{SourceCodingSession, SourceChatThread}, seq.sources)
		assert.Zero(t, transcripts.Calls)
	})

	t.Run("judge failure is no evidence", func(t *testing.T) {
		task := acceptedTask(t, "Rotate API keys")
		judge := &MockJudge{Err: errors.New("model overloaded")}
		transcripts := &MockTranscriptSource{Segments: []string{"rotated the keys this morning"}}

		w := NewWaterfall(&MockTaskStore{}, nil, judge, nil, nil, transcripts, discardLogger())

		s, err := w.Evaluate(ctx, task)
		require.NoError(t, err)
		assert.Nil(t, s)
		assert.Equal(t, 1, judge.Calls)
	})

	t.Run("nil verdict is no evidence", func(t *testing.T) {
		task := acceptedTask(t, "Rotate API keys")
		judge := &MockJudge{}
		transcripts := &MockTranscriptSource{Segments: []string{"something else"}}

		w := NewWaterfall(&MockTaskStore{}, nil, judge, nil, nil, transcripts, discardLogger())

		s, err := w.Evaluate(ctx, task)
		require.NoError(t, err)
		assert.Nil(t, s)
	})

	t.Run("empty evidence never reaches the judge", func(t *testing.T) {
		task := acceptedTask(t, "Rotate API keys")
		judge := &MockJudge{Verdict: &Verdict{Completed: true}}
		transcripts := &MockTranscriptSource{}

		w := NewWaterfall(&MockTaskStore{}, nil, judge, nil, nil, transcripts, discardLogger())

		s, err := w.Evaluate(ctx, task)
		require.NoError(t, err)
		assert.Nil(t, s)
		assert.Zero(t, judge.Calls)
	})

	t.Run("nil judge skips every judge tier", func(t *testing.T) {
		task := acceptedTask(t, "Rotate API keys")
		transcripts := &MockTranscriptSource{Segments: []string{"rotated"}}

		w := NewWaterfall(&MockTaskStore{}, nil, nil, nil, nil, transcripts, discardLogger())

		s, err := w.Evaluate(ctx, task)
		require.NoError(t, err)
		assert.Nil(t, s)
		assert.Zero(t, transcripts.Calls)
	})

	t.Run("judge sees subtasks and parent", func(t *testing.T) {
		tasks := &MockTaskStore{}
		parent := acceptedTask(t, "Ship auth revamp")
		task := acceptedTask(t, "Fix login timeout")
		task.ParentID = &parent.ID
		child := acceptedTask(t, "Add session expiry test")
		child.ParentID = &task.ID
		child.Status = domain.TaskStatusCompleted
		tasks.Tasks = []*domain.Task{parent, task, child}

		judge := &MockJudge{}
		transcripts := &MockTranscriptSource{Segments: []string{"login fix went out"}}

		w := NewWaterfall(tasks, nil, judge, nil, nil, transcripts, discardLogger())

		_, err := w.Evaluate(ctx, task)
		require.NoError(t, err)
		require.Len(t, judge.Contexts, 1)
		assert.Contains(t, judge.Contexts[0], "Add session expiry test")
		assert.Contains(t, judge.Contexts[0], "Parent task:")
		assert.Contains(t, judge.Contexts[0], "Ship auth revamp")
	})
}

// sequencedJudge returns a different verdict on each call.
type sequencedJudge struct {
	verdicts []*Verdict
	sources  []string
}

func (s *sequencedJudge) Judge(ctx context.Context, task *domain.Task, contextText, sourceLabel string) (*Verdict, error) {
	s.sources = append(s.sources, sourceLabel)
	if len(s.verdicts) == 0 {
		return nil, nil
	}
	v := s.verdicts[0]
	s.verdicts = s.verdicts[1:]
	return v, nil
}

func TestSuggestCompleted(t *testing.T) {
	ctx := context.Background()

	tasks := &MockTaskStore{}
	done := hostingTask(t)
	open := acceptedTask(t, "Write release notes")
	pending, err := domain.NewTask(domain.TaskSourceNote, "Not yet triaged", "")
	require.NoError(t, err)
	tasks.Tasks = []*domain.Task{done, open, pending}

	hosting := &MockHostingClient{State: &HostingItemState{State: "merged"}}
	w := NewWaterfall(tasks, hosting, nil, nil, nil, nil, discardLogger())

	suggestions, err := w.SuggestCompleted(ctx)
	require.NoError(t, err)
	require.Len(t, suggestions, 1)
	assert.Equal(t, done.ID.String(), suggestions[0].TaskID)

	// Only the hosting-linked accepted task was inspected; the pending
	// task never entered the sweep.
	assert.Equal(t, 1, hosting.Calls)
}
