package completion

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/phrazzld/triage-api/internal/domain"
	"github.com/phrazzld/triage-api/internal/platform/logger"
	"github.com/phrazzld/triage-api/internal/store"
)

// Evidence source labels, in waterfall priority order.
const (
	SourceCodeHosting     = "code_hosting"
	SourceCodingSession   = "coding_session"
	SourceChatThread      = "chat_thread"
	SourceVoiceTranscript = "voice_transcript"
)

// Evidence-gathering bounds.
const (
	sessionLookback      = 5
	messagesPerSession   = 10
	transcriptSegmentMax = 30
	confidenceMerged     = 1.0
	confidenceClosed     = 0.9
)

// Verdict is a judge's answer for one task against one evidence source.
type Verdict struct {
	Completed  bool
	Reason     string
	Confidence float64
	Evidence   string
}

// Suggestion says an accepted task looks finished, with the evidence
// source that convinced the waterfall.
type Suggestion struct {
	TaskID     string
	Title      string
	Source     string
	Reason     string
	Confidence float64
	Evidence   string
}

// Judge is the LLM collaborator asked whether evidence shows a task is
// done. A (nil, nil) return means "no evidence either way" and is the
// expected answer when the judge cannot respond; it never aborts the
// waterfall.
type Judge interface {
	Judge(ctx context.Context, task *domain.Task, contextText, sourceLabel string) (*Verdict, error)
}

// HostingItemState is the state of a code-hosting item (PR or issue).
type HostingItemState struct {
	State    string // "open", "closed", or "merged"
	ClosedAt *time.Time
	MergedAt *time.Time
}

// HostingClient reads item state from the code-hosting API. A nil state
// with nil error means the item could not be found.
type HostingClient interface {
	GetItemState(ctx context.Context, owner, repo string, number int) (*HostingItemState, error)
}

// SessionSource returns recent coding-session messages for a project,
// newest sessions first, capped per session.
type SessionSource interface {
	RecentSessionMessages(ctx context.Context, projectID string, sessions, messagesPerSession int) ([]string, error)
}

// ThreadSource returns chat messages in a thread posted after the given
// origin message.
type ThreadSource interface {
	MessagesAfter(ctx context.Context, threadID, originMessageID string) ([]string, error)
}

// TranscriptSource returns recent voice-transcript segments on or after
// the given time.
type TranscriptSource interface {
	RecentSegments(ctx context.Context, since time.Time, limit int) ([]string, error)
}

// Waterfall evaluates evidence sources for accepted tasks in fixed
// priority order, short-circuiting on the first positive signal. Sources
// that fail or have nothing to say yield no evidence, never an error.
type Waterfall struct {
	tasks       store.TaskStore
	hosting     HostingClient
	judge       Judge
	sessions    SessionSource
	threads     ThreadSource
	transcripts TranscriptSource
	logger      *slog.Logger
}

// NewWaterfall creates a completion-detection waterfall. Any evidence
// collaborator may be nil; its tier is then skipped.
func NewWaterfall(
	tasks store.TaskStore,
	hosting HostingClient,
	judge Judge,
	sessions SessionSource,
	threads ThreadSource,
	transcripts TranscriptSource,
	logger *slog.Logger,
) *Waterfall {
	return &Waterfall{
		tasks:       tasks,
		hosting:     hosting,
		judge:       judge,
		sessions:    sessions,
		threads:     threads,
		transcripts: transcripts,
		logger:      logger.With("component", "completion_waterfall"),
	}
}

// SuggestCompleted runs the waterfall over every accepted task and
// returns a suggestion per task with positive evidence. Tasks with no
// positive source anywhere are simply absent from the result.
func (w *Waterfall) SuggestCompleted(ctx context.Context) ([]Suggestion, error) {
	accepted, err := w.tasks.ListTasksByStatus(ctx, []domain.TaskStatus{domain.TaskStatusAccepted}, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list accepted tasks: %w", err)
	}

	var suggestions []Suggestion
	for _, task := range accepted {
		s, err := w.Evaluate(ctx, task)
		if err != nil {
			return suggestions, err
		}
		if s != nil {
			suggestions = append(suggestions, *s)
		}
	}

	return suggestions, nil
}

// Evaluate runs the waterfall for one task. A nil suggestion with nil
// error means no evidence source was positive.
func (w *Waterfall) Evaluate(ctx context.Context, task *domain.Task) (*Suggestion, error) {
	if s := w.checkHosting(ctx, task); s != nil {
		return s, nil
	}

	if w.judge == nil {
		return nil, nil
	}

	childSummary, parentRef, err := w.relatedContext(ctx, task)
	if err != nil {
		return nil, err
	}

	if s := w.checkSessions(ctx, task, childSummary, parentRef); s != nil {
		return s, nil
	}
	if s := w.checkThread(ctx, task, childSummary, parentRef); s != nil {
		return s, nil
	}
	if s := w.checkTranscript(ctx, task, childSummary, parentRef); s != nil {
		return s, nil
	}

	return nil, nil
}

// checkHosting is the highest-priority tier: a merged or closed hosting
// item is taken as direct evidence without consulting the judge.
func (w *Waterfall) checkHosting(ctx context.Context, task *domain.Task) *Suggestion {
	if w.hosting == nil || !task.HostingLinked() {
		return nil
	}

	log := logger.FromContext(ctx)

	state, err := w.hosting.GetItemState(ctx, task.HostingOwner, task.HostingRepo, task.HostingNumber)
	if err != nil {
		log.Warn("hosting state lookup failed, treating as no evidence",
			"task_id", task.ID,
			"owner", task.HostingOwner,
			"repo", task.HostingRepo,
			"number", task.HostingNumber,
			"error", err)
		return nil
	}
	if state == nil {
		return nil
	}

	switch state.State {
	case "merged":
		return w.suggestion(task, SourceCodeHosting,
			fmt.Sprintf("%s/%s#%d was merged", task.HostingOwner, task.HostingRepo, task.HostingNumber),
			confidenceMerged, "")
	case "closed":
		return w.suggestion(task, SourceCodeHosting,
			fmt.Sprintf("%s/%s#%d was closed", task.HostingOwner, task.HostingRepo, task.HostingNumber),
			confidenceClosed, "")
	default:
		return nil
	}
}

func (w *Waterfall) checkSessions(ctx context.Context, task *domain.Task, childSummary, parentRef string) *Suggestion {
	if w.sessions == nil || task.ProjectID == nil {
		return nil
	}

	messages, err := w.sessions.RecentSessionMessages(ctx, task.ProjectID.String(), sessionLookback, messagesPerSession)
	if err != nil {
		logger.FromContext(ctx).Warn("session evidence unavailable",
			"task_id", task.ID, "error", err)
		return nil
	}

	return w.askJudge(ctx, task, SourceCodingSession, messages, childSummary, parentRef)
}

func (w *Waterfall) checkThread(ctx context.Context, task *domain.Task, childSummary, parentRef string) *Suggestion {
	if w.threads == nil || task.OriginThreadID == "" || task.OriginMessageID == "" {
		return nil
	}

	messages, err := w.threads.MessagesAfter(ctx, task.OriginThreadID, task.OriginMessageID)
	if err != nil {
		logger.FromContext(ctx).Warn("thread evidence unavailable",
			"task_id", task.ID, "error", err)
		return nil
	}

	return w.askJudge(ctx, task, SourceChatThread, messages, childSummary, parentRef)
}

func (w *Waterfall) checkTranscript(ctx context.Context, task *domain.Task, childSummary, parentRef string) *Suggestion {
	if w.transcripts == nil {
		return nil
	}

	segments, err := w.transcripts.RecentSegments(ctx, task.Date, transcriptSegmentMax)
	if err != nil {
		logger.FromContext(ctx).Warn("transcript evidence unavailable",
			"task_id", task.ID, "error", err)
		return nil
	}

	return w.askJudge(ctx, task, SourceVoiceTranscript, segments, childSummary, parentRef)
}

// askJudge sends gathered evidence to the judge. Judge failure and a
// nil verdict both count as "no evidence"; only an explicit completed
// verdict produces a suggestion.
func (w *Waterfall) askJudge(ctx context.Context, task *domain.Task, sourceLabel string, evidence []string, childSummary, parentRef string) *Suggestion {
	if len(evidence) == 0 {
		return nil
	}

	contextText := buildJudgeContext(evidence, childSummary, parentRef)

	verdict, err := w.judge.Judge(ctx, task, contextText, sourceLabel)
	if err != nil {
		logger.FromContext(ctx).Warn("judge call failed, treating as no evidence",
			"task_id", task.ID,
			"source", sourceLabel,
			"error", err)
		return nil
	}
	if verdict == nil || !verdict.Completed {
		return nil
	}

	return w.suggestion(task, sourceLabel, verdict.Reason, verdict.Confidence, verdict.Evidence)
}

// relatedContext assembles the child-task summary and parent reference
// passed to the judge alongside evidence.
func (w *Waterfall) relatedContext(ctx context.Context, task *domain.Task) (childSummary, parentRef string, err error) {
	children, err := w.tasks.ListChildTasks(ctx, task.ID)
	if err != nil {
		return "", "", fmt.Errorf("failed to list child tasks: %w", err)
	}

	if len(children) > 0 {
		var b strings.Builder
		b.WriteString("Subtasks:\n")
		for _, c := range children {
			fmt.Fprintf(&b, "- [%s] %s\n", c.Status, c.Title)
		}
		childSummary = b.String()
	}

	if task.ParentID != nil {
		parent, err := w.tasks.GetTask(ctx, *task.ParentID)
		if err != nil {
			if !store.IsNotFoundError(err) {
				return "", "", fmt.Errorf("failed to load parent task: %w", err)
			}
		} else {
			parentRef = fmt.Sprintf("Parent task: [%s] %s", parent.Status, parent.Title)
		}
	}

	return childSummary, parentRef, nil
}

func (w *Waterfall) suggestion(task *domain.Task, source, reason string, confidence float64, evidence string) *Suggestion {
	return &Suggestion{
		TaskID:     task.ID.String(),
		Title:      task.Title,
		Source:     source,
		Reason:     reason,
		Confidence: confidence,
		Evidence:   evidence,
	}
}

func buildJudgeContext(evidence []string, childSummary, parentRef string) string {
	var b strings.Builder

	for _, line := range evidence {
		b.WriteString(line)
		b.WriteString("\n")
	}
	if childSummary != "" {
		b.WriteString("\n")
		b.WriteString(childSummary)
	}
	if parentRef != "" {
		b.WriteString("\n")
		b.WriteString(parentRef)
		b.WriteString("\n")
	}

	return b.String()
}
