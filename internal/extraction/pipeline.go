package extraction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/triage-api/internal/domain"
	"github.com/phrazzld/triage-api/internal/platform/logger"
	"github.com/phrazzld/triage-api/internal/ratelimit"
	"github.com/phrazzld/triage-api/internal/store"
)

// Extractor is the LLM extraction collaborator: given a prompt, return
// the raw model reply. Implementations live in internal/platform.
type Extractor interface {
	Extract(ctx context.Context, prompt string) (string, error)
}

// Result summarizes one pipeline run.
type Result struct {
	// Processed counts inputs consumed and recorded this run.
	Processed int

	// Duplicates counts inputs skipped because the idempotency log
	// already had them.
	Duplicates int

	// Failed counts inputs skipped on transient extraction failure.
	// They are not recorded, so a later run retries them.
	Failed int

	TasksCreated int
	EdgesCreated int
}

// sourceKindTaskSources maps extraction source kinds to task sources.
var sourceKindTaskSources = map[string]domain.TaskSource{
	domain.SourceKindChat:       domain.TaskSourceChat,
	domain.SourceKindCodeReview: domain.TaskSourceCodeReview,
	domain.SourceKindNote:       domain.TaskSourceNote,
	domain.SourceKindErrorLog:   domain.TaskSourceErrorLog,
}

// Pipeline turns raw source items into task rows and dependency edges.
// Inputs are filtered through the idempotency log first; external
// extraction calls run one input at a time behind the rate limiter.
type Pipeline struct {
	extractor Extractor
	tasks     store.TaskStore
	deps      store.DependencyStore
	extLog    store.ExtractionLogStore
	limiter   *ratelimit.Limiter
	logger    *slog.Logger
}

// NewPipeline creates an extraction pipeline.
func NewPipeline(
	extractor Extractor,
	tasks store.TaskStore,
	deps store.DependencyStore,
	extLog store.ExtractionLogStore,
	limiter *ratelimit.Limiter,
	logger *slog.Logger,
) *Pipeline {
	return &Pipeline{
		extractor: extractor,
		tasks:     tasks,
		deps:      deps,
		extLog:    extLog,
		limiter:   limiter,
		logger:    logger.With("component", "extraction_pipeline"),
	}
}

// unit is one extraction call: a single item, or for error logs a whole
// group represented by one entry.
type unit struct {
	item      domain.SourceItem
	text      string
	sourceIDs []string
}

// pendingEdge is a proposed dependency awaiting title resolution after
// the batch completes.
type pendingEdge struct {
	taskID   uuid.UUID
	proposal ExtractedDependency
}

// Run processes the given items from one source. Re-running over the
// same input set is a no-op: the second run reports everything as
// duplicates and creates nothing.
func (p *Pipeline) Run(ctx context.Context, sourceKind string, items []domain.SourceItem) (*Result, error) {
	log := logger.FromContext(ctx)
	result := &Result{}

	taskSource, ok := sourceKindTaskSources[sourceKind]
	if !ok {
		return nil, fmt.Errorf("unknown source kind %q", sourceKind)
	}

	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}

	processed, err := p.extLog.ProcessedIDs(ctx, domain.EntityKindTask, sourceKind, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to check idempotency log: %w", err)
	}

	var fresh []domain.SourceItem
	for _, item := range items {
		if processed[item.ID] {
			result.Duplicates++
			continue
		}
		fresh = append(fresh, item)
	}

	if len(fresh) == 0 {
		return result, nil
	}

	units := p.buildUnits(sourceKind, fresh)

	existing, err := p.existingTitleRefs(ctx)
	if err != nil {
		return nil, err
	}

	var batch []TitleRef
	var pending []pendingEdge

	for _, u := range units {
		if err := p.limiter.Wait(ctx); err != nil {
			return result, err
		}

		raw, err := p.extractor.Extract(ctx, buildPrompt(sourceKind, u.text))
		if err != nil {
			// Transient external failure: no result for this input,
			// left unrecorded so a later run retries it.
			log.Warn("extraction call failed, skipping input",
				"source_kind", sourceKind,
				"source_id", u.item.ID,
				"error", err)
			result.Failed += len(u.sourceIDs)
			continue
		}

		proposals := ParseTaskList(raw)

		created := 0
		for _, proposal := range proposals {
			task, err := p.buildTask(taskSource, u.item, proposal)
			if err != nil {
				log.Warn("skipping invalid task proposal",
					"title", proposal.Title,
					"error", err)
				continue
			}

			if err := p.tasks.CreateTask(ctx, task); err != nil {
				return result, fmt.Errorf("failed to persist extracted task: %w", err)
			}

			created++
			result.TasksCreated++
			batch = append(batch, TitleRef{ID: task.ID, Title: task.Title})

			for _, dep := range proposal.Dependencies {
				pending = append(pending, pendingEdge{taskID: task.ID, proposal: dep})
			}
		}

		if err := p.recordProcessed(ctx, sourceKind, u, created); err != nil {
			return result, err
		}
		result.Processed += len(u.sourceIDs)
	}

	edges, err := p.resolveEdges(ctx, pending, batch, existing)
	if err != nil {
		return result, err
	}
	result.EdgesCreated = edges

	return result, nil
}

// buildUnits maps items to extraction units. Error logs are grouped by
// normalized message first so one LLM call covers each near-identical
// cluster.
func (p *Pipeline) buildUnits(sourceKind string, items []domain.SourceItem) []unit {
	if sourceKind != domain.SourceKindErrorLog {
		units := make([]unit, 0, len(items))
		for _, item := range items {
			units = append(units, unit{
				item:      item,
				text:      item.Text,
				sourceIDs: []string{item.ID},
			})
		}
		return units
	}

	groups := GroupLogItems(items)
	units := make([]unit, 0, len(groups))
	for _, g := range groups {
		text := g.Representative.Text
		if g.Count > 1 {
			text = fmt.Sprintf("%s\n\n(occurred %d times between %s and %s)",
				text,
				g.Count,
				g.FirstSeen.Format(time.RFC3339),
				g.LastSeen.Format(time.RFC3339))
		}
		units = append(units, unit{
			item:      g.Representative,
			text:      text,
			sourceIDs: g.SourceIDs,
		})
	}
	return units
}

func (p *Pipeline) existingTitleRefs(ctx context.Context) ([]TitleRef, error) {
	nonTerminal := []domain.TaskStatus{
		domain.TaskStatusAccepted,
		domain.TaskStatusInProgress,
		domain.TaskStatusPaused,
	}

	tasks, err := p.tasks.ListTasksByStatus(ctx, nonTerminal, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load existing tasks for resolution: %w", err)
	}

	refs := make([]TitleRef, 0, len(tasks))
	for _, t := range tasks {
		refs = append(refs, TitleRef{ID: t.ID, Title: t.Title})
	}
	return refs, nil
}

func (p *Pipeline) buildTask(source domain.TaskSource, item domain.SourceItem, proposal ExtractedTask) (*domain.Task, error) {
	task, err := domain.NewTask(source, strings.TrimSpace(proposal.Title), proposal.Description)
	if err != nil {
		return nil, err
	}

	if !item.Timestamp.IsZero() {
		task.Date = item.Timestamp.UTC()
	}

	task.Priority = normalizePriority(proposal.Priority)
	task.Confidence = proposal.Confidence

	if proposal.DueDate != "" {
		if due, err := time.Parse("2006-01-02", proposal.DueDate); err == nil {
			task.DueDate = &due
		}
	}

	if proposal.SimilarTo != nil {
		task.SimilarToTitle = proposal.SimilarTo.Title
		task.SimilarToStatus = proposal.SimilarTo.Status
		task.SimilarToReason = proposal.SimilarTo.Reason
	}

	if source == domain.TaskSourceChat {
		task.OriginMessageID = item.ID
		task.OriginThreadID = item.ThreadID
	}

	return task, nil
}

func (p *Pipeline) recordProcessed(ctx context.Context, sourceKind string, u unit, extracted int) error {
	entries := make([]*domain.ExtractionLogEntry, 0, len(u.sourceIDs))
	for i, id := range u.sourceIDs {
		count := 0
		if i == 0 {
			count = extracted
		}
		entries = append(entries, domain.NewExtractionLogEntry(
			domain.EntityKindTask, sourceKind, id, count))
	}

	if err := p.extLog.CreateEntries(ctx, entries); err != nil {
		return fmt.Errorf("failed to record processed inputs: %w", err)
	}
	return nil
}

// resolveEdges resolves proposed dependencies once the whole batch is
// known. Unresolvable titles, self-references, and duplicate edges are
// dropped silently; the graph is best-effort and never blocks a run.
func (p *Pipeline) resolveEdges(ctx context.Context, pending []pendingEdge, batch, existing []TitleRef) (int, error) {
	created := 0

	for _, pe := range pending {
		dependsOn, ok := ResolveTaskID(pe.proposal.Title, batch, existing)
		if !ok {
			continue
		}

		dep, err := domain.NewDependency(
			pe.taskID,
			dependsOn,
			normalizeDependencyType(pe.proposal.Type),
			pe.proposal.Confidence,
			pe.proposal.Reason,
			domain.DependencySourceAuto,
		)
		if err != nil {
			// Self-loops land here.
			continue
		}

		if err := p.deps.CreateDependency(ctx, dep); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				continue
			}
			return created, fmt.Errorf("failed to persist dependency edge: %w", err)
		}
		created++
	}

	return created, nil
}

func normalizePriority(priority string) string {
	switch strings.ToLower(priority) {
	case domain.TaskPriorityLow:
		return domain.TaskPriorityLow
	case domain.TaskPriorityHigh:
		return domain.TaskPriorityHigh
	default:
		return domain.TaskPriorityMedium
	}
}

func normalizeDependencyType(depType string) domain.DependencyType {
	if strings.ToLower(depType) == string(domain.DependencyRelated) {
		return domain.DependencyRelated
	}
	return domain.DependencyBlocks
}

// buildPrompt frames one input for the extraction model. The reply
// contract is a fenced JSON block with a tasks array; ParseTaskList
// tolerates anything else by yielding nothing.
func buildPrompt(sourceKind, text string) string {
	var b strings.Builder
	b.WriteString("You review personal work signals and extract actionable tasks.\n")
	b.WriteString("Source kind: ")
	b.WriteString(sourceKind)
	b.WriteString("\n\nInput:\n")
	b.WriteString(text)
	b.WriteString("\n\nReply with a fenced JSON block: ")
	b.WriteString(`{"tasks": [{"title", "description", "priority", "confidence", "due_date", "similar_to", "dependencies"}]}.`)
	b.WriteString("\nReturn an empty tasks array when nothing is actionable.")
	return b.String()
}
