package service

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/triage-api/internal/domain"
	"github.com/phrazzld/triage-api/internal/platform/logger"
	"github.com/phrazzld/triage-api/internal/store"
)

// PromptWriter overwrites a named prompt with new text. The filesystem
// implementation lives in internal/platform/promptfile.
type PromptWriter interface {
	WritePrompt(ctx context.Context, name, text string) error
}

// TxRunner executes fn within a transaction boundary. Production wiring
// closes over store.RunInTransaction; tests substitute a passthrough
// that invokes fn with a nil transaction against in-memory fakes.
type TxRunner func(ctx context.Context, fn store.TxFn) error

// NewTxRunner adapts a database handle into a TxRunner.
func NewTxRunner(db *sql.DB) TxRunner {
	return func(ctx context.Context, fn store.TxFn) error {
		return store.RunInTransaction(ctx, db, fn)
	}
}

// TaskService owns the task state machine: status transitions, the
// side effects dispatched by source type on acceptance, rejection
// cascades onto linked suggestion records, edits, and merges.
type TaskService struct {
	runTx       TxRunner
	tasks       store.TaskStore
	deps        store.DependencyStore
	suggestions store.SuggestionStore
	vocabulary  store.VocabularyStore
	projects    store.ProjectStore
	profile     store.ProfileStore
	prompts     PromptWriter
	logger      *slog.Logger
}

// NewTaskService creates a task service over the given stores.
func NewTaskService(
	runTx TxRunner,
	tasks store.TaskStore,
	deps store.DependencyStore,
	suggestions store.SuggestionStore,
	vocabulary store.VocabularyStore,
	projects store.ProjectStore,
	profile store.ProfileStore,
	prompts PromptWriter,
	logger *slog.Logger,
) *TaskService {
	return &TaskService{
		runTx:       runTx,
		tasks:       tasks,
		deps:        deps,
		suggestions: suggestions,
		vocabulary:  vocabulary,
		projects:    projects,
		profile:     profile,
		prompts:     prompts,
		logger:      logger.With("component", "task_service"),
	}
}

// GetTask returns the task by ID.
func (s *TaskService) GetTask(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	return s.tasks.GetTask(ctx, id)
}

// ListTasksByStatus returns tasks in any of the given statuses.
func (s *TaskService) ListTasksByStatus(ctx context.Context, statuses []domain.TaskStatus, limit int) ([]*domain.Task, error) {
	return s.tasks.ListTasksByStatus(ctx, statuses, limit)
}

// CreateManualTask creates a pending task entered directly by the
// operator rather than extracted from a source.
func (s *TaskService) CreateManualTask(ctx context.Context, title, description, priority string) (*domain.Task, error) {
	task, err := domain.NewTask(domain.TaskSourceManual, strings.TrimSpace(title), description)
	if err != nil {
		return nil, err
	}

	switch priority {
	case domain.TaskPriorityLow, domain.TaskPriorityMedium, domain.TaskPriorityHigh:
		task.Priority = priority
	case "":
		// keep the default
	default:
		return nil, fmt.Errorf("%w: unknown priority %q", domain.ErrValidation, priority)
	}

	if err := s.tasks.CreateTask(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// CreateMergeTask creates a pending merge task over the given source
// tasks. Every source must be in accepted status at creation time; the
// merge itself runs when the task is accepted.
func (s *TaskService) CreateMergeTask(ctx context.Context, title, description string, sourceIDs []uuid.UUID) (*domain.Task, error) {
	if len(sourceIDs) < 2 {
		return nil, ErrMergeTooFewSources
	}

	for _, id := range sourceIDs {
		source, err := s.tasks.GetTask(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load merge source %s: %w", id, err)
		}
		if source.Status != domain.TaskStatusAccepted {
			return nil, fmt.Errorf("%w: task %s is %s", ErrMergeSourceNotAccepted, id, source.Status)
		}
	}

	task, err := domain.NewTask(domain.TaskSourceMerge, title, description)
	if err != nil {
		return nil, err
	}
	task.MergeSourceTaskIDs = sourceIDs

	if err := s.tasks.CreateTask(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// Accept transitions a pending task to accepted, running the side
// effect its source type dispatches. Approval-only source types land
// directly on completed; the accepted resting state is skipped.
func (s *TaskService) Accept(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	log := logger.FromContext(ctx)

	task, err := s.tasks.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.checkTransition(task, domain.TaskStatusAccepted); err != nil {
		return nil, err
	}

	err = s.runTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := s.dispatchAcceptance(ctx, tx, task); err != nil {
			return err
		}

		now := time.Now().UTC()
		task.Status = domain.TaskStatusAccepted
		task.AcceptedAt = &now

		if task.ApprovalOnly() {
			task.Status = domain.TaskStatusCompleted
			task.CompletedAt = &now
		}
		task.UpdatedAt = now

		return s.taskStore(tx).UpdateTask(ctx, task)
	})
	if err != nil {
		return nil, err
	}

	log.Info("task accepted",
		"task_id", task.ID,
		"source_type", task.SourceType,
		"status", task.Status)
	return task, nil
}

// Reject transitions a task to rejected. Pending tasks of any source
// type may be rejected; accepted tasks only when their source type has
// a linked suggestion record. Rejection cascades a rejected status onto
// that record, the only backward side effect in the state machine.
func (s *TaskService) Reject(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	task, err := s.tasks.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.checkTransition(task, domain.TaskStatusRejected); err != nil {
		return nil, err
	}
	if task.Status == domain.TaskStatusAccepted && !task.SuggestionLinked() {
		return nil, ErrRejectNotAllowed
	}

	err = s.runTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := s.cascadeRejection(ctx, tx, task); err != nil {
			return err
		}

		now := time.Now().UTC()
		task.Status = domain.TaskStatusRejected
		task.RejectedAt = &now
		task.UpdatedAt = now

		return s.taskStore(tx).UpdateTask(ctx, task)
	})
	if err != nil {
		return nil, err
	}

	return task, nil
}

// Start transitions an accepted or paused task to in_progress.
func (s *TaskService) Start(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	return s.transition(ctx, id, domain.TaskStatusInProgress, func(task *domain.Task, now time.Time) {
		if task.StartedAt == nil {
			task.StartedAt = &now
		}
	})
}

// Pause transitions an in_progress task to paused.
func (s *TaskService) Pause(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	return s.transition(ctx, id, domain.TaskStatusPaused, func(task *domain.Task, now time.Time) {
		task.PausedAt = &now
	})
}

// Complete transitions an accepted, in_progress, or paused task to
// completed.
func (s *TaskService) Complete(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	return s.transition(ctx, id, domain.TaskStatusCompleted, func(task *domain.Task, now time.Time) {
		task.CompletedAt = &now
	})
}

// Edit updates a task's title and description. The pre-edit values are
// snapshotted into the original fields on the first edit only.
func (s *TaskService) Edit(ctx context.Context, id uuid.UUID, title, description string) (*domain.Task, error) {
	task, err := s.tasks.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.Terminal() {
		return nil, ErrTaskTerminal
	}

	task.ApplyEdit(title, description)
	if err := s.tasks.UpdateTask(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

func (s *TaskService) transition(ctx context.Context, id uuid.UUID, to domain.TaskStatus, stamp func(*domain.Task, time.Time)) (*domain.Task, error) {
	task, err := s.tasks.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.checkTransition(task, to); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	task.Status = to
	task.UpdatedAt = now
	stamp(task, now)

	if err := s.tasks.UpdateTask(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

func (s *TaskService) checkTransition(task *domain.Task, to domain.TaskStatus) error {
	if !task.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, task.Status, to)
	}
	return nil
}

// dispatchAcceptance runs the side effect keyed by source type. Source
// types without a side effect fall through silently.
func (s *TaskService) dispatchAcceptance(ctx context.Context, tx *sql.Tx, task *domain.Task) error {
	switch task.SourceType {
	case domain.TaskSourceProfileSuggestion:
		return s.applyProfileSuggestion(ctx, tx, task)
	case domain.TaskSourceVocabulary:
		return s.applyVocabularySuggestion(ctx, tx, task)
	case domain.TaskSourcePromptImprovement:
		return s.applyPromptSuggestion(ctx, tx, task)
	case domain.TaskSourceProjectSuggestion:
		return s.applyProjectSuggestion(ctx, tx, task)
	case domain.TaskSourceMerge:
		return s.runMerge(ctx, tx, task)
	default:
		return nil
	}
}

// applyProfileSuggestion mutates the singleton profile: scalar fields
// are overwritten, list fields get the value appended if absent.
func (s *TaskService) applyProfileSuggestion(ctx context.Context, tx *sql.Tx, task *domain.Task) error {
	suggestions := s.suggestionStore(tx)

	suggestion, err := suggestions.GetProfileSuggestionByTask(ctx, task.ID)
	if err != nil {
		return fmt.Errorf("failed to load profile suggestion: %w", err)
	}

	profiles := s.profileStore(tx)
	profile, err := profiles.GetProfile(ctx)
	if err != nil {
		return fmt.Errorf("failed to load profile: %w", err)
	}

	if profile.Fields == nil {
		profile.Fields = make(map[string]json.RawMessage)
	}

	switch suggestion.FieldKind {
	case domain.ProfileFieldList:
		merged, err := appendIfAbsent(profile.Fields[suggestion.Field], suggestion.Value)
		if err != nil {
			return fmt.Errorf("failed to apply list field %q: %w", suggestion.Field, err)
		}
		profile.Fields[suggestion.Field] = merged
	default:
		profile.Fields[suggestion.Field] = suggestion.Value
	}

	if err := profiles.UpdateProfile(ctx, profile); err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}

	return suggestions.SetProfileSuggestionStatus(ctx, suggestion.ID, domain.SuggestionStatusAccepted)
}

// applyVocabularySuggestion inserts a term row unless the term already
// exists. A pre-existing term is a no-op, not an error.
func (s *TaskService) applyVocabularySuggestion(ctx context.Context, tx *sql.Tx, task *domain.Task) error {
	suggestions := s.suggestionStore(tx)

	suggestion, err := suggestions.GetVocabularySuggestionByTask(ctx, task.ID)
	if err != nil {
		return fmt.Errorf("failed to load vocabulary suggestion: %w", err)
	}

	term := &domain.VocabularyTerm{
		ID:         uuid.New(),
		Term:       suggestion.Term,
		Definition: suggestion.Definition,
		CreatedAt:  time.Now().UTC(),
	}

	if err := s.vocabularyStore(tx).CreateTerm(ctx, term); err != nil {
		if !errors.Is(err, store.ErrDuplicate) {
			return fmt.Errorf("failed to create vocabulary term: %w", err)
		}
		logger.FromContext(ctx).Debug("vocabulary term already exists",
			"term", suggestion.Term)
	}

	return suggestions.SetVocabularySuggestionStatus(ctx, suggestion.ID, domain.SuggestionStatusAccepted)
}

// applyPromptSuggestion overwrites the named prompt with the proposed
// text and marks the suggestion approved.
func (s *TaskService) applyPromptSuggestion(ctx context.Context, tx *sql.Tx, task *domain.Task) error {
	suggestions := s.suggestionStore(tx)

	suggestion, err := suggestions.GetPromptSuggestionByTask(ctx, task.ID)
	if err != nil {
		return fmt.Errorf("failed to load prompt suggestion: %w", err)
	}

	if err := s.prompts.WritePrompt(ctx, suggestion.PromptName, suggestion.ProposedText); err != nil {
		return fmt.Errorf("failed to write prompt %q: %w", suggestion.PromptName, err)
	}

	return suggestions.SetPromptSuggestionStatus(ctx, suggestion.ID, domain.SuggestionStatusApproved)
}

// applyProjectSuggestion creates a project unless one already exists
// with the same path or the same (owner, repo) pair.
func (s *TaskService) applyProjectSuggestion(ctx context.Context, tx *sql.Tx, task *domain.Task) error {
	suggestions := s.suggestionStore(tx)

	suggestion, err := suggestions.GetProjectSuggestionByTask(ctx, task.ID)
	if err != nil {
		return fmt.Errorf("failed to load project suggestion: %w", err)
	}

	projects := s.projectStore(tx)
	exists, err := projects.ProjectExists(ctx, suggestion.Path, suggestion.Owner, suggestion.Repo)
	if err != nil {
		return fmt.Errorf("failed to check for existing project: %w", err)
	}

	if !exists {
		project := &domain.Project{
			ID:        uuid.New(),
			Name:      suggestion.Name,
			Path:      suggestion.Path,
			Owner:     suggestion.Owner,
			Repo:      suggestion.Repo,
			CreatedAt: time.Now().UTC(),
		}
		if err := projects.CreateProject(ctx, project); err != nil {
			// A concurrent acceptance may have won the race.
			if !errors.Is(err, store.ErrDuplicate) {
				return fmt.Errorf("failed to create project: %w", err)
			}
		}
	}

	return suggestions.SetProjectSuggestionStatus(ctx, suggestion.ID, domain.SuggestionStatusAccepted)
}

// cascadeRejection marks the linked suggestion record rejected. A
// missing record is tolerated: the task may predate its suggestion or
// the record may have been cleaned up.
func (s *TaskService) cascadeRejection(ctx context.Context, tx *sql.Tx, task *domain.Task) error {
	suggestions := s.suggestionStore(tx)

	var err error
	switch task.SourceType {
	case domain.TaskSourceProfileSuggestion:
		var suggestion *domain.ProfileSuggestion
		if suggestion, err = suggestions.GetProfileSuggestionByTask(ctx, task.ID); err == nil {
			err = suggestions.SetProfileSuggestionStatus(ctx, suggestion.ID, domain.SuggestionStatusRejected)
		}
	case domain.TaskSourceVocabulary:
		var suggestion *domain.VocabularySuggestion
		if suggestion, err = suggestions.GetVocabularySuggestionByTask(ctx, task.ID); err == nil {
			err = suggestions.SetVocabularySuggestionStatus(ctx, suggestion.ID, domain.SuggestionStatusRejected)
		}
	case domain.TaskSourcePromptImprovement:
		var suggestion *domain.PromptSuggestion
		if suggestion, err = suggestions.GetPromptSuggestionByTask(ctx, task.ID); err == nil {
			err = suggestions.SetPromptSuggestionStatus(ctx, suggestion.ID, domain.SuggestionStatusRejected)
		}
	case domain.TaskSourceProjectSuggestion:
		var suggestion *domain.ProjectSuggestion
		if suggestion, err = suggestions.GetProjectSuggestionByTask(ctx, task.ID); err == nil {
			err = suggestions.SetProjectSuggestionStatus(ctx, suggestion.ID, domain.SuggestionStatusRejected)
		}
	default:
		return nil
	}

	if err != nil && store.IsNotFoundError(err) {
		logger.FromContext(ctx).Warn("no suggestion record to cascade rejection to",
			"task_id", task.ID,
			"source_type", task.SourceType)
		return nil
	}
	return err
}

// appendIfAbsent merges a value into a JSON list, comparing by compact
// serialization. A missing or non-list existing value starts a new list.
func appendIfAbsent(existing, value json.RawMessage) (json.RawMessage, error) {
	var list []json.RawMessage
	if len(existing) > 0 {
		if err := json.Unmarshal(existing, &list); err != nil {
			list = nil
		}
	}

	candidate, err := compactJSON(value)
	if err != nil {
		return nil, err
	}

	for _, item := range list {
		current, err := compactJSON(item)
		if err != nil {
			continue
		}
		if bytes.Equal(current, candidate) {
			return existing, nil
		}
	}

	list = append(list, value)
	return json.Marshal(list)
}

func compactJSON(raw json.RawMessage) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Transaction-binding helpers. A nil transaction returns the base store,
// which keeps the passthrough TxRunner used in tests honest.

func (s *TaskService) taskStore(tx *sql.Tx) store.TaskStore {
	if tx == nil {
		return s.tasks
	}
	return s.tasks.WithTx(tx)
}

func (s *TaskService) depStore(tx *sql.Tx) store.DependencyStore {
	if tx == nil {
		return s.deps
	}
	return s.deps.WithTx(tx)
}

func (s *TaskService) suggestionStore(tx *sql.Tx) store.SuggestionStore {
	if tx == nil {
		return s.suggestions
	}
	return s.suggestions.WithTx(tx)
}

func (s *TaskService) vocabularyStore(tx *sql.Tx) store.VocabularyStore {
	if tx == nil {
		return s.vocabulary
	}
	return s.vocabulary.WithTx(tx)
}

func (s *TaskService) projectStore(tx *sql.Tx) store.ProjectStore {
	if tx == nil {
		return s.projects
	}
	return s.projects.WithTx(tx)
}

func (s *TaskService) profileStore(tx *sql.Tx) store.ProfileStore {
	if tx == nil {
		return s.profile
	}
	return s.profile.WithTx(tx)
}
