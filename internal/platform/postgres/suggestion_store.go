package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/phrazzld/triage-api/internal/domain"
	"github.com/phrazzld/triage-api/internal/store"
)

// PostgresSuggestionStore implements the store.SuggestionStore interface
// using PostgreSQL. Each suggestion kind has its own table; rows carry
// the owning task's ID for acceptance dispatch and rejection cascade.
type PostgresSuggestionStore struct {
	db store.DBTX
}

// NewPostgresSuggestionStore creates a new PostgresSuggestionStore.
func NewPostgresSuggestionStore(db store.DBTX) *PostgresSuggestionStore {
	return &PostgresSuggestionStore{db: db}
}

// WithTx returns a SuggestionStore bound to the provided transaction.
func (s *PostgresSuggestionStore) WithTx(tx *sql.Tx) store.SuggestionStore {
	return &PostgresSuggestionStore{db: tx}
}

// CreateProfileSuggestion persists a profile suggestion.
func (s *PostgresSuggestionStore) CreateProfileSuggestion(ctx context.Context, sg *domain.ProfileSuggestion) error {
	query := `
		INSERT INTO profile_suggestions (id, task_id, field, field_kind,
			value, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query,
		sg.ID, sg.TaskID, sg.Field, sg.FieldKind, sg.Value, sg.Status,
		sg.CreatedAt, sg.UpdatedAt)
	return MapError(err)
}

// GetProfileSuggestionByTask retrieves the profile suggestion linked to
// the given task.
func (s *PostgresSuggestionStore) GetProfileSuggestionByTask(ctx context.Context, taskID uuid.UUID) (*domain.ProfileSuggestion, error) {
	query := `
		SELECT id, task_id, field, field_kind, value, status, created_at, updated_at
		FROM profile_suggestions WHERE task_id = $1
	`
	var sg domain.ProfileSuggestion
	err := s.db.QueryRowContext(ctx, query, taskID).Scan(
		&sg.ID, &sg.TaskID, &sg.Field, &sg.FieldKind, &sg.Value,
		&sg.Status, &sg.CreatedAt, &sg.UpdatedAt)
	if err != nil {
		if IsNotFoundError(MapError(err)) {
			return nil, store.ErrSuggestionNotFound
		}
		return nil, MapError(err)
	}
	return &sg, nil
}

// SetProfileSuggestionStatus updates the review state of a profile
// suggestion.
func (s *PostgresSuggestionStore) SetProfileSuggestionStatus(ctx context.Context, id uuid.UUID, status domain.SuggestionStatus) error {
	return s.setStatus(ctx, "profile_suggestions", id, status)
}

// CreateVocabularySuggestion persists a vocabulary suggestion.
func (s *PostgresSuggestionStore) CreateVocabularySuggestion(ctx context.Context, sg *domain.VocabularySuggestion) error {
	query := `
		INSERT INTO vocabulary_suggestions (id, task_id, term, definition,
			status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.db.ExecContext(ctx, query,
		sg.ID, sg.TaskID, sg.Term, sg.Definition, sg.Status,
		sg.CreatedAt, sg.UpdatedAt)
	return MapError(err)
}

// GetVocabularySuggestionByTask retrieves the vocabulary suggestion
// linked to the given task.
func (s *PostgresSuggestionStore) GetVocabularySuggestionByTask(ctx context.Context, taskID uuid.UUID) (*domain.VocabularySuggestion, error) {
	query := `
		SELECT id, task_id, term, definition, status, created_at, updated_at
		FROM vocabulary_suggestions WHERE task_id = $1
	`
	var sg domain.VocabularySuggestion
	var definition sql.NullString
	err := s.db.QueryRowContext(ctx, query, taskID).Scan(
		&sg.ID, &sg.TaskID, &sg.Term, &definition, &sg.Status,
		&sg.CreatedAt, &sg.UpdatedAt)
	if err != nil {
		if IsNotFoundError(MapError(err)) {
			return nil, store.ErrSuggestionNotFound
		}
		return nil, MapError(err)
	}
	sg.Definition = definition.String
	return &sg, nil
}

// SetVocabularySuggestionStatus updates the review state of a vocabulary
// suggestion.
func (s *PostgresSuggestionStore) SetVocabularySuggestionStatus(ctx context.Context, id uuid.UUID, status domain.SuggestionStatus) error {
	return s.setStatus(ctx, "vocabulary_suggestions", id, status)
}

// CreatePromptSuggestion persists a prompt suggestion.
func (s *PostgresSuggestionStore) CreatePromptSuggestion(ctx context.Context, sg *domain.PromptSuggestion) error {
	query := `
		INSERT INTO prompt_suggestions (id, task_id, prompt_name,
			proposed_text, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.db.ExecContext(ctx, query,
		sg.ID, sg.TaskID, sg.PromptName, sg.ProposedText, sg.Status,
		sg.CreatedAt, sg.UpdatedAt)
	return MapError(err)
}

// GetPromptSuggestionByTask retrieves the prompt suggestion linked to the
// given task.
func (s *PostgresSuggestionStore) GetPromptSuggestionByTask(ctx context.Context, taskID uuid.UUID) (*domain.PromptSuggestion, error) {
	query := `
		SELECT id, task_id, prompt_name, proposed_text, status, created_at, updated_at
		FROM prompt_suggestions WHERE task_id = $1
	`
	var sg domain.PromptSuggestion
	err := s.db.QueryRowContext(ctx, query, taskID).Scan(
		&sg.ID, &sg.TaskID, &sg.PromptName, &sg.ProposedText, &sg.Status,
		&sg.CreatedAt, &sg.UpdatedAt)
	if err != nil {
		if IsNotFoundError(MapError(err)) {
			return nil, store.ErrSuggestionNotFound
		}
		return nil, MapError(err)
	}
	return &sg, nil
}

// SetPromptSuggestionStatus updates the review state of a prompt
// suggestion.
func (s *PostgresSuggestionStore) SetPromptSuggestionStatus(ctx context.Context, id uuid.UUID, status domain.SuggestionStatus) error {
	return s.setStatus(ctx, "prompt_suggestions", id, status)
}

// CreateProjectSuggestion persists a project suggestion.
func (s *PostgresSuggestionStore) CreateProjectSuggestion(ctx context.Context, sg *domain.ProjectSuggestion) error {
	query := `
		INSERT INTO project_suggestions (id, task_id, name, path, owner,
			repo, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.db.ExecContext(ctx, query,
		sg.ID, sg.TaskID, sg.Name, sg.Path, sg.Owner, sg.Repo, sg.Status,
		sg.CreatedAt, sg.UpdatedAt)
	return MapError(err)
}

// GetProjectSuggestionByTask retrieves the project suggestion linked to
// the given task.
func (s *PostgresSuggestionStore) GetProjectSuggestionByTask(ctx context.Context, taskID uuid.UUID) (*domain.ProjectSuggestion, error) {
	query := `
		SELECT id, task_id, name, path, owner, repo, status, created_at, updated_at
		FROM project_suggestions WHERE task_id = $1
	`
	var sg domain.ProjectSuggestion
	var path, owner, repo sql.NullString
	err := s.db.QueryRowContext(ctx, query, taskID).Scan(
		&sg.ID, &sg.TaskID, &sg.Name, &path, &owner, &repo, &sg.Status,
		&sg.CreatedAt, &sg.UpdatedAt)
	if err != nil {
		if IsNotFoundError(MapError(err)) {
			return nil, store.ErrSuggestionNotFound
		}
		return nil, MapError(err)
	}
	sg.Path = path.String
	sg.Owner = owner.String
	sg.Repo = repo.String
	return &sg, nil
}

// SetProjectSuggestionStatus updates the review state of a project
// suggestion.
func (s *PostgresSuggestionStore) SetProjectSuggestionStatus(ctx context.Context, id uuid.UUID, status domain.SuggestionStatus) error {
	return s.setStatus(ctx, "project_suggestions", id, status)
}

// setStatus updates the status column of a suggestion table. The table
// name is always one of the four constants above, never user input.
func (s *PostgresSuggestionStore) setStatus(ctx context.Context, table string, id uuid.UUID, status domain.SuggestionStatus) error {
	query := `UPDATE ` + table + ` SET status = $1, updated_at = NOW() WHERE id = $2`

	result, err := s.db.ExecContext(ctx, query, status, id)
	if err != nil {
		return MapError(err)
	}

	return CheckRowsAffected(result, "suggestion")
}
