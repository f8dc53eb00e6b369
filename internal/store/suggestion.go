package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/phrazzld/triage-api/internal/domain"
)

// SuggestionStore persists the suggestion records linked to tasks whose
// acceptance carries a side effect. Suggestion rows reference their task
// by ID; lookups are by task so the service can dispatch on acceptance
// and cascade on rejection.
type SuggestionStore interface {
	CreateProfileSuggestion(ctx context.Context, s *domain.ProfileSuggestion) error
	GetProfileSuggestionByTask(ctx context.Context, taskID uuid.UUID) (*domain.ProfileSuggestion, error)
	SetProfileSuggestionStatus(ctx context.Context, id uuid.UUID, status domain.SuggestionStatus) error

	CreateVocabularySuggestion(ctx context.Context, s *domain.VocabularySuggestion) error
	GetVocabularySuggestionByTask(ctx context.Context, taskID uuid.UUID) (*domain.VocabularySuggestion, error)
	SetVocabularySuggestionStatus(ctx context.Context, id uuid.UUID, status domain.SuggestionStatus) error

	CreatePromptSuggestion(ctx context.Context, s *domain.PromptSuggestion) error
	GetPromptSuggestionByTask(ctx context.Context, taskID uuid.UUID) (*domain.PromptSuggestion, error)
	SetPromptSuggestionStatus(ctx context.Context, id uuid.UUID, status domain.SuggestionStatus) error

	CreateProjectSuggestion(ctx context.Context, s *domain.ProjectSuggestion) error
	GetProjectSuggestionByTask(ctx context.Context, taskID uuid.UUID) (*domain.ProjectSuggestion, error)
	SetProjectSuggestionStatus(ctx context.Context, id uuid.UUID, status domain.SuggestionStatus) error

	// WithTx returns a SuggestionStore bound to the provided transaction.
	WithTx(tx *sql.Tx) SuggestionStore
}

// VocabularyStore persists accepted vocabulary terms.
type VocabularyStore interface {
	// CreateTerm inserts a term row. Returns ErrDuplicateTerm when the
	// term already exists (dedupe by term).
	CreateTerm(ctx context.Context, term *domain.VocabularyTerm) error

	// WithTx returns a VocabularyStore bound to the provided transaction.
	WithTx(tx *sql.Tx) VocabularyStore
}

// ProjectStore persists projects.
type ProjectStore interface {
	// CreateProject inserts a project. Returns ErrDuplicateProject when
	// a project with the same path or the same (owner, repo) pair
	// already exists.
	CreateProject(ctx context.Context, project *domain.Project) error

	// GetProject retrieves a project by ID.
	// Returns ErrProjectNotFound if no row exists.
	GetProject(ctx context.Context, id uuid.UUID) (*domain.Project, error)

	// ProjectExists reports whether a project exists with the given path
	// or the given (owner, repo) pair.
	ProjectExists(ctx context.Context, path, owner, repo string) (bool, error)

	// WithTx returns a ProjectStore bound to the provided transaction.
	WithTx(tx *sql.Tx) ProjectStore
}

// ProfileStore persists the singleton profile record.
type ProfileStore interface {
	// GetProfile returns the singleton profile, creating an empty one if
	// none exists yet.
	GetProfile(ctx context.Context) (*domain.Profile, error)

	// UpdateProfile writes the profile's fields document.
	UpdateProfile(ctx context.Context, profile *domain.Profile) error

	// WithTx returns a ProfileStore bound to the provided transaction.
	WithTx(tx *sql.Tx) ProfileStore
}
