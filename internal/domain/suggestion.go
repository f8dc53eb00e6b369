package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SuggestionStatus tracks the review state of a suggestion record linked
// to a task. Acceptance/rejection of the task cascades here.
type SuggestionStatus string

// Possible suggestion status values
const (
	SuggestionStatusPending  SuggestionStatus = "pending"
	SuggestionStatusAccepted SuggestionStatus = "accepted"
	SuggestionStatusApproved SuggestionStatus = "approved"
	SuggestionStatusRejected SuggestionStatus = "rejected"
)

// ProfileFieldKind distinguishes how a profile suggestion mutates the
// singleton profile: scalar fields are overwritten, list fields get the
// value appended if absent.
type ProfileFieldKind string

// Possible profile field kinds
const (
	ProfileFieldScalar ProfileFieldKind = "scalar"
	ProfileFieldList   ProfileFieldKind = "list"
)

// ProfileSuggestion proposes a mutation to one field of the singleton
// profile record.
type ProfileSuggestion struct {
	ID        uuid.UUID        `json:"id"`
	TaskID    uuid.UUID        `json:"task_id"`
	Field     string           `json:"field"`
	FieldKind ProfileFieldKind `json:"field_kind"`
	Value     json.RawMessage  `json:"value"`
	Status    SuggestionStatus `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// VocabularySuggestion proposes adding a term to the vocabulary.
type VocabularySuggestion struct {
	ID         uuid.UUID        `json:"id"`
	TaskID     uuid.UUID        `json:"task_id"`
	Term       string           `json:"term"`
	Definition string           `json:"definition,omitempty"`
	Status     SuggestionStatus `json:"status"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// PromptSuggestion proposes replacing the text of a named prompt.
type PromptSuggestion struct {
	ID           uuid.UUID        `json:"id"`
	TaskID       uuid.UUID        `json:"task_id"`
	PromptName   string           `json:"prompt_name"`
	ProposedText string           `json:"proposed_text"`
	Status       SuggestionStatus `json:"status"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// ProjectSuggestion proposes creating a project.
type ProjectSuggestion struct {
	ID        uuid.UUID        `json:"id"`
	TaskID    uuid.UUID        `json:"task_id"`
	Name      string           `json:"name"`
	Path      string           `json:"path,omitempty"`
	Owner     string           `json:"owner,omitempty"`
	Repo      string           `json:"repo,omitempty"`
	Status    SuggestionStatus `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// VocabularyTerm is an accepted vocabulary entry, deduplicated by term.
type VocabularyTerm struct {
	ID         uuid.UUID `json:"id"`
	Term       string    `json:"term"`
	Definition string    `json:"definition,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Project is a tracked work project. Duplicates are refused by path and
// by (owner, repo) pair.
type Project struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Path      string    `json:"path,omitempty"`
	Owner     string    `json:"owner,omitempty"`
	Repo      string    `json:"repo,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Profile is the singleton profile record. Fields is a free-form
// document: scalar entries are overwritten by accepted suggestions, list
// entries get values appended if absent.
type Profile struct {
	ID        int                        `json:"id"`
	Fields    map[string]json.RawMessage `json:"fields"`
	UpdatedAt time.Time                  `json:"updated_at"`
}
