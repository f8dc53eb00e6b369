package domain

import (
	"time"

	"github.com/google/uuid"
)

// ExtractionLogEntry records that a single source input has already been
// processed by an extraction pipeline. Existence of a row for the
// (EntityKind, SourceKind, SourceID) key means "do not re-extract".
// The log is append-only.
type ExtractionLogEntry struct {
	ID             uuid.UUID `json:"id"`
	EntityKind     string    `json:"entity_kind"`
	SourceKind     string    `json:"source_kind"`
	SourceID       string    `json:"source_id"`
	ExtractedCount int       `json:"extracted_count"`
	CreatedAt      time.Time `json:"created_at"`
}

// Entity kinds recorded in the extraction log.
const (
	EntityKindTask = "task"
)

// Source kinds. All five are fetched; voice is never extracted, its
// transcripts only serve as completion evidence.
const (
	SourceKindChat       = "chat"
	SourceKindCodeReview = "code_review"
	SourceKindNote       = "note"
	SourceKindErrorLog   = "error_log"
	SourceKindVoice      = "voice"
)

// NewExtractionLogEntry records that the given source input was consumed,
// whether or not it yielded any tasks.
func NewExtractionLogEntry(entityKind, sourceKind, sourceID string, extractedCount int) *ExtractionLogEntry {
	return &ExtractionLogEntry{
		ID:             uuid.New(),
		EntityKind:     entityKind,
		SourceKind:     sourceKind,
		SourceID:       sourceID,
		ExtractedCount: extractedCount,
		CreatedAt:      time.Now().UTC(),
	}
}
