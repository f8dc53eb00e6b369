package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/phrazzld/triage-api/internal/domain"
)

// Payload is the typed body of a queued job. One shape exists per job
// type; the queue serializes payloads on enqueue and handlers decode
// them through the Parse functions below, so no opaque blob crosses the
// core.
type Payload interface {
	// JobType returns the job type this payload belongs to.
	JobType() string

	// DedupeKey scopes single-flight deduplication on queues that
	// enforce it. An empty key disables dedup for the job.
	DedupeKey() string
}

// Default fetch window size when a payload omits one.
const defaultFetchLimit = 50

// FetchPayload describes one inbound-fetch job: pull recent raw items
// from the named source. Fetches are single-flight per source: a second
// enqueue while one is pending or processing is dropped.
type FetchPayload struct {
	// Source is one of the domain.SourceKind* values.
	Source string `json:"source"`

	// Since bounds the fetch window; zero means the fetcher's default.
	Since time.Time `json:"since,omitempty"`

	// Limit caps the number of items fetched.
	Limit int `json:"limit,omitempty"`
}

// fetchJobTypes maps source kinds to their job types.
var fetchJobTypes = map[string]string{
	domain.SourceKindChat:       domain.JobTypeFetchChat,
	domain.SourceKindCodeReview: domain.JobTypeFetchCodeReview,
	domain.SourceKindNote:       domain.JobTypeFetchNotes,
	domain.SourceKindErrorLog:   domain.JobTypeFetchErrorLogs,
	domain.SourceKindVoice:      domain.JobTypeFetchVoice,
}

// JobType returns the fetch job type for the payload's source.
func (p FetchPayload) JobType() string {
	if jt, ok := fetchJobTypes[p.Source]; ok {
		return jt
	}
	return domain.JobTypeFetchVoice
}

// DedupeKey is the source name: at most one active fetch per source.
func (p FetchPayload) DedupeKey() string {
	return p.Source
}

// ExtractionPayload describes one AI-extraction job: run the extraction
// pipeline over the carried raw items. The AI queue does not dedup, so
// the key is empty.
type ExtractionPayload struct {
	EntityKind string              `json:"entity_kind"`
	SourceKind string              `json:"source_kind"`
	Items      []domain.SourceItem `json:"items"`
}

// JobType returns the extraction job type.
func (p ExtractionPayload) JobType() string {
	return domain.JobTypeExtractTasks
}

// DedupeKey is empty: every fetched batch gets its own extraction run.
func (p ExtractionPayload) DedupeKey() string {
	return ""
}

// ParseFetchPayload decodes a fetch job's payload. Malformed bodies
// return a defaulted payload along with the decode error so the caller
// can fail the job with context instead of panicking on garbage.
func ParseFetchPayload(raw json.RawMessage) (FetchPayload, error) {
	p := FetchPayload{Limit: defaultFetchLimit}
	if len(raw) == 0 {
		return p, fmt.Errorf("empty fetch payload")
	}

	if err := json.Unmarshal(raw, &p); err != nil {
		return FetchPayload{Limit: defaultFetchLimit}, fmt.Errorf("malformed fetch payload: %w", err)
	}

	if p.Limit <= 0 {
		p.Limit = defaultFetchLimit
	}
	if p.Source == "" {
		return p, fmt.Errorf("fetch payload missing source")
	}

	return p, nil
}

// ParseExtractionPayload decodes an extraction job's payload.
func ParseExtractionPayload(raw json.RawMessage) (ExtractionPayload, error) {
	var p ExtractionPayload
	if len(raw) == 0 {
		return p, fmt.Errorf("empty extraction payload")
	}

	if err := json.Unmarshal(raw, &p); err != nil {
		return ExtractionPayload{}, fmt.Errorf("malformed extraction payload: %w", err)
	}

	if p.EntityKind == "" {
		p.EntityKind = domain.EntityKindTask
	}
	if p.SourceKind == "" {
		return p, fmt.Errorf("extraction payload missing source kind")
	}

	return p, nil
}

// MarshalPayload serializes a payload for storage on a job row.
func MarshalPayload(p Payload) (json.RawMessage, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", p.JobType(), err)
	}
	return data, nil
}
