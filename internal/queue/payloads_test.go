package queue

import (
	"encoding/json"
	"testing"

	"github.com/phrazzld/triage-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchPayloadJobType(t *testing.T) {
	cases := map[string]string{
		domain.SourceKindChat:       domain.JobTypeFetchChat,
		domain.SourceKindCodeReview: domain.JobTypeFetchCodeReview,
		domain.SourceKindNote:       domain.JobTypeFetchNotes,
		domain.SourceKindErrorLog:   domain.JobTypeFetchErrorLogs,
		domain.SourceKindVoice:      domain.JobTypeFetchVoice,
	}

	for source, jobType := range cases {
		assert.Equal(t, jobType, FetchPayload{Source: source}.JobType(), source)
	}
}

func TestFetchPayloadDedupeKey(t *testing.T) {
	assert.Equal(t, "chat", FetchPayload{Source: "chat"}.DedupeKey())
}

func TestExtractionPayloadDedupeKey(t *testing.T) {
	// Extraction jobs never dedup: each fetched batch is distinct work.
	assert.Empty(t, ExtractionPayload{SourceKind: "chat"}.DedupeKey())
}

func TestParseFetchPayload(t *testing.T) {
	t.Run("valid payload", func(t *testing.T) {
		raw, err := MarshalPayload(FetchPayload{Source: domain.SourceKindChat, Limit: 25})
		require.NoError(t, err)

		p, err := ParseFetchPayload(raw)
		require.NoError(t, err)
		assert.Equal(t, domain.SourceKindChat, p.Source)
		assert.Equal(t, 25, p.Limit)
	})

	t.Run("defaults limit", func(t *testing.T) {
		p, err := ParseFetchPayload(json.RawMessage(`{"source":"note"}`))
		require.NoError(t, err)
		assert.Equal(t, defaultFetchLimit, p.Limit)
	})

	t.Run("empty payload", func(t *testing.T) {
		_, err := ParseFetchPayload(nil)
		assert.Error(t, err)
	})

	t.Run("malformed payload", func(t *testing.T) {
		_, err := ParseFetchPayload(json.RawMessage(`{broken`))
		assert.Error(t, err)
	})

	t.Run("missing source", func(t *testing.T) {
		_, err := ParseFetchPayload(json.RawMessage(`{"limit":5}`))
		assert.Error(t, err)
	})
}

func TestParseExtractionPayload(t *testing.T) {
	t.Run("valid payload", func(t *testing.T) {
		raw, err := MarshalPayload(ExtractionPayload{
			SourceKind: domain.SourceKindErrorLog,
			Items:      []domain.SourceItem{{ID: "log-1", Text: "panic: nil deref"}},
		})
		require.NoError(t, err)

		p, err := ParseExtractionPayload(raw)
		require.NoError(t, err)
		assert.Equal(t, domain.SourceKindErrorLog, p.SourceKind)
		assert.Equal(t, domain.EntityKindTask, p.EntityKind)
		require.Len(t, p.Items, 1)
		assert.Equal(t, "log-1", p.Items[0].ID)
	})

	t.Run("missing source kind", func(t *testing.T) {
		_, err := ParseExtractionPayload(json.RawMessage(`{"entity_kind":"task"}`))
		assert.Error(t, err)
	})
}
