package api

import (
	"net/http"

	"github.com/phrazzld/triage-api/internal/api/shared"
	"github.com/phrazzld/triage-api/internal/completion"
)

// CompletionSuggestionResponse represents one completion suggestion.
type CompletionSuggestionResponse struct {
	TaskID     string  `json:"task_id"`
	Title      string  `json:"title"`
	Source     string  `json:"source"`
	Reason     string  `json:"reason,omitempty"`
	Confidence float64 `json:"confidence"`
	Evidence   string  `json:"evidence,omitempty"`
}

// CompletionHandler exposes the completion-detection waterfall.
type CompletionHandler struct {
	waterfall *completion.Waterfall
}

// NewCompletionHandler creates a new CompletionHandler.
func NewCompletionHandler(waterfall *completion.Waterfall) *CompletionHandler {
	return &CompletionHandler{waterfall: waterfall}
}

// SuggestCompleted handles POST /api/completions/sweep requests: it runs
// the waterfall over every accepted task and returns the suggestions.
// The sweep mutates nothing; completion stays an operator decision.
func (h *CompletionHandler) SuggestCompleted(w http.ResponseWriter, r *http.Request) {
	suggestions, err := h.waterfall.SuggestCompleted(r.Context())
	if err != nil {
		HandleAPIError(w, r, err, "Failed to sweep for completed tasks")
		return
	}

	responses := make([]CompletionSuggestionResponse, 0, len(suggestions))
	for _, s := range suggestions {
		responses = append(responses, CompletionSuggestionResponse{
			TaskID:     s.TaskID,
			Title:      s.Title,
			Source:     s.Source,
			Reason:     s.Reason,
			Confidence: s.Confidence,
			Evidence:   s.Evidence,
		})
	}

	shared.RespondWithJSON(w, r, http.StatusOK, responses)
}
