package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/triage-api/internal/api/shared"
	"github.com/phrazzld/triage-api/internal/domain"
	"github.com/phrazzld/triage-api/internal/queue"
	"github.com/phrazzld/triage-api/internal/store"
)

// EnqueueFetchRequest represents the request body for triggering a
// source fetch.
type EnqueueFetchRequest struct {
	Source string    `json:"source" validate:"required,oneof=chat code_review note error_log voice"`
	Since  time.Time `json:"since,omitempty"`
	Limit  int       `json:"limit,omitempty" validate:"gte=0"`
}

// QueueHandler exposes the operator surface over the two queues:
// on-demand fetch enqueues, dead-letter inspection, and the idempotent
// maintenance calls (stale recovery, cleanup).
type QueueHandler struct {
	fetchQueue  *queue.DurableQueue
	aiQueue     *queue.DurableQueue
	deadLetters store.DeadLetterStore
	validator   *validator.Validate

	staleTimeout  time.Duration
	retentionDays int
}

// NewQueueHandler creates a new QueueHandler.
func NewQueueHandler(
	fetchQueue, aiQueue *queue.DurableQueue,
	deadLetters store.DeadLetterStore,
	staleTimeout time.Duration,
	retentionDays int,
) *QueueHandler {
	return &QueueHandler{
		fetchQueue:    fetchQueue,
		aiQueue:       aiQueue,
		deadLetters:   deadLetters,
		validator:     validator.New(),
		staleTimeout:  staleTimeout,
		retentionDays: retentionDays,
	}
}

// EnqueueFetch handles POST /api/queues/fetch requests. The fetch queue
// is single-flight per source: if an identical job is already active the
// call reports it without inserting.
func (h *QueueHandler) EnqueueFetch(w http.ResponseWriter, r *http.Request) {
	var req EnqueueFetchRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	job, err := h.fetchQueue.Enqueue(r.Context(), queue.FetchPayload{
		Source: req.Source,
		Since:  req.Since,
		Limit:  req.Limit,
	}, time.Time{})
	if err != nil {
		HandleAPIError(w, r, err, "Failed to enqueue fetch job")
		return
	}

	if job == nil {
		shared.RespondWithJSON(w, r, http.StatusOK, map[string]string{"status": "already_active"})
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, jobToResponse(job))
}

// ListDeadLetters handles GET /api/dead-letters requests. An optional
// queue parameter filters by queue name; limit defaults to 100.
func (h *QueueHandler) ListDeadLetters(w http.ResponseWriter, r *http.Request) {
	queueName := r.URL.Query().Get("queue")
	if queueName == "" {
		queueName = domain.QueueFetch
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = parsed
	}

	records, err := h.deadLetters.ListDeadLetters(r.Context(), queueName, limit)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list dead letters")
		return
	}

	responses := make([]DeadLetterResponse, 0, len(records))
	for _, record := range records {
		responses = append(responses, deadLetterToResponse(record))
	}

	shared.RespondWithJSON(w, r, http.StatusOK, responses)
}

// RecoverStale handles POST /api/queues/{name}/recover-stale requests:
// it rewinds processing jobs with expired locks back to pending.
func (h *QueueHandler) RecoverStale(w http.ResponseWriter, r *http.Request) {
	q, ok := h.queueByName(w, r)
	if !ok {
		return
	}

	recovered, err := q.RecoverStale(r.Context(), h.staleTimeout)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to recover stale jobs")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, map[string]int{"recovered": recovered})
}

// Cleanup handles POST /api/queues/{name}/cleanup requests: it purges
// finished jobs older than the retention window.
func (h *QueueHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	q, ok := h.queueByName(w, r)
	if !ok {
		return
	}

	deleted, err := q.Cleanup(r.Context(), h.retentionDays)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to clean up finished jobs")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, map[string]int{"deleted": deleted})
}

func (h *QueueHandler) queueByName(w http.ResponseWriter, r *http.Request) (*queue.DurableQueue, bool) {
	switch name := chi.URLParam(r, "name"); name {
	case domain.QueueFetch:
		return h.fetchQueue, true
	case domain.QueueAI:
		return h.aiQueue, true
	default:
		shared.RespondWithError(w, r, http.StatusNotFound, "Unknown queue")
		return nil, false
	}
}
