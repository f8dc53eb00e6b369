package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/phrazzld/triage-api/internal/domain"
	"github.com/phrazzld/triage-api/internal/events"
	"github.com/phrazzld/triage-api/internal/extraction"
	"github.com/phrazzld/triage-api/internal/platform/logger"
)

// Fetcher pulls recent raw items from one external source. The concrete
// clients (chat API, code-hosting API, notes, error logs, voice) live
// behind this boundary; a fetcher that persists its own output (voice
// transcripts) may return an empty slice.
type Fetcher interface {
	FetchItems(ctx context.Context, source string, since time.Time, limit int) ([]domain.SourceItem, error)
}

// extractableKinds are the source kinds whose fetched items flow into
// the extraction pipeline. Voice transcripts are fetched for the
// completion waterfall instead and never extracted.
var extractableKinds = map[string]bool{
	domain.SourceKindChat:       true,
	domain.SourceKindCodeReview: true,
	domain.SourceKindNote:       true,
	domain.SourceKindErrorLog:   true,
}

// NewFetchHandler returns a Handler for the fetch job types: it calls
// the fetch collaborator and, for extractable sources, emits a job
// request event carrying the fetched items. The event side enqueues the
// extraction job, so a crash between fetch and enqueue only costs a
// refetch.
func NewFetchHandler(fetcher Fetcher, emitter events.EventEmitter) Handler {
	return func(ctx context.Context, job *domain.Job) error {
		payload, err := ParseFetchPayload(job.Payload)
		if err != nil {
			return err
		}

		items, err := fetcher.FetchItems(ctx, payload.Source, payload.Since, payload.Limit)
		if err != nil {
			return fmt.Errorf("fetch from %s failed: %w", payload.Source, err)
		}

		log := logger.FromContext(ctx)
		log.Info("fetch completed",
			"source", payload.Source,
			"item_count", len(items))

		if len(items) == 0 || !extractableKinds[payload.Source] {
			return nil
		}

		event, err := events.NewJobRequestEvent(domain.JobTypeExtractTasks, ExtractionPayload{
			EntityKind: domain.EntityKindTask,
			SourceKind: payload.Source,
			Items:      items,
		})
		if err != nil {
			return fmt.Errorf("failed to build extraction request: %w", err)
		}

		if err := emitter.EmitEvent(ctx, event); err != nil {
			return fmt.Errorf("failed to hand off fetched items: %w", err)
		}

		return nil
	}
}

// ExtractionRunner is the pipeline boundary the extraction handler
// drives.
type ExtractionRunner interface {
	Run(ctx context.Context, sourceKind string, items []domain.SourceItem) (*extraction.Result, error)
}

// NewExtractionHandler returns a Handler for extraction jobs: it decodes
// the payload and runs the pipeline over the carried items.
func NewExtractionHandler(pipeline ExtractionRunner) Handler {
	return func(ctx context.Context, job *domain.Job) error {
		payload, err := ParseExtractionPayload(job.Payload)
		if err != nil {
			return err
		}

		result, err := pipeline.Run(ctx, payload.SourceKind, payload.Items)
		if err != nil {
			return fmt.Errorf("extraction over %s failed: %w", payload.SourceKind, err)
		}

		logger.FromContext(ctx).Info("extraction completed",
			"source_kind", payload.SourceKind,
			"processed", result.Processed,
			"duplicates", result.Duplicates,
			"failed", result.Failed,
			"tasks_created", result.TasksCreated,
			"edges_created", result.EdgesCreated)

		return nil
	}
}

// EnqueueHandler bridges job request events onto a queue. It is
// registered on the event emitter so fetch handlers can request
// extraction jobs without importing the queue.
type EnqueueHandler struct {
	queue *DurableQueue
}

// NewEnqueueHandler creates an event handler that enqueues onto the
// given queue.
func NewEnqueueHandler(queue *DurableQueue) *EnqueueHandler {
	return &EnqueueHandler{queue: queue}
}

// HandleEvent enqueues the job the event requests. Unknown event types
// are an error so misrouted events surface instead of vanishing.
func (h *EnqueueHandler) HandleEvent(ctx context.Context, event *events.JobRequestEvent) error {
	switch event.Type {
	case domain.JobTypeExtractTasks:
		payload, err := ParseExtractionPayload(event.Payload)
		if err != nil {
			return err
		}
		_, err = h.queue.Enqueue(ctx, payload, time.Time{})
		return err
	default:
		return fmt.Errorf("no enqueue mapping for event type %q", event.Type)
	}
}
