package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/triage-api/internal/domain"
	"github.com/phrazzld/triage-api/internal/platform/logger"
)

// Handler processes one claimed job. Returning nil acks the job;
// returning an error fails it into the retry/backoff path.
type Handler func(ctx context.Context, job *domain.Job) error

// WorkerConfig holds configuration for a queue worker.
type WorkerConfig struct {
	// PollInterval is how often the worker drains the queue.
	// If zero, defaults to 15 seconds.
	PollInterval time.Duration

	// BatchSize is the dequeue limit per drain. If zero, defaults to 10.
	BatchSize int
}

// Worker drains a DurableQueue on a fixed interval and dispatches
// claimed jobs to registered handlers by job type. Jobs within a batch
// run sequentially: external calls are the only suspension points and
// keeping them serial keeps ordering predictable and avoids rate-limit
// bursts. No lock is held across a handler call; the row is already
// processing before the handler starts, so a crash mid-call is
// recoverable via the stale sweep.
type Worker struct {
	queue      *DurableQueue
	handlers   map[string]Handler
	config     WorkerConfig
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// NewWorker creates a worker for the given queue.
func NewWorker(queue *DurableQueue, config WorkerConfig, logger *slog.Logger) *Worker {
	if config.PollInterval == 0 {
		config.PollInterval = 15 * time.Second
	}
	if config.BatchSize == 0 {
		config.BatchSize = 10
	}

	return &Worker{
		queue:    queue,
		handlers: make(map[string]Handler),
		config:   config,
		logger:   logger.With("component", "queue_worker", "queue", queue.Name()),
	}
}

// Register binds a handler to a job type. Jobs with no registered
// handler are failed with an explanatory message.
func (w *Worker) Register(jobType string, handler Handler) {
	w.handlers[jobType] = handler
}

// Start begins the drain loop in a background goroutine.
func (w *Worker) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancelFunc = cancel

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()

	w.logger.Info("queue worker started",
		"poll_interval", w.config.PollInterval,
		"batch_size", w.config.BatchSize)
}

// Stop shuts the worker down and waits for the in-flight drain to
// finish.
func (w *Worker) Stop() {
	if w.cancelFunc != nil {
		w.cancelFunc()
	}
	w.wg.Wait()
	w.logger.Info("queue worker stopped")
}

func (w *Worker) run(ctx context.Context) {
	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Drain(ctx)
		}
	}
}

// Drain claims one batch of due jobs and processes them sequentially.
// It is exported so schedulers and tests can trigger a drain directly.
func (w *Worker) Drain(ctx context.Context) {
	jobs, err := w.queue.DequeueBatch(ctx, w.config.BatchSize)
	if err != nil {
		w.logger.Error("failed to dequeue batch", "error", err)
		return
	}

	for _, job := range jobs {
		w.processJob(ctx, job)
	}
}

func (w *Worker) processJob(ctx context.Context, job *domain.Job) {
	jobLogger := w.logger.With(
		"job_id", job.ID,
		"job_type", job.JobType,
		"retry_count", job.RetryCount)
	ctx = logger.WithLogger(ctx, jobLogger)

	handler, ok := w.handlers[job.JobType]
	if !ok {
		jobLogger.Error("no handler registered for job type")
		if err := w.queue.Fail(ctx, job.ID, fmt.Sprintf("no handler registered for job type %q", job.JobType)); err != nil {
			jobLogger.Error("failed to fail unhandled job", "error", err)
		}
		return
	}

	jobLogger.Debug("processing job")

	if err := handler(ctx, job); err != nil {
		jobLogger.Warn("job handler failed", "error", err)
		if failErr := w.queue.Fail(ctx, job.ID, err.Error()); failErr != nil {
			jobLogger.Error("failed to record job failure", "error", failErr)
		}
		return
	}

	if err := w.queue.Ack(ctx, job.ID); err != nil {
		jobLogger.Error("failed to ack job", "error", err)
		return
	}

	jobLogger.Debug("job completed")
}
