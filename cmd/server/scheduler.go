package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/triage-api/internal/domain"
	"github.com/phrazzld/triage-api/internal/queue"
)

// fetchSources are the sources the scheduler polls on the fetch
// interval. Order is cosmetic; the fetch queue single-flights per
// source either way.
var fetchSources = []string{
	domain.SourceKindChat,
	domain.SourceKindCodeReview,
	domain.SourceKindNote,
	domain.SourceKindErrorLog,
	domain.SourceKindVoice,
}

// scheduler drives the periodic background work: enqueueing fetch jobs,
// recovering stale jobs, and pruning finished ones.
type scheduler struct {
	app    *application
	logger *slog.Logger

	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

func newScheduler(app *application, logger *slog.Logger) *scheduler {
	return &scheduler{
		app:    app,
		logger: logger.With("component", "scheduler"),
	}
}

// Start launches the scheduling loop in a background goroutine.
func (s *scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancelFunc = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()

	s.logger.Info("scheduler started",
		"fetch_interval_minutes", s.app.config.Queue.FetchIntervalMinutes,
		"fetch_enabled", s.app.fetchEnabled)
}

// Stop shuts the scheduler down and waits for any in-flight pass.
func (s *scheduler) Stop() {
	if s.cancelFunc != nil {
		s.cancelFunc()
	}
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *scheduler) run(ctx context.Context) {
	cfg := s.app.config.Queue

	fetchTicker := time.NewTicker(time.Duration(cfg.FetchIntervalMinutes) * time.Minute)
	defer fetchTicker.Stop()

	// Stale recovery runs at half the stale timeout so an abandoned job
	// waits at most 1.5 timeouts before it is retried.
	staleTimeout := time.Duration(cfg.StaleTimeoutMinutes) * time.Minute
	recoverTicker := time.NewTicker(staleTimeout / 2)
	defer recoverTicker.Stop()

	cleanupTicker := time.NewTicker(24 * time.Hour)
	defer cleanupTicker.Stop()

	// Kick off an initial fetch round instead of waiting a full interval.
	s.enqueueFetches(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-fetchTicker.C:
			s.enqueueFetches(ctx)
		case <-recoverTicker.C:
			s.recoverStale(ctx, staleTimeout)
		case <-cleanupTicker.C:
			s.cleanup(ctx)
		}
	}
}

// enqueueFetches requests a fetch job per source. Single-flight dedup
// means an already-active fetch makes this a no-op for that source.
func (s *scheduler) enqueueFetches(ctx context.Context) {
	if !s.app.fetchEnabled {
		return
	}

	for _, source := range fetchSources {
		payload := queue.FetchPayload{Source: source}
		job, err := s.app.fetchQueue.Enqueue(ctx, payload, time.Now().UTC())
		if err != nil {
			s.logger.Error("failed to enqueue fetch job",
				"source", source,
				"error", err)
			continue
		}
		if job != nil {
			s.logger.Debug("fetch job enqueued", "source", source, "job_id", job.ID)
		}
	}
}

func (s *scheduler) recoverStale(ctx context.Context, olderThan time.Duration) {
	for _, q := range []*queue.DurableQueue{s.app.fetchQueue, s.app.aiQueue} {
		recovered, err := q.RecoverStale(ctx, olderThan)
		if err != nil {
			s.logger.Error("failed to recover stale jobs",
				"queue", q.Name(),
				"error", err)
			continue
		}
		if recovered > 0 {
			s.logger.Info("recovered stale jobs",
				"queue", q.Name(),
				"count", recovered)
		}
	}
}

func (s *scheduler) cleanup(ctx context.Context) {
	retentionDays := s.app.config.Queue.RetentionDays

	for _, q := range []*queue.DurableQueue{s.app.fetchQueue, s.app.aiQueue} {
		removed, err := q.Cleanup(ctx, retentionDays)
		if err != nil {
			s.logger.Error("failed to clean up finished jobs",
				"queue", q.Name(),
				"error", err)
			continue
		}
		if removed > 0 {
			s.logger.Info("cleaned up finished jobs",
				"queue", q.Name(),
				"count", removed)
		}
	}
}
