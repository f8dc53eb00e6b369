package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/triage-api/internal/completion"
	"github.com/phrazzld/triage-api/internal/config"
	"github.com/phrazzld/triage-api/internal/domain"
	"github.com/phrazzld/triage-api/internal/events"
	"github.com/phrazzld/triage-api/internal/extraction"
	"github.com/phrazzld/triage-api/internal/platform/feeds"
	"github.com/phrazzld/triage-api/internal/platform/gemini"
	"github.com/phrazzld/triage-api/internal/platform/hosting"
	"github.com/phrazzld/triage-api/internal/platform/postgres"
	"github.com/phrazzld/triage-api/internal/platform/promptfile"
	"github.com/phrazzld/triage-api/internal/queue"
	"github.com/phrazzld/triage-api/internal/ratelimit"
	"github.com/phrazzld/triage-api/internal/service"
	"github.com/phrazzld/triage-api/internal/store"
)

// application holds all the shared application dependencies to simplify
// management and ensure proper cleanup on shutdown.
type application struct {
	// Configuration
	config *config.Config

	// Core services
	logger *slog.Logger
	db     *sql.DB

	// Stores (using interfaces for proper abstraction)
	taskStore       store.TaskStore
	dependencyStore store.DependencyStore
	deadLetterStore store.DeadLetterStore

	// Queues and workers
	fetchQueue  *queue.DurableQueue
	aiQueue     *queue.DurableQueue
	fetchWorker *queue.Worker
	aiWorker    *queue.Worker

	// Services
	taskService *service.TaskService
	pipeline    *extraction.Pipeline
	waterfall   *completion.Waterfall

	// Event system
	eventEmitter events.EventEmitter

	// Background scheduling
	scheduler *scheduler

	// fetchEnabled reports whether a feed gateway is configured. Without
	// one the fetch worker idles and the scheduler skips fetch enqueues.
	fetchEnabled bool
}

// newApplication creates a new application instance with all dependencies
// initialized. It accepts core dependencies like configuration, logger,
// and database connection that must be established before application
// initialization.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *sql.DB) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
		db:     db,
	}

	// Initialize stores
	app.taskStore = postgres.NewPostgresTaskStore(db)
	app.dependencyStore = postgres.NewPostgresDependencyStore(db)
	app.deadLetterStore = postgres.NewPostgresDeadLetterStore(db)
	jobStore := postgres.NewPostgresJobStore(db)
	extractionLogStore := postgres.NewPostgresExtractionLogStore(db)
	suggestionStore := postgres.NewPostgresSuggestionStore(db)
	vocabularyStore := postgres.NewPostgresVocabularyStore(db)
	projectStore := postgres.NewPostgresProjectStore(db)
	profileStore := postgres.NewPostgresProfileStore(db)

	// Initialize the two queues over the shared job store
	app.fetchQueue = queue.NewDurableQueue(queue.Options{
		Name:         domain.QueueFetch,
		MaxRetries:   cfg.Queue.MaxRetries,
		SingleFlight: true,
	}, jobStore, app.deadLetterStore, logger)

	app.aiQueue = queue.NewDurableQueue(queue.Options{
		Name:       domain.QueueAI,
		MaxRetries: cfg.Queue.MaxRetries,
	}, jobStore, app.deadLetterStore, logger)

	// Initialize the LLM client shared by extraction and the
	// completion judge
	llmClient, err := gemini.NewClient(ctx, gemini.Config{
		APIKey:            cfg.LLM.GeminiAPIKey,
		Model:             cfg.LLM.ModelName,
		MaxRetries:        cfg.LLM.MaxRetries,
		RetryDelaySeconds: cfg.LLM.RetryDelaySeconds,
	}, logger.With("component", "llm_client"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}
	logger.Info("LLM client initialized", "model", cfg.LLM.ModelName)

	llmLimiter := ratelimit.NewLimiter(time.Duration(cfg.LLM.RateLimitSeconds) * time.Second)

	// Initialize the extraction pipeline
	app.pipeline = extraction.NewPipeline(
		gemini.NewExtractor(llmClient),
		app.taskStore,
		app.dependencyStore,
		extractionLogStore,
		llmLimiter,
		logger,
	)

	// Initialize the task service with its transactional side effects
	promptWriter, err := promptfile.NewWriter(cfg.Prompts.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize prompt writer: %w", err)
	}

	app.taskService = service.NewTaskService(
		service.NewTxRunner(db),
		app.taskStore,
		app.dependencyStore,
		suggestionStore,
		vocabularyStore,
		projectStore,
		profileStore,
		promptWriter,
		logger,
	)

	// Initialize the completion waterfall. Evidence collaborators are
	// optional: an unconfigured tier is skipped.
	waterfallJudge := gemini.NewJudge(llmClient, llmLimiter)

	var hostingClient completion.HostingClient
	if cfg.Hosting.Token != "" {
		hostingLimiter := ratelimit.NewLimiter(time.Duration(cfg.Hosting.RateLimitSeconds) * time.Second)
		client, err := hosting.NewClient(cfg.Hosting.APIBaseURL, cfg.Hosting.Token, hostingLimiter)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize hosting client: %w", err)
		}
		hostingClient = client
	} else {
		logger.Warn("no hosting token configured, code-hosting completion evidence disabled")
	}

	var (
		sessionSource    completion.SessionSource
		threadSource     completion.ThreadSource
		transcriptSource completion.TranscriptSource
		feedClient       *feeds.Client
	)
	if cfg.Feeds.BaseURL != "" {
		feedClient, err = feeds.NewClient(cfg.Feeds.BaseURL, cfg.Feeds.Token)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize feed client: %w", err)
		}
		sessionSource = feedClient
		threadSource = feedClient
		transcriptSource = feedClient
		app.fetchEnabled = true
	} else {
		logger.Warn("no feed gateway configured, source fetching and feed-based completion evidence disabled")
	}

	app.waterfall = completion.NewWaterfall(
		app.taskStore,
		hostingClient,
		waterfallJudge,
		sessionSource,
		threadSource,
		transcriptSource,
		logger,
	)

	// Initialize event emitter and wire fetched batches to the AI queue
	emitter := events.NewInMemoryEventEmitter(logger)
	emitter.RegisterHandler(queue.NewEnqueueHandler(app.aiQueue))
	app.eventEmitter = emitter

	// Initialize workers
	app.fetchWorker = queue.NewWorker(app.fetchQueue, queue.WorkerConfig{
		PollInterval: time.Duration(cfg.Queue.FetchPollSeconds) * time.Second,
		BatchSize:    cfg.Queue.BatchSize,
	}, logger)

	app.aiWorker = queue.NewWorker(app.aiQueue, queue.WorkerConfig{
		PollInterval: time.Duration(cfg.Queue.AIPollSeconds) * time.Second,
		BatchSize:    cfg.Queue.BatchSize,
	}, logger)

	app.registerJobHandlers(feedClient)

	// Initialize background scheduler
	app.scheduler = newScheduler(app, logger)

	logger.Info("Application initialized successfully")
	return app, nil
}

// registerJobHandlers binds job types to their handlers. Fetch handlers
// are only registered when a feed gateway is configured; unhandled fetch
// jobs would otherwise burn their retry budget for nothing.
func (app *application) registerJobHandlers(feedClient *feeds.Client) {
	if feedClient != nil {
		fetchHandler := queue.NewFetchHandler(feedClient, app.eventEmitter)
		for _, jobType := range []string{
			domain.JobTypeFetchChat,
			domain.JobTypeFetchCodeReview,
			domain.JobTypeFetchNotes,
			domain.JobTypeFetchErrorLogs,
			domain.JobTypeFetchVoice,
		} {
			app.fetchWorker.Register(jobType, fetchHandler)
		}
	}

	app.aiWorker.Register(domain.JobTypeExtractTasks, queue.NewExtractionHandler(app.pipeline))
}

// Run starts the background workers and the HTTP server, blocking until
// shutdown. Cleanup runs as part of server shutdown.
func (app *application) Run(ctx context.Context) error {
	app.fetchWorker.Start()
	app.aiWorker.Start()
	app.scheduler.Start()

	router := app.setupRouter()

	if err := app.startHTTPServer(ctx, router); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup() {
	if app.scheduler != nil {
		app.scheduler.Stop()
	}
	if app.fetchWorker != nil {
		app.fetchWorker.Stop()
	}
	if app.aiWorker != nil {
		app.aiWorker.Stop()
	}

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("Error closing database connection", "error", err)
		}
	}

	app.logger.Info("Application shutdown completed")
}
