package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/triage-api/internal/api"
	apiMiddleware "github.com/phrazzld/triage-api/internal/api/middleware"
)

// setupRouter creates and configures the application router with all
// routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware)

	taskHandler := api.NewTaskHandler(app.taskService)
	queueHandler := api.NewQueueHandler(
		app.fetchQueue,
		app.aiQueue,
		app.deadLetterStore,
		time.Duration(app.config.Queue.StaleTimeoutMinutes)*time.Minute,
		app.config.Queue.RetentionDays,
	)
	completionHandler := api.NewCompletionHandler(app.waterfall)

	r.Route("/api", func(r chi.Router) {
		// Task review and lifecycle
		r.Post("/tasks", taskHandler.CreateTask)
		r.Get("/tasks", taskHandler.ListTasks)
		r.Get("/tasks/{id}", taskHandler.GetTask)
		r.Patch("/tasks/{id}", taskHandler.EditTask)
		r.Post("/tasks/{id}/accept", taskHandler.AcceptTask)
		r.Post("/tasks/{id}/reject", taskHandler.RejectTask)
		r.Post("/tasks/{id}/start", taskHandler.StartTask)
		r.Post("/tasks/{id}/pause", taskHandler.PauseTask)
		r.Post("/tasks/{id}/complete", taskHandler.CompleteTask)

		// Dependency edges
		r.Get("/tasks/{id}/dependencies", taskHandler.ListDependencies)
		r.Post("/tasks/{id}/dependencies", taskHandler.CreateDependency)
		r.Delete("/dependencies/{id}", taskHandler.DeleteDependency)

		// Merge
		r.Post("/merges", taskHandler.CreateMerge)

		// Queue maintenance
		r.Post("/queues/fetch", queueHandler.EnqueueFetch)
		r.Get("/dead-letters", queueHandler.ListDeadLetters)
		r.Post("/queues/{name}/recover-stale", queueHandler.RecoverStale)
		r.Post("/queues/{name}/cleanup", queueHandler.Cleanup)

		// Completion sweep
		r.Post("/completions/sweep", completionHandler.SuggestCompleted)
	})

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, err := w.Write([]byte("OK"))
		if err != nil {
			app.logger.Error("Failed to write health check response", "error", err)
		}
	})

	return r
}
