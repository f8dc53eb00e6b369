package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/phrazzld/triage-api/internal/api/shared"
	"github.com/phrazzld/triage-api/internal/domain"
	"github.com/phrazzld/triage-api/internal/service"
)

// CreateTaskRequest represents the request body for creating a manual
// task.
type CreateTaskRequest struct {
	Title       string `json:"title" validate:"required,min=1"`
	Description string `json:"description"`
	Priority    string `json:"priority" validate:"omitempty,oneof=low medium high"`
}

// EditTaskRequest represents the request body for editing a task.
type EditTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// CreateMergeRequest represents the request body for creating a merge
// task over accepted tasks.
type CreateMergeRequest struct {
	Title         string   `json:"title" validate:"required,min=1"`
	Description   string   `json:"description"`
	SourceTaskIDs []string `json:"source_task_ids" validate:"required,min=2"`
}

// CreateDependencyRequest represents the request body for adding a
// manual dependency edge.
type CreateDependencyRequest struct {
	DependsOnTaskID string `json:"depends_on_task_id" validate:"required,uuid"`
	DependencyType  string `json:"dependency_type" validate:"omitempty,oneof=blocks related"`
	Reason          string `json:"reason"`
}

// TaskHandler handles task-related HTTP requests.
type TaskHandler struct {
	taskService *service.TaskService
	validator   *validator.Validate
}

// NewTaskHandler creates a new TaskHandler.
func NewTaskHandler(taskService *service.TaskService) *TaskHandler {
	return &TaskHandler{
		taskService: taskService,
		validator:   validator.New(),
	}
}

// CreateTask handles POST /api/tasks requests.
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	task, err := h.taskService.CreateManualTask(r.Context(), req.Title, req.Description, req.Priority)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusCreated, taskToResponse(task))
}

// GetTask handles GET /api/tasks/{id} requests.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	task, err := h.taskService.GetTask(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(task))
}

// ListTasks handles GET /api/tasks requests. An optional status query
// parameter filters by status; the default is pending, the review inbox.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	statusParam := r.URL.Query().Get("status")
	if statusParam == "" {
		statusParam = string(domain.TaskStatusPending)
	}

	status := domain.TaskStatus(statusParam)
	switch status {
	case domain.TaskStatusPending, domain.TaskStatusAccepted, domain.TaskStatusRejected,
		domain.TaskStatusInProgress, domain.TaskStatusPaused, domain.TaskStatusCompleted:
	default:
		shared.RespondWithError(w, r, http.StatusBadRequest, "Unknown status filter")
		return
	}

	tasks, err := h.taskService.ListTasksByStatus(r.Context(), []domain.TaskStatus{status}, 0)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	responses := make([]TaskResponse, 0, len(tasks))
	for _, task := range tasks {
		responses = append(responses, taskToResponse(task))
	}

	shared.RespondWithJSON(w, r, http.StatusOK, responses)
}

// AcceptTask handles POST /api/tasks/{id}/accept requests.
func (h *TaskHandler) AcceptTask(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.taskService.Accept)
}

// RejectTask handles POST /api/tasks/{id}/reject requests.
func (h *TaskHandler) RejectTask(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.taskService.Reject)
}

// StartTask handles POST /api/tasks/{id}/start requests.
func (h *TaskHandler) StartTask(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.taskService.Start)
}

// PauseTask handles POST /api/tasks/{id}/pause requests.
func (h *TaskHandler) PauseTask(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.taskService.Pause)
}

// CompleteTask handles POST /api/tasks/{id}/complete requests.
func (h *TaskHandler) CompleteTask(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.taskService.Complete)
}

// EditTask handles PATCH /api/tasks/{id} requests.
func (h *TaskHandler) EditTask(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	var req EditTaskRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	task, err := h.taskService.Edit(r.Context(), id, req.Title, req.Description)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(task))
}

// CreateMerge handles POST /api/tasks/merge requests: it creates a
// pending merge task over accepted sources. The merge itself runs when
// the task is accepted.
func (h *TaskHandler) CreateMerge(w http.ResponseWriter, r *http.Request) {
	var req CreateMergeRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	sourceIDs := make([]uuid.UUID, 0, len(req.SourceTaskIDs))
	for _, raw := range req.SourceTaskIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid source task ID")
			return
		}
		sourceIDs = append(sourceIDs, id)
	}

	task, err := h.taskService.CreateMergeTask(r.Context(), req.Title, req.Description, sourceIDs)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusCreated, taskToResponse(task))
}

// ListDependencies handles GET /api/tasks/{id}/dependencies requests.
func (h *TaskHandler) ListDependencies(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	deps, err := h.taskService.ListDependencies(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	responses := make([]DependencyResponse, 0, len(deps))
	for _, dep := range deps {
		responses = append(responses, dependencyToResponse(dep))
	}

	shared.RespondWithJSON(w, r, http.StatusOK, responses)
}

// CreateDependency handles POST /api/tasks/{id}/dependencies requests.
func (h *TaskHandler) CreateDependency(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	var req CreateDependencyRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	dependsOn, err := uuid.Parse(req.DependsOnTaskID)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid depends_on_task_id")
		return
	}

	depType := domain.DependencyType(req.DependencyType)
	if req.DependencyType == "" {
		depType = domain.DependencyBlocks
	}

	dep, err := h.taskService.AddDependency(r.Context(), id, dependsOn, depType, req.Reason)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	// Duplicate edges are a silent no-op.
	if dep == nil {
		shared.RespondWithJSON(w, r, http.StatusOK, map[string]string{"status": "exists"})
		return
	}

	shared.RespondWithJSON(w, r, http.StatusCreated, dependencyToResponse(dep))
}

// DeleteDependency handles DELETE /api/dependencies/{id} requests.
func (h *TaskHandler) DeleteDependency(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	if err := h.taskService.RemoveDependency(r.Context(), id); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *TaskHandler) transition(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id uuid.UUID) (*domain.Task, error)) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	task, err := op(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(task))
}

func (h *TaskHandler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid task ID")
		return uuid.Nil, false
	}
	return id, true
}
