package service

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/phrazzld/triage-api/internal/domain"
	"github.com/phrazzld/triage-api/internal/store"
)

// passthroughTx runs the function directly with a nil transaction; the
// service's binding helpers fall back to the base stores.
func passthroughTx(ctx context.Context, fn store.TxFn) error {
	return fn(ctx, nil)
}

// MockTaskStore holds tasks in memory.
type MockTaskStore struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*domain.Task
}

func NewMockTaskStore() *MockTaskStore {
	return &MockTaskStore{tasks: make(map[uuid.UUID]*domain.Task)}
}

func (m *MockTaskStore) CreateTask(ctx context.Context, task *domain.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *task
	m.tasks[task.ID] = &copied
	return nil
}

func (m *MockTaskStore) GetTask(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	copied := *task
	return &copied, nil
}

func (m *MockTaskStore) UpdateTask(ctx context.Context, task *domain.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[task.ID]; !ok {
		return store.ErrTaskNotFound
	}
	copied := *task
	m.tasks[task.ID] = &copied
	return nil
}

func (m *MockTaskStore) ListTasksByStatus(ctx context.Context, statuses []domain.TaskStatus, limit int) ([]*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Task
	for _, task := range m.tasks {
		for _, status := range statuses {
			if task.Status == status {
				copied := *task
				out = append(out, &copied)
				break
			}
		}
	}
	return out, nil
}

func (m *MockTaskStore) ListChildTasks(ctx context.Context, parentID uuid.UUID) ([]*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Task
	for _, task := range m.tasks {
		if task.ParentID != nil && *task.ParentID == parentID {
			copied := *task
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *MockTaskStore) WithTx(tx *sql.Tx) store.TaskStore { return m }

// Task returns the stored task for direct assertions.
func (m *MockTaskStore) Task(id uuid.UUID) *domain.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tasks[id]
}

// MockDependencyStore holds edges in memory with pair uniqueness.
type MockDependencyStore struct {
	Edges []*domain.Dependency
}

func (m *MockDependencyStore) CreateDependency(ctx context.Context, dep *domain.Dependency) error {
	for _, edge := range m.Edges {
		if edge.TaskID == dep.TaskID && edge.DependsOnTaskID == dep.DependsOnTaskID {
			return store.ErrDuplicateDependency
		}
	}
	copied := *dep
	m.Edges = append(m.Edges, &copied)
	return nil
}

func (m *MockDependencyStore) DependencyExists(ctx context.Context, taskID, dependsOnTaskID uuid.UUID) (bool, error) {
	for _, edge := range m.Edges {
		if edge.TaskID == taskID && edge.DependsOnTaskID == dependsOnTaskID {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockDependencyStore) ListDependenciesOf(ctx context.Context, taskID uuid.UUID) ([]*domain.Dependency, error) {
	var out []*domain.Dependency
	for _, edge := range m.Edges {
		if edge.TaskID == taskID {
			copied := *edge
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *MockDependencyStore) ListDependents(ctx context.Context, taskID uuid.UUID) ([]*domain.Dependency, error) {
	var out []*domain.Dependency
	for _, edge := range m.Edges {
		if edge.DependsOnTaskID == taskID {
			copied := *edge
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *MockDependencyStore) DeleteDependency(ctx context.Context, id uuid.UUID) error {
	for i, edge := range m.Edges {
		if edge.ID == id {
			m.Edges = append(m.Edges[:i], m.Edges[i+1:]...)
			return nil
		}
	}
	return store.ErrDependencyNotFound
}

func (m *MockDependencyStore) WithTx(tx *sql.Tx) store.DependencyStore { return m }

// Has reports whether an edge exists for the ordered pair.
func (m *MockDependencyStore) Has(taskID, dependsOnTaskID uuid.UUID) bool {
	exists, _ := m.DependencyExists(context.Background(), taskID, dependsOnTaskID)
	return exists
}

// MockSuggestionStore holds one suggestion of each kind per task.
type MockSuggestionStore struct {
	ProfileSuggestions    map[uuid.UUID]*domain.ProfileSuggestion
	VocabularySuggestions map[uuid.UUID]*domain.VocabularySuggestion
	PromptSuggestions     map[uuid.UUID]*domain.PromptSuggestion
	ProjectSuggestions    map[uuid.UUID]*domain.ProjectSuggestion
}

func NewMockSuggestionStore() *MockSuggestionStore {
	return &MockSuggestionStore{
		ProfileSuggestions:    make(map[uuid.UUID]*domain.ProfileSuggestion),
		VocabularySuggestions: make(map[uuid.UUID]*domain.VocabularySuggestion),
		PromptSuggestions:     make(map[uuid.UUID]*domain.PromptSuggestion),
		ProjectSuggestions:    make(map[uuid.UUID]*domain.ProjectSuggestion),
	}
}

func (m *MockSuggestionStore) CreateProfileSuggestion(ctx context.Context, s *domain.ProfileSuggestion) error {
	m.ProfileSuggestions[s.TaskID] = s
	return nil
}

func (m *MockSuggestionStore) GetProfileSuggestionByTask(ctx context.Context, taskID uuid.UUID) (*domain.ProfileSuggestion, error) {
	s, ok := m.ProfileSuggestions[taskID]
	if !ok {
		return nil, store.ErrSuggestionNotFound
	}
	return s, nil
}

func (m *MockSuggestionStore) SetProfileSuggestionStatus(ctx context.Context, id uuid.UUID, status domain.SuggestionStatus) error {
	for _, s := range m.ProfileSuggestions {
		if s.ID == id {
			s.Status = status
			return nil
		}
	}
	return store.ErrSuggestionNotFound
}

func (m *MockSuggestionStore) CreateVocabularySuggestion(ctx context.Context, s *domain.VocabularySuggestion) error {
	m.VocabularySuggestions[s.TaskID] = s
	return nil
}

func (m *MockSuggestionStore) GetVocabularySuggestionByTask(ctx context.Context, taskID uuid.UUID) (*domain.VocabularySuggestion, error) {
	s, ok := m.VocabularySuggestions[taskID]
	if !ok {
		return nil, store.ErrSuggestionNotFound
	}
	return s, nil
}

func (m *MockSuggestionStore) SetVocabularySuggestionStatus(ctx context.Context, id uuid.UUID, status domain.SuggestionStatus) error {
	for _, s := range m.VocabularySuggestions {
		if s.ID == id {
			s.Status = status
			return nil
		}
	}
	return store.ErrSuggestionNotFound
}

func (m *MockSuggestionStore) CreatePromptSuggestion(ctx context.Context, s *domain.PromptSuggestion) error {
	m.PromptSuggestions[s.TaskID] = s
	return nil
}

func (m *MockSuggestionStore) GetPromptSuggestionByTask(ctx context.Context, taskID uuid.UUID) (*domain.PromptSuggestion, error) {
	s, ok := m.PromptSuggestions[taskID]
	if !ok {
		return nil, store.ErrSuggestionNotFound
	}
	return s, nil
}

func (m *MockSuggestionStore) SetPromptSuggestionStatus(ctx context.Context, id uuid.UUID, status domain.SuggestionStatus) error {
	for _, s := range m.PromptSuggestions {
		if s.ID == id {
			s.Status = status
			return nil
		}
	}
	return store.ErrSuggestionNotFound
}

func (m *MockSuggestionStore) CreateProjectSuggestion(ctx context.Context, s *domain.ProjectSuggestion) error {
	m.ProjectSuggestions[s.TaskID] = s
	return nil
}

func (m *MockSuggestionStore) GetProjectSuggestionByTask(ctx context.Context, taskID uuid.UUID) (*domain.ProjectSuggestion, error) {
	s, ok := m.ProjectSuggestions[taskID]
	if !ok {
		return nil, store.ErrSuggestionNotFound
	}
	return s, nil
}

func (m *MockSuggestionStore) SetProjectSuggestionStatus(ctx context.Context, id uuid.UUID, status domain.SuggestionStatus) error {
	for _, s := range m.ProjectSuggestions {
		if s.ID == id {
			s.Status = status
			return nil
		}
	}
	return store.ErrSuggestionNotFound
}

func (m *MockSuggestionStore) WithTx(tx *sql.Tx) store.SuggestionStore { return m }

// MockVocabularyStore dedupes terms by name.
type MockVocabularyStore struct {
	Terms []*domain.VocabularyTerm
}

func (m *MockVocabularyStore) CreateTerm(ctx context.Context, term *domain.VocabularyTerm) error {
	for _, existing := range m.Terms {
		if existing.Term == term.Term {
			return store.ErrDuplicateTerm
		}
	}
	m.Terms = append(m.Terms, term)
	return nil
}

func (m *MockVocabularyStore) WithTx(tx *sql.Tx) store.VocabularyStore { return m }

// MockProjectStore dedupes projects by path and (owner, repo).
type MockProjectStore struct {
	Projects []*domain.Project
}

func (m *MockProjectStore) CreateProject(ctx context.Context, project *domain.Project) error {
	exists, _ := m.ProjectExists(ctx, project.Path, project.Owner, project.Repo)
	if exists {
		return store.ErrDuplicateProject
	}
	m.Projects = append(m.Projects, project)
	return nil
}

func (m *MockProjectStore) GetProject(ctx context.Context, id uuid.UUID) (*domain.Project, error) {
	for _, p := range m.Projects {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, store.ErrProjectNotFound
}

func (m *MockProjectStore) ProjectExists(ctx context.Context, path, owner, repo string) (bool, error) {
	for _, p := range m.Projects {
		if path != "" && p.Path == path {
			return true, nil
		}
		if owner != "" && repo != "" && p.Owner == owner && p.Repo == repo {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockProjectStore) WithTx(tx *sql.Tx) store.ProjectStore { return m }

// MockProfileStore holds the singleton profile.
type MockProfileStore struct {
	Profile *domain.Profile
}

func (m *MockProfileStore) GetProfile(ctx context.Context) (*domain.Profile, error) {
	if m.Profile == nil {
		m.Profile = &domain.Profile{ID: 1}
	}
	return m.Profile, nil
}

func (m *MockProfileStore) UpdateProfile(ctx context.Context, profile *domain.Profile) error {
	m.Profile = profile
	return nil
}

func (m *MockProfileStore) WithTx(tx *sql.Tx) store.ProfileStore { return m }

// MockPromptWriter records written prompts by name.
type MockPromptWriter struct {
	Written map[string]string
	Err     error
}

func (m *MockPromptWriter) WritePrompt(ctx context.Context, name, text string) error {
	if m.Err != nil {
		return m.Err
	}
	if m.Written == nil {
		m.Written = make(map[string]string)
	}
	m.Written[name] = text
	return nil
}

// serviceFixture bundles a TaskService with its backing mocks.
type serviceFixture struct {
	service     *TaskService
	tasks       *MockTaskStore
	deps        *MockDependencyStore
	suggestions *MockSuggestionStore
	vocabulary  *MockVocabularyStore
	projects    *MockProjectStore
	profile     *MockProfileStore
	prompts     *MockPromptWriter
}

func newFixture() *serviceFixture {
	f := &serviceFixture{
		tasks:       NewMockTaskStore(),
		deps:        &MockDependencyStore{},
		suggestions: NewMockSuggestionStore(),
		vocabulary:  &MockVocabularyStore{},
		projects:    &MockProjectStore{},
		profile:     &MockProfileStore{},
		prompts:     &MockPromptWriter{},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.service = NewTaskService(passthroughTx, f.tasks, f.deps, f.suggestions,
		f.vocabulary, f.projects, f.profile, f.prompts, logger)
	return f
}
