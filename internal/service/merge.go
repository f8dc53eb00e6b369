package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/triage-api/internal/domain"
	"github.com/phrazzld/triage-api/internal/platform/logger"
	"github.com/phrazzld/triage-api/internal/store"
)

// runMerge collapses the merge task's source tasks into the target:
//
//  1. every source task is marked completed, stamped with the merge
//     target and merge time;
//  2. edges pointing at a source (X depends on source) are redirected to
//     point at the target, skipping redirects that would duplicate an
//     existing edge; when X is the target or another source the edge is
//     simply dropped;
//  3. edges where a source was the dependent are deleted outright, since
//     the source is now closed.
//
// The target inherits exactly the blocking relationships of its sources,
// with no self-loops and no dangling edges to completed sources.
func (s *TaskService) runMerge(ctx context.Context, tx *sql.Tx, target *domain.Task) error {
	log := logger.FromContext(ctx)

	if len(target.MergeSourceTaskIDs) == 0 {
		return fmt.Errorf("%w: merge task %s has no sources", domain.ErrValidation, target.ID)
	}

	tasks := s.taskStore(tx)
	deps := s.depStore(tx)

	sourceSet := make(map[uuid.UUID]bool, len(target.MergeSourceTaskIDs))
	for _, id := range target.MergeSourceTaskIDs {
		sourceSet[id] = true
	}

	now := time.Now().UTC()

	for _, sourceID := range target.MergeSourceTaskIDs {
		source, err := tasks.GetTask(ctx, sourceID)
		if err != nil {
			return fmt.Errorf("failed to load merge source %s: %w", sourceID, err)
		}

		source.Status = domain.TaskStatusCompleted
		source.CompletedAt = &now
		source.MergeTargetTaskID = &target.ID
		source.MergedAt = &now
		source.UpdatedAt = now

		if err := tasks.UpdateTask(ctx, source); err != nil {
			return fmt.Errorf("failed to close merge source %s: %w", sourceID, err)
		}
	}

	for _, sourceID := range target.MergeSourceTaskIDs {
		if err := s.redirectDependents(ctx, deps, target.ID, sourceID, sourceSet); err != nil {
			return err
		}

		outgoing, err := deps.ListDependenciesOf(ctx, sourceID)
		if err != nil {
			return fmt.Errorf("failed to list edges of source %s: %w", sourceID, err)
		}
		for _, edge := range outgoing {
			if err := deleteEdge(ctx, deps, edge.ID); err != nil {
				return err
			}
		}
	}

	log.Info("merge completed",
		"target_task_id", target.ID,
		"source_count", len(target.MergeSourceTaskIDs))
	return nil
}

// redirectDependents rewires edges that pointed at a merge source to
// point at the target instead.
func (s *TaskService) redirectDependents(ctx context.Context, deps store.DependencyStore, targetID, sourceID uuid.UUID, sourceSet map[uuid.UUID]bool) error {
	dependents, err := deps.ListDependents(ctx, sourceID)
	if err != nil {
		return fmt.Errorf("failed to list dependents of source %s: %w", sourceID, err)
	}

	for _, edge := range dependents {
		// Edges from the target or from sibling sources are dropped,
		// not redirected: they would become self-loops or edges to
		// other closed sources.
		if edge.TaskID != targetID && !sourceSet[edge.TaskID] {
			exists, err := deps.DependencyExists(ctx, edge.TaskID, targetID)
			if err != nil {
				return fmt.Errorf("failed to check edge %s -> %s: %w", edge.TaskID, targetID, err)
			}

			if !exists {
				redirected, err := domain.NewDependency(
					edge.TaskID,
					targetID,
					edge.DependencyType,
					edge.Confidence,
					edge.Reason,
					edge.SourceType,
				)
				if err != nil {
					return fmt.Errorf("failed to build redirected edge: %w", err)
				}
				if err := deps.CreateDependency(ctx, redirected); err != nil && !errors.Is(err, store.ErrDuplicate) {
					return fmt.Errorf("failed to create redirected edge: %w", err)
				}
			}
		}

		if err := deleteEdge(ctx, deps, edge.ID); err != nil {
			return err
		}
	}

	return nil
}

func deleteEdge(ctx context.Context, deps store.DependencyStore, id uuid.UUID) error {
	err := deps.DeleteDependency(ctx, id)
	if err != nil && !store.IsNotFoundError(err) {
		return fmt.Errorf("failed to delete edge %s: %w", id, err)
	}
	return nil
}

// AddDependency creates a manual edge between two tasks. Duplicate edges
// are a no-op; the existing edge wins.
func (s *TaskService) AddDependency(ctx context.Context, taskID, dependsOnTaskID uuid.UUID, depType domain.DependencyType, reason string) (*domain.Dependency, error) {
	if _, err := s.tasks.GetTask(ctx, taskID); err != nil {
		return nil, err
	}
	if _, err := s.tasks.GetTask(ctx, dependsOnTaskID); err != nil {
		return nil, err
	}

	dep, err := domain.NewDependency(taskID, dependsOnTaskID, depType, 1.0, reason, domain.DependencySourceManual)
	if err != nil {
		return nil, err
	}

	if err := s.deps.CreateDependency(ctx, dep); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, nil
		}
		return nil, err
	}
	return dep, nil
}

// RemoveDependency deletes an edge by ID.
func (s *TaskService) RemoveDependency(ctx context.Context, id uuid.UUID) error {
	return s.deps.DeleteDependency(ctx, id)
}

// ListDependencies returns the edges where the task is the dependent.
func (s *TaskService) ListDependencies(ctx context.Context, taskID uuid.UUID) ([]*domain.Dependency, error) {
	return s.deps.ListDependenciesOf(ctx, taskID)
}
