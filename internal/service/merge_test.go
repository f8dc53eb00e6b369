package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/triage-api/internal/domain"
	"github.com/phrazzld/triage-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustEdge(t *testing.T, f *serviceFixture, taskID, dependsOn uuid.UUID) *domain.Dependency {
	t.Helper()
	dep, err := domain.NewDependency(taskID, dependsOn, domain.DependencyBlocks, 1.0, "", domain.DependencySourceManual)
	require.NoError(t, err)
	require.NoError(t, f.deps.CreateDependency(context.Background(), dep))
	return dep
}

func TestCreateMergeTask(t *testing.T) {
	ctx := context.Background()

	t.Run("requires at least two sources", func(t *testing.T) {
		f := newFixture()
		source := seedTask(t, f, domain.TaskSourceChat, domain.TaskStatusAccepted)

		_, err := f.service.CreateMergeTask(ctx, "Merged", "", []uuid.UUID{source.ID})
		assert.ErrorIs(t, err, ErrMergeTooFewSources)
	})

	t.Run("requires accepted sources", func(t *testing.T) {
		f := newFixture()
		a := seedTask(t, f, domain.TaskSourceChat, domain.TaskStatusAccepted)
		b := seedTask(t, f, domain.TaskSourceChat, domain.TaskStatusPending)

		_, err := f.service.CreateMergeTask(ctx, "Merged", "", []uuid.UUID{a.ID, b.ID})
		assert.ErrorIs(t, err, ErrMergeSourceNotAccepted)
	})

	t.Run("unknown source", func(t *testing.T) {
		f := newFixture()
		a := seedTask(t, f, domain.TaskSourceChat, domain.TaskStatusAccepted)

		_, err := f.service.CreateMergeTask(ctx, "Merged", "", []uuid.UUID{a.ID, uuid.New()})
		assert.True(t, store.IsNotFoundError(err))
	})

	t.Run("creates a pending merge task", func(t *testing.T) {
		f := newFixture()
		a := seedTask(t, f, domain.TaskSourceChat, domain.TaskStatusAccepted)
		b := seedTask(t, f, domain.TaskSourceNote, domain.TaskStatusAccepted)

		merge, err := f.service.CreateMergeTask(ctx, "Merged", "both about login", []uuid.UUID{a.ID, b.ID})
		require.NoError(t, err)

		assert.Equal(t, domain.TaskStatusPending, merge.Status)
		assert.Equal(t, domain.TaskSourceMerge, merge.SourceType)
		assert.Equal(t, []uuid.UUID{a.ID, b.ID}, merge.MergeSourceTaskIDs)

		// Sources are untouched until the merge task is accepted.
		assert.Equal(t, domain.TaskStatusAccepted, f.tasks.Task(a.ID).Status)
	})
}

func TestMergeAcceptance(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*serviceFixture, *domain.Task, *domain.Task, *domain.Task) {
		f := newFixture()
		a := seedTask(t, f, domain.TaskSourceChat, domain.TaskStatusAccepted)
		b := seedTask(t, f, domain.TaskSourceNote, domain.TaskStatusAccepted)
		merge, err := f.service.CreateMergeTask(ctx, "Merged", "", []uuid.UUID{a.ID, b.ID})
		require.NoError(t, err)
		return f, merge, a, b
	}

	t.Run("sources complete and point at the target", func(t *testing.T) {
		f, merge, a, b := setup(t)

		accepted, err := f.service.Accept(ctx, merge.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusAccepted, accepted.Status)

		for _, id := range []uuid.UUID{a.ID, b.ID} {
			source := f.tasks.Task(id)
			assert.Equal(t, domain.TaskStatusCompleted, source.Status)
			require.NotNil(t, source.MergeTargetTaskID)
			assert.Equal(t, merge.ID, *source.MergeTargetTaskID)
			assert.NotNil(t, source.MergedAt)
			assert.NotNil(t, source.CompletedAt)
		}
	})

	t.Run("dependents are redirected to the target", func(t *testing.T) {
		f, merge, a, _ := setup(t)
		outsider := seedTask(t, f, domain.TaskSourceChat, domain.TaskStatusAccepted)
		mustEdge(t, f, outsider.ID, a.ID)

		_, err := f.service.Accept(ctx, merge.ID)
		require.NoError(t, err)

		assert.True(t, f.deps.Has(outsider.ID, merge.ID))
		assert.False(t, f.deps.Has(outsider.ID, a.ID))
	})

	t.Run("redirect skips an existing edge", func(t *testing.T) {
		f, merge, a, b := setup(t)
		outsider := seedTask(t, f, domain.TaskSourceChat, domain.TaskStatusAccepted)
		mustEdge(t, f, outsider.ID, a.ID)
		mustEdge(t, f, outsider.ID, b.ID)

		_, err := f.service.Accept(ctx, merge.ID)
		require.NoError(t, err)

		// Both source edges collapse into a single edge to the target.
		assert.True(t, f.deps.Has(outsider.ID, merge.ID))
		require.Len(t, f.deps.Edges, 1)
	})

	t.Run("target and sibling edges are dropped", func(t *testing.T) {
		f, merge, a, b := setup(t)
		mustEdge(t, f, merge.ID, a.ID) // would become a self-loop
		mustEdge(t, f, b.ID, a.ID)     // sibling source depends on source

		_, err := f.service.Accept(ctx, merge.ID)
		require.NoError(t, err)

		assert.Empty(t, f.deps.Edges)
	})

	t.Run("outgoing edges of sources are deleted", func(t *testing.T) {
		f, merge, a, _ := setup(t)
		blocker := seedTask(t, f, domain.TaskSourceChat, domain.TaskStatusAccepted)
		mustEdge(t, f, a.ID, blocker.ID)

		_, err := f.service.Accept(ctx, merge.ID)
		require.NoError(t, err)

		assert.Empty(t, f.deps.Edges)
	})
}

func TestAddDependency(t *testing.T) {
	ctx := context.Background()

	t.Run("creates a manual edge", func(t *testing.T) {
		f := newFixture()
		a := seedTask(t, f, domain.TaskSourceChat, domain.TaskStatusAccepted)
		b := seedTask(t, f, domain.TaskSourceNote, domain.TaskStatusAccepted)

		dep, err := f.service.AddDependency(ctx, a.ID, b.ID, domain.DependencyBlocks, "b first")
		require.NoError(t, err)
		require.NotNil(t, dep)
		assert.Equal(t, domain.DependencySourceManual, dep.SourceType)
		assert.Equal(t, 1.0, dep.Confidence)
	})

	t.Run("duplicate edge is a quiet no-op", func(t *testing.T) {
		f := newFixture()
		a := seedTask(t, f, domain.TaskSourceChat, domain.TaskStatusAccepted)
		b := seedTask(t, f, domain.TaskSourceNote, domain.TaskStatusAccepted)

		_, err := f.service.AddDependency(ctx, a.ID, b.ID, domain.DependencyBlocks, "")
		require.NoError(t, err)

		dep, err := f.service.AddDependency(ctx, a.ID, b.ID, domain.DependencyBlocks, "")
		require.NoError(t, err)
		assert.Nil(t, dep)
		assert.Len(t, f.deps.Edges, 1)
	})

	t.Run("self loop refused", func(t *testing.T) {
		f := newFixture()
		a := seedTask(t, f, domain.TaskSourceChat, domain.TaskStatusAccepted)

		_, err := f.service.AddDependency(ctx, a.ID, a.ID, domain.DependencyBlocks, "")
		assert.ErrorIs(t, err, domain.ErrSelfDependency)
	})

	t.Run("both endpoints must exist", func(t *testing.T) {
		f := newFixture()
		a := seedTask(t, f, domain.TaskSourceChat, domain.TaskStatusAccepted)

		_, err := f.service.AddDependency(ctx, a.ID, uuid.New(), domain.DependencyBlocks, "")
		assert.True(t, store.IsNotFoundError(err))
	})
}

func TestRemoveDependency(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	a := seedTask(t, f, domain.TaskSourceChat, domain.TaskStatusAccepted)
	b := seedTask(t, f, domain.TaskSourceNote, domain.TaskStatusAccepted)
	dep := mustEdge(t, f, a.ID, b.ID)

	require.NoError(t, f.service.RemoveDependency(ctx, dep.ID))
	assert.Empty(t, f.deps.Edges)

	err := f.service.RemoveDependency(ctx, dep.ID)
	assert.True(t, store.IsNotFoundError(err))
}
