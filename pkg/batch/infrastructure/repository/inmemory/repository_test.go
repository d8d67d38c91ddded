package inmemory_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/repository"
	"github.com/tigerroll/chunkbatch/pkg/batch/infrastructure/repository/inmemory"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
)

func TestInMemoryJobRepository_CreateAndFind(t *testing.T) {
	ctx := context.Background()
	repo := inmemory.NewInMemoryJobRepository()

	je, err := repo.CreateJobExecution(ctx, "importUserJob", "1", model.JobParameters{"input.file": "people.csv"})
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusStarting, je.Status)

	_, err = repo.CreateJobExecution(ctx, "importUserJob", "1", nil)
	assert.ErrorIs(t, err, repository.ErrRunIDCollision)
	_, err = repo.CreateJobExecution(ctx, "otherJob", "1", nil)
	assert.NoError(t, err, "run ids are scoped per job")

	found, err := repo.FindJobExecutionByID(ctx, je.ID)
	require.NoError(t, err)
	assert.Equal(t, "people.csv", found.Parameters["input.file"])
	found.Status = model.BatchStatusFailed
	again, err := repo.FindJobExecutionByID(ctx, je.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusStarting, again.Status, "callers never share state with the repository")

	_, err = repo.FindJobExecutionByID(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrJobExecutionNotFound)
	_, err = repo.FindLastJobExecutionByRunID(ctx, "importUserJob", "2")
	assert.ErrorIs(t, err, repository.ErrJobExecutionNotFound)
}

func TestInMemoryJobRepository_VersionedUpdates(t *testing.T) {
	ctx := context.Background()
	repo := inmemory.NewInMemoryJobRepository()
	je, err := repo.CreateJobExecution(ctx, "job", "1", nil)
	require.NoError(t, err)

	stale := je.Clone()
	require.NoError(t, je.MarkAsStarted())
	require.NoError(t, repo.UpdateJobExecution(ctx, je))
	assert.Equal(t, 1, je.Version)

	require.NoError(t, stale.MarkAsStarted())
	err = repo.UpdateJobExecution(ctx, stale)
	assert.ErrorIs(t, err, exception.ErrOptimisticLockingFailure)
	assert.True(t, exception.IsRepositoryError(err))

	require.NoError(t, repo.MarkTerminal(ctx, je, model.BatchStatusCompleted, "COMPLETED"))
	found, err := repo.FindLastJobExecution(ctx, "job")
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusCompleted, found.Status)
	assert.NotNil(t, found.EndTime)
}

func TestInMemoryJobRepository_StepProgressAndRestart(t *testing.T) {
	ctx := context.Background()
	repo := inmemory.NewInMemoryJobRepository()
	je, err := repo.CreateJobExecution(ctx, "job", "1", nil)
	require.NoError(t, err)

	for _, name := range []string{"step1", "step2"} {
		se := model.NewStepExecution(je, name)
		require.NoError(t, repo.SaveStepExecution(ctx, se))
		je.AddStepExecution(se)
	}
	step2, _ := je.StepExecution("step2")
	require.NoError(t, step2.MarkAsStarted())
	step2.ReadCount, step2.WriteCount, step2.CommitCount, step2.CommittedPosition = 10, 10, 1, 10
	require.NoError(t, repo.UpdateStepProgress(ctx, step2))
	require.NoError(t, step2.MarkTerminal(model.BatchStatusFailed, "sink down"))
	require.NoError(t, repo.UpdateStepExecution(ctx, step2))
	require.NoError(t, je.MarkAsStarted())
	require.NoError(t, repo.UpdateJobExecution(ctx, je))
	require.NoError(t, repo.MarkTerminal(ctx, je, model.BatchStatusFailed, "step 'step2' failed: sink down"))

	last, err := repo.FindLastJobExecutionByRunID(ctx, "job", "1")
	require.NoError(t, err)
	require.Len(t, last.StepExecutions, 2)
	assert.Equal(t, "step1", last.StepExecutions[0].StepName, "steps keep insertion order")
	assert.Equal(t, 10, last.StepExecutions[1].CommittedPosition)

	next := model.NewRestartExecution(last)
	require.NoError(t, repo.SaveJobExecution(ctx, next))
	assert.Error(t, repo.SaveJobExecution(ctx, next), "duplicate id")

	latest, err := repo.FindLastJobExecutionByRunID(ctx, "job", "1")
	require.NoError(t, err)
	assert.Equal(t, next.ID, latest.ID)
	assert.Equal(t, 1, latest.RestartCount)
	require.Len(t, latest.StepExecutions, 2)
	assert.Equal(t, 10, latest.StepExecutions[1].CommittedPosition)

	runIDs, err := repo.FindRunIDs(ctx, "job")
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, runIDs)

	found, err := repo.FindStepExecutionByID(ctx, step2.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusFailed, found.Status)
	_, err = repo.FindStepExecutionByID(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrStepExecutionNotFound)
	assert.NoError(t, repo.Close())
}

func TestInMemoryJobRepository_ConcurrentExecutions(t *testing.T) {
	ctx := context.Background()
	repo := inmemory.NewInMemoryJobRepository()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		je, err := repo.CreateJobExecution(ctx, "job", string(rune('a'+i)), nil)
		require.NoError(t, err)
		se := model.NewStepExecution(je, "step")
		require.NoError(t, repo.SaveStepExecution(ctx, se))
		require.NoError(t, se.MarkAsStarted())

		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := 1; n <= 20; n++ {
				se.ReadCount, se.WriteCount = n, n
				assert.NoError(t, repo.UpdateStepProgress(ctx, se))
			}
		}()
	}
	wg.Wait()

	runIDs, err := repo.FindRunIDs(ctx, "job")
	require.NoError(t, err)
	assert.Len(t, runIDs, 8)
}
