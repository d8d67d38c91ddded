package inmemory

import (
	"context"
	"fmt"
	"time"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/repository"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
)

// SaveStepExecution persists a new StepExecution.
// It returns an error if a StepExecution with the same ID already exists.
func (r *InMemoryJobRepository) SaveStepExecution(ctx context.Context, stepExecution *model.StepExecution) error {
	unlock := r.locks.Lock(stepExecution.JobExecutionID)
	defer unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.insertStep(stepExecution)
}

func (r *InMemoryJobRepository) insertStep(stepExecution *model.StepExecution) error {
	if _, exists := r.stepExecutions[stepExecution.ID]; exists {
		return exception.NewRepositoryError(fmt.Sprintf("StepExecution with ID %s already exists", stepExecution.ID), nil)
	}
	r.stepExecutions[stepExecution.ID] = stepExecution.Clone()
	r.stepOrder[stepExecution.JobExecutionID] = append(r.stepOrder[stepExecution.JobExecutionID], stepExecution.ID)
	return nil
}

// UpdateStepProgress persists counters, committed position and execution context after a chunk commit.
func (r *InMemoryJobRepository) UpdateStepProgress(ctx context.Context, stepExecution *model.StepExecution) error {
	return r.updateStep(stepExecution)
}

// UpdateStepExecution persists the status of a StepExecution.
func (r *InMemoryJobRepository) UpdateStepExecution(ctx context.Context, stepExecution *model.StepExecution) error {
	return r.updateStep(stepExecution)
}

func (r *InMemoryJobRepository) updateStep(stepExecution *model.StepExecution) error {
	unlock := r.locks.Lock(stepExecution.JobExecutionID)
	defer unlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.stepExecutions[stepExecution.ID]
	if !exists {
		return exception.NewRepositoryError(fmt.Sprintf("StepExecution with ID %s not found for update", stepExecution.ID), repository.ErrStepExecutionNotFound)
	}
	if stored.Version != stepExecution.Version {
		return exception.NewRepositoryError(
			fmt.Sprintf("StepExecution %s was modified concurrently (version %d, expected %d)", stepExecution.ID, stepExecution.Version, stored.Version),
			exception.ErrOptimisticLockingFailure)
	}
	stepExecution.Version++
	stepExecution.LastUpdated = time.Now()
	r.stepExecutions[stepExecution.ID] = stepExecution.Clone()
	return nil
}

// FindStepExecutionByID finds a StepExecution by its ID.
func (r *InMemoryJobRepository) FindStepExecutionByID(ctx context.Context, id string) (*model.StepExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stepExecution, ok := r.stepExecutions[id]
	if !ok {
		return nil, repository.ErrStepExecutionNotFound
	}
	return stepExecution.Clone(), nil
}
