package inmemory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/repository"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
)

// CreateJobExecution creates a fresh STARTING execution for runID.
// It returns ErrRunIDCollision if jobName already has an execution with that run id.
func (r *InMemoryJobRepository) CreateJobExecution(ctx context.Context, jobName, runID string, params model.JobParameters) (*model.JobExecution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, je := range r.jobExecutions {
		if je.JobName == jobName && je.RunID == runID {
			return nil, exception.NewBatchErrorf(exception.ModuleConfig, "job '%s' already has a run with id '%s'", jobName, runID, repository.ErrRunIDCollision)
		}
	}
	je := model.NewJobExecution(jobName, runID, params)
	r.jobExecutions[je.ID] = je.Clone()
	return je, nil
}

// SaveJobExecution persists a new JobExecution and the step executions it carries.
// It returns an error if a JobExecution with the same ID already exists.
func (r *InMemoryJobRepository) SaveJobExecution(ctx context.Context, jobExecution *model.JobExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobExecutions[jobExecution.ID]; exists {
		return exception.NewRepositoryError(fmt.Sprintf("JobExecution with ID %s already exists", jobExecution.ID), nil)
	}
	stored := jobExecution.Clone()
	stored.StepExecutions = nil
	r.jobExecutions[jobExecution.ID] = stored
	for _, se := range jobExecution.StepExecutions {
		if err := r.insertStep(se); err != nil {
			return err
		}
	}
	return nil
}

// UpdateJobExecution updates an existing JobExecution.
// The stored version must match, otherwise ErrOptimisticLockingFailure is returned.
func (r *InMemoryJobRepository) UpdateJobExecution(ctx context.Context, jobExecution *model.JobExecution) error {
	unlock := r.locks.Lock(jobExecution.ID)
	defer unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updateJob(jobExecution)
}

// MarkTerminal moves the execution to status and persists it.
func (r *InMemoryJobRepository) MarkTerminal(ctx context.Context, jobExecution *model.JobExecution, status model.BatchStatus, exitDescription string) error {
	unlock := r.locks.Lock(jobExecution.ID)
	defer unlock()

	if err := jobExecution.MarkTerminal(status, exitDescription); err != nil {
		return exception.NewRepositoryError("cannot mark job execution terminal", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updateJob(jobExecution)
}

func (r *InMemoryJobRepository) updateJob(jobExecution *model.JobExecution) error {
	stored, exists := r.jobExecutions[jobExecution.ID]
	if !exists {
		return exception.NewRepositoryError(fmt.Sprintf("JobExecution with ID %s not found for update", jobExecution.ID), repository.ErrJobExecutionNotFound)
	}
	if stored.Version != jobExecution.Version {
		return exception.NewRepositoryError(
			fmt.Sprintf("JobExecution %s was modified concurrently (version %d, expected %d)", jobExecution.ID, jobExecution.Version, stored.Version),
			exception.ErrOptimisticLockingFailure)
	}
	jobExecution.Version++
	jobExecution.LastUpdated = time.Now()
	clone := jobExecution.Clone()
	clone.StepExecutions = nil
	r.jobExecutions[jobExecution.ID] = clone
	return nil
}

// FindJobExecutionByID finds a JobExecution by its ID.
// It also loads and associates all related StepExecutions with the JobExecution object.
func (r *InMemoryJobRepository) FindJobExecutionByID(ctx context.Context, id string) (*model.JobExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	je, ok := r.jobExecutions[id]
	if !ok {
		return nil, repository.ErrJobExecutionNotFound
	}
	return r.withSteps(je), nil
}

// FindLastJobExecution returns the most recently created execution of jobName.
func (r *InMemoryJobRepository) FindLastJobExecution(ctx context.Context, jobName string) (*model.JobExecution, error) {
	return r.findLast(func(je *model.JobExecution) bool { return je.JobName == jobName })
}

// FindLastJobExecutionByRunID returns the latest attempt of runID.
func (r *InMemoryJobRepository) FindLastJobExecutionByRunID(ctx context.Context, jobName, runID string) (*model.JobExecution, error) {
	return r.findLast(func(je *model.JobExecution) bool { return je.JobName == jobName && je.RunID == runID })
}

// FindRunIDs lists the run ids of jobName ordered by first creation.
func (r *InMemoryJobRepository) FindRunIDs(ctx context.Context, jobName string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var executions []*model.JobExecution
	for _, je := range r.jobExecutions {
		if je.JobName == jobName {
			executions = append(executions, je)
		}
	}
	sort.Slice(executions, func(i, j int) bool {
		return executions[i].CreateTime.Before(executions[j].CreateTime)
	})
	seen := make(map[string]bool)
	runIDs := make([]string, 0, len(executions))
	for _, je := range executions {
		if !seen[je.RunID] {
			seen[je.RunID] = true
			runIDs = append(runIDs, je.RunID)
		}
	}
	return runIDs, nil
}

func (r *InMemoryJobRepository) findLast(match func(*model.JobExecution) bool) (*model.JobExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest *model.JobExecution
	for _, je := range r.jobExecutions {
		if !match(je) {
			continue
		}
		// RestartCount breaks ties between executions created within the same clock tick.
		if latest == nil || je.CreateTime.After(latest.CreateTime) ||
			(je.CreateTime.Equal(latest.CreateTime) && je.RestartCount > latest.RestartCount) {
			latest = je
		}
	}
	if latest == nil {
		return nil, repository.ErrJobExecutionNotFound
	}
	return r.withSteps(latest), nil
}

// withSteps returns a copy of je with its step executions attached in insertion order.
func (r *InMemoryJobRepository) withSteps(je *model.JobExecution) *model.JobExecution {
	clone := je.Clone()
	clone.StepExecutions = make([]*model.StepExecution, 0, len(r.stepOrder[je.ID]))
	for _, id := range r.stepOrder[je.ID] {
		if se, ok := r.stepExecutions[id]; ok {
			clone.StepExecutions = append(clone.StepExecutions, se.Clone())
		}
	}
	return clone
}
