package repository

import (
	"context"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
)

// JobExecution persists job execution records.
type JobExecution interface {
	// CreateJobExecution creates and persists a fresh execution in STARTING status.
	// It fails with ErrRunIDCollision if any execution of jobName already uses runID.
	CreateJobExecution(ctx context.Context, jobName, runID string, params model.JobParameters) (*model.JobExecution, error)

	// SaveJobExecution persists a new execution built by the caller, typically a restart attempt,
	// together with the step executions it carries.
	SaveJobExecution(ctx context.Context, execution *model.JobExecution) error

	// UpdateJobExecution persists status and context changes of an existing execution.
	UpdateJobExecution(ctx context.Context, execution *model.JobExecution) error

	// MarkTerminal moves execution to a terminal status and persists it.
	MarkTerminal(ctx context.Context, execution *model.JobExecution, status model.BatchStatus, exitDescription string) error

	// FindJobExecutionByID loads an execution and its step executions.
	FindJobExecutionByID(ctx context.Context, executionID string) (*model.JobExecution, error)

	// FindLastJobExecution returns the most recently created execution of jobName.
	FindLastJobExecution(ctx context.Context, jobName string) (*model.JobExecution, error)

	// FindLastJobExecutionByRunID returns the most recent attempt of jobName for runID.
	FindLastJobExecutionByRunID(ctx context.Context, jobName, runID string) (*model.JobExecution, error)

	// FindRunIDs lists the distinct run ids used by jobName.
	FindRunIDs(ctx context.Context, jobName string) ([]string, error)
}
