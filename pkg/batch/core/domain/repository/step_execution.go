package repository

import (
	"context"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
)

// StepExecution persists step execution records.
type StepExecution interface {
	// SaveStepExecution persists a new step execution.
	SaveStepExecution(ctx context.Context, stepExecution *model.StepExecution) error

	// UpdateStepProgress persists counters, committed position and context after a chunk commit.
	// It is the single durability point for restart and must only be called once the chunk is committed.
	UpdateStepProgress(ctx context.Context, stepExecution *model.StepExecution) error

	// UpdateStepExecution persists status changes of a step execution.
	UpdateStepExecution(ctx context.Context, stepExecution *model.StepExecution) error

	// FindStepExecutionByID loads a step execution.
	FindStepExecutionByID(ctx context.Context, id string) (*model.StepExecution, error)
}
