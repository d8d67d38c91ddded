package usecase

import (
	"context"
	"fmt"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/repository"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// SimpleJobExplorer is a simple implementation of the JobExplorer interface.
// It queries batch metadata using a JobRepository.
type SimpleJobExplorer struct {
	jobRepository repository.JobRepository
}

// Verify that SimpleJobExplorer implements the JobExplorer interface.
var _ JobExplorer = (*SimpleJobExplorer)(nil)

// NewSimpleJobExplorer creates a new instance of SimpleJobExplorer.
func NewSimpleJobExplorer(jobRepository repository.JobRepository) *SimpleJobExplorer {
	return &SimpleJobExplorer{jobRepository: jobRepository}
}

// GetJobExecution retrieves a JobExecution by its ID.
func (e *SimpleJobExplorer) GetJobExecution(ctx context.Context, executionID string) (*model.JobExecution, error) {
	jobExecution, err := e.jobRepository.FindJobExecutionByID(ctx, executionID)
	if err != nil {
		return nil, exception.NewBatchError(exception.ModuleLauncher, fmt.Sprintf("failed to retrieve JobExecution (ID: %s)", executionID), err, false, false)
	}
	logger.Debugf("Retrieved JobExecution (ID: %s) from JobRepository.", executionID)
	return jobExecution, nil
}

// GetLastJobExecution retrieves the latest execution of jobName.
func (e *SimpleJobExplorer) GetLastJobExecution(ctx context.Context, jobName string) (*model.JobExecution, error) {
	jobExecution, err := e.jobRepository.FindLastJobExecution(ctx, jobName)
	if err != nil {
		return nil, exception.NewBatchError(exception.ModuleLauncher, fmt.Sprintf("failed to retrieve the last execution of job '%s'", jobName), err, false, false)
	}
	return jobExecution, nil
}

// GetRunIDs lists the run ids used by jobName.
func (e *SimpleJobExplorer) GetRunIDs(ctx context.Context, jobName string) ([]string, error) {
	runIDs, err := e.jobRepository.FindRunIDs(ctx, jobName)
	if err != nil {
		return nil, exception.NewBatchError(exception.ModuleLauncher, fmt.Sprintf("failed to list run ids of job '%s'", jobName), err, false, false)
	}
	return runIDs, nil
}
