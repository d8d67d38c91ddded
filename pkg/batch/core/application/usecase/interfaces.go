// Package usecase holds the entry points that start, stop and inspect job runs.
package usecase

import (
	"context"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
)

// JobLauncher starts job runs. runID selects the run: an empty runID mints a fresh one,
// an existing non-COMPLETED run is restarted, and a COMPLETED run is returned unchanged.
type JobLauncher interface {
	// Launch runs the job and blocks until it reaches a terminal status.
	// The returned error reports a failure of the launch itself; the outcome of the job
	// is the status of the returned execution.
	Launch(ctx context.Context, job port.Job, runID string, params model.JobParameters, listeners ...port.JobExecutionListener) (*model.JobExecution, error)

	// Start runs the job in the background and returns a handle to wait for or stop it.
	Start(ctx context.Context, job port.Job, runID string, params model.JobParameters, listeners ...port.JobExecutionListener) (*JobHandle, error)

	// Stop asks a running execution to stop at the next chunk boundary.
	Stop(ctx context.Context, executionID string) error
}

// JobExplorer queries batch metadata.
type JobExplorer interface {
	// GetJobExecution retrieves a JobExecution and its steps by ID.
	GetJobExecution(ctx context.Context, executionID string) (*model.JobExecution, error)

	// GetLastJobExecution retrieves the latest execution of jobName.
	GetLastJobExecution(ctx context.Context, jobName string) (*model.JobExecution, error)

	// GetRunIDs lists the run ids used by jobName.
	GetRunIDs(ctx context.Context, jobName string) ([]string, error)
}
