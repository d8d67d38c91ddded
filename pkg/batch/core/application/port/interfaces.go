// Package port declares the contracts between the engine and the pluggable parts of a job:
// item readers, processors and writers, steps, jobs and listeners.
package port

import (
	"context"
	"errors"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
)

// ErrItemFiltered is returned by an ItemProcessor to drop an item without failing.
// A filtered item counts as read but neither written nor skipped.
var ErrItemFiltered = errors.New("item filtered")

// ItemReader produces a lazy, finite sequence of items.
//
// Read returns io.EOF once the sequence is exhausted. Readers used by restartable steps
// must restore their position from the ExecutionContext passed to Open and keep it
// current in the context returned by GetExecutionContext.
type ItemReader[I any] interface {
	Open(ctx context.Context, ec model.ExecutionContext) error
	Read(ctx context.Context) (I, error)
	Close(ctx context.Context) error
	GetExecutionContext(ctx context.Context) (model.ExecutionContext, error)
}

// ItemProcessor maps one input item to zero or one output item.
// Return ErrItemFiltered to drop the item.
type ItemProcessor[I, O any] interface {
	Process(ctx context.Context, item I) (O, error)
}

// ItemWriter persists a whole chunk as one unit. When the step runs with a
// transaction manager, the chunk transaction is available through tx.TxFromContext.
type ItemWriter[O any] interface {
	Open(ctx context.Context, ec model.ExecutionContext) error
	Write(ctx context.Context, items []O) error
	Close(ctx context.Context) error
	GetExecutionContext(ctx context.Context) (model.ExecutionContext, error)
}

// Step is one configured execution unit of a job.
//
// Execute drives stepExecution from STARTING to a terminal status and persists its progress.
// It returns the fault that failed the step, or nil when the step COMPLETED or STOPPED.
type Step interface {
	StepName() string
	Execute(ctx context.Context, stepExecution *model.StepExecution) error
}

// Job is a composition of steps run for one JobExecution.
type Job interface {
	JobName() string
	Run(ctx context.Context, execution *model.JobExecution) error
}

// RunIDGenerator mints run identifiers for fresh launches.
type RunIDGenerator interface {
	Next(ctx context.Context, jobName string) (string, error)
}

// JobExecutionListener observes job boundaries. Errors are logged and never change the job status.
type JobExecutionListener interface {
	BeforeJob(ctx context.Context, execution *model.JobExecution) error
	AfterJob(ctx context.Context, execution *model.JobExecution) error
}

// StepExecutionListener observes step boundaries. Errors are logged and never change the step status.
type StepExecutionListener interface {
	BeforeStep(ctx context.Context, stepExecution *model.StepExecution) error
	AfterStep(ctx context.Context, stepExecution *model.StepExecution) error
}

// ChunkListener observes chunk transactions.
type ChunkListener interface {
	BeforeChunk(ctx context.Context, stepExecution *model.StepExecution)
	AfterChunk(ctx context.Context, stepExecution *model.StepExecution)
	AfterChunkError(ctx context.Context, stepExecution *model.StepExecution, err error)
}

// SkipListener is told about every skipped item.
type SkipListener interface {
	OnSkipInRead(ctx context.Context, err error)
	OnSkipInProcess(ctx context.Context, item interface{}, err error)
}

// RetryListener is told about every retry before it happens.
type RetryListener interface {
	OnRetry(ctx context.Context, module string, attempt int, err error)
}
