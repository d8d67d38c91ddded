// Package metrics declares the observability hooks called by the engine.
// Implementations live in infrastructure/metrics; the no-op versions here are the defaults.
package metrics

import (
	"context"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
)

// Item phases used as labels.
const (
	PhaseRead    = "read"
	PhaseProcess = "process"
	PhaseWrite   = "write"
)

// MetricRecorder receives counters and durations from jobs and steps.
type MetricRecorder interface {
	RecordJobStart(ctx context.Context, execution *model.JobExecution)
	RecordJobEnd(ctx context.Context, execution *model.JobExecution)
	RecordStepStart(ctx context.Context, execution *model.StepExecution)
	RecordStepEnd(ctx context.Context, execution *model.StepExecution)
	RecordItemRead(ctx context.Context, execution *model.StepExecution, count int)
	RecordItemFilter(ctx context.Context, execution *model.StepExecution, count int)
	RecordItemWrite(ctx context.Context, execution *model.StepExecution, count int)
	RecordItemSkip(ctx context.Context, execution *model.StepExecution, phase string)
	RecordItemRetry(ctx context.Context, execution *model.StepExecution, phase string)
	RecordChunkCommit(ctx context.Context, execution *model.StepExecution, size int)
	RecordChunkRollback(ctx context.Context, execution *model.StepExecution)
}
