package metrics

import (
	"context"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
)

// NoOpMetricRecorder discards everything.
type NoOpMetricRecorder struct{}

// NewNoOpMetricRecorder returns a NoOpMetricRecorder.
func NewNoOpMetricRecorder() MetricRecorder { return NoOpMetricRecorder{} }

func (NoOpMetricRecorder) RecordJobStart(context.Context, *model.JobExecution)           {}
func (NoOpMetricRecorder) RecordJobEnd(context.Context, *model.JobExecution)             {}
func (NoOpMetricRecorder) RecordStepStart(context.Context, *model.StepExecution)         {}
func (NoOpMetricRecorder) RecordStepEnd(context.Context, *model.StepExecution)           {}
func (NoOpMetricRecorder) RecordItemRead(context.Context, *model.StepExecution, int)     {}
func (NoOpMetricRecorder) RecordItemFilter(context.Context, *model.StepExecution, int)   {}
func (NoOpMetricRecorder) RecordItemWrite(context.Context, *model.StepExecution, int)    {}
func (NoOpMetricRecorder) RecordItemSkip(context.Context, *model.StepExecution, string)  {}
func (NoOpMetricRecorder) RecordItemRetry(context.Context, *model.StepExecution, string) {}
func (NoOpMetricRecorder) RecordChunkCommit(context.Context, *model.StepExecution, int)  {}
func (NoOpMetricRecorder) RecordChunkRollback(context.Context, *model.StepExecution)     {}

// NoOpTracer starts no spans.
type NoOpTracer struct{}

// NewNoOpTracer returns a NoOpTracer.
func NewNoOpTracer() Tracer { return NoOpTracer{} }

func (NoOpTracer) StartJobSpan(ctx context.Context, _ *model.JobExecution) (context.Context, func()) {
	return ctx, func() {}
}

func (NoOpTracer) StartStepSpan(ctx context.Context, _ *model.StepExecution) (context.Context, func()) {
	return ctx, func() {}
}

func (NoOpTracer) StartChunkSpan(ctx context.Context, _ *model.StepExecution, _ int) (context.Context, func()) {
	return ctx, func() {}
}

func (NoOpTracer) RecordError(context.Context, string, error) {}

func (NoOpTracer) RecordEvent(context.Context, string, map[string]interface{}) {}

var (
	_ MetricRecorder = NoOpMetricRecorder{}
	_ Tracer         = NoOpTracer{}
)
