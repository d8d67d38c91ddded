package metrics

import (
	"context"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
)

// Tracer opens spans around jobs, steps and chunks.
// The returned function ends the span; it must be called exactly once.
type Tracer interface {
	StartJobSpan(ctx context.Context, execution *model.JobExecution) (context.Context, func())
	StartStepSpan(ctx context.Context, execution *model.StepExecution) (context.Context, func())
	StartChunkSpan(ctx context.Context, execution *model.StepExecution, chunk int) (context.Context, func())
	RecordError(ctx context.Context, module string, err error)
	RecordEvent(ctx context.Context, name string, attributes map[string]interface{})
}
