package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/metrics"
)

// TracerName is the instrumentation scope of the spans created here.
const TracerName = "github.com/tigerroll/chunkbatch"

// OTelTracer is an implementation of metrics.Tracer using OpenTelemetry.
// Job spans are parents of step spans, which are parents of chunk spans.
type OTelTracer struct {
	tracer trace.Tracer
}

var _ metrics.Tracer = (*OTelTracer)(nil)

// NewOTelTracer creates a tracer from provider.
func NewOTelTracer(provider trace.TracerProvider) *OTelTracer {
	return &OTelTracer{tracer: provider.Tracer(TracerName)}
}

// StartJobSpan starts a span for a JobExecution. The span status follows the execution status
// when the returned function is called.
func (t *OTelTracer) StartJobSpan(ctx context.Context, execution *model.JobExecution) (context.Context, func()) {
	ctx, span := t.tracer.Start(ctx, "job "+execution.JobName, trace.WithAttributes(
		attribute.String("job.name", execution.JobName),
		attribute.String("job.run_id", execution.RunID),
		attribute.String("job.execution_id", execution.ID),
		attribute.Int("job.restart_count", execution.RestartCount),
	))
	return ctx, func() {
		span.SetAttributes(attribute.String("job.status", execution.Status.String()))
		setStatus(span, execution.Status, execution.ExitDescription)
		span.End()
	}
}

// StartStepSpan starts a span for a StepExecution.
func (t *OTelTracer) StartStepSpan(ctx context.Context, execution *model.StepExecution) (context.Context, func()) {
	ctx, span := t.tracer.Start(ctx, "step "+execution.StepName, trace.WithAttributes(
		attribute.String("job.name", execution.JobName),
		attribute.String("step.name", execution.StepName),
		attribute.String("step.execution_id", execution.ID),
	))
	return ctx, func() {
		span.SetAttributes(
			attribute.String("step.status", execution.Status.String()),
			attribute.Int("step.read_count", execution.ReadCount),
			attribute.Int("step.write_count", execution.WriteCount),
			attribute.Int("step.skip_count", execution.ReadSkipCount+execution.ProcessSkipCount),
			attribute.Int("step.commit_count", execution.CommitCount),
		)
		setStatus(span, execution.Status, execution.ExitDescription)
		span.End()
	}
}

// StartChunkSpan starts a span for one chunk of a step.
func (t *OTelTracer) StartChunkSpan(ctx context.Context, execution *model.StepExecution, chunk int) (context.Context, func()) {
	ctx, span := t.tracer.Start(ctx, fmt.Sprintf("chunk %s#%d", execution.StepName, chunk), trace.WithAttributes(
		attribute.String("step.name", execution.StepName),
		attribute.Int("chunk.number", chunk),
	))
	return ctx, func() { span.End() }
}

// RecordError records err on the span in ctx.
func (t *OTelTracer) RecordError(ctx context.Context, module string, err error) {
	span := trace.SpanFromContext(ctx)
	span.RecordError(err, trace.WithAttributes(attribute.String("batch.module", module)))
	span.SetStatus(codes.Error, err.Error())
}

// RecordEvent adds an event to the span in ctx.
func (t *OTelTracer) RecordEvent(ctx context.Context, name string, attributes map[string]interface{}) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(toAttributes(attributes)...))
}

func setStatus(span trace.Span, status model.BatchStatus, description string) {
	switch status {
	case model.BatchStatusCompleted:
		span.SetStatus(codes.Ok, "")
	case model.BatchStatusFailed:
		span.SetStatus(codes.Error, description)
	}
}

func toAttributes(values map[string]interface{}) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(values))
	for k, v := range values {
		switch val := v.(type) {
		case string:
			attrs = append(attrs, attribute.String(k, val))
		case int:
			attrs = append(attrs, attribute.Int(k, val))
		case int64:
			attrs = append(attrs, attribute.Int64(k, val))
		case bool:
			attrs = append(attrs, attribute.Bool(k, val))
		case float64:
			attrs = append(attrs, attribute.Float64(k, val))
		default:
			attrs = append(attrs, attribute.String(k, fmt.Sprint(val)))
		}
	}
	return attrs
}
