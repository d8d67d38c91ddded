package metrics

import (
	"context"

	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/metrics"
)

// OTelRecorder records job and step metrics through an OpenTelemetry meter.
type OTelRecorder struct {
	jobRuns      metric.Int64Counter
	jobDuration  metric.Float64Histogram
	stepRuns     metric.Int64Counter
	stepDuration metric.Float64Histogram
	itemsRead    metric.Int64Counter
	itemsWritten metric.Int64Counter
	itemsFilter  metric.Int64Counter
	itemSkips    metric.Int64Counter
	itemRetries  metric.Int64Counter
	commits      metric.Int64Counter
	rollbacks    metric.Int64Counter
}

var _ metrics.MetricRecorder = (*OTelRecorder)(nil)

// NewOTelRecorder creates the instruments on meter.
func NewOTelRecorder(meter metric.Meter) (*OTelRecorder, error) {
	var errs *multierror.Error
	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		errs = multierror.Append(errs, err)
		return c
	}
	histogram := func(name, desc string) metric.Float64Histogram {
		h, err := meter.Float64Histogram(name, metric.WithDescription(desc), metric.WithUnit("s"))
		errs = multierror.Append(errs, err)
		return h
	}

	r := &OTelRecorder{
		jobRuns:      counter("batch.job.executions", "Job executions by status."),
		jobDuration:  histogram("batch.job.duration", "Duration of job executions."),
		stepRuns:     counter("batch.step.executions", "Step executions by status."),
		stepDuration: histogram("batch.step.duration", "Duration of step executions."),
		itemsRead:    counter("batch.step.items.read", "Records read, including skipped and filtered ones."),
		itemsWritten: counter("batch.step.items.written", "Items written."),
		itemsFilter:  counter("batch.step.items.filtered", "Items filtered by a processor."),
		itemSkips:    counter("batch.step.items.skipped", "Items skipped by phase."),
		itemRetries:  counter("batch.step.items.retried", "Item retries by phase."),
		commits:      counter("batch.step.chunks.committed", "Committed chunks."),
		rollbacks:    counter("batch.step.chunks.rolled_back", "Rolled back chunks."),
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	return r, nil
}

func stepAttrs(se *model.StepExecution, extra ...attribute.KeyValue) metric.MeasurementOption {
	attrs := append([]attribute.KeyValue{
		attribute.String("job.name", se.JobName),
		attribute.String("step.name", se.StepName),
	}, extra...)
	return metric.WithAttributes(attrs...)
}

func (r *OTelRecorder) RecordJobStart(ctx context.Context, execution *model.JobExecution) {
	r.jobRuns.Add(ctx, 1, metric.WithAttributes(
		attribute.String("job.name", execution.JobName),
		attribute.String("status", execution.Status.String()),
	))
}

func (r *OTelRecorder) RecordJobEnd(ctx context.Context, execution *model.JobExecution) {
	attrs := metric.WithAttributes(
		attribute.String("job.name", execution.JobName),
		attribute.String("status", execution.Status.String()),
	)
	r.jobRuns.Add(ctx, 1, attrs)
	if execution.StartTime != nil && execution.EndTime != nil {
		r.jobDuration.Record(ctx, execution.EndTime.Sub(*execution.StartTime).Seconds(), attrs)
	}
}

func (r *OTelRecorder) RecordStepStart(ctx context.Context, execution *model.StepExecution) {
	r.stepRuns.Add(ctx, 1, stepAttrs(execution, attribute.String("status", execution.Status.String())))
}

func (r *OTelRecorder) RecordStepEnd(ctx context.Context, execution *model.StepExecution) {
	attrs := stepAttrs(execution, attribute.String("status", execution.Status.String()))
	r.stepRuns.Add(ctx, 1, attrs)
	if execution.StartTime != nil && execution.EndTime != nil {
		r.stepDuration.Record(ctx, execution.EndTime.Sub(*execution.StartTime).Seconds(), attrs)
	}
}

func (r *OTelRecorder) RecordItemRead(ctx context.Context, execution *model.StepExecution, count int) {
	r.itemsRead.Add(ctx, int64(count), stepAttrs(execution))
}

func (r *OTelRecorder) RecordItemFilter(ctx context.Context, execution *model.StepExecution, count int) {
	r.itemsFilter.Add(ctx, int64(count), stepAttrs(execution))
}

func (r *OTelRecorder) RecordItemWrite(ctx context.Context, execution *model.StepExecution, count int) {
	r.itemsWritten.Add(ctx, int64(count), stepAttrs(execution))
}

func (r *OTelRecorder) RecordItemSkip(ctx context.Context, execution *model.StepExecution, phase string) {
	r.itemSkips.Add(ctx, 1, stepAttrs(execution, attribute.String("phase", phase)))
}

func (r *OTelRecorder) RecordItemRetry(ctx context.Context, execution *model.StepExecution, phase string) {
	r.itemRetries.Add(ctx, 1, stepAttrs(execution, attribute.String("phase", phase)))
}

func (r *OTelRecorder) RecordChunkCommit(ctx context.Context, execution *model.StepExecution, size int) {
	r.commits.Add(ctx, 1, stepAttrs(execution))
}

func (r *OTelRecorder) RecordChunkRollback(ctx context.Context, execution *model.StepExecution) {
	r.rollbacks.Add(ctx, 1, stepAttrs(execution))
}
