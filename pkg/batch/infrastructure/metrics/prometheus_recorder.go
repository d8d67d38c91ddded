package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/metrics"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// PrometheusRecorder is a Prometheus implementation of metrics.MetricRecorder.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	// Job Metrics
	jobDurationSeconds *prometheus.HistogramVec
	jobStatusCounter   *prometheus.CounterVec

	// Step Metrics
	stepDurationSeconds *prometheus.HistogramVec
	stepStatusCounter   *prometheus.CounterVec
	stepReadCount       *prometheus.CounterVec
	stepWriteCount      *prometheus.CounterVec
	stepFilterCount     *prometheus.CounterVec
	stepCommitCount     *prometheus.CounterVec
	stepRollbackCount   *prometheus.CounterVec
	chunkSize           *prometheus.HistogramVec

	// Item Metrics
	itemSkipCounter  *prometheus.CounterVec
	itemRetryCounter *prometheus.CounterVec
}

var _ metrics.MetricRecorder = (*PrometheusRecorder)(nil)

// NewPrometheusRecorder creates a recorder with its own registry, including the Go and
// process collectors.
func NewPrometheusRecorder() *PrometheusRecorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	stepLabels := []string{"job_name", "step_name"}
	r := &PrometheusRecorder{
		registry: registry,
		jobDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "batch_job_duration_seconds",
			Help:    "Duration of batch job executions.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job_name", "status"}),
		jobStatusCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_job_status_total",
			Help: "Total number of batch job executions by status.",
		}, []string{"job_name", "status"}),
		stepDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "batch_step_duration_seconds",
			Help:    "Duration of batch step executions.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job_name", "step_name", "status"}),
		stepStatusCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_step_status_total",
			Help: "Total number of batch step executions by status.",
		}, []string{"job_name", "step_name", "status"}),
		stepReadCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_step_read_total",
			Help: "Total records read by step, including skipped and filtered ones.",
		}, stepLabels),
		stepWriteCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_step_write_total",
			Help: "Total items written by step.",
		}, stepLabels),
		stepFilterCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_step_filter_total",
			Help: "Total items filtered by step.",
		}, stepLabels),
		stepCommitCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_step_commit_total",
			Help: "Total chunk commits by step.",
		}, stepLabels),
		stepRollbackCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_step_rollback_total",
			Help: "Total chunk rollbacks by step.",
		}, stepLabels),
		chunkSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "batch_chunk_items",
			Help:    "Items written per committed chunk.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}, stepLabels),
		itemSkipCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_item_skip_total",
			Help: "Total items skipped by step and phase.",
		}, []string{"job_name", "step_name", "phase"}),
		itemRetryCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_item_retry_total",
			Help: "Total item retries by step and phase.",
		}, []string{"job_name", "step_name", "phase"}),
	}

	registry.MustRegister(
		r.jobDurationSeconds,
		r.jobStatusCounter,
		r.stepDurationSeconds,
		r.stepStatusCounter,
		r.stepReadCount,
		r.stepWriteCount,
		r.stepFilterCount,
		r.stepCommitCount,
		r.stepRollbackCount,
		r.chunkSize,
		r.itemSkipCounter,
		r.itemRetryCounter,
	)
	logger.Infof("Metrics: Prometheus recorder initialized.")
	return r
}

// Registry returns the Prometheus registry.
func (r *PrometheusRecorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func (r *PrometheusRecorder) RecordJobStart(ctx context.Context, execution *model.JobExecution) {
	r.jobStatusCounter.WithLabelValues(execution.JobName, execution.Status.String()).Inc()
	logger.Debugf("Metrics: Job '%s' started.", execution.JobName)
}

func (r *PrometheusRecorder) RecordJobEnd(ctx context.Context, execution *model.JobExecution) {
	r.jobStatusCounter.WithLabelValues(execution.JobName, execution.Status.String()).Inc()
	if execution.StartTime == nil || execution.EndTime == nil {
		return
	}
	duration := execution.EndTime.Sub(*execution.StartTime).Seconds()
	r.jobDurationSeconds.WithLabelValues(execution.JobName, execution.Status.String()).Observe(duration)
	logger.Debugf("Metrics: Job '%s' ended. Duration: %.3fs", execution.JobName, duration)
}

func (r *PrometheusRecorder) RecordStepStart(ctx context.Context, execution *model.StepExecution) {
	r.stepStatusCounter.WithLabelValues(execution.JobName, execution.StepName, execution.Status.String()).Inc()
}

func (r *PrometheusRecorder) RecordStepEnd(ctx context.Context, execution *model.StepExecution) {
	r.stepStatusCounter.WithLabelValues(execution.JobName, execution.StepName, execution.Status.String()).Inc()
	if execution.StartTime == nil || execution.EndTime == nil {
		return
	}
	duration := execution.EndTime.Sub(*execution.StartTime).Seconds()
	r.stepDurationSeconds.WithLabelValues(execution.JobName, execution.StepName, execution.Status.String()).Observe(duration)
	logger.Debugf("Metrics: Step '%s' ended. Duration: %.3fs", execution.StepName, duration)
}

func (r *PrometheusRecorder) RecordItemRead(ctx context.Context, execution *model.StepExecution, count int) {
	r.stepReadCount.WithLabelValues(execution.JobName, execution.StepName).Add(float64(count))
}

func (r *PrometheusRecorder) RecordItemFilter(ctx context.Context, execution *model.StepExecution, count int) {
	r.stepFilterCount.WithLabelValues(execution.JobName, execution.StepName).Add(float64(count))
}

func (r *PrometheusRecorder) RecordItemWrite(ctx context.Context, execution *model.StepExecution, count int) {
	r.stepWriteCount.WithLabelValues(execution.JobName, execution.StepName).Add(float64(count))
}

func (r *PrometheusRecorder) RecordItemSkip(ctx context.Context, execution *model.StepExecution, phase string) {
	r.itemSkipCounter.WithLabelValues(execution.JobName, execution.StepName, phase).Inc()
}

func (r *PrometheusRecorder) RecordItemRetry(ctx context.Context, execution *model.StepExecution, phase string) {
	r.itemRetryCounter.WithLabelValues(execution.JobName, execution.StepName, phase).Inc()
}

func (r *PrometheusRecorder) RecordChunkCommit(ctx context.Context, execution *model.StepExecution, size int) {
	r.stepCommitCount.WithLabelValues(execution.JobName, execution.StepName).Inc()
	r.chunkSize.WithLabelValues(execution.JobName, execution.StepName).Observe(float64(size))
}

func (r *PrometheusRecorder) RecordChunkRollback(ctx context.Context, execution *model.StepExecution) {
	r.stepRollbackCount.WithLabelValues(execution.JobName, execution.StepName).Inc()
}
