// Package item implements the chunk-oriented step: items are read and processed one by one,
// collected into chunks of a fixed size, and each chunk is written and committed as one transaction.
package item

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/repository"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/metrics"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/tx"
	"github.com/tigerroll/chunkbatch/pkg/batch/engine/step/retry"
	"github.com/tigerroll/chunkbatch/pkg/batch/engine/step/skip"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// Config describes one chunk step.
type Config[I, O any] struct {
	Name      string
	Reader    port.ItemReader[I]
	Processor port.ItemProcessor[I, O] // optional when I is assignable to O
	Writer    port.ItemWriter[O]
	ChunkSize int
	Fault     model.FaultPolicy
}

// Dependencies are the collaborators shared by the steps of a job.
type Dependencies struct {
	JobRepository  repository.JobRepository
	TxManager      tx.TransactionManager // defaults to tx.NoOpTransactionManager
	MetricRecorder metrics.MetricRecorder
	Tracer         metrics.Tracer
	StepListeners  []port.StepExecutionListener
	ChunkListeners []port.ChunkListener
	SkipListeners  []port.SkipListener
	RetryListeners []port.RetryListener
}

// ChunkStep is a port.Step processing items in chunks.
type ChunkStep[I, O any] struct {
	name       string
	reader     port.ItemReader[I]
	processor  port.ItemProcessor[I, O]
	writer     port.ItemWriter[O]
	chunkSize  int
	itemRetry  retry.RetryPolicy
	chunkRetry retry.RetryPolicy
	skipPolicy skip.SkipPolicy
	repo       repository.JobRepository
	txManager  tx.TransactionManager
	recorder   metrics.MetricRecorder
	tracer     metrics.Tracer
	stepLs     []port.StepExecutionListener
	chunkLs    []port.ChunkListener
	skipLs     []port.SkipListener
	retryLs    []port.RetryListener
}

var _ port.Step = (*ChunkStep[any, any])(nil)

// NewChunkStep validates cfg and builds the step.
func NewChunkStep[I, O any](cfg Config[I, O], deps Dependencies) (*ChunkStep[I, O], error) {
	if cfg.Name == "" {
		return nil, exception.NewBatchError(exception.ModuleConfig, "chunk step requires a name", nil, false, false)
	}
	if cfg.Reader == nil || cfg.Writer == nil {
		return nil, exception.NewBatchErrorf(exception.ModuleConfig, "chunk step '%s' requires a reader and a writer", cfg.Name)
	}
	if cfg.ChunkSize < 1 {
		return nil, exception.NewBatchErrorf(exception.ModuleConfig, "chunk step '%s': chunk size must be positive, got %d", cfg.Name, cfg.ChunkSize)
	}
	if err := cfg.Fault.Validate(); err != nil {
		return nil, exception.NewBatchErrorf(exception.ModuleConfig, "chunk step '%s': invalid fault policy", cfg.Name, err)
	}
	if deps.JobRepository == nil {
		return nil, exception.NewBatchErrorf(exception.ModuleConfig, "chunk step '%s' requires a job repository", cfg.Name)
	}
	processor := cfg.Processor
	if processor == nil {
		in, out := reflect.TypeOf((*I)(nil)).Elem(), reflect.TypeOf((*O)(nil)).Elem()
		if !in.AssignableTo(out) {
			return nil, exception.NewBatchErrorf(exception.ModuleConfig, "chunk step '%s': no processor and %s is not assignable to %s", cfg.Name, in, out)
		}
		processor = passThrough[I, O]{}
	}
	if deps.TxManager == nil {
		deps.TxManager = tx.NewNoOpTransactionManager()
	}
	if deps.MetricRecorder == nil {
		deps.MetricRecorder = metrics.NewNoOpMetricRecorder()
	}
	if deps.Tracer == nil {
		deps.Tracer = metrics.NewNoOpTracer()
	}
	return &ChunkStep[I, O]{
		name:       cfg.Name,
		reader:     cfg.Reader,
		processor:  processor,
		writer:     cfg.Writer,
		chunkSize:  cfg.ChunkSize,
		itemRetry:  retry.NewItemRetryPolicy(cfg.Fault),
		chunkRetry: retry.NewChunkRetryPolicy(cfg.Fault),
		skipPolicy: skip.NewSkipPolicy(cfg.Fault),
		repo:       deps.JobRepository,
		txManager:  deps.TxManager,
		recorder:   deps.MetricRecorder,
		tracer:     deps.Tracer,
		stepLs:     deps.StepListeners,
		chunkLs:    deps.ChunkListeners,
		skipLs:     deps.SkipListeners,
		retryLs:    deps.RetryListeners,
	}, nil
}

// StepName implements port.Step.
func (s *ChunkStep[I, O]) StepName() string { return s.name }

// ChunkSize returns the configured commit interval.
func (s *ChunkStep[I, O]) ChunkSize() int { return s.chunkSize }

// Execute implements port.Step. se must be in STARTING status; on restart it carries the
// cumulative counters and committed position of the previous attempt.
func (s *ChunkStep[I, O]) Execute(ctx context.Context, se *model.StepExecution) error {
	ctx, endSpan := s.tracer.StartStepSpan(ctx, se)
	defer endSpan()
	ctx = port.WithStepExecution(ctx, se)
	// Terminal bookkeeping must survive cancellation of the run.
	bookkeeping := context.WithoutCancel(ctx)

	if err := se.MarkAsStarted(); err != nil {
		return exception.NewBatchError(exception.ModuleStep, "step execution cannot be started", err, false, false)
	}
	if err := s.repo.UpdateStepExecution(bookkeeping, se); err != nil {
		return s.finish(bookkeeping, se, model.BatchStatusFailed, exception.NewRepositoryError("failed to persist STARTED step execution", err))
	}
	logger.Infof("ChunkStep '%s' started (chunk size %d, resume position %d).", s.name, s.chunkSize, se.CommittedPosition)
	s.recorder.RecordStepStart(ctx, se)
	s.beforeStep(ctx, se)

	if err := s.open(ctx, se); err != nil {
		return s.finish(bookkeeping, se, model.BatchStatusFailed, err)
	}

	status, runErr := s.run(ctx, se)

	if err := s.close(bookkeeping); err != nil && status == model.BatchStatusCompleted {
		status, runErr = model.BatchStatusFailed, err
	}
	return s.finish(bookkeeping, se, status, runErr)
}

// run loops over chunks until the source is exhausted, a fault occurs, or a stop is requested.
func (s *ChunkStep[I, O]) run(ctx context.Context, se *model.StepExecution) (model.BatchStatus, error) {
	for chunk := 1; ; chunk++ {
		if port.StopRequested(ctx) {
			logger.Infof("ChunkStep '%s': stop requested, stopping before chunk %d.", s.name, chunk)
			return model.BatchStatusStopped, nil
		}
		if ctx.Err() != nil {
			logger.Warnf("ChunkStep '%s': context done before chunk %d: %v", s.name, chunk, ctx.Err())
			return model.BatchStatusStopped, nil
		}
		done, err := s.executeChunk(ctx, se, chunk)
		if err != nil {
			if isInterruption(ctx, err) {
				logger.Warnf("ChunkStep '%s': chunk %d interrupted and discarded: %v", s.name, chunk, err)
				return model.BatchStatusStopped, nil
			}
			return model.BatchStatusFailed, err
		}
		if done {
			return model.BatchStatusCompleted, nil
		}
	}
}

func (s *ChunkStep[I, O]) open(ctx context.Context, se *model.StepExecution) error {
	ec := se.ExecutionContext.Copy()
	ec.Put(model.ResumePositionKey, se.CommittedPosition)
	if err := s.reader.Open(ctx, ec); err != nil {
		return exception.NewSourceError(fmt.Sprintf("failed to open reader of step '%s'", s.name), err, false, false)
	}
	if err := s.writer.Open(ctx, ec); err != nil {
		if cerr := s.reader.Close(ctx); cerr != nil {
			logger.Warnf("ChunkStep '%s': failed to close reader after writer open failure: %v", s.name, cerr)
		}
		return exception.NewBatchError(exception.ModuleWriter, fmt.Sprintf("failed to open writer of step '%s'", s.name), err, false, false)
	}
	return nil
}

// close releases reader and writer. A writer close error is returned because a writer
// may flush buffered output on Close.
func (s *ChunkStep[I, O]) close(ctx context.Context) error {
	if err := s.reader.Close(ctx); err != nil {
		logger.Warnf("ChunkStep '%s': failed to close reader: %v", s.name, err)
	}
	if err := s.writer.Close(ctx); err != nil {
		return exception.NewBatchError(exception.ModuleWriter, fmt.Sprintf("failed to close writer of step '%s'", s.name), err, false, false)
	}
	return nil
}

// finish records the terminal status and notifies listeners. It returns runErr for FAILED steps.
func (s *ChunkStep[I, O]) finish(ctx context.Context, se *model.StepExecution, status model.BatchStatus, runErr error) error {
	description := exitDescription(status, runErr)
	if err := se.MarkTerminal(status, description); err != nil {
		logger.Errorf("ChunkStep '%s': %v", s.name, err)
	}
	if runErr != nil {
		s.tracer.RecordError(ctx, s.name, runErr)
		logger.Errorf("ChunkStep '%s' %s: %v", s.name, status, runErr)
	} else {
		logger.Infof("ChunkStep '%s' finished: %s", s.name, se)
	}
	if err := s.repo.UpdateStepExecution(ctx, se); err != nil {
		logger.Errorf("ChunkStep '%s': failed to persist terminal status %s: %v", s.name, status, err)
		if runErr == nil {
			runErr = exception.NewRepositoryError("failed to persist terminal step status", err)
			se.Status, se.ExitDescription = model.BatchStatusFailed, exitDescription(model.BatchStatusFailed, runErr)
		}
	}
	s.recorder.RecordStepEnd(ctx, se)
	s.afterStep(ctx, se)
	if se.Status == model.BatchStatusFailed {
		return runErr
	}
	return nil
}

func exitDescription(status model.BatchStatus, err error) string {
	if err == nil {
		return string(status)
	}
	return err.Error()
}

func isInterruption(ctx context.Context, err error) bool {
	return ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}

// passThrough forwards items unchanged when no processor is configured.
type passThrough[I, O any] struct{}

func (passThrough[I, O]) Process(_ context.Context, item I) (O, error) {
	out, _ := any(item).(O)
	return out, nil
}
