package item

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/metrics"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/tx"
	"github.com/tigerroll/chunkbatch/pkg/batch/engine/step/retry"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// chunkTally accumulates the outcome of one chunk until it is committed.
type chunkTally[O any] struct {
	items       []O
	consumed    int // records taken from the reader, including skipped and filtered ones
	filtered    int
	readSkips   int
	processSkip int
	eof         bool
}

func (t *chunkTally[O]) skips() int { return t.readSkips + t.processSkip }

// executeChunk reads, processes and writes one chunk, then persists progress.
// It reports done once the reader is exhausted.
func (s *ChunkStep[I, O]) executeChunk(ctx context.Context, se *model.StepExecution, chunk int) (bool, error) {
	ctx, endSpan := s.tracer.StartChunkSpan(ctx, se, chunk)
	defer endSpan()

	s.beforeChunk(ctx, se)
	tally, err := s.collect(ctx, se)
	if err != nil {
		s.afterChunkError(ctx, se, err)
		return false, err
	}
	if tally.consumed == 0 {
		logger.Debugf("ChunkStep '%s': reader exhausted before chunk %d.", s.name, chunk)
		return true, nil
	}

	if len(tally.items) > 0 {
		if err := s.write(ctx, se, tally.items); err != nil {
			s.afterChunkError(ctx, se, err)
			return false, err
		}
	} else {
		logger.Debugf("ChunkStep '%s': chunk %d has no items to write (%d filtered, %d skipped).", s.name, chunk, tally.filtered, tally.skips())
	}

	if err := s.commitProgress(ctx, se, tally); err != nil {
		s.afterChunkError(ctx, se, err)
		return false, err
	}
	s.recorder.RecordItemRead(ctx, se, tally.consumed)
	s.recorder.RecordItemFilter(ctx, se, tally.filtered)
	s.recorder.RecordItemWrite(ctx, se, len(tally.items))
	s.recorder.RecordChunkCommit(ctx, se, len(tally.items))
	s.afterChunk(ctx, se)
	logger.Debugf("ChunkStep '%s': chunk %d committed (read %d, written %d, filtered %d, skipped %d, position %d).",
		s.name, chunk, tally.consumed, len(tally.items), tally.filtered, tally.skips(), se.CommittedPosition)
	return tally.eof, nil
}

// collect fills a chunk with up to chunkSize consumed records.
func (s *ChunkStep[I, O]) collect(ctx context.Context, se *model.StepExecution) (*chunkTally[O], error) {
	tally := &chunkTally[O]{items: make([]O, 0, s.chunkSize)}
	for tally.consumed < s.chunkSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		in, err := s.read(ctx, se)
		if errors.Is(err, io.EOF) {
			tally.eof = true
			break
		}
		if err != nil {
			if !s.skipPolicy.ShouldSkip(err, se.SkipCount()+tally.skips()) {
				return nil, s.fatal(err, "read", se, tally)
			}
			tally.consumed++
			tally.readSkips++
			s.recorder.RecordItemSkip(ctx, se, metrics.PhaseRead)
			s.onSkipInRead(ctx, err)
			logger.Warnf("ChunkStep '%s': skipped unreadable record: %v", s.name, err)
			continue
		}
		tally.consumed++

		out, err := s.process(ctx, se, in)
		switch {
		case errors.Is(err, port.ErrItemFiltered):
			tally.filtered++
		case err != nil:
			if !s.skipPolicy.ShouldSkip(err, se.SkipCount()+tally.skips()) {
				return nil, s.fatal(err, "process", se, tally)
			}
			tally.processSkip++
			s.recorder.RecordItemSkip(ctx, se, metrics.PhaseProcess)
			s.onSkipInProcess(ctx, in, err)
			logger.Warnf("ChunkStep '%s': skipped record that failed processing: %v", s.name, err)
		default:
			tally.items = append(tally.items, out)
		}
	}
	return tally, nil
}

func (s *ChunkStep[I, O]) fatal(err error, phase string, se *model.StepExecution, tally *chunkTally[O]) error {
	if s.skipPolicy.IsSkippable(err) {
		logger.Errorf("ChunkStep '%s': skip limit %d exceeded during %s.", s.name, s.skipPolicy.SkipLimit(), phase)
		return exception.NewBatchErrorf(exception.ModuleStep, "skip limit %d exceeded in step '%s' (%d skipped before this chunk, %d in it)",
			s.skipPolicy.SkipLimit(), s.name, se.SkipCount(), tally.skips(), err)
	}
	return err
}

// read pulls one record, retrying faults the policy classifies as retryable.
func (s *ChunkStep[I, O]) read(ctx context.Context, se *model.StepExecution) (I, error) {
	var item I
	err := retry.Do(ctx, s.itemRetry, func(int) error {
		var rerr error
		item, rerr = s.reader.Read(ctx)
		return rerr
	}, s.retryHook(ctx, se, exception.ModuleReader, metrics.PhaseRead))
	if err == nil || errors.Is(err, io.EOF) {
		return item, err
	}
	if _, ok := exception.AsBatchError(err); !ok {
		err = exception.NewSourceError(fmt.Sprintf("failed to read record in step '%s'", s.name), err, false, false)
	}
	return item, err
}

// process applies the processor to one record with item-level retry.
// A filtered record is reported as port.ErrItemFiltered.
func (s *ChunkStep[I, O]) process(ctx context.Context, se *model.StepExecution, in I) (O, error) {
	var out O
	filtered := false
	err := retry.Do(ctx, s.itemRetry, func(int) error {
		var perr error
		out, perr = s.processor.Process(ctx, in)
		if errors.Is(perr, port.ErrItemFiltered) {
			filtered = true
			return nil
		}
		return perr
	}, s.retryHook(ctx, se, exception.ModuleProcessor, metrics.PhaseProcess))
	if err != nil {
		if _, ok := exception.AsBatchError(err); !ok {
			err = exception.NewTransformError(fmt.Sprintf("failed to process record in step '%s'", s.name), err, false, false)
		}
		return out, err
	}
	if filtered {
		return out, port.ErrItemFiltered
	}
	return out, nil
}

// write hands the chunk to the writer inside one transaction, retrying the whole chunk.
func (s *ChunkStep[I, O]) write(ctx context.Context, se *model.StepExecution, items []O) error {
	err := retry.Do(ctx, s.chunkRetry, func(attempt int) error {
		return s.writeOnce(ctx, se, items, attempt)
	}, s.retryHook(ctx, se, exception.ModuleWriter, metrics.PhaseWrite))
	if err == nil {
		return nil
	}
	if isInterruption(ctx, err) {
		return err
	}
	return exception.NewSinkError(fmt.Sprintf("failed to write chunk of %d item(s) in step '%s' after %d attempt(s)",
		len(items), s.name, s.chunkRetry.MaxAttempts()), err)
}

func (s *ChunkStep[I, O]) writeOnce(ctx context.Context, se *model.StepExecution, items []O, attempt int) error {
	t, err := s.txManager.Begin(ctx)
	if err != nil {
		return exception.NewBatchError(exception.ModuleWriter, "failed to begin chunk transaction", err, false, true)
	}
	if err := s.writer.Write(tx.WithTx(ctx, t), items); err != nil {
		s.rollback(ctx, se, t, attempt, err)
		return err
	}
	if err := s.txManager.Commit(t); err != nil {
		s.rollback(ctx, se, t, attempt, err)
		return exception.NewBatchError(exception.ModuleWriter, "failed to commit chunk transaction", err, false, true)
	}
	return nil
}

func (s *ChunkStep[I, O]) rollback(ctx context.Context, se *model.StepExecution, t tx.Tx, attempt int, cause error) {
	se.RollbackCount++
	s.recorder.RecordChunkRollback(ctx, se)
	logger.Warnf("ChunkStep '%s': chunk write attempt %d failed, rolling back: %v", s.name, attempt, cause)
	if err := s.txManager.Rollback(t); err != nil {
		logger.Errorf("ChunkStep '%s': rollback failed: %v", s.name, err)
	}
}

// commitProgress applies the chunk to the counters and persists it. The sink has already
// committed, so a repository failure here leaves the data written but the progress unknown.
func (s *ChunkStep[I, O]) commitProgress(ctx context.Context, se *model.StepExecution, tally *chunkTally[O]) error {
	se.ReadCount += tally.consumed
	se.WriteCount += len(tally.items)
	se.FilterCount += tally.filtered
	se.ReadSkipCount += tally.readSkips
	se.ProcessSkipCount += tally.processSkip
	se.CommitCount++
	se.CommittedPosition += tally.consumed

	if ec, err := s.reader.GetExecutionContext(ctx); err == nil {
		se.ExecutionContext.Merge(ec)
	} else {
		logger.Warnf("ChunkStep '%s': failed to get reader execution context: %v", s.name, err)
	}
	if ec, err := s.writer.GetExecutionContext(ctx); err == nil {
		se.ExecutionContext.Merge(ec)
	} else {
		logger.Warnf("ChunkStep '%s': failed to get writer execution context: %v", s.name, err)
	}
	se.ExecutionContext.Put(model.ResumePositionKey, se.CommittedPosition)

	if err := s.repo.UpdateStepProgress(context.WithoutCancel(ctx), se); err != nil {
		return exception.NewRepositoryError(fmt.Sprintf("chunk of step '%s' was written but its progress could not be persisted (data written, progress unknown)", s.name), err)
	}
	return nil
}

func (s *ChunkStep[I, O]) retryHook(ctx context.Context, se *model.StepExecution, module, phase string) func(int, error) {
	return func(attempt int, err error) {
		se.RetryCount++
		s.recorder.RecordItemRetry(ctx, se, phase)
		logger.Warnf("ChunkStep '%s': %s attempt %d failed, retrying: %v", s.name, phase, attempt, err)
		for _, l := range s.retryLs {
			l.OnRetry(ctx, module, attempt, err)
		}
	}
}
