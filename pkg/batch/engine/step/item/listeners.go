package item

import (
	"context"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// Listener failures are logged and never change the outcome of the step.

func (s *ChunkStep[I, O]) beforeStep(ctx context.Context, se *model.StepExecution) {
	for _, l := range s.stepLs {
		if err := l.BeforeStep(ctx, se); err != nil {
			logger.Warnf("ChunkStep '%s': BeforeStep listener %T failed: %v", s.name, l, err)
		}
	}
}

func (s *ChunkStep[I, O]) afterStep(ctx context.Context, se *model.StepExecution) {
	for _, l := range s.stepLs {
		if err := l.AfterStep(ctx, se); err != nil {
			logger.Warnf("ChunkStep '%s': AfterStep listener %T failed: %v", s.name, l, err)
		}
	}
}

func (s *ChunkStep[I, O]) beforeChunk(ctx context.Context, se *model.StepExecution) {
	for _, l := range s.chunkLs {
		l.BeforeChunk(ctx, se)
	}
}

func (s *ChunkStep[I, O]) afterChunk(ctx context.Context, se *model.StepExecution) {
	for _, l := range s.chunkLs {
		l.AfterChunk(ctx, se)
	}
}

func (s *ChunkStep[I, O]) afterChunkError(ctx context.Context, se *model.StepExecution, err error) {
	for _, l := range s.chunkLs {
		l.AfterChunkError(ctx, se, err)
	}
}

func (s *ChunkStep[I, O]) onSkipInRead(ctx context.Context, err error) {
	for _, l := range s.skipLs {
		l.OnSkipInRead(ctx, err)
	}
}

func (s *ChunkStep[I, O]) onSkipInProcess(ctx context.Context, item I, err error) {
	for _, l := range s.skipLs {
		l.OnSkipInProcess(ctx, item, err)
	}
}
