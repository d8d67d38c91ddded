package port

import (
	"context"
	"sync/atomic"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
)

type contextKey string

const (
	stepExecutionKey contextKey = "stepExecution"
	stopSignalKey    contextKey = "stopSignal"
)

// WithStepExecution attaches the running step execution to ctx.
func WithStepExecution(ctx context.Context, se *model.StepExecution) context.Context {
	return context.WithValue(ctx, stepExecutionKey, se)
}

// StepExecutionFromContext returns the step execution attached by WithStepExecution.
func StepExecutionFromContext(ctx context.Context) (*model.StepExecution, bool) {
	se, ok := ctx.Value(stepExecutionKey).(*model.StepExecution)
	return se, ok && se != nil
}

// StopSignal is a cooperative stop request shared by the launcher and the running steps.
// Steps observe it only at chunk boundaries.
type StopSignal struct {
	requested atomic.Bool
}

// Request asks the running job to stop after the in-flight chunk.
func (s *StopSignal) Request() { s.requested.Store(true) }

// Requested reports whether a stop was requested.
func (s *StopSignal) Requested() bool { return s != nil && s.requested.Load() }

// WithStopSignal attaches s to ctx.
func WithStopSignal(ctx context.Context, s *StopSignal) context.Context {
	return context.WithValue(ctx, stopSignalKey, s)
}

// StopRequested reports whether the StopSignal in ctx was triggered.
func StopRequested(ctx context.Context) bool {
	s, _ := ctx.Value(stopSignalKey).(*StopSignal)
	return s.Requested()
}
