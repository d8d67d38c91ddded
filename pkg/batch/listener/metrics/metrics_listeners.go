// Package metrics provides listeners that annotate the active trace span with item-level events.
// Counters and spans themselves are recorded by the engine through core/metrics.
package metrics

import (
	"context"
	"fmt"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/metrics"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
)

// Event names added to the chunk span.
const (
	EventItemSkipped     = "item.skipped"
	EventItemRetried     = "item.retried"
	EventChunkRolledBack = "chunk.rolled_back"
)

// SpanEventListener records skips, retries and chunk rollbacks as span events.
type SpanEventListener struct {
	tracer metrics.Tracer
}

var (
	_ port.SkipListener  = (*SpanEventListener)(nil)
	_ port.RetryListener = (*SpanEventListener)(nil)
	_ port.ChunkListener = (*SpanEventListener)(nil)
)

// NewSpanEventListener creates the listener.
func NewSpanEventListener(tracer metrics.Tracer) *SpanEventListener {
	return &SpanEventListener{tracer: tracer}
}

func (l *SpanEventListener) OnSkipInRead(ctx context.Context, err error) {
	l.tracer.RecordEvent(ctx, EventItemSkipped, map[string]interface{}{
		"phase": metrics.PhaseRead,
		"error": exception.ExtractErrorMessage(err),
	})
}

func (l *SpanEventListener) OnSkipInProcess(ctx context.Context, item interface{}, err error) {
	l.tracer.RecordEvent(ctx, EventItemSkipped, map[string]interface{}{
		"phase": metrics.PhaseProcess,
		"item":  fmt.Sprintf("%+v", item),
		"error": exception.ExtractErrorMessage(err),
	})
}

func (l *SpanEventListener) OnRetry(ctx context.Context, module string, attempt int, err error) {
	l.tracer.RecordEvent(ctx, EventItemRetried, map[string]interface{}{
		"module":  module,
		"attempt": attempt,
		"error":   exception.ExtractErrorMessage(err),
	})
}

func (l *SpanEventListener) BeforeChunk(ctx context.Context, se *model.StepExecution) {}

func (l *SpanEventListener) AfterChunk(ctx context.Context, se *model.StepExecution) {}

func (l *SpanEventListener) AfterChunkError(ctx context.Context, se *model.StepExecution, err error) {
	l.tracer.RecordEvent(ctx, EventChunkRolledBack, map[string]interface{}{
		"step.name":          se.StepName,
		"committed_position": se.CommittedPosition,
		"error":              exception.ExtractErrorMessage(err),
	})
}
