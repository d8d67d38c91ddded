package metrics_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	coremetrics "github.com/tigerroll/chunkbatch/pkg/batch/core/metrics"
	"github.com/tigerroll/chunkbatch/pkg/batch/listener/metrics"
)

type mockTracer struct {
	coremetrics.NoOpTracer
	mock.Mock
}

func (m *mockTracer) RecordEvent(ctx context.Context, name string, attributes map[string]interface{}) {
	m.Called(name, attributes)
}

func TestSpanEventListener(t *testing.T) {
	ctx := context.Background()
	tracer := &mockTracer{}
	tracer.On("RecordEvent", metrics.EventItemSkipped, mock.MatchedBy(func(a map[string]interface{}) bool {
		return a["phase"] == coremetrics.PhaseRead && a["error"] == "bad line"
	})).Once()
	tracer.On("RecordEvent", metrics.EventItemSkipped, mock.MatchedBy(func(a map[string]interface{}) bool {
		return a["phase"] == coremetrics.PhaseProcess && a["item"] == "{Name:jill}"
	})).Once()
	tracer.On("RecordEvent", metrics.EventItemRetried, mock.MatchedBy(func(a map[string]interface{}) bool {
		return a["module"] == "writer" && a["attempt"] == 2
	})).Once()
	tracer.On("RecordEvent", metrics.EventChunkRolledBack, mock.MatchedBy(func(a map[string]interface{}) bool {
		return a["step.name"] == "step2" && a["committed_position"] == 20
	})).Once()

	l := metrics.NewSpanEventListener(tracer)
	l.OnSkipInRead(ctx, errors.New("bad line"))
	l.OnSkipInProcess(ctx, struct{ Name string }{"jill"}, errors.New("invalid"))
	l.OnRetry(ctx, "writer", 2, errors.New("deadlock"))
	l.BeforeChunk(ctx, &model.StepExecution{StepName: "step2"})
	l.AfterChunk(ctx, &model.StepExecution{StepName: "step2"})
	l.AfterChunkError(ctx, &model.StepExecution{StepName: "step2", CommittedPosition: 20}, errors.New("rollback"))

	tracer.AssertExpectations(t)
	assert.Len(t, tracer.Calls, 4)
}
