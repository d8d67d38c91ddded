package logging_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/listener/logging"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	logger.SetLogLevel("DEBUG")
	t.Cleanup(func() {
		logger.SetOutput(os.Stderr)
		logger.SetLogLevel("INFO")
	})
	return &buf
}

func TestLoggingJobListener_MasksParameters(t *testing.T) {
	buf := captureLogs(t)
	ctx := context.Background()
	cfg := config.NewConfig()
	l := logging.NewLoggingJobListenerFromConfig(cfg)

	je := model.NewJobExecution("importUserJob", "7", model.JobParameters{"input.file": "people.csv", "password": "hunter2"})
	require.NoError(t, l.BeforeJob(ctx, je))
	require.NoError(t, je.MarkAsStarted())
	require.NoError(t, je.MarkTerminal(model.BatchStatusCompleted, ""))
	require.NoError(t, l.AfterJob(ctx, je))

	out := buf.String()
	assert.Contains(t, out, "BeforeJob - JobName: importUserJob, RunID: 7")
	assert.Contains(t, out, "Attempt: 1")
	assert.Contains(t, out, "input.file=people.csv")
	assert.NotContains(t, out, "hunter2")
	assert.Contains(t, out, "AfterJob - JobName: importUserJob, RunID: 7, Status: COMPLETED")
}

func TestLoggingStepAndChunkListeners(t *testing.T) {
	buf := captureLogs(t)
	ctx := context.Background()
	je := model.NewJobExecution("job", "1", nil)
	se := model.NewStepExecution(je, "stepToUppercase")
	se.CommittedPosition = 20

	sl := logging.NewLoggingStepListener()
	require.NoError(t, sl.BeforeStep(ctx, se))
	start := time.Now().Add(-1500 * time.Millisecond)
	end := time.Now()
	se.StartTime, se.EndTime = &start, &end
	se.Status = model.BatchStatusCompleted
	se.ReadCount, se.WriteCount, se.FilterCount, se.ReadSkipCount = 30, 27, 2, 1
	require.NoError(t, sl.AfterStep(ctx, se))

	cl := logging.NewLoggingChunkListener()
	cl.BeforeChunk(ctx, se)
	cl.AfterChunkError(ctx, se, errors.New("deadlock"))
	logging.NewLoggingSkipListener().OnSkipInRead(ctx, errors.New("bad line"))
	logging.NewLoggingRetryListener().OnRetry(ctx, "writer", 2, errors.New("conn done"))

	out := buf.String()
	assert.Contains(t, out, "BeforeStep - StepName: stepToUppercase")
	assert.Contains(t, out, "ResumeFrom: 20")
	assert.Contains(t, out, "Read: 30, Written: 27, Filtered: 2, Skipped: 1/0")
	assert.Contains(t, out, "[DEBUG] ChunkListener: BeforeChunk - StepName: stepToUppercase, Position: 20")
	assert.Contains(t, out, "[WARN] ChunkListener: AfterChunkError")
	assert.Contains(t, out, "OnSkipInRead - bad line")
	assert.Contains(t, out, "Module: writer, Attempt: 2, Error: conn done")
}
