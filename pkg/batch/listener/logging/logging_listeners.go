// Package logging provides listeners that log job, step, chunk, skip and retry events.
package logging

import (
	"context"
	"time"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// --- Job Execution Listener ---

// LoggingJobListener logs job boundaries with masked parameters.
type LoggingJobListener struct {
	maskedKeys []string
}

var _ port.JobExecutionListener = (*LoggingJobListener)(nil)

// NewLoggingJobListener creates the listener. Parameters named in maskedKeys are masked in the log.
func NewLoggingJobListener(maskedKeys ...string) *LoggingJobListener {
	return &LoggingJobListener{maskedKeys: maskedKeys}
}

func (l *LoggingJobListener) BeforeJob(ctx context.Context, execution *model.JobExecution) error {
	logger.Infof("JobExecutionListener: BeforeJob - JobName: %s, RunID: %s, ID: %s, Attempt: %d, Params: %s",
		execution.JobName, execution.RunID, execution.ID, execution.RestartCount+1, execution.Parameters.String(l.maskedKeys...))
	return nil
}

func (l *LoggingJobListener) AfterJob(ctx context.Context, execution *model.JobExecution) error {
	logger.Infof("JobExecutionListener: AfterJob - JobName: %s, RunID: %s, Status: %s, Duration: %s, ExitDescription: %s",
		execution.JobName, execution.RunID, execution.Status, elapsed(execution.StartTime, execution.EndTime), execution.ExitDescription)
	return nil
}

// --- Step Execution Listener ---

// LoggingStepListener logs step boundaries and the final counters of each step.
type LoggingStepListener struct{}

var _ port.StepExecutionListener = (*LoggingStepListener)(nil)

func NewLoggingStepListener() *LoggingStepListener { return &LoggingStepListener{} }

func (l *LoggingStepListener) BeforeStep(ctx context.Context, se *model.StepExecution) error {
	logger.Infof("StepExecutionListener: BeforeStep - StepName: %s, ID: %s, ResumeFrom: %d", se.StepName, se.ID, se.CommittedPosition)
	return nil
}

func (l *LoggingStepListener) AfterStep(ctx context.Context, se *model.StepExecution) error {
	logger.Infof("StepExecutionListener: AfterStep - StepName: %s, Status: %s, Duration: %s, Read: %d, Written: %d, Filtered: %d, Skipped: %d/%d, Commits: %d, Rollbacks: %d",
		se.StepName, se.Status, elapsed(se.StartTime, se.EndTime), se.ReadCount, se.WriteCount, se.FilterCount,
		se.ReadSkipCount, se.ProcessSkipCount, se.CommitCount, se.RollbackCount)
	return nil
}

// --- Chunk Listener ---

// LoggingChunkListener logs every chunk at DEBUG and chunk failures at WARN.
type LoggingChunkListener struct{}

var _ port.ChunkListener = (*LoggingChunkListener)(nil)

func NewLoggingChunkListener() *LoggingChunkListener { return &LoggingChunkListener{} }

func (l *LoggingChunkListener) BeforeChunk(ctx context.Context, se *model.StepExecution) {
	logger.Debugf("ChunkListener: BeforeChunk - StepName: %s, Position: %d", se.StepName, se.CommittedPosition)
}

func (l *LoggingChunkListener) AfterChunk(ctx context.Context, se *model.StepExecution) {
	logger.Debugf("ChunkListener: AfterChunk - StepName: %s, Position: %d, Read: %d, Written: %d", se.StepName, se.CommittedPosition, se.ReadCount, se.WriteCount)
}

func (l *LoggingChunkListener) AfterChunkError(ctx context.Context, se *model.StepExecution, err error) {
	logger.Warnf("ChunkListener: AfterChunkError - StepName: %s, Position: %d, Error: %v", se.StepName, se.CommittedPosition, err)
}

// --- Skip Listener ---

// LoggingSkipListener logs skipped records.
type LoggingSkipListener struct{}

var _ port.SkipListener = (*LoggingSkipListener)(nil)

func NewLoggingSkipListener() *LoggingSkipListener { return &LoggingSkipListener{} }

func (l *LoggingSkipListener) OnSkipInRead(ctx context.Context, err error) {
	logger.Warnf("SkipListener: OnSkipInRead - %v", err)
}

func (l *LoggingSkipListener) OnSkipInProcess(ctx context.Context, item interface{}, err error) {
	logger.Warnf("SkipListener: OnSkipInProcess - Item: %+v, Error: %v", item, err)
}

// --- Retry Listener ---

// LoggingRetryListener logs every retry attempt.
type LoggingRetryListener struct{}

var _ port.RetryListener = (*LoggingRetryListener)(nil)

func NewLoggingRetryListener() *LoggingRetryListener { return &LoggingRetryListener{} }

func (l *LoggingRetryListener) OnRetry(ctx context.Context, module string, attempt int, err error) {
	logger.Warnf("RetryListener: OnRetry - Module: %s, Attempt: %d, Error: %v", module, attempt, err)
}

// NewLoggingJobListenerFromConfig masks the keys listed under security.masked_parameter_keys.
func NewLoggingJobListenerFromConfig(cfg *config.Config) *LoggingJobListener {
	return NewLoggingJobListener(cfg.Security.MaskedParameterKeys...)
}

func elapsed(start, end *time.Time) time.Duration {
	if start == nil || end == nil {
		return 0
	}
	return end.Sub(*start).Round(time.Millisecond)
}
