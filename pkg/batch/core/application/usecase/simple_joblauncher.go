package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/repository"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/metrics"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

const abandonedDescription = "abandoned: execution was still running when its run was launched again"

// JobHandle tracks a job run started in the background.
type JobHandle struct {
	// Execution is the execution being run. Read it only after Done is closed.
	Execution *model.JobExecution

	stop   *port.StopSignal
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Done is closed once the execution is terminal and its listeners have run.
func (h *JobHandle) Done() <-chan struct{} { return h.done }

// Wait blocks until the run finishes or ctx is done.
func (h *JobHandle) Wait(ctx context.Context) (*model.JobExecution, error) {
	select {
	case <-h.done:
		return h.Execution, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stop requests a stop at the next chunk boundary.
func (h *JobHandle) Stop() { h.stop.Request() }

func finishedHandle(execution *model.JobExecution) *JobHandle {
	h := &JobHandle{Execution: execution, stop: &port.StopSignal{}, cancel: func() {}, done: make(chan struct{})}
	close(h.done)
	return h
}

// SimpleJobLauncher runs jobs in-process and records them in a JobRepository.
type SimpleJobLauncher struct {
	jobRepository  repository.JobRepository
	runIDGenerator port.RunIDGenerator
	metricRecorder metrics.MetricRecorder
	listeners      []port.JobExecutionListener

	mu sync.Mutex
	// active maps execution ids to the handles of runs in this process.
	active map[string]*JobHandle
	// activeRuns maps jobName/runID to the execution id currently running it.
	activeRuns map[string]string
}

var _ JobLauncher = (*SimpleJobLauncher)(nil)

// NewSimpleJobLauncher creates a launcher. listeners are notified for every job it runs.
func NewSimpleJobLauncher(
	repo repository.JobRepository,
	runIDGenerator port.RunIDGenerator,
	recorder metrics.MetricRecorder,
	listeners ...port.JobExecutionListener,
) *SimpleJobLauncher {
	if recorder == nil {
		recorder = metrics.NewNoOpMetricRecorder()
	}
	return &SimpleJobLauncher{
		jobRepository:  repo,
		runIDGenerator: runIDGenerator,
		metricRecorder: recorder,
		listeners:      listeners,
		active:         make(map[string]*JobHandle),
		activeRuns:     make(map[string]string),
	}
}

// Launch runs job for runID and blocks until the execution is terminal.
func (l *SimpleJobLauncher) Launch(ctx context.Context, job port.Job, runID string, params model.JobParameters, listeners ...port.JobExecutionListener) (*model.JobExecution, error) {
	h, err := l.Start(ctx, job, runID, params, listeners...)
	if err != nil {
		return nil, err
	}
	<-h.Done()
	return h.Execution, h.err
}

// Start prepares the execution synchronously and runs the job in a new goroutine.
// Cancelling ctx stops the run; the execution ends STOPPED.
func (l *SimpleJobLauncher) Start(ctx context.Context, job port.Job, runID string, params model.JobParameters, listeners ...port.JobExecutionListener) (*JobHandle, error) {
	jobName := job.JobName()
	if v, ok := job.(interface{ Validate() error }); ok {
		if err := v.Validate(); err != nil {
			return nil, err
		}
	}

	var reserved string
	if runID != "" {
		reserved = runKey(jobName, runID)
		if err := l.reserve(reserved, jobName, runID); err != nil {
			return nil, err
		}
	}
	execution, reused, err := l.prepare(ctx, jobName, runID, params)
	if (err != nil || reused) && reserved != "" {
		l.mu.Lock()
		delete(l.activeRuns, reserved)
		l.mu.Unlock()
	}
	if err != nil {
		return nil, err
	}
	if reused {
		logger.Infof("Run '%s' of job '%s' already COMPLETED (execution %s). Nothing to do.", execution.RunID, jobName, execution.ID)
		return finishedHandle(execution), nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	h := &JobHandle{
		Execution: execution,
		stop:      &port.StopSignal{},
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	l.mu.Lock()
	l.active[execution.ID] = h
	l.activeRuns[runKey(jobName, execution.RunID)] = execution.ID
	l.mu.Unlock()

	all := append(append([]port.JobExecutionListener{}, l.listeners...), listeners...)
	go func() {
		defer close(h.done)
		defer l.release(execution)
		defer cancel()
		h.err = l.run(port.WithStopSignal(runCtx, h.stop), job, execution, all)
	}()
	return h, nil
}

// Stop requests a stop of a running execution. The step in progress finishes its
// current chunk, and the job ends STOPPED.
func (l *SimpleJobLauncher) Stop(ctx context.Context, executionID string) error {
	l.mu.Lock()
	h, ok := l.active[executionID]
	l.mu.Unlock()
	if !ok {
		return exception.NewBatchErrorf(exception.ModuleLauncher, "JobExecution (ID: %s) is not running in this process", executionID)
	}
	logger.Infof("Stop requested for JobExecution (ID: %s).", executionID)
	h.Stop()
	return nil
}

// reserve claims jobName/runID for one launch in this process. The claim holds an empty
// execution id until the execution is created.
func (l *SimpleJobLauncher) reserve(key, jobName, runID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if id, busy := l.activeRuns[key]; busy {
		if id == "" {
			return exception.NewBatchErrorf(exception.ModuleLauncher, "run '%s' of job '%s' is already running (launch in progress)", runID, jobName)
		}
		return exception.NewBatchErrorf(exception.ModuleLauncher, "run '%s' of job '%s' is already running (execution %s)", runID, jobName, id)
	}
	l.activeRuns[key] = ""
	return nil
}

// prepare resolves the execution to run. reused is true when runID already COMPLETED.
// It does repository I/O and must be called without l.mu; a non-empty runID is reserved first.
func (l *SimpleJobLauncher) prepare(ctx context.Context, jobName, runID string, params model.JobParameters) (execution *model.JobExecution, reused bool, err error) {
	if runID == "" {
		runID, err = l.runIDGenerator.Next(ctx, jobName)
		if err != nil {
			return nil, false, exception.NewBatchError(exception.ModuleLauncher, fmt.Sprintf("failed to generate a run id for job '%s'", jobName), err, false, false)
		}
		logger.Infof("Launching job '%s' as fresh run '%s'. Parameters: %s", jobName, runID, params.String(config.GetMaskedParameterKeys()...))
		execution, err = l.jobRepository.CreateJobExecution(ctx, jobName, runID, params)
		return execution, false, err
	}

	last, err := l.jobRepository.FindLastJobExecutionByRunID(ctx, jobName, runID)
	if errors.Is(err, repository.ErrJobExecutionNotFound) {
		logger.Infof("Launching job '%s' as new run '%s'. Parameters: %s", jobName, runID, params.String(config.GetMaskedParameterKeys()...))
		execution, err = l.jobRepository.CreateJobExecution(ctx, jobName, runID, params)
		return execution, false, err
	}
	if err != nil {
		return nil, false, exception.NewBatchError(exception.ModuleLauncher, fmt.Sprintf("failed to look up run '%s' of job '%s'", runID, jobName), err, false, false)
	}

	switch {
	case last.Status == model.BatchStatusCompleted:
		return last, true, nil
	case last.Status.IsRunning():
		logger.Warnf("JobExecution (ID: %s) of run '%s' is %s but not running in this process. Marking it FAILED.", last.ID, runID, last.Status)
		if err := l.jobRepository.MarkTerminal(ctx, last, model.BatchStatusFailed, abandonedDescription); err != nil {
			return nil, false, exception.NewBatchError(exception.ModuleLauncher, fmt.Sprintf("failed to abandon JobExecution (ID: %s)", last.ID), err, false, false)
		}
	}

	next := model.NewRestartExecution(last)
	if len(params) > 0 && params.String() != last.Parameters.String() {
		logger.Warnf("Restarting run '%s' of job '%s' with its original parameters; the given parameters are ignored.", runID, jobName)
	}
	if err := l.jobRepository.SaveJobExecution(ctx, next); err != nil {
		return nil, false, exception.NewBatchError(exception.ModuleLauncher, fmt.Sprintf("failed to save restart of run '%s'", runID), err, false, false)
	}
	logger.Infof("Restarting job '%s' run '%s' (attempt %d, previous execution %s was %s).", jobName, runID, next.RestartCount+1, last.ID, last.Status)
	return next, false, nil
}

// run drives execution to a terminal status and notifies AfterJob exactly once, also when
// the start cannot be recorded. Bookkeeping uses a context detached from cancellation so a
// stopped run is still recorded.
func (l *SimpleJobLauncher) run(ctx context.Context, job port.Job, execution *model.JobExecution, listeners []port.JobExecutionListener) error {
	bookkeeping := context.WithoutCancel(ctx)

	var runErr error
	if err := execution.MarkAsStarted(); err != nil {
		runErr = exception.NewBatchError(exception.ModuleLauncher, "failed to start JobExecution", err, false, false)
	} else if err := l.jobRepository.UpdateJobExecution(bookkeeping, execution); err != nil {
		runErr = exception.NewBatchError(exception.ModuleLauncher, "failed to persist JobExecution start", err, false, false)
	} else {
		l.metricRecorder.RecordJobStart(bookkeeping, execution)
		if err := notifyBeforeJob(bookkeeping, listeners, execution); err != nil {
			logger.Warnf("JobExecutionListener.BeforeJob failed for JobExecution (ID: %s): %v", execution.ID, err)
		}
		runErr = job.Run(ctx, execution)
	}

	if !execution.Status.IsTerminal() {
		desc := "job ended without a terminal status"
		if runErr != nil {
			desc = exception.ExtractErrorMessage(runErr)
		}
		if err := l.jobRepository.MarkTerminal(bookkeeping, execution, model.BatchStatusFailed, desc); err != nil {
			runErr = multierror.Append(runErr, err)
		}
	}
	l.metricRecorder.RecordJobEnd(bookkeeping, execution)
	logger.Infof("Job '%s' run '%s' finished with status %s. %s", execution.JobName, execution.RunID, execution.Status, execution.ExitDescription)

	if err := notifyAfterJob(bookkeeping, listeners, execution.Clone()); err != nil {
		logger.Warnf("JobExecutionListener.AfterJob failed for JobExecution (ID: %s): %v", execution.ID, err)
	}
	return runErr
}

func (l *SimpleJobLauncher) release(execution *model.JobExecution) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.active, execution.ID)
	if l.activeRuns[runKey(execution.JobName, execution.RunID)] == execution.ID {
		delete(l.activeRuns, runKey(execution.JobName, execution.RunID))
	}
}

func runKey(jobName, runID string) string { return jobName + "/" + runID }

func notifyBeforeJob(ctx context.Context, listeners []port.JobExecutionListener, execution *model.JobExecution) error {
	var result *multierror.Error
	for _, lst := range listeners {
		if err := lst.BeforeJob(ctx, execution); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func notifyAfterJob(ctx context.Context, listeners []port.JobExecutionListener, snapshot *model.JobExecution) error {
	var result *multierror.Error
	for _, lst := range listeners {
		if err := lst.AfterJob(ctx, snapshot); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
