// Package runner provides FlowJob, a job composed of steps, splits and decisions
// connected by status-conditioned transitions.
package runner

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/repository"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/job/decision"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/job/split"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/metrics"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// element is one node of the flow: a port.Step, a *split.Split or a *decision.Decision.
type element struct {
	id          string
	step        port.Step
	split       *split.Split
	decision    *decision.Decision
	transitions []model.Transition
}

// FlowJob is an implementation of port.Job that walks a flow of elements.
// Without explicit transitions an element that ends COMPLETED proceeds to the next declared
// element; an element whose status matches no transition ends the job with that status.
type FlowJob struct {
	name      string
	elements  map[string]*element
	order     []string
	repo      repository.JobRepository
	recorder  metrics.MetricRecorder
	tracer    metrics.Tracer
	buildErrs error
}

// Verify that FlowJob implements the port.Job interface.
var _ port.Job = (*FlowJob)(nil)

// NewFlowJob creates an empty flow. Elements are executed from the first one added.
func NewFlowJob(name string, repo repository.JobRepository, recorder metrics.MetricRecorder, tracer metrics.Tracer) *FlowJob {
	if recorder == nil {
		recorder = metrics.NewNoOpMetricRecorder()
	}
	if tracer == nil {
		tracer = metrics.NewNoOpTracer()
	}
	return &FlowJob{
		name:     name,
		elements: make(map[string]*element),
		repo:     repo,
		recorder: recorder,
		tracer:   tracer,
	}
}

// JobName returns the job name.
func (j *FlowJob) JobName() string {
	return j.name
}

// Step adds a step element.
func (j *FlowJob) Step(step port.Step, transitions ...model.Transition) *FlowJob {
	return j.add(&element{id: step.StepName(), step: step, transitions: transitions})
}

// Split adds steps executed in parallel. The split ends FAILED if any of them failed,
// STOPPED if any of them stopped, COMPLETED otherwise.
func (j *FlowJob) Split(s *split.Split, transitions ...model.Transition) *FlowJob {
	return j.add(&element{id: s.ID(), split: s, transitions: transitions})
}

// Decision adds a decision element.
func (j *FlowJob) Decision(d *decision.Decision, transitions ...model.Transition) *FlowJob {
	return j.add(&element{id: d.ID(), decision: d, transitions: transitions})
}

func (j *FlowJob) add(e *element) *FlowJob {
	if _, dup := j.elements[e.id]; dup {
		j.buildErrs = multierror.Append(j.buildErrs, fmt.Errorf("duplicate flow element '%s'", e.id))
		return j
	}
	j.elements[e.id] = e
	j.order = append(j.order, e.id)
	return j
}

// Validate checks that the flow is not empty, element ids are unique and every
// transition target exists.
func (j *FlowJob) Validate() error {
	var result error
	if j.buildErrs != nil {
		result = multierror.Append(result, j.buildErrs)
	}
	if len(j.order) == 0 {
		result = multierror.Append(result, fmt.Errorf("job '%s' has no steps", j.name))
	}
	for _, id := range j.order {
		e := j.elements[id]
		for _, t := range e.transitions {
			if t.To != "" {
				if _, ok := j.elements[t.To]; !ok {
					result = multierror.Append(result, fmt.Errorf("element '%s': transition on '%s' targets unknown element '%s'", id, t.On, t.To))
				}
			}
			if t.To == "" && !t.End && !t.Fail && !t.Stop {
				result = multierror.Append(result, fmt.Errorf("element '%s': transition on '%s' has no target", id, t.On))
			}
		}
		if e.split != nil && len(e.split.Steps()) == 0 {
			result = multierror.Append(result, fmt.Errorf("split '%s' has no steps", id))
		}
	}
	if result != nil {
		return exception.NewBatchError(exception.ModuleConfig, fmt.Sprintf("invalid flow for job '%s'", j.name), result, false, false)
	}
	return nil
}

// StepNames lists the names of every step in the flow, including split members.
func (j *FlowJob) StepNames() []string {
	var names []string
	for _, id := range j.order {
		e := j.elements[id]
		switch {
		case e.step != nil:
			names = append(names, e.id)
		case e.split != nil:
			for _, s := range e.split.Steps() {
				names = append(names, s.StepName())
			}
		}
	}
	return names
}

// Run executes the flow for an execution in STARTED status and records the terminal status
// through the repository. Step failures are reported through the status of the execution;
// the returned error is reserved for flow and bookkeeping faults.
func (j *FlowJob) Run(ctx context.Context, jobExecution *model.JobExecution) error {
	ctx, finishSpan := j.tracer.StartJobSpan(ctx, jobExecution)
	defer finishSpan()

	logger.Infof("Starting Job '%s' (Execution ID: %s, Run ID: %s).", j.name, jobExecution.ID, jobExecution.RunID)
	status, description, runErr := j.walk(ctx, jobExecution)

	if err := j.repo.MarkTerminal(context.WithoutCancel(ctx), jobExecution, status, description); err != nil {
		logger.Errorf("Job '%s': failed to record terminal status %s: %v", j.name, status, err)
		return multierror.Append(runErr, exception.NewRepositoryError("failed to record terminal job status", err)).ErrorOrNil()
	}
	logger.Infof("Job '%s' (Execution ID: %s) finished. Final Status: %s", j.name, jobExecution.ID, jobExecution.Status)
	for _, se := range jobExecution.StepExecutions {
		logger.Debugf("  %s", se)
	}
	return runErr
}

func (j *FlowJob) walk(ctx context.Context, jobExecution *model.JobExecution) (model.BatchStatus, string, error) {
	if err := j.Validate(); err != nil {
		return model.BatchStatusFailed, err.Error(), err
	}
	current := j.order[0]
	for {
		if port.StopRequested(ctx) || ctx.Err() != nil {
			logger.Warnf("Job '%s': stop requested before element '%s'.", j.name, current)
			return model.BatchStatusStopped, fmt.Sprintf("stopped before '%s'", current), nil
		}
		e := j.elements[current]
		logger.Debugf("Job '%s': Executing flow element '%s'.", j.name, current)

		status, err := j.execute(ctx, jobExecution, e)
		if err != nil {
			j.tracer.RecordError(ctx, e.id, err)
		}

		t, found := j.transition(e, status)
		if !found {
			logger.Infof("Job '%s': no transition from '%s' on %s, ending the job.", j.name, e.id, status)
			return j.terminal(jobExecution, e, status, err)
		}
		switch {
		case t.End:
			logger.Infof("Job '%s': 'End' transition from '%s' on %s.", j.name, e.id, status)
			return model.BatchStatusCompleted, string(model.BatchStatusCompleted), nil
		case t.Fail:
			logger.Errorf("Job '%s': 'Fail' transition from '%s' on %s.", j.name, e.id, status)
			return model.BatchStatusFailed, j.failureDescription(jobExecution, fmt.Sprintf("flow failed by transition from '%s' on %s", e.id, status)), nil
		case t.Stop:
			logger.Infof("Job '%s': 'Stop' transition from '%s' on %s.", j.name, e.id, status)
			return model.BatchStatusStopped, fmt.Sprintf("stopped by transition from '%s' on %s", e.id, status), nil
		}
		current = t.To
	}
}

// transition resolves the outgoing edge of e. Elements without explicit transitions
// continue to the next declared element on COMPLETED.
func (j *FlowJob) transition(e *element, status model.BatchStatus) (model.Transition, bool) {
	if len(e.transitions) > 0 {
		return model.FindTransition(e.transitions, status)
	}
	if status != model.BatchStatusCompleted {
		return model.Transition{}, false
	}
	for i, id := range j.order {
		if id == e.id && i+1 < len(j.order) {
			return model.Transition{On: string(status), To: j.order[i+1]}, true
		}
	}
	return model.Transition{}, false
}

// terminal maps the status of the last element to the job status.
func (j *FlowJob) terminal(jobExecution *model.JobExecution, e *element, status model.BatchStatus, err error) (model.BatchStatus, string, error) {
	switch status {
	case model.BatchStatusCompleted:
		return model.BatchStatusCompleted, string(model.BatchStatusCompleted), nil
	case model.BatchStatusStopped:
		return model.BatchStatusStopped, fmt.Sprintf("stopped at '%s'", e.id), nil
	case model.BatchStatusFailed:
		fallback := fmt.Sprintf("element '%s' failed", e.id)
		if err != nil {
			fallback = err.Error()
		}
		return model.BatchStatusFailed, j.failureDescription(jobExecution, fallback), nil
	}
	// Custom decision statuses without a matching transition end the job normally.
	if e.decision != nil && err == nil {
		return model.BatchStatusCompleted, string(status), nil
	}
	return model.BatchStatusFailed, fmt.Sprintf("element '%s' ended with unexpected status %s", e.id, status), nil
}

// failureDescription reports the exit description of the first failing step.
func (j *FlowJob) failureDescription(jobExecution *model.JobExecution, fallback string) string {
	if se, ok := jobExecution.FirstFailedStep(); ok && se.ExitDescription != "" {
		return fmt.Sprintf("step '%s' failed: %s", se.StepName, se.ExitDescription)
	}
	return fallback
}

func (j *FlowJob) execute(ctx context.Context, jobExecution *model.JobExecution, e *element) (model.BatchStatus, error) {
	switch {
	case e.step != nil:
		se, err := j.prepareStep(ctx, jobExecution, e.step.StepName())
		if err != nil {
			return model.BatchStatusFailed, err
		}
		if se.Status == model.BatchStatusCompleted {
			return model.BatchStatusCompleted, nil
		}
		return j.runStep(ctx, e.step, se)

	case e.split != nil:
		return j.runSplit(ctx, jobExecution, e.split)

	case e.decision != nil:
		status, err := e.decision.Decide(ctx, jobExecution)
		if err != nil {
			logger.Errorf("Job '%s': decision '%s' failed: %v", j.name, e.id, err)
			return model.BatchStatusFailed, exception.NewBatchError(exception.ModuleJob, fmt.Sprintf("decision '%s' failed", e.id), err, false, false)
		}
		logger.Infof("Job '%s': Decision '%s' completed. Result: %s", j.name, e.id, status)
		return status, nil
	}
	return model.BatchStatusFailed, exception.NewBatchErrorf(exception.ModuleJob, "unknown flow element '%s'", e.id)
}

// prepareStep returns the step execution to run. A restart carries the executions of the
// previous attempt: completed ones are returned as-is so the step is skipped.
func (j *FlowJob) prepareStep(ctx context.Context, jobExecution *model.JobExecution, stepName string) (*model.StepExecution, error) {
	if se, ok := jobExecution.StepExecution(stepName); ok {
		if se.Status == model.BatchStatusCompleted {
			logger.Infof("Job '%s': Step '%s' already completed in a previous attempt. Skipping execution.", j.name, stepName)
		} else {
			logger.Infof("Job '%s': Resuming step '%s' from position %d.", j.name, stepName, se.CommittedPosition)
		}
		return se, nil
	}
	se := model.NewStepExecution(jobExecution, stepName)
	if err := j.repo.SaveStepExecution(ctx, se); err != nil {
		logger.Errorf("Job '%s': Failed to save StepExecution for step '%s': %v", j.name, stepName, err)
		return nil, exception.NewRepositoryError(fmt.Sprintf("failed to save step execution '%s'", stepName), err)
	}
	jobExecution.AddStepExecution(se)
	return se, nil
}

func (j *FlowJob) runStep(ctx context.Context, step port.Step, se *model.StepExecution) (model.BatchStatus, error) {
	err := step.Execute(ctx, se)
	if !se.Status.IsTerminal() {
		// The step gave up before it could record a status.
		desc := "step ended without a terminal status"
		if err != nil {
			desc = err.Error()
		}
		se.Status, se.ExitDescription = model.BatchStatusFailed, desc
	}
	if err != nil {
		logger.Errorf("Job '%s': Step '%s' ended %s: %v", j.name, se.StepName, se.Status, err)
	} else {
		logger.Infof("Job '%s': Step '%s' ended %s.", j.name, se.StepName, se.Status)
	}
	return se.Status, err
}

// runSplit prepares the step executions sequentially, then runs the pending steps concurrently.
func (j *FlowJob) runSplit(ctx context.Context, jobExecution *model.JobExecution, s *split.Split) (model.BatchStatus, error) {
	type pending struct {
		step port.Step
		se   *model.StepExecution
	}
	var work []pending
	for _, step := range s.Steps() {
		se, err := j.prepareStep(ctx, jobExecution, step.StepName())
		if err != nil {
			return model.BatchStatusFailed, err
		}
		if se.Status != model.BatchStatusCompleted {
			work = append(work, pending{step: step, se: se})
		}
	}
	logger.Infof("Job '%s': Executing Split '%s' with %d pending step(s).", j.name, s.ID(), len(work))

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		errs   error
		status = model.BatchStatusCompleted
	)
	for _, w := range work {
		wg.Add(1)
		go func(w pending) {
			defer wg.Done()
			st, err := j.runStep(ctx, w.step, w.se)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = multierror.Append(errs, err)
			}
			switch {
			case st == model.BatchStatusFailed:
				status = model.BatchStatusFailed
			case st == model.BatchStatusStopped && status != model.BatchStatusFailed:
				status = model.BatchStatusStopped
			}
		}(w)
	}
	wg.Wait()
	logger.Infof("Job '%s': Split '%s' finished. Result: %s", j.name, s.ID(), status)
	return status, errs
}
