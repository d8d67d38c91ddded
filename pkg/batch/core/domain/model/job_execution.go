package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewID returns a new random execution identifier.
func NewID() string {
	return uuid.NewString()
}

// JobExecution is one attempt at running a job for a run id.
// A restart creates a new JobExecution carrying the same RunID and an incremented RestartCount.
type JobExecution struct {
	ID               string
	JobName          string
	RunID            string
	Parameters       JobParameters
	Status           BatchStatus
	ExitDescription  string
	CreateTime       time.Time
	StartTime        *time.Time
	EndTime          *time.Time
	LastUpdated      time.Time
	Version          int
	RestartCount     int
	ExecutionContext ExecutionContext
	StepExecutions   []*StepExecution
}

// NewJobExecution creates an execution in STARTING status.
func NewJobExecution(jobName, runID string, params JobParameters) *JobExecution {
	now := time.Now()
	if params == nil {
		params = NewJobParameters()
	}
	return &JobExecution{
		ID:               NewID(),
		JobName:          jobName,
		RunID:            runID,
		Parameters:       params,
		Status:           BatchStatusStarting,
		CreateTime:       now,
		LastUpdated:      now,
		ExecutionContext: NewExecutionContext(),
	}
}

// NewRestartExecution creates the next attempt of a FAILED or STOPPED execution.
// Completed step executions are carried over as-is so the flow can skip them;
// incomplete ones are copied with their counters and committed position.
func NewRestartExecution(previous *JobExecution) *JobExecution {
	next := NewJobExecution(previous.JobName, previous.RunID, previous.Parameters.Copy())
	next.RestartCount = previous.RestartCount + 1
	next.ExecutionContext = previous.ExecutionContext.Copy()
	for _, se := range previous.StepExecutions {
		next.StepExecutions = append(next.StepExecutions, se.CopyForRestart(next))
	}
	return next
}

// TransitionTo changes the status if the transition is allowed.
func (je *JobExecution) TransitionTo(status BatchStatus) error {
	if !canTransition(je.Status, status) {
		return fmt.Errorf("JobExecution (ID: %s): invalid state transition: %s -> %s", je.ID, je.Status, status)
	}
	je.Status = status
	je.LastUpdated = time.Now()
	return nil
}

// MarkAsStarted moves the execution to STARTED and records the start time.
func (je *JobExecution) MarkAsStarted() error {
	if err := je.TransitionTo(BatchStatusStarted); err != nil {
		return err
	}
	now := time.Now()
	je.StartTime = &now
	return nil
}

// MarkTerminal moves the execution to a terminal status with its exit description.
func (je *JobExecution) MarkTerminal(status BatchStatus, exitDescription string) error {
	if !status.IsTerminal() {
		return fmt.Errorf("JobExecution (ID: %s): %s is not a terminal status", je.ID, status)
	}
	if err := je.TransitionTo(status); err != nil {
		return err
	}
	now := time.Now()
	je.EndTime = &now
	je.ExitDescription = exitDescription
	return nil
}

// AddStepExecution appends se, replacing an existing entry with the same step name.
func (je *JobExecution) AddStepExecution(se *StepExecution) {
	for i, existing := range je.StepExecutions {
		if existing.StepName == se.StepName {
			je.StepExecutions[i] = se
			return
		}
	}
	je.StepExecutions = append(je.StepExecutions, se)
}

// StepExecution returns the execution of the named step, if any.
func (je *JobExecution) StepExecution(stepName string) (*StepExecution, bool) {
	for _, se := range je.StepExecutions {
		if se.StepName == stepName {
			return se, true
		}
	}
	return nil, false
}

// FirstFailedStep returns the first step execution, in declaration order, that FAILED.
func (je *JobExecution) FirstFailedStep() (*StepExecution, bool) {
	for _, se := range je.StepExecutions {
		if se.Status == BatchStatusFailed {
			return se, true
		}
	}
	return nil, false
}

// Clone returns a deep copy suitable for handing to listeners or storing.
func (je *JobExecution) Clone() *JobExecution {
	if je == nil {
		return nil
	}
	out := *je
	out.Parameters = je.Parameters.Copy()
	out.ExecutionContext = je.ExecutionContext.Copy()
	out.StartTime = copyTime(je.StartTime)
	out.EndTime = copyTime(je.EndTime)
	out.StepExecutions = make([]*StepExecution, 0, len(je.StepExecutions))
	for _, se := range je.StepExecutions {
		out.StepExecutions = append(out.StepExecutions, se.Clone())
	}
	return &out
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
