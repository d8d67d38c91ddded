package model

import (
	"fmt"
	"time"
)

// StepExecution is the progress record of one step within a JobExecution.
//
// CommittedPosition counts the source records consumed by committed chunks; it only
// advances after a successful commit and is where a restart resumes reading.
type StepExecution struct {
	ID                string
	JobExecutionID    string
	JobName           string
	RunID             string
	StepName          string
	Status            BatchStatus
	ExitDescription   string
	StartTime         *time.Time
	EndTime           *time.Time
	LastUpdated       time.Time
	Version           int
	ReadCount         int
	WriteCount        int
	FilterCount       int
	ReadSkipCount     int
	ProcessSkipCount  int
	CommitCount       int
	RollbackCount     int
	RetryCount        int
	CommittedPosition int
	ExecutionContext  ExecutionContext
}

// NewStepExecution creates a STARTING step execution bound to je.
func NewStepExecution(je *JobExecution, stepName string) *StepExecution {
	return &StepExecution{
		ID:               NewID(),
		JobExecutionID:   je.ID,
		JobName:          je.JobName,
		RunID:            je.RunID,
		StepName:         stepName,
		Status:           BatchStatusStarting,
		LastUpdated:      time.Now(),
		ExecutionContext: NewExecutionContext(),
	}
}

// SkipCount is the total of read and process skips.
func (se *StepExecution) SkipCount() int {
	return se.ReadSkipCount + se.ProcessSkipCount
}

// Accounted returns write + skip + filter, which equals ReadCount for a consistent execution.
func (se *StepExecution) Accounted() int {
	return se.WriteCount + se.SkipCount() + se.FilterCount
}

// TransitionTo changes the status if the transition is allowed.
func (se *StepExecution) TransitionTo(status BatchStatus) error {
	if !canTransition(se.Status, status) {
		return fmt.Errorf("StepExecution '%s' (ID: %s): invalid state transition: %s -> %s", se.StepName, se.ID, se.Status, status)
	}
	se.Status = status
	se.LastUpdated = time.Now()
	return nil
}

// MarkAsStarted moves the step to STARTED.
func (se *StepExecution) MarkAsStarted() error {
	if err := se.TransitionTo(BatchStatusStarted); err != nil {
		return err
	}
	now := time.Now()
	se.StartTime = &now
	return nil
}

// MarkTerminal moves the step to a terminal status.
func (se *StepExecution) MarkTerminal(status BatchStatus, exitDescription string) error {
	if !status.IsTerminal() {
		return fmt.Errorf("StepExecution '%s': %s is not a terminal status", se.StepName, status)
	}
	if err := se.TransitionTo(status); err != nil {
		return err
	}
	now := time.Now()
	se.EndTime = &now
	se.ExitDescription = exitDescription
	return nil
}

// CopyForRestart prepares se for the next attempt owned by next.
// COMPLETED executions keep their status so the flow skips them.
// Others restart from STARTING with cumulative counters and the committed position.
func (se *StepExecution) CopyForRestart(next *JobExecution) *StepExecution {
	c := se.Clone()
	c.ID = NewID()
	c.JobExecutionID = next.ID
	c.Version = 0
	if se.Status == BatchStatusCompleted {
		return c
	}
	c.Status = BatchStatusStarting
	c.ExitDescription = ""
	c.StartTime = nil
	c.EndTime = nil
	c.LastUpdated = time.Now()
	return c
}

// Clone returns a deep copy.
func (se *StepExecution) Clone() *StepExecution {
	if se == nil {
		return nil
	}
	out := *se
	out.ExecutionContext = se.ExecutionContext.Copy()
	out.StartTime = copyTime(se.StartTime)
	out.EndTime = copyTime(se.EndTime)
	return &out
}

// String renders the counters for logs.
func (se *StepExecution) String() string {
	return fmt.Sprintf("StepExecution[%s status=%s read=%d write=%d filter=%d skip=%d commit=%d rollback=%d position=%d]",
		se.StepName, se.Status, se.ReadCount, se.WriteCount, se.FilterCount, se.SkipCount(), se.CommitCount, se.RollbackCount, se.CommittedPosition)
}
