// Package repository defines the durable record of job and step executions
// used for restart decisions and audit.
package repository

import (
	"errors"

	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
)

var (
	// ErrJobExecutionNotFound is returned when no matching JobExecution exists.
	ErrJobExecutionNotFound = errors.New("job execution not found")
	// ErrStepExecutionNotFound is returned when no matching StepExecution exists.
	ErrStepExecutionNotFound = errors.New("step execution not found")
	// ErrRunIDCollision is returned when a fresh run is created with a run id that is already taken.
	ErrRunIDCollision = errors.New("run id already exists")
)

func init() {
	exception.RegisterErrorType("ErrJobExecutionNotFound", ErrJobExecutionNotFound)
	exception.RegisterErrorType("ErrStepExecutionNotFound", ErrStepExecutionNotFound)
	exception.RegisterErrorType("ErrRunIDCollision", ErrRunIDCollision)
}

// JobRepository is the single source of truth for execution state.
// Implementations serialize writes to a given JobExecution (and its steps)
// while unrelated executions proceed independently.
type JobRepository interface {
	JobExecution
	StepExecution

	// Close releases the underlying resources.
	Close() error
}
