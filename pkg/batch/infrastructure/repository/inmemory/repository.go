// Package inmemory provides an in-memory implementation of the JobRepository interface.
// It stores copies of all execution records in maps, suitable for testing and
// for runs where restart across processes is not required.
package inmemory

import (
	"sync"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/repository"
)

// InMemoryJobRepository is an in-memory implementation of the JobRepository interface.
// Records are stored as deep copies; callers never share state with the repository.
type InMemoryJobRepository struct {
	mu             sync.RWMutex // protects the maps
	locks          repository.ExecutionLocks
	jobExecutions  map[string]*model.JobExecution
	stepExecutions map[string]*model.StepExecution
	// stepOrder keeps the insertion order of step executions per job execution.
	stepOrder map[string][]string
}

var _ repository.JobRepository = (*InMemoryJobRepository)(nil)

// NewInMemoryJobRepository creates and initializes a new instance of InMemoryJobRepository.
func NewInMemoryJobRepository() *InMemoryJobRepository {
	return &InMemoryJobRepository{
		jobExecutions:  make(map[string]*model.JobExecution),
		stepExecutions: make(map[string]*model.StepExecution),
		stepOrder:      make(map[string][]string),
	}
}

// Close releases resources used by the repository.
// As an in-memory repository, it holds no external resources, so this method always returns nil.
func (r *InMemoryJobRepository) Close() error {
	return nil
}
