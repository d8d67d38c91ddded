// Package incrementer mints run identifiers for fresh job runs.
package incrementer

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/repository"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// Run id strategies accepted by New.
const (
	StrategySequence  = "sequence"
	StrategyUUID      = "uuid"
	StrategyTimestamp = "timestamp"
)

// New returns the generator for strategy. An empty strategy means sequence.
func New(strategy string, repo repository.JobRepository) (port.RunIDGenerator, error) {
	switch strings.ToLower(strings.TrimSpace(strategy)) {
	case "", StrategySequence:
		return NewSequenceRunIDGenerator(repo), nil
	case StrategyUUID:
		return NewUUIDRunIDGenerator(), nil
	case StrategyTimestamp:
		return NewTimestampRunIDGenerator(), nil
	}
	return nil, exception.NewBatchErrorf(exception.ModuleConfig, "unknown run id strategy '%s'", strategy)
}

// SequenceRunIDGenerator issues monotonically increasing numeric run ids per job:
// one more than the largest numeric run id already recorded in the repository.
type SequenceRunIDGenerator struct {
	repo repository.JobRepository
	mu   sync.Mutex
	last map[string]int64
}

// NewSequenceRunIDGenerator creates a new instance of SequenceRunIDGenerator.
func NewSequenceRunIDGenerator(repo repository.JobRepository) *SequenceRunIDGenerator {
	return &SequenceRunIDGenerator{repo: repo, last: make(map[string]int64)}
}

// Next implements port.RunIDGenerator. Non-numeric run ids in the repository are ignored.
func (g *SequenceRunIDGenerator) Next(ctx context.Context, jobName string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	runIDs, err := g.repo.FindRunIDs(ctx, jobName)
	if err != nil {
		return "", exception.NewRepositoryError(fmt.Sprintf("failed to list run ids of job '%s'", jobName), err)
	}
	highest := g.last[jobName]
	for _, id := range runIDs {
		if n, err := strconv.ParseInt(id, 10, 64); err == nil && n > highest {
			highest = n
		}
	}
	next := highest + 1
	g.last[jobName] = next
	logger.Debugf("SequenceRunIDGenerator: next run id of job '%s' is %d.", jobName, next)
	return strconv.FormatInt(next, 10), nil
}

// String returns the string representation of SequenceRunIDGenerator.
func (g *SequenceRunIDGenerator) String() string {
	return "SequenceRunIDGenerator"
}

var _ port.RunIDGenerator = (*SequenceRunIDGenerator)(nil)
