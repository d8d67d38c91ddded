// Package decision provides flow elements that choose the next element from the job state.
package decision

import (
	"context"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
)

// Func computes an exit status that the flow's transitions are matched against.
// It may return one of the batch statuses or any custom value such as "SKIP_EXPORT".
type Func func(ctx context.Context, execution *model.JobExecution) (model.BatchStatus, error)

// Decision is a flow element that runs no step.
type Decision struct {
	id     string
	decide Func
}

// New creates a decision.
func New(id string, decide Func) *Decision {
	return &Decision{id: id, decide: decide}
}

// ID returns the decision ID.
func (d *Decision) ID() string {
	return d.id
}

// Decide evaluates the decision.
func (d *Decision) Decide(ctx context.Context, execution *model.JobExecution) (model.BatchStatus, error) {
	return d.decide(ctx, execution)
}

// OnParameter returns a decision yielding the job parameter key, or fallback when it is unset.
func OnParameter(id, key string, fallback model.BatchStatus) *Decision {
	return New(id, func(_ context.Context, execution *model.JobExecution) (model.BatchStatus, error) {
		if v, ok := execution.Parameters.GetString(key); ok && v != "" {
			return model.BatchStatus(v), nil
		}
		return fallback, nil
	})
}
