// Package split groups steps that a flow runs in parallel.
package split

import "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"

// Split holds steps executed concurrently within one flow element.
// The steps must not share readers or writers.
type Split struct {
	id    string
	steps []port.Step
}

// New creates a split of steps.
func New(id string, steps ...port.Step) *Split {
	return &Split{id: id, steps: steps}
}

// ID returns the split ID.
func (s *Split) ID() string {
	return s.id
}

// Steps returns the steps in the split.
func (s *Split) Steps() []port.Step {
	return s.steps
}
