package reader

import (
	"context"
	"io"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
)

// SliceReader serves items from an in-memory slice. It restarts at the position
// recorded by the chunk step, so it behaves like any restartable source.
type SliceReader[T any] struct {
	name  string
	items []T
	pos   int
	ec    model.ExecutionContext
}

// NewSliceReader creates a reader over items. The slice is not copied.
func NewSliceReader[T any](name string, items []T) *SliceReader[T] {
	return &SliceReader[T]{name: name, items: items}
}

// Open positions the reader at the resume position found in ec.
func (r *SliceReader[T]) Open(ctx context.Context, ec model.ExecutionContext) error {
	r.ec = model.NewExecutionContext()
	r.pos = resumePosition(ec, r.name)
	if r.pos > len(r.items) {
		r.pos = len(r.items)
	}
	return nil
}

// Read returns the next item or io.EOF.
func (r *SliceReader[T]) Read(ctx context.Context) (T, error) {
	var zero T
	if r.pos >= len(r.items) {
		return zero, io.EOF
	}
	item := r.items[r.pos]
	r.pos++
	r.ec.Put(r.name+readCountSuffix, r.pos)
	return item, nil
}

// Close is a no-op.
func (r *SliceReader[T]) Close(ctx context.Context) error { return nil }

// GetExecutionContext returns the reader state.
func (r *SliceReader[T]) GetExecutionContext(ctx context.Context) (model.ExecutionContext, error) {
	if r.ec == nil {
		return model.NewExecutionContext(), nil
	}
	return r.ec, nil
}

var _ port.ItemReader[any] = (*SliceReader[any])(nil)
