package writer

import (
	"context"

	"github.com/hashicorp/go-multierror"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
)

// CompositeWriter forwards every chunk to its delegates in order. The first failing
// delegate fails the chunk, and the chunk transaction rolls back.
type CompositeWriter[T any] struct {
	delegates []port.ItemWriter[T]
}

var _ port.ItemWriter[any] = (*CompositeWriter[any])(nil)

// NewCompositeWriter creates a writer over delegates.
func NewCompositeWriter[T any](delegates ...port.ItemWriter[T]) *CompositeWriter[T] {
	return &CompositeWriter[T]{delegates: delegates}
}

// Open opens the delegates; on failure the already opened ones are closed.
func (w *CompositeWriter[T]) Open(ctx context.Context, ec model.ExecutionContext) error {
	for i, d := range w.delegates {
		if err := d.Open(ctx, ec); err != nil {
			for _, opened := range w.delegates[:i] {
				_ = opened.Close(ctx)
			}
			return err
		}
	}
	return nil
}

func (w *CompositeWriter[T]) Write(ctx context.Context, items []T) error {
	for _, d := range w.delegates {
		if err := d.Write(ctx, items); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every delegate and reports all failures.
func (w *CompositeWriter[T]) Close(ctx context.Context) error {
	var result *multierror.Error
	for _, d := range w.delegates {
		if err := d.Close(ctx); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// GetExecutionContext merges the delegates' contexts; later delegates win on key clashes.
func (w *CompositeWriter[T]) GetExecutionContext(ctx context.Context) (model.ExecutionContext, error) {
	merged := model.NewExecutionContext()
	for _, d := range w.delegates {
		ec, err := d.GetExecutionContext(ctx)
		if err != nil {
			return nil, err
		}
		for k, v := range ec {
			merged[k] = v
		}
	}
	return merged, nil
}
