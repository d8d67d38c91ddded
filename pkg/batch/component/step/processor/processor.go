// Package processor provides item processors built from functions and from other processors.
package processor

import (
	"context"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// FuncProcessor adapts a function to port.ItemProcessor.
type FuncProcessor[I, O any] func(ctx context.Context, item I) (O, error)

var _ port.ItemProcessor[any, any] = FuncProcessor[any, any](nil)

// Process calls f.
func (f FuncProcessor[I, O]) Process(ctx context.Context, item I) (O, error) {
	return f(ctx, item)
}

// PassThroughProcessor returns every item unchanged.
type PassThroughProcessor[T any] struct{}

// NewPassThroughProcessor creates a PassThroughProcessor.
func NewPassThroughProcessor[T any]() port.ItemProcessor[T, T] {
	return PassThroughProcessor[T]{}
}

// Process returns item as is.
func (PassThroughProcessor[T]) Process(ctx context.Context, item T) (T, error) {
	logger.Debugf("PassThroughProcessor: processing item: %+v", item)
	return item, nil
}

// CompositeProcessor applies its delegates in order to items of one type.
// A delegate returning port.ErrItemFiltered ends the chain and filters the item.
type CompositeProcessor[T any] struct {
	delegates []port.ItemProcessor[T, T]
}

// NewCompositeProcessor creates a processor over delegates. With no delegates it passes items through.
func NewCompositeProcessor[T any](delegates ...port.ItemProcessor[T, T]) *CompositeProcessor[T] {
	return &CompositeProcessor[T]{delegates: delegates}
}

// Process runs item through every delegate.
func (c *CompositeProcessor[T]) Process(ctx context.Context, item T) (T, error) {
	current := item
	for _, d := range c.delegates {
		out, err := d.Process(ctx, current)
		if err != nil {
			var zero T
			return zero, err
		}
		current = out
	}
	return current, nil
}

// Chain composes two processors whose types differ: first maps I to M, second maps M to O.
func Chain[I, M, O any](first port.ItemProcessor[I, M], second port.ItemProcessor[M, O]) port.ItemProcessor[I, O] {
	return FuncProcessor[I, O](func(ctx context.Context, item I) (O, error) {
		mid, err := first.Process(ctx, item)
		if err != nil {
			var zero O
			return zero, err
		}
		return second.Process(ctx, mid)
	})
}

// Filter keeps only the items for which keep returns true.
func Filter[T any](keep func(T) bool) port.ItemProcessor[T, T] {
	return FuncProcessor[T, T](func(ctx context.Context, item T) (T, error) {
		if !keep(item) {
			var zero T
			return zero, port.ErrItemFiltered
		}
		return item, nil
	})
}
