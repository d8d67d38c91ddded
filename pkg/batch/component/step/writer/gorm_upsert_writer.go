// Package writer provides item writers: relational upsert, parquet export and composition.
package writer

import (
	"context"
	"fmt"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/tx"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// UpsertConfig configures a GormUpsertWriter.
type UpsertConfig struct {
	Name string
	// TableName overrides the table derived from the item type.
	TableName string
	// ConflictColumns form the unique key the upsert resolves conflicts on.
	ConflictColumns []string
	// UpdateColumns are updated on conflict; empty means DO NOTHING.
	UpdateColumns []string
	// BatchSize splits a chunk into several statements. Zero writes a chunk at once.
	BatchSize int
}

// GormUpsertWriter writes items with INSERT ... ON CONFLICT inside the chunk
// transaction, so a re-processed record updates its row instead of duplicating it.
type GormUpsertWriter[T any] struct {
	cfg UpsertConfig
	ec  model.ExecutionContext
}

var _ port.ItemWriter[any] = (*GormUpsertWriter[any])(nil)

// NewGormUpsertWriter creates the writer.
func NewGormUpsertWriter[T any](cfg UpsertConfig) *GormUpsertWriter[T] {
	return &GormUpsertWriter[T]{cfg: cfg}
}

// Open keeps no state across restarts.
func (w *GormUpsertWriter[T]) Open(ctx context.Context, ec model.ExecutionContext) error {
	w.ec = model.NewExecutionContext()
	return nil
}

// Write upserts items through the transaction found in ctx.
func (w *GormUpsertWriter[T]) Write(ctx context.Context, items []T) error {
	if len(items) == 0 {
		return nil
	}
	t, ok := tx.TxFromContext(ctx)
	if !ok {
		return exception.NewSinkError(fmt.Sprintf("GormUpsertWriter '%s': no transaction in context", w.cfg.Name), tx.ErrNoTransactionalResource)
	}

	size := w.cfg.BatchSize
	if size <= 0 {
		size = len(items)
	}
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		n, err := t.ExecuteUpsert(ctx, items[start:end], w.cfg.TableName, w.cfg.ConflictColumns, w.cfg.UpdateColumns)
		if err != nil {
			return exception.NewSinkError(fmt.Sprintf("GormUpsertWriter '%s': upsert of items %d-%d failed", w.cfg.Name, start, end-1), err)
		}
		logger.Debugf("GormUpsertWriter '%s': upserted %d items (%d rows affected).", w.cfg.Name, end-start, n)
	}
	return nil
}

// Close is a no-op.
func (w *GormUpsertWriter[T]) Close(ctx context.Context) error {
	return nil
}

// GetExecutionContext returns an empty context; the writer is stateless.
func (w *GormUpsertWriter[T]) GetExecutionContext(ctx context.Context) (model.ExecutionContext, error) {
	if w.ec == nil {
		return model.NewExecutionContext(), nil
	}
	return w.ec, nil
}
