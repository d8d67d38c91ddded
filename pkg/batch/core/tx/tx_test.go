package tx_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/tx"
)

func TestTxFromContext(t *testing.T) {
	ctx := context.Background()
	_, ok := tx.TxFromContext(ctx)
	assert.False(t, ok)

	txn, err := tx.NewNoOpTransactionManager().Begin(ctx)
	require.NoError(t, err)
	got, ok := tx.TxFromContext(tx.WithTx(ctx, txn))
	assert.True(t, ok)
	assert.Equal(t, txn, got)

	_, ok = tx.TxFromContext(tx.WithTx(ctx, nil))
	assert.False(t, ok)
}

func TestNoOpTransactionManager(t *testing.T) {
	ctx := context.Background()
	tm := tx.NewNoOpTransactionManager()

	txn, err := tm.Begin(ctx)
	require.NoError(t, err)
	_, err = txn.ExecuteUpsert(ctx, []struct{}{{}}, "people", []string{"id"}, nil)
	assert.ErrorIs(t, err, tx.ErrNoTransactionalResource)
	_, err = txn.Exec(ctx, "DELETE FROM people")
	assert.ErrorIs(t, err, tx.ErrNoTransactionalResource)

	assert.NoError(t, txn.Savepoint("sp"))
	assert.NoError(t, txn.RollbackToSavepoint("sp"))
	assert.NoError(t, tm.Commit(txn))
	assert.NoError(t, tm.Rollback(txn))
}
