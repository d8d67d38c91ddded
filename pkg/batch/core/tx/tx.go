// Package tx defines the transaction boundary used by chunk steps.
// One chunk is written inside one Tx; the writer finds it in the context.
package tx

import (
	"context"
	"database/sql"
	"errors"
)

// TxExecutor is the set of write operations a writer may run inside a chunk transaction.
type TxExecutor interface {
	// ExecuteUpsert inserts rows (a slice of structs or a single struct) into tableName.
	// On a conflict over conflictColumns it updates updateColumns, or does nothing when
	// updateColumns is empty.
	ExecuteUpsert(ctx context.Context, rows interface{}, tableName string, conflictColumns []string, updateColumns []string) (rowsAffected int64, err error)

	// Exec runs a raw statement.
	Exec(ctx context.Context, query string, args ...interface{}) (rowsAffected int64, err error)
}

// Tx is an open transaction.
type Tx interface {
	TxExecutor

	Savepoint(name string) error
	RollbackToSavepoint(name string) error
}

// TransactionManager opens and finishes transactions.
type TransactionManager interface {
	Begin(ctx context.Context, opts ...*sql.TxOptions) (Tx, error)
	Commit(tx Tx) error
	Rollback(tx Tx) error
}

type txKey struct{}

// WithTx attaches t to ctx.
func WithTx(ctx context.Context, t Tx) context.Context {
	return context.WithValue(ctx, txKey{}, t)
}

// TxFromContext returns the transaction attached by WithTx.
func TxFromContext(ctx context.Context) (Tx, bool) {
	t, ok := ctx.Value(txKey{}).(Tx)
	return t, ok && t != nil
}

// ErrNoTransactionalResource is returned by the no-op transaction when a writer tries to
// run SQL without a database-backed transaction manager.
var ErrNoTransactionalResource = errors.New("no transactional resource configured")

// NoOpTransactionManager is used by steps whose writers manage their own atomicity
// (files, object storage, in-memory sinks).
type NoOpTransactionManager struct{}

// NewNoOpTransactionManager returns a NoOpTransactionManager.
func NewNoOpTransactionManager() TransactionManager {
	return NoOpTransactionManager{}
}

func (NoOpTransactionManager) Begin(ctx context.Context, opts ...*sql.TxOptions) (Tx, error) {
	return noOpTx{}, nil
}

func (NoOpTransactionManager) Commit(Tx) error { return nil }

func (NoOpTransactionManager) Rollback(Tx) error { return nil }

type noOpTx struct{}

func (noOpTx) ExecuteUpsert(context.Context, interface{}, string, []string, []string) (int64, error) {
	return 0, ErrNoTransactionalResource
}

func (noOpTx) Exec(context.Context, string, ...interface{}) (int64, error) {
	return 0, ErrNoTransactionalResource
}

func (noOpTx) Savepoint(string) error { return nil }

func (noOpTx) RollbackToSavepoint(string) error { return nil }
