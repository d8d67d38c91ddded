// Package test holds mocks and fakes shared by the package tests of chunkbatch.
package test

import (
	"context"
	"database/sql"

	"github.com/stretchr/testify/mock"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/tx"
)

// MockTx is a mock implementation of the tx.Tx interface.
type MockTx struct {
	mock.Mock
}

// ExecuteUpsert mocks the ExecuteUpsert method of tx.TxExecutor.
func (m *MockTx) ExecuteUpsert(ctx context.Context, rows interface{}, tableName string, conflictColumns []string, updateColumns []string) (int64, error) {
	args := m.Called(ctx, rows, tableName, conflictColumns, updateColumns)
	return args.Get(0).(int64), args.Error(1)
}

// Exec mocks the Exec method of tx.TxExecutor.
func (m *MockTx) Exec(ctx context.Context, query string, a ...interface{}) (int64, error) {
	args := m.Called(ctx, query, a)
	return args.Get(0).(int64), args.Error(1)
}

// Savepoint mocks the Savepoint method of tx.Tx.
func (m *MockTx) Savepoint(name string) error {
	return m.Called(name).Error(0)
}

// RollbackToSavepoint mocks the RollbackToSavepoint method of tx.Tx.
func (m *MockTx) RollbackToSavepoint(name string) error {
	return m.Called(name).Error(0)
}

// MockTxManager is a mock implementation of the tx.TransactionManager interface.
type MockTxManager struct {
	mock.Mock
}

// Begin mocks the Begin method of tx.TransactionManager.
// It records the call and returns a mock Tx instance or an error.
func (m *MockTxManager) Begin(ctx context.Context, opts ...*sql.TxOptions) (tx.Tx, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(tx.Tx), args.Error(1)
}

// Commit mocks the Commit method of tx.TransactionManager.
func (m *MockTxManager) Commit(t tx.Tx) error {
	return m.Called(t).Error(0)
}

// Rollback mocks the Rollback method of tx.TransactionManager.
func (m *MockTxManager) Rollback(t tx.Tx) error {
	return m.Called(t).Error(0)
}

// Ensure that MockTx implements the tx.Tx interface.
var _ tx.Tx = (*MockTx)(nil)

// Ensure that MockTxManager implements the tx.TransactionManager interface.
var _ tx.TransactionManager = (*MockTxManager)(nil)
