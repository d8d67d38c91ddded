package gorm

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/tx"
)

// GormTxAdapter implements tx.Tx over an open gorm transaction.
type GormTxAdapter struct {
	db *gorm.DB
}

var _ tx.Tx = (*GormTxAdapter)(nil)

// ExecuteUpsert implements tx.TxExecutor with INSERT ... ON CONFLICT. rows is not modified:
// keys generated by the insert stay out of the caller's items, so a retried chunk is
// inserted again as new rows.
func (t *GormTxAdapter) ExecuteUpsert(ctx context.Context, rows interface{}, tableName string, conflictColumns []string, updateColumns []string) (rowsAffected int64, err error) {
	db := t.db.WithContext(ctx)
	if tableName != "" {
		db = db.Table(tableName)
	}

	columns := make([]clause.Column, 0, len(conflictColumns))
	for _, col := range conflictColumns {
		columns = append(columns, clause.Column{Name: col})
	}
	onConflict := clause.OnConflict{Columns: columns}
	if len(updateColumns) > 0 {
		onConflict.DoUpdates = clause.AssignmentColumns(updateColumns)
	} else {
		onConflict.DoNothing = true
	}

	result := db.Clauses(onConflict).Create(detachedRows(rows))
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// detachedRows copies a slice of structs or struct pointers, or a single struct pointer,
// so that Create writes generated keys into the copy.
func detachedRows(rows interface{}) interface{} {
	v := reflect.ValueOf(rows)
	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() {
			return rows
		}
		if v.Elem().Kind() == reflect.Slice {
			return detachedRows(v.Elem().Interface())
		}
		c := reflect.New(v.Elem().Type())
		c.Elem().Set(v.Elem())
		return c.Interface()
	case reflect.Slice:
		out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			e := v.Index(i)
			if e.Kind() == reflect.Pointer && !e.IsNil() {
				c := reflect.New(e.Type().Elem())
				c.Elem().Set(e.Elem())
				e = c
			}
			out.Index(i).Set(e)
		}
		return out.Interface()
	default:
		return rows
	}
}

// Exec implements tx.TxExecutor.
func (t *GormTxAdapter) Exec(ctx context.Context, query string, args ...interface{}) (rowsAffected int64, err error) {
	result := t.db.WithContext(ctx).Exec(query, args...)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// Savepoint implements tx.Tx.
func (t *GormTxAdapter) Savepoint(name string) error {
	return t.db.SavePoint(name).Error
}

// RollbackToSavepoint implements tx.Tx.
func (t *GormTxAdapter) RollbackToSavepoint(name string) error {
	return t.db.RollbackTo(name).Error
}

// GormDB exposes the transaction session to gorm-based writers.
func (t *GormTxAdapter) GormDB() *gorm.DB {
	return t.db
}

// GormTransactionManager implements tx.TransactionManager on a named connection.
// The connection is resolved on every Begin so a dropped connection is re-established
// between chunks.
type GormTransactionManager struct {
	dbResolver database.DBConnectionResolver
	dbName     string
}

var _ tx.TransactionManager = (*GormTransactionManager)(nil)

// NewGormTransactionManager creates a transaction manager for the connection called dbName.
func NewGormTransactionManager(dbResolver database.DBConnectionResolver, dbName string) *GormTransactionManager {
	return &GormTransactionManager{dbResolver: dbResolver, dbName: dbName}
}

// Begin starts a transaction.
func (m *GormTransactionManager) Begin(ctx context.Context, opts ...*sql.TxOptions) (tx.Tx, error) {
	conn, err := m.dbResolver.ResolveDBConnection(ctx, m.dbName)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve DB connection '%s' for transaction: %w", m.dbName, err)
	}

	var txOpts *sql.TxOptions
	if len(opts) > 0 && opts[0] != nil {
		txOpts = opts[0]
	}

	gormTx := conn.GormDB().WithContext(ctx).Begin(txOpts)
	if gormTx.Error != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", gormTx.Error)
	}
	return &GormTxAdapter{db: gormTx}, nil
}

// Commit commits t.
func (m *GormTransactionManager) Commit(t tx.Tx) error {
	gormTxAdapter, ok := t.(*GormTxAdapter)
	if !ok {
		return fmt.Errorf("invalid transaction type: expected *GormTxAdapter, got %T", t)
	}
	return gormTxAdapter.db.Commit().Error
}

// Rollback rolls t back.
func (m *GormTransactionManager) Rollback(t tx.Tx) error {
	gormTxAdapter, ok := t.(*GormTxAdapter)
	if !ok {
		return fmt.Errorf("invalid transaction type: expected *GormTxAdapter, got %T", t)
	}
	return gormTxAdapter.db.Rollback().Error
}
