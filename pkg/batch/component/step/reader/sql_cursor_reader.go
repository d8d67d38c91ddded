package reader

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// SqlCursorReader reads the rows of a query one at a time. On restart the query is
// re-issued with an OFFSET of the committed position, so the query must have a
// stable ORDER BY.
type SqlCursorReader[T any] struct {
	db        *sql.DB
	dialect   string
	name      string
	baseQuery string
	baseArgs  []any
	mapper    func(*sql.Rows) (T, error)
	rows      *sql.Rows
	readCount int
	ec        model.ExecutionContext
}

var _ port.ItemReader[any] = (*SqlCursorReader[any])(nil)

// NewSqlCursorReader creates a reader over db. dialect is "sqlite", "mysql" or "postgres"
// and selects the OFFSET syntax used on restart.
func NewSqlCursorReader[T any](db *sql.DB, dialect, name, query string, args []any, mapper func(*sql.Rows) (T, error)) *SqlCursorReader[T] {
	return &SqlCursorReader[T]{
		db:        db,
		dialect:   dialect,
		name:      name,
		baseQuery: query,
		baseArgs:  args,
		mapper:    mapper,
	}
}

// NewSqlCursorReaderFromConnection creates a reader on the pool of conn.
func NewSqlCursorReaderFromConnection[T any](conn database.DBConnection, name, query string, args []any, mapper func(*sql.Rows) (T, error)) (*SqlCursorReader[T], error) {
	db, err := conn.GetSQLDB()
	if err != nil {
		return nil, exception.NewSourceError(fmt.Sprintf("SqlCursorReader '%s': no sql.DB for connection '%s'", name, conn.Name()), err, false, false)
	}
	return NewSqlCursorReader(db, conn.Type(), name, query, args, mapper), nil
}

// offsetClause returns the clause appended to resume after n rows. SQLite and MySQL
// only accept OFFSET together with LIMIT.
func offsetClause(dialect string, argIndex int) string {
	switch dialect {
	case "postgres":
		return fmt.Sprintf(" OFFSET $%d", argIndex)
	case "mysql":
		return " LIMIT 18446744073709551615 OFFSET ?"
	default:
		return " LIMIT -1 OFFSET ?"
	}
}

// Open executes the query, skipping the rows committed by a previous attempt.
func (r *SqlCursorReader[T]) Open(ctx context.Context, ec model.ExecutionContext) error {
	r.ec = model.NewExecutionContext()
	r.readCount = resumePosition(ec, r.name)

	query := r.baseQuery
	args := append([]any{}, r.baseArgs...)
	if r.readCount > 0 {
		query += offsetClause(r.dialect, len(args)+1)
		args = append(args, r.readCount)
		logger.Infof("SqlCursorReader '%s': resuming at offset %d.", r.name, r.readCount)
	}
	logger.Debugf("SqlCursorReader '%s': query: %s", r.name, query)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return exception.NewSourceError(fmt.Sprintf("SqlCursorReader '%s': failed to execute query", r.name), err, false, false)
	}
	r.rows = rows
	r.ec.Put(r.name+readCountSuffix, r.readCount)
	return nil
}

// Read maps the next row, or returns io.EOF when the cursor is exhausted.
func (r *SqlCursorReader[T]) Read(ctx context.Context) (T, error) {
	var item T
	if r.rows == nil {
		return item, exception.NewSourceError(fmt.Sprintf("SqlCursorReader '%s' is not open", r.name), errors.New("reader not initialized"), false, false)
	}
	if !r.rows.Next() {
		if err := r.rows.Err(); err != nil {
			return item, exception.NewSourceError(fmt.Sprintf("SqlCursorReader '%s': row iteration failed", r.name), err, false, false)
		}
		return item, io.EOF
	}
	r.readCount++
	r.ec.Put(r.name+readCountSuffix, r.readCount)

	mapped, err := r.mapper(r.rows)
	if err != nil {
		return item, exception.NewSourceError(fmt.Sprintf("SqlCursorReader '%s': failed to map row %d: %v", r.name, r.readCount, err), exception.ErrDataConversion, false, false)
	}
	return mapped, nil
}

// Close releases the cursor.
func (r *SqlCursorReader[T]) Close(ctx context.Context) error {
	if r.rows == nil {
		return nil
	}
	err := r.rows.Close()
	r.rows = nil
	if err != nil {
		return exception.NewSourceError(fmt.Sprintf("SqlCursorReader '%s': failed to close rows", r.name), err, false, false)
	}
	return nil
}

// GetExecutionContext returns the reader state.
func (r *SqlCursorReader[T]) GetExecutionContext(ctx context.Context) (model.ExecutionContext, error) {
	if r.ec == nil {
		return model.NewExecutionContext(), nil
	}
	return r.ec, nil
}
