// Package database defines the database connection abstraction shared by the job
// repository, readers and writers.
package database

import (
	"context"
	"database/sql"

	"gorm.io/gorm"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/config"
)

// DBConnection is an open, named database connection.
type DBConnection interface {
	// Name is the key of the connection under database.<name> in the configuration.
	Name() string
	// Type is the dialect: "sqlite", "mysql" or "postgres".
	Type() string
	Close() error

	// GormDB returns the session used by gorm-based components.
	GormDB() *gorm.DB
	// GetSQLDB returns the underlying *sql.DB connection.
	GetSQLDB() (*sql.DB, error)
	// Config returns the database configuration associated with this connection.
	Config() config.DatabaseConfig
	// IsTableNotExistError checks if the given error indicates that a table does not exist.
	IsTableNotExistError(err error) bool
}

// DBConnectionResolver hands out connections by name, opening them on first use.
type DBConnectionResolver interface {
	// ResolveDBConnection returns a live connection, re-establishing it if a ping fails.
	ResolveDBConnection(ctx context.Context, name string) (DBConnection, error)
	// CloseAll closes every connection opened by the resolver.
	CloseAll() error
}
