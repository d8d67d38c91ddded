// Package sql provides a gorm-backed JobRepository. Its tables are created by the
// embedded migrations under resources/migrations, one directory per dialect.
package sql

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"path"

	"gorm.io/gorm"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database"
	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/migration"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/repository"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
)

// Migrations holds the schema of the batch metadata tables.
//
//go:embed resources/migrations
var Migrations embed.FS

// MigrationPath returns the directory in Migrations for dbType.
func MigrationPath(dbType string) string {
	return path.Join("resources/migrations", dbType)
}

// SQLJobRepository implements repository.JobRepository on a relational database.
// Writes to the same JobExecution are serialized in-process; the version column
// detects concurrent writers in other processes.
type SQLJobRepository struct {
	dbResolver database.DBConnectionResolver
	// dbName is the connection under database.<name> holding the metadata tables.
	dbName string
	locks  repository.ExecutionLocks
}

var _ repository.JobRepository = (*SQLJobRepository)(nil)

// NewSQLJobRepository creates a repository on the connection dbName.
func NewSQLJobRepository(dbResolver database.DBConnectionResolver, dbName string) *SQLJobRepository {
	return &SQLJobRepository{dbResolver: dbResolver, dbName: dbName}
}

// Migrate creates or upgrades the metadata tables.
func (r *SQLJobRepository) Migrate(ctx context.Context) error {
	conn, err := r.dbResolver.ResolveDBConnection(ctx, r.dbName)
	if err != nil {
		return exception.NewRepositoryError(fmt.Sprintf("failed to resolve DB connection '%s'", r.dbName), err)
	}
	return migration.NewMigrator(conn).Up(ctx, Migrations, MigrationPath(conn.Type()), migration.FrameworkMigrationsTable)
}

// Close is a no-op; connections belong to the resolver.
func (r *SQLJobRepository) Close() error {
	return nil
}

// session returns a gorm session bound to ctx.
func (r *SQLJobRepository) session(ctx context.Context) (*gorm.DB, database.DBConnection, error) {
	conn, err := r.dbResolver.ResolveDBConnection(ctx, r.dbName)
	if err != nil {
		return nil, nil, exception.NewRepositoryError(fmt.Sprintf("failed to resolve DB connection '%s'", r.dbName), err)
	}
	return conn.GormDB().WithContext(ctx), conn, nil
}

// wrap turns a driver error into a repository error, pointing at migrations when
// the metadata tables are missing.
func wrap(conn database.DBConnection, message string, err error) error {
	if conn != nil && conn.IsTableNotExistError(err) {
		message += " (batch metadata tables are missing; run the migrations first)"
	}
	return exception.NewRepositoryError(message, err)
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
