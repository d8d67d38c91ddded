// Package migration applies embedded schema migrations with golang-migrate.
package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// Tables recording applied migrations.
const (
	FrameworkMigrationsTable = "batch_framework_migrations"
	AppMigrationsTable       = "batch_app_migrations"
)

// Migrator handles database schema migrations.
type Migrator interface {
	// Up applies all pending migrations found under path in fsys.
	Up(ctx context.Context, fsys fs.FS, path, tableName string) error
	// Down rolls back all applied migrations.
	Down(ctx context.Context, fsys fs.FS, path, tableName string) error
}

// migrator runs migrations over the pool of a DBConnection.
type migrator struct {
	conn database.DBConnection
}

// NewMigrator creates a Migrator for conn.
func NewMigrator(conn database.DBConnection) Migrator {
	return &migrator{conn: conn}
}

func (m *migrator) Up(ctx context.Context, fsys fs.FS, path, tableName string) error {
	return m.run(ctx, fsys, path, tableName, "up")
}

func (m *migrator) Down(ctx context.Context, fsys fs.FS, path, tableName string) error {
	return m.run(ctx, fsys, path, tableName, "down")
}

func databaseDriver(dbType string, sqlDB *sql.DB, tableName string) (migratedb.Driver, error) {
	switch dbType {
	case "postgres":
		return postgres.WithInstance(sqlDB, &postgres.Config{MigrationsTable: tableName})
	case "mysql":
		return mysql.WithInstance(sqlDB, &mysql.Config{MigrationsTable: tableName})
	case "sqlite":
		return sqlite.WithInstance(sqlDB, &sqlite.Config{MigrationsTable: tableName})
	default:
		return nil, fmt.Errorf("unsupported database type for migration: %s", dbType)
	}
}

func (m *migrator) run(ctx context.Context, fsys fs.FS, path, tableName, command string) error {
	dbType := m.conn.Type()
	logger.Infof("Executing migration '%s' on '%s' (Path: %s, Table: %s)", command, m.conn.Name(), path, tableName)

	sqlDB, err := m.conn.GetSQLDB()
	if err != nil {
		return exception.NewBatchError("migration", "failed to get underlying sql.DB", err, false, false)
	}
	source, err := iofs.New(fsys, path)
	if err != nil {
		return exception.NewBatchError("migration", fmt.Sprintf("failed to read migrations from %s", path), err, false, false)
	}
	// Closing the database driver would close the shared pool, so only the source is released.
	defer source.Close()

	driver, err := databaseDriver(dbType, sqlDB, tableName)
	if err != nil {
		return exception.NewBatchError("migration", "failed to create database driver", err, false, false)
	}
	instance, err := migrate.NewWithInstance("iofs", source, dbType, driver)
	if err != nil {
		return exception.NewBatchError("migration", "failed to create migrate instance", err, false, false)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			instance.GracefulStop <- true
		case <-done:
		}
	}()

	switch command {
	case "up":
		err = instance.Up()
	case "down":
		err = instance.Down()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		if version, dirty, verr := instance.Version(); verr == nil {
			logger.Errorf("Migration '%s' stopped at version %d (dirty: %t).", command, version, dirty)
		}
		return exception.NewBatchError("migration", fmt.Sprintf("migration '%s' failed (DB: %s, Path: %s)", command, dbType, path), err, false, false)
	}

	version, _, verr := instance.Version()
	if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
		return exception.NewBatchError("migration", "failed to read migration version", verr, false, false)
	}
	logger.Infof("Migration '%s' on '%s' completed (version %d).", command, m.conn.Name(), version)
	return nil
}
