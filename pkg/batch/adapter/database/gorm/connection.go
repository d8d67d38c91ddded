package gorm

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// GormDBAdapter implements database.DBConnection.
type GormDBAdapter struct {
	db    *gorm.DB
	sqlDB *sql.DB
	cfg   config.DatabaseConfig
	name  string
}

var _ database.DBConnection = (*GormDBAdapter)(nil)

// Open establishes a connection for cfg using the registered dialector and applies
// the pool settings. gormLogLevel controls gorm's own statement logging.
func Open(name string, cfg config.DatabaseConfig, gormLogLevel string) (*GormDBAdapter, error) {
	dialectorFactory, err := GetDialectorFactory(cfg.Type)
	if err != nil {
		return nil, err
	}
	dialector, err := dialectorFactory(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create dialector for %s: %w", cfg.Type, err)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 NewGormLogger(gormLogLevel),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open GORM connection '%s': %w", name, err)
	}
	conn, err := NewGormDBAdapter(db, cfg, name)
	if err != nil {
		return nil, err
	}

	if cfg.Pool.MaxOpenConns > 0 {
		conn.sqlDB.SetMaxOpenConns(cfg.Pool.MaxOpenConns)
	}
	if cfg.Pool.MaxIdleConns > 0 {
		conn.sqlDB.SetMaxIdleConns(cfg.Pool.MaxIdleConns)
	}
	if cfg.Pool.ConnMaxLifetimeMinutes > 0 {
		conn.sqlDB.SetConnMaxLifetime(time.Duration(cfg.Pool.ConnMaxLifetimeMinutes) * time.Minute)
	}
	logger.Infof("Established new DB connection: %s (%s)", name, cfg.Type)
	return conn, nil
}

// NewGormDBAdapter wraps an already opened gorm session.
func NewGormDBAdapter(db *gorm.DB, cfg config.DatabaseConfig, name string) (*GormDBAdapter, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying *sql.DB: %w", err)
	}
	return &GormDBAdapter{db: db, sqlDB: sqlDB, cfg: cfg, name: name}, nil
}

// GormDB returns the underlying *gorm.DB instance.
func (a *GormDBAdapter) GormDB() *gorm.DB {
	return a.db
}

// Close closes the connection pool.
func (a *GormDBAdapter) Close() error {
	logger.Infof("Closing database connection '%s'...", a.name)
	return a.sqlDB.Close()
}

// Type returns the dialect.
func (a *GormDBAdapter) Type() string {
	return a.cfg.Type
}

// Name returns the configured connection name.
func (a *GormDBAdapter) Name() string {
	return a.name
}

// Config returns the configuration the connection was opened with.
func (a *GormDBAdapter) Config() config.DatabaseConfig {
	return a.cfg
}

// GetSQLDB returns the pool.
func (a *GormDBAdapter) GetSQLDB() (*sql.DB, error) {
	if a.sqlDB == nil {
		return nil, fmt.Errorf("underlying sql.DB is nil")
	}
	return a.sqlDB, nil
}

// IsTableNotExistError reports the "missing table" error of each dialect.
func (a *GormDBAdapter) IsTableNotExistError(err error) bool {
	return IsTableNotExistError(err)
}

// IsTableNotExistError matches the "missing table" messages of PostgreSQL, MySQL and SQLite.
func IsTableNotExistError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return (strings.Contains(msg, "relation \"") && strings.Contains(msg, "\" does not exist")) ||
		(strings.Contains(msg, "Error 1146") && strings.Contains(msg, "doesn't exist")) ||
		strings.Contains(msg, "no such table:")
}
