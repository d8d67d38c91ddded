package gorm

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// GormDBConnectionResolver opens configured connections lazily and keeps one per name.
type GormDBConnectionResolver struct {
	cfg         *config.Config
	connections map[string]database.DBConnection
	mu          sync.Mutex
}

var _ database.DBConnectionResolver = (*GormDBConnectionResolver)(nil)

// NewGormDBConnectionResolver creates a resolver over the database.<name> entries of cfg.
func NewGormDBConnectionResolver(cfg *config.Config) *GormDBConnectionResolver {
	return &GormDBConnectionResolver{
		cfg:         cfg,
		connections: make(map[string]database.DBConnection),
	}
}

// Register adds an externally opened connection under its name.
func (r *GormDBConnectionResolver) Register(conn database.DBConnection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connections[conn.Name()] = conn
}

// ResolveDBConnection resolves a database connection with the specified name.
// It reconnects if the existing connection no longer answers a ping.
func (r *GormDBConnectionResolver) ResolveDBConnection(ctx context.Context, name string) (database.DBConnection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conn, ok := r.connections[name]; ok {
		sqlDB, err := conn.GetSQLDB()
		if err != nil {
			return nil, err
		}
		pingErr := sqlDB.PingContext(ctx)
		if pingErr == nil {
			return conn, nil
		}
		logger.Warnf("DBConnectionResolver: Connection '%s' is invalid (%v). Attempting to reconnect.", name, pingErr)
		if err := conn.Close(); err != nil {
			logger.Warnf("Failed to close existing connection '%s' before reconnect: %v", name, err)
		}
		delete(r.connections, name)
	}

	dbConfig, err := r.cfg.DatabaseConfig(name)
	if err != nil {
		return nil, fmt.Errorf("DBConnectionResolver: %w", err)
	}
	conn, err := Open(name, dbConfig, r.gormLogLevel())
	if err != nil {
		return nil, fmt.Errorf("DBConnectionResolver: failed to open connection '%s': %w", name, err)
	}
	r.connections[name] = conn
	return conn, nil
}

// CloseAll closes all connections managed by this resolver.
func (r *GormDBConnectionResolver) CloseAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result *multierror.Error
	for name, conn := range r.connections {
		if err := conn.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to close connection '%s': %w", name, err))
		}
		delete(r.connections, name)
	}
	return result.ErrorOrNil()
}

// gormLogLevel keeps gorm quiet unless the batch log level is DEBUG or TRACE.
func (r *GormDBConnectionResolver) gormLogLevel() string {
	switch config.LogLevel(r.cfg.System.Logging.Level) {
	case config.LogLevelDebug, config.LogLevelTrace:
		return string(config.LogLevelInfo)
	}
	return string(config.LogLevelSilent)
}
