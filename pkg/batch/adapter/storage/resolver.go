package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// ConnectionFactory opens a connection for a decoded storage configuration.
type ConnectionFactory func(ctx context.Context, cfg config.StorageConfig, name string) (StorageConnection, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]ConnectionFactory)
)

// RegisterConnectionFactory registers the factory for a storage type.
// Implementations call it from init, so importing the package enables the type.
func RegisterConnectionFactory(storageType string, factory ConnectionFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[storageType] = factory
}

func getConnectionFactory(storageType string) (ConnectionFactory, error) {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	factory, ok := factories[storageType]
	if !ok {
		return nil, fmt.Errorf("no storage implementation registered for type '%s'", storageType)
	}
	return factory, nil
}

// ConnectionResolver implements StorageConnectionResolver over storage.<name> entries.
type ConnectionResolver struct {
	cfg         *config.Config
	mu          sync.Mutex
	connections map[string]StorageConnection
}

var _ StorageConnectionResolver = (*ConnectionResolver)(nil)

// NewConnectionResolver creates a resolver for the storage connections in cfg.
func NewConnectionResolver(cfg *config.Config) *ConnectionResolver {
	return &ConnectionResolver{cfg: cfg, connections: make(map[string]StorageConnection)}
}

// ResolveStorageConnection returns the cached connection or opens it.
func (r *ConnectionResolver) ResolveStorageConnection(ctx context.Context, name string) (StorageConnection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conn, ok := r.connections[name]; ok {
		return conn, nil
	}
	storageCfg, err := r.cfg.StorageConfig(name)
	if err != nil {
		return nil, err
	}
	factory, err := getConnectionFactory(storageCfg.Type)
	if err != nil {
		return nil, fmt.Errorf("storage connection '%s': %w", name, err)
	}
	conn, err := factory(ctx, storageCfg, name)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage connection '%s': %w", name, err)
	}
	r.connections[name] = conn
	logger.Debugf("Opened storage connection '%s' (%s).", name, storageCfg.Type)
	return conn, nil
}

// CloseAll closes every open connection.
func (r *ConnectionResolver) CloseAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result *multierror.Error
	for name, conn := range r.connections {
		if err := conn.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to close storage connection '%s': %w", name, err))
		}
		delete(r.connections, name)
	}
	return result.ErrorOrNil()
}
