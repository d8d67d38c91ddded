// Package storage defines the object storage abstraction used by file based writers.
// Implementations register themselves by type; see RegisterConnectionFactory.
package storage

import (
	"context"
	"io"
)

// StorageExecutor defines generic storage operations.
// An empty bucket selects the bucket configured for the connection.
type StorageExecutor interface {
	// Upload stores data as objectName. contentType is the MIME type of the data.
	Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error
	// Download opens objectName. The caller closes the returned reader.
	Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error)
	// ListObjects calls fn for every object whose name starts with prefix.
	ListObjects(ctx context.Context, bucket, prefix string, fn func(objectName string) error) error
	// DeleteObject removes objectName. Deleting a missing object is not an error.
	DeleteObject(ctx context.Context, bucket, objectName string) error
}

// StorageConnection is an open, named storage connection.
type StorageConnection interface {
	StorageExecutor

	// Name is the key of the connection under storage.<name> in the configuration.
	Name() string
	// Type is "local" or "gcs".
	Type() string
	Close() error
}

// StorageConnectionResolver hands out storage connections by name, opening them on first use.
type StorageConnectionResolver interface {
	ResolveStorageConnection(ctx context.Context, name string) (StorageConnection, error)
	// CloseAll closes every connection opened by the resolver.
	CloseAll() error
}
