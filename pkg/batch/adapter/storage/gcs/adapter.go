// Package gcs stores objects in Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	storageAdapter "github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// ProviderType is the storage.<name>.type value of GCS connections.
const ProviderType = "gcs"

func init() {
	storageAdapter.RegisterConnectionFactory(ProviderType, func(ctx context.Context, cfg config.StorageConfig, name string) (storageAdapter.StorageConnection, error) {
		return NewGCSAdapter(ctx, cfg, name)
	})
}

// GCSAdapter implements storage.StorageConnection with a GCS client.
type GCSAdapter struct {
	client *storage.Client
	cfg    config.StorageConfig
	name   string
}

var _ storageAdapter.StorageConnection = (*GCSAdapter)(nil)

// NewGCSAdapter creates a client for cfg. An endpoint without a credentials file is
// treated as an emulator and used without authentication; otherwise application
// default credentials apply.
func NewGCSAdapter(ctx context.Context, cfg config.StorageConfig, name string) (*GCSAdapter, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
		if cfg.CredentialsFile == "" {
			opts = append(opts, option.WithoutAuthentication())
		}
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs storage '%s': failed to create client: %w", name, err)
	}
	logger.Infof("Created GCS client for storage '%s' (bucket: %s).", name, cfg.BucketName)
	return &GCSAdapter{client: client, cfg: cfg, name: name}, nil
}

// Close closes the client.
func (a *GCSAdapter) Close() error {
	return a.client.Close()
}

// Type returns "gcs".
func (a *GCSAdapter) Type() string {
	return ProviderType
}

// Name returns the configured connection name.
func (a *GCSAdapter) Name() string {
	return a.name
}

func (a *GCSAdapter) bucket(name string) (*storage.BucketHandle, error) {
	if name == "" {
		name = a.cfg.BucketName
	}
	if name == "" {
		return nil, fmt.Errorf("gcs storage '%s': no bucket given and bucket_name is not configured", a.name)
	}
	return a.client.Bucket(name), nil
}

// Upload streams data into the object. The object only becomes visible once the
// writer is closed successfully.
func (a *GCSAdapter) Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error {
	bh, err := a.bucket(bucket)
	if err != nil {
		return err
	}
	w := bh.Object(objectName).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, data); err != nil {
		w.Close()
		return fmt.Errorf("failed to upload gs://%s/%s: %w", w.Bucket, objectName, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize gs://%s/%s: %w", w.Bucket, objectName, err)
	}
	logger.Debugf("Uploaded gs://%s/%s (storage '%s').", w.Bucket, objectName, a.name)
	return nil
}

// Download opens a reader on the object.
func (a *GCSAdapter) Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error) {
	bh, err := a.bucket(bucket)
	if err != nil {
		return nil, err
	}
	r, err := bh.Object(objectName).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open gs object '%s': %w", objectName, err)
	}
	return r, nil
}

// ListObjects iterates the objects under prefix.
func (a *GCSAdapter) ListObjects(ctx context.Context, bucket, prefix string, fn func(objectName string) error) error {
	bh, err := a.bucket(bucket)
	if err != nil {
		return err
	}
	it := bh.Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to list objects with prefix '%s': %w", prefix, err)
		}
		if err := fn(attrs.Name); err != nil {
			return err
		}
	}
}

// DeleteObject deletes the object; a missing object is ignored.
func (a *GCSAdapter) DeleteObject(ctx context.Context, bucket, objectName string) error {
	bh, err := a.bucket(bucket)
	if err != nil {
		return err
	}
	if err := bh.Object(objectName).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete gs object '%s': %w", objectName, err)
	}
	return nil
}
