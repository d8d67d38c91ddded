// Package local stores objects as files under a base directory. A bucket is a
// sub-directory of the base directory.
package local

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	storageAdapter "github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// ProviderType is the storage.<name>.type value of local connections.
const ProviderType = "local"

func init() {
	storageAdapter.RegisterConnectionFactory(ProviderType, func(ctx context.Context, cfg config.StorageConfig, name string) (storageAdapter.StorageConnection, error) {
		return NewLocalAdapter(cfg, name)
	})
}

// LocalAdapter implements storage.StorageConnection on the local file system.
type LocalAdapter struct {
	cfg  config.StorageConfig
	name string
}

var _ storageAdapter.StorageConnection = (*LocalAdapter)(nil)

// NewLocalAdapter creates the adapter, creating BaseDir if it does not exist.
func NewLocalAdapter(cfg config.StorageConfig, name string) (*LocalAdapter, error) {
	if cfg.BaseDir == "" {
		return nil, fmt.Errorf("local storage '%s': base_dir must be specified", name)
	}
	info, err := os.Stat(cfg.BaseDir)
	switch {
	case os.IsNotExist(err):
		if err := os.MkdirAll(cfg.BaseDir, 0o755); err != nil {
			return nil, fmt.Errorf("local storage '%s': failed to create base_dir '%s': %w", name, cfg.BaseDir, err)
		}
	case err != nil:
		return nil, fmt.Errorf("local storage '%s': failed to stat base_dir '%s': %w", name, cfg.BaseDir, err)
	case !info.IsDir():
		return nil, fmt.Errorf("local storage '%s': base_dir '%s' is not a directory", name, cfg.BaseDir)
	}
	return &LocalAdapter{cfg: cfg, name: name}, nil
}

// Close holds no resources.
func (a *LocalAdapter) Close() error {
	return nil
}

// Type returns "local".
func (a *LocalAdapter) Type() string {
	return ProviderType
}

// Name returns the configured connection name.
func (a *LocalAdapter) Name() string {
	return a.name
}

// Upload writes data to a temporary file next to the target and renames it into
// place, so readers never see a partial object.
func (a *LocalAdapter) Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error {
	fullPath, err := a.resolvePath(bucket, objectName)
	if err != nil {
		return err
	}
	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory '%s': %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(fullPath)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file in '%s': %w", dir, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, contextReader{ctx: ctx, r: data}); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write '%s': %w", fullPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write '%s': %w", fullPath, err)
	}
	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		return fmt.Errorf("failed to move upload into '%s': %w", fullPath, err)
	}
	logger.Debugf("Uploaded '%s' (local storage '%s').", fullPath, a.name)
	return nil
}

// Download opens the object file.
func (a *LocalAdapter) Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error) {
	fullPath, err := a.resolvePath(bucket, objectName)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open '%s': %w", fullPath, err)
	}
	return file, nil
}

// ListObjects walks the bucket directory and reports object names relative to it.
func (a *LocalAdapter) ListObjects(ctx context.Context, bucket, prefix string, fn func(objectName string) error) error {
	basePath, err := a.resolvePath(bucket, "")
	if err != nil {
		return err
	}
	err = filepath.WalkDir(basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == basePath {
				return filepath.SkipDir
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		rel, err := filepath.Rel(basePath, path)
		if err != nil {
			return err
		}
		objectName := filepath.ToSlash(rel)
		if !strings.HasPrefix(objectName, prefix) {
			return nil
		}
		return fn(objectName)
	})
	if err != nil {
		return fmt.Errorf("failed to list objects in '%s' with prefix '%s': %w", basePath, prefix, err)
	}
	return nil
}

// DeleteObject removes the object file.
func (a *LocalAdapter) DeleteObject(ctx context.Context, bucket, objectName string) error {
	fullPath, err := a.resolvePath(bucket, objectName)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete '%s': %w", fullPath, err)
	}
	return nil
}

// resolvePath maps bucket/objectName into BaseDir and rejects paths escaping it.
func (a *LocalAdapter) resolvePath(bucket, objectName string) (string, error) {
	if bucket == "" {
		bucket = a.cfg.BucketName
	}
	fullPath := filepath.Join(a.cfg.BaseDir, bucket, objectName)

	absBase, err := filepath.Abs(a.cfg.BaseDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base_dir '%s': %w", a.cfg.BaseDir, err)
	}
	absFull, err := filepath.Abs(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve '%s': %w", fullPath, err)
	}
	if absFull != absBase && !strings.HasPrefix(absFull, absBase+string(filepath.Separator)) {
		return "", fmt.Errorf("object path '%s' is outside of base_dir '%s'", fullPath, a.cfg.BaseDir)
	}
	return fullPath, nil
}

// contextReader stops a copy once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
