package storage_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage"
	_ "github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage/local"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/config"
)

type failingConn struct{ name string }

func (c *failingConn) Upload(context.Context, string, string, io.Reader, string) error { return nil }
func (c *failingConn) Download(context.Context, string, string) (io.ReadCloser, error) {
	return nil, errors.New("not supported")
}
func (c *failingConn) ListObjects(context.Context, string, string, func(string) error) error {
	return nil
}
func (c *failingConn) DeleteObject(context.Context, string, string) error { return nil }
func (c *failingConn) Name() string                                       { return c.name }
func (c *failingConn) Type() string                                       { return "failing" }
func (c *failingConn) Close() error                                       { return errors.New("close failed") }

func init() {
	storage.RegisterConnectionFactory("failing", func(ctx context.Context, cfg config.StorageConfig, name string) (storage.StorageConnection, error) {
		return &failingConn{name: name}, nil
	})
}

func TestConnectionResolver(t *testing.T) {
	ctx := context.Background()
	cfg := config.NewConfig()
	cfg.Storage["exports"] = map[string]interface{}{"type": "local", "base_dir": filepath.Join(t.TempDir(), "exports")}
	cfg.Storage["remote"] = map[string]interface{}{"type": "s3"}
	r := storage.NewConnectionResolver(cfg)

	conn, err := r.ResolveStorageConnection(ctx, "exports")
	require.NoError(t, err)
	assert.Equal(t, "local", conn.Type())
	assert.Equal(t, "exports", conn.Name())
	again, err := r.ResolveStorageConnection(ctx, "exports")
	require.NoError(t, err)
	assert.Same(t, conn, again)

	require.NoError(t, conn.Upload(ctx, "", "people/a.txt", bytes.NewBufferString("a"), "text/plain"))
	rc, err := conn.Download(ctx, "", "people/a.txt")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "a", string(data))

	_, err = r.ResolveStorageConnection(ctx, "remote")
	assert.ErrorContains(t, err, "no storage implementation registered for type 's3'")
	_, err = r.ResolveStorageConnection(ctx, "missing")
	assert.Error(t, err)

	assert.NoError(t, r.CloseAll())
}

func TestConnectionResolver_CloseAllCollectsErrors(t *testing.T) {
	ctx := context.Background()
	cfg := config.NewConfig()
	cfg.Storage["a"] = map[string]interface{}{"type": "failing"}
	cfg.Storage["b"] = map[string]interface{}{"type": "failing"}
	r := storage.NewConnectionResolver(cfg)

	for _, name := range []string{"a", "b"} {
		_, err := r.ResolveStorageConnection(ctx, name)
		require.NoError(t, err)
	}
	err := r.CloseAll()
	require.Error(t, err)
	assert.Equal(t, 2, strings.Count(err.Error(), "close failed"))
	assert.NoError(t, r.CloseAll(), "closed connections are forgotten")
}
