package migration_test

import (
	"context"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gormadapter "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/gorm"
	_ "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/gorm/sqlite"
	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/migration"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/config"
)

var migrations = fstest.MapFS{
	"sqlite/000001_create_people.up.sql":   {Data: []byte("CREATE TABLE people (id INTEGER PRIMARY KEY AUTOINCREMENT, first_name VARCHAR(20));")},
	"sqlite/000001_create_people.down.sql": {Data: []byte("DROP TABLE people;")},
}

func tableExists(t *testing.T, r *gormadapter.GormDBConnectionResolver, table string) bool {
	t.Helper()
	conn, err := r.ResolveDBConnection(context.Background(), "app")
	require.NoError(t, err)
	var n int64
	require.NoError(t, conn.GormDB().Raw("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&n).Error)
	return n == 1
}

func TestMigrator_UpAndDown(t *testing.T) {
	ctx := context.Background()
	cfg := config.NewConfig()
	cfg.Database["app"] = map[string]interface{}{"type": "sqlite", "database": filepath.Join(t.TempDir(), "app.db")}
	r := gormadapter.NewGormDBConnectionResolver(cfg)
	t.Cleanup(func() { _ = r.CloseAll() })

	conn, err := r.ResolveDBConnection(ctx, "app")
	require.NoError(t, err)
	m := migration.NewMigrator(conn)

	require.NoError(t, m.Up(ctx, migrations, "sqlite", migration.AppMigrationsTable))
	assert.True(t, tableExists(t, r, "people"))
	assert.True(t, tableExists(t, r, migration.AppMigrationsTable))
	require.NoError(t, m.Up(ctx, migrations, "sqlite", migration.AppMigrationsTable), "no pending migrations is not an error")

	require.NoError(t, m.Down(ctx, migrations, "sqlite", migration.AppMigrationsTable))
	assert.False(t, tableExists(t, r, "people"))

	err = m.Up(ctx, migrations, "postgres", migration.AppMigrationsTable)
	assert.ErrorContains(t, err, "failed to read migrations from postgres")
}
