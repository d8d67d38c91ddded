package listener_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/chunkbatch/example/import-user/internal/domain"
	"github.com/tigerroll/chunkbatch/example/import-user/internal/listener"
	gormadapter "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/gorm"
	_ "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/gorm/sqlite"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	t.Cleanup(func() { logger.SetOutput(os.Stderr) })
	return &buf
}

func newResolver(t *testing.T, migrate bool) *gormadapter.GormDBConnectionResolver {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Database["app"] = map[string]interface{}{
		"type":     "sqlite",
		"database": filepath.Join(t.TempDir(), "people.db"),
	}
	r := gormadapter.NewGormDBConnectionResolver(cfg)
	t.Cleanup(func() { _ = r.CloseAll() })
	if migrate {
		conn, err := r.ResolveDBConnection(context.Background(), "app")
		require.NoError(t, err)
		require.NoError(t, conn.GormDB().AutoMigrate(&domain.Person{}))
		require.NoError(t, conn.GormDB().Create([]domain.Person{{FirstName: "JILL", LastName: "DOE"}, {FirstName: "jill", LastName: "doe"}}).Error)
	}
	return r
}

func TestJobCompletionNotificationListener_LogsPeopleOnCompletion(t *testing.T) {
	buf := captureLog(t)
	l := listener.NewJobCompletionNotificationListener(newResolver(t, true), "app")

	execution := model.NewJobExecution("importUserJob", "1", nil)
	execution.Status = model.BatchStatusCompleted
	require.NoError(t, l.AfterJob(context.Background(), execution))

	out := buf.String()
	assert.Contains(t, out, "!!! JOB FINISHED! Time to verify the results")
	assert.Contains(t, out, "Found <firstName: JILL, lastName: DOE> in the database.")
	assert.Contains(t, out, "Found <firstName: jill, lastName: doe> in the database.")
}

func TestJobCompletionNotificationListener_IgnoresOtherStatuses(t *testing.T) {
	buf := captureLog(t)
	l := listener.NewJobCompletionNotificationListener(newResolver(t, true), "app")

	execution := model.NewJobExecution("importUserJob", "1", nil)
	execution.Status = model.BatchStatusFailed
	require.NoError(t, l.AfterJob(context.Background(), execution))
	assert.NotContains(t, buf.String(), "JOB FINISHED")
}

func TestJobCompletionNotificationListener_QueryFailureIsOnlyLogged(t *testing.T) {
	buf := captureLog(t)
	l := listener.NewJobCompletionNotificationListener(newResolver(t, false), "app")

	execution := model.NewJobExecution("importUserJob", "1", nil)
	execution.Status = model.BatchStatusCompleted
	assert.NoError(t, l.AfterJob(context.Background(), execution))
	assert.Contains(t, buf.String(), "Failed to query people")
}
