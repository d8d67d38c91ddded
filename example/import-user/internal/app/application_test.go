package app_test

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"

	"github.com/tigerroll/chunkbatch/example/import-user/internal/app"
	"github.com/tigerroll/chunkbatch/example/import-user/internal/domain"
	"github.com/tigerroll/chunkbatch/example/import-user/internal/job"
	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
)

const testConfig = `
batch:
  job_name: importUserJob
  chunk_size: 2
infrastructure:
  job_repository:
    type: sql
    db_ref: app
    migrate: true
database:
  app:
    type: sqlite
    database: %s
storage:
  exports:
    type: local
    base_dir: %s
export:
  enabled: %t
  storage_ref: exports
  output_path: people/people.parquet
  compression: GZIP
`

const sampleData = "Jill,Doe\nJoe,Doe\nJustin,Doe\nJane,Doe\nJohn,Doe\n"

type testApp struct {
	*app.Application
	resolver  database.DBConnectionResolver
	input     fstest.MapFS
	exportDir string
}

func newTestApp(t *testing.T, export bool, csv string) *testApp {
	t.Helper()
	dir := t.TempDir()
	ta := &testApp{
		input:     fstest.MapFS{"people.csv": {Data: []byte(csv)}},
		exportDir: filepath.Join(dir, "exports"),
	}
	a, err := app.New(app.Options{
		EnvFilePath:    filepath.Join(dir, "missing.env"),
		EmbeddedConfig: config.EmbeddedConfig(fmt.Sprintf(testConfig, filepath.Join(dir, "batch.db"), ta.exportDir, export)),
		Migrations:     os.DirFS("../../cmd/import-user/resources"),
		MigrationsDir:  "migrations",
		Input:          job.Input{FS: ta.input, Path: "people.csv"},
	}, fx.Populate(&ta.resolver))
	require.NoError(t, err)
	ta.Application = a

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, a.Start(ctx))
	t.Cleanup(func() { _ = a.Stop(context.Background()) })
	return ta
}

func (ta *testApp) run(t *testing.T, runID string) *model.JobExecution {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	h, err := ta.StartJob(ctx, job.JobName, runID, nil)
	require.NoError(t, err)
	execution, _ := h.Wait(ctx)
	require.NotNil(t, execution)
	return execution
}

func (ta *testApp) people(t *testing.T) []string {
	t.Helper()
	conn, err := ta.resolver.ResolveDBConnection(context.Background(), app.PeopleDBRef)
	require.NoError(t, err)
	var people []domain.Person
	require.NoError(t, conn.GormDB().Order("id").Find(&people).Error)
	names := make([]string, 0, len(people))
	for _, p := range people {
		names = append(names, p.FirstName+" "+p.LastName)
	}
	return names
}

func TestImportUserJob_UppercaseThenLowercase(t *testing.T) {
	ta := newTestApp(t, false, sampleData)

	execution := ta.run(t, "")
	require.Equal(t, model.BatchStatusCompleted, execution.Status, execution.ExitDescription)

	assert.Equal(t, []string{
		"JILL DOE", "JOE DOE", "JUSTIN DOE", "JANE DOE", "JOHN DOE",
		"jill doe", "joe doe", "justin doe", "jane doe", "john doe",
	}, ta.people(t))

	upper, ok := execution.StepExecution(job.StepToUppercase)
	require.True(t, ok)
	assert.Equal(t, 5, upper.ReadCount)
	assert.Equal(t, 5, upper.WriteCount)

	lower, ok := execution.StepExecution(job.StepToLowercase)
	require.True(t, ok)
	assert.Equal(t, 5, lower.ReadCount, "rows written by the step are not read back")
	assert.Equal(t, 5, lower.WriteCount)

	again := ta.run(t, execution.RunID)
	assert.Equal(t, execution.ID, again.ID, "a COMPLETED run is not executed again")
	assert.Len(t, ta.people(t), 10)
}

func TestImportUserJob_RestartResumesAfterCommittedChunk(t *testing.T) {
	ta := newTestApp(t, false, "Jill,Doe\nJoe,Doe\nJustin\nJane,Doe\nJohn,Doe\n")

	failed := ta.run(t, "")
	require.Equal(t, model.BatchStatusFailed, failed.Status)
	assert.Contains(t, failed.ExitDescription, "expected 2 fields, found 1")
	assert.Equal(t, []string{"JILL DOE", "JOE DOE"}, ta.people(t))
	_, ranStep2 := failed.StepExecution(job.StepToLowercase)
	assert.False(t, ranStep2)

	ta.input["people.csv"] = &fstest.MapFile{Data: []byte(sampleData)}
	restarted := ta.run(t, failed.RunID)
	require.Equal(t, model.BatchStatusCompleted, restarted.Status, restarted.ExitDescription)
	assert.Equal(t, failed.RunID, restarted.RunID)
	assert.NotEqual(t, failed.ID, restarted.ID)

	assert.Equal(t, []string{
		"JILL DOE", "JOE DOE", "JUSTIN DOE", "JANE DOE", "JOHN DOE",
		"jill doe", "joe doe", "justin doe", "jane doe", "john doe",
	}, ta.people(t))
}

func TestImportUserJob_ExportsParquet(t *testing.T) {
	ta := newTestApp(t, true, sampleData)

	execution := ta.run(t, "")
	require.Equal(t, model.BatchStatusCompleted, execution.Status, execution.ExitDescription)

	exported, ok := execution.StepExecution(job.StepExportPeople)
	require.True(t, ok)
	assert.Equal(t, 10, exported.WriteCount)

	parts, err := filepath.Glob(filepath.Join(ta.exportDir, "people", "people-*.parquet"))
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(ta.exportDir, "people", "people-000000000.parquet"),
		filepath.Join(ta.exportDir, "people", "people-000000002.parquet"),
		filepath.Join(ta.exportDir, "people", "people-000000004.parquet"),
		filepath.Join(ta.exportDir, "people", "people-000000006.parquet"),
		filepath.Join(ta.exportDir, "people", "people-000000008.parquet"),
	}, parts, "one part per committed chunk")
	for _, part := range parts {
		data, err := os.ReadFile(part)
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(data, []byte("PAR1")))
	}
}

func TestApplication_UnknownJob(t *testing.T) {
	ta := newTestApp(t, false, sampleData)
	_, err := ta.StartJob(context.Background(), "otherJob", "", nil)
	assert.ErrorContains(t, err, "unknown job 'otherJob'")
}
