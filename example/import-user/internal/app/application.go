// Package app wires the import-user application with uber-fx.
package app

import (
	"context"
	"io/fs"

	"go.uber.org/fx"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/gorm"
	_ "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/gorm/mysql"
	_ "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/gorm/postgres"
	_ "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/gorm/sqlite"
	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage"
	_ "github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage/gcs"
	_ "github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage/local"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/application/usecase"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/config/bootstrap"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/job/runner"
	coremetrics "github.com/tigerroll/chunkbatch/pkg/batch/core/metrics"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/support/incrementer"
	"github.com/tigerroll/chunkbatch/pkg/batch/infrastructure/metrics"
	batchlistener "github.com/tigerroll/chunkbatch/pkg/batch/listener"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"

	"github.com/tigerroll/chunkbatch/example/import-user/internal/job"
)

// Options are the inputs of the application that do not come from configuration.
type Options struct {
	EnvFilePath    string
	EmbeddedConfig config.EmbeddedConfig
	// Migrations holds one directory of people migrations per dialect under MigrationsDir.
	Migrations    fs.FS
	MigrationsDir string
	Input         job.Input
}

// Application is the fx container with the launcher and the job it runs.
type Application struct {
	app      *fx.App
	Config   *config.Config
	Launcher *usecase.SimpleJobLauncher
	Job      *runner.FlowJob
}

// New builds the container. Nothing is started until Start.
func New(opts Options, extra ...fx.Option) (*Application, error) {
	a := &Application{}
	a.app = fx.New(
		fx.Supply(
			opts,
			opts.EmbeddedConfig,
			fx.Annotate(opts.EnvFilePath, fx.ResultTags(`name:"envFilePath"`)),
		),
		logger.Module,
		config.Module,
		gorm.Module,
		storage.Module,
		coremetrics.Module,
		metrics.Module,
		bootstrap.Module,
		incrementer.Module,
		batchlistener.Module,
		usecase.Module,
		Module,
		fx.Options(extra...),
		fx.Populate(&a.Config, &a.Launcher, &a.Job),
	)
	if err := a.app.Err(); err != nil {
		return nil, err
	}
	return a, nil
}

// Start runs the start hooks: repository and people migrations, telemetry exporters.
func (a *Application) Start(ctx context.Context) error {
	return a.app.Start(ctx)
}

// Stop closes the connections and flushes the exporters.
func (a *Application) Stop(ctx context.Context) error {
	return a.app.Stop(ctx)
}

// StartJob starts jobName in the background. An empty runID starts a fresh run.
func (a *Application) StartJob(ctx context.Context, jobName, runID string, params model.JobParameters) (*usecase.JobHandle, error) {
	if jobName != a.Job.JobName() {
		return nil, exception.NewBatchErrorf(exception.ModuleLauncher, "unknown job '%s', this application runs '%s'", jobName, a.Job.JobName())
	}
	return a.Launcher.Start(ctx, a.Job, runID, params)
}
