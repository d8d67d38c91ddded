package app

import (
	"context"

	"go.uber.org/fx"

	"github.com/tigerroll/chunkbatch/example/import-user/internal/job"
	"github.com/tigerroll/chunkbatch/example/import-user/internal/listener"
	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/config/bootstrap"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/job/runner"
)

// PeopleDBRef names the database holding the people table.
const PeopleDBRef = "app"

// Module provides importUserJob, its completion listener and the people migrations.
var Module = fx.Options(
	fx.Supply(fx.Annotate(PeopleDBRef, fx.ResultTags(`name:"peopleDBRef"`))),
	fx.Provide(func(o Options) job.Input { return o.Input }),
	fx.Provide(func(p job.Params) (*runner.FlowJob, error) {
		return job.NewImportUserJob(context.Background(), p)
	}),
	fx.Provide(fx.Annotate(
		func(r database.DBConnectionResolver) *listener.JobCompletionNotificationListener {
			return listener.NewJobCompletionNotificationListener(r, PeopleDBRef)
		},
		fx.As(new(port.JobExecutionListener)),
		fx.ResultTags(`group:"jobListeners"`),
	)),
	fx.Provide(fx.Annotate(
		func(o Options) bootstrap.AppMigrations {
			return bootstrap.AppMigrations{DBRef: PeopleDBRef, FS: o.Migrations, Dir: o.MigrationsDir}
		},
		fx.ResultTags(`group:"appMigrations"`),
	)),
)
