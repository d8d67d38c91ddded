// Package bootstrap wires the pieces every batch application needs at startup:
// the job repository selected by configuration and the application's own migrations.
package bootstrap

import (
	"context"
	"fmt"
	"io/fs"
	"path"

	"go.uber.org/fx"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database"
	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/migration"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/repository"
	"github.com/tigerroll/chunkbatch/pkg/batch/infrastructure/repository/inmemory"
	sqlrepo "github.com/tigerroll/chunkbatch/pkg/batch/infrastructure/repository/sql"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// Module provides the JobRepository and registers the application migrations hook.
var Module = fx.Options(
	fx.Provide(NewJobRepository),
	fx.Invoke(runAppMigrationsHook),
)

// AppMigrations is a set of migrations shipped by an application, one directory per
// dialect under Dir. Provide it in the "appMigrations" group.
type AppMigrations struct {
	DBRef string
	FS    fs.FS
	Dir   string
}

// NewJobRepository returns the repository configured under infrastructure.job_repository.
func NewJobRepository(lc fx.Lifecycle, cfg *config.Config, dbResolver database.DBConnectionResolver) (repository.JobRepository, error) {
	switch t := cfg.Infrastructure.JobRepository.Type; t {
	case config.RepositoryTypeInMemory, "":
		logger.Infof("Using in-memory JobRepository. Executions are not kept across processes.")
		return inmemory.NewInMemoryJobRepository(), nil
	case config.RepositoryTypeSQL:
		logger.Infof("Using SQL JobRepository on '%s'.", cfg.Infrastructure.JobRepository.DBRef)
		return sqlrepo.NewSQLJobRepositoryFromConfig(lc, cfg, dbResolver), nil
	default:
		return nil, fmt.Errorf("unknown job repository type '%s'", t)
	}
}

// AppMigrationsParams defines the dependencies of runAppMigrationsHook.
type AppMigrationsParams struct {
	fx.In
	Lifecycle  fx.Lifecycle
	Resolver   database.DBConnectionResolver
	Migrations []AppMigrations `group:"appMigrations"`
}

// runAppMigrationsHook applies every registered AppMigrations on start.
func runAppMigrationsHook(p AppMigrationsParams) {
	if len(p.Migrations) == 0 {
		return
	}
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			for _, m := range p.Migrations {
				conn, err := p.Resolver.ResolveDBConnection(ctx, m.DBRef)
				if err != nil {
					return fmt.Errorf("failed to resolve DB connection '%s' for application migrations: %w", m.DBRef, err)
				}
				if err := migration.NewMigrator(conn).Up(ctx, m.FS, path.Join(m.Dir, conn.Type()), migration.AppMigrationsTable); err != nil {
					return err
				}
			}
			return nil
		},
	})
}
