package sql

import (
	"context"

	"go.uber.org/fx"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/repository"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// NewSQLJobRepositoryFromConfig builds the repository on infrastructure.job_repository.db_ref
// and, when migrate is set, applies the metadata migrations on start.
func NewSQLJobRepositoryFromConfig(lc fx.Lifecycle, cfg *config.Config, dbResolver database.DBConnectionResolver) *SQLJobRepository {
	repoCfg := cfg.Infrastructure.JobRepository
	repo := NewSQLJobRepository(dbResolver, repoCfg.DBRef)
	if repoCfg.Migrate {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				logger.Infof("Applying batch metadata migrations on '%s'.", repoCfg.DBRef)
				return repo.Migrate(ctx)
			},
		})
	}
	return repo
}

// Module provides SQLJobRepository as the repository.JobRepository.
var Module = fx.Options(
	fx.Provide(
		fx.Annotate(
			NewSQLJobRepositoryFromConfig,
			fx.As(new(repository.JobRepository)),
		),
	),
)
