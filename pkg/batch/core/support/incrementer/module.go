package incrementer

import (
	"go.uber.org/fx"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/repository"
)

// Module provides the RunIDGenerator selected by batch.run_id_strategy.
var Module = fx.Options(
	fx.Provide(func(cfg *config.Config, repo repository.JobRepository) (port.RunIDGenerator, error) {
		return New(cfg.Batch.RunIDStrategy, repo)
	}),
)
