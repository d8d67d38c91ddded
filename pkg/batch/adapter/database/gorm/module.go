package gorm

import (
	"context"

	"go.uber.org/fx"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database"
)

// Module provides the connection resolver and closes its connections on shutdown.
// Dialects are enabled by importing the sqlite, mysql or postgres sub-package.
var Module = fx.Options(
	fx.Provide(NewGormDBConnectionResolver),
	fx.Provide(func(r *GormDBConnectionResolver) database.DBConnectionResolver { return r }),
	fx.Invoke(func(lc fx.Lifecycle, r *GormDBConnectionResolver) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error { return r.CloseAll() },
		})
	}),
)
