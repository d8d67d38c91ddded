package storage

import (
	"context"

	"go.uber.org/fx"
)

// Module provides the storage connection resolver and closes its connections on shutdown.
// Storage types are enabled by importing the local or gcs sub-package.
var Module = fx.Options(
	fx.Provide(NewConnectionResolver),
	fx.Provide(func(r *ConnectionResolver) StorageConnectionResolver { return r }),
	fx.Invoke(func(lc fx.Lifecycle, r *ConnectionResolver) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error { return r.CloseAll() },
		})
	}),
)
