package logging

import (
	"go.uber.org/fx"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
)

// Module contributes the logging listeners to the listener value groups.
var Module = fx.Options(
	fx.Provide(
		fx.Annotate(NewLoggingJobListenerFromConfig, fx.As(new(port.JobExecutionListener)), fx.ResultTags(`group:"jobListeners"`)),
		fx.Annotate(NewLoggingStepListener, fx.As(new(port.StepExecutionListener)), fx.ResultTags(`group:"stepListeners"`)),
		fx.Annotate(NewLoggingChunkListener, fx.As(new(port.ChunkListener)), fx.ResultTags(`group:"chunkListeners"`)),
		fx.Annotate(NewLoggingSkipListener, fx.As(new(port.SkipListener)), fx.ResultTags(`group:"skipListeners"`)),
		fx.Annotate(NewLoggingRetryListener, fx.As(new(port.RetryListener)), fx.ResultTags(`group:"retryListeners"`)),
	),
)
