package metrics

import (
	"go.uber.org/fx"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
)

// Module contributes the SpanEventListener to the skip, retry and chunk listener groups.
var Module = fx.Options(
	fx.Provide(NewSpanEventListener),
	fx.Provide(
		fx.Annotate(func(l *SpanEventListener) port.SkipListener { return l }, fx.ResultTags(`group:"skipListeners"`)),
		fx.Annotate(func(l *SpanEventListener) port.RetryListener { return l }, fx.ResultTags(`group:"retryListeners"`)),
		fx.Annotate(func(l *SpanEventListener) port.ChunkListener { return l }, fx.ResultTags(`group:"chunkListeners"`)),
	),
)
