package metrics

import "go.uber.org/fx"

// Module provides the no-op recorder and tracer. Applications that enable telemetry
// decorate them with the implementations from infrastructure/metrics.
var Module = fx.Options(
	fx.Provide(NewNoOpMetricRecorder, NewNoOpTracer),
)
