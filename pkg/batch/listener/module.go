// Package listener aggregates the listener modules and collects the step-level listener groups.
package listener

import (
	"go.uber.org/fx"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	"github.com/tigerroll/chunkbatch/pkg/batch/listener/logging"
	"github.com/tigerroll/chunkbatch/pkg/batch/listener/metrics"
)

// Module aggregates all listener modules of the batch framework.
// Job listeners join the "jobListeners" group consumed by the launcher.
var Module = fx.Options(
	logging.Module,
	metrics.Module,
)

// StepListeners collects the step-level listener groups for building steps.
type StepListeners struct {
	fx.In

	Step  []port.StepExecutionListener `group:"stepListeners"`
	Chunk []port.ChunkListener         `group:"chunkListeners"`
	Skip  []port.SkipListener          `group:"skipListeners"`
	Retry []port.RetryListener         `group:"retryListeners"`
}
