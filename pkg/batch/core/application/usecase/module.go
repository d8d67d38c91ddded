package usecase

import (
	"go.uber.org/fx"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/repository"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/metrics"
)

// LauncherParams are the Fx inputs of the launcher. Job listeners are collected
// from the "jobListeners" value group.
type LauncherParams struct {
	fx.In

	Repository     repository.JobRepository
	RunIDGenerator port.RunIDGenerator
	MetricRecorder metrics.MetricRecorder      `optional:"true"`
	Listeners      []port.JobExecutionListener `group:"jobListeners"`
}

// NewSimpleJobLauncherFromParams builds the launcher from Fx inputs.
func NewSimpleJobLauncherFromParams(p LauncherParams) *SimpleJobLauncher {
	return NewSimpleJobLauncher(p.Repository, p.RunIDGenerator, p.MetricRecorder, p.Listeners...)
}

// Module is the Fx module for JobLauncher and JobExplorer.
var Module = fx.Options(
	fx.Provide(fx.Annotate(
		NewSimpleJobExplorer,
		fx.As(new(JobExplorer)),
	)),
	fx.Provide(NewSimpleJobLauncherFromParams),
	fx.Provide(func(launcher *SimpleJobLauncher) JobLauncher { return launcher }),
)
