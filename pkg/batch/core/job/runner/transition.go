package runner

import "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"

// On starts a transition for exit statuses matching pattern ("COMPLETED", "FAILED", "*").
//
//	flow.Step(load, runner.On("FAILED").To("cleanup"), runner.On("*").To("report"))
func On(pattern string) TransitionBuilder {
	return TransitionBuilder{on: pattern}
}

// TransitionBuilder completes a transition started with On.
type TransitionBuilder struct {
	on string
}

// To continues the flow at element id.
func (b TransitionBuilder) To(id string) model.Transition {
	return model.Transition{On: b.on, To: id}
}

// End finishes the job COMPLETED.
func (b TransitionBuilder) End() model.Transition {
	return model.Transition{On: b.on, End: true}
}

// Fail finishes the job FAILED.
func (b TransitionBuilder) Fail() model.Transition {
	return model.Transition{On: b.on, Fail: true}
}

// Stop finishes the job STOPPED so that it can be restarted.
func (b TransitionBuilder) Stop() model.Transition {
	return model.Transition{On: b.on, Stop: true}
}
