package model

import "path"

// Transition is a status-conditioned edge leaving a flow element.
// Exactly one of To, End, Fail or Stop decides where the flow goes.
type Transition struct {
	// On is a glob pattern matched against the element's exit status ("COMPLETED", "FAIL*", "*").
	On string
	// To names the next element.
	To string
	// End finishes the job COMPLETED.
	End bool
	// Fail finishes the job FAILED.
	Fail bool
	// Stop finishes the job STOPPED, leaving it restartable.
	Stop bool
}

// Matches reports whether the transition applies to status.
func (t Transition) Matches(status BatchStatus) bool {
	if t.On == "" || t.On == "*" {
		return true
	}
	ok, err := path.Match(t.On, string(status))
	return err == nil && ok
}

// FindTransition returns the first transition matching status, preferring exact patterns over wildcards.
func FindTransition(transitions []Transition, status BatchStatus) (Transition, bool) {
	for _, t := range transitions {
		if t.On == string(status) {
			return t, true
		}
	}
	for _, t := range transitions {
		if t.On != string(status) && t.Matches(status) {
			return t, true
		}
	}
	return Transition{}, false
}
