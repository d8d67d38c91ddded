package model

// BatchStatus is the lifecycle status shared by job and step executions.
type BatchStatus string

const (
	BatchStatusStarting  BatchStatus = "STARTING"
	BatchStatusStarted   BatchStatus = "STARTED"
	BatchStatusCompleted BatchStatus = "COMPLETED"
	BatchStatusFailed    BatchStatus = "FAILED"
	BatchStatusStopped   BatchStatus = "STOPPED"
)

// String returns the status name.
func (s BatchStatus) String() string { return string(s) }

// IsTerminal reports whether no further transition is allowed.
func (s BatchStatus) IsTerminal() bool {
	return s == BatchStatusCompleted || s == BatchStatusFailed || s == BatchStatusStopped
}

// IsRestartable reports whether an execution in this status may be resumed by a new attempt.
func (s BatchStatus) IsRestartable() bool {
	return s == BatchStatusFailed || s == BatchStatusStopped
}

// IsRunning reports whether the execution is still in flight.
func (s BatchStatus) IsRunning() bool {
	return s == BatchStatusStarting || s == BatchStatusStarted
}

// ParseBatchStatus converts a persisted status string. Unknown values map to FAILED.
func ParseBatchStatus(s string) BatchStatus {
	switch BatchStatus(s) {
	case BatchStatusStarting, BatchStatusStarted, BatchStatusCompleted, BatchStatusFailed, BatchStatusStopped:
		return BatchStatus(s)
	}
	return BatchStatusFailed
}

// canTransition encodes STARTING -> STARTED -> {COMPLETED | FAILED | STOPPED}.
// STARTING may also fail or stop directly, before any work was done.
func canTransition(from, to BatchStatus) bool {
	switch from {
	case BatchStatusStarting:
		return to == BatchStatusStarted || to == BatchStatusFailed || to == BatchStatusStopped
	case BatchStatusStarted:
		return to == BatchStatusCompleted || to == BatchStatusFailed || to == BatchStatusStopped
	}
	return false
}
