package models

// LifecycleState is the directory-service membership state of the appliance.
//
// Transitions are strictly sequential and driven only by the join and
// leave executors:
//
//	DISABLED -> JOINING -> HEALTHY | FAULTED
//	HEALTHY | FAULTED -> LEAVING -> DISABLED
type LifecycleState string

const (
	// StateDisabled means the appliance is not a member of any domain.
	StateDisabled LifecycleState = "DISABLED"

	// StateJoining means a join operation is in flight. A persisted
	// JOINING state observed after process restart indicates an
	// interrupted join and must be surfaced to the operator.
	StateJoining LifecycleState = "JOINING"

	// StateLeaving means a leave operation is in flight.
	StateLeaving LifecycleState = "LEAVING"

	// StateHealthy means the appliance is a domain member in good standing.
	StateHealthy LifecycleState = "HEALTHY"

	// StateFaulted means the appliance completed a join at the protocol
	// level but the final membership probe failed, or a join aborted
	// after the state had already transitioned to JOINING.
	StateFaulted LifecycleState = "FAULTED"
)

// Valid reports whether s is one of the known lifecycle states.
func (s LifecycleState) Valid() bool {
	switch s {
	case StateDisabled, StateJoining, StateLeaving, StateHealthy, StateFaulted:
		return true
	}
	return false
}

// InFlight reports whether a join or leave operation is currently running.
func (s LifecycleState) InFlight() bool {
	return s == StateJoining || s == StateLeaving
}
