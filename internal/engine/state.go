package engine

import "github.com/roach88/routegen/internal/model"

// State is a phase of the orchestrator state machine.
type State int32

const (
	StateIdle State = iota
	StateResolvingPrerequisites
	StateGeneratingDirections
	StateDispatching
	StateBatchInFlight
	StateSerializedInFlight
	StateAggregating
	StateDone
	StateCancelled
	StateFailed
)

var stateNames = [...]string{
	StateIdle:                   "idle",
	StateResolvingPrerequisites: "resolving_prerequisites",
	StateGeneratingDirections:   "generating_directions",
	StateDispatching:            "dispatching",
	StateBatchInFlight:          "batch_in_flight",
	StateSerializedInFlight:     "serialized_in_flight",
	StateAggregating:            "aggregating",
	StateDone:                   "done",
	StateCancelled:              "cancelled",
	StateFailed:                 "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// IsTerminal reports whether no further transitions follow.
func (s State) IsTerminal() bool {
	return s == StateDone || s == StateCancelled || s == StateFailed
}

// Status is the terminal status reported to the caller.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// Outcome is the terminal report of a run.
//
// Artifacts is always in request template order. On cancellation or failure
// it holds whatever was aggregated before the run stopped. Err is nil unless
// Status is StatusFailed; a cancellation is not an error.
type Outcome struct {
	RunID     string
	Status    Status
	Artifacts []model.ArtifactDescriptor
	Err       error
}
