package run

import "errors"

// Status represents the lifecycle status of a run.
type Status string

const (
	// Non-terminal states
	StatusQueued         Status = "queued"          // Created or resumed, waiting for a worker
	StatusInProgress     Status = "in_progress"     // A worker is driving the agent loop
	StatusRequiresAction Status = "requires_action" // Blocked on submitted tool outputs
	StatusCancelling     Status = "cancelling"      // Cancel requested, worker not yet finished

	// Terminal states (no further transitions allowed)
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// ErrInvalidTransition is returned when a status transition is not allowed.
var ErrInvalidTransition = errors.New("invalid run status transition")

// IsTerminal returns true if the status is a terminal state.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed ||
		s == StatusCancelled || s == StatusExpired
}

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// ValidTransitions defines allowed status transitions. The graph is a DAG
// except for the in_progress <-> requires_action suspension cycle.
var ValidTransitions = map[Status][]Status{
	StatusQueued:         {StatusInProgress, StatusCancelling, StatusExpired, StatusFailed},
	StatusInProgress:     {StatusRequiresAction, StatusCompleted, StatusCancelling, StatusExpired, StatusFailed},
	StatusRequiresAction: {StatusQueued, StatusInProgress, StatusCancelling, StatusExpired, StatusFailed},
	StatusCancelling:     {StatusCancelled, StatusExpired, StatusFailed},
	// Terminal states have no valid transitions
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCancelled: {},
	StatusExpired:   {},
}

// CanTransitionTo checks if a transition from the current status to the
// target status is valid.
func (s Status) CanTransitionTo(target Status) bool {
	validTargets, ok := ValidTransitions[s]
	if !ok {
		return false
	}
	for _, t := range validTargets {
		if t == target {
			return true
		}
	}
	return false
}

// TransitionTo attempts to transition to the target status and returns an
// error if invalid.
func (s Status) TransitionTo(target Status) (Status, error) {
	if !s.CanTransitionTo(target) {
		return s, ErrInvalidTransition
	}
	return target, nil
}

// StepStatus represents the lifecycle status of a run step.
type StepStatus string

const (
	StepStatusInProgress StepStatus = "in_progress"
	StepStatusCompleted  StepStatus = "completed"
	StepStatusFailed     StepStatus = "failed"
	StepStatusCancelled  StepStatus = "cancelled"
	StepStatusExpired    StepStatus = "expired"
)

// IsTerminal returns true if the step status is final.
func (s StepStatus) IsTerminal() bool {
	return s != StepStatusInProgress
}
