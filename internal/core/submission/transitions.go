// Package submission contains the pure business logic for the per-record
// submission state machine. This is part of the Functional Core - no I/O,
// only pure functions.
package submission

import "time"

// Status represents the possible states of a submission.
type Status string

const (
	StatusPending     Status = "pending"
	StatusInProgress  Status = "in_progress"
	StatusSucceeded   Status = "succeeded"
	StatusExhausted   Status = "exhausted"
	StatusInterrupted Status = "interrupted"
)

// IsTerminal reports whether a status admits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusExhausted || s == StatusInterrupted
}

// InitialStatus returns the status for a newly queued submission.
func InitialStatus() Status {
	return StatusPending
}

// TransitionResult contains the result of a status transition.
// It captures the new status and the completion timestamp set when a
// terminal state is reached.
type TransitionResult struct {
	NewStatus   Status
	CompletedAt *time.Time
}

// rank defines the monotonic ordering of the state machine. A transition
// is legal only when it moves strictly forward and the source state is
// not terminal.
var rank = map[Status]int{
	StatusPending:     0,
	StatusInProgress:  1,
	StatusSucceeded:   2,
	StatusExhausted:   2,
	StatusInterrupted: 2,
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to Status) bool {
	if from.IsTerminal() {
		return false
	}
	return rank[to] > rank[from]
}

// Apply applies a status transition and returns the result. Terminal
// transitions record the completion time; the caller passes the current
// time to keep this testable.
func Apply(to Status, now time.Time) TransitionResult {
	result := TransitionResult{NewStatus: to}
	if to.IsTerminal() {
		result.CompletedAt = &now
	}
	return result
}
