package models

import "time"

// Outcome classifies the result of a single attempt.
type Outcome string

const (
	OutcomeSuccess          Outcome = "success"
	OutcomeRemoteRejected   Outcome = "remote_rejected"
	OutcomeAmbiguous        Outcome = "ambiguous"
	OutcomeTransportFailure Outcome = "transport_failure"
)

// Source identifies which channel produced a classification.
type Source string

const (
	SourcePrimary  Source = "primary"
	SourceFallback Source = "fallback"
)

// AttemptRecord captures one submit-and-classify cycle for one record.
// Append-only: owned by the worker processing the record, never mutated
// after creation.
type AttemptRecord struct {
	Number    int
	StartedAt time.Time
	EndedAt   time.Time
	Outcome   Outcome
	Source    Source
	Detail    string
	SessionID string
}

// Duration returns the elapsed time of the attempt.
func (a AttemptRecord) Duration() time.Duration {
	return a.EndedAt.Sub(a.StartedAt)
}

// SubmissionState tracks one record through the orchestrator state machine.
// Mutated only by the worker that owns the record; immutable once the
// status is terminal.
type SubmissionState struct {
	Record         Record
	Attempts       []AttemptRecord
	Status         string
	LastDetail     string
	ConfirmationID string
	CompletedAt    time.Time
}

// Submission status constants. Transitions are monotonic:
// pending -> in_progress -> {succeeded, exhausted, interrupted}.
const (
	StatusPending     = "pending"
	StatusInProgress  = "in_progress"
	StatusSucceeded   = "succeeded"
	StatusExhausted   = "exhausted"
	StatusInterrupted = "interrupted"
)

// AttemptsMade returns the number of attempts recorded so far.
func (s *SubmissionState) AttemptsMade() int {
	return len(s.Attempts)
}

// LastAttempt returns the most recent attempt, or nil when none exist.
func (s *SubmissionState) LastAttempt() *AttemptRecord {
	if len(s.Attempts) == 0 {
		return nil
	}
	return &s.Attempts[len(s.Attempts)-1]
}
