package submission

import "fmt"

// GuardResult represents the outcome of a guard evaluation.
type GuardResult struct {
	Allowed bool
	Reason  string // Human-readable reason (populated when not allowed)
}

// Error returns the guard result as an error if not allowed, nil otherwise.
func (r GuardResult) Error() error {
	if r.Allowed {
		return nil
	}
	return fmt.Errorf("%s", r.Reason)
}

// AttemptContext provides the state needed to decide whether another
// attempt may be started for a record.
type AttemptContext struct {
	RecordID     string
	Status       Status
	AttemptsMade int
	MaxAttempts  int
}

// CanAttempt evaluates whether a record may start another attempt.
// Rules: the record must be in progress and under the attempt ceiling.
func CanAttempt(ctx AttemptContext) GuardResult {
	if ctx.Status != StatusInProgress {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("record %s is %s, attempts are only allowed while in_progress", ctx.RecordID, ctx.Status),
		}
	}
	if ctx.AttemptsMade >= ctx.MaxAttempts {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("record %s reached the attempt ceiling (%d)", ctx.RecordID, ctx.MaxAttempts),
		}
	}
	return GuardResult{Allowed: true}
}

// AdmitContext provides the state needed to decide whether a queued
// record may be admitted into active processing.
type AdmitContext struct {
	RecordID string
	Status   Status
}

// CanAdmit evaluates whether a queued record may move to in_progress.
func CanAdmit(ctx AdmitContext) GuardResult {
	if ctx.Status != StatusPending {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("record %s is %s, only pending records can be admitted", ctx.RecordID, ctx.Status),
		}
	}
	return GuardResult{Allowed: true}
}
