// Package app contains the application layer - service implementations
// and the submission worker loop. This is the "Imperative Shell" - the
// only place I/O happens.
package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/example/batchreg/internal/core/backoff"
	"github.com/example/batchreg/internal/core/classify"
	"github.com/example/batchreg/internal/core/submission"
	"github.com/example/batchreg/internal/models"
	"github.com/example/batchreg/internal/ports/secondary"
	"github.com/example/batchreg/internal/session"
)

// SessionSource is the slice of the session manager the orchestrator
// needs. Satisfied by *session.Manager.
type SessionSource interface {
	Acquire(ctx context.Context, recordID string) (*session.Context, error)
	Refresh(ctx context.Context, sess *session.Context) error
	Invalidate(recordID string)
}

// AttemptObserver receives completed-attempt notifications. Both the
// metrics layer and the gate tuner hang off this.
type AttemptObserver func(recordID string, rec models.AttemptRecord)

// Orchestrator drives one record through its full attempt sequence.
// A record is owned by exactly one worker at a time; within a record,
// attempts are strictly sequential.
type Orchestrator struct {
	Form     secondary.FormClient
	Fallback secondary.FallbackChecker // nil when not configured
	Sessions SessionSource
	Rules    classify.Rules
	Policy   backoff.Policy

	// AttemptTimeout is the hard per-attempt deadline.
	AttemptTimeout time.Duration

	// FallbackGrace is waited after an ambiguous primary response before
	// the fallback channel is consulted, so a slow-but-successful primary
	// is not masked.
	FallbackGrace time.Duration

	// Observer is invoked after every completed attempt. Optional.
	Observer AttemptObserver

	// Rand and Sleep are injectable for tests. Nil means rand.Float64
	// and a context-aware timer sleep.
	Rand  func() float64
	Sleep func(ctx context.Context, d time.Duration) error
}

// Process runs the full state machine for one record and returns its
// terminal SubmissionState. The returned state is terminal in every case:
// succeeded, exhausted, or interrupted when ctx was cancelled mid-item.
func (o *Orchestrator) Process(ctx context.Context, rec models.Record) *models.SubmissionState {
	state := &models.SubmissionState{
		Record: rec,
		Status: string(submission.InitialStatus()),
	}

	if guard := submission.CanAdmit(submission.AdmitContext{
		RecordID: rec.ID,
		Status:   submission.Status(state.Status),
	}); !guard.Allowed {
		state.LastDetail = guard.Reason
		o.finish(state, models.StatusInterrupted)
		return state
	}
	state.Status = models.StatusInProgress

	randf := o.Rand
	if randf == nil {
		randf = rand.Float64
	}
	sleep := o.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var sess *session.Context
	refreshNext := false

	for attempt := 1; ; attempt++ {
		guard := submission.CanAttempt(submission.AttemptContext{
			RecordID:     rec.ID,
			Status:       submission.StatusInProgress,
			AttemptsMade: state.AttemptsMade(),
			MaxAttempts:  o.Policy.MaxAttempts,
		})
		if !guard.Allowed {
			o.finish(state, models.StatusExhausted)
			return state
		}
		if ctx.Err() != nil {
			o.finish(state, models.StatusInterrupted)
			return state
		}

		attemptRec, classification, retryAfter := o.runAttempt(ctx, rec, &sess, refreshNext, attempt)
		state.Attempts = append(state.Attempts, attemptRec)
		state.LastDetail = attemptRec.Detail
		if o.Observer != nil {
			o.Observer(rec.ID, attemptRec)
		}

		if attemptRec.Outcome == models.OutcomeSuccess {
			state.ConfirmationID = classification.ConfirmationID
			o.finish(state, models.StatusSucceeded)
			return state
		}

		refreshNext = classification.Verdict == classify.VerdictSessionExpired

		var delay time.Duration
		if refreshNext {
			delay = backoff.FastRetry(randf())
			if !o.Policy.Next(attempt, 0).Retry {
				o.finish(state, models.StatusExhausted)
				return state
			}
		} else {
			decision := o.Policy.NextWithHint(attempt, randf(), retryAfter)
			if !decision.Retry {
				o.finish(state, models.StatusExhausted)
				return state
			}
			delay = decision.Delay
		}

		if err := sleep(ctx, delay); err != nil {
			o.finish(state, models.StatusInterrupted)
			return state
		}
	}
}

// runAttempt performs one submit-and-classify cycle. It never returns an
// error: every failure mode is folded into the AttemptRecord so a fault
// in one record can never affect another.
func (o *Orchestrator) runAttempt(ctx context.Context, rec models.Record, sess **session.Context, refresh bool, number int) (models.AttemptRecord, classify.Classification, time.Duration) {
	attemptRec := models.AttemptRecord{
		Number:    number,
		StartedAt: time.Now(),
		Source:    models.SourcePrimary,
	}

	timeout := o.AttemptTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := o.ensureSession(attemptCtx, rec.ID, sess, refresh); err != nil {
		attemptRec.EndedAt = time.Now()
		attemptRec.Outcome = models.OutcomeTransportFailure
		attemptRec.Detail = transportDetail(err)
		return attemptRec, classify.Classification{Verdict: classify.VerdictAmbiguous}, 0
	}
	attemptRec.SessionID = (*sess).ID

	result, err := o.Form.Submit(attemptCtx, secondary.FormSubmission{Record: rec, Session: *sess})
	if err != nil {
		attemptRec.EndedAt = time.Now()
		attemptRec.Outcome = models.OutcomeTransportFailure
		attemptRec.Detail = transportDetail(err)
		return attemptRec, classify.Classification{Verdict: classify.VerdictAmbiguous}, 0
	}

	classification := o.Rules.Classify(result.Body)
	if classification.Verdict == classify.VerdictAmbiguous && o.Fallback != nil {
		classification = o.consultFallback(ctx, rec.ID, classification, &attemptRec)
	}

	attemptRec.EndedAt = time.Now()
	switch classification.Verdict {
	case classify.VerdictSuccess:
		attemptRec.Outcome = models.OutcomeSuccess
		attemptRec.Detail = successDetail(classification.ConfirmationID)
	case classify.VerdictRejected:
		attemptRec.Outcome = models.OutcomeRemoteRejected
		attemptRec.Detail = classification.Detail
	case classify.VerdictSessionExpired:
		attemptRec.Outcome = models.OutcomeAmbiguous
		attemptRec.Detail = classification.Detail
	default:
		attemptRec.Outcome = models.OutcomeAmbiguous
		attemptRec.Detail = "no success or rejection signal in response"
	}
	return attemptRec, classification, result.RetryAfter
}

func successDetail(confirmationID string) string {
	if confirmationID == "" {
		return "registration confirmed"
	}
	return fmt.Sprintf("registration confirmed, queue number %s", confirmationID)
}

// consultFallback asks the independent status channel once, after a short
// grace delay. A structured success from the fallback decides the
// attempt; anything else leaves the primary classification standing.
func (o *Orchestrator) consultFallback(ctx context.Context, recordID string, primary classify.Classification, attemptRec *models.AttemptRecord) classify.Classification {
	sleep := o.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	if o.FallbackGrace > 0 {
		if err := sleep(ctx, o.FallbackGrace); err != nil {
			return primary
		}
	}

	status, err := o.Fallback.Check(ctx, recordID)
	if err != nil {
		return primary
	}

	combined := classify.Combine(primary, classify.FallbackResult{
		Registered:     status.Registered,
		ConfirmationID: status.ConfirmationID,
	})
	if combined.Verdict == classify.VerdictSuccess && primary.Verdict != classify.VerdictSuccess {
		attemptRec.Source = models.SourceFallback
	}
	return combined
}

func (o *Orchestrator) ensureSession(ctx context.Context, recordID string, sess **session.Context, refresh bool) error {
	if *sess == nil {
		s, err := o.Sessions.Acquire(ctx, recordID)
		if err != nil {
			return fmt.Errorf("failed to acquire session: %w", err)
		}
		*sess = s
		return nil
	}
	if refresh {
		if err := o.Sessions.Refresh(ctx, *sess); err != nil {
			// An unusable pooled session is dropped so the next attempt
			// starts clean.
			o.Sessions.Invalidate(recordID)
			*sess = nil
			return fmt.Errorf("failed to refresh session: %w", err)
		}
	}
	return nil
}

// finish moves the state to the given terminal status. A state that is
// already terminal is left untouched: transitions are monotonic.
func (o *Orchestrator) finish(state *models.SubmissionState, status string) {
	if !submission.CanTransition(submission.Status(state.Status), submission.Status(status)) {
		return
	}
	result := submission.Apply(submission.Status(status), time.Now())
	state.Status = string(result.NewStatus)
	if result.CompletedAt != nil {
		state.CompletedAt = *result.CompletedAt
	}
}

func transportDetail(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "attempt timeout"
	}
	return err.Error()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
