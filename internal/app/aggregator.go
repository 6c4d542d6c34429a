package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/batchreg/internal/models"
	"github.com/example/batchreg/internal/ports/secondary"
)

// Aggregator collects terminal submission states as they occur and
// flushes them to durable storage once the in-memory buffer reaches the
// flush threshold, bounding peak memory for very large batches.
//
// Only the not-yet-flushed tail is at risk if the process dies between
// flushes; that loss window is an accepted, documented limitation.
type Aggregator struct {
	repo      secondary.ResultRepository
	runID     string
	threshold int

	mu     sync.Mutex
	buffer []*secondary.ResultRecord
	tally  Tally
}

// Tally counts terminal outcomes without holding the states themselves,
// so peak memory stays bounded by the flush threshold regardless of
// batch size.
type Tally struct {
	Succeeded   int
	Exhausted   int
	Interrupted int
}

// Total returns the number of terminal records counted.
func (t Tally) Total() int {
	return t.Succeeded + t.Exhausted + t.Interrupted
}

// NewAggregator creates an aggregator for one run. threshold < 1 flushes
// every 100 results.
func NewAggregator(repo secondary.ResultRepository, runID string, threshold int) *Aggregator {
	if threshold < 1 {
		threshold = 100
	}
	return &Aggregator{repo: repo, runID: runID, threshold: threshold}
}

// Add accepts one terminal submission state. It may trigger a flush; the
// flush error, if any, is returned so the caller can surface it without
// losing the result (the buffer is only cleared on successful writes).
func (a *Aggregator) Add(ctx context.Context, state *models.SubmissionState) error {
	a.mu.Lock()
	switch state.Status {
	case models.StatusSucceeded:
		a.tally.Succeeded++
	case models.StatusExhausted:
		a.tally.Exhausted++
	case models.StatusInterrupted:
		a.tally.Interrupted++
	}
	a.buffer = append(a.buffer, a.toRecord(state))
	shouldFlush := len(a.buffer) >= a.threshold
	a.mu.Unlock()

	if shouldFlush {
		return a.Flush(ctx)
	}
	return nil
}

// Flush writes the buffered results to storage and clears the buffer on
// success.
func (a *Aggregator) Flush(ctx context.Context) error {
	a.mu.Lock()
	pending := a.buffer
	a.buffer = nil
	a.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}
	if err := a.repo.SaveResults(ctx, pending); err != nil {
		// Put the batch back so a later flush can retry it.
		a.mu.Lock()
		a.buffer = append(pending, a.buffer...)
		a.mu.Unlock()
		return fmt.Errorf("failed to flush %d results: %w", len(pending), err)
	}
	return nil
}

// Counts returns the terminal-outcome tally so far.
func (a *Aggregator) Counts() Tally {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tally
}

// Pending returns the number of results not yet flushed.
func (a *Aggregator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.buffer)
}

func (a *Aggregator) toRecord(state *models.SubmissionState) *secondary.ResultRecord {
	completed := state.CompletedAt
	if completed.IsZero() {
		completed = time.Now()
	}
	return &secondary.ResultRecord{
		ID:             uuid.NewString(),
		RunID:          a.runID,
		RecordID:       state.Record.ID,
		Name:           state.Record.Name,
		Phone:          state.Record.Phone,
		FinalStatus:    state.Status,
		Attempts:       state.AttemptsMade(),
		LastDetail:     state.LastDetail,
		ConfirmationID: state.ConfirmationID,
		CompletedAt:    completed.UTC().Format(time.RFC3339),
	}
}
