package app

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/batchreg/internal/core/dedupe"
	"github.com/example/batchreg/internal/core/submission"
	"github.com/example/batchreg/internal/gate"
	"github.com/example/batchreg/internal/metrics"
	"github.com/example/batchreg/internal/models"
	"github.com/example/batchreg/internal/ports/primary"
	"github.com/example/batchreg/internal/ports/secondary"
)

// EventSink receives per-item progress notifications. Implemented by the
// CLI adapter; optional.
type EventSink interface {
	// Attempt is called after every completed attempt.
	Attempt(recordID string, rec models.AttemptRecord)

	// Terminal is called when a record reaches a terminal state.
	Terminal(state *models.SubmissionState)

	// FlushError is called when a mid-run flush to storage fails. The
	// results are retained and retried on a later flush; this is an
	// operator signal, not a data-loss report.
	FlushError(err error)
}

// BatchService implements primary.BatchService: it deduplicates the
// input, drives every accepted record through the orchestrator under the
// concurrency gate, and aggregates terminal outcomes.
type BatchService struct {
	orch           *Orchestrator
	gate           *gate.Gate
	tuner          *gate.Tuner
	batch          *metrics.Batch
	repo           secondary.ResultRepository
	flushThreshold int
	workers        int
	events         EventSink
}

// NewBatchService wires a batch service. workers is the size of the
// worker pool (the gate further bounds how many of them are admitted at
// once); events may be nil.
func NewBatchService(orch *Orchestrator, g *gate.Gate, tuner *gate.Tuner, batch *metrics.Batch, repo secondary.ResultRepository, flushThreshold, workers int, events EventSink) *BatchService {
	if workers < 1 {
		workers = 1
	}
	return &BatchService{
		orch:           orch,
		gate:           g,
		tuner:          tuner,
		batch:          batch,
		repo:           repo,
		flushThreshold: flushThreshold,
		workers:        workers,
		events:         events,
	}
}

// RunBatch drives the whole batch to terminal outcomes. See the primary
// port for the contract.
func (s *BatchService) RunBatch(ctx context.Context, req primary.RunBatchRequest) (*primary.BatchReport, error) {
	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	deduped := dedupe.Deduplicate(req.Records)
	agg := NewAggregator(s.repo, runID, s.flushThreshold)

	s.orch.Observer = func(recordID string, rec models.AttemptRecord) {
		success := rec.Outcome == models.OutcomeSuccess
		s.batch.RecordAttempt(string(rec.Outcome), success, rec.Duration())
		s.tuner.Record(!success, rec.Duration())
		s.batch.SetGateLimit(s.gate.Limit())
		if s.events != nil {
			s.events.Attempt(recordID, rec)
		}
	}

	queue := make(chan models.Record, len(deduped.Accepted))
	for _, rec := range deduped.Accepted {
		queue <- rec
	}
	close(queue)

	workers := s.workers
	if len(deduped.Accepted) < workers {
		workers = len(deduped.Accepted)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.worker(ctx, queue, agg)
		}()
	}
	wg.Wait()

	// Flush the tail with a fresh context: a cancelled run must still
	// persist whatever terminal results exist.
	flushCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := agg.Flush(flushCtx); err != nil {
		return nil, err
	}

	tally := agg.Counts()
	return &primary.BatchReport{
		RunID:       runID,
		Total:       tally.Total(),
		Succeeded:   tally.Succeeded,
		Exhausted:   tally.Exhausted,
		Interrupted: tally.Interrupted,
		Rejected:    deduped.Rejected,
		Duplicates:  deduped.Duplicates,
	}, nil
}

// ValidateBatch runs normalization and deduplication only.
func (s *BatchService) ValidateBatch(ctx context.Context, records []models.Record) (*primary.ValidationReport, error) {
	result := dedupe.Deduplicate(records)
	return &primary.ValidationReport{
		Accepted:   result.Accepted,
		Rejected:   result.Rejected,
		Duplicates: result.Duplicates,
	}, nil
}

func (s *BatchService) worker(ctx context.Context, queue <-chan models.Record, agg *Aggregator) {
	for rec := range queue {
		var state *models.SubmissionState
		if !s.gate.Acquire(ctx) {
			state = s.interrupted(rec)
		} else {
			s.batch.SetInflight(s.gate.Inflight())
			state = s.orch.Process(ctx, rec)
			s.gate.Release()
			s.batch.SetInflight(s.gate.Inflight())
		}

		// Storage of terminal results must survive run cancellation.
		addCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := agg.Add(addCtx, state); err != nil && s.events != nil {
			s.events.FlushError(err)
		}
		cancel()

		if s.events != nil {
			s.events.Terminal(state)
		}
	}
}

func (s *BatchService) interrupted(rec models.Record) *models.SubmissionState {
	result := submission.Apply(submission.StatusInterrupted, time.Now())
	state := &models.SubmissionState{
		Record:     rec,
		Status:     string(result.NewStatus),
		LastDetail: "interrupted before admission",
	}
	if result.CompletedAt != nil {
		state.CompletedAt = *result.CompletedAt
	}
	return state
}
