// Package primary defines the primary ports (driving adapters) for the
// application. These are the interfaces through which the outside world
// drives the application.
package primary

import (
	"context"

	"github.com/example/batchreg/internal/models"
)

// BatchService defines the primary port for batch submission runs.
type BatchService interface {
	// RunBatch deduplicates the given records and drives every accepted
	// record to a terminal outcome. It returns the full batch report,
	// including records rejected before any network attempt. A cancelled
	// context stops admissions and marks unfinished records interrupted;
	// the partial report is still returned.
	RunBatch(ctx context.Context, req RunBatchRequest) (*BatchReport, error)

	// ValidateBatch runs normalization and deduplication only, with no
	// network access.
	ValidateBatch(ctx context.Context, records []models.Record) (*ValidationReport, error)
}

// RunBatchRequest contains parameters for one batch run.
type RunBatchRequest struct {
	Records []models.Record

	// RunID labels all stored results of this run. Generated when empty.
	RunID string
}

// BatchReport summarizes the run. Per-record terminal outcomes are not
// held here: they stream to the result repository as they occur, keeping
// peak memory independent of batch size. Read them back by RunID.
type BatchReport struct {
	RunID       string
	Total       int
	Succeeded   int
	Exhausted   int
	Interrupted int
	Rejected    []models.RejectedRecord
	Duplicates  int
}

// ValidationReport contains the outcome of a dry-run validation.
type ValidationReport struct {
	Accepted   []models.Record
	Rejected   []models.RejectedRecord
	Duplicates int
}
