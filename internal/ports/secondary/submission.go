// Package secondary defines the secondary ports (driven adapters) for the
// application. These are the interfaces through which the application
// drives external systems.
package secondary

import (
	"context"
	"errors"
	"time"

	"github.com/example/batchreg/internal/models"
	"github.com/example/batchreg/internal/session"
)

// FormSubmission carries everything one submit needs: the record values
// and the session context the submission must be made under.
type FormSubmission struct {
	Record  models.Record
	Session *session.Context
}

// SubmitResult is the raw observable output of one submission.
type SubmitResult struct {
	Body       string
	StatusCode int

	// RetryAfter is the server's throttling hint when present, zero
	// otherwise.
	RetryAfter time.Duration
}

// FormClient defines the secondary port for the external web form. The
// implementation performs the navigation/fill/submit sequence and returns
// the raw page output; interpretation is the classifier's job.
type FormClient interface {
	// Submit performs one full submission attempt. Transport-level
	// failures (network errors, deadline exceeded) are returned as
	// errors; any response body, including error pages, is returned as a
	// SubmitResult.
	Submit(ctx context.Context, sub FormSubmission) (*SubmitResult, error)
}

// ErrFallbackUnavailable reports that the fallback channel gave no
// usable answer for this attempt.
var ErrFallbackUnavailable = errors.New("fallback checker unavailable")

// FallbackChecker defines the optional secondary port for the independent
// status-check channel consulted when the primary response is ambiguous.
type FallbackChecker interface {
	// Check queries registration status for a record identifier.
	// Returns ErrFallbackUnavailable when no structured answer could be
	// obtained.
	Check(ctx context.Context, recordID string) (*FallbackStatus, error)
}

// FallbackStatus is the structured answer from the fallback channel.
type FallbackStatus struct {
	Registered     bool
	ConfirmationID string
}

// ResultRecord represents a terminal submission outcome as stored in
// persistence.
type ResultRecord struct {
	ID             string
	RunID          string
	RecordID       string
	Name           string
	Phone          string
	FinalStatus    string
	Attempts       int
	LastDetail     string
	ConfirmationID string
	CompletedAt    string
}

// ResultFilters contains filter options for querying stored results.
type ResultFilters struct {
	RunID       string
	FinalStatus string
	Limit       int
}

// ResultRepository defines the secondary port for durable result storage.
type ResultRepository interface {
	// SaveResults persists a batch of terminal results in one write.
	SaveResults(ctx context.Context, results []*ResultRecord) error

	// List retrieves stored results matching the given filters.
	List(ctx context.Context, filters ResultFilters) ([]*ResultRecord, error)

	// Runs returns the distinct run IDs present in storage, newest first.
	Runs(ctx context.Context) ([]string, error)
}
