// Package cli provides thin CLI adapters that translate between CLI concerns
// and application services. Adapters handle output formatting but delegate
// business logic to services.
package cli

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/example/batchreg/internal/models"
	"github.com/example/batchreg/internal/ports/primary"
)

// RunPrinter implements the batch event sink: one line per attempt, one
// line per terminal record, and a summary banner at the end of the run.
// Workers report concurrently, so writes are serialized.
type RunPrinter struct {
	mu  sync.Mutex
	out io.Writer

	// Verbose enables per-attempt lines. Terminal lines always print.
	Verbose bool
}

// NewRunPrinter creates a printer writing to the given output.
func NewRunPrinter(out io.Writer) *RunPrinter {
	return &RunPrinter{out: out}
}

// Attempt prints one completed attempt when verbose mode is on.
func (p *RunPrinter) Attempt(recordID string, rec models.AttemptRecord) {
	if !p.Verbose {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.out, "  %s attempt %d: %s (%s)\n",
		recordID, rec.Number, outcomeLabel(rec.Outcome), rec.Duration().Round(time.Millisecond))
}

// Terminal prints the final line for one record.
func (p *RunPrinter) Terminal(state *models.SubmissionState) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch state.Status {
	case models.StatusSucceeded:
		mark := color.New(color.FgGreen).Sprint("✓")
		if state.ConfirmationID != "" {
			fmt.Fprintf(p.out, "%s %s (%s) registered, queue %s\n", mark, state.Record.Name, state.Record.ID, state.ConfirmationID)
		} else {
			fmt.Fprintf(p.out, "%s %s (%s) registered\n", mark, state.Record.Name, state.Record.ID)
		}
	case models.StatusExhausted:
		mark := color.New(color.FgRed).Sprint("✗")
		fmt.Fprintf(p.out, "%s %s (%s) failed after %d attempts: %s\n",
			mark, state.Record.Name, state.Record.ID, state.AttemptsMade(), state.LastDetail)
	case models.StatusInterrupted:
		mark := color.New(color.FgYellow).Sprint("!")
		fmt.Fprintf(p.out, "%s %s (%s) interrupted\n", mark, state.Record.Name, state.Record.ID)
	}
}

// FlushError prints a warning about a failed mid-run flush. The affected
// results stay buffered and are retried, so this is a heads-up, not a
// loss report.
func (p *RunPrinter) FlushError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.out, "%s result flush failed, will retry: %v\n", color.New(color.FgYellow).Sprint("!"), err)
}

// Summary prints the end-of-run banner.
func (p *RunPrinter) Summary(report *primary.BatchReport, elapsed time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rate := 0.0
	if report.Total > 0 {
		rate = float64(report.Succeeded) / float64(report.Total) * 100
	}

	fmt.Fprintf(p.out, "\nRun %s finished in %s\n", report.RunID, elapsed.Round(time.Second))
	fmt.Fprintf(p.out, "  %s %d succeeded (%.1f%%)\n", color.New(color.FgGreen).Sprint("✓"), report.Succeeded, rate)
	if report.Exhausted > 0 {
		fmt.Fprintf(p.out, "  %s %d exhausted\n", color.New(color.FgRed).Sprint("✗"), report.Exhausted)
	}
	if report.Interrupted > 0 {
		fmt.Fprintf(p.out, "  %s %d interrupted\n", color.New(color.FgYellow).Sprint("!"), report.Interrupted)
	}
	if len(report.Rejected) > 0 {
		fmt.Fprintf(p.out, "  %d rejected before submission\n", len(report.Rejected))
	}
	if report.Duplicates > 0 {
		fmt.Fprintf(p.out, "  %d duplicate rows skipped\n", report.Duplicates)
	}
}

// AttemptStats prints the attempt totals and latency quantiles gathered
// by the metrics layer.
func (p *RunPrinter) AttemptStats(totalAttempts int, p50, p95 time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if totalAttempts == 0 {
		return
	}
	fmt.Fprintf(p.out, "  %d attempt(s), latency p50 %s, p95 %s\n",
		totalAttempts, p50.Round(time.Millisecond), p95.Round(time.Millisecond))
}

func outcomeLabel(o models.Outcome) string {
	switch o {
	case models.OutcomeSuccess:
		return "success"
	case models.OutcomeRemoteRejected:
		return "rejected"
	case models.OutcomeAmbiguous:
		return "ambiguous"
	case models.OutcomeTransportFailure:
		return "transport failure"
	}
	return string(o)
}
