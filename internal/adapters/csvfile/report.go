package csvfile

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/example/batchreg/internal/models"
	"github.com/example/batchreg/internal/ports/primary"
	"github.com/example/batchreg/internal/ports/secondary"
)

var reportHeader = []string{"id", "name", "phone", "final_status", "attempts", "last_detail", "confirmation_id", "completed_at"}

// jsonReport is the JSON report document for one run.
type jsonReport struct {
	RunID      string            `json:"run_id"`
	Generated  string            `json:"generated_at"`
	Succeeded  int               `json:"succeeded"`
	Exhausted  int               `json:"exhausted"`
	Interrupt  int               `json:"interrupted"`
	Duplicates int               `json:"duplicates"`
	Items      []jsonReportRow   `json:"items"`
	Rejected   []jsonRejectedRow `json:"rejected,omitempty"`
}

type jsonReportRow struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Phone          string `json:"phone"`
	FinalStatus    string `json:"final_status"`
	Attempts       int    `json:"attempts"`
	LastDetail     string `json:"last_detail,omitempty"`
	ConfirmationID string `json:"confirmation_id,omitempty"`
	CompletedAt    string `json:"completed_at"`
}

type jsonRejectedRow struct {
	Line   int    `json:"line"`
	ID     string `json:"id,omitempty"`
	Name   string `json:"name,omitempty"`
	Reason string `json:"reason"`
}

// WriteReportFiles writes the CSV and JSON reports for a finished run into
// dir, creating it if needed. results are the stored rows for the run,
// read back from the result repository so the writer never needs the
// in-memory states. It returns the paths written.
func WriteReportFiles(dir string, report *primary.BatchReport, results []*secondary.ResultRecord) (csvPath, jsonPath string, err error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", "", fmt.Errorf("failed to create report directory: %w", err)
	}

	csvPath = filepath.Join(dir, fmt.Sprintf("results_%s.csv", report.RunID))
	jsonPath = filepath.Join(dir, fmt.Sprintf("results_%s.json", report.RunID))

	csvFile, err := os.Create(csvPath)
	if err != nil {
		return "", "", fmt.Errorf("failed to create csv report: %w", err)
	}
	defer csvFile.Close()
	if err := WriteReportCSV(csvFile, results, report.Rejected); err != nil {
		return "", "", err
	}

	jsonFile, err := os.Create(jsonPath)
	if err != nil {
		return "", "", fmt.Errorf("failed to create json report: %w", err)
	}
	defer jsonFile.Close()
	if err := WriteReportJSON(jsonFile, report, results); err != nil {
		return "", "", err
	}

	return csvPath, jsonPath, nil
}

// WriteReportCSV writes one row per stored result, then one row per
// rejected input record with final_status "rejected", so the file covers
// every row of the input.
func WriteReportCSV(w io.Writer, results []*secondary.ResultRecord, rejected []models.RejectedRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(reportHeader); err != nil {
		return fmt.Errorf("failed to write report header: %w", err)
	}

	for _, r := range results {
		if err := cw.Write(resultRow(r)); err != nil {
			return fmt.Errorf("failed to write report row: %w", err)
		}
	}
	for _, r := range rejected {
		row := []string{
			r.Record.ID,
			r.Record.Name,
			r.Record.Phone,
			"rejected",
			"0",
			fmt.Sprintf("line %d: %s", r.Line, r.Reason),
			"",
			"",
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write rejected row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteReportJSON writes the full run report: summary counts, the stored
// result rows, and the rejected input rows with their reasons.
func WriteReportJSON(w io.Writer, report *primary.BatchReport, results []*secondary.ResultRecord) error {
	doc := jsonReport{
		RunID:      report.RunID,
		Generated:  time.Now().UTC().Format(time.RFC3339),
		Succeeded:  report.Succeeded,
		Exhausted:  report.Exhausted,
		Interrupt:  report.Interrupted,
		Duplicates: report.Duplicates,
		Items:      make([]jsonReportRow, 0, len(results)),
	}

	for _, r := range results {
		doc.Items = append(doc.Items, jsonReportRow{
			ID:             r.RecordID,
			Name:           r.Name,
			Phone:          r.Phone,
			FinalStatus:    r.FinalStatus,
			Attempts:       r.Attempts,
			LastDetail:     r.LastDetail,
			ConfirmationID: r.ConfirmationID,
			CompletedAt:    r.CompletedAt,
		})
	}
	for _, r := range report.Rejected {
		doc.Rejected = append(doc.Rejected, jsonRejectedRow{
			Line:   r.Line,
			ID:     r.Record.ID,
			Name:   r.Record.Name,
			Reason: r.Reason,
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode json report: %w", err)
	}
	return nil
}

// WriteResultCSV re-emits stored results, for the report subcommand.
func WriteResultCSV(w io.Writer, results []*secondary.ResultRecord) error {
	return WriteReportCSV(w, results, nil)
}

func resultRow(r *secondary.ResultRecord) []string {
	return []string{
		r.RecordID,
		r.Name,
		r.Phone,
		r.FinalStatus,
		strconv.Itoa(r.Attempts),
		r.LastDetail,
		r.ConfirmationID,
		r.CompletedAt,
	}
}
