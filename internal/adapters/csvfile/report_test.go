package csvfile

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/example/batchreg/internal/models"
	"github.com/example/batchreg/internal/ports/primary"
	"github.com/example/batchreg/internal/ports/secondary"
)

func sampleResults() []*secondary.ResultRecord {
	return []*secondary.ResultRecord{
		{
			RecordID:       "3201010101010001",
			Name:           "Budi Santoso",
			Phone:          "081234567890",
			FinalStatus:    "succeeded",
			Attempts:       1,
			LastDetail:     "registration confirmed, queue number PB2025 A-104",
			ConfirmationID: "PB2025 A-104",
			CompletedAt:    "2025-06-01T09:00:00Z",
		},
		{
			RecordID:    "3201010101010002",
			Name:        "Siti Rahayu",
			Phone:       "081234567891",
			FinalStatus: "exhausted",
			Attempts:    3,
			LastDetail:  "attempt timeout",
			CompletedAt: "2025-06-01T09:01:00Z",
		},
	}
}

func sampleReport() *primary.BatchReport {
	return &primary.BatchReport{
		RunID:     "run-test",
		Total:     2,
		Succeeded: 1,
		Exhausted: 1,
		Rejected: []models.RejectedRecord{
			{
				Line:   4,
				Record: models.Record{ID: "3201010101010004", Name: "No Phone"},
				Reason: "phone is required",
			},
		},
		Duplicates: 1,
	}
}

func TestWriteReportCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteReportCSV(&buf, sampleResults(), sampleReport().Rejected); err != nil {
		t.Fatalf("WriteReportCSV failed: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("failed to parse written csv: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("expected header + 2 results + 1 rejected, got %d rows", len(rows))
	}
	if rows[1][3] != "succeeded" || rows[1][6] != "PB2025 A-104" {
		t.Errorf("unexpected first row: %v", rows[1])
	}
	if rows[2][4] != "3" {
		t.Errorf("expected 3 attempts in second row, got %q", rows[2][4])
	}
	if rows[1][7] != "2025-06-01T09:00:00Z" {
		t.Errorf("expected RFC3339 UTC timestamp, got %q", rows[1][7])
	}

	// Rejected input rows appear with their reason.
	if rows[3][0] != "3201010101010004" || rows[3][3] != "rejected" {
		t.Errorf("unexpected rejected row: %v", rows[3])
	}
	if !strings.Contains(rows[3][5], "line 4") || !strings.Contains(rows[3][5], "phone is required") {
		t.Errorf("rejected row must carry line and reason, got %q", rows[3][5])
	}
}

func TestWriteReportJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteReportJSON(&buf, sampleReport(), sampleResults()); err != nil {
		t.Fatalf("WriteReportJSON failed: %v", err)
	}

	var doc struct {
		RunID      string `json:"run_id"`
		Succeeded  int    `json:"succeeded"`
		Exhausted  int    `json:"exhausted"`
		Duplicates int    `json:"duplicates"`
		Items      []struct {
			ID          string `json:"id"`
			FinalStatus string `json:"final_status"`
		} `json:"items"`
		Rejected []struct {
			Line   int    `json:"line"`
			ID     string `json:"id"`
			Reason string `json:"reason"`
		} `json:"rejected"`
	}
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("failed to parse written json: %v", err)
	}

	if doc.RunID != "run-test" {
		t.Errorf("unexpected run id: %q", doc.RunID)
	}
	if doc.Succeeded != 1 || doc.Exhausted != 1 || doc.Duplicates != 1 {
		t.Errorf("unexpected counts: %+v", doc)
	}
	if len(doc.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(doc.Items))
	}
	if len(doc.Rejected) != 1 {
		t.Fatalf("expected 1 rejected row, got %d", len(doc.Rejected))
	}
	if doc.Rejected[0].Line != 4 || doc.Rejected[0].Reason != "phone is required" {
		t.Errorf("unexpected rejected entry: %+v", doc.Rejected[0])
	}
}

func TestWriteReportFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")

	csvPath, jsonPath, err := WriteReportFiles(dir, sampleReport(), sampleResults())
	if err != nil {
		t.Fatalf("WriteReportFiles failed: %v", err)
	}

	for _, path := range []string{csvPath, jsonPath} {
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("report file missing: %v", err)
		}
		if info.Size() == 0 {
			t.Errorf("report file %s is empty", path)
		}
	}
	if !strings.Contains(csvPath, "results_run-test.csv") {
		t.Errorf("unexpected csv path: %s", csvPath)
	}
}

func TestWriteResultCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteResultCSV(&buf, sampleResults()[:1]); err != nil {
		t.Fatalf("WriteResultCSV failed: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("failed to parse written csv: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected header + 1 row, got %d rows", len(rows))
	}
	if rows[1][0] != "3201010101010001" || rows[1][4] != "1" {
		t.Errorf("unexpected row: %v", rows[1])
	}
}
