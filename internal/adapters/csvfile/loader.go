// Package csvfile loads input records from CSV files and writes run
// reports back out as CSV and JSON.
package csvfile

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/example/batchreg/internal/models"
)

// rowValidate is the validator instance for raw CSV rows.
// Initialized in init() with custom validators.
var rowValidate *validator.Validate

func init() {
	rowValidate = validator.New()
	_ = rowValidate.RegisterValidation("hasdigits", validateHasDigits)
}

// csvRow is one raw input row before normalization. Validation here is
// structural only; normalization and dedup happen in the core.
type csvRow struct {
	Name  string `validate:"required,max=200"`
	KTP   string `validate:"required,hasdigits"`
	Phone string `validate:"required,hasdigits"`
}

// validateHasDigits rejects fields that cannot yield any digits after
// normalization, such as a phone column filled with "n/a".
func validateHasDigits(fl validator.FieldLevel) bool {
	return strings.ContainsAny(fl.Field().String(), "0123456789")
}

// LoadRecords reads records from a CSV file with columns name,ktp,phone.
// A header row is skipped when present. A malformed first data row fails
// the whole load; malformed later rows become rejected entries so one bad
// line cannot sink an otherwise valid batch.
func LoadRecords(path string) ([]models.Record, []models.RejectedRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open input file: %w", err)
	}
	defer f.Close()

	records, rejected, err := ReadRecords(f)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return records, rejected, nil
}

// ReadRecords parses CSV rows from r. See LoadRecords for the row rules.
func ReadRecords(r io.Reader) ([]models.Record, []models.RejectedRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var (
		records  []models.Record
		rejected []models.RejectedRecord
		line     int
		seenData bool
	)

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("csv parse error: %w", err)
		}
		line++

		if line == 1 && isHeader(row) {
			continue
		}

		rec, reason := parseRow(row)
		if reason != "" {
			if !seenData {
				return nil, nil, fmt.Errorf("line %d: %s", line, reason)
			}
			rejected = append(rejected, models.RejectedRecord{
				Line:   line,
				Record: rec,
				Reason: reason,
			})
			continue
		}

		seenData = true
		records = append(records, rec)
	}

	if len(records) == 0 && len(rejected) == 0 {
		return nil, nil, fmt.Errorf("no records found")
	}

	return records, rejected, nil
}

// parseRow converts one CSV row into a raw record. The returned reason is
// empty when the row is structurally valid.
func parseRow(row []string) (models.Record, string) {
	if len(row) < 3 {
		return models.Record{}, fmt.Sprintf("expected 3 columns (name,ktp,phone), got %d", len(row))
	}

	raw := csvRow{
		Name:  strings.TrimSpace(row[0]),
		KTP:   strings.TrimSpace(row[1]),
		Phone: strings.TrimSpace(row[2]),
	}

	if err := rowValidate.Struct(raw); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return toRecord(raw), rowReason(verrs[0])
		}
		return toRecord(raw), err.Error()
	}

	return toRecord(raw), ""
}

func toRecord(raw csvRow) models.Record {
	return models.Record{ID: raw.KTP, Name: raw.Name, Phone: raw.Phone}
}

// rowReason maps a validator failure to a human-readable rejection reason.
func rowReason(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "max":
		return fmt.Sprintf("%s exceeds maximum length", field)
	case "hasdigits":
		return fmt.Sprintf("%s contains no digits", field)
	}
	return fmt.Sprintf("%s is invalid", field)
}

// isHeader reports whether the first row is a header row rather than data.
func isHeader(row []string) bool {
	if len(row) == 0 {
		return false
	}
	first := strings.ToLower(strings.TrimSpace(row[0]))
	return first == "name" || first == "nama"
}
