// Package dedupe contains the pure normalization and deduplication logic
// for input records. This is part of the Functional Core - no I/O, only
// pure functions.
package dedupe

import (
	"strings"

	"github.com/example/batchreg/internal/models"
)

// Field length caps applied during normalization. Identifiers longer than
// the cap are rejected rather than silently truncated; phone numbers are
// truncated because trailing digits carry no identity.
const (
	MaxIDDigits    = 16
	MaxPhoneDigits = 12
	MaxNameLength  = 100
)

// Result holds the outcome of normalizing and deduplicating a batch.
type Result struct {
	Accepted []models.Record
	Rejected []models.RejectedRecord
	// Duplicates counts input rows dropped because an earlier row already
	// claimed the same identifier.
	Duplicates int
}

// Normalize trims all fields and strips non-numeric characters from the
// identifier and phone fields, applying the length caps.
func Normalize(r models.Record) models.Record {
	out := models.Record{
		ID:    digitsOnly(strings.TrimSpace(r.ID), MaxIDDigits+1),
		Name:  strings.TrimSpace(r.Name),
		Phone: digitsOnly(strings.TrimSpace(r.Phone), MaxPhoneDigits),
	}
	if len(out.Name) > MaxNameLength {
		out.Name = out.Name[:MaxNameLength]
	}
	return out
}

// Validate checks a normalized record for required fields. The returned
// reason is empty when the record is valid.
func Validate(r models.Record) string {
	switch {
	case r.ID == "":
		return "identifier is required"
	case len(r.ID) > MaxIDDigits:
		return "identifier exceeds maximum length"
	case r.Name == "":
		return "name is required"
	case r.Phone == "":
		return "phone is required"
	}
	return ""
}

// Deduplicate normalizes an ordered sequence of raw records and produces
// one accepted record per distinct identifier, first occurrence winning.
// Rows that fail validation after normalization are returned as rejected
// entries with the original line position attached.
func Deduplicate(raw []models.Record) Result {
	var result Result
	seen := make(map[string]bool, len(raw))

	for i, r := range raw {
		rec := Normalize(r)
		if reason := Validate(rec); reason != "" {
			result.Rejected = append(result.Rejected, models.RejectedRecord{
				Line:   i + 1,
				Record: rec,
				Reason: reason,
			})
			continue
		}
		if seen[rec.ID] {
			result.Duplicates++
			continue
		}
		seen[rec.ID] = true
		result.Accepted = append(result.Accepted, rec)
	}
	return result
}

// digitsOnly strips every non-digit rune and caps the result at max runes.
// A max of 0 disables the cap.
func digitsOnly(s string, max int) string {
	var b strings.Builder
	for _, r := range s {
		if r < '0' || r > '9' {
			continue
		}
		b.WriteRune(r)
		if max > 0 && b.Len() >= max {
			break
		}
	}
	return b.String()
}
