// Package classify contains the pure classification logic that turns the
// raw output of one submission attempt into a verdict. This is part of
// the Functional Core - no I/O, only pure functions.
//
// The remote signal is free text, not a status code, so classification is
// pattern-based. The exact remote wording is an external, unverified
// contract: every pattern here is configuration with defaults taken from
// observed responses, not hard-coded truth.
package classify

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Verdict is the classifier's reading of one attempt.
type Verdict string

const (
	VerdictSuccess        Verdict = "success"
	VerdictRejected       Verdict = "rejected"
	VerdictSessionExpired Verdict = "session_expired"
	VerdictAmbiguous      Verdict = "ambiguous"
)

// Classification is the result of classifying one attempt's raw output.
type Classification struct {
	Verdict        Verdict
	Detail         string
	ConfirmationID string
}

// Rules is the configurable pattern set driving classification.
// Patterns are matched case-insensitively as plain substrings.
type Rules struct {
	// SuccessPatterns mark a confirmed registration. "Already registered"
	// phrases belong here: the business outcome is achieved either way.
	SuccessPatterns []string

	// RejectionPatterns mark an explicit remote rejection.
	RejectionPatterns []string

	// SessionExpiredPatterns mark a stale token or cookie. These are
	// retried immediately after a refresh rather than on the standard
	// backoff schedule.
	SessionExpiredPatterns []string

	// ConfirmationRegex extracts a confirmation identifier from a
	// successful response. Extraction failure does not downgrade the
	// verdict.
	ConfirmationRegex *regexp.Regexp

	// RejectionDetailRegex extracts the rejection message body from a
	// rejected response. When it does not match, a bounded slice of the
	// raw output is used instead.
	RejectionDetailRegex *regexp.Regexp

	// MaxDetailLength bounds the captured rejection text.
	MaxDetailLength int
}

// DefaultRules returns the pattern set observed on the target service.
func DefaultRules() Rules {
	return Rules{
		SuccessPatterns: []string{
			"pendaftaran berhasil",
			"sudah terdaftar",
			"sudah melakukan pendaftaran",
		},
		RejectionPatterns: []string{
			"alert-danger",
			"validasi gagal",
			"pendaftaran ditutup",
			"kuota penuh",
		},
		SessionExpiredPatterns: []string{
			"419",
			"page expired",
			"tokenmismatch",
		},
		ConfirmationRegex:    regexp.MustCompile(`(?i)Nomor\s+Antrian:\s*([A-Z0-9]+\s*[A-Z]-\d+)`),
		RejectionDetailRegex: regexp.MustCompile(`(?is)<div class="alert alert-danger"[^>]*>(.*?)</div>`),
		MaxDetailLength:      400,
	}
}

// Classify reads the raw output of one attempt. Precedence: success wins
// over everything (a false negative wastes one retry, a false positive
// would report failure for an already-registered applicant), then session
// expiry, then rejection. Anything else is ambiguous.
func (r Rules) Classify(raw string) Classification {
	lowered := strings.ToLower(raw)

	if matchAny(lowered, r.SuccessPatterns) {
		c := Classification{Verdict: VerdictSuccess}
		if r.ConfirmationRegex != nil {
			if m := r.ConfirmationRegex.FindStringSubmatch(raw); len(m) > 1 {
				c.ConfirmationID = strings.TrimSpace(m[1])
			}
		}
		return c
	}

	if matchAny(lowered, r.SessionExpiredPatterns) {
		return Classification{Verdict: VerdictSessionExpired, Detail: "session expired or token mismatch"}
	}

	if matchAny(lowered, r.RejectionPatterns) {
		return Classification{Verdict: VerdictRejected, Detail: r.rejectionDetail(raw)}
	}

	return Classification{Verdict: VerdictAmbiguous}
}

// FallbackResult is the structured answer from the independent status
// check channel.
type FallbackResult struct {
	Registered     bool
	ConfirmationID string
}

// Combine merges the primary classification with a fallback check result.
// A success signal from either channel always wins; otherwise the primary
// verdict stands.
func Combine(primary Classification, fb FallbackResult) Classification {
	if primary.Verdict == VerdictSuccess {
		return primary
	}
	if fb.Registered {
		c := Classification{Verdict: VerdictSuccess, ConfirmationID: fb.ConfirmationID}
		if c.ConfirmationID == "" {
			c.ConfirmationID = primary.ConfirmationID
		}
		return c
	}
	return primary
}

func (r Rules) rejectionDetail(raw string) string {
	detail := ""
	if r.RejectionDetailRegex != nil {
		if m := r.RejectionDetailRegex.FindStringSubmatch(raw); len(m) > 1 {
			detail = strings.TrimSpace(stripTags(m[1]))
		}
	}
	if detail == "" {
		detail = strings.TrimSpace(raw)
	}
	max := r.MaxDetailLength
	if max <= 0 {
		max = 400
	}
	if len(detail) > max {
		cut := max
		for cut > 0 && !utf8.RuneStart(detail[cut]) {
			cut--
		}
		detail = detail[:cut]
	}
	return detail
}

var tagRegex = regexp.MustCompile(`<[^>]+>`)

func stripTags(s string) string {
	return tagRegex.ReplaceAllString(s, "")
}

func matchAny(lowered string, patterns []string) bool {
	for _, p := range patterns {
		if p == "" {
			continue
		}
		if strings.Contains(lowered, strings.ToLower(p)) {
			return true
		}
	}
	return false
}
