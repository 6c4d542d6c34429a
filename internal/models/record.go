// Package models contains domain types for batchreg entities.
// SQL persistence lives in internal/adapters/sqlite/*.go
package models

// Record is one unit of work: one applicant to register.
// ID is the normalized national-ID and is the identity key for the batch.
// Records are immutable once accepted into the queue.
type Record struct {
	ID    string
	Name  string
	Phone string
}

// RejectedRecord is an input row that failed normalization or validation.
// Rejected records are reported, never retried.
type RejectedRecord struct {
	Line   int
	Record Record
	Reason string
}
