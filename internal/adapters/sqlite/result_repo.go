// Package sqlite contains SQLite implementations of repository interfaces.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/batchreg/internal/ports/secondary"
)

// ResultRepository implements secondary.ResultRepository with SQLite.
type ResultRepository struct {
	db *sql.DB
}

// NewResultRepository creates a new SQLite result repository.
func NewResultRepository(db *sql.DB) *ResultRepository {
	return &ResultRepository{db: db}
}

// scanResult scans a result row into a ResultRecord.
func scanResult(scanner interface {
	Scan(dest ...any) error
}) (*secondary.ResultRecord, error) {
	var (
		lastDetail     sql.NullString
		confirmationID sql.NullString
		completedAt    time.Time
	)

	record := &secondary.ResultRecord{}
	err := scanner.Scan(
		&record.ID, &record.RunID, &record.RecordID, &record.Name, &record.Phone,
		&record.FinalStatus, &record.Attempts, &lastDetail, &confirmationID, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	record.LastDetail = lastDetail.String
	record.ConfirmationID = confirmationID.String
	record.CompletedAt = completedAt.UTC().Format(time.RFC3339)

	return record, nil
}

const resultSelectCols = "id, run_id, record_id, name, phone, final_status, attempts, last_detail, confirmation_id, completed_at"

// SaveResults persists a batch of terminal results in a single transaction.
// A re-run of the same record within a run replaces the earlier row, so a
// flush retried after a transient write failure cannot duplicate results.
func (r *ResultRepository) SaveResults(ctx context.Context, results []*secondary.ResultRecord) error {
	if len(results) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO results ("+resultSelectCols+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?) "+
			"ON CONFLICT(run_id, record_id) DO UPDATE SET "+
			"final_status = excluded.final_status, attempts = excluded.attempts, "+
			"last_detail = excluded.last_detail, confirmation_id = excluded.confirmation_id, "+
			"completed_at = excluded.completed_at",
	)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, result := range results {
		var lastDetail, confirmationID sql.NullString
		if result.LastDetail != "" {
			lastDetail = sql.NullString{String: result.LastDetail, Valid: true}
		}
		if result.ConfirmationID != "" {
			confirmationID = sql.NullString{String: result.ConfirmationID, Valid: true}
		}

		completedAt, err := time.Parse(time.RFC3339, result.CompletedAt)
		if err != nil {
			return fmt.Errorf("invalid completed_at for record %s: %w", result.RecordID, err)
		}

		_, err = stmt.ExecContext(ctx,
			result.ID, result.RunID, result.RecordID, result.Name, result.Phone,
			result.FinalStatus, result.Attempts, lastDetail, confirmationID, completedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to save result for record %s: %w", result.RecordID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit results: %w", err)
	}

	return nil
}

// List retrieves stored results matching the given filters, newest first.
func (r *ResultRepository) List(ctx context.Context, filters secondary.ResultFilters) ([]*secondary.ResultRecord, error) {
	query := "SELECT " + resultSelectCols + " FROM results WHERE 1=1"
	args := []any{}

	if filters.RunID != "" {
		query += " AND run_id = ?"
		args = append(args, filters.RunID)
	}
	if filters.FinalStatus != "" {
		query += " AND final_status = ?"
		args = append(args, filters.FinalStatus)
	}

	query += " ORDER BY completed_at DESC, record_id ASC"

	if filters.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filters.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	defer rows.Close()

	var records []*secondary.ResultRecord
	for rows.Next() {
		record, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		records = append(records, record)
	}

	return records, rows.Err()
}

// Runs returns the distinct run IDs present in storage, newest first.
func (r *ResultRepository) Runs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT run_id FROM results GROUP BY run_id ORDER BY MAX(completed_at) DESC",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []string
	for rows.Next() {
		var runID string
		if err := rows.Scan(&runID); err != nil {
			return nil, fmt.Errorf("failed to scan run id: %w", err)
		}
		runs = append(runs, runID)
	}

	return runs, rows.Err()
}
