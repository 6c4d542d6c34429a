package db

import "fmt"

// SchemaSQL is the complete schema for fresh batchreg installs.
//
// This is the single source of truth for the database schema. Repository
// tests build in-memory databases from GetSchemaSQL(), so any repository
// code referencing a column missing here fails immediately with
// "no such column" at development time, not in production.
const SchemaSQL = `
-- Terminal submission results, one row per record per run.
CREATE TABLE IF NOT EXISTS results (
	id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL,
	record_id TEXT NOT NULL,
	name TEXT NOT NULL,
	phone TEXT NOT NULL,
	final_status TEXT NOT NULL CHECK(final_status IN ('succeeded', 'exhausted', 'interrupted')),
	attempts INTEGER NOT NULL DEFAULT 0,
	last_detail TEXT,
	confirmation_id TEXT,
	completed_at DATETIME NOT NULL,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(run_id, record_id)
);

CREATE INDEX IF NOT EXISTS idx_results_run_id ON results(run_id);
CREATE INDEX IF NOT EXISTS idx_results_final_status ON results(final_status);
`

// GetSchemaSQL returns the schema DDL. Tests use this instead of
// hardcoding CREATE TABLE statements.
func GetSchemaSQL() string {
	return SchemaSQL
}

// InitSchema applies the schema to the shared connection.
func InitSchema() error {
	database, err := GetDB()
	if err != nil {
		return err
	}
	if _, err := database.Exec(SchemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
