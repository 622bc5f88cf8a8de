// Package audit persists reconciliation run history in a local SQLite
// database. Every run's summary counters and per-record outcomes are kept so
// past runs stay queryable after the console output is gone.
package audit

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// InitDB opens (or creates) a SQLite database at the given path and ensures
// all required tables exist. Pass ":memory:" for an in-memory database.
func InitDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return db, nil
}

func createTables(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started_at DATETIME NOT NULL,
			completed_at DATETIME NOT NULL,
			dry_run INTEGER NOT NULL DEFAULT 0,
			documents_supplied INTEGER NOT NULL,
			documents_parsed INTEGER NOT NULL,
			parse_failures INTEGER NOT NULL,
			records_after_merge INTEGER NOT NULL,
			tables_loaded INTEGER NOT NULL,
			filled INTEGER NOT NULL,
			already_filled INTEGER NOT NULL,
			ambiguous INTEGER NOT NULL,
			unmatched INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,

		`CREATE TABLE IF NOT EXISTS outcomes (
			run_id TEXT NOT NULL,
			document TEXT NOT NULL,
			category TEXT NOT NULL,
			table_id TEXT,
			row_index INTEGER,
			reason TEXT,
			merged_from TEXT,
			PRIMARY KEY (run_id, document),
			FOREIGN KEY (run_id) REFERENCES runs(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_outcomes_category ON outcomes(category)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}

	return nil
}
