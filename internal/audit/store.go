package audit

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// RunRecord is one persisted run. The audit store keeps its own flat types
// so the schema is decoupled from the pipeline's result structures.
type RunRecord struct {
	ID          string    `json:"id"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DryRun      bool      `json:"dry_run"`

	DocumentsSupplied int `json:"documents_supplied"`
	DocumentsParsed   int `json:"documents_parsed"`
	ParseFailures     int `json:"parse_failures"`
	RecordsAfterMerge int `json:"records_after_merge"`
	TablesLoaded      int `json:"tables_loaded"`
	Filled            int `json:"filled"`
	AlreadyFilled     int `json:"already_filled"`
	Ambiguous         int `json:"ambiguous"`
	Unmatched         int `json:"unmatched"`
}

// OutcomeRecord is one persisted per-document outcome
type OutcomeRecord struct {
	RunID      string   `json:"run_id"`
	Document   string   `json:"document"`
	Category   string   `json:"category"`
	TableID    string   `json:"table_id,omitempty"`
	RowIndex   int      `json:"row_index"`
	Reason     string   `json:"reason,omitempty"`
	MergedFrom []string `json:"merged_from,omitempty"`
}

// Store persists runs and outcomes
type Store struct {
	db *sql.DB
}

// NewStore creates a store over an initialized database
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open initializes the database at dsn and returns a store over it
func Open(dsn string) (*Store, error) {
	db, err := InitDB(dsn)
	if err != nil {
		return nil, err
	}
	return NewStore(db), nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun persists one run's summary row
func (s *Store) SaveRun(run *RunRecord) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO runs
		(id, started_at, completed_at, dry_run, documents_supplied,
		 documents_parsed, parse_failures, records_after_merge, tables_loaded,
		 filled, already_filled, ambiguous, unmatched)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		run.ID, run.StartedAt.Format(time.RFC3339), run.CompletedAt.Format(time.RFC3339),
		boolToInt(run.DryRun), run.DocumentsSupplied, run.DocumentsParsed,
		run.ParseFailures, run.RecordsAfterMerge, run.TablesLoaded,
		run.Filled, run.AlreadyFilled, run.Ambiguous, run.Unmatched,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// BulkInsertOutcomes persists a run's outcomes in one transaction and
// returns the number of rows actually inserted
func (s *Store) BulkInsertOutcomes(outcomes []OutcomeRecord) (int, error) {
	inserted := 0
	sqlTx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer sqlTx.Rollback()

	stmt, err := sqlTx.Prepare(
		`INSERT OR IGNORE INTO outcomes
		(run_id, document, category, table_id, row_index, reason, merged_from)
		VALUES (?,?,?,?,?,?,?)`,
	)
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for i := range outcomes {
		o := &outcomes[i]
		res, err := stmt.Exec(
			o.RunID, o.Document, o.Category, o.TableID, o.RowIndex,
			o.Reason, strings.Join(o.MergedFrom, "+"),
		)
		if err != nil {
			return inserted, fmt.Errorf("insert row %d: %w", i, err)
		}
		ra, _ := res.RowsAffected()
		inserted += int(ra)
	}

	if err := sqlTx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

// GetRun returns one run by id
func (s *Store) GetRun(id string) (*RunRecord, error) {
	row := s.db.QueryRow(
		`SELECT id, started_at, completed_at, dry_run, documents_supplied,
		 documents_parsed, parse_failures, records_after_merge, tables_loaded,
		 filled, already_filled, ambiguous, unmatched
		 FROM runs WHERE id = ?`, id)

	var run RunRecord
	var startedAt, completedAt string
	var dryRun int
	err := row.Scan(
		&run.ID, &startedAt, &completedAt, &dryRun, &run.DocumentsSupplied,
		&run.DocumentsParsed, &run.ParseFailures, &run.RecordsAfterMerge,
		&run.TablesLoaded, &run.Filled, &run.AlreadyFilled, &run.Ambiguous,
		&run.Unmatched,
	)
	if err != nil {
		return nil, err
	}

	run.DryRun = dryRun != 0
	run.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
	run.CompletedAt, _ = time.Parse(time.RFC3339, completedAt)
	return &run, nil
}

// ListRuns returns the most recent runs, newest first
func (s *Store) ListRuns(limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(
		`SELECT id, started_at, completed_at, dry_run, documents_supplied,
		 documents_parsed, parse_failures, records_after_merge, tables_loaded,
		 filled, already_filled, ambiguous, unmatched
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var run RunRecord
		var startedAt, completedAt string
		var dryRun int
		if err := rows.Scan(
			&run.ID, &startedAt, &completedAt, &dryRun, &run.DocumentsSupplied,
			&run.DocumentsParsed, &run.ParseFailures, &run.RecordsAfterMerge,
			&run.TablesLoaded, &run.Filled, &run.AlreadyFilled, &run.Ambiguous,
			&run.Unmatched,
		); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		run.DryRun = dryRun != 0
		run.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
		run.CompletedAt, _ = time.Parse(time.RFC3339, completedAt)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetOutcomes returns every outcome of one run
func (s *Store) GetOutcomes(runID string) ([]OutcomeRecord, error) {
	rows, err := s.db.Query(
		`SELECT run_id, document, category, table_id, row_index, reason, merged_from
		 FROM outcomes WHERE run_id = ? ORDER BY document`, runID)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var outcomes []OutcomeRecord
	for rows.Next() {
		var o OutcomeRecord
		var tableID, reason, mergedFrom sql.NullString
		if err := rows.Scan(&o.RunID, &o.Document, &o.Category, &tableID,
			&o.RowIndex, &reason, &mergedFrom); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		o.TableID = tableID.String
		o.Reason = reason.String
		if mergedFrom.Valid && mergedFrom.String != "" {
			o.MergedFrom = strings.Split(mergedFrom.String, "+")
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

// CategoryCounts returns the per-category outcome counts of one run
func (s *Store) CategoryCounts(runID string) (map[string]int, error) {
	rows, err := s.db.Query(
		`SELECT category, COUNT(*) FROM outcomes WHERE run_id = ? GROUP BY category`, runID)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var category string
		var count int
		if err := rows.Scan(&category, &count); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		counts[category] = count
	}
	return counts, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
