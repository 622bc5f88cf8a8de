package matcher

import (
	"strings"

	"settlement-reconciler/internal/models"

	"github.com/shopspring/decimal"
)

// LedgerIndex holds the candidate view of one ledger table: the rows in the
// reference currency, in table order, plus an exact-amount lookup. The index
// never carries consumption state; that lives in TableState so the same index
// serves every record of a run.
type LedgerIndex struct {
	Table *models.LedgerTable

	// ReferenceRows are the rows whose currency equals the reference
	// currency, preserving table order for deterministic tie-breaks.
	ReferenceRows []*models.LedgerRow

	amountIndex map[string][]*models.LedgerRow
}

// NewLedgerIndex builds the candidate index for one table
func NewLedgerIndex(table *models.LedgerTable, referenceCurrency string) *LedgerIndex {
	index := &LedgerIndex{
		Table:       table,
		amountIndex: make(map[string][]*models.LedgerRow),
	}

	for _, row := range table.Rows {
		if row.Currency != referenceCurrency {
			continue
		}
		index.ReferenceRows = append(index.ReferenceRows, row)

		if row.Amount != nil {
			key := row.Amount.StringFixed(2)
			index.amountIndex[key] = append(index.amountIndex[key], row)
		}
	}

	return index
}

// RowsByAmount returns reference-currency rows whose amount equals the target
// within tolerance, in table order. Rows without a parseable amount never
// qualify.
func (li *LedgerIndex) RowsByAmount(amount, tolerance decimal.Decimal) []*models.LedgerRow {
	if tolerance.IsZero() {
		return li.amountIndex[amount.StringFixed(2)]
	}

	var rows []*models.LedgerRow
	for _, row := range li.ReferenceRows {
		if row.Amount == nil {
			continue
		}
		if models.CompareAmountsWithTolerance(*row.Amount, amount, tolerance) {
			rows = append(rows, row)
		}
	}
	return rows
}

// RowsByKeyword returns reference-currency rows whose description contains
// the keyword, in table order. The exact-amount policy matches tags
// case-sensitively; the implied-rate policy folds case.
func (li *LedgerIndex) RowsByKeyword(keyword string, foldCase bool) []*models.LedgerRow {
	if keyword == "" {
		return nil
	}

	needle := keyword
	if foldCase {
		needle = strings.ToLower(keyword)
	}

	var rows []*models.LedgerRow
	for _, row := range li.ReferenceRows {
		description := row.Description
		if foldCase {
			description = strings.ToLower(description)
		}
		if strings.Contains(description, needle) {
			rows = append(rows, row)
		}
	}
	return rows
}

// IndexStats describes the shape of one table's candidate view
type IndexStats struct {
	TableID        string `json:"table_id"`
	TotalRows      int    `json:"total_rows"`
	ReferenceRows  int    `json:"reference_rows"`
	DistinctAmount int    `json:"distinct_amounts"`
	BlankRows      int    `json:"blank_rows"`
}

// GetIndexStats returns statistics about the indexed table
func (li *LedgerIndex) GetIndexStats() IndexStats {
	stats := IndexStats{
		TableID:        li.Table.ID,
		TotalRows:      len(li.Table.Rows),
		ReferenceRows:  len(li.ReferenceRows),
		DistinctAmount: len(li.amountIndex),
	}
	for _, row := range li.ReferenceRows {
		if row.IsBlank() {
			stats.BlankRows++
		}
	}
	return stats
}

// TableState tracks which rows of one table have been consumed within a run.
// It is explicit state: callers create it alongside the index and pass it to
// every match against that table.
type TableState struct {
	consumed map[int]bool
}

// NewTableState creates an empty consumption state for one table
func NewTableState() *TableState {
	return &TableState{consumed: make(map[int]bool)}
}

// IsConsumed reports whether a row was already assigned in this run
func (ts *TableState) IsConsumed(rowIndex int) bool {
	return ts.consumed[rowIndex]
}

// Consume marks a row as assigned to a settlement record
func (ts *TableState) Consume(rowIndex int) {
	ts.consumed[rowIndex] = true
}

// ConsumedCount returns how many rows this run has assigned in the table
func (ts *TableState) ConsumedCount() int {
	return len(ts.consumed)
}
