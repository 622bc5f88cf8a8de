package matcher

import (
	"fmt"
	"sort"
	"strings"

	"settlement-reconciler/internal/models"
)

// EdgeCaseHandler detects the situations where matching must refuse to pick a
// row: indistinguishable blank candidates, and settlement records that look
// like duplicates of each other. Both are fail-safes — the handler reports,
// the caller decides (and the matcher never writes on ambiguity).
type EdgeCaseHandler struct {
	Config *MatchingConfig
}

// NewEdgeCaseHandler creates a new edge case handler
func NewEdgeCaseHandler(config *MatchingConfig) *EdgeCaseHandler {
	if config == nil {
		config = DefaultMatchingConfig()
	}
	return &EdgeCaseHandler{Config: config}
}

// AmbiguityGroup is a set of blank candidate rows the matcher cannot tell
// apart: identical amount, description and date
type AmbiguityGroup struct {
	Key  string
	Rows []*models.LedgerRow
}

// String describes the group for logs and diagnostics
func (ag AmbiguityGroup) String() string {
	indexes := make([]string, 0, len(ag.Rows))
	for _, row := range ag.Rows {
		indexes = append(indexes, fmt.Sprintf("%d", row.Index))
	}
	return fmt.Sprintf("rows [%s] share %s", strings.Join(indexes, ", "), ag.Key)
}

// GroupIndistinguishable partitions blank candidate rows by their
// (amount, description, date) triple and returns every group of two or more.
// Rows without a parseable amount or date are never grouped: an unparseable
// cell makes a row distinguishable by inspection, and the date tie-break
// handles it downstream.
func (ech *EdgeCaseHandler) GroupIndistinguishable(rows []*models.LedgerRow) []AmbiguityGroup {
	byKey := make(map[string][]*models.LedgerRow)
	order := make([]string, 0, len(rows))

	for _, row := range rows {
		if row.Amount == nil || row.ParsedDate == nil {
			continue
		}
		key := fmt.Sprintf("amount=%s description=%q date=%s",
			row.Amount.StringFixed(2),
			strings.TrimSpace(row.Description),
			row.ParsedDate.Format("2006-01-02"))
		if _, seen := byKey[key]; !seen {
			order = append(order, key)
		}
		byKey[key] = append(byKey[key], row)
	}

	var groups []AmbiguityGroup
	for _, key := range order {
		if members := byKey[key]; len(members) >= 2 {
			groups = append(groups, AmbiguityGroup{Key: key, Rows: members})
		}
	}
	return groups
}

// DuplicateRecordGroup is a set of settlement records carrying the same
// platform, currency, net payout and period end
type DuplicateRecordGroup struct {
	Records []*models.SettlementRecord
	Reason  string
}

// DetectDuplicateRecords flags settlement records that would compete for the
// same ledger rows. Duplicates are legitimate input (re-extracted documents)
// but each beyond the first can only end unmatched or consume a row meant for
// another period, so the run should surface them.
func (ech *EdgeCaseHandler) DetectDuplicateRecords(records []*models.SettlementRecord) []DuplicateRecordGroup {
	byKey := make(map[string][]*models.SettlementRecord)
	for _, record := range records {
		period := "unknown"
		if record.PeriodEnd != nil {
			period = record.PeriodEnd.Format("2006-01-02")
		}
		key := fmt.Sprintf("%s|%s|%s|%s",
			record.Platform, record.Currency, record.NetPayoutLocal.StringFixed(2), period)
		byKey[key] = append(byKey[key], record)
	}

	keys := make([]string, 0, len(byKey))
	for key := range byKey {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var groups []DuplicateRecordGroup
	for _, key := range keys {
		members := byKey[key]
		if len(members) < 2 {
			continue
		}
		sources := make([]string, 0, len(members))
		for _, record := range members {
			sources = append(sources, record.SourceID)
		}
		groups = append(groups, DuplicateRecordGroup{
			Records: members,
			Reason: fmt.Sprintf("%d documents (%s) describe the same settlement",
				len(members), strings.Join(sources, ", ")),
		})
	}
	return groups
}
