package reconciler

import (
	"sort"

	"settlement-reconciler/internal/models"
	"settlement-reconciler/pkg/errors"
	"settlement-reconciler/pkg/logger"
)

// RecordPreprocessor prepares parsed settlement records for the merge and
// match stages: it drops records that fail validation (logging them as parse
// failures) and fixes the processing order so tie-breaks downstream are
// reproducible run to run.
type RecordPreprocessor struct {
	logger logger.Logger
}

// NewRecordPreprocessor creates a record preprocessor
func NewRecordPreprocessor() *RecordPreprocessor {
	return &RecordPreprocessor{
		logger: logger.GetGlobalLogger().WithComponent("preprocessor"),
	}
}

// Prepare validates and deterministically orders the records. Invalid
// records are recorded in the result and excluded from matching.
func (rp *RecordPreprocessor) Prepare(records []*models.SettlementRecord, result *RunResult) []*models.SettlementRecord {
	valid := make([]*models.SettlementRecord, 0, len(records))

	for _, record := range records {
		if err := record.Validate(); err != nil {
			recErr := errors.DocumentError(errors.CodeInvalidData, record.SourceID,
				"record failed validation after parsing", err)
			result.Errors = append(result.Errors, recErr)
			result.Outcomes = append(result.Outcomes, &RecordOutcome{
				Document: record.SourceID,
				Category: OutcomeParseFailed,
				RowIndex: -1,
				Reason:   recErr.Message,
			})
			result.Summary.ParseFailures++
			result.Summary.DocumentsParsed--
			rp.logger.WithError(err).WithField("record", record.SourceID).Warn("Dropping invalid record")
			continue
		}
		valid = append(valid, record)
	}

	sortRecords(valid)
	return valid
}

// sortRecords fixes the processing order: platform, then currency, then
// period end (nil first), then source id
func sortRecords(records []*models.SettlementRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.Platform != b.Platform {
			return a.Platform < b.Platform
		}
		if a.Currency != b.Currency {
			return a.Currency < b.Currency
		}
		switch {
		case a.PeriodEnd == nil && b.PeriodEnd != nil:
			return true
		case a.PeriodEnd != nil && b.PeriodEnd == nil:
			return false
		case a.PeriodEnd != nil && b.PeriodEnd != nil && !a.PeriodEnd.Equal(*b.PeriodEnd):
			return a.PeriodEnd.Before(*b.PeriodEnd)
		}
		return a.SourceID < b.SourceID
	})
}
