package reconciler

import (
	"context"

	"settlement-reconciler/internal/matcher"
	"settlement-reconciler/internal/models"
	"settlement-reconciler/pkg/errors"
	"settlement-reconciler/pkg/logger"
)

// parseStatements runs the statement parser over every requested document.
// Parse failures become outcome-log entries, never run failures.
func (rs *RunService) parseStatements(ctx context.Context, request *RunRequest, result *RunResult) []*models.SettlementRecord {
	records, failures := rs.statementParser.ParseFiles(ctx, request.StatementPaths)

	result.Summary.DocumentsParsed = len(records)
	result.Summary.ParseFailures = len(failures)

	for _, failure := range failures {
		result.Errors = append(result.Errors, failure)
		document, _ := failure.Context["document"].(string)
		if document == "" {
			document, _ = failure.Context["file_path"].(string)
		}
		result.Outcomes = append(result.Outcomes, &RecordOutcome{
			Document: document,
			Category: OutcomeParseFailed,
			RowIndex: -1,
			Reason:   failure.Message,
		})
	}

	return records
}

// loadLedgerTables loads every requested ledger file, isolating per-file
// failures
func (rs *RunService) loadLedgerTables(ctx context.Context, request *RunRequest, result *RunResult) []*models.LedgerTable {
	tables, failures := rs.ledgerParser.ParseFiles(ctx, request.LedgerPaths)

	result.Tables = tables
	result.Summary.TablesLoaded = len(tables)
	result.Errors = append(result.Errors, failures...)

	return tables
}

// matchAndFill matches every record against the tables in order and commits
// the fills. Consumption state is explicit and run-scoped: one TableState per
// table, one filled set across tables, so a record takes at most one row
// anywhere and a row takes at most one record.
func (rs *RunService) matchAndFill(records []*models.SettlementRecord, tables []*models.LedgerTable, result *RunResult) {
	indexes := make([]*matcher.LedgerIndex, 0, len(tables))
	states := make(map[string]*matcher.TableState, len(tables))
	for _, table := range tables {
		indexes = append(indexes, matcher.NewLedgerIndex(table, rs.config.Matching.ReferenceCurrency))
		states[table.ID] = matcher.NewTableState()
	}

	filled := make(map[string]bool, len(records))

	tracker := logger.NewProgressTracker(logger.ProgressConfig{
		Operation: "match_records",
		Total:     int64(len(records)),
		Logger:    rs.logger,
	})

	for _, record := range records {
		if filled[record.SourceID] {
			tracker.Increment()
			continue
		}

		outcome := rs.matchingEngine.MatchAcrossTables(record, indexes, states)
		result.Outcomes = append(result.Outcomes, rs.commitOutcome(outcome, states, filled, result))
		tracker.Increment()
	}

	tracker.Complete()
}

// commitOutcome applies one match outcome: fills and consumes on success,
// counts and logs every category either way
func (rs *RunService) commitOutcome(outcome *matcher.MatchOutcome, states map[string]*matcher.TableState, filled map[string]bool, result *RunResult) *RecordOutcome {
	record := outcome.Record
	entry := &RecordOutcome{
		Document:   record.SourceID,
		TableID:    outcome.TableID,
		RowIndex:   -1,
		Reason:     outcome.Reason,
		MergedFrom: record.MergedFrom,
	}
	if outcome.Row != nil {
		entry.RowIndex = outcome.Row.Index
	}

	switch outcome.Outcome {
	case matcher.OutcomeFilled:
		if err := rs.fillPolicy.Fill(record, outcome.Row, outcome.ImpliedRate); err != nil {
			recErr := errors.WrapIfNeeded(err, errors.CategoryMatch, errors.CodeNoMatch, "fill refused")
			result.Errors = append(result.Errors, recErr)
			entry.Category = OutcomeUnmatched
			entry.Reason = err.Error()
			result.Summary.Unmatched++
			rs.logger.WithError(err).WithField("record", record.SourceID).Warn("Fill refused, record left unmatched")
			return entry
		}

		states[outcome.TableID].Consume(outcome.Row.Index)
		filled[record.SourceID] = true
		entry.Category = OutcomeFilled
		result.Summary.Filled++

	case matcher.OutcomeAlreadyFilled:
		// The row is spoken for either way; keep later records off it.
		if outcome.Row != nil {
			states[outcome.TableID].Consume(outcome.Row.Index)
		}
		filled[record.SourceID] = true
		entry.Category = OutcomeAlreadyFilled
		result.Summary.AlreadyFilled++

	case matcher.OutcomeAmbiguous:
		entry.Category = OutcomeAmbiguous
		result.Summary.Ambiguous++

	default:
		entry.Category = OutcomeUnmatched
		result.Summary.Unmatched++
	}

	rs.logger.WithFields(logger.Fields{
		"record":  record.SourceID,
		"outcome": string(entry.Category),
		"table":   entry.TableID,
		"row":     entry.RowIndex,
	}).Info("Record outcome")

	return entry
}
