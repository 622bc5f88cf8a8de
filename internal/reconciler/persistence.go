package reconciler

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"settlement-reconciler/internal/models"
	"settlement-reconciler/pkg/errors"
	"settlement-reconciler/pkg/logger"
)

// OutcomeLogFilename is the per-run structured log written next to the
// filled ledgers.
const OutcomeLogFilename = "reconciliation_log.csv"

// LedgerWriter persists the mutated ledger tables and the structured outcome
// log. Each table becomes "<base>_filled.csv" in the output directory, in the
// table's own column order with target columns appended where they were
// absent.
type LedgerWriter struct {
	logger logger.Logger
}

// NewLedgerWriter creates a ledger writer
func NewLedgerWriter() *LedgerWriter {
	return &LedgerWriter{
		logger: logger.GetGlobalLogger().WithComponent("ledger_writer"),
	}
}

// WriteFilledTables writes every table of the run to the output directory
// and returns the paths written
func (lw *LedgerWriter) WriteFilledTables(result *RunResult, outputDir string) ([]string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, errors.FileError(errors.CodeDirectoryError, outputDir, err)
	}

	paths := make([]string, 0, len(result.Tables))
	for _, table := range result.Tables {
		path := filepath.Join(outputDir, filledName(table.ID))
		if err := lw.writeTable(table, path); err != nil {
			return paths, err
		}
		paths = append(paths, path)

		lw.logger.WithFields(logger.Fields{
			"table": table.ID,
			"path":  path,
			"rows":  len(table.Rows),
		}).Info("Wrote filled ledger table")
	}
	return paths, nil
}

func (lw *LedgerWriter) writeTable(table *models.LedgerTable, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, path, err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(table.Headers); err != nil {
		return errors.FileError(errors.CodeFileCorrupted, path, err)
	}

	for _, row := range table.Rows {
		cells := make([]string, len(table.Headers))
		for i, header := range table.Headers {
			cells[i] = row.ValueFor(header)
		}
		if err := writer.Write(cells); err != nil {
			return errors.FileError(errors.CodeFileCorrupted, path, err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// WriteOutcomeLog writes the run's per-record outcome log as CSV
func (lw *LedgerWriter) WriteOutcomeLog(result *RunResult, outputDir string) (string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", errors.FileError(errors.CodeDirectoryError, outputDir, err)
	}

	path := filepath.Join(outputDir, OutcomeLogFilename)
	file, err := os.Create(path)
	if err != nil {
		return "", errors.FileError(errors.CodeFilePermission, path, err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	header := []string{"run_id", "document", "outcome", "table", "row", "reason", "merged_from"}
	if err := writer.Write(header); err != nil {
		return "", errors.FileError(errors.CodeFileCorrupted, path, err)
	}

	for _, outcome := range result.Outcomes {
		rowIndex := ""
		if outcome.RowIndex >= 0 {
			rowIndex = fmt.Sprintf("%d", outcome.RowIndex)
		}
		record := []string{
			result.RunID,
			outcome.Document,
			string(outcome.Category),
			outcome.TableID,
			rowIndex,
			outcome.Reason,
			strings.Join(outcome.MergedFrom, "+"),
		}
		if err := writer.Write(record); err != nil {
			return "", errors.FileError(errors.CodeFileCorrupted, path, err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return "", errors.FileError(errors.CodeFileCorrupted, path, err)
	}

	lw.logger.WithFields(logger.Fields{
		"path":     path,
		"outcomes": len(result.Outcomes),
	}).Info("Wrote outcome log")

	return path, nil
}

// filledName derives the output filename for a table. Worksheet tables carry
// "file.xls#Sheet" identifiers; the separator is flattened so every table of
// a workbook gets its own file.
func filledName(tableID string) string {
	base := strings.ReplaceAll(tableID, "#", "_")
	ext := filepath.Ext(base)
	if ext != "" && !strings.Contains(ext, "_") {
		base = strings.TrimSuffix(base, ext)
	}
	return base + "_filled.csv"
}
