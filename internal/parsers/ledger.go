package parsers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"settlement-reconciler/internal/models"
	"settlement-reconciler/pkg/errors"
	"settlement-reconciler/pkg/logger"

	"github.com/extrame/xls"
)

// LedgerParser loads ledger tables from CSV files or legacy .xls workbooks
type LedgerParser struct {
	config *LedgerConfig
	base   *BaseParser
	logger logger.Logger
}

// NewLedgerParser creates a parser for ledger tables
func NewLedgerParser(config *LedgerConfig) (*LedgerParser, error) {
	if config == nil {
		config = DefaultLedgerConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "ledger_config", "", err)
	}

	parseConfig := DefaultParseConfig()
	parseConfig.HasHeader = config.HasHeader
	parseConfig.Delimiter = config.Delimiter

	return &LedgerParser{
		config: config,
		base:   NewBaseParser(parseConfig),
		logger: logger.GetGlobalLogger().WithComponent("ledger_parser"),
	}, nil
}

// ParseFile loads every ledger table in a file. A CSV file yields one table;
// an .xls workbook yields one table per usable worksheet.
func (lp *LedgerParser) ParseFile(ctx context.Context, filePath string) ([]*models.LedgerTable, *ParseStats, error) {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".csv":
		table, stats, err := lp.parseCSV(ctx, filePath)
		if err != nil {
			return nil, stats, err
		}
		return []*models.LedgerTable{table}, stats, nil
	case ".xls":
		return lp.parseXLS(ctx, filePath)
	default:
		return nil, nil, errors.TableError(
			errors.CodeUnrecognizedFormat,
			filePath,
			fmt.Sprintf("unsupported ledger file extension %q", filepath.Ext(filePath)),
			nil,
		).WithSuggestion("Supply ledger tables as .csv or .xls files")
	}
}

func (lp *LedgerParser) parseCSV(ctx context.Context, filePath string) (*models.LedgerTable, *ParseStats, error) {
	file, reader, err := lp.base.OpenFile(filePath)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	parseCtx := NewParseContext(ctx)
	if err := lp.base.ReadHeaders(reader, parseCtx, filePath); err != nil {
		return nil, nil, err
	}

	normalized, missing := lp.config.NormalizeHeaders(parseCtx.Headers, models.RequiredColumns())
	if len(missing) > 0 {
		return nil, nil, errors.MissingColumnError(filePath, models.RequiredColumns(), parseCtx.Headers)
	}
	lp.base.SetHeaders(parseCtx, normalized)

	table := &models.LedgerTable{
		ID:      filepath.Base(filePath),
		Headers: append([]string(nil), normalized...),
	}
	stats := NewParseStats()
	collector := errors.NewParseErrorCollector(maxReportedCellErrors, true)

	for {
		record, err := lp.base.ReadRecord(reader, parseCtx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, stats, errors.TableError(
				errors.CodeInvalidData,
				filePath,
				fmt.Sprintf("malformed CSV record near line %d", parseCtx.LineNumber+1),
				err,
			)
		}

		row := models.NewLedgerRow(len(table.Rows), lp.base.RecordToMap(record, parseCtx))
		table.Rows = append(table.Rows, row)
		lp.recordRowStats(stats, collector, filePath, parseCtx.LineNumber, row)
	}

	stats.TotalLines = parseCtx.LineNumber
	table.EnsureTargetColumns()

	if collector.HasErrors() {
		lp.logger.Warn(errors.FormatParseErrorsForUser(collector.GetErrors()))
	}

	lp.logger.WithFields(logger.Fields{
		"table": table.ID,
		"rows":  len(table.Rows),
		"stats": stats.String(),
	}).Debug("Loaded ledger table from CSV")

	return table, stats, nil
}

func (lp *LedgerParser) parseXLS(ctx context.Context, filePath string) ([]*models.LedgerTable, *ParseStats, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, errors.FileError(errors.CodeFileNotFound, filePath, err)
		}
		if os.IsPermission(err) {
			return nil, nil, errors.FileError(errors.CodeFilePermission, filePath, err)
		}
		return nil, nil, errors.FileError(errors.CodeFileCorrupted, filePath, err)
	}

	workbook, err := xls.OpenReader(bytes.NewReader(data), lp.config.XLSCharset)
	if err != nil {
		return nil, nil, errors.TableError(
			errors.CodeUnrecognizedFormat,
			filePath,
			"cannot open legacy workbook",
			err,
		).WithSuggestion("Check that the file is a valid .xls workbook (not a renamed .xlsx)")
	}

	if workbook.NumSheets() == 0 {
		return nil, nil, errors.TableError(errors.CodeMissingField, filePath, "workbook has no sheets", nil)
	}

	var tables []*models.LedgerTable
	stats := NewParseStats()
	collector := errors.NewParseErrorCollector(maxReportedCellErrors, true)

	for si := 0; si < workbook.NumSheets(); si++ {
		select {
		case <-ctx.Done():
			return nil, stats, errors.InternalError(errors.CodeUnexpectedError, "xls_parsing", fmt.Errorf("parsing cancelled"))
		default:
		}

		sheet := workbook.GetSheet(si)
		if sheet == nil {
			continue
		}

		tableID := fmt.Sprintf("%s#%s", filepath.Base(filePath), sheet.Name)
		grid := readSheetRows(sheet, lp.config.XLSMaxRows)
		if len(grid) == 0 {
			lp.logger.WithField("table", tableID).Debug("Skipping empty worksheet")
			continue
		}

		headers := lp.base.cleanHeaders(grid[0])
		normalized, missing := lp.config.NormalizeHeaders(headers, models.RequiredColumns())
		if len(missing) > 0 {
			lp.logger.WithFields(logger.Fields{
				"table":   tableID,
				"missing": missing,
			}).Warn("Skipping worksheet without required columns")
			continue
		}

		table := &models.LedgerTable{
			ID:      tableID,
			Headers: append([]string(nil), normalized...),
		}
		for ri, cells := range grid[1:] {
			rowMap := make(map[string]string, len(normalized))
			for ci, header := range normalized {
				if ci < len(cells) {
					rowMap[header] = cells[ci]
				} else {
					rowMap[header] = ""
				}
			}
			row := models.NewLedgerRow(len(table.Rows), rowMap)
			table.Rows = append(table.Rows, row)
			lp.recordRowStats(stats, collector, filePath, ri+2, row)
		}

		table.EnsureTargetColumns()
		tables = append(tables, table)

		lp.logger.WithFields(logger.Fields{
			"table": table.ID,
			"rows":  len(table.Rows),
		}).Debug("Loaded ledger table from worksheet")
	}

	if len(tables) == 0 {
		return nil, stats, errors.MissingColumnError(filePath, models.RequiredColumns(), nil)
	}

	if collector.HasErrors() {
		lp.logger.Warn(errors.FormatParseErrorsForUser(collector.GetErrors()))
	}

	return tables, stats, nil
}

// maxReportedCellErrors caps how many bad cells reach the detailed summary;
// the stats still count every one.
const maxReportedCellErrors = 100

// recordRowStats counts a loaded row and flags cells that will keep the row
// from ever matching
func (lp *LedgerParser) recordRowStats(stats *ParseStats, collector *errors.ParseErrorCollector, filePath string, line int, row *models.LedgerRow) {
	stats.RecordsParsed++

	valid := true
	if row.Amount == nil && strings.TrimSpace(row.AmountRaw) != "" {
		flagBadCell(stats, collector, errors.InvalidAmountError(filePath, line, models.ColAmount, row.AmountRaw))
		valid = false
	}
	if row.ParsedDate == nil && strings.TrimSpace(row.Date) != "" {
		flagBadCell(stats, collector, errors.InvalidDateError(filePath, line, models.ColDate, row.Date))
		valid = false
	}

	if valid {
		stats.RecordsValid++
	}
}

// flagBadCell records an unusable cell in the parse stats and keeps the
// detailed form for the end-of-load summary
func flagBadCell(stats *ParseStats, collector *errors.ParseErrorCollector, err *errors.EnhancedParseError) {
	stats.AddError(&ParseError{
		Line:    err.Context.Line,
		Field:   err.Context.Column,
		Value:   err.Context.Value,
		Message: err.Message,
	})
	collector.Add(err)
}

// readSheetRows extracts the cell grid of one worksheet, dropping rows that
// are entirely empty
func readSheetRows(sheet *xls.WorkSheet, maxRows int) [][]string {
	var grid [][]string

	last := int(sheet.MaxRow)
	if last >= maxRows {
		last = maxRows - 1
	}

	for ri := 0; ri <= last; ri++ {
		row := sheet.Row(ri)
		if row == nil {
			continue
		}

		cells := make([]string, 0, row.LastCol())
		empty := true
		for ci := 0; ci < row.LastCol(); ci++ {
			value := row.Col(ci)
			if strings.TrimSpace(value) != "" {
				empty = false
			}
			cells = append(cells, value)
		}
		if empty {
			continue
		}

		grid = append(grid, cells)
	}

	return grid
}

// ParseFiles loads ledger tables from a batch of files with per-file error
// isolation
func (lp *LedgerParser) ParseFiles(ctx context.Context, paths []string) ([]*models.LedgerTable, []*errors.ReconcilerError) {
	var tables []*models.LedgerTable
	var failures []*errors.ReconcilerError

	for _, path := range paths {
		fileTables, stats, err := lp.ParseFile(ctx, path)
		if err != nil {
			recErr, _ := errors.AsReconcilerError(err)
			if recErr == nil {
				recErr = errors.WrapIfNeeded(err, errors.CategoryParse, errors.CodeInvalidData, "ledger parsing failed")
			}
			failures = append(failures, recErr)
			lp.logger.WithError(err).WithField("file", filepath.Base(path)).Warn("Skipping ledger file")
			continue
		}

		tables = append(tables, fileTables...)
		if stats != nil && stats.HasErrors() {
			lp.logger.WithFields(logger.Fields{
				"file":   filepath.Base(path),
				"errors": stats.GetSampleErrors(3),
			}).Warn("Ledger file loaded with unmatchable rows")
		}
	}

	return tables, failures
}
