package parsers

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"settlement-reconciler/internal/models"
	"settlement-reconciler/pkg/errors"
)

// StreamingConfig holds configuration for streaming operations
type StreamingConfig struct {
	BatchSize        int  `json:"batch_size"`
	ReportProgress   bool `json:"report_progress"`
	ProgressInterval int  `json:"progress_interval"`
}

// DefaultStreamingConfig returns a configuration with sensible defaults for streaming
func DefaultStreamingConfig() *StreamingConfig {
	return &StreamingConfig{
		BatchSize:        1000,
		ReportProgress:   false,
		ProgressInterval: 10000,
	}
}

// Validate checks if the streaming configuration is valid
func (sc *StreamingConfig) Validate() error {
	if sc.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", sc.BatchSize)
	}
	if sc.ProgressInterval <= 0 {
		return fmt.Errorf("progress interval must be positive, got %d", sc.ProgressInterval)
	}
	return nil
}

// ProgressReport describes streaming progress over a large ledger file.
// PercentComplete is only meaningful when EstimatedTotal > 0.
type ProgressReport struct {
	ProcessedRows   int
	ValidRows       int
	ErrorCount      int
	ElapsedTime     time.Duration
	EstimatedTotal  int
	PercentComplete float64
}

// StreamProgressCallback is called periodically to report streaming progress
type StreamProgressCallback func(*ProgressReport)

// RowBatchCallback receives ledger rows in batches. Returning an error
// aborts the stream.
type RowBatchCallback func(tableID string, rows []*models.LedgerRow) error

// StreamingLedgerParser reads CSV ledger tables in bounded batches instead
// of materializing the whole table. Use it for ledgers too large for the
// in-memory pipeline; .xls workbooks are excluded because the workbook
// format requires a full read anyway.
type StreamingLedgerParser struct {
	*LedgerParser
	config *StreamingConfig
}

// NewStreamingLedgerParser creates a streaming parser over the standard
// ledger configuration
func NewStreamingLedgerParser(ledgerConfig *LedgerConfig, streamConfig *StreamingConfig) (*StreamingLedgerParser, error) {
	if streamConfig == nil {
		streamConfig = DefaultStreamingConfig()
	}

	if err := streamConfig.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "streaming_config", "", err)
	}

	ledgerParser, err := NewLedgerParser(ledgerConfig)
	if err != nil {
		return nil, err
	}

	return &StreamingLedgerParser{
		LedgerParser: ledgerParser,
		config:       streamConfig,
	}, nil
}

// StreamCSV reads a CSV ledger file and delivers its rows to callback in
// batches of at most BatchSize. Row-level defects (bad dates, bad amounts)
// are counted in the returned stats, same as the in-memory parser.
func (slp *StreamingLedgerParser) StreamCSV(
	ctx context.Context,
	filePath string,
	callback RowBatchCallback,
	progressCallback StreamProgressCallback,
) (*ParseStats, error) {
	if strings.ToLower(filepath.Ext(filePath)) != ".csv" {
		return nil, errors.TableError(
			errors.CodeUnrecognizedFormat,
			filePath,
			"streaming is only supported for .csv ledger files",
			nil,
		)
	}

	startTime := time.Now()

	var estimatedTotal int
	if slp.config.ReportProgress && progressCallback != nil {
		if total, err := slp.estimateRowCount(filePath); err == nil {
			estimatedTotal = total
		}
	}

	file, reader, err := slp.base.OpenFile(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	parseCtx := NewParseContext(ctx)
	if err := slp.base.ReadHeaders(reader, parseCtx, filePath); err != nil {
		return nil, err
	}

	normalized, missing := slp.LedgerParser.config.NormalizeHeaders(parseCtx.Headers, models.RequiredColumns())
	if len(missing) > 0 {
		return nil, errors.MissingColumnError(filePath, models.RequiredColumns(), parseCtx.Headers)
	}
	slp.base.SetHeaders(parseCtx, normalized)

	tableID := filepath.Base(filePath)
	stats := NewParseStats()
	collector := errors.NewParseErrorCollector(maxReportedCellErrors, true)
	batch := make([]*models.LedgerRow, 0, slp.config.BatchSize)
	index := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := callback(tableID, batch); err != nil {
			return fmt.Errorf("batch callback error: %w", err)
		}
		batch = make([]*models.LedgerRow, 0, slp.config.BatchSize)
		return nil
	}

	for {
		if parseCtx.IsCancelled() {
			return stats, ctx.Err()
		}

		record, err := slp.base.ReadRecord(reader, parseCtx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return stats, errors.TableError(
				errors.CodeInvalidData,
				filePath,
				fmt.Sprintf("malformed CSV record near line %d", parseCtx.LineNumber+1),
				err,
			)
		}

		row := models.NewLedgerRow(index, slp.base.RecordToMap(record, parseCtx))
		index++
		slp.recordRowStats(stats, collector, filePath, parseCtx.LineNumber, row)

		batch = append(batch, row)
		if len(batch) >= slp.config.BatchSize {
			if err := flush(); err != nil {
				return stats, err
			}
		}

		if slp.config.ReportProgress && progressCallback != nil &&
			stats.RecordsParsed%slp.config.ProgressInterval == 0 {
			progressCallback(slp.progressReport(stats, estimatedTotal, startTime, false))
		}
	}

	if err := flush(); err != nil {
		return stats, err
	}

	stats.TotalLines = parseCtx.LineNumber

	if collector.HasErrors() {
		slp.logger.Warn(errors.FormatParseErrorsForUser(collector.GetErrors()))
	}

	if slp.config.ReportProgress && progressCallback != nil {
		progressCallback(slp.progressReport(stats, estimatedTotal, startTime, true))
	}

	return stats, nil
}

func (slp *StreamingLedgerParser) progressReport(stats *ParseStats, estimatedTotal int, startTime time.Time, done bool) *ProgressReport {
	var percentComplete float64
	switch {
	case done:
		percentComplete = 100.0
	case estimatedTotal > 0:
		percentComplete = float64(stats.RecordsParsed) / float64(estimatedTotal) * 100
	}

	return &ProgressReport{
		ProcessedRows:   stats.RecordsParsed,
		ValidRows:       stats.RecordsValid,
		ErrorCount:      stats.ErrorCount,
		ElapsedTime:     time.Since(startTime),
		EstimatedTotal:  estimatedTotal,
		PercentComplete: percentComplete,
	}
}

// estimateRowCount counts data rows with a throwaway read of the file
func (slp *StreamingLedgerParser) estimateRowCount(filePath string) (int, error) {
	file, reader, err := slp.base.OpenFile(filePath)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	parseCtx := NewParseContext(context.Background())
	if err := slp.base.ReadHeaders(reader, parseCtx, filePath); err != nil {
		return 0, err
	}

	count := 0
	for {
		if _, err := slp.base.ReadRecord(reader, parseCtx); err != nil {
			break
		}
		count++
	}

	return count, nil
}
