// Package reconciler wires the pipeline together: parse statement documents,
// merge sub-threshold periods, match each record against the ledger tables
// and fill the matched rows. Failures on one document or one table are
// isolated and logged; the run always processes its full input set.
package reconciler

import (
	"context"
	"fmt"
	"time"

	"settlement-reconciler/internal/matcher"
	"settlement-reconciler/internal/merger"
	"settlement-reconciler/internal/models"
	"settlement-reconciler/internal/parsers"
	"settlement-reconciler/pkg/errors"
	"settlement-reconciler/pkg/logger"

	"github.com/google/uuid"
)

// RunService orchestrates the complete reconciliation pipeline
type RunService struct {
	statementParser *parsers.StatementParser
	ledgerParser    *parsers.LedgerParser
	merger          *merger.Merger
	matchingEngine  *matcher.MatchingEngine
	fillPolicy      *FillPolicy
	preprocessor    *RecordPreprocessor
	config          *Config
	logger          logger.Logger
}

// Config bundles the component configurations for one service instance
type Config struct {
	Statement *parsers.StatementConfig `json:"statement"`
	Ledger    *parsers.LedgerConfig    `json:"ledger"`
	Merger    *merger.Config           `json:"merger"`
	Matching  *matcher.MatchingConfig  `json:"matching"`
	Fill      *FillConfig              `json:"fill"`
}

// DefaultConfig returns the standard pipeline configuration
func DefaultConfig() *Config {
	return &Config{
		Statement: parsers.DefaultStatementConfig(),
		Ledger:    parsers.DefaultLedgerConfig(),
		Merger:    merger.DefaultConfig(),
		Matching:  matcher.DefaultMatchingConfig(),
		Fill:      DefaultFillConfig(),
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Statement == nil || c.Ledger == nil || c.Merger == nil || c.Matching == nil || c.Fill == nil {
		return fmt.Errorf("every component configuration is required")
	}
	if err := c.Statement.Validate(); err != nil {
		return fmt.Errorf("statement config: %w", err)
	}
	if err := c.Ledger.Validate(); err != nil {
		return fmt.Errorf("ledger config: %w", err)
	}
	if err := c.Merger.Validate(); err != nil {
		return fmt.Errorf("merger config: %w", err)
	}
	if err := c.Matching.Validate(); err != nil {
		return fmt.Errorf("matching config: %w", err)
	}
	if err := c.Fill.Validate(); err != nil {
		return fmt.Errorf("fill config: %w", err)
	}
	return nil
}

// RunRequest describes one reconciliation run
type RunRequest struct {
	// RunID labels the run in logs, reports and the audit store. Left
	// empty, the service assigns one.
	RunID string

	// StatementPaths are the pre-extracted statement text files.
	StatementPaths []string

	// LedgerPaths are the ledger tables (.csv or .xls).
	LedgerPaths []string

	// DryRun matches and computes but asks persistence to skip writing.
	DryRun bool
}

// Validate validates the run request
func (r *RunRequest) Validate() error {
	if len(r.StatementPaths) == 0 {
		return fmt.Errorf("at least one statement file is required")
	}
	if len(r.LedgerPaths) == 0 {
		return fmt.Errorf("at least one ledger file is required")
	}
	return nil
}

// OutcomeCategory classifies a record's fate in the summary log
type OutcomeCategory string

const (
	OutcomeFilled        OutcomeCategory = "filled"
	OutcomeAlreadyFilled OutcomeCategory = "already_filled"
	OutcomeAmbiguous     OutcomeCategory = "ambiguous"
	OutcomeUnmatched     OutcomeCategory = "unmatched"
	OutcomeParseFailed   OutcomeCategory = "parse_failed"
)

// RecordOutcome is one line of the run's structured outcome log: every
// document's fate is auditable without reading code
type RecordOutcome struct {
	Document   string          `json:"document"`
	Category   OutcomeCategory `json:"category"`
	TableID    string          `json:"table_id,omitempty"`
	RowIndex   int             `json:"row_index"`
	Reason     string          `json:"reason"`
	MergedFrom []string        `json:"merged_from,omitempty"`
}

// ResultSummary counts every outcome category of a run
type ResultSummary struct {
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

// RunResult contains the complete result of one reconciliation run
type RunResult struct {
	RunID       string                     `json:"run_id"`
	StartedAt   time.Time                  `json:"started_at"`
	CompletedAt time.Time                  `json:"completed_at"`
	DryRun      bool                       `json:"dry_run"`
	Summary     *ResultSummary             `json:"summary"`
	Outcomes    []*RecordOutcome           `json:"outcomes"`
	Records     []*models.SettlementRecord `json:"records,omitempty"`
	Tables      []*models.LedgerTable      `json:"-"`
	Errors      []*errors.ReconcilerError  `json:"-"`
}

// NewRunService creates a reconciliation service from the given configuration
func NewRunService(config *Config) (*RunService, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "run_config", "", err)
	}

	statementParser, err := parsers.NewStatementParser(config.Statement)
	if err != nil {
		return nil, err
	}
	ledgerParser, err := parsers.NewLedgerParser(config.Ledger)
	if err != nil {
		return nil, err
	}
	periodMerger, err := merger.New(config.Merger)
	if err != nil {
		return nil, err
	}
	fillPolicy, err := NewFillPolicy(config.Fill)
	if err != nil {
		return nil, err
	}

	return &RunService{
		statementParser: statementParser,
		ledgerParser:    ledgerParser,
		merger:          periodMerger,
		matchingEngine:  matcher.NewMatchingEngine(config.Matching),
		fillPolicy:      fillPolicy,
		preprocessor:    NewRecordPreprocessor(),
		config:          config,
		logger:          logger.GetGlobalLogger().WithComponent("run_service"),
	}, nil
}

// ProcessRun executes the full pipeline for one request
func (rs *RunService) ProcessRun(ctx context.Context, request *RunRequest) (*RunResult, error) {
	if request == nil {
		return nil, errors.ValidationError(errors.CodeInvalidConfig, "request", nil,
			fmt.Errorf("run request is required"))
	}
	if err := request.Validate(); err != nil {
		return nil, errors.ValidationError(errors.CodeInvalidConfig, "request", request, err)
	}

	runID := request.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	log := rs.logger.WithField("run_id", runID)
	operation := logger.NewOperationLogger("reconciliation_run", log)

	result := &RunResult{
		RunID:     runID,
		StartedAt: time.Now(),
		DryRun:    request.DryRun,
		Summary:   &ResultSummary{DocumentsSupplied: len(request.StatementPaths)},
	}

	operation.Step("parse_statements")
	records := rs.parseStatements(ctx, request, result)

	operation.Step("preprocess_records")
	records = rs.preprocessor.Prepare(records, result)

	operation.Step("merge_periods")
	records = rs.merger.MergeRecords(records)
	result.Records = records
	result.Summary.RecordsAfterMerge = len(records)

	operation.Step("load_ledger_tables")
	tables := rs.loadLedgerTables(ctx, request, result)

	operation.Step("match_and_fill")
	rs.matchAndFill(records, tables, result)

	operation.Step("summarize")
	result.CompletedAt = time.Now()

	operation.Success(fmt.Sprintf(
		"%d filled, %d already filled, %d ambiguous, %d unmatched, %d parse failures",
		result.Summary.Filled, result.Summary.AlreadyFilled,
		result.Summary.Ambiguous, result.Summary.Unmatched, result.Summary.ParseFailures))

	return result, nil
}

// GetConfiguration returns a copy of the service configuration
func (rs *RunService) GetConfiguration() *Config {
	return &Config{
		Statement: rs.config.Statement.Clone(),
		Ledger:    rs.config.Ledger.Clone(),
		Merger:    rs.config.Merger.Clone(),
		Matching:  rs.config.Matching.Clone(),
		Fill:      rs.config.Fill.Clone(),
	}
}
