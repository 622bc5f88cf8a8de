// Package reporter renders reconciliation run results for people and
// machines.
//
// Supported output formats:
//   - Console: human-readable summary for terminal display
//   - JSON: structured data for programmatic consumption
//   - CSV: one row per record outcome for spreadsheet review
//
// The console report leads with the run summary, then lists every document's
// fate grouped by outcome, including merge provenance for records assembled
// from several settlement periods.
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"settlement-reconciler/internal/reconciler"
)

// OutputFormat represents the supported report output formats
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format"`

	// Detail level options
	IncludeFilled    bool `json:"include_filled"`
	IncludeUnmatched bool `json:"include_unmatched"`
	IncludeAmbiguous bool `json:"include_ambiguous"`
	IncludeErrors    bool `json:"include_errors"`

	// Console formatting
	MaxListedOutcomes int `json:"max_listed_outcomes"`

	// CSV options
	CSVDelimiter rune `json:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:            FormatConsole,
		IncludeFilled:     true,
		IncludeUnmatched:  true,
		IncludeAmbiguous:  true,
		IncludeErrors:     true,
		MaxListedOutcomes: 50,
		CSVDelimiter:      ',',
		CSVHeaders:        true,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}
	if c.MaxListedOutcomes <= 0 {
		return fmt.Errorf("max listed outcomes must be positive, got %d", c.MaxListedOutcomes)
	}
	return nil
}

// ReportGenerator generates reconciliation run reports in various formats
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}

	return &ReportGenerator{config: config}, nil
}

// GenerateReport renders the run result to the writer in the configured format
func (rg *ReportGenerator) GenerateReport(result *reconciler.RunResult, writer io.Writer) error {
	if result == nil {
		return fmt.Errorf("run result cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(result, writer)
	case FormatJSON:
		return rg.generateJSONReport(result, writer)
	case FormatCSV:
		return rg.generateCSVReport(result, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

// generateConsoleReport generates a human-readable console report
func (rg *ReportGenerator) generateConsoleReport(result *reconciler.RunResult, writer io.Writer) error {
	fmt.Fprintf(writer, "SETTLEMENT RECONCILIATION REPORT\n")
	fmt.Fprintf(writer, "Run ID:    %s\n", result.RunID)
	fmt.Fprintf(writer, "Started:   %s\n", result.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(writer, "Duration:  %v\n", result.CompletedAt.Sub(result.StartedAt).Round(time.Millisecond))
	if result.DryRun {
		fmt.Fprintf(writer, "Mode:      DRY RUN (no files written)\n")
	}
	fmt.Fprintf(writer, "\n")

	fmt.Fprintf(writer, "=== SUMMARY ===\n")
	rg.printSummary(result.Summary, writer)
	fmt.Fprintf(writer, "\n")

	if rg.config.IncludeFilled {
		rg.printOutcomeSection(writer, "FILLED", result, reconciler.OutcomeFilled)
		rg.printOutcomeSection(writer, "ALREADY FILLED", result, reconciler.OutcomeAlreadyFilled)
	}
	if rg.config.IncludeAmbiguous {
		rg.printOutcomeSection(writer, "AMBIGUOUS", result, reconciler.OutcomeAmbiguous)
	}
	if rg.config.IncludeUnmatched {
		rg.printOutcomeSection(writer, "UNMATCHED", result, reconciler.OutcomeUnmatched)
		rg.printOutcomeSection(writer, "PARSE FAILURES", result, reconciler.OutcomeParseFailed)
	}

	if rg.config.IncludeErrors && len(result.Errors) > 0 {
		fmt.Fprintf(writer, "=== ERRORS ===\n")
		for _, err := range result.Errors {
			fmt.Fprintf(writer, "  - [%s/%s] %s\n", err.Category, err.Code, err.Message)
		}
		fmt.Fprintf(writer, "\n")
	}

	return nil
}

func (rg *ReportGenerator) printSummary(summary *reconciler.ResultSummary, writer io.Writer) {
	fmt.Fprintf(writer, "Documents:\n")
	fmt.Fprintf(writer, "  Supplied:       %d\n", summary.DocumentsSupplied)
	fmt.Fprintf(writer, "  Parsed:         %d\n", summary.DocumentsParsed)
	fmt.Fprintf(writer, "  Parse failures: %d\n", summary.ParseFailures)

	fmt.Fprintf(writer, "\nRecords (after period merge): %d\n", summary.RecordsAfterMerge)
	fmt.Fprintf(writer, "Ledger tables loaded:         %d\n", summary.TablesLoaded)

	fmt.Fprintf(writer, "\nOutcomes:\n")
	fmt.Fprintf(writer, "  Filled:         %d (%.1f%%)\n",
		summary.Filled, percentage(summary.Filled, summary.RecordsAfterMerge))
	fmt.Fprintf(writer, "  Already filled: %d (%.1f%%)\n",
		summary.AlreadyFilled, percentage(summary.AlreadyFilled, summary.RecordsAfterMerge))
	fmt.Fprintf(writer, "  Ambiguous:      %d (%.1f%%)\n",
		summary.Ambiguous, percentage(summary.Ambiguous, summary.RecordsAfterMerge))
	fmt.Fprintf(writer, "  Unmatched:      %d (%.1f%%)\n",
		summary.Unmatched, percentage(summary.Unmatched, summary.RecordsAfterMerge))
}

// printOutcomeSection lists every outcome of one category, capped at the
// configured maximum
func (rg *ReportGenerator) printOutcomeSection(writer io.Writer, title string, result *reconciler.RunResult, category reconciler.OutcomeCategory) {
	var entries []*reconciler.RecordOutcome
	for _, outcome := range result.Outcomes {
		if outcome.Category == category {
			entries = append(entries, outcome)
		}
	}
	if len(entries) == 0 {
		return
	}

	fmt.Fprintf(writer, "=== %s (%d) ===\n", title, len(entries))
	for i, entry := range entries {
		if i >= rg.config.MaxListedOutcomes {
			fmt.Fprintf(writer, "  ... and %d more\n", len(entries)-rg.config.MaxListedOutcomes)
			break
		}

		fmt.Fprintf(writer, "  %d. %s", i+1, entry.Document)
		if entry.TableID != "" {
			fmt.Fprintf(writer, " -> %s", entry.TableID)
			if entry.RowIndex >= 0 {
				fmt.Fprintf(writer, " row %d", entry.RowIndex)
			}
		}
		if len(entry.MergedFrom) > 1 {
			fmt.Fprintf(writer, " (merged from %s)", strings.Join(entry.MergedFrom, ", "))
		}
		if entry.Reason != "" {
			fmt.Fprintf(writer, " -- %s", entry.Reason)
		}
		fmt.Fprintf(writer, "\n")
	}
	fmt.Fprintf(writer, "\n")
}

// generateJSONReport generates a structured JSON report
func (rg *ReportGenerator) generateJSONReport(result *reconciler.RunResult, writer io.Writer) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(rg.filterResultForOutput(result))
}

// generateCSVReport writes one CSV row per record outcome
func (rg *ReportGenerator) generateCSVReport(result *reconciler.RunResult, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter
	defer csvWriter.Flush()

	if rg.config.CSVHeaders {
		headers := []string{"run_id", "document", "outcome", "table", "row", "reason", "merged_from"}
		if err := csvWriter.Write(headers); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}

	for _, outcome := range result.Outcomes {
		if !rg.includeCategory(outcome.Category) {
			continue
		}

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
		if err := csvWriter.Write(record); err != nil {
			return fmt.Errorf("failed to write outcome record: %w", err)
		}
	}

	return nil
}

func (rg *ReportGenerator) includeCategory(category reconciler.OutcomeCategory) bool {
	switch category {
	case reconciler.OutcomeFilled, reconciler.OutcomeAlreadyFilled:
		return rg.config.IncludeFilled
	case reconciler.OutcomeAmbiguous:
		return rg.config.IncludeAmbiguous
	case reconciler.OutcomeUnmatched, reconciler.OutcomeParseFailed:
		return rg.config.IncludeUnmatched
	default:
		return true
	}
}

func (rg *ReportGenerator) filterResultForOutput(result *reconciler.RunResult) map[string]interface{} {
	output := map[string]interface{}{
		"run_id":       result.RunID,
		"started_at":   result.StartedAt,
		"completed_at": result.CompletedAt,
		"dry_run":      result.DryRun,
		"summary":      result.Summary,
	}

	var outcomes []*reconciler.RecordOutcome
	for _, outcome := range result.Outcomes {
		if rg.includeCategory(outcome.Category) {
			outcomes = append(outcomes, outcome)
		}
	}
	output["outcomes"] = outcomes

	if rg.config.IncludeErrors && len(result.Errors) > 0 {
		messages := make([]string, 0, len(result.Errors))
		for _, err := range result.Errors {
			messages = append(messages, err.Message)
		}
		output["errors"] = messages
	}

	return output
}

func percentage(part, total int) float64 {
	if total == 0 {
		return 0.0
	}
	return float64(part) / float64(total) * 100.0
}

// UpdateConfiguration updates the report generator configuration
func (rg *ReportGenerator) UpdateConfiguration(config *ReportConfig) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid report configuration: %w", err)
	}

	rg.config = config
	return nil
}

// GetConfiguration returns the current configuration
func (rg *ReportGenerator) GetConfiguration() *ReportConfig {
	return rg.config
}
