package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"settlement-reconciler/cmd/reconciler/config"
	"settlement-reconciler/internal/audit"
	"settlement-reconciler/internal/reconciler"
	"settlement-reconciler/internal/reporter"
	"settlement-reconciler/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flags for the run command
var (
	statementFiles []string
	ledgerFiles    []string
	outputDir      string
	reportFormat   string
	reportFile     string
	auditDB        string
	runID          string

	matchProfile      string
	maxFutureDays     int
	amountTolerance   float64
	referenceCurrency string

	dryRun       bool
	showProgress bool
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Reconcile settlement statements against ledger tables",
	Long: `Run parses marketplace settlement statements, merges sub-threshold
settlement periods, matches each statement against the supplied ledger
tables and writes filled copies of the ledgers alongside an outcome log.

This command requires:
- One or more statement text files (pre-extracted document text)
- One or more ledger table files (CSV or XLS)

Examples:
  # Basic reconciliation
  reconciler run --statements april_a.txt --ledger ledger.csv

  # Multiple statements, custom output directory and JSON report
  reconciler run --statements april_a.txt,april_b.txt --ledger book.xls \
    --output-dir out --report-format json --report-file report.json

  # Wider matching window with the relaxed profile
  reconciler run --statements stmt.txt --ledger ledger.csv \
    --profile relaxed --max-future-days 45

  # Preview without writing any files, recording the run in the audit store
  reconciler run --statements stmt.txt --ledger ledger.csv \
    --dry-run --audit-db runs.db`,

	PreRunE: validateRunFlags,
	RunE:    executeRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	// Required flags
	runCmd.Flags().StringSliceVarP(&statementFiles, "statements", "s", []string{}, "comma-separated paths to statement text files (required)")
	runCmd.Flags().StringSliceVarP(&ledgerFiles, "ledger", "l", []string{}, "comma-separated paths to ledger tables, .csv or .xls (required)")

	// Output flags
	runCmd.Flags().StringVarP(&outputDir, "output-dir", "o", ".", "directory for filled ledgers and the outcome log")
	runCmd.Flags().StringVarP(&reportFormat, "report-format", "f", "console", "report format: console, json, csv")
	runCmd.Flags().StringVar(&reportFile, "report-file", "", "report file path (default: stdout)")
	runCmd.Flags().StringVar(&auditDB, "audit-db", "", "sqlite database recording runs and outcomes (optional)")
	runCmd.Flags().StringVar(&runID, "run-id", "", "identifier for this run (default: generated)")

	// Matching configuration flags
	runCmd.Flags().StringVarP(&matchProfile, "profile", "p", "default", fmt.Sprintf("matching profile: %s", strings.Join(config.MatchingProfiles(), ", ")))
	runCmd.Flags().IntVar(&maxFutureDays, "max-future-days", -1, "days after a settlement period a ledger row may fall (-1: profile default)")
	runCmd.Flags().Float64VarP(&amountTolerance, "amount-tolerance", "a", -1, "absolute amount tolerance for exact matching (-1: profile default)")
	runCmd.Flags().StringVar(&referenceCurrency, "reference-currency", "", "currency of stated reference amounts (default: profile setting)")

	// Behaviour flags
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "match and compute without writing any files")
	runCmd.Flags().BoolVar(&showProgress, "progress", false, "show progress indicators")

	runCmd.MarkFlagRequired("statements")
	runCmd.MarkFlagRequired("ledger")

	// Bind flags to viper
	viper.BindPFlag("statements", runCmd.Flags().Lookup("statements"))
	viper.BindPFlag("ledger", runCmd.Flags().Lookup("ledger"))
	viper.BindPFlag("output-dir", runCmd.Flags().Lookup("output-dir"))
	viper.BindPFlag("report-format", runCmd.Flags().Lookup("report-format"))
	viper.BindPFlag("report-file", runCmd.Flags().Lookup("report-file"))
	viper.BindPFlag("audit-db", runCmd.Flags().Lookup("audit-db"))
	viper.BindPFlag("profile", runCmd.Flags().Lookup("profile"))
	viper.BindPFlag("max-future-days", runCmd.Flags().Lookup("max-future-days"))
	viper.BindPFlag("amount-tolerance", runCmd.Flags().Lookup("amount-tolerance"))
	viper.BindPFlag("reference-currency", runCmd.Flags().Lookup("reference-currency"))
	viper.BindPFlag("dry-run", runCmd.Flags().Lookup("dry-run"))
	viper.BindPFlag("progress", runCmd.Flags().Lookup("progress"))
}

func validateRunFlags(cmd *cobra.Command, args []string) error {
	// Get values from viper (allows override from config file)
	statementFiles = viper.GetStringSlice("statements")
	ledgerFiles = viper.GetStringSlice("ledger")
	outputDir = viper.GetString("output-dir")
	reportFormat = viper.GetString("report-format")
	reportFile = viper.GetString("report-file")
	auditDB = viper.GetString("audit-db")
	matchProfile = viper.GetString("profile")
	maxFutureDays = viper.GetInt("max-future-days")
	amountTolerance = viper.GetFloat64("amount-tolerance")
	referenceCurrency = viper.GetString("reference-currency")
	dryRun = viper.GetBool("dry-run")
	showProgress = viper.GetBool("progress")

	if len(statementFiles) == 0 {
		return fmt.Errorf("at least one statement file is required")
	}
	if len(ledgerFiles) == 0 {
		return fmt.Errorf("at least one ledger file is required")
	}

	expanded, err := expandStatementPaths(statementFiles)
	if err != nil {
		return err
	}
	statementFiles = expanded

	for i, path := range statementFiles {
		if err := validateFileExists(path, fmt.Sprintf("statement file %d", i+1)); err != nil {
			return err
		}
	}
	for i, path := range ledgerFiles {
		if err := validateFileExists(path, fmt.Sprintf("ledger file %d", i+1)); err != nil {
			return err
		}
	}

	validFormats := map[string]bool{"console": true, "json": true, "csv": true}
	if !validFormats[reportFormat] {
		return fmt.Errorf("invalid report format '%s'. Valid formats: console, json, csv", reportFormat)
	}

	validProfile := false
	for _, profile := range config.MatchingProfiles() {
		if matchProfile == profile {
			validProfile = true
			break
		}
	}
	if !validProfile {
		return fmt.Errorf("invalid matching profile '%s'. Valid profiles: %s", matchProfile, strings.Join(config.MatchingProfiles(), ", "))
	}

	// Validate report file directory exists if specified
	if reportFile != "" {
		dir := filepath.Dir(reportFile)
		if dir != "." {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				return fmt.Errorf("report directory does not exist: %s", dir)
			}
		}
	}

	return nil
}

// expandStatementPaths replaces directory entries with the .txt files they
// contain, sorted by name
func expandStatementPaths(paths []string) ([]string, error) {
	var out []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("statement path does not exist: %s", path)
			}
			return nil, fmt.Errorf("error accessing statement path %s: %w", path, err)
		}
		if !info.IsDir() {
			out = append(out, path)
			continue
		}

		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, fmt.Errorf("error reading statement directory %s: %w", path, err)
		}
		found := 0
		for _, entry := range entries {
			if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".txt") {
				continue
			}
			out = append(out, filepath.Join(path, entry.Name()))
			found++
		}
		if found == 0 {
			return nil, fmt.Errorf("statement directory contains no .txt files: %s", path)
		}
	}
	return out, nil
}

func validateFileExists(filePath, description string) error {
	if filePath == "" {
		return fmt.Errorf("%s path cannot be empty", description)
	}

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return fmt.Errorf("%s does not exist: %s", description, filePath)
	}
	if err != nil {
		return fmt.Errorf("error accessing %s: %w", description, err)
	}

	if info.IsDir() {
		return fmt.Errorf("%s is a directory, expected a file: %s", description, filePath)
	}

	// Check if file is readable
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("%s is not readable: %w", description, err)
	}
	file.Close()

	return nil
}

func executeRun(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	log := logger.GetGlobalLogger().WithComponent("cli")

	overrides := config.DefaultRunOverrides()
	overrides.Profile = matchProfile
	overrides.ReferenceCurrency = referenceCurrency
	overrides.AmountTolerance = amountTolerance
	overrides.MaxFutureDays = maxFutureDays

	runConfig, err := config.CreateRunConfig(overrides)
	if err != nil {
		return fmt.Errorf("failed to build run configuration: %w", err)
	}

	service, err := reconciler.NewRunService(runConfig)
	if err != nil {
		return fmt.Errorf("failed to create run service: %w", err)
	}

	orchestrator, err := reconciler.NewRunOrchestrator(service)
	if err != nil {
		return fmt.Errorf("failed to create run orchestrator: %w", err)
	}

	if showProgress {
		orchestrator.AddProgressCallback(func(progress *reconciler.RunProgress) {
			fmt.Fprintf(os.Stderr, "\r[%d/%d] %s (%.1f%% complete)",
				progress.CompletedSteps, progress.TotalSteps,
				progress.CurrentStep, progress.PercentComplete)
		})
	}

	request := &reconciler.RunRequest{
		RunID:          runID,
		StatementPaths: statementFiles,
		LedgerPaths:    ledgerFiles,
		DryRun:         dryRun,
	}

	options := reconciler.DefaultRunOptions()
	options.OutputDir = outputDir

	result, err := orchestrator.Execute(ctx, request, options)
	if err != nil {
		return fmt.Errorf("reconciliation run failed: %w", err)
	}
	if showProgress {
		fmt.Fprintf(os.Stderr, "\n")
	}

	for _, warning := range result.Warnings {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
	}

	if auditDB != "" {
		if err := recordRun(result.RunResult); err != nil {
			// The run itself succeeded; a broken audit store should not
			// discard its outputs.
			log.WithError(err).Warn("Failed to record run in audit store")
			fmt.Fprintf(os.Stderr, "Warning: audit store update failed: %v\n", err)
		}
	}

	reportConfig, err := config.CreateReportConfig(reportFormat)
	if err != nil {
		return fmt.Errorf("failed to create report configuration: %w", err)
	}

	reportGenerator, err := reporter.NewSafeReportGenerator(reportConfig, log)
	if err != nil {
		return fmt.Errorf("failed to create report generator: %w", err)
	}

	var output *os.File
	if reportFile != "" {
		output, err = os.Create(reportFile)
		if err != nil {
			return fmt.Errorf("failed to create report file: %w", err)
		}
		defer output.Close()
	} else {
		output = os.Stdout
	}

	if err := reportGenerator.GenerateReportSafely(result.RunResult, output); err != nil {
		return fmt.Errorf("failed to generate report: %w", err)
	}

	if viper.GetBool("verbose") {
		fmt.Fprintf(os.Stderr, "\nRun %s completed in %v.\n", result.RunID, result.Elapsed)
		fmt.Fprintf(os.Stderr, "Parsed %d of %d documents into %d settlement records against %d ledger tables.\n",
			result.Summary.DocumentsParsed, result.Summary.DocumentsSupplied,
			result.Summary.RecordsAfterMerge, result.Summary.TablesLoaded)
		fmt.Fprintf(os.Stderr, "Filled %d, already filled %d, ambiguous %d, unmatched %d.\n",
			result.Summary.Filled, result.Summary.AlreadyFilled,
			result.Summary.Ambiguous, result.Summary.Unmatched)
		for _, path := range result.FilledTablePaths {
			fmt.Fprintf(os.Stderr, "Wrote %s\n", path)
		}
		if result.OutcomeLogPath != "" {
			fmt.Fprintf(os.Stderr, "Wrote %s\n", result.OutcomeLogPath)
		}
	}

	return nil
}

// recordRun maps the pipeline result into the audit store's flat records
// and persists them.
func recordRun(result *reconciler.RunResult) error {
	store, err := audit.Open(auditDB)
	if err != nil {
		return err
	}
	defer store.Close()

	run := &audit.RunRecord{
		ID:                result.RunID,
		StartedAt:         result.StartedAt,
		CompletedAt:       result.CompletedAt,
		DryRun:            result.DryRun,
		DocumentsSupplied: result.Summary.DocumentsSupplied,
		DocumentsParsed:   result.Summary.DocumentsParsed,
		ParseFailures:     result.Summary.ParseFailures,
		RecordsAfterMerge: result.Summary.RecordsAfterMerge,
		TablesLoaded:      result.Summary.TablesLoaded,
		Filled:            result.Summary.Filled,
		AlreadyFilled:     result.Summary.AlreadyFilled,
		Ambiguous:         result.Summary.Ambiguous,
		Unmatched:         result.Summary.Unmatched,
	}
	if err := store.SaveRun(run); err != nil {
		return err
	}

	outcomes := make([]audit.OutcomeRecord, 0, len(result.Outcomes))
	for _, outcome := range result.Outcomes {
		outcomes = append(outcomes, audit.OutcomeRecord{
			RunID:      result.RunID,
			Document:   outcome.Document,
			Category:   string(outcome.Category),
			TableID:    outcome.TableID,
			RowIndex:   outcome.RowIndex,
			Reason:     outcome.Reason,
			MergedFrom: outcome.MergedFrom,
		})
	}
	_, err = store.BulkInsertOutcomes(outcomes)
	return err
}
