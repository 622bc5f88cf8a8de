package reconciler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"settlement-reconciler/internal/matcher"
	"settlement-reconciler/pkg/errors"
	"settlement-reconciler/pkg/logger"
)

// RunOrchestrator wraps a RunService with progress reporting and output
// persistence. It is the entry point the CLI uses: callers register
// progress callbacks, the orchestrator executes the run and then writes
// the filled tables and outcome log unless the request was a dry run.
type RunOrchestrator struct {
	service *RunService
	writer  *LedgerWriter
	logger  logger.Logger

	progressCallbacks []ProgressCallback
	currentProgress   *RunProgress
	progressMutex     sync.RWMutex
}

// RunProgress tracks the progress of an orchestrated run
type RunProgress struct {
	TotalSteps      int           `json:"total_steps"`
	CompletedSteps  int           `json:"completed_steps"`
	CurrentStep     string        `json:"current_step"`
	PercentComplete float64       `json:"percent_complete"`
	StartTime       time.Time     `json:"start_time"`
	ElapsedTime     time.Duration `json:"elapsed_time"`

	Warnings []string `json:"warnings,omitempty"`
}

// ProgressCallback is called after every orchestration step
type ProgressCallback func(*RunProgress)

// RunOptions control the orchestrator's behavior around the core run
type RunOptions struct {
	// OutputDir receives the filled ledger copies and the outcome log.
	OutputDir string `json:"output_dir"`

	// WriteOutcomeLog enables the structured per-record CSV log.
	WriteOutcomeLog bool `json:"write_outcome_log"`

	// ReportDuplicates scans the merged settlement records for
	// duplicate groups and surfaces them as warnings.
	ReportDuplicates bool `json:"report_duplicates"`
}

// DefaultRunOptions returns the options the CLI uses unless overridden
func DefaultRunOptions() *RunOptions {
	return &RunOptions{
		OutputDir:        ".",
		WriteOutcomeLog:  true,
		ReportDuplicates: true,
	}
}

// OrchestratedResult is the run result plus everything the orchestrator
// produced around it
type OrchestratedResult struct {
	*RunResult

	FilledTablePaths []string                       `json:"filled_table_paths,omitempty"`
	OutcomeLogPath   string                         `json:"outcome_log_path,omitempty"`
	DuplicateGroups  []matcher.DuplicateRecordGroup `json:"duplicate_groups,omitempty"`
	Warnings         []string                       `json:"warnings,omitempty"`
	Elapsed          time.Duration                  `json:"elapsed"`
}

// NewRunOrchestrator creates an orchestrator around an existing service
func NewRunOrchestrator(service *RunService) (*RunOrchestrator, error) {
	if service == nil {
		return nil, errors.ValidationError(
			errors.CodeMissingField,
			"run_service",
			nil,
			nil,
		).WithSuggestion("Provide a valid RunService instance")
	}

	return &RunOrchestrator{
		service: service,
		writer:  NewLedgerWriter(),
		logger:  logger.GetGlobalLogger().WithComponent("run_orchestrator"),
		currentProgress: &RunProgress{
			TotalSteps: 4,
		},
	}, nil
}

// AddProgressCallback registers a progress callback
func (ro *RunOrchestrator) AddProgressCallback(callback ProgressCallback) {
	ro.progressCallbacks = append(ro.progressCallbacks, callback)
}

// Execute runs the full pipeline and persists its outputs
func (ro *RunOrchestrator) Execute(ctx context.Context, request *RunRequest, options *RunOptions) (*OrchestratedResult, error) {
	if options == nil {
		options = DefaultRunOptions()
	}

	ro.initializeProgress()
	startTime := time.Now()

	ro.updateProgress("Validating request", 0, 0)
	if err := request.Validate(); err != nil {
		return nil, errors.WrapIfNeeded(err, errors.CategoryValidation, errors.CodeInvalidData, "invalid run request")
	}

	ro.updateProgress("Reconciling", 1, time.Since(startTime))
	result, err := ro.service.ProcessRun(ctx, request)
	if err != nil {
		return nil, err
	}

	orchestrated := &OrchestratedResult{RunResult: result}

	ro.updateProgress("Scanning for duplicate records", 2, time.Since(startTime))
	if options.ReportDuplicates {
		edgeHandler := matcher.NewEdgeCaseHandler(ro.service.GetConfiguration().Matching)
		groups := edgeHandler.DetectDuplicateRecords(result.Records)
		if len(groups) > 0 {
			orchestrated.DuplicateGroups = groups
			ro.addWarning(fmt.Sprintf("detected %d duplicate settlement record groups", len(groups)))
			ro.logger.WithField("duplicate_groups", len(groups)).Warn("Duplicate settlement records detected")
		}
	}

	ro.updateProgress("Writing outputs", 3, time.Since(startTime))
	if err := ro.persistOutputs(request, options, orchestrated); err != nil {
		return orchestrated, err
	}

	orchestrated.Elapsed = time.Since(startTime)
	orchestrated.Warnings = ro.collectWarnings()
	ro.updateProgress("Completed", 4, orchestrated.Elapsed)

	ro.logger.WithFields(logger.Fields{
		"run_id":  result.RunID,
		"elapsed": orchestrated.Elapsed,
		"filled":  result.Summary.Filled,
	}).Info("Orchestrated run completed")

	return orchestrated, nil
}

func (ro *RunOrchestrator) persistOutputs(request *RunRequest, options *RunOptions, orchestrated *OrchestratedResult) error {
	if request.DryRun {
		ro.logger.Info("Dry run, skipping output files")
		return nil
	}

	paths, err := ro.writer.WriteFilledTables(orchestrated.RunResult, options.OutputDir)
	if err != nil {
		return err
	}
	orchestrated.FilledTablePaths = paths

	if options.WriteOutcomeLog {
		logPath, err := ro.writer.WriteOutcomeLog(orchestrated.RunResult, options.OutputDir)
		if err != nil {
			return err
		}
		orchestrated.OutcomeLogPath = logPath
	}

	return nil
}

func (ro *RunOrchestrator) initializeProgress() {
	ro.progressMutex.Lock()
	defer ro.progressMutex.Unlock()

	ro.currentProgress = &RunProgress{
		TotalSteps: 4,
		StartTime:  time.Now(),
	}
}

func (ro *RunOrchestrator) updateProgress(step string, completed int, elapsed time.Duration) {
	ro.progressMutex.Lock()
	ro.currentProgress.CurrentStep = step
	ro.currentProgress.CompletedSteps = completed
	ro.currentProgress.ElapsedTime = elapsed
	ro.currentProgress.PercentComplete = float64(completed) / float64(ro.currentProgress.TotalSteps) * 100
	snapshot := *ro.currentProgress
	ro.progressMutex.Unlock()

	for _, callback := range ro.progressCallbacks {
		callback(&snapshot)
	}
}

func (ro *RunOrchestrator) addWarning(message string) {
	ro.progressMutex.Lock()
	defer ro.progressMutex.Unlock()

	ro.currentProgress.Warnings = append(ro.currentProgress.Warnings, message)
}

func (ro *RunOrchestrator) collectWarnings() []string {
	ro.progressMutex.RLock()
	defer ro.progressMutex.RUnlock()

	if len(ro.currentProgress.Warnings) == 0 {
		return nil
	}
	warnings := make([]string, len(ro.currentProgress.Warnings))
	copy(warnings, ro.currentProgress.Warnings)
	return warnings
}
