package reporter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"settlement-reconciler/internal/reconciler"
)

func sampleRunResult() *reconciler.RunResult {
	started := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	return &reconciler.RunResult{
		RunID:       "run-123",
		StartedAt:   started,
		CompletedAt: started.Add(2 * time.Second),
		Summary: &reconciler.ResultSummary{
			DocumentsSupplied: 4,
			DocumentsParsed:   3,
			ParseFailures:     1,
			RecordsAfterMerge: 2,
			TablesLoaded:      1,
			Filled:            1,
			Unmatched:         1,
		},
		Outcomes: []*reconciler.RecordOutcome{
			{
				Document:   "april_a+april_b",
				Category:   reconciler.OutcomeFilled,
				TableID:    "ledger.csv",
				RowIndex:   3,
				MergedFrom: []string{"april_a", "april_b"},
			},
			{
				Document: "may.txt",
				Category: reconciler.OutcomeUnmatched,
				RowIndex: -1,
				Reason:   "no candidate rows in the settlement window",
			},
			{
				Document: "broken.txt",
				Category: reconciler.OutcomeParseFailed,
				RowIndex: -1,
				Reason:   "document matches no known platform format",
			},
		},
	}
}

func TestNewReportGenerator(t *testing.T) {
	tests := []struct {
		name        string
		config      *ReportConfig
		expectError bool
	}{
		{
			name:        "default config",
			config:      nil,
			expectError: false,
		},
		{
			name:        "valid config",
			config:      DefaultReportConfig(),
			expectError: false,
		},
		{
			name: "invalid format",
			config: &ReportConfig{
				Format:            "invalid",
				MaxListedOutcomes: 50,
			},
			expectError: true,
		},
		{
			name: "non-positive outcome cap",
			config: &ReportConfig{
				Format:            FormatConsole,
				MaxListedOutcomes: 0,
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewReportGenerator(tt.config)
			if tt.expectError && err == nil {
				t.Error("Expected an error")
			}
			if !tt.expectError && err != nil {
				t.Errorf("Expected no error, got %v", err)
			}
		})
	}
}

func TestConsoleReport(t *testing.T) {
	generator, err := NewReportGenerator(nil)
	if err != nil {
		t.Fatalf("NewReportGenerator failed: %v", err)
	}

	var buf bytes.Buffer
	if err := generator.GenerateReport(sampleRunResult(), &buf); err != nil {
		t.Fatalf("GenerateReport failed: %v", err)
	}
	output := buf.String()

	for _, want := range []string{
		"Run ID:    run-123",
		"=== SUMMARY ===",
		"Parse failures: 1",
		"=== FILLED (1) ===",
		"merged from april_a, april_b",
		"=== UNMATCHED (1) ===",
		"no candidate rows in the settlement window",
		"=== PARSE FAILURES (1) ===",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("Console report missing %q in:\n%s", want, output)
		}
	}
}

func TestConsoleReportDryRunNote(t *testing.T) {
	generator, _ := NewReportGenerator(nil)
	result := sampleRunResult()
	result.DryRun = true

	var buf bytes.Buffer
	if err := generator.GenerateReport(result, &buf); err != nil {
		t.Fatalf("GenerateReport failed: %v", err)
	}
	if !strings.Contains(buf.String(), "DRY RUN") {
		t.Error("Expected a dry run note in the console report")
	}
}

func TestConsoleReportCapsLongSections(t *testing.T) {
	config := DefaultReportConfig()
	config.MaxListedOutcomes = 2
	generator, err := NewReportGenerator(config)
	if err != nil {
		t.Fatalf("NewReportGenerator failed: %v", err)
	}

	result := sampleRunResult()
	result.Outcomes = nil
	for i := 0; i < 5; i++ {
		result.Outcomes = append(result.Outcomes, &reconciler.RecordOutcome{
			Document: "doc.txt",
			Category: reconciler.OutcomeUnmatched,
			RowIndex: -1,
		})
	}

	var buf bytes.Buffer
	if err := generator.GenerateReport(result, &buf); err != nil {
		t.Fatalf("GenerateReport failed: %v", err)
	}
	if !strings.Contains(buf.String(), "... and 3 more") {
		t.Errorf("Expected the section to be capped:\n%s", buf.String())
	}
}

func TestJSONReport(t *testing.T) {
	config := DefaultReportConfig()
	config.Format = FormatJSON
	generator, err := NewReportGenerator(config)
	if err != nil {
		t.Fatalf("NewReportGenerator failed: %v", err)
	}

	var buf bytes.Buffer
	if err := generator.GenerateReport(sampleRunResult(), &buf); err != nil {
		t.Fatalf("GenerateReport failed: %v", err)
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &parsed); err != nil {
		t.Fatalf("JSON report is not valid JSON: %v", err)
	}
	if parsed["run_id"] != "run-123" {
		t.Errorf("Expected run_id in JSON report, got %v", parsed["run_id"])
	}
	outcomes, ok := parsed["outcomes"].([]interface{})
	if !ok || len(outcomes) != 3 {
		t.Errorf("Expected 3 outcomes in JSON report, got %v", parsed["outcomes"])
	}
}

func TestCSVReport(t *testing.T) {
	config := DefaultReportConfig()
	config.Format = FormatCSV
	generator, err := NewReportGenerator(config)
	if err != nil {
		t.Fatalf("NewReportGenerator failed: %v", err)
	}

	var buf bytes.Buffer
	if err := generator.GenerateReport(sampleRunResult(), &buf); err != nil {
		t.Fatalf("GenerateReport failed: %v", err)
	}

	lines, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("CSV report is not valid CSV: %v", err)
	}
	if len(lines) != 4 {
		t.Fatalf("Expected header plus 3 outcomes, got %d lines", len(lines))
	}
	if lines[0][0] != "run_id" {
		t.Errorf("Expected run_id header, got %q", lines[0][0])
	}
	if lines[1][6] != "april_a+april_b" {
		t.Errorf("Expected merge provenance in CSV, got %q", lines[1][6])
	}
	if lines[2][4] != "" {
		t.Errorf("Unmatched outcome must carry no row index, got %q", lines[2][4])
	}
}

func TestCSVReportFiltersCategories(t *testing.T) {
	config := DefaultReportConfig()
	config.Format = FormatCSV
	config.IncludeUnmatched = false
	generator, err := NewReportGenerator(config)
	if err != nil {
		t.Fatalf("NewReportGenerator failed: %v", err)
	}

	var buf bytes.Buffer
	if err := generator.GenerateReport(sampleRunResult(), &buf); err != nil {
		t.Fatalf("GenerateReport failed: %v", err)
	}

	lines, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("CSV report is not valid CSV: %v", err)
	}
	if len(lines) != 2 {
		t.Errorf("Expected only the filled outcome, got %d data lines", len(lines)-1)
	}
}

func TestGenerateReportNilResult(t *testing.T) {
	generator, _ := NewReportGenerator(nil)
	var buf bytes.Buffer
	if err := generator.GenerateReport(nil, &buf); err == nil {
		t.Error("Expected error for nil result")
	}
}

func TestSafeReportGeneratorFallsBackToConsole(t *testing.T) {
	config := DefaultReportConfig()
	config.Format = FormatJSON
	safe, err := NewSafeReportGenerator(config, nil)
	if err != nil {
		t.Fatalf("NewSafeReportGenerator failed: %v", err)
	}

	var buf bytes.Buffer
	if err := safe.GenerateReportSafely(sampleRunResult(), &buf); err != nil {
		t.Fatalf("GenerateReportSafely failed: %v", err)
	}
	// JSON works here, so no fallback notice should be present.
	if strings.Contains(buf.String(), "NOTE:") {
		t.Error("Unexpected fallback notice on a successful render")
	}

	if err := safe.GenerateReportSafely(nil, &buf); err == nil {
		t.Error("Expected error for nil result")
	}
}

func TestUpdateConfiguration(t *testing.T) {
	generator, _ := NewReportGenerator(nil)

	valid := DefaultReportConfig()
	valid.Format = FormatCSV
	if err := generator.UpdateConfiguration(valid); err != nil {
		t.Errorf("Expected valid update, got %v", err)
	}
	if generator.GetConfiguration().Format != FormatCSV {
		t.Error("Configuration not applied")
	}

	invalid := DefaultReportConfig()
	invalid.Format = "xml"
	if err := generator.UpdateConfiguration(invalid); err == nil {
		t.Error("Expected error for invalid format")
	}
}
