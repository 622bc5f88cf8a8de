package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestReconcilerError(t *testing.T) {
	tests := []struct {
		name       string
		category   ErrorCategory
		code       ErrorCode
		message    string
		cause      error
		expectCode int
	}{
		{
			name:       "file error",
			category:   CategoryFile,
			code:       CodeFileNotFound,
			message:    "file not found",
			cause:      errors.New("no such file"),
			expectCode: 2,
		},
		{
			name:       "parse error",
			category:   CategoryParse,
			code:       CodeUnrecognizedFormat,
			message:    "unrecognized format",
			cause:      nil,
			expectCode: 3,
		},
		{
			name:       "configuration error",
			category:   CategoryConfiguration,
			code:       CodeInvalidConfig,
			message:    "invalid config",
			cause:      errors.New("missing field"),
			expectCode: 4,
		},
		{
			name:       "match error",
			category:   CategoryMatch,
			code:       CodeAmbiguousMatch,
			message:    "ambiguous match",
			cause:      nil,
			expectCode: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err *ReconcilerError
			if tt.cause != nil {
				err = Wrap(tt.cause, tt.category, tt.code, tt.message)
			} else {
				err = New(tt.category, tt.code, tt.message)
			}

			// Test basic properties
			if err.Category != tt.category {
				t.Errorf("expected category %s, got %s", tt.category, err.Category)
			}
			if err.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, err.Code)
			}
			if err.Message != tt.message {
				t.Errorf("expected message %s, got %s", tt.message, err.Message)
			}

			// Test exit code
			if err.GetExitCode() != tt.expectCode {
				t.Errorf("expected exit code %d, got %d", tt.expectCode, err.GetExitCode())
			}

			// Test error interface
			if err.Error() != tt.message {
				t.Errorf("expected error string %s, got %s", tt.message, err.Error())
			}

			// Test unwrapping
			if tt.cause != nil && err.Unwrap() != tt.cause {
				t.Errorf("expected to unwrap to %v, got %v", tt.cause, err.Unwrap())
			}
		})
	}
}

func TestReconcilerErrorWithContext(t *testing.T) {
	err := New(CategoryFile, CodeFileNotFound, "test error").
		WithContext("file", "/path/to/file").
		WithContext("line", 42).
		WithSuggestion("check file path")

	// Test context
	if err.Context["file"] != "/path/to/file" {
		t.Errorf("expected file context '/path/to/file', got %v", err.Context["file"])
	}
	if err.Context["line"] != 42 {
		t.Errorf("expected line context 42, got %v", err.Context["line"])
	}

	// Test suggestion
	if err.Suggestion != "check file path" {
		t.Errorf("expected suggestion 'check file path', got %s", err.Suggestion)
	}

	// Test error string with suggestion
	expected := "test error (suggestion: check file path)"
	if err.Error() != expected {
		t.Errorf("expected error string '%s', got '%s'", expected, err.Error())
	}
}

func TestSpecificErrorConstructors(t *testing.T) {
	t.Run("FileError", func(t *testing.T) {
		cause := errors.New("permission denied")
		err := FileError(CodeFilePermission, "/test/ledger.csv", cause)

		if err.Category != CategoryFile {
			t.Errorf("expected file category, got %s", err.Category)
		}
		if err.Code != CodeFilePermission {
			t.Errorf("expected permission code, got %s", err.Code)
		}
		if err.Context["file_path"] != "/test/ledger.csv" {
			t.Errorf("expected file_path context, got %v", err.Context["file_path"])
		}
		if err.Suggestion == "" {
			t.Error("expected suggestion to be set")
		}
		if err.Cause != cause {
			t.Errorf("expected cause to be %v, got %v", cause, err.Cause)
		}
	})

	t.Run("DocumentError", func(t *testing.T) {
		err := DocumentError(CodeUnrecognizedFormat, "statement_04.txt", "", nil)

		if err.Category != CategoryParse {
			t.Errorf("expected parse category, got %s", err.Category)
		}
		if err.Code != CodeUnrecognizedFormat {
			t.Errorf("expected unrecognized format code, got %s", err.Code)
		}
		if err.Context["document"] != "statement_04.txt" {
			t.Errorf("expected document context, got %v", err.Context["document"])
		}
	})

	t.Run("TableError", func(t *testing.T) {
		err := TableError(CodeMissingColumn, "ledger_q2.csv", "Currency", nil)

		if err.Category != CategoryParse {
			t.Errorf("expected parse category, got %s", err.Category)
		}
		if err.Context["table"] != "ledger_q2.csv" {
			t.Errorf("expected table context, got %v", err.Context["table"])
		}
		if err.Context["detail"] != "Currency" {
			t.Errorf("expected detail context, got %v", err.Context["detail"])
		}
	})

	t.Run("ValidationError", func(t *testing.T) {
		err := ValidationError(CodeInvalidAmount, "net_payout_local", "invalid", nil)

		if err.Category != CategoryValidation {
			t.Errorf("expected validation category, got %s", err.Category)
		}
		if err.Context["field"] != "net_payout_local" {
			t.Errorf("expected field context, got %v", err.Context["field"])
		}
		if err.Context["value"] != "invalid" {
			t.Errorf("expected value context, got %v", err.Context["value"])
		}
	})

	t.Run("MatchError", func(t *testing.T) {
		err := MatchError(CodeNoMatch, "statement_01.txt", "no candidate row in window")

		if err.Category != CategoryMatch {
			t.Errorf("expected match category, got %s", err.Category)
		}
		if err.Code != CodeNoMatch {
			t.Errorf("expected no match code, got %s", err.Code)
		}
		if err.Context["record"] != "statement_01.txt" {
			t.Errorf("expected record context, got %v", err.Context["record"])
		}
	})
}

func TestErrorSummary(t *testing.T) {
	errors := []*ReconcilerError{
		New(CategoryFile, CodeFileNotFound, "error 1"),
		New(CategoryFile, CodeFilePermission, "error 2"),
		New(CategoryParse, CodeUnrecognizedFormat, "error 3"),
		New(CategoryParse, CodeInvalidData, "error 4"),
		New(CategoryMatch, CodeAmbiguousMatch, "error 5"),
	}

	summary := NewErrorSummary(errors)

	// Test total count
	if summary.Total != 5 {
		t.Errorf("expected total 5, got %d", summary.Total)
	}

	// Test category counts
	if summary.ByCategory[CategoryFile] != 2 {
		t.Errorf("expected 2 file errors, got %d", summary.ByCategory[CategoryFile])
	}
	if summary.ByCategory[CategoryParse] != 2 {
		t.Errorf("expected 2 parse errors, got %d", summary.ByCategory[CategoryParse])
	}
	if summary.ByCategory[CategoryMatch] != 1 {
		t.Errorf("expected 1 match error, got %d", summary.ByCategory[CategoryMatch])
	}

	// Test code counts
	if summary.ByCode[CodeFileNotFound] != 1 {
		t.Errorf("expected 1 file not found error, got %d", summary.ByCode[CodeFileNotFound])
	}

	// Test error string
	errStr := summary.Error()
	if errStr == "" {
		t.Error("expected non-empty error string")
	}

	// Test category checks
	if !summary.HasCategory(CategoryFile) {
		t.Error("expected to have file category")
	}
	if summary.HasCategory(CategoryStorage) {
		t.Error("expected not to have storage category")
	}

	// Test exit code (should be highest priority)
	actualCode := summary.GetExitCode()
	if actualCode == 0 {
		t.Error("expected non-zero exit code")
	}
}

func TestEmptyErrorSummary(t *testing.T) {
	summary := NewErrorSummary([]*ReconcilerError{})

	if summary.Total != 0 {
		t.Errorf("expected total 0, got %d", summary.Total)
	}
	if summary.Error() != "no errors" {
		t.Errorf("expected 'no errors', got '%s'", summary.Error())
	}
	if summary.GetExitCode() != 0 {
		t.Errorf("expected exit code 0, got %d", summary.GetExitCode())
	}
}

func TestSingleErrorSummary(t *testing.T) {
	err := New(CategoryFile, CodeFileNotFound, "single error")
	summary := NewErrorSummary([]*ReconcilerError{err})

	if summary.Total != 1 {
		t.Errorf("expected total 1, got %d", summary.Total)
	}
	if summary.Error() != "single error" {
		t.Errorf("expected 'single error', got '%s'", summary.Error())
	}
}

func TestIsReconcilerError(t *testing.T) {
	reconcilerErr := New(CategoryFile, CodeFileNotFound, "test")
	genericErr := errors.New("generic error")

	if !IsReconcilerError(reconcilerErr) {
		t.Error("expected IsReconcilerError to return true for ReconcilerError")
	}
	if IsReconcilerError(genericErr) {
		t.Error("expected IsReconcilerError to return false for generic error")
	}
	if IsReconcilerError(nil) {
		t.Error("expected IsReconcilerError to return false for nil")
	}
}

func TestAsReconcilerError(t *testing.T) {
	reconcilerErr := New(CategoryFile, CodeFileNotFound, "test")
	genericErr := errors.New("generic error")

	// Test with ReconcilerError
	if extracted, ok := AsReconcilerError(reconcilerErr); !ok || extracted != reconcilerErr {
		t.Error("expected AsReconcilerError to extract ReconcilerError")
	}

	// Test with generic error
	if _, ok := AsReconcilerError(genericErr); ok {
		t.Error("expected AsReconcilerError to return false for generic error")
	}

	// Test with nil
	if _, ok := AsReconcilerError(nil); ok {
		t.Error("expected AsReconcilerError to return false for nil")
	}
}

func TestWrapIfNeeded(t *testing.T) {
	reconcilerErr := New(CategoryFile, CodeFileNotFound, "test")
	genericErr := errors.New("generic error")

	// Test with ReconcilerError (should return as-is)
	result1 := WrapIfNeeded(reconcilerErr, CategoryParse, CodeInvalidData, "wrapped")
	if result1 != reconcilerErr {
		t.Error("expected WrapIfNeeded to return original ReconcilerError")
	}

	// Test with generic error (should wrap)
	result2 := WrapIfNeeded(genericErr, CategoryParse, CodeInvalidData, "wrapped")
	if result2.Cause != genericErr {
		t.Error("expected WrapIfNeeded to wrap generic error")
	}
	if result2.Category != CategoryParse {
		t.Error("expected wrapped error to have correct category")
	}

	// Test with nil (should return nil)
	result3 := WrapIfNeeded(nil, CategoryParse, CodeInvalidData, "wrapped")
	if result3 != nil {
		t.Error("expected WrapIfNeeded to return nil for nil input")
	}
}

func TestIsCode(t *testing.T) {
	err := MatchError(CodeAmbiguousMatch, "doc", "two identical candidates")

	if !IsCode(err, CodeAmbiguousMatch) {
		t.Error("expected IsCode to match the carried code")
	}
	if IsCode(err, CodeNoMatch) {
		t.Error("expected IsCode to reject a different code")
	}
	if IsCode(errors.New("plain"), CodeNoMatch) {
		t.Error("expected IsCode to reject a plain error")
	}
}

func TestErrorCodes(t *testing.T) {
	// Test that error codes are properly defined
	codes := []ErrorCode{
		CodeFileNotFound,
		CodeFilePermission,
		CodeUnrecognizedFormat,
		CodeMissingField,
		CodeMissingColumn,
		CodeInvalidAmount,
		CodeInvalidDate,
		CodeInvalidConfig,
		CodeAmbiguousMatch,
		CodeNoMatch,
		CodeRateOutOfBand,
		CodeStoreWriteFailed,
		CodeUnexpectedError,
	}

	for _, code := range codes {
		if string(code) == "" {
			t.Errorf("error code %v is empty", code)
		}
	}
}

func TestErrorCategories(t *testing.T) {
	// Test that error categories are properly defined
	categories := []ErrorCategory{
		CategoryFile,
		CategoryParse,
		CategoryValidation,
		CategoryConfiguration,
		CategoryMatch,
		CategoryStorage,
		CategoryInternal,
	}

	for _, category := range categories {
		if string(category) == "" {
			t.Errorf("error category %v is empty", category)
		}
	}
}

func TestExitCodes(t *testing.T) {
	tests := []struct {
		category     ErrorCategory
		expectedCode int
	}{
		{CategoryFile, 2},
		{CategoryParse, 3},
		{CategoryValidation, 3},
		{CategoryConfiguration, 4},
		{CategoryMatch, 5},
		{CategoryInternal, 5},
		{CategoryStorage, 6},
	}

	for _, tt := range tests {
		t.Run(string(tt.category), func(t *testing.T) {
			err := New(tt.category, "test_code", "test message")
			if err.GetExitCode() != tt.expectedCode {
				t.Errorf("expected exit code %d for category %s, got %d",
					tt.expectedCode, tt.category, err.GetExitCode())
			}
		})
	}
}

func TestCellErrorConstructors(t *testing.T) {
	amountErr := InvalidAmountError("ledger.csv", 7, "Amount", "12,AB.50")
	if amountErr.Code != CodeInvalidAmount {
		t.Errorf("expected invalid amount code, got %s", amountErr.Code)
	}
	if amountErr.Context == nil || amountErr.Context.Line != 7 || amountErr.Context.Value != "12,AB.50" {
		t.Errorf("expected cell context to be carried, got %+v", amountErr.Context)
	}
	if !amountErr.Recoverable {
		t.Error("expected a bad cell to be recoverable")
	}

	detailed := amountErr.GetDetailedError()
	if !strings.Contains(detailed, "ledger.csv") || !strings.Contains(detailed, "12,AB.50") {
		t.Errorf("expected detailed form to name the file and value, got %q", detailed)
	}

	dateErr := InvalidDateError("ledger.csv", 9, "Date", "sometime")
	if dateErr.Code != CodeInvalidDate {
		t.Errorf("expected invalid date code, got %s", dateErr.Code)
	}
}

func TestParseErrorCollector(t *testing.T) {
	collector := NewParseErrorCollector(10, true)
	if collector.HasErrors() {
		t.Error("expected a fresh collector to be empty")
	}

	collector.Add(InvalidAmountError("a.csv", 2, "Amount", "x"))
	collector.Add(InvalidDateError("a.csv", 3, "Date", "y"))
	if !collector.HasErrors() {
		t.Error("expected collector to report errors")
	}
	if len(collector.GetErrors()) != 2 {
		t.Errorf("expected 2 collected errors, got %d", len(collector.GetErrors()))
	}

	summary := FormatParseErrorsForUser(collector.GetErrors())
	if !strings.Contains(summary, "Found 2 parse errors") {
		t.Errorf("expected a grouped summary, got %q", summary)
	}
	if !strings.Contains(summary, "a.csv") {
		t.Errorf("expected the summary to name the file, got %q", summary)
	}

	collector.Clear()
	if collector.HasErrors() {
		t.Error("expected collector to be empty after clear")
	}
}
