package parsers

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"settlement-reconciler/internal/models"
	"settlement-reconciler/pkg/errors"

	"github.com/shopspring/decimal"
)

// Helper function to create a temporary input file
func createTempFile(t *testing.T, pattern, content string) string {
	tmpFile, err := os.CreateTemp("", pattern)
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}

	_, err = tmpFile.WriteString(content)
	if err != nil {
		tmpFile.Close()
		t.Fatalf("Failed to write temp file: %v", err)
	}
	tmpFile.Close()

	t.Cleanup(func() {
		os.Remove(tmpFile.Name())
	})

	return tmpFile.Name()
}

const samplePlatformAStatement = `Marketplace-A Seller Center
Statement for 2025-04-30

Payout Summary
Amount (PHP)
Total Released 1,500.00
Fees and Charges -149.50
Net Payout 1,350.50
FX Rate 0.0172
Paid Out 23.23

Adjustment Details
Campaign rebate 12.00
`

const samplePlatformBStatement = `Marketplace-B Seller Payouts
Settlement period: 1/4/2025 to 30/4/2025
Amount (MYR)

Released Amount 1,234.56
Charges -100.00
Total Settlement 1,134.56
`

func TestDefaultParseConfig(t *testing.T) {
	config := DefaultParseConfig()

	if !config.HasHeader {
		t.Error("Expected HasHeader to be true")
	}

	if config.Delimiter != ',' {
		t.Errorf("Expected delimiter to be ',', got %q", config.Delimiter)
	}

	if !config.TrimLeadingSpace {
		t.Error("Expected TrimLeadingSpace to be true")
	}

	if !config.SkipEmptyRows {
		t.Error("Expected SkipEmptyRows to be true")
	}
}

func TestParseError(t *testing.T) {
	err := &ParseError{
		Line:    5,
		Column:  3,
		Field:   "Amount",
		Value:   "invalid",
		Message: "invalid format",
	}

	expected := "parse error at line 5, column 3 (Amount='invalid'): invalid format"
	if err.Error() != expected {
		t.Errorf("Expected error message %q, got %q", expected, err.Error())
	}
}

func TestStatementConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		config    *StatementConfig
		wantError bool
	}{
		{
			name:      "Valid config",
			config:    DefaultStatementConfig(),
			wantError: false,
		},
		{
			name: "Empty platform B marker",
			config: &StatementConfig{
				PlatformAMarker: "Payout Summary",
				CurrencyLabels:  []string{"Amount"},
				NetLabel:        "Total Settlement",
			},
			wantError: true,
		},
		{
			name: "No currency labels",
			config: &StatementConfig{
				PlatformBMarker: "Total Settlement",
				PlatformAMarker: "Payout Summary",
				NetLabel:        "Total Settlement",
			},
			wantError: true,
		},
		{
			name: "Empty net label",
			config: &StatementConfig{
				PlatformBMarker: "Total Settlement",
				PlatformAMarker: "Payout Summary",
				CurrencyLabels:  []string{"Amount"},
			},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantError {
				t.Errorf("Validate() error = %v, wantError %v", err, tt.wantError)
			}
		})
	}
}

func TestLedgerConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		config    *LedgerConfig
		wantError bool
	}{
		{
			name:      "Valid config",
			config:    DefaultLedgerConfig(),
			wantError: false,
		},
		{
			name: "Missing delimiter",
			config: &LedgerConfig{
				HasHeader:  true,
				XLSCharset: "cp1252",
				XLSMaxRows: 100,
			},
			wantError: true,
		},
		{
			name: "Non-positive xls row cap",
			config: &LedgerConfig{
				HasHeader:  true,
				Delimiter:  ',',
				XLSCharset: "cp1252",
				XLSMaxRows: 0,
			},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantError {
				t.Errorf("Validate() error = %v, wantError %v", err, tt.wantError)
			}
		})
	}
}

func TestLedgerConfig_CanonicalColumn(t *testing.T) {
	config := DefaultLedgerConfig()

	tests := []struct {
		header   string
		expected string
	}{
		{"Date", "Date"},
		{"date", "Date"},
		{"Txn Date", "Date"},
		{"DETAILS", "Description"},
		{"CCY", "Currency"},
		{"Notes", "Notes"},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			if got := config.CanonicalColumn(tt.header); got != tt.expected {
				t.Errorf("CanonicalColumn(%q) = %q, want %q", tt.header, got, tt.expected)
			}
		})
	}
}

func TestNewStatementParser(t *testing.T) {
	parser, err := NewStatementParser(nil)
	if err != nil {
		t.Fatalf("Failed to create parser with nil config: %v", err)
	}
	if parser == nil {
		t.Fatal("Expected parser to be created")
	}

	invalidConfig := &StatementConfig{
		PlatformAMarker: "Payout Summary",
	}
	_, err = NewStatementParser(invalidConfig)
	if err == nil {
		t.Error("Expected error with invalid config")
	}
}

func TestStatementParser_ParseDocument_PlatformA(t *testing.T) {
	parser, err := NewStatementParser(nil)
	if err != nil {
		t.Fatalf("Failed to create parser: %v", err)
	}

	record, err := parser.ParseDocument("stmt-a-apr.txt", samplePlatformAStatement)
	if err != nil {
		t.Fatalf("Failed to parse document: %v", err)
	}

	if record.Platform != models.PlatformA {
		t.Errorf("Expected platform_a, got %s", record.Platform)
	}
	if record.Currency != "PHP" {
		t.Errorf("Expected currency PHP, got %s", record.Currency)
	}
	if record.GrossReceivable.StringFixed(2) != "1500.00" {
		t.Errorf("Expected gross 1500.00, got %s", record.GrossReceivable.StringFixed(2))
	}
	if record.NetPayoutLocal.StringFixed(2) != "1350.50" {
		t.Errorf("Expected net 1350.50, got %s", record.NetPayoutLocal.StringFixed(2))
	}
	if record.FxRate == nil || !record.FxRate.Equal(decimal.RequireFromString("0.0172")) {
		t.Errorf("Expected fx rate 0.0172, got %v", record.FxRate)
	}
	if record.ReferenceAmount == nil || record.ReferenceAmount.StringFixed(2) != "23.23" {
		t.Errorf("Expected reference amount 23.23, got %v", record.ReferenceAmount)
	}

	wantPeriod := time.Date(2025, 4, 30, 0, 0, 0, 0, time.UTC)
	if record.PeriodEnd == nil || !record.PeriodEnd.Equal(wantPeriod) {
		t.Errorf("Expected period end %s, got %v", wantPeriod, record.PeriodEnd)
	}
}

func TestStatementParser_ParseDocument_PlatformB(t *testing.T) {
	parser, err := NewStatementParser(nil)
	if err != nil {
		t.Fatalf("Failed to create parser: %v", err)
	}

	record, err := parser.ParseDocument("stmt-b-apr.txt", samplePlatformBStatement)
	if err != nil {
		t.Fatalf("Failed to parse document: %v", err)
	}

	if record.Platform != models.PlatformB {
		t.Errorf("Expected platform_b, got %s", record.Platform)
	}
	if record.Currency != "MYR" {
		t.Errorf("Expected currency MYR, got %s", record.Currency)
	}
	if record.GrossReceivable.StringFixed(2) != "1234.56" {
		t.Errorf("Expected gross 1234.56, got %s", record.GrossReceivable.StringFixed(2))
	}
	if record.NetPayoutLocal.StringFixed(2) != "1134.56" {
		t.Errorf("Expected net 1134.56, got %s", record.NetPayoutLocal.StringFixed(2))
	}
	if record.FxRate != nil || record.ReferenceAmount != nil {
		t.Error("Expected platform_b record to carry no reported rate or reference amount")
	}

	wantPeriod := time.Date(2025, 4, 30, 0, 0, 0, 0, time.UTC)
	if record.PeriodEnd == nil || !record.PeriodEnd.Equal(wantPeriod) {
		t.Errorf("Expected period end %s, got %v", wantPeriod, record.PeriodEnd)
	}
}

func TestStatementParser_ParseDocument_PureFeePeriod(t *testing.T) {
	parser, err := NewStatementParser(nil)
	if err != nil {
		t.Fatalf("Failed to create parser: %v", err)
	}

	text := `Marketplace-B Seller Payouts
Settlement period: 1/5/2025 to 15/5/2025
Amount (THB)

Platform service fee adjustment
Total Settlement -12.50
`

	record, err := parser.ParseDocument("stmt-b-fee.txt", text)
	if err != nil {
		t.Fatalf("Failed to parse document: %v", err)
	}

	if !record.GrossReceivable.IsZero() {
		t.Errorf("Expected zero gross for pure-fee period, got %s", record.GrossReceivable.String())
	}
	if record.NetPayoutLocal.StringFixed(2) != "-12.50" {
		t.Errorf("Expected net -12.50, got %s", record.NetPayoutLocal.StringFixed(2))
	}
}

func TestStatementParser_ParseDocument_MarkerPrecedence(t *testing.T) {
	parser, err := NewStatementParser(nil)
	if err != nil {
		t.Fatalf("Failed to create parser: %v", err)
	}

	// A document carrying both markers is treated as PlatformB
	text := `Payout Summary
Amount (SGD)
Total Settlement 250.00
`

	record, err := parser.ParseDocument("ambiguous.txt", text)
	if err != nil {
		t.Fatalf("Failed to parse document: %v", err)
	}

	if record.Platform != models.PlatformB {
		t.Errorf("Expected platform_b when both markers present, got %s", record.Platform)
	}
}

func TestStatementParser_ParseDocument_Unrecognized(t *testing.T) {
	parser, err := NewStatementParser(nil)
	if err != nil {
		t.Fatalf("Failed to create parser: %v", err)
	}

	_, err = parser.ParseDocument("mystery.txt", "An invoice from a completely different system\nTotal 99.00\n")
	if err == nil {
		t.Fatal("Expected error for unrecognized document")
	}
	if !errors.IsCode(err, errors.CodeUnrecognizedFormat) {
		t.Errorf("Expected CodeUnrecognizedFormat, got %v", err)
	}
}

func TestStatementParser_ParseDocument_MissingCurrency(t *testing.T) {
	parser, err := NewStatementParser(nil)
	if err != nil {
		t.Fatalf("Failed to create parser: %v", err)
	}

	text := `Total Settlement 1,134.56
Settlement period: 1/4/2025 to 30/4/2025
`

	_, err = parser.ParseDocument("no-currency.txt", text)
	if err == nil {
		t.Fatal("Expected error for missing currency declaration")
	}
	if !errors.IsCode(err, errors.CodeMissingField) {
		t.Errorf("Expected CodeMissingField, got %v", err)
	}
}

func TestStatementParser_ParseDocument_TooFewAmounts(t *testing.T) {
	parser, err := NewStatementParser(nil)
	if err != nil {
		t.Fatalf("Failed to create parser: %v", err)
	}

	text := `Payout Summary
Amount (PHP)
Net Payout 1,350.50
FX Rate 0.0172
`

	_, err = parser.ParseDocument("truncated.txt", text)
	if err == nil {
		t.Fatal("Expected error for truncated summary section")
	}
	if !errors.IsCode(err, errors.CodeMissingField) {
		t.Errorf("Expected CodeMissingField, got %v", err)
	}
}

func TestStatementParser_ParseDocument_MissingNetValue(t *testing.T) {
	parser, err := NewStatementParser(nil)
	if err != nil {
		t.Fatalf("Failed to create parser: %v", err)
	}

	text := `Marketplace-B Seller Payouts
Amount (VND)

Total Settlement
(figures pending)
`

	_, err = parser.ParseDocument("pending.txt", text)
	if err == nil {
		t.Fatal("Expected error when no value follows the net label")
	}
	if !errors.IsCode(err, errors.CodeMissingField) {
		t.Errorf("Expected CodeMissingField, got %v", err)
	}
}

func TestStatementParser_ParseDocument_LenientPeriodEnd(t *testing.T) {
	parser, err := NewStatementParser(nil)
	if err != nil {
		t.Fatalf("Failed to create parser: %v", err)
	}

	tests := []struct {
		name string
		text string
	}{
		{
			name: "No date after prefix",
			text: `Statement for end of April
Payout Summary
Amount (PHP)
100.00 -10.00 90.00 0.0172 1.55
Adjustment Details
`,
		},
		{
			name: "Impossible calendar date",
			text: `Statement for 31/13/2025
Payout Summary
Amount (PHP)
100.00 -10.00 90.00 0.0172 1.55
Adjustment Details
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record, err := parser.ParseDocument("lenient.txt", tt.text)
			if err != nil {
				t.Fatalf("Expected lenient parse, got error: %v", err)
			}
			if record.PeriodEnd != nil {
				t.Errorf("Expected nil period end, got %s", record.PeriodEnd)
			}
		})
	}
}

func TestStatementParser_ParseFiles(t *testing.T) {
	parser, err := NewStatementParser(nil)
	if err != nil {
		t.Fatalf("Failed to create parser: %v", err)
	}

	good := createTempFile(t, "stmt_*.txt", samplePlatformBStatement)
	bad := createTempFile(t, "stmt_*.txt", "not a statement at all\n")

	records, failures := parser.ParseFiles(context.Background(), []string{good, bad})

	if len(records) != 1 {
		t.Errorf("Expected 1 parsed record, got %d", len(records))
	}
	if len(failures) != 1 {
		t.Fatalf("Expected 1 failure, got %d", len(failures))
	}
	if failures[0].Code != errors.CodeUnrecognizedFormat {
		t.Errorf("Expected CodeUnrecognizedFormat failure, got %s", failures[0].Code)
	}
}

func TestNewLedgerParser(t *testing.T) {
	parser, err := NewLedgerParser(nil)
	if err != nil {
		t.Fatalf("Failed to create parser with nil config: %v", err)
	}
	if parser == nil {
		t.Fatal("Expected parser to be created")
	}

	invalidConfig := &LedgerConfig{Delimiter: ',', XLSCharset: "cp1252"}
	_, err = NewLedgerParser(invalidConfig)
	if err == nil {
		t.Error("Expected error with invalid config")
	}
}

func TestLedgerParser_ParseCSV(t *testing.T) {
	parser, err := NewLedgerParser(nil)
	if err != nil {
		t.Fatalf("Failed to create parser: %v", err)
	}

	csvContent := `Date,Description,Amount,Currency
"23 Apr, 2025",Marketplace-A Philippines payout,120.00,USD
"25 Apr, 2025",Marketplace-B settlement,43.64,USD`

	filePath := createTempFile(t, "ledger_*.csv", csvContent)

	tables, stats, err := parser.ParseFile(context.Background(), filePath)
	if err != nil {
		t.Fatalf("Failed to parse ledger file: %v", err)
	}

	if len(tables) != 1 {
		t.Fatalf("Expected 1 table, got %d", len(tables))
	}
	table := tables[0]

	if table.ID != filepath.Base(filePath) {
		t.Errorf("Expected table ID %s, got %s", filepath.Base(filePath), table.ID)
	}
	if len(table.Rows) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(table.Rows))
	}
	if stats.RecordsValid != 2 {
		t.Errorf("Expected 2 valid rows, got %d", stats.RecordsValid)
	}

	wantHeaders := 4 + len(models.TargetColumns())
	if len(table.Headers) != wantHeaders {
		t.Errorf("Expected %d headers after target append, got %d", wantHeaders, len(table.Headers))
	}

	row := table.Rows[0]
	if row.Amount == nil || row.Amount.StringFixed(2) != "120.00" {
		t.Errorf("Expected first row amount 120.00, got %v", row.Amount)
	}
	if row.ParsedDate == nil {
		t.Error("Expected first row date to parse")
	}
	if !row.IsBlank() {
		t.Error("Expected freshly loaded row to be blank")
	}
}

func TestLedgerParser_ParseCSV_Aliases(t *testing.T) {
	parser, err := NewLedgerParser(nil)
	if err != nil {
		t.Fatalf("Failed to create parser: %v", err)
	}

	csvContent := `Txn Date,Details,Value,CCY
2025-04-23,Marketplace-A Philippines payout,120.00,USD`

	filePath := createTempFile(t, "ledger_*.csv", csvContent)

	tables, _, err := parser.ParseFile(context.Background(), filePath)
	if err != nil {
		t.Fatalf("Failed to parse aliased ledger file: %v", err)
	}

	table := tables[0]
	if table.Headers[0] != models.ColDate {
		t.Errorf("Expected first header normalized to Date, got %s", table.Headers[0])
	}

	row := table.Rows[0]
	if row.Date != "2025-04-23" {
		t.Errorf("Expected date mapped through alias, got %q", row.Date)
	}
	if row.Currency != "USD" {
		t.Errorf("Expected currency mapped through alias, got %q", row.Currency)
	}
}

func TestLedgerParser_ParseCSV_MissingColumn(t *testing.T) {
	parser, err := NewLedgerParser(nil)
	if err != nil {
		t.Fatalf("Failed to create parser: %v", err)
	}

	csvContent := `Date,Description,Amount
"23 Apr, 2025",payout,120.00`

	filePath := createTempFile(t, "ledger_*.csv", csvContent)

	_, _, err = parser.ParseFile(context.Background(), filePath)
	if err == nil {
		t.Fatal("Expected error for missing required column")
	}
	if !errors.IsCode(err, errors.CodeMissingColumn) {
		t.Errorf("Expected CodeMissingColumn, got %v", err)
	}
}

func TestLedgerParser_ParseCSV_PrefilledRow(t *testing.T) {
	parser, err := NewLedgerParser(nil)
	if err != nil {
		t.Fatalf("Failed to create parser: %v", err)
	}

	csvContent := `Date,Description,Amount,Currency,Net Payout
"23 Apr, 2025",already reconciled,120.00,USD,6840.00
"25 Apr, 2025",still open,43.64,USD,`

	filePath := createTempFile(t, "ledger_*.csv", csvContent)

	tables, _, err := parser.ParseFile(context.Background(), filePath)
	if err != nil {
		t.Fatalf("Failed to parse ledger file: %v", err)
	}

	rows := tables[0].Rows
	if rows[0].IsBlank() {
		t.Error("Expected pre-filled row to be protected")
	}
	if !rows[1].IsBlank() {
		t.Error("Expected open row to be blank")
	}
}

func TestLedgerParser_ParseCSV_UnmatchableRows(t *testing.T) {
	parser, err := NewLedgerParser(nil)
	if err != nil {
		t.Fatalf("Failed to create parser: %v", err)
	}

	csvContent := `Date,Description,Amount,Currency
sometime,mystery,not-a-number,USD
"23 Apr, 2025",good row,120.00,USD`

	filePath := createTempFile(t, "ledger_*.csv", csvContent)

	tables, stats, err := parser.ParseFile(context.Background(), filePath)
	if err != nil {
		t.Fatalf("Failed to parse ledger file: %v", err)
	}

	if len(tables[0].Rows) != 2 {
		t.Errorf("Expected unmatchable row to be kept, got %d rows", len(tables[0].Rows))
	}
	if !stats.HasErrors() {
		t.Error("Expected stats to flag unmatchable cells")
	}
	if stats.RecordsValid != 1 {
		t.Errorf("Expected 1 fully valid row, got %d", stats.RecordsValid)
	}

	if len(stats.Errors) != 2 {
		t.Fatalf("Expected 2 flagged cells, got %d", len(stats.Errors))
	}
	byField := make(map[string]*ParseError, len(stats.Errors))
	for _, parseErr := range stats.Errors {
		byField[parseErr.Field] = parseErr
	}
	if amountErr := byField[models.ColAmount]; amountErr == nil {
		t.Error("Expected the amount cell to be flagged")
	} else {
		if amountErr.Value != "not-a-number" {
			t.Errorf("Expected flagged amount value, got %q", amountErr.Value)
		}
		if amountErr.Message != "invalid amount format" {
			t.Errorf("Expected amount diagnostic, got %q", amountErr.Message)
		}
	}
	if dateErr := byField[models.ColDate]; dateErr == nil {
		t.Error("Expected the date cell to be flagged")
	} else if dateErr.Message != "invalid date format" {
		t.Errorf("Expected date diagnostic, got %q", dateErr.Message)
	}
}

func TestLedgerParser_UnsupportedExtension(t *testing.T) {
	parser, err := NewLedgerParser(nil)
	if err != nil {
		t.Fatalf("Failed to create parser: %v", err)
	}

	filePath := createTempFile(t, "ledger_*.txt", "Date,Description,Amount,Currency\n")

	_, _, err = parser.ParseFile(context.Background(), filePath)
	if err == nil {
		t.Fatal("Expected error for unsupported extension")
	}
	if !errors.IsCode(err, errors.CodeUnrecognizedFormat) {
		t.Errorf("Expected CodeUnrecognizedFormat, got %v", err)
	}
}

func TestLedgerParser_ParseFiles_Isolation(t *testing.T) {
	parser, err := NewLedgerParser(nil)
	if err != nil {
		t.Fatalf("Failed to create parser: %v", err)
	}

	good := createTempFile(t, "ledger_*.csv", `Date,Description,Amount,Currency
"23 Apr, 2025",payout,120.00,USD`)
	bad := createTempFile(t, "ledger_*.csv", `Date,Description
"23 Apr, 2025",payout`)

	tables, failures := parser.ParseFiles(context.Background(), []string{good, bad})

	if len(tables) != 1 {
		t.Errorf("Expected 1 table, got %d", len(tables))
	}
	if len(failures) != 1 {
		t.Fatalf("Expected 1 failure, got %d", len(failures))
	}
	if failures[0].Code != errors.CodeMissingColumn {
		t.Errorf("Expected CodeMissingColumn failure, got %s", failures[0].Code)
	}
}
