package parsers

import (
	"fmt"
	"strings"
)

// StatementConfig holds the markers and labels used to pull settlement figures
// out of raw statement text. Defaults cover the two supported marketplace
// statement layouts; every string is overridable for regional variants.
type StatementConfig struct {
	// PlatformBMarker identifies a PlatformB document. It is checked before
	// the PlatformA marker because PlatformB statements can embed summary
	// wording that resembles PlatformA's.
	PlatformBMarker string `json:"platform_b_marker"`
	// PlatformAMarker identifies a PlatformA document and doubles as the
	// start of its summary section.
	PlatformAMarker string `json:"platform_a_marker"`
	// SummaryEndMarker bounds the PlatformA summary section. When missing
	// the whole document is scanned.
	SummaryEndMarker string `json:"summary_end_marker"`
	// PeriodPrefix precedes the PlatformA statement date.
	PeriodPrefix string `json:"period_prefix"`
	// CurrencyLabels are tried in order against the "<label> (CCY)" pattern.
	CurrencyLabels []string `json:"currency_labels"`
	// GrossLabel names the PlatformB gross figure. Structurally optional:
	// pure-fee periods omit it entirely.
	GrossLabel string `json:"gross_label"`
	// NetLabel names the PlatformB net settlement figure.
	NetLabel string `json:"net_label"`
}

// DefaultStatementConfig returns the marker set for the standard statement layouts
func DefaultStatementConfig() *StatementConfig {
	return &StatementConfig{
		PlatformBMarker:  "Total Settlement",
		PlatformAMarker:  "Payout Summary",
		SummaryEndMarker: "Adjustment Details",
		PeriodPrefix:     "Statement for",
		CurrencyLabels:   []string{"Amount"},
		GrossLabel:       "Released Amount",
		NetLabel:         "Total Settlement",
	}
}

// Validate checks if the statement configuration is valid
func (sc *StatementConfig) Validate() error {
	if strings.TrimSpace(sc.PlatformBMarker) == "" {
		return fmt.Errorf("platform B marker cannot be empty")
	}

	if strings.TrimSpace(sc.PlatformAMarker) == "" {
		return fmt.Errorf("platform A marker cannot be empty")
	}

	if len(sc.CurrencyLabels) == 0 {
		return fmt.Errorf("at least one currency label is required")
	}

	if strings.TrimSpace(sc.NetLabel) == "" {
		return fmt.Errorf("net settlement label cannot be empty")
	}

	return nil
}

// Clone returns a deep copy of the configuration
func (sc *StatementConfig) Clone() *StatementConfig {
	out := *sc
	out.CurrencyLabels = append([]string(nil), sc.CurrencyLabels...)
	return &out
}

// LedgerConfig holds configuration for loading ledger tables from CSV or
// legacy .xls workbooks
type LedgerConfig struct {
	HasHeader bool `json:"has_header"`
	Delimiter rune `json:"delimiter"`
	// ColumnAliases maps each required column to alternate header spellings.
	// Headers are normalized to the canonical names at load time.
	ColumnAliases map[string][]string `json:"column_aliases,omitempty"`
	// XLSCharset is handed to the xls reader for legacy workbooks.
	XLSCharset string `json:"xls_charset"`
	// XLSMaxRows caps rows read per worksheet.
	XLSMaxRows int `json:"xls_max_rows"`
}

// DefaultLedgerConfig returns a configuration with standard defaults
func DefaultLedgerConfig() *LedgerConfig {
	return &LedgerConfig{
		HasHeader: true,
		Delimiter: ',',
		ColumnAliases: map[string][]string{
			"Date":        {"Transaction Date", "Txn Date", "Posting Date"},
			"Description": {"Details", "Memo", "Narrative"},
			"Amount":      {"Value", "Amount (USD)"},
			"Currency":    {"CCY", "Curr"},
		},
		XLSCharset: "cp1252",
		XLSMaxRows: 10000,
	}
}

// Validate checks if the ledger configuration is valid
func (lc *LedgerConfig) Validate() error {
	if lc.Delimiter == 0 {
		return fmt.Errorf("delimiter cannot be empty")
	}

	if strings.TrimSpace(lc.XLSCharset) == "" {
		return fmt.Errorf("xls charset cannot be empty")
	}

	if lc.XLSMaxRows <= 0 {
		return fmt.Errorf("xls max rows must be positive, got %d", lc.XLSMaxRows)
	}

	return nil
}

// Clone returns a deep copy of the configuration
func (lc *LedgerConfig) Clone() *LedgerConfig {
	out := *lc
	if lc.ColumnAliases != nil {
		out.ColumnAliases = make(map[string][]string, len(lc.ColumnAliases))
		for k, v := range lc.ColumnAliases {
			out.ColumnAliases[k] = append([]string(nil), v...)
		}
	}
	return &out
}

// CanonicalColumn resolves a header to its canonical column name. The header
// matches a canonical name directly (case-insensitive) or one of its aliases;
// otherwise it is returned unchanged.
func (lc *LedgerConfig) CanonicalColumn(header string) string {
	trimmed := strings.TrimSpace(header)
	lower := strings.ToLower(trimmed)

	for canonical, aliases := range lc.ColumnAliases {
		if strings.ToLower(canonical) == lower {
			return canonical
		}
		for _, alias := range aliases {
			if strings.ToLower(alias) == lower {
				return canonical
			}
		}
	}

	return trimmed
}

// NormalizeHeaders maps raw headers onto canonical column names and reports
// which required columns are absent
func (lc *LedgerConfig) NormalizeHeaders(headers []string, required []string) ([]string, []string) {
	normalized := make([]string, len(headers))
	present := make(map[string]bool, len(headers))
	for i, h := range headers {
		normalized[i] = lc.CanonicalColumn(h)
		present[normalized[i]] = true
	}

	var missing []string
	for _, col := range required {
		if !present[col] {
			missing = append(missing, col)
		}
	}

	return normalized, missing
}
