package models

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Platform identifies which marketplace issued a settlement statement
type Platform string

const (
	// PlatformA reports its own fx rate and reference-currency payout
	PlatformA Platform = "platform_a"
	// PlatformB reports local amounts only; the rate is inferred from the ledger
	PlatformB Platform = "platform_b"
)

// String returns the string representation of Platform
func (p Platform) String() string {
	return string(p)
}

// IsValid checks if the platform is known
func (p Platform) IsValid() bool {
	return p == PlatformA || p == PlatformB
}

// ParsePlatform parses and validates a platform name from string
func ParsePlatform(s string) (Platform, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "platform_a", "a":
		return PlatformA, nil
	case "platform_b", "b":
		return PlatformB, nil
	default:
		return "", fmt.Errorf("invalid platform '%s': must be platform_a or platform_b", s)
	}
}

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// SettlementRecord represents one settlement period for one platform and currency.
// Records are immutable once created; the merger emits new records rather than
// mutating inputs.
type SettlementRecord struct {
	SourceID        string           `json:"source_id"`
	Platform        Platform         `json:"platform"`
	Currency        string           `json:"currency"`
	GrossReceivable decimal.Decimal  `json:"gross_receivable"`
	NetPayoutLocal  decimal.Decimal  `json:"net_payout_local"`
	FxRate          *decimal.Decimal `json:"fx_rate,omitempty"`
	ReferenceAmount *decimal.Decimal `json:"reference_amount,omitempty"`
	PeriodEnd       *time.Time       `json:"period_end,omitempty"`
	MergedFrom      []string         `json:"merged_from,omitempty"`
}

// NewSettlementRecord creates a new SettlementRecord with amounts rounded to
// two decimal places
func NewSettlementRecord(sourceID string, platform Platform, currency string, gross, net decimal.Decimal) *SettlementRecord {
	return &SettlementRecord{
		SourceID:        sourceID,
		Platform:        platform,
		Currency:        strings.ToUpper(strings.TrimSpace(currency)),
		GrossReceivable: RoundMoney(gross),
		NetPayoutLocal:  RoundMoney(net),
	}
}

// Validate performs basic validation on the SettlementRecord
func (r *SettlementRecord) Validate() error {
	if strings.TrimSpace(r.SourceID) == "" {
		return fmt.Errorf("settlement record source ID cannot be empty")
	}

	if !r.Platform.IsValid() {
		return fmt.Errorf("invalid platform: %s", r.Platform)
	}

	if err := r.ValidateCurrency(); err != nil {
		return err
	}

	if err := r.ValidateMonetaryPrecision(); err != nil {
		return err
	}

	switch r.Platform {
	case PlatformA:
		if r.FxRate == nil {
			return fmt.Errorf("platform_a record must carry an fx rate")
		}
		if r.ReferenceAmount == nil {
			return fmt.Errorf("platform_a record must carry a reference amount")
		}
	case PlatformB:
		if r.FxRate != nil || r.ReferenceAmount != nil {
			return fmt.Errorf("platform_b record must not carry a reported rate or reference amount")
		}
	}

	return nil
}

// ValidateCurrency checks that the currency is a 3-letter uppercase code
func (r *SettlementRecord) ValidateCurrency() error {
	if !currencyPattern.MatchString(r.Currency) {
		return fmt.Errorf("invalid currency code '%s': must be 3 uppercase letters", r.Currency)
	}
	return nil
}

// ValidateMonetaryPrecision checks the two-decimal invariant on local amounts
func (r *SettlementRecord) ValidateMonetaryPrecision() error {
	if !r.GrossReceivable.Equal(r.GrossReceivable.Round(2)) {
		return fmt.Errorf("gross receivable %s carries more than two decimal places", r.GrossReceivable.String())
	}
	if !r.NetPayoutLocal.Equal(r.NetPayoutLocal.Round(2)) {
		return fmt.Errorf("net payout %s carries more than two decimal places", r.NetPayoutLocal.String())
	}
	return nil
}

// PlatformFee returns net payout minus gross receivable, rounded to the cent
func (r *SettlementRecord) PlatformFee() decimal.Decimal {
	return RoundMoney(r.NetPayoutLocal.Sub(r.GrossReceivable))
}

// IsMerged reports whether this record resulted from a period merge
func (r *SettlementRecord) IsMerged() bool {
	return len(r.MergedFrom) > 0
}

// Clone returns a deep copy of the record
func (r *SettlementRecord) Clone() *SettlementRecord {
	out := &SettlementRecord{
		SourceID:        r.SourceID,
		Platform:        r.Platform,
		Currency:        r.Currency,
		GrossReceivable: r.GrossReceivable,
		NetPayoutLocal:  r.NetPayoutLocal,
	}
	if r.FxRate != nil {
		v := *r.FxRate
		out.FxRate = &v
	}
	if r.ReferenceAmount != nil {
		v := *r.ReferenceAmount
		out.ReferenceAmount = &v
	}
	if r.PeriodEnd != nil {
		v := *r.PeriodEnd
		out.PeriodEnd = &v
	}
	if len(r.MergedFrom) > 0 {
		out.MergedFrom = append([]string(nil), r.MergedFrom...)
	}
	return out
}

// String returns a string representation of the SettlementRecord
func (r *SettlementRecord) String() string {
	period := "unknown"
	if r.PeriodEnd != nil {
		period = r.PeriodEnd.Format("2006-01-02")
	}
	return fmt.Sprintf("SettlementRecord{Source: %s, Platform: %s, Currency: %s, Net: %s, PeriodEnd: %s}",
		r.SourceID, r.Platform, r.Currency, r.NetPayoutLocal.StringFixed(2), period)
}

// MarshalJSON implements custom JSON marshaling for SettlementRecord
func (r *SettlementRecord) MarshalJSON() ([]byte, error) {
	type Alias SettlementRecord
	aux := &struct {
		GrossReceivable string  `json:"gross_receivable"`
		NetPayoutLocal  string  `json:"net_payout_local"`
		FxRate          *string `json:"fx_rate,omitempty"`
		ReferenceAmount *string `json:"reference_amount,omitempty"`
		PeriodEnd       *string `json:"period_end,omitempty"`
		*Alias
	}{
		GrossReceivable: r.GrossReceivable.StringFixed(2),
		NetPayoutLocal:  r.NetPayoutLocal.StringFixed(2),
		Alias:           (*Alias)(r),
	}
	if r.FxRate != nil {
		v := r.FxRate.String()
		aux.FxRate = &v
	}
	if r.ReferenceAmount != nil {
		v := r.ReferenceAmount.StringFixed(2)
		aux.ReferenceAmount = &v
	}
	if r.PeriodEnd != nil {
		v := r.PeriodEnd.Format("2006-01-02")
		aux.PeriodEnd = &v
	}
	return json.Marshal(aux)
}

// Required base columns every ledger table must carry
const (
	ColDate        = "Date"
	ColDescription = "Description"
	ColAmount      = "Amount"
	ColCurrency    = "Currency"
)

// Target columns the fill policy may populate, in fixed output order
const (
	ColGrossSales        = "Gross Sales"
	ColPlatformFee       = "Platform Fee"
	ColNetPayout         = "Net Payout"
	ColFxRate            = "FX Rate"
	ColStatedReference   = "Stated Reference Amount"
	ColComputedReference = "Computed Reference Amount"
	ColValidation        = "Validation"
	ColCountry           = "Country"
)

// RequiredColumns returns the base columns a ledger table must have
func RequiredColumns() []string {
	return []string{ColDate, ColDescription, ColAmount, ColCurrency}
}

// TargetColumns returns the fill-policy column set in output order
func TargetColumns() []string {
	return []string{
		ColGrossSales,
		ColPlatformFee,
		ColNetPayout,
		ColFxRate,
		ColStatedReference,
		ColComputedReference,
		ColValidation,
		ColCountry,
	}
}

// LedgerRow represents one row of an external ledger table. Raw preserves the
// original cell values by header; Target holds the fill-policy columns, which
// may start non-empty when the table was already partially reconciled.
type LedgerRow struct {
	Index       int               `json:"index"`
	Date        string            `json:"date"`
	ParsedDate  *time.Time        `json:"-"`
	Description string            `json:"description"`
	Currency    string            `json:"currency"`
	AmountRaw   string            `json:"amount_raw"`
	Amount      *decimal.Decimal  `json:"-"`
	Raw         map[string]string `json:"-"`
	Target      map[string]string `json:"-"`
}

// NewLedgerRow creates a LedgerRow from raw cell values keyed by header,
// parsing the date and amount leniently: failures leave the parsed fields nil
// and the row simply never becomes a match candidate on that axis
func NewLedgerRow(index int, raw map[string]string) *LedgerRow {
	row := &LedgerRow{
		Index:       index,
		Date:        strings.TrimSpace(raw[ColDate]),
		Description: raw[ColDescription],
		Currency:    strings.ToUpper(strings.TrimSpace(raw[ColCurrency])),
		AmountRaw:   strings.TrimSpace(raw[ColAmount]),
		Raw:         raw,
		Target:      make(map[string]string, len(TargetColumns())),
	}

	if t, err := ParseLedgerDate(row.Date); err == nil {
		row.ParsedDate = &t
	}
	if d, err := ParseDecimalFromString(row.AmountRaw); err == nil {
		row.Amount = &d
	}

	for _, col := range TargetColumns() {
		row.Target[col] = raw[col]
	}

	return row
}

// IsBlank reports whether every target column is empty after trimming.
// Only completely blank rows may be written; anything else is protected.
func (lr *LedgerRow) IsBlank() bool {
	for _, col := range TargetColumns() {
		if strings.TrimSpace(lr.Target[col]) != "" {
			return false
		}
	}
	return true
}

// SetTarget assigns a target column value
func (lr *LedgerRow) SetTarget(col, value string) {
	lr.Target[col] = value
}

// ValueFor returns the current cell value for a header, preferring the target
// set for fill-policy columns
func (lr *LedgerRow) ValueFor(header string) string {
	for _, col := range TargetColumns() {
		if col == header {
			return lr.Target[col]
		}
	}
	return lr.Raw[header]
}

// String returns a string representation of the LedgerRow
func (lr *LedgerRow) String() string {
	return fmt.Sprintf("LedgerRow{Index: %d, Date: %s, Currency: %s, Amount: %s}",
		lr.Index, lr.Date, lr.Currency, lr.AmountRaw)
}

// LedgerTable represents a row-oriented ledger table read from one source file
// or worksheet
type LedgerTable struct {
	ID      string       `json:"id"`
	Headers []string     `json:"headers"`
	Rows    []*LedgerRow `json:"rows"`
}

// Validate checks that the table carries the required base columns
func (lt *LedgerTable) Validate() error {
	if strings.TrimSpace(lt.ID) == "" {
		return fmt.Errorf("ledger table ID cannot be empty")
	}

	present := make(map[string]bool, len(lt.Headers))
	for _, h := range lt.Headers {
		present[h] = true
	}

	var missing []string
	for _, col := range RequiredColumns() {
		if !present[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("ledger table %s missing required column(s): %s", lt.ID, strings.Join(missing, ", "))
	}

	return nil
}

// EnsureTargetColumns appends any absent target columns to the header set so
// the fill policy always has somewhere to write
func (lt *LedgerTable) EnsureTargetColumns() {
	present := make(map[string]bool, len(lt.Headers))
	for _, h := range lt.Headers {
		present[h] = true
	}
	for _, col := range TargetColumns() {
		if !present[col] {
			lt.Headers = append(lt.Headers, col)
		}
	}
}

// MatchCandidate is a transient scoring tuple produced while matching one
// settlement record against one ledger table
type MatchCandidate struct {
	Row          *LedgerRow
	ImpliedRate  decimal.Decimal
	DateDistance int
}

// Utility functions for money, rates and dates

// RoundMoney rounds to two decimal places, half away from zero
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// FormatMoney renders a decimal as a fixed two-decimal string
func FormatMoney(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// DecimalPtr returns a pointer to d
func DecimalPtr(d decimal.Decimal) *decimal.Decimal {
	return &d
}

// TimePtr returns a pointer to t
func TimePtr(t time.Time) *time.Time {
	return &t
}

// ParseDecimalFromString parses a decimal value from string with validation.
// Currency symbols, thousand separators and a trailing lone decimal point
// (a common extraction artifact) are stripped first.
func ParseDecimalFromString(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount string cannot be empty")
	}

	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, ".")
	if s == "" || s == "-" {
		return decimal.Zero, fmt.Errorf("amount string '%s' carries no digits", s)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal format '%s': %w", s, err)
	}

	return d, nil
}

// ledgerDateFormats are tried in order. Day-first slash dates come before
// month-first so ambiguous values like 10/3/2025 resolve day-first.
var ledgerDateFormats = []string{
	"2 Jan, 2006",
	"2 Jan 2006",
	"2 January 2006",
	"2006-01-02",
	"2/1/2006",
	"1/2/2006",
}

// ParseLedgerDate attempts to parse a ledger date string using the accepted
// formats in order
func ParseLedgerDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("date string cannot be empty")
	}

	var lastErr error
	for _, format := range ledgerDateFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		} else {
			lastErr = err
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse date '%s': %w", s, lastErr)
}

// ParseDayFirstDate parses a D/M/YYYY date as used inside statement texts
func ParseDayFirstDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("date string cannot be empty")
	}
	return time.Parse("2/1/2006", s)
}

// CompareAmountsWithTolerance reports whether two amounts agree. Equal
// amounts always agree; unequal amounts agree only when their absolute
// difference is strictly below the tolerance, so a difference of exactly
// one tolerance unit does not count as a match.
func CompareAmountsWithTolerance(a, b, tolerance decimal.Decimal) bool {
	diff := a.Sub(b).Abs()
	return diff.IsZero() || diff.LessThan(tolerance)
}

// DaysBetween returns the absolute whole-day distance between two dates,
// ignoring the time of day
func DaysBetween(a, b time.Time) int {
	ad := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	bd := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	days := int(bd.Sub(ad).Hours() / 24)
	if days < 0 {
		days = -days
	}
	return days
}

// DaysAfter returns the signed whole-day distance from base to t
// (positive when t is after base)
func DaysAfter(base, t time.Time) int {
	baseD := time.Date(base.Year(), base.Month(), base.Day(), 0, 0, 0, 0, time.UTC)
	tD := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return int(tD.Sub(baseD).Hours() / 24)
}
