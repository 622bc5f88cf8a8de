// Package matcher selects ledger rows for settlement records.
//
// Two policies exist, chosen by what the record carries:
//   - exact-amount: the record states its own reference-currency payout, and
//     candidate rows must carry that amount within a fixed tolerance
//   - implied-rate: no reference payout is known, so the rate implied by each
//     candidate row is checked against a per-currency plausible band and the
//     row closest to the expected rate wins
//
// Matching never guesses: indistinguishable blank candidates are reported as
// ambiguous and nothing is written, and consumed rows are never candidates
// again within a run. State (consumed rows, filled records) is passed in
// explicitly so the engine stays runnable in isolation.
//
// Example usage:
//
//	engine := matcher.NewMatchingEngine(matcher.DefaultMatchingConfig())
//	index := matcher.NewLedgerIndex(table, "USD")
//	state := matcher.NewTableState()
//
//	outcome := engine.MatchInTable(record, index, state)
package matcher

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// MatchPolicy identifies which matching policy produced an outcome
type MatchPolicy int

const (
	// PolicyExactAmount matches on the record's own reference-currency payout
	PolicyExactAmount MatchPolicy = iota

	// PolicyImpliedRate infers the payout from the ledger via a rate band
	PolicyImpliedRate
)

// String returns the string representation of MatchPolicy
func (mp MatchPolicy) String() string {
	switch mp {
	case PolicyExactAmount:
		return "ExactAmount"
	case PolicyImpliedRate:
		return "ImpliedRate"
	default:
		return "Unknown"
	}
}

// Outcome classifies the result of matching one record against one or more
// ledger tables
type Outcome int

const (
	// OutcomeFilled means exactly one eligible blank row was selected
	OutcomeFilled Outcome = iota

	// OutcomeAlreadyFilled means every eligible row already carries target
	// values; the record is considered reconciled by an earlier run
	OutcomeAlreadyFilled

	// OutcomeAmbiguous means two or more blank candidates were
	// indistinguishable; nothing is written
	OutcomeAmbiguous

	// OutcomeNoMatch means no eligible row survived the policy's filters
	OutcomeNoMatch
)

// String returns the string representation of Outcome
func (o Outcome) String() string {
	switch o {
	case OutcomeFilled:
		return "Filled"
	case OutcomeAlreadyFilled:
		return "AlreadyFilled"
	case OutcomeAmbiguous:
		return "Ambiguous"
	case OutcomeNoMatch:
		return "NoMatch"
	default:
		return "Unknown"
	}
}

// RateBand is the plausible range for an implied exchange rate, expressed
// local-per-reference. Rates outside the band disqualify a candidate row.
type RateBand struct {
	Min decimal.Decimal `json:"min"`
	Max decimal.Decimal `json:"max"`
}

// Contains reports whether rate falls inside the band; both bounds are
// inclusive, so a rate exactly at Min or Max is in band.
func (rb RateBand) Contains(rate decimal.Decimal) bool {
	return rate.GreaterThanOrEqual(rb.Min) && rate.LessThanOrEqual(rb.Max)
}

// Validate checks that the band is well-formed
func (rb RateBand) Validate() error {
	if rb.Min.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("rate band minimum must be positive, got %s", rb.Min)
	}
	if rb.Max.LessThanOrEqual(rb.Min) {
		return fmt.Errorf("rate band maximum %s must exceed minimum %s", rb.Max, rb.Min)
	}
	return nil
}

// MatchingConfig holds the parameters for both matching policies.
//
// Key configuration areas:
//   - currency scope: only rows in ReferenceCurrency are ever candidates
//   - exact-amount policy: AmountTolerance plus per-currency description tags
//   - implied-rate policy: date window, expected rates and plausible bands
//
// Use the provided factory functions for common scenarios:
//   - DefaultMatchingConfig(): the standard production settings
//   - StrictMatchingConfig(): exact amounts and a short payout window
//   - RelaxedMatchingConfig(): wider tolerances for exploratory runs
type MatchingConfig struct {
	// ReferenceCurrency scopes candidate rows; rows in any other currency
	// are invisible to the matcher.
	ReferenceCurrency string `json:"reference_currency"`

	// AmountTolerance is the absolute tolerance for the exact-amount policy.
	AmountTolerance decimal.Decimal `json:"amount_tolerance"`

	// MaxFutureDays bounds how long after its period end a settlement may be
	// paid out. Rows outside [period_end, period_end+MaxFutureDays] are
	// excluded outright under the implied-rate policy.
	MaxFutureDays int `json:"max_future_days"`

	// PlatformAKeywords maps a settlement currency to the description tag
	// that identifies that platform+country's payouts in the ledger.
	PlatformAKeywords map[string]string `json:"platform_a_keywords"`

	// PlatformATag is the fallback description tag when a currency has no
	// entry in PlatformAKeywords.
	PlatformATag string `json:"platform_a_tag"`

	// PlatformBKeyword identifies the other platform's payouts. The
	// containment check is case-insensitive, and rows without the keyword
	// are still considered when no row carries it.
	PlatformBKeyword string `json:"platform_b_keyword"`

	// ExpectedRates holds the nominal local-per-reference rate per currency;
	// the implied-rate policy picks the candidate closest to it.
	ExpectedRates map[string]decimal.Decimal `json:"expected_rates"`

	// RateBands holds the plausible implied-rate range per currency.
	RateBands map[string]RateBand `json:"rate_bands"`
}

// DefaultMatchingConfig returns the standard production settings
func DefaultMatchingConfig() *MatchingConfig {
	return &MatchingConfig{
		ReferenceCurrency: "USD",
		AmountTolerance:   decimal.NewFromFloat(0.01),
		MaxFutureDays:     10,
		PlatformAKeywords: map[string]string{
			"PHP": "MKTA PH",
			"MYR": "MKTA MY",
			"THB": "MKTA TH",
			"SGD": "MKTA SG",
			"VND": "MKTA VN",
			"BRL": "MKTA BR",
			"TWD": "MKTA TW",
		},
		PlatformATag:     "MKTA",
		PlatformBKeyword: "MKTB",
		ExpectedRates: map[string]decimal.Decimal{
			"PHP": decimal.NewFromFloat(57.0),
			"MYR": decimal.NewFromFloat(4.5),
			"THB": decimal.NewFromFloat(33.0),
			"SGD": decimal.NewFromFloat(1.32),
			"VND": decimal.NewFromFloat(26000.0),
		},
		RateBands: map[string]RateBand{
			"PHP": {Min: decimal.NewFromFloat(54.0), Max: decimal.NewFromFloat(60.0)},
			"MYR": {Min: decimal.NewFromFloat(4.1), Max: decimal.NewFromFloat(5.0)},
			"THB": {Min: decimal.NewFromFloat(28.0), Max: decimal.NewFromFloat(36.0)},
			"SGD": {Min: decimal.NewFromFloat(1.25), Max: decimal.NewFromFloat(1.38)},
			"VND": {Min: decimal.NewFromFloat(25000.0), Max: decimal.NewFromFloat(27000.0)},
		},
	}
}

// StrictMatchingConfig returns settings for critical reconciliation: exact
// amounts only and a short payout window
func StrictMatchingConfig() *MatchingConfig {
	config := DefaultMatchingConfig()
	config.AmountTolerance = decimal.Zero
	config.MaxFutureDays = 5
	return config
}

// RelaxedMatchingConfig returns settings for exploratory matching
func RelaxedMatchingConfig() *MatchingConfig {
	config := DefaultMatchingConfig()
	config.AmountTolerance = decimal.NewFromFloat(0.05)
	config.MaxFutureDays = 20
	return config
}

// Validate checks if the matching configuration is valid
func (mc *MatchingConfig) Validate() error {
	if len(mc.ReferenceCurrency) != 3 {
		return fmt.Errorf("reference currency must be a 3-letter code, got '%s'", mc.ReferenceCurrency)
	}

	if mc.AmountTolerance.IsNegative() {
		return fmt.Errorf("amount tolerance cannot be negative: %s", mc.AmountTolerance)
	}

	if mc.MaxFutureDays < 0 {
		return fmt.Errorf("max future days cannot be negative: %d", mc.MaxFutureDays)
	}

	if strings.TrimSpace(mc.PlatformATag) == "" && len(mc.PlatformAKeywords) == 0 {
		return fmt.Errorf("exact-amount policy needs a platform tag or per-currency keywords")
	}

	if strings.TrimSpace(mc.PlatformBKeyword) == "" {
		return fmt.Errorf("implied-rate policy needs a platform keyword")
	}

	for currency, band := range mc.RateBands {
		if err := band.Validate(); err != nil {
			return fmt.Errorf("invalid rate band for %s: %w", currency, err)
		}
	}

	for currency, rate := range mc.ExpectedRates {
		if rate.LessThanOrEqual(decimal.Zero) {
			return fmt.Errorf("expected rate for %s must be positive, got %s", currency, rate)
		}
		if band, ok := mc.RateBands[currency]; ok && !band.Contains(rate) {
			return fmt.Errorf("expected rate for %s (%s) lies outside its plausible band [%s, %s]",
				currency, rate, band.Min, band.Max)
		}
	}

	return nil
}

// Clone creates a deep copy of the matching configuration
func (mc *MatchingConfig) Clone() *MatchingConfig {
	if mc == nil {
		return nil
	}

	out := &MatchingConfig{
		ReferenceCurrency: mc.ReferenceCurrency,
		AmountTolerance:   mc.AmountTolerance,
		MaxFutureDays:     mc.MaxFutureDays,
		PlatformATag:      mc.PlatformATag,
		PlatformBKeyword:  mc.PlatformBKeyword,
	}

	if mc.PlatformAKeywords != nil {
		out.PlatformAKeywords = make(map[string]string, len(mc.PlatformAKeywords))
		for k, v := range mc.PlatformAKeywords {
			out.PlatformAKeywords[k] = v
		}
	}
	if mc.ExpectedRates != nil {
		out.ExpectedRates = make(map[string]decimal.Decimal, len(mc.ExpectedRates))
		for k, v := range mc.ExpectedRates {
			out.ExpectedRates[k] = v
		}
	}
	if mc.RateBands != nil {
		out.RateBands = make(map[string]RateBand, len(mc.RateBands))
		for k, v := range mc.RateBands {
			out.RateBands[k] = v
		}
	}

	return out
}

// KeywordForCurrency returns the exact-amount description tag for a
// settlement currency, falling back to the platform tag
func (mc *MatchingConfig) KeywordForCurrency(currency string) string {
	if keyword, ok := mc.PlatformAKeywords[currency]; ok {
		return keyword
	}
	return mc.PlatformATag
}

// ExpectedRate returns the nominal local-per-reference rate for a currency
func (mc *MatchingConfig) ExpectedRate(currency string) (decimal.Decimal, bool) {
	rate, ok := mc.ExpectedRates[currency]
	return rate, ok
}

// Band returns the plausible implied-rate band for a currency
func (mc *MatchingConfig) Band(currency string) (RateBand, bool) {
	band, ok := mc.RateBands[currency]
	return band, ok
}

// String returns a human-readable description of the configuration
func (mc *MatchingConfig) String() string {
	return fmt.Sprintf("MatchingConfig{Reference: %s, Tolerance: %s, MaxFutureDays: %d, RateBands: %d currencies}",
		mc.ReferenceCurrency, mc.AmountTolerance, mc.MaxFutureDays, len(mc.RateBands))
}
