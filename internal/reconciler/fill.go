package reconciler

import (
	"fmt"

	"settlement-reconciler/internal/models"
	"settlement-reconciler/pkg/errors"
	"settlement-reconciler/pkg/logger"

	"github.com/shopspring/decimal"
)

// FillConfig holds the write policy's settings
type FillConfig struct {
	// CountryCodes maps a settlement currency to the country code written
	// for PlatformB rows. PlatformA rows leave the column blank.
	CountryCodes map[string]string `json:"country_codes"`
}

// DefaultFillConfig returns the standard country mapping
func DefaultFillConfig() *FillConfig {
	return &FillConfig{
		CountryCodes: map[string]string{
			"PHP": "PH",
			"MYR": "MY",
			"THB": "TH",
			"SGD": "SG",
			"VND": "VN",
			"BRL": "BR",
			"TWD": "TW",
		},
	}
}

// Validate checks if the fill configuration is valid
func (fc *FillConfig) Validate() error {
	for currency, country := range fc.CountryCodes {
		if len(currency) != 3 || len(country) != 2 {
			return fmt.Errorf("country mapping %q -> %q is malformed", currency, country)
		}
	}
	return nil
}

// Clone returns a deep copy of the configuration
func (fc *FillConfig) Clone() *FillConfig {
	out := &FillConfig{}
	if fc.CountryCodes != nil {
		out.CountryCodes = make(map[string]string, len(fc.CountryCodes))
		for k, v := range fc.CountryCodes {
			out.CountryCodes[k] = v
		}
	}
	return out
}

// FillPolicy computes the derived financial fields for a matched ledger row
// and commits them exactly once. A row with any pre-existing target value is
// never written: the full-set blank check protects manually corrected rows
// from being clobbered on re-runs.
type FillPolicy struct {
	config *FillConfig
	logger logger.Logger
}

// NewFillPolicy creates a fill policy with the given configuration
func NewFillPolicy(config *FillConfig) (*FillPolicy, error) {
	if config == nil {
		config = DefaultFillConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "fill_config", "", err)
	}
	return &FillPolicy{
		config: config,
		logger: logger.GetGlobalLogger().WithComponent("fill_policy"),
	}, nil
}

// Fill writes the derived fields for record into row. impliedRate must be set
// for PlatformB records (it came from the matcher) and nil for PlatformA.
// The caller owns consumption bookkeeping; Fill only mutates the row.
func (fp *FillPolicy) Fill(record *models.SettlementRecord, row *models.LedgerRow, impliedRate *decimal.Decimal) error {
	if !row.IsBlank() {
		return errors.MatchError(errors.CodeRowConsumed, record.SourceID,
			fmt.Sprintf("row %d already carries target values", row.Index))
	}
	if row.Amount == nil {
		return errors.MatchError(errors.CodeNoMatch, record.SourceID,
			fmt.Sprintf("row %d has no parseable amount to validate against", row.Index))
	}

	effectiveRate, err := fp.effectiveRate(record, row, impliedRate)
	if err != nil {
		return err
	}

	fee := record.NetPayoutLocal.Sub(record.GrossReceivable)
	statedReference := models.RoundMoney(*row.Amount)
	computedReference := models.RoundMoney(record.NetPayoutLocal.Mul(effectiveRate))

	// Empty means the ledger's own figure agrees with the recomputation;
	// anything else is flagged for review, never silently accepted.
	validation := ""
	if !computedReference.Equal(statedReference) {
		validation = "false"
	}

	country := ""
	if record.Platform == models.PlatformB {
		country = fp.config.CountryCodes[record.Currency]
	}

	row.SetTarget(models.ColGrossSales, models.FormatMoney(record.GrossReceivable))
	row.SetTarget(models.ColPlatformFee, models.FormatMoney(fee))
	row.SetTarget(models.ColNetPayout, models.FormatMoney(record.NetPayoutLocal))
	row.SetTarget(models.ColFxRate, effectiveRate.String())
	row.SetTarget(models.ColStatedReference, models.FormatMoney(statedReference))
	row.SetTarget(models.ColComputedReference, models.FormatMoney(computedReference))
	row.SetTarget(models.ColValidation, validation)
	row.SetTarget(models.ColCountry, country)

	fp.logger.WithFields(logger.Fields{
		"record":             record.SourceID,
		"row":                row.Index,
		"fee":                models.FormatMoney(fee),
		"computed_reference": models.FormatMoney(computedReference),
		"validation_flag":    validation,
	}).Debug("Filled ledger row")

	return nil
}

// effectiveRate is the reference-per-local rate the payout is recomputed
// with: the platform's own reported rate for PlatformA, or the rate the
// matched row implies for PlatformB (signed, so refunds recompute correctly).
func (fp *FillPolicy) effectiveRate(record *models.SettlementRecord, row *models.LedgerRow, impliedRate *decimal.Decimal) (decimal.Decimal, error) {
	switch record.Platform {
	case models.PlatformA:
		if record.FxRate == nil {
			return decimal.Zero, errors.MatchError(errors.CodeNoMatch, record.SourceID,
				"platform A record carries no reported fx rate")
		}
		return *record.FxRate, nil

	case models.PlatformB:
		if impliedRate == nil {
			return decimal.Zero, errors.MatchError(errors.CodeNoMatch, record.SourceID,
				"platform B fill requires the matcher's implied rate")
		}
		if record.NetPayoutLocal.IsZero() {
			return decimal.Zero, errors.MatchError(errors.CodeNoMatch, record.SourceID,
				"cannot derive a rate for a zero net payout")
		}
		return row.Amount.Div(record.NetPayoutLocal), nil
	}

	return decimal.Zero, errors.InternalError(errors.CodeUnexpectedError, "fill",
		fmt.Errorf("unknown platform %s", record.Platform))
}
