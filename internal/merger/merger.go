// Package merger combines consecutive low-value settlement periods so that
// every record handed to matching is large enough to plausibly appear in the
// ledger on its own. Only PlatformB periods are merged; PlatformA statements
// carry their own reference-currency payout and pass through untouched.
package merger

import (
	"fmt"
	"sort"
	"strings"

	"settlement-reconciler/internal/models"
	"settlement-reconciler/pkg/errors"
	"settlement-reconciler/pkg/logger"

	"github.com/shopspring/decimal"
)

// Config holds the merge threshold and the nominal rates used to estimate a
// period's reference-currency value. The estimate only decides whether to
// merge; final matching never uses it.
type Config struct {
	// Threshold is the minimum estimated reference-currency value a record
	// must reach to stand alone.
	Threshold decimal.Decimal `json:"threshold"`

	// NominalRates maps a currency to its rough local-per-reference rate.
	// Currencies without an entry pass through unmerged.
	NominalRates map[string]decimal.Decimal `json:"nominal_rates"`
}

// DefaultConfig returns the standard merge settings: a one-unit threshold and
// the nominal rates for the supported settlement currencies
func DefaultConfig() *Config {
	return &Config{
		Threshold: decimal.NewFromInt(1),
		NominalRates: map[string]decimal.Decimal{
			"PHP": decimal.NewFromFloat(57.0),
			"MYR": decimal.NewFromFloat(4.5),
			"THB": decimal.NewFromFloat(33.0),
			"SGD": decimal.NewFromFloat(1.32),
			"VND": decimal.NewFromFloat(26000.0),
		},
	}
}

// Validate checks if the merger configuration is valid
func (c *Config) Validate() error {
	if c.Threshold.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("merge threshold must be positive, got %s", c.Threshold)
	}
	for currency, rate := range c.NominalRates {
		if rate.LessThanOrEqual(decimal.Zero) {
			return fmt.Errorf("nominal rate for %s must be positive, got %s", currency, rate)
		}
	}
	return nil
}

// Clone returns a deep copy of the configuration
func (c *Config) Clone() *Config {
	out := &Config{Threshold: c.Threshold}
	if c.NominalRates != nil {
		out.NominalRates = make(map[string]decimal.Decimal, len(c.NominalRates))
		for k, v := range c.NominalRates {
			out.NominalRates[k] = v
		}
	}
	return out
}

// Merger implements the forward-merge pass over PlatformB settlement periods
type Merger struct {
	config *Config
	logger logger.Logger
}

// New creates a merger with the given configuration
func New(config *Config) (*Merger, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "merger_config", "", err)
	}
	return &Merger{
		config: config,
		logger: logger.GetGlobalLogger().WithComponent("merger"),
	}, nil
}

// MergeRecords returns the run's matchable record set: PlatformA records
// unchanged in input order, followed by the merged PlatformB sequence. Every
// input record is represented in exactly one output record.
func (m *Merger) MergeRecords(records []*models.SettlementRecord) []*models.SettlementRecord {
	out := make([]*models.SettlementRecord, 0, len(records))
	var platformB []*models.SettlementRecord

	for _, record := range records {
		if record.Platform == models.PlatformB {
			platformB = append(platformB, record)
		} else {
			out = append(out, record)
		}
	}

	return append(out, m.mergePlatformB(platformB)...)
}

// mergePlatformB walks the deterministically sorted periods, accumulating
// sub-threshold runs of the same currency into single records
func (m *Merger) mergePlatformB(records []*models.SettlementRecord) []*models.SettlementRecord {
	if len(records) == 0 {
		return nil
	}

	sorted := make([]*models.SettlementRecord, len(records))
	copy(sorted, records)
	sortForMerge(sorted)

	var out []*models.SettlementRecord
	for i := 0; i < len(sorted); {
		record := sorted[i]

		rate, ok := m.config.NominalRates[record.Currency]
		if !ok {
			m.logger.WithFields(logger.Fields{
				"record":   record.SourceID,
				"currency": record.Currency,
			}).Warn("No nominal rate for currency, passing period through unmerged")
			out = append(out, record)
			i++
			continue
		}

		if m.clearsThreshold(record.NetPayoutLocal, rate) {
			out = append(out, record)
			i++
			continue
		}

		merged, consumed := m.accumulate(sorted, i, rate)
		out = append(out, merged)
		i += consumed
	}

	return out
}

// accumulate merges forward from position start until the running estimate
// clears the threshold or the currency changes. A trailing remainder that
// never clears is still emitted, merged as far as possible.
func (m *Merger) accumulate(sorted []*models.SettlementRecord, start int, rate decimal.Decimal) (*models.SettlementRecord, int) {
	first := sorted[start]

	net := first.NetPayoutLocal
	gross := first.GrossReceivable
	periodEnd := first.PeriodEnd
	mergedFrom := []string{first.SourceID}

	end := start + 1
	for end < len(sorted) && !m.clearsThreshold(net, rate) {
		next := sorted[end]
		if next.Currency != first.Currency {
			break
		}

		net = net.Add(next.NetPayoutLocal)
		gross = gross.Add(next.GrossReceivable)
		if next.PeriodEnd != nil {
			periodEnd = next.PeriodEnd
		}
		mergedFrom = append(mergedFrom, next.SourceID)
		end++
	}

	merged := models.NewSettlementRecord(
		strings.Join(mergedFrom, "+"),
		models.PlatformB,
		first.Currency,
		gross,
		net,
	)
	merged.PeriodEnd = periodEnd
	merged.MergedFrom = mergedFrom

	m.logger.WithFields(logger.Fields{
		"record":     merged.SourceID,
		"currency":   merged.Currency,
		"net_payout": merged.NetPayoutLocal.StringFixed(2),
		"periods":    len(mergedFrom),
	}).Debug("Merged sub-threshold settlement periods")

	return merged, end - start
}

func (m *Merger) clearsThreshold(netPayout, rate decimal.Decimal) bool {
	return netPayout.Div(rate).GreaterThanOrEqual(m.config.Threshold)
}

// sortForMerge orders records by (currency, period end ascending with nil
// first, source id) so merge groups are deterministic
func sortForMerge(records []*models.SettlementRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.Currency != b.Currency {
			return a.Currency < b.Currency
		}
		switch {
		case a.PeriodEnd == nil && b.PeriodEnd != nil:
			return true
		case a.PeriodEnd != nil && b.PeriodEnd == nil:
			return false
		case a.PeriodEnd != nil && b.PeriodEnd != nil && !a.PeriodEnd.Equal(*b.PeriodEnd):
			return a.PeriodEnd.Before(*b.PeriodEnd)
		}
		return a.SourceID < b.SourceID
	})
}
