package matcher

import (
	"fmt"
	"strings"
	"time"

	"settlement-reconciler/internal/models"
	"settlement-reconciler/pkg/logger"

	"github.com/shopspring/decimal"
)

// MatchingEngine applies the two matching policies to settlement records.
// The engine holds configuration only; all mutable run state (consumed rows,
// filled records) is passed in explicitly.
type MatchingEngine struct {
	Config *MatchingConfig

	edgeCases *EdgeCaseHandler
	logger    logger.Logger
}

// MatchOutcome is the result of matching one settlement record. Row and
// TableID are set only for Filled and AlreadyFilled outcomes; ImpliedRate is
// set only when the implied-rate policy selected the row.
type MatchOutcome struct {
	Record      *models.SettlementRecord
	Outcome     Outcome
	Policy      MatchPolicy
	Row         *models.LedgerRow
	TableID     string
	ImpliedRate *decimal.Decimal
	Reason      string
}

// String summarizes the outcome for logs
func (mo *MatchOutcome) String() string {
	location := "-"
	if mo.Row != nil {
		location = fmt.Sprintf("%s[%d]", mo.TableID, mo.Row.Index)
	}
	return fmt.Sprintf("MatchOutcome{Record: %s, %s via %s at %s: %s}",
		mo.Record.SourceID, mo.Outcome, mo.Policy, location, mo.Reason)
}

// NewMatchingEngine creates a matching engine with the given configuration
func NewMatchingEngine(config *MatchingConfig) *MatchingEngine {
	if config == nil {
		config = DefaultMatchingConfig()
	}
	return &MatchingEngine{
		Config:    config,
		edgeCases: NewEdgeCaseHandler(config),
		logger:    logger.GetGlobalLogger().WithComponent("matcher"),
	}
}

// MatchInTable matches one settlement record against one ledger table. The
// policy is selected by whether the record states its own reference-currency
// payout. The engine only reads state; consumption is the caller's move once
// the fill succeeds.
func (me *MatchingEngine) MatchInTable(record *models.SettlementRecord, index *LedgerIndex, state *TableState) *MatchOutcome {
	if record.ReferenceAmount != nil {
		return me.matchExactAmount(record, index, state)
	}
	return me.matchImpliedRate(record, index, state)
}

// MatchAcrossTables tries the tables in order and stops at the first terminal
// outcome. Filled, AlreadyFilled and Ambiguous are terminal; NoMatch moves on
// to the next table. A record no table could place comes back as NoMatch.
func (me *MatchingEngine) MatchAcrossTables(record *models.SettlementRecord, indexes []*LedgerIndex, states map[string]*TableState) *MatchOutcome {
	for _, index := range indexes {
		state := states[index.Table.ID]
		if state == nil {
			state = NewTableState()
			states[index.Table.ID] = state
		}

		outcome := me.MatchInTable(record, index, state)
		if outcome.Outcome != OutcomeNoMatch {
			return outcome
		}

		me.logger.WithFields(logger.Fields{
			"record": record.SourceID,
			"table":  index.Table.ID,
			"reason": outcome.Reason,
		}).Debug("No match in table, trying next")
	}

	return &MatchOutcome{
		Record:  record,
		Outcome: OutcomeNoMatch,
		Policy:  policyFor(record),
		Reason:  fmt.Sprintf("no eligible row in any of %d table(s)", len(indexes)),
	}
}

func policyFor(record *models.SettlementRecord) MatchPolicy {
	if record.ReferenceAmount != nil {
		return PolicyExactAmount
	}
	return PolicyImpliedRate
}

// matchExactAmount implements the exact-amount policy: candidate rows carry
// the platform+country tag and the record's stated reference amount within
// tolerance. Indistinguishable blank candidates are ambiguous; otherwise the
// blank row closest in date to the period end wins.
func (me *MatchingEngine) matchExactAmount(record *models.SettlementRecord, index *LedgerIndex, state *TableState) *MatchOutcome {
	outcome := &MatchOutcome{
		Record:  record,
		Policy:  PolicyExactAmount,
		TableID: index.Table.ID,
	}

	keyword := me.Config.KeywordForCurrency(record.Currency)

	var candidates []*models.LedgerRow
	for _, row := range index.RowsByAmount(*record.ReferenceAmount, me.Config.AmountTolerance) {
		if state.IsConsumed(row.Index) {
			continue
		}
		if !strings.Contains(row.Description, keyword) {
			continue
		}
		candidates = append(candidates, row)
	}

	if len(candidates) == 0 {
		outcome.Outcome = OutcomeNoMatch
		outcome.Reason = fmt.Sprintf("no row tagged %q carries %s within %s",
			keyword, record.ReferenceAmount.StringFixed(2), me.Config.AmountTolerance)
		return outcome
	}

	var blank []*models.LedgerRow
	for _, row := range candidates {
		if row.IsBlank() {
			blank = append(blank, row)
		}
	}

	// Amount-matching rows that already carry values mean an earlier run
	// reconciled this record; that is not a missing match.
	if len(blank) == 0 {
		outcome.Outcome = OutcomeAlreadyFilled
		outcome.Row = candidates[0]
		outcome.Reason = fmt.Sprintf("all %d amount-matching row(s) already filled", len(candidates))
		return outcome
	}

	if groups := me.edgeCases.GroupIndistinguishable(blank); len(groups) > 0 {
		outcome.Outcome = OutcomeAmbiguous
		outcome.Reason = fmt.Sprintf("indistinguishable blank candidates: %s", groups[0].String())
		me.logger.WithFields(logger.Fields{
			"record": record.SourceID,
			"table":  index.Table.ID,
			"groups": len(groups),
		}).Warn("Ambiguous match, refusing to write")
		return outcome
	}

	selected := me.selectByDateProximity(blank, record.PeriodEnd)
	outcome.Outcome = OutcomeFilled
	outcome.Row = selected
	if record.PeriodEnd == nil {
		outcome.Reason = "period end unknown, first blank candidate in table order"
	} else if selected.ParsedDate == nil {
		outcome.Reason = "selected candidate carries no parseable date"
	} else {
		outcome.Reason = fmt.Sprintf("date %s closest to period end %s",
			selected.ParsedDate.Format("2006-01-02"), record.PeriodEnd.Format("2006-01-02"))
	}
	return outcome
}

// selectByDateProximity picks the blank candidate closest in days to the
// period end. Rows without a parseable date sort last; ties keep the
// first-encountered row. With no period end the first candidate in table
// order wins.
func (me *MatchingEngine) selectByDateProximity(candidates []*models.LedgerRow, periodEnd *time.Time) *models.LedgerRow {
	if periodEnd == nil {
		return candidates[0]
	}

	best := candidates[0]
	bestDistance := dateDistance(best, *periodEnd)
	for _, row := range candidates[1:] {
		if distance := dateDistance(row, *periodEnd); distance < bestDistance {
			best = row
			bestDistance = distance
		}
	}
	return best
}

func dateDistance(row *models.LedgerRow, periodEnd time.Time) int {
	if row.ParsedDate == nil {
		return int(^uint(0) >> 1)
	}
	return models.DaysBetween(*row.ParsedDate, periodEnd)
}

// matchImpliedRate implements the implied-rate policy: candidates preferably
// carry the platform keyword, must sit inside the payout date window, and
// must imply a rate inside the currency's plausible band. The candidate whose
// implied rate is closest to the expected rate wins.
func (me *MatchingEngine) matchImpliedRate(record *models.SettlementRecord, index *LedgerIndex, state *TableState) *MatchOutcome {
	outcome := &MatchOutcome{
		Record:  record,
		Policy:  PolicyImpliedRate,
		TableID: index.Table.ID,
	}

	expectedRate, hasExpected := me.Config.ExpectedRate(record.Currency)
	band, hasBand := me.Config.Band(record.Currency)
	if !hasExpected || !hasBand {
		outcome.Outcome = OutcomeNoMatch
		outcome.Reason = fmt.Sprintf("no rate profile configured for currency %s", record.Currency)
		return outcome
	}

	pool := index.RowsByKeyword(me.Config.PlatformBKeyword, true)
	if len(pool) == 0 {
		// Keyword preference, not requirement: an untagged ledger still
		// gets the window and band filters.
		pool = index.ReferenceRows
	}

	var (
		candidates     []*models.MatchCandidate
		outsideWindow  int
		outOfBand      int
		unusableAmount int
	)
	for _, row := range pool {
		if state.IsConsumed(row.Index) {
			continue
		}

		if record.PeriodEnd != nil {
			if row.ParsedDate == nil {
				outsideWindow++
				continue
			}
			delta := models.DaysAfter(*record.PeriodEnd, *row.ParsedDate)
			if delta < 0 || delta > me.Config.MaxFutureDays {
				outsideWindow++
				continue
			}
		}

		if row.Amount == nil || row.Amount.IsZero() {
			unusableAmount++
			continue
		}

		impliedRate := record.NetPayoutLocal.Div(row.Amount.Abs())
		if !band.Contains(impliedRate) {
			outOfBand++
			continue
		}

		candidate := &models.MatchCandidate{Row: row, ImpliedRate: impliedRate}
		if record.PeriodEnd != nil && row.ParsedDate != nil {
			candidate.DateDistance = models.DaysBetween(*row.ParsedDate, *record.PeriodEnd)
		}
		candidates = append(candidates, candidate)
	}

	if len(candidates) == 0 {
		outcome.Outcome = OutcomeNoMatch
		outcome.Reason = fmt.Sprintf(
			"no candidate survived: %d outside payout window, %d rate out of band, %d without usable amount",
			outsideWindow, outOfBand, unusableAmount)
		return outcome
	}

	best := candidates[0]
	bestDelta := best.ImpliedRate.Sub(expectedRate).Abs()
	for _, candidate := range candidates[1:] {
		if delta := candidate.ImpliedRate.Sub(expectedRate).Abs(); delta.LessThan(bestDelta) {
			best = candidate
			bestDelta = delta
		}
	}

	outcome.Row = best.Row
	outcome.ImpliedRate = models.DecimalPtr(best.ImpliedRate)
	if !best.Row.IsBlank() {
		outcome.Outcome = OutcomeAlreadyFilled
		outcome.Reason = fmt.Sprintf("best candidate row %d already filled", best.Row.Index)
		return outcome
	}

	outcome.Outcome = OutcomeFilled
	outcome.Reason = fmt.Sprintf("implied rate %s closest to expected %s for %s",
		best.ImpliedRate.Round(4), expectedRate, record.Currency)
	return outcome
}
