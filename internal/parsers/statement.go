package parsers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"settlement-reconciler/internal/models"
	"settlement-reconciler/pkg/errors"
	"settlement-reconciler/pkg/logger"

	"github.com/shopspring/decimal"
)

// Numeric token grammar shared by both statement layouts: optional sign,
// digits with optional thousand separators, optional fraction. A trailing
// lone decimal point is a known extraction artifact and is trimmed before
// decimal parsing.
var numericTokenPattern = regexp.MustCompile(`-?\d[\d,]*\.?\d*`)

var (
	isoDatePattern   = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
	slashDatePattern = regexp.MustCompile(`\d{1,2}/\d{1,2}/\d{4}`)
	dateRangePattern = regexp.MustCompile(`(\d{1,2}/\d{1,2}/\d{4})\s*(?:to|-)\s*(\d{1,2}/\d{1,2}/\d{4})`)
)

// StatementParser turns raw statement text into settlement records
type StatementParser struct {
	config           *StatementConfig
	currencyPatterns []*regexp.Regexp
	logger           logger.Logger
}

// NewStatementParser creates a parser for marketplace statement documents
func NewStatementParser(config *StatementConfig) (*StatementParser, error) {
	if config == nil {
		config = DefaultStatementConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "statement_config", "", err)
	}

	patterns := make([]*regexp.Regexp, 0, len(config.CurrencyLabels))
	for _, label := range config.CurrencyLabels {
		patterns = append(patterns, regexp.MustCompile(
			regexp.QuoteMeta(label)+`\s*\(([A-Za-z]{3})\)`))
	}

	log := logger.GetGlobalLogger().WithComponent("statement_parser")
	log.WithFields(logger.Fields{
		"platform_a_marker": config.PlatformAMarker,
		"platform_b_marker": config.PlatformBMarker,
		"currency_labels":   config.CurrencyLabels,
	}).Debug("Created statement parser")

	return &StatementParser{
		config:           config,
		currencyPatterns: patterns,
		logger:           log,
	}, nil
}

// ParseDocument parses one statement document into a settlement record.
// sourceID identifies the document in errors, logs and merge provenance.
func (sp *StatementParser) ParseDocument(sourceID, text string) (*models.SettlementRecord, error) {
	log := sp.logger.WithField("document", sourceID)

	platform, err := sp.detectPlatform(sourceID, text)
	if err != nil {
		return nil, err
	}
	log = log.WithField("platform", platform.String())

	currency, err := sp.extractCurrency(sourceID, text)
	if err != nil {
		return nil, err
	}

	var record *models.SettlementRecord
	switch platform {
	case models.PlatformA:
		record, err = sp.parsePlatformA(sourceID, currency, text)
	case models.PlatformB:
		record, err = sp.parsePlatformB(sourceID, currency, text)
	}
	if err != nil {
		return nil, err
	}

	record.PeriodEnd = sp.extractPeriodEnd(platform, text)

	if err := record.Validate(); err != nil {
		return nil, errors.DocumentError(errors.CodeInvalidData, sourceID, "parsed record failed validation", err)
	}

	log.WithFields(logger.Fields{
		"currency":   record.Currency,
		"net_payout": record.NetPayoutLocal.StringFixed(2),
		"period_end": formatPeriodEnd(record.PeriodEnd),
	}).Debug("Parsed statement document")

	return record, nil
}

// detectPlatform identifies the statement layout by marker keywords. The
// PlatformB marker is checked first.
func (sp *StatementParser) detectPlatform(sourceID, text string) (models.Platform, error) {
	if strings.Contains(text, sp.config.PlatformBMarker) {
		return models.PlatformB, nil
	}
	if strings.Contains(text, sp.config.PlatformAMarker) {
		return models.PlatformA, nil
	}

	return "", errors.DocumentError(
		errors.CodeUnrecognizedFormat,
		sourceID,
		"no known platform marker present",
		nil,
	).WithSuggestion("Check that the document is a supported marketplace settlement statement")
}

// extractCurrency finds the "<label> (CCY)" declaration, trying the configured
// labels in order
func (sp *StatementParser) extractCurrency(sourceID, text string) (string, error) {
	for _, pattern := range sp.currencyPatterns {
		if m := pattern.FindStringSubmatch(text); len(m) == 2 {
			return strings.ToUpper(m[1]), nil
		}
	}

	return "", errors.DocumentError(
		errors.CodeMissingField,
		sourceID,
		"no currency declaration found",
		nil,
	).WithSuggestion(fmt.Sprintf("Expected a '%s (CCY)' declaration in the document", sp.config.CurrencyLabels[0]))
}

// parsePlatformA extracts the four positional figures from the summary section:
// gross first, then net payout, fx rate and reference amount as the last three.
func (sp *StatementParser) parsePlatformA(sourceID, currency, text string) (*models.SettlementRecord, error) {
	section := text
	if i := strings.Index(section, sp.config.PlatformAMarker); i >= 0 {
		section = section[i+len(sp.config.PlatformAMarker):]
	}
	if j := strings.Index(section, sp.config.SummaryEndMarker); j >= 0 {
		section = section[:j]
	}

	amounts := sp.scanAmounts(section)
	if len(amounts) < 4 {
		return nil, errors.DocumentError(
			errors.CodeMissingField,
			sourceID,
			fmt.Sprintf("summary section yields %d numeric values, need at least 4", len(amounts)),
			nil,
		).WithSuggestion("The summary must carry gross, net payout, fx rate and reference amount")
	}

	record := models.NewSettlementRecord(sourceID, models.PlatformA, currency,
		amounts[0], amounts[len(amounts)-3])
	record.FxRate = models.DecimalPtr(amounts[len(amounts)-2])
	record.ReferenceAmount = models.DecimalPtr(models.RoundMoney(amounts[len(amounts)-1]))
	return record, nil
}

// parsePlatformB extracts labelled figures. The gross label is structurally
// optional (pure-fee periods omit it); the net label is required.
func (sp *StatementParser) parsePlatformB(sourceID, currency, text string) (*models.SettlementRecord, error) {
	gross := decimal.Zero
	if v, ok := sp.labelledAmount(text, sp.config.GrossLabel); ok {
		gross = v
	}

	net, ok := sp.labelledAmount(text, sp.config.NetLabel)
	if !ok {
		return nil, errors.DocumentError(
			errors.CodeMissingField,
			sourceID,
			fmt.Sprintf("no numeric value follows the '%s' label", sp.config.NetLabel),
			nil,
		).WithSuggestion("Every settlement statement must state its net settlement figure")
	}

	return models.NewSettlementRecord(sourceID, models.PlatformB, currency, gross, net), nil
}

// scanAmounts extracts every parseable numeric token from a text section,
// in order of appearance
func (sp *StatementParser) scanAmounts(section string) []decimal.Decimal {
	tokens := numericTokenPattern.FindAllString(section, -1)
	amounts := make([]decimal.Decimal, 0, len(tokens))
	for _, token := range tokens {
		if d, err := parseAmountToken(token); err == nil {
			amounts = append(amounts, d)
		}
	}
	return amounts
}

// labelledAmount returns the first numeric token following an occurrence of
// label. Occurrences are tried in order; one that is not followed by a numeric
// token within the search window (a bare heading) is skipped.
func (sp *StatementParser) labelledAmount(text, label string) (decimal.Decimal, bool) {
	if strings.TrimSpace(label) == "" {
		return decimal.Zero, false
	}

	search := text
	for {
		i := strings.Index(search, label)
		if i < 0 {
			return decimal.Zero, false
		}
		rest := search[i+len(label):]

		window := rest
		if len(window) > 120 {
			window = window[:120]
		}
		if token := numericTokenPattern.FindString(window); token != "" {
			if d, err := parseAmountToken(token); err == nil {
				return d, true
			}
		}

		search = rest
	}
}

// parseAmountToken converts a matched numeric token into a decimal
func parseAmountToken(token string) (decimal.Decimal, error) {
	cleaned := strings.ReplaceAll(token, ",", "")
	cleaned = strings.TrimSuffix(cleaned, ".")
	return decimal.NewFromString(cleaned)
}

// extractPeriodEnd pulls the settlement period end date out of the document.
// Failure to find or parse a date is not an error: the record simply carries
// no period end and downstream date logic degrades gracefully.
func (sp *StatementParser) extractPeriodEnd(platform models.Platform, text string) *time.Time {
	switch platform {
	case models.PlatformA:
		idx := strings.Index(text, sp.config.PeriodPrefix)
		if idx < 0 {
			return nil
		}
		tail := text[idx+len(sp.config.PeriodPrefix):]

		if m := isoDatePattern.FindString(tail); m != "" {
			if t, err := time.Parse("2006-01-02", m); err == nil {
				return &t
			}
		}
		if m := slashDatePattern.FindString(tail); m != "" {
			if t, err := models.ParseDayFirstDate(m); err == nil {
				return &t
			}
		}

	case models.PlatformB:
		if m := dateRangePattern.FindStringSubmatch(text); len(m) == 3 {
			if t, err := models.ParseDayFirstDate(m[2]); err == nil {
				return &t
			}
		}
	}

	return nil
}

// ParseFile reads and parses a single statement document from disk
func (sp *StatementParser) ParseFile(ctx context.Context, filePath string) (*models.SettlementRecord, error) {
	select {
	case <-ctx.Done():
		return nil, errors.InternalError(errors.CodeUnexpectedError, "statement_parsing", fmt.Errorf("parsing cancelled"))
	default:
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileError(errors.CodeFileNotFound, filePath, err)
		}
		if os.IsPermission(err) {
			return nil, errors.FileError(errors.CodeFilePermission, filePath, err)
		}
		return nil, errors.FileError(errors.CodeFileCorrupted, filePath, err)
	}

	if !utf8.Valid(data) {
		return nil, errors.EncodingError(filePath, 0, fmt.Errorf("invalid UTF-8 encoding detected"))
	}

	return sp.ParseDocument(filepath.Base(filePath), string(data))
}

// ParseFiles parses a batch of statement documents with per-document error
// isolation: a document that fails is reported and skipped, the batch continues
func (sp *StatementParser) ParseFiles(ctx context.Context, paths []string) ([]*models.SettlementRecord, []*errors.ReconcilerError) {
	records := make([]*models.SettlementRecord, 0, len(paths))
	var failures []*errors.ReconcilerError

	tracker := logger.NewProgressTracker(logger.ProgressConfig{
		Operation: "parse_statements",
		Total:     int64(len(paths)),
		Logger:    sp.logger,
	})

	for _, path := range paths {
		record, err := sp.ParseFile(ctx, path)
		if err != nil {
			recErr, _ := errors.AsReconcilerError(err)
			if recErr == nil {
				recErr = errors.WrapIfNeeded(err, errors.CategoryParse, errors.CodeInvalidData, "statement parsing failed")
			}
			failures = append(failures, recErr)
			sp.logger.WithError(err).WithField("document", filepath.Base(path)).Warn("Skipping statement document")
			tracker.Increment()
			continue
		}

		records = append(records, record)
		tracker.Increment()
	}

	tracker.Complete()
	return records, failures
}

func formatPeriodEnd(t *time.Time) string {
	if t == nil {
		return "unknown"
	}
	return t.Format("2006-01-02")
}
