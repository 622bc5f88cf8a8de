// Scenario fixture generator.
//
// Writes a coherent reconciliation dataset: statement text files plus a
// ledger CSV whose rows actually pay those statements out, with noise rows
// and (optionally) a sub-threshold period pair that exercises merging.
// Run from this directory:
//
//	go run scenario_generator.go -scenario=all -output-dir=../generated
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
)

type ledgerRow struct {
	date        time.Time
	description string
	amount      decimal.Decimal
	currency    string
}

type scenario struct {
	name     string
	describe string
	generate func(dir string) ([]ledgerRow, error)
}

var scenarios = []scenario{
	{
		name:     "matched",
		describe: "One statement per platform, each with a paying ledger row",
		generate: generateMatchedScenario,
	},
	{
		name:     "merged",
		describe: "Two small consecutive periods paid by a single ledger row",
		generate: generateMergedScenario,
	},
	{
		name:     "unmatched",
		describe: "A statement with no plausible ledger row",
		generate: generateUnmatchedScenario,
	},
}

func main() {
	var (
		name      = flag.String("scenario", "all", "Scenario to generate: matched, merged, unmatched, or all")
		outputDir = flag.String("output-dir", "../generated", "Output directory")
		list      = flag.Bool("list", false, "List available scenarios")
	)
	flag.Parse()

	if *list {
		for _, s := range scenarios {
			fmt.Printf("  %-10s %s\n", s.name, s.describe)
		}
		return
	}

	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	var rows []ledgerRow
	matched := false
	for _, s := range scenarios {
		if *name != "all" && *name != s.name {
			continue
		}
		matched = true
		scenarioRows, err := s.generate(*outputDir)
		if err != nil {
			log.Fatalf("Scenario %s failed: %v", s.name, err)
		}
		rows = append(rows, scenarioRows...)
	}
	if !matched {
		log.Fatalf("Unknown scenario %q, use -list to see the options", *name)
	}

	rows = append(rows, noiseRows()...)

	ledgerPath := filepath.Join(*outputDir, "ledger.csv")
	if err := writeLedger(ledgerPath, rows); err != nil {
		log.Fatalf("Failed to write ledger: %v", err)
	}

	fmt.Printf("Wrote %s with %d rows\n", ledgerPath, len(rows))
}

// generateMatchedScenario emits one statement per platform together with the
// ledger rows that pay them
func generateMatchedScenario(dir string) ([]ledgerRow, error) {
	periodEnd := time.Date(2025, 4, 30, 0, 0, 0, 0, time.UTC)

	// PlatformA in PHP: the ledger row carries the statement's own
	// reference amount and the per-country tag.
	gross := decimal.NewFromFloat(48000.00)
	fee := decimal.NewFromFloat(-960.00)
	net := gross.Add(fee)
	fx := decimal.NewFromFloat(0.0175)
	reference := net.Mul(fx).Round(2)

	statementA := fmt.Sprintf(`Marketplace-A Seller Center
Statement for %s

Payout Summary
Amount (PHP)
Total Released 48,000.00
Fees and Charges -960.00
Net Payout 47,040.00
FX Rate 0.0175
Paid Out %s

Adjustment Details
Campaign rebate 25.00
`, periodEnd.Format("2006-01-02"), reference.StringFixed(2))

	if err := os.WriteFile(filepath.Join(dir, "matched_a.txt"), []byte(statementA), 0644); err != nil {
		return nil, err
	}

	// PlatformB in VND: the ledger row's implied rate sits on the nominal
	// 26000 VND per USD.
	netB := decimal.NewFromFloat(52000000.00)
	payout := netB.Div(decimal.NewFromFloat(26000)).Round(2)

	statementB := fmt.Sprintf(`Marketplace-B Seller Payouts
Settlement period: 1/4/2025 to %s
Amount (VND)

Released Amount 57,000,000.00
Charges -5,000,000.00
Total Settlement 52,000,000.00
`, periodEnd.Format("2/1/2006"))

	if err := os.WriteFile(filepath.Join(dir, "matched_b.txt"), []byte(statementB), 0644); err != nil {
		return nil, err
	}

	return []ledgerRow{
		{date: periodEnd.AddDate(0, 0, 3), description: "MKTA PH settlement batch", amount: reference, currency: "USD"},
		{date: periodEnd.AddDate(0, 0, 5), description: "MKTB payout remittance", amount: payout, currency: "USD"},
	}, nil
}

// generateMergedScenario emits two consecutive small PlatformB periods whose
// combined value is paid by one ledger row
func generateMergedScenario(dir string) ([]ledgerRow, error) {
	// Each period alone estimates below one reference unit; together they
	// clear the threshold and stand as one mergeable record.
	nets := []decimal.Decimal{
		decimal.NewFromFloat(12000.00),
		decimal.NewFromFloat(18000.00),
	}
	ends := []time.Time{
		time.Date(2025, 5, 15, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 5, 31, 0, 0, 0, 0, time.UTC),
	}

	combined := decimal.Zero
	for i, net := range nets {
		combined = combined.Add(net)
		start := time.Date(ends[i].Year(), ends[i].Month(), 1, 0, 0, 0, 0, time.UTC)
		if i == 1 {
			start = ends[0].AddDate(0, 0, 1)
		}
		statement := fmt.Sprintf(`Marketplace-B Seller Payouts
Settlement period: %s to %s
Amount (VND)

Total Settlement %s
`, start.Format("2/1/2006"), ends[i].Format("2/1/2006"), formatThousandsFixed(net))

		path := filepath.Join(dir, fmt.Sprintf("merged_b_%d.txt", i+1))
		if err := os.WriteFile(path, []byte(statement), 0644); err != nil {
			return nil, err
		}
	}

	payout := combined.Div(decimal.NewFromFloat(26000)).Round(2)
	return []ledgerRow{
		{date: ends[1].AddDate(0, 0, 4), description: "MKTB consolidated payout", amount: payout, currency: "USD"},
	}, nil
}

// generateUnmatchedScenario emits a statement the ledger never pays
func generateUnmatchedScenario(dir string) ([]ledgerRow, error) {
	statement := `Marketplace-A Seller Center
Statement for 2025-06-30

Payout Summary
Amount (THB)
Total Released 30,000.00
Fees and Charges -600.00
Net Payout 29,400.00
FX Rate 0.03
Paid Out 882.00

Adjustment Details
Campaign rebate 10.00
`
	if err := os.WriteFile(filepath.Join(dir, "unmatched_a.txt"), []byte(statement), 0644); err != nil {
		return nil, err
	}
	return nil, nil
}

// noiseRows are ordinary bank activity that must never match anything
func noiseRows() []ledgerRow {
	return []ledgerRow{
		{date: time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC), description: "Office supplies", amount: decimal.NewFromFloat(42.10), currency: "USD"},
		{date: time.Date(2025, 5, 2, 0, 0, 0, 0, time.UTC), description: "Hosting invoice", amount: decimal.NewFromFloat(120.00), currency: "USD"},
		{date: time.Date(2025, 5, 20, 0, 0, 0, 0, time.UTC), description: "Local transfer", amount: decimal.NewFromFloat(310.75), currency: "EUR"},
	}
}

func writeLedger(path string, rows []ledgerRow) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"Date", "Description", "Amount", "Currency"}); err != nil {
		return err
	}
	for _, row := range rows {
		record := []string{
			row.date.Format("2/1/2006"),
			row.description,
			row.amount.StringFixed(2),
			row.currency,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	return writer.Error()
}

func formatThousandsFixed(d decimal.Decimal) string {
	s := d.StringFixed(2)
	dot := len(s) - 3
	intPart := s[:dot]
	out := ""
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			out += ","
		}
		out += string(r)
	}
	return out + s[dot:]
}
