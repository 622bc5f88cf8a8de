// Statement fixture generator.
//
// Writes marketplace statement text files in both supported layouts, as they
// look after PDF text extraction. Run from this directory:
//
//	go run statement_generator.go -count=5 -platform=both -output-dir=../generated
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
)

type statementSpec struct {
	currency string
	fxRate   float64
	grossMin float64
	grossMax float64
}

var platformASpecs = []statementSpec{
	{currency: "PHP", fxRate: 0.0175, grossMin: 5000, grossMax: 90000},
	{currency: "MYR", fxRate: 0.22, grossMin: 500, grossMax: 8000},
	{currency: "THB", fxRate: 0.03, grossMin: 3000, grossMax: 60000},
	{currency: "SGD", fxRate: 0.76, grossMin: 200, grossMax: 3000},
}

var platformBSpecs = []statementSpec{
	{currency: "VND", grossMin: 5000000, grossMax: 80000000},
	{currency: "PHP", grossMin: 5000, grossMax: 90000},
	{currency: "MYR", grossMin: 500, grossMax: 8000},
}

func main() {
	var (
		count     = flag.Int("count", 5, "Number of statements per platform")
		platform  = flag.String("platform", "both", "Platform to generate: a, b, or both")
		outputDir = flag.String("output-dir", "../generated", "Output directory")
		seed      = flag.Int64("seed", 42, "Random seed for reproducible fixtures")
	)
	flag.Parse()

	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	rng := rand.New(rand.NewSource(*seed))

	written := 0
	if *platform == "a" || *platform == "both" {
		for i := 0; i < *count; i++ {
			path := filepath.Join(*outputDir, fmt.Sprintf("statement_a_%03d.txt", i+1))
			if err := os.WriteFile(path, []byte(generatePlatformA(rng, i)), 0644); err != nil {
				log.Fatalf("Failed to write %s: %v", path, err)
			}
			written++
		}
	}
	if *platform == "b" || *platform == "both" {
		for i := 0; i < *count; i++ {
			path := filepath.Join(*outputDir, fmt.Sprintf("statement_b_%03d.txt", i+1))
			if err := os.WriteFile(path, []byte(generatePlatformB(rng, i)), 0644); err != nil {
				log.Fatalf("Failed to write %s: %v", path, err)
			}
			written++
		}
	}

	fmt.Printf("Wrote %d statement fixtures to %s\n", written, *outputDir)
}

func generatePlatformA(rng *rand.Rand, index int) string {
	spec := platformASpecs[index%len(platformASpecs)]
	periodEnd := time.Date(2025, 4, 30, 0, 0, 0, 0, time.UTC).AddDate(0, -(index / len(platformASpecs)), 0)

	gross := randomAmount(rng, spec.grossMin, spec.grossMax)
	fee := gross.Mul(decimal.NewFromFloat(0.02 + rng.Float64()*0.03)).Round(2).Neg()
	net := gross.Add(fee)
	fx := decimal.NewFromFloat(spec.fxRate)
	reference := net.Mul(fx).Round(2)

	return fmt.Sprintf(`Marketplace-A Seller Center
Statement for %s

Payout Summary
Amount (%s)
Total Released %s
Fees and Charges %s
Net Payout %s
FX Rate %s
Paid Out %s

Adjustment Details
Campaign rebate %s
Shipping subsidy %s
`,
		periodEnd.Format("2006-01-02"),
		spec.currency,
		formatThousands(gross),
		formatThousands(fee),
		formatThousands(net),
		fx.String(),
		formatThousands(reference),
		formatThousands(randomAmount(rng, 1, 50)),
		formatThousands(randomAmount(rng, 1, 50)),
	)
}

func generatePlatformB(rng *rand.Rand, index int) string {
	spec := platformBSpecs[index%len(platformBSpecs)]
	periodEnd := time.Date(2025, 4, 30, 0, 0, 0, 0, time.UTC).AddDate(0, -(index / len(platformBSpecs)), 0)
	periodStart := time.Date(periodEnd.Year(), periodEnd.Month(), 1, 0, 0, 0, 0, time.UTC)

	gross := randomAmount(rng, spec.grossMin, spec.grossMax)
	fee := gross.Mul(decimal.NewFromFloat(0.05 + rng.Float64()*0.05)).Round(2)
	net := gross.Sub(fee)

	return fmt.Sprintf(`Marketplace-B Seller Payouts
Settlement period: %s to %s
Amount (%s)

Released Amount %s
Charges -%s
Total Settlement %s
`,
		periodStart.Format("2/1/2006"),
		periodEnd.Format("2/1/2006"),
		spec.currency,
		formatThousands(gross),
		formatThousands(fee),
		formatThousands(net),
	)
}

func randomAmount(rng *rand.Rand, min, max float64) decimal.Decimal {
	return decimal.NewFromFloat(min + rng.Float64()*(max-min)).Round(2)
}

// formatThousands renders an amount with comma grouping, the way extracted
// statement text carries it
func formatThousands(d decimal.Decimal) string {
	s := d.StringFixed(2)
	negative := false
	if s[0] == '-' {
		negative = true
		s = s[1:]
	}

	dot := len(s) - 3
	intPart := s[:dot]
	out := ""
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			out += ","
		}
		out += string(r)
	}
	if negative {
		out = "-" + out
	}
	return out + s[dot:]
}
