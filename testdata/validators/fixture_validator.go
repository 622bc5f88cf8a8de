// Fixture validator.
//
// Checks generated fixtures with the real parsers: every statement text file
// must parse into a settlement record and the ledger CSV must stream through
// with its required columns and clean rows. Run from this directory:
//
//	go run fixture_validator.go -data-dir=../generated
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"settlement-reconciler/internal/models"
	"settlement-reconciler/internal/parsers"
)

func main() {
	var (
		dataDir = flag.String("data-dir", "../generated", "Directory containing generated fixtures")
		verbose = flag.Bool("verbose", false, "Verbose output")
		strict  = flag.Bool("strict", false, "Fail on row-level defects, not just structural errors")
	)
	flag.Parse()

	ctx := context.Background()
	failures := 0

	statements, ledgers, err := collectFixtures(*dataDir)
	if err != nil {
		log.Fatalf("Failed to scan %s: %v", *dataDir, err)
	}
	if len(statements) == 0 && len(ledgers) == 0 {
		log.Fatalf("No fixtures found in %s, run the generators first", *dataDir)
	}

	fmt.Printf("Validating %d statements and %d ledgers in %s\n", len(statements), len(ledgers), *dataDir)

	statementParser, err := parsers.NewStatementParser(nil)
	if err != nil {
		log.Fatalf("Failed to create statement parser: %v", err)
	}

	for _, path := range statements {
		record, err := statementParser.ParseFile(ctx, path)
		if err != nil {
			fmt.Printf("FAIL %s: %v\n", filepath.Base(path), err)
			failures++
			continue
		}
		if *verbose {
			fmt.Printf("ok   %s: platform=%s currency=%s net=%s\n",
				filepath.Base(path), record.Platform, record.Currency, record.NetPayoutLocal)
		}
	}

	streamParser, err := parsers.NewStreamingLedgerParser(nil, nil)
	if err != nil {
		log.Fatalf("Failed to create ledger parser: %v", err)
	}

	for _, path := range ledgers {
		rows := 0
		stats, err := streamParser.StreamCSV(ctx, path,
			func(_ string, batch []*models.LedgerRow) error {
				rows += len(batch)
				return nil
			}, nil)
		if err != nil {
			fmt.Printf("FAIL %s: %v\n", filepath.Base(path), err)
			failures++
			continue
		}
		if *strict && stats.HasErrors() {
			fmt.Printf("FAIL %s: %d defective rows\n", filepath.Base(path), stats.ErrorCount)
			for _, sample := range stats.GetSampleErrors(5) {
				fmt.Printf("     %s\n", sample)
			}
			failures++
			continue
		}
		if *verbose {
			fmt.Printf("ok   %s: %d rows, %s\n", filepath.Base(path), rows, stats.String())
		}
	}

	if failures > 0 {
		fmt.Printf("\n%d fixture(s) failed validation\n", failures)
		os.Exit(1)
	}
	fmt.Println("All fixtures valid")
}

// collectFixtures splits the data directory into statement text files and
// ledger CSV files
func collectFixtures(dir string) (statements, ledgers []string, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, err
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".txt":
			statements = append(statements, path)
		case ".csv":
			if strings.HasSuffix(entry.Name(), "_filled.csv") || entry.Name() == "reconciliation_log.csv" {
				continue
			}
			ledgers = append(ledgers, path)
		}
	}
	return statements, ledgers, nil
}
