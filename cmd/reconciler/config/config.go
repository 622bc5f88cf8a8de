// Package config builds component configurations from CLI inputs.
package config

import (
	"fmt"

	"settlement-reconciler/internal/matcher"
	"settlement-reconciler/internal/reconciler"
	"settlement-reconciler/internal/reporter"

	"github.com/shopspring/decimal"
)

// RunOverrides are the CLI-level knobs applied on top of a matching profile
type RunOverrides struct {
	// Profile selects a matching preset: default, strict or relaxed.
	Profile string

	// ReferenceCurrency overrides the candidate-row currency when non-empty.
	ReferenceCurrency string

	// AmountTolerance overrides the exact-amount tolerance when >= 0.
	AmountTolerance float64

	// MaxFutureDays overrides the settlement window when >= 0.
	MaxFutureDays int
}

// DefaultRunOverrides returns overrides that leave the profile untouched
func DefaultRunOverrides() *RunOverrides {
	return &RunOverrides{
		Profile:         "default",
		AmountTolerance: -1,
		MaxFutureDays:   -1,
	}
}

// MatchingProfiles lists the supported matching presets
func MatchingProfiles() []string {
	return []string{"default", "strict", "relaxed"}
}

// CreateMatchingConfig builds a matching configuration from a profile name
// and CLI overrides
func CreateMatchingConfig(overrides *RunOverrides) (*matcher.MatchingConfig, error) {
	if overrides == nil {
		overrides = DefaultRunOverrides()
	}

	var config *matcher.MatchingConfig
	switch overrides.Profile {
	case "", "default":
		config = matcher.DefaultMatchingConfig()
	case "strict":
		config = matcher.StrictMatchingConfig()
	case "relaxed":
		config = matcher.RelaxedMatchingConfig()
	default:
		return nil, fmt.Errorf("unknown matching profile %q, valid profiles: default, strict, relaxed", overrides.Profile)
	}

	if overrides.ReferenceCurrency != "" {
		config.ReferenceCurrency = overrides.ReferenceCurrency
	}
	if overrides.AmountTolerance >= 0 {
		config.AmountTolerance = decimal.NewFromFloat(overrides.AmountTolerance)
	}
	if overrides.MaxFutureDays >= 0 {
		config.MaxFutureDays = overrides.MaxFutureDays
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid matching configuration: %w", err)
	}

	return config, nil
}

// CreateRunConfig builds the full pipeline configuration
func CreateRunConfig(overrides *RunOverrides) (*reconciler.Config, error) {
	matchingConfig, err := CreateMatchingConfig(overrides)
	if err != nil {
		return nil, err
	}

	config := reconciler.DefaultConfig()
	config.Matching = matchingConfig

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid run configuration: %w", err)
	}

	return config, nil
}

// CreateReportConfig creates a report configuration for the specified output
// format
func CreateReportConfig(format string) (*reporter.ReportConfig, error) {
	config := reporter.DefaultReportConfig()

	switch format {
	case "", "console":
		config.Format = reporter.FormatConsole
	case "json":
		config.Format = reporter.FormatJSON
	case "csv":
		config.Format = reporter.FormatCSV
		// CSV is for outcome data, errors stay on the console.
		config.IncludeErrors = false
	default:
		return nil, fmt.Errorf("invalid output format %q, valid formats: console, json, csv", format)
	}

	return config, nil
}
