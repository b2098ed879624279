/*
file.go - YAML policy file loading

PURPOSE:

	Jurisdictions adjust parameters over time (ramp schedules, penalty rates).
	Rather than recompiling, deployments register additional versions from a
	YAML file at startup.

FORMAT:

	versions:
	  - version: "2026.1"
	    effective_at: "2026-01-01"
	    ets_ramp_by_year:
	      2025: "40"
	      2026: "70"
	      2027: "100"
	    fueleu_penalty_per_gj: "60"
	    borrow_cap_pct: "0.02"
	    max_consecutive_borrowing: 2
	    indifference_band_pct: "5"
	    currency: EUR

	Decimal values are strings to avoid float parsing surprises.

SEE ALSO:
  - registry.go: Where loaded versions are registered
  - cmd/server/main.go: The -policies flag
*/
package policy

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// YAML SCHEMA
// =============================================================================

type fileSchema struct {
	Versions []versionSchema `yaml:"versions"`
}

type versionSchema struct {
	Version                 string         `yaml:"version"`
	EffectiveAt             string         `yaml:"effective_at"`
	ETSRampByYear           map[int]string `yaml:"ets_ramp_by_year"`
	FuelEUPenaltyPerGJ      string         `yaml:"fueleu_penalty_per_gj"`
	BorrowCapPct            string         `yaml:"borrow_cap_pct"`
	MaxConsecutiveBorrowing int            `yaml:"max_consecutive_borrowing"`
	IndifferenceBandPct     string         `yaml:"indifference_band_pct,omitempty"`
	Currency                string         `yaml:"currency,omitempty"`
}

// =============================================================================
// LOADING
// =============================================================================

// LoadFile parses a YAML policy file into Config versions.
func LoadFile(path string) ([]Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML policy file contents.
func Parse(data []byte) ([]Config, error) {
	var schema fileSchema
	if err := yaml.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("parse policy file: %w", err)
	}

	configs := make([]Config, 0, len(schema.Versions))
	for _, v := range schema.Versions {
		c, err := v.toConfig()
		if err != nil {
			return nil, fmt.Errorf("policy version %q: %w", v.Version, err)
		}
		configs = append(configs, c)
	}
	return configs, nil
}

func (v versionSchema) toConfig() (Config, error) {
	if v.Version == "" {
		return Config{}, fmt.Errorf("missing version id")
	}

	effectiveAt, err := time.Parse("2006-01-02", v.EffectiveAt)
	if err != nil {
		return Config{}, fmt.Errorf("invalid effective_at %q: %w", v.EffectiveAt, err)
	}

	ramp := make(map[int]decimal.Decimal, len(v.ETSRampByYear))
	for year, pct := range v.ETSRampByYear {
		d, err := decimal.NewFromString(pct)
		if err != nil {
			return Config{}, fmt.Errorf("invalid ramp percent for %d: %w", year, err)
		}
		ramp[year] = d
	}
	if len(ramp) == 0 {
		return Config{}, fmt.Errorf("ets_ramp_by_year must have at least one year")
	}

	penalty, err := decimal.NewFromString(v.FuelEUPenaltyPerGJ)
	if err != nil {
		return Config{}, fmt.Errorf("invalid fueleu_penalty_per_gj: %w", err)
	}

	borrowCap, err := decimal.NewFromString(v.BorrowCapPct)
	if err != nil {
		return Config{}, fmt.Errorf("invalid borrow_cap_pct: %w", err)
	}

	band := decimal.NewFromInt(5)
	if v.IndifferenceBandPct != "" {
		band, err = decimal.NewFromString(v.IndifferenceBandPct)
		if err != nil {
			return Config{}, fmt.Errorf("invalid indifference_band_pct: %w", err)
		}
	}

	currency := v.Currency
	if currency == "" {
		currency = "EUR"
	}

	maxConsecutive := v.MaxConsecutiveBorrowing
	if maxConsecutive == 0 {
		maxConsecutive = 2
	}

	return Config{
		Version:                 v.Version,
		EffectiveAt:             effectiveAt,
		ETSRampByYear:           ramp,
		FuelEUPenaltyPerGJ:      penalty,
		BorrowCapPct:            borrowCap,
		MaxConsecutiveBorrowing: maxConsecutive,
		IndifferenceBandPct:     band,
		Currency:                currency,
	}, nil
}
