/*
Package policy holds versioned, effective-dated regulatory parameters.

PURPOSE:

	Both EU ETS and FuelEU Maritime are governed by parameters that change
	over time: the ETS phase-in ramp, the FuelEU penalty rate, borrowing caps.
	This package bundles those parameters into immutable Config versions and
	resolves which version governs a given decision timestamp.

KEY CONCEPTS:
  - Config:   One complete parameter bundle (a "policy snapshot")
  - Registry: Effective-dated lookup over registered Config versions

IMMUTABILITY:

	Once a Config version has been referenced by an audit decision it must
	never change - regulators replay decisions against the exact snapshot in
	effect at the time. The Registry hands out copies and refuses to
	re-register an existing version id.

SEE ALSO:
  - registry.go: Version resolution
  - file.go:     YAML policy file loading
  - compliance/calc.go: The calculator consuming a resolved Config
*/
package policy

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CONFIG - One versioned regulatory parameter bundle
// =============================================================================

// Config is a single effective-dated bundle of regulatory parameters.
// All percentages are expressed on a 0-100 scale except BorrowCapPct,
// which is a fraction of the annual obligation (e.g. 0.02 for 2%).
type Config struct {
	Version     string
	EffectiveAt time.Time

	// EU ETS phase-in: fraction of the obligation that must be surrendered,
	// keyed by reporting year (2025 -> 40, 2026 -> 70, 2027 -> 100).
	ETSRampByYear map[int]decimal.Decimal

	// FuelEU Maritime penalty in EUR per gigajoule of energy in a
	// non-compliant voyage.
	FuelEUPenaltyPerGJ decimal.Decimal

	// Borrowing constraints: cap as a fraction of the annual obligation and
	// the maximum number of consecutive periods borrowing may be used.
	BorrowCapPct            decimal.Decimal
	MaxConsecutiveBorrowing int

	// Band within which penalty and pool costs are treated as equivalent,
	// as a percent of the penalty cost. Keeps small price noise from
	// flipping recommendations.
	IndifferenceBandPct decimal.Decimal

	// Currency all penalty rates and ledger postings are denominated in.
	Currency string
}

// RampYears returns the configured ramp years in ascending order.
func (c Config) RampYears() []int {
	years := make([]int, 0, len(c.ETSRampByYear))
	for y := range c.ETSRampByYear {
		years = append(years, y)
	}
	for i := 1; i < len(years); i++ {
		for j := i; j > 0 && years[j] < years[j-1]; j-- {
			years[j], years[j-1] = years[j-1], years[j]
		}
	}
	return years
}

// clone returns a deep copy so callers can never mutate a registered version.
func (c Config) clone() Config {
	out := c
	out.ETSRampByYear = make(map[int]decimal.Decimal, len(c.ETSRampByYear))
	for y, pct := range c.ETSRampByYear {
		out.ETSRampByYear[y] = pct
	}
	return out
}

// =============================================================================
// DEFAULT POLICY - The regulation as written
// =============================================================================

// Default returns the baseline parameter set effective 1 Jan 2025.
func Default() Config {
	return Config{
		Version:     "2025.1",
		EffectiveAt: time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
		ETSRampByYear: map[int]decimal.Decimal{
			2025: decimal.NewFromInt(40),
			2026: decimal.NewFromInt(70),
			2027: decimal.NewFromInt(100),
		},
		FuelEUPenaltyPerGJ:      decimal.NewFromInt(60),
		BorrowCapPct:            decimal.NewFromFloat(0.02),
		MaxConsecutiveBorrowing: 2,
		IndifferenceBandPct:     decimal.NewFromInt(5),
		Currency:                "EUR",
	}
}
