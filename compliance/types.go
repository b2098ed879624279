/*
Package compliance implements the carbon compliance core: the pure rules
calculator for EU ETS and FuelEU Maritime, and the per-ship-per-year
compliance position state machine.

PURPOSE:

	Ocean-going vessels carry obligations under two concurrent regimes. EU ETS
	requires surrendering allowances (EUA) per tonne of CO2, phased in by year
	and voyage leg type. FuelEU Maritime sets a greenhouse-gas intensity limit
	on fuel energy; a deficit costs a per-GJ penalty unless offset by banking,
	borrowing, or pooling. This package computes those exposures and manages
	the banked/borrowed/pooled position each decision mutates.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money:                A signed amount with a currency (decimal precision)
  - LegType:              Voyage leg classification driving ETS coverage
  - VoyageComplianceFacts: Read-only emissions/energy input per voyage
  - Identifiers:          Type-safe ship ids

DESIGN PRINCIPLES:
 1. Precision: decimal.Decimal everywhere money or mass is involved
 2. Purity: calculator functions have no side effects and no hidden state
 3. Fail loudly: malformed facts are rejected, never defaulted

SEE ALSO:
  - calc.go:     The pure rules calculator
  - position.go: The per-ship-per-year compliance position
  - engine/:     Atomic transitions with audit recording
*/
package compliance

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Signed amount with currency
// =============================================================================

type Money struct {
	Amount   decimal.Decimal
	Currency string
}

func NewMoney(amount decimal.Decimal, currency string) Money {
	return Money{Amount: amount, Currency: currency}
}

func EUR(value float64) Money {
	return Money{Amount: decimal.NewFromFloat(value), Currency: "EUR"}
}

func ZeroMoney(currency string) Money {
	return Money{Amount: decimal.Zero, Currency: currency}
}

func (m Money) Add(o Money) Money     { return Money{Amount: m.Amount.Add(o.Amount), Currency: m.Currency} }
func (m Money) Sub(o Money) Money     { return Money{Amount: m.Amount.Sub(o.Amount), Currency: m.Currency} }
func (m Money) Neg() Money            { return Money{Amount: m.Amount.Neg(), Currency: m.Currency} }
func (m Money) IsZero() bool          { return m.Amount.IsZero() }
func (m Money) IsNegative() bool      { return m.Amount.IsNegative() }
func (m Money) LessThan(o Money) bool { return m.Amount.LessThan(o.Amount) }
func (m Money) Equal(o Money) bool    { return m.Currency == o.Currency && m.Amount.Equal(o.Amount) }

func (m Money) Min(o Money) Money {
	if m.LessThan(o) {
		return m
	}
	return o
}

func (m Money) String() string { return m.Amount.StringFixed(2) + " " + m.Currency }

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ShipID string
type VoyageID string

// =============================================================================
// LEG CLASSIFICATION - Drives EU ETS coverage
// =============================================================================

// LegType classifies a voyage leg for ETS scope purposes.
// There are exactly three recognized classifications; anything else is an
// input error. An unrecognized leg must never silently resolve to a default
// because misclassification mis-costs the voyage.
type LegType string

const (
	LegIntraEU LegType = "intra" // both ports in EU/EEA: 100% covered
	LegExtraEU LegType = "extra" // one port outside EU/EEA: 50% covered
	LegBerth   LegType = "berth" // at berth in an EU/EEA port: 100% covered
)

// =============================================================================
// VOYAGE FACTS - Read-only input from the emissions collaborator
// =============================================================================

// VoyageComplianceFacts carries the emissions and energy facts for one
// voyage. Supplied by an external collaborator; the core never mutates it.
type VoyageComplianceFacts struct {
	VoyageID    VoyageID
	ShipID      ShipID
	Year        int
	CO2Tonnes   decimal.Decimal // CO2-equivalent tonnes emitted
	EnergyGJ    decimal.Decimal // energy in FuelEU scope, gigajoules
	Legs        []LegType
	FuelByTypeT map[string]decimal.Decimal // tonnes per fuel grade
}

// Validate rejects malformed facts before any calculation runs.
func (f VoyageComplianceFacts) Validate() error {
	if f.ShipID == "" {
		return &InvalidFactsError{Field: "shipId", Reason: "missing"}
	}
	if f.Year <= 0 {
		return &InvalidFactsError{Field: "year", Reason: "missing or non-positive"}
	}
	if !f.CO2Tonnes.IsPositive() {
		return &InvalidFactsError{Field: "co2Tonnes", Reason: "must be positive", Value: f.CO2Tonnes.String()}
	}
	if !f.EnergyGJ.IsPositive() {
		return &InvalidFactsError{Field: "energyGJ", Reason: "must be positive", Value: f.EnergyGJ.String()}
	}
	for _, leg := range f.Legs {
		switch leg {
		case LegIntraEU, LegExtraEU, LegBerth:
		default:
			return &InvalidFactsError{Field: "legs", Reason: "unrecognized leg classification", Value: string(leg)}
		}
	}
	return nil
}

// =============================================================================
// PRICE QUOTES - Opaque numeric quotes from the market collaborator
// =============================================================================

// PriceQuote is a point-in-time market price. The core treats provenance as
// the collaborator's problem; it only needs the number and when it was seen.
type PriceQuote struct {
	PricePerTonne Money
	ObservedAt    string // RFC3339; informational, not validated
}

// gramsPerTonne converts gCO2e quantities to tonnes for pool pricing.
var gramsPerTonne = decimal.NewFromInt(1_000_000)

// GramsToTonnes converts a gCO2e quantity to tonnes of CO2e.
func GramsToTonnes(grams decimal.Decimal) decimal.Decimal {
	return grams.Div(gramsPerTonne)
}
