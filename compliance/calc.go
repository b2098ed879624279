/*
calc.go - Pure compliance cost calculator

PURPOSE:

	Computes EU ETS allowance exposure, FuelEU settlement cost, the
	penalty-vs-pool recommendation, and Total Cost of Compliance. Every
	function here is deterministic for given inputs: prices arrive as explicit
	parameters, never as process-wide state.

COST MODEL:

	EUA cost     = co2Tonnes x coveredShare% x ramp%(year) x euaPrice
	FuelEU cost  = 0 on surplus; else min(penalty, pool) where
	               penalty = energyGJ x penaltyPerGJ
	               pool    = deficit tonnes x pool price (when quoted)
	TCC          = fuel + ETS + FuelEU settlement + hedge PnL (signed)

INDIFFERENCE BAND:

	When penalty and pool costs differ by less than the policy band (default
	5% of the penalty cost) the recommendation is INDIFFERENT, so small price
	noise does not flip recommendations back and forth.

SEE ALSO:
  - policy/policy.go: The parameter bundle the calculator is bound to
  - types.go:         Facts validation
*/
package compliance

import (
	"github.com/shopspring/decimal"

	"github.com/nautilus/compliance-engine/policy"
)

// =============================================================================
// CALCULATOR - Bound to one resolved policy version
// =============================================================================

// Calculator evaluates compliance costs against one resolved policy version.
// All methods are pure; the calculator holds no mutable state and is safe
// for concurrent use.
type Calculator struct {
	Policy policy.Config
}

func NewCalculator(cfg policy.Config) *Calculator {
	return &Calculator{Policy: cfg}
}

var hundred = decimal.NewFromInt(100)

// =============================================================================
// EU ETS
// =============================================================================

// ETSCoveredShare returns the percent of emissions in ETS scope for a leg
// classification. Unrecognized classifications are rejected, never defaulted:
// treating an unknown leg as extra-EU would silently halve the obligation.
func (c *Calculator) ETSCoveredShare(leg LegType) (decimal.Decimal, error) {
	switch leg {
	case LegIntraEU, LegBerth:
		return hundred, nil
	case LegExtraEU:
		return decimal.NewFromInt(50), nil
	default:
		return decimal.Zero, &InvalidFactsError{Field: "legType", Reason: "unrecognized leg classification", Value: string(leg)}
	}
}

// ETSRampPercent returns the phase-in percent for a reporting year.
// Years before the first configured year use the first configured value;
// years after the last use the last. A monotonic staircase, no extrapolation.
func (c *Calculator) ETSRampPercent(year int) decimal.Decimal {
	years := c.Policy.RampYears()
	if len(years) == 0 {
		return decimal.Zero
	}
	if year <= years[0] {
		return c.Policy.ETSRampByYear[years[0]]
	}
	for i := len(years) - 1; i >= 0; i-- {
		if year >= years[i] {
			return c.Policy.ETSRampByYear[years[i]]
		}
	}
	return c.Policy.ETSRampByYear[years[0]]
}

// EUACost computes the allowance cost for a quantity of emissions:
// co2Tonnes x (coveredShare/100) x (ramp(year)/100) x price.
func (c *Calculator) EUACost(co2Tonnes, coveredSharePct decimal.Decimal, euaPricePerTonne Money, year int) (Money, error) {
	if !co2Tonnes.IsPositive() {
		return Money{}, &InvalidFactsError{Field: "co2Tonnes", Reason: "must be positive", Value: co2Tonnes.String()}
	}
	if coveredSharePct.IsNegative() || coveredSharePct.GreaterThan(hundred) {
		return Money{}, &InvalidFactsError{Field: "coveredSharePct", Reason: "must be within [0, 100]", Value: coveredSharePct.String()}
	}
	if euaPricePerTonne.IsNegative() {
		return Money{}, &InvalidFactsError{Field: "euaPrice", Reason: "must not be negative", Value: euaPricePerTonne.Amount.String()}
	}

	covered := co2Tonnes.
		Mul(coveredSharePct.Div(hundred)).
		Mul(c.ETSRampPercent(year).Div(hundred))
	return NewMoney(covered.Mul(euaPricePerTonne.Amount), euaPricePerTonne.Currency), nil
}

// VoyageEUACost resolves the covered share from the voyage's leg
// classifications (worst case across legs) and prices the exposure.
func (c *Calculator) VoyageEUACost(facts VoyageComplianceFacts, euaPrice PriceQuote) (Money, error) {
	if err := facts.Validate(); err != nil {
		return Money{}, err
	}
	if len(facts.Legs) == 0 {
		return Money{}, &InvalidFactsError{Field: "legs", Reason: "at least one leg classification required"}
	}

	share := decimal.Zero
	for _, leg := range facts.Legs {
		s, err := c.ETSCoveredShare(leg)
		if err != nil {
			return Money{}, err
		}
		if s.GreaterThan(share) {
			share = s
		}
	}
	return c.EUACost(facts.CO2Tonnes, share, euaPrice.PricePerTonne, facts.Year)
}

// =============================================================================
// FUELEU MARITIME
// =============================================================================

// FuelEUSettlementCost prices a compliance balance at settlement time.
// A surplus never costs money. A deficit costs the per-GJ penalty, or the
// pool purchase when a quote is supplied and cheaper.
func (c *Calculator) FuelEUSettlementCost(balanceGco2e, energyGJ decimal.Decimal, poolPrice *PriceQuote) (Money, error) {
	if !energyGJ.IsPositive() {
		return Money{}, &InvalidFactsError{Field: "energyGJ", Reason: "must be positive", Value: energyGJ.String()}
	}

	if !balanceGco2e.IsNegative() {
		return ZeroMoney(c.Policy.Currency), nil
	}

	penalty := NewMoney(energyGJ.Mul(c.Policy.FuelEUPenaltyPerGJ), c.Policy.Currency)
	if poolPrice == nil {
		return penalty, nil
	}

	deficitTonnes := GramsToTonnes(balanceGco2e.Abs())
	pool := NewMoney(deficitTonnes.Mul(poolPrice.PricePerTonne.Amount), c.Policy.Currency)
	return penalty.Min(pool), nil
}

// =============================================================================
// PENALTY VS POOL RECOMMENDATION
// =============================================================================

// Recommendation is the outcome of comparing penalty and pool costs.
type Recommendation string

const (
	PayPenalty  Recommendation = "PAY_PENALTY"
	Pool        Recommendation = "POOL"
	Indifferent Recommendation = "INDIFFERENT"
)

// PenaltyVsPoolDecision compares paying the FuelEU penalty against buying
// pool compliance for the same deficit energy. Both costs are priced over
// the deficit energy quantity. Within the policy indifference band the
// costs are treated as equivalent.
func (c *Calculator) PenaltyVsPoolDecision(deficitEnergyGJ, penaltyPerGJ, poolOfferPerGJ decimal.Decimal) (Recommendation, error) {
	if !deficitEnergyGJ.IsPositive() {
		return "", &InvalidFactsError{Field: "deficitEnergyGJ", Reason: "must be positive", Value: deficitEnergyGJ.String()}
	}
	if penaltyPerGJ.IsNegative() || poolOfferPerGJ.IsNegative() {
		return "", &InvalidFactsError{Field: "price", Reason: "must not be negative"}
	}

	penaltyCost := deficitEnergyGJ.Mul(penaltyPerGJ)
	poolCost := deficitEnergyGJ.Mul(poolOfferPerGJ)

	band := penaltyCost.Mul(c.Policy.IndifferenceBandPct.Div(hundred))
	if penaltyCost.Sub(poolCost).Abs().LessThan(band) {
		return Indifferent, nil
	}
	if poolCost.LessThan(penaltyCost) {
		return Pool, nil
	}
	return PayPenalty, nil
}

// =============================================================================
// TOTAL COST OF COMPLIANCE
// =============================================================================

// TotalCostOfCompliance aggregates the voyage cost components. Hedge PnL is
// signed and added: a hedge gain arrives negative and lowers the total,
// matching the ledger convention where PnL is a posting like any other.
func (c *Calculator) TotalCostOfCompliance(fuelCost, etsCost, fueleuSettlement, hedgePnL Money) Money {
	return fuelCost.Add(etsCost).Add(fueleuSettlement).Add(hedgePnL)
}
