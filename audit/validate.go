/*
validate.go - Type-specific decision rule checks

PURPOSE:

	ValidateDecision runs the rule set for each decision type and splits the
	findings into violations and warnings. Violations block persistence;
	warnings are recorded alongside the decision.

RULES PER TYPE:

	BANK / USE_BANK:  amount must be positive
	BORROW:           amount positive; borrowed-after must not exceed the cap
	POOL_ACCEPT:      RFQ and offer references are required (violation, not a
	                  warning); postings over EUR 1M warn for extra approval
	HEDGE_EXECUTE:    side and quantity are required

	All types: a missing acting user is a warning; a payload whose type tag
	disagrees with the decision type is a violation.
*/
package audit

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// highValueThreshold flags postings that need additional sign-off.
var highValueThreshold = decimal.NewFromInt(1_000_000)

// ValidationResult holds the findings for one decision.
type ValidationResult struct {
	Violations []string
	Warnings   []string
}

func (r ValidationResult) Valid() bool { return len(r.Violations) == 0 }

// ValidationError is returned when violations block persistence.
type ValidationError struct {
	DecisionType DecisionType
	Violations   []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("decision %s invalid: %s", e.DecisionType, strings.Join(e.Violations, "; "))
}

// ValidateDecision checks a decision against its type-specific rules.
// The payload union keeps this switch exhaustive.
func ValidateDecision(d Decision) ValidationResult {
	var result ValidationResult

	if d.Payload == nil {
		result.Violations = append(result.Violations, "missing payload")
		return result
	}
	if d.Payload.DecisionType() != d.Type {
		result.Violations = append(result.Violations,
			fmt.Sprintf("payload type %s does not match decision type %s", d.Payload.DecisionType(), d.Type))
		return result
	}
	if d.ActingUser == "" {
		result.Warnings = append(result.Warnings, "no acting user recorded")
	}

	switch p := d.Payload.(type) {
	case BankPayload:
		if !p.AmountGco2e.IsPositive() {
			result.Violations = append(result.Violations, "bank amount must be positive")
		}
	case UseBankPayload:
		if !p.AmountGco2e.IsPositive() {
			result.Violations = append(result.Violations, "use-bank amount must be positive")
		}
	case BorrowPayload:
		if !p.AmountGco2e.IsPositive() {
			result.Violations = append(result.Violations, "borrow amount must be positive")
		}
		if p.BorrowedAfterGco2e.GreaterThan(p.BorrowLimitGco2e) {
			result.Violations = append(result.Violations,
				fmt.Sprintf("borrowed amount %s exceeds cap %s", p.BorrowedAfterGco2e, p.BorrowLimitGco2e))
		}
	case PoolAcceptPayload:
		if p.RFQID == "" || p.OfferID == "" {
			result.Violations = append(result.Violations, "missing RFQ or offer reference")
		}
		if !p.OfferedGco2e.IsPositive() {
			result.Violations = append(result.Violations, "offered amount must be positive")
		}
		if p.FinancialEffect(p.PricePerTonne.Currency).Amount.Abs().GreaterThan(highValueThreshold) {
			result.Warnings = append(result.Warnings, "high-value transaction requires additional approval")
		}
	case HedgeExecutePayload:
		if p.Side != HedgeBuy && p.Side != HedgeSell {
			result.Violations = append(result.Violations, "hedge side must be BUY or SELL")
		}
		if !p.QuantityTCO2.IsPositive() {
			result.Violations = append(result.Violations, "hedge quantity must be positive")
		}
		if p.FinancialEffect(p.PricePerTonne.Currency).Amount.Abs().GreaterThan(highValueThreshold) {
			result.Warnings = append(result.Warnings, "high-value transaction requires additional approval")
		}
	default:
		result.Violations = append(result.Violations, fmt.Sprintf("unknown payload type %T", d.Payload))
	}

	return result
}
