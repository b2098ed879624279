/*
Package audit produces the immutable, financially-reconciled record of every
compliance decision.

PURPOSE:

	Regulators ask "why did this ship bank / borrow / pool, under which rules,
	and what did it cost?". Every compliance-affecting operation emits exactly
	one AuditDecision stamped with the policy version in effect, plus signed
	ledger postings when it has financial effect. Decisions and postings are
	append-only: corrections are new decisions referencing the original.

KEY CONCEPTS IN THIS FILE (decision.go):
  - Decision:  Immutable audit record with a typed payload
  - Payload:   Closed tagged union, one variant per decision type
  - The payload carries exactly the fields its validation rules need

WHY TYPED PAYLOADS?

	Free-form key-value inputs make validation ad hoc property inspection.
	With one struct per decision type, ValidateDecision is exhaustive and the
	compiler catches a payload/type mismatch.

SEE ALSO:
  - ledger.go:   Signed financial postings
  - validate.go: Type-specific rule checks
  - recorder.go: Persistence with reconciliation
*/
package audit

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nautilus/compliance-engine/compliance"
)

// =============================================================================
// DECISION TYPES
// =============================================================================

type DecisionType string

const (
	DecisionBank         DecisionType = "BANK"
	DecisionUseBank      DecisionType = "USE_BANK"
	DecisionBorrow       DecisionType = "BORROW"
	DecisionPoolAccept   DecisionType = "POOL_ACCEPT"
	DecisionHedgeExecute DecisionType = "HEDGE_EXECUTE"
)

// =============================================================================
// DECISION - Immutable once written
// =============================================================================

// Decision is one immutable audit record. No component may mutate a decision
// after creation; a correction is a new decision with CorrectsID set.
type Decision struct {
	ID        string
	Timestamp time.Time
	Type      DecisionType
	ShipID    compliance.ShipID
	Year      int

	// The exact policy version the decision was evaluated against, retained
	// for replay.
	PolicyVersion string

	ActingUser string
	CorrectsID string // set when this decision corrects an earlier one

	Payload Payload

	// Warnings recorded alongside the decision at validation time. They did
	// not block persistence.
	Warnings []string
}

// =============================================================================
// PAYLOAD - Closed tagged union, one variant per decision type
// =============================================================================

// Payload carries the type-specific inputs and outputs of a decision.
type Payload interface {
	DecisionType() DecisionType

	// FinancialEffect is the net cash effect the ledger postings for this
	// decision must sum to. Zero for financially neutral decisions.
	FinancialEffect(currency string) compliance.Money
}

// BankPayload records moving current-year surplus into the bank.
// Financially neutral.
type BankPayload struct {
	AmountGco2e        decimal.Decimal `json:"amountGco2e"`
	BalanceBeforeGco2e decimal.Decimal `json:"balanceBeforeGco2e"`
	BalanceAfterGco2e  decimal.Decimal `json:"balanceAfterGco2e"`
	BankedAfterGco2e   decimal.Decimal `json:"bankedAfterGco2e"`
}

func (BankPayload) DecisionType() DecisionType { return DecisionBank }
func (BankPayload) FinancialEffect(currency string) compliance.Money {
	return compliance.ZeroMoney(currency)
}

// UseBankPayload records drawing banked surplus against a deficit.
// Financially neutral.
type UseBankPayload struct {
	AmountGco2e        decimal.Decimal `json:"amountGco2e"`
	BalanceBeforeGco2e decimal.Decimal `json:"balanceBeforeGco2e"`
	BalanceAfterGco2e  decimal.Decimal `json:"balanceAfterGco2e"`
	BankedAfterGco2e   decimal.Decimal `json:"bankedAfterGco2e"`
}

func (UseBankPayload) DecisionType() DecisionType { return DecisionUseBank }
func (UseBankPayload) FinancialEffect(currency string) compliance.Money {
	return compliance.ZeroMoney(currency)
}

// BorrowPayload records advancing against next year's allowance. An internal
// compliance obligation with no immediate cash effect, still recorded for
// audit.
type BorrowPayload struct {
	AmountGco2e        decimal.Decimal `json:"amountGco2e"`
	BorrowLimitGco2e   decimal.Decimal `json:"borrowLimitGco2e"`
	BorrowedAfterGco2e decimal.Decimal `json:"borrowedAfterGco2e"`
	ConsecutivePeriods int             `json:"consecutivePeriods"`
}

func (BorrowPayload) DecisionType() DecisionType { return DecisionBorrow }
func (BorrowPayload) FinancialEffect(currency string) compliance.Money {
	return compliance.ZeroMoney(currency)
}

// PoolAcceptPayload records accepting one pool offer. Direction +1 buys
// compliance in (cash out), -1 sells surplus out (cash in).
type PoolAcceptPayload struct {
	RFQID         string           `json:"rfqId"`
	OfferID       string           `json:"offerId"`
	Counterparty  string           `json:"counterparty"`
	OfferedGco2e  decimal.Decimal  `json:"offeredGco2e"`
	PricePerTonne compliance.Money `json:"pricePerTonne"`
	Direction     int              `json:"direction"`
}

func (PoolAcceptPayload) DecisionType() DecisionType { return DecisionPoolAccept }

// FinancialEffect prices the accepted offer: offered amount x price per unit,
// signed by direction (buying compliance is a cost).
func (p PoolAcceptPayload) FinancialEffect(currency string) compliance.Money {
	total := compliance.GramsToTonnes(p.OfferedGco2e).Mul(p.PricePerTonne.Amount)
	if p.Direction >= 0 {
		total = total.Neg()
	}
	return compliance.NewMoney(total, currency)
}

// HedgeSide is the direction of an EUA hedge trade.
type HedgeSide string

const (
	HedgeBuy  HedgeSide = "BUY"
	HedgeSell HedgeSide = "SELL"
)

// HedgeExecutePayload records an executed EUA hedge linked to a voyage.
type HedgeExecutePayload struct {
	VoyageID      compliance.VoyageID `json:"voyageId"`
	Side          HedgeSide           `json:"side"`
	QuantityTCO2  decimal.Decimal     `json:"quantityTco2"`
	PricePerTonne compliance.Money    `json:"pricePerTonne"`
	ExternalRef   string              `json:"externalRef,omitempty"`
}

func (HedgeExecutePayload) DecisionType() DecisionType { return DecisionHedgeExecute }

// FinancialEffect is the trade notional: BUY is cash out, SELL is cash in.
func (p HedgeExecutePayload) FinancialEffect(currency string) compliance.Money {
	total := p.QuantityTCO2.Mul(p.PricePerTonne.Amount)
	if p.Side == HedgeBuy {
		total = total.Neg()
	}
	return compliance.NewMoney(total, currency)
}

// =============================================================================
// PAYLOAD SERIALIZATION - For the persistence layer
// =============================================================================

// MarshalPayload serializes a payload for storage.
func MarshalPayload(p Payload) ([]byte, error) {
	return json.Marshal(p)
}

// UnmarshalPayload restores a payload from its stored form using the
// decision type as the tag.
func UnmarshalPayload(t DecisionType, data []byte) (Payload, error) {
	switch t {
	case DecisionBank:
		var p BankPayload
		return p, json.Unmarshal(data, &p)
	case DecisionUseBank:
		var p UseBankPayload
		return p, json.Unmarshal(data, &p)
	case DecisionBorrow:
		var p BorrowPayload
		return p, json.Unmarshal(data, &p)
	case DecisionPoolAccept:
		var p PoolAcceptPayload
		return p, json.Unmarshal(data, &p)
	case DecisionHedgeExecute:
		var p HedgeExecutePayload
		return p, json.Unmarshal(data, &p)
	default:
		return nil, fmt.Errorf("unknown decision type %q", t)
	}
}
