/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:

	Defines the JSON structures for API communication. These types decouple
	the internal domain model from the external API contract. All decimal
	quantities travel as strings so no precision is lost in JSON numbers.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:

	Handlers parse amounts with decimal.NewFromString and reject malformed
	input before the domain layer sees it. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - compliance/types.go: The domain types being projected
*/
package api

import (
	"strconv"
	"time"

	"github.com/nautilus/compliance-engine/audit"
	"github.com/nautilus/compliance-engine/compliance"
	"github.com/nautilus/compliance-engine/policy"
)

// =============================================================================
// CALCULATOR REQUESTS
// =============================================================================

// EUACostRequest prices a quantity of emissions under the current policy.
type EUACostRequest struct {
	CO2Tonnes       string   `json:"co2Tonnes"`
	CoveredSharePct string   `json:"coveredSharePct,omitempty"` // omit to derive from legs
	Legs            []string `json:"legs,omitempty"`
	Year            int      `json:"year"`
	EUAPrice        string   `json:"euaPricePerTonne"`
	Currency        string   `json:"currency,omitempty"`
}

// FuelEUSettlementRequest prices a compliance balance at settlement.
type FuelEUSettlementRequest struct {
	BalanceGco2e string  `json:"complianceBalanceGco2e"`
	EnergyGJ     string  `json:"energyGJ"`
	PoolPrice    *string `json:"poolPricePerTonne,omitempty"`
	Currency     string  `json:"currency,omitempty"`
}

// PenaltyVsPoolRequest compares penalty payment against pool purchase.
type PenaltyVsPoolRequest struct {
	DeficitEnergyGJ string `json:"deficitEnergyGJ"`
	PenaltyPerGJ    string `json:"penaltyPerGJ"`
	PoolOfferPerGJ  string `json:"poolOfferPerGJ"`
}

// TCCRequest aggregates the cost components of one voyage.
type TCCRequest struct {
	FuelCost         string `json:"fuelCost"`
	ETSCost          string `json:"etsCost"`
	FuelEUSettlement string `json:"fueleuSettlement"`
	HedgePnL         string `json:"hedgePnl"`
	Currency         string `json:"currency,omitempty"`
}

// CostDTO is a priced result.
type CostDTO struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

// RecommendationDTO is the penalty-vs-pool outcome with both priced legs.
type RecommendationDTO struct {
	Recommendation string `json:"recommendation"`
	PenaltyCost    string `json:"penaltyCost"`
	PoolCost       string `json:"poolCost"`
}

// =============================================================================
// POSITIONS AND TRANSITIONS
// =============================================================================

// OpenPositionRequest creates the position for a ship/year.
type OpenPositionRequest struct {
	NetBalanceGco2e       string `json:"netBalanceGco2e"`
	AnnualObligationGco2e string `json:"annualObligationGco2e"`
}

// TransitionRequest is the body for bank / use-bank / borrow.
type TransitionRequest struct {
	AmountGco2e string `json:"amountGco2e"`
	ActingUser  string `json:"actingUser,omitempty"`
}

// RollForwardRequest supersedes a year's position with the next year's.
type RollForwardRequest struct {
	NextAnnualObligationGco2e string `json:"nextAnnualObligationGco2e"`
}

// PositionDTO projects a compliance position.
type PositionDTO struct {
	ShipID                   string `json:"shipId"`
	Year                     int    `json:"year"`
	NetBalanceGco2e          string `json:"netBalanceGco2e"`
	BankedGco2e              string `json:"bankedGco2e"`
	BorrowedGco2e            string `json:"borrowedGco2e"`
	BorrowLimitGco2e         string `json:"borrowLimitGco2e"`
	ConsecutiveBorrowPeriods int    `json:"consecutiveBorrowPeriods"`
	InPool                   bool   `json:"inPool"`
	Revision                 int    `json:"revision"`
	UpdatedAt                string `json:"updatedAt"`
}

// TransitionResponse pairs the updated position with its audit decision.
type TransitionResponse struct {
	Position PositionDTO `json:"position"`
	Decision DecisionDTO `json:"decision"`
}

// =============================================================================
// POOLING
// =============================================================================

// CreateRFQRequest opens a pooling request.
type CreateRFQRequest struct {
	ShipID    string `json:"shipId"`
	Year      int    `json:"year"`
	NeedGco2e string `json:"needGco2e"` // positive buys compliance in, negative sells out
	Notes     string `json:"notes,omitempty"`
}

// SubmitOfferRequest attaches a counterparty offer to an RFQ.
type SubmitOfferRequest struct {
	Counterparty  string `json:"counterparty"`
	OfferedGco2e  string `json:"offeredGco2e"`
	PricePerTonne string `json:"pricePerTonne"`
	Currency      string `json:"currency,omitempty"`
	ValidUntil    string `json:"validUntil,omitempty"` // RFC3339
}

// AcceptOfferRequest accepts one offer on an RFQ.
type AcceptOfferRequest struct {
	ActingUser string `json:"actingUser,omitempty"`
}

// RFQDTO projects a pooling request with its offers.
type RFQDTO struct {
	ID        string     `json:"id"`
	ShipID    string     `json:"shipId"`
	Year      int        `json:"year"`
	NeedGco2e string     `json:"needGco2e"`
	Notes     string     `json:"notes,omitempty"`
	Status    string     `json:"status"`
	CreatedAt string     `json:"createdAt"`
	Offers    []OfferDTO `json:"offers"`
}

// OfferDTO projects one counterparty offer.
type OfferDTO struct {
	ID            string `json:"id"`
	Counterparty  string `json:"counterparty"`
	OfferedGco2e  string `json:"offeredGco2e"`
	PricePerTonne string `json:"pricePerTonne"`
	Currency      string `json:"currency"`
	ValidUntil    string `json:"validUntil,omitempty"`
	Status        string `json:"status"`
}

// =============================================================================
// HEDGING
// =============================================================================

// ExecuteHedgeRequest records an executed EUA hedge.
type ExecuteHedgeRequest struct {
	ShipID        string `json:"shipId"`
	Year          int    `json:"year"`
	VoyageID      string `json:"voyageId"`
	Side          string `json:"side"` // BUY or SELL
	QuantityTCO2  string `json:"quantityTco2"`
	PricePerTonne string `json:"pricePerTonne"`
	Currency      string `json:"currency,omitempty"`
	ExternalRef   string `json:"externalRef,omitempty"`
	ActingUser    string `json:"actingUser,omitempty"`
}

// =============================================================================
// AUDIT
// =============================================================================

// DecisionDTO projects an audit decision.
type DecisionDTO struct {
	ID            string   `json:"id"`
	Timestamp     string   `json:"timestamp"`
	Type          string   `json:"type"`
	ShipID        string   `json:"shipId"`
	Year          int      `json:"year"`
	PolicyVersion string   `json:"policyVersion"`
	ActingUser    string   `json:"actingUser,omitempty"`
	CorrectsID    string   `json:"correctsId,omitempty"`
	Payload       any      `json:"payload"`
	Warnings      []string `json:"warnings,omitempty"`
}

// EntryDTO projects one ledger posting.
type EntryDTO struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	RefType   string `json:"refType"`
	RefID     string `json:"refId"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
	Memo      string `json:"memo,omitempty"`
}

// DecisionDetailDTO pairs a decision with its postings.
type DecisionDetailDTO struct {
	Decision DecisionDTO `json:"decision"`
	Entries  []EntryDTO  `json:"entries"`
}

// =============================================================================
// POLICIES
// =============================================================================

// PolicyDTO projects a registered policy version.
type PolicyDTO struct {
	Version                 string            `json:"version"`
	EffectiveAt             string            `json:"effectiveAt"`
	ETSRampByYear           map[string]string `json:"etsRampByYear"`
	FuelEUPenaltyPerGJ      string            `json:"fueleuPenaltyPerGJ"`
	BorrowCapPct            string            `json:"borrowCapPct"`
	MaxConsecutiveBorrowing int               `json:"maxConsecutiveBorrowing"`
	IndifferenceBandPct     string            `json:"indifferenceBandPct"`
	Currency                string            `json:"currency"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toPositionDTO(p compliance.Position) PositionDTO {
	return PositionDTO{
		ShipID:                   string(p.ShipID),
		Year:                     p.Year,
		NetBalanceGco2e:          p.NetBalanceGco2e.String(),
		BankedGco2e:              p.BankedGco2e.String(),
		BorrowedGco2e:            p.BorrowedGco2e.String(),
		BorrowLimitGco2e:         p.BorrowLimitGco2e.String(),
		ConsecutiveBorrowPeriods: p.ConsecutiveBorrowPeriods,
		InPool:                   p.InPool,
		Revision:                 p.Revision,
		UpdatedAt:                p.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func toDecisionDTO(d audit.Decision) DecisionDTO {
	return DecisionDTO{
		ID:            d.ID,
		Timestamp:     d.Timestamp.UTC().Format(time.RFC3339Nano),
		Type:          string(d.Type),
		ShipID:        string(d.ShipID),
		Year:          d.Year,
		PolicyVersion: d.PolicyVersion,
		ActingUser:    d.ActingUser,
		CorrectsID:    d.CorrectsID,
		Payload:       d.Payload,
		Warnings:      d.Warnings,
	}
}

func toEntryDTOs(entries []audit.LedgerEntry) []EntryDTO {
	dtos := make([]EntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = EntryDTO{
			ID:        e.ID,
			Timestamp: e.Timestamp.UTC().Format(time.RFC3339Nano),
			RefType:   e.RefType,
			RefID:     e.RefID,
			Amount:    e.Amount.Amount.String(),
			Currency:  e.Amount.Currency,
			Memo:      e.Memo,
		}
	}
	return dtos
}

func toRFQDTO(rfq compliance.PoolRFQ) RFQDTO {
	dto := RFQDTO{
		ID:        rfq.ID,
		ShipID:    string(rfq.ShipID),
		Year:      rfq.Year,
		NeedGco2e: rfq.NeedGco2e.String(),
		Notes:     rfq.Notes,
		Status:    string(rfq.Status),
		CreatedAt: rfq.CreatedAt.UTC().Format(time.RFC3339Nano),
		Offers:    make([]OfferDTO, 0, len(rfq.Offers)),
	}
	for _, o := range rfq.Offers {
		offer := OfferDTO{
			ID:            o.ID,
			Counterparty:  o.Counterparty,
			OfferedGco2e:  o.OfferedGco2e.String(),
			PricePerTonne: o.PricePerTonne.Amount.String(),
			Currency:      o.PricePerTonne.Currency,
			Status:        string(o.Status),
		}
		if !o.ValidUntil.IsZero() {
			offer.ValidUntil = o.ValidUntil.UTC().Format(time.RFC3339Nano)
		}
		dto.Offers = append(dto.Offers, offer)
	}
	return dto
}

func toPolicyDTO(cfg policy.Config) PolicyDTO {
	ramp := make(map[string]string, len(cfg.ETSRampByYear))
	for year, pct := range cfg.ETSRampByYear {
		ramp[strconv.Itoa(year)] = pct.String()
	}
	return PolicyDTO{
		Version:                 cfg.Version,
		EffectiveAt:             cfg.EffectiveAt.UTC().Format(time.RFC3339),
		ETSRampByYear:           ramp,
		FuelEUPenaltyPerGJ:      cfg.FuelEUPenaltyPerGJ.String(),
		BorrowCapPct:            cfg.BorrowCapPct.String(),
		MaxConsecutiveBorrowing: cfg.MaxConsecutiveBorrowing,
		IndifferenceBandPct:     cfg.IndifferenceBandPct.String(),
		Currency:                cfg.Currency,
	}
}
