/*
pool.go - Pooling RFQ and offer model

PURPOSE:

	FuelEU pooling combines compliance balances across ships so a surplus in
	the pool offsets individual deficits. A ship with a deficit opens an RFQ
	(request for quote); counterparties submit priced offers; accepting one
	offer fills the RFQ, declines all sibling offers, and pools the ship for
	the remainder of the period.

RULES:
  - One open pool per ship per compliance period, validated before any
    offer is solicited (an RFQ cannot even be opened while pooled)
  - At most one offer may be accepted per RFQ
  - Accepting an offer declines every other pending offer atomically

SEE ALSO:
  - position.go: ApplyPoolAccept changes the position itself
  - engine/machine.go: Runs RFQ update + position update + audit in one unit
*/
package compliance

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RFQ AND OFFER
// =============================================================================

type RFQStatus string

const (
	RFQOpen   RFQStatus = "OPEN"
	RFQFilled RFQStatus = "FILLED"
	RFQClosed RFQStatus = "CLOSED"
)

type OfferStatus string

const (
	OfferPending  OfferStatus = "PENDING"
	OfferAccepted OfferStatus = "ACCEPTED"
	OfferDeclined OfferStatus = "DECLINED"
)

// PoolOffer is one counterparty's priced response to an RFQ.
type PoolOffer struct {
	ID            string
	RFQID         string
	Counterparty  string
	OfferedGco2e  decimal.Decimal
	PricePerTonne Money
	ValidUntil    time.Time
	Status        OfferStatus
}

// TotalCost prices the offer: offered tonnes x price per tonne.
func (o PoolOffer) TotalCost() Money {
	return NewMoney(GramsToTonnes(o.OfferedGco2e).Mul(o.PricePerTonne.Amount), o.PricePerTonne.Currency)
}

// PoolRFQ is one ship's request for pool compliance in one period.
// NeedGco2e is positive for a deficit (buying compliance) and negative for
// a surplus being offered out.
type PoolRFQ struct {
	ID        string
	ShipID    ShipID
	Year      int
	NeedGco2e decimal.Decimal
	Notes     string
	Status    RFQStatus
	Offers    []PoolOffer
	CreatedAt time.Time
}

// Direction returns +1 when the RFQ buys compliance in, -1 when it sells
// surplus out.
func (r PoolRFQ) Direction() int {
	if r.NeedGco2e.IsNegative() {
		return -1
	}
	return 1
}

// =============================================================================
// ACCEPTANCE - Pure, all-or-nothing
// =============================================================================

// Accept marks the chosen offer accepted and every other pending offer
// declined, and fills the RFQ. Returns the updated RFQ and the accepted
// offer. The input RFQ is not modified.
func (r PoolRFQ) Accept(offerID string, now time.Time) (PoolRFQ, PoolOffer, error) {
	if r.Status != RFQOpen {
		return PoolRFQ{}, PoolOffer{}, &TransitionError{
			Transition: "pool_accept",
			Reason:     "rfq is not open",
		}
	}

	updated := r
	updated.Offers = make([]PoolOffer, len(r.Offers))
	copy(updated.Offers, r.Offers)

	var accepted *PoolOffer
	for i := range updated.Offers {
		o := &updated.Offers[i]
		if o.ID == offerID {
			if o.Status != OfferPending {
				return PoolRFQ{}, PoolOffer{}, &TransitionError{
					Transition: "pool_accept",
					Reason:     "offer is not pending",
				}
			}
			if !o.ValidUntil.IsZero() && o.ValidUntil.Before(now) {
				return PoolRFQ{}, PoolOffer{}, &TransitionError{
					Transition: "pool_accept",
					Reason:     "offer has expired",
				}
			}
			o.Status = OfferAccepted
			accepted = o
			continue
		}
		if o.Status == OfferPending {
			o.Status = OfferDeclined
		}
	}

	if accepted == nil {
		return PoolRFQ{}, PoolOffer{}, ErrRFQNotFound
	}

	updated.Status = RFQFilled
	return updated, *accepted, nil
}
