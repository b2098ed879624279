/*
position.go - Per-ship-per-year compliance position and its transitions

PURPOSE:

	A Position tracks where one ship stands for one compliance year: the
	current-year net balance, surplus banked from prior years, deficit
	borrowed against the next year, and whether the ship is pooled. The four
	transitions (bank, use-bank, borrow, pool-accept) are the ONLY ways a
	position changes.

INVARIANTS (enforced on every transition):
 1. BankedGco2e   >= 0
 2. BorrowedGco2e >= 0 and BorrowedGco2e <= BorrowLimitGco2e
 3. InPool excludes any successful Borrow
 4. A rejected transition leaves the position untouched

TRANSITION STYLE:

	Transitions are value methods returning a NEW position. A precondition
	failure returns a TransitionError and the zero Position; the caller's
	copy is never half-mutated. The Machine (machine.go) wraps these pure
	applications with locking, persistence, and audit recording.

CARRY-OVER:

	Year-to-year transfer is explicit: RollForward produces the next year's
	position, moving banked surplus across and converting borrowed deficit
	into the new year's opening obligation. Nothing rolls over implicitly.

SEE ALSO:
  - machine.go: Atomic orchestration with audit recording
  - audit/decision.go: The decision payloads each transition produces
*/
package compliance

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// POSITION - Banked / borrowed / pooled state for (ship, year)
// =============================================================================

// Position is the compliance position of one ship for one compliance year.
// All gCO2e quantities are signed decimals; positive net balance = surplus.
type Position struct {
	ShipID ShipID
	Year   int

	NetBalanceGco2e  decimal.Decimal // current-year net, positive = surplus
	BankedGco2e      decimal.Decimal // surplus carried from prior years, >= 0
	BorrowedGco2e    decimal.Decimal // deficit advanced from next year, >= 0
	BorrowLimitGco2e decimal.Decimal // absolute borrowing ceiling for this year

	ConsecutiveBorrowPeriods int
	InPool                   bool

	// Revision increments on every persisted mutation; the store uses it for
	// optimistic concurrency on read-modify-write.
	Revision  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BorrowingLimitFor derives the absolute borrow ceiling from the year's
// compliance obligation and the policy cap fraction (e.g. 2%).
func BorrowingLimitFor(annualObligationGco2e, capPct decimal.Decimal) decimal.Decimal {
	return annualObligationGco2e.Mul(capPct)
}

// NewPosition opens a position on first voyage settlement for a ship/year.
func NewPosition(shipID ShipID, year int, netBalance, borrowLimit decimal.Decimal) Position {
	now := time.Now().UTC()
	return Position{
		ShipID:           shipID,
		Year:             year,
		NetBalanceGco2e:  netBalance,
		BankedGco2e:      decimal.Zero,
		BorrowedGco2e:    decimal.Zero,
		BorrowLimitGco2e: borrowLimit,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// Deficit returns the magnitude of the current-year deficit, zero when the
// balance is non-negative.
func (p Position) Deficit() decimal.Decimal {
	if p.NetBalanceGco2e.IsNegative() {
		return p.NetBalanceGco2e.Abs()
	}
	return decimal.Zero
}

// BorrowHeadroom returns how much more may be borrowed this year.
func (p Position) BorrowHeadroom() decimal.Decimal {
	return p.BorrowLimitGco2e.Sub(p.BorrowedGco2e)
}

// =============================================================================
// TRANSITIONS - Pure, all-or-nothing
// =============================================================================

// ApplyBank moves surplus from the current-year balance into the bank.
// Precondition: amount > 0 and amount <= current net balance.
func (p Position) ApplyBank(amount decimal.Decimal) (Position, error) {
	if !amount.IsPositive() {
		return Position{}, &TransitionError{Transition: "bank", Reason: "amount must be positive", Requested: amount}
	}
	if amount.GreaterThan(p.NetBalanceGco2e) {
		return Position{}, &TransitionError{
			Transition: "bank",
			Reason:     "amount exceeds current-year surplus",
			Requested:  amount,
			Available:  p.NetBalanceGco2e,
		}
	}

	p.NetBalanceGco2e = p.NetBalanceGco2e.Sub(amount)
	p.BankedGco2e = p.BankedGco2e.Add(amount)
	return p.touched(), nil
}

// ApplyUseBank draws banked surplus against a current-year deficit.
// Precondition: amount > 0, a deficit exists, and amount does not exceed
// either the deficit or the banked surplus.
func (p Position) ApplyUseBank(amount decimal.Decimal) (Position, error) {
	if !amount.IsPositive() {
		return Position{}, &TransitionError{Transition: "use_bank", Reason: "amount must be positive", Requested: amount}
	}
	deficit := p.Deficit()
	if deficit.IsZero() {
		return Position{}, &TransitionError{Transition: "use_bank", Reason: "no current-year deficit to offset", Requested: amount}
	}
	available := decimal.Min(deficit, p.BankedGco2e)
	if amount.GreaterThan(available) {
		return Position{}, &TransitionError{
			Transition: "use_bank",
			Reason:     "amount exceeds usable banked surplus",
			Requested:  amount,
			Available:  available,
		}
	}

	p.NetBalanceGco2e = p.NetBalanceGco2e.Add(amount)
	p.BankedGco2e = p.BankedGco2e.Sub(amount)
	return p.touched(), nil
}

// ApplyBorrow advances allowance from the next compliance year to cover a
// current deficit. Precondition: not pooled, amount > 0, a deficit exists,
// headroom under the borrow limit remains, and the consecutive-period limit
// has not been reached. Borrowing while pooled is always forbidden.
func (p Position) ApplyBorrow(amount decimal.Decimal, maxConsecutivePeriods int) (Position, error) {
	if p.InPool {
		return Position{}, &TransitionError{Transition: "borrow", Reason: "borrowing is forbidden while pooled", Requested: amount}
	}
	if !amount.IsPositive() {
		return Position{}, &TransitionError{Transition: "borrow", Reason: "amount must be positive", Requested: amount}
	}
	deficit := p.Deficit()
	if deficit.IsZero() {
		return Position{}, &TransitionError{Transition: "borrow", Reason: "no current-year deficit to cover", Requested: amount}
	}
	if p.ConsecutiveBorrowPeriods >= maxConsecutivePeriods {
		return Position{}, &TransitionError{
			Transition: "borrow",
			Reason:     "consecutive borrowing period limit reached",
			Requested:  amount,
		}
	}
	available := decimal.Min(deficit, p.BorrowHeadroom())
	if amount.GreaterThan(available) {
		return Position{}, &TransitionError{
			Transition: "borrow",
			Reason:     "amount exceeds borrowing headroom",
			Requested:  amount,
			Available:  available,
		}
	}

	p.NetBalanceGco2e = p.NetBalanceGco2e.Add(amount)
	p.BorrowedGco2e = p.BorrowedGco2e.Add(amount)
	p.ConsecutiveBorrowPeriods++
	return p.touched(), nil
}

// ApplyPoolAccept applies an accepted pool offer. Direction +1 buys
// compliance into the position, -1 sells surplus out of it. The ship is
// pooled for the remainder of the period; one pool per ship per period.
func (p Position) ApplyPoolAccept(offerAmount decimal.Decimal, direction int) (Position, error) {
	if p.InPool {
		return Position{}, &TransitionError{Transition: "pool_accept", Reason: "ship already has an open pool this period", Requested: offerAmount}
	}
	if !offerAmount.IsPositive() {
		return Position{}, &TransitionError{Transition: "pool_accept", Reason: "offer amount must be positive", Requested: offerAmount}
	}
	if direction != 1 && direction != -1 {
		return Position{}, &TransitionError{Transition: "pool_accept", Reason: "direction must be +1 or -1"}
	}

	signed := offerAmount
	if direction < 0 {
		signed = offerAmount.Neg()
	}
	p.NetBalanceGco2e = p.NetBalanceGco2e.Add(signed)
	p.InPool = true
	return p.touched(), nil
}

// RollForward produces the successor position for the next compliance year.
// Banked surplus transfers across; borrowed deficit becomes the opening
// obligation of the new year. The consecutive borrowing counter carries only
// when borrowing occurred in the ending year.
func (p Position) RollForward(nextYearLimit decimal.Decimal) Position {
	consecutive := 0
	if p.BorrowedGco2e.IsPositive() {
		consecutive = p.ConsecutiveBorrowPeriods
	}
	next := NewPosition(p.ShipID, p.Year+1, p.BorrowedGco2e.Neg(), nextYearLimit)
	next.BankedGco2e = p.BankedGco2e
	next.ConsecutiveBorrowPeriods = consecutive
	return next
}

func (p Position) touched() Position {
	p.UpdatedAt = time.Now().UTC()
	return p
}

// CheckInvariants verifies the position invariants hold. Used by the
// property tests and as a belt check before persistence.
func (p Position) CheckInvariants() error {
	if p.BankedGco2e.IsNegative() {
		return &TransitionError{Transition: "invariant", Reason: "banked surplus is negative", Available: p.BankedGco2e}
	}
	if p.BorrowedGco2e.IsNegative() {
		return &TransitionError{Transition: "invariant", Reason: "borrowed deficit is negative", Available: p.BorrowedGco2e}
	}
	if p.BorrowedGco2e.GreaterThan(p.BorrowLimitGco2e) {
		return &TransitionError{
			Transition: "invariant",
			Reason:     "borrowed deficit exceeds borrowing limit",
			Requested:  p.BorrowedGco2e,
			Available:  p.BorrowLimitGco2e,
		}
	}
	return nil
}
