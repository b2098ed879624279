/*
Package engine orchestrates compliance state transitions as atomic units.

PURPOSE:

	The pure pieces live elsewhere: compliance.Position knows how to apply a
	transition, audit.Recorder knows how to persist a reconciled decision.
	The Machine ties them together: it serializes work per (ship, year),
	resolves the governing policy version, runs the transition plus the audit
	write inside one store transaction, and guarantees that a failed
	precondition changes nothing anywhere.

SCHEDULING MODEL:
  - One mutex per (ship, year): concurrent requests against the same
    position are serialized, different positions proceed in parallel
  - All state mutations + decision + ledger writes happen inside WithTx
  - Transitions are short and CPU-bound; there is no mid-transition
    cancellation

SEE ALSO:
  - compliance/position.go: The pure transition rules
  - audit/recorder.go:      Validation and reconciliation
  - store/:                 The Store implementations
*/
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nautilus/compliance-engine/audit"
	"github.com/nautilus/compliance-engine/compliance"
	"github.com/nautilus/compliance-engine/policy"
)

// =============================================================================
// MACHINE
// =============================================================================

// Machine applies compliance state transitions atomically.
type Machine struct {
	Store    Store
	Policies *policy.Registry

	// Clock is overridable for tests; defaults to time.Now UTC.
	Clock func() time.Time

	mu    sync.Mutex
	locks map[positionKey]*sync.Mutex
}

type positionKey struct {
	ShipID compliance.ShipID
	Year   int
}

func NewMachine(store Store, policies *policy.Registry) *Machine {
	return &Machine{
		Store:    store,
		Policies: policies,
		locks:    make(map[positionKey]*sync.Mutex),
	}
}

func (m *Machine) now() time.Time {
	if m.Clock != nil {
		return m.Clock()
	}
	return time.Now().UTC()
}

// lockFor returns the mutex serializing one (ship, year) position.
func (m *Machine) lockFor(shipID compliance.ShipID, year int) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := positionKey{ShipID: shipID, Year: year}
	l, ok := m.locks[k]
	if !ok {
		l = &sync.Mutex{}
		m.locks[k] = l
	}
	return l
}

// =============================================================================
// POSITION LIFECYCLE
// =============================================================================

// OpenPosition creates the position for a ship/year on first voyage
// settlement. The borrowing limit is derived from the annual obligation and
// the policy borrow cap.
func (m *Machine) OpenPosition(ctx context.Context, shipID compliance.ShipID, year int, netBalanceGco2e, annualObligationGco2e decimal.Decimal) (compliance.Position, error) {
	cfg, err := m.Policies.Resolve(m.now())
	if err != nil {
		return compliance.Position{}, err
	}

	lock := m.lockFor(shipID, year)
	lock.Lock()
	defer lock.Unlock()

	limit := compliance.BorrowingLimitFor(annualObligationGco2e, cfg.BorrowCapPct)
	pos := compliance.NewPosition(shipID, year, netBalanceGco2e, limit)
	if err := m.Store.PutPosition(ctx, pos); err != nil {
		return compliance.Position{}, err
	}
	pos.Revision++ // reflect the committed revision back to the caller
	return pos, nil
}

// Position returns the current position for a ship/year.
func (m *Machine) Position(ctx context.Context, shipID compliance.ShipID, year int) (compliance.Position, error) {
	return m.Store.GetPosition(ctx, shipID, year)
}

// RollForward supersedes a year's position with the next year's: banked
// surplus transfers, borrowed deficit becomes the opening obligation.
func (m *Machine) RollForward(ctx context.Context, shipID compliance.ShipID, year int, nextAnnualObligationGco2e decimal.Decimal) (compliance.Position, error) {
	cfg, err := m.Policies.Resolve(m.now())
	if err != nil {
		return compliance.Position{}, err
	}

	lock := m.lockFor(shipID, year)
	lock.Lock()
	defer lock.Unlock()

	var next compliance.Position
	err = m.Store.WithTx(ctx, func(s Store) error {
		current, err := s.GetPosition(ctx, shipID, year)
		if err != nil {
			return err
		}
		next = current.RollForward(compliance.BorrowingLimitFor(nextAnnualObligationGco2e, cfg.BorrowCapPct))
		if err := s.PutPosition(ctx, next); err != nil {
			return err
		}
		next.Revision++
		return nil
	})
	if err != nil {
		return compliance.Position{}, err
	}
	return next, nil
}

// =============================================================================
// TRANSITIONS
// =============================================================================

// Bank moves current-year surplus into the bank. Financially neutral:
// produces a decision but no ledger entries.
func (m *Machine) Bank(ctx context.Context, shipID compliance.ShipID, year int, amount decimal.Decimal, actor string) (compliance.Position, audit.Decision, error) {
	return m.transition(ctx, shipID, year, func(pos compliance.Position, cfg policy.Config) (compliance.Position, audit.Payload, error) {
		next, err := pos.ApplyBank(amount)
		if err != nil {
			return compliance.Position{}, nil, err
		}
		return next, audit.BankPayload{
			AmountGco2e:        amount,
			BalanceBeforeGco2e: pos.NetBalanceGco2e,
			BalanceAfterGco2e:  next.NetBalanceGco2e,
			BankedAfterGco2e:   next.BankedGco2e,
		}, nil
	}, actor)
}

// UseBank draws banked surplus against the current-year deficit.
func (m *Machine) UseBank(ctx context.Context, shipID compliance.ShipID, year int, amount decimal.Decimal, actor string) (compliance.Position, audit.Decision, error) {
	return m.transition(ctx, shipID, year, func(pos compliance.Position, cfg policy.Config) (compliance.Position, audit.Payload, error) {
		next, err := pos.ApplyUseBank(amount)
		if err != nil {
			return compliance.Position{}, nil, err
		}
		return next, audit.UseBankPayload{
			AmountGco2e:        amount,
			BalanceBeforeGco2e: pos.NetBalanceGco2e,
			BalanceAfterGco2e:  next.NetBalanceGco2e,
			BankedAfterGco2e:   next.BankedGco2e,
		}, nil
	}, actor)
}

// Borrow advances allowance from the next compliance year. Recorded for
// audit even though it has no immediate cash effect.
func (m *Machine) Borrow(ctx context.Context, shipID compliance.ShipID, year int, amount decimal.Decimal, actor string) (compliance.Position, audit.Decision, error) {
	return m.transition(ctx, shipID, year, func(pos compliance.Position, cfg policy.Config) (compliance.Position, audit.Payload, error) {
		next, err := pos.ApplyBorrow(amount, cfg.MaxConsecutiveBorrowing)
		if err != nil {
			return compliance.Position{}, nil, err
		}
		return next, audit.BorrowPayload{
			AmountGco2e:        amount,
			BorrowLimitGco2e:   next.BorrowLimitGco2e,
			BorrowedAfterGco2e: next.BorrowedGco2e,
			ConsecutivePeriods: next.ConsecutiveBorrowPeriods,
		}, nil
	}, actor)
}

// transition runs one pure transition plus its audit write as an atomic
// unit. A failed precondition, validation violation, or reconciliation
// mismatch leaves position, decision log and ledger all untouched.
func (m *Machine) transition(
	ctx context.Context,
	shipID compliance.ShipID,
	year int,
	apply func(compliance.Position, policy.Config) (compliance.Position, audit.Payload, error),
	actor string,
) (compliance.Position, audit.Decision, error) {
	cfg, err := m.Policies.Resolve(m.now())
	if err != nil {
		return compliance.Position{}, audit.Decision{}, err
	}

	lock := m.lockFor(shipID, year)
	lock.Lock()
	defer lock.Unlock()

	var (
		out compliance.Position
		dec audit.Decision
	)
	err = m.Store.WithTx(ctx, func(s Store) error {
		pos, err := s.GetPosition(ctx, shipID, year)
		if err != nil {
			return err
		}

		next, payload, err := apply(pos, cfg)
		if err != nil {
			return err
		}
		if err := next.CheckInvariants(); err != nil {
			return err
		}

		d := audit.Decision{
			Timestamp:     m.now(),
			Type:          payload.DecisionType(),
			ShipID:        shipID,
			Year:          year,
			PolicyVersion: cfg.Version,
			ActingUser:    actor,
			Payload:       payload,
		}
		rec := audit.NewRecorder(s, s)
		rec.Clock = m.Clock
		d, err = rec.Record(ctx, d, audit.EntriesFor(d, cfg.Currency), cfg.Currency)
		if err != nil {
			return err
		}

		if err := s.PutPosition(ctx, next); err != nil {
			return err
		}
		next.Revision++ // reflect the committed revision back to the caller
		out, dec = next, d
		return nil
	})
	if err != nil {
		return compliance.Position{}, audit.Decision{}, err
	}
	return out, dec, nil
}

// =============================================================================
// POOLING
// =============================================================================

// CreateRFQ opens a pooling request for a ship/year. Refused while the ship
// is already pooled or has another open RFQ: one pool per ship per period,
// checked before any offer is solicited.
func (m *Machine) CreateRFQ(ctx context.Context, shipID compliance.ShipID, year int, needGco2e decimal.Decimal, notes string) (compliance.PoolRFQ, error) {
	lock := m.lockFor(shipID, year)
	lock.Lock()
	defer lock.Unlock()

	var rfq compliance.PoolRFQ
	err := m.Store.WithTx(ctx, func(s Store) error {
		pos, err := s.GetPosition(ctx, shipID, year)
		if err != nil {
			return err
		}
		if pos.InPool {
			return &compliance.TransitionError{
				Transition: "pool_accept",
				Reason:     "ship already has an open pool this period",
			}
		}

		existing, err := s.ListRFQs(ctx, shipID, year)
		if err != nil {
			return err
		}
		for _, r := range existing {
			if r.Status == compliance.RFQOpen {
				return &compliance.TransitionError{
					Transition: "pool_accept",
					Reason:     "an open rfq already exists for this period",
				}
			}
		}

		rfq = compliance.PoolRFQ{
			ID:        fmt.Sprintf("rfq-%d", m.now().UnixNano()),
			ShipID:    shipID,
			Year:      year,
			NeedGco2e: needGco2e,
			Notes:     notes,
			Status:    compliance.RFQOpen,
			CreatedAt: m.now(),
		}
		return s.PutRFQ(ctx, rfq)
	})
	if err != nil {
		return compliance.PoolRFQ{}, err
	}
	return rfq, nil
}

// SubmitOffer attaches a counterparty offer to an open RFQ.
func (m *Machine) SubmitOffer(ctx context.Context, rfqID string, offer compliance.PoolOffer) (compliance.PoolRFQ, error) {
	var rfq compliance.PoolRFQ
	err := m.Store.WithTx(ctx, func(s Store) error {
		r, err := s.GetRFQ(ctx, rfqID)
		if err != nil {
			return err
		}
		if r.Status != compliance.RFQOpen {
			return &compliance.TransitionError{Transition: "pool_accept", Reason: "rfq is not open"}
		}
		if !offer.OfferedGco2e.IsPositive() {
			return &compliance.InvalidFactsError{Field: "offeredGco2e", Reason: "must be positive", Value: offer.OfferedGco2e.String()}
		}

		offer.ID = fmt.Sprintf("offer-%d", m.now().UnixNano())
		offer.RFQID = r.ID
		offer.Status = compliance.OfferPending
		r.Offers = append(r.Offers, offer)
		if err := s.PutRFQ(ctx, r); err != nil {
			return err
		}
		rfq = r
		return nil
	})
	if err != nil {
		return compliance.PoolRFQ{}, err
	}
	return rfq, nil
}

// AcceptOffer accepts one offer on an RFQ, declines all sibling pending
// offers, pools the ship, and posts the offer cost to the ledger - all in
// one atomic step.
func (m *Machine) AcceptOffer(ctx context.Context, rfqID, offerID, actor string) (compliance.Position, audit.Decision, error) {
	cfg, err := m.Policies.Resolve(m.now())
	if err != nil {
		return compliance.Position{}, audit.Decision{}, err
	}

	// Lock ordering: resolve the RFQ first to learn the position key.
	probe, err := m.Store.GetRFQ(ctx, rfqID)
	if err != nil {
		return compliance.Position{}, audit.Decision{}, err
	}
	lock := m.lockFor(probe.ShipID, probe.Year)
	lock.Lock()
	defer lock.Unlock()

	var (
		out compliance.Position
		dec audit.Decision
	)
	err = m.Store.WithTx(ctx, func(s Store) error {
		rfq, err := s.GetRFQ(ctx, rfqID)
		if err != nil {
			return err
		}

		updated, accepted, err := rfq.Accept(offerID, m.now())
		if err != nil {
			return err
		}

		pos, err := s.GetPosition(ctx, rfq.ShipID, rfq.Year)
		if err != nil {
			return err
		}
		next, err := pos.ApplyPoolAccept(accepted.OfferedGco2e, rfq.Direction())
		if err != nil {
			return err
		}
		if err := next.CheckInvariants(); err != nil {
			return err
		}

		d := audit.Decision{
			Timestamp:     m.now(),
			Type:          audit.DecisionPoolAccept,
			ShipID:        rfq.ShipID,
			Year:          rfq.Year,
			PolicyVersion: cfg.Version,
			ActingUser:    actor,
			Payload: audit.PoolAcceptPayload{
				RFQID:         rfq.ID,
				OfferID:       accepted.ID,
				Counterparty:  accepted.Counterparty,
				OfferedGco2e:  accepted.OfferedGco2e,
				PricePerTonne: accepted.PricePerTonne,
				Direction:     rfq.Direction(),
			},
		}
		rec := audit.NewRecorder(s, s)
		rec.Clock = m.Clock
		d, err = rec.Record(ctx, d, audit.EntriesFor(d, cfg.Currency), cfg.Currency)
		if err != nil {
			return err
		}

		if err := s.PutRFQ(ctx, updated); err != nil {
			return err
		}
		if err := s.PutPosition(ctx, next); err != nil {
			return err
		}
		next.Revision++ // reflect the committed revision back to the caller
		out, dec = next, d
		return nil
	})
	if err != nil {
		return compliance.Position{}, audit.Decision{}, err
	}
	return out, dec, nil
}

// =============================================================================
// HEDGING
// =============================================================================

// ExecuteHedge records an executed EUA hedge with its ledger posting.
// Hedges do not mutate the compliance position; their PnL enters the Total
// Cost of Compliance as an explicit input.
func (m *Machine) ExecuteHedge(ctx context.Context, shipID compliance.ShipID, year int, payload audit.HedgeExecutePayload, actor string) (audit.Decision, error) {
	cfg, err := m.Policies.Resolve(m.now())
	if err != nil {
		return audit.Decision{}, err
	}

	var dec audit.Decision
	err = m.Store.WithTx(ctx, func(s Store) error {
		d := audit.Decision{
			Timestamp:     m.now(),
			Type:          audit.DecisionHedgeExecute,
			ShipID:        shipID,
			Year:          year,
			PolicyVersion: cfg.Version,
			ActingUser:    actor,
			Payload:       payload,
		}
		rec := audit.NewRecorder(s, s)
		rec.Clock = m.Clock
		d, err := rec.Record(ctx, d, audit.EntriesFor(d, cfg.Currency), cfg.Currency)
		if err != nil {
			return err
		}
		dec = d
		return nil
	})
	if err != nil {
		return audit.Decision{}, err
	}
	return dec, nil
}
