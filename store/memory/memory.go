// Package memory provides an in-memory engine.Store for tests and
// development. Writes inside WithTx are rolled back by snapshot/restore.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nautilus/compliance-engine/audit"
	"github.com/nautilus/compliance-engine/compliance"
	"github.com/nautilus/compliance-engine/engine"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

type Store struct {
	mu        sync.RWMutex
	positions map[positionKey]compliance.Position
	decisions []audit.Decision
	decIndex  map[string]int
	ledger    []audit.LedgerEntry
	rfqs      map[string]compliance.PoolRFQ
	rfqOrder  []string
}

type positionKey struct {
	ShipID compliance.ShipID
	Year   int
}

func New() *Store {
	return &Store{
		positions: make(map[positionKey]compliance.Position),
		decIndex:  make(map[string]int),
		rfqs:      make(map[string]compliance.PoolRFQ),
	}
}

var _ engine.Store = (*Store)(nil)

// =============================================================================
// POSITIONS
// =============================================================================

func (s *Store) GetPosition(_ context.Context, shipID compliance.ShipID, year int) (compliance.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getPositionLocked(shipID, year)
}

func (s *Store) getPositionLocked(shipID compliance.ShipID, year int) (compliance.Position, error) {
	p, ok := s.positions[positionKey{ShipID: shipID, Year: year}]
	if !ok {
		return compliance.Position{}, fmt.Errorf("%w: ship %s year %d", compliance.ErrPositionNotFound, shipID, year)
	}
	return p, nil
}

func (s *Store) PutPosition(_ context.Context, p compliance.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putPositionLocked(p)
}

func (s *Store) putPositionLocked(p compliance.Position) error {
	k := positionKey{ShipID: p.ShipID, Year: p.Year}
	stored, exists := s.positions[k]
	if exists && stored.Revision != p.Revision {
		return fmt.Errorf("%w: position %s/%d revision %d, caller had %d",
			compliance.ErrStoreConflict, p.ShipID, p.Year, stored.Revision, p.Revision)
	}
	if !exists && p.Revision != 0 {
		return fmt.Errorf("%w: position %s/%d does not exist", compliance.ErrStoreConflict, p.ShipID, p.Year)
	}
	p.Revision++
	s.positions[k] = p
	return nil
}

// =============================================================================
// DECISIONS (append-only)
// =============================================================================

func (s *Store) AppendDecision(_ context.Context, d audit.Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendDecisionLocked(d)
}

func (s *Store) appendDecisionLocked(d audit.Decision) error {
	if _, exists := s.decIndex[d.ID]; exists {
		return fmt.Errorf("decision %s already recorded", d.ID)
	}
	s.decIndex[d.ID] = len(s.decisions)
	s.decisions = append(s.decisions, d)
	return nil
}

func (s *Store) GetDecision(_ context.Context, id string) (audit.Decision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.decIndex[id]
	if !ok {
		return audit.Decision{}, fmt.Errorf("decision %s not found", id)
	}
	return s.decisions[i], nil
}

func (s *Store) DecisionsInRange(_ context.Context, from, to time.Time) ([]audit.Decision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []audit.Decision
	for _, d := range s.decisions {
		if !d.Timestamp.Before(from) && !d.Timestamp.After(to) {
			out = append(out, d)
		}
	}
	sortDecisions(out)
	return out, nil
}

func sortDecisions(decisions []audit.Decision) {
	sort.SliceStable(decisions, func(i, j int) bool {
		if !decisions[i].Timestamp.Equal(decisions[j].Timestamp) {
			return decisions[i].Timestamp.Before(decisions[j].Timestamp)
		}
		return decisions[i].ID < decisions[j].ID
	})
}

// =============================================================================
// LEDGER (append-only)
// =============================================================================

func (s *Store) AppendEntries(_ context.Context, entries []audit.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendEntriesLocked(entries)
	return nil
}

func (s *Store) appendEntriesLocked(entries []audit.LedgerEntry) {
	s.ledger = append(s.ledger, entries...)
}

func (s *Store) EntriesInRange(_ context.Context, from, to time.Time) ([]audit.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []audit.LedgerEntry
	for _, e := range s.ledger {
		if !e.Timestamp.Before(from) && !e.Timestamp.After(to) {
			out = append(out, e)
		}
	}
	sortEntries(out)
	return out, nil
}

func (s *Store) EntriesByReference(_ context.Context, refType, refID string) ([]audit.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []audit.LedgerEntry
	for _, e := range s.ledger {
		if e.RefType == refType && e.RefID == refID {
			out = append(out, e)
		}
	}
	sortEntries(out)
	return out, nil
}

func sortEntries(entries []audit.LedgerEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].Timestamp.Equal(entries[j].Timestamp) {
			return entries[i].Timestamp.Before(entries[j].Timestamp)
		}
		return entries[i].ID < entries[j].ID
	})
}

// =============================================================================
// POOL RFQS
// =============================================================================

func (s *Store) GetRFQ(_ context.Context, id string) (compliance.PoolRFQ, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getRFQLocked(id)
}

func (s *Store) getRFQLocked(id string) (compliance.PoolRFQ, error) {
	r, ok := s.rfqs[id]
	if !ok {
		return compliance.PoolRFQ{}, fmt.Errorf("%w: rfq %s", compliance.ErrRFQNotFound, id)
	}
	return r, nil
}

func (s *Store) PutRFQ(_ context.Context, rfq compliance.PoolRFQ) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putRFQLocked(rfq)
	return nil
}

func (s *Store) putRFQLocked(rfq compliance.PoolRFQ) {
	if _, exists := s.rfqs[rfq.ID]; !exists {
		s.rfqOrder = append(s.rfqOrder, rfq.ID)
	}
	s.rfqs[rfq.ID] = rfq
}

func (s *Store) ListRFQs(_ context.Context, shipID compliance.ShipID, year int) ([]compliance.PoolRFQ, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []compliance.PoolRFQ
	for i := len(s.rfqOrder) - 1; i >= 0; i-- {
		r := s.rfqs[s.rfqOrder[i]]
		if r.ShipID == shipID && r.Year == year {
			out = append(out, r)
		}
	}
	return out, nil
}

// =============================================================================
// TRANSACTIONS - Snapshot + restore on error
// =============================================================================

// WithTx executes fn against an unlocked view while holding the write lock.
// On error the pre-transaction snapshot is restored.
func (s *Store) WithTx(ctx context.Context, fn func(engine.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(&txView{parent: s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type snapshot struct {
	positions map[positionKey]compliance.Position
	decisions []audit.Decision
	decIndex  map[string]int
	ledger    []audit.LedgerEntry
	rfqs      map[string]compliance.PoolRFQ
	rfqOrder  []string
}

func (s *Store) snapshot() snapshot {
	positions := make(map[positionKey]compliance.Position, len(s.positions))
	for k, v := range s.positions {
		positions[k] = v
	}
	decIndex := make(map[string]int, len(s.decIndex))
	for k, v := range s.decIndex {
		decIndex[k] = v
	}
	rfqs := make(map[string]compliance.PoolRFQ, len(s.rfqs))
	for k, v := range s.rfqs {
		rfqs[k] = v
	}
	return snapshot{
		positions: positions,
		decisions: append([]audit.Decision(nil), s.decisions...),
		decIndex:  decIndex,
		ledger:    append([]audit.LedgerEntry(nil), s.ledger...),
		rfqs:      rfqs,
		rfqOrder:  append([]string(nil), s.rfqOrder...),
	}
}

func (s *Store) restore(snap snapshot) {
	s.positions = snap.positions
	s.decisions = snap.decisions
	s.decIndex = snap.decIndex
	s.ledger = snap.ledger
	s.rfqs = snap.rfqs
	s.rfqOrder = snap.rfqOrder
}

// txView routes Store calls to the parent's unlocked internals while the
// parent holds its write lock for the duration of WithTx.
type txView struct {
	parent *Store
}

var _ engine.Store = (*txView)(nil)

func (v *txView) GetPosition(_ context.Context, shipID compliance.ShipID, year int) (compliance.Position, error) {
	return v.parent.getPositionLocked(shipID, year)
}

func (v *txView) PutPosition(_ context.Context, p compliance.Position) error {
	return v.parent.putPositionLocked(p)
}

func (v *txView) AppendDecision(_ context.Context, d audit.Decision) error {
	return v.parent.appendDecisionLocked(d)
}

func (v *txView) GetDecision(_ context.Context, id string) (audit.Decision, error) {
	i, ok := v.parent.decIndex[id]
	if !ok {
		return audit.Decision{}, fmt.Errorf("decision %s not found", id)
	}
	return v.parent.decisions[i], nil
}

func (v *txView) DecisionsInRange(ctx context.Context, from, to time.Time) ([]audit.Decision, error) {
	var out []audit.Decision
	for _, d := range v.parent.decisions {
		if !d.Timestamp.Before(from) && !d.Timestamp.After(to) {
			out = append(out, d)
		}
	}
	sortDecisions(out)
	return out, nil
}

func (v *txView) AppendEntries(_ context.Context, entries []audit.LedgerEntry) error {
	v.parent.appendEntriesLocked(entries)
	return nil
}

func (v *txView) EntriesInRange(_ context.Context, from, to time.Time) ([]audit.LedgerEntry, error) {
	var out []audit.LedgerEntry
	for _, e := range v.parent.ledger {
		if !e.Timestamp.Before(from) && !e.Timestamp.After(to) {
			out = append(out, e)
		}
	}
	sortEntries(out)
	return out, nil
}

func (v *txView) EntriesByReference(_ context.Context, refType, refID string) ([]audit.LedgerEntry, error) {
	var out []audit.LedgerEntry
	for _, e := range v.parent.ledger {
		if e.RefType == refType && e.RefID == refID {
			out = append(out, e)
		}
	}
	sortEntries(out)
	return out, nil
}

func (v *txView) GetRFQ(_ context.Context, id string) (compliance.PoolRFQ, error) {
	return v.parent.getRFQLocked(id)
}

func (v *txView) PutRFQ(_ context.Context, rfq compliance.PoolRFQ) error {
	v.parent.putRFQLocked(rfq)
	return nil
}

func (v *txView) ListRFQs(_ context.Context, shipID compliance.ShipID, year int) ([]compliance.PoolRFQ, error) {
	var out []compliance.PoolRFQ
	for i := len(v.parent.rfqOrder) - 1; i >= 0; i-- {
		r := v.parent.rfqs[v.parent.rfqOrder[i]]
		if r.ShipID == shipID && r.Year == year {
			out = append(out, r)
		}
	}
	return out, nil
}

// WithTx on an open transaction just runs fn in the same unit.
func (v *txView) WithTx(_ context.Context, fn func(engine.Store) error) error {
	return fn(v)
}
