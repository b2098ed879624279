/*
recorder.go - Decision persistence with financial reconciliation

PURPOSE:

	The single write path for audit decisions. Record() validates the
	decision, derives ids and timestamps, persists the decision and its
	ledger entries, and enforces the reconciliation invariant: the entries
	must sum exactly to the payload's computed financial effect.

RECONCILIATION:

	A mismatch between postings and effect means money is unaccounted for.
	That is never silently corrected - Record fails with a
	ReconciliationError and nothing is persisted. Callers run Record inside
	the store's transactional unit so the decision and entries land together
	or not at all.

SEE ALSO:
  - validate.go: The rules applied before persistence
  - engine/machine.go: Wraps Record in the per-position atomic unit
*/
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/nautilus/compliance-engine/compliance"
)

// =============================================================================
// RECORDER
// =============================================================================

// Recorder appends decisions and their postings. It never updates or
// deletes an existing record.
type Recorder struct {
	Decisions DecisionLog
	Ledger    LedgerStore

	// Clock is overridable for tests; defaults to time.Now UTC.
	Clock func() time.Time
}

func NewRecorder(decisions DecisionLog, ledger LedgerStore) *Recorder {
	return &Recorder{Decisions: decisions, Ledger: ledger}
}

func (r *Recorder) now() time.Time {
	if r.Clock != nil {
		return r.Clock()
	}
	return time.Now().UTC()
}

// Record validates and persists one decision with its ledger entries.
// Violations block persistence; warnings are stored on the decision.
// The sum of entries must equal the payload's financial effect.
func (r *Recorder) Record(ctx context.Context, d Decision, entries []LedgerEntry, currency string) (Decision, error) {
	if d.ID == "" {
		d.ID = fmt.Sprintf("dec-%d", r.now().UnixNano())
	}
	if d.Timestamp.IsZero() {
		d.Timestamp = r.now()
	}
	if d.Type == "" && d.Payload != nil {
		d.Type = d.Payload.DecisionType()
	}

	result := ValidateDecision(d)
	if !result.Valid() {
		return Decision{}, &ValidationError{DecisionType: d.Type, Violations: result.Violations}
	}
	d.Warnings = append(d.Warnings, result.Warnings...)

	// Stamp and link the entries before reconciling.
	for i := range entries {
		if entries[i].ID == "" {
			entries[i].ID = fmt.Sprintf("led-%d-%d", d.Timestamp.UnixNano(), i)
		}
		if entries[i].Timestamp.IsZero() {
			entries[i].Timestamp = d.Timestamp
		}
		if entries[i].RefType == "" {
			entries[i].RefType = RefDecision
		}
		if entries[i].RefID == "" {
			entries[i].RefID = d.ID
		}
	}

	expected := d.Payload.FinancialEffect(currency)
	posted := SumEntries(entries, currency)
	if !posted.Equal(expected) {
		return Decision{}, &compliance.ReconciliationError{
			DecisionID: d.ID,
			Expected:   expected,
			Actual:     posted,
		}
	}

	if err := r.Decisions.AppendDecision(ctx, d); err != nil {
		return Decision{}, fmt.Errorf("append decision: %w", err)
	}
	if len(entries) > 0 {
		if err := r.Ledger.AppendEntries(ctx, entries); err != nil {
			return Decision{}, fmt.Errorf("append ledger entries: %w", err)
		}
	}
	return d, nil
}

// EntriesFor derives the standard ledger entries for a decision. Bank,
// UseBank and Borrow are financially neutral and produce none; PoolAccept
// and HedgeExecute produce a single posting equal to their effect.
func EntriesFor(d Decision, currency string) []LedgerEntry {
	effect := d.Payload.FinancialEffect(currency)
	if effect.IsZero() {
		return nil
	}

	memo := ""
	switch p := d.Payload.(type) {
	case PoolAcceptPayload:
		memo = fmt.Sprintf("pool offer %s accepted from %s (%s gCO2e at %s/t)",
			p.OfferID, p.Counterparty, p.OfferedGco2e, p.PricePerTonne)
	case HedgeExecutePayload:
		memo = fmt.Sprintf("EUA hedge %s %s tCO2 at %s", p.Side, p.QuantityTCO2, p.PricePerTonne)
	default:
		memo = string(d.Type)
	}

	return []LedgerEntry{{
		RefType: RefDecision,
		RefID:   d.ID,
		Amount:  effect,
		Memo:    memo,
	}}
}
