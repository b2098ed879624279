/*
ledger.go - Append-only financial postings

PURPOSE:

	Every decision with financial effect produces signed ledger postings. The
	ledger is the source of truth for the money side of compliance: what was
	paid for pooling, what a hedge cost or returned. Postings are never
	updated or deleted.

CRITICAL INVARIANTS:
 1. APPEND-ONLY: no Update, no Delete
 2. RECONCILED: entries for one decision sum exactly to its computed
    financial effect - checked at write time, mismatch is fatal
 3. ATOMIC: entries for the same decision are written together

SEE ALSO:
  - recorder.go: Enforces the reconciliation invariant
  - export/:     Regulatory report assembly over decisions + entries
*/
package audit

import (
	"context"
	"time"

	"github.com/nautilus/compliance-engine/compliance"
)

// =============================================================================
// LEDGER ENTRY - Immutable signed posting
// =============================================================================

// Reference types linking an entry back to its origin.
const (
	RefDecision = "DECISION" // RefID is a Decision.ID
	RefTrade    = "TRADE"    // RefID is an external trade reference
)

// LedgerEntry is one immutable financial posting. Negative amounts are cash
// out (costs), positive amounts cash in.
type LedgerEntry struct {
	ID        string
	Timestamp time.Time
	RefType   string
	RefID     string
	Amount    compliance.Money
	Memo      string
}

// =============================================================================
// STORE CONTRACTS - Implemented by store/memory and store/sqlite
// =============================================================================

// DecisionLog persists decisions. Append-only.
type DecisionLog interface {
	// AppendDecision adds a decision. Fails if the id already exists.
	AppendDecision(ctx context.Context, d Decision) error

	// GetDecision returns one decision by id.
	GetDecision(ctx context.Context, id string) (Decision, error)

	// DecisionsInRange returns decisions with Timestamp in [from, to],
	// ordered by (Timestamp, ID).
	DecisionsInRange(ctx context.Context, from, to time.Time) ([]Decision, error)
}

// LedgerStore persists postings. Append-only.
type LedgerStore interface {
	// AppendEntries adds all entries atomically.
	AppendEntries(ctx context.Context, entries []LedgerEntry) error

	// EntriesInRange returns entries with Timestamp in [from, to],
	// ordered by (Timestamp, ID).
	EntriesInRange(ctx context.Context, from, to time.Time) ([]LedgerEntry, error)

	// EntriesByReference returns entries for one (refType, refID), ordered
	// by (Timestamp, ID).
	EntriesByReference(ctx context.Context, refType, refID string) ([]LedgerEntry, error)
}

// SumEntries totals a set of postings in the given currency.
func SumEntries(entries []LedgerEntry, currency string) compliance.Money {
	total := compliance.ZeroMoney(currency)
	for _, e := range entries {
		total = total.Add(e.Amount)
	}
	return total
}
