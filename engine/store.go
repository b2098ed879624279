/*
store.go - Persistence contract for the compliance engine

PURPOSE:

	Defines the interface between the engine and the database. Positions are
	read-modify-write with optimistic concurrency; decisions and ledger
	entries are append-only; RFQs carry offer state.

APPEND-ONLY CONTRACT:

	Decisions and ledger entries have no update or delete operations.
	Corrections are new decisions referencing the original.

OPTIMISTIC CONCURRENCY:

	PutPosition succeeds only when the stored revision matches the revision
	the caller read; otherwise it returns compliance.ErrStoreConflict and the
	caller retries the whole atomic unit. The machine additionally serializes
	same-(ship, year) work through per-key locks, so in-process contention
	never reaches the conflict path.

IMPLEMENTATIONS:
  - store/memory: In-memory, for tests and development
  - store/sqlite: Production SQLite

SEE ALSO:
  - machine.go: The only writer of positions
  - audit/ledger.go: DecisionLog and LedgerStore contracts embedded here
*/
package engine

import (
	"context"

	"github.com/nautilus/compliance-engine/audit"
	"github.com/nautilus/compliance-engine/compliance"
)

// Store is the full persistence surface the engine needs.
type Store interface {
	audit.DecisionLog
	audit.LedgerStore

	// GetPosition returns the position for (ship, year), or
	// compliance.ErrPositionNotFound.
	GetPosition(ctx context.Context, shipID compliance.ShipID, year int) (compliance.Position, error)

	// PutPosition writes a position. The stored revision must match
	// p.Revision; on success the persisted revision is p.Revision+1.
	// Creates the row when none exists (p.Revision == 0).
	PutPosition(ctx context.Context, p compliance.Position) error

	// GetRFQ returns one pooling RFQ with its offers, or
	// compliance.ErrRFQNotFound.
	GetRFQ(ctx context.Context, id string) (compliance.PoolRFQ, error)

	// PutRFQ writes an RFQ and its offers.
	PutRFQ(ctx context.Context, rfq compliance.PoolRFQ) error

	// ListRFQs returns all RFQs for (ship, year), newest first.
	ListRFQs(ctx context.Context, shipID compliance.ShipID, year int) ([]compliance.PoolRFQ, error)

	// WithTx executes fn as one atomic unit: every write inside commits
	// together or not at all.
	WithTx(ctx context.Context, fn func(Store) error) error
}
