package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nautilus/compliance-engine/audit"
	"github.com/nautilus/compliance-engine/compliance"
	"github.com/nautilus/compliance-engine/engine"
	"github.com/nautilus/compliance-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func testPosition() compliance.Position {
	now := time.Date(2025, time.July, 1, 12, 0, 0, 0, time.UTC)
	return compliance.Position{
		ShipID:           "ship-1",
		Year:             2025,
		NetBalanceGco2e:  dec("-5200000"),
		BankedGco2e:      dec("1100000"),
		BorrowedGco2e:    dec("0"),
		BorrowLimitGco2e: dec("2000000"),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// =============================================================================
// POSITIONS
// =============================================================================

func TestPosition_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutPosition(ctx, testPosition()))

	loaded, err := store.GetPosition(ctx, "ship-1", 2025)
	require.NoError(t, err)
	assert.True(t, loaded.NetBalanceGco2e.Equal(dec("-5200000")))
	assert.True(t, loaded.BankedGco2e.Equal(dec("1100000")))
	assert.True(t, loaded.BorrowLimitGco2e.Equal(dec("2000000")))
	assert.Equal(t, 1, loaded.Revision)
}

func TestPosition_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetPosition(context.Background(), "ghost", 2025)
	assert.ErrorIs(t, err, compliance.ErrPositionNotFound)
}

func TestPosition_OptimisticConcurrency(t *testing.T) {
	// GIVEN: A persisted position at revision 1
	// WHEN: Writing with a stale revision
	// THEN: The write fails with a store conflict

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutPosition(ctx, testPosition()))

	current, err := store.GetPosition(ctx, "ship-1", 2025)
	require.NoError(t, err)

	current.BankedGco2e = dec("0")
	require.NoError(t, store.PutPosition(ctx, current)) // revision 1 -> 2

	stale := current // still claims revision 1
	stale.BankedGco2e = dec("999")
	err = store.PutPosition(ctx, stale)
	require.Error(t, err)
	assert.ErrorIs(t, err, compliance.ErrStoreConflict)
	assert.True(t, compliance.IsRetryable(err))

	final, err := store.GetPosition(ctx, "ship-1", 2025)
	require.NoError(t, err)
	assert.True(t, final.BankedGco2e.IsZero(), "stale write must not land")
	assert.Equal(t, 2, final.Revision)
}

func TestPosition_DuplicateInsertConflicts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutPosition(ctx, testPosition()))
	err := store.PutPosition(ctx, testPosition()) // revision 0 insert again
	assert.ErrorIs(t, err, compliance.ErrStoreConflict)
}

// =============================================================================
// DECISIONS AND LEDGER
// =============================================================================

func TestDecision_RoundTripWithPayload(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	d := audit.Decision{
		ID:            "dec-100",
		Timestamp:     time.Date(2025, time.July, 1, 12, 0, 0, 0, time.UTC),
		Type:          audit.DecisionPoolAccept,
		ShipID:        "ship-1",
		Year:          2025,
		PolicyVersion: "2025.1",
		ActingUser:    "ops@fleet",
		Warnings:      []string{"high-value transaction requires additional approval"},
		Payload: audit.PoolAcceptPayload{
			RFQID:         "rfq-1",
			OfferID:       "offer-1",
			Counterparty:  "Meridian Shipping",
			OfferedGco2e:  dec("2000000"),
			PricePerTonne: compliance.NewMoney(dec("180"), "EUR"),
			Direction:     1,
		},
	}
	require.NoError(t, store.AppendDecision(ctx, d))

	loaded, err := store.GetDecision(ctx, "dec-100")
	require.NoError(t, err)
	assert.Equal(t, audit.DecisionPoolAccept, loaded.Type)
	assert.Equal(t, d.Warnings, loaded.Warnings)

	p, ok := loaded.Payload.(audit.PoolAcceptPayload)
	require.True(t, ok, "payload restored through the type tag")
	assert.Equal(t, "Meridian Shipping", p.Counterparty)
	assert.True(t, p.OfferedGco2e.Equal(dec("2000000")))
	assert.True(t, loaded.Payload.FinancialEffect("EUR").Amount.Equal(dec("-360")))
}

func TestDecision_DuplicateIDRejected(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	d := audit.Decision{
		ID:            "dec-1",
		Timestamp:     time.Now().UTC(),
		Type:          audit.DecisionBank,
		ShipID:        "ship-1",
		Year:          2025,
		PolicyVersion: "2025.1",
		Payload:       audit.BankPayload{AmountGco2e: dec("1")},
	}
	require.NoError(t, store.AppendDecision(ctx, d))
	assert.Error(t, store.AppendDecision(ctx, d), "append-only log rejects duplicate ids")
}

func TestDecisionsInRange_OrderedByTimestampThenID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"dec-c", "dec-a", "dec-b"} {
		d := audit.Decision{
			ID:            id,
			Timestamp:     base.Add(time.Duration(2-i) * time.Hour),
			Type:          audit.DecisionBank,
			ShipID:        "ship-1",
			Year:          2025,
			PolicyVersion: "2025.1",
			Payload:       audit.BankPayload{AmountGco2e: dec("1")},
		}
		require.NoError(t, store.AppendDecision(ctx, d))
	}

	decisions, err := store.DecisionsInRange(ctx, base, base.Add(3*time.Hour))
	require.NoError(t, err)
	require.Len(t, decisions, 3)
	assert.Equal(t, "dec-b", decisions[0].ID)
	assert.Equal(t, "dec-a", decisions[1].ID)
	assert.Equal(t, "dec-c", decisions[2].ID)
}

func TestLedger_RoundTripAndQueries(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ts := time.Date(2025, time.July, 1, 12, 0, 0, 0, time.UTC)
	entries := []audit.LedgerEntry{
		{ID: "led-1", Timestamp: ts, RefType: audit.RefDecision, RefID: "dec-1", Amount: compliance.NewMoney(dec("-360"), "EUR"), Memo: "pool fill"},
		{ID: "led-2", Timestamp: ts.Add(time.Minute), RefType: audit.RefTrade, RefID: "ICE-1", Amount: compliance.NewMoney(dec("4000"), "EUR")},
	}
	require.NoError(t, store.AppendEntries(ctx, entries))

	byRef, err := store.EntriesByReference(ctx, audit.RefDecision, "dec-1")
	require.NoError(t, err)
	require.Len(t, byRef, 1)
	assert.True(t, byRef[0].Amount.Amount.Equal(dec("-360")))
	assert.Equal(t, "pool fill", byRef[0].Memo)

	inRange, err := store.EntriesInRange(ctx, ts, ts.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, inRange, 2)
	assert.True(t, audit.SumEntries(inRange, "EUR").Amount.Equal(dec("3640")))
}

// =============================================================================
// POOL RFQS
// =============================================================================

func TestRFQ_RoundTripWithOffers(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rfq := compliance.PoolRFQ{
		ID:        "rfq-1",
		ShipID:    "ship-1",
		Year:      2025,
		NeedGco2e: dec("2000000"),
		Notes:     "June fill",
		Status:    compliance.RFQOpen,
		CreatedAt: time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC),
		Offers: []compliance.PoolOffer{
			{ID: "offer-1", RFQID: "rfq-1", Counterparty: "Meridian Shipping", OfferedGco2e: dec("2000000"), PricePerTonne: compliance.NewMoney(dec("180"), "EUR"), Status: compliance.OfferPending},
		},
	}
	require.NoError(t, store.PutRFQ(ctx, rfq))

	loaded, err := store.GetRFQ(ctx, "rfq-1")
	require.NoError(t, err)
	assert.Equal(t, compliance.RFQOpen, loaded.Status)
	require.Len(t, loaded.Offers, 1)
	assert.Equal(t, "Meridian Shipping", loaded.Offers[0].Counterparty)

	// Status upsert: accept flows mark the RFQ filled and the offer accepted.
	loaded.Status = compliance.RFQFilled
	loaded.Offers[0].Status = compliance.OfferAccepted
	require.NoError(t, store.PutRFQ(ctx, loaded))

	again, err := store.GetRFQ(ctx, "rfq-1")
	require.NoError(t, err)
	assert.Equal(t, compliance.RFQFilled, again.Status)
	assert.Equal(t, compliance.OfferAccepted, again.Offers[0].Status)
}

func TestRFQ_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetRFQ(context.Background(), "rfq-ghost")
	assert.ErrorIs(t, err, compliance.ErrRFQNotFound)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestWithTx_RollbackOnError(t *testing.T) {
	// GIVEN: A transaction that writes a position then fails
	// WHEN: WithTx returns the error
	// THEN: The write is rolled back

	store := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.WithTx(ctx, func(s engine.Store) error {
		if err := s.PutPosition(ctx, testPosition()); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = store.GetPosition(ctx, "ship-1", 2025)
	assert.ErrorIs(t, err, compliance.ErrPositionNotFound)
}

func TestWithTx_CommitOnSuccess(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.WithTx(ctx, func(s engine.Store) error {
		return s.PutPosition(ctx, testPosition())
	})
	require.NoError(t, err)

	_, err = store.GetPosition(ctx, "ship-1", 2025)
	assert.NoError(t, err)
}

func TestWithTx_NestedJoinsTransaction(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.WithTx(ctx, func(s engine.Store) error {
		return s.WithTx(ctx, func(inner engine.Store) error {
			return inner.PutPosition(ctx, testPosition())
		})
	})
	require.NoError(t, err)

	_, err = store.GetPosition(ctx, "ship-1", 2025)
	assert.NoError(t, err)
}
