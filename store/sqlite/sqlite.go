/*
Package sqlite provides the SQLite-backed engine.Store.

PURPOSE:

	Production persistence for compliance positions, the append-only decision
	log, the append-only ledger, and pooling RFQs. The same patterns apply to
	PostgreSQL with minor dialect changes.

APPEND-ONLY ENFORCEMENT:
  - No UPDATE or DELETE statements touch decisions or ledger_entries
  - Corrections are new decisions referencing the original

OPTIMISTIC CONCURRENCY:

	positions carries a revision column. Updates assert the revision the
	caller read; zero rows affected means a concurrent writer won and the
	caller gets compliance.ErrStoreConflict.

WAL MODE:

	Opened with WAL journaling: readers don't block, single writer, better
	crash recovery.

PRECISION:

	All decimal quantities are stored as TEXT and re-parsed with
	shopspring/decimal. Never as REAL.

SEE ALSO:
  - engine/store.go: The contract implemented here
  - store/memory:    In-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/nautilus/compliance-engine/audit"
	"github.com/nautilus/compliance-engine/compliance"
	"github.com/nautilus/compliance-engine/engine"
)

// Store implements engine.Store on SQLite.
type Store struct {
	db *sql.DB
	q  querier // db outside a transaction, tx inside
}

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var _ engine.Store = (*Store)(nil)

// New opens (and migrates) a SQLite store. Use ":memory:" for tests.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection avoids SQLITE_BUSY under concurrent transitions.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, q: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	-- Compliance positions, one row per (ship, year)
	CREATE TABLE IF NOT EXISTS positions (
		ship_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		net_balance_gco2e TEXT NOT NULL,
		banked_gco2e TEXT NOT NULL,
		borrowed_gco2e TEXT NOT NULL,
		borrow_limit_gco2e TEXT NOT NULL,
		consecutive_borrow_periods INTEGER NOT NULL,
		in_pool INTEGER NOT NULL,
		revision INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (ship_id, year)
	);

	-- Audit decisions (append-only)
	CREATE TABLE IF NOT EXISTS decisions (
		id TEXT PRIMARY KEY,
		ts TEXT NOT NULL,
		decision_type TEXT NOT NULL,
		ship_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		policy_version TEXT NOT NULL,
		acting_user TEXT,
		corrects_id TEXT,
		payload_json TEXT NOT NULL,
		warnings_json TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_decisions_ts ON decisions(ts);
	CREATE INDEX IF NOT EXISTS idx_decisions_ship_year ON decisions(ship_id, year);

	-- Ledger entries (append-only)
	CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		ts TEXT NOT NULL,
		ref_type TEXT NOT NULL,
		ref_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		memo TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_ledger_ts ON ledger_entries(ts);
	CREATE INDEX IF NOT EXISTS idx_ledger_reference ON ledger_entries(ref_type, ref_id);

	-- Pooling RFQs and offers
	CREATE TABLE IF NOT EXISTS pool_rfqs (
		id TEXT PRIMARY KEY,
		ship_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		need_gco2e TEXT NOT NULL,
		notes TEXT,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_rfqs_ship_year ON pool_rfqs(ship_id, year);

	CREATE TABLE IF NOT EXISTS pool_offers (
		id TEXT PRIMARY KEY,
		rfq_id TEXT NOT NULL REFERENCES pool_rfqs(id),
		counterparty TEXT NOT NULL,
		offered_gco2e TEXT NOT NULL,
		price_per_tonne TEXT NOT NULL,
		price_currency TEXT NOT NULL,
		valid_until TEXT,
		status TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_offers_rfq ON pool_offers(rfq_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// timeLayout is fixed-width so stored timestamps compare lexicographically
// in range scans and ORDER BY clauses. RFC3339Nano would drop trailing
// zeros and break that ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// =============================================================================
// POSITIONS
// =============================================================================

func (s *Store) GetPosition(ctx context.Context, shipID compliance.ShipID, year int) (compliance.Position, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT ship_id, year, net_balance_gco2e, banked_gco2e, borrowed_gco2e,
		       borrow_limit_gco2e, consecutive_borrow_periods, in_pool, revision,
		       created_at, updated_at
		FROM positions WHERE ship_id = ? AND year = ?`, string(shipID), year)
	return scanPosition(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPosition(row rowScanner) (compliance.Position, error) {
	var (
		p                          compliance.Position
		shipID                     string
		net, banked, borrowed, lim string
		inPool                     int
		createdAt, updatedAt       string
	)
	err := row.Scan(&shipID, &p.Year, &net, &banked, &borrowed, &lim,
		&p.ConsecutiveBorrowPeriods, &inPool, &p.Revision, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return compliance.Position{}, compliance.ErrPositionNotFound
	}
	if err != nil {
		return compliance.Position{}, err
	}

	p.ShipID = compliance.ShipID(shipID)
	p.InPool = inPool != 0
	if p.NetBalanceGco2e, err = decimal.NewFromString(net); err != nil {
		return compliance.Position{}, err
	}
	if p.BankedGco2e, err = decimal.NewFromString(banked); err != nil {
		return compliance.Position{}, err
	}
	if p.BorrowedGco2e, err = decimal.NewFromString(borrowed); err != nil {
		return compliance.Position{}, err
	}
	if p.BorrowLimitGco2e, err = decimal.NewFromString(lim); err != nil {
		return compliance.Position{}, err
	}
	if p.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return compliance.Position{}, err
	}
	if p.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return compliance.Position{}, err
	}
	return p, nil
}

func (s *Store) PutPosition(ctx context.Context, p compliance.Position) error {
	inPool := 0
	if p.InPool {
		inPool = 1
	}

	if p.Revision == 0 {
		_, err := s.q.ExecContext(ctx, `
			INSERT INTO positions (ship_id, year, net_balance_gco2e, banked_gco2e,
				borrowed_gco2e, borrow_limit_gco2e, consecutive_borrow_periods,
				in_pool, revision, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
			string(p.ShipID), p.Year, p.NetBalanceGco2e.String(), p.BankedGco2e.String(),
			p.BorrowedGco2e.String(), p.BorrowLimitGco2e.String(), p.ConsecutiveBorrowPeriods,
			inPool, formatTime(p.CreatedAt), formatTime(p.UpdatedAt))
		if err != nil {
			return fmt.Errorf("%w: insert position %s/%d: %v", compliance.ErrStoreConflict, p.ShipID, p.Year, err)
		}
		return nil
	}

	res, err := s.q.ExecContext(ctx, `
		UPDATE positions SET net_balance_gco2e = ?, banked_gco2e = ?, borrowed_gco2e = ?,
			borrow_limit_gco2e = ?, consecutive_borrow_periods = ?, in_pool = ?,
			revision = revision + 1, updated_at = ?
		WHERE ship_id = ? AND year = ? AND revision = ?`,
		p.NetBalanceGco2e.String(), p.BankedGco2e.String(), p.BorrowedGco2e.String(),
		p.BorrowLimitGco2e.String(), p.ConsecutiveBorrowPeriods, inPool,
		formatTime(p.UpdatedAt), string(p.ShipID), p.Year, p.Revision)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: position %s/%d revision %d stale", compliance.ErrStoreConflict, p.ShipID, p.Year, p.Revision)
	}
	return nil
}

// =============================================================================
// DECISIONS
// =============================================================================

func (s *Store) AppendDecision(ctx context.Context, d audit.Decision) error {
	payload, err := audit.MarshalPayload(d.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	warnings, err := json.Marshal(d.Warnings)
	if err != nil {
		return err
	}

	_, err = s.q.ExecContext(ctx, `
		INSERT INTO decisions (id, ts, decision_type, ship_id, year, policy_version,
			acting_user, corrects_id, payload_json, warnings_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, formatTime(d.Timestamp), string(d.Type), string(d.ShipID), d.Year,
		d.PolicyVersion, d.ActingUser, d.CorrectsID, string(payload), string(warnings))
	if err != nil {
		return fmt.Errorf("insert decision %s: %w", d.ID, err)
	}
	return nil
}

func (s *Store) GetDecision(ctx context.Context, id string) (audit.Decision, error) {
	rows, err := s.q.QueryContext(ctx, decisionSelect+` WHERE id = ?`, id)
	if err != nil {
		return audit.Decision{}, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return audit.Decision{}, err
		}
		return audit.Decision{}, fmt.Errorf("decision %s not found", id)
	}
	return scanDecision(rows)
}

func (s *Store) DecisionsInRange(ctx context.Context, from, to time.Time) ([]audit.Decision, error) {
	rows, err := s.q.QueryContext(ctx, decisionSelect+`
		WHERE ts >= ? AND ts <= ? ORDER BY ts, id`,
		formatTime(from), formatTime(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []audit.Decision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

const decisionSelect = `
	SELECT id, ts, decision_type, ship_id, year, policy_version, acting_user,
	       corrects_id, payload_json, warnings_json
	FROM decisions`

func scanDecision(rows *sql.Rows) (audit.Decision, error) {
	var (
		d                 audit.Decision
		ts, dtype, ship   string
		payload, warnings string
	)
	if err := rows.Scan(&d.ID, &ts, &dtype, &ship, &d.Year, &d.PolicyVersion,
		&d.ActingUser, &d.CorrectsID, &payload, &warnings); err != nil {
		return audit.Decision{}, err
	}

	var err error
	if d.Timestamp, err = time.Parse(timeLayout, ts); err != nil {
		return audit.Decision{}, err
	}
	d.Type = audit.DecisionType(dtype)
	d.ShipID = compliance.ShipID(ship)
	if d.Payload, err = audit.UnmarshalPayload(d.Type, []byte(payload)); err != nil {
		return audit.Decision{}, err
	}
	if warnings != "" {
		if err := json.Unmarshal([]byte(warnings), &d.Warnings); err != nil {
			return audit.Decision{}, err
		}
	}
	return d, nil
}

// =============================================================================
// LEDGER
// =============================================================================

func (s *Store) AppendEntries(ctx context.Context, entries []audit.LedgerEntry) error {
	for _, e := range entries {
		_, err := s.q.ExecContext(ctx, `
			INSERT INTO ledger_entries (id, ts, ref_type, ref_id, amount, currency, memo)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			e.ID, formatTime(e.Timestamp), e.RefType, e.RefID,
			e.Amount.Amount.String(), e.Amount.Currency, e.Memo)
		if err != nil {
			return fmt.Errorf("insert ledger entry %s: %w", e.ID, err)
		}
	}
	return nil
}

func (s *Store) EntriesInRange(ctx context.Context, from, to time.Time) ([]audit.LedgerEntry, error) {
	return s.queryEntries(ctx, `
		SELECT id, ts, ref_type, ref_id, amount, currency, memo
		FROM ledger_entries WHERE ts >= ? AND ts <= ? ORDER BY ts, id`,
		formatTime(from), formatTime(to))
}

func (s *Store) EntriesByReference(ctx context.Context, refType, refID string) ([]audit.LedgerEntry, error) {
	return s.queryEntries(ctx, `
		SELECT id, ts, ref_type, ref_id, amount, currency, memo
		FROM ledger_entries WHERE ref_type = ? AND ref_id = ? ORDER BY ts, id`,
		refType, refID)
}

func (s *Store) queryEntries(ctx context.Context, query string, args ...any) ([]audit.LedgerEntry, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []audit.LedgerEntry
	for rows.Next() {
		var (
			e          audit.LedgerEntry
			ts, amount string
			currency   string
		)
		if err := rows.Scan(&e.ID, &ts, &e.RefType, &e.RefID, &amount, &currency, &e.Memo); err != nil {
			return nil, err
		}
		if e.Timestamp, err = time.Parse(timeLayout, ts); err != nil {
			return nil, err
		}
		d, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, err
		}
		e.Amount = compliance.NewMoney(d, currency)
		out = append(out, e)
	}
	return out, rows.Err()
}

// =============================================================================
// POOL RFQS
// =============================================================================

func (s *Store) GetRFQ(ctx context.Context, id string) (compliance.PoolRFQ, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, ship_id, year, need_gco2e, notes, status, created_at
		FROM pool_rfqs WHERE id = ?`, id)
	if err != nil {
		return compliance.PoolRFQ{}, err
	}

	if !rows.Next() {
		err := rows.Err()
		rows.Close()
		if err != nil {
			return compliance.PoolRFQ{}, err
		}
		return compliance.PoolRFQ{}, fmt.Errorf("%w: rfq %s", compliance.ErrRFQNotFound, id)
	}
	rfq, err := scanRFQ(rows)
	rows.Close()
	if err != nil {
		return compliance.PoolRFQ{}, err
	}

	rfq.Offers, err = s.offersFor(ctx, rfq.ID)
	return rfq, err
}

func (s *Store) PutRFQ(ctx context.Context, rfq compliance.PoolRFQ) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO pool_rfqs (id, ship_id, year, need_gco2e, notes, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET status = excluded.status, notes = excluded.notes`,
		rfq.ID, string(rfq.ShipID), rfq.Year, rfq.NeedGco2e.String(), rfq.Notes,
		string(rfq.Status), formatTime(rfq.CreatedAt))
	if err != nil {
		return err
	}

	for _, o := range rfq.Offers {
		validUntil := ""
		if !o.ValidUntil.IsZero() {
			validUntil = formatTime(o.ValidUntil)
		}
		_, err := s.q.ExecContext(ctx, `
			INSERT INTO pool_offers (id, rfq_id, counterparty, offered_gco2e,
				price_per_tonne, price_currency, valid_until, status)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET status = excluded.status`,
			o.ID, rfq.ID, o.Counterparty, o.OfferedGco2e.String(),
			o.PricePerTonne.Amount.String(), o.PricePerTonne.Currency, validUntil, string(o.Status))
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ListRFQs(ctx context.Context, shipID compliance.ShipID, year int) ([]compliance.PoolRFQ, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, ship_id, year, need_gco2e, notes, status, created_at
		FROM pool_rfqs WHERE ship_id = ? AND year = ? ORDER BY created_at DESC`,
		string(shipID), year)
	if err != nil {
		return nil, err
	}

	var out []compliance.PoolRFQ
	for rows.Next() {
		rfq, err := scanRFQ(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, rfq)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, err
	}

	for i := range out {
		out[i].Offers, err = s.offersFor(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func scanRFQ(rows *sql.Rows) (compliance.PoolRFQ, error) {
	var (
		rfq             compliance.PoolRFQ
		ship, need      string
		status, created string
	)
	if err := rows.Scan(&rfq.ID, &ship, &rfq.Year, &need, &rfq.Notes, &status, &created); err != nil {
		return compliance.PoolRFQ{}, err
	}

	var err error
	rfq.ShipID = compliance.ShipID(ship)
	rfq.Status = compliance.RFQStatus(status)
	if rfq.NeedGco2e, err = decimal.NewFromString(need); err != nil {
		return compliance.PoolRFQ{}, err
	}
	if rfq.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return compliance.PoolRFQ{}, err
	}
	return rfq, nil
}

func (s *Store) offersFor(ctx context.Context, rfqID string) ([]compliance.PoolOffer, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, rfq_id, counterparty, offered_gco2e, price_per_tonne,
		       price_currency, valid_until, status
		FROM pool_offers WHERE rfq_id = ? ORDER BY id`, rfqID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []compliance.PoolOffer
	for rows.Next() {
		var (
			o                 compliance.PoolOffer
			offered, price    string
			currency, validTS string
			status            string
		)
		if err := rows.Scan(&o.ID, &o.RFQID, &o.Counterparty, &offered, &price,
			&currency, &validTS, &status); err != nil {
			return nil, err
		}
		if o.OfferedGco2e, err = decimal.NewFromString(offered); err != nil {
			return nil, err
		}
		d, err := decimal.NewFromString(price)
		if err != nil {
			return nil, err
		}
		o.PricePerTonne = compliance.NewMoney(d, currency)
		if validTS != "" {
			if o.ValidUntil, err = time.Parse(timeLayout, validTS); err != nil {
				return nil, err
			}
		}
		o.Status = compliance.OfferStatus(status)
		out = append(out, o)
	}
	return out, rows.Err()
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx runs fn inside one database transaction. Rolls back on error.
// Nested calls join the open transaction.
func (s *Store) WithTx(ctx context.Context, fn func(engine.Store) error) error {
	if _, inTx := s.q.(*sql.Tx); inTx {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	txStore := &Store{db: s.db, q: tx}
	if err := fn(txStore); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
