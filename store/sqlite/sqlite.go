/*
Package sqlite provides a SQLite-backed implementation of ledger.Store.

PURPOSE:
  Persists whole ledger snapshots (owner row + accounts + entries) and
  implements the optimistic read-modify-write primitive the engine
  requires. The same patterns apply to PostgreSQL - see store/postgres.

OPTIMISTIC CONCURRENCY:
  Apply runs inside one database transaction:
    1. Read the snapshot (ledger row, accounts, entries)
    2. Run the mutation against it
    3. UPDATE ledgers SET version = v+1 WHERE owner_id = ? AND version = v
    4. Zero rows affected means the read went stale -> ErrConflict,
       transaction rolled back, nothing persisted

APPEND-ONLY ENFORCEMENT:
  Entries are only ever INSERTed. There is no UPDATE or DELETE statement
  on the entries table; corrections are reversal entries. Account rows
  are replaced (balances move), entry rows never are.

WAL MODE:
  The database is opened with WAL so readers don't block the single
  writer and crash recovery is cheap.

KEY TABLES:
  ledgers:  owner id, version (concurrency token), currency
  accounts: current account state per owner
  entries:  immutable log, ordered by seq

USAGE:
  st, err := sqlite.New("./data/bank.db")   // or ":memory:"
  defer st.Close()
  svc := bank.NewService(st, bank.DefaultPolicy())

SEE ALSO:
  - ledger/store.go: interface and concurrency contract
  - ledger/store/memory.go: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/bank-ledger/ledger"
)

// Store implements ledger.Store on SQLite.
type Store struct {
	db *sql.DB
}

var _ ledger.Store = (*Store)(nil)

// New opens (and migrates) a SQLite store. Use ":memory:" for tests.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, &ledger.PersistenceError{Op: "open", Err: err}
	}
	// A single writer keeps the version CAS trivially correct and matches
	// SQLite's own locking model.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS ledgers (
		owner_id   TEXT PRIMARY KEY,
		version    INTEGER NOT NULL,
		currency   TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS accounts (
		id            TEXT PRIMARY KEY,
		owner_id      TEXT NOT NULL REFERENCES ledgers(owner_id),
		number        TEXT NOT NULL,
		type          TEXT NOT NULL,
		status        TEXT NOT NULL,
		nickname      TEXT,
		balance       TEXT NOT NULL,
		principal     TEXT NOT NULL,
		interest_rate TEXT NOT NULL,
		opened_at     TEXT,
		maturity_date TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_accounts_owner ON accounts(owner_id);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_number ON accounts(number);

	-- Entries (append-only ledger log). No UPDATE, no DELETE. Ever.
	CREATE TABLE IF NOT EXISTS entries (
		seq             INTEGER PRIMARY KEY AUTOINCREMENT,
		id              TEXT NOT NULL UNIQUE,
		owner_id        TEXT NOT NULL REFERENCES ledgers(owner_id),
		account_id      TEXT NOT NULL,
		account_number  TEXT NOT NULL,
		entry_type      TEXT NOT NULL,
		amount          TEXT NOT NULL,
		description     TEXT,
		date            TEXT NOT NULL,
		status          TEXT NOT NULL,
		reference_id    TEXT,
		idempotency_key TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_entries_owner ON entries(owner_id, seq);
	CREATE INDEX IF NOT EXISTS idx_entries_account ON entries(account_id);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_entries_idempotency
		ON entries(owner_id, idempotency_key)
		WHERE idempotency_key IS NOT NULL AND idempotency_key != '';
	`
	if _, err := s.db.Exec(schema); err != nil {
		return &ledger.PersistenceError{Op: "migrate", Err: err}
	}
	return nil
}

// =============================================================================
// STORE INTERFACE
// =============================================================================

func (s *Store) CreateLedger(ctx context.Context, snap ledger.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &ledger.PersistenceError{Op: "create", Err: err}
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM ledgers WHERE owner_id = ?`, string(snap.OwnerID)).Scan(&exists)
	if err != nil {
		return &ledger.PersistenceError{Op: "create", Err: err}
	}
	if exists > 0 {
		return ledger.ErrLedgerExists
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = tx.ExecContext(ctx,
		`INSERT INTO ledgers (owner_id, version, currency, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		string(snap.OwnerID), snap.Version, snap.Currency, now, now)
	if err != nil {
		return &ledger.PersistenceError{Op: "create", Err: err}
	}

	for i := range snap.Accounts {
		if err := insertAccount(ctx, tx, snap.OwnerID, snap.Accounts[i]); err != nil {
			return err
		}
	}
	for i := range snap.Log {
		if err := insertEntry(ctx, tx, snap.OwnerID, snap.Log[i]); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return &ledger.PersistenceError{Op: "create", Err: err}
	}
	return nil
}

func (s *Store) Load(ctx context.Context, owner ledger.OwnerID) (ledger.Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return ledger.Snapshot{}, &ledger.PersistenceError{Op: "load", Err: err}
	}
	defer tx.Rollback()

	return loadSnapshot(ctx, tx, owner)
}

func (s *Store) Apply(ctx context.Context, owner ledger.OwnerID, fn ledger.MutationFunc) (ledger.Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ledger.Snapshot{}, &ledger.PersistenceError{Op: "apply", Err: err}
	}
	defer tx.Rollback()

	current, err := loadSnapshot(ctx, tx, owner)
	if err != nil {
		return ledger.Snapshot{}, err
	}

	next, err := fn(current.Clone())
	if err != nil {
		return ledger.Snapshot{}, err
	}
	if next.Version != current.Version {
		return ledger.Snapshot{}, ledger.ErrConflict
	}

	// Version CAS: zero rows affected means another writer got there first.
	res, err := tx.ExecContext(ctx,
		`UPDATE ledgers SET version = ?, updated_at = ? WHERE owner_id = ? AND version = ?`,
		current.Version+1, time.Now().UTC().Format(time.RFC3339Nano),
		string(owner), current.Version)
	if err != nil {
		return ledger.Snapshot{}, &ledger.PersistenceError{Op: "apply", Err: err}
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return ledger.Snapshot{}, &ledger.PersistenceError{Op: "apply", Err: err}
	}
	if affected == 0 {
		return ledger.Snapshot{}, ledger.ErrConflict
	}

	if err := replaceAccounts(ctx, tx, owner, next.Accounts); err != nil {
		return ledger.Snapshot{}, err
	}
	// Only the appended tail is written; prior entries are immutable.
	for i := len(current.Log); i < len(next.Log); i++ {
		if err := insertEntry(ctx, tx, owner, next.Log[i]); err != nil {
			return ledger.Snapshot{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return ledger.Snapshot{}, &ledger.PersistenceError{Op: "apply", Err: err}
	}

	next.Version = current.Version + 1
	return next, nil
}

func (s *Store) Owners(ctx context.Context) ([]ledger.OwnerID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT owner_id FROM ledgers ORDER BY owner_id`)
	if err != nil {
		return nil, &ledger.PersistenceError{Op: "owners", Err: err}
	}
	defer rows.Close()

	var owners []ledger.OwnerID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, &ledger.PersistenceError{Op: "owners", Err: err}
		}
		owners = append(owners, ledger.OwnerID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, &ledger.PersistenceError{Op: "owners", Err: err}
	}
	return owners, nil
}

// =============================================================================
// ROW MAPPING
// =============================================================================

func loadSnapshot(ctx context.Context, tx *sql.Tx, owner ledger.OwnerID) (ledger.Snapshot, error) {
	snap := ledger.Snapshot{OwnerID: owner}

	err := tx.QueryRowContext(ctx,
		`SELECT version, currency FROM ledgers WHERE owner_id = ?`,
		string(owner)).Scan(&snap.Version, &snap.Currency)
	if err == sql.ErrNoRows {
		return ledger.Snapshot{}, ledger.ErrLedgerNotFound
	}
	if err != nil {
		return ledger.Snapshot{}, &ledger.PersistenceError{Op: "load", Err: err}
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT id, number, type, status, nickname, balance, principal,
		        interest_rate, opened_at, maturity_date
		 FROM accounts WHERE owner_id = ? ORDER BY rowid`, string(owner))
	if err != nil {
		return ledger.Snapshot{}, &ledger.PersistenceError{Op: "load", Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		var a ledger.Account
		var nickname sql.NullString
		var balance, principal, rate string
		var openedAt, maturity sql.NullString
		if err := rows.Scan(&a.ID, &a.Number, &a.Type, &a.Status, &nickname,
			&balance, &principal, &rate, &openedAt, &maturity); err != nil {
			return ledger.Snapshot{}, &ledger.PersistenceError{Op: "load", Err: err}
		}
		a.Nickname = nickname.String
		a.Balance = ledger.MustParseAmount(balance)
		a.Principal = ledger.MustParseAmount(principal)
		a.InterestRate = mustDecimal(rate)
		a.OpenedAt = parseTime(openedAt)
		a.MaturityDate = parseTime(maturity)
		snap.Accounts = append(snap.Accounts, a)
	}
	if err := rows.Err(); err != nil {
		return ledger.Snapshot{}, &ledger.PersistenceError{Op: "load", Err: err}
	}

	entryRows, err := tx.QueryContext(ctx,
		`SELECT id, account_id, account_number, entry_type, amount,
		        description, date, status, reference_id, idempotency_key
		 FROM entries WHERE owner_id = ? ORDER BY seq`, string(owner))
	if err != nil {
		return ledger.Snapshot{}, &ledger.PersistenceError{Op: "load", Err: err}
	}
	defer entryRows.Close()

	for entryRows.Next() {
		var e ledger.Entry
		var amount, date string
		var desc, ref, idem sql.NullString
		if err := entryRows.Scan(&e.ID, &e.AccountID, &e.AccountNumber, &e.Type,
			&amount, &desc, &date, &e.Status, &ref, &idem); err != nil {
			return ledger.Snapshot{}, &ledger.PersistenceError{Op: "load", Err: err}
		}
		e.Amount = ledger.MustParseAmount(amount)
		e.Description = desc.String
		e.Date, _ = time.Parse(time.RFC3339Nano, date)
		e.ReferenceID = ref.String
		e.IdempotencyKey = idem.String
		snap.Log = append(snap.Log, e)
	}
	if err := entryRows.Err(); err != nil {
		return ledger.Snapshot{}, &ledger.PersistenceError{Op: "load", Err: err}
	}

	return snap, nil
}

func replaceAccounts(ctx context.Context, tx *sql.Tx, owner ledger.OwnerID, accounts []ledger.Account) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM accounts WHERE owner_id = ?`, string(owner)); err != nil {
		return &ledger.PersistenceError{Op: "apply", Err: err}
	}
	for i := range accounts {
		if err := insertAccount(ctx, tx, owner, accounts[i]); err != nil {
			return err
		}
	}
	return nil
}

func insertAccount(ctx context.Context, tx *sql.Tx, owner ledger.OwnerID, a ledger.Account) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO accounts (id, owner_id, number, type, status, nickname,
		                       balance, principal, interest_rate, opened_at, maturity_date)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(a.ID), string(owner), a.Number, string(a.Type), string(a.Status),
		a.Nickname, a.Balance.String(), a.Principal.String(), a.InterestRate.String(),
		formatTime(a.OpenedAt), formatTime(a.MaturityDate))
	if err != nil {
		return &ledger.PersistenceError{Op: "apply", Err: err}
	}
	return nil
}

func insertEntry(ctx context.Context, tx *sql.Tx, owner ledger.OwnerID, e ledger.Entry) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO entries (id, owner_id, account_id, account_number, entry_type,
		                      amount, description, date, status, reference_id, idempotency_key)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(e.ID), string(owner), string(e.AccountID), e.AccountNumber, string(e.Type),
		e.Amount.String(), e.Description, e.Date.UTC().Format(time.RFC3339Nano),
		string(e.Status), e.ReferenceID, e.IdempotencyKey)
	if err != nil {
		return &ledger.PersistenceError{Op: "apply", Err: err}
	}
	return nil
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func formatTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

func parseTime(s sql.NullString) time.Time {
	if !s.Valid || s.String == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339Nano, s.String)
	return t
}
