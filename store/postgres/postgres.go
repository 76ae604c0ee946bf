/*
Package postgres provides a PostgreSQL-backed implementation of ledger.Store.

PURPOSE:
  Same snapshot persistence contract as store/sqlite, on lib/pq. Where
  SQLite relies on its single writer, Postgres takes a row lock:

    SELECT version FROM ledgers WHERE owner_id = $1 FOR UPDATE

  holds the ledger row for the duration of the transaction, so the
  mutation runs against a snapshot no other writer can replace. The
  version column is still bumped with a conditional UPDATE as a second
  guard.

SCHEMA:
  Mirrors store/sqlite (ledgers / accounts / entries) with Postgres
  types. Migration runs on New(); point DATABASE_URL at a database the
  role can DDL on.

SEE ALSO:
  - ledger/store.go: interface and concurrency contract
  - store/sqlite/sqlite.go: SQLite implementation
*/
package postgres

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/warp/bank-ledger/ledger"
)

// Store implements ledger.Store on PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ ledger.Store = (*Store)(nil)

// New connects to Postgres with the given connection string (lib/pq
// format or URL) and migrates the schema.
func New(connStr string) (*Store, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, &ledger.PersistenceError{Op: "open", Err: err}
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the connection pool.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS ledgers (
		owner_id   TEXT PRIMARY KEY,
		version    BIGINT NOT NULL,
		currency   TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS accounts (
		id            TEXT PRIMARY KEY,
		owner_id      TEXT NOT NULL REFERENCES ledgers(owner_id),
		number        TEXT NOT NULL UNIQUE,
		type          TEXT NOT NULL,
		status        TEXT NOT NULL,
		nickname      TEXT,
		balance       NUMERIC(20, 4) NOT NULL,
		principal     NUMERIC(20, 4) NOT NULL,
		interest_rate NUMERIC(8, 4) NOT NULL,
		opened_at     TIMESTAMPTZ,
		maturity_date TIMESTAMPTZ
	);

	CREATE INDEX IF NOT EXISTS idx_accounts_owner ON accounts(owner_id);

	CREATE TABLE IF NOT EXISTS entries (
		seq             BIGSERIAL PRIMARY KEY,
		id              TEXT NOT NULL UNIQUE,
		owner_id        TEXT NOT NULL REFERENCES ledgers(owner_id),
		account_id      TEXT NOT NULL,
		account_number  TEXT NOT NULL,
		entry_type      TEXT NOT NULL,
		amount          NUMERIC(20, 4) NOT NULL,
		description     TEXT,
		date            TIMESTAMPTZ NOT NULL,
		status          TEXT NOT NULL,
		reference_id    TEXT,
		idempotency_key TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_entries_owner ON entries(owner_id, seq);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_entries_idempotency
		ON entries(owner_id, idempotency_key)
		WHERE idempotency_key IS NOT NULL AND idempotency_key <> '';
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
		`SELECT COUNT(1) FROM ledgers WHERE owner_id = $1`, string(snap.OwnerID)).Scan(&exists)
	if err != nil {
		return &ledger.PersistenceError{Op: "create", Err: err}
	}
	if exists > 0 {
		return ledger.ErrLedgerExists
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO ledgers (owner_id, version, currency) VALUES ($1, $2, $3)`,
		string(snap.OwnerID), snap.Version, snap.Currency)
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

	return loadSnapshot(ctx, tx, owner, false)
}

func (s *Store) Apply(ctx context.Context, owner ledger.OwnerID, fn ledger.MutationFunc) (ledger.Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ledger.Snapshot{}, &ledger.PersistenceError{Op: "apply", Err: err}
	}
	defer tx.Rollback()

	// FOR UPDATE on the ledger row serializes writers per owner.
	current, err := loadSnapshot(ctx, tx, owner, true)
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

	res, err := tx.ExecContext(ctx,
		`UPDATE ledgers SET version = $1, updated_at = now()
		 WHERE owner_id = $2 AND version = $3`,
		current.Version+1, string(owner), current.Version)
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

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM accounts WHERE owner_id = $1`, string(owner)); err != nil {
		return ledger.Snapshot{}, &ledger.PersistenceError{Op: "apply", Err: err}
	}
	for i := range next.Accounts {
		if err := insertAccount(ctx, tx, owner, next.Accounts[i]); err != nil {
			return ledger.Snapshot{}, err
		}
	}
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

func loadSnapshot(ctx context.Context, tx *sql.Tx, owner ledger.OwnerID, forUpdate bool) (ledger.Snapshot, error) {
	snap := ledger.Snapshot{OwnerID: owner}

	q := `SELECT version, currency FROM ledgers WHERE owner_id = $1`
	if forUpdate {
		q += ` FOR UPDATE`
	}
	err := tx.QueryRowContext(ctx, q, string(owner)).Scan(&snap.Version, &snap.Currency)
	if err == sql.ErrNoRows {
		return ledger.Snapshot{}, ledger.ErrLedgerNotFound
	}
	if err != nil {
		return ledger.Snapshot{}, &ledger.PersistenceError{Op: "load", Err: err}
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT id, number, type, status, COALESCE(nickname, ''),
		        balance::TEXT, principal::TEXT, interest_rate::TEXT,
		        opened_at, maturity_date
		 FROM accounts WHERE owner_id = $1 ORDER BY opened_at NULLS FIRST, id`,
		string(owner))
	if err != nil {
		return ledger.Snapshot{}, &ledger.PersistenceError{Op: "load", Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		var a ledger.Account
		var balance, principal, rate string
		var openedAt, maturity sql.NullTime
		if err := rows.Scan(&a.ID, &a.Number, &a.Type, &a.Status, &a.Nickname,
			&balance, &principal, &rate, &openedAt, &maturity); err != nil {
			return ledger.Snapshot{}, &ledger.PersistenceError{Op: "load", Err: err}
		}
		a.Balance = ledger.MustParseAmount(balance)
		a.Principal = ledger.MustParseAmount(principal)
		a.InterestRate = mustDecimal(rate)
		a.OpenedAt = openedAt.Time
		a.MaturityDate = maturity.Time
		snap.Accounts = append(snap.Accounts, a)
	}
	if err := rows.Err(); err != nil {
		return ledger.Snapshot{}, &ledger.PersistenceError{Op: "load", Err: err}
	}

	entryRows, err := tx.QueryContext(ctx,
		`SELECT id, account_id, account_number, entry_type, amount::TEXT,
		        COALESCE(description, ''), date, status,
		        COALESCE(reference_id, ''), COALESCE(idempotency_key, '')
		 FROM entries WHERE owner_id = $1 ORDER BY seq`, string(owner))
	if err != nil {
		return ledger.Snapshot{}, &ledger.PersistenceError{Op: "load", Err: err}
	}
	defer entryRows.Close()

	for entryRows.Next() {
		var e ledger.Entry
		var amount string
		if err := entryRows.Scan(&e.ID, &e.AccountID, &e.AccountNumber, &e.Type,
			&amount, &e.Description, &e.Date, &e.Status,
			&e.ReferenceID, &e.IdempotencyKey); err != nil {
			return ledger.Snapshot{}, &ledger.PersistenceError{Op: "load", Err: err}
		}
		e.Amount = ledger.MustParseAmount(amount)
		snap.Log = append(snap.Log, e)
	}
	if err := entryRows.Err(); err != nil {
		return ledger.Snapshot{}, &ledger.PersistenceError{Op: "load", Err: err}
	}

	return snap, nil
}

func insertAccount(ctx context.Context, tx *sql.Tx, owner ledger.OwnerID, a ledger.Account) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO accounts (id, owner_id, number, type, status, nickname,
		                       balance, principal, interest_rate, opened_at, maturity_date)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		string(a.ID), string(owner), a.Number, string(a.Type), string(a.Status),
		a.Nickname, a.Balance.String(), a.Principal.String(), a.InterestRate.String(),
		nullTime(a.OpenedAt), nullTime(a.MaturityDate))
	if err != nil {
		return &ledger.PersistenceError{Op: "apply", Err: err}
	}
	return nil
}

func insertEntry(ctx context.Context, tx *sql.Tx, owner ledger.OwnerID, e ledger.Entry) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO entries (id, owner_id, account_id, account_number, entry_type,
		                      amount, description, date, status, reference_id, idempotency_key)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		string(e.ID), string(owner), string(e.AccountID), e.AccountNumber, string(e.Type),
		e.Amount.String(), e.Description, e.Date.UTC(), string(e.Status),
		e.ReferenceID, e.IdempotencyKey)
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

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
