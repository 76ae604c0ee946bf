/*
Package ledger provides the core banking ledger engine.

PURPOSE:
  This package contains the domain types and pure state-transition logic
  for one user's ledger: a set of accounts plus an append-only entry log.
  Everything that bears an invariant (non-negative balances, conservation,
  single-entry-per-success, idempotent deposit closure) lives here, with
  no knowledge of HTTP, storage engines, or any framework.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: A money value backed by decimal.Decimal (never floats)
  - Account: An ordinary or fixed-deposit account with a balance
  - Entry: An immutable ledger entry recording one balance change
  - Snapshot: One owner's full ledger state, with a version for
    optimistic concurrency

DESIGN PRINCIPLES:
  1. Immutability: Entries are never modified, only reversed
  2. Precision: decimal.Decimal avoids floating-point errors
  3. Purity: Transitions are (Snapshot, Command) -> (Snapshot, error);
     persistence and broadcasting are someone else's job

SEE ALSO:
  - state.go: Transfer and deposit state transitions
  - errors.go: Error taxonomy
  - store.go: Persistence interface
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Money value (single canonical currency unit)
// =============================================================================

// Amount is a money value in the ledger's canonical unit. Direction is never
// carried by sign in entries; it lives in the entry type.
type Amount struct {
	Value decimal.Decimal
}

func NewAmount(value float64) Amount         { return Amount{Value: decimal.NewFromFloat(value)} }
func NewAmountFromInt(value int64) Amount    { return Amount{Value: decimal.NewFromInt(value)} }
func ZeroAmount() Amount                     { return Amount{Value: decimal.Zero} }

func MustParseAmount(s string) Amount {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return ZeroAmount()
	}
	return Amount{Value: d}
}

func (a Amount) Add(b Amount) Amount           { return Amount{Value: a.Value.Add(b.Value)} }
func (a Amount) Sub(b Amount) Amount           { return Amount{Value: a.Value.Sub(b.Value)} }
func (a Amount) Mul(s decimal.Decimal) Amount  { return Amount{Value: a.Value.Mul(s)} }
func (a Amount) Neg() Amount                   { return Amount{Value: a.Value.Neg()} }
func (a Amount) IsNegative() bool              { return a.Value.IsNegative() }
func (a Amount) IsZero() bool                  { return a.Value.IsZero() }
func (a Amount) IsPositive() bool              { return a.Value.IsPositive() }
func (a Amount) GreaterThan(b Amount) bool     { return a.Value.GreaterThan(b.Value) }
func (a Amount) LessThan(b Amount) bool        { return a.Value.LessThan(b.Value) }
func (a Amount) Equal(b Amount) bool           { return a.Value.Equal(b.Value) }
func (a Amount) String() string                { return a.Value.String() }

// =============================================================================
// IDENTIFIERS
// =============================================================================

type OwnerID string
type AccountID string
type EntryID string

// =============================================================================
// ACCOUNT - Balance-bearing node of the ledger
// =============================================================================

type AccountType string

const (
	AccountOrdinary     AccountType = "ordinary"      // savings/current
	AccountFixedDeposit AccountType = "fixed_deposit" // term deposit
)

type AccountStatus string

const (
	AccountActive AccountStatus = "active"
	AccountClosed AccountStatus = "closed"
)

// Account is one balance-bearing account. Fixed-deposit fields (Principal,
// InterestRate, OpenedAt, MaturityDate) are zero-valued on ordinary accounts.
//
// INVARIANT: Balance is never negative after a completed operation.
// Closed accounts are never deleted; they stay visible in history.
type Account struct {
	ID       AccountID
	Number   string // routing identifier, unique within the system
	Type     AccountType
	Status   AccountStatus
	Nickname string // display only, no invariant attached
	Balance  Amount

	// Fixed-deposit fields
	Principal    Amount
	InterestRate decimal.Decimal // annual rate in percent, e.g. 7.10
	OpenedAt     time.Time
	MaturityDate time.Time
}

func (a Account) IsDeposit() bool { return a.Type == AccountFixedDeposit }
func (a Account) IsActive() bool  { return a.Status == AccountActive }

// =============================================================================
// ENTRY - Atomic, immutable record of one balance change
// =============================================================================

type EntryType string

const (
	EntryCredit EntryType = "credit"
	EntryDebit  EntryType = "debit"
)

type EntryStatus string

const (
	// EntrySuccess marks a completed balance change. Failed validations
	// never reach the log, so this is the normal terminal state.
	EntrySuccess EntryStatus = "success"

	// EntryReversed marks a compensating entry that undoes an earlier
	// one. The original is never edited; ReferenceID on the reversal
	// points at it.
	EntryReversed EntryStatus = "reversed"
)

// Entry records one balance effect on one account. Amount is always
// positive; EntryType carries the direction.
type Entry struct {
	ID            EntryID
	AccountID     AccountID
	AccountNumber string
	Type          EntryType
	Amount        Amount
	Description   string
	Date          time.Time
	Status        EntryStatus

	// ReferenceID links related entries: the counterparty entry of a
	// transfer, the deposit an open/closure acted on, or the entry a
	// reversal undoes.
	ReferenceID string

	// IdempotencyKey dedupes retried commands. Empty means no dedup.
	IdempotencyKey string
}

func (e Entry) signedDelta() Amount {
	if e.Type == EntryDebit {
		return e.Amount.Neg()
	}
	return e.Amount
}

// =============================================================================
// SNAPSHOT - One owner's complete ledger state
// =============================================================================

// Snapshot is the full state of one owner's ledger: accounts plus the
// append-only entry log. Version is the optimistic-concurrency token;
// stores bump it on every successful Apply and reject writes whose base
// version went stale.
type Snapshot struct {
	OwnerID  OwnerID
	Version  uint64
	Currency string
	Accounts []Account
	Log      []Entry // chronological, append-only
}

// Clone deep-copies the snapshot so transitions can mutate freely without
// touching the caller's state.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Accounts = make([]Account, len(s.Accounts))
	copy(out.Accounts, s.Accounts)
	out.Log = make([]Entry, len(s.Log))
	copy(out.Log, s.Log)
	return out
}

// AccountByID returns a pointer into s.Accounts, or nil.
func (s *Snapshot) AccountByID(id AccountID) *Account {
	for i := range s.Accounts {
		if s.Accounts[i].ID == id {
			return &s.Accounts[i]
		}
	}
	return nil
}

// AccountByNumber resolves a routing identifier. Deposit ids are accepted
// as numbers too, so closures and deposit-destined transfers share one
// resolution path.
func (s *Snapshot) AccountByNumber(number string) *Account {
	for i := range s.Accounts {
		if s.Accounts[i].Number == number || string(s.Accounts[i].ID) == number {
			return &s.Accounts[i]
		}
	}
	return nil
}

// Primary returns the owner's first active ordinary account. Deposit opens
// and closures debit/credit this account.
func (s *Snapshot) Primary() *Account {
	for i := range s.Accounts {
		if s.Accounts[i].Type == AccountOrdinary && s.Accounts[i].Status == AccountActive {
			return &s.Accounts[i]
		}
	}
	return nil
}

// HasIdempotencyKey reports whether any logged entry carries the key.
func (s *Snapshot) HasIdempotencyKey(key string) bool {
	if key == "" {
		return false
	}
	for i := range s.Log {
		if s.Log[i].IdempotencyKey == key {
			return true
		}
	}
	return false
}

// TotalBalance sums all account balances. Useful for conservation checks.
func (s *Snapshot) TotalBalance() Amount {
	total := ZeroAmount()
	for i := range s.Accounts {
		total = total.Add(s.Accounts[i].Balance)
	}
	return total
}

// EntriesFor returns the log entries affecting one account, oldest first.
func (s *Snapshot) EntriesFor(id AccountID) []Entry {
	var out []Entry
	for i := range s.Log {
		if s.Log[i].AccountID == id {
			out = append(out, s.Log[i])
		}
	}
	return out
}

// ReplayedBalance folds an account's entries into a balance. For an
// account whose opening balance was logged as a credit entry, this must
// equal the stored balance; a mismatch means the log and the balance have
// drifted apart.
func (s *Snapshot) ReplayedBalance(id AccountID) Amount {
	total := ZeroAmount()
	for i := range s.Log {
		if s.Log[i].AccountID == id {
			total = total.Add(s.Log[i].signedDelta())
		}
	}
	return total
}
