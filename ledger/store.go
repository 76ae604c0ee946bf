/*
store.go - Persistence interface for ledger snapshots

PURPOSE:
  Defines the contract between the state-transition logic and whatever
  stores it. A Store holds whole ledger snapshots keyed by owner and
  offers one mutating primitive: Apply, an optimistic read-modify-write.

CONCURRENCY CONTRACT:
  Apply loads the current snapshot, runs the mutation against it, and
  persists the result ONLY if the stored version still equals the version
  the mutation read. A lost race returns ErrConflict and persists nothing.
  This is what makes the balance-check-and-mutate sequence a critical
  section: two racing transfers from one account cannot both pass the
  funds check against a stale read and both land.

  Implementations may achieve this with a compare-and-swap (sqlite,
  postgres) or by serializing all writers (memory store mutex); either
  satisfies the contract.

APPEND-ONLY CONTRACT:
  Snapshots only ever grow their logs. Stores never expose entry update
  or delete operations; corrections are reversal entries.

IMPLEMENTATIONS:
  - ledger/store:   in-memory, for tests and dev
  - store/sqlite:   SQLite, WAL, version CAS inside a transaction
  - store/postgres: PostgreSQL, SELECT ... FOR UPDATE row lock

SEE ALSO:
  - state.go: the mutations Apply runs
*/
package ledger

import "context"

// MutationFunc receives the current snapshot and returns the replacement
// snapshot. It must not retain or mutate the input beyond Clone-derived
// copies, and it must leave Version untouched; the store bumps it.
type MutationFunc func(Snapshot) (Snapshot, error)

// Store persists ledger snapshots with optimistic concurrency.
type Store interface {
	// CreateLedger persists a brand-new ledger. Returns ErrLedgerExists
	// if the owner already has one.
	CreateLedger(ctx context.Context, s Snapshot) error

	// Load returns the current snapshot for owner, or ErrLedgerNotFound.
	Load(ctx context.Context, owner OwnerID) (Snapshot, error)

	// Apply atomically replaces the owner's snapshot with fn's result.
	// If fn returns an error, nothing is persisted and the error is
	// returned verbatim. If the stored version changed between read and
	// write, ErrConflict is returned and nothing is persisted.
	Apply(ctx context.Context, owner OwnerID, fn MutationFunc) (Snapshot, error)

	// Owners lists all owners with a ledger.
	Owners(ctx context.Context) ([]OwnerID, error)
}
