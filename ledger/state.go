/*
state.go - Pure ledger state transitions

PURPOSE:
  The invariant-bearing heart of the engine. Each operation is a pure
  function (Snapshot, Command) -> (Snapshot, []Entry, error): it clones
  the input snapshot, validates, mutates the clone, and returns it with
  the entries it appended. The caller's snapshot is never touched, so a
  failed call observably mutates nothing.

CRITICAL INVARIANTS:
  1. NO PARTIAL MUTATION: any validation failure returns the zero
     Snapshot and zero entries - all-or-nothing from the caller's view
  2. NON-NEGATIVITY: no transition leaves any balance below zero
  3. CONSERVATION: a same-ledger transfer moves value, never creates
     or destroys it
  4. SINGLE ENTRY PER SUCCESS: one debit entry per transfer (plus one
     mirrored credit when the destination is internal)

VALIDATION ORDER (transfer):
  Fail fast, first violation wins, so error outcomes are deterministic:
    1. required fields present        -> ErrMissingFields
    2. destination syntactically ok   -> ErrInvalidDestination
    3. destination != source          -> ErrSameAccount
    4. amount > 0                     -> ErrNonPositiveAmount
    5. amount >= policy minimum       -> BelowMinimumError
    6. source resolves, funds cover   -> ErrAccountNotFound /
                                         InsufficientFundsError

  Amount presence (step 1) for absent-vs-zero is an API-boundary concern;
  commands always carry a concrete Amount here.

SEE ALSO:
  - store.go: Store.Apply runs these transitions atomically
  - bank/service.go: Builds commands, supplies ids and clock
*/
package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// COMMANDS
// =============================================================================

// TransferCommand moves Amount from Source to Destination. Source and
// Destination are routing identifiers (account number or deposit id).
// Entry ids and the clock are injected so transitions stay deterministic.
type TransferCommand struct {
	Source      string
	Destination string
	Amount      Amount
	Minimum     Amount // policy minimum transfer amount
	Description string // optional; defaulted when empty

	Now            time.Time
	DebitEntryID   EntryID
	CreditEntryID  EntryID // used only when destination is internal
	IdempotencyKey string
}

// OpenDepositCommand debits the primary account and creates a fixed
// deposit with principal = Amount.
type OpenDepositCommand struct {
	Amount   Amount
	Nickname string

	Rate     decimal.Decimal // annual rate in percent
	Maturity time.Time

	Now            time.Time
	DepositID      AccountID
	EntryID        EntryID
	IdempotencyKey string
}

// CloseDepositCommand closes an active deposit and credits its principal
// back to the primary account.
type CloseDepositCommand struct {
	DepositID AccountID

	Now            time.Time
	EntryID        EntryID
	IdempotencyKey string
}

// =============================================================================
// TRANSFER
// =============================================================================

// ApplyTransfer validates and applies a transfer. On success the returned
// snapshot holds the new balances and log; on failure the input snapshot
// is untouched and the returned snapshot is zero.
func ApplyTransfer(s Snapshot, cmd TransferCommand) (Snapshot, []Entry, error) {
	if cmd.Source == "" || cmd.Destination == "" {
		return Snapshot{}, nil, ErrMissingFields
	}
	if !ValidAccountNumber(cmd.Destination) {
		return Snapshot{}, nil, ErrInvalidDestination
	}
	if cmd.Destination == cmd.Source {
		return Snapshot{}, nil, ErrSameAccount
	}
	if !cmd.Amount.IsPositive() {
		return Snapshot{}, nil, ErrNonPositiveAmount
	}
	if cmd.Amount.LessThan(cmd.Minimum) {
		return Snapshot{}, nil, &BelowMinimumError{Minimum: cmd.Minimum, Requested: cmd.Amount}
	}
	if s.HasIdempotencyKey(cmd.IdempotencyKey) {
		return Snapshot{}, nil, ErrDuplicateIdempotencyKey
	}

	next := s.Clone()

	src := next.AccountByNumber(cmd.Source)
	if src == nil {
		return Snapshot{}, nil, ErrAccountNotFound
	}
	if !src.IsActive() {
		return Snapshot{}, nil, ErrAccountClosed
	}
	// Same account reachable under two identifiers (id vs number).
	if dst := next.AccountByNumber(cmd.Destination); dst != nil && dst.ID == src.ID {
		return Snapshot{}, nil, ErrSameAccount
	}
	if src.Balance.LessThan(cmd.Amount) {
		return Snapshot{}, nil, &InsufficientFundsError{
			AccountID: src.ID,
			Available: src.Balance,
			Requested: cmd.Amount,
			Shortfall: cmd.Amount.Sub(src.Balance),
		}
	}

	dst := next.AccountByNumber(cmd.Destination)
	if dst != nil && !dst.IsActive() {
		return Snapshot{}, nil, ErrAccountClosed
	}

	src.Balance = src.Balance.Sub(cmd.Amount)

	desc := cmd.Description
	if desc == "" {
		desc = fmt.Sprintf("Transfer to %s", cmd.Destination)
	}
	debit := Entry{
		ID:             cmd.DebitEntryID,
		AccountID:      src.ID,
		AccountNumber:  src.Number,
		Type:           EntryDebit,
		Amount:         cmd.Amount,
		Description:    desc,
		Date:           cmd.Now,
		Status:         EntrySuccess,
		IdempotencyKey: cmd.IdempotencyKey,
	}

	entries := []Entry{debit}

	if dst != nil {
		dst.Balance = dst.Balance.Add(cmd.Amount)
		// Keep a deposit's display principal consistent with its
		// backing balance.
		if dst.IsDeposit() {
			dst.Principal = dst.Principal.Add(cmd.Amount)
		}
		credit := Entry{
			ID:            cmd.CreditEntryID,
			AccountID:     dst.ID,
			AccountNumber: dst.Number,
			Type:          EntryCredit,
			Amount:        cmd.Amount,
			Description:   fmt.Sprintf("Transfer from %s", src.Number),
			Date:          cmd.Now,
			Status:        EntrySuccess,
			ReferenceID:   string(debit.ID),
		}
		debit.ReferenceID = string(credit.ID)
		entries = []Entry{debit, credit}
	}

	next.Log = append(next.Log, entries...)
	return next, entries, nil
}

// =============================================================================
// CREDIT - Standalone credit leg (cross-ledger transfers, reversals)
// =============================================================================

// CreditCommand credits Amount to Destination. Used for the destination
// leg of a cross-ledger transfer and for compensating reversals; Status
// distinguishes the two (zero value means EntrySuccess).
type CreditCommand struct {
	Destination string
	Amount      Amount
	Description string
	Status      EntryStatus
	ReferenceID string

	Now            time.Time
	EntryID        EntryID
	IdempotencyKey string
}

// ApplyCredit validates and applies a standalone credit.
func ApplyCredit(s Snapshot, cmd CreditCommand) (Snapshot, []Entry, error) {
	if cmd.Destination == "" {
		return Snapshot{}, nil, ErrMissingFields
	}
	if !cmd.Amount.IsPositive() {
		return Snapshot{}, nil, ErrNonPositiveAmount
	}
	if s.HasIdempotencyKey(cmd.IdempotencyKey) {
		return Snapshot{}, nil, ErrDuplicateIdempotencyKey
	}

	next := s.Clone()

	dst := next.AccountByNumber(cmd.Destination)
	if dst == nil {
		return Snapshot{}, nil, ErrAccountNotFound
	}
	if !dst.IsActive() {
		return Snapshot{}, nil, ErrAccountClosed
	}

	dst.Balance = dst.Balance.Add(cmd.Amount)
	if dst.IsDeposit() {
		dst.Principal = dst.Principal.Add(cmd.Amount)
	}

	status := cmd.Status
	if status == "" {
		status = EntrySuccess
	}
	entry := Entry{
		ID:             cmd.EntryID,
		AccountID:      dst.ID,
		AccountNumber:  dst.Number,
		Type:           EntryCredit,
		Amount:         cmd.Amount,
		Description:    cmd.Description,
		Date:           cmd.Now,
		Status:         status,
		ReferenceID:    cmd.ReferenceID,
		IdempotencyKey: cmd.IdempotencyKey,
	}
	next.Log = append(next.Log, entry)

	return next, []Entry{entry}, nil
}

// =============================================================================
// FIXED DEPOSIT - Open
// =============================================================================

// ApplyOpenDeposit debits the primary ordinary account and creates a new
// fixed-deposit account whose id is guaranteed fresh by the caller.
func ApplyOpenDeposit(s Snapshot, cmd OpenDepositCommand) (Snapshot, []Entry, error) {
	if !cmd.Amount.IsPositive() {
		return Snapshot{}, nil, ErrNonPositiveAmount
	}
	if s.HasIdempotencyKey(cmd.IdempotencyKey) {
		return Snapshot{}, nil, ErrDuplicateIdempotencyKey
	}

	next := s.Clone()

	primary := next.Primary()
	if primary == nil {
		return Snapshot{}, nil, ErrAccountNotFound
	}
	if primary.Balance.LessThan(cmd.Amount) {
		return Snapshot{}, nil, &InsufficientFundsError{
			AccountID: primary.ID,
			Available: primary.Balance,
			Requested: cmd.Amount,
			Shortfall: cmd.Amount.Sub(primary.Balance),
		}
	}

	primary.Balance = primary.Balance.Sub(cmd.Amount)

	deposit := Account{
		ID:           cmd.DepositID,
		Number:       string(cmd.DepositID),
		Type:         AccountFixedDeposit,
		Status:       AccountActive,
		Nickname:     cmd.Nickname,
		Balance:      cmd.Amount,
		Principal:    cmd.Amount,
		InterestRate: cmd.Rate,
		OpenedAt:     cmd.Now,
		MaturityDate: cmd.Maturity,
	}
	next.Accounts = append(next.Accounts, deposit)

	entry := Entry{
		ID:             cmd.EntryID,
		AccountID:      primary.ID,
		AccountNumber:  primary.Number,
		Type:           EntryDebit,
		Amount:         cmd.Amount,
		Description:    fmt.Sprintf("Fixed deposit %s opened", cmd.DepositID),
		Date:           cmd.Now,
		Status:         EntrySuccess,
		ReferenceID:    string(cmd.DepositID),
		IdempotencyKey: cmd.IdempotencyKey,
	}
	next.Log = append(next.Log, entry)

	return next, []Entry{entry}, nil
}

// =============================================================================
// FIXED DEPOSIT - Close
// =============================================================================

// ApplyCloseDeposit marks the deposit closed and credits its principal
// back to the primary account. Closing an already-closed deposit is a
// no-op error, never a double credit.
func ApplyCloseDeposit(s Snapshot, cmd CloseDepositCommand) (Snapshot, []Entry, error) {
	if s.HasIdempotencyKey(cmd.IdempotencyKey) {
		return Snapshot{}, nil, ErrDuplicateIdempotencyKey
	}

	next := s.Clone()

	deposit := next.AccountByID(cmd.DepositID)
	if deposit == nil || !deposit.IsDeposit() {
		return Snapshot{}, nil, ErrDepositNotFound
	}
	if deposit.Status == AccountClosed {
		return Snapshot{}, nil, ErrDepositAlreadyClosed
	}

	primary := next.Primary()
	if primary == nil {
		return Snapshot{}, nil, ErrAccountNotFound
	}

	principal := deposit.Principal
	primary.Balance = primary.Balance.Add(principal)
	deposit.Status = AccountClosed
	deposit.Balance = ZeroAmount()

	entry := Entry{
		ID:             cmd.EntryID,
		AccountID:      primary.ID,
		AccountNumber:  primary.Number,
		Type:           EntryCredit,
		Amount:         principal,
		Description:    fmt.Sprintf("Fixed deposit %s closure", cmd.DepositID),
		Date:           cmd.Now,
		Status:         EntrySuccess,
		ReferenceID:    string(cmd.DepositID),
		IdempotencyKey: cmd.IdempotencyKey,
	}
	next.Log = append(next.Log, entry)

	return next, []Entry{entry}, nil
}
