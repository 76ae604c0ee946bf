/*
Package bank wraps the ledger engine with banking operations and policy.

PURPOSE:
  The Service is what callers (HTTP handlers, CLIs) talk to. It owns the
  policy constants, the clock, and id generation, builds ledger commands
  from primitive arguments, and runs them through the store's atomic
  Apply. All invariant enforcement stays in the ledger package; this
  layer supplies the moving parts the pure transitions can't (fresh
  uuids, current time, policy values) and the structured logging.

OPERATIONS:
  Register      seed a new ledger: one ordinary account, opening balance
  Transfer      move money between accounts of one owner (or out)
  TransferBetween  cross-ledger transfer with compensating reversal
  OpenDeposit   debit primary, create a fixed deposit
  CloseDeposit  credit principal back, mark deposit closed

FAILURE SEMANTICS:
  Every failure is a typed ledger error; no panic crosses this boundary.
  ErrConflict means the optimistic write lost a race - the caller should
  re-read and may retry the whole operation. PersistenceError means the
  round trip failed and the caller must re-read before retrying.

SEE ALSO:
  - ledger/state.go: the transitions these operations run
  - bank/policy.go: policy defaults
*/
package bank

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/bank-ledger/ledger"
)

// Service executes banking operations against a ledger.Store.
type Service struct {
	store  ledger.Store
	policy Policy
	log    *zap.Logger
	now    func() time.Time
	newID  func() string
}

// Option customizes a Service. Mostly for tests.
type Option func(*Service)

// WithLogger replaces the global zap logger.
func WithLogger(l *zap.Logger) Option { return func(s *Service) { s.log = l } }

// WithClock replaces time.Now for deterministic timestamps.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithIDSource replaces the uuid generator for deterministic ids.
func WithIDSource(gen func() string) Option { return func(s *Service) { s.newID = gen } }

func NewService(store ledger.Store, policy Policy, opts ...Option) *Service {
	s := &Service{
		store:  store,
		policy: policy,
		log:    zap.L(),
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Policy returns the service's policy values.
func (s *Service) Policy() Policy { return s.policy }

// =============================================================================
// REGISTRATION
// =============================================================================

// Register creates a ledger for owner, seeded with one ordinary account
// holding the policy opening balance, plus the opening credit entry.
func (s *Service) Register(ctx context.Context, owner ledger.OwnerID, nickname string) (ledger.Snapshot, error) {
	now := s.now()
	account := ledger.Account{
		ID:       ledger.AccountID(s.newID()),
		Number:   s.accountNumber(),
		Type:     ledger.AccountOrdinary,
		Status:   ledger.AccountActive,
		Nickname: nickname,
		Balance:  s.policy.OpeningBalance,
		OpenedAt: now,
	}
	opening := ledger.Entry{
		ID:            ledger.EntryID(s.newID()),
		AccountID:     account.ID,
		AccountNumber: account.Number,
		Type:          ledger.EntryCredit,
		Amount:        s.policy.OpeningBalance,
		Description:   "Opening balance",
		Date:          now,
		Status:        ledger.EntrySuccess,
	}

	snap := ledger.Snapshot{
		OwnerID:  owner,
		Version:  1,
		Currency: s.policy.Currency,
		Accounts: []ledger.Account{account},
		Log:      []ledger.Entry{opening},
	}

	if err := s.store.CreateLedger(ctx, snap); err != nil {
		s.log.Warn("ledger registration failed",
			zap.String("owner_id", string(owner)),
			zap.Error(err))
		return ledger.Snapshot{}, err
	}

	s.log.Info("ledger registered",
		zap.String("owner_id", string(owner)),
		zap.String("account_number", account.Number),
		zap.String("opening_balance", s.policy.OpeningBalance.String()))
	return snap, nil
}

// =============================================================================
// TRANSFER
// =============================================================================

// TransferRequest carries the primitive arguments of a transfer.
type TransferRequest struct {
	Source         string
	Destination    string
	Amount         ledger.Amount
	Description    string
	IdempotencyKey string
}

// Transfer moves Amount from Source to Destination within owner's ledger.
// A destination outside the ledger is debited-only (the mirrored credit
// belongs to whoever tracks it). Returns the debit entry on success.
func (s *Service) Transfer(ctx context.Context, owner ledger.OwnerID, req TransferRequest) (*ledger.Entry, error) {
	cmd := ledger.TransferCommand{
		Source:         req.Source,
		Destination:    req.Destination,
		Amount:         req.Amount,
		Minimum:        s.policy.MinTransferAmount,
		Description:    req.Description,
		Now:            s.now(),
		DebitEntryID:   ledger.EntryID(s.newID()),
		CreditEntryID:  ledger.EntryID(s.newID()),
		IdempotencyKey: req.IdempotencyKey,
	}

	var entries []ledger.Entry
	_, err := s.store.Apply(ctx, owner, func(snap ledger.Snapshot) (ledger.Snapshot, error) {
		next, appended, err := ledger.ApplyTransfer(snap, cmd)
		if err != nil {
			return ledger.Snapshot{}, err
		}
		entries = appended
		return next, nil
	})
	if err != nil {
		s.log.Warn("transfer rejected",
			zap.String("owner_id", string(owner)),
			zap.String("source", req.Source),
			zap.String("destination", req.Destination),
			zap.String("amount", req.Amount.String()),
			zap.Error(err))
		return nil, err
	}

	s.log.Info("transfer completed",
		zap.String("owner_id", string(owner)),
		zap.String("source", req.Source),
		zap.String("destination", req.Destination),
		zap.String("amount", req.Amount.String()),
		zap.String("entry_id", string(entries[0].ID)))
	return &entries[0], nil
}

// TransferBetween moves Amount from an account in fromOwner's ledger to
// an account in toOwner's ledger. The two ledgers cannot share one atomic
// apply, so the debit lands first and a failed destination credit is
// undone with a compensating reversal entry - never a silent dangling
// debit. When both owners are the same this is exactly Transfer.
func (s *Service) TransferBetween(ctx context.Context, fromOwner, toOwner ledger.OwnerID, req TransferRequest) (*ledger.Entry, error) {
	// One owner means one ledger: Transfer already writes both sides in a
	// single apply, and running the credit leg on top would double-credit.
	if fromOwner == toOwner {
		return s.Transfer(ctx, fromOwner, req)
	}

	// Resolve the destination up front so an obvious miss never debits.
	destSnap, err := s.store.Load(ctx, toOwner)
	if err != nil {
		return nil, err
	}
	if destSnap.AccountByNumber(req.Destination) == nil {
		return nil, ledger.ErrAccountNotFound
	}

	debit, err := s.Transfer(ctx, fromOwner, req)
	if err != nil {
		return nil, err
	}

	creditCmd := ledger.CreditCommand{
		Destination: req.Destination,
		Amount:      req.Amount,
		Description: fmt.Sprintf("Transfer from %s", req.Source),
		ReferenceID: string(debit.ID),
		Now:         s.now(),
		EntryID:     ledger.EntryID(s.newID()),
	}
	_, err = s.store.Apply(ctx, toOwner, func(snap ledger.Snapshot) (ledger.Snapshot, error) {
		next, _, err := ledger.ApplyCredit(snap, creditCmd)
		if err != nil {
			return ledger.Snapshot{}, err
		}
		return next, nil
	})
	if err == nil {
		s.log.Info("cross-ledger transfer completed",
			zap.String("from_owner", string(fromOwner)),
			zap.String("to_owner", string(toOwner)),
			zap.String("amount", req.Amount.String()))
		return debit, nil
	}

	// Compensating action: reverse the source debit.
	reversal := ledger.CreditCommand{
		Destination: req.Source,
		Amount:      req.Amount,
		Description: fmt.Sprintf("Reversal of transfer to %s", req.Destination),
		Status:      ledger.EntryReversed,
		ReferenceID: string(debit.ID),
		Now:         s.now(),
		EntryID:     ledger.EntryID(s.newID()),
	}
	_, revErr := s.store.Apply(ctx, fromOwner, func(snap ledger.Snapshot) (ledger.Snapshot, error) {
		next, _, err := ledger.ApplyCredit(snap, reversal)
		if err != nil {
			return ledger.Snapshot{}, err
		}
		return next, nil
	})
	if revErr != nil {
		// Source stays debited with no matching credit. This needs an
		// operator; say so loudly and report the round trip as unknown.
		s.log.Error("cross-ledger reversal failed, ledgers inconsistent",
			zap.String("from_owner", string(fromOwner)),
			zap.String("to_owner", string(toOwner)),
			zap.String("debit_entry_id", string(debit.ID)),
			zap.NamedError("credit_error", err),
			zap.NamedError("reversal_error", revErr))
		return nil, &ledger.PersistenceError{Op: "cross-ledger reversal", Err: revErr}
	}

	s.log.Warn("cross-ledger transfer reversed",
		zap.String("from_owner", string(fromOwner)),
		zap.String("to_owner", string(toOwner)),
		zap.String("debit_entry_id", string(debit.ID)),
		zap.Error(err))
	return nil, err
}

// =============================================================================
// FIXED DEPOSITS
// =============================================================================

// OpenDeposit debits the primary account and opens a fixed deposit with
// principal = amount at the policy rate and tenure.
func (s *Service) OpenDeposit(ctx context.Context, owner ledger.OwnerID, amount ledger.Amount, nickname string) (*ledger.Account, error) {
	now := s.now()
	cmd := ledger.OpenDepositCommand{
		Amount:    amount,
		Nickname:  nickname,
		Rate:      s.policy.DepositAnnualRate,
		Maturity:  s.policy.MaturityFrom(now),
		Now:       now,
		DepositID: ledger.AccountID("fd-" + s.newID()),
		EntryID:   ledger.EntryID(s.newID()),
	}

	next, err := s.store.Apply(ctx, owner, func(snap ledger.Snapshot) (ledger.Snapshot, error) {
		out, _, err := ledger.ApplyOpenDeposit(snap, cmd)
		if err != nil {
			return ledger.Snapshot{}, err
		}
		return out, nil
	})
	if err != nil {
		s.log.Warn("deposit open rejected",
			zap.String("owner_id", string(owner)),
			zap.String("amount", amount.String()),
			zap.Error(err))
		return nil, err
	}

	deposit := next.AccountByID(cmd.DepositID)
	s.log.Info("fixed deposit opened",
		zap.String("owner_id", string(owner)),
		zap.String("deposit_id", string(deposit.ID)),
		zap.String("principal", deposit.Principal.String()),
		zap.Time("maturity", deposit.MaturityDate))
	return deposit, nil
}

// CloseDeposit credits the deposit's principal back to the primary
// account and marks it closed. Closing twice returns
// ErrDepositAlreadyClosed and credits nothing.
func (s *Service) CloseDeposit(ctx context.Context, owner ledger.OwnerID, depositID ledger.AccountID) error {
	cmd := ledger.CloseDepositCommand{
		DepositID: depositID,
		Now:       s.now(),
		EntryID:   ledger.EntryID(s.newID()),
	}

	_, err := s.store.Apply(ctx, owner, func(snap ledger.Snapshot) (ledger.Snapshot, error) {
		out, _, err := ledger.ApplyCloseDeposit(snap, cmd)
		if err != nil {
			return ledger.Snapshot{}, err
		}
		return out, nil
	})
	if err != nil {
		s.log.Warn("deposit closure rejected",
			zap.String("owner_id", string(owner)),
			zap.String("deposit_id", string(depositID)),
			zap.Error(err))
		return err
	}

	s.log.Info("fixed deposit closed",
		zap.String("owner_id", string(owner)),
		zap.String("deposit_id", string(depositID)))
	return nil
}

// =============================================================================
// QUERIES
// =============================================================================

// Ledger returns the owner's full snapshot.
func (s *Service) Ledger(ctx context.Context, owner ledger.OwnerID) (ledger.Snapshot, error) {
	return s.store.Load(ctx, owner)
}

// Accounts returns the owner's accounts, closed deposits included.
func (s *Service) Accounts(ctx context.Context, owner ledger.OwnerID) ([]ledger.Account, error) {
	snap, err := s.store.Load(ctx, owner)
	if err != nil {
		return nil, err
	}
	return snap.Accounts, nil
}

// Entries returns the owner's transaction log, oldest first.
func (s *Service) Entries(ctx context.Context, owner ledger.OwnerID) ([]ledger.Entry, error) {
	snap, err := s.store.Load(ctx, owner)
	if err != nil {
		return nil, err
	}
	return snap.Log, nil
}

// Deposit returns one fixed deposit by id.
func (s *Service) Deposit(ctx context.Context, owner ledger.OwnerID, depositID ledger.AccountID) (*ledger.Account, error) {
	snap, err := s.store.Load(ctx, owner)
	if err != nil {
		return nil, err
	}
	a := snap.AccountByID(depositID)
	if a == nil || !a.IsDeposit() {
		return nil, ledger.ErrDepositNotFound
	}
	return a, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// accountNumber derives a 12-digit routing number from a fresh uuid.
func (s *Service) accountNumber() string {
	id := s.newID()
	digits := make([]byte, 0, 12)
	for i := 0; i < len(id) && len(digits) < 12; i++ {
		c := id[i]
		switch {
		case c >= '0' && c <= '9':
			digits = append(digits, c)
		case c >= 'a' && c <= 'f':
			digits = append(digits, '0'+(c-'a')%10)
		case c >= 'A' && c <= 'F':
			digits = append(digits, '0'+(c-'A')%10)
		}
	}
	for len(digits) < 12 {
		digits = append(digits, '0')
	}
	return string(digits)
}
