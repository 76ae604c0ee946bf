/*
errors.go - Centralized error types for the ledger engine

PURPOSE:
  All error kinds in one place. Every failure an operation can produce is
  an expected, typed, recoverable-by-caller outcome; nothing escapes the
  operation boundary as a panic or anonymous error.

ERROR CATEGORIES:
  1. Validation errors - rejected request, zero mutation performed
  2. Lookup errors     - referenced account/deposit/ledger missing
  3. Store errors      - optimistic-concurrency conflict, adapter failure

USAGE:
  Callers branch with errors.Is / errors.As:

    if errors.Is(err, ledger.ErrConflict) {
        // re-read and retry the whole operation
    }
    var ife *ledger.InsufficientFundsError
    if errors.As(err, &ife) {
        fmt.Println(ife.Shortfall)
    }
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrMissingFields is returned when a required input (source,
	// destination, amount) is absent.
	ErrMissingFields = errors.New("missing required fields")

	// ErrInvalidDestination is returned when the destination identifier
	// fails the syntactic account-number check.
	ErrInvalidDestination = errors.New("invalid destination account number")

	// ErrSameAccount is returned when source and destination are the same
	// account.
	ErrSameAccount = errors.New("source and destination are the same account")

	// ErrNonPositiveAmount is returned when the amount is zero or negative.
	ErrNonPositiveAmount = errors.New("amount must be positive")

	// ErrBelowMinimum is returned when the amount is under the policy
	// minimum transfer amount.
	ErrBelowMinimum = errors.New("amount below minimum transfer amount")

	// ErrInsufficientFunds is returned when the source balance cannot cover
	// the requested amount. Wrapped by InsufficientFundsError.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrAccountNotFound is returned when a referenced account does not
	// resolve within the ledger.
	ErrAccountNotFound = errors.New("account not found")

	// ErrAccountClosed is returned when an operation targets a closed
	// account.
	ErrAccountClosed = errors.New("account is closed")

	// ErrDepositNotFound is returned when a deposit operation references a
	// missing deposit id.
	ErrDepositNotFound = errors.New("fixed deposit not found")

	// ErrDepositAlreadyClosed is returned when closing a deposit twice.
	// The second call mutates nothing; idempotency is enforced by the
	// status check, not by re-running the closure.
	ErrDepositAlreadyClosed = errors.New("fixed deposit already closed")

	// ErrDuplicateIdempotencyKey is returned when a command's idempotency
	// key already appears in the log. Expected on retries.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrConflict is returned when an optimistic-concurrency write lost
	// the race. The caller should re-read and may retry from scratch.
	ErrConflict = errors.New("concurrent modification detected")

	// ErrPersistenceUnavailable is returned when the store round-trip
	// failed or timed out. The caller must not assume whether the write
	// landed and must re-read before retrying.
	ErrPersistenceUnavailable = errors.New("persistence unavailable")

	// ErrLedgerNotFound is returned when no ledger exists for an owner.
	ErrLedgerNotFound = errors.New("ledger not found")

	// ErrLedgerExists is returned when creating a ledger for an owner
	// that already has one.
	ErrLedgerExists = errors.New("ledger already exists")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientFundsError reports how far short the source balance fell.
type InsufficientFundsError struct {
	AccountID AccountID
	Available Amount
	Requested Amount
	Shortfall Amount
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: available %v, requested %v, shortfall %v",
		e.Available.Value, e.Requested.Value, e.Shortfall.Value)
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

// BelowMinimumError reports the policy minimum the amount fell under.
type BelowMinimumError struct {
	Minimum   Amount
	Requested Amount
}

func (e *BelowMinimumError) Error() string {
	return fmt.Sprintf("amount %v below minimum transfer amount %v",
		e.Requested.Value, e.Minimum.Value)
}

func (e *BelowMinimumError) Unwrap() error { return ErrBelowMinimum }

// PersistenceError wraps an adapter-level failure so callers can
// distinguish "your request was rejected" from "we don't know if it went
// through".
type PersistenceError struct {
	Op  string // store operation that failed, e.g. "apply", "load"
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence unavailable during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return ErrPersistenceUnavailable }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if re-running the whole operation after a
// re-read might succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsClientError returns true if the error is a rejected request: the
// ledger is guaranteed untouched.
func IsClientError(err error) bool {
	return errors.Is(err, ErrMissingFields) ||
		errors.Is(err, ErrInvalidDestination) ||
		errors.Is(err, ErrSameAccount) ||
		errors.Is(err, ErrNonPositiveAmount) ||
		errors.Is(err, ErrBelowMinimum) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrAccountClosed) ||
		errors.Is(err, ErrDepositAlreadyClosed) ||
		errors.Is(err, ErrDuplicateIdempotencyKey) ||
		errors.Is(err, ErrLedgerExists)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrDepositNotFound) ||
		errors.Is(err, ErrLedgerNotFound)
}
