package ledger_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/bank-ledger/ledger"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

const (
	srcNumber = "100200300400"
	dstNumber = "200300400500"
	extNumber = "999888777666"
)

func amt(v float64) ledger.Amount { return ledger.NewAmount(v) }

var entrySeq int

func nextEntryID() ledger.EntryID {
	entrySeq++
	return ledger.EntryID(fmt.Sprintf("e-%d", entrySeq))
}

func testTime() time.Time {
	return time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
}

// twoAccountSnapshot builds a ledger with S (balance 1000) and D (balance 0).
func twoAccountSnapshot() ledger.Snapshot {
	return ledger.Snapshot{
		OwnerID:  "user-1",
		Version:  1,
		Currency: "USD",
		Accounts: []ledger.Account{
			{ID: "acc-s", Number: srcNumber, Type: ledger.AccountOrdinary, Status: ledger.AccountActive, Balance: amt(1000)},
			{ID: "acc-d", Number: dstNumber, Type: ledger.AccountOrdinary, Status: ledger.AccountActive, Balance: amt(0)},
		},
	}
}

func transferCmd(source, dest string, amount float64) ledger.TransferCommand {
	return ledger.TransferCommand{
		Source:        source,
		Destination:   dest,
		Amount:        amt(amount),
		Minimum:       amt(1),
		Now:           testTime(),
		DebitEntryID:  nextEntryID(),
		CreditEntryID: nextEntryID(),
	}
}

// =============================================================================
// TRANSFER - SUCCESS PATHS
// =============================================================================

func TestApplyTransfer_SameLedger_MovesBalanceAndLogsBothSides(t *testing.T) {
	// GIVEN: S has 1000, D has 0
	// WHEN: transferring 400 from S to D
	// THEN: S=600, D=400, one debit entry on S and one mirrored credit on D

	before := twoAccountSnapshot()
	after, entries, err := ledger.ApplyTransfer(before, transferCmd(srcNumber, dstNumber, 400))
	require.NoError(t, err)

	assert.True(t, after.AccountByNumber(srcNumber).Balance.Equal(amt(600)))
	assert.True(t, after.AccountByNumber(dstNumber).Balance.Equal(amt(400)))

	require.Len(t, entries, 2)
	debit, credit := entries[0], entries[1]
	assert.Equal(t, ledger.EntryDebit, debit.Type)
	assert.Equal(t, ledger.AccountID("acc-s"), debit.AccountID)
	assert.True(t, debit.Amount.Equal(amt(400)))
	assert.Contains(t, debit.Description, dstNumber)
	assert.Equal(t, ledger.EntrySuccess, debit.Status)

	assert.Equal(t, ledger.EntryCredit, credit.Type)
	assert.Equal(t, ledger.AccountID("acc-d"), credit.AccountID)
	assert.Equal(t, string(debit.ID), credit.ReferenceID)
	assert.Equal(t, string(credit.ID), debit.ReferenceID)
}

func TestApplyTransfer_Conservation(t *testing.T) {
	// GIVEN: any same-ledger transfer
	// WHEN: it succeeds
	// THEN: total balance across the ledger is unchanged

	before := twoAccountSnapshot()
	total := before.TotalBalance()

	after, _, err := ledger.ApplyTransfer(before, transferCmd(srcNumber, dstNumber, 123.45))
	require.NoError(t, err)

	assert.True(t, after.TotalBalance().Equal(total),
		"transfer must conserve total balance: before %v after %v", total, after.TotalBalance())
}

func TestApplyTransfer_ExternalDestination_DebitOnly(t *testing.T) {
	// GIVEN: destination does not resolve within the ledger
	// WHEN: transferring 100
	// THEN: source is debited, exactly one debit entry, no credit entry

	before := twoAccountSnapshot()
	after, entries, err := ledger.ApplyTransfer(before, transferCmd(srcNumber, extNumber, 100))
	require.NoError(t, err)

	assert.True(t, after.AccountByNumber(srcNumber).Balance.Equal(amt(900)))
	require.Len(t, entries, 1)
	assert.Equal(t, ledger.EntryDebit, entries[0].Type)
	assert.Len(t, after.Log, 1)
}

func TestApplyTransfer_IntoFixedDeposit_BumpsPrincipal(t *testing.T) {
	// GIVEN: destination is an active fixed deposit with principal 500
	// WHEN: transferring 200 into it
	// THEN: deposit balance and principal both grow by 200

	snap := twoAccountSnapshot()
	snap.Accounts = append(snap.Accounts, ledger.Account{
		ID: "fd-1", Number: "fd-1", Type: ledger.AccountFixedDeposit,
		Status: ledger.AccountActive, Balance: amt(500), Principal: amt(500),
	})

	after, _, err := ledger.ApplyTransfer(snap, transferCmd(srcNumber, "fd-1", 200))
	require.NoError(t, err)

	fd := after.AccountByID("fd-1")
	assert.True(t, fd.Balance.Equal(amt(700)))
	assert.True(t, fd.Principal.Equal(amt(700)))
}

// =============================================================================
// TRANSFER - VALIDATION ORDER AND NO-OP ON FAILURE
// =============================================================================

func TestApplyTransfer_ValidationOrder(t *testing.T) {
	// GIVEN: requests violating several rules at once
	// THEN: the first violation in the documented order wins

	tests := []struct {
		name string
		cmd  ledger.TransferCommand
		want error
	}{
		{"missing source", transferCmd("", dstNumber, 100), ledger.ErrMissingFields},
		{"missing destination", transferCmd(srcNumber, "", 100), ledger.ErrMissingFields},
		{"invalid destination shape", transferCmd(srcNumber, "ab!", 100), ledger.ErrInvalidDestination},
		// Invalid shape AND non-positive amount: shape check is earlier.
		{"invalid destination wins over amount", transferCmd(srcNumber, "x", -5), ledger.ErrInvalidDestination},
		// Same account AND non-positive amount: same-account check is earlier.
		{"same account wins over amount", transferCmd(srcNumber, srcNumber, 0), ledger.ErrSameAccount},
		{"zero amount", transferCmd(srcNumber, dstNumber, 0), ledger.ErrNonPositiveAmount},
		{"negative amount", transferCmd(srcNumber, dstNumber, -1), ledger.ErrNonPositiveAmount},
		{"below minimum", transferCmd(srcNumber, dstNumber, 0.5), ledger.ErrBelowMinimum},
		{"unknown source", transferCmd(extNumber, dstNumber, 100), ledger.ErrAccountNotFound},
		{"insufficient funds", transferCmd(srcNumber, dstNumber, 1001), ledger.ErrInsufficientFunds},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			before := twoAccountSnapshot()
			_, entries, err := ledger.ApplyTransfer(before, tc.cmd)
			assert.ErrorIs(t, err, tc.want)
			assert.Nil(t, entries)
		})
	}
}

func TestApplyTransfer_FailureLeavesSnapshotUntouched(t *testing.T) {
	// GIVEN: S has 50
	// WHEN: transferring 100 (insufficient funds)
	// THEN: the input snapshot is byte-for-byte unchanged, log included

	before := twoAccountSnapshot()
	before.Accounts[0].Balance = amt(50)
	want := before.Clone()

	_, _, err := ledger.ApplyTransfer(before, transferCmd(srcNumber, dstNumber, 100))
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	assert.Equal(t, want, before)
	assert.True(t, before.AccountByNumber(srcNumber).Balance.Equal(amt(50)))
	assert.Empty(t, before.Log)
}

func TestApplyTransfer_InsufficientFunds_ReportsShortfall(t *testing.T) {
	before := twoAccountSnapshot()
	before.Accounts[0].Balance = amt(50)

	_, _, err := ledger.ApplyTransfer(before, transferCmd(srcNumber, dstNumber, 100))

	var ife *ledger.InsufficientFundsError
	require.ErrorAs(t, err, &ife)
	assert.True(t, ife.Available.Equal(amt(50)))
	assert.True(t, ife.Requested.Equal(amt(100)))
	assert.True(t, ife.Shortfall.Equal(amt(50)))
}

func TestApplyTransfer_SameAccountViaAlternateIdentifier(t *testing.T) {
	// GIVEN: source addressed by number, destination by the account id
	// WHEN: both resolve to the same account
	// THEN: SameAccount, even though the strings differ

	before := twoAccountSnapshot()
	cmd := transferCmd(srcNumber, "acc-s", 100)
	_, _, err := ledger.ApplyTransfer(before, cmd)
	assert.ErrorIs(t, err, ledger.ErrSameAccount)
}

func TestApplyTransfer_DuplicateIdempotencyKey(t *testing.T) {
	// GIVEN: a transfer already logged under key "k1"
	// WHEN: replaying a command with the same key
	// THEN: ErrDuplicateIdempotencyKey, no second debit

	before := twoAccountSnapshot()
	cmd := transferCmd(srcNumber, dstNumber, 100)
	cmd.IdempotencyKey = "k1"

	after, _, err := ledger.ApplyTransfer(before, cmd)
	require.NoError(t, err)

	replay := transferCmd(srcNumber, dstNumber, 100)
	replay.IdempotencyKey = "k1"
	_, _, err = ledger.ApplyTransfer(after, replay)
	assert.ErrorIs(t, err, ledger.ErrDuplicateIdempotencyKey)
	assert.True(t, after.AccountByNumber(srcNumber).Balance.Equal(amt(900)))
}

func TestApplyTransfer_ClosedAccounts(t *testing.T) {
	// Transfers touching a closed account are rejected before mutation.

	t.Run("closed source", func(t *testing.T) {
		snap := twoAccountSnapshot()
		snap.Accounts[0].Status = ledger.AccountClosed
		_, _, err := ledger.ApplyTransfer(snap, transferCmd(srcNumber, dstNumber, 100))
		assert.ErrorIs(t, err, ledger.ErrAccountClosed)
	})

	t.Run("closed destination", func(t *testing.T) {
		snap := twoAccountSnapshot()
		snap.Accounts[1].Status = ledger.AccountClosed
		_, _, err := ledger.ApplyTransfer(snap, transferCmd(srcNumber, dstNumber, 100))
		assert.ErrorIs(t, err, ledger.ErrAccountClosed)
		assert.True(t, snap.AccountByNumber(srcNumber).Balance.Equal(amt(1000)))
	})
}

// =============================================================================
// FIXED DEPOSIT - OPEN
// =============================================================================

func openCmd(amount float64) ledger.OpenDepositCommand {
	return ledger.OpenDepositCommand{
		Amount:    amt(amount),
		Rate:      decimal.NewFromFloat(7.10),
		Maturity:  testTime().AddDate(1, 0, 0),
		Now:       testTime(),
		DepositID: "fd-new",
		EntryID:   nextEntryID(),
	}
}

func TestApplyOpenDeposit_DebitsPrimaryAndCreatesDeposit(t *testing.T) {
	// GIVEN: primary balance 20000
	// WHEN: opening a deposit of 5000
	// THEN: primary=15000, new active deposit with principal 5000, one debit entry

	snap := twoAccountSnapshot()
	snap.Accounts[0].Balance = amt(20000)

	after, entries, err := ledger.ApplyOpenDeposit(snap, openCmd(5000))
	require.NoError(t, err)

	assert.True(t, after.Primary().Balance.Equal(amt(15000)))

	fd := after.AccountByID("fd-new")
	require.NotNil(t, fd)
	assert.Equal(t, ledger.AccountFixedDeposit, fd.Type)
	assert.Equal(t, ledger.AccountActive, fd.Status)
	assert.True(t, fd.Principal.Equal(amt(5000)))
	assert.True(t, fd.Balance.Equal(amt(5000)))
	assert.Equal(t, testTime().AddDate(1, 0, 0), fd.MaturityDate)

	require.Len(t, entries, 1)
	assert.Equal(t, ledger.EntryDebit, entries[0].Type)
	assert.Equal(t, "fd-new", entries[0].ReferenceID)
}

func TestApplyOpenDeposit_Rejections(t *testing.T) {
	t.Run("non-positive amount", func(t *testing.T) {
		_, _, err := ledger.ApplyOpenDeposit(twoAccountSnapshot(), openCmd(0))
		assert.ErrorIs(t, err, ledger.ErrNonPositiveAmount)
	})

	t.Run("insufficient funds", func(t *testing.T) {
		snap := twoAccountSnapshot() // primary has 1000
		before := snap.Clone()
		_, _, err := ledger.ApplyOpenDeposit(snap, openCmd(5000))
		assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)
		assert.Equal(t, before, snap)
	})

	t.Run("no primary account", func(t *testing.T) {
		snap := twoAccountSnapshot()
		snap.Accounts[0].Status = ledger.AccountClosed
		snap.Accounts[1].Status = ledger.AccountClosed
		_, _, err := ledger.ApplyOpenDeposit(snap, openCmd(100))
		assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
	})
}

// =============================================================================
// FIXED DEPOSIT - CLOSE
// =============================================================================

func TestApplyCloseDeposit_CreditsPrincipalBack(t *testing.T) {
	// GIVEN: a deposit of 5000 opened from a 20000 primary
	// WHEN: closing it
	// THEN: primary back to 20000, deposit closed but still present, one credit entry

	snap := twoAccountSnapshot()
	snap.Accounts[0].Balance = amt(20000)
	opened, _, err := ledger.ApplyOpenDeposit(snap, openCmd(5000))
	require.NoError(t, err)

	closeCmd := ledger.CloseDepositCommand{DepositID: "fd-new", Now: testTime(), EntryID: nextEntryID()}
	after, entries, err := ledger.ApplyCloseDeposit(opened, closeCmd)
	require.NoError(t, err)

	assert.True(t, after.Primary().Balance.Equal(amt(20000)))

	fd := after.AccountByID("fd-new")
	require.NotNil(t, fd, "closed deposits stay visible in history")
	assert.Equal(t, ledger.AccountClosed, fd.Status)
	assert.True(t, fd.Balance.IsZero())

	require.Len(t, entries, 1)
	assert.Equal(t, ledger.EntryCredit, entries[0].Type)
	assert.True(t, entries[0].Amount.Equal(amt(5000)))
	assert.Equal(t, "fd-new", entries[0].ReferenceID)
}

func TestApplyCloseDeposit_Idempotent(t *testing.T) {
	// GIVEN: a deposit already closed
	// WHEN: closing it again
	// THEN: AlreadyClosed, nothing mutated - one credit total ever

	snap := twoAccountSnapshot()
	snap.Accounts[0].Balance = amt(20000)
	opened, _, err := ledger.ApplyOpenDeposit(snap, openCmd(5000))
	require.NoError(t, err)

	closeCmd := ledger.CloseDepositCommand{DepositID: "fd-new", Now: testTime(), EntryID: nextEntryID()}
	closed, _, err := ledger.ApplyCloseDeposit(opened, closeCmd)
	require.NoError(t, err)

	want := closed.Clone()
	again := ledger.CloseDepositCommand{DepositID: "fd-new", Now: testTime(), EntryID: nextEntryID()}
	_, _, err = ledger.ApplyCloseDeposit(closed, again)
	assert.ErrorIs(t, err, ledger.ErrDepositAlreadyClosed)
	assert.Equal(t, want, closed)
	assert.True(t, closed.Primary().Balance.Equal(amt(20000)), "no double credit")
}

func TestApplyCloseDeposit_NotFound(t *testing.T) {
	_, _, err := ledger.ApplyCloseDeposit(twoAccountSnapshot(),
		ledger.CloseDepositCommand{DepositID: "fd-missing", Now: testTime(), EntryID: nextEntryID()})
	assert.ErrorIs(t, err, ledger.ErrDepositNotFound)
}

func TestApplyCloseDeposit_OrdinaryAccountIsNotADeposit(t *testing.T) {
	_, _, err := ledger.ApplyCloseDeposit(twoAccountSnapshot(),
		ledger.CloseDepositCommand{DepositID: "acc-s", Now: testTime(), EntryID: nextEntryID()})
	assert.ErrorIs(t, err, ledger.ErrDepositNotFound)
}

// =============================================================================
// CREDIT LEG
// =============================================================================

func TestApplyCredit_CreditsDestination(t *testing.T) {
	snap := twoAccountSnapshot()
	after, entries, err := ledger.ApplyCredit(snap, ledger.CreditCommand{
		Destination: dstNumber,
		Amount:      amt(250),
		Description: "Transfer from elsewhere",
		Now:         testTime(),
		EntryID:     nextEntryID(),
	})
	require.NoError(t, err)

	assert.True(t, after.AccountByNumber(dstNumber).Balance.Equal(amt(250)))
	require.Len(t, entries, 1)
	assert.Equal(t, ledger.EntryCredit, entries[0].Type)
	assert.Equal(t, ledger.EntrySuccess, entries[0].Status)
}

func TestApplyCredit_ReversalStatusPreserved(t *testing.T) {
	snap := twoAccountSnapshot()
	after, entries, err := ledger.ApplyCredit(snap, ledger.CreditCommand{
		Destination: srcNumber,
		Amount:      amt(100),
		Description: "Reversal of transfer",
		Status:      ledger.EntryReversed,
		ReferenceID: "e-original",
		Now:         testTime(),
		EntryID:     nextEntryID(),
	})
	require.NoError(t, err)

	assert.True(t, after.AccountByNumber(srcNumber).Balance.Equal(amt(1100)))
	assert.Equal(t, ledger.EntryReversed, entries[0].Status)
	assert.Equal(t, "e-original", entries[0].ReferenceID)
}

func TestApplyCredit_UnknownDestination(t *testing.T) {
	_, _, err := ledger.ApplyCredit(twoAccountSnapshot(), ledger.CreditCommand{
		Destination: extNumber, Amount: amt(10), Now: testTime(), EntryID: nextEntryID(),
	})
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
}

// =============================================================================
// LOG APPEND-ONLY
// =============================================================================

func TestTransferLog_AppendOnly(t *testing.T) {
	// GIVEN: a ledger with prior entries
	// WHEN: another transfer succeeds
	// THEN: prior entries are unmodified and exactly the new ones are appended

	snap := twoAccountSnapshot()
	first, _, err := ledger.ApplyTransfer(snap, transferCmd(srcNumber, dstNumber, 100))
	require.NoError(t, err)
	prior := make([]ledger.Entry, len(first.Log))
	copy(prior, first.Log)

	second, entries, err := ledger.ApplyTransfer(first, transferCmd(srcNumber, dstNumber, 50))
	require.NoError(t, err)

	require.Len(t, second.Log, len(prior)+len(entries))
	assert.Equal(t, prior, second.Log[:len(prior)])
}
