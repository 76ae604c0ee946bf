package sqlite_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/bank-ledger/ledger"
	"github.com/warp/bank-ledger/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func seedSnapshot() ledger.Snapshot {
	opened := time.Date(2026, time.January, 15, 9, 30, 0, 0, time.UTC)
	return ledger.Snapshot{
		OwnerID:  "user-1",
		Version:  1,
		Currency: "USD",
		Accounts: []ledger.Account{
			{
				ID: "acc-s", Number: "100200300400",
				Type: ledger.AccountOrdinary, Status: ledger.AccountActive,
				Balance: ledger.NewAmount(1000), OpenedAt: opened,
			},
			{
				ID: "acc-d", Number: "200300400500",
				Type: ledger.AccountOrdinary, Status: ledger.AccountActive,
				Balance: ledger.NewAmount(0), OpenedAt: opened,
			},
		},
		Log: []ledger.Entry{
			{
				ID: "e-opening", AccountID: "acc-s", AccountNumber: "100200300400",
				Type: ledger.EntryCredit, Amount: ledger.NewAmount(1000),
				Description: "Opening balance", Date: opened, Status: ledger.EntrySuccess,
			},
		},
	}
}

// =============================================================================
// ROUND TRIP
// =============================================================================

func TestSQLite_CreateAndLoad_RoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.CreateLedger(ctx, seedSnapshot()))

	snap, err := st.Load(ctx, "user-1")
	require.NoError(t, err)

	assert.Equal(t, uint64(1), snap.Version)
	assert.Equal(t, "USD", snap.Currency)
	require.Len(t, snap.Accounts, 2)
	assert.True(t, snap.Accounts[0].Balance.Equal(ledger.NewAmount(1000)))
	assert.Equal(t, "100200300400", snap.Accounts[0].Number)

	require.Len(t, snap.Log, 1)
	assert.Equal(t, ledger.EntryID("e-opening"), snap.Log[0].ID)
	assert.Equal(t, ledger.EntryCredit, snap.Log[0].Type)
	assert.Equal(t, "Opening balance", snap.Log[0].Description)
}

func TestSQLite_CreateTwice_Rejected(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.CreateLedger(ctx, seedSnapshot()))
	assert.ErrorIs(t, st.CreateLedger(ctx, seedSnapshot()), ledger.ErrLedgerExists)
}

func TestSQLite_LoadUnknownOwner(t *testing.T) {
	st := newTestStore(t)
	_, err := st.Load(context.Background(), "user-unknown")
	assert.ErrorIs(t, err, ledger.ErrLedgerNotFound)
}

// =============================================================================
// APPLY
// =============================================================================

func TestSQLite_Apply_PersistsTransferAndBumpsVersion(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.CreateLedger(ctx, seedSnapshot()))

	cmd := ledger.TransferCommand{
		Source:        "100200300400",
		Destination:   "200300400500",
		Amount:        ledger.NewAmount(400),
		Minimum:       ledger.NewAmount(1),
		Now:           time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC),
		DebitEntryID:  "e-debit",
		CreditEntryID: "e-credit",
	}
	next, err := st.Apply(ctx, "user-1", func(s ledger.Snapshot) (ledger.Snapshot, error) {
		out, _, err := ledger.ApplyTransfer(s, cmd)
		if err != nil {
			return ledger.Snapshot{}, err
		}
		return out, nil
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), next.Version)

	snap, err := st.Load(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), snap.Version)
	assert.True(t, snap.AccountByNumber("100200300400").Balance.Equal(ledger.NewAmount(600)))
	assert.True(t, snap.AccountByNumber("200300400500").Balance.Equal(ledger.NewAmount(400)))

	// Prior entries untouched, only the new tail appended.
	require.Len(t, snap.Log, 3)
	assert.Equal(t, ledger.EntryID("e-opening"), snap.Log[0].ID)
	assert.Equal(t, ledger.EntryID("e-debit"), snap.Log[1].ID)
	assert.Equal(t, ledger.EntryID("e-credit"), snap.Log[2].ID)
}

func TestSQLite_Apply_RejectedMutationPersistsNothing(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.CreateLedger(ctx, seedSnapshot()))

	cmd := ledger.TransferCommand{
		Source:        "100200300400",
		Destination:   "200300400500",
		Amount:        ledger.NewAmount(5000), // more than the balance
		Minimum:       ledger.NewAmount(1),
		DebitEntryID:  "e-x",
		CreditEntryID: "e-y",
	}
	_, err := st.Apply(ctx, "user-1", func(s ledger.Snapshot) (ledger.Snapshot, error) {
		out, _, err := ledger.ApplyTransfer(s, cmd)
		if err != nil {
			return ledger.Snapshot{}, err
		}
		return out, nil
	})
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	snap, err := st.Load(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), snap.Version)
	assert.True(t, snap.AccountByNumber("100200300400").Balance.Equal(ledger.NewAmount(1000)))
	assert.Len(t, snap.Log, 1)
}

func TestSQLite_Apply_VersionTamperIsConflict(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.CreateLedger(ctx, seedSnapshot()))

	_, err := st.Apply(ctx, "user-1", func(s ledger.Snapshot) (ledger.Snapshot, error) {
		s.Version += 7
		return s, nil
	})
	assert.ErrorIs(t, err, ledger.ErrConflict)
}

func TestSQLite_DepositFieldsSurviveRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.CreateLedger(ctx, seedSnapshot()))

	now := time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC)
	cmd := ledger.OpenDepositCommand{
		Amount:    ledger.NewAmount(500),
		Rate:      decimal.NewFromFloat(7.10),
		Maturity:  now.AddDate(1, 0, 0),
		Now:       now,
		DepositID: "fd-round-trip",
		EntryID:   "e-fd",
	}
	_, err := st.Apply(ctx, "user-1", func(s ledger.Snapshot) (ledger.Snapshot, error) {
		out, _, err := ledger.ApplyOpenDeposit(s, cmd)
		if err != nil {
			return ledger.Snapshot{}, err
		}
		return out, nil
	})
	require.NoError(t, err)

	snap, err := st.Load(ctx, "user-1")
	require.NoError(t, err)

	fd := snap.AccountByID("fd-round-trip")
	require.NotNil(t, fd)
	assert.Equal(t, ledger.AccountFixedDeposit, fd.Type)
	assert.True(t, fd.Principal.Equal(ledger.NewAmount(500)))
	assert.True(t, fd.InterestRate.Equal(decimal.NewFromFloat(7.10)))
	assert.True(t, fd.MaturityDate.Equal(now.AddDate(1, 0, 0)))
}

// =============================================================================
// CONCURRENCY
// =============================================================================

func TestSQLite_ConcurrentTransfers_NoDoubleSpend(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.CreateLedger(ctx, seedSnapshot()))

	transfer := func(tag string) error {
		cmd := ledger.TransferCommand{
			Source:        "100200300400",
			Destination:   "200300400500",
			Amount:        ledger.NewAmount(600),
			Minimum:       ledger.NewAmount(1),
			DebitEntryID:  ledger.EntryID("debit-" + tag),
			CreditEntryID: ledger.EntryID("credit-" + tag),
		}
		_, err := st.Apply(ctx, "user-1", func(s ledger.Snapshot) (ledger.Snapshot, error) {
			out, _, err := ledger.ApplyTransfer(s, cmd)
			if err != nil {
				return ledger.Snapshot{}, err
			}
			return out, nil
		})
		return err
	}

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i, tag := range []string{"a", "b"} {
		wg.Add(1)
		go func(i int, tag string) {
			defer wg.Done()
			results[i] = transfer(tag)
		}(i, tag)
	}
	wg.Wait()

	var successes, insufficient int
	for _, err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ledger.ErrInsufficientFunds):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, insufficient)

	snap, err := st.Load(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, snap.AccountByNumber("100200300400").Balance.Equal(ledger.NewAmount(400)))
}
