package credits_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MuhamadAgungGumelar/imaginario-api/internal/core/credits"
)

// flakyStore fails every Credit call, simulating a refund that cannot be written.
type flakyStore struct {
	*credits.MemoryStore
	calls atomic.Int32
}

func (s *flakyStore) Credit(ctx context.Context, req credits.CreditRequest) (credits.Result, error) {
	s.calls.Add(1)
	if req.Kind == credits.KindRefund {
		return credits.Result{}, errors.New("connection reset")
	}
	return s.MemoryStore.Credit(ctx, req)
}

// raceyDebitStore rejects every debit but reports the balance as it looks
// after a concurrent refund landed.
type raceyDebitStore struct {
	*credits.MemoryStore
	reported int64
}

func (s *raceyDebitStore) TryDebit(context.Context, string, int64, string) (credits.Result, error) {
	return credits.Result{Applied: false, Balance: s.reported}, nil
}

func countKind(entries []credits.Entry, kind credits.EntryKind) int {
	n := 0
	for _, e := range entries {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func TestLedgerBalanceCreatesAccount(t *testing.T) {
	ledger := credits.NewLedger(credits.NewMemoryStore(), credits.WithStartingBalance(3))

	balance, err := ledger.Balance(context.Background(), "fresh-user")
	require.NoError(t, err)
	assert.Equal(t, int64(3), balance)
	assert.Equal(t, int64(3), ledger.StartingBalance())
}

func TestLedgerDebitInsufficient(t *testing.T) {
	store := credits.NewMemoryStore()
	ledger := credits.NewLedger(store)
	ctx := context.Background()
	require.NoError(t, store.EnsureAccount(ctx, "u1", 2))

	balance, err := ledger.Debit(ctx, "u1", 3, "generate")
	require.Error(t, err)

	var insufficient *credits.InsufficientCreditsError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, int64(2), insufficient.Balance)
	assert.Equal(t, int64(3), insufficient.Cost)
	assert.Equal(t, int64(1), insufficient.Needed)
	assert.Equal(t, int64(2), balance)
	assert.True(t, credits.IsInsufficientCredits(err))

	after, err := store.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), after)
}

func TestSpendSuccess(t *testing.T) {
	store := credits.NewMemoryStore()
	ledger := credits.NewLedger(store)
	ctx := context.Background()
	require.NoError(t, store.EnsureAccount(ctx, "u1", 10))

	var balanceDuringWork int64
	charge, err := ledger.Spend(ctx, "u1", 6, "generate", func(ctx context.Context) error {
		balanceDuringWork, _ = store.GetBalance(ctx, "u1")
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, int64(4), balanceDuringWork, "debit happens before work")
	assert.Equal(t, credits.StateDone, charge.State())
	assert.Equal(t, int64(4), charge.BalanceAfter)
	assert.Equal(t, int64(6), charge.NetCharged())
	assert.False(t, charge.Refunded())
}

func TestSpendRejectedDoesNotRunWork(t *testing.T) {
	store := credits.NewMemoryStore()
	ledger := credits.NewLedger(store)
	ctx := context.Background()
	require.NoError(t, store.EnsureAccount(ctx, "u1", 2))

	called := false
	charge, err := ledger.Spend(ctx, "u1", 3, "generate", func(ctx context.Context) error {
		called = true
		return nil
	})

	require.Error(t, err)
	assert.True(t, credits.IsInsufficientCredits(err))
	assert.False(t, called)
	require.NotNil(t, charge)
	assert.Equal(t, credits.StateRejected, charge.State())
	assert.Equal(t, int64(0), charge.NetCharged())

	entries, err := store.Entries(ctx, "u1", 10)
	require.NoError(t, err)
	assert.Equal(t, 0, countKind(entries, credits.KindDebit))
}

func TestSpendRefundsFailedWorkOnce(t *testing.T) {
	store := credits.NewMemoryStore()
	ledger := credits.NewLedger(store)
	ctx := context.Background()
	require.NoError(t, store.EnsureAccount(ctx, "u1", 10))

	upstream := errors.New("upstream 500")
	charge, err := ledger.Spend(ctx, "u1", 4, "generate", func(ctx context.Context) error {
		return upstream
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, upstream)

	var failed *credits.WorkFailedError
	require.ErrorAs(t, err, &failed)
	assert.True(t, failed.Refunded)
	assert.Equal(t, int64(4), failed.Amount)

	assert.Equal(t, credits.StateRefundedAndFailed, charge.State())
	assert.True(t, charge.Refunded())
	assert.Equal(t, int64(0), charge.NetCharged())

	// A second Fail must not credit again.
	assert.True(t, charge.Fail(ctx, upstream))

	balance, err := store.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), balance)

	entries, err := store.Entries(ctx, "u1", 10)
	require.NoError(t, err)
	assert.Equal(t, 1, countKind(entries, credits.KindDebit))
	assert.Equal(t, 1, countKind(entries, credits.KindRefund))
}

func TestSpendRefundsOnTimeout(t *testing.T) {
	store := credits.NewMemoryStore()
	ledger := credits.NewLedger(store)
	ctx := context.Background()
	require.NoError(t, store.EnsureAccount(ctx, "u1", 2))

	_, err := ledger.Spend(ctx, "u1", 1, "generate", func(ctx context.Context) error {
		wctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		defer cancel()
		<-wctx.Done()
		return wctx.Err()
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	balance, err := store.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), balance)
}

func TestSpendRefundSurvivesCancelledRequest(t *testing.T) {
	store := credits.NewMemoryStore()
	ledger := credits.NewLedger(store)
	require.NoError(t, store.EnsureAccount(context.Background(), "u1", 5))

	ctx, cancel := context.WithCancel(context.Background())
	_, err := ledger.Spend(ctx, "u1", 5, "edit", func(ctx context.Context) error {
		cancel()
		return ctx.Err()
	})
	require.Error(t, err)

	balance, err := store.GetBalance(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), balance)
}

func TestSpendRefundFailureIsSwallowed(t *testing.T) {
	store := &flakyStore{MemoryStore: credits.NewMemoryStore()}
	ledger := credits.NewLedger(store)
	ctx := context.Background()
	require.NoError(t, store.EnsureAccount(ctx, "u1", 5))

	upstream := errors.New("no images returned")
	charge, err := ledger.Spend(ctx, "u1", 3, "generate", func(ctx context.Context) error {
		return upstream
	})

	var failed *credits.WorkFailedError
	require.ErrorAs(t, err, &failed)
	assert.ErrorIs(t, err, upstream, "the original failure is surfaced, not the refund error")
	assert.False(t, failed.Refunded)
	assert.Error(t, charge.RefundErr())
	assert.Equal(t, int64(3), charge.NetCharged())

	// The refund is attempted once only.
	assert.False(t, charge.Fail(ctx, upstream))
	assert.Equal(t, int32(1), store.calls.Load())
}

func TestSpendRefundsOnPanic(t *testing.T) {
	store := credits.NewMemoryStore()
	ledger := credits.NewLedger(store)
	ctx := context.Background()
	require.NoError(t, store.EnsureAccount(ctx, "u1", 4))

	assert.Panics(t, func() {
		_, _ = ledger.Spend(ctx, "u1", 4, "generate", func(ctx context.Context) error {
			panic("boom")
		})
	})

	balance, err := store.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), balance)
}

func TestSpendConcurrentChargesNeverOverdraw(t *testing.T) {
	store := credits.NewMemoryStore()
	ledger := credits.NewLedger(store)
	ctx := context.Background()
	require.NoError(t, store.EnsureAccount(ctx, "u1", 5))

	var mu sync.Mutex
	var rejected []*credits.InsufficientCreditsError
	var done int

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.Spend(ctx, "u1", 3, "generate", func(ctx context.Context) error { return nil })
			mu.Lock()
			defer mu.Unlock()
			var insufficient *credits.InsufficientCreditsError
			if errors.As(err, &insufficient) {
				rejected = append(rejected, insufficient)
				return
			}
			if err == nil {
				done++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, done)
	require.Len(t, rejected, 1)
	assert.Equal(t, int64(1), rejected[0].Needed)
	assert.Equal(t, int64(2), rejected[0].Balance)
}

func TestGrantCreatesAccountAndDeduplicates(t *testing.T) {
	ledger := credits.NewLedger(credits.NewMemoryStore())
	ctx := context.Background()

	req := credits.CreditRequest{UserID: "u9", Amount: 50, Kind: credits.KindTopup, IdempotencyKey: "topup:u9:2026-10"}
	res, err := ledger.Grant(ctx, req)
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, int64(50), res.Balance)

	res, err = ledger.Grant(ctx, req)
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, int64(50), res.Balance)

	_, err = ledger.Grant(ctx, credits.CreditRequest{UserID: "u9", Amount: 0})
	assert.ErrorIs(t, err, credits.ErrInvalidAmount)

	history, err := ledger.History(ctx, "u9", 10)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestDebitShortfallIsAtLeastOne(t *testing.T) {
	for _, reported := range []int64{3, 4, 10} {
		ledger := credits.NewLedger(&raceyDebitStore{MemoryStore: credits.NewMemoryStore(), reported: reported})

		balance, err := ledger.Debit(context.Background(), "u1", 4, "generate")

		var insufficient *credits.InsufficientCreditsError
		require.ErrorAs(t, err, &insufficient)
		assert.Equal(t, reported, balance)
		assert.Equal(t, reported, insufficient.Balance)
		assert.Equal(t, int64(4), insufficient.Cost)
		assert.GreaterOrEqual(t, insufficient.Needed, int64(1))
		if reported < 4 {
			assert.Equal(t, 4-reported, insufficient.Needed)
		}
	}
}
