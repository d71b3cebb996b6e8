package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"engine/internal/domain"
)

func TestSpendChecksBalanceAtomically(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	_, err := l.Grant(ctx, "acct", 100, domain.TransactionKindPurchase, "top up", nil)
	require.NoError(t, err)

	txID, err := l.Spend(ctx, "acct", 8, "image_generation job", map[string]any{domain.MetaJobID: "j1"})
	require.NoError(t, err)
	assert.NotEmpty(t, txID)

	balance, err := l.Balance(ctx, "acct")
	require.NoError(t, err)
	assert.Equal(t, int64(92), balance)

	_, err = l.Spend(ctx, "acct", 93, "too much", nil)
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	// The refused spend left no trace.
	txs, err := l.Transactions(ctx, "acct", 0)
	require.NoError(t, err)
	assert.Len(t, txs, 2)
}

func TestSpendOnUnknownAccount(t *testing.T) {
	l := NewLedger()
	_, err := l.Spend(context.Background(), "ghost", 1, "anything", nil)
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
}

func TestConcurrentSpendsNeverGoNegative(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	_, err := l.Grant(ctx, "acct", 100, domain.TransactionKindPurchase, "top up", nil)
	require.NoError(t, err)

	const spenders = 32
	var wg sync.WaitGroup
	errs := make([]error, spenders)
	for i := 0; i < spenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = l.Spend(ctx, "acct", 8, "race", nil)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, domain.ErrInsufficientBalance):
		default:
			t.Fatalf("unexpected spend error: %v", err)
		}
	}
	// 100 credits fund exactly twelve 8-credit spends.
	assert.Equal(t, 12, succeeded)

	balance, err := l.Balance(ctx, "acct")
	require.NoError(t, err)
	assert.Equal(t, int64(4), balance)
	assert.GreaterOrEqual(t, balance, int64(0))
}

func TestBalanceEqualsTransactionSum(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	_, err := l.Grant(ctx, "acct", 100, domain.TransactionKindPurchase, "top up", nil)
	require.NoError(t, err)
	spendID, err := l.Spend(ctx, "acct", 20, "video_generation job", map[string]any{domain.MetaJobID: "j1"})
	require.NoError(t, err)
	_, err = l.Refund(ctx, "acct", 20, "refund: provider failure", map[string]any{
		domain.MetaJobID:                 "j1",
		domain.MetaOriginalTransactionID: spendID,
	})
	require.NoError(t, err)
	_, err = l.Grant(ctx, "acct", 15, domain.TransactionKindBonus, "promo", nil)
	require.NoError(t, err)

	txs, err := l.Transactions(ctx, "acct", 0)
	require.NoError(t, err)
	var sum int64
	for _, tx := range txs {
		sum += tx.Amount
	}
	balance, err := l.Balance(ctx, "acct")
	require.NoError(t, err)
	assert.Equal(t, balance, sum)
	assert.Equal(t, int64(115), balance)
}

func TestRefundRequiresOriginalTransaction(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()

	_, err := l.Refund(ctx, "acct", 8, "refund", nil)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = l.Refund(ctx, "acct", 8, "refund", map[string]any{domain.MetaJobID: "j1"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestRefundIsUnconditional(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()

	// No balance check on refunds: compensating an account that has since
	// hit zero must still succeed.
	txID, err := l.Refund(ctx, "acct", 8, "refund: upload failure", map[string]any{
		domain.MetaOriginalTransactionID: "tx-earlier",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, txID)

	balance, err := l.Balance(ctx, "acct")
	require.NoError(t, err)
	assert.Equal(t, int64(8), balance)
}

func TestGrantRejectsNonPositiveAndWrongKind(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()

	_, err := l.Grant(ctx, "acct", 0, domain.TransactionKindPurchase, "zero", nil)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = l.Grant(ctx, "acct", 10, domain.TransactionKindSpend, "wrong kind", nil)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestTransactionsSnapshotResultingBalance(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	_, err := l.Grant(ctx, "acct", 50, domain.TransactionKindPurchase, "top up", nil)
	require.NoError(t, err)
	_, err = l.Spend(ctx, "acct", 10, "spend", nil)
	require.NoError(t, err)

	txs, err := l.Transactions(ctx, "acct", 0)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, int64(40), txs[0].ResultingBalance)
	assert.Equal(t, int64(50), txs[1].ResultingBalance)
}
