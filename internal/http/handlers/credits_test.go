package handlers_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"engine/internal/domain"
)

func TestCreditsBalance(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	_, err := env.ledger.Grant(ctx, "owner-1", 150, domain.TransactionKindPurchase, "top up", nil)
	require.NoError(t, err)

	rec := env.do(t, http.MethodGet, "/v1/credits/balance", "owner-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(150), body["balance"])

	// Unknown accounts read as zero, not an error.
	rec = env.do(t, http.MethodGet, "/v1/credits/balance", "owner-9", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeBody(t, rec)
	assert.Equal(t, float64(0), body["balance"])
}

func TestCreditsTransactionsNewestFirst(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	_, err := env.ledger.Grant(ctx, "owner-1", 100, domain.TransactionKindPurchase, "top up", nil)
	require.NoError(t, err)
	spendID, err := env.ledger.Spend(ctx, "owner-1", 8, "image_generation job",
		map[string]any{domain.MetaJobID: "job-1"})
	require.NoError(t, err)

	rec := env.do(t, http.MethodGet, "/v1/credits/transactions", "owner-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	items := body["items"].([]any)
	require.Len(t, items, 2)

	newest := items[0].(map[string]any)
	assert.Equal(t, spendID, newest["id"])
	assert.Equal(t, "spend", newest["kind"])
	assert.Equal(t, float64(-8), newest["amount"])
	assert.Equal(t, float64(92), newest["resulting_balance"])
}

func TestCreditsRequireOwner(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/v1/credits/balance", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
