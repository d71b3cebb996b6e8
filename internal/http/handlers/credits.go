package handlers

import (
	"net/http"
	"strconv"
)

// CreditsBalance returns the owner's current balance. Accounts with no
// transactions read as zero.
func (a *App) CreditsBalance(w http.ResponseWriter, r *http.Request) {
	ownerID := a.currentOwnerID(r)
	balance, err := a.Ledger.Balance(r.Context(), ownerID)
	if err != nil {
		a.Logger.Error().Err(err).Msg("http: balance lookup failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load balance")
		return
	}
	a.json(w, http.StatusOK, map[string]any{"owner_id": ownerID, "balance": balance})
}

// CreditsTransactions returns the owner's transaction history, newest first.
func (a *App) CreditsTransactions(w http.ResponseWriter, r *http.Request) {
	ownerID := a.currentOwnerID(r)
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			a.error(w, http.StatusBadRequest, "bad_request", "invalid limit")
			return
		}
		limit = n
	}
	txs, err := a.Ledger.Transactions(r.Context(), ownerID, limit)
	if err != nil {
		a.Logger.Error().Err(err).Msg("http: transaction list failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load transactions")
		return
	}
	items := make([]map[string]any, 0, len(txs))
	for _, tx := range txs {
		item := map[string]any{
			"id":                tx.ID,
			"amount":            tx.Amount,
			"kind":              string(tx.Kind),
			"description":       tx.Description,
			"resulting_balance": tx.ResultingBalance,
			"created_at":        tx.CreatedAt,
		}
		if len(tx.Metadata) > 0 {
			item["metadata"] = tx.Metadata
		}
		items = append(items, item)
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}
