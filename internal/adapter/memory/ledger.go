package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"engine/internal/domain"
)

// Ledger is a mutex-guarded domain.CreditLedger. The mutex is the atomic unit
// around check-and-deduct, mirroring the single-statement CTE of the
// PostgreSQL adapter.
type Ledger struct {
	mu       sync.Mutex
	balances map[string]int64
	log      []domain.Transaction
	now      func() time.Time
}

// NewLedger creates an empty in-memory credit ledger.
func NewLedger() *Ledger {
	return &Ledger{
		balances: make(map[string]int64),
		now:      time.Now,
	}
}

func (l *Ledger) Spend(ctx context.Context, accountID string, amount int64, description string, metadata map[string]any) (string, error) {
	if amount <= 0 {
		return "", fmt.Errorf("%w: spend amount must be positive", domain.ErrValidation)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balances[accountID] < amount {
		return "", domain.ErrInsufficientBalance
	}
	l.balances[accountID] -= amount
	return l.appendLocked(accountID, -amount, domain.TransactionKindSpend, description, metadata), nil
}

func (l *Ledger) Refund(ctx context.Context, accountID string, amount int64, description string, metadata map[string]any) (string, error) {
	if amount <= 0 {
		return "", fmt.Errorf("%w: refund amount must be positive", domain.ErrValidation)
	}
	if metadata == nil || metadata[domain.MetaOriginalTransactionID] == nil {
		return "", fmt.Errorf("%w: refund metadata must reference the original transaction", domain.ErrValidation)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[accountID] += amount
	return l.appendLocked(accountID, amount, domain.TransactionKindRefund, description, metadata), nil
}

func (l *Ledger) Grant(ctx context.Context, accountID string, amount int64, kind domain.TransactionKind, description string, metadata map[string]any) (string, error) {
	if amount <= 0 {
		return "", fmt.Errorf("%w: grant amount must be positive", domain.ErrValidation)
	}
	if kind != domain.TransactionKindPurchase && kind != domain.TransactionKindBonus {
		return "", fmt.Errorf("%w: grant kind must be purchase or bonus", domain.ErrValidation)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[accountID] += amount
	return l.appendLocked(accountID, amount, kind, description, metadata), nil
}

func (l *Ledger) Balance(ctx context.Context, accountID string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[accountID], nil
}

func (l *Ledger) Transactions(ctx context.Context, accountID string, limit int) ([]domain.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.Transaction
	for i := len(l.log) - 1; i >= 0 && len(out) < limit; i-- {
		if l.log[i].AccountID == accountID {
			out = append(out, l.log[i])
		}
	}
	return out, nil
}

func (l *Ledger) appendLocked(accountID string, amount int64, kind domain.TransactionKind, description string, metadata map[string]any) string {
	meta := make(map[string]any, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}
	tx := domain.Transaction{
		ID:               uuid.New().String(),
		AccountID:        accountID,
		Amount:           amount,
		Kind:             kind,
		Description:      description,
		Metadata:         meta,
		ResultingBalance: l.balances[accountID],
		CreatedAt:        l.now(),
	}
	l.log = append(l.log, tx)
	return tx.ID
}

var _ domain.CreditLedger = (*Ledger)(nil)
