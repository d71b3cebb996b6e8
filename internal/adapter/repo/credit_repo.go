package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"engine/internal/domain"
	"engine/internal/infra"
	"engine/internal/sqlinline"
)

// CreditLedgerPG implements domain.CreditLedger on PostgreSQL. The spend path
// is one statement: the balance row is checked and deducted inside a single
// CTE, so concurrent spenders on the same account can never drive it
// negative.
type CreditLedgerPG struct {
	sql infra.SQLExecutor
}

// NewCreditLedger creates a ledger backed by PostgreSQL.
func NewCreditLedger(sql infra.SQLExecutor) *CreditLedgerPG {
	return &CreditLedgerPG{sql: sql}
}

// Spend atomically checks and deducts amount, appending the spend transaction.
func (r *CreditLedgerPG) Spend(ctx context.Context, accountID string, amount int64, description string, metadata map[string]any) (string, error) {
	if amount <= 0 {
		return "", fmt.Errorf("%w: spend amount must be positive", domain.ErrValidation)
	}
	meta, err := marshalMetadata(metadata)
	if err != nil {
		return "", err
	}
	txID := uuid.New().String()
	row := r.sql.QueryRow(ctx, sqlinline.QSpendCredits, accountID, txID, amount, description, meta)
	var id string
	if err := row.Scan(&id); err != nil {
		if infra.IsNoRows(err) {
			// Covers both a short balance and an account that was
			// never funded.
			return "", domain.ErrInsufficientBalance
		}
		return "", err
	}
	return id, nil
}

// Refund appends an unconditional compensating credit. Callers must include
// the original spend's transaction id in the metadata.
func (r *CreditLedgerPG) Refund(ctx context.Context, accountID string, amount int64, description string, metadata map[string]any) (string, error) {
	if amount <= 0 {
		return "", fmt.Errorf("%w: refund amount must be positive", domain.ErrValidation)
	}
	if metadata == nil || metadata[domain.MetaOriginalTransactionID] == nil {
		return "", fmt.Errorf("%w: refund metadata must reference the original transaction", domain.ErrValidation)
	}
	return r.credit(ctx, accountID, amount, domain.TransactionKindRefund, description, metadata)
}

// Grant appends a purchase or bonus credit.
func (r *CreditLedgerPG) Grant(ctx context.Context, accountID string, amount int64, kind domain.TransactionKind, description string, metadata map[string]any) (string, error) {
	if amount <= 0 {
		return "", fmt.Errorf("%w: grant amount must be positive", domain.ErrValidation)
	}
	if kind != domain.TransactionKindPurchase && kind != domain.TransactionKindBonus {
		return "", fmt.Errorf("%w: grant kind must be purchase or bonus", domain.ErrValidation)
	}
	return r.credit(ctx, accountID, amount, kind, description, metadata)
}

func (r *CreditLedgerPG) credit(ctx context.Context, accountID string, amount int64, kind domain.TransactionKind, description string, metadata map[string]any) (string, error) {
	meta, err := marshalMetadata(metadata)
	if err != nil {
		return "", err
	}
	txID := uuid.New().String()
	row := r.sql.QueryRow(ctx, sqlinline.QCreditAccount, accountID, txID, amount, kind, description, meta)
	var id string
	if err := row.Scan(&id); err != nil {
		return "", err
	}
	return id, nil
}

// Balance returns the current balance; an account that was never touched
// reads as zero.
func (r *CreditLedgerPG) Balance(ctx context.Context, accountID string) (int64, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QSelectBalance, accountID)
	var balance int64
	if err := row.Scan(&balance); err != nil {
		if infra.IsNoRows(err) {
			return 0, nil
		}
		return 0, err
	}
	return balance, nil
}

// Transactions returns the account's ledger entries newest first.
func (r *CreditLedgerPG) Transactions(ctx context.Context, accountID string, limit int) ([]domain.Transaction, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	rows, err := r.sql.Query(ctx, sqlinline.QListTransactions, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var txs []domain.Transaction
	for rows.Next() {
		var tx domain.Transaction
		var meta []byte
		if err := rows.Scan(
			&tx.ID,
			&tx.AccountID,
			&tx.Amount,
			&tx.Kind,
			&tx.Description,
			&meta,
			&tx.ResultingBalance,
			&tx.CreatedAt,
		); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &tx.Metadata); err != nil {
				return nil, fmt.Errorf("decode transaction metadata: %w", err)
			}
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func marshalMetadata(metadata map[string]any) ([]byte, error) {
	if len(metadata) == 0 {
		return nil, nil
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("encode transaction metadata: %w", err)
	}
	return meta, nil
}

var _ domain.CreditLedger = (*CreditLedgerPG)(nil)
