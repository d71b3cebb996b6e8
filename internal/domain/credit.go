package domain

import "time"

// TransactionKind classifies ledger entries. Spends are the only negative
// entries; refunds, purchases and bonuses are positive.
type TransactionKind string

const (
	TransactionKindSpend    TransactionKind = "spend"
	TransactionKindRefund   TransactionKind = "refund"
	TransactionKindPurchase TransactionKind = "purchase"
	TransactionKindBonus    TransactionKind = "bonus"
)

// Well-known metadata keys. Every job-originated entry carries MetaJobID;
// every refund carries MetaOriginalTransactionID so the spend/refund pair is
// auditable.
const (
	MetaJobID                 = "job_id"
	MetaJobType               = "job_type"
	MetaOriginalTransactionID = "original_transaction_id"
)

// Transaction is one immutable row of the append-only credit log.
// ResultingBalance snapshots the account balance after the entry was applied.
type Transaction struct {
	ID               string
	AccountID        string
	Amount           int64
	Kind             TransactionKind
	Description      string
	Metadata         map[string]any
	ResultingBalance int64
	CreatedAt        time.Time
}
