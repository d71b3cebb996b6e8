package domain

import (
	"context"
	"time"
)

// JobStore is the durable record of work units and the only writer of job
// state. Claim is the single serialization point across workers: for any job
// exactly one concurrent claimant succeeds, the rest observe
// ErrInvalidTransition.
type JobStore interface {
	Create(ctx context.Context, req NewJob) (*Job, error)

	// Claim transitions a specific pending job to processing and stamps
	// started_at. ErrInvalidTransition when the job is not pending.
	Claim(ctx context.Context, jobID string) (*Job, error)

	// ClaimNext claims the oldest pending job, or ErrNoJob when the queue
	// is empty. Used by polling workers.
	ClaimNext(ctx context.Context) (*Job, error)

	// ReportProgress updates progress fields on a processing job. It
	// rejects regressions with ErrProgressRegression, silently ignores
	// completed and failed jobs, and returns ErrJobCancelled for cancelled
	// jobs so handlers can abort cooperatively.
	ReportProgress(ctx context.Context, jobID string, progress int, currentStep *int, message string) error

	Complete(ctx context.Context, jobID string, result []byte) error
	Fail(ctx context.Context, jobID string, errorMessage string) error

	// Cancel moves a pending or processing job to cancelled.
	// ErrInvalidTransition when the job is already terminal.
	Cancel(ctx context.Context, jobID string) error

	GetByID(ctx context.Context, jobID string) (*Job, error)

	// ListForOwner returns the owner's jobs newest first, optionally
	// filtered by status.
	ListForOwner(ctx context.Context, ownerID string, statuses []JobStatus, limit int) ([]Job, error)

	// FailStale fails processing jobs whose updated_at is older than the
	// cutoff and returns how many were reaped.
	FailStale(ctx context.Context, olderThan time.Time, reason string) (int, error)
}

// CreditLedger exposes the money-like balance. Spend is a single atomic
// read-check-write: a race between concurrent spenders must never drive the
// balance negative. Refund is unconditional because it compensates a spend
// that already happened.
type CreditLedger interface {
	Spend(ctx context.Context, accountID string, amount int64, description string, metadata map[string]any) (string, error)
	Refund(ctx context.Context, accountID string, amount int64, description string, metadata map[string]any) (string, error)
	Grant(ctx context.Context, accountID string, amount int64, kind TransactionKind, description string, metadata map[string]any) (string, error)
	Balance(ctx context.Context, accountID string) (int64, error)
	Transactions(ctx context.Context, accountID string, limit int) ([]Transaction, error)
}
