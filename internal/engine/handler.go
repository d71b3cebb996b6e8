package engine

import (
	"context"
	"errors"
	"fmt"

	"engine/internal/domain"
	"engine/internal/infra"
)

// Handler performs the actual work for one job type. Execute returns the
// result payload persisted on completion, or an error that becomes the job's
// terminal error message.
//
// Contract: when work fails after credits were spent, the handler refunds via
// Task.RefundSpend before returning the error. The executor never guesses
// what to refund, because only the handler knows whether partial work (say, a
// provider call that succeeded before the upload broke) should still be
// billed.
type Handler interface {
	Type() domain.JobType
	// Cost declares the credit price of running the job; zero means free.
	Cost(job *domain.Job) int64
	Execute(ctx context.Context, task *Task) ([]byte, error)
}

// Task is the execution context handed to a handler: the claimed job plus
// progress reporting, compensation, and child-job creation scoped to it.
type Task struct {
	Job *domain.Job

	jobs      domain.JobStore
	ledger    domain.CreditLedger
	spendTxID string
	cost      int64
	logger    infra.Logger
}

// Report records progress on the running job. The returned error is
// domain.ErrJobCancelled when the job was cancelled, which the handler should
// propagate to abort between long steps; cancellation is advisory only and
// never interrupts a call already in flight.
func (t *Task) Report(ctx context.Context, progress int, message string) error {
	return t.jobs.ReportProgress(ctx, t.Job.ID, progress, nil, message)
}

// ReportStep is Report with the current step counter for multi-step handlers.
func (t *Task) ReportStep(ctx context.Context, step, progress int, message string) error {
	return t.jobs.ReportProgress(ctx, t.Job.ID, progress, &step, message)
}

// SpendTransactionID returns the id of the spend charged for this job, empty
// when the handler is free.
func (t *Task) SpendTransactionID() string {
	return t.spendTxID
}

// RefundSpend compensates the spend charged for this job. It is a no-op for
// free handlers and idempotent within one execution. Must be called before
// the handler returns its error so the job is never observed failed with an
// uncompensated spend outstanding.
func (t *Task) RefundSpend(ctx context.Context, reason string) error {
	if t.spendTxID == "" || t.cost <= 0 {
		return nil
	}
	txID, err := t.ledger.Refund(ctx, t.Job.OwnerID, t.cost,
		fmt.Sprintf("refund: %s", reason),
		map[string]any{
			domain.MetaJobID:                 t.Job.ID,
			domain.MetaJobType:               string(t.Job.Type),
			domain.MetaOriginalTransactionID: t.spendTxID,
		})
	if err != nil {
		return fmt.Errorf("refund spend %s: %w", t.spendTxID, err)
	}
	t.logger.Info().
		Str("job_id", t.Job.ID).
		Str("tx_id", txID).
		Int64("amount", t.cost).
		Msg("executor: refunded spend")
	t.spendTxID = ""
	return nil
}

// CreateChild creates a follow-up job owned by the same account and linked to
// this job via parent_job_id. The child is an independent record: callers
// discover the true end state of a pipeline by following the id the handler
// stores in its own result.
func (t *Task) CreateChild(ctx context.Context, jobType domain.JobType, input []byte, totalSteps *int) (string, error) {
	parentID := t.Job.ID
	child, err := t.jobs.Create(ctx, domain.NewJob{
		OwnerID:     t.Job.OwnerID,
		ScopeID:     t.Job.ScopeID,
		Type:        jobType,
		Input:       input,
		TotalSteps:  totalSteps,
		ParentJobID: &parentID,
	})
	if err != nil {
		return "", fmt.Errorf("create child job: %w", err)
	}
	return child.ID, nil
}

// Cancelled reports whether err is the advisory cancellation signal.
func Cancelled(err error) bool {
	return errors.Is(err, domain.ErrJobCancelled)
}
