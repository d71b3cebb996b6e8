package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"engine/internal/domain"
	"engine/internal/infra"
	"engine/internal/sqlinline"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// JobStorePG implements domain.JobStore on PostgreSQL. All writes are
// conditional single-statement updates keyed by job id, so the state machine
// holds under any number of concurrent workers; claiming relies on
// FOR UPDATE SKIP LOCKED in the queue query.
type JobStorePG struct {
	sql infra.SQLExecutor
}

// NewJobStore creates a job store backed by PostgreSQL.
func NewJobStore(sql infra.SQLExecutor) *JobStorePG {
	return &JobStorePG{sql: sql}
}

// Create inserts a new job in pending state and returns the full record.
func (r *JobStorePG) Create(ctx context.Context, req domain.NewJob) (*domain.Job, error) {
	if req.OwnerID == "" {
		return nil, fmt.Errorf("%w: owner id is required", domain.ErrValidation)
	}
	if !domain.ValidJobType(req.Type) {
		return nil, fmt.Errorf("%w: unknown job type %q", domain.ErrValidation, req.Type)
	}
	if req.TotalSteps != nil && *req.TotalSteps <= 0 {
		return nil, fmt.Errorf("%w: total steps must be positive", domain.ErrValidation)
	}
	job := &domain.Job{
		ID:          uuid.New().String(),
		OwnerID:     req.OwnerID,
		ScopeID:     req.ScopeID,
		Type:        req.Type,
		Status:      domain.JobStatusPending,
		ParentJobID: req.ParentJobID,
		TotalSteps:  req.TotalSteps,
		InputJSON:   req.Input,
	}
	row := r.sql.QueryRow(ctx, sqlinline.QInsertJob,
		job.ID,
		job.OwnerID,
		job.ScopeID,
		job.Type,
		job.ParentJobID,
		job.TotalSteps,
		nullableBytes(job.InputJSON),
	)
	if err := row.Scan(&job.CreatedAt, &job.UpdatedAt); err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return job, nil
}

// Claim transitions pending -> processing for one specific job.
func (r *JobStorePG) Claim(ctx context.Context, jobID string) (*domain.Job, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QClaimJob, jobID)
	job, err := scanJob(row)
	if err == nil {
		return job, nil
	}
	if !infra.IsNoRows(err) {
		return nil, err
	}
	// Lost the race or the id is bogus; look once more to tell which.
	if _, getErr := r.GetByID(ctx, jobID); getErr != nil {
		return nil, getErr
	}
	return nil, domain.ErrInvalidTransition
}

// ClaimNext claims the oldest pending job across all owners.
func (r *JobStorePG) ClaimNext(ctx context.Context) (*domain.Job, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QClaimNextJob)
	job, err := scanJob(row)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNoJob
		}
		return nil, err
	}
	return job, nil
}

// ReportProgress updates progress on a processing job. Terminal completed and
// failed jobs swallow the update; cancelled jobs surface ErrJobCancelled so
// the handler aborts; regressions are rejected.
func (r *JobStorePG) ReportProgress(ctx context.Context, jobID string, progress int, currentStep *int, message string) error {
	if progress < 0 || progress > 100 {
		return fmt.Errorf("%w: progress %d out of range", domain.ErrValidation, progress)
	}
	tag, err := r.sql.Exec(ctx, sqlinline.QReportJobProgress, jobID, progress, currentStep, message)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	return r.classifyProgressMiss(ctx, jobID, progress)
}

func (r *JobStorePG) classifyProgressMiss(ctx context.Context, jobID string, progress int) error {
	row := r.sql.QueryRow(ctx, sqlinline.QSelectJobStatusProgress, jobID)
	var status domain.JobStatus
	var current int
	if err := row.Scan(&status, &current); err != nil {
		if infra.IsNoRows(err) {
			return domain.ErrNotFound
		}
		return err
	}
	switch status {
	case domain.JobStatusCancelled:
		return domain.ErrJobCancelled
	case domain.JobStatusCompleted, domain.JobStatusFailed:
		return nil
	case domain.JobStatusProcessing:
		if current > progress {
			return domain.ErrProgressRegression
		}
	}
	return domain.ErrInvalidTransition
}

// Complete transitions processing -> completed and writes the result once.
func (r *JobStorePG) Complete(ctx context.Context, jobID string, result []byte) error {
	tag, err := r.sql.Exec(ctx, sqlinline.QCompleteJob, jobID, nullableBytes(result))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.transitionMiss(ctx, jobID)
	}
	return nil
}

// Fail transitions processing -> failed and writes the error message once.
func (r *JobStorePG) Fail(ctx context.Context, jobID string, errorMessage string) error {
	tag, err := r.sql.Exec(ctx, sqlinline.QFailJob, jobID, errorMessage)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.transitionMiss(ctx, jobID)
	}
	return nil
}

// Cancel moves a pending or processing job to cancelled.
func (r *JobStorePG) Cancel(ctx context.Context, jobID string) error {
	tag, err := r.sql.Exec(ctx, sqlinline.QCancelJob, jobID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.transitionMiss(ctx, jobID)
	}
	return nil
}

func (r *JobStorePG) transitionMiss(ctx context.Context, jobID string) error {
	if _, err := r.GetByID(ctx, jobID); err != nil {
		return err
	}
	return domain.ErrInvalidTransition
}

// GetByID fetches a job by its identifier.
func (r *JobStorePG) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QSelectJobByID, jobID)
	job, err := scanJob(row)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return job, nil
}

// ListForOwner returns the owner's jobs newest first.
func (r *JobStorePG) ListForOwner(ctx context.Context, ownerID string, statuses []domain.JobStatus, limit int) ([]domain.Job, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	filter := make([]string, 0, len(statuses))
	for _, s := range statuses {
		if !domain.ValidJobStatus(s) {
			return nil, fmt.Errorf("%w: unknown status %q", domain.ErrValidation, s)
		}
		filter = append(filter, string(s))
	}
	rows, err := r.sql.Query(ctx, sqlinline.QListJobsForOwner, ownerID, filter, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// FailStale fails processing jobs untouched since the cutoff.
func (r *JobStorePG) FailStale(ctx context.Context, olderThan time.Time, reason string) (int, error) {
	tag, err := r.sql.Exec(ctx, sqlinline.QFailStaleJobs, olderThan, reason)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var job domain.Job
	if err := row.Scan(
		&job.ID,
		&job.OwnerID,
		&job.ScopeID,
		&job.Type,
		&job.Status,
		&job.ParentJobID,
		&job.Progress,
		&job.CurrentStep,
		&job.TotalSteps,
		&job.ProgressMessage,
		&job.InputJSON,
		&job.ResultJSON,
		&job.ErrorMessage,
		&job.CreatedAt,
		&job.StartedAt,
		&job.CompletedAt,
		&job.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &job, nil
}

func nullableBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}

var _ domain.JobStore = (*JobStorePG)(nil)
