// Package memory provides in-memory implementations of the domain stores.
// They carry the full transition and accounting semantics and back local
// development and the engine test suites; production uses the PostgreSQL
// adapters.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"engine/internal/domain"
)

// JobStore is a mutex-guarded domain.JobStore.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job
	// order preserves insertion so ClaimNext picks the oldest pending job
	// deterministically even when CreatedAt timestamps collide.
	order []string
	now   func() time.Time
}

// NewJobStore creates an empty in-memory job store.
func NewJobStore() *JobStore {
	return &JobStore{
		jobs: make(map[string]*domain.Job),
		now:  time.Now,
	}
}

// SetClock overrides the store clock. Test hook.
func (s *JobStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *JobStore) Create(ctx context.Context, req domain.NewJob) (*domain.Job, error) {
	if req.OwnerID == "" {
		return nil, fmt.Errorf("%w: owner id is required", domain.ErrValidation)
	}
	if !domain.ValidJobType(req.Type) {
		return nil, fmt.Errorf("%w: unknown job type %q", domain.ErrValidation, req.Type)
	}
	if req.TotalSteps != nil && *req.TotalSteps <= 0 {
		return nil, fmt.Errorf("%w: total steps must be positive", domain.ErrValidation)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	job := &domain.Job{
		ID:          uuid.New().String(),
		OwnerID:     req.OwnerID,
		ScopeID:     req.ScopeID,
		Type:        req.Type,
		Status:      domain.JobStatusPending,
		ParentJobID: req.ParentJobID,
		TotalSteps:  req.TotalSteps,
		InputJSON:   append([]byte(nil), req.Input...),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.jobs[job.ID] = job
	s.order = append(s.order, job.ID)
	return cloneJob(job), nil
}

func (s *JobStore) Claim(ctx context.Context, jobID string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if job.Status != domain.JobStatusPending {
		return nil, domain.ErrInvalidTransition
	}
	s.claimLocked(job)
	return cloneJob(job), nil
}

func (s *JobStore) ClaimNext(ctx context.Context) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.order {
		job := s.jobs[id]
		if job.Status != domain.JobStatusPending {
			continue
		}
		s.claimLocked(job)
		return cloneJob(job), nil
	}
	return nil, domain.ErrNoJob
}

func (s *JobStore) claimLocked(job *domain.Job) {
	now := s.now()
	job.Status = domain.JobStatusProcessing
	job.StartedAt = &now
	job.UpdatedAt = now
}

func (s *JobStore) ReportProgress(ctx context.Context, jobID string, progress int, currentStep *int, message string) error {
	if progress < 0 || progress > 100 {
		return fmt.Errorf("%w: progress %d out of range", domain.ErrValidation, progress)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	switch job.Status {
	case domain.JobStatusCancelled:
		return domain.ErrJobCancelled
	case domain.JobStatusCompleted, domain.JobStatusFailed:
		return nil
	case domain.JobStatusPending:
		return domain.ErrInvalidTransition
	}
	if progress < job.Progress {
		return domain.ErrProgressRegression
	}
	job.Progress = progress
	if currentStep != nil {
		job.CurrentStep = currentStep
	}
	if message != "" {
		job.ProgressMessage = message
	}
	job.UpdatedAt = s.now()
	return nil
}

func (s *JobStore) Complete(ctx context.Context, jobID string, result []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	if job.Status != domain.JobStatusProcessing {
		return domain.ErrInvalidTransition
	}
	now := s.now()
	job.Status = domain.JobStatusCompleted
	job.ResultJSON = append([]byte(nil), result...)
	job.Progress = 100
	job.CompletedAt = &now
	job.UpdatedAt = now
	return nil
}

func (s *JobStore) Fail(ctx context.Context, jobID string, errorMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	if job.Status != domain.JobStatusProcessing {
		return domain.ErrInvalidTransition
	}
	now := s.now()
	job.Status = domain.JobStatusFailed
	job.ErrorMessage = errorMessage
	job.CompletedAt = &now
	job.UpdatedAt = now
	return nil
}

func (s *JobStore) Cancel(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	if job.Status.Terminal() {
		return domain.ErrInvalidTransition
	}
	now := s.now()
	job.Status = domain.JobStatusCancelled
	job.CompletedAt = &now
	job.UpdatedAt = now
	return nil
}

func (s *JobStore) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneJob(job), nil
}

func (s *JobStore) ListForOwner(ctx context.Context, ownerID string, statuses []domain.JobStatus, limit int) ([]domain.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	filter := make(map[domain.JobStatus]bool, len(statuses))
	for _, st := range statuses {
		if !domain.ValidJobStatus(st) {
			return nil, fmt.Errorf("%w: unknown status %q", domain.ErrValidation, st)
		}
		filter[st] = true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Job
	for _, job := range s.jobs {
		if job.OwnerID != ownerID {
			continue
		}
		if len(filter) > 0 && !filter[job.Status] {
			continue
		}
		out = append(out, *cloneJob(job))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *JobStore) FailStale(ctx context.Context, olderThan time.Time, reason string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reaped := 0
	for _, job := range s.jobs {
		if job.Status != domain.JobStatusProcessing || !job.UpdatedAt.Before(olderThan) {
			continue
		}
		now := s.now()
		job.Status = domain.JobStatusFailed
		job.ErrorMessage = reason
		job.CompletedAt = &now
		job.UpdatedAt = now
		reaped++
	}
	return reaped, nil
}

func cloneJob(job *domain.Job) *domain.Job {
	out := *job
	out.InputJSON = append([]byte(nil), job.InputJSON...)
	out.ResultJSON = append([]byte(nil), job.ResultJSON...)
	if job.ParentJobID != nil {
		v := *job.ParentJobID
		out.ParentJobID = &v
	}
	if job.CurrentStep != nil {
		v := *job.CurrentStep
		out.CurrentStep = &v
	}
	if job.TotalSteps != nil {
		v := *job.TotalSteps
		out.TotalSteps = &v
	}
	if job.StartedAt != nil {
		v := *job.StartedAt
		out.StartedAt = &v
	}
	if job.CompletedAt != nil {
		v := *job.CompletedAt
		out.CompletedAt = &v
	}
	return &out
}

var _ domain.JobStore = (*JobStore)(nil)
