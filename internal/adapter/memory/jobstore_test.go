package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"engine/internal/domain"
)

func createPending(t *testing.T, s *JobStore, owner string) *domain.Job {
	t.Helper()
	job, err := s.Create(context.Background(), domain.NewJob{
		OwnerID: owner,
		Type:    domain.JobTypeImageGeneration,
		Input:   []byte(`{"prompt":"x"}`),
	})
	require.NoError(t, err)
	return job
}

func TestCreateValidates(t *testing.T) {
	ctx := context.Background()
	s := NewJobStore()

	_, err := s.Create(ctx, domain.NewJob{OwnerID: "o", Type: "resize"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = s.Create(ctx, domain.NewJob{Type: domain.JobTypeExport})
	assert.ErrorIs(t, err, domain.ErrValidation)

	steps := 0
	_, err = s.Create(ctx, domain.NewJob{OwnerID: "o", Type: domain.JobTypeExport, TotalSteps: &steps})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestSingleClaimWinner(t *testing.T) {
	ctx := context.Background()
	s := NewJobStore()
	job := createPending(t, s, "owner-1")

	const claimants = 32
	var wg sync.WaitGroup
	errs := make([]error, claimants)
	for i := 0; i < claimants; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.Claim(ctx, job.ID)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, domain.ErrInvalidTransition):
		default:
			t.Fatalf("unexpected claim error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)

	got, err := s.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusProcessing, got.Status)
	assert.NotNil(t, got.StartedAt)
}

func TestClaimNextOldestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewJobStore()
	first := createPending(t, s, "owner-1")
	second := createPending(t, s, "owner-1")

	got, err := s.ClaimNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	got, err = s.ClaimNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)

	_, err = s.ClaimNext(ctx)
	assert.ErrorIs(t, err, domain.ErrNoJob)
}

func TestProgressNeverRegresses(t *testing.T) {
	ctx := context.Background()
	s := NewJobStore()
	job := createPending(t, s, "owner-1")
	_, err := s.Claim(ctx, job.ID)
	require.NoError(t, err)

	require.NoError(t, s.ReportProgress(ctx, job.ID, 40, nil, "rendering"))
	// Re-reporting the same value is allowed; going backwards is not.
	require.NoError(t, s.ReportProgress(ctx, job.ID, 40, nil, ""))
	err = s.ReportProgress(ctx, job.ID, 30, nil, "")
	assert.ErrorIs(t, err, domain.ErrProgressRegression)

	got, err := s.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 40, got.Progress)
	assert.Equal(t, "rendering", got.ProgressMessage)
}

func TestReportProgressTerminalStates(t *testing.T) {
	ctx := context.Background()
	s := NewJobStore()

	done := createPending(t, s, "owner-1")
	_, err := s.Claim(ctx, done.ID)
	require.NoError(t, err)
	require.NoError(t, s.Complete(ctx, done.ID, []byte(`{}`)))
	// Late report after completion is dropped silently.
	assert.NoError(t, s.ReportProgress(ctx, done.ID, 90, nil, "late"))

	cancelled := createPending(t, s, "owner-1")
	_, err = s.Claim(ctx, cancelled.ID)
	require.NoError(t, err)
	require.NoError(t, s.Cancel(ctx, cancelled.ID))
	err = s.ReportProgress(ctx, cancelled.ID, 50, nil, "")
	assert.ErrorIs(t, err, domain.ErrJobCancelled)

	pending := createPending(t, s, "owner-1")
	err = s.ReportProgress(ctx, pending.ID, 10, nil, "")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestTerminalStatesAreImmutable(t *testing.T) {
	ctx := context.Background()
	s := NewJobStore()
	job := createPending(t, s, "owner-1")
	_, err := s.Claim(ctx, job.ID)
	require.NoError(t, err)
	require.NoError(t, s.Complete(ctx, job.ID, []byte(`{"assets":[]}`)))

	assert.ErrorIs(t, s.Complete(ctx, job.ID, []byte(`{"other":1}`)), domain.ErrInvalidTransition)
	assert.ErrorIs(t, s.Fail(ctx, job.ID, "boom"), domain.ErrInvalidTransition)
	assert.ErrorIs(t, s.Cancel(ctx, job.ID), domain.ErrInvalidTransition)
	_, err = s.Claim(ctx, job.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	got, err := s.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, got.Status)
	assert.JSONEq(t, `{"assets":[]}`, string(got.ResultJSON))
	assert.Empty(t, got.ErrorMessage)
	assert.Equal(t, 100, got.Progress)
	assert.NotNil(t, got.CompletedAt)
}

func TestFailWritesErrorOnce(t *testing.T) {
	ctx := context.Background()
	s := NewJobStore()
	job := createPending(t, s, "owner-1")
	_, err := s.Claim(ctx, job.ID)
	require.NoError(t, err)
	require.NoError(t, s.Fail(ctx, job.ID, "provider timeout"))

	got, err := s.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, got.Status)
	assert.Equal(t, "provider timeout", got.ErrorMessage)
	assert.Empty(t, got.ResultJSON)
}

func TestCancelPendingJob(t *testing.T) {
	ctx := context.Background()
	s := NewJobStore()
	job := createPending(t, s, "owner-1")

	require.NoError(t, s.Cancel(ctx, job.ID))
	got, err := s.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCancelled, got.Status)

	// Cancelled jobs never become claimable again.
	_, err = s.ClaimNext(ctx)
	assert.ErrorIs(t, err, domain.ErrNoJob)
}

func TestListForOwnerFilters(t *testing.T) {
	ctx := context.Background()
	s := NewJobStore()
	mine := createPending(t, s, "owner-1")
	createPending(t, s, "owner-2")
	done := createPending(t, s, "owner-1")
	_, err := s.Claim(ctx, done.ID)
	require.NoError(t, err)
	require.NoError(t, s.Complete(ctx, done.ID, []byte(`{}`)))

	all, err := s.ListForOwner(ctx, "owner-1", nil, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	pending, err := s.ListForOwner(ctx, "owner-1", []domain.JobStatus{domain.JobStatusPending}, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, mine.ID, pending[0].ID)

	_, err = s.ListForOwner(ctx, "owner-1", []domain.JobStatus{"sleeping"}, 0)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestFailStaleReapsOnlyOldProcessing(t *testing.T) {
	ctx := context.Background()
	s := NewJobStore()
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return now })

	stuck := createPending(t, s, "owner-1")
	_, err := s.Claim(ctx, stuck.ID)
	require.NoError(t, err)
	fresh := createPending(t, s, "owner-1")

	now = now.Add(45 * time.Minute)
	_, err = s.Claim(ctx, fresh.ID)
	require.NoError(t, err)

	reaped, err := s.FailStale(ctx, now.Add(-30*time.Minute), "deadline exceeded")
	require.NoError(t, err)
	assert.Equal(t, 1, reaped)

	got, err := s.GetByID(ctx, stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, got.Status)
	assert.Equal(t, "deadline exceeded", got.ErrorMessage)

	got, err = s.GetByID(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusProcessing, got.Status)
}
