package engine

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"engine/internal/domain"
	"engine/internal/infra"
)

// StaleJobMessage marks jobs failed by the reaper rather than a handler. No
// refund is attempted for these: the spend outcome is unknown, so the message
// flags them for manual reconciliation against the transaction log.
const StaleJobMessage = "job exceeded processing deadline; credits require manual reconciliation"

// Reaper fails processing jobs whose updated_at has not moved for too long.
// Liveness, not correctness: a healthy handler reports progress on every
// step, so a stuck row means the worker died mid-job.
type Reaper struct {
	jobs   domain.JobStore
	maxAge time.Duration
	logger infra.Logger
	cron   *cron.Cron
}

// NewReaper schedules the sweep according to cfg.ReaperEvery (cron spec,
// "@every 1m" by default).
func NewReaper(jobs domain.JobStore, cfg infra.WorkerConfig, logger infra.Logger) (*Reaper, error) {
	r := &Reaper{
		jobs:   jobs,
		maxAge: cfg.ReaperMaxAge,
		logger: logger,
		cron:   cron.New(),
	}
	if _, err := r.cron.AddFunc(cfg.ReaperEvery, r.sweep); err != nil {
		return nil, err
	}
	return r, nil
}

// Start begins the schedule; Stop waits for a running sweep to finish.
func (r *Reaper) Start() { r.cron.Start() }

func (r *Reaper) Stop() {
	<-r.cron.Stop().Done()
}

// Sweep runs one pass immediately. Exposed for tests and manual operation.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-r.maxAge)
	return r.jobs.FailStale(ctx, cutoff, StaleJobMessage)
}

func (r *Reaper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	reaped, err := r.Sweep(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("reaper: sweep failed")
		return
	}
	if reaped > 0 {
		r.logger.Warn().Int("reaped", reaped).Msg("reaper: failed stale jobs")
	}
}
