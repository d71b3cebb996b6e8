// Package poller implements the adaptive status polling used by UI sessions.
// Cadence is derived from each fetched snapshot, never from accumulated
// state: any active job polls hot, recently finished work keeps a warm
// trailing window so the terminal state is observed promptly, and an empty
// queue decays to an idle keepalive.
package poller

import (
	"context"
	"time"

	"engine/internal/domain"
	"engine/internal/infra"
)

// Heat labels the poll cadence derived from a snapshot.
type Heat string

const (
	// HeatHot: at least one job is pending or processing.
	HeatHot Heat = "hot"
	// HeatWarm: no active jobs, but one reached a terminal state within
	// the trailing window.
	HeatWarm Heat = "warm"
	// HeatIdle: nothing active or recent.
	HeatIdle Heat = "idle"
)

// Source is anything that can list an owner's jobs newest first.
type Source interface {
	ListForOwner(ctx context.Context, ownerID string, statuses []domain.JobStatus, limit int) ([]domain.Job, error)
}

// Config tunes the poll cadence. Zero values take the defaults.
type Config struct {
	HotInterval  time.Duration
	WarmInterval time.Duration
	IdleInterval time.Duration
	// Window is how long a terminal job keeps the cadence warm.
	Window time.Duration
	Limit  int
}

const (
	defaultHotInterval  = 5 * time.Second
	defaultWarmInterval = 30 * time.Second
	defaultIdleInterval = 60 * time.Second
	defaultWindow       = 5 * time.Minute
	defaultLimit        = 50
)

func (c Config) withDefaults() Config {
	if c.HotInterval <= 0 {
		c.HotInterval = defaultHotInterval
	}
	if c.WarmInterval <= 0 {
		c.WarmInterval = defaultWarmInterval
	}
	if c.IdleInterval <= 0 {
		c.IdleInterval = defaultIdleInterval
	}
	if c.Window <= 0 {
		c.Window = defaultWindow
	}
	if c.Limit <= 0 {
		c.Limit = defaultLimit
	}
	return c
}

// Snapshot is one observation of the owner's jobs plus the cadence decision
// derived from it.
type Snapshot struct {
	Jobs      []domain.Job
	Heat      Heat
	Interval  time.Duration
	FetchedAt time.Time
}

// Poller periodically fetches one owner's active and recently finished jobs.
type Poller struct {
	source  Source
	ownerID string
	cfg     Config
	logger  infra.Logger
	now     func() time.Time
}

func New(source Source, ownerID string, cfg Config, logger infra.Logger) *Poller {
	return &Poller{
		source:  source,
		ownerID: ownerID,
		cfg:     cfg.withDefaults(),
		logger:  logger,
		now:     time.Now,
	}
}

// SetClock overrides the time source. Test hook.
func (p *Poller) SetClock(now func() time.Time) {
	p.now = now
}

var activeStatuses = []domain.JobStatus{
	domain.JobStatusPending,
	domain.JobStatusProcessing,
}

var terminalStatuses = []domain.JobStatus{
	domain.JobStatusCompleted,
	domain.JobStatusFailed,
	domain.JobStatusCancelled,
}

// Fetch lists active jobs plus jobs that finished within the window, merged
// newest first and de-duplicated by id. The heat is computed from exactly
// this snapshot.
func (p *Poller) Fetch(ctx context.Context) (*Snapshot, error) {
	fetchedAt := p.now()

	active, err := p.source.ListForOwner(ctx, p.ownerID, activeStatuses, p.cfg.Limit)
	if err != nil {
		return nil, err
	}
	finished, err := p.source.ListForOwner(ctx, p.ownerID, terminalStatuses, p.cfg.Limit)
	if err != nil {
		return nil, err
	}

	cutoff := fetchedAt.Add(-p.cfg.Window)
	seen := make(map[string]struct{}, len(active))
	jobs := make([]domain.Job, 0, len(active)+len(finished))
	for _, job := range active {
		seen[job.ID] = struct{}{}
		jobs = append(jobs, job)
	}
	recent := false
	for _, job := range finished {
		if job.CompletedAt == nil || job.CompletedAt.Before(cutoff) {
			continue
		}
		recent = true
		// A job claimed between the two list calls shows up in both;
		// the active entry wins.
		if _, dup := seen[job.ID]; dup {
			continue
		}
		seen[job.ID] = struct{}{}
		jobs = append(jobs, job)
	}

	heat := HeatIdle
	switch {
	case len(active) > 0:
		heat = HeatHot
	case recent:
		heat = HeatWarm
	}
	return &Snapshot{
		Jobs:      jobs,
		Heat:      heat,
		Interval:  p.interval(heat),
		FetchedAt: fetchedAt,
	}, nil
}

func (p *Poller) interval(heat Heat) time.Duration {
	switch heat {
	case HeatHot:
		return p.cfg.HotInterval
	case HeatWarm:
		return p.cfg.WarmInterval
	default:
		return p.cfg.IdleInterval
	}
}

// Run fetches in a loop and emits each snapshot. The delay before the next
// fetch always comes from the snapshot just emitted. The channel closes when
// ctx is cancelled; fetch errors are logged and retried at the idle cadence.
func (p *Poller) Run(ctx context.Context) <-chan Snapshot {
	out := make(chan Snapshot)
	go func() {
		defer close(out)
		for {
			delay := p.cfg.IdleInterval
			snapshot, err := p.Fetch(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				p.logger.Error().Err(err).Str("owner_id", p.ownerID).Msg("poller: fetch failed")
			} else {
				select {
				case out <- *snapshot:
				case <-ctx.Done():
					return
				}
				delay = snapshot.Interval
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
		}
	}()
	return out
}
