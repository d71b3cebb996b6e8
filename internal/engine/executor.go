package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"engine/internal/domain"
	"engine/internal/infra"
)

// Executor claims pending jobs and drives each through the fixed saga:
// resolve handler, spend the declared credit cost, execute, then complete or
// fail. It runs a bounded pool of workers; the claim query is the only
// serialization point, so any number of executor processes may share a queue.
type Executor struct {
	jobs     domain.JobStore
	ledger   domain.CreditLedger
	handlers map[domain.JobType]Handler
	cfg      infra.WorkerConfig
	logger   infra.Logger
	wg       sync.WaitGroup
}

// NewExecutor creates an executor with no handlers registered.
func NewExecutor(jobs domain.JobStore, ledger domain.CreditLedger, cfg infra.WorkerConfig, logger infra.Logger) *Executor {
	return &Executor{
		jobs:     jobs,
		ledger:   ledger,
		handlers: make(map[domain.JobType]Handler),
		cfg:      cfg,
		logger:   logger,
	}
}

// Register adds a handler for its job type. Registering two handlers for the
// same type is a programming error.
func (e *Executor) Register(h Handler) error {
	t := h.Type()
	if !domain.ValidJobType(t) {
		return fmt.Errorf("%w: unknown job type %q", domain.ErrValidation, t)
	}
	if _, dup := e.handlers[t]; dup {
		return fmt.Errorf("handler for %q already registered", t)
	}
	e.handlers[t] = h
	return nil
}

// Start runs the worker pool until ctx is cancelled. In-flight handlers
// finish before Start returns.
func (e *Executor) Start(ctx context.Context) error {
	e.logger.Info().
		Int("concurrency", e.cfg.Concurrency).
		Dur("poll_interval", e.cfg.PollInterval).
		Msg("executor: started")
	for i := 0; i < e.cfg.Concurrency; i++ {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.workLoop(ctx)
		}()
	}
	<-ctx.Done()
	e.wg.Wait()
	e.logger.Info().Msg("executor: stopped")
	return ctx.Err()
}

func (e *Executor) workLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		claimed, err := e.ProcessNext(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			e.logger.Error().Err(err).Msg("executor: claim failed")
		}
		if !claimed {
			select {
			case <-ctx.Done():
				return
			case <-time.After(e.cfg.PollInterval):
			}
		}
	}
}

// ProcessNext claims and runs at most one job. It reports whether a job was
// claimed; an empty queue is not an error.
func (e *Executor) ProcessNext(ctx context.Context) (bool, error) {
	job, err := e.jobs.ClaimNext(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNoJob) {
			return false, nil
		}
		return false, err
	}
	e.runJob(ctx, job)
	return true, nil
}

// RunClaimed executes the saga for a job this process already claimed.
// Claim races resolve silently: a caller whose Claim returned
// ErrInvalidTransition must not call this.
func (e *Executor) RunClaimed(ctx context.Context, job *domain.Job) {
	e.runJob(ctx, job)
}

func (e *Executor) runJob(ctx context.Context, job *domain.Job) {
	log := e.logger.With().
		Str("job_id", job.ID).
		Str("job_type", string(job.Type)).
		Str("owner_id", job.OwnerID).
		Logger()
	log.Info().Msg("executor: picked job")

	handler, ok := e.handlers[job.Type]
	if !ok {
		e.failJob(ctx, log, job.ID, fmt.Sprintf("unknown job type %q", job.Type))
		return
	}

	task := &Task{
		Job:    job,
		jobs:   e.jobs,
		ledger: e.ledger,
		logger: log,
	}

	if cost := handler.Cost(job); cost > 0 {
		txID, err := e.ledger.Spend(ctx, job.OwnerID, cost,
			fmt.Sprintf("%s job", job.Type),
			map[string]any{
				domain.MetaJobID:   job.ID,
				domain.MetaJobType: string(job.Type),
			})
		if err != nil {
			// No provider call is made when the spend is refused;
			// the balance message is surfaced verbatim to the
			// caller.
			e.failJob(ctx, log, job.ID, err.Error())
			return
		}
		task.spendTxID = txID
		task.cost = cost
		log.Info().Str("tx_id", txID).Int64("amount", cost).Msg("executor: spent credits")
	}

	result, err := handler.Execute(ctx, task)
	if err != nil {
		if Cancelled(err) {
			log.Info().Msg("executor: job cancelled during execution")
			return
		}
		e.failJob(ctx, log, job.ID, err.Error())
		return
	}

	if err := e.jobs.Complete(ctx, job.ID, result); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			// Cancelled between the last progress report and here.
			log.Info().Msg("executor: job reached terminal state before completion")
			return
		}
		log.Error().Err(err).Msg("executor: complete failed")
		return
	}
	log.Info().Msg("executor: job completed")
}

// failJob marks the job failed. Compensation already happened inside the
// handler by contract, so this write is always the last step of the saga.
func (e *Executor) failJob(ctx context.Context, log infra.Logger, jobID, message string) {
	if err := e.jobs.Fail(ctx, jobID, message); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			log.Debug().Msg("executor: fail skipped, job already terminal")
			return
		}
		log.Error().Err(err).Msg("executor: fail write failed")
		return
	}
	log.Warn().Str("error_message", message).Msg("executor: job failed")
}
