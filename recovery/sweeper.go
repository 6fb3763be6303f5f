// Package recovery implements the stuck-job sweeper. It periodically scans
// processing jobs whose heartbeat has gone quiet past a size-adjusted
// window, re-signals the worker while retry budget remains, and forces the
// job to failed once the budget is exhausted. The sweeper competes with
// live workers through the same version-conditioned writes as everything
// else: losing the write race means the worker is alive after all, and the
// sweeper walks away.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/mailscout/bulkq"
	"github.com/mailscout/bulkq/backoff"
	"github.com/mailscout/bulkq/hook"
	"github.com/mailscout/bulkq/job"
	"github.com/mailscout/bulkq/signal"
)

// retryBudgetExceeded is the error message recorded on forced failure.
const retryBudgetExceeded = "exceeded retry budget"

// defaultSweepLimit bounds how many stale candidates one sweep examines.
const defaultSweepLimit = 100

// cronParser supports standard 5-field cron and descriptors like "@every 30s".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSchedule parses a sweep schedule expression.
func ParseSchedule(expr string) (cronlib.Schedule, error) {
	return cronParser.Parse(expr)
}

// Sweeper scans for stalled processing jobs and recovers them.
type Sweeper struct {
	store    job.Store
	signaler signal.Signaler
	hooks    *hook.Registry
	cfg      bulkq.Config
	grace    backoff.Strategy
	logger   *slog.Logger

	sweepLimit int

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Option configures the Sweeper.
type Option func(*Sweeper)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) { s.logger = logger }
}

// WithHooks sets the lifecycle hook registry.
func WithHooks(r *hook.Registry) Option {
	return func(s *Sweeper) { s.hooks = r }
}

// WithGrace sets the per-retry grace strategy. Each re-signal widens the
// effective staleness window by Delay(retryCount), so a re-dispatched job
// gets progressively more quiet time before the next intervention.
func WithGrace(strategy backoff.Strategy) Option {
	return func(s *Sweeper) { s.grace = strategy }
}

// WithSweepLimit bounds how many candidates one sweep examines.
func WithSweepLimit(limit int) Option {
	return func(s *Sweeper) { s.sweepLimit = limit }
}

// NewSweeper creates a Sweeper on the given store and signaler.
func NewSweeper(store job.Store, signaler signal.Signaler, cfg bulkq.Config, opts ...Option) *Sweeper {
	s := &Sweeper{
		store:      store,
		signaler:   signaler,
		cfg:        cfg,
		grace:      backoff.DefaultStrategy(),
		logger:     slog.Default(),
		sweepLimit: defaultSweepLimit,
		stopCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.hooks == nil {
		s.hooks = hook.NewRegistry(s.logger)
	}
	return s
}

// Start launches the sweep loop on Config.SweepSchedule.
func (s *Sweeper) Start(_ context.Context) error {
	sched, err := ParseSchedule(s.cfg.SweepSchedule)
	if err != nil {
		return fmt.Errorf("recovery: parse sweep schedule %q: %w", s.cfg.SweepSchedule, err)
	}

	s.wg.Add(1)
	go s.loop(sched)
	s.logger.Info("recovery sweeper started",
		slog.String("schedule", s.cfg.SweepSchedule),
		slog.Duration("staleness_base", s.cfg.StalenessBase))
	return nil
}

// Stop signals the sweeper to stop and waits for the loop to finish.
func (s *Sweeper) Stop(_ context.Context) error {
	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("recovery sweeper stopped")
	return nil
}

func (s *Sweeper) loop(sched cronlib.Schedule) {
	defer s.wg.Done()

	for {
		now := time.Now()
		timer := time.NewTimer(time.Until(sched.Next(now)))
		select {
		case <-s.stopCh:
			timer.Stop()
			return
		case <-timer.C:
			if err := s.RunOnce(context.Background()); err != nil {
				s.logger.Error("recovery sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}

// RunOnce performs a single sweep: list stale candidates, then recover
// each one. Per-job failures are logged and do not abort the sweep.
func (s *Sweeper) RunOnce(ctx context.Context) error {
	pol := job.StalenessPolicy{
		Base:      s.cfg.StalenessBase,
		PerRecord: s.cfg.StalenessPerRecord,
	}

	candidates, err := s.store.StaleJobs(ctx, pol, s.sweepLimit)
	if err != nil {
		return fmt.Errorf("recovery: list stale jobs: %w", err)
	}

	now := time.Now().UTC()
	for _, j := range candidates {
		if !s.stale(j, pol, now) {
			continue
		}
		s.recover(ctx, j, now)
	}
	return nil
}

// stale re-checks the candidate against the full policy including the
// per-retry grace, which the store query does not know about.
func (s *Sweeper) stale(j *job.Job, pol job.StalenessPolicy, now time.Time) bool {
	if j.Status != job.StatusProcessing {
		return false
	}
	cutoff := pol.Cutoff(now, j.TotalRequests)
	if j.RetryCount > 0 && s.grace != nil {
		cutoff = cutoff.Add(-s.grace.Delay(j.RetryCount))
	}
	return j.UpdatedAt.Before(cutoff)
}

// recover re-signals the job or, with the budget spent, forces it to
// failed. Either way the write is version-conditioned; a conflict means a
// worker touched the job since our read, so it is not stuck and we skip.
func (s *Sweeper) recover(ctx context.Context, j *job.Job, now time.Time) {
	if j.RetryCount >= s.cfg.MaxRetries {
		s.forceFail(ctx, j, now)
		return
	}

	j.RetryCount++
	// Refresh the heartbeat so the next sweep gives the re-signal time
	// to land.
	j.UpdatedAt = now

	if err := s.store.UpdateJob(ctx, j); err != nil {
		if errors.Is(err, bulkq.ErrVersionConflict) {
			s.logger.Debug("stale candidate changed concurrently, skipping",
				slog.String("job_id", j.ID.String()))
			return
		}
		s.logger.Error("recovery update failed",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()))
		return
	}

	env := &signal.Envelope{
		JobID:      j.ID,
		Kind:       j.Kind,
		Attempt:    j.RetryCount,
		SignaledAt: now,
	}
	if err := s.signaler.Notify(ctx, env); err != nil {
		// The heartbeat refresh already landed; the next sweep retries.
		s.logger.Warn("recovery re-signal failed",
			slog.String("job_id", j.ID.String()),
			slog.Int("attempt", j.RetryCount),
			slog.String("error", err.Error()))
	}

	s.logger.Info("stalled job re-signaled",
		slog.String("job_id", j.ID.String()),
		slog.String("owner", j.Owner),
		slog.Int("attempt", j.RetryCount),
		slog.Int("max_retries", s.cfg.MaxRetries))
	s.hooks.EmitJobRecovered(ctx, j, j.RetryCount)
}

func (s *Sweeper) forceFail(ctx context.Context, j *job.Job, now time.Time) {
	if err := job.Transition(j, job.StatusFailed, job.ActorRecovery, now); err != nil {
		s.logger.Error("recovery transition rejected",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()))
		return
	}
	j.ErrorMessage = retryBudgetExceeded

	if err := s.store.UpdateJob(ctx, j); err != nil {
		if errors.Is(err, bulkq.ErrVersionConflict) {
			s.logger.Debug("stale candidate changed concurrently, skipping",
				slog.String("job_id", j.ID.String()))
			return
		}
		s.logger.Error("recovery force-fail write failed",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()))
		return
	}

	s.logger.Warn("job failed after exhausting retry budget",
		slog.String("job_id", j.ID.String()),
		slog.String("owner", j.Owner),
		slog.Int("retry_count", j.RetryCount))
	s.hooks.EmitJobTerminal(ctx, j)
}
