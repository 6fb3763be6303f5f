// Package queue implements the queue manager: the write side of the bulk
// job lifecycle. Every mutation follows the same shape: read the row,
// apply a pure transition or merge, write back conditioned on the version,
// and retry from a fresh read when the write loses a race. The manager
// never runs lookup work itself; it hands batches to the external worker
// through a Signaler and absorbs the worker's progress reports.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mailscout/bulkq"
	"github.com/mailscout/bulkq/hook"
	"github.com/mailscout/bulkq/id"
	"github.com/mailscout/bulkq/job"
	"github.com/mailscout/bulkq/signal"
)

// stoppedByUser is the error message recorded on a user-initiated stop.
const stoppedByUser = "stopped by user"

// Manager coordinates submissions, dispatch, stops, and worker progress
// for bulk jobs. Safe for concurrent use.
type Manager struct {
	store    job.Store
	signaler signal.Signaler
	hooks    *hook.Registry
	limiter  *Limiter
	cfg      bulkq.Config
	logger   *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithHooks sets the lifecycle hook registry.
func WithHooks(r *hook.Registry) Option {
	return func(m *Manager) { m.hooks = r }
}

// WithLimiter sets the per-owner limiter. Without one no throttling
// applies.
func WithLimiter(l *Limiter) Option {
	return func(m *Manager) { m.limiter = l }
}

// NewManager creates a queue manager on the given store and signaler.
func NewManager(store job.Store, signaler signal.Signaler, cfg bulkq.Config, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		signaler: signaler,
		cfg:      cfg,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.hooks == nil {
		m.hooks = hook.NewRegistry(m.logger)
	}
	return m
}

// Submit validates and persists a new pending job. When idemKey is
// non-empty and the owner has already submitted with it, the existing job
// is returned and no new row is created.
func (m *Manager) Submit(ctx context.Context, owner string, kind job.Kind, inputs []json.RawMessage, idemKey string) (*job.Job, error) {
	if owner == "" {
		return nil, bulkq.NewValidationError("owner", "must not be empty")
	}
	if !kind.Valid() {
		return nil, bulkq.NewValidationError("kind", fmt.Sprintf("unknown kind %q", kind))
	}
	if len(inputs) == 0 {
		return nil, bulkq.NewValidationError("requests", "batch must not be empty")
	}
	if m.cfg.MaxBatchSize > 0 && len(inputs) > m.cfg.MaxBatchSize {
		return nil, bulkq.NewValidationError("requests",
			fmt.Sprintf("batch size %d exceeds limit %d", len(inputs), m.cfg.MaxBatchSize))
	}
	if !m.limiter.AllowSubmit(owner) {
		return nil, bulkq.ErrOwnerThrottled
	}

	if idemKey != "" {
		existing, err := m.store.GetJobByIdemKey(ctx, owner, idemKey)
		if err == nil {
			m.logger.Debug("submit deduplicated by idempotency key",
				slog.String("job_id", existing.ID.String()),
				slog.String("owner", owner))
			return existing, nil
		}
		if !errors.Is(err, bulkq.ErrJobNotFound) {
			return nil, err
		}
	}

	j := job.New(owner, kind, inputs)
	j.IdempotencyKey = idemKey

	if err := m.store.CreateJob(ctx, j); err != nil {
		// A concurrent submit with the same key won the insert race;
		// return its job.
		if idemKey != "" && errors.Is(err, bulkq.ErrDuplicateIdemKey) {
			return m.store.GetJobByIdemKey(ctx, owner, idemKey)
		}
		return nil, err
	}

	m.logger.Info("job submitted",
		slog.String("job_id", j.ID.String()),
		slog.String("owner", owner),
		slog.String("kind", string(kind)),
		slog.Int("total_requests", j.TotalRequests))
	m.hooks.EmitJobSubmitted(ctx, j)
	return j, nil
}

// Dispatch hands a pending job to the worker: pending -> processing plus a
// signal. Dispatching a job that is already processing is a no-op, so the
// call is safe to retry. A signal delivery failure leaves the job in
// processing; the recovery sweep re-signals it.
func (m *Manager) Dispatch(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	var dispatched bool
	j, err := m.mutate(ctx, jobID, func(j *job.Job) (bool, error) {
		dispatched = false
		if j.Status == job.StatusProcessing {
			return false, nil
		}
		if m.limiter != nil {
			stats, statsErr := m.store.QueueStats(ctx, j.Owner)
			if statsErr != nil {
				return false, statsErr
			}
			if !m.limiter.AllowDispatch(stats.Processing) {
				return false, bulkq.ErrOwnerThrottled
			}
		}
		if err := job.Transition(j, job.StatusProcessing, job.ActorCaller, time.Now().UTC()); err != nil {
			return false, err
		}
		dispatched = true
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if !dispatched {
		return j, nil
	}

	m.notify(ctx, j)
	m.hooks.EmitJobDispatched(ctx, j)
	return j, nil
}

// Stop terminally fails an in-flight job on the user's behalf. The job
// never reverts; a worker still chewing on the batch can keep reporting,
// and its counters are merged as bookkeeping without resurrecting the job.
func (m *Manager) Stop(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	j, err := m.mutate(ctx, jobID, func(j *job.Job) (bool, error) {
		now := time.Now().UTC()
		if err := job.Transition(j, job.StatusFailed, job.ActorCaller, now); err != nil {
			return false, err
		}
		j.ErrorMessage = stoppedByUser
		j.StoppedAt = &now
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("job stopped",
		slog.String("job_id", j.ID.String()),
		slog.String("owner", j.Owner))
	m.hooks.EmitJobStopped(ctx, j)
	m.hooks.EmitJobTerminal(ctx, j)
	return j, nil
}

// ApplyProgress merges a worker progress report into the job. Counters
// only move forward, so duplicated or reordered reports are harmless. A
// report carrying a terminal status also transitions the job; that write
// is the exactly-once firing site for the terminal hook.
//
// Reports for a job that is already terminal merge counters only: status
// and the heartbeat stay frozen, and the late report is audit-logged.
func (m *Manager) ApplyProgress(ctx context.Context, jobID id.JobID, r *job.Report) (*job.Job, error) {
	var becameTerminal bool
	var lateReport bool

	j, err := m.mutate(ctx, jobID, func(j *job.Job) (bool, error) {
		becameTerminal = false
		lateReport = false

		if err := r.Validate(j.TotalRequests); err != nil {
			return false, bulkq.NewValidationError("progress", err.Error())
		}

		now := time.Now().UTC()

		if j.Status.Terminal() {
			// Post-terminal bookkeeping: merge without touching the
			// status, the heartbeat, or the terminal timestamps.
			lateReport = true
			changed, mergeErr := job.Merge(j, r)
			if mergeErr != nil {
				return false, bulkq.NewValidationError("progress", mergeErr.Error())
			}
			return changed, nil
		}

		// A report can beat the dispatch write; the worker has the
		// batch either way.
		if j.Status == job.StatusPending {
			if err := job.Transition(j, job.StatusProcessing, job.ActorWorker, now); err != nil {
				return false, err
			}
		}

		changed, mergeErr := job.Merge(j, r)
		if mergeErr != nil {
			return false, bulkq.NewValidationError("progress", mergeErr.Error())
		}

		if r.Terminal != "" {
			if err := job.Transition(j, r.Terminal, job.ActorWorker, now); err != nil {
				return false, err
			}
			if r.Terminal == job.StatusFailed {
				j.ErrorMessage = r.ErrorMessage
			}
			becameTerminal = true
			return true, nil
		}

		if changed {
			// A moving counter is a heartbeat.
			j.UpdatedAt = now
		}
		return changed, nil
	})
	if err != nil {
		return nil, err
	}

	if lateReport {
		m.logger.Info("progress report after terminal status, merged as bookkeeping",
			slog.String("job_id", j.ID.String()),
			slog.String("status", string(j.Status)),
			slog.Int("processed", r.Processed))
		return j, nil
	}

	m.hooks.EmitJobProgress(ctx, j)
	if becameTerminal {
		m.hooks.EmitJobTerminal(ctx, j)
	}
	return j, nil
}

// Resubmit returns a failed job to pending for another run. The retry
// budget and error message reset; counters and already-merged results are
// kept.
func (m *Manager) Resubmit(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	j, err := m.mutate(ctx, jobID, func(j *job.Job) (bool, error) {
		if err := job.Transition(j, job.StatusPending, job.ActorCaller, time.Now().UTC()); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("job resubmitted", slog.String("job_id", j.ID.String()))
	m.hooks.EmitJobSubmitted(ctx, j)
	return j, nil
}

// Pause parks a pending job so dispatch will not pick it up.
func (m *Manager) Pause(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	return m.mutate(ctx, jobID, func(j *job.Job) (bool, error) {
		if err := job.Transition(j, job.StatusPaused, job.ActorCaller, time.Now().UTC()); err != nil {
			return false, err
		}
		return true, nil
	})
}

// Resume returns a paused job to pending.
func (m *Manager) Resume(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	return m.mutate(ctx, jobID, func(j *job.Job) (bool, error) {
		if err := job.Transition(j, job.StatusPending, job.ActorCaller, time.Now().UTC()); err != nil {
			return false, err
		}
		return true, nil
	})
}

// QueueStatus returns the aggregate queue-health view for the owner, or
// globally when owner is empty.
func (m *Manager) QueueStatus(ctx context.Context, owner string) (*job.QueueStats, error) {
	return m.store.QueueStats(ctx, owner)
}

// mutate runs the read -> apply -> conditional write loop. apply returns
// whether a write is needed; when the write loses the version race the
// whole cycle restarts from a fresh read, up to Config.ConflictRetries
// attempts.
func (m *Manager) mutate(ctx context.Context, jobID id.JobID, apply func(*job.Job) (bool, error)) (*job.Job, error) {
	attempts := m.cfg.ConflictRetries
	if attempts <= 0 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		j, err := m.store.GetJob(ctx, jobID)
		if err != nil {
			return nil, err
		}

		write, err := apply(j)
		if err != nil {
			var ite *job.InvalidTransitionError
			if errors.As(err, &ite) {
				m.logger.Warn("illegal transition rejected",
					slog.String("job_id", jobID.String()),
					slog.String("from", string(ite.From)),
					slog.String("to", string(ite.To)),
					slog.String("actor", string(ite.Actor)))
			}
			return nil, err
		}
		if !write {
			return j, nil
		}

		err = m.store.UpdateJob(ctx, j)
		if err == nil {
			return j, nil
		}
		if !errors.Is(err, bulkq.ErrVersionConflict) {
			return nil, err
		}
		m.logger.Debug("optimistic write conflict, retrying from fresh read",
			slog.String("job_id", jobID.String()),
			slog.Int("attempt", attempt))
	}

	return nil, fmt.Errorf("job %s: %w", jobID, bulkq.ErrConflictExhausted)
}

// notify signals the worker that a batch is ready. Delivery failure is
// logged and absorbed: the job stays processing and the recovery sweep
// re-signals it.
func (m *Manager) notify(ctx context.Context, j *job.Job) {
	env := &signal.Envelope{
		JobID:      j.ID,
		Kind:       j.Kind,
		Attempt:    j.RetryCount,
		SignaledAt: time.Now().UTC(),
	}
	if err := m.signaler.Notify(ctx, env); err != nil {
		wrapped := fmt.Errorf("%w: %v", bulkq.ErrWorkerUnreachable, err)
		m.logger.Warn("worker signal failed, recovery will retry",
			slog.String("job_id", j.ID.String()),
			slog.String("error", wrapped.Error()))
	}
}
