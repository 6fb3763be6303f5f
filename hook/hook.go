// Package hook defines the extension system for bulkq. Extensions are
// notified of job lifecycle events (submitted, dispatched, progress,
// stopped, recovered, terminal) and can react to them: logging, metrics,
// billing, streaming.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package hook

import (
	"context"

	"github.com/mailscout/bulkq/job"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// JobSubmitted is called after a job is successfully created.
type JobSubmitted interface {
	OnJobSubmitted(ctx context.Context, j *job.Job) error
}

// JobDispatched is called after a job is handed to the worker.
type JobDispatched interface {
	OnJobDispatched(ctx context.Context, j *job.Job) error
}

// JobProgress is called after a progress report is merged into a job.
type JobProgress interface {
	OnJobProgress(ctx context.Context, j *job.Job) error
}

// JobStopped is called when a user stops an in-flight job.
type JobStopped interface {
	OnJobStopped(ctx context.Context, j *job.Job) error
}

// JobRecovered is called when recovery re-signals a stalled job.
type JobRecovered interface {
	OnJobRecovered(ctx context.Context, j *job.Job, attempt int) error
}

// JobTerminal is called exactly once per job, on the write that moved it
// into a terminal status. Billing and other once-per-job consumers hang
// off this hook.
type JobTerminal interface {
	OnJobTerminal(ctx context.Context, j *job.Job) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
