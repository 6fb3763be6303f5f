package hook

import (
	"context"
	"log/slog"

	"github.com/mailscout/bulkq/job"
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time. This avoids type-asserting back to
// Extension inside the emit methods.
type jobSubmittedEntry struct {
	name string
	hook JobSubmitted
}

type jobDispatchedEntry struct {
	name string
	hook JobDispatched
}

type jobProgressEntry struct {
	name string
	hook JobProgress
}

type jobStoppedEntry struct {
	name string
	hook JobStopped
}

type jobRecoveredEntry struct {
	name string
	hook JobRecovered
}

type jobTerminalEntry struct {
	name string
	hook JobTerminal
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	jobSubmitted  []jobSubmittedEntry
	jobDispatched []jobDispatchedEntry
	jobProgress   []jobProgressEntry
	jobStopped    []jobStoppedEntry
	jobRecovered  []jobRecoveredEntry
	jobTerminal   []jobTerminalEntry
	shutdown      []shutdownEntry
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(JobSubmitted); ok {
		r.jobSubmitted = append(r.jobSubmitted, jobSubmittedEntry{name, h})
	}
	if h, ok := e.(JobDispatched); ok {
		r.jobDispatched = append(r.jobDispatched, jobDispatchedEntry{name, h})
	}
	if h, ok := e.(JobProgress); ok {
		r.jobProgress = append(r.jobProgress, jobProgressEntry{name, h})
	}
	if h, ok := e.(JobStopped); ok {
		r.jobStopped = append(r.jobStopped, jobStoppedEntry{name, h})
	}
	if h, ok := e.(JobRecovered); ok {
		r.jobRecovered = append(r.jobRecovered, jobRecoveredEntry{name, h})
	}
	if h, ok := e.(JobTerminal); ok {
		r.jobTerminal = append(r.jobTerminal, jobTerminalEntry{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// EmitJobSubmitted notifies all extensions that implement JobSubmitted.
func (r *Registry) EmitJobSubmitted(ctx context.Context, j *job.Job) {
	for _, e := range r.jobSubmitted {
		if err := e.hook.OnJobSubmitted(ctx, j); err != nil {
			r.logHookError("OnJobSubmitted", e.name, err)
		}
	}
}

// EmitJobDispatched notifies all extensions that implement JobDispatched.
func (r *Registry) EmitJobDispatched(ctx context.Context, j *job.Job) {
	for _, e := range r.jobDispatched {
		if err := e.hook.OnJobDispatched(ctx, j); err != nil {
			r.logHookError("OnJobDispatched", e.name, err)
		}
	}
}

// EmitJobProgress notifies all extensions that implement JobProgress.
func (r *Registry) EmitJobProgress(ctx context.Context, j *job.Job) {
	for _, e := range r.jobProgress {
		if err := e.hook.OnJobProgress(ctx, j); err != nil {
			r.logHookError("OnJobProgress", e.name, err)
		}
	}
}

// EmitJobStopped notifies all extensions that implement JobStopped.
func (r *Registry) EmitJobStopped(ctx context.Context, j *job.Job) {
	for _, e := range r.jobStopped {
		if err := e.hook.OnJobStopped(ctx, j); err != nil {
			r.logHookError("OnJobStopped", e.name, err)
		}
	}
}

// EmitJobRecovered notifies all extensions that implement JobRecovered.
func (r *Registry) EmitJobRecovered(ctx context.Context, j *job.Job, attempt int) {
	for _, e := range r.jobRecovered {
		if err := e.hook.OnJobRecovered(ctx, j, attempt); err != nil {
			r.logHookError("OnJobRecovered", e.name, err)
		}
	}
}

// EmitJobTerminal notifies all extensions that implement JobTerminal.
// Callers fire this only on the successful write that moved the job into
// a terminal status, never on a conflicted or repeated write.
func (r *Registry) EmitJobTerminal(ctx context.Context, j *job.Job) {
	for _, e := range r.jobTerminal {
		if err := e.hook.OnJobTerminal(ctx, j); err != nil {
			r.logHookError("OnJobTerminal", e.name, err)
		}
	}
}

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Errors from hooks are never propagated; they must not block the pipeline.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
