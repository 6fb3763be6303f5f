package audit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mailscout/bulkq/hook"
	"github.com/mailscout/bulkq/job"
)

// Compile-time interface checks.
var (
	_ hook.Extension     = (*Extension)(nil)
	_ hook.JobSubmitted  = (*Extension)(nil)
	_ hook.JobDispatched = (*Extension)(nil)
	_ hook.JobStopped    = (*Extension)(nil)
	_ hook.JobRecovered  = (*Extension)(nil)
	_ hook.JobTerminal   = (*Extension)(nil)
)

// Recorder is the interface audit backends implement. It is defined
// locally so this package does not depend on any particular audit system;
// callers bridge to their backend at wiring time.
type Recorder interface {
	// Record persists a fully-formed audit event.
	Record(ctx context.Context, event *Event) error
}

// Event is the audit record for one lifecycle action.
type Event struct {
	// What happened
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Category string `json:"category"`

	// Details
	ResourceID string         `json:"resource_id,omitempty"`
	Owner      string         `json:"owner,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *Event) error

func (f RecorderFunc) Record(ctx context.Context, event *Event) error {
	return f(ctx, event)
}

// SlogRecorder records audit events as structured log lines. It is the
// default backend when no dedicated audit system is wired.
func SlogRecorder(logger *slog.Logger) Recorder {
	return RecorderFunc(func(_ context.Context, evt *Event) error {
		attrs := []any{
			slog.String("action", evt.Action),
			slog.String("resource_id", evt.ResourceID),
			slog.String("owner", evt.Owner),
			slog.String("severity", evt.Severity),
		}
		if evt.Reason != "" {
			attrs = append(attrs, slog.String("reason", evt.Reason))
		}
		logger.Info("audit", attrs...)
		return nil
	})
}

// Severity constants.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Extension bridges bulkq lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided
// Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements hook.Extension.
func (e *Extension) Name() string { return "audit" }

// OnJobSubmitted implements hook.JobSubmitted.
func (e *Extension) OnJobSubmitted(ctx context.Context, j *job.Job) error {
	return e.record(ctx, ActionJobSubmitted, SeverityInfo, j, "",
		"kind", string(j.Kind),
		"total_requests", j.TotalRequests,
	)
}

// OnJobDispatched implements hook.JobDispatched.
func (e *Extension) OnJobDispatched(ctx context.Context, j *job.Job) error {
	return e.record(ctx, ActionJobDispatch, SeverityInfo, j, "",
		"kind", string(j.Kind),
	)
}

// OnJobStopped implements hook.JobStopped.
func (e *Extension) OnJobStopped(ctx context.Context, j *job.Job) error {
	return e.record(ctx, ActionJobStopped, SeverityWarning, j, j.ErrorMessage,
		"processed", j.ProcessedRequests,
		"total_requests", j.TotalRequests,
	)
}

// OnJobRecovered implements hook.JobRecovered.
func (e *Extension) OnJobRecovered(ctx context.Context, j *job.Job, attempt int) error {
	return e.record(ctx, ActionJobRecovered, SeverityWarning, j, "",
		"attempt", attempt,
		"processed", j.ProcessedRequests,
	)
}

// OnJobTerminal implements hook.JobTerminal.
func (e *Extension) OnJobTerminal(ctx context.Context, j *job.Job) error {
	if j.Status == job.StatusFailed {
		return e.record(ctx, ActionJobFailed, SeverityCritical, j, j.ErrorMessage,
			"processed", j.ProcessedRequests,
			"succeeded", j.Succeeded,
			"failed", j.Failed,
			"retry_count", j.RetryCount,
		)
	}
	return e.record(ctx, ActionJobCompleted, SeverityInfo, j, "",
		"processed", j.ProcessedRequests,
		"succeeded", j.Succeeded,
		"failed", j.Failed,
	)
}

// record builds and sends an audit event if the action is enabled.
// The kvPairs argument is a list of key-value pairs added to Metadata.
func (e *Extension) record(ctx context.Context, action, severity string, j *job.Job, reason string, kvPairs ...any) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	evt := &Event{
		Action:     action,
		Resource:   ResourceJob,
		Category:   CategoryJob,
		ResourceID: j.ID.String(),
		Owner:      j.Owner,
		Metadata:   meta,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit: failed to record event",
			slog.String("action", action),
			slog.String("resource_id", evt.ResourceID),
			slog.String("error", recErr.Error()),
		)
	}
	return nil
}
