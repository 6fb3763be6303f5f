package billing

import (
	"context"
	"log/slog"
	"time"

	"github.com/mailscout/bulkq/hook"
	"github.com/mailscout/bulkq/id"
	"github.com/mailscout/bulkq/job"
)

// Compile-time interface checks.
var (
	_ hook.Extension   = (*Extension)(nil)
	_ hook.JobTerminal = (*Extension)(nil)
)

// UsageEvent is the billable record for one finished job.
type UsageEvent struct {
	// EventID uniquely identifies this usage event (prefix "evt").
	EventID id.EventID `json:"event_id"`

	JobID  string `json:"job_id"`
	Owner  string `json:"owner"`
	Kind   string `json:"kind"`
	Status string `json:"status"`

	// ProcessedRequests is the billable unit count. Partially processed
	// failed jobs bill only what was actually processed.
	ProcessedRequests int `json:"processed_requests"`
	Succeeded         int `json:"succeeded"`
	Failed            int `json:"failed"`

	FinishedAt time.Time `json:"finished_at"`
}

// Sender delivers usage events to the billing backend.
type Sender interface {
	Send(ctx context.Context, evt *UsageEvent) error
}

// SenderFunc is an adapter to use a plain function as a Sender.
type SenderFunc func(ctx context.Context, evt *UsageEvent) error

func (f SenderFunc) Send(ctx context.Context, evt *UsageEvent) error {
	return f(ctx, evt)
}

// Extension emits one usage event per finished job.
type Extension struct {
	sender Sender
	logger *slog.Logger

	// billFailed controls whether failed jobs bill their processed
	// portion. On by default; partial work still costs lookups upstream.
	billFailed bool
}

// New creates a billing extension delivering through the given Sender.
func New(s Sender, opts ...Option) *Extension {
	e := &Extension{
		sender:     s,
		logger:     slog.Default(),
		billFailed: true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements hook.Extension.
func (e *Extension) Name() string { return "billing" }

// OnJobTerminal implements hook.JobTerminal.
func (e *Extension) OnJobTerminal(ctx context.Context, j *job.Job) error {
	if j.Status == job.StatusFailed && !e.billFailed {
		return nil
	}

	finished := time.Now().UTC()
	if j.CompletedAt != nil {
		finished = *j.CompletedAt
	}

	evt := &UsageEvent{
		EventID:           id.NewEventID(),
		JobID:             j.ID.String(),
		Owner:             j.Owner,
		Kind:              string(j.Kind),
		Status:            string(j.Status),
		ProcessedRequests: j.ProcessedRequests,
		Succeeded:         j.Succeeded,
		Failed:            j.Failed,
		FinishedAt:        finished,
	}

	if err := e.sender.Send(ctx, evt); err != nil {
		// Surface to the registry log; the job outcome is already
		// durable, billing reconciles from there.
		e.logger.Error("billing: usage event delivery failed",
			slog.String("event_id", evt.EventID.String()),
			slog.String("job_id", evt.JobID),
			slog.String("error", err.Error()),
		)
		return err
	}

	e.logger.Debug("billing: usage event sent",
		slog.String("event_id", evt.EventID.String()),
		slog.String("job_id", evt.JobID),
		slog.Int("processed", evt.ProcessedRequests),
	)
	return nil
}
