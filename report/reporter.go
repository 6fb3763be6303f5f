// Package report implements the read side of the dashboard: owner-scoped
// job lookups and listings. Reads never mutate state, and the listing path
// degrades to an empty result instead of surfacing backend failures, so a
// flaky store renders as an empty dashboard rather than an error page.
package report

import (
	"context"
	"log/slog"

	"github.com/mailscout/bulkq"
	"github.com/mailscout/bulkq/id"
	"github.com/mailscout/bulkq/job"
)

// Reporter serves read-only job views.
type Reporter struct {
	store  job.Store
	logger *slog.Logger
}

// Option configures the Reporter.
type Option func(*Reporter)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reporter) { r.logger = logger }
}

// NewReporter creates a Reporter on the given store.
func NewReporter(store job.Store, opts ...Option) *Reporter {
	r := &Reporter{
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetJob returns the owner's job. A job belonging to another owner is
// reported as not found, never as a permission error, so job ids cannot
// be probed across accounts.
func (r *Reporter) GetJob(ctx context.Context, owner string, jobID id.JobID) (*job.Job, error) {
	j, err := r.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if j.Owner != owner {
		return nil, bulkq.ErrJobNotFound
	}
	return j, nil
}

// ListJobs returns the owner's jobs, most recently created first,
// optionally filtered by status. A backend failure yields an empty list
// and no error.
func (r *Reporter) ListJobs(ctx context.Context, owner string, opts job.ListOpts) []*job.Job {
	jobs, err := r.store.ListJobs(ctx, owner, opts)
	if err != nil {
		r.logger.Error("job listing failed, returning empty view",
			slog.String("owner", owner),
			slog.String("error", err.Error()))
		return []*job.Job{}
	}
	if jobs == nil {
		jobs = []*job.Job{}
	}
	return jobs
}

// QueueStats returns the owner's aggregate queue-health view, or the
// global view when owner is empty.
func (r *Reporter) QueueStats(ctx context.Context, owner string) (*job.QueueStats, error) {
	return r.store.QueueStats(ctx, owner)
}
