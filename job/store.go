package job

import (
	"context"
	"time"

	"github.com/mailscout/bulkq/id"
)

// ListOpts controls filtering and pagination for job list queries.
type ListOpts struct {
	// Status filters by job status. Empty means all statuses.
	Status Status
	// Limit is the maximum number of jobs to return. Zero means no limit.
	Limit int
	// Offset is the number of jobs to skip.
	Offset int
}

// QueueStats is the aggregate queue-health view: per-status counts plus the
// oldest heartbeat among processing jobs.
type QueueStats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
	Paused     int64 `json:"paused"`

	// OldestProcessing is the oldest UpdatedAt among processing jobs, nil
	// when none are processing. A value far in the past means the queue
	// is unhealthy.
	OldestProcessing *time.Time `json:"oldest_processing,omitempty"`
}

// StalenessPolicy decides when a processing job counts as stalled. The
// window scales with the job's batch size so large legitimate jobs are not
// prematurely killed.
type StalenessPolicy struct {
	// Base is the minimum quiet period.
	Base time.Duration
	// PerRecord extends the window per submitted record.
	PerRecord time.Duration
}

// Window returns the full staleness window for a job of the given size.
func (p StalenessPolicy) Window(totalRequests int) time.Duration {
	return p.Base + time.Duration(totalRequests)*p.PerRecord
}

// Cutoff returns the heartbeat cutoff: a processing job whose UpdatedAt is
// before this moment is stale.
func (p StalenessPolicy) Cutoff(now time.Time, totalRequests int) time.Time {
	return now.Add(-p.Window(totalRequests))
}

// Store defines the persistence contract for jobs. The store owns no
// lifecycle behavior beyond atomic reads and version-conditioned writes;
// all state-machine logic lives above it.
type Store interface {
	// CreateJob persists a new job row. Returns bulkq.ErrJobAlreadyExists
	// for a duplicate id and bulkq.ErrDuplicateIdemKey when the owner has
	// already used the job's idempotency key.
	CreateJob(ctx context.Context, j *Job) error

	// GetJob retrieves a job by ID, or bulkq.ErrJobNotFound.
	GetJob(ctx context.Context, jobID id.JobID) (*Job, error)

	// GetJobByIdemKey retrieves the owner's job created with the given
	// idempotency key, or bulkq.ErrJobNotFound.
	GetJobByIdemKey(ctx context.Context, owner, key string) (*Job, error)

	// UpdateJob writes j back conditioned on j.Version matching the stored
	// row. On success the version increments (in the row and in j).
	// Returns bulkq.ErrVersionConflict when the row changed since the
	// caller's read, bulkq.ErrJobNotFound when the row is gone.
	UpdateJob(ctx context.Context, j *Job) error

	// ListJobs returns the owner's jobs, most recently created first.
	ListJobs(ctx context.Context, owner string, opts ListOpts) ([]*Job, error)

	// QueueStats aggregates per-status counts for the owner's jobs, or
	// globally when owner is empty (operator view).
	QueueStats(ctx context.Context, owner string) (*QueueStats, error)

	// StaleJobs returns processing jobs whose UpdatedAt is older than the
	// policy's per-job cutoff, oldest first, up to limit.
	StaleJobs(ctx context.Context, pol StalenessPolicy, limit int) ([]*Job, error)
}
