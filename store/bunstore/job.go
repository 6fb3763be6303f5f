package bunstore

import (
	"context"
	"fmt"

	"github.com/mailscout/bulkq"
	"github.com/mailscout/bulkq/id"
	"github.com/mailscout/bulkq/job"
)

// idemConstraint is the unique index guarding (owner, idempotency_key).
const idemConstraint = "idx_bulkq_jobs_idem"

// CreateJob persists a new job row.
func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	m, err := toJobModel(j)
	if err != nil {
		return err
	}
	_, err = s.db.NewInsert().Model(m).Exec(ctx)
	if err != nil {
		if isUniqueViolation(err, idemConstraint) {
			return bulkq.ErrDuplicateIdemKey
		}
		if isUniqueViolation(err, "") {
			return bulkq.ErrJobAlreadyExists
		}
		return fmt.Errorf("bulkq/bunstore: create job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	m := new(jobModel)
	err := s.db.NewSelect().Model(m).
		Where("id = ?", jobID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, bulkq.ErrJobNotFound
		}
		return nil, fmt.Errorf("bulkq/bunstore: get job: %w", err)
	}
	return fromJobModel(m)
}

// GetJobByIdemKey retrieves the owner's job created with the given
// idempotency key.
func (s *Store) GetJobByIdemKey(ctx context.Context, owner, key string) (*job.Job, error) {
	m := new(jobModel)
	err := s.db.NewSelect().Model(m).
		Where("owner = ?", owner).
		Where("idempotency_key = ?", key).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, bulkq.ErrJobNotFound
		}
		return nil, fmt.Errorf("bulkq/bunstore: get job by idempotency key: %w", err)
	}
	return fromJobModel(m)
}

// UpdateJob writes j back conditioned on its version matching the stored
// row. The version column increments on success.
func (s *Store) UpdateJob(ctx context.Context, j *job.Job) error {
	m, err := toJobModel(j)
	if err != nil {
		return err
	}
	res, err := s.db.NewUpdate().Model(m).
		Column("status", "processed_requests", "succeeded", "failed",
			"records", "error_message", "retry_count",
			"updated_at", "completed_at", "stopped_at").
		Set("version = version + 1").
		Where("id = ?", m.ID).
		Where("version = ?", m.Version).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("bulkq/bunstore: update job: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		// Distinguish a stale version from a missing row.
		exists, existsErr := s.db.NewSelect().
			TableExpr("bulkq_jobs").
			Where("id = ?", m.ID).
			Exists(ctx)
		if existsErr != nil {
			return fmt.Errorf("bulkq/bunstore: update job: %w", existsErr)
		}
		if !exists {
			return bulkq.ErrJobNotFound
		}
		return bulkq.ErrVersionConflict
	}
	j.Version++
	return nil
}

// ListJobs returns the owner's jobs, most recently created first.
func (s *Store) ListJobs(ctx context.Context, owner string, opts job.ListOpts) ([]*job.Job, error) {
	var models []jobModel
	q := s.db.NewSelect().Model(&models).
		Where("owner = ?", owner)

	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}

	q = q.Order("created_at DESC")

	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("bulkq/bunstore: list jobs: %w", err)
	}

	jobs := make([]*job.Job, 0, len(models))
	for i := range models {
		j, convErr := fromJobModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("bulkq/bunstore: list convert: %w", convErr)
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// QueueStats aggregates per-status counts for the owner's jobs, or globally
// when owner is empty.
func (s *Store) QueueStats(ctx context.Context, owner string) (*job.QueueStats, error) {
	var stats job.QueueStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'processing'),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'failed'),
			COUNT(*) FILTER (WHERE status = 'paused'),
			MIN(updated_at) FILTER (WHERE status = 'processing')
		FROM bulkq_jobs
		WHERE ? = '' OR owner = ?`,
		owner, owner,
	).Scan(
		&stats.Pending, &stats.Processing, &stats.Completed,
		&stats.Failed, &stats.Paused, &stats.OldestProcessing,
	)
	if err != nil {
		return nil, fmt.Errorf("bulkq/bunstore: queue stats: %w", err)
	}
	return &stats, nil
}

// StaleJobs returns processing jobs whose heartbeat is older than the
// policy's size-adjusted cutoff, oldest first.
func (s *Store) StaleJobs(ctx context.Context, pol job.StalenessPolicy, limit int) ([]*job.Job, error) {
	var models []jobModel
	q := s.db.NewSelect().Model(&models).
		Where("status = 'processing'").
		Where("updated_at < NOW() - make_interval(secs => ? + total_requests * ?)",
			pol.Base.Seconds(), pol.PerRecord.Seconds()).
		Order("updated_at ASC")

	if limit > 0 {
		q = q.Limit(limit)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("bulkq/bunstore: stale jobs: %w", err)
	}

	jobs := make([]*job.Job, 0, len(models))
	for i := range models {
		j, convErr := fromJobModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("bulkq/bunstore: stale convert: %w", convErr)
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}
