package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mailscout/bulkq"
	"github.com/mailscout/bulkq/id"
	"github.com/mailscout/bulkq/job"
)

const jobColumns = `
	id, owner, kind, status, idempotency_key,
	total_requests, processed_requests, succeeded, failed,
	records, error_message, retry_count, version,
	created_at, updated_at, completed_at, stopped_at`

// idemConstraint is the unique index guarding (owner, idempotency_key).
const idemConstraint = "idx_bulkq_jobs_idem"

// CreateJob persists a new job row.
func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO bulkq_jobs (
			id, owner, kind, status, idempotency_key,
			total_requests, processed_requests, succeeded, failed,
			records, error_message, retry_count, version,
			created_at, updated_at, completed_at, stopped_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11, $12, $13,
			$14, $15, $16, $17
		)`,
		j.ID.String(), j.Owner, string(j.Kind), string(j.Status), j.IdempotencyKey,
		j.TotalRequests, j.ProcessedRequests, j.Succeeded, j.Failed,
		j.Records, j.ErrorMessage, j.RetryCount, j.Version,
		j.CreatedAt, j.UpdatedAt, j.CompletedAt, j.StoppedAt,
	)
	if err != nil {
		if isUniqueViolation(err, idemConstraint) {
			return bulkq.ErrDuplicateIdemKey
		}
		if isUniqueViolation(err, "") {
			return bulkq.ErrJobAlreadyExists
		}
		return fmt.Errorf("bulkq/postgres: create job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM bulkq_jobs WHERE id = $1`,
		jobID.String(),
	)

	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, bulkq.ErrJobNotFound
		}
		return nil, fmt.Errorf("bulkq/postgres: get job: %w", err)
	}
	return j, nil
}

// GetJobByIdemKey retrieves the owner's job created with the given
// idempotency key.
func (s *Store) GetJobByIdemKey(ctx context.Context, owner, key string) (*job.Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM bulkq_jobs WHERE owner = $1 AND idempotency_key = $2`,
		owner, key,
	)

	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, bulkq.ErrJobNotFound
		}
		return nil, fmt.Errorf("bulkq/postgres: get job by idempotency key: %w", err)
	}
	return j, nil
}

// UpdateJob writes j back conditioned on its version matching the stored
// row. The version column increments on success; updated_at is written
// verbatim from j, never stamped by the database.
func (s *Store) UpdateJob(ctx context.Context, j *job.Job) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE bulkq_jobs SET
			status = $3, processed_requests = $4, succeeded = $5, failed = $6,
			records = $7, error_message = $8, retry_count = $9,
			updated_at = $10, completed_at = $11, stopped_at = $12,
			version = version + 1
		WHERE id = $1 AND version = $2`,
		j.ID.String(), j.Version,
		string(j.Status), j.ProcessedRequests, j.Succeeded, j.Failed,
		j.Records, j.ErrorMessage, j.RetryCount,
		j.UpdatedAt, j.CompletedAt, j.StoppedAt,
	)
	if err != nil {
		return fmt.Errorf("bulkq/postgres: update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a stale version from a missing row.
		var exists bool
		checkErr := s.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM bulkq_jobs WHERE id = $1)`,
			j.ID.String(),
		).Scan(&exists)
		if checkErr != nil {
			return fmt.Errorf("bulkq/postgres: update job: %w", checkErr)
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
	query := `SELECT ` + jobColumns + ` FROM bulkq_jobs WHERE owner = $1`
	args := []interface{}{owner}
	argIdx := 2

	if opts.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(opts.Status))
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("bulkq/postgres: list jobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// QueueStats aggregates per-status counts for the owner's jobs, or globally
// when owner is empty.
func (s *Store) QueueStats(ctx context.Context, owner string) (*job.QueueStats, error) {
	var stats job.QueueStats
	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'processing'),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'failed'),
			COUNT(*) FILTER (WHERE status = 'paused'),
			MIN(updated_at) FILTER (WHERE status = 'processing')
		FROM bulkq_jobs
		WHERE $1 = '' OR owner = $1`,
		owner,
	).Scan(
		&stats.Pending, &stats.Processing, &stats.Completed,
		&stats.Failed, &stats.Paused, &stats.OldestProcessing,
	)
	if err != nil {
		return nil, fmt.Errorf("bulkq/postgres: queue stats: %w", err)
	}
	return &stats, nil
}

// StaleJobs returns processing jobs whose heartbeat is older than the
// policy's size-adjusted cutoff, oldest first.
func (s *Store) StaleJobs(ctx context.Context, pol job.StalenessPolicy, limit int) ([]*job.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM bulkq_jobs
		WHERE status = 'processing'
		  AND updated_at < NOW() - make_interval(secs => $1 + total_requests * $2)
		ORDER BY updated_at ASC`
	args := []interface{}{pol.Base.Seconds(), pol.PerRecord.Seconds()}
	if limit > 0 {
		query += " LIMIT $3"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("bulkq/postgres: stale jobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// scanJob scans a single job row.
func scanJob(row pgx.Row) (*job.Job, error) {
	var (
		j         job.Job
		idStr     string
		kindStr   string
		statusStr string
	)
	err := row.Scan(
		&idStr, &j.Owner, &kindStr, &statusStr, &j.IdempotencyKey,
		&j.TotalRequests, &j.ProcessedRequests, &j.Succeeded, &j.Failed,
		&j.Records, &j.ErrorMessage, &j.RetryCount, &j.Version,
		&j.CreatedAt, &j.UpdatedAt, &j.CompletedAt, &j.StoppedAt,
	)
	if err != nil {
		return nil, err
	}

	j.Kind = job.Kind(kindStr)
	j.Status = job.Status(statusStr)

	parsedID, parseErr := id.ParseJobID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("bulkq/postgres: parse job id %q: %w", idStr, parseErr)
	}
	j.ID = parsedID

	return &j, nil
}

// collectJobs collects all jobs from query rows.
func collectJobs(rows pgx.Rows) ([]*job.Job, error) {
	var jobs []*job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("bulkq/postgres: scan job row: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("bulkq/postgres: iterate job rows: %w", err)
	}
	return jobs, nil
}
