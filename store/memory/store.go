package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mailscout/bulkq"
	"github.com/mailscout/bulkq/id"
	"github.com/mailscout/bulkq/job"
)

var _ job.Store = (*Store)(nil)

// Store is a fully in-memory implementation of store.Store.
// Safe for concurrent access. Intended for unit testing and development.
type Store struct {
	mu sync.RWMutex

	jobs map[string]*job.Job

	// idem maps "owner\x00key" to a job ID for idempotency-key lookups.
	idem map[string]string
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		jobs: make(map[string]*job.Job),
		idem: make(map[string]string),
	}
}

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

func idemKey(owner, key string) string {
	return owner + "\x00" + key
}

// CreateJob persists a new job row.
func (m *Store) CreateJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := j.ID.String()
	if _, exists := m.jobs[key]; exists {
		return bulkq.ErrJobAlreadyExists
	}
	if j.IdempotencyKey != "" {
		if _, exists := m.idem[idemKey(j.Owner, j.IdempotencyKey)]; exists {
			return bulkq.ErrDuplicateIdemKey
		}
		m.idem[idemKey(j.Owner, j.IdempotencyKey)] = key
	}
	m.jobs[key] = j.Clone()
	return nil
}

// GetJob retrieves a job by ID.
func (m *Store) GetJob(_ context.Context, jobID id.JobID) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, bulkq.ErrJobNotFound
	}
	return j.Clone(), nil
}

// GetJobByIdemKey retrieves the owner's job created with the given
// idempotency key.
func (m *Store) GetJobByIdemKey(_ context.Context, owner, key string) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobID, ok := m.idem[idemKey(owner, key)]
	if !ok {
		return nil, bulkq.ErrJobNotFound
	}
	j, ok := m.jobs[jobID]
	if !ok {
		return nil, bulkq.ErrJobNotFound
	}
	return j.Clone(), nil
}

// UpdateJob writes j back conditioned on its version matching the stored
// row. On success the version increments, both in the row and in j.
func (m *Store) UpdateJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := j.ID.String()
	cur, ok := m.jobs[key]
	if !ok {
		return bulkq.ErrJobNotFound
	}
	if cur.Version != j.Version {
		return bulkq.ErrVersionConflict
	}
	j.Version++
	m.jobs[key] = j.Clone()
	return nil
}

// ListJobs returns the owner's jobs, most recently created first.
func (m *Store) ListJobs(_ context.Context, owner string, opts job.ListOpts) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*job.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if j.Owner != owner {
			continue
		}
		if opts.Status != "" && j.Status != opts.Status {
			continue
		}
		result = append(result, j.Clone())
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.After(result[k].CreatedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return nil, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}

	return result, nil
}

// QueueStats aggregates per-status counts for the owner's jobs, or globally
// when owner is empty.
func (m *Store) QueueStats(_ context.Context, owner string) (*job.QueueStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &job.QueueStats{}
	for _, j := range m.jobs {
		if owner != "" && j.Owner != owner {
			continue
		}
		switch j.Status {
		case job.StatusPending:
			stats.Pending++
		case job.StatusProcessing:
			stats.Processing++
			if stats.OldestProcessing == nil || j.UpdatedAt.Before(*stats.OldestProcessing) {
				t := j.UpdatedAt
				stats.OldestProcessing = &t
			}
		case job.StatusCompleted:
			stats.Completed++
		case job.StatusFailed:
			stats.Failed++
		case job.StatusPaused:
			stats.Paused++
		}
	}
	return stats, nil
}

// StaleJobs returns processing jobs whose heartbeat is older than the
// policy's per-job cutoff, oldest first.
func (m *Store) StaleJobs(_ context.Context, pol job.StalenessPolicy, limit int) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now().UTC()
	var stale []*job.Job
	for _, j := range m.jobs {
		if j.Status != job.StatusProcessing {
			continue
		}
		if j.UpdatedAt.Before(pol.Cutoff(now, j.TotalRequests)) {
			stale = append(stale, j.Clone())
		}
	}

	sort.Slice(stale, func(i, k int) bool {
		return stale[i].UpdatedAt.Before(stale[k].UpdatedAt)
	})

	if limit > 0 && len(stale) > limit {
		stale = stale[:limit]
	}

	return stale, nil
}
