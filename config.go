package bulkq

import "time"

// Config holds orchestration policy for the bulk job lifecycle. These are
// the levers the recovery design depends on; none of them is hard-coded
// anywhere else.
type Config struct {
	// MaxBatchSize is the largest number of records a single submission
	// may carry.
	MaxBatchSize int

	// MaxRetries bounds how many times recovery may re-signal a stalled
	// job before forcing it to failed.
	MaxRetries int

	// ConflictRetries bounds how many times a mutation is retried from a
	// fresh read after losing an optimistic write race.
	ConflictRetries int

	// StalenessBase is the minimum quiet period before a processing job
	// is considered stalled.
	StalenessBase time.Duration

	// StalenessPerRecord extends the staleness window proportionally to
	// the job's totalRequests, so large legitimate batches are not
	// prematurely killed.
	StalenessPerRecord time.Duration

	// SweepSchedule is the recovery sweep cadence as a cron expression or
	// descriptor (e.g. "@every 30s").
	SweepSchedule string

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxBatchSize:       10000,
		MaxRetries:         3,
		ConflictRetries:    3,
		StalenessBase:      2 * time.Minute,
		StalenessPerRecord: 100 * time.Millisecond,
		SweepSchedule:      "@every 30s",
		ShutdownTimeout:    30 * time.Second,
	}
}
