package billing

import "log/slog"

// Option configures an Extension.
type Option func(*Extension)

// WithLogger sets a custom logger for the extension.
func WithLogger(l *slog.Logger) Option {
	return func(e *Extension) { e.logger = l }
}

// WithoutFailedJobs skips usage events for jobs that ended failed, billing
// only completed batches.
func WithoutFailedJobs() Option {
	return func(e *Extension) { e.billFailed = false }
}
