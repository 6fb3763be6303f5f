package audit

import "log/slog"

// Option configures an Extension.
type Option func(*Extension)

// WithActions narrows the audit trail to the listed actions; everything
// else is skipped. Without this option every action is recorded. A
// deployment that only cares about operator interventions would use:
//
//	audit.New(recorder,
//	    audit.WithActions(audit.ActionJobStopped, audit.ActionJobFailed),
//	)
func WithActions(actions ...string) Option {
	return func(e *Extension) {
		e.enabled = make(map[string]bool, len(actions))
		for _, a := range actions {
			e.enabled[a] = true
		}
	}
}

// WithLogger sets a custom logger for the extension.
func WithLogger(l *slog.Logger) Option {
	return func(e *Extension) { e.logger = l }
}
