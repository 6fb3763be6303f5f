// Package audit is a hook extension that bridges job lifecycle events to
// an audit trail backend.
//
// Every discrete lifecycle action (submission, dispatch, stop, recovery
// re-signal, terminal outcome) emits a structured audit event through the
// [Recorder] interface. Progress reports are deliberately not audited;
// they arrive continuously and belong to metrics, not the audit trail.
//
// The extension assigns severity levels: info for normal operations,
// warning for user stops and recovery re-signals, critical for terminal
// failures.
//
// # Selective filtering
//
//	audit.New(recorder,
//	    audit.WithActions(
//	        audit.ActionJobStopped,
//	        audit.ActionJobFailed,
//	    ),
//	)
package audit
