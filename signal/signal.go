// Package signal defines how the orchestrator notifies the external lookup
// worker that a job is ready. The notification channel is fire-and-forget
// with at-least-once delivery: signaling a job the worker already took must
// be harmless, and a lost signal is recovered by the stuck-job sweep rather
// than by the sender.
package signal

import (
	"context"
	"time"

	"github.com/mailscout/bulkq/id"
	"github.com/mailscout/bulkq/job"
)

// Envelope is the dispatch notification payload. It references the job by
// id; the worker fetches the batch itself, so the envelope stays small
// enough for any transport.
type Envelope struct {
	// JobID identifies the job the worker should pick up. It encodes as
	// its "job_..." string form in both codecs.
	JobID id.JobID `json:"job_id" msgpack:"job_id"`

	// Kind routes the signal to the find or verify worker endpoint.
	Kind job.Kind `json:"kind" msgpack:"kind"`

	// Attempt is the job's retry count at signal time. Zero for the
	// initial dispatch, incremented by recovery re-dispatches.
	Attempt int `json:"attempt" msgpack:"attempt"`

	// SignaledAt records when this envelope was produced.
	SignaledAt time.Time `json:"signaled_at" msgpack:"signaled_at"`
}

// Signaler delivers dispatch notifications to the worker. Implementations
// must tolerate duplicate envelopes for the same job (recovery re-sends the
// same signal) and must not block on the worker actually processing the
// batch.
type Signaler interface {
	// Notify asks the worker to start (or resume) the referenced job.
	// A non-nil error means the signal did not leave this process; the
	// job's row is untouched either way.
	Notify(ctx context.Context, env *Envelope) error
}

// Func adapts a plain function to the Signaler interface. Handy in tests.
type Func func(ctx context.Context, env *Envelope) error

// Notify implements Signaler.
func (f Func) Notify(ctx context.Context, env *Envelope) error {
	return f(ctx, env)
}
