// Package job defines the bulk job model, its state machine, the monotonic
// progress-merge rules, and the persistence contract every store backend
// implements. All lifecycle mutations elsewhere in bulkq go through the
// Transition and Merge functions defined here; no component writes Status
// or the counters directly.
package job

import (
	"encoding/json"
	"time"

	"github.com/mailscout/bulkq/id"
)

// Kind selects which worker endpoint a job is dispatched to. It never
// affects orchestration logic.
type Kind string

const (
	// KindFind is a bulk find-email job.
	KindFind Kind = "find"
	// KindVerify is a bulk verify-email job.
	KindVerify Kind = "verify"
)

// Valid reports whether k is a known job kind.
func (k Kind) Valid() bool {
	return k == KindFind || k == KindVerify
}

// Status represents the lifecycle state of a bulk job.
type Status string

const (
	// StatusPending means the job is created but not yet handed to the worker.
	StatusPending Status = "pending"
	// StatusProcessing means the external worker is running the batch.
	StatusProcessing Status = "processing"
	// StatusCompleted means the worker finished the whole batch.
	StatusCompleted Status = "completed"
	// StatusFailed means the job ended without completing: worker failure,
	// user stop, or exhausted recovery budget.
	StatusFailed Status = "failed"
	// StatusPaused means the caller parked a not-yet-started job.
	StatusPaused Status = "paused"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusPaused:
		return true
	}
	return false
}

// Terminal reports whether s is a terminal status. A terminal job's
// UpdatedAt no longer advances and its status never reverts.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Record is one unit of the job's batch: the submitted input and, once the
// worker has processed it, the lookup result. Records are ordered as
// submitted and never reordered; results are merged in, never overwritten.
type Record struct {
	Input  json.RawMessage `json:"input"`
	Result json.RawMessage `json:"result,omitempty"`
}

// Job is one bulk find/verify operation.
//
// The three counters are monotonically non-decreasing and only ever move
// through Merge. Version is the optimistic concurrency token: every store
// write is conditioned on it and increments it.
type Job struct {
	ID    id.JobID `json:"id"`
	Owner string   `json:"owner"`
	Kind  Kind     `json:"kind"`

	Status Status `json:"status"`

	// IdempotencyKey dedupes client retries of submit. Unique per owner.
	IdempotencyKey string `json:"idempotency_key,omitempty"`

	TotalRequests     int `json:"total_requests"`
	ProcessedRequests int `json:"processed_requests"`
	Succeeded         int `json:"succeeded"`
	Failed            int `json:"failed"`

	Records []Record `json:"records,omitempty"`

	// ErrorMessage is set only on the transition into failed and cleared on
	// any transition out of it.
	ErrorMessage string `json:"error_message,omitempty"`

	// RetryCount is how many times recovery has re-signaled this job.
	RetryCount int `json:"retry_count"`

	Version int64 `json:"version"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	StoppedAt   *time.Time `json:"stopped_at,omitempty"`
}

// New creates a pending job owned by owner with the given batch inputs.
// TotalRequests is fixed here and never mutated afterward.
func New(owner string, kind Kind, inputs []json.RawMessage) *Job {
	now := time.Now().UTC()
	records := make([]Record, len(inputs))
	for i, in := range inputs {
		records[i] = Record{Input: in}
	}
	return &Job{
		ID:            id.NewJobID(),
		Owner:         owner,
		Kind:          kind,
		Status:        StatusPending,
		TotalRequests: len(inputs),
		Records:       records,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Clone returns a deep copy of j. Store backends return clones so callers
// can mutate without racing on shared rows.
func (j *Job) Clone() *Job {
	cp := *j
	if j.Records != nil {
		cp.Records = make([]Record, len(j.Records))
		copy(cp.Records, j.Records)
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		cp.CompletedAt = &t
	}
	if j.StoppedAt != nil {
		t := *j.StoppedAt
		cp.StoppedAt = &t
	}
	return &cp
}
