package audit

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/mailscout/bulkq/job"
)

// captureRecorder collects recorded events.
type captureRecorder struct {
	mu     sync.Mutex
	events []*Event
}

func (c *captureRecorder) Record(_ context.Context, evt *Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return nil
}

func (c *captureRecorder) actions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.events))
	for i, e := range c.events {
		out[i] = e.Action
	}
	return out
}

func testJob() *job.Job {
	return job.New("acct-1", job.KindFind, []json.RawMessage{
		json.RawMessage(`{"domain":"example.com"}`),
	})
}

func TestLifecycleActions(t *testing.T) {
	t.Parallel()

	rec := &captureRecorder{}
	ext := New(rec)
	ctx := context.Background()
	j := testJob()

	if err := ext.OnJobSubmitted(ctx, j); err != nil {
		t.Fatalf("OnJobSubmitted: %v", err)
	}
	if err := ext.OnJobDispatched(ctx, j); err != nil {
		t.Fatalf("OnJobDispatched: %v", err)
	}
	if err := ext.OnJobRecovered(ctx, j, 1); err != nil {
		t.Fatalf("OnJobRecovered: %v", err)
	}

	j.Status = job.StatusCompleted
	if err := ext.OnJobTerminal(ctx, j); err != nil {
		t.Fatalf("OnJobTerminal: %v", err)
	}

	want := []string{ActionJobSubmitted, ActionJobDispatch, ActionJobRecovered, ActionJobCompleted}
	got := rec.actions()
	if len(got) != len(want) {
		t.Fatalf("recorded %d events, want %d: %v", len(got), len(want), got)
	}
	for i, a := range want {
		if got[i] != a {
			t.Errorf("action[%d] = %q, want %q", i, got[i], a)
		}
	}
}

func TestTerminalSeverity(t *testing.T) {
	t.Parallel()

	rec := &captureRecorder{}
	ext := New(rec)
	ctx := context.Background()

	completed := testJob()
	completed.Status = job.StatusCompleted
	if err := ext.OnJobTerminal(ctx, completed); err != nil {
		t.Fatalf("OnJobTerminal: %v", err)
	}

	failed := testJob()
	failed.Status = job.StatusFailed
	failed.ErrorMessage = "exceeded retry budget"
	if err := ext.OnJobTerminal(ctx, failed); err != nil {
		t.Fatalf("OnJobTerminal: %v", err)
	}

	if rec.events[0].Severity != SeverityInfo {
		t.Errorf("completed severity = %q, want info", rec.events[0].Severity)
	}
	if rec.events[1].Severity != SeverityCritical {
		t.Errorf("failed severity = %q, want critical", rec.events[1].Severity)
	}
	if rec.events[1].Reason != "exceeded retry budget" {
		t.Errorf("failed reason = %q", rec.events[1].Reason)
	}
}

func TestActionFiltering(t *testing.T) {
	t.Parallel()

	rec := &captureRecorder{}
	ext := New(rec, WithActions(ActionJobStopped))
	ctx := context.Background()
	j := testJob()

	if err := ext.OnJobSubmitted(ctx, j); err != nil {
		t.Fatalf("OnJobSubmitted: %v", err)
	}
	j.Status = job.StatusFailed
	j.ErrorMessage = "stopped by user"
	if err := ext.OnJobStopped(ctx, j); err != nil {
		t.Fatalf("OnJobStopped: %v", err)
	}

	got := rec.actions()
	if len(got) != 1 || got[0] != ActionJobStopped {
		t.Fatalf("recorded = %v, want exactly [%s]", got, ActionJobStopped)
	}
}

func TestRecorderErrorsDoNotPropagate(t *testing.T) {
	t.Parallel()

	failing := RecorderFunc(func(_ context.Context, _ *Event) error {
		return errors.New("audit backend down")
	})
	ext := New(failing)

	if err := ext.OnJobSubmitted(context.Background(), testJob()); err != nil {
		t.Fatalf("recorder failure leaked: %v", err)
	}
}

func TestEventCarriesOwnerAndMetadata(t *testing.T) {
	t.Parallel()

	rec := &captureRecorder{}
	ext := New(rec)
	j := testJob()

	if err := ext.OnJobSubmitted(context.Background(), j); err != nil {
		t.Fatalf("OnJobSubmitted: %v", err)
	}

	evt := rec.events[0]
	if evt.Owner != "acct-1" {
		t.Errorf("Owner = %q, want acct-1", evt.Owner)
	}
	if evt.ResourceID != j.ID.String() {
		t.Errorf("ResourceID = %q, want %q", evt.ResourceID, j.ID.String())
	}
	if evt.Metadata["total_requests"] != 1 {
		t.Errorf("total_requests = %v, want 1", evt.Metadata["total_requests"])
	}
}
