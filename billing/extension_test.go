package billing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/mailscout/bulkq/id"
	"github.com/mailscout/bulkq/job"
)

type captureSender struct {
	mu     sync.Mutex
	events []*UsageEvent
}

func (c *captureSender) Send(_ context.Context, evt *UsageEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return nil
}

func finishedJob(status job.Status) *job.Job {
	j := job.New("acct-1", job.KindVerify, []json.RawMessage{
		json.RawMessage(`{"email":"a@example.com"}`),
		json.RawMessage(`{"email":"b@example.com"}`),
	})
	j.Status = status
	j.ProcessedRequests = 2
	j.Succeeded = 1
	j.Failed = 1
	return j
}

func TestUsageEventFields(t *testing.T) {
	t.Parallel()

	sender := &captureSender{}
	ext := New(sender)

	j := finishedJob(job.StatusCompleted)
	if err := ext.OnJobTerminal(context.Background(), j); err != nil {
		t.Fatalf("OnJobTerminal: %v", err)
	}

	if len(sender.events) != 1 {
		t.Fatalf("sent %d events, want 1", len(sender.events))
	}
	evt := sender.events[0]
	if evt.EventID.Prefix() != id.PrefixEvent {
		t.Errorf("EventID prefix = %q, want evt", evt.EventID.Prefix())
	}
	if evt.JobID != j.ID.String() || evt.Owner != "acct-1" {
		t.Errorf("identity fields wrong: %+v", evt)
	}
	if evt.ProcessedRequests != 2 || evt.Succeeded != 1 || evt.Failed != 1 {
		t.Errorf("counters wrong: %+v", evt)
	}
}

func TestFailedJobsBillProcessedPortion(t *testing.T) {
	t.Parallel()

	sender := &captureSender{}
	ext := New(sender)

	if err := ext.OnJobTerminal(context.Background(), finishedJob(job.StatusFailed)); err != nil {
		t.Fatalf("OnJobTerminal: %v", err)
	}
	if len(sender.events) != 1 {
		t.Fatalf("sent %d events, want 1", len(sender.events))
	}
	if sender.events[0].ProcessedRequests != 2 {
		t.Errorf("ProcessedRequests = %d, want 2", sender.events[0].ProcessedRequests)
	}
}

func TestWithoutFailedJobs(t *testing.T) {
	t.Parallel()

	sender := &captureSender{}
	ext := New(sender, WithoutFailedJobs())

	if err := ext.OnJobTerminal(context.Background(), finishedJob(job.StatusFailed)); err != nil {
		t.Fatalf("OnJobTerminal: %v", err)
	}
	if len(sender.events) != 0 {
		t.Fatalf("failed job billed despite WithoutFailedJobs")
	}

	if err := ext.OnJobTerminal(context.Background(), finishedJob(job.StatusCompleted)); err != nil {
		t.Fatalf("OnJobTerminal: %v", err)
	}
	if len(sender.events) != 1 {
		t.Fatalf("completed job not billed")
	}
}

func TestHTTPSender(t *testing.T) {
	t.Parallel()

	var gotAuth, gotIdem string
	var gotEvent UsageEvent
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotIdem = r.Header.Get("Idempotency-Key")
		if err := json.NewDecoder(r.Body).Decode(&gotEvent); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	ext := New(NewHTTPSender(srv.URL, "secret"))
	j := finishedJob(job.StatusCompleted)
	if err := ext.OnJobTerminal(context.Background(), j); err != nil {
		t.Fatalf("OnJobTerminal: %v", err)
	}

	if gotAuth != "Bearer secret" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotIdem != gotEvent.EventID.String() {
		t.Errorf("Idempotency-Key = %q, want event id %q", gotIdem, gotEvent.EventID)
	}
	if gotEvent.JobID != j.ID.String() {
		t.Errorf("JobID = %q, want %q", gotEvent.JobID, j.ID)
	}
}

func TestHTTPSenderRejectsServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ext := New(NewHTTPSender(srv.URL, ""))
	if err := ext.OnJobTerminal(context.Background(), finishedJob(job.StatusCompleted)); err == nil {
		t.Fatal("expected delivery error on 502")
	}
}
