package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/mailscout/bulkq/job"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testJob(owner string) *job.Job {
	return job.New(owner, job.KindVerify, []json.RawMessage{
		json.RawMessage(`{"email":"a@example.com"}`),
	})
}

func TestBrokerHookPublish(t *testing.T) {
	t.Parallel()

	b := NewBroker(testLogger())
	sub := b.Subscribe("sub-1", TopicJobs)

	j := testJob("acct-1")
	if err := b.OnJobSubmitted(context.Background(), j); err != nil {
		t.Fatalf("OnJobSubmitted: %v", err)
	}

	select {
	case received := <-sub.C():
		if received.Type != EventJobSubmitted {
			t.Errorf("Type = %q, want %q", received.Type, EventJobSubmitted)
		}
		var data JobEventData
		if err := json.Unmarshal(received.Data, &data); err != nil {
			t.Fatalf("unmarshal data: %v", err)
		}
		if data.JobID != j.ID.String() {
			t.Errorf("JobID = %q, want %q", data.JobID, j.ID.String())
		}
		if data.Owner != "acct-1" {
			t.Errorf("Owner = %q, want acct-1", data.Owner)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBrokerOwnerTopicScoping(t *testing.T) {
	t.Parallel()

	b := NewBroker(testLogger())

	// One dashboard session per account.
	acct1 := b.Subscribe("dash-1", OwnerTopic("acct-1"))
	acct2 := b.Subscribe("dash-2", OwnerTopic("acct-2"))

	j := testJob("acct-1")
	if err := b.OnJobDispatched(context.Background(), j); err != nil {
		t.Fatalf("OnJobDispatched: %v", err)
	}

	select {
	case received := <-acct1.C():
		if received.Type != EventJobDispatched {
			t.Errorf("Type = %q, want %q", received.Type, EventJobDispatched)
		}
	case <-time.After(time.Second):
		t.Fatal("owner subscriber timed out")
	}

	select {
	case <-acct2.C():
		t.Fatal("should not receive another account's events")
	case <-time.After(50 * time.Millisecond):
		// ok, no event
	}
}

func TestBrokerJobTopic(t *testing.T) {
	t.Parallel()

	b := NewBroker(testLogger())

	j := testJob("acct-1")
	other := testJob("acct-1")

	sub := b.Subscribe("job-sub", JobTopic(j.ID.String()))

	if err := b.OnJobProgress(context.Background(), j); err != nil {
		t.Fatalf("OnJobProgress: %v", err)
	}
	if err := b.OnJobProgress(context.Background(), other); err != nil {
		t.Fatalf("OnJobProgress: %v", err)
	}

	select {
	case received := <-sub.C():
		if received.Topic != JobTopic(j.ID.String()) {
			t.Errorf("Topic = %q, want %q", received.Topic, JobTopic(j.ID.String()))
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for job event")
	}

	select {
	case <-sub.C():
		t.Fatal("should not receive event for different job")
	case <-time.After(50 * time.Millisecond):
		// ok, no event
	}
}

func TestBrokerTerminalEventType(t *testing.T) {
	t.Parallel()

	b := NewBroker(testLogger())
	sub := b.Subscribe("term-sub", TopicFirehose)

	completed := testJob("acct-1")
	completed.Status = job.StatusCompleted
	failed := testJob("acct-1")
	failed.Status = job.StatusFailed
	failed.ErrorMessage = "worker crashed"

	if err := b.OnJobTerminal(context.Background(), completed); err != nil {
		t.Fatalf("OnJobTerminal: %v", err)
	}
	if err := b.OnJobTerminal(context.Background(), failed); err != nil {
		t.Fatalf("OnJobTerminal: %v", err)
	}

	want := []EventType{EventJobCompleted, EventJobFailed}
	for _, typ := range want {
		select {
		case received := <-sub.C():
			if received.Type != typ {
				t.Errorf("Type = %q, want %q", received.Type, typ)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %s", typ)
		}
	}
}

func TestBrokerRecoveredCarriesAttempt(t *testing.T) {
	t.Parallel()

	b := NewBroker(testLogger())
	sub := b.Subscribe("rec-sub", TopicJobs)

	j := testJob("acct-1")
	j.Status = job.StatusProcessing
	if err := b.OnJobRecovered(context.Background(), j, 2); err != nil {
		t.Fatalf("OnJobRecovered: %v", err)
	}

	select {
	case received := <-sub.C():
		var data JobEventData
		if err := json.Unmarshal(received.Data, &data); err != nil {
			t.Fatalf("unmarshal data: %v", err)
		}
		if data.Attempt != 2 {
			t.Errorf("Attempt = %d, want 2", data.Attempt)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for recovered event")
	}
}

func TestBrokerRemoveSubscriber(t *testing.T) {
	t.Parallel()

	b := NewBroker(testLogger())
	sub := b.Subscribe("sub-rm", TopicFirehose)

	b.RemoveSubscriber("sub-rm")

	if err := b.OnJobSubmitted(context.Background(), testJob("acct-1")); err != nil {
		t.Fatalf("OnJobSubmitted: %v", err)
	}

	// Channel should be closed.
	select {
	case _, ok := <-sub.C():
		if ok {
			t.Fatal("channel should be closed after RemoveSubscriber")
		}
	case <-time.After(100 * time.Millisecond):
		// ok
	}
}

func TestBrokerShutdownClosesSubscribers(t *testing.T) {
	t.Parallel()

	b := NewBroker(testLogger())
	s1 := b.Subscribe("s1", TopicJobs)
	s2 := b.Subscribe("s2", TopicFirehose)

	if err := b.OnShutdown(context.Background()); err != nil {
		t.Fatalf("OnShutdown: %v", err)
	}

	for _, sub := range []*Subscriber{s1, s2} {
		if _, ok := <-sub.C(); ok {
			t.Fatalf("subscriber %s channel should be closed", sub.ID())
		}
	}
}

func TestBrokerStats(t *testing.T) {
	t.Parallel()

	b := NewBroker(testLogger())

	_ = b.Subscribe("s1", TopicJobs)
	_ = b.Subscribe("s2", OwnerTopic("acct-1"), TopicFirehose)

	stats := b.Stats()
	if stats.SubscriberCount != 2 {
		t.Errorf("SubscriberCount = %d, want 2", stats.SubscriberCount)
	}
	if stats.TopicCount < 2 {
		t.Errorf("TopicCount = %d, want >= 2", stats.TopicCount)
	}
}

func TestSubscriberCredits(t *testing.T) {
	t.Parallel()

	sub := NewSubscriber("credit-sub", 10, 2)

	evt := &Event{Type: EventJobSubmitted, Timestamp: time.Now().UTC(), Data: json.RawMessage(`{}`)}

	// Should accept 2 events (initial credits).
	if !sub.send(evt) {
		t.Fatal("first send should succeed")
	}
	if !sub.send(evt) {
		t.Fatal("second send should succeed")
	}

	// Third should fail, no credits left.
	if sub.send(evt) {
		t.Fatal("third send should fail (no credits)")
	}
	if sub.Dropped() != 1 {
		t.Errorf("Dropped = %d, want 1", sub.Dropped())
	}

	sub.AddCredits(5)
	if sub.Credits() != 5 {
		t.Errorf("Credits = %d, want 5", sub.Credits())
	}

	if !sub.send(evt) {
		t.Fatal("send after credit replenishment should succeed")
	}
}

func TestSubscriberFilter(t *testing.T) {
	t.Parallel()

	sub := NewSubscriber("filter-sub", 10, 100)
	sub.SetFilter(func(e *Event) bool {
		return e.Type == EventJobFailed
	})

	if sub.send(&Event{Type: EventJobCompleted, Timestamp: time.Now().UTC(), Data: json.RawMessage(`{}`)}) {
		t.Fatal("completed event should be filtered out")
	}

	if !sub.send(&Event{Type: EventJobFailed, Timestamp: time.Now().UTC(), Data: json.RawMessage(`{}`)}) {
		t.Fatal("failed event should pass filter")
	}
}

func TestSubscriberCloseDuringSend(t *testing.T) {
	t.Parallel()

	evt := &Event{Type: EventJobProgress, Timestamp: time.Now().UTC(), Data: json.RawMessage(`{}`)}

	for i := 0; i < 100; i++ {
		sub := NewSubscriber("race-sub", 1, 1000)

		var wg sync.WaitGroup
		for g := 0; g < 4; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for n := 0; n < 20; n++ {
					sub.send(evt)
				}
			}()
		}
		sub.Close()
		wg.Wait()

		if sub.send(evt) {
			t.Fatal("send after Close should report not delivered")
		}
	}
}

func TestTopicValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		topic string
		valid bool
	}{
		{TopicJobs, true},
		{TopicFirehose, true},
		{"job:job-123", true},
		{"owner:acct-1", true},
		{"invalid", false},
		{"unknown:entity", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			err := ValidateTopic(tt.topic)
			if tt.valid && err != nil {
				t.Errorf("ValidateTopic(%q) returned error: %v", tt.topic, err)
			}
			if !tt.valid && err == nil {
				t.Errorf("ValidateTopic(%q) should return error", tt.topic)
			}
		})
	}
}

func TestTopicRegistry(t *testing.T) {
	t.Parallel()

	tr := NewTopicRegistry()

	sub1 := NewSubscriber("s1", 10, 100)
	sub2 := NewSubscriber("s2", 10, 100)

	tr.Subscribe("topic-a", sub1)
	tr.Subscribe("topic-a", sub2)
	tr.Subscribe("topic-b", sub1)

	if tr.TopicCount() != 2 {
		t.Errorf("TopicCount = %d, want 2", tr.TopicCount())
	}
	if tr.SubscriberCount("topic-a") != 2 {
		t.Errorf("SubscriberCount(topic-a) = %d, want 2", tr.SubscriberCount("topic-a"))
	}

	tr.Unsubscribe("topic-a", "s2")
	if tr.SubscriberCount("topic-a") != 1 {
		t.Errorf("SubscriberCount(topic-a) = %d, want 1", tr.SubscriberCount("topic-a"))
	}

	tr.UnsubscribeAll("s1")
	if tr.TopicCount() != 0 {
		t.Errorf("TopicCount after UnsubscribeAll = %d, want 0", tr.TopicCount())
	}
}

func TestBroadcastDeduplication(t *testing.T) {
	t.Parallel()

	tr := NewTopicRegistry()
	sub := NewSubscriber("dedup-sub", 10, 100)

	tr.Subscribe("topic-x", sub)
	tr.Subscribe("topic-y", sub)

	evt := &Event{Type: EventJobSubmitted, Timestamp: time.Now().UTC(), Data: json.RawMessage(`{}`)}

	delivered := tr.Broadcast([]string{"topic-x", "topic-y"}, evt)
	if delivered != 1 {
		t.Errorf("Broadcast delivered to %d subscribers, want 1 (deduplicated)", delivered)
	}
}

func TestResolveTopics(t *testing.T) {
	t.Parallel()

	evt := &Event{Type: EventJobProgress, Topic: "job:j1"}
	topics := resolveTopics(evt, "acct-1")

	want := []string{TopicFirehose, TopicJobs, "owner:acct-1", "job:j1"}
	if len(topics) != len(want) {
		t.Fatalf("got %d topics, want %d: %v", len(topics), len(want), topics)
	}
	for i, topic := range topics {
		if topic != want[i] {
			t.Errorf("topic[%d] = %q, want %q", i, topic, want[i])
		}
	}
}
