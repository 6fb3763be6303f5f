package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mailscout/bulkq/hook"
	"github.com/mailscout/bulkq/job"
)

// Compile-time interface checks.
var (
	_ hook.Extension     = (*Broker)(nil)
	_ hook.JobSubmitted  = (*Broker)(nil)
	_ hook.JobDispatched = (*Broker)(nil)
	_ hook.JobProgress   = (*Broker)(nil)
	_ hook.JobStopped    = (*Broker)(nil)
	_ hook.JobRecovered  = (*Broker)(nil)
	_ hook.JobTerminal   = (*Broker)(nil)
	_ hook.Shutdown      = (*Broker)(nil)
)

// DefaultBufferSize is the default per-subscriber event buffer.
const DefaultBufferSize = 256

// DefaultCredits is the default initial credits for new subscribers.
const DefaultCredits int64 = 1000

// Broker fans job lifecycle events out to live subscribers. It registers
// as a hook extension, so the queue and sweeper publish without knowing
// the stream exists. Dashboard WebSocket sessions sit behind subscribers.
type Broker struct {
	topics *TopicRegistry
	logger *slog.Logger

	mu   sync.RWMutex
	subs map[string]*Subscriber

	totalPublished atomic.Int64

	bufferSize     int
	defaultCredits int64
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithBufferSize sets the per-subscriber event buffer size.
func WithBufferSize(size int) BrokerOption {
	return func(b *Broker) { b.bufferSize = size }
}

// WithDefaultCredits sets the initial credits for new subscribers.
func WithDefaultCredits(credits int64) BrokerOption {
	return func(b *Broker) { b.defaultCredits = credits }
}

// NewBroker creates a stream broker.
func NewBroker(logger *slog.Logger, opts ...BrokerOption) *Broker {
	b := &Broker{
		topics:         NewTopicRegistry(),
		logger:         logger,
		subs:           make(map[string]*Subscriber),
		bufferSize:     DefaultBufferSize,
		defaultCredits: DefaultCredits,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name implements hook.Extension.
func (b *Broker) Name() string { return "stream-broker" }

// Topics returns the topic registry for external use (e.g., the WS server).
func (b *Broker) Topics() *TopicRegistry { return b.topics }

// Subscribe registers a new subscriber on the given topics. Registering
// an id that already exists replaces the old subscriber without closing
// it; callers own that lifecycle.
func (b *Broker) Subscribe(subscriberID string, topics ...string) *Subscriber {
	sub := NewSubscriber(subscriberID, b.bufferSize, b.defaultCredits)
	b.mu.Lock()
	b.subs[subscriberID] = sub
	b.mu.Unlock()
	for _, topic := range topics {
		b.topics.Subscribe(topic, sub)
	}
	return sub
}

// SubscribeTo attaches an existing subscriber to additional topics.
func (b *Broker) SubscribeTo(subscriberID string, topics ...string) {
	sub, ok := b.GetSubscriber(subscriberID)
	if !ok {
		return
	}
	for _, topic := range topics {
		b.topics.Subscribe(topic, sub)
	}
}

// Unsubscribe detaches a subscriber from specific topics.
func (b *Broker) Unsubscribe(subscriberID string, topics ...string) {
	for _, topic := range topics {
		b.topics.Unsubscribe(topic, subscriberID)
	}
}

// RemoveSubscriber detaches a subscriber from every topic and closes it.
func (b *Broker) RemoveSubscriber(subscriberID string) {
	b.topics.UnsubscribeAll(subscriberID)
	b.mu.Lock()
	sub := b.subs[subscriberID]
	delete(b.subs, subscriberID)
	b.mu.Unlock()
	if sub != nil {
		sub.Close()
	}
}

// GetSubscriber looks up a subscriber by id.
func (b *Broker) GetSubscriber(subscriberID string) (*Subscriber, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	sub, ok := b.subs[subscriberID]
	return sub, ok
}

// BrokerStats is a point-in-time snapshot of broker activity.
type BrokerStats struct {
	TopicCount      int   `json:"topic_count"`
	SubscriberCount int   `json:"subscriber_count"`
	TotalPublished  int64 `json:"total_published"`
}

// Stats reports current broker counters.
func (b *Broker) Stats() BrokerStats {
	b.mu.RLock()
	count := len(b.subs)
	b.mu.RUnlock()
	return BrokerStats{
		TopicCount:      b.topics.TopicCount(),
		SubscriberCount: count,
		TotalPublished:  b.totalPublished.Load(),
	}
}

// publishJob builds the event for a job and broadcasts it to the firehose,
// the global jobs feed, the owner's feed, and the job's own topic.
func (b *Broker) publishJob(typ EventType, j *job.Job, attempt int) {
	evt := &Event{
		Type:      typ,
		Timestamp: time.Now().UTC(),
		Topic:     JobTopic(j.ID.String()),
		Data: mustMarshal(JobEventData{
			JobID:             j.ID.String(),
			Owner:             j.Owner,
			Kind:              string(j.Kind),
			Status:            string(j.Status),
			TotalRequests:     j.TotalRequests,
			ProcessedRequests: j.ProcessedRequests,
			Succeeded:         j.Succeeded,
			Failed:            j.Failed,
			Error:             j.ErrorMessage,
			Attempt:           attempt,
		}),
	}
	delivered := b.topics.Broadcast(resolveTopics(evt, j.Owner), evt)
	b.totalPublished.Add(int64(delivered))
}

// mustMarshal panics on a marshal failure; JobEventData is plain data and
// cannot fail to encode.
func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic("stream: marshal event data: " + err.Error())
	}
	return data
}

func (b *Broker) OnJobSubmitted(_ context.Context, j *job.Job) error {
	b.publishJob(EventJobSubmitted, j, 0)
	return nil
}

func (b *Broker) OnJobDispatched(_ context.Context, j *job.Job) error {
	b.publishJob(EventJobDispatched, j, 0)
	return nil
}

func (b *Broker) OnJobProgress(_ context.Context, j *job.Job) error {
	b.publishJob(EventJobProgress, j, 0)
	return nil
}

func (b *Broker) OnJobStopped(_ context.Context, j *job.Job) error {
	b.publishJob(EventJobStopped, j, 0)
	return nil
}

func (b *Broker) OnJobRecovered(_ context.Context, j *job.Job, attempt int) error {
	b.publishJob(EventJobRecovered, j, attempt)
	return nil
}

// OnJobTerminal publishes the final completed or failed event for a job.
func (b *Broker) OnJobTerminal(_ context.Context, j *job.Job) error {
	typ := EventJobCompleted
	if j.Status == job.StatusFailed {
		typ = EventJobFailed
	}
	b.publishJob(typ, j, 0)
	return nil
}

// OnShutdown closes every live subscriber so WS writer loops drain out.
func (b *Broker) OnShutdown(_ context.Context) error {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[string]*Subscriber)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
	b.logger.Info("stream broker shut down")
	return nil
}
