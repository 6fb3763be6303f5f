package stream

import (
	"fmt"
	"strings"
	"sync"
)

// Topics partition the event stream by audience:
//
//	firehose        everything, for operational tooling
//	jobs            all job lifecycle events
//	owner:<owner>   one account's jobs, what a dashboard session watches
//	job:<jobID>     a single job
const (
	TopicJobs     = "jobs"
	TopicFirehose = "firehose"
)

// JobTopic returns the topic carrying events for a single job.
func JobTopic(jobID string) string { return "job:" + jobID }

// OwnerTopic returns the topic carrying every job event for an account.
func OwnerTopic(owner string) string { return "owner:" + owner }

// resolveTopics lists the topics one event fans out to. Every event hits
// the firehose and the global jobs feed; the owner and per-job topics are
// added when known.
func resolveTopics(evt *Event, owner string) []string {
	topics := []string{TopicFirehose, TopicJobs}
	if owner != "" {
		topics = append(topics, OwnerTopic(owner))
	}
	if evt.Topic != "" {
		topics = append(topics, evt.Topic)
	}
	return topics
}

// ParseTopicEntity splits an entity topic into its type and id, so
// "job:job_abc" yields ("job", "job_abc"). Global topics yield ("", "").
func ParseTopicEntity(topic string) (entityType, entityID string) {
	before, after, found := strings.Cut(topic, ":")
	if !found {
		return "", ""
	}
	return before, after
}

// ValidateTopic rejects topic strings a client may not subscribe to.
func ValidateTopic(topic string) error {
	if topic == TopicJobs || topic == TopicFirehose {
		return nil
	}
	entityType, entityID := ParseTopicEntity(topic)
	if entityID == "" {
		return fmt.Errorf("stream: invalid topic %q", topic)
	}
	if entityType != "job" && entityType != "owner" {
		return fmt.Errorf("stream: unknown topic entity type %q", entityType)
	}
	return nil
}

// TopicRegistry tracks which subscribers are attached to which topics.
// Safe for concurrent use.
type TopicRegistry struct {
	mu   sync.RWMutex
	subs map[string]map[string]*Subscriber
}

// NewTopicRegistry creates an empty registry.
func NewTopicRegistry() *TopicRegistry {
	return &TopicRegistry{subs: make(map[string]map[string]*Subscriber)}
}

// Subscribe attaches sub to topic, creating the topic on first use.
func (tr *TopicRegistry) Subscribe(topic string, sub *Subscriber) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if tr.subs[topic] == nil {
		tr.subs[topic] = make(map[string]*Subscriber)
	}
	tr.subs[topic][sub.ID()] = sub
	sub.track(topic)
}

// Unsubscribe detaches one subscriber from one topic.
func (tr *TopicRegistry) Unsubscribe(topic, subscriberID string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.detach(topic, subscriberID)
}

// UnsubscribeAll detaches a subscriber from every topic it is on.
func (tr *TopicRegistry) UnsubscribeAll(subscriberID string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	for topic := range tr.subs {
		tr.detach(topic, subscriberID)
	}
}

// detach removes the subscriber and drops the topic once empty.
// Callers hold tr.mu.
func (tr *TopicRegistry) detach(topic, subscriberID string) {
	members := tr.subs[topic]
	if sub, ok := members[subscriberID]; ok {
		sub.untrack(topic)
		delete(members, subscriberID)
	}
	if len(members) == 0 {
		delete(tr.subs, topic)
	}
}

// Publish delivers evt to every subscriber on one topic and reports how
// many accepted it.
func (tr *TopicRegistry) Publish(topic string, evt *Event) int {
	return tr.Broadcast([]string{topic}, evt)
}

// Broadcast delivers evt across several topics, sending at most once to a
// subscriber attached to more than one of them. Delivery happens outside
// the lock so a slow subscriber cannot stall subscription changes.
func (tr *TopicRegistry) Broadcast(topics []string, evt *Event) int {
	tr.mu.RLock()
	targets := make(map[string]*Subscriber)
	for _, topic := range topics {
		for subID, sub := range tr.subs[topic] {
			targets[subID] = sub
		}
	}
	tr.mu.RUnlock()

	delivered := 0
	for _, sub := range targets {
		if sub.send(evt) {
			delivered++
		}
	}
	return delivered
}

// TopicCount reports the number of live topics.
func (tr *TopicRegistry) TopicCount() int {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	return len(tr.subs)
}

// SubscriberCount reports how many subscribers a topic has.
func (tr *TopicRegistry) SubscriberCount(topic string) int {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	return len(tr.subs[topic])
}
