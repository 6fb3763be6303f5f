package stream

import (
	"sync"
	"sync/atomic"
)

// Subscriber is one consumer of the event stream, typically a dashboard
// WebSocket session. Delivery is best-effort and never blocks the
// publisher: an event is dropped when the subscriber is out of credits or
// its buffer is full. Consumers replenish credits as they drain, so a
// stalled session sheds events instead of backing up the broker.
type Subscriber struct {
	id      string
	ch      chan *Event
	credits atomic.Int64
	dropped atomic.Int64
	closed  atomic.Bool

	// filter, when set, must return true for an event to be delivered.
	// Set before the subscriber is attached to any topic; there is no
	// synchronization around it.
	filter func(*Event) bool

	mu     sync.Mutex
	topics map[string]struct{}

	// closeMu serializes channel sends against Close so an event can
	// never land on a closed channel.
	closeMu sync.RWMutex
}

// NewSubscriber creates a detached subscriber. The broker attaches it to
// topics via the registry.
func NewSubscriber(id string, bufferSize int, initialCredits int64) *Subscriber {
	s := &Subscriber{
		id:     id,
		ch:     make(chan *Event, bufferSize),
		topics: make(map[string]struct{}),
	}
	s.credits.Store(initialCredits)
	return s
}

// ID returns the subscriber identifier.
func (s *Subscriber) ID() string { return s.id }

// C is the channel events arrive on. It is closed by Close.
func (s *Subscriber) C() <-chan *Event { return s.ch }

// AddCredits grants the subscriber capacity for n more events.
func (s *Subscriber) AddCredits(n int64) { s.credits.Add(n) }

// Credits reports remaining delivery credits.
func (s *Subscriber) Credits() int64 { return s.credits.Load() }

// Dropped reports how many events were shed for lack of credits or buffer
// space.
func (s *Subscriber) Dropped() int64 { return s.dropped.Load() }

// SetFilter installs a delivery predicate.
func (s *Subscriber) SetFilter(fn func(*Event) bool) { s.filter = fn }

// Topics returns the topics this subscriber is currently attached to.
func (s *Subscriber) Topics() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.topics))
	for t := range s.topics {
		out = append(out, t)
	}
	return out
}

func (s *Subscriber) track(topic string) {
	s.mu.Lock()
	s.topics[topic] = struct{}{}
	s.mu.Unlock()
}

func (s *Subscriber) untrack(topic string) {
	s.mu.Lock()
	delete(s.topics, topic)
	s.mu.Unlock()
}

// send delivers evt if the subscriber is open, the filter passes, a credit
// is available, and the buffer has room. It reports whether the event was
// accepted; a filtered event does not count as dropped.
func (s *Subscriber) send(evt *Event) bool {
	if s.filter != nil && !s.filter(evt) {
		return false
	}

	s.closeMu.RLock()
	defer s.closeMu.RUnlock()

	if s.closed.Load() {
		return false
	}

	if s.credits.Add(-1) < 0 {
		s.credits.Add(1)
		s.dropped.Add(1)
		return false
	}

	select {
	case s.ch <- evt:
		return true
	default:
		s.credits.Add(1)
		s.dropped.Add(1)
		return false
	}
}

// Close shuts the event channel. Idempotent.
func (s *Subscriber) Close() {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed.CompareAndSwap(false, true) {
		close(s.ch)
	}
}
