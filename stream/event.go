// Package stream provides a real-time event broker for bulk job lifecycle
// events. It bridges the hook extension system to connected dashboard
// clients via topic-based pub/sub.
package stream

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of lifecycle event.
type EventType string

const (
	EventJobSubmitted  EventType = "job.submitted"
	EventJobDispatched EventType = "job.dispatched"
	EventJobProgress   EventType = "job.progress"
	EventJobStopped    EventType = "job.stopped"
	EventJobRecovered  EventType = "job.recovered"
	EventJobCompleted  EventType = "job.completed"
	EventJobFailed     EventType = "job.failed"
)

// Event is the envelope sent to subscribers on a topic channel.
type Event struct {
	// Type identifies the lifecycle event.
	Type EventType `json:"type"`

	// Timestamp is when the event was emitted.
	Timestamp time.Time `json:"ts"`

	// Topic is the job-specific channel this event was published on.
	Topic string `json:"topic"`

	// Data is the event-specific payload.
	Data json.RawMessage `json:"data"`
}

// JobEventData is the payload for job lifecycle events.
type JobEventData struct {
	JobID             string `json:"job_id"`
	Owner             string `json:"owner"`
	Kind              string `json:"kind"`
	Status            string `json:"status"`
	TotalRequests     int    `json:"total_requests"`
	ProcessedRequests int    `json:"processed_requests"`
	Succeeded         int    `json:"succeeded"`
	Failed            int    `json:"failed"`
	Error             string `json:"error,omitempty"`
	Attempt           int    `json:"attempt,omitempty"`
}
