package models

import "time"

// Lifecycle event types emitted for outbound jobs.
const (
	StatusEventQueued  = "queued"
	StatusEventAttempt = "attempt"
	StatusEventSent    = "sent"
	StatusEventFailed  = "failed"
	StatusEventDLQ     = "dlq"
)

// TransportResponse captures the normalized transport outcome attached to a
// lifecycle event.
type TransportResponse struct {
	Status    string `json:"status"`
	Code      *int   `json:"code,omitempty"`
	Title     string `json:"title,omitempty"`
	MessageID string `json:"message_id,omitempty"`
}

// StatusEvent represents a lifecycle update emitted for an outbound job.
type StatusEvent struct {
	MessageID string             `json:"message_id"`
	Phone     string             `json:"phone"`
	EventType string             `json:"event_type"`
	Attempt   int                `json:"attempt,omitempty"`
	Response  *TransportResponse `json:"response,omitempty"`
	Error     string             `json:"error,omitempty"`
	TraceID   string             `json:"trace_id,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}
