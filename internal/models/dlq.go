package models

import "time"

// Failure types for DLQ records.
const (
	FailureTypePermanent = "permanent"
	FailureTypeTransient = "transient"
	FailureTypeUnknown   = "unknown"
)

// DLQRecord is the payload written for a job whose retry budget is spent.
type DLQRecord struct {
	MessageID     string      `json:"message_id"`
	Phone         string      `json:"phone"`
	OriginalJob   OutgoingJob `json:"original_job"`
	Attempts      int         `json:"attempts"`
	FailureType   string      `json:"failure_type"`
	LastError     string      `json:"last_error,omitempty"`
	FirstFailedAt time.Time   `json:"first_failed_at"`
	LastAttemptAt time.Time   `json:"last_attempt_at"`
	TraceID       string      `json:"trace_id,omitempty"`
}
