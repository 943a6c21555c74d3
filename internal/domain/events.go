package domain

import "time"

// Event types
const (
	EventTypeProcessSucceeded = "process.succeeded"
	EventTypeProcessWaiting   = "process.waiting"
	EventTypeProcessFailed    = "process.failed"
)

// Aggregate types
const (
	AggregateTypeProcess = "process"
)

// OutboxEvent represents an event to be published
type OutboxEvent struct {
	ID            string
	AggregateID   string
	AggregateType string
	EventType     string
	Payload       map[string]any
	CreatedAt     time.Time
	PublishedAt   *time.Time
	Published     bool
}

// ProcessSucceededEvent payload
type ProcessSucceededEvent struct {
	ProcessID string        `json:"process_id"`
	Stage     ImportStage   `json:"stage"`
	Output    *ApplyResults `json:"output,omitempty"`
}

// ProcessWaitingEvent payload
type ProcessWaitingEvent struct {
	ProcessID  string      `json:"process_id"`
	Stage      ImportStage `json:"stage,omitempty"`
	Directions *Directions `json:"directions,omitempty"`
}

// ProcessFailedEvent payload
type ProcessFailedEvent struct {
	ProcessID string      `json:"process_id"`
	Stage     ImportStage `json:"stage,omitempty"`
	Error     string      `json:"error,omitempty"`
}
