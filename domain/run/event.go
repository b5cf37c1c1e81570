package run

import (
	"time"

	"kickchoice/domain/core"
)

// EventType names a run lifecycle event
type EventType string

const (
	EventStarted   EventType = "run.started"
	EventCompleted EventType = "run.completed"
	EventFailed    EventType = "run.failed"
)

// Event is published as a run moves through its lifecycle
type Event struct {
	RunID     core.RunID `json:"run_id"`
	Type      EventType  `json:"type"`
	ModelName string     `json:"model_name"`
	Message   string     `json:"message,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}
