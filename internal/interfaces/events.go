package interfaces

import "github.com/ternarybob/aequitas/internal/models"

// JobEventType classifies job lifecycle notifications
type JobEventType string

const (
	JobEventCreated       JobEventType = "job_created"
	JobEventStatusChanged JobEventType = "job_status_changed"
	JobEventCompleted     JobEventType = "job_completed"
	JobEventFailed        JobEventType = "job_failed"
)

// JobEvent is pushed to websocket subscribers as a job progresses
type JobEvent struct {
	Type   JobEventType     `json:"type"`
	JobID  string           `json:"job_id"`
	Ticker string           `json:"ticker"`
	Status models.JobStatus `json:"status"`
	Stage  models.StageKind `json:"stage,omitempty"`
}

// EventPublisher fans job events out to connected clients.
// Publishing must never block pipeline progress.
type EventPublisher interface {
	Publish(event JobEvent)
	Close() error
}
