package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/aequitas/internal/models"
)

// StageHandler processes one queued stage message
type StageHandler func(ctx context.Context, msg *models.StageMessage) error

// QueueManager manages the persistent stage message queue
type QueueManager interface {
	// Enqueue adds a stage message to the queue. The dedupID, when non-empty,
	// suppresses re-enqueueing an identical in-flight message.
	Enqueue(ctx context.Context, msg *models.StageMessage, dedupID string) error

	// Receive pulls the next visible message and returns it with a delete
	// function to call after successful processing. Returns
	// models.ErrNoMessage when the queue is empty.
	Receive(ctx context.Context) (*models.StageMessage, func() error, error)

	// Extend pushes out the visibility timeout for an in-flight message
	Extend(ctx context.Context, messageID string, duration time.Duration) error

	// Length returns the number of pending messages
	Length(ctx context.Context) (int, error)

	Close() error
}

// WorkerPool manages concurrent stage processing
type WorkerPool interface {
	RegisterHandler(stage models.StageKind, handler StageHandler)
	Start() error
	Stop() error
}
