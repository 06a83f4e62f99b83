package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/aequitas/internal/models"
)

// ErrKeyNotFound is returned when a key is not found in the key/value store
var ErrKeyNotFound = errors.New("key not found")

// JobMutation edits a job in place within a conditional update. Returning an
// error aborts the update without a version bump.
type JobMutation func(job *models.AnalysisJob) error

// JobStorage defines durable persistence for analysis jobs
type JobStorage interface {
	// CreateJob persists a new job record
	CreateJob(ctx context.Context, job *models.AnalysisJob) error

	// GetJob retrieves a job by ID, returns models.ErrJobNotFound if absent
	GetJob(ctx context.Context, jobID string) (*models.AnalysisJob, error)

	// ListRecent returns up to limit jobs ordered by created_at descending
	ListRecent(ctx context.Context, limit int) ([]*models.AnalysisJob, error)

	// ListNonTerminalBefore returns non-terminal jobs created before cutoff,
	// used by the stale-job sweeper
	ListNonTerminalBefore(ctx context.Context, cutoff time.Time) ([]*models.AnalysisJob, error)

	// CountJobs returns the total number of stored jobs
	CountJobs(ctx context.Context) (int, error)

	// UpdateJob applies mutate to the job inside one transaction, but only if
	// the stored version still equals expectedVersion. On success the version
	// is incremented and the updated record returned. Returns
	// models.ErrVersionConflict when another writer got there first.
	UpdateJob(ctx context.Context, jobID string, expectedVersion uint64, mutate JobMutation) (*models.AnalysisJob, error)
}

// KeyValuePair represents a single key/value pair with metadata
type KeyValuePair struct {
	Key         string    `json:"key"`
	Value       string    `json:"value"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// KeyValueStorage defines operations for generic key/value storage.
// Used for API keys and small operational settings.
type KeyValueStorage interface {
	// Get retrieves a value by key, returns ErrKeyNotFound if absent
	Get(ctx context.Context, key string) (string, error)

	// Set inserts or updates a key/value pair with optional description
	Set(ctx context.Context, key string, value string, description string) error

	// Delete removes a key/value pair, returns ErrKeyNotFound if absent
	Delete(ctx context.Context, key string) error

	// List returns all key/value pairs ordered by updated_at DESC
	List(ctx context.Context) ([]KeyValuePair, error)
}
