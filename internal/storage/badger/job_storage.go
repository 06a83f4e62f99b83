package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/aequitas/internal/interfaces"
	"github.com/ternarybob/aequitas/internal/models"
)

// JobStorage implements the JobStorage interface for Badger
type JobStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewJobStorage creates a new JobStorage instance
func NewJobStorage(db *BadgerDB, logger arbor.ILogger) interfaces.JobStorage {
	return &JobStorage{
		db:     db,
		logger: logger,
	}
}

// CreateJob persists a new job record
func (s *JobStorage) CreateJob(ctx context.Context, job *models.AnalysisJob) error {
	if job.ID == "" {
		return fmt.Errorf("job ID is required")
	}

	if err := s.db.Store().Insert(job.ID, job); err != nil {
		if errors.Is(err, badgerhold.ErrKeyExists) {
			return fmt.Errorf("job %s already exists", job.ID)
		}
		return fmt.Errorf("failed to create job: %w", err)
	}

	s.logger.Debug().Str("job_id", job.ID).Str("ticker", job.Ticker).Msg("Job created")
	return nil
}

// GetJob retrieves a job by ID
func (s *JobStorage) GetJob(ctx context.Context, jobID string) (*models.AnalysisJob, error) {
	var job models.AnalysisJob
	if err := s.db.Store().Get(jobID, &job); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, models.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

// ListRecent returns up to limit jobs ordered by created_at descending
func (s *JobStorage) ListRecent(ctx context.Context, limit int) ([]*models.AnalysisJob, error) {
	query := badgerhold.Where("ID").Ne("").SortBy("CreatedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var jobs []models.AnalysisJob
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	result := make([]*models.AnalysisJob, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

// ListNonTerminalBefore returns non-terminal jobs created before cutoff
func (s *JobStorage) ListNonTerminalBefore(ctx context.Context, cutoff time.Time) ([]*models.AnalysisJob, error) {
	query := badgerhold.Where("Status").
		Ne(models.JobStatusSuccess).
		And("Status").Ne(models.JobStatusFailed).
		And("CreatedAt").Lt(cutoff)

	var jobs []models.AnalysisJob
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to list stale jobs: %w", err)
	}

	result := make([]*models.AnalysisJob, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

// CountJobs returns the total number of stored jobs
func (s *JobStorage) CountJobs(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.AnalysisJob{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count jobs: %w", err)
	}
	return int(count), nil
}

// UpdateJob applies mutate inside one Badger transaction, conditioned on the
// stored version still matching expectedVersion. The read, the version check,
// the mutation, and the version bump commit atomically, so two concurrent
// stage completions can never overwrite each other's result sub-keys.
func (s *JobStorage) UpdateJob(ctx context.Context, jobID string, expectedVersion uint64, mutate interfaces.JobMutation) (*models.AnalysisJob, error) {
	var updated *models.AnalysisJob

	err := s.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
		var job models.AnalysisJob
		if err := s.db.Store().TxGet(txn, jobID, &job); err != nil {
			if errors.Is(err, badgerhold.ErrNotFound) {
				return models.ErrJobNotFound
			}
			return fmt.Errorf("failed to read job: %w", err)
		}

		if job.Version != expectedVersion {
			return models.ErrVersionConflict
		}

		if err := mutate(&job); err != nil {
			return err
		}

		job.Version++
		job.UpdatedAt = time.Now().UTC()

		if err := s.db.Store().TxUpsert(txn, jobID, &job); err != nil {
			return fmt.Errorf("failed to write job: %w", err)
		}

		updated = &job
		return nil
	})

	if err != nil {
		return nil, err
	}

	s.logger.Trace().
		Str("job_id", jobID).
		Int("version", int(updated.Version)).
		Str("status", string(updated.Status)).
		Msg("Job updated")

	return updated, nil
}
