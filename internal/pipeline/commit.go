package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/aequitas/internal/interfaces"
	"github.com/ternarybob/aequitas/internal/models"
)

// commitJob applies mutate to the job under optimistic concurrency. On a
// version conflict it re-reads and retries with exponential backoff, up to
// the configured attempt budget. Mutations must be written against the
// freshly read record so a retry never resurrects stale state.
func (s *Service) commitJob(ctx context.Context, jobID string, mutate interfaces.JobMutation) (*models.AnalysisJob, error) {
	backoff := s.commitBackoff
	var lastErr error

	for attempt := 0; attempt < s.commitAttempts; attempt++ {
		job, err := s.jobStorage.GetJob(ctx, jobID)
		if err != nil {
			return nil, err
		}

		updated, err := s.jobStorage.UpdateJob(ctx, jobID, job.Version, mutate)
		if err == nil {
			if attempt > 0 {
				s.logger.Debug().
					Str("job_id", jobID).
					Int("attempt", attempt+1).
					Msg("Job commit succeeded after conflict retries")
			}
			return updated, nil
		}
		if !errors.Is(err, models.ErrVersionConflict) {
			return nil, err
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	return nil, fmt.Errorf("job commit failed after %d attempts: %w", s.commitAttempts, lastErr)
}

// failJob marks the job FAILED with the given user-facing message. A job that
// reached a terminal state first is left untouched.
func (s *Service) failJob(ctx context.Context, jobID string, message string) error {
	updated, err := s.commitJob(ctx, jobID, func(j *models.AnalysisJob) error {
		if j.Status.IsTerminal() {
			return models.ErrTerminalJob
		}
		j.Status = models.JobStatusFailed
		j.Result.Error = message
		return nil
	})
	if err != nil {
		if errors.Is(err, models.ErrTerminalJob) {
			return nil
		}
		return err
	}

	s.logger.Warn().
		Str("job_id", updated.ID).
		Str("ticker", updated.Ticker).
		Str("error", message).
		Msg("Analysis job failed")

	s.publish(interfaces.JobEvent{
		Type:   interfaces.JobEventFailed,
		JobID:  updated.ID,
		Ticker: updated.Ticker,
		Status: updated.Status,
	})
	return nil
}
