package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/aequitas/internal/models"
)

// dispatchStage enqueues one stage for a job exactly once. The dispatch flag
// is committed to the job record before the enqueue; a crash between the mark
// and the enqueue strands the job until the stale-job sweeper fails it.
func (s *Service) dispatchStage(ctx context.Context, jobID string, kind models.StageKind) error {
	alreadyDispatched := false
	updated, err := s.commitJob(ctx, jobID, func(j *models.AnalysisJob) error {
		alreadyDispatched = false
		if j.Status.IsTerminal() {
			return models.ErrTerminalJob
		}
		if !j.MarkDispatched(kind) {
			alreadyDispatched = true
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, models.ErrTerminalJob) {
			return nil
		}
		return fmt.Errorf("failed to mark %s dispatched: %w", kind, err)
	}

	if alreadyDispatched {
		s.logger.Trace().
			Str("job_id", jobID).
			Str("stage", string(kind)).
			Msg("Stage already dispatched, skipping enqueue")
		return nil
	}

	msg := &models.StageMessage{
		JobID:  jobID,
		Stage:  kind,
		Ticker: updated.Ticker,
	}
	if err := s.queue.Enqueue(ctx, msg, jobID+":"+string(kind)); err != nil {
		return fmt.Errorf("failed to enqueue %s stage: %w", kind, err)
	}

	s.logger.Debug().
		Str("job_id", jobID).
		Str("stage", string(kind)).
		Msg("Stage dispatched")
	return nil
}

// dispatchBranches fans out the two post-data stages
func (s *Service) dispatchBranches(ctx context.Context, jobID string) error {
	for _, kind := range models.ParallelBranches {
		if err := s.dispatchStage(ctx, jobID, kind); err != nil {
			return err
		}
	}
	return nil
}
