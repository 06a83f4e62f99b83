package pipeline

import (
	"context"
	"errors"

	"github.com/ternarybob/aequitas/internal/interfaces"
	"github.com/ternarybob/aequitas/internal/models"
)

// loadJob fetches the job for a stage message. A missing or terminal job
// returns nil: the message is stale and should be dropped without error.
func (s *Service) loadJob(ctx context.Context, msg *models.StageMessage) (*models.AnalysisJob, error) {
	job, err := s.jobStorage.GetJob(ctx, msg.JobID)
	if err != nil {
		if errors.Is(err, models.ErrJobNotFound) {
			s.logger.Warn().
				Str("job_id", msg.JobID).
				Str("stage", string(msg.Stage)).
				Msg("Stage message for unknown job, dropping")
			return nil, nil
		}
		return nil, err
	}
	if job.Status.IsTerminal() {
		return nil, nil
	}
	return job, nil
}

// handleStageFailure routes a classified stage error: transient failures are
// returned so queue redelivery retries them, permanent failures are written
// onto the job and the message is consumed.
func (s *Service) handleStageFailure(ctx context.Context, msg *models.StageMessage, err error) error {
	stageErr := models.AsStageError(msg.Stage, msg.Ticker, err)
	if stageErr.Kind.Retryable() {
		s.logger.Warn().
			Str("job_id", msg.JobID).
			Str("stage", string(msg.Stage)).
			Str("kind", string(stageErr.Kind)).
			Err(stageErr.Cause).
			Msg("Transient stage failure, leaving message for redelivery")
		return stageErr
	}
	return s.failJob(ctx, msg.JobID, stageErr.UserMessage())
}

// commitStage writes a stage result and status advance in one conditional
// update. Commit exhaustion is converted into a persistence-conflict failure
// on the job itself.
func (s *Service) commitStage(ctx context.Context, msg *models.StageMessage, mutate interfaces.JobMutation) (*models.AnalysisJob, error) {
	updated, err := s.commitJob(ctx, msg.JobID, mutate)
	if err == nil {
		s.publish(interfaces.JobEvent{
			Type:   interfaces.JobEventStatusChanged,
			JobID:  updated.ID,
			Ticker: updated.Ticker,
			Status: updated.Status,
			Stage:  msg.Stage,
		})
		return updated, nil
	}
	if errors.Is(err, models.ErrTerminalJob) {
		return nil, nil
	}
	if errors.Is(err, models.ErrVersionConflict) {
		stageErr := models.NewStageError(msg.Stage, models.FailurePersistenceConflict, msg.Ticker, err)
		if failErr := s.failJob(ctx, msg.JobID, stageErr.UserMessage()); failErr != nil {
			return nil, failErr
		}
		return nil, nil
	}
	return nil, err
}

// handleData resolves fundamentals and fans out the two parallel branches
func (s *Service) handleData(ctx context.Context, msg *models.StageMessage) error {
	job, err := s.loadJob(ctx, msg)
	if err != nil || job == nil {
		return err
	}

	// Redelivery after a successful commit: only the fan-out may be missing
	if job.Result.Fundamentals != nil {
		return s.dispatchBranches(ctx, msg.JobID)
	}

	if job.Status == models.JobStatusPending {
		marked, err := s.commitStage(ctx, msg, func(j *models.AnalysisJob) error {
			if j.Status.IsTerminal() {
				return models.ErrTerminalJob
			}
			if j.Status == models.JobStatusPending {
				j.Status = models.JobStatusDataFetching
			}
			return nil
		})
		if err != nil || marked == nil {
			return err
		}
	}

	stageCtx, cancel := context.WithTimeout(ctx, s.stageTimeout)
	fundamentals, err := s.providers.Data.Fetch(stageCtx, job.Ticker)
	cancel()
	if err != nil {
		return s.handleStageFailure(ctx, msg, err)
	}

	updated, err := s.commitStage(ctx, msg, func(j *models.AnalysisJob) error {
		if j.Status.IsTerminal() {
			return models.ErrTerminalJob
		}
		j.Result.Fundamentals = fundamentals
		j.Status = models.JobStatusIntelligenceGathering
		return nil
	})
	if err != nil || updated == nil {
		return err
	}

	return s.dispatchBranches(ctx, msg.JobID)
}

// handleIntelligence runs the news briefing branch
func (s *Service) handleIntelligence(ctx context.Context, msg *models.StageMessage) error {
	job, err := s.loadJob(ctx, msg)
	if err != nil || job == nil {
		return err
	}
	if job.Join.Reported(models.StageIntelligence) {
		return s.afterJoin(ctx, msg.JobID)
	}

	companyName := ""
	if job.Result.Fundamentals != nil {
		companyName = job.Result.Fundamentals.CompanyName
	}

	stageCtx, cancel := context.WithTimeout(ctx, s.stageTimeout)
	briefing, err := s.providers.Intelligence.Fetch(stageCtx, job.Ticker, companyName)
	cancel()

	if err != nil {
		stageErr := models.AsStageError(models.StageIntelligence, job.Ticker, err)
		if stageErr.Kind.Retryable() {
			return stageErr
		}
		return s.completeBranch(ctx, msg, models.StageIntelligence, nil, stageErr.UserMessage())
	}

	return s.completeBranch(ctx, msg, models.StageIntelligence, func(j *models.AnalysisJob) {
		j.Result.Briefing = briefing
	}, "")
}

// handlePrediction runs the price forecast branch
func (s *Service) handlePrediction(ctx context.Context, msg *models.StageMessage) error {
	job, err := s.loadJob(ctx, msg)
	if err != nil || job == nil {
		return err
	}
	if job.Join.Reported(models.StagePrediction) {
		return s.afterJoin(ctx, msg.JobID)
	}

	stageCtx, cancel := context.WithTimeout(ctx, s.stageTimeout)
	forecast, err := s.providers.Forecast.Fetch(stageCtx, job.Ticker)
	cancel()

	if err != nil {
		stageErr := models.AsStageError(models.StagePrediction, job.Ticker, err)
		if stageErr.Kind.Retryable() {
			return stageErr
		}
		return s.completeBranch(ctx, msg, models.StagePrediction, nil, stageErr.UserMessage())
	}

	return s.completeBranch(ctx, msg, models.StagePrediction, func(j *models.AnalysisJob) {
		j.Result.Forecast = forecast
	}, "")
}

// completeBranch commits a branch outcome and the join bookkeeping atomically.
// The first branch to report hands the status to its still-running sibling;
// the second decides the join: ANALYZING when both succeeded, FAILED with the
// first branch error otherwise. A failed first branch therefore waits for its
// sibling before the job is failed, preserving the sibling's result key.
func (s *Service) completeBranch(ctx context.Context, msg *models.StageMessage, kind models.StageKind, apply func(*models.AnalysisJob), errMsg string) error {
	updated, err := s.commitStage(ctx, msg, func(j *models.AnalysisJob) error {
		if j.Status.IsTerminal() {
			return models.ErrTerminalJob
		}
		if apply != nil {
			apply(j)
		}
		j.Join.MarkReported(kind, errMsg)

		if j.Join.BothReported() {
			if first := j.Join.FirstError(); first != "" {
				j.Status = models.JobStatusFailed
				j.Result.Error = first
			} else {
				j.Status = models.JobStatusAnalyzing
			}
			return nil
		}

		// Sibling still running; surface its phase
		if kind == models.StageIntelligence {
			j.Status = models.JobStatusPredicting
		} else {
			j.Status = models.JobStatusIntelligenceGathering
		}
		return nil
	})
	if err != nil || updated == nil {
		return err
	}

	switch updated.Status {
	case models.JobStatusFailed:
		s.logger.Warn().
			Str("job_id", updated.ID).
			Str("ticker", updated.Ticker).
			Str("error", updated.Result.Error).
			Msg("Analysis job failed at join")
		s.publish(interfaces.JobEvent{
			Type:   interfaces.JobEventFailed,
			JobID:  updated.ID,
			Ticker: updated.Ticker,
			Status: updated.Status,
		})
		return nil
	case models.JobStatusAnalyzing:
		return s.dispatchStage(ctx, msg.JobID, models.StageAnalysis)
	default:
		return nil
	}
}

// afterJoin re-checks a redelivered branch message whose work already
// committed: the only thing possibly missing is the analysis dispatch
func (s *Service) afterJoin(ctx context.Context, jobID string) error {
	job, err := s.jobStorage.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, models.ErrJobNotFound) {
			return nil
		}
		return err
	}
	if job.Status == models.JobStatusAnalyzing {
		return s.dispatchStage(ctx, jobID, models.StageAnalysis)
	}
	return nil
}

// handleAnalysis turns the accumulated data into the narrative report
func (s *Service) handleAnalysis(ctx context.Context, msg *models.StageMessage) error {
	job, err := s.loadJob(ctx, msg)
	if err != nil || job == nil {
		return err
	}

	if job.Result.Analysis != nil {
		if job.Status == models.JobStatusSummarizing {
			return s.dispatchStage(ctx, msg.JobID, models.StageAdvisor)
		}
		return nil
	}

	stageCtx, cancel := context.WithTimeout(ctx, s.stageTimeout)
	report, err := s.providers.Analyst.Analyze(stageCtx, job.Ticker, job.Result.Fundamentals, job.Result.Briefing)
	cancel()
	if err != nil {
		return s.handleStageFailure(ctx, msg, err)
	}

	updated, err := s.commitStage(ctx, msg, func(j *models.AnalysisJob) error {
		if j.Status.IsTerminal() {
			return models.ErrTerminalJob
		}
		j.Result.Analysis = report
		j.Status = models.JobStatusSummarizing
		return nil
	})
	if err != nil || updated == nil {
		return err
	}

	return s.dispatchStage(ctx, msg.JobID, models.StageAdvisor)
}

// handleAdvisor produces the final summary and completes the job
func (s *Service) handleAdvisor(ctx context.Context, msg *models.StageMessage) error {
	job, err := s.loadJob(ctx, msg)
	if err != nil || job == nil {
		return err
	}
	if job.Result.Advisor != nil {
		return nil
	}

	stageCtx, cancel := context.WithTimeout(ctx, s.stageTimeout)
	thesis, err := s.providers.Advisor.Synthesize(stageCtx, job.Ticker, &job.Result)
	cancel()
	if err != nil {
		return s.handleStageFailure(ctx, msg, err)
	}

	updated, err := s.commitStage(ctx, msg, func(j *models.AnalysisJob) error {
		if j.Status.IsTerminal() {
			return models.ErrTerminalJob
		}
		j.Result.Advisor = thesis
		j.Status = models.JobStatusSuccess
		return nil
	})
	if err != nil || updated == nil {
		return err
	}

	s.logger.Info().
		Str("job_id", updated.ID).
		Str("ticker", updated.Ticker).
		Msg("Analysis job completed")

	s.publish(interfaces.JobEvent{
		Type:   interfaces.JobEventCompleted,
		JobID:  updated.ID,
		Ticker: updated.Ticker,
		Status: updated.Status,
	})
	return nil
}
