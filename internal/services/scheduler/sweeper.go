package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aequitas/internal/interfaces"
	"github.com/ternarybob/aequitas/internal/models"
)

// Sweeper fails analysis jobs that never reached a terminal state. A crash
// between a queue delete and a status write can strand a job; the sweeper is
// the backstop that keeps no job PENDING forever.
type Sweeper struct {
	jobStorage interfaces.JobStorage
	publisher  interfaces.EventPublisher
	jobTimeout time.Duration
	schedule   string
	cron       *cron.Cron
	logger     arbor.ILogger
	mu         sync.Mutex
	running    bool
}

func NewSweeper(jobStorage interfaces.JobStorage, publisher interfaces.EventPublisher, jobTimeout time.Duration, schedule string, logger arbor.ILogger) *Sweeper {
	if schedule == "" {
		schedule = "*/1 * * * *"
	}
	return &Sweeper{
		jobStorage: jobStorage,
		publisher:  publisher,
		jobTimeout: jobTimeout,
		schedule:   schedule,
		cron:       cron.New(),
		logger:     logger,
	}
}

// Start registers the sweep on the cron schedule
func (s *Sweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("sweeper already running")
	}

	_, err := s.cron.AddFunc(s.schedule, func() {
		if swept, err := s.Sweep(context.Background()); err != nil {
			s.logger.Warn().Err(err).Msg("Stale job sweep failed")
		} else if swept > 0 {
			s.logger.Info().Int("swept", swept).Msg("Stale jobs failed by sweeper")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule sweeper: %w", err)
	}

	s.cron.Start()
	s.running = true
	s.logger.Info().
		Str("schedule", s.schedule).
		Str("job_timeout", s.jobTimeout.String()).
		Msg("Stale job sweeper started")
	return nil
}

// Stop halts the cron scheduler, waiting for an in-flight sweep
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.running = false
	s.logger.Info().Msg("Stale job sweeper stopped")
}

// Sweep fails every non-terminal job older than the job timeout. Each job is
// failed with a conditional update so a worker finishing concurrently wins.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.jobTimeout)

	stale, err := s.jobStorage.ListNonTerminalBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale jobs: %w", err)
	}

	swept := 0
	for _, job := range stale {
		if err := s.failStaleJob(ctx, job); err != nil {
			s.logger.Warn().
				Str("job_id", job.ID).
				Err(err).
				Msg("Failed to sweep stale job")
			continue
		}
		swept++
	}
	return swept, nil
}

func (s *Sweeper) failStaleJob(ctx context.Context, job *models.AnalysisJob) error {
	message := fmt.Sprintf(
		"Analysis failed for ticker '%s'. The analysis did not complete within the allowed time. (Details: job exceeded %s in status %s)",
		job.Ticker, s.jobTimeout, job.Status,
	)

	updated, err := s.jobStorage.UpdateJob(ctx, job.ID, job.Version, func(j *models.AnalysisJob) error {
		if j.Status.IsTerminal() {
			return models.ErrTerminalJob
		}
		j.Status = models.JobStatusFailed
		j.Result.Error = message
		return nil
	})
	if err != nil {
		// A concurrent completion or a racing sweep already settled the job
		if errors.Is(err, models.ErrTerminalJob) || errors.Is(err, models.ErrVersionConflict) {
			return nil
		}
		return err
	}

	s.logger.Warn().
		Str("job_id", updated.ID).
		Str("ticker", updated.Ticker).
		Msg("Stale job marked failed")

	if s.publisher != nil {
		s.publisher.Publish(interfaces.JobEvent{
			Type:   interfaces.JobEventFailed,
			JobID:  updated.ID,
			Ticker: updated.Ticker,
			Status: updated.Status,
		})
	}
	return nil
}
