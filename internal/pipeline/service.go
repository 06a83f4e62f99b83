package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aequitas/internal/common"
	"github.com/ternarybob/aequitas/internal/interfaces"
	"github.com/ternarybob/aequitas/internal/models"
)

// ErrInvalidTicker is returned by Submit for tickers that fail format validation
var ErrInvalidTicker = fmt.Errorf("invalid ticker symbol")

// Providers bundles the stage implementations the pipeline drives
type Providers struct {
	Data         interfaces.DataProvider
	Intelligence interfaces.IntelligenceProvider
	Forecast     interfaces.ForecastProvider
	Analyst      interfaces.LLMAnalyst
	Advisor      interfaces.AdvisorSynthesizer
}

// Service orchestrates the multi-stage analysis pipeline. Every durable write
// goes through the job store's conditional update so concurrent stage workers
// never lose each other's result keys.
type Service struct {
	jobStorage interfaces.JobStorage
	queue      interfaces.QueueManager
	publisher  interfaces.EventPublisher
	providers  Providers

	stageTimeout   time.Duration
	commitAttempts int
	commitBackoff  time.Duration
	listLimit      int

	logger arbor.ILogger
}

func NewService(
	jobStorage interfaces.JobStorage,
	queue interfaces.QueueManager,
	publisher interfaces.EventPublisher,
	providers Providers,
	config *common.PipelineConfig,
	logger arbor.ILogger,
) *Service {
	stageTimeout := common.ParseDuration(config.StageTimeout, 2*time.Minute)
	commitBackoff := common.ParseDuration(config.CommitBackoff, 25*time.Millisecond)

	commitAttempts := config.CommitAttempts
	if commitAttempts <= 0 {
		commitAttempts = 8
	}
	listLimit := config.ListRecentLimit
	if listLimit <= 0 {
		listLimit = 20
	}

	return &Service{
		jobStorage:     jobStorage,
		queue:          queue,
		publisher:      publisher,
		providers:      providers,
		stageTimeout:   stageTimeout,
		commitAttempts: commitAttempts,
		commitBackoff:  commitBackoff,
		listLimit:      listLimit,
		logger:         logger,
	}
}

// RegisterHandlers binds the stage handlers onto the worker pool
func (s *Service) RegisterHandlers(pool interfaces.WorkerPool) {
	pool.RegisterHandler(models.StageData, s.handleData)
	pool.RegisterHandler(models.StageIntelligence, s.handleIntelligence)
	pool.RegisterHandler(models.StagePrediction, s.handlePrediction)
	pool.RegisterHandler(models.StageAnalysis, s.handleAnalysis)
	pool.RegisterHandler(models.StageAdvisor, s.handleAdvisor)
}

// Submit validates the ticker, creates a pending job, and dispatches the data
// stage. Format validation only; whether the symbol exists is decided by the
// data provider once the job runs.
func (s *Service) Submit(ctx context.Context, rawTicker string) (*models.AnalysisJob, error) {
	ticker := common.ParseTicker(rawTicker)
	if !ticker.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTicker, rawTicker)
	}

	job := models.NewAnalysisJob(ticker.String())
	if err := s.jobStorage.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Str("ticker", job.Ticker).
		Msg("Analysis job submitted")

	s.publish(interfaces.JobEvent{
		Type:   interfaces.JobEventCreated,
		JobID:  job.ID,
		Ticker: job.Ticker,
		Status: job.Status,
	})

	if err := s.dispatchStage(ctx, job.ID, models.StageData); err != nil {
		return nil, err
	}

	return s.jobStorage.GetJob(ctx, job.ID)
}

// Status returns the current job record
func (s *Service) Status(ctx context.Context, jobID string) (*models.AnalysisJob, error) {
	return s.jobStorage.GetJob(ctx, jobID)
}

// ListRecent returns the newest jobs, capped at the configured panel size
func (s *Service) ListRecent(ctx context.Context, limit int) ([]*models.AnalysisJob, error) {
	if limit <= 0 || limit > s.listLimit {
		limit = s.listLimit
	}
	return s.jobStorage.ListRecent(ctx, limit)
}

// CountJobs returns the total number of stored jobs
func (s *Service) CountJobs(ctx context.Context) (int, error) {
	return s.jobStorage.CountJobs(ctx)
}

// QueueLength reports the number of pending stage messages
func (s *Service) QueueLength(ctx context.Context) (int, error) {
	return s.queue.Length(ctx)
}

func (s *Service) publish(event interfaces.JobEvent) {
	if s.publisher != nil {
		s.publisher.Publish(event)
	}
}
