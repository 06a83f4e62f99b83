package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/aequitas/internal/common"
	"github.com/ternarybob/aequitas/internal/interfaces"
	"github.com/ternarybob/aequitas/internal/models"
	"github.com/ternarybob/aequitas/internal/queue"
	badgerstore "github.com/ternarybob/aequitas/internal/storage/badger"
)

type dataFn func(ctx context.Context, ticker string) (*models.Fundamentals, error)

func (f dataFn) Fetch(ctx context.Context, ticker string) (*models.Fundamentals, error) {
	return f(ctx, ticker)
}

type intelligenceFn func(ctx context.Context, ticker, companyName string) (*models.Briefing, error)

func (f intelligenceFn) Fetch(ctx context.Context, ticker, companyName string) (*models.Briefing, error) {
	return f(ctx, ticker, companyName)
}

type forecastFn func(ctx context.Context, ticker string) (*models.Forecast, error)

func (f forecastFn) Fetch(ctx context.Context, ticker string) (*models.Forecast, error) {
	return f(ctx, ticker)
}

type analystFn func(ctx context.Context, ticker string, fundamentals *models.Fundamentals, briefing *models.Briefing) (*models.Report, error)

func (f analystFn) Analyze(ctx context.Context, ticker string, fundamentals *models.Fundamentals, briefing *models.Briefing) (*models.Report, error) {
	return f(ctx, ticker, fundamentals, briefing)
}

type advisorFn func(ctx context.Context, ticker string, result *models.AnalysisResult) (*models.Thesis, error)

func (f advisorFn) Synthesize(ctx context.Context, ticker string, result *models.AnalysisResult) (*models.Thesis, error) {
	return f(ctx, ticker, result)
}

var (
	stubFundamentals = &models.Fundamentals{CompanyName: "Acme Corp", Sector: "Technology", CurrentPrice: 104.5, Currency: "USD"}
	stubBriefing     = &models.Briefing{
		Articles: []models.Article{{Title: "Acme surges", Sentiment: models.SentimentPositive, SentimentScore: 0.8}},
		Summary:  models.SentimentSummary{Total: 1, Positive: 1},
	}
	stubForecast = &models.Forecast{Trend: "upward", Summary: "The model predicts an upward trend.", CurrentValue: 104.5, ProjectedValue: 120, HorizonDays: 30}
	stubReport   = &models.Report{Text: "## 30-Day Price Forecast\nLooks fine.", Provider: "gemini"}
	stubThesis   = &models.Thesis{Text: "**Final Recommendation:** Hold", Provider: "gemini"}
)

func happyProviders() Providers {
	return Providers{
		Data: dataFn(func(ctx context.Context, ticker string) (*models.Fundamentals, error) {
			return stubFundamentals, nil
		}),
		Intelligence: intelligenceFn(func(ctx context.Context, ticker, companyName string) (*models.Briefing, error) {
			return stubBriefing, nil
		}),
		Forecast: forecastFn(func(ctx context.Context, ticker string) (*models.Forecast, error) {
			return stubForecast, nil
		}),
		Analyst: analystFn(func(ctx context.Context, ticker string, fundamentals *models.Fundamentals, briefing *models.Briefing) (*models.Report, error) {
			return stubReport, nil
		}),
		Advisor: advisorFn(func(ctx context.Context, ticker string, result *models.AnalysisResult) (*models.Thesis, error) {
			return stubThesis, nil
		}),
	}
}

type capturePublisher struct {
	mu     sync.Mutex
	events []interfaces.JobEvent
}

func (c *capturePublisher) Publish(event interfaces.JobEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *capturePublisher) Close() error { return nil }

func (c *capturePublisher) snapshot() []interfaces.JobEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]interfaces.JobEvent, len(c.events))
	copy(out, c.events)
	return out
}

type testHarness struct {
	service *Service
	storage interfaces.JobStorage
	queue   interfaces.QueueManager
	pool    *queue.WorkerPool
	events  *capturePublisher
}

func newHarness(t *testing.T, providers Providers) *testHarness {
	t.Helper()
	logger := common.GetLogger()

	db, err := badgerstore.NewBadgerDB(logger, &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	jobStorage := badgerstore.NewJobStorage(db, logger)

	queueConfig := queue.NewDefaultConfig()
	queueConfig.PollInterval = 20 * time.Millisecond
	queueConfig.VisibilityTimeout = 200 * time.Millisecond
	queueConfig.MaxReceive = 5

	queueMgr, err := queue.NewBadgerManager(db.Store().Badger(), queueConfig, logger)
	require.NoError(t, err)

	pool := queue.NewWorkerPool(queueMgr, queueConfig, logger)
	publisher := &capturePublisher{}

	service := NewService(jobStorage, queueMgr, publisher, providers, &common.PipelineConfig{
		StageTimeout:    "5s",
		CommitAttempts:  8,
		CommitBackoff:   "5ms",
		ListRecentLimit: 20,
	}, logger)
	service.RegisterHandlers(pool)

	return &testHarness{
		service: service,
		storage: jobStorage,
		queue:   queueMgr,
		pool:    pool,
		events:  publisher,
	}
}

func (h *testHarness) start(t *testing.T) {
	t.Helper()
	require.NoError(t, h.pool.Start())
	t.Cleanup(func() { h.pool.Stop() })
}

func (h *testHarness) waitForTerminal(t *testing.T, jobID string) *models.AnalysisJob {
	t.Helper()
	var final *models.AnalysisJob
	require.Eventually(t, func() bool {
		job, err := h.storage.GetJob(context.Background(), jobID)
		if err != nil {
			return false
		}
		if job.Status.IsTerminal() {
			final = job
			return true
		}
		return false
	}, 10*time.Second, 25*time.Millisecond)
	return final
}

func TestService_EndToEndSuccess(t *testing.T) {
	h := newHarness(t, happyProviders())
	h.start(t)

	job, err := h.service.Submit(context.Background(), "ACME")
	require.NoError(t, err)
	assert.Equal(t, "US:ACME", job.Ticker)

	final := h.waitForTerminal(t, job.ID)
	assert.Equal(t, models.JobStatusSuccess, final.Status)
	assert.Equal(t, 5, final.Result.SubKeyCount())
	assert.Equal(t, "Acme Corp", final.Result.Fundamentals.CompanyName)
	assert.Equal(t, stubBriefing.Summary, final.Result.Briefing.Summary)
	assert.Equal(t, "upward", final.Result.Forecast.Trend)
	assert.Equal(t, stubReport.Text, final.Result.Analysis.Text)
	assert.Equal(t, stubThesis.Text, final.Result.Advisor.Text)
	assert.Empty(t, final.Result.Error)

	events := h.events.snapshot()
	require.NotEmpty(t, events)
	assert.Equal(t, interfaces.JobEventCreated, events[0].Type)
	assert.Equal(t, interfaces.JobEventCompleted, events[len(events)-1].Type)
}

func TestService_SubmitRejectsMalformedTicker(t *testing.T) {
	h := newHarness(t, happyProviders())

	for _, raw := range []string{"", "THISTICKERISTOOLONG", "BAD TICKER", "lower case!"} {
		_, err := h.service.Submit(context.Background(), raw)
		assert.ErrorIs(t, err, ErrInvalidTicker, "ticker %q", raw)
	}

	count, err := h.service.CountJobs(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestService_UnknownTickerFailsAtDataStage(t *testing.T) {
	providers := happyProviders()
	providers.Data = dataFn(func(ctx context.Context, ticker string) (*models.Fundamentals, error) {
		return nil, models.NewStageError(models.StageData, models.FailureInvalidTicker, ticker, nil)
	})

	h := newHarness(t, providers)
	h.start(t)

	job, err := h.service.Submit(context.Background(), "ZZZZBAD")
	require.NoError(t, err)

	final := h.waitForTerminal(t, job.ID)
	assert.Equal(t, models.JobStatusFailed, final.Status)
	assert.Contains(t, final.Result.Error, "Analysis failed for ticker 'US:ZZZZBAD'")
	assert.Contains(t, final.Result.Error, "could not be resolved")

	// No downstream stage ever ran
	assert.Nil(t, final.Result.Fundamentals)
	assert.Nil(t, final.Result.Briefing)
	assert.Nil(t, final.Result.Forecast)
	assert.Nil(t, final.Result.Analysis)
	assert.Nil(t, final.Result.Advisor)
}

func TestService_BranchFailurePreservesSiblingResult(t *testing.T) {
	providers := happyProviders()
	providers.Forecast = forecastFn(func(ctx context.Context, ticker string) (*models.Forecast, error) {
		return nil, models.NewStageError(models.StagePrediction, models.FailureInternal, ticker, errors.New("model blew up"))
	})

	h := newHarness(t, providers)
	h.start(t)

	job, err := h.service.Submit(context.Background(), "ACME")
	require.NoError(t, err)

	final := h.waitForTerminal(t, job.ID)
	assert.Equal(t, models.JobStatusFailed, final.Status)
	assert.Contains(t, final.Result.Error, "Analysis failed for ticker 'US:ACME'")
	assert.Contains(t, final.Result.Error, "model blew up")

	// Partial results from data and the surviving branch are retained
	assert.NotNil(t, final.Result.Fundamentals)
	assert.NotNil(t, final.Result.Briefing)
	assert.Nil(t, final.Result.Forecast)
	assert.Nil(t, final.Result.Analysis)
}

func TestService_TransientFailureRetriedToSuccess(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	providers := happyProviders()
	providers.Data = dataFn(func(ctx context.Context, ticker string) (*models.Fundamentals, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			return nil, models.NewStageError(models.StageData, models.FailureProviderUnavailable, ticker, errors.New("upstream 502"))
		}
		return stubFundamentals, nil
	})

	h := newHarness(t, providers)
	h.start(t)

	job, err := h.service.Submit(context.Background(), "ACME")
	require.NoError(t, err)

	final := h.waitForTerminal(t, job.ID)
	assert.Equal(t, models.JobStatusSuccess, final.Status)

	mu.Lock()
	assert.Equal(t, 2, calls)
	mu.Unlock()
}

// Both join orders must converge to the same document: each branch writes only
// its own key and the second reporter advances the status.
func TestService_JoinOrderIndependence(t *testing.T) {
	run := func(t *testing.T, intelligenceFirst bool) *models.AnalysisJob {
		h := newHarness(t, happyProviders())
		ctx := context.Background()

		job, err := h.service.Submit(ctx, "ACME")
		require.NoError(t, err)

		dataMsg := &models.StageMessage{JobID: job.ID, Stage: models.StageData, Ticker: job.Ticker}
		require.NoError(t, h.service.handleData(ctx, dataMsg))

		intelligenceMsg := &models.StageMessage{JobID: job.ID, Stage: models.StageIntelligence, Ticker: job.Ticker}
		predictionMsg := &models.StageMessage{JobID: job.ID, Stage: models.StagePrediction, Ticker: job.Ticker}

		if intelligenceFirst {
			require.NoError(t, h.service.handleIntelligence(ctx, intelligenceMsg))

			mid, err := h.storage.GetJob(ctx, job.ID)
			require.NoError(t, err)
			assert.Equal(t, models.JobStatusPredicting, mid.Status)
			assert.NotNil(t, mid.Result.Briefing)

			require.NoError(t, h.service.handlePrediction(ctx, predictionMsg))
		} else {
			require.NoError(t, h.service.handlePrediction(ctx, predictionMsg))

			mid, err := h.storage.GetJob(ctx, job.ID)
			require.NoError(t, err)
			assert.Equal(t, models.JobStatusIntelligenceGathering, mid.Status)
			assert.NotNil(t, mid.Result.Forecast)

			require.NoError(t, h.service.handleIntelligence(ctx, intelligenceMsg))
		}

		joined, err := h.storage.GetJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusAnalyzing, joined.Status)
		assert.NotNil(t, joined.Result.Briefing)
		assert.NotNil(t, joined.Result.Forecast)
		return joined
	}

	first := run(t, true)
	second := run(t, false)

	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.Result.Briefing, second.Result.Briefing)
	assert.Equal(t, first.Result.Forecast, second.Result.Forecast)
}

// A failed first branch must wait for its sibling; only after both report is
// the job failed, with the sibling's result still in the document.
func TestService_FirstFailureWaitsForSibling(t *testing.T) {
	providers := happyProviders()
	providers.Intelligence = intelligenceFn(func(ctx context.Context, ticker, companyName string) (*models.Briefing, error) {
		return nil, models.NewStageError(models.StageIntelligence, models.FailureInternal, ticker, errors.New("feed parser broke"))
	})

	h := newHarness(t, providers)
	ctx := context.Background()

	job, err := h.service.Submit(ctx, "ACME")
	require.NoError(t, err)

	require.NoError(t, h.service.handleData(ctx, &models.StageMessage{JobID: job.ID, Stage: models.StageData, Ticker: job.Ticker}))
	require.NoError(t, h.service.handleIntelligence(ctx, &models.StageMessage{JobID: job.ID, Stage: models.StageIntelligence, Ticker: job.Ticker}))

	mid, err := h.storage.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPredicting, mid.Status, "failure must not preempt the running sibling")
	assert.False(t, mid.Status.IsTerminal())

	require.NoError(t, h.service.handlePrediction(ctx, &models.StageMessage{JobID: job.ID, Stage: models.StagePrediction, Ticker: job.Ticker}))

	final, err := h.storage.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, final.Status)
	assert.Contains(t, final.Result.Error, "feed parser broke")
	assert.NotNil(t, final.Result.Forecast, "sibling result must survive the failure")
	assert.Nil(t, final.Result.Briefing)
}

func TestService_RedeliveredMessagesAreIdempotent(t *testing.T) {
	h := newHarness(t, happyProviders())
	ctx := context.Background()

	job, err := h.service.Submit(ctx, "ACME")
	require.NoError(t, err)

	dataMsg := &models.StageMessage{JobID: job.ID, Stage: models.StageData, Ticker: job.Ticker}
	require.NoError(t, h.service.handleData(ctx, dataMsg))
	require.NoError(t, h.service.handleData(ctx, dataMsg))

	// Submit enqueued data once; handleData fanned out two branches exactly once
	length, err := h.queue.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, length)

	after, err := h.storage.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, after.Dispatched[models.StageIntelligence])
	assert.True(t, after.Dispatched[models.StagePrediction])

	// Replaying a finished branch neither re-runs it nor corrupts the join
	intelligenceMsg := &models.StageMessage{JobID: job.ID, Stage: models.StageIntelligence, Ticker: job.Ticker}
	require.NoError(t, h.service.handleIntelligence(ctx, intelligenceMsg))
	versionAfterBranch := mustGet(t, h.storage, job.ID).Version

	require.NoError(t, h.service.handleIntelligence(ctx, intelligenceMsg))
	replayed := mustGet(t, h.storage, job.ID)
	assert.Equal(t, versionAfterBranch, replayed.Version, "replay must not commit a new version")
	assert.True(t, replayed.Join.IntelligenceDone)
	assert.False(t, replayed.Join.PredictionDone)
}

func TestService_StaleMessageForTerminalJobIsDropped(t *testing.T) {
	h := newHarness(t, happyProviders())
	ctx := context.Background()

	job, err := h.service.Submit(ctx, "ACME")
	require.NoError(t, err)

	_, err = h.storage.UpdateJob(ctx, job.ID, mustGet(t, h.storage, job.ID).Version, func(j *models.AnalysisJob) error {
		j.Status = models.JobStatusFailed
		j.Result.Error = "failed elsewhere"
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, h.service.handleData(ctx, &models.StageMessage{JobID: job.ID, Stage: models.StageData, Ticker: job.Ticker}))

	final := mustGet(t, h.storage, job.ID)
	assert.Equal(t, models.JobStatusFailed, final.Status)
	assert.Nil(t, final.Result.Fundamentals)
}

func TestService_ListRecentCapsLimit(t *testing.T) {
	h := newHarness(t, happyProviders())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := h.service.Submit(ctx, "ACME")
		require.NoError(t, err)
	}

	jobs, err := h.service.ListRecent(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, jobs, 3)

	// Requests beyond the configured panel size are capped
	jobs, err = h.service.ListRecent(ctx, 1000)
	require.NoError(t, err)
	assert.Len(t, jobs, 5)
}

// conflictingStorage forces version conflicts for the next n conditional
// updates, then delegates
type conflictingStorage struct {
	interfaces.JobStorage
	remaining int
}

func (c *conflictingStorage) UpdateJob(ctx context.Context, jobID string, expectedVersion uint64, mutate interfaces.JobMutation) (*models.AnalysisJob, error) {
	if c.remaining > 0 {
		c.remaining--
		return nil, models.ErrVersionConflict
	}
	return c.JobStorage.UpdateJob(ctx, jobID, expectedVersion, mutate)
}

func TestService_CommitExhaustionFailsJob(t *testing.T) {
	logger := common.GetLogger()

	db, err := badgerstore.NewBadgerDB(logger, &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	storage := &conflictingStorage{JobStorage: badgerstore.NewJobStorage(db, logger)}

	queueMgr, err := queue.NewBadgerManager(db.Store().Badger(), queue.NewDefaultConfig(), logger)
	require.NoError(t, err)

	publisher := &capturePublisher{}
	service := NewService(storage, queueMgr, publisher, happyProviders(), &common.PipelineConfig{
		StageTimeout:   "5s",
		CommitAttempts: 3,
		CommitBackoff:  "1ms",
	}, logger)

	ctx := context.Background()
	job, err := service.Submit(ctx, "ACME")
	require.NoError(t, err)

	// The stage commit burns through every attempt; the failure write that
	// follows goes through cleanly
	storage.remaining = 3
	require.NoError(t, service.handleData(ctx, &models.StageMessage{JobID: job.ID, Stage: models.StageData, Ticker: job.Ticker}))

	final := mustGet(t, storage, job.ID)
	assert.Equal(t, models.JobStatusFailed, final.Status)
	assert.Contains(t, final.Result.Error, "Analysis failed for ticker 'US:ACME'")
	assert.Contains(t, final.Result.Error, "concurrent writes")

	events := publisher.snapshot()
	require.NotEmpty(t, events)
	assert.Equal(t, interfaces.JobEventFailed, events[len(events)-1].Type)
}

func mustGet(t *testing.T, storage interfaces.JobStorage, jobID string) *models.AnalysisJob {
	t.Helper()
	job, err := storage.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	return job
}
