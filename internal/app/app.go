package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aequitas/internal/common"
	"github.com/ternarybob/aequitas/internal/eodhd"
	"github.com/ternarybob/aequitas/internal/handlers"
	"github.com/ternarybob/aequitas/internal/interfaces"
	"github.com/ternarybob/aequitas/internal/pipeline"
	"github.com/ternarybob/aequitas/internal/queue"
	"github.com/ternarybob/aequitas/internal/services/events"
	"github.com/ternarybob/aequitas/internal/services/llm"
	"github.com/ternarybob/aequitas/internal/services/market"
	"github.com/ternarybob/aequitas/internal/services/scheduler"
	"github.com/ternarybob/aequitas/internal/services/sentiment"
	badgerstore "github.com/ternarybob/aequitas/internal/storage/badger"
)

// App holds the wired application: storage, queue, pipeline, and HTTP handlers.
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	// Storage
	DB         *badgerstore.BadgerDB
	JobStorage interfaces.JobStorage
	KVStorage  interfaces.KeyValueStorage

	// Queue
	QueueManager interfaces.QueueManager
	WorkerPool   *queue.WorkerPool

	// Services
	EventHub *events.Hub
	Pipeline *pipeline.Service
	Sweeper  *scheduler.Sweeper

	// HTTP handlers
	JobHandler    *handlers.JobHandler
	StatusHandler *handlers.StatusHandler
	WSHandler     *handlers.WebSocketHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initStorage(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	if err := app.initQueue(); err != nil {
		app.DB.Close()
		return nil, fmt.Errorf("failed to initialize queue: %w", err)
	}

	if err := app.initServices(); err != nil {
		app.DB.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.initHandlers()

	logger.Info().
		Str("environment", cfg.Environment).
		Str("storage_path", cfg.Storage.Badger.Path).
		Int("queue_concurrency", cfg.Queue.Concurrency).
		Msg("Application initialization complete")

	return app, nil
}

func (a *App) initStorage() error {
	db, err := badgerstore.NewBadgerDB(a.Logger, &a.Config.Storage.Badger)
	if err != nil {
		return err
	}

	a.DB = db
	a.JobStorage = badgerstore.NewJobStorage(db, a.Logger)
	a.KVStorage = badgerstore.NewKVStorage(db, a.Logger)

	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")

	return nil
}

func (a *App) initQueue() error {
	qcfg := queue.NewDefaultConfig()
	qcfg.PollInterval = common.ParseDuration(a.Config.Queue.PollInterval, qcfg.PollInterval)
	qcfg.VisibilityTimeout = common.ParseDuration(a.Config.Queue.VisibilityTimeout, qcfg.VisibilityTimeout)
	if a.Config.Queue.Concurrency > 0 {
		qcfg.Concurrency = a.Config.Queue.Concurrency
	}
	if a.Config.Queue.MaxReceive > 0 {
		qcfg.MaxReceive = a.Config.Queue.MaxReceive
	}
	if a.Config.Queue.QueueName != "" {
		qcfg.QueueName = a.Config.Queue.QueueName
	}

	manager, err := queue.NewBadgerManager(a.DB.Store().Badger(), qcfg, a.Logger)
	if err != nil {
		return err
	}

	a.QueueManager = manager
	a.WorkerPool = queue.NewWorkerPool(manager, qcfg, a.Logger)

	return nil
}

func (a *App) initServices() error {
	ctx := context.Background()

	eodhdKey, err := common.ResolveAPIKey(ctx, a.KVStorage, "eodhd_api_key", a.Config.EODHD.APIKey)
	if err != nil {
		return fmt.Errorf("EODHD API key is required: %w", err)
	}

	eodhdOpts := []eodhd.ClientOption{
		eodhd.WithLogger(a.Logger),
		eodhd.WithRateLimit(a.Config.EODHD.RateLimit),
		eodhd.WithHTTPClient(&http.Client{
			Timeout: common.ParseDuration(a.Config.EODHD.RequestTimeout, 30*time.Second),
		}),
	}
	if a.Config.EODHD.BaseURL != "" {
		eodhdOpts = append(eodhdOpts, eodhd.WithBaseURL(a.Config.EODHD.BaseURL))
	}
	eodhdClient := eodhd.NewClient(eodhdKey, eodhdOpts...)

	classifier := sentiment.NewClassifier(a.Logger)

	factory := llm.NewProviderFactory(
		&a.Config.Gemini,
		&a.Config.Claude,
		&a.Config.LLM,
		a.KVStorage,
		a.Logger,
	)

	a.EventHub = events.NewHub(a.Logger)

	providers := pipeline.Providers{
		Data:         market.NewDataService(eodhdClient, a.Logger),
		Intelligence: market.NewIntelligenceService(eodhdClient, classifier, a.Config.Pipeline.NewsLimit, a.Logger),
		Forecast:     market.NewForecastService(eodhdClient, a.Config.Pipeline.HistoryDays, a.Config.Pipeline.ForecastHorizon, a.Logger),
		Analyst:      llm.NewAnalyst(factory, "", a.Logger),
		Advisor:      llm.NewAdvisor(factory, "", a.Logger),
	}

	a.Pipeline = pipeline.NewService(
		a.JobStorage,
		a.QueueManager,
		a.EventHub,
		providers,
		&a.Config.Pipeline,
		a.Logger,
	)
	a.Pipeline.RegisterHandlers(a.WorkerPool)

	a.Sweeper = scheduler.NewSweeper(
		a.JobStorage,
		a.EventHub,
		common.ParseDuration(a.Config.Pipeline.JobTimeout, 30*time.Minute),
		a.Config.Pipeline.SweeperSchedule,
		a.Logger,
	)

	return nil
}

func (a *App) initHandlers() {
	a.JobHandler = handlers.NewJobHandler(a.Pipeline, a.Logger)
	a.StatusHandler = handlers.NewStatusHandler(a.Pipeline, a.EventHub, common.GetVersion(), a.Logger)
	a.WSHandler = handlers.NewWebSocketHandler(a.EventHub, a.Logger)
}

// Start launches the background components: the stage worker pool and the
// stale-job sweeper.
func (a *App) Start() error {
	if err := a.WorkerPool.Start(); err != nil {
		return fmt.Errorf("failed to start worker pool: %w", err)
	}
	if err := a.Sweeper.Start(); err != nil {
		a.WorkerPool.Stop()
		return fmt.Errorf("failed to start sweeper: %w", err)
	}

	a.Logger.Info().Msg("Background workers started")
	return nil
}

// Shutdown stops background work and releases storage. Order matters: the
// worker pool drains before the queue and database close underneath it.
func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.Info().Msg("Shutting down application")

	a.Sweeper.Stop()

	if err := a.WorkerPool.Stop(); err != nil {
		a.Logger.Warn().Err(err).Msg("Worker pool did not stop cleanly")
	}

	if a.EventHub != nil {
		a.EventHub.Close()
	}

	if a.QueueManager != nil {
		if err := a.QueueManager.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close queue manager")
		}
	}

	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			return fmt.Errorf("failed to close database: %w", err)
		}
	}

	a.Logger.Info().Msg("Application shutdown complete")
	return nil
}
