package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aequitas/internal/interfaces"
	"github.com/ternarybob/aequitas/internal/models"
)

// WorkerPool manages a pool of workers that process stage messages
type WorkerPool struct {
	queueMgr interfaces.QueueManager
	config   Config
	handlers map[models.StageKind]interfaces.StageHandler
	logger   arbor.ILogger
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(queueMgr interfaces.QueueManager, config Config, logger arbor.ILogger) *WorkerPool {
	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		queueMgr: queueMgr,
		config:   config,
		handlers: make(map[models.StageKind]interfaces.StageHandler),
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// RegisterHandler registers a stage handler. Must be called before Start.
func (wp *WorkerPool) RegisterHandler(stage models.StageKind, handler interfaces.StageHandler) {
	wp.handlers[stage] = handler
	wp.logger.Debug().
		Str("stage", string(stage)).
		Msg("Stage handler registered")
}

// Start starts the worker pool
func (wp *WorkerPool) Start() error {
	concurrency := wp.config.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	wp.logger.Info().
		Int("concurrency", concurrency).
		Msg("Starting worker pool")

	for i := 0; i < concurrency; i++ {
		wp.wg.Add(1)
		go wp.worker(i, concurrency)
	}

	return nil
}

// Stop gracefully stops the worker pool and waits for workers to exit
func (wp *WorkerPool) Stop() error {
	wp.logger.Info().Msg("Stopping worker pool")
	wp.cancel()
	wp.wg.Wait()
	return nil
}

// worker is the main worker loop that processes messages
func (wp *WorkerPool) worker(workerID, concurrency int) {
	defer wp.wg.Done()

	// Stagger worker starts to spread polling across the interval
	staggerDelay := (wp.config.PollInterval / time.Duration(concurrency)) * time.Duration(workerID)
	if staggerDelay > 0 {
		select {
		case <-wp.ctx.Done():
			return
		case <-time.After(staggerDelay):
		}
	}

	wp.logger.Debug().
		Int("worker_id", workerID).
		Msg("Worker started")

	ticker := time.NewTicker(wp.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-wp.ctx.Done():
			wp.logger.Debug().
				Int("worker_id", workerID).
				Msg("Worker stopped")
			return

		case <-ticker.C:
			if err := wp.processMessage(workerID); err != nil {
				if !errors.Is(err, models.ErrNoMessage) {
					wp.logger.Warn().
						Err(err).
						Int("worker_id", workerID).
						Msg("Error processing message")
				}
			}
		}
	}
}

// processMessage receives and processes a single message.
//
// Delete-on-success only: a handler error leaves the message in flight so the
// visibility timeout redelivers it, bounded by the queue's max receive count.
// Handlers that hit permanent failures record them on the job and return nil.
func (wp *WorkerPool) processMessage(workerID int) error {
	msg, deleteFn, err := wp.queueMgr.Receive(wp.ctx)
	if err != nil {
		return err
	}

	handler, exists := wp.handlers[msg.Stage]
	if !exists {
		wp.logger.Error().
			Str("stage", string(msg.Stage)).
			Str("job_id", msg.JobID).
			Msg("No handler registered for stage")
		// Nothing can ever process this message
		if delErr := deleteFn(); delErr != nil {
			wp.logger.Warn().Err(delErr).Msg("Failed to delete unroutable message")
		}
		return nil
	}

	wp.logger.Debug().
		Str("job_id", msg.JobID).
		Str("stage", string(msg.Stage)).
		Int("worker_id", workerID).
		Msg("Processing stage message")

	startTime := time.Now()
	handlerErr := handler(wp.ctx, msg)
	duration := time.Since(startTime)

	if handlerErr != nil {
		wp.logger.Warn().
			Err(handlerErr).
			Str("job_id", msg.JobID).
			Str("stage", string(msg.Stage)).
			Dur("duration", duration).
			Int("worker_id", workerID).
			Msg("Stage handler failed, message left for redelivery")
		return handlerErr
	}

	if err := deleteFn(); err != nil {
		wp.logger.Warn().
			Err(err).
			Str("job_id", msg.JobID).
			Str("stage", string(msg.Stage)).
			Msg("Failed to delete processed message")
		return err
	}

	wp.logger.Info().
		Str("job_id", msg.JobID).
		Str("stage", string(msg.Stage)).
		Dur("duration", duration).
		Int("worker_id", workerID).
		Msg("Stage completed")

	return nil
}
