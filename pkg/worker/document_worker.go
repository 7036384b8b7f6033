package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/feichai0017/doctext/config"
	"github.com/feichai0017/doctext/internal/agent/extractor"
	"github.com/feichai0017/doctext/internal/service/document"
	"github.com/feichai0017/doctext/pkg/logger"
	"github.com/feichai0017/doctext/pkg/queue"
)

const (
	TaskTypeCleanup = "document:cleanup"

	// CleanupSpec is the cron spec for the retention sweep.
	CleanupSpec = "@every 1h"
)

// Service is the part of the document service the worker drives.
type Service interface {
	HandleExtraction(ctx context.Context, task *queue.Task) error
	CleanupTasks(ctx context.Context) error
}

type DocumentWorker struct {
	BaseWorker
	docService Service
}

func NewDocumentWorker(cfg config.QueueConfig, docService Service, log logger.Logger) (*DocumentWorker, error) {
	if log == nil {
		log = logger.NewNop()
	}
	log = log.Named("worker")

	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = time.Minute
	}
	server := asynq.NewServer(
		queue.RedisOpt(cfg),
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues:      cfg.Queues,
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				return time.Duration(n) * retryDelay
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Warn("Task failed",
					logger.String("type", task.Type()),
					logger.Error(err),
				)
			}),
		},
	)

	scheduler := asynq.NewScheduler(queue.RedisOpt(cfg), &asynq.SchedulerOpts{})
	if _, err := scheduler.Register(CleanupSpec, asynq.NewTask(TaskTypeCleanup, nil), asynq.Queue(queue.QueueLow)); err != nil {
		return nil, fmt.Errorf("failed to register cleanup task: %w", err)
	}

	w := &DocumentWorker{
		BaseWorker: BaseWorker{
			server:    server,
			scheduler: scheduler,
			mux:       asynq.NewServeMux(),
			logger:    log,
		},
		docService: docService,
	}
	w.registerHandlers()
	return w, nil
}

func (w *DocumentWorker) registerHandlers() {
	w.mux.HandleFunc(queue.TaskTypeDocumentExtract, w.handleDocumentExtract)
	w.mux.HandleFunc(TaskTypeCleanup, w.handleCleanup)
}

// taskResult is written to asynq's result store for inspection tools.
type taskResult struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func (w *DocumentWorker) handleDocumentExtract(ctx context.Context, t *asynq.Task) error {
	var task queue.Task
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		w.logger.Error("Failed to unmarshal task", logger.Error(err))
		return fmt.Errorf("failed to unmarshal task: %v: %w", err, asynq.SkipRetry)
	}

	log := w.logger.With(logger.String("taskId", task.ID))
	log.Info("Processing extraction task", logger.Any("metadata", task.Metadata))

	err := w.docService.HandleExtraction(ctx, &task)
	if err != nil {
		writeResult(t, taskResult{Status: queue.StatusFailed, Error: err.Error()})
		// a document that cannot be opened will not open on retry either
		if extractor.IsOpenError(err) || errors.Is(err, document.ErrInvalidTask) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}

	writeResult(t, taskResult{Status: queue.StatusCompleted})
	return nil
}

func (w *DocumentWorker) handleCleanup(ctx context.Context, t *asynq.Task) error {
	if err := w.docService.CleanupTasks(ctx); err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}
	return nil
}

// writeResult is a no-op for tasks not delivered by an asynq server.
func writeResult(t *asynq.Task, result taskResult) {
	rw := t.ResultWriter()
	if rw == nil {
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		return
	}
	_, _ = rw.Write(data)
}

// Start runs the server and the cleanup scheduler until ctx is done.
func (w *DocumentWorker) Start(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("failed to start worker server: %w", err)
	}
	if err := w.scheduler.Start(); err != nil {
		w.server.Shutdown()
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	w.logger.Info("Worker started")

	go func() {
		<-ctx.Done()
		w.Stop()
	}()
	return nil
}
