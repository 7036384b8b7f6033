package worker

import (
	"context"
	"sync"

	"github.com/hibiken/asynq"

	"github.com/feichai0017/doctext/pkg/logger"
)

type Worker interface {
	Start(ctx context.Context) error
	Stop() error
}

type BaseWorker struct {
	server    *asynq.Server
	scheduler *asynq.Scheduler
	mux       *asynq.ServeMux
	logger    logger.Logger
	stopOnce  sync.Once
}

// Stop drains in-flight tasks and stops the scheduler. It is safe to call
// more than once.
func (w *BaseWorker) Stop() error {
	w.stopOnce.Do(func() {
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		w.server.Shutdown()
		w.logger.Info("Worker stopped")
	})
	return nil
}
