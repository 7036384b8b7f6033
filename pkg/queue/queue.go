package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/feichai0017/doctext/config"
	"github.com/feichai0017/doctext/pkg/logger"
)

const (
	TaskTypeDocumentExtract = "document:extract"
)

// Queue names, highest priority first.
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

var (
	ErrTaskNotFound = errors.New("task not found")
	ErrTaskFinished = errors.New("task already finished")
)

type Queue interface {
	Enqueue(ctx context.Context, task *Task) error
	GetTaskStatus(ctx context.Context, taskID string) (*TaskStatus, error)
	CancelTask(ctx context.Context, taskID string) error
	SaveStatus(ctx context.Context, status *TaskStatus) error
	Close() error
}

// Task is the envelope stored as the asynq payload.
type Task struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Priority  int               `json:"priority"`
	Payload   json.RawMessage   `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	CreatedAt time.Time         `json:"createdAt"`
}

// ExtractPayload describes an uploaded document waiting for extraction.
type ExtractPayload struct {
	FileKey  string `json:"fileKey"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType,omitempty"`
}

// NewTask builds a task with payload encoded as JSON.
func NewTask(id, taskType string, priority int, payload interface{}) (*Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return &Task{
		ID:        id,
		Type:      taskType,
		Priority:  priority,
		Payload:   data,
		Metadata:  make(map[string]string),
		CreatedAt: time.Now(),
	}, nil
}

// Decode unmarshals the task payload into v.
func (t *Task) Decode(v interface{}) error {
	if len(t.Payload) == 0 {
		return errors.New("task has no payload")
	}
	if err := json.Unmarshal(t.Payload, v); err != nil {
		return fmt.Errorf("failed to decode payload: %w", err)
	}
	return nil
}

type TaskStatus struct {
	TaskID     string    `json:"taskId"`
	Status     string    `json:"status"`
	Progress   float64   `json:"progress"`
	Error      string    `json:"error,omitempty"`
	ResultKey  string    `json:"resultKey,omitempty"`
	Pages      int       `json:"pages,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt,omitempty"`
}

// Status values recorded for tasks.
const (
	StatusPending   = "pending"
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Final reports whether the status can no longer change. A failed task may
// still be retried.
func (s *TaskStatus) Final() bool {
	return s.Status == StatusCompleted || s.Status == StatusCancelled
}

type AsynqQueue struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	status    *StatusStore
	cfg       config.QueueConfig
	logger    logger.Logger
}

// NewAsynqQueue connects the asynq client and inspector to cfg.RedisAddr.
// status records task state outside asynq's own retention.
func NewAsynqQueue(cfg config.QueueConfig, status *StatusStore, log logger.Logger) *AsynqQueue {
	if log == nil {
		log = logger.NewNop()
	}
	opt := RedisOpt(cfg)
	return &AsynqQueue{
		client:    asynq.NewClient(opt),
		inspector: asynq.NewInspector(opt),
		status:    status,
		cfg:       cfg,
		logger:    log.Named("queue"),
	}
}

// RedisOpt returns the asynq connection options for cfg.
func RedisOpt(cfg config.QueueConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: cfg.RedisAddr, DB: cfg.RedisDB}
}

// QueueFor maps a task priority to a queue name.
func QueueFor(priority int) string {
	switch {
	case priority > 0:
		return QueueCritical
	case priority < 0:
		return QueueLow
	default:
		return QueueDefault
	}
}

func (q *AsynqQueue) Enqueue(ctx context.Context, task *Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	opts := []asynq.Option{
		asynq.TaskID(task.ID),
		asynq.Queue(QueueFor(task.Priority)),
		asynq.MaxRetry(q.cfg.MaxRetries),
	}
	if q.cfg.ProcessTimeout > 0 {
		opts = append(opts, asynq.Timeout(q.cfg.ProcessTimeout))
	}
	if q.cfg.Retention > 0 {
		opts = append(opts, asynq.Retention(q.cfg.Retention))
	}

	info, err := q.client.EnqueueContext(ctx, asynq.NewTask(task.Type, payload), opts...)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	q.logger.Info("Task enqueued",
		logger.String("taskId", info.ID),
		logger.String("queue", info.Queue),
		logger.String("type", task.Type),
	)
	return nil
}

// GetTaskStatus prefers the status store and falls back to asynq's inspector.
func (q *AsynqQueue) GetTaskStatus(ctx context.Context, taskID string) (*TaskStatus, error) {
	status, err := q.status.Get(ctx, taskID)
	if err == nil {
		return status, nil
	}
	if !errors.Is(err, ErrTaskNotFound) {
		return nil, err
	}

	for _, name := range q.queueNames() {
		info, err := q.inspector.GetTaskInfo(name, taskID)
		if err != nil {
			continue
		}
		return &TaskStatus{
			TaskID:     taskID,
			Status:     convertAsynqStatus(info.State),
			Error:      info.LastErr,
			FinishedAt: info.CompletedAt,
		}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
}

// CancelTask removes a waiting task, or signals cancellation to a running one.
func (q *AsynqQueue) CancelTask(ctx context.Context, taskID string) error {
	found := false
	for _, name := range q.queueNames() {
		info, err := q.inspector.GetTaskInfo(name, taskID)
		if err != nil {
			continue
		}
		found = true
		if info.State == asynq.TaskStateCompleted {
			return fmt.Errorf("%w: %s", ErrTaskFinished, taskID)
		}
		if info.State == asynq.TaskStateActive {
			if err := q.inspector.CancelProcessing(taskID); err != nil {
				return fmt.Errorf("failed to cancel running task: %w", err)
			}
		} else if err := q.inspector.DeleteTask(name, taskID); err != nil {
			return fmt.Errorf("failed to delete task: %w", err)
		}
		break
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}

	return q.status.Save(ctx, &TaskStatus{
		TaskID:     taskID,
		Status:     StatusCancelled,
		FinishedAt: time.Now(),
	})
}

func (q *AsynqQueue) SaveStatus(ctx context.Context, status *TaskStatus) error {
	return q.status.Save(ctx, status)
}

// Close releases the asynq connections and the status store.
func (q *AsynqQueue) Close() error {
	if err := q.inspector.Close(); err != nil {
		q.logger.Warn("Failed to close inspector", logger.Error(err))
	}
	if err := q.status.Close(); err != nil {
		q.logger.Warn("Failed to close status store", logger.Error(err))
	}
	return q.client.Close()
}

func (q *AsynqQueue) queueNames() []string {
	if len(q.cfg.Queues) == 0 {
		return []string{QueueCritical, QueueDefault, QueueLow}
	}
	names := make([]string, 0, len(q.cfg.Queues))
	for name := range q.cfg.Queues {
		names = append(names, name)
	}
	return names
}

func convertAsynqStatus(state asynq.TaskState) string {
	switch state {
	case asynq.TaskStatePending, asynq.TaskStateScheduled, asynq.TaskStateAggregating:
		return StatusPending
	case asynq.TaskStateActive, asynq.TaskStateRetry:
		return StatusActive
	case asynq.TaskStateCompleted:
		return StatusCompleted
	case asynq.TaskStateArchived:
		return StatusFailed
	default:
		return StatusPending
	}
}
