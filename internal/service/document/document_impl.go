package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/feichai0017/doctext/config"
	"github.com/feichai0017/doctext/internal/models"
	"github.com/feichai0017/doctext/internal/utils/validator"
	"github.com/feichai0017/doctext/pkg/converters"
	"github.com/feichai0017/doctext/pkg/logger"
	"github.com/feichai0017/doctext/pkg/queue"
	"github.com/feichai0017/doctext/pkg/storage"
)

var (
	ErrNotCompleted = errors.New("task is not completed")
	ErrInvalidTask  = errors.New("invalid task")
)

// InvalidFileError carries the reasons an upload was rejected.
type InvalidFileError struct {
	Filename string
	Errors   []validator.ValidationError
}

func (e *InvalidFileError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, ve := range e.Errors {
		msgs[i] = ve.Message
	}
	return fmt.Sprintf("invalid file %s: %s", e.Filename, strings.Join(msgs, "; "))
}

// Extractor is the text extraction core as seen by the service.
type Extractor interface {
	ExtractWithMetadata(ctx context.Context, path string) (*models.ExtractionResult, map[string]string, error)
}

type DocumentService struct {
	extractor Extractor
	queue     queue.Queue
	storage   storage.Storage
	validator *validator.DocumentValidator
	converter *converters.JSONConverter
	logger    logger.Logger
	config    *config.ServiceConfig
}

// NewService wires the service. queue and store may be nil when only
// ExtractFile is used.
func NewService(
	ext Extractor,
	q queue.Queue,
	store storage.Storage,
	log logger.Logger,
	cfg *config.ServiceConfig,
) DocumentProcessor {
	if log == nil {
		log = logger.NewNop()
	}
	if cfg == nil {
		cfg = &config.DefaultAppConfig().Service
	}
	return &DocumentService{
		extractor: ext,
		queue:     q,
		storage:   store,
		validator: validator.NewDocumentValidator(log, validator.NewValidatorConfig(cfg.MaxFileSize, cfg.AllowedTypes)),
		converter: converters.NewJSONConverter(),
		logger:    log.Named("service"),
		config:    cfg,
	}
}

func (s *DocumentService) ExtractFile(ctx context.Context, file multipart.File, header *multipart.FileHeader) (*models.ExtractionResult, error) {
	info, err := s.validateFile(file, header.Filename, header.Size)
	if err != nil {
		return nil, err
	}

	path, cleanup, err := writeTemp(file, info.Extension)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	result, _, err := s.extractor.ExtractWithMetadata(ctx, path)
	if err != nil {
		return nil, err
	}

	s.logger.Info("File extracted",
		logger.String("filename", header.Filename),
		logger.Int("pages", len(result.Pages)),
	)
	return result, nil
}

func (s *DocumentService) SubmitFile(
	ctx context.Context,
	file multipart.File,
	header *multipart.FileHeader,
	priority int,
) (*models.ProcessingTask, error) {
	info, err := s.validateFile(file, header.Filename, header.Size)
	if err != nil {
		return nil, err
	}

	taskID := uuid.New().String()
	log := logger.FromContext(logger.WithTaskID(ctx, taskID), s.logger)

	fileKey, err := s.storage.Store(ctx, file, storage.UploadKey(taskID, info.Extension))
	if err != nil {
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	task, err := queue.NewTask(taskID, queue.TaskTypeDocumentExtract, priority, queue.ExtractPayload{
		FileKey:  fileKey,
		Filename: header.Filename,
		Size:     header.Size,
		MimeType: info.MimeType,
	})
	if err != nil {
		return nil, err
	}
	task.Metadata["filename"] = header.Filename
	task.Metadata["size"] = strconv.FormatInt(header.Size, 10)
	task.Metadata["type"] = info.Extension
	task.Metadata["hash"] = info.Hash

	if err := s.queue.Enqueue(ctx, task); err != nil {
		if delErr := s.storage.Delete(ctx, fileKey); delErr != nil {
			log.Warn("Failed to remove orphaned upload", logger.Error(delErr))
		}
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	if err := s.queue.SaveStatus(ctx, &queue.TaskStatus{
		TaskID:    taskID,
		Status:    queue.StatusPending,
		StartedAt: task.CreatedAt,
	}); err != nil {
		log.Error("Failed to save initial status", logger.Error(err))
	}

	log.Info("Extraction task created", logger.String("filename", header.Filename))

	return &models.ProcessingTask{
		ID:        taskID,
		Status:    models.StatusPending,
		Type:      task.Type,
		Priority:  priority,
		Metadata:  task.Metadata,
		CreatedAt: task.CreatedAt,
		UpdatedAt: task.CreatedAt,
	}, nil
}

// SubmitBatch submits every file; the returned tasks keep the input order.
// A batch is all or nothing: when one file fails, the tasks already
// enqueued are cancelled and their uploads removed.
func (s *DocumentService) SubmitBatch(ctx context.Context, files []*multipart.FileHeader, priority int) ([]*models.ProcessingTask, error) {
	tasks := make([]*models.ProcessingTask, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, header := range files {
		g.Go(func() error {
			file, err := header.Open()
			if err != nil {
				return fmt.Errorf("failed to open file %s: %w", header.Filename, err)
			}
			defer file.Close()

			task, err := s.SubmitFile(gctx, file, header, priority)
			if err != nil {
				return fmt.Errorf("failed to submit file %s: %w", header.Filename, err)
			}
			tasks[i] = task
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.rollback(ctx, compact(tasks))
		return nil, err
	}
	return tasks, nil
}

func (s *DocumentService) rollback(ctx context.Context, tasks []*models.ProcessingTask) {
	for _, task := range tasks {
		log := logger.FromContext(logger.WithTaskID(ctx, task.ID), s.logger)
		if err := s.queue.CancelTask(ctx, task.ID); err != nil {
			log.Warn("Failed to cancel batch task", logger.Error(err))
		}
		if err := s.storage.Delete(ctx, storage.UploadKey(task.ID, task.Metadata["type"])); err != nil {
			log.Warn("Failed to remove batch upload", logger.Error(err))
		}
	}
	if len(tasks) > 0 {
		s.logger.Info("Batch rolled back", logger.Int("tasks", len(tasks)))
	}
}

func (s *DocumentService) HandleExtraction(ctx context.Context, task *queue.Task) error {
	if task == nil || task.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidTask)
	}
	var payload queue.ExtractPayload
	if err := task.Decode(&payload); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTask, err)
	}
	if payload.FileKey == "" {
		return fmt.Errorf("%w: missing file key", ErrInvalidTask)
	}

	ctx = logger.WithTaskID(ctx, task.ID)
	log := logger.FromContext(ctx, s.logger)
	start := time.Now()

	s.saveStatus(ctx, &queue.TaskStatus{
		TaskID:    task.ID,
		Status:    queue.StatusActive,
		StartedAt: start,
	})

	doc, resultKey, err := s.processStored(ctx, task.ID, payload)
	if err != nil {
		s.saveStatus(ctx, &queue.TaskStatus{
			TaskID:     task.ID,
			Status:     queue.StatusFailed,
			Error:      err.Error(),
			StartedAt:  start,
			FinishedAt: time.Now(),
		})
		return err
	}

	s.saveStatus(ctx, &queue.TaskStatus{
		TaskID:     task.ID,
		Status:     queue.StatusCompleted,
		Progress:   1,
		ResultKey:  resultKey,
		Pages:      doc.Metadata.PageCount,
		StartedAt:  start,
		FinishedAt: time.Now(),
	})

	log.Info("Extraction task completed",
		logger.Int("pages", doc.Metadata.PageCount),
		logger.Duration("duration", time.Since(start)),
	)
	return nil
}

// processStored extracts the uploaded file and stores the encoded result.
func (s *DocumentService) processStored(ctx context.Context, taskID string, payload queue.ExtractPayload) (*converters.ProcessedDocument, string, error) {
	doc, err := s.extractStored(ctx, taskID, payload)
	if err != nil {
		return nil, "", err
	}

	var buf bytes.Buffer
	if err := s.converter.Encode(&buf, doc); err != nil {
		return nil, "", fmt.Errorf("failed to encode result: %w", err)
	}
	resultKey, err := s.storage.Store(ctx, &buf, storage.ResultKey(taskID))
	if err != nil {
		return nil, "", fmt.Errorf("failed to store result: %w", err)
	}
	return doc, resultKey, nil
}

func (s *DocumentService) extractStored(ctx context.Context, taskID string, payload queue.ExtractPayload) (*converters.ProcessedDocument, error) {
	start := time.Now()

	reader, err := s.storage.Get(ctx, payload.FileKey)
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	defer reader.Close()

	path, cleanup, err := writeTemp(reader, strings.ToLower(filepath.Ext(payload.Filename)))
	if err != nil {
		return nil, err
	}
	defer cleanup()

	result, info, err := s.extractor.ExtractWithMetadata(ctx, path)
	if err != nil {
		return nil, err
	}

	doc, err := s.converter.Convert(result, converters.DocumentMetadata{
		FileName:     payload.Filename,
		FileType:     payload.MimeType,
		FileSize:     payload.Size,
		Info:         info,
		ProcessingMs: time.Since(start).Milliseconds(),
	})
	if err != nil {
		return nil, err
	}
	doc.TaskID = taskID
	return doc, nil
}

func (s *DocumentService) GetStatus(ctx context.Context, taskID string) (*models.ProcessingTask, error) {
	status, err := s.queue.GetTaskStatus(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to get task status: %w", err)
	}

	task := &models.ProcessingTask{
		ID:        status.TaskID,
		Status:    convertStatus(status.Status),
		Type:      queue.TaskTypeDocumentExtract,
		Progress:  status.Progress,
		Error:     status.Error,
		Metadata:  make(map[string]string),
		CreatedAt: status.StartedAt,
		UpdatedAt: status.FinishedAt,
	}
	if status.Pages > 0 {
		task.Metadata["pages"] = strconv.Itoa(status.Pages)
	}
	return task, nil
}

func convertStatus(status string) models.ProcessingStatus {
	switch status {
	case queue.StatusActive:
		return models.StatusRunning
	case queue.StatusCompleted:
		return models.StatusCompleted
	case queue.StatusFailed:
		return models.StatusFailed
	case queue.StatusCancelled:
		return models.StatusCancelled
	default:
		return models.StatusPending
	}
}

func (s *DocumentService) GetResult(ctx context.Context, taskID string) (*converters.ProcessedDocument, error) {
	status, err := s.queue.GetTaskStatus(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to get task status: %w", err)
	}
	if status.Status != queue.StatusCompleted {
		return nil, fmt.Errorf("%w: %s", ErrNotCompleted, status.Status)
	}

	key := status.ResultKey
	if key == "" {
		key = storage.ResultKey(taskID)
	}
	reader, err := s.storage.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to get result: %w", err)
	}
	defer reader.Close()

	return s.converter.Decode(reader)
}

func (s *DocumentService) CancelTask(ctx context.Context, taskID string) error {
	if err := s.queue.CancelTask(ctx, taskID); err != nil {
		return fmt.Errorf("failed to cancel task: %w", err)
	}
	s.logger.Info("Task cancelled", logger.String("taskId", taskID))
	return nil
}

// CleanupTasks removes uploads and results older than the retention period.
func (s *DocumentService) CleanupTasks(ctx context.Context) error {
	threshold := time.Now().Add(-s.config.RetentionPeriod)
	if err := s.storage.CleanupBefore(ctx, threshold); err != nil {
		return fmt.Errorf("failed to cleanup storage: %w", err)
	}
	return nil
}

func (s *DocumentService) Close() error {
	if s.queue == nil {
		return nil
	}
	return s.queue.Close()
}

func (s *DocumentService) validateFile(file io.ReadSeeker, filename string, size int64) (*validator.FileInfo, error) {
	result, err := s.validator.Validate(file, filename, size)
	if err != nil {
		return nil, fmt.Errorf("failed to validate file: %w", err)
	}
	if !result.IsValid {
		return nil, &InvalidFileError{Filename: filename, Errors: result.Errors}
	}
	return &result.FileInfo, nil
}

func (s *DocumentService) saveStatus(ctx context.Context, status *queue.TaskStatus) {
	if err := s.queue.SaveStatus(ctx, status); err != nil {
		logger.FromContext(ctx, s.logger).Error("Failed to save status",
			logger.String("status", status.Status),
			logger.Error(err),
		)
	}
}

// writeTemp copies r into a temporary file. The caller must run cleanup.
func writeTemp(r io.Reader, ext string) (string, func(), error) {
	f, err := os.CreateTemp("", "doctext-*"+ext)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	cleanup := func() { os.Remove(f.Name()) }

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		cleanup()
		return "", nil, fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to write temp file: %w", err)
	}
	return f.Name(), cleanup, nil
}

func compact(tasks []*models.ProcessingTask) []*models.ProcessingTask {
	out := make([]*models.ProcessingTask, 0, len(tasks))
	for _, t := range tasks {
		if t != nil {
			out = append(out, t)
		}
	}
	return out
}
