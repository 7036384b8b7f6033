package document

import (
	"context"
	"mime/multipart"

	"github.com/feichai0017/doctext/internal/models"
	"github.com/feichai0017/doctext/pkg/converters"
	"github.com/feichai0017/doctext/pkg/queue"
)

type DocumentProcessor interface {
	// ExtractFile runs the extractor synchronously on an upload.
	ExtractFile(ctx context.Context, file multipart.File, header *multipart.FileHeader) (*models.ExtractionResult, error)
	SubmitFile(ctx context.Context, file multipart.File, header *multipart.FileHeader, priority int) (*models.ProcessingTask, error)
	SubmitBatch(ctx context.Context, files []*multipart.FileHeader, priority int) ([]*models.ProcessingTask, error)
	// HandleExtraction is the worker side of SubmitFile.
	HandleExtraction(ctx context.Context, task *queue.Task) error
	GetStatus(ctx context.Context, taskID string) (*models.ProcessingTask, error)
	GetResult(ctx context.Context, taskID string) (*converters.ProcessedDocument, error)
	CancelTask(ctx context.Context, taskID string) error
	CleanupTasks(ctx context.Context) error
	Close() error
}
