package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/feichai0017/doctext/pkg/logger"
	"github.com/feichai0017/doctext/pkg/storage/minio"
	"github.com/feichai0017/doctext/pkg/storage/s3"
)

// StorageType 定义存储类型
type StorageType string

const (
	StorageTypeS3    StorageType = "s3"
	StorageTypeMinio StorageType = "minio"
)

// Storage holds uploaded documents and extraction results by key.
type Storage interface {
	// Store writes reader under key and returns the key.
	Store(ctx context.Context, reader io.Reader, key string) (string, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	// CleanupBefore removes objects last modified before threshold.
	CleanupBefore(ctx context.Context, threshold time.Time) error
}

// Key prefixes used by the extraction service.
const (
	UploadPrefix = "uploads/"
	ResultPrefix = "results/"
)

func UploadKey(taskID, ext string) string {
	return UploadPrefix + taskID + ext
}

func ResultKey(taskID string) string {
	return ResultPrefix + taskID + ".json"
}

// NewStorage 创建存储实例的工厂方法
func NewStorage(ctx context.Context, storageType StorageType, log logger.Logger) (Storage, error) {
	switch storageType {
	case StorageTypeS3:
		return s3.GetClient(ctx, log)
	case StorageTypeMinio:
		return minio.GetClient(ctx, log)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", storageType)
	}
}
