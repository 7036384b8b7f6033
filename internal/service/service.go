// Package service assembles the document service from application config.
package service

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/feichai0017/doctext/config"
	"github.com/feichai0017/doctext/internal/agent"
	"github.com/feichai0017/doctext/internal/service/document"
	"github.com/feichai0017/doctext/pkg/logger"
	"github.com/feichai0017/doctext/pkg/queue"
	"github.com/feichai0017/doctext/pkg/storage"
)

// NewDocumentService connects storage, redis and the OCR engine named in cfg.
func NewDocumentService(ctx context.Context, cfg *config.AppConfig, log logger.Logger) (document.DocumentProcessor, error) {
	ext, err := agent.NewExtractor(ctx, &cfg.OCR, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize extractor: %w", err)
	}

	store, err := storage.NewStorage(ctx, storage.StorageType(cfg.Storage.Type), log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.Queue.RedisAddr,
		DB:   cfg.Queue.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	q := queue.NewAsynqQueue(cfg.Queue, queue.NewStatusStore(rdb, cfg.Service.StatusTTL), log)
	return document.NewService(ext, q, store, log, &cfg.Service), nil
}
