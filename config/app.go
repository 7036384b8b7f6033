package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/feichai0017/doctext/pkg/logger"
)

// AppConfig configures the long-running server and worker binaries. The CLI
// only needs OCRConfig.
type AppConfig struct {
	Server  ServerConfig  `yaml:"server"`
	Queue   QueueConfig   `yaml:"queue"`
	Storage StorageConfig `yaml:"storage"`
	Service ServiceConfig `yaml:"service"`
	OCR     OCRConfig     `yaml:"ocr"`
	Logger  logger.Config `yaml:"logger"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

type QueueConfig struct {
	RedisAddr      string         `yaml:"redisAddr"`
	RedisDB        int            `yaml:"redisDB"`
	MaxRetries     int            `yaml:"maxRetries"`
	RetryDelay     time.Duration  `yaml:"retryDelay"`
	ProcessTimeout time.Duration  `yaml:"processTimeout"`
	Retention      time.Duration  `yaml:"retention"`
	Concurrency    int            `yaml:"concurrency"`
	Queues         map[string]int `yaml:"queues"`
}

type StorageConfig struct {
	// Type is "s3" or "minio".
	Type string `yaml:"type"`
}

type ServiceConfig struct {
	MaxFileSize     int64         `yaml:"maxFileSize"`
	AllowedTypes    []string      `yaml:"allowedTypes"`
	RetentionPeriod time.Duration `yaml:"retentionPeriod"`
	StatusTTL       time.Duration `yaml:"statusTTL"`
}

// DefaultAppConfig returns the built-in defaults.
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 5 * time.Second,
		},
		Queue: QueueConfig{
			RedisAddr:      "localhost:6379",
			MaxRetries:     3,
			RetryDelay:     time.Minute,
			ProcessTimeout: 30 * time.Minute,
			Retention:      24 * time.Hour,
			Concurrency:    5,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
		},
		Storage: StorageConfig{Type: "minio"},
		Service: ServiceConfig{
			MaxFileSize:     50 * 1024 * 1024, // 50MB
			AllowedTypes:    []string{".pdf", ".xps", ".epub", ".cbz"},
			RetentionPeriod: 24 * time.Hour,
			StatusTTL:       24 * time.Hour,
		},
		OCR: OCRConfig{
			Language: DefaultOCRLanguage,
			Config:   DefaultOCRConfig,
			Engine:   DefaultOCREngine,
			Workers:  1,
		},
		Logger: logger.Config{
			Level:    "info",
			Encoding: "json",
		},
	}
}

// LoadAppConfig reads defaults, then the YAML file at path (if any), then
// environment overrides.
func LoadAppConfig(path string) (*AppConfig, error) {
	loadEnv()
	cfg := DefaultAppConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.OCR.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Storage.Type {
	case "s3", "minio":
	default:
		return nil, fmt.Errorf("unsupported storage type: %q", cfg.Storage.Type)
	}
	return cfg, nil
}

func (c *AppConfig) applyEnv() {
	c.Server.Addr = getString("SERVER_ADDR", c.Server.Addr)
	c.Queue.RedisAddr = getString("REDIS_ADDR", c.Queue.RedisAddr)
	c.Queue.RedisDB = getInt("REDIS_DB", c.Queue.RedisDB)
	c.Queue.Concurrency = getInt("WORKER_CONCURRENCY", c.Queue.Concurrency)
	c.Storage.Type = getString("STORAGE_TYPE", c.Storage.Type)
	c.OCR.Language = getString("OCR_LANG", c.OCR.Language)
	c.OCR.Config = getString("OCR_CONFIG", c.OCR.Config)
	c.OCR.Engine = getString("OCR_ENGINE", c.OCR.Engine)
	c.OCR.Workers = getInt("OCR_WORKERS", c.OCR.Workers)
	c.Logger.Level = getString("LOG_LEVEL", c.Logger.Level)
}
