package config

import (
	"fmt"
	"sync"
)

const (
	DefaultOCRLanguage = "eng"
	// DefaultOCRConfig selects tesseract's "single uniform block of text"
	// page segmentation.
	DefaultOCRConfig = "--psm 6"
	DefaultOCREngine = "tesseract"
)

var (
	ocrOnce   sync.Once
	ocrConfig *OCRConfig
)

// OCRConfig holds the options that only affect the OCR step.
type OCRConfig struct {
	Language string `yaml:"language"`
	Config   string `yaml:"config"`
	Engine   string `yaml:"engine"`
	// Workers > 1 processes pages concurrently.
	Workers int `yaml:"workers"`
}

// GetOCRConfig returns the process-wide OCR configuration read from the
// environment (OCR_LANG, OCR_CONFIG, OCR_ENGINE, OCR_WORKERS).
func GetOCRConfig() *OCRConfig {
	ocrOnce.Do(func() {
		loadEnv()
		ocrConfig = LoadOCRConfig()
	})
	return ocrConfig
}

// LoadOCRConfig reads the OCR configuration from the current environment
// without caching.
func LoadOCRConfig() *OCRConfig {
	return &OCRConfig{
		Language: getString("OCR_LANG", DefaultOCRLanguage),
		Config:   getString("OCR_CONFIG", DefaultOCRConfig),
		Engine:   getString("OCR_ENGINE", DefaultOCREngine),
		Workers:  getInt("OCR_WORKERS", 1),
	}
}

// Validate checks the engine name and worker count.
func (c *OCRConfig) Validate() error {
	switch c.Engine {
	case "tesseract", "textract":
	default:
		return fmt.Errorf("unsupported OCR engine: %q", c.Engine)
	}
	if c.Workers < 1 {
		return fmt.Errorf("OCR workers must be at least 1, got %d", c.Workers)
	}
	if c.Language == "" {
		return fmt.Errorf("OCR language must not be empty")
	}
	return nil
}
