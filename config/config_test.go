package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOCRConfig(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want OCRConfig
	}{
		{
			name: "defaults",
			env:  map[string]string{},
			want: OCRConfig{Language: "eng", Config: "--psm 6", Engine: "tesseract", Workers: 1},
		},
		{
			name: "overrides",
			env: map[string]string{
				"OCR_LANG":    "deu+eng",
				"OCR_CONFIG":  "--psm 4",
				"OCR_ENGINE":  "textract",
				"OCR_WORKERS": "4",
			},
			want: OCRConfig{Language: "deu+eng", Config: "--psm 4", Engine: "textract", Workers: 4},
		},
		{
			name: "bad worker count falls back",
			env:  map[string]string{"OCR_WORKERS": "many"},
			want: OCRConfig{Language: "eng", Config: "--psm 6", Engine: "tesseract", Workers: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range []string{"OCR_LANG", "OCR_CONFIG", "OCR_ENGINE", "OCR_WORKERS"} {
				t.Setenv(k, "")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			assert.Equal(t, tt.want, *LoadOCRConfig())
		})
	}
}

func TestOCRConfigValidate(t *testing.T) {
	ok := OCRConfig{Language: "eng", Config: "--psm 6", Engine: "tesseract", Workers: 1}
	require.NoError(t, ok.Validate())

	badEngine := ok
	badEngine.Engine = "magic"
	assert.Error(t, badEngine.Validate())

	badWorkers := ok
	badWorkers.Workers = 0
	assert.Error(t, badWorkers.Validate())

	noLang := ok
	noLang.Language = ""
	assert.Error(t, noLang.Validate())
}

func TestLoadAppConfigFromYAML(t *testing.T) {
	for _, k := range []string{"SERVER_ADDR", "REDIS_ADDR", "REDIS_DB", "WORKER_CONCURRENCY", "STORAGE_TYPE", "OCR_LANG", "OCR_CONFIG", "OCR_ENGINE", "OCR_WORKERS", "LOG_LEVEL"} {
		t.Setenv(k, "")
	}
	t.Setenv("REDIS_ADDR", "redis:6380")

	path := filepath.Join(t.TempDir(), "doctext.yaml")
	yml := `
server:
  addr: ":9090"
storage:
  type: s3
ocr:
  language: fra
  workers: 2
service:
  retentionPeriod: 2h
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0644))

	cfg, err := LoadAppConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "s3", cfg.Storage.Type)
	assert.Equal(t, "fra", cfg.OCR.Language)
	assert.Equal(t, "--psm 6", cfg.OCR.Config)
	assert.Equal(t, 2, cfg.OCR.Workers)
	assert.Equal(t, 2*time.Hour, cfg.Service.RetentionPeriod)
	assert.Equal(t, "redis:6380", cfg.Queue.RedisAddr)
}

func TestLoadAppConfigRejectsUnknownStorage(t *testing.T) {
	t.Setenv("STORAGE_TYPE", "ftp")
	_, err := LoadAppConfig("")
	assert.Error(t, err)
}

func TestLoadAppConfigMissingFile(t *testing.T) {
	_, err := LoadAppConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
