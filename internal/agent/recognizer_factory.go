package agent

import (
	"context"
	"fmt"

	cfg "github.com/feichai0017/doctext/config"
	"github.com/feichai0017/doctext/internal/agent/document"
	"github.com/feichai0017/doctext/internal/agent/document/image"
	"github.com/feichai0017/doctext/internal/agent/document/image/tesseract"
	"github.com/feichai0017/doctext/internal/agent/document/pdf"
	"github.com/feichai0017/doctext/internal/agent/document/pdf/mupdf"
	"github.com/feichai0017/doctext/internal/agent/extractor"
	"github.com/feichai0017/doctext/pkg/logger"
)

// textractMinConfidence drops Textract lines below this confidence.
const textractMinConfidence = 80.0

// NewRecognizer returns the OCR engine selected by ocrCfg.Engine. The engine
// mode string is checked by the OCR step, so only pages that need OCR see a
// bad OCR_CONFIG.
func NewRecognizer(ctx context.Context, ocrCfg *cfg.OCRConfig, log logger.Logger) (image.Recognizer, error) {
	if log == nil {
		log = logger.NewNop()
	}
	if err := ocrCfg.Validate(); err != nil {
		return nil, err
	}

	log.Info("Creating recognizer",
		logger.String("engine", ocrCfg.Engine),
		logger.String("language", ocrCfg.Language),
		logger.String("config", ocrCfg.Config),
	)

	switch ocrCfg.Engine {
	case "tesseract":
		return tesseract.NewRecognizer(log), nil
	case "textract":
		textractCfg := cfg.GetTextractConfig()
		r, err := image.NewTextractRecognizer(ctx, &image.TextractConfig{
			Region:        textractCfg.Region,
			Endpoint:      textractCfg.Endpoint,
			AccessKey:     textractCfg.AccessKey,
			SecretKey:     textractCfg.SecretKey,
			MinConfidence: textractMinConfidence,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create textract recognizer: %w", err)
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unsupported OCR engine: %s", ocrCfg.Engine)
	}
}

// NewOpener returns the MuPDF backed document engine.
func NewOpener(log logger.Logger) document.Opener {
	return pdf.NewEngine(log, mupdf.Open)
}

// NewExtractor wires the document engine, the configured recognizer and the
// default image cleanup into an extractor.
func NewExtractor(ctx context.Context, ocrCfg *cfg.OCRConfig, log logger.Logger) (*extractor.Extractor, error) {
	recognizer, err := NewRecognizer(ctx, ocrCfg, log)
	if err != nil {
		return nil, err
	}
	return extractor.New(NewOpener(log), recognizer, ocrCfg, log), nil
}
