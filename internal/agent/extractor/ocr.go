package extractor

import (
	"context"
	"fmt"
	"image"

	"github.com/feichai0017/doctext/config"
	"github.com/feichai0017/doctext/internal/agent/document"
	docimage "github.com/feichai0017/doctext/internal/agent/document/image"
	"github.com/feichai0017/doctext/pkg/logger"
)

// OCRScale is the render upscale factor for OCR, 384 DPI from the 96 DPI baseline.
const OCRScale = 4

// ImageProcessor cleans a rendered page before recognition.
type ImageProcessor interface {
	Process(img image.Image) (image.Image, error)
}

// OCR renders a page, cleans the bitmap and runs the recognizer on it.
type OCR struct {
	processor  ImageProcessor
	recognizer docimage.Recognizer
	options    docimage.RecognizeOptions
	// configErr is set when cfg.Config does not parse; only OCR pages fail.
	configErr error
	logger    logger.Logger
}

// NewOCR binds a recognizer to the language and engine mode in cfg. A nil
// processor selects the default grayscale, autocontrast, median chain.
func NewOCR(recognizer docimage.Recognizer, processor ImageProcessor, cfg *config.OCRConfig, log logger.Logger) *OCR {
	if log == nil {
		log = logger.NewNop()
	}
	if processor == nil {
		processor = docimage.NewProcessor(log)
	}
	var configErr error
	if _, err := docimage.ParseEngineConfig(cfg.Config); err != nil {
		configErr = fmt.Errorf("invalid OCR_CONFIG: %w", err)
		log.Warn("OCR engine config rejected, pages that need OCR will fail",
			logger.String("config", cfg.Config),
			logger.Error(err),
		)
	}
	return &OCR{
		processor:  processor,
		recognizer: recognizer,
		options: docimage.RecognizeOptions{
			Language: cfg.Language,
			Config:   cfg.Config,
			DPI:      int(document.BaseDPI * OCRScale),
		},
		configErr: configErr,
		logger:    log,
	}
}

// Recognize returns the normalized OCR text of page. Errors are returned
// unretried.
func (o *OCR) Recognize(ctx context.Context, page document.Page) (string, error) {
	if o.configErr != nil {
		return "", o.configErr
	}
	img, err := page.Render(OCRScale)
	if err != nil {
		return "", fmt.Errorf("failed to render page: %w", err)
	}

	clean, err := o.processor.Process(img)
	if err != nil {
		return "", fmt.Errorf("failed to preprocess page: %w", err)
	}

	text, err := o.recognizer.Recognize(ctx, clean, o.options)
	if err != nil {
		return "", fmt.Errorf("ocr failed: %w", err)
	}
	return Normalize(text), nil
}
