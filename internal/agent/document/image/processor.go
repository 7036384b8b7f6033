package image

import (
	"fmt"
	"image"
	"time"

	"github.com/feichai0017/doctext/pkg/logger"
)

// Processor runs a fixed chain of preprocessors over a rendered page.
type Processor struct {
	logger        logger.Logger
	preprocessors []Preprocessor
}

// NewProcessor builds a processor running preprocessors in order. With no
// preprocessors the default OCR cleanup chain is used.
func NewProcessor(log logger.Logger, preprocessors ...Preprocessor) *Processor {
	if log == nil {
		log = logger.NewNop()
	}
	if len(preprocessors) == 0 {
		preprocessors = DefaultPreprocessors()
	}
	return &Processor{
		logger:        log.Named("preprocess"),
		preprocessors: preprocessors,
	}
}

// DefaultPreprocessors is grayscale, autocontrast, then a 3x3 median filter.
func DefaultPreprocessors() []Preprocessor {
	return []Preprocessor{
		NewGrayscaleProcessor(),
		NewAutoContrastProcessor(),
		NewMedianProcessor(MedianKernel),
	}
}

// Steps lists the preprocessor names in execution order.
func (p *Processor) Steps() []string {
	names := make([]string, len(p.preprocessors))
	for i, pp := range p.preprocessors {
		names[i] = pp.Name()
	}
	return names
}

// 应用预处理管道
func (p *Processor) Process(img image.Image) (image.Image, error) {
	if img == nil {
		return nil, fmt.Errorf("input image is nil")
	}

	start := time.Now()
	result := img
	for _, pp := range p.preprocessors {
		var err error
		result, err = pp.Process(result)
		if err != nil {
			return nil, fmt.Errorf("preprocessing step %s failed: %w", pp.Name(), err)
		}
		if result == nil {
			return nil, fmt.Errorf("preprocessing step %s returned nil image", pp.Name())
		}
	}

	p.logger.Debug("Image preprocessed",
		logger.Int("width", result.Bounds().Dx()),
		logger.Int("height", result.Bounds().Dy()),
		logger.Duration("duration", time.Since(start)),
	)
	return result, nil
}
