// Package tesseract binds the OCR recognizer to libtesseract through
// gosseract. It is the only package in the module that needs cgo for OCR.
package tesseract

import (
	"context"
	"fmt"
	"image"
	"strconv"

	"github.com/otiai10/gosseract/v2"

	docimage "github.com/feichai0017/doctext/internal/agent/document/image"
	"github.com/feichai0017/doctext/pkg/logger"
)

type Recognizer struct {
	logger logger.Logger
}

func NewRecognizer(log logger.Logger) *Recognizer {
	if log == nil {
		log = logger.NewNop()
	}
	return &Recognizer{logger: log.Named("tesseract")}
}

// Recognize creates a fresh client per call; gosseract clients are not safe
// for concurrent use.
func (r *Recognizer) Recognize(ctx context.Context, img image.Image, opts docimage.RecognizeOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	engineCfg, err := docimage.ParseEngineConfig(opts.Config)
	if err != nil {
		return "", err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if langs := opts.Languages(); len(langs) > 0 {
		if err := client.SetLanguage(langs...); err != nil {
			return "", fmt.Errorf("failed to set language: %w", err)
		}
	}

	if engineCfg.PageSegMode >= 0 {
		if err := client.SetPageSegMode(gosseract.PageSegMode(engineCfg.PageSegMode)); err != nil {
			return "", fmt.Errorf("failed to set page segmentation mode: %w", err)
		}
	}

	// gosseract does not expose the engine mode, --oem is accepted and ignored
	if engineCfg.EngineMode >= 0 {
		r.logger.Debug("Ignoring OCR engine mode", logger.Int("oem", engineCfg.EngineMode))
	}

	if _, ok := engineCfg.Variables["user_defined_dpi"]; !ok && opts.DPI > 0 {
		engineCfg.Variables["user_defined_dpi"] = strconv.Itoa(opts.DPI)
	}
	for k, v := range engineCfg.Variables {
		if err := client.SetVariable(gosseract.SettableVariable(k), v); err != nil {
			return "", fmt.Errorf("failed to set variable %s: %w", k, err)
		}
	}

	data, err := docimage.EncodePNG(img)
	if err != nil {
		return "", err
	}
	if err := client.SetImageFromBytes(data); err != nil {
		return "", fmt.Errorf("failed to set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("failed to get text: %w", err)
	}

	r.logger.Debug("OCR finished",
		logger.String("language", opts.Language),
		logger.Int("psm", engineCfg.PageSegMode),
		logger.Int("length", len(text)),
	)
	return text, nil
}
