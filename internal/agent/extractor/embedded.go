package extractor

import (
	"fmt"

	"github.com/feichai0017/doctext/internal/agent/document"
	"github.com/feichai0017/doctext/pkg/logger"
)

// MinChars is the normalized length at which embedded text is trusted.
// Shorter pages are assumed to be scans and go to OCR.
const MinChars = 25

// Sufficient reports whether normalized text is long enough to skip OCR.
func Sufficient(text string) bool {
	return CharCount(text) >= MinChars
}

// strategy pulls embedded text from a page one way.
type strategy struct {
	name    string
	extract func(page document.Page) (string, error)
}

func modeStrategy(mode document.TextMode) strategy {
	return strategy{
		name: string(mode),
		extract: func(page document.Page) (string, error) {
			return page.Text(mode)
		},
	}
}

// defaultStrategies is the fixed priority order of embedded text modes.
func defaultStrategies() []strategy {
	return []strategy{
		modeStrategy(document.ModeText),
		modeStrategy(document.ModeBlocks),
		modeStrategy(document.ModeRaw),
	}
}

// EmbeddedExtractor tries each text mode in order and keeps the first
// normalized result that is Sufficient.
type EmbeddedExtractor struct {
	strategies []strategy
	logger     logger.Logger
}

func NewEmbeddedExtractor(log logger.Logger) *EmbeddedExtractor {
	if log == nil {
		log = logger.NewNop()
	}
	return &EmbeddedExtractor{
		strategies: defaultStrategies(),
		logger:     log,
	}
}

// Extract returns the first sufficient text, or "" when every mode came up
// short or failed. A failing mode is skipped.
func (e *EmbeddedExtractor) Extract(page document.Page, index int) string {
	for _, s := range e.strategies {
		text, err := safeExtract(s, page)
		if err != nil {
			e.logger.Debug("Text mode skipped",
				logger.Int("page", index),
				logger.String("mode", s.name),
				logger.Error(err),
			)
			continue
		}
		text = Normalize(text)
		if Sufficient(text) {
			e.logger.Debug("Embedded text accepted",
				logger.Int("page", index),
				logger.String("mode", s.name),
				logger.Int("chars", CharCount(text)),
			)
			return text
		}
	}
	return ""
}

func safeExtract(s strategy, page document.Page) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("text mode %s panicked: %v", s.name, r)
		}
	}()
	return s.extract(page)
}
