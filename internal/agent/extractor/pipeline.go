package extractor

import (
	"context"
	"fmt"

	"github.com/feichai0017/doctext/internal/agent/document"
	"github.com/feichai0017/doctext/internal/models"
	"github.com/feichai0017/doctext/pkg/logger"
)

// PageOutcome is the result of one page: either text with its diagnostic,
// or a failure recorded as method "error".
type PageOutcome struct {
	Text   string
	Result models.PageResult
	Err    error
}

// Failed reports whether the page was downgraded to an error record.
func (o PageOutcome) Failed() bool {
	return o.Err != nil
}

func succeeded(index int, method models.Method, text string) PageOutcome {
	return PageOutcome{
		Text:   text,
		Result: models.PageResult{Page: index, Method: method, Chars: CharCount(text)},
	}
}

func failed(index int, err error) PageOutcome {
	return PageOutcome{
		Result: models.PageResult{Page: index, Method: models.MethodError, Chars: 0},
		Err:    err,
	}
}

// ProcessPage decides between embedded text and OCR for one page. It never
// fails; problems are carried in the outcome.
func (e *Extractor) ProcessPage(ctx context.Context, page document.Page, index int) (outcome PageOutcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = failed(index, fmt.Errorf("page %d panicked: %v", index, r))
		}
	}()

	if text := e.embedded.Extract(page, index); Sufficient(text) {
		return succeeded(index, models.MethodMuPDF, text)
	}

	text, err := e.ocr.Recognize(ctx, page)
	if err != nil {
		return failed(index, err)
	}
	return succeeded(index, models.MethodOCR, text)
}

// processIndex fetches and processes the page at index.
func (e *Extractor) processIndex(ctx context.Context, doc document.Document, index int) PageOutcome {
	log := e.logger.With(logger.Int("page", index))

	page, err := doc.Page(index)
	if err != nil {
		log.Warn("Page unavailable", logger.Error(err))
		return failed(index, err)
	}

	outcome := e.ProcessPage(ctx, page, index)
	if outcome.Failed() {
		log.Warn("Page extraction failed", logger.Error(outcome.Err))
	} else {
		log.Debug("Page extracted",
			logger.String("method", string(outcome.Result.Method)),
			logger.Int("chars", outcome.Result.Chars),
		)
	}
	return outcome
}
