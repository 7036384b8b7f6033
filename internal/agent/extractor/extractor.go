// Package extractor pulls plain text out of paged documents, trusting the
// embedded text layer when it is long enough and falling back to OCR
// otherwise. Each page yields a diagnostic record; a failing page is
// recorded, never fatal.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/feichai0017/doctext/config"
	"github.com/feichai0017/doctext/internal/agent/document"
	docimage "github.com/feichai0017/doctext/internal/agent/document/image"
	"github.com/feichai0017/doctext/internal/models"
	"github.com/feichai0017/doctext/pkg/logger"
)

// PageSeparator joins the texts of consecutive non-empty pages.
const PageSeparator = "\n\n"

// OpenError reports that the document itself could not be opened.
type OpenError struct {
	Path string
	Err  error
}

func (e *OpenError) Error() string { return e.Err.Error() }

func (e *OpenError) Unwrap() error { return e.Err }

// IsOpenError reports whether err came from opening the document.
func IsOpenError(err error) bool {
	var oe *OpenError
	return errors.As(err, &oe)
}

type Extractor struct {
	opener   document.Opener
	embedded *EmbeddedExtractor
	ocr      *OCR
	workers  int
	logger   logger.Logger
}

type Option func(*options)

type options struct {
	processor ImageProcessor
}

// WithImageProcessor replaces the default OCR image cleanup chain.
func WithImageProcessor(p ImageProcessor) Option {
	return func(o *options) {
		o.processor = p
	}
}

// New wires an extractor. cfg supplies the OCR language, engine mode and the
// number of pages processed concurrently.
func New(opener document.Opener, recognizer docimage.Recognizer, cfg *config.OCRConfig, log logger.Logger, opts ...Option) *Extractor {
	if log == nil {
		log = logger.NewNop()
	}
	if cfg == nil {
		cfg = &config.OCRConfig{
			Language: config.DefaultOCRLanguage,
			Config:   config.DefaultOCRConfig,
			Workers:  1,
		}
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	log = log.Named("extractor")
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	return &Extractor{
		opener:   opener,
		embedded: NewEmbeddedExtractor(log),
		ocr:      NewOCR(recognizer, o.processor, cfg, log),
		workers:  workers,
		logger:   log,
	}
}

// Extract opens the document at path and extracts every page. Only a failure
// to open the document, or a cancelled ctx, is returned as an error.
func (e *Extractor) Extract(ctx context.Context, path string) (*models.ExtractionResult, error) {
	result, _, err := e.extract(ctx, path, false)
	return result, err
}

// ExtractWithMetadata is Extract plus the document information dictionary.
func (e *Extractor) ExtractWithMetadata(ctx context.Context, path string) (*models.ExtractionResult, map[string]string, error) {
	return e.extract(ctx, path, true)
}

func (e *Extractor) extract(ctx context.Context, path string, withMetadata bool) (*models.ExtractionResult, map[string]string, error) {
	start := time.Now()
	log := logger.FromContext(ctx, e.logger).With(logger.String("path", path))

	doc, err := e.opener.Open(path)
	if err != nil {
		log.Error("Failed to open document", logger.Error(err))
		return nil, nil, &OpenError{Path: path, Err: err}
	}
	defer func() {
		if err := doc.Close(); err != nil {
			log.Warn("Failed to close document", logger.Error(err))
		}
	}()

	if doc.Encrypted() {
		if err := doc.Authenticate(""); err != nil {
			// pages that stay unreadable are recorded as page errors
			log.Warn("Empty password rejected", logger.Error(err))
		}
	}

	var metadata map[string]string
	if withMetadata {
		metadata = doc.Metadata()
	}

	outcomes := make([]PageOutcome, doc.NumPage())
	if e.workers > 1 && len(outcomes) > 1 {
		err = e.processConcurrently(ctx, doc, outcomes)
	} else {
		err = e.processSequentially(ctx, doc, outcomes)
	}
	if err != nil {
		log.Warn("Extraction cancelled", logger.Error(err))
		return nil, nil, err
	}

	result := assemble(outcomes)
	counts := result.CountByMethod()
	log.Info("Document extracted",
		logger.Int("pages", len(result.Pages)),
		logger.Int("mupdf", counts[models.MethodMuPDF]),
		logger.Int("ocr", counts[models.MethodOCR]),
		logger.Int("errors", counts[models.MethodError]),
		logger.Int("chars", CharCount(result.Text)),
		logger.Duration("duration", time.Since(start)),
	)
	return result, metadata, nil
}

func (e *Extractor) processSequentially(ctx context.Context, doc document.Document, outcomes []PageOutcome) error {
	for i := range outcomes {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("extraction stopped before page %d: %w", i+1, err)
		}
		outcomes[i] = e.processIndex(ctx, doc, i+1)
	}
	return ctx.Err()
}

// processConcurrently fills outcomes by index, so page order is kept.
func (e *Extractor) processConcurrently(ctx context.Context, doc document.Document, outcomes []PageOutcome) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for i := range outcomes {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[i] = e.processIndex(gctx, doc, i+1)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("extraction stopped: %w", err)
	}
	return ctx.Err()
}

func assemble(outcomes []PageOutcome) *models.ExtractionResult {
	texts := make([]string, 0, len(outcomes))
	pages := make([]models.PageResult, 0, len(outcomes))
	for _, o := range outcomes {
		pages = append(pages, o.Result)
		if o.Text != "" {
			texts = append(texts, o.Text)
		}
	}
	return &models.ExtractionResult{
		Text:  strings.Join(texts, PageSeparator),
		Pages: pages,
	}
}
