// Package pdf is the document engine. Text comes from MuPDF through a
// Rasterizer when one is configured, and from ledongthuc/pdf otherwise; the
// "blocks" and "raw" modes and password handling always use ledongthuc/pdf.
package pdf

import (
	"errors"
	"fmt"
	"image"
	"os"
	"sync"

	"github.com/ledongthuc/pdf"

	"github.com/feichai0017/doctext/internal/agent/document"
	"github.com/feichai0017/doctext/pkg/logger"
)

// ErrRenderUnavailable is returned by Page.Render when no rasterizer is configured.
var ErrRenderUnavailable = errors.New("page rendering not available")

// Rasterizer is the MuPDF side of a document. Indexes are 0-based.
type Rasterizer interface {
	NumPage() int
	Text(index int) (string, error)
	Render(index int, dpi float64) (image.Image, error)
	Metadata() map[string]string
	Close()
}

// RasterOpener opens a rasterizer over the file contents. It returns
// document.ErrDocumentLocked when the file needs a password.
type RasterOpener func(data []byte) (Rasterizer, error)

type Engine struct {
	logger     logger.Logger
	openRaster RasterOpener
}

// NewEngine returns an engine. With a nil openRaster pages cannot be rendered
// and only PDF input is accepted.
func NewEngine(log logger.Logger, openRaster RasterOpener) *Engine {
	if log == nil {
		log = logger.NewNop()
	}
	return &Engine{
		logger:     log.Named("pdf"),
		openRaster: openRaster,
	}
}

func (e *Engine) Open(path string) (document.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}

	doc := &Document{
		logger: e.logger.With(logger.String("path", path)),
		data:   data,
	}

	reader, readerErr := openReader(data, "")
	if readerErr == nil {
		doc.reader = reader
	}

	if e.openRaster != nil {
		raster, err := e.openRaster(data)
		switch {
		case errors.Is(err, document.ErrDocumentLocked):
			doc.locked = true
		case err != nil:
			return nil, fmt.Errorf("failed to open document: %w", err)
		default:
			doc.raster = raster
		}
	} else if readerErr != nil {
		if !errors.Is(readerErr, pdf.ErrInvalidPassword) {
			return nil, fmt.Errorf("failed to open document: %w", readerErr)
		}
		doc.locked = true
	}

	if doc.locked && doc.reader == nil {
		doc.lockedPages = pageTreeCount(data)
	}

	if readerErr != nil && !doc.locked {
		// MuPDF opened it; the structural reader is only needed for blocks/raw.
		doc.logger.Debug("Structural reader unavailable", logger.Error(readerErr))
	}

	doc.logger.Info("Document opened",
		logger.Int("pages", doc.NumPage()),
		logger.Bool("encrypted", doc.Encrypted()),
		logger.Int("size", len(data)),
	)
	return doc, nil
}

// Document is safe for concurrent use; engine calls are serialized.
type Document struct {
	mu     sync.Mutex
	logger logger.Logger
	data   []byte
	raster Rasterizer
	reader *pdf.Reader
	locked bool
	// lockedPages is the page tree count of a document no engine could open.
	lockedPages int
	closed      bool
}

func (d *Document) NumPage() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.numPage()
}

func (d *Document) numPage() int {
	switch {
	case d.raster != nil:
		return d.raster.NumPage()
	case d.reader != nil:
		return d.reader.NumPage()
	case d.locked:
		return d.lockedPages
	default:
		return 0
	}
}

// Encrypted reports whether the file carries an encryption dictionary.
func (d *Document) Encrypted() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.locked || d.reader != nil && readerEncrypted(d.reader)
}

// Authenticate unlocks a password protected document. Documents that opened
// without a password accept any password.
func (d *Document) Authenticate(password string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.locked || d.reader != nil {
		return nil
	}
	reader, err := openReader(d.data, password)
	if err != nil {
		return fmt.Errorf("authentication failed: %w", document.ErrDocumentLocked)
	}
	d.reader = reader
	return nil
}

func (d *Document) Page(index int) (document.Page, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, errors.New("document is closed")
	}
	if d.locked && d.reader == nil {
		return nil, document.ErrDocumentLocked
	}
	if n := d.numPage(); index < 1 || index > n {
		return nil, fmt.Errorf("%w: page %d of %d", document.ErrPageOutOfRange, index, n)
	}
	return &Page{doc: d, index: index}, nil
}

func (d *Document) Metadata() map[string]string {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make(map[string]string)
	if d.raster != nil {
		for k, v := range d.raster.Metadata() {
			if v != "" {
				out[k] = v
			}
		}
	}
	if d.reader != nil {
		for k, v := range readerInfo(d.reader) {
			if _, ok := out[k]; !ok {
				out[k] = v
			}
		}
	}
	return out
}

func (d *Document) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	if d.raster != nil {
		d.raster.Close()
		d.raster = nil
	}
	d.reader = nil
	d.data = nil
	d.logger.Debug("Document closed")
	return nil
}

// Page is one 1-based page of a Document.
type Page struct {
	doc   *Document
	index int
}

func (p *Page) Text(mode document.TextMode) (string, error) {
	d := p.doc
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return "", errors.New("document is closed")
	}

	switch mode {
	case document.ModeText:
		if d.raster != nil {
			return d.raster.Text(p.index - 1)
		}
		return p.withReader(plainText)
	case document.ModeBlocks:
		return p.withReader(rowsText)
	case document.ModeRaw:
		return p.withReader(rawText)
	default:
		return "", fmt.Errorf("%w: %q", document.ErrModeUnsupported, mode)
	}
}

func (p *Page) withReader(fn func(pdf.Page) (string, error)) (string, error) {
	d := p.doc
	if d.reader == nil {
		if d.locked {
			return "", document.ErrDocumentLocked
		}
		return "", document.ErrModeUnsupported
	}
	page, err := readerPage(d.reader, p.index)
	if err != nil {
		return "", err
	}
	return fn(page)
}

// Render rasterizes the page at scale times document.BaseDPI.
func (p *Page) Render(scale float64) (image.Image, error) {
	if scale <= 0 {
		return nil, fmt.Errorf("invalid render scale %v", scale)
	}

	d := p.doc
	d.mu.Lock()
	defer d.mu.Unlock()

	switch {
	case d.closed:
		return nil, errors.New("document is closed")
	case d.raster != nil:
		return d.raster.Render(p.index-1, document.BaseDPI*scale)
	case d.locked:
		return nil, document.ErrDocumentLocked
	default:
		return nil, ErrRenderUnavailable
	}
}
