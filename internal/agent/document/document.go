package document

import (
	"errors"
	"image"
)

// TextMode names an embedded-text extraction mode of a page.
type TextMode string

const (
	// ModeText is the engine's plain text layout.
	ModeText TextMode = "text"
	// ModeBlocks groups the text into blocks before flattening it.
	ModeBlocks TextMode = "blocks"
	// ModeRaw returns the glyph stream in content order.
	ModeRaw TextMode = "raw"
)

// BaseDPI is the resolution of a page rendered at scale 1.
const BaseDPI = 96.0

var (
	// ErrModeUnsupported is returned by Page.Text for modes an engine lacks.
	ErrModeUnsupported = errors.New("text mode not supported")
	// ErrDocumentLocked is returned by page operations on an encrypted
	// document that could not be authenticated.
	ErrDocumentLocked = errors.New("document is encrypted")
	// ErrPageOutOfRange is returned by Document.Page for an invalid index.
	ErrPageOutOfRange = errors.New("page out of range")
)

// Opener opens documents by path.
type Opener interface {
	Open(path string) (Document, error)
}

// Document is an opened, page-addressable document. Implementations must be
// safe for concurrent use by multiple pages.
type Document interface {
	// NumPage returns the number of pages.
	NumPage() int
	// Encrypted reports whether the document is protected by a password.
	Encrypted() bool
	// Authenticate unlocks an encrypted document.
	Authenticate(password string) error
	// Page returns the page at the 1-based index.
	Page(index int) (Page, error)
	// Metadata returns the document information dictionary, if any.
	Metadata() map[string]string
	Close() error
}

// Page exposes the two capabilities extraction needs. Pages are read only.
type Page interface {
	Text(mode TextMode) (string, error)
	// Render rasterizes the page at scale times BaseDPI.
	Render(scale float64) (image.Image, error)
}
