package extractor

import (
	"context"
	"errors"
	"image"
	"sync"

	"github.com/feichai0017/doctext/internal/agent/document"
	docimage "github.com/feichai0017/doctext/internal/agent/document/image"
)

type fakePage struct {
	mu        sync.Mutex
	texts     map[document.TextMode]string
	errs      map[document.TextMode]error
	panics    map[document.TextMode]bool
	renderErr error
	// width of the rendered image, lets the recognizer tell pages apart
	width int
	calls []document.TextMode
	scale float64
}

func textPage(text string) *fakePage {
	return &fakePage{texts: map[document.TextMode]string{document.ModeText: text}}
}

func (p *fakePage) Text(mode document.TextMode) (string, error) {
	p.mu.Lock()
	p.calls = append(p.calls, mode)
	p.mu.Unlock()

	if p.panics[mode] {
		panic("corrupt content stream")
	}
	if err := p.errs[mode]; err != nil {
		return "", err
	}
	return p.texts[mode], nil
}

func (p *fakePage) Render(scale float64) (image.Image, error) {
	p.mu.Lock()
	p.scale = scale
	p.mu.Unlock()

	if p.renderErr != nil {
		return nil, p.renderErr
	}
	w := p.width
	if w == 0 {
		w = 1
	}
	return image.NewGray(image.Rect(0, 0, w, 1)), nil
}

func (p *fakePage) modes() []document.TextMode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]document.TextMode(nil), p.calls...)
}

type fakeDoc struct {
	mu        sync.Mutex
	pages     []*fakePage
	pageErrs  map[int]error
	encrypted bool
	authErr   error
	passwords []string
	closed    int
	meta      map[string]string
}

func (d *fakeDoc) NumPage() int    { return len(d.pages) }
func (d *fakeDoc) Encrypted() bool { return d.encrypted }

func (d *fakeDoc) Authenticate(password string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.passwords = append(d.passwords, password)
	return d.authErr
}

func (d *fakeDoc) Page(index int) (document.Page, error) {
	if err := d.pageErrs[index]; err != nil {
		return nil, err
	}
	if index < 1 || index > len(d.pages) {
		return nil, document.ErrPageOutOfRange
	}
	return d.pages[index-1], nil
}

func (d *fakeDoc) Metadata() map[string]string { return d.meta }

func (d *fakeDoc) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed++
	return nil
}

type fakeOpener struct {
	doc  *fakeDoc
	err  error
	path string
}

func (o *fakeOpener) Open(path string) (document.Document, error) {
	o.path = path
	if o.err != nil {
		return nil, o.err
	}
	return o.doc, nil
}

// fakeRecognizer answers by image width.
type fakeRecognizer struct {
	mu      sync.Mutex
	byWidth map[int]string
	err     error
	calls   int
	opts    []docimage.RecognizeOptions
}

func (r *fakeRecognizer) Recognize(_ context.Context, img image.Image, opts docimage.RecognizeOptions) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.opts = append(r.opts, opts)
	if r.err != nil {
		return "", r.err
	}
	return r.byWidth[img.Bounds().Dx()], nil
}

func (r *fakeRecognizer) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// passthrough skips image cleanup.
type passthrough struct{}

func (passthrough) Process(img image.Image) (image.Image, error) { return img, nil }

var errEngine = errors.New("engine failure")
