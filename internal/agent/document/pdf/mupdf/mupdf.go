// Package mupdf adapts go-fitz to the pdf engine's Rasterizer. It links
// MuPDF through cgo.
package mupdf

import (
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/gen2brain/go-fitz"

	"github.com/feichai0017/doctext/internal/agent/document"
	"github.com/feichai0017/doctext/internal/agent/document/pdf"
)

type rasterizer struct {
	doc *fitz.Document
}

// Open implements pdf.RasterOpener.
func Open(data []byte) (pdf.Rasterizer, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		if errors.Is(err, fitz.ErrNeedsPassword) {
			if doc != nil {
				doc.Close()
			}
			return nil, document.ErrDocumentLocked
		}
		return nil, fmt.Errorf("mupdf: %w", err)
	}
	return &rasterizer{doc: doc}, nil
}

func (r *rasterizer) NumPage() int {
	return r.doc.NumPage()
}

func (r *rasterizer) Text(index int) (string, error) {
	return r.doc.Text(index)
}

func (r *rasterizer) Render(index int, dpi float64) (image.Image, error) {
	img, err := r.doc.ImageDPI(index, dpi)
	if err != nil {
		return nil, fmt.Errorf("failed to render page %d: %w", index+1, err)
	}
	return img, nil
}

// Metadata returns the non-empty MuPDF metadata entries with lowercase keys.
func (r *rasterizer) Metadata() map[string]string {
	out := make(map[string]string)
	for k, v := range r.doc.Metadata() {
		if v = strings.TrimSpace(v); v != "" {
			out[strings.ToLower(k)] = v
		}
	}
	return out
}

func (r *rasterizer) Close() {
	r.doc.Close()
}
