package converters

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/feichai0017/doctext/internal/models"
)

// DocumentConverter turns an extraction result into the stored document.
type DocumentConverter interface {
	Convert(result *models.ExtractionResult, meta DocumentMetadata) (*ProcessedDocument, error)
}

// ProcessedDocument is what the worker stores and the download endpoint returns.
type ProcessedDocument struct {
	TaskID      string                  `json:"taskId"`
	Status      string                  `json:"status"`
	Result      models.ExtractionResult `json:"result"`
	Metadata    DocumentMetadata        `json:"metadata"`
	ProcessedAt time.Time               `json:"processedAt"`
}

type DocumentMetadata struct {
	FileName     string            `json:"fileName"`
	FileType     string            `json:"fileType"`
	FileSize     int64             `json:"fileSize"`
	PageCount    int               `json:"pageCount"`
	Chars        int               `json:"chars"`
	Methods      map[string]int    `json:"methods"`
	Info         map[string]string `json:"info,omitempty"`
	ProcessingMs int64             `json:"processingMs"`
}

type JSONConverter struct{}

func NewJSONConverter() *JSONConverter {
	return &JSONConverter{}
}

// Convert fills the page statistics of meta from result.
func (c *JSONConverter) Convert(result *models.ExtractionResult, meta DocumentMetadata) (*ProcessedDocument, error) {
	if result == nil {
		return nil, errors.New("no extraction result to convert")
	}

	meta.PageCount = len(result.Pages)
	meta.Methods = make(map[string]int, 3)
	for method, n := range result.CountByMethod() {
		meta.Methods[string(method)] = n
	}
	meta.Chars = 0
	for _, p := range result.Pages {
		meta.Chars += p.Chars
	}

	status := "completed"
	if meta.PageCount > 0 && meta.Methods[string(models.MethodError)] == meta.PageCount {
		status = "failed"
	}

	return &ProcessedDocument{
		Status:      status,
		Result:      *result,
		Metadata:    meta,
		ProcessedAt: time.Now(),
	}, nil
}

// Encode writes doc as JSON.
func (c *JSONConverter) Encode(w io.Writer, doc *ProcessedDocument) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}
	return nil
}

// Decode reads a document written by Encode.
func (c *JSONConverter) Decode(r io.Reader) (*ProcessedDocument, error) {
	var doc ProcessedDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return &doc, nil
}
