package models

import (
	"time"
)

// Method records how a page's text was obtained.
type Method string

const (
	MethodMuPDF Method = "mupdf"
	MethodOCR   Method = "ocr"
	MethodError Method = "error"
)

// PageResult is the per-page diagnostic record.
type PageResult struct {
	Page   int    `json:"page"`
	Method Method `json:"method"`
	Chars  int    `json:"chars"`
}

// ExtractionResult is the final output of one extraction call.
// Pages always lists every page of the document in order, while Text only
// carries the pages whose final text was non-empty.
type ExtractionResult struct {
	Text  string       `json:"text"`
	Pages []PageResult `json:"pages"`
}

// ErrorResult replaces ExtractionResult when the document cannot be opened.
type ErrorResult struct {
	Error string `json:"error"`
}

// CountByMethod tallies the pages of r per extraction method.
func (r *ExtractionResult) CountByMethod() map[Method]int {
	counts := make(map[Method]int, 3)
	for _, p := range r.Pages {
		counts[p.Method]++
	}
	return counts
}

// DocumentMetadata 文档元数据
type DocumentMetadata struct {
	Title     string    `json:"title,omitempty"`
	Author    string    `json:"author,omitempty"`
	Pages     int       `json:"pages"`
	Encrypted bool      `json:"encrypted"`
	FileSize  int64     `json:"fileSize"`
	MimeType  string    `json:"mimeType,omitempty"`
	Hash      string    `json:"hash,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type ProcessingTask struct {
	ID        string            `json:"id"`
	Status    ProcessingStatus  `json:"status"`
	Type      string            `json:"type"`
	Priority  int               `json:"priority"`
	Progress  float64           `json:"progress"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt,omitempty"`
}

type ProcessingStatus string

const (
	StatusPending   ProcessingStatus = "pending"
	StatusRunning   ProcessingStatus = "running"
	StatusCompleted ProcessingStatus = "completed"
	StatusFailed    ProcessingStatus = "failed"
	StatusCancelled ProcessingStatus = "cancelled"
)
