package validator

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/sync/errgroup"

	"github.com/feichai0017/doctext/pkg/logger"
)

// DefaultMimeTypes lists the accepted MIME types per extension. A detected
// type is accepted when it or one of its parents appears in the list.
var DefaultMimeTypes = map[string][]string{
	".pdf":  {"application/pdf"},
	".xps":  {"application/vnd.ms-xpsdocument", "application/zip"},
	".epub": {"application/epub+zip"},
	".cbz":  {"application/vnd.comicbook+zip", "application/zip"},
}

// DocumentValidator 文档验证器
type DocumentValidator struct {
	logger logger.Logger
	config *ValidatorConfig
}

type ValidatorConfig struct {
	MaxFileSize  int64
	AllowedTypes map[string][]string // {扩展名: []MIME类型}
}

// NewValidatorConfig restricts DefaultMimeTypes to the given extensions.
func NewValidatorConfig(maxFileSize int64, extensions []string) *ValidatorConfig {
	cfg := &ValidatorConfig{
		MaxFileSize:  maxFileSize,
		AllowedTypes: make(map[string][]string, len(extensions)),
	}
	for _, ext := range extensions {
		ext = strings.ToLower(ext)
		if mimes, ok := DefaultMimeTypes[ext]; ok {
			cfg.AllowedTypes[ext] = mimes
		}
	}
	return cfg
}

type ValidationResult struct {
	IsValid  bool              `json:"isValid"`
	Errors   []ValidationError `json:"errors,omitempty"`
	FileInfo FileInfo          `json:"fileInfo"`
}

type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func (e ValidationError) Error() string { return e.Message }

// FileInfo 文件信息
type FileInfo struct {
	Filename  string `json:"filename"`
	Size      int64  `json:"size"`
	MimeType  string `json:"mimeType"`
	Extension string `json:"extension"`
	Hash      string `json:"hash"`
}

func NewDocumentValidator(log logger.Logger, config *ValidatorConfig) *DocumentValidator {
	if log == nil {
		log = logger.NewNop()
	}
	if config == nil {
		config = &ValidatorConfig{
			MaxFileSize:  50 * 1024 * 1024, // 50MB
			AllowedTypes: DefaultMimeTypes,
		}
	}
	return &DocumentValidator{
		logger: log.Named("validator"),
		config: config,
	}
}

// ValidateFile validates an uploaded multipart file.
func (v *DocumentValidator) ValidateFile(file *multipart.FileHeader) (*ValidationResult, error) {
	f, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()
	return v.Validate(f, file.Filename, file.Size)
}

// Validate checks size, extension and content type of r, leaving r rewound.
func (v *DocumentValidator) Validate(r io.ReadSeeker, filename string, size int64) (*ValidationResult, error) {
	result := &ValidationResult{
		IsValid: true,
		FileInfo: FileInfo{
			Filename:  filename,
			Size:      size,
			Extension: strings.ToLower(filepath.Ext(filename)),
		},
	}

	hash, err := calculateHash(r)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate hash: %w", err)
	}
	result.FileInfo.Hash = hash

	mtype, err := mimetype.DetectReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to detect mime type: %w", err)
	}
	result.FileInfo.MimeType = mtype.String()

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to reset file pointer: %w", err)
	}

	result.Errors = append(result.Errors, v.performBasicValidation(result.FileInfo)...)
	if len(result.Errors) == 0 {
		result.Errors = append(result.Errors, v.validateMimeType(result.FileInfo.Extension, mtype)...)
	}
	result.IsValid = len(result.Errors) == 0

	if !result.IsValid {
		v.logger.Debug("File rejected",
			logger.String("filename", filename),
			logger.String("mimeType", result.FileInfo.MimeType),
			logger.Any("errors", result.Errors),
		)
	}
	return result, nil
}

// ValidateFiles 批量验证文件
func (v *DocumentValidator) ValidateFiles(files []*multipart.FileHeader) ([]*ValidationResult, error) {
	results := make([]*ValidationResult, len(files))
	var g errgroup.Group
	for i, file := range files {
		g.Go(func() error {
			result, err := v.ValidateFile(file)
			if err != nil {
				return fmt.Errorf("%s: %w", file.Filename, err)
			}
			results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (v *DocumentValidator) performBasicValidation(info FileInfo) []ValidationError {
	var errs []ValidationError

	if info.Size <= 0 {
		errs = append(errs, ValidationError{
			Code:    "EMPTY_FILE",
			Message: "File is empty",
			Field:   "size",
		})
	}
	if info.Size > v.config.MaxFileSize {
		errs = append(errs, ValidationError{
			Code:    "FILE_TOO_LARGE",
			Message: fmt.Sprintf("File size exceeds maximum limit of %d bytes", v.config.MaxFileSize),
			Field:   "size",
		})
	}
	if _, ok := v.config.AllowedTypes[info.Extension]; !ok {
		errs = append(errs, ValidationError{
			Code:    "INVALID_FILE_TYPE",
			Message: fmt.Sprintf("File type %s is not allowed", info.Extension),
			Field:   "extension",
		})
	}
	return errs
}

func (v *DocumentValidator) validateMimeType(ext string, mtype *mimetype.MIME) []ValidationError {
	allowed := v.config.AllowedTypes[ext]
	for m := mtype; m != nil; m = m.Parent() {
		for _, want := range allowed {
			if m.Is(want) {
				return nil
			}
		}
	}
	return []ValidationError{{
		Code:    "INVALID_MIME_TYPE",
		Message: fmt.Sprintf("Invalid MIME type %s for extension %s", mtype.String(), ext),
		Field:   "mimeType",
	}}
}

func calculateHash(r io.ReadSeeker) (string, error) {
	hash := sha256.New()
	if _, err := io.Copy(hash, r); err != nil {
		return "", err
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
