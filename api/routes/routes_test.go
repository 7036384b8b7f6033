package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/doctext/api/handlers"
	"github.com/feichai0017/doctext/api/middleware"
	"github.com/feichai0017/doctext/internal/agent/extractor"
	"github.com/feichai0017/doctext/internal/models"
	"github.com/feichai0017/doctext/internal/service/document"
	"github.com/feichai0017/doctext/internal/utils/validator"
	"github.com/feichai0017/doctext/pkg/converters"
	"github.com/feichai0017/doctext/pkg/logger"
	"github.com/feichai0017/doctext/pkg/queue"
)

type stubService struct {
	extractErr error
	statusErr  error
	resultErr  error
	cancelErr  error
	priority   int
	submitted  []string
}

func (s *stubService) ExtractFile(ctx context.Context, file multipart.File, header *multipart.FileHeader) (*models.ExtractionResult, error) {
	if s.extractErr != nil {
		return nil, s.extractErr
	}
	return &models.ExtractionResult{
		Text:  "Hello world",
		Pages: []models.PageResult{{Page: 1, Method: models.MethodMuPDF, Chars: 11}},
	}, nil
}

func (s *stubService) SubmitFile(ctx context.Context, file multipart.File, header *multipart.FileHeader, priority int) (*models.ProcessingTask, error) {
	s.priority = priority
	s.submitted = append(s.submitted, header.Filename)
	return &models.ProcessingTask{
		ID:        "task-1",
		Status:    models.StatusPending,
		Metadata:  map[string]string{"filename": header.Filename, "type": ".pdf"},
		CreatedAt: time.Now(),
	}, nil
}

func (s *stubService) SubmitBatch(ctx context.Context, files []*multipart.FileHeader, priority int) ([]*models.ProcessingTask, error) {
	tasks := make([]*models.ProcessingTask, len(files))
	for i, f := range files {
		tasks[i] = &models.ProcessingTask{
			ID:       f.Filename,
			Status:   models.StatusPending,
			Metadata: map[string]string{"filename": f.Filename, "type": ".pdf"},
		}
	}
	return tasks, nil
}

func (s *stubService) HandleExtraction(ctx context.Context, task *queue.Task) error { return nil }

func (s *stubService) GetStatus(ctx context.Context, taskID string) (*models.ProcessingTask, error) {
	if s.statusErr != nil {
		return nil, s.statusErr
	}
	return &models.ProcessingTask{ID: taskID, Status: models.StatusRunning, Metadata: map[string]string{}}, nil
}

func (s *stubService) GetResult(ctx context.Context, taskID string) (*converters.ProcessedDocument, error) {
	if s.resultErr != nil {
		return nil, s.resultErr
	}
	return &converters.ProcessedDocument{TaskID: taskID, Status: "completed"}, nil
}

func (s *stubService) CancelTask(ctx context.Context, taskID string) error { return s.cancelErr }

func (s *stubService) CleanupTasks(ctx context.Context) error { return nil }

func (s *stubService) Close() error { return nil }

func newRouter(svc document.DocumentProcessor) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	log := logger.NewNop()
	SetupRoutes(r, handlers.NewHandlers(svc, log), log)
	return r
}

func multipartBody(t *testing.T, field string, names ...string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, name := range names {
		part, err := w.CreateFormFile(field, name)
		require.NoError(t, err)
		_, err = part.Write([]byte("%PDF-1.4\n"))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func do(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := do(newRouter(&stubService{}), httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))
}

func TestExtract(t *testing.T) {
	body, ctype := multipartBody(t, "file", "doc.pdf")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/extract", body)
	req.Header.Set("Content-Type", ctype)
	req.Header.Set(middleware.RequestIDHeader, "req-42")

	rec := do(newRouter(&stubService{}), req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-42", rec.Header().Get(middleware.RequestIDHeader))
	assert.JSONEq(t, `{"text":"Hello world","pages":[{"page":1,"method":"mupdf","chars":11}]}`, rec.Body.String())
}

func TestExtractOpenFailure(t *testing.T) {
	svc := &stubService{extractErr: &extractor.OpenError{Path: "doc.pdf", Err: errors.New("cannot open document")}}
	body, ctype := multipartBody(t, "file", "doc.pdf")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/extract", body)
	req.Header.Set("Content-Type", ctype)

	rec := do(newRouter(svc), req)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, map[string]interface{}{"error": "cannot open document"}, got)
}

func TestExtractErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"invalid upload", &document.InvalidFileError{Filename: "a.txt", Errors: []validator.ValidationError{{Code: "INVALID_FILE_TYPE", Message: "nope"}}}, http.StatusBadRequest},
		{"internal", errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, ctype := multipartBody(t, "file", "doc.pdf")
			req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/extract", body)
			req.Header.Set("Content-Type", ctype)

			rec := do(newRouter(&stubService{extractErr: tt.err}), req)
			assert.Equal(t, tt.code, rec.Code)

			var resp handlers.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.err.Error(), resp.Error)
		})
	}
}

func TestExtractMissingFile(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/extract", nil)
	rec := do(newRouter(&stubService{}), req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProcessAndBatch(t *testing.T) {
	svc := &stubService{}
	r := newRouter(svc)

	body, ctype := multipartBody(t, "file", "doc.pdf")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/process?priority=1", body)
	req.Header.Set("Content-Type", ctype)
	rec := do(r, req)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, svc.priority)

	var resp handlers.ProcessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "task-1", resp.TaskID)
	assert.Equal(t, "pending", resp.Status)

	body, ctype = multipartBody(t, "files", "a.pdf", "b.pdf")
	req = httptest.NewRequest(http.MethodPost, "/api/v1/documents/batch", body)
	req.Header.Set("Content-Type", ctype)
	rec = do(r, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var batch struct {
		Tasks []handlers.ProcessResponse `json:"tasks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &batch))
	require.Len(t, batch.Tasks, 2)
	assert.Equal(t, "b.pdf", batch.Tasks[1].Filename)

	body, ctype = multipartBody(t, "other", "a.pdf")
	req = httptest.NewRequest(http.MethodPost, "/api/v1/documents/batch", body)
	req.Header.Set("Content-Type", ctype)
	assert.Equal(t, http.StatusBadRequest, do(r, req).Code)
}

func TestTaskEndpoints(t *testing.T) {
	tests := []struct {
		name   string
		svc    *stubService
		method string
		path   string
		code   int
	}{
		{"status", &stubService{}, http.MethodGet, "/api/v1/documents/status/t1", http.StatusOK},
		{"status unknown", &stubService{statusErr: queue.ErrTaskNotFound}, http.MethodGet, "/api/v1/documents/status/t1", http.StatusNotFound},
		{"download", &stubService{}, http.MethodGet, "/api/v1/documents/download/t1", http.StatusOK},
		{"download pending", &stubService{resultErr: document.ErrNotCompleted}, http.MethodGet, "/api/v1/documents/download/t1", http.StatusConflict},
		{"cancel", &stubService{}, http.MethodDelete, "/api/v1/documents/task/t1", http.StatusOK},
		{"cancel finished", &stubService{cancelErr: queue.ErrTaskFinished}, http.MethodDelete, "/api/v1/documents/task/t1", http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(newRouter(tt.svc), httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
		})
	}
}

func TestDownloadHeaders(t *testing.T) {
	rec := do(newRouter(&stubService{}), httptest.NewRequest(http.MethodGet, "/api/v1/documents/download/t9", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "attachment; filename=result_t9.json", rec.Header().Get("Content-Disposition"))

	var doc converters.ProcessedDocument
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, "t9", doc.TaskID)
}
