package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/doctext/internal/agent/extractor"
	"github.com/feichai0017/doctext/internal/models"
	"github.com/feichai0017/doctext/internal/service/document"
	"github.com/feichai0017/doctext/pkg/logger"
	"github.com/feichai0017/doctext/pkg/queue"
)

type DocumentHandler struct {
	service document.DocumentProcessor
	logger  logger.Logger
}

// ProcessResponse 定义处理响应结构
type ProcessResponse struct {
	TaskID    string `json:"taskId"`
	Status    string `json:"status"`
	Filename  string `json:"filename"`
	FileSize  int64  `json:"fileSize"`
	FileType  string `json:"fileType"`
	CreatedAt string `json:"createdAt"`
}

// ErrorResponse 定义错误响应结构
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func NewDocumentHandler(service document.DocumentProcessor, log logger.Logger) *DocumentHandler {
	return &DocumentHandler{
		service: service,
		logger:  log.Named("http"),
	}
}

// ExtractDocument extracts an upload synchronously. A document that cannot
// be opened yields 422 with the {"error"} body of the command line tool.
func (h *DocumentHandler) ExtractDocument(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		h.handleError(c, http.StatusBadRequest, "Invalid file upload", err)
		return
	}
	defer file.Close()

	result, err := h.service.ExtractFile(c.Request.Context(), file, header)
	if err != nil {
		if extractor.IsOpenError(err) {
			h.logFrom(c).Warn("Document could not be opened",
				logger.String("filename", header.Filename),
				logger.Error(err),
			)
			c.JSON(http.StatusUnprocessableEntity, models.ErrorResult{Error: err.Error()})
			return
		}
		h.handleError(c, statusFor(err), "Failed to extract file", err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// ProcessDocument 处理单个文档
func (h *DocumentHandler) ProcessDocument(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		h.handleError(c, http.StatusBadRequest, "Invalid file upload", err)
		return
	}
	defer file.Close()

	task, err := h.service.SubmitFile(c.Request.Context(), file, header, priority(c))
	if err != nil {
		h.handleError(c, statusFor(err), "Failed to process file", err)
		return
	}

	c.JSON(http.StatusAccepted, ProcessResponse{
		TaskID:    task.ID,
		Status:    string(task.Status),
		Filename:  header.Filename,
		FileSize:  header.Size,
		FileType:  filepath.Ext(header.Filename),
		CreatedAt: task.CreatedAt.Format(time.RFC3339),
	})
}

// ProcessBatch 批量处理文档
func (h *DocumentHandler) ProcessBatch(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		h.handleError(c, http.StatusBadRequest, "Invalid form data", err)
		return
	}

	files := form.File["files"]
	if len(files) == 0 {
		h.handleError(c, http.StatusBadRequest, "No files provided", nil)
		return
	}

	tasks, err := h.service.SubmitBatch(c.Request.Context(), files, priority(c))
	if err != nil {
		h.handleError(c, statusFor(err), "Failed to process files", err)
		return
	}

	responses := make([]ProcessResponse, len(tasks))
	for i, task := range tasks {
		responses[i] = ProcessResponse{
			TaskID:    task.ID,
			Status:    string(task.Status),
			Filename:  task.Metadata["filename"],
			FileSize:  files[i].Size,
			FileType:  task.Metadata["type"],
			CreatedAt: task.CreatedAt.Format(time.RFC3339),
		}
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message": fmt.Sprintf("Processing %d documents", len(files)),
		"tasks":   responses,
	})
}

// GetStatus 获取处理状态
func (h *DocumentHandler) GetStatus(c *gin.Context) {
	task, err := h.service.GetStatus(c.Request.Context(), c.Param("taskId"))
	if err != nil {
		h.handleError(c, statusFor(err), "Failed to get status", err)
		return
	}

	resp := gin.H{
		"taskId":    task.ID,
		"status":    string(task.Status),
		"progress":  task.Progress,
		"error":     task.Error,
		"metadata":  task.Metadata,
		"createdAt": task.CreatedAt.Format(time.RFC3339),
	}
	if !task.UpdatedAt.IsZero() {
		resp["updatedAt"] = task.UpdatedAt.Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, resp)
}

// DownloadResult 下载处理结果
func (h *DocumentHandler) DownloadResult(c *gin.Context) {
	taskID := c.Param("taskId")
	result, err := h.service.GetResult(c.Request.Context(), taskID)
	if err != nil {
		h.handleError(c, statusFor(err), "Failed to get result", err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=result_%s.json", taskID))
	c.JSON(http.StatusOK, result)
}

// CancelTask 取消处理任务
func (h *DocumentHandler) CancelTask(c *gin.Context) {
	taskID := c.Param("taskId")
	if err := h.service.CancelTask(c.Request.Context(), taskID); err != nil {
		h.handleError(c, statusFor(err), "Failed to cancel task", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Task cancelled successfully",
		"taskId":  taskID,
	})
}

func priority(c *gin.Context) int {
	p, err := strconv.Atoi(c.DefaultQuery("priority", "0"))
	if err != nil {
		return 0
	}
	return p
}

func statusFor(err error) int {
	var invalid *document.InvalidFileError
	switch {
	case errors.As(err, &invalid):
		return http.StatusBadRequest
	case errors.Is(err, queue.ErrTaskNotFound):
		return http.StatusNotFound
	case errors.Is(err, document.ErrNotCompleted), errors.Is(err, queue.ErrTaskFinished):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *DocumentHandler) logFrom(c *gin.Context) logger.Logger {
	return logger.FromContext(c.Request.Context(), h.logger)
}

// handleError 统一错误处理
func (h *DocumentHandler) handleError(c *gin.Context, status int, message string, err error) {
	fields := []logger.Field{logger.String("path", c.Request.URL.Path)}
	if err != nil {
		fields = append(fields, logger.Error(err))
	}
	if status >= http.StatusInternalServerError {
		h.logFrom(c).Error(message, fields...)
	} else {
		h.logFrom(c).Warn(message, fields...)
	}

	response := ErrorResponse{
		Message: message,
	}
	if err != nil {
		response.Error = err.Error()
	}
	c.JSON(status, response)
}
