package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/doctext/internal/service/document"
	"github.com/feichai0017/doctext/pkg/logger"
)

type Handlers struct {
	Document *DocumentHandler
}

func NewHandlers(
	documentService document.DocumentProcessor,
	log logger.Logger,
) *Handlers {
	if log == nil {
		log = logger.NewNop()
	}
	return &Handlers{
		Document: NewDocumentHandler(documentService, log),
	}
}

func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
