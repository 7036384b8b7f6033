package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/feichai0017/doctext/api/handlers"
	"github.com/feichai0017/doctext/api/middleware"
	"github.com/feichai0017/doctext/pkg/logger"
)

// SetupRoutes 配置所有路由
func SetupRoutes(r *gin.Engine, h *handlers.Handlers, log logger.Logger) {
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.CORS())

	v1 := r.Group("/api/v1")
	v1.GET("/health", handlers.HealthCheck)

	docs := v1.Group("/documents")
	{
		docs.POST("/extract", h.Document.ExtractDocument)
		docs.POST("/process", h.Document.ProcessDocument)
		docs.POST("/batch", h.Document.ProcessBatch)
		docs.GET("/status/:taskId", h.Document.GetStatus)
		docs.GET("/download/:taskId", h.Document.DownloadResult)
		docs.DELETE("/task/:taskId", h.Document.CancelTask)
	}
}
