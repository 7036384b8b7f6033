package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/feichai0017/doctext/api/handlers"
	"github.com/feichai0017/doctext/api/routes"
	"github.com/feichai0017/doctext/config"
	"github.com/feichai0017/doctext/internal/service"
	"github.com/feichai0017/doctext/pkg/logger"
)

func main() {
	var configPath string
	cmd := &cobra.Command{
		Use:          "server",
		Short:        "Serve the document extraction HTTP API",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.LoadAppConfig(configPath)
	if err != nil {
		return err
	}

	// init logger
	log, err := logger.NewLogger(
		logger.FromConfig(cfg.Logger),
		logger.WithInitialFields(map[string]interface{}{"service": "doctext-server"}),
	)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	docService, err := service.NewDocumentService(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to create document service", logger.Error(err))
		return err
	}
	defer docService.Close()

	if !cfg.Logger.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.MaxMultipartMemory = cfg.Service.MaxFileSize
	routes.SetupRoutes(r, handlers.NewHandlers(docService, log), log)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: r,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Server starting", logger.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		log.Error("Server error", logger.Error(err))
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", logger.Error(err))
		return err
	}
	return nil
}
