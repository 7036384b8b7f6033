package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/feichai0017/doctext/config"
	"github.com/feichai0017/doctext/internal/service"
	"github.com/feichai0017/doctext/pkg/logger"
	"github.com/feichai0017/doctext/pkg/worker"
)

func main() {
	var configPath string
	cmd := &cobra.Command{
		Use:          "worker",
		Short:        "Process queued document extraction tasks",
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

	// 初始化日志
	log, err := logger.NewLogger(
		logger.FromConfig(cfg.Logger),
		logger.WithInitialFields(map[string]interface{}{"service": "doctext-worker"}),
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

	documentWorker, err := worker.NewDocumentWorker(cfg.Queue, docService, log)
	if err != nil {
		log.Error("Failed to create document worker", logger.Error(err))
		return err
	}
	if err := documentWorker.Start(ctx); err != nil {
		log.Error("Failed to start worker", logger.Error(err))
		return err
	}

	<-ctx.Done()
	log.Info("Shutting down worker...")
	return documentWorker.Stop()
}
