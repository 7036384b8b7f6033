package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/feichai0017/doctext/config"
	"github.com/feichai0017/doctext/internal/agent"
	"github.com/feichai0017/doctext/internal/agent/extractor"
	"github.com/feichai0017/doctext/internal/models"
	"github.com/feichai0017/doctext/pkg/logger"
)

const (
	exitOK   = 0
	exitFail = 1
)

type textExtractor interface {
	Extract(ctx context.Context, path string) (*models.ExtractionResult, error)
}

type extractorFactory func(ctx context.Context, cfg *config.OCRConfig, log logger.Logger) (textExtractor, error)

func defaultExtractor(ctx context.Context, cfg *config.OCRConfig, log logger.Logger) (textExtractor, error) {
	return agent.NewExtractor(ctx, cfg, log)
}

type app struct {
	stdout       io.Writer
	stderr       io.Writer
	newExtractor extractorFactory
}

func newApp(stdout, stderr io.Writer, newExtractor extractorFactory) *app {
	return &app{stdout: stdout, stderr: stderr, newExtractor: newExtractor}
}

// run executes the command and returns the process exit code.
func (a *app) run(ctx context.Context, args []string) int {
	var result *models.ExtractionResult

	cmd := &cobra.Command{
		Use:           "pdftext <path>",
		Short:         "Extract the text of a document as JSON",
		Long:          "Extract plain text from every page of a document, falling back to OCR for pages without a usable text layer.",
		Args:          cobra.ExactArgs(1),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.extract(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			result = res
			return nil
		},
	}
	if args == nil {
		// cobra falls back to os.Args on nil
		args = []string{}
	}
	cmd.SetArgs(args)
	cmd.SetOut(a.stderr)
	cmd.SetErr(a.stderr)

	if err := cmd.ExecuteContext(ctx); err != nil {
		a.writeJSON(models.ErrorResult{Error: err.Error()})
		return exitFail
	}
	if result == nil {
		// --help
		return exitOK
	}
	if err := a.writeJSON(result); err != nil {
		fmt.Fprintf(a.stderr, "failed to write result: %v\n", err)
		return exitFail
	}
	return exitOK
}

func (a *app) extract(ctx context.Context, path string) (*models.ExtractionResult, error) {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "warn"
	}
	log, err := logger.NewLogger(
		logger.WithLevel(level),
		logger.WithEncoding("console"),
		logger.WithOutputPaths([]string{"stderr"}),
		logger.WithErrorPaths(nil),
	)
	if err != nil {
		// unknown LOG_LEVEL, keep the output contract and log nothing
		log = logger.NewNop()
	}
	defer log.Sync()

	ocrCfg := config.GetOCRConfig()
	ex, err := a.newExtractor(ctx, ocrCfg, log)
	if err != nil {
		return nil, err
	}

	result, err := ex.Extract(ctx, path)
	if err != nil {
		if !extractor.IsOpenError(err) && !errors.Is(err, context.Canceled) {
			log.Error("Extraction failed", logger.Error(err))
		}
		return nil, err
	}
	return result, nil
}

func (a *app) writeJSON(v interface{}) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
