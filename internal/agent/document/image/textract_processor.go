package image

import (
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"

	"github.com/feichai0017/doctext/pkg/logger"
)

// textractAPI is the slice of the Textract client used here.
type textractAPI interface {
	DetectDocumentText(ctx context.Context, params *textract.DetectDocumentTextInput, optFns ...func(*textract.Options)) (*textract.DetectDocumentTextOutput, error)
}

// TextractRecognizer sends page bitmaps to AWS Textract.
type TextractRecognizer struct {
	client textractAPI
	logger logger.Logger
	config *TextractConfig
}

type TextractConfig struct {
	Region        string
	Endpoint      string
	AccessKey     string
	SecretKey     string
	MinConfidence float32
}

func NewTextractRecognizer(ctx context.Context, cfg *TextractConfig, log logger.Logger) (*TextractRecognizer, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	// fall back to the default credential chain when no static keys are set
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}

	client := textract.NewFromConfig(awsCfg, func(o *textract.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return newTextractRecognizer(client, cfg, log), nil
}

func newTextractRecognizer(client textractAPI, cfg *TextractConfig, log logger.Logger) *TextractRecognizer {
	if log == nil {
		log = logger.NewNop()
	}
	return &TextractRecognizer{
		client: client,
		logger: log.Named("textract"),
		config: cfg,
	}
}

// Recognize runs synchronous text detection. Textract detects the language
// itself, so opts.Language and opts.Config are not forwarded.
func (r *TextractRecognizer) Recognize(ctx context.Context, img image.Image, opts RecognizeOptions) (string, error) {
	data, err := EncodePNG(img)
	if err != nil {
		return "", err
	}

	result, err := r.client.DetectDocumentText(ctx, &textract.DetectDocumentTextInput{
		Document: &types.Document{Bytes: data},
	})
	if err != nil {
		return "", fmt.Errorf("failed to detect document text: %w", err)
	}

	lines := r.processBlocks(result.Blocks)
	r.logger.Debug("Textract finished",
		logger.Int("blocks", len(result.Blocks)),
		logger.Int("lines", len(lines)),
	)
	return strings.Join(lines, "\n"), nil
}

// helper method: keep LINE blocks above the confidence floor
func (r *TextractRecognizer) processBlocks(blocks []types.Block) []string {
	var texts []string
	for _, block := range blocks {
		if block.BlockType != types.BlockTypeLine || block.Text == nil {
			continue
		}
		if block.Confidence != nil && *block.Confidence < r.config.MinConfidence {
			continue
		}
		texts = append(texts, *block.Text)
	}
	return texts
}
