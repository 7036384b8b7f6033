package image

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEngineConfig(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		psm     int
		oem     int
		vars    map[string]string
		wantErr bool
	}{
		{name: "empty", in: "", psm: -1, oem: -1, vars: map[string]string{}},
		{name: "block of text", in: "--psm 6", psm: 6, oem: -1, vars: map[string]string{}},
		{name: "equals form", in: "--psm=4 --oem=1", psm: 4, oem: 1, vars: map[string]string{}},
		{
			name: "variables",
			in:   "--oem 3 --psm 6 -c preserve_interword_spaces=1 -ctessedit_char_whitelist=abc --dpi 300",
			psm:  6,
			oem:  3,
			vars: map[string]string{
				"preserve_interword_spaces": "1",
				"tessedit_char_whitelist":   "abc",
				"user_defined_dpi":          "300",
			},
		},
		{name: "psm out of range", in: "--psm 14", wantErr: true},
		{name: "missing value", in: "--psm", wantErr: true},
		{name: "bad variable", in: "-c novalue", wantErr: true},
		{name: "unknown flag", in: "-l eng", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ParseEngineConfig(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.psm, cfg.PageSegMode)
			assert.Equal(t, tt.oem, cfg.EngineMode)
			assert.Equal(t, tt.vars, cfg.Variables)
		})
	}
}

func TestRecognizeOptionsLanguages(t *testing.T) {
	assert.Equal(t, []string{"deu", "eng"}, RecognizeOptions{Language: "deu+eng"}.Languages())
	assert.Equal(t, []string{"eng"}, RecognizeOptions{Language: "eng"}.Languages())
	assert.Empty(t, RecognizeOptions{}.Languages())
}

type fakeTextract struct {
	input  *textract.DetectDocumentTextInput
	output *textract.DetectDocumentTextOutput
	err    error
}

func (f *fakeTextract) DetectDocumentText(_ context.Context, in *textract.DetectDocumentTextInput, _ ...func(*textract.Options)) (*textract.DetectDocumentTextOutput, error) {
	f.input = in
	return f.output, f.err
}

func TestTextractRecognizerJoinsLines(t *testing.T) {
	fake := &fakeTextract{output: &textract.DetectDocumentTextOutput{
		Blocks: []types.Block{
			{BlockType: types.BlockTypePage},
			{BlockType: types.BlockTypeLine, Text: aws.String("Invoice 42"), Confidence: aws.Float32(99)},
			{BlockType: types.BlockTypeWord, Text: aws.String("Invoice"), Confidence: aws.Float32(99)},
			{BlockType: types.BlockTypeLine, Text: aws.String("smudge"), Confidence: aws.Float32(10)},
			{BlockType: types.BlockTypeLine, Text: aws.String("Total due"), Confidence: aws.Float32(91)},
		},
	}}
	r := newTextractRecognizer(fake, &TextractConfig{MinConfidence: 50}, nil)

	text, err := r.Recognize(context.Background(), image.NewGray(image.Rect(0, 0, 4, 4)), RecognizeOptions{Language: "eng"})
	require.NoError(t, err)
	assert.Equal(t, "Invoice 42\nTotal due", text)
	require.NotNil(t, fake.input)
	assert.NotEmpty(t, fake.input.Document.Bytes)
}

func TestTextractRecognizerPropagatesErrors(t *testing.T) {
	fake := &fakeTextract{err: errors.New("throttled")}
	r := newTextractRecognizer(fake, &TextractConfig{}, nil)

	_, err := r.Recognize(context.Background(), image.NewGray(image.Rect(0, 0, 1, 1)), RecognizeOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
}
