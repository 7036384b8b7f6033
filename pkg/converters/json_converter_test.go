package converters

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/doctext/internal/models"
)

func TestConvert(t *testing.T) {
	result := &models.ExtractionResult{
		Text: "first page\n\nthird page",
		Pages: []models.PageResult{
			{Page: 1, Method: models.MethodMuPDF, Chars: 10},
			{Page: 2, Method: models.MethodError, Chars: 0},
			{Page: 3, Method: models.MethodOCR, Chars: 10},
		},
	}

	doc, err := NewJSONConverter().Convert(result, DocumentMetadata{FileName: "scan.pdf", FileSize: 42})
	require.NoError(t, err)

	assert.Equal(t, "completed", doc.Status)
	assert.Equal(t, "scan.pdf", doc.Metadata.FileName)
	assert.Equal(t, 3, doc.Metadata.PageCount)
	assert.Equal(t, 20, doc.Metadata.Chars)
	assert.Equal(t, map[string]int{"mupdf": 1, "ocr": 1, "error": 1}, doc.Metadata.Methods)
	assert.False(t, doc.ProcessedAt.IsZero())
}

func TestConvertAllPagesFailed(t *testing.T) {
	result := &models.ExtractionResult{
		Pages: []models.PageResult{{Page: 1, Method: models.MethodError}},
	}
	doc, err := NewJSONConverter().Convert(result, DocumentMetadata{})
	require.NoError(t, err)
	assert.Equal(t, "failed", doc.Status)

	_, err = NewJSONConverter().Convert(nil, DocumentMetadata{})
	assert.Error(t, err)
}

func TestEncodeKeepsResultShape(t *testing.T) {
	c := NewJSONConverter()
	doc, err := c.Convert(&models.ExtractionResult{Text: "a < b", Pages: []models.PageResult{}}, DocumentMetadata{})
	require.NoError(t, err)
	doc.TaskID = "t1"

	var buf bytes.Buffer
	require.NoError(t, c.Encode(&buf, doc))
	assert.Contains(t, buf.String(), `"result":{"text":"a < b","pages":[]}`)

	decoded, err := c.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, "t1", decoded.TaskID)
	assert.Equal(t, "a < b", decoded.Result.Text)
}
