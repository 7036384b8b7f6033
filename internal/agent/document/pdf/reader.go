package pdf

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
)

// openReader parses data with ledongthuc/pdf. The empty password is always
// tried first; password is tried once more when non-empty.
func openReader(data []byte, password string) (r *pdf.Reader, err error) {
	defer func() {
		if p := recover(); p != nil {
			r, err = nil, fmt.Errorf("malformed document: %v", p)
		}
	}()

	ra := bytes.NewReader(data)
	tried := false
	return pdf.NewReaderEncrypted(ra, ra.Size(), func() string {
		if tried {
			return ""
		}
		tried = true
		return password
	})
}

func readerEncrypted(r *pdf.Reader) bool {
	return !r.Trailer().Key("Encrypt").IsNull()
}

// page fetches a 1-based page, failing when the page tree has no entry.
func readerPage(r *pdf.Reader, index int) (pdf.Page, error) {
	p := r.Page(index)
	if p.V.IsNull() {
		return pdf.Page{}, fmt.Errorf("page %d has no page object", index)
	}
	return p, nil
}

func plainText(p pdf.Page) (string, error) {
	return p.GetPlainText(nil)
}

// rowsText groups text runs by baseline, one row per line.
func rowsText(p pdf.Page) (string, error) {
	rows, err := p.GetTextByRow()
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for i, row := range rows {
		if i > 0 {
			sb.WriteByte('\n')
		}
		for _, t := range row.Content {
			sb.WriteString(t.S)
		}
	}
	return sb.String(), nil
}

// rawText concatenates the text runs in content stream order.
func rawText(p pdf.Page) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("malformed page content: %v", r)
		}
	}()

	var sb strings.Builder
	for _, t := range p.Content().Text {
		sb.WriteString(t.S)
	}
	return sb.String(), nil
}

// readerInfo reads the document information dictionary.
func readerInfo(r *pdf.Reader) map[string]string {
	out := make(map[string]string)
	info := r.Trailer().Key("Info")
	if info.IsNull() {
		return out
	}
	for _, key := range []string{"Title", "Author", "Subject", "Keywords", "Creator", "Producer"} {
		v := info.Key(key)
		if v.IsNull() {
			continue
		}
		if s := strings.TrimSpace(v.Text()); s != "" {
			out[strings.ToLower(key)] = s
		}
	}
	return out
}

// Page tree dictionaries are never encrypted, so /Count stays readable in
// files that neither engine can unlock.
var pagesCount = regexp.MustCompile(`/Type\s*/Pages\b[^>]*?/Count\s+(\d+)|/Count\s+(\d+)[^>]*?/Type\s*/Pages\b`)

// pageTreeCount returns the largest /Count of the /Pages dictionaries in
// data, which is the root of the page tree. It returns 0 when none is found,
// for example when the tree sits in a compressed object stream.
func pageTreeCount(data []byte) int {
	count := 0
	for _, m := range pagesCount.FindAllSubmatch(data, -1) {
		digits := m[1]
		if len(digits) == 0 {
			digits = m[2]
		}
		if n, err := strconv.Atoi(string(digits)); err == nil && n > count {
			count = n
		}
	}
	return count
}
