package pdfextract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

var ErrNotPDF = errors.New("not a pdf file")

var pdfMagic = []byte("%PDF-")

// ExtractPages reads the whole PDF from r and returns the plain text of every
// page in page order. Pages without extractable text yield an empty string so
// page numbers stay aligned with slice positions.
func ExtractPages(r io.Reader) ([]string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read pdf failed: %w", err)
	}
	if !bytes.HasPrefix(bytes.TrimLeft(b, "\x00\t\r\n "), pdfMagic) {
		return nil, ErrNotPDF
	}

	pdfReader, err := pdf.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotPDF, err)
	}

	n := pdfReader.NumPage()
	pages := make([]string, n)
	fonts := make(map[string]*pdf.Font)
	for i := 1; i <= n; i++ {
		page := pdfReader.Page(i)
		if page.V.IsNull() {
			continue
		}
		for _, name := range page.Fonts() {
			if _, ok := fonts[name]; !ok {
				f := page.Font(name)
				fonts[name] = &f
			}
		}
		text, err := page.GetPlainText(fonts)
		if err != nil {
			return nil, fmt.Errorf("extract page %d failed: %w", i, err)
		}
		pages[i-1] = strings.TrimSpace(text)
	}
	return pages, nil
}

// HasText reports whether any page carries non-blank text.
func HasText(pages []string) bool {
	for _, p := range pages {
		if strings.TrimSpace(p) != "" {
			return true
		}
	}
	return false
}
