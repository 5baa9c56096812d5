package ingest

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFExtractor extracts text page-by-page. Each page is a hard boundary:
// a parent chunk never straddles two pages. Pages whose text cannot be
// decoded are skipped rather than failing the document.
type PDFExtractor struct{}

func (PDFExtractor) Extract(content []byte) ([]TextBlock, error) {
	if len(content) == 0 {
		return nil, fmt.Errorf("empty PDF content")
	}
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	var blocks []TextBlock
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		pageText = strings.TrimSpace(pageText)
		if pageText == "" {
			continue
		}
		for j, para := range splitParagraphs(pageText) {
			blocks = append(blocks, TextBlock{
				Text:     para,
				Page:     i,
				Boundary: j == 0,
			})
		}
	}
	return blocks, nil
}

var _ Extractor = PDFExtractor{}
