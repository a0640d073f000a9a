// Package extract pulls plain text out of uploaded PDF files.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/docquery-ai/docquery/internal/service"
)

// PDFExtractor reads per-page text from PDF bytes. It satisfies
// service.TextExtractor.
type PDFExtractor struct{}

func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

// Extract returns one entry per page, in page order. Pages without a text
// layer come back with empty text rather than being skipped, so page numbers
// stay aligned with the source document.
func (e *PDFExtractor) Extract(ctx context.Context, data []byte) ([]service.ExtractedPage, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}

	numPages := reader.NumPage()
	pages := make([]service.ExtractedPage, 0, numPages)
	for pageNum := 1; pageNum <= numPages; pageNum++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := reader.Page(pageNum)
		text := ""
		if !page.V.IsNull() {
			content, err := page.GetPlainText(nil)
			if err != nil {
				// A single unreadable page does not fail the document.
				content = ""
			}
			text = strings.TrimSpace(content)
		}
		pages = append(pages, service.ExtractedPage{PageNumber: pageNum, Text: text})
	}

	return pages, nil
}
