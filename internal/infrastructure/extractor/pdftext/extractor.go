package pdftext

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/pdf-summarizer/internal/core/domain"
)

type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract reads every page of the PDF at path in order and returns the
// cleaned concatenation. Any open or parse failure is an ErrExtraction.
func (e *Extractor) Extract(ctx context.Context, path string) (string, error) {
	raw, err := e.extractRaw(ctx, path)
	if err != nil {
		return "", err
	}
	return Clean(raw), nil
}

func (e *Extractor) extractRaw(ctx context.Context, path string) (text string, err error) {
	file, err := os.Open(path)
	if err != nil {
		return "", domain.WrapError(domain.ErrExtraction, "open pdf", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return "", domain.WrapError(domain.ErrExtraction, "stat pdf", err)
	}

	// The parser panics on some malformed inputs instead of returning errors.
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = domain.WrapError(domain.ErrExtraction, "parse pdf", fmt.Errorf("malformed document: %v", r))
		}
	}()

	reader, err := pdf.NewReader(file, info.Size())
	if err != nil {
		return "", domain.WrapError(domain.ErrExtraction, "parse pdf", err)
	}

	var builder strings.Builder
	pageCount := reader.NumPage()
	for i := 1; i <= pageCount; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		pageText, err := page.GetPlainText(pageFonts(page))
		if err != nil {
			return "", domain.WrapError(domain.ErrExtraction, fmt.Sprintf("extract page %d", i), err)
		}
		builder.WriteString(pageText)
	}
	return builder.String(), nil
}

func pageFonts(page pdf.Page) map[string]*pdf.Font {
	fonts := make(map[string]*pdf.Font)
	for _, name := range page.Fonts() {
		font := page.Font(name)
		fonts[name] = &font
	}
	return fonts
}
