package usecase

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/pdf-summarizer/internal/core/domain"
	"github.com/kirillkom/pdf-summarizer/internal/infrastructure/extractor/pdftext"
	"github.com/kirillkom/pdf-summarizer/internal/infrastructure/extractor/pdftext/pdftest"
	"github.com/kirillkom/pdf-summarizer/internal/infrastructure/storage/tempfs"
)

type extractorFake struct {
	text    string
	err     error
	sawFile bool
}

func (f *extractorFake) Extract(_ context.Context, path string) (string, error) {
	if _, err := os.Stat(path); err == nil {
		f.sawFile = true
	}
	return f.text, f.err
}

type summarizerFake struct {
	summary   string
	err       error
	calls     int
	gotText   string
	gotMaxOut int
}

func (f *summarizerFake) Summarize(_ context.Context, text string, maxOutputTokens int) (string, error) {
	f.calls++
	f.gotText = text
	f.gotMaxOut = maxOutputTokens
	return f.summary, f.err
}

type pipelineObserverFake struct {
	stages   []domain.Stage
	outcomes []string
}

func (f *pipelineObserverFake) ObserveStage(stage domain.Stage, _ time.Duration) {
	f.stages = append(f.stages, stage)
}

func (f *pipelineObserverFake) ObserveResult(outcome string, _, _ int) {
	f.outcomes = append(f.outcomes, outcome)
}

func newUpload(body []byte) *domain.UploadedDocument {
	return &domain.UploadedDocument{
		Filename: "report.pdf",
		MimeType: "application/pdf",
		Size:     int64(len(body)),
		Body:     bytes.NewReader(body),
	}
}

func newStorage(t *testing.T) (*tempfs.Storage, string) {
	t.Helper()
	dir := t.TempDir()
	storage, err := tempfs.New(dir, ".pdf")
	if err != nil {
		t.Fatalf("tempfs.New() error = %v", err)
	}
	return storage, dir
}

func assertDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no leftover temp files, found %d", len(entries))
	}
}

func TestSummarizeSuccess(t *testing.T) {
	storage, dir := newStorage(t)
	text := strings.Repeat("Quarterly revenue grew across all regions. ", 3)
	text = strings.TrimSpace(text)
	extractor := &extractorFake{text: text}
	summarizer := &summarizerFake{summary: "Revenue grew everywhere."}
	observer := &pipelineObserverFake{}

	uc := NewSummarizeDocumentUseCase(storage, extractor, summarizer, observer, SummarizeOptions{MinTextChars: 50, MaxOutputTokens: 300})
	summary, err := uc.Summarize(context.Background(), newUpload([]byte("%PDF-1.4 stub")))
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}

	if summary.Text != "Revenue grew everywhere." {
		t.Fatalf("unexpected summary %q", summary.Text)
	}
	if summary.OriginalLength != len([]rune(text)) {
		t.Fatalf("original length = %d, want %d", summary.OriginalLength, len([]rune(text)))
	}
	if summary.SummaryLength != len([]rune(summary.Text)) {
		t.Fatalf("summary length = %d, want %d", summary.SummaryLength, len([]rune(summary.Text)))
	}
	if !extractor.sawFile {
		t.Fatalf("expected extractor to see the materialized file")
	}
	if summarizer.gotText != text || summarizer.gotMaxOut != 300 {
		t.Fatalf("unexpected summarizer input %q / %d", summarizer.gotText, summarizer.gotMaxOut)
	}
	if len(observer.outcomes) != 1 || observer.outcomes[0] != "ok" {
		t.Fatalf("unexpected outcomes %v", observer.outcomes)
	}
	if len(observer.stages) != 3 {
		t.Fatalf("expected three timed stages, got %v", observer.stages)
	}
	assertDirEmpty(t, dir)
}

func TestSummarizeCountsRunesNotBytes(t *testing.T) {
	storage, dir := newStorage(t)
	text := strings.Repeat("résumé ", 10)
	uc := NewSummarizeDocumentUseCase(storage, &extractorFake{text: text}, &summarizerFake{summary: "naïve"}, nil, SummarizeOptions{MinTextChars: 50})

	summary, err := uc.Summarize(context.Background(), newUpload([]byte("pdf")))
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if summary.OriginalLength != 70 || summary.SummaryLength != 5 {
		t.Fatalf("unexpected lengths %d / %d", summary.OriginalLength, summary.SummaryLength)
	}
	assertDirEmpty(t, dir)
}

func TestSummarizeValidation(t *testing.T) {
	tests := []struct {
		name    string
		upload  *domain.UploadedDocument
		message string
	}{
		{name: "missing", upload: nil, message: domain.MsgNoFile},
		{name: "empty filename", upload: &domain.UploadedDocument{Size: 3, Body: strings.NewReader("pdf")}, message: domain.MsgEmptyFilename},
		{name: "empty body", upload: newUpload(nil), message: domain.MsgEmptyFile},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			storage, dir := newStorage(t)
			summarizer := &summarizerFake{summary: "x"}
			uc := NewSummarizeDocumentUseCase(storage, &extractorFake{}, summarizer, nil, SummarizeOptions{MinTextChars: 50})

			_, err := uc.Summarize(context.Background(), tc.upload)
			if !domain.IsKind(err, domain.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if domain.ClientMessage(err) != tc.message {
				t.Fatalf("message = %q, want %q", domain.ClientMessage(err), tc.message)
			}
			if summarizer.calls != 0 {
				t.Fatalf("summarizer must not run on invalid input")
			}
			assertDirEmpty(t, dir)
		})
	}
}

func TestSummarizeInsufficientText(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{name: "blank", text: ""},
		{name: "short", text: "Page intentionally left blank."},
		{name: "one below minimum", text: strings.Repeat("a", 49)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			storage, dir := newStorage(t)
			summarizer := &summarizerFake{summary: "x"}
			uc := NewSummarizeDocumentUseCase(storage, &extractorFake{text: tc.text}, summarizer, nil, SummarizeOptions{MinTextChars: 50})

			_, err := uc.Summarize(context.Background(), newUpload([]byte("pdf")))
			if !domain.IsKind(err, domain.ErrInsufficientText) {
				t.Fatalf("expected insufficient text error, got %v", err)
			}
			if domain.ClientMessage(err) != domain.MsgInsufficientText {
				t.Fatalf("unexpected message %q", domain.ClientMessage(err))
			}
			if summarizer.calls != 0 {
				t.Fatalf("summarizer must not run on insufficient text")
			}
			assertDirEmpty(t, dir)
		})
	}
}

func TestSummarizeAcceptsExactMinimum(t *testing.T) {
	storage, _ := newStorage(t)
	uc := NewSummarizeDocumentUseCase(storage, &extractorFake{text: strings.Repeat("a", 50)}, &summarizerFake{summary: "a"}, nil, SummarizeOptions{MinTextChars: 50})

	if _, err := uc.Summarize(context.Background(), newUpload([]byte("pdf"))); err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
}

func TestSummarizeExtractionFailure(t *testing.T) {
	storage, dir := newStorage(t)
	observer := &pipelineObserverFake{}
	cause := domain.WrapError(domain.ErrExtraction, "parse pdf", errors.New("malformed xref"))
	uc := NewSummarizeDocumentUseCase(storage, &extractorFake{err: cause}, &summarizerFake{}, observer, SummarizeOptions{MinTextChars: 50})

	_, err := uc.Summarize(context.Background(), newUpload([]byte("not a pdf")))
	if !domain.IsKind(err, domain.ErrExtraction) {
		t.Fatalf("expected extraction error, got %v", err)
	}
	if !strings.Contains(domain.ClientMessage(err), "malformed xref") {
		t.Fatalf("expected cause in client message, got %q", domain.ClientMessage(err))
	}
	if len(observer.outcomes) != 1 || observer.outcomes[0] != "extraction" {
		t.Fatalf("unexpected outcomes %v", observer.outcomes)
	}
	assertDirEmpty(t, dir)
}

func TestSummarizeGenerationFailure(t *testing.T) {
	storage, dir := newStorage(t)
	uc := NewSummarizeDocumentUseCase(
		storage,
		&extractorFake{text: strings.Repeat("content ", 20)},
		&summarizerFake{err: errors.New("runtime unavailable")},
		nil,
		SummarizeOptions{MinTextChars: 50},
	)

	_, err := uc.Summarize(context.Background(), newUpload([]byte("pdf")))
	if !domain.IsKind(err, domain.ErrGeneration) {
		t.Fatalf("expected generation error, got %v", err)
	}
	var failure *domain.Error
	if !errors.As(err, &failure) {
		t.Fatalf("expected *domain.Error, got %T", err)
	}
	assertDirEmpty(t, dir)
}

func TestSummarizeRealPDF(t *testing.T) {
	storage, dir := newStorage(t)
	body := pdftest.Build(
		[]string{"Introduction", "The committee reviewed the annual budget in detail.", "1"},
		[]string{"Page 2 of 2", "Spending on infrastructure rose by twelve percent."},
	)
	summarizer := &summarizerFake{summary: "The budget was reviewed."}
	uc := NewSummarizeDocumentUseCase(storage, pdftext.NewExtractor(), summarizer, nil, SummarizeOptions{MinTextChars: 50})

	summary, err := uc.Summarize(context.Background(), newUpload(body))
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if strings.Contains(summarizer.gotText, "Page 2 of 2") {
		t.Fatalf("expected page marker removed, got %q", summarizer.gotText)
	}
	if !strings.Contains(summarizer.gotText, "annual budget") || !strings.Contains(summarizer.gotText, "twelve percent") {
		t.Fatalf("expected both pages in text, got %q", summarizer.gotText)
	}
	if summary.OriginalLength != len([]rune(summarizer.gotText)) {
		t.Fatalf("original length %d does not match extracted text", summary.OriginalLength)
	}
	assertDirEmpty(t, dir)
}
