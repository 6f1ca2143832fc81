package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kirillkom/pdf-summarizer/internal/core/domain"
	"github.com/kirillkom/pdf-summarizer/internal/core/ports"
	"github.com/kirillkom/pdf-summarizer/internal/observability/logging"
)

type SummarizeOptions struct {
	MinTextChars    int
	MaxOutputTokens int
}

// SummarizeDocumentUseCase runs one upload through
// validate → materialize → extract → summarize. Every failure comes back as a
// *domain.Error; the scoped temp file is released on every path once it
// exists.
type SummarizeDocumentUseCase struct {
	storage    ports.TempStorage
	extractor  ports.TextExtractor
	summarizer ports.Summarizer
	observer   ports.PipelineObserver
	opts       SummarizeOptions
}

func NewSummarizeDocumentUseCase(
	storage ports.TempStorage,
	extractor ports.TextExtractor,
	summarizer ports.Summarizer,
	observer ports.PipelineObserver,
	opts SummarizeOptions,
) *SummarizeDocumentUseCase {
	if observer == nil {
		observer = nopPipelineObserver{}
	}
	if opts.MinTextChars < 0 {
		opts.MinTextChars = 0
	}
	return &SummarizeDocumentUseCase{
		storage:    storage,
		extractor:  extractor,
		summarizer: summarizer,
		observer:   observer,
		opts:       opts,
	}
}

func (uc *SummarizeDocumentUseCase) Summarize(ctx context.Context, upload *domain.UploadedDocument) (*domain.Summary, error) {
	logger := slog.Default().With("request_id", logging.RequestID(ctx))
	logger.Debug("summarize_stage", "stage", domain.StageReceived)

	summary, err := uc.run(ctx, logger, upload)
	if err != nil {
		failure := asFailure(err)
		uc.observer.ObserveResult(domain.KindName(failure), 0, 0)
		logger.Debug("summarize_stage", "stage", domain.StageErrored, "kind", domain.KindName(failure), "error", failure)
		return nil, failure
	}

	uc.observer.ObserveResult(domain.KindName(nil), summary.OriginalLength, summary.SummaryLength)
	logger.Debug("summarize_stage", "stage", domain.StageResponded)
	return summary, nil
}

func (uc *SummarizeDocumentUseCase) run(ctx context.Context, logger *slog.Logger, upload *domain.UploadedDocument) (*domain.Summary, error) {
	if err := validateUpload(upload); err != nil {
		return nil, err
	}
	logger.Debug("summarize_stage", "stage", domain.StageValidated, "filename", upload.Filename, "size", upload.Size)

	start := time.Now()
	file, err := uc.storage.Materialize(ctx, upload.Filename, upload.Body)
	if err != nil {
		return nil, domain.Fail(domain.ErrResource, "", err)
	}
	defer func() {
		if releaseErr := file.Release(); releaseErr != nil {
			logger.Error("temp_file_cleanup_failed", "path", file.Path(), "error", releaseErr)
		}
	}()
	uc.observer.ObserveStage(domain.StageMaterialized, time.Since(start))
	logger.Debug("summarize_stage", "stage", domain.StageMaterialized)

	start = time.Now()
	text, err := uc.extractor.Extract(ctx, file.Path())
	if err != nil {
		return nil, domain.Fail(domain.ErrExtraction, "", err)
	}
	originalLength := utf8.RuneCountInString(text)
	if strings.TrimSpace(text) == "" || originalLength < uc.opts.MinTextChars {
		return nil, domain.Fail(domain.ErrInsufficientText, domain.MsgInsufficientText, nil)
	}
	uc.observer.ObserveStage(domain.StageExtracted, time.Since(start))
	logger.Debug("summarize_stage", "stage", domain.StageExtracted, "chars", originalLength)

	start = time.Now()
	summaryText, err := uc.summarizer.Summarize(ctx, text, uc.opts.MaxOutputTokens)
	if err != nil {
		return nil, domain.Fail(domain.ErrGeneration, "", err)
	}
	uc.observer.ObserveStage(domain.StageSummarized, time.Since(start))
	logger.Debug("summarize_stage", "stage", domain.StageSummarized)

	return &domain.Summary{
		Text:           summaryText,
		OriginalLength: originalLength,
		SummaryLength:  utf8.RuneCountInString(summaryText),
	}, nil
}

func validateUpload(upload *domain.UploadedDocument) error {
	switch {
	case upload == nil || upload.Body == nil:
		return domain.Fail(domain.ErrValidation, domain.MsgNoFile, nil)
	case upload.Filename == "":
		return domain.Fail(domain.ErrValidation, domain.MsgEmptyFilename, nil)
	case upload.Size == 0:
		return domain.Fail(domain.ErrValidation, domain.MsgEmptyFile, nil)
	}
	return nil
}

// asFailure keeps an existing *domain.Error and classifies anything else,
// such as a cancelled context, as a resource fault.
func asFailure(err error) *domain.Error {
	var failure *domain.Error
	if errors.As(err, &failure) {
		return failure
	}
	return domain.Fail(domain.ErrResource, "", err)
}

type nopPipelineObserver struct{}

func (nopPipelineObserver) ObserveStage(domain.Stage, time.Duration) {}
func (nopPipelineObserver) ObserveResult(string, int, int) {}
