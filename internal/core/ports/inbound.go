package ports

import (
	"context"

	"github.com/kirillkom/pdf-summarizer/internal/core/domain"
)

// DocumentSummarizer is the inbound contract for one summarize request.
type DocumentSummarizer interface {
	Summarize(ctx context.Context, upload *domain.UploadedDocument) (*domain.Summary, error)
}

// EngineStatus reports whether the generation engine has been initialized.
// Implementations must not block.
type EngineStatus interface {
	Loaded() bool
}
