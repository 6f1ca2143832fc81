package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/pdf-summarizer/internal/core/domain"
)

// TextExtractor extracts cleaned plain text from a document on disk.
type TextExtractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// ScopedFile is a file path owned by exactly one request.
type ScopedFile interface {
	Path() string
	// Release removes the file. Calls after the first are no-ops returning
	// the first result.
	Release() error
}

// TempStorage materializes uploads into scoped files.
type TempStorage interface {
	Materialize(ctx context.Context, name string, data io.Reader) (ScopedFile, error)
}

// Tokenizer converts between text and the model's token ids.
type Tokenizer interface {
	Encode(ctx context.Context, text string) ([]int, error)
	Decode(ctx context.Context, tokens []int, skipSpecialTokens bool) (string, error)
}

// SequenceModel produces an output token sequence for an input sequence.
type SequenceModel interface {
	Generate(ctx context.Context, input []int, params domain.DecodingParams) (domain.Generation, error)
}

// ModelHandle is a loaded tokenizer/model pair.
type ModelHandle interface {
	Tokenizer
	SequenceModel
	Device() domain.Device
}

// ModelLoader performs the one-time, potentially slow model initialization.
type ModelLoader interface {
	Load(ctx context.Context, spec domain.ModelSpec) (ModelHandle, error)
}

// Summarizer turns cleaned document text into a summary.
type Summarizer interface {
	Summarize(ctx context.Context, text string, maxOutputTokens int) (string, error)
}

// EngineObserver receives generation engine events, typically for metrics.
type EngineObserver interface {
	ObserveModelLoad(device domain.Device, duration time.Duration, err error)
	StartGeneration()
	FinishGeneration(duration time.Duration, promptTokens, outputTokens int, truncated bool, err error)
}

// PipelineObserver receives per-request orchestration events.
type PipelineObserver interface {
	ObserveStage(stage domain.Stage, duration time.Duration)
	ObserveResult(outcome string, originalChars, summaryChars int)
}
