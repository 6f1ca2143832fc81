package bootstrap

import (
	"context"
	"fmt"
	"net/http"

	"github.com/kirillkom/pdf-summarizer/internal/config"
	"github.com/kirillkom/pdf-summarizer/internal/core/domain"
	"github.com/kirillkom/pdf-summarizer/internal/core/usecase"
	"github.com/kirillkom/pdf-summarizer/internal/infrastructure/extractor/pdftext"
	"github.com/kirillkom/pdf-summarizer/internal/infrastructure/llm/vllm"
	"github.com/kirillkom/pdf-summarizer/internal/infrastructure/resilience"
	"github.com/kirillkom/pdf-summarizer/internal/infrastructure/storage/tempfs"
	"github.com/kirillkom/pdf-summarizer/internal/observability/metrics"
)

// T5 vocabularies reserve 0 for padding.
const padTokenID = 0

type App struct {
	Config config.Config

	Engine     *usecase.GenerationEngine
	Summarizer *usecase.SummarizeDocumentUseCase
	Metrics    *metrics.HTTPServerMetrics
}

// New wires the pipeline. It does not contact the inference runtime; the
// model is loaded by the first summarize call.
func New(_ context.Context, cfg config.Config, service string) (*App, error) {
	storage, err := tempfs.New(cfg.TempDir, ".pdf")
	if err != nil {
		return nil, fmt.Errorf("init temp storage: %w", err)
	}

	httpMetrics := metrics.NewHTTPServerMetrics(service)
	engineMetrics := metrics.NewEngineMetrics(service, httpMetrics.Registry())

	executor := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    cfg.InferenceRetryMaxAttempts,
		RetryInitialBackoff: cfg.InferenceRetryInitialBackoff,
		RetryMaxBackoff:     cfg.InferenceRetryMaxBackoff,
		BreakerEnabled:      cfg.InferenceBreakerEnabled,
		BreakerMinRequests:  cfg.InferenceBreakerMinRequests,
		BreakerFailureRatio: cfg.InferenceBreakerFailureRatio,
		BreakerOpenTimeout:  cfg.InferenceBreakerOpenTimeout,
	})

	specialTokens := []int{padTokenID}
	if cfg.EOSTokenID >= 0 && cfg.EOSTokenID != padTokenID {
		specialTokens = append(specialTokens, cfg.EOSTokenID)
	}
	loader := vllm.NewLoader(vllm.LoaderOptions{
		DefaultURL:     cfg.InferenceURL,
		AcceleratorURL: cfg.AcceleratorURL,
		APIKey:         cfg.InferenceKey,
		HTTPClient:     &http.Client{Timeout: cfg.InferenceHTTPTimeout},
		Executor:       executor,
		SpecialTokens:  specialTokens,
	})

	engine := usecase.NewGenerationEngine(loader, usecase.EngineConfig{
		Model: domain.ModelSpec{
			Name:      cfg.ModelName,
			Path:      cfg.ModelPath,
			BaseModel: cfg.BaseModel,
			Device:    domain.Device(cfg.Device),
		},
		MaxInputTokens:  cfg.MaxInputTokens,
		MaxOutputTokens: cfg.MaxOutputTokens,
		EOSTokenID:      cfg.EOSTokenID,
		Decoding: domain.DecodingParams{
			NumBeams:      cfg.NumBeams,
			Temperature:   cfg.Temperature,
			TopP:          cfg.TopP,
			DoSample:      true,
			EarlyStopping: true,
			Seed:          cfg.Seed(),
		},
		Concurrency:       cfg.GenerationConcurrency,
		GenerationTimeout: cfg.GenerationTimeout,
		LoadTimeout:       cfg.ModelLoadTimeout,
	}, engineMetrics)

	summarizer := usecase.NewSummarizeDocumentUseCase(
		storage,
		pdftext.NewExtractor(),
		engine,
		httpMetrics,
		usecase.SummarizeOptions{
			MinTextChars:    cfg.MinTextChars,
			MaxOutputTokens: cfg.MaxOutputTokens,
		},
	)

	return &App{
		Config:     cfg,
		Engine:     engine,
		Summarizer: summarizer,
		Metrics:    httpMetrics,
	}, nil
}
