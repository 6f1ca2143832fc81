package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/kirillkom/pdf-summarizer/internal/core/domain"
	"github.com/kirillkom/pdf-summarizer/internal/core/ports"
)

type EngineConfig struct {
	Model domain.ModelSpec

	MaxInputTokens  int
	MaxOutputTokens int
	// EOSTokenID is kept as the final token when input is truncated; negative
	// disables that.
	EOSTokenID int
	Decoding   domain.DecodingParams

	// Concurrency bounds simultaneous generation calls against the handle.
	Concurrency       int64
	GenerationTimeout time.Duration
	LoadTimeout       time.Duration
}

// GenerationEngine owns the process-wide model handle. The handle is created
// on the first Summarize call and kept until the process exits; a failed load
// is not remembered, so the next call tries again.
//
// Sampling is stochastic: two calls with identical text return different
// summaries unless Decoding.Seed is set and the runtime honours it.
type GenerationEngine struct {
	loader   ports.ModelLoader
	cfg      EngineConfig
	observer ports.EngineObserver

	initMu sync.Mutex
	handle atomic.Pointer[loadedModel]

	sem *semaphore.Weighted
}

type loadedModel struct {
	ports.ModelHandle
}

func NewGenerationEngine(loader ports.ModelLoader, cfg EngineConfig, observer ports.EngineObserver) *GenerationEngine {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = 300
	}
	if observer == nil {
		observer = nopEngineObserver{}
	}
	return &GenerationEngine{
		loader:   loader,
		cfg:      cfg,
		observer: observer,
		sem:      semaphore.NewWeighted(cfg.Concurrency),
	}
}

// Loaded never blocks, including while a load is in progress.
func (e *GenerationEngine) Loaded() bool {
	return e.handle.Load() != nil
}

func (e *GenerationEngine) Summarize(ctx context.Context, text string, maxOutputTokens int) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", domain.WrapError(domain.ErrGeneration, "summarize", errors.New("empty input text"))
	}
	return e.Generate(ctx, BuildPrompt(text), maxOutputTokens)
}

// Generate runs the decoding procedure over an already built prompt.
func (e *GenerationEngine) Generate(ctx context.Context, prompt string, maxOutputTokens int) (string, error) {
	model, err := e.ensureLoaded(ctx)
	if err != nil {
		return "", domain.WrapError(domain.ErrGeneration, "load model", err)
	}

	if e.cfg.GenerationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.GenerationTimeout)
		defer cancel()
	}
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return "", domain.WrapError(domain.ErrGeneration, "wait for engine", err)
	}
	defer e.sem.Release(1)

	if maxOutputTokens <= 0 {
		maxOutputTokens = e.cfg.MaxOutputTokens
	}

	e.observer.StartGeneration()
	start := time.Now()
	summary, stats, err := e.generate(ctx, model, prompt, maxOutputTokens)
	e.observer.FinishGeneration(time.Since(start), stats.promptTokens, stats.outputTokens, stats.truncated, err)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("generation timed out after %s: %w", e.cfg.GenerationTimeout, err)
		}
		return "", domain.WrapError(domain.ErrGeneration, "generate", err)
	}
	return summary, nil
}

type generationStats struct {
	promptTokens int
	outputTokens int
	truncated    bool
}

func (e *GenerationEngine) generate(ctx context.Context, model ports.ModelHandle, prompt string, maxOutputTokens int) (string, generationStats, error) {
	var stats generationStats

	tokens, err := model.Encode(ctx, prompt)
	if err != nil {
		return "", stats, fmt.Errorf("encode prompt: %w", err)
	}
	tokens, stats.truncated = truncateTokens(tokens, e.cfg.MaxInputTokens, e.cfg.EOSTokenID)
	stats.promptTokens = len(tokens)

	params := e.cfg.Decoding
	params.MaxNewTokens = maxOutputTokens

	gen, err := model.Generate(ctx, tokens, params)
	if err != nil {
		return "", stats, err
	}

	text := gen.Text
	if len(gen.Tokens) > 0 {
		stats.outputTokens = len(gen.Tokens)
		text, err = model.Decode(ctx, gen.Tokens, true)
		if err != nil {
			return "", stats, fmt.Errorf("decode output: %w", err)
		}
	}

	summary := strings.TrimSpace(text)
	if summary == "" {
		return "", stats, errors.New("model returned an empty summary")
	}
	return summary, stats, nil
}

func (e *GenerationEngine) ensureLoaded(ctx context.Context) (ports.ModelHandle, error) {
	if model := e.handle.Load(); model != nil {
		return model.ModelHandle, nil
	}

	e.initMu.Lock()
	defer e.initMu.Unlock()

	if model := e.handle.Load(); model != nil {
		return model.ModelHandle, nil
	}

	// The load outlives the request that triggered it; other requests are
	// queued behind it on initMu.
	loadCtx := context.WithoutCancel(ctx)
	if e.cfg.LoadTimeout > 0 {
		var cancel context.CancelFunc
		loadCtx, cancel = context.WithTimeout(loadCtx, e.cfg.LoadTimeout)
		defer cancel()
	}

	slog.Info("model_loading",
		"model", e.cfg.Model.Name,
		"path", e.cfg.Model.Path,
		"base_model", e.cfg.Model.BaseModel,
		"device", string(e.cfg.Model.Device),
	)
	start := time.Now()
	model, err := e.loader.Load(loadCtx, e.cfg.Model)
	duration := time.Since(start)
	if err != nil {
		e.observer.ObserveModelLoad(e.cfg.Model.Device, duration, err)
		slog.Error("model_load_failed", "model", e.cfg.Model.Name, "duration_ms", duration.Milliseconds(), "error", err)
		return nil, err
	}
	if model == nil {
		return nil, errors.New("model loader returned no handle")
	}

	e.observer.ObserveModelLoad(model.Device(), duration, nil)
	slog.Info("model_loaded", "model", e.cfg.Model.Name, "device", string(model.Device()), "duration_ms", duration.Milliseconds())
	e.handle.Store(&loadedModel{ModelHandle: model})
	return model, nil
}

// truncateTokens keeps the leading limit tokens. When the sequence ends with
// eos, the cut keeps eos as the last token so the encoder still sees a
// terminated sequence.
func truncateTokens(tokens []int, limit, eos int) ([]int, bool) {
	if limit <= 0 || len(tokens) <= limit {
		return tokens, false
	}
	if eos >= 0 && limit > 1 && tokens[len(tokens)-1] == eos {
		out := make([]int, 0, limit)
		out = append(out, tokens[:limit-1]...)
		return append(out, eos), true
	}
	return tokens[:limit], true
}

type nopEngineObserver struct{}

func (nopEngineObserver) ObserveModelLoad(domain.Device, time.Duration, error) {}
func (nopEngineObserver) StartGeneration() {}
func (nopEngineObserver) FinishGeneration(time.Duration, int, int, bool, error) {}
