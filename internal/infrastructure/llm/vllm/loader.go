package vllm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/kirillkom/pdf-summarizer/internal/core/domain"
	"github.com/kirillkom/pdf-summarizer/internal/core/ports"
	"github.com/kirillkom/pdf-summarizer/internal/infrastructure/resilience"
)

type LoaderOptions struct {
	// DefaultURL serves on whatever hardware the runtime was started on.
	DefaultURL string
	// AcceleratorURL, when set, is a GPU-backed runtime preferred by DeviceAuto.
	AcceleratorURL string
	APIKey         string
	HTTPClient     *http.Client
	Executor       *resilience.Executor
	SpecialTokens  []int
	ProbeTimeout   time.Duration
}

// Loader picks a runtime endpoint, verifies the base model is served there
// and registers the fine-tuned adapter when the runtime does not list it yet.
type Loader struct {
	opts LoaderOptions
}

func NewLoader(opts LoaderOptions) *Loader {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 5 * time.Minute}
	}
	if opts.Executor == nil {
		opts.Executor = resilience.NewExecutor(resilience.DefaultConfig())
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 3 * time.Second
	}
	return &Loader{opts: opts}
}

func (l *Loader) Load(ctx context.Context, spec domain.ModelSpec) (ports.ModelHandle, error) {
	device, baseURL, err := l.selectDevice(ctx, spec.Device)
	if err != nil {
		return nil, err
	}
	client := NewClient(baseURL, spec.Name, l.opts.APIKey, l.opts.HTTPClient, l.opts.Executor, l.opts.SpecialTokens)

	models, err := client.servedModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("list served models: %w", err)
	}
	if spec.BaseModel != "" && !slices.ContainsFunc(models, func(m servedModel) bool { return m.matches(spec.BaseModel) }) {
		return nil, fmt.Errorf("base model %q is not served at %s", spec.BaseModel, baseURL)
	}

	if !slices.ContainsFunc(models, func(m servedModel) bool { return m.matches(spec.Name) }) {
		if spec.Path == "" {
			return nil, fmt.Errorf("model %q is not served at %s and no adapter path is configured", spec.Name, baseURL)
		}
		slog.Info("adapter_loading", "adapter", spec.Name, "path", spec.Path, "endpoint", baseURL)
		if err := client.loadAdapter(ctx, spec.Name, spec.Path); err != nil {
			return nil, fmt.Errorf("load adapter %q from %s: %w", spec.Name, spec.Path, err)
		}
	}

	return &handle{Client: client, device: device}, nil
}

// selectDevice resolves the requested device to an endpoint. Auto prefers a
// reachable accelerator endpoint and falls back to the default one.
func (l *Loader) selectDevice(ctx context.Context, want domain.Device) (domain.Device, string, error) {
	switch want {
	case domain.DeviceCPU:
		return domain.DeviceCPU, l.opts.DefaultURL, nil
	case domain.DeviceAccelerator:
		if l.opts.AcceleratorURL == "" {
			return domain.DeviceAccelerator, l.opts.DefaultURL, nil
		}
		return domain.DeviceAccelerator, l.opts.AcceleratorURL, nil
	}

	if l.opts.AcceleratorURL == "" {
		return domain.DeviceAuto, l.opts.DefaultURL, nil
	}
	probeCtx, cancel := context.WithTimeout(ctx, l.opts.ProbeTimeout)
	defer cancel()
	probeClient := NewClient(l.opts.AcceleratorURL, "", l.opts.APIKey, l.opts.HTTPClient, l.opts.Executor, nil)
	if err := probeClient.probe(probeCtx, "/health"); err != nil {
		slog.Warn("accelerator_unavailable", "endpoint", l.opts.AcceleratorURL, "error", err)
		return domain.DeviceCPU, l.opts.DefaultURL, nil
	}
	return domain.DeviceAccelerator, l.opts.AcceleratorURL, nil
}

type handle struct {
	*Client
	device domain.Device
}

func (h *handle) Device() domain.Device {
	return h.device
}
