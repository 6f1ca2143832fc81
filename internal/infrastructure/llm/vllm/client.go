package vllm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/kirillkom/pdf-summarizer/internal/core/domain"
	"github.com/kirillkom/pdf-summarizer/internal/infrastructure/resilience"
)

// Client talks to one vLLM OpenAI-compatible server for one served model
// (the LoRA adapter name, or the base model when no adapter is used).
type Client struct {
	baseURL    string
	model      string
	apiKey     string
	httpClient *http.Client
	api        openai.Client
	exec       *resilience.Executor

	// specialTokens are dropped before detokenizing when asked to skip them.
	specialTokens []int
}

func NewClient(baseURL, model, apiKey string, httpClient *http.Client, exec *resilience.Executor, specialTokens []int) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if exec == nil {
		exec = resilience.NewExecutor(resilience.DefaultConfig())
	}
	key := apiKey
	if key == "" {
		key = "EMPTY"
	}
	return &Client{
		baseURL:    baseURL,
		model:      model,
		apiKey:     apiKey,
		httpClient: httpClient,
		api: openai.NewClient(
			option.WithBaseURL(baseURL+"/v1/"),
			option.WithAPIKey(key),
			option.WithHTTPClient(httpClient),
			option.WithMaxRetries(0),
		),
		exec:          exec,
		specialTokens: slices.Clone(specialTokens),
	}
}

func (c *Client) Model() string {
	return c.model
}

// Encode tokenizes text with the served model's tokenizer, special tokens
// included, exactly as the model would see it.
func (c *Client) Encode(ctx context.Context, text string) ([]int, error) {
	request := map[string]any{
		"model":              c.model,
		"prompt":             text,
		"add_special_tokens": true,
	}
	var response struct {
		Count  int   `json:"count"`
		Tokens []int `json:"tokens"`
	}
	err := c.exec.Execute(ctx, "tokenize", func(ctx context.Context) error {
		return c.postJSON(ctx, "/tokenize", request, &response, "tokenize")
	}, classifyInferenceError, resilience.WithoutRetry())
	if err != nil {
		return nil, err
	}
	return response.Tokens, nil
}

func (c *Client) Decode(ctx context.Context, tokens []int, skipSpecialTokens bool) (string, error) {
	if skipSpecialTokens && len(c.specialTokens) > 0 {
		tokens = slices.DeleteFunc(slices.Clone(tokens), func(id int) bool {
			return slices.Contains(c.specialTokens, id)
		})
	}
	if len(tokens) == 0 {
		return "", nil
	}

	request := map[string]any{
		"model":  c.model,
		"tokens": tokens,
	}
	var response struct {
		Prompt string `json:"prompt"`
	}
	err := c.exec.Execute(ctx, "detokenize", func(ctx context.Context) error {
		return c.postJSON(ctx, "/detokenize", request, &response, "detokenize")
	}, classifyInferenceError, resilience.WithoutRetry())
	if err != nil {
		return "", err
	}
	return response.Prompt, nil
}

// Generate runs one completion over pre-tokenized input. Beam width is sent
// as n together with use_beam_search; the sampling knobs are forwarded as-is
// and the runtime decides how they combine with beam search.
func (c *Client) Generate(ctx context.Context, input []int, params domain.DecodingParams) (domain.Generation, error) {
	if len(input) == 0 {
		return domain.Generation{}, errors.New("generate: empty input sequence")
	}
	prompt := make([]int64, len(input))
	for i, id := range input {
		prompt[i] = int64(id)
	}

	body := openai.CompletionNewParams{
		Model:       openai.CompletionNewParamsModel(c.model),
		Prompt:      openai.CompletionNewParamsPromptUnion{OfArrayOfTokens: prompt},
		MaxTokens:   openai.Int(int64(params.MaxNewTokens)),
		Temperature: openai.Float(params.Temperature),
		TopP:        openai.Float(params.TopP),
		N:           openai.Int(int64(max(params.NumBeams, 1))),
	}
	if params.Seed != nil {
		body.Seed = openai.Int(*params.Seed)
	}
	opts := []option.RequestOption{
		option.WithJSONSet("use_beam_search", params.NumBeams > 1),
		option.WithJSONSet("early_stopping", params.EarlyStopping),
		option.WithJSONSet("skip_special_tokens", true),
		option.WithJSONSet("return_token_ids", true),
	}
	if !params.DoSample {
		body.Temperature = openai.Float(0)
	}

	var completion *openai.Completion
	err := c.exec.Execute(ctx, "generate", func(ctx context.Context) error {
		var err error
		completion, err = c.api.Completions.New(ctx, body, opts...)
		return err
	}, classifyInferenceError, resilience.WithoutRetry())
	if err != nil {
		return domain.Generation{}, fmt.Errorf("inference generate: %w", err)
	}
	if completion == nil || len(completion.Choices) == 0 {
		return domain.Generation{}, errors.New("inference generate: no choices returned")
	}

	best := completion.Choices[0]
	for _, choice := range completion.Choices {
		if choice.Index == 0 {
			best = choice
			break
		}
	}

	gen := domain.Generation{
		Text:         best.Text,
		FinishReason: string(best.FinishReason),
		PromptTokens: int(completion.Usage.PromptTokens),
	}
	if field, ok := best.JSON.ExtraFields["token_ids"]; ok {
		raw := field.Raw()
		if raw != "" && raw != "null" {
			if err := json.Unmarshal([]byte(raw), &gen.Tokens); err != nil {
				return domain.Generation{}, fmt.Errorf("decode output token ids: %w", err)
			}
		}
	}
	return gen, nil
}

func (c *Client) servedModels(ctx context.Context) ([]servedModel, error) {
	var out []servedModel
	err := c.exec.Execute(ctx, "list_models", func(ctx context.Context) error {
		page, err := c.api.Models.List(ctx)
		if err != nil {
			return err
		}
		out = out[:0]
		for _, m := range page.Data {
			served := servedModel{ID: m.ID}
			if field, ok := m.JSON.ExtraFields["root"]; ok {
				_ = json.Unmarshal([]byte(field.Raw()), &served.Root)
			}
			out = append(out, served)
		}
		return nil
	}, classifyInferenceError)
	return out, err
}

func (c *Client) loadAdapter(ctx context.Context, name, path string) error {
	request := map[string]any{
		"lora_name": name,
		"lora_path": path,
	}
	return c.exec.Execute(ctx, "load_adapter", func(ctx context.Context) error {
		return c.postJSON(ctx, "/v1/load_lora_adapter", request, nil, "load_adapter")
	}, classifyInferenceError)
}

type servedModel struct {
	ID   string
	Root string
}

func (m servedModel) matches(name string) bool {
	return name != "" && (m.ID == name || m.Root == name)
}
