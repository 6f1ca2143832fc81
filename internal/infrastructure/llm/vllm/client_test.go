package vllm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/pdf-summarizer/internal/core/domain"
	"github.com/kirillkom/pdf-summarizer/internal/infrastructure/resilience"
)

type fakeRuntime struct {
	mu sync.Mutex

	models        []map[string]any
	adapterLoads  []map[string]any
	completionReq map[string]any
	detokenizeReq map[string]any
	completion    string
	healthStatus  int
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		models: []map[string]any{
			{"id": "google/flan-t5-base", "object": "model", "created": 1, "owned_by": "vllm", "root": "google/flan-t5-base"},
		},
		completion: `{"id":"cmpl-1","object":"text_completion","created":1,"model":"flan-t5-summarizer",
			"choices":[{"index":0,"text":" A short summary. ","finish_reason":"stop","logprobs":null,"token_ids":[71,710,1]}],
			"usage":{"prompt_tokens":6,"completion_tokens":3,"total_tokens":9}}`,
		healthStatus: http.StatusOK,
	}
}

func (f *fakeRuntime) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	decode := func() map[string]any {
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		return payload
	}

	switch r.URL.Path {
	case "/health":
		w.WriteHeader(f.healthStatus)
	case "/v1/models":
		_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": f.models})
	case "/v1/load_lora_adapter":
		payload := decode()
		f.adapterLoads = append(f.adapterLoads, payload)
		f.models = append(f.models, map[string]any{"id": payload["lora_name"], "object": "model", "created": 1, "owned_by": "vllm", "root": payload["lora_path"]})
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("Success"))
	case "/tokenize":
		payload := decode()
		words := strings.Fields(payload["prompt"].(string))
		tokens := make([]int, 0, len(words)+1)
		for i := range words {
			tokens = append(tokens, 100+i)
		}
		tokens = append(tokens, 1)
		_ = json.NewEncoder(w).Encode(map[string]any{"count": len(tokens), "max_model_len": 2048, "tokens": tokens})
	case "/detokenize":
		f.detokenizeReq = decode()
		_ = json.NewEncoder(w).Encode(map[string]any{"prompt": " A short summary. "})
	case "/v1/completions":
		f.completionReq = decode()
		_, _ = w.Write([]byte(f.completion))
	default:
		http.NotFound(w, r)
	}
}

func noRetryExecutor() *resilience.Executor {
	return resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    1,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		BreakerEnabled:      false,
	})
}

func TestEncodeReturnsRuntimeTokens(t *testing.T) {
	server := httptest.NewServer(newFakeRuntime())
	defer server.Close()

	client := NewClient(server.URL, "flan-t5-summarizer", "", server.Client(), noRetryExecutor(), []int{0, 1})
	tokens, err := client.Encode(context.Background(), "three word prompt")
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if len(tokens) != 4 || tokens[3] != 1 {
		t.Fatalf("unexpected tokens %v", tokens)
	}
}

func TestDecodeDropsSpecialTokens(t *testing.T) {
	runtime := newFakeRuntime()
	server := httptest.NewServer(runtime)
	defer server.Close()

	client := NewClient(server.URL, "flan-t5-summarizer", "", server.Client(), noRetryExecutor(), []int{0, 1})
	text, err := client.Decode(context.Background(), []int{0, 71, 710, 1}, true)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if text != " A short summary. " {
		t.Fatalf("unexpected text %q", text)
	}
	sent, _ := runtime.detokenizeReq["tokens"].([]any)
	if len(sent) != 2 {
		t.Fatalf("expected special tokens stripped before detokenize, sent %v", sent)
	}
}

func TestGenerateSendsDecodingParameters(t *testing.T) {
	runtime := newFakeRuntime()
	server := httptest.NewServer(runtime)
	defer server.Close()

	seed := int64(11)
	client := NewClient(server.URL, "flan-t5-summarizer", "", server.Client(), noRetryExecutor(), nil)
	gen, err := client.Generate(context.Background(), []int{5, 6, 1}, domain.DecodingParams{
		MaxNewTokens:  300,
		NumBeams:      4,
		Temperature:   0.3,
		TopP:          0.9,
		DoSample:      true,
		EarlyStopping: true,
		Seed:          &seed,
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if gen.Text != " A short summary. " {
		t.Fatalf("unexpected text %q", gen.Text)
	}
	if len(gen.Tokens) != 3 || gen.Tokens[2] != 1 {
		t.Fatalf("expected output token ids, got %v", gen.Tokens)
	}
	if gen.PromptTokens != 6 {
		t.Fatalf("expected prompt token usage 6, got %d", gen.PromptTokens)
	}

	req := runtime.completionReq
	if req["model"] != "flan-t5-summarizer" {
		t.Fatalf("unexpected model %v", req["model"])
	}
	if req["use_beam_search"] != true || req["early_stopping"] != true {
		t.Fatalf("expected beam search flags, got %v", req)
	}
	if req["n"] != float64(4) || req["max_tokens"] != float64(300) {
		t.Fatalf("unexpected beam width or length cap: %v", req)
	}
	if req["temperature"] != 0.3 || req["top_p"] != 0.9 || req["seed"] != float64(11) {
		t.Fatalf("unexpected sampling parameters: %v", req)
	}
	prompt, ok := req["prompt"].([]any)
	if !ok || len(prompt) != 3 {
		t.Fatalf("expected token-array prompt, got %v", req["prompt"])
	}
}

func TestGenerateSurfacesRuntimeStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"prompt too long","type":"BadRequestError"}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "m", "", server.Client(), noRetryExecutor(), nil)
	_, err := client.Generate(context.Background(), []int{1}, domain.DecodingParams{MaxNewTokens: 1, NumBeams: 1, Temperature: 1, TopP: 1})
	if err == nil {
		t.Fatalf("expected error")
	}
	if code, ok := statusCode(err); !ok || code != http.StatusBadRequest {
		t.Fatalf("expected status 400 in error chain, got %v (%v)", code, err)
	}
	if classifyInferenceError(err).RecordFailure {
		t.Fatalf("client errors must not trip the breaker")
	}
}

func TestTokenizeIncludesHTTPBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model unavailable", http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.URL, "m", "", server.Client(), noRetryExecutor(), nil)
	_, err := client.Encode(context.Background(), "hello")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "model unavailable") {
		t.Fatalf("expected response body in error, got %v", err)
	}
	if !classifyInferenceError(err).Retryable {
		t.Fatalf("expected 502 to classify as retryable")
	}
}
