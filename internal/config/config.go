package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type Config struct {
	APIPort  string `yaml:"api_port"  env:"API_PORT"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL"`

	InferenceURL   string `yaml:"inference_url"   env:"INFERENCE_URL"`
	AcceleratorURL string `yaml:"accelerator_url" env:"ACCELERATOR_URL"`
	InferenceKey   string `yaml:"inference_key"   env:"INFERENCE_API_KEY"`

	ModelName string `yaml:"model_name" env:"MODEL_NAME"`
	ModelPath string `yaml:"model_path" env:"MODEL_PATH"`
	BaseModel string `yaml:"base_model" env:"BASE_MODEL"`
	Device    string `yaml:"device"     env:"DEVICE"`

	MaxInputTokens        int           `yaml:"max_input_tokens"       env:"MAX_INPUT_TOKENS"`
	MaxOutputTokens       int           `yaml:"max_output_tokens"      env:"MAX_OUTPUT_TOKENS"`
	NumBeams              int           `yaml:"num_beams"              env:"NUM_BEAMS"`
	Temperature           float64       `yaml:"temperature"            env:"TEMPERATURE"`
	TopP                  float64       `yaml:"top_p"                  env:"TOP_P"`
	EOSTokenID            int           `yaml:"eos_token_id"           env:"EOS_TOKEN_ID"`
	GenerationSeed        int64         `yaml:"generation_seed"        env:"GENERATION_SEED"`
	GenerationConcurrency int64         `yaml:"generation_concurrency" env:"GENERATION_CONCURRENCY"`
	GenerationTimeout     time.Duration `yaml:"generation_timeout"     env:"GENERATION_TIMEOUT"`
	ModelLoadTimeout      time.Duration `yaml:"model_load_timeout"     env:"MODEL_LOAD_TIMEOUT"`

	MinTextChars   int    `yaml:"min_text_chars"   env:"MIN_TEXT_CHARS"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes" env:"MAX_UPLOAD_BYTES"`
	TempDir        string `yaml:"temp_dir"         env:"TEMP_DIR"`

	APIRateLimitRPS     float64       `yaml:"api_rate_limit_rps"    env:"API_RATE_LIMIT_RPS"`
	APIRateLimitBurst   int           `yaml:"api_rate_limit_burst"  env:"API_RATE_LIMIT_BURST"`
	APIMaxInFlight      int           `yaml:"api_max_in_flight"     env:"API_MAX_IN_FLIGHT"`
	APIBackpressureWait time.Duration `yaml:"api_backpressure_wait" env:"API_BACKPRESSURE_WAIT"`

	InferenceRetryMaxAttempts    int           `yaml:"inference_retry_max_attempts"     env:"INFERENCE_RETRY_MAX_ATTEMPTS"`
	InferenceRetryInitialBackoff time.Duration `yaml:"inference_retry_initial_backoff"  env:"INFERENCE_RETRY_INITIAL_BACKOFF"`
	InferenceRetryMaxBackoff     time.Duration `yaml:"inference_retry_max_backoff"      env:"INFERENCE_RETRY_MAX_BACKOFF"`
	InferenceBreakerEnabled      bool          `yaml:"inference_breaker_enabled"        env:"INFERENCE_BREAKER_ENABLED"`
	InferenceBreakerMinRequests  uint32        `yaml:"inference_breaker_min_requests"   env:"INFERENCE_BREAKER_MIN_REQUESTS"`
	InferenceBreakerFailureRatio float64       `yaml:"inference_breaker_failure_ratio"  env:"INFERENCE_BREAKER_FAILURE_RATIO"`
	InferenceBreakerOpenTimeout  time.Duration `yaml:"inference_breaker_open_timeout"   env:"INFERENCE_BREAKER_OPEN_TIMEOUT"`
	InferenceHTTPTimeout         time.Duration `yaml:"inference_http_timeout"           env:"INFERENCE_HTTP_TIMEOUT"`
}

func Defaults() Config {
	return Config{
		APIPort:  "5000",
		LogLevel: "info",

		InferenceURL: "http://localhost:8000",

		ModelName: "flan-t5-summarizer",
		ModelPath: "models/flan-t5-summarizer",
		BaseModel: "google/flan-t5-base",
		Device:    "auto",

		MaxInputTokens:        1024,
		MaxOutputTokens:       300,
		NumBeams:              4,
		Temperature:           0.3,
		TopP:                  0.9,
		EOSTokenID:            1,
		GenerationSeed:        -1,
		GenerationConcurrency: 1,
		GenerationTimeout:     120 * time.Second,
		ModelLoadTimeout:      10 * time.Minute,

		MinTextChars:   50,
		MaxUploadBytes: 32 << 20,

		APIRateLimitRPS:     0,
		APIRateLimitBurst:   10,
		APIMaxInFlight:      8,
		APIBackpressureWait: 250 * time.Millisecond,

		InferenceRetryMaxAttempts:    3,
		InferenceRetryInitialBackoff: 200 * time.Millisecond,
		InferenceRetryMaxBackoff:     2 * time.Second,
		InferenceBreakerEnabled:      true,
		InferenceBreakerMinRequests:  5,
		InferenceBreakerFailureRatio: 0.6,
		InferenceBreakerOpenTimeout:  30 * time.Second,
		InferenceHTTPTimeout:         5 * time.Minute,
	}
}

// Load reads defaults, then CONFIG_FILE (YAML) if set, then the environment.
// It panics on a malformed file or variable, like the rest of process startup.
func Load() Config {
	cfg, err := LoadFrom(os.Getenv("CONFIG_FILE"))
	if err != nil {
		panic(fmt.Sprintf("load config: %v", err))
	}
	return cfg
}

func LoadFrom(path string) (Config, error) {
	cfg := Defaults()
	if path = strings.TrimSpace(path); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.InferenceURL) == "" {
		errs = append(errs, errors.New("INFERENCE_URL is required"))
	}
	if strings.TrimSpace(c.ModelName) == "" {
		errs = append(errs, errors.New("MODEL_NAME is required"))
	}
	switch c.Device {
	case "auto", "accelerator", "cpu":
	default:
		errs = append(errs, fmt.Errorf("DEVICE must be auto, accelerator or cpu, got %q", c.Device))
	}
	if c.MaxInputTokens <= 0 {
		errs = append(errs, errors.New("MAX_INPUT_TOKENS must be positive"))
	}
	if c.MaxOutputTokens <= 0 {
		errs = append(errs, errors.New("MAX_OUTPUT_TOKENS must be positive"))
	}
	if c.NumBeams <= 0 {
		errs = append(errs, errors.New("NUM_BEAMS must be positive"))
	}
	if c.Temperature <= 0 {
		errs = append(errs, errors.New("TEMPERATURE must be positive"))
	}
	if c.TopP <= 0 || c.TopP > 1 {
		errs = append(errs, errors.New("TOP_P must be in (0, 1]"))
	}
	if c.GenerationConcurrency <= 0 {
		errs = append(errs, errors.New("GENERATION_CONCURRENCY must be positive"))
	}
	if c.MinTextChars < 0 {
		errs = append(errs, errors.New("MIN_TEXT_CHARS must not be negative"))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("MAX_UPLOAD_BYTES must be positive"))
	}
	return errors.Join(errs...)
}

// Seed returns the configured generation seed, or nil when sampling should
// stay unseeded (negative GENERATION_SEED).
func (c Config) Seed() *int64 {
	if c.GenerationSeed < 0 {
		return nil
	}
	seed := c.GenerationSeed
	return &seed
}
