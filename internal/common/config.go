package common

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"

	"github.com/ternarybob/aequitas/internal/interfaces"
)

// Config represents the application configuration
type Config struct {
	Environment string         `toml:"environment"` // "development" or "production"
	Server      ServerConfig   `toml:"server"`
	Queue       QueueConfig    `toml:"queue"`
	Storage     StorageConfig  `toml:"storage"`
	Logging     LoggingConfig  `toml:"logging"`
	Pipeline    PipelineConfig `toml:"pipeline"`
	EODHD       EODHDConfig    `toml:"eodhd"`
	Gemini      GeminiConfig   `toml:"gemini"`
	Claude      ClaudeConfig   `toml:"claude"`
	LLM         LLMConfig      `toml:"llm"`
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"gt=0,lte=65535"`
	Host string `toml:"host" validate:"required"`
}

type QueueConfig struct {
	PollInterval      string `toml:"poll_interval"`      // e.g., "250ms" - how often workers poll for messages
	Concurrency       int    `toml:"concurrency"`        // Number of concurrent workers
	VisibilityTimeout string `toml:"visibility_timeout"` // e.g., "2m" - message visibility timeout for redelivery
	MaxReceive        int    `toml:"max_receive"`        // Max times a message can be received before dead-letter
	QueueName         string `toml:"queue_name"`         // Queue name prefix in Badger
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path" validate:"required"` // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"`         // Delete database on startup for clean runs
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05")
}

// PipelineConfig contains tuning for the analysis pipeline.
type PipelineConfig struct {
	StageTimeout    string `toml:"stage_timeout"`     // Per-provider-call timeout (default: "2m")
	JobTimeout      string `toml:"job_timeout"`       // Sweeper fails non-terminal jobs older than this (default: "30m")
	CommitAttempts  int    `toml:"commit_attempts"`   // Max optimistic-concurrency attempts per stage write
	CommitBackoff   string `toml:"commit_backoff"`    // Initial backoff between conflicting commits (default: "25ms")
	NewsLimit       int    `toml:"news_limit"`        // Max articles in the intelligence briefing
	HistoryDays     int    `toml:"history_days"`      // EOD history window for the forecast stage
	ForecastHorizon int    `toml:"forecast_horizon"`  // Projection horizon in days
	SweeperSchedule string `toml:"sweeper_schedule"`  // Cron schedule for the stale-job sweeper
	ListRecentLimit int    `toml:"list_recent_limit"` // Default history panel size
}

// EODHDConfig contains EODHD market data API configuration
type EODHDConfig struct {
	APIKey          string `toml:"api_key"`          // EODHD API key (or AEQUITAS_EODHD_API_KEY env)
	BaseURL         string `toml:"base_url"`         // Override for tests; empty uses the public API
	RateLimit       int    `toml:"rate_limit"`       // Requests per second
	RequestTimeout  string `toml:"request_timeout"`  // HTTP request timeout (default: "30s")
	DefaultExchange string `toml:"default_exchange"` // Exchange assumed for bare ticker codes
}

// GeminiConfig contains Google Gemini API configuration
type GeminiConfig struct {
	APIKey      string  `toml:"api_key"`     // Google Gemini API key
	Model       string  `toml:"model"`       // Model for AI operations
	MaxTokens   int     `toml:"max_tokens"`  // Maximum tokens in response
	Timeout     string  `toml:"timeout"`     // Operation timeout as duration string
	Temperature float32 `toml:"temperature"` // Completion temperature
}

// ClaudeConfig contains Anthropic Claude API configuration
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`     // Anthropic API key (ANTHROPIC_API_KEY or config)
	Model       string  `toml:"model"`       // Model for AI operations
	MaxTokens   int     `toml:"max_tokens"`  // Maximum tokens in response
	Timeout     string  `toml:"timeout"`     // Operation timeout as duration string
	Temperature float32 `toml:"temperature"` // Completion temperature
}

// LLMProvider represents the AI provider type
type LLMProvider string

const (
	// LLMProviderGemini uses Google Gemini API
	LLMProviderGemini LLMProvider = "gemini"
	// LLMProviderClaude uses Anthropic Claude API
	LLMProviderClaude LLMProvider = "claude"
)

// LLMConfig contains unified configuration for all AI providers
type LLMConfig struct {
	DefaultProvider LLMProvider `toml:"default_provider"` // "gemini" or "claude" (default: "gemini")
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability.
// Only user-facing settings should be exposed in aequitas.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8085,
			Host: "localhost",
		},
		Queue: QueueConfig{
			PollInterval:      "250ms",
			Concurrency:       4,
			VisibilityTimeout: "2m",
			MaxReceive:        3,
			QueueName:         "aequitas_stages",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout", "file"},
			TimeFormat: "15:04:05",
		},
		Pipeline: PipelineConfig{
			StageTimeout:    "2m",
			JobTimeout:      "30m",
			CommitAttempts:  5,
			CommitBackoff:   "25ms",
			NewsLimit:       10,
			HistoryDays:     730,
			ForecastHorizon: 30,
			SweeperSchedule: "@every 1m",
			ListRecentLimit: 20,
		},
		EODHD: EODHDConfig{
			RateLimit:       10,
			RequestTimeout:  "30s",
			DefaultExchange: "US",
		},
		Gemini: GeminiConfig{
			Model:       "gemini-2.5-flash",
			MaxTokens:   8192,
			Timeout:     "5m",
			Temperature: 0.3,
		},
		Claude: ClaudeConfig{
			Model:       "claude-3-5-haiku-20241022",
			MaxTokens:   8192,
			Timeout:     "5m",
			Temperature: 0.3,
		},
		LLM: LLMConfig{
			DefaultProvider: LLMProviderGemini,
		},
	}
}

// LoadFromFiles loads configuration from defaults, then applies each TOML
// file in order (later files override earlier ones), then env overrides.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks structural config constraints
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Duration fields are strings in TOML; check they parse
	durations := map[string]string{
		"queue.poll_interval":      c.Queue.PollInterval,
		"queue.visibility_timeout": c.Queue.VisibilityTimeout,
		"pipeline.stage_timeout":   c.Pipeline.StageTimeout,
		"pipeline.job_timeout":     c.Pipeline.JobTimeout,
		"pipeline.commit_backoff":  c.Pipeline.CommitBackoff,
		"eodhd.request_timeout":    c.EODHD.RequestTimeout,
	}
	for name, value := range durations {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid duration for %s: %w", name, err)
		}
	}

	return nil
}

// applyEnvOverrides applies AEQUITAS_* environment variable overrides
func applyEnvOverrides(config *Config) {
	if port := os.Getenv("AEQUITAS_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("AEQUITAS_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if path := os.Getenv("AEQUITAS_BADGER_PATH"); path != "" {
		config.Storage.Badger.Path = path
	}
	if level := os.Getenv("AEQUITAS_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if key := os.Getenv("AEQUITAS_EODHD_API_KEY"); key != "" {
		config.EODHD.APIKey = key
	}
	if key := os.Getenv("AEQUITAS_GEMINI_API_KEY"); key != "" {
		config.Gemini.APIKey = key
	}
	if key := os.Getenv("AEQUITAS_CLAUDE_API_KEY"); key != "" {
		config.Claude.APIKey = key
	}
	if provider := os.Getenv("AEQUITAS_LLM_PROVIDER"); provider != "" {
		config.LLM.DefaultProvider = LLMProvider(provider)
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	// Command-line flags have highest priority
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// ParseDuration parses a config duration string, falling back to def when empty or invalid
func ParseDuration(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return d
}

// ResolveAPIKey resolves an API key by name with environment variable priority.
// Resolution order: environment variables → KV store → config fallback → error.
func ResolveAPIKey(ctx context.Context, kvStorage interfaces.KeyValueStorage, name string, configFallback string) (string, error) {
	keyToEnvMapping := map[string][]string{
		"gemini_api_key":    {"AEQUITAS_GEMINI_API_KEY", "GEMINI_API_KEY"},
		"anthropic_api_key": {"AEQUITAS_CLAUDE_API_KEY", "ANTHROPIC_API_KEY"},
		"eodhd_api_key":     {"AEQUITAS_EODHD_API_KEY", "EODHD_API_KEY"},
	}

	if envVarNames, ok := keyToEnvMapping[name]; ok {
		for _, envVarName := range envVarNames {
			if envValue := os.Getenv(envVarName); envValue != "" {
				return envValue, nil
			}
		}
	}

	if kvStorage != nil {
		apiKey, err := kvStorage.Get(ctx, name)
		if err == nil && apiKey != "" {
			return apiKey, nil
		}
	}

	if configFallback != "" {
		return configFallback, nil
	}

	return "", fmt.Errorf("API key '%s' not found in environment, KV store, or config", name)
}
