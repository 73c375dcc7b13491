// Package config defines service configuration and its loader.
//
// Values are layered: defaults from New, then an optional YAML file named by
// FINSIGHT_CONFIG, then FINSIGHT_* environment variables (a local .env file is
// read first when present).
package config

import (
	"context"
	"fmt"
	"runtime"
	"time"
)

// Storage drivers.
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

// LLM providers.
const (
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// Extractors.
const (
	ExtractorRule = "rule"
	ExtractorLLM  = "llm"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects text or json output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// Storage.
	StorageDriver string `koanf:"storage_driver"`
	SQLitePath    string `koanf:"sqlite_path"`
	DatabaseURL   string `koanf:"database_url"`

	// Ingest pipeline.
	QueueSize   int `koanf:"queue_size"`
	WorkerCount int `koanf:"worker_count"`
	DedupeSize  int `koanf:"dedupe_size"`

	// Portfolio analytics.
	PortfolioConcurrency int `koanf:"portfolio_concurrency"`
	AssetTimeoutMS       int `koanf:"asset_timeout_ms"`

	// Market data provider.
	MarketDataBaseURL   string `koanf:"market_data_base_url"`
	MarketDataAPIKey    string `koanf:"market_data_api_key"`
	MarketDataRateLimit int    `koanf:"market_data_rate_limit"`
	MarketDataTimeoutMS int    `koanf:"market_data_timeout_ms"`

	// Language model.
	LLMProvider  string `koanf:"llm_provider"`
	LLMModel     string `koanf:"llm_model"`
	LLMAPIKey    string `koanf:"llm_api_key"`
	LLMTimeoutMS int    `koanf:"llm_timeout_ms"`
	Extractor    string `koanf:"extractor"`

	// Clustering and importance.
	SimilarityThreshold float64 `koanf:"similarity_threshold"`
	DedupeWindowHours   int     `koanf:"dedupe_window_hours"`
	FingerprintCapacity int     `koanf:"fingerprint_capacity"`
	ImpactThreshold     int     `koanf:"impact_threshold"`
	ConfidenceThreshold int     `koanf:"confidence_threshold"`
	NoveltyThreshold    int     `koanf:"novelty_threshold"`

	// Composition and chat.
	InsightMaxTokens    int `koanf:"insight_max_tokens"`
	ChatMaxTokens       int `koanf:"chat_max_tokens"`
	ChatContextArticles int `koanf:"chat_context_articles"`
	SessionTTLMinutes   int `koanf:"session_ttl_minutes"`
	TopInsightsLimit    int `koanf:"top_insights_limit"`
	MaxInsightsLimit    int `koanf:"max_insights_limit"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:             "info",
		LogFormat:            "text",
		Addr:                 ":9080",
		StorageDriver:        StorageMemory,
		SQLitePath:           "finsight.db",
		QueueSize:            10_000,
		WorkerCount:          runtime.NumCPU(),
		DedupeSize:           100_000,
		PortfolioConcurrency: 8,
		AssetTimeoutMS:       10_000,
		MarketDataBaseURL:    "https://eodhd.com/api",
		MarketDataRateLimit:  10,
		MarketDataTimeoutMS:  8_000,
		LLMProvider:          ProviderAnthropic,
		LLMModel:             "claude-3-5-haiku-latest",
		LLMTimeoutMS:         30_000,
		Extractor:            ExtractorRule,
		SimilarityThreshold:  0.92,
		DedupeWindowHours:    72,
		FingerprintCapacity:  50_000,
		ImpactThreshold:      60,
		ConfidenceThreshold:  50,
		NoveltyThreshold:     40,
		InsightMaxTokens:     400,
		ChatMaxTokens:        800,
		ChatContextArticles:  7,
		SessionTTLMinutes:    30,
		TopInsightsLimit:     3,
		MaxInsightsLimit:     50,
	}
}

// Validate checks value ranges and cross-field requirements.
func (c *Config) Validate(_ context.Context) error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.QueueSize <= 0, c.WorkerCount <= 0, c.DedupeSize <= 0:
		return fmt.Errorf("%w: queue_size, worker_count and dedupe_size must be positive", ErrInvalidConfig)
	case c.PortfolioConcurrency <= 0:
		return fmt.Errorf("%w: portfolio_concurrency must be positive", ErrInvalidConfig)
	case c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1:
		return fmt.Errorf("%w: similarity_threshold must be in (0,1]", ErrInvalidConfig)
	case c.ChatContextArticles <= 0 || c.TopInsightsLimit <= 0:
		return fmt.Errorf("%w: chat_context_articles and top_insights_limit must be positive", ErrInvalidConfig)
	}

	switch c.StorageDriver {
	case StorageMemory:
	case StorageSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("%w: sqlite_path required for sqlite storage", ErrInvalidConfig)
		}
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("%w: database_url required for postgres storage", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown storage_driver %q", ErrInvalidConfig, c.StorageDriver)
	}

	switch c.LLMProvider {
	case ProviderAnthropic, ProviderGemini:
	default:
		return fmt.Errorf("%w: unknown llm_provider %q", ErrInvalidConfig, c.LLMProvider)
	}

	switch c.Extractor {
	case ExtractorRule, ExtractorLLM:
	default:
		return fmt.Errorf("%w: unknown extractor %q", ErrInvalidConfig, c.Extractor)
	}
	return nil
}

// AssetTimeout returns the per-asset analytics timeout.
func (c *Config) AssetTimeout() time.Duration { return ms(c.AssetTimeoutMS) }

// MarketDataTimeout returns the market data HTTP timeout.
func (c *Config) MarketDataTimeout() time.Duration { return ms(c.MarketDataTimeoutMS) }

// LLMTimeout returns the language model call timeout.
func (c *Config) LLMTimeout() time.Duration { return ms(c.LLMTimeoutMS) }

// DedupeWindow returns the clustering recency window.
func (c *Config) DedupeWindow() time.Duration { return time.Duration(c.DedupeWindowHours) * time.Hour }

// SessionTTL returns the idle eviction age for chat sessions.
func (c *Config) SessionTTL() time.Duration { return time.Duration(c.SessionTTLMinutes) * time.Minute }

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }
