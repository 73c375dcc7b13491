package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/finsight/internal/adapters/llm"
	"github.com/okian/finsight/internal/adapters/marketdata"
	"github.com/okian/finsight/internal/adapters/repository"
	"github.com/okian/finsight/internal/adapters/repository/gormstore"
	"github.com/okian/finsight/internal/adapters/repository/pgstore"
	"github.com/okian/finsight/internal/config"
	"github.com/okian/finsight/internal/domain/extract"
	"github.com/okian/finsight/pkg/logger"
)

// OpenStore opens the storage backend named by cfg.StorageDriver.
func OpenStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	switch cfg.StorageDriver {
	case config.StorageSQLite:
		st, err := gormstore.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return st, nil
	case config.StoragePostgres:
		st, err := pgstore.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return st, nil
	default:
		return repository.NewMemoryStore(ctx), nil
	}
}

// NewGenerator builds the configured language model. A missing API key is
// not an error: it returns nil and the service runs without insights and chat.
func NewGenerator(ctx context.Context, cfg *config.Config, log logger.Logger) (Generator, error) {
	gen, err := llm.New(ctx, cfg.LLMProvider, cfg.LLMAPIKey, cfg.LLMModel,
		llm.WithTimeout(cfg.LLMTimeout()),
		llm.WithLogger(log.Named("llm")),
	)
	if errors.Is(err, llm.ErrMissingAPIKey) {
		log.Warn(ctx, "llm_api_key not set; language model disabled", logger.String("provider", cfg.LLMProvider))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("language model: %w", err)
	}
	return gen, nil
}

// Options translates cfg into service options around already opened adapters.
// gen may be nil. Without a market data key the portfolio endpoints report
// the gateway as unavailable.
func Options(cfg *config.Config, st repository.Store, gen Generator, log logger.Logger) []Option {
	opts := []Option{
		WithLogger(log),
		WithStore(st),
		WithWorkerCount(cfg.WorkerCount),
		WithQueueSize(cfg.QueueSize),
		WithDedupeSize(cfg.DedupeSize),
		WithThresholds(cfg.ImpactThreshold, cfg.ConfidenceThreshold, cfg.NoveltyThreshold),
		WithClustering(cfg.SimilarityThreshold, cfg.DedupeWindow(), cfg.FingerprintCapacity),
		WithPortfolioLimits(cfg.PortfolioConcurrency, cfg.AssetTimeout()),
		WithTokenBudgets(cfg.InsightMaxTokens, cfg.ChatMaxTokens),
		WithChat(cfg.ChatContextArticles, cfg.SessionTTL()),
	}
	if cfg.MarketDataAPIKey != "" {
		opts = append(opts, WithGateway(marketdata.NewClient(cfg.MarketDataAPIKey,
			marketdata.WithBaseURL(cfg.MarketDataBaseURL),
			marketdata.WithTimeout(cfg.MarketDataTimeout()),
			marketdata.WithRateLimit(cfg.MarketDataRateLimit),
			marketdata.WithLogger(log.Named("marketdata")),
		)))
	}
	if gen != nil {
		opts = append(opts, WithGenerator(gen))
		if cfg.Extractor == config.ExtractorLLM {
			opts = append(opts, WithExtractor(extract.NewLLMExtractor(gen,
				extract.WithFallback(extract.NewRuleExtractor()),
				extract.WithLogger(log.Named("extract")),
			)))
		}
	}
	return opts
}
