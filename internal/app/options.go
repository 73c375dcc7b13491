package service

import (
	"time"

	"github.com/okian/finsight/internal/adapters/repository"
	"github.com/okian/finsight/internal/domain/extract"
	"github.com/okian/finsight/internal/domain/portfolio"
	"github.com/okian/finsight/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// Generator is the language model surface shared by extraction, insights and chat.
type Generator interface {
	extract.Generator
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStore sets the persistence backend. The service closes it on Stop.
func WithStore(st repository.Store) Option {
	return func(s *Service) {
		if st != nil {
			s.store = st
		}
	}
}

// WithGateway sets the market data gateway.
func WithGateway(g portfolio.Gateway) Option {
	return func(s *Service) {
		if g != nil {
			s.gateway = g
		}
	}
}

// WithGenerator sets the language model.
func WithGenerator(g Generator) Option {
	return func(s *Service) {
		if g != nil {
			s.generator = g
		}
	}
}

// WithExtractor overrides the signal extractor used by the analysis engine.
func WithExtractor(x extract.Extractor) Option {
	return func(s *Service) {
		if x != nil {
			s.extractor = x
		}
	}
}

// WithWorkerCount sets the number of analysis workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum number of articles waiting for analysis.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many ingested urls are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithThresholds sets the importance thresholds.
func WithThresholds(impact, confidence, novelty int) Option {
	return func(s *Service) {
		s.impactMin, s.confidenceMin, s.noveltyMin = impact, confidence, novelty
	}
}

// WithClustering configures the same-event fingerprint index.
func WithClustering(similarity float64, window time.Duration, capacity int) Option {
	return func(s *Service) {
		if similarity > 0 {
			s.similarity = similarity
		}
		if window > 0 {
			s.window = window
		}
		if capacity > 0 {
			s.fingerprintCapacity = capacity
		}
	}
}

// WithPortfolioLimits bounds portfolio fan-out and per-asset time.
func WithPortfolioLimits(concurrency int, assetTimeout time.Duration) Option {
	return func(s *Service) {
		if concurrency > 0 {
			s.portfolioConcurrency = concurrency
		}
		if assetTimeout > 0 {
			s.assetTimeout = assetTimeout
		}
	}
}

// WithTokenBudgets caps insight and chat answers.
func WithTokenBudgets(insightTokens, chatTokens int) Option {
	return func(s *Service) {
		if insightTokens > 0 {
			s.insightMaxTokens = insightTokens
		}
		if chatTokens > 0 {
			s.chatMaxTokens = chatTokens
		}
	}
}

// WithChat configures chat context size and session idle eviction.
func WithChat(contextArticles int, sessionTTL time.Duration) Option {
	return func(s *Service) {
		if contextArticles > 0 {
			s.chatContextArticles = contextArticles
		}
		if sessionTTL > 0 {
			s.sessionTTL = sessionTTL
		}
	}
}

// WithClock overrides time.Now for analysis and chat.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}
