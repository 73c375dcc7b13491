package analysis

import (
	"time"

	"github.com/okian/finsight/internal/domain/dedupe"
	"github.com/okian/finsight/internal/domain/extract"
	"github.com/okian/finsight/internal/domain/scoring"
	"github.com/okian/finsight/pkg/logger"
)

// Option configures the Engine.
type Option func(*Engine)

// WithExtractor replaces the rule-based extractor.
func WithExtractor(x extract.Extractor) Option {
	return func(e *Engine) {
		if x != nil {
			e.extractor = x
		}
	}
}

// WithScorer replaces the default rule scorer.
func WithScorer(s *scoring.RuleScorer) Option {
	return func(e *Engine) {
		if s != nil {
			e.scorer = s
		}
	}
}

// WithIndex replaces the default fingerprint index.
func WithIndex(ix *dedupe.FingerprintIndex) Option {
	return func(e *Engine) {
		if ix != nil {
			e.index = ix
		}
	}
}

// WithClock overrides time.Now for FetchedAt and CreatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}
