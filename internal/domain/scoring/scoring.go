// Package scoring turns raw extraction signals into final impact scores and
// the importance verdict of an analysis packet.
package scoring

import (
	"context"
	"fmt"
	"math"

	"github.com/okian/finsight/internal/domain/model"
)

// Default importance thresholds.
const (
	DefaultImpactThreshold     = 60
	DefaultConfidenceThreshold = 50
	DefaultNoveltyThreshold    = 40

	defaultEventWeight = 1.0
)

// Labels returned by Label.
const (
	LabelHigh   = "high"
	LabelMedium = "medium"
	LabelLow    = "low"
)

// Option applies a configuration option to the RuleScorer.
type Option func(*RuleScorer)

// WithThresholds sets the importance thresholds. Non-positive values keep the default.
func WithThresholds(impact, confidence, novelty int) Option {
	return func(s *RuleScorer) {
		if impact > 0 {
			s.impactMin = impact
		}
		if confidence > 0 {
			s.confidenceMin = confidence
		}
		if novelty > 0 {
			s.noveltyMin = novelty
		}
	}
}

// WithEventWeights scales raw impact per event type.
func WithEventWeights(weights map[string]float64) Option {
	return func(s *RuleScorer) {
		s.eventWeights = make(map[string]float64, len(weights))
		for k, w := range weights {
			if w > 0 {
				s.eventWeights[k] = w
			}
		}
	}
}

// Input carries the raw signals for one article.
type Input struct {
	EventType string
	Raw       model.Impact
	// ClusterSize counts the article plus every same-event article already seen.
	ClusterSize int
}

// Result is the final scoring.
type Result struct {
	Impact    model.Impact
	Important bool
}

// Scorer computes final scores from raw signals.
type Scorer interface {
	Score(ctx context.Context, in Input) (Result, error)
}

// RuleScorer implements Scorer with deterministic rules.
type RuleScorer struct {
	eventWeights  map[string]float64
	impactMin     int
	confidenceMin int
	noveltyMin    int
}

// NewRuleScorer creates a scorer with default thresholds and event weights.
func NewRuleScorer(opts ...Option) *RuleScorer {
	s := &RuleScorer{
		eventWeights: map[string]float64{
			"earnings":        1.1,
			"merger":          1.2,
			"monetary_policy": 1.2,
			"guidance":        1.1,
			"regulation":      1.05,
			"general":         0.9,
		},
		impactMin:     DefaultImpactThreshold,
		confidenceMin: DefaultConfidenceThreshold,
		noveltyMin:    DefaultNoveltyThreshold,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score weights impact by event type, divides novelty by cluster size and
// applies the importance thresholds.
func (s *RuleScorer) Score(ctx context.Context, in Input) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("score: %w", err)
	}

	weight, ok := s.eventWeights[in.EventType]
	if !ok {
		weight = defaultEventWeight
	}

	impact := model.Impact{
		ImpactScore: model.ClampScore(int(math.Round(float64(in.Raw.ImpactScore) * weight))),
		Confidence:  model.ClampScore(in.Raw.Confidence),
		Novelty:     AdjustNovelty(in.Raw.Novelty, in.ClusterSize),
	}
	return Result{Impact: impact, Important: s.Important(impact)}, nil
}

// Important applies the thresholds to final scores.
func (s *RuleScorer) Important(i model.Impact) bool {
	return i.ImpactScore >= s.impactMin && i.Confidence >= s.confidenceMin && i.Novelty >= s.noveltyMin
}

// AdjustNovelty divides raw novelty by the cluster size (minimum 1).
func AdjustNovelty(raw, clusterSize int) int {
	if clusterSize < 1 {
		clusterSize = 1
	}
	return model.ClampScore(int(math.Round(float64(raw) / float64(clusterSize))))
}

// Label buckets an impact score. It is independent of the importance verdict.
func Label(impact int) string {
	switch {
	case impact > 75:
		return LabelHigh
	case impact > 50:
		return LabelMedium
	default:
		return LabelLow
	}
}
