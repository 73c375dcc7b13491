// Package insight asks a language model for a short, contract-checked
// insight about an analyzed article or a portfolio.
package insight

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/okian/finsight/internal/domain/contract"
	"github.com/okian/finsight/internal/domain/model"
	"github.com/okian/finsight/pkg/logger"
	"github.com/okian/finsight/pkg/metrics"
)

// DefaultMaxTokens caps the model answer.
const DefaultMaxTokens = 400

// Profile selects the prompt and the contract strictness.
type Profile string

const (
	ProfileArticle                  Profile = "article_insight"
	ProfilePortfolioStatus          Profile = "portfolio_status"
	ProfilePortfolioRecommendations Profile = "portfolio_recommendations"
)

// ParseProfile validates a profile name.
func ParseProfile(s string) (Profile, error) {
	switch p := Profile(s); p {
	case ProfileArticle, ProfilePortfolioStatus, ProfilePortfolioRecommendations:
		return p, nil
	}
	return "", fmt.Errorf("%w: unknown insight profile %q", model.ErrValidation, s)
}

func (p Profile) requiresImpactLevel() bool { return p != ProfilePortfolioStatus }

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// Subject is what an insight is about. Article profiles read Article,
// portfolio profiles read Assets.
type Subject struct {
	Article *model.AnalyzedArticle
	Assets  []model.AssetAnalytics
}

// Insight is the validated model answer.
type Insight struct {
	Title           string `json:"title"`
	ShortSummary    string `json:"short_summary"`
	ConfidenceScore int    `json:"confidence_score"`
	ImpactLevel     string `json:"impact_level,omitempty"`
}

type insightContract struct {
	Title           string `json:"title" validate:"required"`
	ShortSummary    string `json:"short_summary" validate:"required,maxwords=12"`
	ConfidenceScore *int   `json:"confidence_score" validate:"required,min=0,max=100"`
	ImpactLevel     string `json:"impact_level" validate:"omitempty,oneof=low medium high"`
}

// Composer builds insights. It holds no per-call state.
type Composer struct {
	gen       Generator
	maxTokens int
	log       logger.Logger
}

// Option configures the Composer.
type Option func(*Composer)

// WithMaxTokens caps the model answer.
func WithMaxTokens(n int) Option {
	return func(c *Composer) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Composer) {
		if l != nil {
			c.log = l
		}
	}
}

// NewComposer creates a composer over gen.
func NewComposer(gen Generator, opts ...Option) *Composer {
	c := &Composer{gen: gen, maxTokens: DefaultMaxTokens, log: logger.Nop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compose calls the model once and returns the validated insight.
// Contract violations wrap model.ErrComposition; generator errors are
// returned as they are.
func (c *Composer) Compose(ctx context.Context, subject Subject, profile Profile) (Insight, error) {
	const op = "insight.Compose"

	prompt, err := buildPrompt(subject, profile)
	if err != nil {
		return Insight{}, fmt.Errorf("%s: %w", op, err)
	}

	raw, err := c.gen.Generate(ctx, prompt, c.maxTokens)
	if err != nil {
		metrics.RecordInsightComposition(string(profile), "generate_error")
		return Insight{}, fmt.Errorf("%s: %w", op, err)
	}

	var out insightContract
	if err := contract.Decode(raw, &out); err != nil {
		return Insight{}, c.rejected(ctx, op, profile, err)
	}
	if profile.requiresImpactLevel() && out.ImpactLevel == "" {
		return Insight{}, c.rejected(ctx, op, profile, fmt.Errorf("%w: impact_level is required", model.ErrComposition))
	}

	metrics.RecordInsightComposition(string(profile), "ok")
	return Insight{
		Title:           out.Title,
		ShortSummary:    out.ShortSummary,
		ConfidenceScore: *out.ConfidenceScore,
		ImpactLevel:     out.ImpactLevel,
	}, nil
}

func (c *Composer) rejected(ctx context.Context, op string, profile Profile, err error) error {
	metrics.RecordInsightComposition(string(profile), "rejected")
	c.log.Warn(ctx, "insight rejected", logger.String("profile", string(profile)), logger.Error(err))
	if !errors.Is(err, model.ErrComposition) {
		err = fmt.Errorf("%w: %v", model.ErrComposition, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func buildPrompt(s Subject, p Profile) (string, error) {
	var b strings.Builder
	b.WriteString("You are a senior financial analyst.\n\n")

	switch p {
	case ProfileArticle:
		if s.Article == nil {
			return "", fmt.Errorf("%w: article is required for %s", model.ErrValidation, p)
		}
		writeArticle(&b, s.Article)
	case ProfilePortfolioStatus, ProfilePortfolioRecommendations:
		if len(s.Assets) == 0 {
			return "", fmt.Errorf("%w: no assets to describe", model.ErrValidation)
		}
		writePortfolio(&b, s.Assets, p)
	default:
		return "", fmt.Errorf("%w: unknown insight profile %q", model.ErrValidation, p)
	}

	b.WriteString("\nReturn ONLY a JSON object, no prose and no markdown, with these fields:\n")
	b.WriteString("- title: string\n")
	b.WriteString("- short_summary: string of 12 words or fewer\n")
	b.WriteString("- confidence_score: integer from 0 to 100\n")
	if p.requiresImpactLevel() {
		b.WriteString("- impact_level: one of \"low\", \"medium\", \"high\"\n")
	} else {
		b.WriteString("- impact_level: optional, one of \"low\", \"medium\", \"high\"\n")
	}
	return b.String(), nil
}

func writeArticle(b *strings.Builder, a *model.AnalyzedArticle) {
	b.WriteString("Describe the likely market impact of this news article. Repeat its title exactly.\n\n")
	fmt.Fprintf(b, "Title: %s\n", a.Article.Title)
	if a.Article.Summary != "" {
		fmt.Fprintf(b, "Summary: %s\n", a.Article.Summary)
	}
	fmt.Fprintf(b, "Content: %s\n", truncate(a.Article.Body(), 4000))
	if len(a.Packet.Extracted.Tickers) > 0 {
		fmt.Fprintf(b, "Tickers: %s\n", strings.Join(a.Packet.Extracted.Tickers, ", "))
	}
	fmt.Fprintf(b, "Event type: %s\n", a.Packet.Extracted.EventType)
	fmt.Fprintf(b, "Impact score: %d\n", a.Packet.Impact.ImpactScore)
}

func writePortfolio(b *strings.Builder, assets []model.AssetAnalytics, p Profile) {
	if p == ProfilePortfolioRecommendations {
		b.WriteString("Recommend how the investor should adjust this portfolio.\n\n")
	} else {
		b.WriteString("Summarize the current state of this portfolio.\n\n")
	}
	for _, a := range assets {
		if a.Failed() {
			fmt.Fprintf(b, "- %s (%s): allocation %.2f%%, no data (%s)\n", a.Ticker, a.Label, a.AllocationPercent, a.Error)
			continue
		}
		fmt.Fprintf(b, "- %s (%s): allocation %.2f%%, last %s, 7d %s, 1m %s, 3m %s, trend %s",
			a.Ticker, a.Label, a.AllocationPercent,
			num(a.LastPrice), pct(a.Change7DPct), pct(a.Change1MPct), pct(a.Change3MPct), a.Trend)
		if a.HighRisk != nil && *a.HighRisk {
			b.WriteString(", HIGH RISK")
		}
		b.WriteString("\n")
	}
}

func num(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", *v)
}

func pct(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%+.2f%%", *v)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
