package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/okian/finsight/internal/domain/contract"
	"github.com/okian/finsight/internal/domain/model"
	"github.com/okian/finsight/pkg/logger"
)

const defaultExtractTokens = 700

// llmExtraction is the JSON the model must return.
type llmExtraction struct {
	EventType        string             `json:"event_type" validate:"required,oneof=earnings merger monetary_policy guidance regulation general"`
	Tickers          []string           `json:"tickers" validate:"max=20,dive,required,max=10"`
	Companies        []string           `json:"companies"`
	Sectors          []string           `json:"sectors"`
	Geos             []string           `json:"geos"`
	Markets          []string           `json:"markets"`
	Numerics         map[string]float64 `json:"numerics"`
	ImpactScore      *int               `json:"impact_score" validate:"required,min=0,max=100"`
	Confidence       *int               `json:"confidence" validate:"required,min=0,max=100"`
	Novelty          *int               `json:"novelty" validate:"required,min=0,max=100"`
	ExecutiveSummary string             `json:"executive_summary" validate:"required"`
	Bullets          []string           `json:"bullets" validate:"max=8"`
	Actions          []string           `json:"actions"`
	Risks            []string           `json:"risks"`
}

// LLMExtractor asks a language model for the extraction. When a fallback is
// configured, model failures degrade to it instead of failing the analysis.
type LLMExtractor struct {
	gen       Generator
	fallback  Extractor
	maxTokens int
	log       logger.Logger
}

// LLMOption configures an LLMExtractor.
type LLMOption func(*LLMExtractor)

// WithFallback sets the extractor used when the model call or contract fails.
func WithFallback(e Extractor) LLMOption {
	return func(x *LLMExtractor) { x.fallback = e }
}

// WithMaxTokens caps the model response.
func WithMaxTokens(n int) LLMOption {
	return func(x *LLMExtractor) {
		if n > 0 {
			x.maxTokens = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) LLMOption {
	return func(x *LLMExtractor) { x.log = l }
}

// NewLLMExtractor creates a model-backed extractor.
func NewLLMExtractor(gen Generator, opts ...LLMOption) *LLMExtractor {
	x := &LLMExtractor{gen: gen, maxTokens: defaultExtractTokens, log: logger.Nop()}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Extract implements Extractor.
func (x *LLMExtractor) Extract(ctx context.Context, a model.Article) (Result, error) {
	res, err := x.extract(ctx, a)
	if err == nil || x.fallback == nil {
		return res, err
	}
	x.log.Warn(ctx, "llm extraction failed, using fallback", logger.String("url", a.URL), logger.Error(err))
	return x.fallback.Extract(ctx, a)
}

func (x *LLMExtractor) extract(ctx context.Context, a model.Article) (Result, error) {
	raw, err := x.gen.Generate(ctx, buildPrompt(a), x.maxTokens)
	if err != nil {
		return Result{}, fmt.Errorf("extract: generate: %w", err)
	}

	var out llmExtraction
	if err := contract.Decode(raw, &out); err != nil {
		return Result{}, fmt.Errorf("extract: %w", err)
	}

	citations := []string{a.URL}
	return Result{
		Extracted: model.Extracted{
			EventType: out.EventType,
			Tickers:   upper(out.Tickers),
			Companies: out.Companies,
			Sectors:   out.Sectors,
			Geos:      out.Geos,
			Markets:   out.Markets,
			Numerics:  out.Numerics,
		},
		Raw: model.Impact{
			ImpactScore: *out.ImpactScore,
			Confidence:  *out.Confidence,
			Novelty:     *out.Novelty,
		},
		Narrative: model.Narrative{
			ExecutiveSummary: out.ExecutiveSummary,
			Bullets:          out.Bullets,
			Actions:          out.Actions,
			Risks:            out.Risks,
			Citations:        citations,
		},
	}, nil
}

func upper(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.ToUpper(strings.TrimSpace(s)))
	}
	return out
}

func buildPrompt(a model.Article) string {
	var b strings.Builder
	b.WriteString("You are a financial news analyst. Read the article and return ONLY a JSON object with keys:\n")
	b.WriteString(`event_type (one of earnings, merger, monetary_policy, guidance, regulation, general), `)
	b.WriteString(`tickers, companies, sectors, geos, markets (arrays of strings), numerics (object of name -> number), `)
	b.WriteString(`impact_score, confidence, novelty (integers 0-100), executive_summary (string), bullets, actions, risks (arrays of strings).`)
	b.WriteString("\n\nSource: ")
	b.WriteString(a.SourceDomain)
	b.WriteString("\nPublished: ")
	b.WriteString(a.PublishedAt.UTC().Format("2006-01-02 15:04 MST"))
	b.WriteString("\nTitle: ")
	b.WriteString(a.Title)
	b.WriteString("\n\n")
	b.WriteString(a.Body())
	return b.String()
}
