// Package extract pulls entities, raw scores and a narrative out of an article.
package extract

import (
	"context"

	"github.com/okian/finsight/internal/domain/model"
)

// Result is the raw output of extraction, before clustering adjusts novelty.
type Result struct {
	Extracted model.Extracted
	Raw       model.Impact
	Narrative model.Narrative
}

// Extractor analyzes a single article.
type Extractor interface {
	Extract(ctx context.Context, a model.Article) (Result, error)
}

// Generator is the language model surface the LLM extractor needs.
type Generator interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
}
