// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Article is a news item. URL is its identity.
type Article struct {
	URL          string
	SourceDomain string
	Title        string
	Summary      string
	RawText      string
	PublishedAt  time.Time
	FetchedAt    time.Time
	ImageURL     string
	Lang         string

	// ContentEmbedding is optional; when empty a lexical fingerprint is derived.
	ContentEmbedding []float32
	// ContentHash is a 64-bit hash of the normalized content; zero means unset.
	ContentHash uint64
}

// Validate reports whether the article carries the fields analysis needs.
func (a Article) Validate() error {
	switch {
	case strings.TrimSpace(a.URL) == "":
		return fmt.Errorf("%w: article url is required", ErrValidation)
	case strings.TrimSpace(a.Title) == "":
		return fmt.Errorf("%w: article title is required", ErrValidation)
	case strings.TrimSpace(a.RawText) == "" && strings.TrimSpace(a.Summary) == "":
		return fmt.Errorf("%w: article text is required", ErrValidation)
	}
	return nil
}

// Body returns the text used for extraction, falling back to the summary.
func (a Article) Body() string {
	if strings.TrimSpace(a.RawText) != "" {
		return a.RawText
	}
	return a.Summary
}

// Extracted holds the entities and facts pulled out of an article.
type Extracted struct {
	EventType string             `json:"event_type"`
	Tickers   []string           `json:"tickers"`
	Companies []string           `json:"companies"`
	Sectors   []string           `json:"sectors"`
	Geos      []string           `json:"geos"`
	Markets   []string           `json:"markets"`
	Numerics  map[string]float64 `json:"numerics,omitempty"`
}

// Impact scores an article; every field is in [0,100].
type Impact struct {
	ImpactScore int `json:"impact_score"`
	Confidence  int `json:"confidence"`
	Novelty     int `json:"novelty"`
}

// Narrative is the human-readable summary attached to a packet.
type Narrative struct {
	ExecutiveSummary string   `json:"executive_summary"`
	Bullets          []string `json:"bullets"`
	Actions          []string `json:"actions"`
	Risks            []string `json:"risks"`
	Citations        []string `json:"citations"`
}

// AnalysisPacket is the immutable analysis of one article.
type AnalysisPacket struct {
	ArticleURL string    `json:"article_url"`
	ClusterIDs []string  `json:"cluster_ids"`
	Extracted  Extracted `json:"extracted"`
	Impact     Impact    `json:"impact"`
	Narrative  Narrative `json:"narrative"`
	Important  bool      `json:"important"`
	CreatedAt  time.Time `json:"created_at"`
}

// AnalyzedArticle pairs an article with its packet.
type AnalyzedArticle struct {
	Article Article
	Packet  AnalysisPacket
}

// ClampScore bounds v to [0,100].
func ClampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
