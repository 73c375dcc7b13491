package repository

import (
	"maps"
	"slices"

	"github.com/okian/finsight/internal/domain/model"
)

// ClonePacket deep-copies a packet so stored values cannot be mutated by callers.
func ClonePacket(p model.AnalysisPacket) model.AnalysisPacket {
	p.ClusterIDs = slices.Clone(p.ClusterIDs)
	p.Extracted.Tickers = slices.Clone(p.Extracted.Tickers)
	p.Extracted.Companies = slices.Clone(p.Extracted.Companies)
	p.Extracted.Sectors = slices.Clone(p.Extracted.Sectors)
	p.Extracted.Geos = slices.Clone(p.Extracted.Geos)
	p.Extracted.Markets = slices.Clone(p.Extracted.Markets)
	p.Extracted.Numerics = maps.Clone(p.Extracted.Numerics)
	p.Narrative.Bullets = slices.Clone(p.Narrative.Bullets)
	p.Narrative.Actions = slices.Clone(p.Narrative.Actions)
	p.Narrative.Risks = slices.Clone(p.Narrative.Risks)
	p.Narrative.Citations = slices.Clone(p.Narrative.Citations)
	return p
}

// CloneArticle copies the embedding slice.
func CloneArticle(a model.Article) model.Article {
	a.ContentEmbedding = slices.Clone(a.ContentEmbedding)
	return a
}
