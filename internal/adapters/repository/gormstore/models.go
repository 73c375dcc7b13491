package gormstore

import (
	"time"

	"github.com/okian/finsight/internal/domain/model"
)

type articleRow struct {
	URL              string `gorm:"primaryKey"`
	SourceDomain     string
	Title            string
	Summary          string
	RawText          string
	PublishedAt      time.Time `gorm:"index"`
	FetchedAt        time.Time
	ImageURL         string
	Lang             string
	ContentEmbedding []float32 `gorm:"serializer:json;type:text"`
	ContentHash      int64     `gorm:"index"`
}

func (articleRow) TableName() string { return "articles" }

type packetRow struct {
	ID         uint            `gorm:"primaryKey"`
	ArticleURL string          `gorm:"uniqueIndex;not null"`
	ClusterIDs []string        `gorm:"serializer:json;type:text"`
	Extracted  model.Extracted `gorm:"serializer:json;type:text"`
	Impact     model.Impact    `gorm:"serializer:json;type:text"`
	Narrative  model.Narrative `gorm:"serializer:json;type:text"`
	Important  bool            `gorm:"index"`
	CreatedAt  time.Time
}

func (packetRow) TableName() string { return "analysis_packets" }

type assetRow struct {
	Ticker string `gorm:"primaryKey"`
	Label  string
}

func (assetRow) TableName() string { return "assets" }

type allocationRow struct {
	AssetTicker       string `gorm:"primaryKey"`
	AllocationPercent float64
}

func (allocationRow) TableName() string { return "allocations" }

func toArticleRow(a model.Article) articleRow {
	return articleRow{
		URL:              a.URL,
		SourceDomain:     a.SourceDomain,
		Title:            a.Title,
		Summary:          a.Summary,
		RawText:          a.RawText,
		PublishedAt:      a.PublishedAt.UTC(),
		FetchedAt:        a.FetchedAt.UTC(),
		ImageURL:         a.ImageURL,
		Lang:             a.Lang,
		ContentEmbedding: a.ContentEmbedding,
		ContentHash:      int64(a.ContentHash), //nolint:gosec // bit-preserving round trip
	}
}

func (r articleRow) toModel() model.Article {
	return model.Article{
		URL:              r.URL,
		SourceDomain:     r.SourceDomain,
		Title:            r.Title,
		Summary:          r.Summary,
		RawText:          r.RawText,
		PublishedAt:      r.PublishedAt.UTC(),
		FetchedAt:        r.FetchedAt.UTC(),
		ImageURL:         r.ImageURL,
		Lang:             r.Lang,
		ContentEmbedding: r.ContentEmbedding,
		ContentHash:      uint64(r.ContentHash), //nolint:gosec // bit-preserving round trip
	}
}

func toPacketRow(p model.AnalysisPacket) packetRow {
	return packetRow{
		ArticleURL: p.ArticleURL,
		ClusterIDs: p.ClusterIDs,
		Extracted:  p.Extracted,
		Impact:     p.Impact,
		Narrative:  p.Narrative,
		Important:  p.Important,
		CreatedAt:  p.CreatedAt.UTC(),
	}
}

func (r packetRow) toModel() model.AnalysisPacket {
	return model.AnalysisPacket{
		ArticleURL: r.ArticleURL,
		ClusterIDs: r.ClusterIDs,
		Extracted:  r.Extracted,
		Impact:     r.Impact,
		Narrative:  r.Narrative,
		Important:  r.Important,
		CreatedAt:  r.CreatedAt.UTC(),
	}
}
