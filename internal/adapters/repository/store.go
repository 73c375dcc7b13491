// Package repository persists articles, analysis packets, assets and allocations.
//
// Implementations: MemoryStore (treap-indexed, in-process), gormstore (SQLite
// through GORM) and pgstore (PostgreSQL through pgx). All of them report
// model.ErrNotFound, model.ErrConflict and model.ErrValidation.
package repository

import (
	"context"
	"time"

	"github.com/okian/finsight/internal/domain/model"
)

// Store provides read/write access to persisted pipeline state.
type Store interface {
	// SaveArticle inserts or refreshes an article keyed by URL.
	SaveArticle(ctx context.Context, a model.Article) error
	// GetArticle returns ErrNotFound for an unknown URL.
	GetArticle(ctx context.Context, url string) (model.Article, error)

	// InsertAnalysisPacket stores the packet for an existing article.
	// A second packet for the same URL fails with ErrConflict and changes nothing.
	InsertAnalysisPacket(ctx context.Context, p model.AnalysisPacket) error
	// GetAnalysisPacket returns ErrNotFound when the article was never analyzed.
	GetAnalysisPacket(ctx context.Context, url string) (model.AnalysisPacket, error)

	// QueryImportantArticles returns up to limit important analyzed articles,
	// most recently published first.
	QueryImportantArticles(ctx context.Context, limit int) ([]model.AnalyzedArticle, error)
	// RecentArticles returns up to limit articles, most recently published first.
	RecentArticles(ctx context.Context, limit int) ([]model.Article, error)
	// AnalyzedSince returns analyzed articles published at or after since, newest first.
	AnalyzedSince(ctx context.Context, since time.Time) ([]model.AnalyzedArticle, error)

	GetAssets(ctx context.Context) ([]model.Asset, error)
	GetAllocations(ctx context.Context) ([]model.Allocation, error)
	// UpsertAsset inserts or relabels an asset.
	UpsertAsset(ctx context.Context, a model.Asset) error
	// CreateAllocation adds an allocation row for an existing asset.
	CreateAllocation(ctx context.Context, a model.Allocation) error
	// UpdateAllocation changes an existing allocation. It never creates a row.
	UpdateAllocation(ctx context.Context, ticker string, percent float64) error

	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// Stats summarizes store contents.
type Stats struct {
	Articles    int `json:"articles"`
	Packets     int `json:"packets"`
	Important   int `json:"important"`
	Assets      int `json:"assets"`
	Allocations int `json:"allocations"`
}
