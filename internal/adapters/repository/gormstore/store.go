// Package gormstore implements repository.Store on SQLite through GORM.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/okian/finsight/internal/adapters/repository"
	"github.com/okian/finsight/internal/domain/model"
	"github.com/okian/finsight/pkg/metrics"
)

// Store is a GORM-backed repository.Store.
type Store struct {
	db *gorm.DB
}

var _ repository.Store = (*Store)(nil)

// Open connects to the SQLite database at path and migrates the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("gormstore: open %s: %w", path, err)
	}
	if err := db.WithContext(ctx).AutoMigrate(&articleRow{}, &packetRow{}, &assetRow{}, &allocationRow{}); err != nil {
		return nil, fmt.Errorf("gormstore: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func observe(op string, start time.Time) {
	metrics.RecordRepositoryLatency(op, float64(time.Since(start).Microseconds())/1000)
}

func isDuplicate(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, model.ErrNotFound)
	}
	return fmt.Errorf("gormstore: %s: %w", what, err)
}

// SaveArticle implements repository.Store.
func (s *Store) SaveArticle(ctx context.Context, a model.Article) error {
	defer observe("save_article", time.Now())
	if err := a.Validate(); err != nil {
		return err
	}
	row := toArticleRow(a)
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("gormstore: save article: %w", err)
	}
	return nil
}

// GetArticle implements repository.Store.
func (s *Store) GetArticle(ctx context.Context, url string) (model.Article, error) {
	var row articleRow
	if err := s.db.WithContext(ctx).First(&row, "url = ?", url).Error; err != nil {
		return model.Article{}, notFound(err, fmt.Sprintf("article %q", url))
	}
	return row.toModel(), nil
}

// InsertAnalysisPacket implements repository.Store.
func (s *Store) InsertAnalysisPacket(ctx context.Context, p model.AnalysisPacket) error {
	defer observe("insert_packet", time.Now())
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&articleRow{}).Where("url = ?", p.ArticleURL).Count(&n).Error; err != nil {
			return fmt.Errorf("gormstore: insert packet: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("article %q: %w", p.ArticleURL, model.ErrNotFound)
		}
		row := toPacketRow(p)
		if err := tx.Create(&row).Error; err != nil {
			if isDuplicate(err) {
				return fmt.Errorf("packet for %q: %w", p.ArticleURL, model.ErrConflict)
			}
			return fmt.Errorf("gormstore: insert packet: %w", err)
		}
		return nil
	})
}

// GetAnalysisPacket implements repository.Store.
func (s *Store) GetAnalysisPacket(ctx context.Context, url string) (model.AnalysisPacket, error) {
	var row packetRow
	if err := s.db.WithContext(ctx).First(&row, "article_url = ?", url).Error; err != nil {
		return model.AnalysisPacket{}, notFound(err, fmt.Sprintf("packet for %q", url))
	}
	return row.toModel(), nil
}

// joined scans articles with their packets.
type joined struct {
	articleRow
	Packet packetRow `gorm:"embedded;embeddedPrefix:p_"`
}

func (s *Store) analyzed(ctx context.Context, where string, args []any, limit int) ([]model.AnalyzedArticle, error) {
	q := s.db.WithContext(ctx).
		Table("articles").
		Select(`articles.*, p.id AS p_id, p.article_url AS p_article_url, p.cluster_ids AS p_cluster_ids,
			p.extracted AS p_extracted, p.impact AS p_impact, p.narrative AS p_narrative,
			p.important AS p_important, p.created_at AS p_created_at`).
		Joins("JOIN analysis_packets p ON p.article_url = articles.url").
		Where(where, args...).
		Order("articles.published_at DESC, articles.url ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []joined
	if err := q.Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("gormstore: query analyzed: %w", err)
	}
	out := make([]model.AnalyzedArticle, len(rows))
	for i, r := range rows {
		out[i] = model.AnalyzedArticle{Article: r.articleRow.toModel(), Packet: r.Packet.toModel()}
	}
	return out, nil
}

// QueryImportantArticles implements repository.Store.
func (s *Store) QueryImportantArticles(ctx context.Context, limit int) ([]model.AnalyzedArticle, error) {
	defer observe("query_important", time.Now())
	if limit < 1 {
		return nil, repository.ErrInvalidLimit
	}
	return s.analyzed(ctx, "p.important = ?", []any{true}, limit)
}

// AnalyzedSince implements repository.Store.
func (s *Store) AnalyzedSince(ctx context.Context, since time.Time) ([]model.AnalyzedArticle, error) {
	return s.analyzed(ctx, "articles.published_at >= ?", []any{since.UTC()}, 0)
}

// RecentArticles implements repository.Store.
func (s *Store) RecentArticles(ctx context.Context, limit int) ([]model.Article, error) {
	defer observe("recent_articles", time.Now())
	if limit < 1 {
		return nil, repository.ErrInvalidLimit
	}
	var rows []articleRow
	err := s.db.WithContext(ctx).Order("published_at DESC, url ASC").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("gormstore: recent articles: %w", err)
	}
	out := make([]model.Article, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

// GetAssets implements repository.Store.
func (s *Store) GetAssets(ctx context.Context) ([]model.Asset, error) {
	var rows []assetRow
	if err := s.db.WithContext(ctx).Order("ticker").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("gormstore: assets: %w", err)
	}
	out := make([]model.Asset, len(rows))
	for i, r := range rows {
		out[i] = model.Asset{Ticker: r.Ticker, Label: r.Label}
	}
	return out, nil
}

// GetAllocations implements repository.Store.
func (s *Store) GetAllocations(ctx context.Context) ([]model.Allocation, error) {
	var rows []allocationRow
	if err := s.db.WithContext(ctx).Order("asset_ticker").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("gormstore: allocations: %w", err)
	}
	out := make([]model.Allocation, len(rows))
	for i, r := range rows {
		out[i] = model.Allocation{AssetTicker: r.AssetTicker, AllocationPercent: r.AllocationPercent}
	}
	return out, nil
}

// UpsertAsset implements repository.Store.
func (s *Store) UpsertAsset(ctx context.Context, a model.Asset) error {
	if a.Ticker == "" {
		return fmt.Errorf("%w: ticker is required", model.ErrValidation)
	}
	row := assetRow{Ticker: a.Ticker, Label: a.Label}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("gormstore: upsert asset: %w", err)
	}
	return nil
}

// CreateAllocation implements repository.Store.
func (s *Store) CreateAllocation(ctx context.Context, a model.Allocation) error {
	if err := repository.ValidateAllocation(a.AssetTicker, a.AllocationPercent); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&assetRow{}).Where("ticker = ?", a.AssetTicker).Count(&n).Error; err != nil {
			return fmt.Errorf("gormstore: create allocation: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("asset %q: %w", a.AssetTicker, model.ErrNotFound)
		}
		row := allocationRow{AssetTicker: a.AssetTicker, AllocationPercent: a.AllocationPercent}
		if err := tx.Create(&row).Error; err != nil {
			if isDuplicate(err) {
				return fmt.Errorf("allocation for %q: %w", a.AssetTicker, model.ErrConflict)
			}
			return fmt.Errorf("gormstore: create allocation: %w", err)
		}
		return nil
	})
}

// UpdateAllocation implements repository.Store.
func (s *Store) UpdateAllocation(ctx context.Context, ticker string, percent float64) error {
	defer observe("update_allocation", time.Now())
	if err := repository.ValidateAllocation(ticker, percent); err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Model(&allocationRow{}).
		Where("asset_ticker = ?", ticker).
		Update("allocation_percent", percent)
	if res.Error != nil {
		return fmt.Errorf("gormstore: update allocation: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("allocation for %q: %w", ticker, model.ErrNotFound)
	}
	return nil
}

// Stats implements repository.Store.
func (s *Store) Stats(ctx context.Context) (repository.Stats, error) {
	var st repository.Stats
	counts := []struct {
		model any
		where string
		dst   *int
	}{
		{&articleRow{}, "", &st.Articles},
		{&packetRow{}, "", &st.Packets},
		{&packetRow{}, "important = true", &st.Important},
		{&assetRow{}, "", &st.Assets},
		{&allocationRow{}, "", &st.Allocations},
	}
	for _, c := range counts {
		q := s.db.WithContext(ctx).Model(c.model)
		if c.where != "" {
			q = q.Where(c.where)
		}
		var n int64
		if err := q.Count(&n).Error; err != nil {
			return st, fmt.Errorf("gormstore: stats: %w", err)
		}
		*c.dst = int(n)
	}
	return st, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
