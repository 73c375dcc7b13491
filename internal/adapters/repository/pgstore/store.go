// Package pgstore implements repository.Store on PostgreSQL through pgx.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okian/finsight/internal/adapters/repository"
	"github.com/okian/finsight/internal/domain/model"
	"github.com/okian/finsight/pkg/metrics"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// Store is a pgx-backed repository.Store.
type Store struct {
	pool *pgxpool.Pool
}

var _ repository.Store = (*Store)(nil)

// Open connects to databaseURL and applies the schema.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("pgstore: parse config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgstore: connect: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgstore: migrate: %w", err)
	}
	return &Store{pool: pool}, nil
}

func observe(op string, start time.Time) {
	metrics.RecordRepositoryLatency(op, float64(time.Since(start).Microseconds())/1000)
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

const articleColumns = `url, source_domain, title, summary, raw_text, published_at, fetched_at,
	image_url, lang, content_embedding, content_hash`

func scanArticle(row pgx.Row, extra ...any) (model.Article, error) {
	var (
		a    model.Article
		hash int64
	)
	dest := append([]any{
		&a.URL, &a.SourceDomain, &a.Title, &a.Summary, &a.RawText, &a.PublishedAt, &a.FetchedAt,
		&a.ImageURL, &a.Lang, &a.ContentEmbedding, &hash,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return model.Article{}, err
	}
	a.ContentHash = uint64(hash) //nolint:gosec // bit-preserving round trip
	a.PublishedAt = a.PublishedAt.UTC()
	a.FetchedAt = a.FetchedAt.UTC()
	return a, nil
}

// SaveArticle implements repository.Store.
func (s *Store) SaveArticle(ctx context.Context, a model.Article) error {
	defer observe("save_article", time.Now())
	if err := a.Validate(); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO articles (`+articleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (url) DO UPDATE SET
			source_domain = EXCLUDED.source_domain, title = EXCLUDED.title, summary = EXCLUDED.summary,
			raw_text = EXCLUDED.raw_text, published_at = EXCLUDED.published_at, fetched_at = EXCLUDED.fetched_at,
			image_url = EXCLUDED.image_url, lang = EXCLUDED.lang,
			content_embedding = EXCLUDED.content_embedding, content_hash = EXCLUDED.content_hash`,
		a.URL, a.SourceDomain, a.Title, a.Summary, a.RawText, a.PublishedAt, a.FetchedAt,
		a.ImageURL, a.Lang, a.ContentEmbedding, int64(a.ContentHash), //nolint:gosec // bit-preserving round trip
	)
	if err != nil {
		return fmt.Errorf("pgstore: save article: %w", err)
	}
	return nil
}

// GetArticle implements repository.Store.
func (s *Store) GetArticle(ctx context.Context, url string) (model.Article, error) {
	a, err := scanArticle(s.pool.QueryRow(ctx, `SELECT `+articleColumns+` FROM articles WHERE url = $1`, url))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Article{}, fmt.Errorf("article %q: %w", url, model.ErrNotFound)
	}
	if err != nil {
		return model.Article{}, fmt.Errorf("pgstore: get article: %w", err)
	}
	return a, nil
}

// InsertAnalysisPacket implements repository.Store.
func (s *Store) InsertAnalysisPacket(ctx context.Context, p model.AnalysisPacket) error {
	defer observe("insert_packet", time.Now())
	extracted, impact, narrative, err := encodePacket(p)
	if err != nil {
		return fmt.Errorf("pgstore: encode packet: %w", err)
	}
	clusters := p.ClusterIDs
	if clusters == nil {
		clusters = []string{}
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO analysis_packets (article_url, cluster_ids, extracted, impact, narrative, important, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ArticleURL, clusters, extracted, impact, narrative, p.Important, p.CreatedAt,
	)
	switch pgCode(err) {
	case "":
	case uniqueViolation:
		return fmt.Errorf("packet for %q: %w", p.ArticleURL, model.ErrConflict)
	case foreignKeyViolation:
		return fmt.Errorf("article %q: %w", p.ArticleURL, model.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("pgstore: insert packet: %w", err)
	}
	return nil
}

func encodePacket(p model.AnalysisPacket) (extracted, impact, narrative []byte, err error) {
	if extracted, err = json.Marshal(p.Extracted); err != nil {
		return nil, nil, nil, err
	}
	if impact, err = json.Marshal(p.Impact); err != nil {
		return nil, nil, nil, err
	}
	if narrative, err = json.Marshal(p.Narrative); err != nil {
		return nil, nil, nil, err
	}
	return extracted, impact, narrative, nil
}

type packetScan struct {
	p                            model.AnalysisPacket
	extracted, impact, narrative []byte
}

func (ps *packetScan) dest() []any {
	return []any{&ps.p.ArticleURL, &ps.p.ClusterIDs, &ps.extracted, &ps.impact, &ps.narrative, &ps.p.Important, &ps.p.CreatedAt}
}

func (ps *packetScan) decode() (model.AnalysisPacket, error) {
	if err := json.Unmarshal(ps.extracted, &ps.p.Extracted); err != nil {
		return model.AnalysisPacket{}, err
	}
	if err := json.Unmarshal(ps.impact, &ps.p.Impact); err != nil {
		return model.AnalysisPacket{}, err
	}
	if err := json.Unmarshal(ps.narrative, &ps.p.Narrative); err != nil {
		return model.AnalysisPacket{}, err
	}
	ps.p.CreatedAt = ps.p.CreatedAt.UTC()
	return ps.p, nil
}

const packetColumns = `p.article_url, p.cluster_ids, p.extracted, p.impact, p.narrative, p.important, p.created_at`

// GetAnalysisPacket implements repository.Store.
func (s *Store) GetAnalysisPacket(ctx context.Context, url string) (model.AnalysisPacket, error) {
	var ps packetScan
	err := s.pool.QueryRow(ctx, `SELECT `+packetColumns+` FROM analysis_packets p WHERE p.article_url = $1`, url).Scan(ps.dest()...)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.AnalysisPacket{}, fmt.Errorf("packet for %q: %w", url, model.ErrNotFound)
	}
	if err != nil {
		return model.AnalysisPacket{}, fmt.Errorf("pgstore: get packet: %w", err)
	}
	p, err := ps.decode()
	if err != nil {
		return model.AnalysisPacket{}, fmt.Errorf("pgstore: decode packet: %w", err)
	}
	return p, nil
}

func (s *Store) analyzed(ctx context.Context, where, tail string, args ...any) ([]model.AnalyzedArticle, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT a.url, a.source_domain, a.title, a.summary, a.raw_text, a.published_at, a.fetched_at,
			a.image_url, a.lang, a.content_embedding, a.content_hash, `+packetColumns+`
		FROM articles a JOIN analysis_packets p ON p.article_url = a.url
		WHERE `+where+`
		ORDER BY a.published_at DESC, a.url ASC `+tail, args...)
	if err != nil {
		return nil, fmt.Errorf("pgstore: query analyzed: %w", err)
	}
	defer rows.Close()

	var out []model.AnalyzedArticle
	for rows.Next() {
		var ps packetScan
		a, err := scanArticle(rows, ps.dest()...)
		if err != nil {
			return nil, fmt.Errorf("pgstore: scan analyzed: %w", err)
		}
		p, err := ps.decode()
		if err != nil {
			return nil, fmt.Errorf("pgstore: decode packet: %w", err)
		}
		out = append(out, model.AnalyzedArticle{Article: a, Packet: p})
	}
	return out, rows.Err()
}

// QueryImportantArticles implements repository.Store.
func (s *Store) QueryImportantArticles(ctx context.Context, limit int) ([]model.AnalyzedArticle, error) {
	defer observe("query_important", time.Now())
	if limit < 1 {
		return nil, repository.ErrInvalidLimit
	}
	return s.analyzed(ctx, `p.important`, `LIMIT $1`, limit)
}

// AnalyzedSince implements repository.Store.
func (s *Store) AnalyzedSince(ctx context.Context, since time.Time) ([]model.AnalyzedArticle, error) {
	return s.analyzed(ctx, `a.published_at >= $1`, ``, since)
}

// RecentArticles implements repository.Store.
func (s *Store) RecentArticles(ctx context.Context, limit int) ([]model.Article, error) {
	defer observe("recent_articles", time.Now())
	if limit < 1 {
		return nil, repository.ErrInvalidLimit
	}
	rows, err := s.pool.Query(ctx, `SELECT `+articleColumns+` FROM articles ORDER BY published_at DESC, url ASC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("pgstore: recent articles: %w", err)
	}
	defer rows.Close()

	var out []model.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("pgstore: scan article: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetAssets implements repository.Store.
func (s *Store) GetAssets(ctx context.Context) ([]model.Asset, error) {
	rows, err := s.pool.Query(ctx, `SELECT ticker, label FROM assets ORDER BY ticker`)
	if err != nil {
		return nil, fmt.Errorf("pgstore: assets: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (model.Asset, error) {
		var a model.Asset
		err := r.Scan(&a.Ticker, &a.Label)
		return a, err
	})
	if err != nil {
		return nil, fmt.Errorf("pgstore: assets: %w", err)
	}
	return out, nil
}

// GetAllocations implements repository.Store.
func (s *Store) GetAllocations(ctx context.Context) ([]model.Allocation, error) {
	rows, err := s.pool.Query(ctx, `SELECT asset_ticker, allocation_percent FROM allocations ORDER BY asset_ticker`)
	if err != nil {
		return nil, fmt.Errorf("pgstore: allocations: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (model.Allocation, error) {
		var a model.Allocation
		err := r.Scan(&a.AssetTicker, &a.AllocationPercent)
		return a, err
	})
	if err != nil {
		return nil, fmt.Errorf("pgstore: allocations: %w", err)
	}
	return out, nil
}

// UpsertAsset implements repository.Store.
func (s *Store) UpsertAsset(ctx context.Context, a model.Asset) error {
	if a.Ticker == "" {
		return fmt.Errorf("%w: ticker is required", model.ErrValidation)
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO assets (ticker, label) VALUES ($1, $2)
		ON CONFLICT (ticker) DO UPDATE SET label = EXCLUDED.label`, a.Ticker, a.Label)
	if err != nil {
		return fmt.Errorf("pgstore: upsert asset: %w", err)
	}
	return nil
}

// CreateAllocation implements repository.Store.
func (s *Store) CreateAllocation(ctx context.Context, a model.Allocation) error {
	if err := repository.ValidateAllocation(a.AssetTicker, a.AllocationPercent); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO allocations (asset_ticker, allocation_percent) VALUES ($1, $2)`,
		a.AssetTicker, a.AllocationPercent)
	switch pgCode(err) {
	case "":
	case uniqueViolation:
		return fmt.Errorf("allocation for %q: %w", a.AssetTicker, model.ErrConflict)
	case foreignKeyViolation:
		return fmt.Errorf("asset %q: %w", a.AssetTicker, model.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("pgstore: create allocation: %w", err)
	}
	return nil
}

// UpdateAllocation implements repository.Store.
func (s *Store) UpdateAllocation(ctx context.Context, ticker string, percent float64) error {
	defer observe("update_allocation", time.Now())
	if err := repository.ValidateAllocation(ticker, percent); err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `UPDATE allocations SET allocation_percent = $2 WHERE asset_ticker = $1`, ticker, percent)
	if err != nil {
		return fmt.Errorf("pgstore: update allocation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("allocation for %q: %w", ticker, model.ErrNotFound)
	}
	return nil
}

// Stats implements repository.Store.
func (s *Store) Stats(ctx context.Context) (repository.Stats, error) {
	var st repository.Stats
	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM articles),
			(SELECT count(*) FROM analysis_packets),
			(SELECT count(*) FROM analysis_packets WHERE important),
			(SELECT count(*) FROM assets),
			(SELECT count(*) FROM allocations)`).
		Scan(&st.Articles, &st.Packets, &st.Important, &st.Assets, &st.Allocations)
	if err != nil {
		return st, fmt.Errorf("pgstore: stats: %w", err)
	}
	return st, nil
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Truncate empties every table. Intended for tests against a disposable database.
func (s *Store) Truncate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE analysis_packets, allocations, articles, assets`)
	return err
}
