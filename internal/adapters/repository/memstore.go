package repository

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/okian/finsight/internal/domain/model"
	"github.com/okian/finsight/pkg/metrics"
)

// Treap-indexed, in-memory Store implementation.
//
// Articles are kept in a treap ordered by publishedAt DESC, then URL ASC, so
// an in-order walk yields the newest articles first.

type node struct {
	url   string
	at    int64 // publishedAt, unix nanos
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// less returns true if (aAt, aURL) comes before (bAt, bURL): newer first.
func less(aAt int64, aURL string, bAt int64, bURL string) bool {
	if aAt != bAt {
		return aAt > bAt
	}
	return aURL < bURL
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

func insert(n *node, url string, at int64) *node {
	if n == nil {
		return &node{url: url, at: at, prio: rand.Uint64(), size: 1} //nolint:gosec // treap balancing, not security
	}
	if less(at, url, n.at, n.url) {
		n.left = insert(n.left, url, at)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, url, at)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, url string, at int64) *node {
	if n == nil {
		return nil
	}
	switch {
	case at == n.at && url == n.url:
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, url, at)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, url, at)
		}
	case less(at, url, n.at, n.url):
		n.left = deleteNode(n.left, url, at)
	default:
		n.right = deleteNode(n.right, url, at)
	}
	fix(n)
	return n
}

// walk visits nodes newest first until visit returns false.
func walk(n *node, visit func(*node) bool) bool {
	if n == nil {
		return true
	}
	if !walk(n.left, visit) {
		return false
	}
	if !visit(n) {
		return false
	}
	return walk(n.right, visit)
}

// MemoryStore implements Store in process memory.
type MemoryStore struct {
	mu          sync.RWMutex
	root        *node
	articles    map[string]model.Article
	packets     map[string]model.AnalysisPacket
	assets      map[string]model.Asset
	allocations map[string]model.Allocation

	metricsUpdateInterval time.Duration
	wg                    sync.WaitGroup
	stopChan              chan struct{}
	closeOnce             sync.Once
}

// NewMemoryStore constructs an empty store and starts its metrics updater.
func NewMemoryStore(ctx context.Context, opts ...Option) *MemoryStore {
	s := &MemoryStore{
		articles:              make(map[string]model.Article),
		packets:               make(map[string]model.AnalysisPacket),
		assets:                make(map[string]model.Asset),
		allocations:           make(map[string]model.Allocation),
		metricsUpdateInterval: 5 * time.Second,
		stopChan:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.startMetricsUpdater(ctx)
	return s
}

func observe(op string, start time.Time) {
	metrics.RecordRepositoryLatency(op, float64(time.Since(start).Microseconds())/1000)
}

// SaveArticle implements Store.
func (s *MemoryStore) SaveArticle(_ context.Context, a model.Article) error {
	defer observe("save_article", time.Now())
	if err := a.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.articles[a.URL]; ok {
		s.root = deleteNode(s.root, old.URL, old.PublishedAt.UnixNano())
	}
	s.articles[a.URL] = CloneArticle(a)
	s.root = insert(s.root, a.URL, a.PublishedAt.UnixNano())
	return nil
}

// GetArticle implements Store.
func (s *MemoryStore) GetArticle(_ context.Context, url string) (model.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.articles[url]
	if !ok {
		return model.Article{}, fmt.Errorf("article %q: %w", url, model.ErrNotFound)
	}
	return CloneArticle(a), nil
}

// InsertAnalysisPacket implements Store.
func (s *MemoryStore) InsertAnalysisPacket(_ context.Context, p model.AnalysisPacket) error {
	defer observe("insert_packet", time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.articles[p.ArticleURL]; !ok {
		return fmt.Errorf("article %q: %w", p.ArticleURL, model.ErrNotFound)
	}
	if _, ok := s.packets[p.ArticleURL]; ok {
		return fmt.Errorf("packet for %q: %w", p.ArticleURL, model.ErrConflict)
	}
	s.packets[p.ArticleURL] = ClonePacket(p)
	return nil
}

// GetAnalysisPacket implements Store.
func (s *MemoryStore) GetAnalysisPacket(_ context.Context, url string) (model.AnalysisPacket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.packets[url]
	if !ok {
		return model.AnalysisPacket{}, fmt.Errorf("packet for %q: %w", url, model.ErrNotFound)
	}
	return ClonePacket(p), nil
}

// QueryImportantArticles implements Store.
func (s *MemoryStore) QueryImportantArticles(_ context.Context, limit int) ([]model.AnalyzedArticle, error) {
	defer observe("query_important", time.Now())
	if limit < 1 {
		return nil, ErrInvalidLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.AnalyzedArticle, 0, limit)
	walk(s.root, func(n *node) bool {
		if p, ok := s.packets[n.url]; ok && p.Important {
			out = append(out, model.AnalyzedArticle{Article: CloneArticle(s.articles[n.url]), Packet: ClonePacket(p)})
		}
		return len(out) < limit
	})
	return out, nil
}

// RecentArticles implements Store.
func (s *MemoryStore) RecentArticles(_ context.Context, limit int) ([]model.Article, error) {
	defer observe("recent_articles", time.Now())
	if limit < 1 {
		return nil, ErrInvalidLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Article, 0, min(limit, len(s.articles)))
	walk(s.root, func(n *node) bool {
		out = append(out, CloneArticle(s.articles[n.url]))
		return len(out) < limit
	})
	return out, nil
}

// AnalyzedSince implements Store.
func (s *MemoryStore) AnalyzedSince(_ context.Context, since time.Time) ([]model.AnalyzedArticle, error) {
	cutoff := since.UnixNano()

	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.AnalyzedArticle
	walk(s.root, func(n *node) bool {
		if n.at < cutoff {
			return false
		}
		if p, ok := s.packets[n.url]; ok {
			out = append(out, model.AnalyzedArticle{Article: CloneArticle(s.articles[n.url]), Packet: ClonePacket(p)})
		}
		return true
	})
	return out, nil
}

// GetAssets implements Store. Assets are ordered by ticker.
func (s *MemoryStore) GetAssets(_ context.Context) ([]model.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Asset, 0, len(s.assets))
	for _, a := range s.assets {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out, nil
}

// GetAllocations implements Store. Allocations are ordered by ticker.
func (s *MemoryStore) GetAllocations(_ context.Context) ([]model.Allocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Allocation, 0, len(s.allocations))
	for _, a := range s.allocations {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssetTicker < out[j].AssetTicker })
	return out, nil
}

// UpsertAsset implements Store.
func (s *MemoryStore) UpsertAsset(_ context.Context, a model.Asset) error {
	if a.Ticker == "" {
		return fmt.Errorf("%w: ticker is required", model.ErrValidation)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assets[a.Ticker] = a
	return nil
}

// CreateAllocation implements Store.
func (s *MemoryStore) CreateAllocation(_ context.Context, a model.Allocation) error {
	if err := ValidateAllocation(a.AssetTicker, a.AllocationPercent); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.assets[a.AssetTicker]; !ok {
		return fmt.Errorf("asset %q: %w", a.AssetTicker, model.ErrNotFound)
	}
	if _, ok := s.allocations[a.AssetTicker]; ok {
		return fmt.Errorf("allocation for %q: %w", a.AssetTicker, model.ErrConflict)
	}
	s.allocations[a.AssetTicker] = a
	return nil
}

// UpdateAllocation implements Store.
func (s *MemoryStore) UpdateAllocation(_ context.Context, ticker string, percent float64) error {
	defer observe("update_allocation", time.Now())
	if err := ValidateAllocation(ticker, percent); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.allocations[ticker]
	if !ok {
		return fmt.Errorf("allocation for %q: %w", ticker, model.ErrNotFound)
	}
	a.AllocationPercent = percent
	s.allocations[ticker] = a
	return nil
}

// Stats implements Store.
func (s *MemoryStore) Stats(_ context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{
		Articles:    len(s.articles),
		Packets:     len(s.packets),
		Assets:      len(s.assets),
		Allocations: len(s.allocations),
	}
	for _, p := range s.packets {
		if p.Important {
			st.Important++
		}
	}
	return st, nil
}

// Close stops the background metrics updater.
func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return nil
}

func (s *MemoryStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.mu.RLock()
				n := len(s.articles)
				s.mu.RUnlock()
				metrics.UpdateRepositoryArticles(n)
			}
		}
	}()
}
