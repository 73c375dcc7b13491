// Package analysis turns articles into analysis packets: extraction, same-event
// clustering, novelty adjustment and the importance verdict.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/okian/finsight/internal/domain/dedupe"
	"github.com/okian/finsight/internal/domain/extract"
	"github.com/okian/finsight/internal/domain/model"
	"github.com/okian/finsight/internal/domain/scoring"
	"github.com/okian/finsight/pkg/logger"
	"github.com/okian/finsight/pkg/metrics"
)

// Store is the persistence the engine needs.
type Store interface {
	SaveArticle(ctx context.Context, a model.Article) error
	InsertAnalysisPacket(ctx context.Context, p model.AnalysisPacket) error
	GetAnalysisPacket(ctx context.Context, url string) (model.AnalysisPacket, error)
	AnalyzedSince(ctx context.Context, since time.Time) ([]model.AnalyzedArticle, error)
}

// Engine analyzes articles. Clustering, scoring and the packet insert run
// under one mutex so near-duplicates analyzed concurrently end up in one cluster.
type Engine struct {
	store     Store
	extractor extract.Extractor
	scorer    *scoring.RuleScorer
	index     *dedupe.FingerprintIndex
	now       func() time.Time
	log       logger.Logger

	mu sync.Mutex
}

// NewEngine creates an engine over store.
func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		extractor: extract.NewRuleExtractor(),
		scorer:    scoring.NewRuleScorer(),
		index:     dedupe.NewFingerprintIndex(),
		now:       time.Now,
		log:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Analyze produces and persists the packet for a.
// It returns ErrValidation for an incomplete article and ErrConflict when
// the article already has a packet.
func (e *Engine) Analyze(ctx context.Context, a model.Article) (model.AnalysisPacket, error) {
	const op = "analysis.Analyze"
	start := time.Now()

	if err := a.Validate(); err != nil {
		return model.AnalysisPacket{}, fmt.Errorf("%s: %w", op, err)
	}
	a = e.normalize(a)

	if _, err := e.store.GetAnalysisPacket(ctx, a.URL); err == nil {
		metrics.RecordPacketConflict()
		return model.AnalysisPacket{}, fmt.Errorf("%s: packet for %q: %w", op, a.URL, model.ErrConflict)
	} else if !errors.Is(err, model.ErrNotFound) {
		metrics.RecordAnalysisError("lookup")
		return model.AnalysisPacket{}, fmt.Errorf("%s: %w", op, err)
	}

	res, err := e.extractor.Extract(ctx, a)
	if err != nil {
		metrics.RecordAnalysisError("extract")
		return model.AnalysisPacket{}, fmt.Errorf("%s: extract: %w", op, err)
	}

	p, matched, err := e.commit(ctx, a, res)
	if err != nil {
		if errors.Is(err, model.ErrConflict) {
			metrics.RecordPacketConflict()
		} else {
			metrics.RecordAnalysisError("commit")
		}
		return model.AnalysisPacket{}, fmt.Errorf("%s: %w", op, err)
	}

	metrics.RecordPacketCreated(p.Important)
	metrics.RecordAnalysisLatency(float64(time.Since(start).Microseconds()) / 1000)
	if matched {
		metrics.RecordClusterMerge()
	}
	metrics.UpdateFingerprintIndexSize(e.index.Size())

	e.log.Debug(ctx, "article analyzed",
		logger.String("url", a.URL),
		logger.String("event_type", p.Extracted.EventType),
		logger.Int("impact", p.Impact.ImpactScore),
		logger.Int("cluster_size", len(p.ClusterIDs)+1),
		logger.Bool("important", p.Important))
	return p, nil
}

// commit runs the clustering critical section.
func (e *Engine) commit(ctx context.Context, a model.Article, res extract.Result) (model.AnalysisPacket, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.store.SaveArticle(ctx, a); err != nil {
		return model.AnalysisPacket{}, false, fmt.Errorf("save article: %w", err)
	}

	fp := fingerprint(a)
	matches := e.index.Match(fp)
	members := e.index.Expand(a.URL, matches)

	scored, err := e.scorer.Score(ctx, scoring.Input{
		EventType:   res.Extracted.EventType,
		Raw:         res.Raw,
		ClusterSize: len(members) + 1,
	})
	if err != nil {
		return model.AnalysisPacket{}, false, err
	}

	p := model.AnalysisPacket{
		ArticleURL: a.URL,
		ClusterIDs: members,
		Extracted:  res.Extracted,
		Impact:     scored.Impact,
		Narrative:  res.Narrative,
		Important:  scored.Important,
		CreatedAt:  e.now().UTC(),
	}
	if p.ClusterIDs == nil {
		p.ClusterIDs = []string{}
	}
	if err := e.store.InsertAnalysisPacket(ctx, p); err != nil {
		return model.AnalysisPacket{}, false, err
	}

	e.index.Record(fp, matches)
	return p, len(matches) > 0, nil
}

// Packet returns the stored packet with cluster membership read from the live index.
func (e *Engine) Packet(ctx context.Context, url string) (model.AnalysisPacket, error) {
	p, err := e.store.GetAnalysisPacket(ctx, url)
	if err != nil {
		return model.AnalysisPacket{}, fmt.Errorf("analysis.Packet: %w", err)
	}
	return e.LiveCluster(p), nil
}

// LiveCluster refreshes p.ClusterIDs from the index.
func (e *Engine) LiveCluster(p model.AnalysisPacket) model.AnalysisPacket {
	if others, ok := e.index.Cluster(p.ArticleURL); ok {
		p.ClusterIDs = others
	}
	return p
}

// ImportanceLabel buckets an impact score into low, medium or high.
func (e *Engine) ImportanceLabel(impact int) string {
	return scoring.Label(impact)
}

// Warm rebuilds the fingerprint index from stored packets. Articles published
// inside the window are recorded as fingerprints; older ones only replay
// their stored cluster links so membership stays symmetric after a restart.
// It returns the number of fingerprints recorded.
func (e *Engine) Warm(ctx context.Context) (int, error) {
	items, err := e.store.AnalyzedSince(ctx, time.Time{})
	if err != nil {
		return 0, fmt.Errorf("analysis.Warm: %w", err)
	}
	cutoff := e.now().Add(-e.index.Window())

	e.mu.Lock()
	defer e.mu.Unlock()
	recorded, linked := 0, 0
	// oldest first so eviction order matches live ingestion
	for i := len(items) - 1; i >= 0; i-- {
		it := items[i]
		if it.Article.PublishedAt.Before(cutoff) {
			for _, id := range it.Packet.ClusterIDs {
				e.index.Link(it.Packet.ArticleURL, id)
			}
			linked++
			continue
		}
		e.index.Record(fingerprint(it.Article), it.Packet.ClusterIDs)
		recorded++
	}
	metrics.UpdateFingerprintIndexSize(e.index.Size())
	e.log.Info(ctx, "fingerprint index warmed", logger.Int("articles", recorded), logger.Int("linked", linked))
	return recorded, nil
}

func (e *Engine) normalize(a model.Article) model.Article {
	if a.FetchedAt.IsZero() {
		a.FetchedAt = e.now().UTC()
	}
	if a.PublishedAt.IsZero() {
		a.PublishedAt = a.FetchedAt
	}
	if a.SourceDomain == "" {
		if u, err := url.Parse(a.URL); err == nil {
			a.SourceDomain = strings.TrimPrefix(u.Hostname(), "www.")
		}
	}
	if a.ContentHash == 0 {
		a.ContentHash = dedupe.ContentHash(a.Title, a.Body())
	}
	return a
}

func fingerprint(a model.Article) dedupe.Fingerprint {
	vec := a.ContentEmbedding
	if len(vec) == 0 {
		vec = dedupe.Vectorize(a.Title + " " + a.Body())
	}
	hash := a.ContentHash
	if hash == 0 {
		hash = dedupe.ContentHash(a.Title, a.Body())
	}
	return dedupe.Fingerprint{URL: a.URL, Hash: hash, Vector: vec, At: a.PublishedAt}
}
