// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/okian/finsight/internal/adapters/mq/queue"
	"github.com/okian/finsight/internal/adapters/mq/worker"
	"github.com/okian/finsight/internal/adapters/repository"
	"github.com/okian/finsight/internal/domain/analysis"
	"github.com/okian/finsight/internal/domain/chat"
	"github.com/okian/finsight/internal/domain/dedupe"
	"github.com/okian/finsight/internal/domain/extract"
	"github.com/okian/finsight/internal/domain/insight"
	"github.com/okian/finsight/internal/domain/model"
	"github.com/okian/finsight/internal/domain/portfolio"
	"github.com/okian/finsight/internal/domain/scoring"
	"github.com/okian/finsight/pkg/logger"
	"github.com/okian/finsight/pkg/metrics"
)

const stopTimeout = 15 * time.Second

// Service implements the API dependencies for the analysis pipeline.
type Service struct {
	mu sync.RWMutex

	// Injected adapters
	store     repository.Store
	gateway   portfolio.Gateway
	generator Generator
	extractor extract.Extractor

	// Built on Start
	deduper   dedupe.Deduper
	index     *dedupe.FingerprintIndex
	queue     *queue.InMemoryQueue
	pool      *worker.Pool
	analysis  *analysis.Engine
	portfolio *portfolio.Engine
	composer  *insight.Composer
	sessions  *chat.MemorySessionStore
	retriever *chat.Retriever

	// Configuration
	workerCount          int
	queueSize            int
	dedupeSize           int
	impactMin            int
	confidenceMin        int
	noveltyMin           int
	similarity           float64
	window               time.Duration
	fingerprintCapacity  int
	portfolioConcurrency int
	assetTimeout         time.Duration
	insightMaxTokens     int
	chatMaxTokens        int
	chatContextArticles  int
	sessionTTL           time.Duration
	now                  func() time.Time

	started bool
	logger  logger.Logger
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:          runtime.NumCPU(),
		queueSize:            10_000,
		dedupeSize:           100_000,
		impactMin:            scoring.DefaultImpactThreshold,
		confidenceMin:        scoring.DefaultConfidenceThreshold,
		noveltyMin:           scoring.DefaultNoveltyThreshold,
		similarity:           0.92,
		window:               72 * time.Hour,
		fingerprintCapacity:  50_000,
		portfolioConcurrency: 8,
		assetTimeout:         10 * time.Second,
		insightMaxTokens:     insight.DefaultMaxTokens,
		chatMaxTokens:        chat.DefaultMaxTokens,
		chatContextArticles:  chat.DefaultContextArticles,
		sessionTTL:           30 * time.Minute,
		now:                  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start builds the engines, warms the fingerprint index from stored packets
// and starts the analysis workers.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	s.logger.Info(ctx, "starting analysis service...")

	if s.store == nil {
		s.store = repository.NewMemoryStore(ctx)
		s.logger.Info(ctx, "using in-memory store")
	}
	if s.extractor == nil {
		s.extractor = extract.NewRuleExtractor()
	}

	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.index = dedupe.NewFingerprintIndex(
		dedupe.WithThreshold(float32(s.similarity)),
		dedupe.WithWindow(s.window),
		dedupe.WithCapacity(s.fingerprintCapacity),
	)
	s.analysis = analysis.NewEngine(s.store,
		analysis.WithExtractor(s.extractor),
		analysis.WithScorer(scoring.NewRuleScorer(scoring.WithThresholds(s.impactMin, s.confidenceMin, s.noveltyMin))),
		analysis.WithIndex(s.index),
		analysis.WithClock(s.now),
		analysis.WithLogger(s.logger.Named("analysis")),
	)
	if s.gateway != nil {
		s.portfolio = portfolio.NewEngine(s.store, s.gateway,
			portfolio.WithConcurrency(s.portfolioConcurrency),
			portfolio.WithAssetTimeout(s.assetTimeout),
			portfolio.WithLogger(s.logger.Named("portfolio")),
		)
	}

	s.sessions = chat.NewMemorySessionStore(ctx, chat.WithTTL(s.sessionTTL), chat.WithStoreClock(s.now))
	if s.generator != nil {
		s.composer = insight.NewComposer(s.generator,
			insight.WithMaxTokens(s.insightMaxTokens),
			insight.WithLogger(s.logger.Named("insight")),
		)
		s.retriever = chat.NewRetriever(s.sessions, s.store, s.generator,
			chat.WithContextArticles(s.chatContextArticles),
			chat.WithMaxTokens(s.chatMaxTokens),
			chat.WithClock(s.now),
			chat.WithLogger(s.logger.Named("chat")),
		)
	} else {
		s.logger.Warn(ctx, "no language model configured; insights and chat are unavailable")
	}

	warmed, err := s.analysis.Warm(ctx)
	if err != nil {
		_ = s.sessions.Close()
		return fmt.Errorf("start: %w", err)
	}

	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.pool = worker.NewPool(s.workerCount, s.queue, s.analysis,
		worker.WithLogger(s.logger.Named("worker")),
		worker.WithOnFailure(func(ctx context.Context, a model.Article, _ error) {
			s.deduper.Unrecord(ctx, a.URL)
		}),
	)
	s.pool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "analysis service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Int("warmedFingerprints", warmed),
		logger.Bool("portfolio", s.portfolio != nil),
		logger.Bool("languageModel", s.generator != nil),
	)
	return nil
}

// Stop drains the queue, then closes the session store and the store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	s.logger.Info(ctx, "stopping analysis service...")
	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool did not drain", logger.Error(err))
	}
	_ = s.sessions.Close()
	if err := s.store.Close(); err != nil {
		s.logger.Error(ctx, "store close failed", logger.Error(err))
	}

	s.started = false
	s.logger.Info(ctx, "analysis service stopped")
}

// SeenAndRecord atomically checks if an article url was seen and records it if not.
func (s *Service) SeenAndRecord(ctx context.Context, url string) bool {
	return s.deduper.SeenAndRecord(ctx, url)
}

// Unrecord forgets an article url so it can be ingested again.
func (s *Service) Unrecord(ctx context.Context, url string) {
	s.deduper.Unrecord(ctx, url)
}

// Size returns the current number of entries in the deduper.
func (s *Service) Size() int64 {
	if s.deduper == nil {
		return 0
	}
	return s.deduper.Size()
}

// Enqueue submits an article for asynchronous analysis.
func (s *Service) Enqueue(ctx context.Context, a model.Article) error {
	s.mu.RLock()
	q := s.queue
	s.mu.RUnlock()
	if q == nil {
		return ErrNotStarted
	}
	if err := q.Enqueue(ctx, a); err != nil {
		return fmt.Errorf("enqueue %s: %w", a.URL, err)
	}
	s.logger.Debug(ctx, "article queued", logger.String("url", a.URL), logger.Int("queueLength", q.Len()))
	return nil
}

// Analyze runs the full analysis synchronously.
func (s *Service) Analyze(ctx context.Context, a model.Article) (model.AnalysisPacket, error) {
	return s.analysis.Analyze(ctx, a)
}

// Packet returns the stored packet with live cluster membership.
func (s *Service) Packet(ctx context.Context, url string) (model.AnalysisPacket, error) {
	return s.analysis.Packet(ctx, url)
}

// ImportantArticles returns the newest important articles.
func (s *Service) ImportantArticles(ctx context.Context, limit int) ([]model.AnalyzedArticle, error) {
	out, err := s.store.QueryImportantArticles(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("important articles: %w", err)
	}
	for i := range out {
		out[i].Packet = s.analysis.LiveCluster(out[i].Packet)
	}
	return out, nil
}

// AnalyzedArticle returns one article with its packet.
func (s *Service) AnalyzedArticle(ctx context.Context, url string) (model.AnalyzedArticle, error) {
	a, err := s.store.GetArticle(ctx, url)
	if err != nil {
		return model.AnalyzedArticle{}, fmt.Errorf("analyzed article: %w", err)
	}
	p, err := s.analysis.Packet(ctx, url)
	if err != nil {
		return model.AnalyzedArticle{}, err
	}
	return model.AnalyzedArticle{Article: a, Packet: p}, nil
}

// ImportanceLabel buckets an impact score.
func (s *Service) ImportanceLabel(impact int) string {
	return scoring.Label(impact)
}

// Compose builds an insight with the configured language model.
func (s *Service) Compose(ctx context.Context, subject insight.Subject, profile insight.Profile) (insight.Insight, error) {
	if s.composer == nil {
		return insight.Insight{}, ErrNoGenerator
	}
	return s.composer.Compose(ctx, subject, profile)
}

// Portfolio runs portfolio analytics in mode.
func (s *Service) Portfolio(ctx context.Context, mode model.Mode) ([]model.AssetAnalytics, error) {
	if s.portfolio == nil {
		return nil, ErrNoGateway
	}
	return s.portfolio.Analyze(ctx, mode)
}

// UpdateAllocation changes an existing allocation.
func (s *Service) UpdateAllocation(ctx context.Context, ticker string, percent float64) error {
	return s.store.UpdateAllocation(ctx, ticker, percent)
}

// NewSession starts a chat session.
func (s *Service) NewSession(ctx context.Context) (model.Session, error) {
	if s.retriever == nil {
		return model.Session{}, ErrNoGenerator
	}
	return s.retriever.NewSession(ctx)
}

// Send posts a user message and returns the assistant reply.
func (s *Service) Send(ctx context.Context, sessionID, message string) (model.Turn, error) {
	if s.retriever == nil {
		return model.Turn{}, ErrNoGenerator
	}
	return s.retriever.Send(ctx, sessionID, message)
}

// Session returns a chat session.
func (s *Service) Session(ctx context.Context, sessionID string) (model.Session, error) {
	return s.sessions.Get(ctx, sessionID)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
	}
	if !s.started {
		return stats
	}

	queueLen := s.queue.Len()
	fingerprints := s.index.Size()
	sessions := s.sessions.Len()

	stats["queueLength"] = queueLen
	stats["activeWorkers"] = s.pool.Active()
	stats["seenUrls"] = s.deduper.Size()
	stats["fingerprints"] = fingerprints
	stats["chatSessions"] = sessions
	stats["portfolioEnabled"] = s.portfolio != nil
	stats["languageModel"] = s.generator != nil

	ctx := context.Background()
	if st, err := s.store.Stats(ctx); err == nil {
		stats["store"] = st
		metrics.UpdateRepositoryArticles(st.Articles)
	} else {
		s.logger.Warn(ctx, "store stats failed", logger.Error(err))
	}

	metrics.UpdateQueueSize(queueLen)
	metrics.UpdateFingerprintIndexSize(fingerprints)
	metrics.UpdateChatSessions(sessions)
	metrics.UpdateWorkerCount(s.workerCount)
	return stats
}
