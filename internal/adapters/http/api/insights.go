package api

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"

	"github.com/okian/finsight/internal/domain/insight"
	"github.com/okian/finsight/internal/domain/model"
	"github.com/okian/finsight/pkg/logger"
)

// InsightDependencies defines what the insight feed needs.
type InsightDependencies interface {
	ImportantArticles(ctx context.Context, limit int) ([]model.AnalyzedArticle, error)
	AnalyzedArticle(ctx context.Context, url string) (model.AnalyzedArticle, error)
	ImportanceLabel(impact int) string
	Compose(ctx context.Context, subject insight.Subject, profile insight.Profile) (insight.Insight, error)
}

// InsightsHandler serves the important-article feed.
type InsightsHandler struct {
	deps         InsightDependencies
	defaultLimit int
	maxLimit     int
	concurrency  int
	log          logger.Logger
}

// insightItem is one article of the feed. Composition failures are reported
// per item in InsightsError and never fail the whole feed.
type insightItem struct {
	ID                 string           `json:"id"`
	URL                string           `json:"url"`
	Source             string           `json:"source"`
	Title              string           `json:"title"`
	Summary            string           `json:"summary"`
	Content            string           `json:"content"`
	PublishedAt        time.Time        `json:"publishedAt"`
	Photo              string           `json:"photo"`
	IsImportant        bool             `json:"isImportant"`
	Importance         string           `json:"importance"`
	Impact             model.Impact     `json:"impact"`
	Markets            []string         `json:"markets"`
	CommunitySentiment float64          `json:"communitySentiment"`
	TrustIndex         float64          `json:"trustIndex"`
	Insights           *insight.Insight `json:"insights"`
	InsightsError      string           `json:"insightsError,omitempty"`
}

type articleInsightResponse struct {
	insightItem
	Packet model.AnalysisPacket `json:"packet"`
}

// HandleFeed handles GET /insights?limit=N requests.
func (h *InsightsHandler) HandleFeed(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_insights"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	n := h.defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
			return
		}
		if v > h.maxLimit {
			writeError(w, http.StatusBadRequest, "limit_exceeded", NewKind(op, ErrBadRequest))
			return
		}
		n = v
	}

	articles, err := h.deps.ImportantArticles(r.Context(), n)
	if err != nil {
		fail(r.Context(), h.log, w, op, err)
		return
	}

	items := make([]insightItem, len(articles))
	var g errgroup.Group
	g.SetLimit(h.concurrency)
	for i := range articles {
		g.Go(func() error {
			items[i] = h.item(r.Context(), &articles[i])
			return nil
		})
	}
	_ = g.Wait()
	writeJSON(w, http.StatusOK, items)
}

// HandleArticle handles GET /insights/article?url= requests.
func (h *InsightsHandler) HandleArticle(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_article_insight"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	url := strings.TrimSpace(r.URL.Query().Get("url"))
	if url == "" {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	aa, err := h.deps.AnalyzedArticle(r.Context(), url)
	if err != nil {
		fail(r.Context(), h.log, w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, articleInsightResponse{insightItem: h.item(r.Context(), &aa), Packet: aa.Packet})
}

func (h *InsightsHandler) item(ctx context.Context, aa *model.AnalyzedArticle) insightItem {
	a, p := aa.Article, aa.Packet
	summary := p.Narrative.ExecutiveSummary
	if summary == "" {
		summary = a.Summary
	}
	markets := p.Extracted.Markets
	if markets == nil {
		markets = []string{}
	}
	impact := float64(p.Impact.ImpactScore)

	it := insightItem{
		ID:                 strconv.FormatUint(xxhash.Sum64String(a.URL), 16),
		URL:                a.URL,
		Source:             a.SourceDomain,
		Title:              a.Title,
		Summary:            summary,
		Content:            a.Body(),
		PublishedAt:        a.PublishedAt,
		Photo:              a.ImageURL,
		IsImportant:        p.Important,
		Importance:         h.deps.ImportanceLabel(p.Impact.ImpactScore),
		Impact:             p.Impact,
		Markets:            markets,
		CommunitySentiment: math.Min(impact*1.2, 100),
		TrustIndex:         math.Min(impact*1.3, 100),
	}

	ins, err := h.deps.Compose(ctx, insight.Subject{Article: aa}, insight.ProfileArticle)
	if err != nil {
		h.log.Warn(ctx, "article insight failed", logger.String("url", a.URL), logger.Error(err))
		it.InsightsError = err.Error()
		return it
	}
	it.Insights = &ins
	return it
}
