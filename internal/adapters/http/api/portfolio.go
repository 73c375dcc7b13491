package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/okian/finsight/internal/domain/insight"
	"github.com/okian/finsight/internal/domain/model"
	"github.com/okian/finsight/pkg/logger"
)

// PortfolioDependencies defines what the portfolio handlers need.
type PortfolioDependencies interface {
	Portfolio(ctx context.Context, mode model.Mode) ([]model.AssetAnalytics, error)
	UpdateAllocation(ctx context.Context, ticker string, percent float64) error
	Compose(ctx context.Context, subject insight.Subject, profile insight.Profile) (insight.Insight, error)
}

// PortfolioHandler serves portfolio analytics.
type PortfolioHandler struct {
	deps PortfolioDependencies
	log  logger.Logger
}

type allocationRequest struct {
	Ticker            string   `json:"ticker" validate:"required"`
	AllocationPercent *float64 `json:"allocation_percent" validate:"required,gte=0,lte=100"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

type portfolioInsightResponse struct {
	Profile insight.Profile        `json:"profile"`
	Mode    model.Mode             `json:"mode"`
	Assets  []model.AssetAnalytics `json:"assets"`
	Insight insight.Insight        `json:"insight"`
}

// HandleAnalytics handles GET /portfolio/{current|status|universe} requests.
func (h *PortfolioHandler) HandleAnalytics(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_portfolio"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	raw := strings.TrimPrefix(r.URL.Path, "/portfolio/")
	if raw == "" || strings.Contains(raw, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	mode, err := model.ParseMode(raw)
	if err != nil {
		fail(r.Context(), h.log, w, op, err)
		return
	}
	out, err := h.deps.Portfolio(r.Context(), mode)
	if err != nil {
		fail(r.Context(), h.log, w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleAllocation handles POST /portfolio/allocation requests.
func (h *PortfolioHandler) HandleAllocation(w http.ResponseWriter, r *http.Request) {
	const op = "api.update_allocation"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req allocationRequest
	if err := decode(w, r, op, &req); err != nil {
		fail(r.Context(), h.log, w, op, err)
		return
	}
	if err := h.deps.UpdateAllocation(r.Context(), strings.TrimSpace(req.Ticker), *req.AllocationPercent); err != nil {
		fail(r.Context(), h.log, w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// HandleInsights handles GET /portfolio/insights?profile=&mode= requests.
func (h *PortfolioHandler) HandleInsights(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_portfolio_insight"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	q := r.URL.Query()

	profile := insight.ProfilePortfolioStatus
	if raw := q.Get("profile"); raw != "" {
		p, err := insight.ParseProfile(raw)
		if err == nil && p == insight.ProfileArticle {
			err = fmt.Errorf("%w: profile %q needs an article", model.ErrValidation, raw)
		}
		if err != nil {
			fail(r.Context(), h.log, w, op, err)
			return
		}
		profile = p
	}
	mode := model.ModeStatus
	if raw := q.Get("mode"); raw != "" {
		m, err := model.ParseMode(raw)
		if err != nil {
			fail(r.Context(), h.log, w, op, err)
			return
		}
		mode = m
	}

	assets, err := h.deps.Portfolio(r.Context(), mode)
	if err != nil {
		fail(r.Context(), h.log, w, op, err)
		return
	}
	ins, err := h.deps.Compose(r.Context(), insight.Subject{Assets: assets}, profile)
	if err != nil {
		fail(r.Context(), h.log, w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, portfolioInsightResponse{Profile: profile, Mode: mode, Assets: assets, Insight: ins})
}
