// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/okian/finsight/internal/adapters/mq/queue"
	"github.com/okian/finsight/internal/domain/contract"
	"github.com/okian/finsight/internal/domain/model"
	"github.com/okian/finsight/pkg/logger"
)

const maxBodyBytes = 1 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	ArticleDependencies
	InsightDependencies
	PortfolioDependencies
	ChatDependencies
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler *HealthHandler
	statsHandler  *StatsHandler
	articles      *ArticlesHandler
	insights      *InsightsHandler
	portfolio     *PortfolioHandler
	chat          *ChatHandler

	defaultLimit       int
	maxLimit           int
	insightConcurrency int
	log                logger.Logger
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	s := &Server{
		defaultLimit:       DefaultInsightsLimit,
		maxLimit:           DefaultMaxInsightsLimit,
		insightConcurrency: defaultInsightConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Get().Named("api")
	}
	if s.defaultLimit > s.maxLimit {
		s.defaultLimit = s.maxLimit
	}

	s.healthHandler = NewHealthHandler()
	s.statsHandler = NewStatsHandler(statsProvider)
	s.articles = &ArticlesHandler{deps: deps, log: s.log}
	s.insights = &InsightsHandler{
		deps:         deps,
		defaultLimit: s.defaultLimit,
		maxLimit:     s.maxLimit,
		concurrency:  s.insightConcurrency,
		log:          s.log,
	}
	s.portfolio = &PortfolioHandler{deps: deps, log: s.log}
	s.chat = &ChatHandler{deps: deps, log: s.log}
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", s.instrument("healthz", s.healthHandler.HandleHealth))
	mux.HandleFunc("/stats", s.instrument("stats", s.statsHandler.HandleStats))
	mux.HandleFunc("/articles", s.instrument("articles", s.articles.HandleIngest))
	mux.HandleFunc("/analysis", s.instrument("analysis", s.articles.HandleAnalysis))
	mux.HandleFunc("/insights", s.instrument("insights", s.insights.HandleFeed))
	mux.HandleFunc("/insights/article", s.instrument("insights_article", s.insights.HandleArticle))
	mux.HandleFunc("/portfolio/allocation", s.instrument("portfolio_allocation", s.portfolio.HandleAllocation))
	mux.HandleFunc("/portfolio/insights", s.instrument("portfolio_insights", s.portfolio.HandleInsights))
	mux.HandleFunc("/portfolio/", s.instrument("portfolio", s.portfolio.HandleAnalytics))
	mux.HandleFunc("/chat/messages", s.instrument("chat_messages", s.chat.HandleMessage))
	mux.HandleFunc("/chat/sessions/", s.instrument("chat_sessions", s.chat.HandleSession))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest), errors.Is(err, model.ErrValidation):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, model.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, ErrBackpressure), errors.Is(err, queue.ErrFull):
		return http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, model.ErrTransportTimeout):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, model.ErrComposition):
		return http.StatusBadGateway, "composition_failed"
	case errors.Is(err, ErrUnavailable), errors.Is(err, queue.ErrClosed):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// fail writes err with its mapped status. Server-side failures are logged.
func fail(ctx context.Context, log logger.Logger, w http.ResponseWriter, op string, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error(ctx, "request failed", logger.String("op", op), logger.Int("status", status), logger.Error(err))
	}
	writeError(w, status, code, err)
}

// decode reads a JSON body into dst and validates its struct tags.
func decode(w http.ResponseWriter, r *http.Request, op string, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		return WrapKind(op, ErrBadRequest, err)
	}
	if err := contract.Validator().Struct(dst); err != nil {
		return WrapKind(op, ErrBadRequest, fmt.Errorf("invalid request: %w", err))
	}
	return nil
}
