package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/okian/finsight/internal/domain/dedupe"
	"github.com/okian/finsight/internal/domain/model"
	"github.com/okian/finsight/pkg/logger"
	"github.com/okian/finsight/pkg/metrics"
)

// ArticleDependencies defines what the ingest and analysis handlers need.
type ArticleDependencies interface {
	dedupe.Deduper

	// Enqueue pushes an article for async analysis.
	Enqueue(ctx context.Context, a model.Article) error

	Analyze(ctx context.Context, a model.Article) (model.AnalysisPacket, error)
	Packet(ctx context.Context, url string) (model.AnalysisPacket, error)
}

// ArticlesHandler handles article ingestion and analysis requests.
type ArticlesHandler struct {
	deps ArticleDependencies
	log  logger.Logger
}

// NewArticlesHandler creates a new articles handler.
func NewArticlesHandler(deps ArticleDependencies) *ArticlesHandler {
	return &ArticlesHandler{deps: deps, log: logger.Nop()}
}

// articleRequest is the wire shape of an incoming article.
type articleRequest struct {
	URL         string    `json:"url" validate:"required,url"`
	Title       string    `json:"title" validate:"required"`
	Summary     string    `json:"summary"`
	Content     string    `json:"content" validate:"required_without=Summary"`
	Source      string    `json:"source"`
	PublishedAt string    `json:"published_at"`
	ImageURL    string    `json:"image_url" validate:"omitempty,url"`
	Lang        string    `json:"lang"`
	Embedding   []float32 `json:"embedding"`
}

func (req *articleRequest) article() (model.Article, error) {
	a := model.Article{
		URL:              strings.TrimSpace(req.URL),
		SourceDomain:     req.Source,
		Title:            req.Title,
		Summary:          req.Summary,
		RawText:          req.Content,
		ImageURL:         req.ImageURL,
		Lang:             req.Lang,
		ContentEmbedding: req.Embedding,
	}
	if req.PublishedAt != "" {
		t, err := time.Parse(time.RFC3339, req.PublishedAt)
		if err != nil {
			return model.Article{}, fmt.Errorf("invalid published_at; must be RFC3339: %w", err)
		}
		a.PublishedAt = t
	}
	return a, nil
}

type ackResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

// HandleIngest handles POST /articles requests.
func (h *ArticlesHandler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	const op = "api.ingest_article"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	a, err := h.read(w, r, op)
	if err != nil {
		fail(r.Context(), h.log, w, op, err)
		return
	}

	if h.deps.SeenAndRecord(r.Context(), a.URL) {
		metrics.RecordArticleDuplicate()
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", Duplicate: true})
		return
	}

	if err := h.deps.Enqueue(r.Context(), a); err != nil {
		// let the client retry the same url later
		h.deps.Unrecord(r.Context(), a.URL)
		fail(r.Context(), h.log, w, op, WrapKind(op, ErrBackpressure, err))
		return
	}
	metrics.RecordArticleIngested()
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted"})
}

// HandleAnalysis handles POST /analysis (synchronous analysis) and
// GET /analysis?url= (stored packet with live cluster membership).
func (h *ArticlesHandler) HandleAnalysis(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.analyze(w, r)
	case http.MethodGet:
		h.packet(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (h *ArticlesHandler) analyze(w http.ResponseWriter, r *http.Request) {
	const op = "api.analyze_article"
	a, err := h.read(w, r, op)
	if err != nil {
		fail(r.Context(), h.log, w, op, err)
		return
	}
	p, err := h.deps.Analyze(r.Context(), a)
	if err != nil {
		fail(r.Context(), h.log, w, op, err)
		return
	}
	// keep async ingest from queueing it again
	h.deps.SeenAndRecord(r.Context(), a.URL)
	writeJSON(w, http.StatusCreated, p)
}

func (h *ArticlesHandler) packet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_analysis"
	url := strings.TrimSpace(r.URL.Query().Get("url"))
	if url == "" {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	p, err := h.deps.Packet(r.Context(), url)
	if err != nil {
		fail(r.Context(), h.log, w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *ArticlesHandler) read(w http.ResponseWriter, r *http.Request, op string) (model.Article, error) {
	var req articleRequest
	if err := decode(w, r, op, &req); err != nil {
		return model.Article{}, err
	}
	a, err := req.article()
	if err != nil {
		return model.Article{}, WrapKind(op, ErrBadRequest, err)
	}
	return a, nil
}
