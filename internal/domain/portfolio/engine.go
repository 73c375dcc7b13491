// Package portfolio computes per-asset trend, risk and fundamentals for the
// holdings of a portfolio.
package portfolio

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/okian/finsight/internal/domain/model"
	"github.com/okian/finsight/internal/domain/trend"
	"github.com/okian/finsight/pkg/logger"
	"github.com/okian/finsight/pkg/metrics"
)

const (
	defaultConcurrency  = 4
	defaultAssetTimeout = 15 * time.Second

	msgNoData  = "No market data found"
	msgTimeout = "market data request timed out"
)

// Gateway supplies market data.
type Gateway interface {
	FetchHistory(ctx context.Context, ticker string, w model.Window) ([]model.PricePoint, error)
	FetchFundamentals(ctx context.Context, ticker string) (model.Fundamentals, error)
}

// Store lists the assets and allocations that make up the portfolio.
type Store interface {
	GetAssets(ctx context.Context) ([]model.Asset, error)
	GetAllocations(ctx context.Context) ([]model.Allocation, error)
}

// Engine runs portfolio analytics.
type Engine struct {
	store        Store
	gateway      Gateway
	concurrency  int
	assetTimeout time.Duration
	log          logger.Logger
}

// NewEngine creates an engine.
func NewEngine(store Store, gateway Gateway, opts ...Option) *Engine {
	e := &Engine{
		store:        store,
		gateway:      gateway,
		concurrency:  defaultConcurrency,
		assetTimeout: defaultAssetTimeout,
		log:          logger.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Holdings joins assets with allocations. Current and status modes keep only
// allocated assets; universe keeps every asset with a zero default.
func (e *Engine) Holdings(ctx context.Context, mode model.Mode) ([]model.Holding, error) {
	const op = "portfolio.Holdings"
	if _, err := model.ParseMode(string(mode)); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	assets, err := e.store.GetAssets(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: assets: %w", op, err)
	}
	allocs, err := e.store.GetAllocations(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: allocations: %w", op, err)
	}

	pct := make(map[string]float64, len(allocs))
	for _, a := range allocs {
		pct[a.AssetTicker] = a.AllocationPercent
	}

	out := make([]model.Holding, 0, len(assets))
	for _, a := range assets {
		p, allocated := pct[a.Ticker]
		if mode != model.ModeUniverse && (!allocated || p <= 0) {
			continue
		}
		out = append(out, model.Holding{Ticker: a.Ticker, Label: a.Label, AllocationPercent: p})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out, nil
}

// Analyze lists the holdings for mode and analyzes each of them.
func (e *Engine) Analyze(ctx context.Context, mode model.Mode) ([]model.AssetAnalytics, error) {
	holdings, err := e.Holdings(ctx, mode)
	if err != nil {
		return nil, err
	}
	return e.AnalyzeHoldings(ctx, mode, holdings)
}

// AnalyzeHoldings returns exactly one entry per holding, in input order.
// Per-asset failures are reported in that entry's Error field.
func (e *Engine) AnalyzeHoldings(ctx context.Context, mode model.Mode, holdings []model.Holding) ([]model.AssetAnalytics, error) {
	if _, err := model.ParseMode(string(mode)); err != nil {
		return nil, fmt.Errorf("portfolio.AnalyzeHoldings: %w", err)
	}
	start := time.Now()
	out := make([]model.AssetAnalytics, len(holdings))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, h := range holdings {
		g.Go(func() error {
			out[i] = e.analyzeAsset(gctx, mode, h)
			return nil
		})
	}
	_ = g.Wait()

	metrics.RecordPortfolioDuration(string(mode), float64(time.Since(start).Microseconds())/1000)
	return out, nil
}

func (e *Engine) analyzeAsset(ctx context.Context, mode model.Mode, h model.Holding) model.AssetAnalytics {
	ctx, cancel := context.WithTimeout(ctx, e.assetTimeout)
	defer cancel()

	res, err := e.compute(ctx, mode, h)
	if err != nil {
		metrics.RecordPortfolioAsset(string(mode), outcome(err))
		e.log.Warn(ctx, "asset analysis failed",
			logger.String("ticker", h.Ticker),
			logger.String("mode", string(mode)),
			logger.Error(err))
		return model.AssetAnalytics{
			Ticker:            h.Ticker,
			Label:             h.Label,
			AllocationPercent: h.AllocationPercent,
			Error:             message(err),
		}
	}
	metrics.RecordPortfolioAsset(string(mode), "ok")
	return res
}

func (e *Engine) compute(ctx context.Context, mode model.Mode, h model.Holding) (model.AssetAnalytics, error) {
	week, err := e.gateway.FetchHistory(ctx, h.Ticker, model.Window7D)
	if err != nil {
		return model.AssetAnalytics{}, err
	}
	last, ok := trend.LastClose(week)
	if !ok {
		return model.AssetAnalytics{}, model.ErrDataUnavailable
	}
	change7 := trend.ChangePct(week)

	res := model.AssetAnalytics{
		Ticker:            h.Ticker,
		Label:             h.Label,
		AllocationPercent: h.AllocationPercent,
		LastPrice:         round2(&last),
		Change7DPct:       round2(change7),
		Trend:             trend.Classify(change7),
	}
	if mode == model.ModeCurrent {
		return res, nil
	}

	month, err := e.optionalSeries(ctx, h.Ticker, model.Window1M)
	if err != nil {
		return model.AssetAnalytics{}, err
	}
	quarter, err := e.optionalSeries(ctx, h.Ticker, model.Window3M)
	if err != nil {
		return model.AssetAnalytics{}, err
	}
	f, err := e.gateway.FetchFundamentals(ctx, h.Ticker)
	if err != nil {
		return model.AssetAnalytics{}, err
	}

	change1m := trend.ChangePct(month)
	highRisk := trend.HighRisk(change1m)
	res.Change1MPct = round2(change1m)
	res.Change3MPct = round2(trend.ChangePct(quarter))
	res.MarketCap = f.MarketCap
	res.PERatio = f.PERatio
	res.DividendYield = f.DividendYield
	res.AvgVolume = f.AvgVolume
	if res.AvgVolume == nil {
		res.AvgVolume = trend.AvgVolume(quarter)
	}
	res.HighRisk = &highRisk
	return res, nil
}

// optionalSeries treats an empty window as no data rather than a failure.
func (e *Engine) optionalSeries(ctx context.Context, ticker string, w model.Window) ([]model.PricePoint, error) {
	series, err := e.gateway.FetchHistory(ctx, ticker, w)
	if errors.Is(err, model.ErrDataUnavailable) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return series, nil
}

func round2(v *float64) *float64 {
	if v == nil {
		return nil
	}
	r := decimal.NewFromFloat(*v).Round(2).InexactFloat64()
	return &r
}

func message(err error) string {
	switch {
	case errors.Is(err, model.ErrDataUnavailable):
		return msgNoData
	case errors.Is(err, model.ErrTransportTimeout), errors.Is(err, context.DeadlineExceeded):
		return msgTimeout
	default:
		return err.Error()
	}
}

func outcome(err error) string {
	switch {
	case errors.Is(err, model.ErrDataUnavailable):
		return "no_data"
	case errors.Is(err, model.ErrTransportTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}
