package portfolio_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/finsight/internal/adapters/repository"
	"github.com/okian/finsight/internal/domain/model"
	"github.com/okian/finsight/internal/domain/portfolio"
	. "github.com/smartystreets/goconvey/convey"
)

var day0 = time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)

func series(closes ...float64) []model.PricePoint {
	out := make([]model.PricePoint, len(closes))
	for i, c := range closes {
		out[i] = model.PricePoint{At: day0.AddDate(0, 0, i), Close: c, Volume: 1000}
	}
	return out
}

func ptr[T any](v T) *T { return &v }

type fakeGateway struct {
	history map[string]map[model.Window][]model.PricePoint
	errs    map[string]error
	fund     model.Fundamentals
	fundErrs map[string]error
	delay    map[string]time.Duration

	inflight, peak, historyCalls atomic.Int32
}

func (f *fakeGateway) FetchHistory(ctx context.Context, ticker string, w model.Window) ([]model.PricePoint, error) {
	f.historyCalls.Add(1)
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if d := f.delay[ticker]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := f.errs[ticker]; err != nil {
		return nil, err
	}
	s := f.history[ticker][w]
	if len(s) == 0 {
		return nil, model.ErrDataUnavailable
	}
	return s, nil
}

func (f *fakeGateway) FetchFundamentals(_ context.Context, ticker string) (model.Fundamentals, error) {
	if err := f.fundErrs[ticker]; err != nil {
		return model.Fundamentals{}, err
	}
	return f.fund, nil
}

func fullHistory(c7, c1, c3 []model.PricePoint) map[model.Window][]model.PricePoint {
	return map[model.Window][]model.PricePoint{model.Window7D: c7, model.Window1M: c1, model.Window3M: c3}
}

func seed(ctx context.Context, s repository.Store) {
	for _, a := range []model.Asset{{Ticker: "AAPL", Label: "Apple"}, {Ticker: "MSFT", Label: "Microsoft"}, {Ticker: "TSLA", Label: "Tesla"}} {
		So(s.UpsertAsset(ctx, a), ShouldBeNil)
	}
	So(s.CreateAllocation(ctx, model.Allocation{AssetTicker: "AAPL", AllocationPercent: 40}), ShouldBeNil)
	So(s.CreateAllocation(ctx, model.Allocation{AssetTicker: "MSFT", AllocationPercent: 30}), ShouldBeNil)
	So(s.CreateAllocation(ctx, model.Allocation{AssetTicker: "TSLA", AllocationPercent: 0}), ShouldBeNil)
}

func TestPortfolioModes(t *testing.T) {
	Convey("Given AAPL 40, MSFT 30 and TSLA 0", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore(ctx)
		Reset(func() { _ = store.Close() })
		seed(ctx, store)

		gw := &fakeGateway{
			history: map[string]map[model.Window][]model.PricePoint{
				"AAPL": fullHistory(series(100, 103.456), series(120, 100), series(80, 100)),
				"MSFT": fullHistory(series(400, 380), series(400, 380), series(400, 420)),
				"TSLA": fullHistory(series(200, 200), series(200, 210), series(200, 190)),
			},
			fund: model.Fundamentals{MarketCap: ptr(3e12), PERatio: ptr(30.5), AvgVolume: ptr(int64(1000))},
		}
		e := portfolio.NewEngine(store, gw, portfolio.WithConcurrency(2))

		Convey("Current mode returns the two allocated assets with prices", func() {
			res, err := e.Analyze(ctx, model.ModeCurrent)
			So(err, ShouldBeNil)
			So(res, ShouldHaveLength, 2)
			So(res[0].Ticker, ShouldEqual, "AAPL")
			So(res[1].Ticker, ShouldEqual, "MSFT")
			So(*res[0].LastPrice, ShouldEqual, 103.46)
			So(*res[0].Change7DPct, ShouldEqual, 3.46)
			So(res[0].Trend, ShouldEqual, model.TrendUp)
			So(*res[1].LastPrice, ShouldEqual, 380)
			So(res[1].Trend, ShouldEqual, model.TrendDown)
			So(res[0].Change1MPct, ShouldBeNil)
			So(res[0].HighRisk, ShouldBeNil)
		})

		Convey("Status mode adds long windows, fundamentals and risk", func() {
			res, err := e.Analyze(ctx, model.ModeStatus)
			So(err, ShouldBeNil)
			So(res, ShouldHaveLength, 2)
			aapl := res[0]
			So(*aapl.Change1MPct, ShouldEqual, -16.67)
			So(*aapl.Change3MPct, ShouldEqual, 25)
			So(*aapl.HighRisk, ShouldBeTrue)
			So(*aapl.MarketCap, ShouldEqual, 3e12)
			So(aapl.DividendYield, ShouldBeNil)
			So(*res[1].HighRisk, ShouldBeFalse)
		})

		Convey("Universe mode includes TSLA at zero allocation", func() {
			res, err := e.Analyze(ctx, model.ModeUniverse)
			So(err, ShouldBeNil)
			So(res, ShouldHaveLength, 3)
			So(res[2].Ticker, ShouldEqual, "TSLA")
			So(res[2].AllocationPercent, ShouldEqual, 0)
			So(res[2].Trend, ShouldEqual, model.TrendNeutral)
			So(res[2].Failed(), ShouldBeFalse)
		})

		Convey("An unknown mode is a validation error", func() {
			_, err := e.Analyze(ctx, model.Mode("weekly"))
			So(errors.Is(err, model.ErrValidation), ShouldBeTrue)
		})
	})
}

func TestPortfolioFailures(t *testing.T) {
	holdings := []model.Holding{
		{Ticker: "A", AllocationPercent: 10},
		{Ticker: "B", AllocationPercent: 20},
		{Ticker: "C", AllocationPercent: 30},
		{Ticker: "D", AllocationPercent: 40},
	}
	ok := fullHistory(series(10, 11), series(10, 12), series(10, 9))

	Convey("Given asset B has no market data", t, func() {
		gw := &fakeGateway{
			history: map[string]map[model.Window][]model.PricePoint{"A": ok, "C": ok, "D": ok},
		}
		e := portfolio.NewEngine(nil, gw)
		res, err := e.AnalyzeHoldings(context.Background(), model.ModeStatus, holdings)

		Convey("Then N results come back in order with only B failed", func() {
			So(err, ShouldBeNil)
			So(res, ShouldHaveLength, 4)
			for i, h := range holdings {
				So(res[i].Ticker, ShouldEqual, h.Ticker)
			}
			So(res[1].Error, ShouldEqual, "No market data found")
			So(res[1].LastPrice, ShouldBeNil)
			So(res[1].Change7DPct, ShouldBeNil)
			So(res[1].HighRisk, ShouldBeNil)
			So(res[1].AllocationPercent, ShouldEqual, 20)
			for _, i := range []int{0, 2, 3} {
				So(res[i].Failed(), ShouldBeFalse)
				So(res[i].LastPrice, ShouldNotBeNil)
				So(res[i].Change1MPct, ShouldNotBeNil)
				So(res[i].Change3MPct, ShouldNotBeNil)
				So(res[i].HighRisk, ShouldNotBeNil)
			}
		})
	})

	Convey("Given asset C has no fundamentals", t, func() {
		gw := &fakeGateway{
			history:  map[string]map[model.Window][]model.PricePoint{"A": ok, "B": ok, "C": ok, "D": ok},
			fundErrs: map[string]error{"C": model.ErrDataUnavailable},
		}
		e := portfolio.NewEngine(nil, gw)

		Convey("Then status mode reports C as failed with no metrics", func() {
			res, err := e.AnalyzeHoldings(context.Background(), model.ModeStatus, holdings)
			So(err, ShouldBeNil)
			So(res, ShouldHaveLength, 4)
			So(res[2].Ticker, ShouldEqual, "C")
			So(res[2].Error, ShouldEqual, "No market data found")
			So(res[2].LastPrice, ShouldBeNil)
			So(res[2].Change7DPct, ShouldBeNil)
			So(res[2].MarketCap, ShouldBeNil)
			So(res[2].HighRisk, ShouldBeNil)
			So(res[2].AllocationPercent, ShouldEqual, 30)
			for _, i := range []int{0, 1, 3} {
				So(res[i].Failed(), ShouldBeFalse)
			}
		})

		Convey("Then current mode does not need fundamentals", func() {
			res, _ := e.AnalyzeHoldings(context.Background(), model.ModeCurrent, holdings)
			So(res[2].Failed(), ShouldBeFalse)
		})

		Convey("Then a fundamentals timeout is a per-asset timeout", func() {
			gw.fundErrs["C"] = model.ErrTransportTimeout
			res, _ := e.AnalyzeHoldings(context.Background(), model.ModeUniverse, holdings)
			So(res[2].Error, ShouldEqual, "market data request timed out")
			So(res[3].Failed(), ShouldBeFalse)
		})
	})

	Convey("Given fundamentals without an average volume", t, func() {
		gw := &fakeGateway{
			history: map[string]map[model.Window][]model.PricePoint{"A": ok},
			fund:    model.Fundamentals{MarketCap: ptr(1e9)},
		}
		e := portfolio.NewEngine(nil, gw)
		res, err := e.AnalyzeHoldings(context.Background(), model.ModeStatus, holdings[:1])

		Convey("Then it is derived from the 3-month series already fetched", func() {
			So(err, ShouldBeNil)
			So(res[0].Failed(), ShouldBeFalse)
			So(*res[0].AvgVolume, ShouldEqual, int64(1000))
			So(gw.historyCalls.Load(), ShouldEqual, int32(3))
		})
	})

	Convey("Given empty long windows", t, func() {
		gw := &fakeGateway{history: map[string]map[model.Window][]model.PricePoint{
			"A": {model.Window7D: series(10, 10)},
		}}
		e := portfolio.NewEngine(nil, gw)
		res, _ := e.AnalyzeHoldings(context.Background(), model.ModeUniverse, holdings[:1])

		Convey("Then long changes are nil and the asset is not high risk", func() {
			So(res[0].Failed(), ShouldBeFalse)
			So(res[0].Change1MPct, ShouldBeNil)
			So(res[0].Change3MPct, ShouldBeNil)
			So(*res[0].HighRisk, ShouldBeFalse)
		})
	})

	Convey("Given one slow asset", t, func() {
		gw := &fakeGateway{
			history: map[string]map[model.Window][]model.PricePoint{"A": ok, "B": ok, "C": ok, "D": ok},
			delay:   map[string]time.Duration{"C": time.Second},
		}
		e := portfolio.NewEngine(nil, gw, portfolio.WithAssetTimeout(30*time.Millisecond))

		start := time.Now()
		res, _ := e.AnalyzeHoldings(context.Background(), model.ModeCurrent, holdings)

		Convey("Then it times out alone and does not stall the batch", func() {
			So(time.Since(start), ShouldBeLessThan, 500*time.Millisecond)
			So(res[2].Error, ShouldEqual, "market data request timed out")
			So(res[0].Failed(), ShouldBeFalse)
			So(res[3].Failed(), ShouldBeFalse)
		})
	})

	Convey("Given a concurrency limit", t, func() {
		many := make([]model.Holding, 12)
		hist := map[string]map[model.Window][]model.PricePoint{}
		delay := map[string]time.Duration{}
		for i := range many {
			tk := string(rune('A' + i))
			many[i] = model.Holding{Ticker: tk}
			hist[tk] = ok
			delay[tk] = 10 * time.Millisecond
		}
		gw := &fakeGateway{history: hist, delay: delay}
		e := portfolio.NewEngine(nil, gw, portfolio.WithConcurrency(3))

		res, err := e.AnalyzeHoldings(context.Background(), model.ModeCurrent, many)
		So(err, ShouldBeNil)
		So(res, ShouldHaveLength, 12)
		So(gw.peak.Load(), ShouldBeLessThanOrEqualTo, 3)
	})
}
