package marketdata_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/finsight/internal/adapters/marketdata"
	"github.com/okian/finsight/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

var fixedNow = time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)

const aaplEOD = `[
	{"date":"2024-06-03","open":190,"high":192,"low":189,"close":190.0,"adjusted_close":190.0,"volume":1000},
	{"date":"2024-06-05","open":195,"high":197,"low":194,"close":196.0,"adjusted_close":196.0,"volume":3000},
	{"date":"2024-06-07","open":198,"high":200,"low":197,"close":199.5,"adjusted_close":199.5,"volume":2000}
]`

func newServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *marketdata.Client) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := marketdata.NewClient("secret",
		marketdata.WithBaseURL(srv.URL),
		marketdata.WithClock(func() time.Time { return fixedNow }),
		marketdata.WithRateLimit(1000),
	)
	return srv, c
}

func TestFetchHistory(t *testing.T) {
	Convey("Given a provider with daily bars", t, func() {
		var gotPath, gotQuery string
		_, c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
			gotPath, gotQuery = r.URL.Path, r.URL.RawQuery
			_, _ = w.Write([]byte(aaplEOD))
		})

		points, err := c.FetchHistory(context.Background(), "AAPL", model.Window7D)

		Convey("Then the series is parsed oldest first", func() {
			So(err, ShouldBeNil)
			So(points, ShouldHaveLength, 3)
			So(points[0].Close, ShouldEqual, 190.0)
			So(points[2].Close, ShouldEqual, 199.5)
			So(points[1].Volume, ShouldEqual, 3000)
			So(points[0].At, ShouldEqual, time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC))
		})

		Convey("Then the request targets the exchange symbol and window", func() {
			So(gotPath, ShouldEqual, "/eod/AAPL.US")
			So(gotQuery, ShouldContainSubstring, "from=2024-06-03")
			So(gotQuery, ShouldContainSubstring, "to=2024-06-10")
			So(gotQuery, ShouldContainSubstring, "api_token=secret")
			So(gotQuery, ShouldContainSubstring, "order=a")
		})
	})

	Convey("Given a provider with no rows", t, func() {
		_, c := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`[]`))
		})
		_, err := c.FetchHistory(context.Background(), "ZZZZ", model.Window1M)
		So(errors.Is(err, model.ErrDataUnavailable), ShouldBeTrue)
	})

	Convey("Given an unknown symbol", t, func() {
		_, c := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "Ticker Not Found.", http.StatusNotFound)
		})
		_, err := c.FetchHistory(context.Background(), "ZZZZ", model.Window7D)
		So(errors.Is(err, model.ErrDataUnavailable), ShouldBeTrue)
	})

	Convey("Given a provider failure", t, func() {
		_, c := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		})
		_, err := c.FetchHistory(context.Background(), "AAPL", model.Window7D)

		Convey("Then an APIError is returned, not data unavailability", func() {
			var apiErr *marketdata.APIError
			So(errors.As(err, &apiErr), ShouldBeTrue)
			So(apiErr.StatusCode, ShouldEqual, http.StatusInternalServerError)
			So(errors.Is(err, model.ErrDataUnavailable), ShouldBeFalse)
		})
	})

	Convey("Given a slow provider and a short deadline", t, func() {
		release := make(chan struct{})
		_, c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		})
		defer close(release)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := c.FetchHistory(ctx, "AAPL", model.Window7D)
		So(errors.Is(err, model.ErrTransportTimeout), ShouldBeTrue)
	})

	Convey("Given garbage instead of JSON", t, func() {
		_, c := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"message":"nope"}`))
		})
		_, err := c.FetchHistory(context.Background(), "AAPL", model.Window7D)
		So(errors.Is(err, marketdata.ErrMalformedResponse), ShouldBeTrue)
	})
}

func TestFetchFundamentals(t *testing.T) {
	Convey("Given a highlights document", t, func() {
		var requests, historyRequests atomic.Int32
		_, c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
			requests.Add(1)
			if strings.HasPrefix(r.URL.Path, "/fundamentals/") {
				_, _ = w.Write([]byte(`{"MarketCapitalization":3000000000000,"PERatio":31.2,"DividendYield":null}`))
				return
			}
			historyRequests.Add(1)
			_, _ = w.Write([]byte(aaplEOD))
		})

		f, err := c.FetchFundamentals(context.Background(), "AAPL")

		Convey("Then present fields are set and missing ones are nil", func() {
			So(err, ShouldBeNil)
			So(*f.MarketCap, ShouldEqual, 3e12)
			So(*f.PERatio, ShouldEqual, 31.2)
			So(f.DividendYield, ShouldBeNil)
			So(f.AvgVolume, ShouldBeNil)
		})

		Convey("Then only the fundamentals endpoint is called", func() {
			So(requests.Load(), ShouldEqual, int32(1))
			So(historyRequests.Load(), ShouldEqual, int32(0))
		})
	})

	Convey("Given the full fundamentals document", t, func() {
		_, c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/fundamentals/") {
				_, _ = w.Write([]byte(`{"General":{"Code":"MSFT"},"Highlights":{"MarketCapitalization":3.1e12,"DividendYield":0.0072}}`))
				return
			}
			_, _ = w.Write([]byte(`[]`))
		})

		f, err := c.FetchFundamentals(context.Background(), "MSFT")
		So(err, ShouldBeNil)
		So(*f.DividendYield, ShouldEqual, 0.0072)
		So(f.PERatio, ShouldBeNil)
		So(f.AvgVolume, ShouldBeNil)
	})

	Convey("Given an empty fundamentals document", t, func() {
		_, c := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{}`))
		})
		_, err := c.FetchFundamentals(context.Background(), "TSLA")
		So(errors.Is(err, model.ErrDataUnavailable), ShouldBeTrue)
	})
}
