// Package marketdata fetches daily price history and fundamentals from an
// EODHD-compatible HTTP API.
package marketdata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/okian/finsight/internal/domain/model"
	"github.com/okian/finsight/pkg/logger"
	"github.com/okian/finsight/pkg/metrics"
)

const (
	// DefaultBaseURL is the EODHD API root.
	DefaultBaseURL = "https://eodhd.com/api"
	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 10 * time.Second
	// DefaultRateLimit is the default request rate (requests per second).
	DefaultRateLimit = 10

	dateLayout   = "2006-01-02"
	maxErrorBody = 512

	endpointEOD          = "eod"
	endpointFundamentals = "fundamentals"
)

// Client is a market data gateway.
type Client struct {
	baseURL    string
	apiKey     string
	exchange   string
	httpClient *http.Client
	limiter    *rate.Limiter
	now        func() time.Time
	log        logger.Logger
}

// NewClient creates a client authenticated with apiKey.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		apiKey:     apiKey,
		exchange:   "US",
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		now:        time.Now,
		log:        logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.baseURL = strings.TrimRight(c.baseURL, "/")
	return c
}

func (c *Client) symbol(ticker string) string {
	if c.exchange == "" || strings.Contains(ticker, ".") {
		return ticker
	}
	return ticker + "." + c.exchange
}

// FetchHistory returns daily closes for the window, oldest first.
func (c *Client) FetchHistory(ctx context.Context, ticker string, w model.Window) ([]model.PricePoint, error) {
	to := c.now().UTC()
	from := to.Add(-w.Span())
	params := url.Values{
		"from":   {from.Format(dateLayout)},
		"to":     {to.Format(dateLayout)},
		"period": {"d"},
		"order":  {"a"},
	}
	body, err := c.get(ctx, endpointEOD, "/eod/"+url.PathEscape(c.symbol(ticker)), params)
	if err != nil {
		return nil, fmt.Errorf("history %s %s: %w", ticker, w, err)
	}
	points, err := parseHistory(body)
	if err != nil {
		return nil, fmt.Errorf("history %s %s: %w", ticker, w, err)
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("history %s %s: %w", ticker, w, model.ErrDataUnavailable)
	}
	return points, nil
}

func parseHistory(body []byte) ([]model.PricePoint, error) {
	doc := gjson.ParseBytes(body)
	if !doc.IsArray() {
		return nil, ErrMalformedResponse
	}
	var points []model.PricePoint
	for _, row := range doc.Array() {
		at, err := time.Parse(dateLayout, row.Get("date").String())
		if err != nil {
			return nil, fmt.Errorf("%w: date %q", ErrMalformedResponse, row.Get("date").String())
		}
		closeV := row.Get("adjusted_close")
		if !closeV.Exists() || closeV.Float() == 0 {
			closeV = row.Get("close")
		}
		points = append(points, model.PricePoint{
			At:     at,
			Close:  closeV.Float(),
			Volume: row.Get("volume").Int(),
		})
	}
	return points, nil
}

// FetchFundamentals returns market cap, PE ratio and dividend yield with a
// single request. AvgVolume is left to the caller, which already holds the
// 3-month series.
func (c *Client) FetchFundamentals(ctx context.Context, ticker string) (model.Fundamentals, error) {
	params := url.Values{"filter": {"Highlights"}}
	body, err := c.get(ctx, endpointFundamentals, "/fundamentals/"+url.PathEscape(c.symbol(ticker)), params)
	if err != nil {
		return model.Fundamentals{}, fmt.Errorf("fundamentals %s: %w", ticker, err)
	}
	f, err := parseHighlights(body)
	if err != nil {
		return model.Fundamentals{}, fmt.Errorf("fundamentals %s: %w", ticker, err)
	}
	return f, nil
}

// parseHighlights accepts either the filtered Highlights object or the full
// fundamentals document.
func parseHighlights(body []byte) (model.Fundamentals, error) {
	doc := gjson.ParseBytes(body)
	if !doc.IsObject() {
		return model.Fundamentals{}, model.ErrDataUnavailable
	}
	if h := doc.Get("Highlights"); h.IsObject() {
		doc = h
	}
	if !doc.Get("MarketCapitalization").Exists() && !doc.Get("PERatio").Exists() && !doc.Get("DividendYield").Exists() {
		return model.Fundamentals{}, model.ErrDataUnavailable
	}
	return model.Fundamentals{
		MarketCap:     number(doc.Get("MarketCapitalization")),
		PERatio:       number(doc.Get("PERatio")),
		DividendYield: number(doc.Get("DividendYield")),
	}, nil
}

// number returns nil for missing, null or zero values.
func number(r gjson.Result) *float64 {
	if r.Type != gjson.Number && r.Type != gjson.String {
		return nil
	}
	v := r.Float()
	if v == 0 {
		return nil
	}
	return &v
}

func (c *Client) get(ctx context.Context, endpoint, path string, params url.Values) (body []byte, err error) {
	start := time.Now()
	defer func() {
		metrics.RecordMarketDataRequest(endpoint, outcome(err), float64(time.Since(start).Microseconds())/1000)
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: rate limiter: %v", model.ErrTransportTimeout, err)
	}

	params.Set("api_token", c.apiKey)
	params.Set("fmt", "json")
	reqURL := c.baseURL + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	c.log.Debug(ctx, "market data request", logger.String("endpoint", endpoint), logger.String("path", path))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: %v", model.ErrTransportTimeout, err)
		}
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, model.ErrDataUnavailable
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &APIError{StatusCode: resp.StatusCode, Message: string(msg), Endpoint: endpoint}
	}

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: %v", model.ErrTransportTimeout, err)
		}
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, model.ErrDataUnavailable):
		return "no_data"
	case errors.Is(err, model.ErrTransportTimeout):
		return "timeout"
	default:
		return "error"
	}
}
