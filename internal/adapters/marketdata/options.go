package marketdata

import (
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/okian/finsight/pkg/logger"
)

// Option configures the Client.
type Option func(*Client)

// WithBaseURL sets the provider base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = baseURL
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout bounds every request made without a tighter caller deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithRateLimit sets the outbound request rate (requests per second).
func WithRateLimit(rps int) Option {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), rps)
		}
	}
}

// WithExchange sets the suffix appended to bare tickers, e.g. "US" for AAPL.US.
func WithExchange(exchange string) Option {
	return func(c *Client) { c.exchange = exchange }
}

// WithClock overrides time.Now for window computation.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}
