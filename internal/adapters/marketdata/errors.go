package marketdata

import (
	"errors"
	"fmt"
)

// ErrMalformedResponse is returned when the provider body cannot be parsed.
var ErrMalformedResponse = errors.New("malformed provider response")

// APIError represents a non-2xx answer from the provider.
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("market data API error: %s (status %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}
