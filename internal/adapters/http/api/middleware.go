package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/okian/finsight/pkg/logger"
	"github.com/okian/finsight/pkg/metrics"
)

var errPanic = errors.New("handler panicked")

// instrument records request metrics for endpoint and turns a handler panic
// into a 500 with the usual error body.
func (s *Server) instrument(endpoint string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		defer func() {
			if v := recover(); v != nil {
				s.log.Error(r.Context(), "handler panic",
					logger.String("endpoint", endpoint),
					logger.String("method", r.Method),
					logger.Any("panic", v))
				if !rec.wrote {
					writeError(rec, http.StatusInternalServerError, "internal_error", errPanic)
				}
				rec.status = http.StatusInternalServerError
			}

			status := strconv.Itoa(rec.status)
			metrics.RecordHTTPRequest(endpoint, r.Method, status)
			metrics.RecordHTTPRequestDuration(endpoint, r.Method, status, float64(time.Since(start).Microseconds())/1000)
			if rec.status >= http.StatusBadRequest {
				metrics.RecordErrorByEndpoint(endpoint, r.Method, errorClass(rec.status))
			}
		}()

		next(rec, r)
	}
}

// errorClass buckets an error status for the errors-by-endpoint counter.
func errorClass(status int) string {
	switch status {
	case http.StatusGatewayTimeout:
		return "upstream_timeout"
	case http.StatusBadGateway:
		return "composition_failed"
	case http.StatusServiceUnavailable:
		return "unavailable"
	case http.StatusTooManyRequests:
		return "backpressure"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	}
	if status >= http.StatusInternalServerError {
		return "server_error"
	}
	return "client_error"
}

// statusRecorder captures the first status written.
type statusRecorder struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (rec *statusRecorder) WriteHeader(code int) {
	if rec.wrote {
		return
	}
	rec.status = code
	rec.wrote = true
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *statusRecorder) Write(b []byte) (int, error) {
	rec.wrote = true
	n, err := rec.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}
