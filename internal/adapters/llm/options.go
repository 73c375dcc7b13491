package llm

import (
	"time"

	"github.com/okian/finsight/pkg/logger"
)

type settings struct {
	timeout     time.Duration
	temperature float64
	baseURL     string
	log         logger.Logger
}

func defaultSettings() settings {
	return settings{
		timeout:     DefaultTimeout,
		temperature: DefaultTemperature,
		log:         logger.Nop(),
	}
}

// Option configures a generator.
type Option func(*settings)

// WithTimeout bounds each Generate call.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(s *settings) {
		if t >= 0 {
			s.temperature = t
		}
	}
}

// WithBaseURL points the client at a different API endpoint.
func WithBaseURL(u string) Option {
	return func(s *settings) { s.baseURL = u }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.log = l
		}
	}
}
