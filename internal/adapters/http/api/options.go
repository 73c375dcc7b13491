package api

import "github.com/okian/finsight/pkg/logger"

// Default feed limits.
const (
	DefaultInsightsLimit      = 3
	DefaultMaxInsightsLimit   = 50
	defaultInsightConcurrency = 4
)

// Option configures the Server.
type Option func(*Server)

// WithInsightsLimit sets the feed size used when no limit is given.
func WithInsightsLimit(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.defaultLimit = n
		}
	}
}

// WithMaxInsightsLimit caps the feed size a client can ask for.
func WithMaxInsightsLimit(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxLimit = n
		}
	}
}

// WithInsightConcurrency bounds parallel insight composition in the feed.
func WithInsightConcurrency(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.insightConcurrency = n
		}
	}
}

// WithLogger sets the handler logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}
