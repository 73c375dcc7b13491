package portfolio

import (
	"time"

	"github.com/okian/finsight/pkg/logger"
)

// Option configures the Engine.
type Option func(*Engine)

// WithConcurrency bounds how many assets are analyzed at once.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithAssetTimeout bounds the gateway calls made for one asset.
func WithAssetTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.assetTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}
