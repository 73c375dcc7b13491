package worker

import (
	"context"

	"github.com/okian/finsight/internal/domain/model"
	"github.com/okian/finsight/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// FailureFunc is told about articles whose analysis failed for a reason other
// than a duplicate, so callers can release any admission bookkeeping.
type FailureFunc func(ctx context.Context, a model.Article, err error)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithOnFailure registers a callback for failed analyses.
func WithOnFailure(fn FailureFunc) Option {
	return func(w *InMemoryWorker) {
		if fn != nil {
			w.onFailure = fn
		}
	}
}
