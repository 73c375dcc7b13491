// Package worker drains the article queue and runs each article through the
// analysis engine.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/finsight/internal/domain/model"
	"github.com/okian/finsight/pkg/logger"
	"github.com/okian/finsight/pkg/metrics"
)

const poolShutdownTimeout = 30 * time.Second

// Analyzer produces the analysis packet for one article.
type Analyzer interface {
	Analyze(ctx context.Context, a model.Article) (model.AnalysisPacket, error)
}

// Queue defines how workers receive articles.
type Queue interface {
	Dequeue(ctx context.Context) <-chan model.Article
}

// Worker processes articles until its queue is drained or it is stopped.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown stops the worker and waits for the in-flight article.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue     Queue
	analyzer  Analyzer
	name      string
	onFailure FailureFunc
	active    *atomic.Int64

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a worker reading from q.
func NewInMemoryWorker(q Queue, analyzer Analyzer, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:     q,
		analyzer:  analyzer,
		name:      "worker",
		onFailure: func(context.Context, model.Article, error) {},
		active:    &atomic.Int64{},
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
		logger:    logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run implements Worker.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	articles := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case a, ok := <-articles:
			if !ok {
				return
			}
			_ = w.process(ctx, a)
		}
	}
}

// Shutdown implements Worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// process analyzes one article. Duplicates are expected and logged quietly.
func (w *InMemoryWorker) process(ctx context.Context, a model.Article) error { //nolint:gocritic // hugeParam: received by value from the queue
	w.active.Add(1)
	metrics.UpdateWorkerActiveCount(int(w.active.Load()))
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
		w.active.Add(-1)
		metrics.UpdateWorkerActiveCount(int(w.active.Load()))
	}()

	p, err := w.analyzer.Analyze(ctx, a)
	switch {
	case err == nil:
		w.logger.Debug(ctx, "article analyzed",
			logger.String("url", a.URL),
			logger.Int("impact", p.Impact.ImpactScore),
			logger.Bool("important", p.Important),
		)
		return nil
	case errors.Is(err, model.ErrConflict):
		metrics.RecordArticleDuplicate()
		w.logger.Debug(ctx, "article already analyzed", logger.String("url", a.URL))
		return err
	default:
		metrics.RecordWorkerError()
		w.logger.Error(ctx, "analysis failed",
			logger.String("url", a.URL),
			logger.Error(err),
		)
		w.onFailure(ctx, a, err)
		return fmt.Errorf("analyze %s: %w", a.URL, err)
	}
}

// Pool manages multiple workers sharing one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	active  atomic.Int64
	logger  logger.Logger
}

// NewPool creates workerCount workers. A non-positive count uses one worker
// per CPU.
func NewPool(workerCount int, q Queue, analyzer Analyzer, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}
	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		logger:  logger.Get().Named("worker-pool"),
	}
	for i := range workerCount {
		wopts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		w := NewInMemoryWorker(q, analyzer, wopts...)
		w.active = &p.active
		p.workers[i] = w
	}

	metrics.UpdateWorkerCount(workerCount)
	metrics.UpdateWorkerActiveCount(0)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Active returns the number of workers currently analyzing an article.
func (p *Pool) Active() int { return int(p.active.Load()) }

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Shutdown closes the queue so workers drain what is pending, then waits for
// them until ctx or the pool timeout ends. Workers still busy after that are
// told to stop.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut bool
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			timedOut = true
			p.logger.Warn(ctx, "worker drain timed out", logger.Int("worker_id", i))
			w.shutdownOnce.Do(func() { close(w.shutdown) })
		}
	}
	if timedOut {
		return fmt.Errorf("worker pool shutdown: %w", shutdownCtx.Err())
	}
	return nil
}
