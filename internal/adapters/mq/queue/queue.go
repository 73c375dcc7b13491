// Package queue buffers articles accepted for asynchronous analysis.
package queue

import (
	"context"
	"sync"

	"github.com/okian/finsight/internal/domain/model"
	"github.com/okian/finsight/pkg/metrics"
)

const defaultQueueCapacity = 10_000

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds an article without blocking. It returns ErrFull when the
	// queue is at capacity and ErrClosed after Close.
	Enqueue(ctx context.Context, a model.Article) error

	// Dequeue returns a channel that receives articles until the queue is
	// closed and drained, or ctx ends.
	Dequeue(ctx context.Context) <-chan model.Article

	Len() int
	Capacity() int
	Close() error
	IsClosed() bool
}

// InMemoryQueue implements Queue with a buffered channel.
type InMemoryQueue struct {
	items    chan model.Article
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a bounded queue.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.items = make(chan model.Article, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	q.report()
	return q
}

func (q *InMemoryQueue) report() {
	size := len(q.items)
	metrics.UpdateQueueSize(size)
	metrics.UpdateQueueUtilization(float64(size) / float64(q.capacity))
}

// Enqueue implements Queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, a model.Article) error { //nolint:gocritic // hugeParam: sent by value over the channel
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError()
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordQueueEnqueueError()
		return err
	}

	select {
	case q.items <- a:
		metrics.RecordQueueEnqueue()
		q.report()
		return nil
	default:
		metrics.RecordQueueEnqueueError()
		return ErrFull
	}
}

// Dequeue implements Queue.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan model.Article {
	out := make(chan model.Article)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case a, ok := <-q.items:
				if !ok {
					return
				}
				select {
				case out <- a:
					metrics.RecordQueueDequeue()
					q.report()
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// Len implements Queue.
func (q *InMemoryQueue) Len() int { return len(q.items) }

// Capacity implements Queue.
func (q *InMemoryQueue) Capacity() int { return q.capacity }

// Close stops accepting articles. Pending articles can still be dequeued.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	close(q.items)
	q.closed = true
	return nil
}

// IsClosed implements Queue.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
