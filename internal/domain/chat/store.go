package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/finsight/internal/domain/model"
	"github.com/okian/finsight/pkg/metrics"
)

// SessionStore keeps conversation sessions.
type SessionStore interface {
	// Get returns model.ErrNotFound for unknown or expired sessions.
	Get(ctx context.Context, id string) (model.Session, error)
	Put(ctx context.Context, s model.Session) error
	Delete(ctx context.Context, id string) error
	Len() int
}

const (
	defaultSessionTTL    = 30 * time.Minute
	defaultSweepInterval = time.Minute
)

// StoreOption configures a MemorySessionStore.
type StoreOption func(*MemorySessionStore)

// WithTTL sets how long an idle session is kept.
func WithTTL(ttl time.Duration) StoreOption {
	return func(s *MemorySessionStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithSweepInterval sets how often expired sessions are evicted.
func WithSweepInterval(d time.Duration) StoreOption {
	return func(s *MemorySessionStore) {
		if d > 0 {
			s.sweepInterval = d
		}
	}
}

// WithStoreClock overrides time.Now for expiry checks.
func WithStoreClock(now func() time.Time) StoreOption {
	return func(s *MemorySessionStore) {
		if now != nil {
			s.now = now
		}
	}
}

// MemorySessionStore is an in-process SessionStore with idle-TTL eviction.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]model.Session

	ttl           time.Duration
	sweepInterval time.Duration
	now           func() time.Time

	wg        sync.WaitGroup
	stopChan  chan struct{}
	closeOnce sync.Once
}

// NewMemorySessionStore creates the store and starts its sweeper.
func NewMemorySessionStore(ctx context.Context, opts ...StoreOption) *MemorySessionStore {
	s := &MemorySessionStore{
		sessions:      make(map[string]model.Session),
		ttl:           defaultSessionTTL,
		sweepInterval: defaultSweepInterval,
		now:           time.Now,
		stopChan:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.startSweeper(ctx)
	return s
}

func (s *MemorySessionStore) expired(sess model.Session) bool {
	return s.now().Sub(sess.UpdatedAt) > s.ttl
}

// Get implements SessionStore.
func (s *MemorySessionStore) Get(_ context.Context, id string) (model.Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok || s.expired(sess) {
		return model.Session{}, fmt.Errorf("session %q: %w", id, model.ErrNotFound)
	}
	sess.Turns = append([]model.Turn(nil), sess.Turns...)
	return sess, nil
}

// Put implements SessionStore.
func (s *MemorySessionStore) Put(_ context.Context, sess model.Session) error {
	if sess.ID == "" {
		return fmt.Errorf("%w: session id is required", model.ErrValidation)
	}
	sess.Turns = append([]model.Turn(nil), sess.Turns...)
	s.mu.Lock()
	s.sessions[sess.ID] = sess
	n := len(s.sessions)
	s.mu.Unlock()
	metrics.UpdateChatSessions(n)
	return nil
}

// Delete implements SessionStore.
func (s *MemorySessionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	return nil
}

// Len implements SessionStore.
func (s *MemorySessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep evicts expired sessions and returns how many were removed.
func (s *MemorySessionStore) Sweep() int {
	s.mu.Lock()
	var removed int
	for id, sess := range s.sessions {
		if s.expired(sess) {
			delete(s.sessions, id)
			removed++
		}
	}
	n := len(s.sessions)
	s.mu.Unlock()
	metrics.UpdateChatSessions(n)
	return removed
}

// Close stops the sweeper.
func (s *MemorySessionStore) Close() error {
	s.closeOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return nil
}

func (s *MemorySessionStore) startSweeper(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.Sweep()
			}
		}
	}()
}
