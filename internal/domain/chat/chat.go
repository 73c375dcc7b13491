// Package chat answers questions about recent news in multi-turn sessions.
//
// Each session cycles AwaitingInput -> Retrieving -> Responding ->
// AwaitingInput. Turns for one session are processed one at a time.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/okian/finsight/internal/domain/model"
	"github.com/okian/finsight/pkg/logger"
	"github.com/okian/finsight/pkg/metrics"
)

const (
	DefaultContextArticles = 7
	DefaultMaxTokens       = 800
)

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// ArticleSource returns the most recently published articles.
type ArticleSource interface {
	RecentArticles(ctx context.Context, limit int) ([]model.Article, error)
}

// Option configures the Retriever.
type Option func(*Retriever)

// WithContextArticles sets how many recent articles go into each prompt.
func WithContextArticles(n int) Option {
	return func(r *Retriever) {
		if n > 0 {
			r.contextArticles = n
		}
	}
}

// WithMaxTokens caps each answer.
func WithMaxTokens(n int) Option {
	return func(r *Retriever) {
		if n > 0 {
			r.maxTokens = n
		}
	}
}

// WithClock overrides time.Now for turn timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Retriever) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Retriever) {
		if l != nil {
			r.log = l
		}
	}
}

// Retriever runs conversations grounded in the latest articles.
type Retriever struct {
	sessions        SessionStore
	articles        ArticleSource
	gen             Generator
	locks           *keyedMutex
	contextArticles int
	maxTokens       int
	now             func() time.Time
	log             logger.Logger
}

// NewRetriever creates a retriever.
func NewRetriever(sessions SessionStore, articles ArticleSource, gen Generator, opts ...Option) *Retriever {
	r := &Retriever{
		sessions:        sessions,
		articles:        articles,
		gen:             gen,
		locks:           newKeyedMutex(),
		contextArticles: DefaultContextArticles,
		maxTokens:       DefaultMaxTokens,
		now:             time.Now,
		log:             logger.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewSession starts an empty session awaiting input under a generated id.
func (r *Retriever) NewSession(ctx context.Context) (model.Session, error) {
	s := r.empty(uuid.NewString())
	if err := r.sessions.Put(ctx, s); err != nil {
		return model.Session{}, fmt.Errorf("chat.NewSession: %w", err)
	}
	return s, nil
}

func (r *Retriever) empty(id string) model.Session {
	return model.Session{
		ID:        id,
		Turns:     []model.Turn{},
		State:     model.StateAwaitingInput,
		UpdatedAt: r.now().UTC(),
	}
}

// Send records message, answers it and returns the assistant turn.
// An unknown or expired session id starts a new session under that id. When
// generation fails the user turn stays recorded and the session goes back to
// AwaitingInput.
func (r *Retriever) Send(ctx context.Context, sessionID, message string) (model.Turn, error) {
	const op = "chat.Send"
	message = strings.TrimSpace(message)
	if message == "" {
		return model.Turn{}, fmt.Errorf("%s: %w: message is required", op, model.ErrValidation)
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return model.Turn{}, fmt.Errorf("%s: %w: session id is required", op, model.ErrValidation)
	}

	unlock := r.locks.Lock(sessionID)
	defer unlock()

	s, err := r.sessions.Get(ctx, sessionID)
	switch {
	case errors.Is(err, model.ErrNotFound):
		s = r.empty(sessionID)
		r.log.Debug(ctx, "chat session opened", logger.String("session_id", sessionID))
	case err != nil:
		return model.Turn{}, fmt.Errorf("%s: %w", op, err)
	}
	if s.State != model.StateAwaitingInput {
		// a previous turn died mid-cycle; the lock guarantees nothing else is running
		s = WithState(s, model.StateAwaitingInput)
	}

	s = ApplyTurn(s, model.Turn{Role: model.RoleUser, Content: message, At: r.now().UTC()})
	if err := r.sessions.Put(ctx, s); err != nil {
		return model.Turn{}, fmt.Errorf("%s: %w", op, err)
	}

	articles, err := r.articles.RecentArticles(ctx, r.contextArticles)
	if err != nil {
		return model.Turn{}, r.abort(ctx, s, fmt.Errorf("%s: recent articles: %w", op, err))
	}

	s = WithState(s, model.StateResponding)
	if err := r.sessions.Put(ctx, s); err != nil {
		return model.Turn{}, fmt.Errorf("%s: %w", op, err)
	}

	reply, err := r.gen.Generate(ctx, buildPrompt(articles, s.Turns), r.maxTokens)
	if err != nil {
		return model.Turn{}, r.abort(ctx, s, fmt.Errorf("%s: %w", op, err))
	}

	turn := model.Turn{Role: model.RoleAssistant, Content: strings.TrimSpace(reply), At: r.now().UTC()}
	s = ApplyTurn(s, turn)
	if err := r.sessions.Put(ctx, s); err != nil {
		return model.Turn{}, fmt.Errorf("%s: %w", op, err)
	}

	metrics.RecordChatTurn()
	r.log.Debug(ctx, "chat turn", logger.String("session_id", s.ID), logger.Int("turns", len(s.Turns)))
	return turn, nil
}

func (r *Retriever) abort(ctx context.Context, s model.Session, cause error) error {
	if err := r.sessions.Put(ctx, WithState(s, model.StateAwaitingInput)); err != nil {
		r.log.Error(ctx, "failed to reset session", logger.String("session_id", s.ID), logger.Error(err))
	}
	r.log.Warn(ctx, "chat turn failed", logger.String("session_id", s.ID), logger.Error(cause))
	return cause
}

// History returns the ordered turns of a session.
func (r *Retriever) History(ctx context.Context, sessionID string) ([]model.Turn, error) {
	s, err := r.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("chat.History: %w", err)
	}
	return s.Turns, nil
}

// Session returns a snapshot of the session.
func (r *Retriever) Session(ctx context.Context, sessionID string) (model.Session, error) {
	s, err := r.sessions.Get(ctx, sessionID)
	if err != nil {
		return model.Session{}, fmt.Errorf("chat.Session: %w", err)
	}
	return s, nil
}

func buildPrompt(articles []model.Article, turns []model.Turn) string {
	var b strings.Builder
	b.WriteString("You are a financial assistant.\n")
	fmt.Fprintf(&b, "Here are the %d latest news articles:\n\n", len(articles))
	for i, a := range articles {
		if i > 0 {
			b.WriteString("\n")
		}
		summary := a.Summary
		if summary == "" {
			summary = a.Body()
		}
		fmt.Fprintf(&b, "- %s: %s\n", a.Title, summary)
	}

	b.WriteString("\nConversation so far:\n")
	for _, t := range turns {
		fmt.Fprintf(&b, "%s: %s\n", t.Role, t.Content)
	}
	b.WriteString("\nAnswer the last user message with a concise summary and the key implications for markets.\n")
	return b.String()
}
