package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/finsight/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

var t0 = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

type articleList []model.Article

func (l articleList) RecentArticles(_ context.Context, limit int) ([]model.Article, error) {
	if limit < len(l) {
		return l[:limit], nil
	}
	return l, nil
}

type scriptedGenerator struct {
	mu       sync.Mutex
	prompts  []string
	budget   int
	err      error
	inflight atomic.Int32
	overlap  atomic.Bool
}

func (g *scriptedGenerator) Generate(_ context.Context, prompt string, maxTokens int) (string, error) {
	if g.inflight.Add(1) > 1 {
		g.overlap.Store(true)
	}
	defer g.inflight.Add(-1)
	time.Sleep(2 * time.Millisecond)

	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	g.budget = maxTokens
	if g.err != nil {
		return "", g.err
	}
	return fmt.Sprintf("answer %d", len(g.prompts)), nil
}

func news(n int) articleList {
	out := make(articleList, n)
	for i := range out {
		out[i] = model.Article{URL: fmt.Sprintf("https://n.example/%d", i), Title: fmt.Sprintf("Headline %d", i), Summary: fmt.Sprintf("Summary %d", i)}
	}
	return out
}

func TestApplyTurn(t *testing.T) {
	Convey("Given a session awaiting input", t, func() {
		s := model.Session{ID: "s", Turns: []model.Turn{}, State: model.StateAwaitingInput, UpdatedAt: t0}

		Convey("A user turn moves it to retrieving without touching the input", func() {
			next := ApplyTurn(s, model.Turn{Role: model.RoleUser, Content: "hi", At: t0.Add(time.Minute)})
			So(next.State, ShouldEqual, model.StateRetrieving)
			So(next.Turns, ShouldHaveLength, 1)
			So(next.UpdatedAt, ShouldEqual, t0.Add(time.Minute))
			So(s.Turns, ShouldBeEmpty)
			So(s.State, ShouldEqual, model.StateAwaitingInput)

			Convey("An assistant turn closes the cycle", func() {
				done := ApplyTurn(WithState(next, model.StateResponding), model.Turn{Role: model.RoleAssistant, Content: "hello", At: t0.Add(2 * time.Minute)})
				So(done.State, ShouldEqual, model.StateAwaitingInput)
				So(done.Turns[0].Role, ShouldEqual, model.RoleUser)
				So(done.Turns[1].Role, ShouldEqual, model.RoleAssistant)
				So(next.Turns, ShouldHaveLength, 1)
			})
		})

		Convey("Appending to two derived sessions does not alias", func() {
			base := ApplyTurn(s, model.Turn{Role: model.RoleUser, Content: "a"})
			x := ApplyTurn(base, model.Turn{Role: model.RoleAssistant, Content: "x"})
			y := ApplyTurn(base, model.Turn{Role: model.RoleAssistant, Content: "y"})
			So(x.Turns[1].Content, ShouldEqual, "x")
			So(y.Turns[1].Content, ShouldEqual, "y")
		})
	})
}

func TestMemorySessionStore(t *testing.T) {
	Convey("Given a store with a 30 minute TTL", t, func() {
		now := t0
		var clockMu sync.Mutex
		clock := func() time.Time { clockMu.Lock(); defer clockMu.Unlock(); return now }
		advance := func(d time.Duration) { clockMu.Lock(); now = now.Add(d); clockMu.Unlock() }

		ctx := context.Background()
		st := NewMemorySessionStore(ctx, WithTTL(30*time.Minute), WithStoreClock(clock), WithSweepInterval(time.Hour))
		Reset(func() { _ = st.Close() })
		So(st.Put(ctx, model.Session{ID: "a", UpdatedAt: t0}), ShouldBeNil)

		Convey("A fresh session is returned", func() {
			s, err := st.Get(ctx, "a")
			So(err, ShouldBeNil)
			So(s.ID, ShouldEqual, "a")
		})

		Convey("An idle session expires and is swept", func() {
			advance(31 * time.Minute)
			_, err := st.Get(ctx, "a")
			So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
			So(st.Sweep(), ShouldEqual, 1)
			So(st.Len(), ShouldEqual, 0)
		})

		Convey("A session without id is rejected", func() {
			So(errors.Is(st.Put(ctx, model.Session{}), model.ErrValidation), ShouldBeTrue)
		})
	})
}

func TestRetriever(t *testing.T) {
	Convey("Given a retriever over ten articles", t, func() {
		ctx := context.Background()
		st := NewMemorySessionStore(ctx, WithStoreClock(func() time.Time { return t0 }))
		Reset(func() { _ = st.Close() })
		gen := &scriptedGenerator{}
		r := NewRetriever(st, news(10), gen, WithClock(func() time.Time { return t0 }))

		s, err := r.NewSession(ctx)
		So(err, ShouldBeNil)
		So(s.ID, ShouldNotBeBlank)

		Convey("Send answers with the latest seven articles as context", func() {
			turn, err := r.Send(ctx, s.ID, "What moved tech stocks?")
			So(err, ShouldBeNil)
			So(turn.Role, ShouldEqual, model.RoleAssistant)
			So(turn.Content, ShouldEqual, "answer 1")
			So(gen.budget, ShouldEqual, DefaultMaxTokens)

			prompt := gen.prompts[0]
			So(prompt, ShouldContainSubstring, "- Headline 0: Summary 0")
			So(prompt, ShouldContainSubstring, "- Headline 6: Summary 6")
			So(prompt, ShouldNotContainSubstring, "Headline 7")
			So(prompt, ShouldContainSubstring, "user: What moved tech stocks?")

			Convey("A follow-up carries the full history", func() {
				_, err := r.Send(ctx, s.ID, "And banks?")
				So(err, ShouldBeNil)
				So(gen.prompts[1], ShouldContainSubstring, "assistant: answer 1")

				turns, err := r.History(ctx, s.ID)
				So(err, ShouldBeNil)
				So(turns, ShouldHaveLength, 4)
				So(turns[3].Content, ShouldEqual, "answer 2")
			})
		})

		Convey("A failed generation keeps the user turn and waits for input", func() {
			gen.err = errors.New("model down")
			_, err := r.Send(ctx, s.ID, "hello")
			So(err, ShouldNotBeNil)

			got, _ := r.Session(ctx, s.ID)
			So(got.Turns, ShouldHaveLength, 1)
			So(got.Turns[0].Role, ShouldEqual, model.RoleUser)
			So(got.State, ShouldEqual, model.StateAwaitingInput)
		})

		Convey("Blank messages and blank session ids are rejected", func() {
			_, err := r.Send(ctx, s.ID, "   ")
			So(errors.Is(err, model.ErrValidation), ShouldBeTrue)
			_, err = r.Send(ctx, " ", "hi")
			So(errors.Is(err, model.ErrValidation), ShouldBeTrue)
			So(gen.prompts, ShouldBeEmpty)
		})

		Convey("A first message under a caller key opens that session", func() {
			_, err := r.Session(ctx, "call-CA123")
			So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)

			turn, err := r.Send(ctx, "call-CA123", "hello")
			So(err, ShouldBeNil)
			So(turn.Content, ShouldEqual, "answer 1")

			got, err := r.Session(ctx, "call-CA123")
			So(err, ShouldBeNil)
			So(got.ID, ShouldEqual, "call-CA123")
			So(got.State, ShouldEqual, model.StateAwaitingInput)
			So(got.Turns, ShouldHaveLength, 2)
			So(got.Turns[0].Content, ShouldEqual, "hello")

			Convey("And later messages continue it", func() {
				_, err := r.Send(ctx, "call-CA123", "and then?")
				So(err, ShouldBeNil)
				turns, _ := r.History(ctx, "call-CA123")
				So(turns, ShouldHaveLength, 4)
			})
		})

		Convey("Concurrent sends on one session never overlap", func() {
			var wg sync.WaitGroup
			for i := range 5 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, _ = r.Send(ctx, s.ID, fmt.Sprintf("q%d", i))
				}()
			}
			wg.Wait()

			So(gen.overlap.Load(), ShouldBeFalse)
			turns, _ := r.History(ctx, s.ID)
			So(turns, ShouldHaveLength, 10)
			for i, turn := range turns {
				if i%2 == 0 {
					So(turn.Role, ShouldEqual, model.RoleUser)
				} else {
					So(turn.Role, ShouldEqual, model.RoleAssistant)
					So(strings.HasPrefix(turn.Content, "answer"), ShouldBeTrue)
				}
			}
			So(r.locks.size(), ShouldEqual, 0)
		})
	})
}
