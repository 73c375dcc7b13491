package repository_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/okian/finsight/internal/adapters/repository"
	"github.com/okian/finsight/internal/adapters/repository/storetest"
	"github.com/okian/finsight/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMemoryStoreConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) repository.Store {
		return repository.NewMemoryStore(context.Background())
	})
}

func TestMemoryStoreIsolation(t *testing.T) {
	Convey("Given a stored packet", t, func() {
		ctx := context.Background()
		s := repository.NewMemoryStore(ctx)
		defer func() { _ = s.Close() }()

		So(s.SaveArticle(ctx, storetest.Article(1)), ShouldBeNil)
		p := storetest.Packet(1, true)
		So(s.InsertAnalysisPacket(ctx, p), ShouldBeNil)

		Convey("Mutating the caller's copy does not change the stored packet", func() {
			p.Extracted.Tickers[0] = "HACK"
			got, _ := s.GetAnalysisPacket(ctx, p.ArticleURL)
			So(got.Extracted.Tickers[0], ShouldEqual, "AAPL")

			got.Narrative.Citations[0] = "changed"
			again, _ := s.GetAnalysisPacket(ctx, p.ArticleURL)
			So(again.Narrative.Citations[0], ShouldEqual, p.ArticleURL)
		})
	})
}

func TestMemoryStoreConcurrentInsert(t *testing.T) {
	Convey("Given many goroutines inserting the same packet", t, func() {
		ctx := context.Background()
		s := repository.NewMemoryStore(ctx)
		defer func() { _ = s.Close() }()
		So(s.SaveArticle(ctx, storetest.Article(1)), ShouldBeNil)

		var wg sync.WaitGroup
		var mu sync.Mutex
		wins := 0
		for i := 0; i < 32; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if s.InsertAnalysisPacket(ctx, storetest.Packet(1, true)) == nil {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		Convey("Then exactly one succeeds", func() {
			So(wins, ShouldEqual, 1)
		})
	})
}

func TestMemoryStoreOrderingAfterRefresh(t *testing.T) {
	Convey("Given an article whose publish time is corrected", t, func() {
		ctx := context.Background()
		s := repository.NewMemoryStore(ctx)
		defer func() { _ = s.Close() }()

		for i := 1; i <= 3; i++ {
			So(s.SaveArticle(ctx, storetest.Article(i)), ShouldBeNil)
		}
		moved := storetest.Article(1)
		moved.PublishedAt = storetest.Article(3).PublishedAt.Add(1)
		So(s.SaveArticle(ctx, moved), ShouldBeNil)

		recent, _ := s.RecentArticles(ctx, 10)
		So(len(recent), ShouldEqual, 3)
		So(recent[0].URL, ShouldEqual, moved.URL)
	})
}

func BenchmarkMemoryStoreRecent(b *testing.B) {
	ctx := context.Background()
	s := repository.NewMemoryStore(ctx)
	defer func() { _ = s.Close() }()
	for i := 0; i < 10_000; i++ {
		a := storetest.Article(i)
		a.URL = fmt.Sprintf("%s-%d", a.URL, i)
		_ = s.SaveArticle(ctx, a)
	}
	var sink []model.Article
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		sink, _ = s.RecentArticles(ctx, 7)
	}
	_ = sink
}
