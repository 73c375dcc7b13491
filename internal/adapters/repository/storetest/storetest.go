// Package storetest is a conformance suite shared by every repository.Store.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/okian/finsight/internal/adapters/repository"
	"github.com/okian/finsight/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

// Factory returns a fresh, empty store.
type Factory func(t *testing.T) repository.Store

var base = time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)

// Article builds a valid article published i hours after a fixed base time.
func Article(i int) model.Article {
	return model.Article{
		URL:          fmt.Sprintf("https://news.example.com/a/%d", i),
		SourceDomain: "news.example.com",
		Title:        fmt.Sprintf("Headline %d", i),
		Summary:      "summary",
		RawText:      "body text",
		PublishedAt:  base.Add(time.Duration(i) * time.Hour),
		FetchedAt:    base.Add(time.Duration(i)*time.Hour + time.Minute),
		ContentHash:  uint64(1<<63) + uint64(i),
	}
}

// Packet builds a packet for Article(i).
func Packet(i int, important bool) model.AnalysisPacket {
	return model.AnalysisPacket{
		ArticleURL: Article(i).URL,
		ClusterIDs: []string{},
		Extracted: model.Extracted{
			EventType: "earnings",
			Tickers:   []string{"AAPL"},
			Numerics:  map[string]float64{"percent_change": 3.5},
		},
		Impact:    model.Impact{ImpactScore: 70, Confidence: 60, Novelty: 50},
		Narrative: model.Narrative{ExecutiveSummary: "summary", Citations: []string{Article(i).URL}},
		Important: important,
		CreatedAt: base.Add(time.Duration(i)*time.Hour + 2*time.Minute),
	}
}

// Run exercises the Store contract.
func Run(t *testing.T, newStore Factory) {
	Convey("Given an empty store", t, func() {
		ctx := context.Background()
		s := newStore(t)
		Reset(func() { _ = s.Close() })

		Convey("Articles round-trip and unknown urls are not found", func() {
			So(s.SaveArticle(ctx, Article(1)), ShouldBeNil)
			got, err := s.GetArticle(ctx, Article(1).URL)
			So(err, ShouldBeNil)
			So(got.Title, ShouldEqual, "Headline 1")
			So(got.ContentHash, ShouldEqual, Article(1).ContentHash)
			So(got.PublishedAt.Equal(Article(1).PublishedAt), ShouldBeTrue)

			_, err = s.GetArticle(ctx, "https://nope")
			So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
		})

		Convey("Saving an existing url refreshes it", func() {
			a := Article(1)
			So(s.SaveArticle(ctx, a), ShouldBeNil)
			a.Title = "Updated"
			So(s.SaveArticle(ctx, a), ShouldBeNil)
			got, _ := s.GetArticle(ctx, a.URL)
			So(got.Title, ShouldEqual, "Updated")
			st, _ := s.Stats(ctx)
			So(st.Articles, ShouldEqual, 1)
		})

		Convey("A second packet for the same article conflicts and leaves the first untouched", func() {
			So(s.SaveArticle(ctx, Article(1)), ShouldBeNil)
			So(s.InsertAnalysisPacket(ctx, Packet(1, true)), ShouldBeNil)

			other := Packet(1, false)
			other.Impact.ImpactScore = 5
			err := s.InsertAnalysisPacket(ctx, other)
			So(errors.Is(err, model.ErrConflict), ShouldBeTrue)

			got, err := s.GetAnalysisPacket(ctx, Article(1).URL)
			So(err, ShouldBeNil)
			So(got.Important, ShouldBeTrue)
			So(got.Impact.ImpactScore, ShouldEqual, 70)
			So(got.Extracted.Tickers, ShouldResemble, []string{"AAPL"})
			So(got.Extracted.Numerics["percent_change"], ShouldEqual, 3.5)
		})

		Convey("A packet for an unknown article is rejected", func() {
			err := s.InsertAnalysisPacket(ctx, Packet(9, true))
			So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
		})

		Convey("Recency queries are newest first", func() {
			for i := 1; i <= 5; i++ {
				So(s.SaveArticle(ctx, Article(i)), ShouldBeNil)
				So(s.InsertAnalysisPacket(ctx, Packet(i, i%2 == 1)), ShouldBeNil)
			}

			recent, err := s.RecentArticles(ctx, 3)
			So(err, ShouldBeNil)
			So(len(recent), ShouldEqual, 3)
			So(recent[0].URL, ShouldEqual, Article(5).URL)
			So(recent[2].URL, ShouldEqual, Article(3).URL)

			important, err := s.QueryImportantArticles(ctx, 2)
			So(err, ShouldBeNil)
			So(len(important), ShouldEqual, 2)
			So(important[0].Article.URL, ShouldEqual, Article(5).URL)
			So(important[1].Article.URL, ShouldEqual, Article(3).URL)
			So(important[0].Packet.Important, ShouldBeTrue)

			since, err := s.AnalyzedSince(ctx, Article(4).PublishedAt)
			So(err, ShouldBeNil)
			So(len(since), ShouldEqual, 2)

			_, err = s.RecentArticles(ctx, 0)
			So(errors.Is(err, model.ErrValidation), ShouldBeTrue)

			st, _ := s.Stats(ctx)
			So(st.Packets, ShouldEqual, 5)
			So(st.Important, ShouldEqual, 3)
		})

		Convey("Allocations require an asset and are never created by updates", func() {
			So(s.UpsertAsset(ctx, model.Asset{Ticker: "AAPL", Label: "Apple"}), ShouldBeNil)
			So(s.UpsertAsset(ctx, model.Asset{Ticker: "MSFT", Label: "Microsoft"}), ShouldBeNil)
			So(s.CreateAllocation(ctx, model.Allocation{AssetTicker: "AAPL", AllocationPercent: 40}), ShouldBeNil)

			err := s.CreateAllocation(ctx, model.Allocation{AssetTicker: "AAPL", AllocationPercent: 10})
			So(errors.Is(err, model.ErrConflict), ShouldBeTrue)
			err = s.CreateAllocation(ctx, model.Allocation{AssetTicker: "NOPE", AllocationPercent: 10})
			So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)

			So(s.UpdateAllocation(ctx, "AAPL", 55), ShouldBeNil)

			err = s.UpdateAllocation(ctx, "ZZZZ", 10)
			So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)

			err = s.UpdateAllocation(ctx, "AAPL", 120)
			So(errors.Is(err, model.ErrValidation), ShouldBeTrue)

			allocs, err := s.GetAllocations(ctx)
			So(err, ShouldBeNil)
			So(allocs, ShouldResemble, []model.Allocation{{AssetTicker: "AAPL", AllocationPercent: 55}})

			assets, err := s.GetAssets(ctx)
			So(err, ShouldBeNil)
			So(len(assets), ShouldEqual, 2)
			So(assets[0].Ticker, ShouldEqual, "AAPL")
		})
	})
}
