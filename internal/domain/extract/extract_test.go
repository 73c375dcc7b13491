package extract

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/finsight/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

type stubGenerator struct {
	out string
	err error
}

func (s stubGenerator) Generate(context.Context, string, int) (string, error) { return s.out, s.err }

func article() model.Article {
	pub := time.Date(2024, 4, 25, 20, 0, 0, 0, time.UTC)
	return model.Article{
		URL:          "https://news.example.com/msft-q3",
		SourceDomain: "news.example.com",
		Title:        "Microsoft beats estimates as cloud revenue jumps",
		RawText: "Microsoft (NASDAQ: MSFT) reported quarterly results on Thursday. " +
			"Cloud revenue rose 31% from a year earlier. The company also announced a $10 billion buyback.",
		PublishedAt: pub,
		FetchedAt:   pub.Add(time.Hour),
	}
}

func TestRuleExtractor(t *testing.T) {
	Convey("Given the rule extractor", t, func() {
		x := NewRuleExtractor()
		ctx := context.Background()

		Convey("When extracting an earnings story", func() {
			res, err := x.Extract(ctx, article())
			So(err, ShouldBeNil)

			Convey("Then entities and numerics are found", func() {
				So(res.Extracted.EventType, ShouldEqual, "earnings")
				So(res.Extracted.Tickers, ShouldResemble, []string{"MSFT"})
				So(res.Extracted.Companies, ShouldContain, "Microsoft")
				So(res.Extracted.Sectors, ShouldContain, "technology")
				So(res.Extracted.Markets, ShouldContain, "equities")
				So(res.Extracted.Numerics["percent_change"], ShouldEqual, 31)
				So(res.Extracted.Numerics["amount_usd"], ShouldEqual, 10e9)
			})

			Convey("Then raw scores are in range and fresh articles are novel", func() {
				So(res.Raw.ImpactScore, ShouldBeBetweenOrEqual, 0, 100)
				So(res.Raw.Confidence, ShouldBeGreaterThanOrEqualTo, 70)
				So(res.Raw.Novelty, ShouldEqual, 85)
			})

			Convey("Then the narrative cites the article", func() {
				So(res.Narrative.Citations, ShouldResemble, []string{"https://news.example.com/msft-q3"})
				So(res.Narrative.Bullets, ShouldNotBeEmpty)
				So(res.Narrative.Actions[0], ShouldContainSubstring, "MSFT")
			})
		})

		Convey("When a word only contains a company name", func() {
			a := article()
			a.Title = "Metal prices steady"
			a.RawText = "Industrial metals were little changed."
			res, _ := x.Extract(ctx, a)
			So(res.Extracted.Tickers, ShouldBeEmpty)
			So(res.Extracted.EventType, ShouldEqual, "general")
		})

		Convey("When the article was fetched days later", func() {
			a := article()
			a.FetchedAt = a.PublishedAt.Add(72 * time.Hour)
			res, _ := x.Extract(ctx, a)
			So(res.Raw.Novelty, ShouldEqual, 55)
		})
	})
}

func TestLLMExtractor(t *testing.T) {
	Convey("Given an LLM extractor", t, func() {
		ctx := context.Background()

		Convey("When the model returns a valid fenced payload", func() {
			gen := stubGenerator{out: "```json\n" + `{"event_type":"earnings","tickers":["msft"],"companies":["Microsoft"],
"sectors":["technology"],"geos":["US"],"markets":["equities"],"numerics":{"revenue_growth":31},
"impact_score":72,"confidence":80,"novelty":90,"executive_summary":"Microsoft beat.","bullets":["Cloud +31%"],
"actions":[],"risks":[]}` + "\n```"}
			res, err := NewLLMExtractor(gen).Extract(ctx, article())

			So(err, ShouldBeNil)
			So(res.Extracted.Tickers, ShouldResemble, []string{"MSFT"})
			So(res.Raw, ShouldResemble, model.Impact{ImpactScore: 72, Confidence: 80, Novelty: 90})
			So(res.Narrative.Citations, ShouldResemble, []string{"https://news.example.com/msft-q3"})
		})

		Convey("When the payload misses a score", func() {
			gen := stubGenerator{out: `{"event_type":"earnings","executive_summary":"x","confidence":1,"novelty":1}`}
			_, err := NewLLMExtractor(gen).Extract(ctx, article())
			So(errors.Is(err, model.ErrComposition), ShouldBeTrue)
		})

		Convey("When the model fails and a fallback is set", func() {
			gen := stubGenerator{err: model.ErrTransportTimeout}
			res, err := NewLLMExtractor(gen, WithFallback(NewRuleExtractor())).Extract(ctx, article())
			So(err, ShouldBeNil)
			So(res.Extracted.EventType, ShouldEqual, "earnings")
		})

		Convey("When the model fails without a fallback", func() {
			gen := stubGenerator{err: model.ErrTransportTimeout}
			_, err := NewLLMExtractor(gen).Extract(ctx, article())
			So(errors.Is(err, model.ErrTransportTimeout), ShouldBeTrue)
		})
	})
}
