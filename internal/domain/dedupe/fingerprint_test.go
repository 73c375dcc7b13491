package dedupe

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

const (
	fedA = "The Federal Reserve held interest rates steady on Wednesday, signalling two cuts later this year as inflation cools across services and housing."
	fedB = "Federal Reserve held interest rates steady Wednesday, signalling two cuts later this year as inflation cools across services and housing markets."
	oil  = "Oil prices jumped after OPEC announced deeper production cuts, lifting energy shares in early European trading."
)

func TestVectorSimilarity(t *testing.T) {
	Convey("Given lexical vectors", t, func() {
		a, b, c := Vectorize(fedA), Vectorize(fedB), Vectorize(oil)

		Convey("Near-identical wording is above the default threshold", func() {
			So(CosineSimilarity(a, b), ShouldBeGreaterThanOrEqualTo, defaultThreshold)
		})

		Convey("Unrelated stories are well below it", func() {
			So(CosineSimilarity(a, c), ShouldBeLessThan, 0.5)
		})

		Convey("Mismatched or empty vectors score zero", func() {
			So(CosineSimilarity(a, a[:10]), ShouldEqual, 0)
			So(CosineSimilarity(Vectorize(""), a), ShouldEqual, 0)
		})
	})
}

func TestContentHash(t *testing.T) {
	Convey("Content hash ignores case and whitespace", t, func() {
		So(ContentHash("Fed Holds", "rates  steady"), ShouldEqual, ContentHash("fed holds", "Rates steady"))
		So(ContentHash("Fed Holds", "rates steady"), ShouldNotEqual, ContentHash("Fed Cuts", "rates steady"))
	})
}

func TestFingerprintIndex(t *testing.T) {
	Convey("Given an empty index", t, func() {
		now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		ix := NewFingerprintIndex(WithClock(func() time.Time { return now }), WithCapacity(3))

		fa := Fingerprint{URL: "a", Hash: ContentHash("t", fedA), Vector: Vectorize(fedA), At: now}
		fb := Fingerprint{URL: "b", Hash: ContentHash("t", fedB), Vector: Vectorize(fedB), At: now.Add(time.Hour)}
		fc := Fingerprint{URL: "c", Hash: ContentHash("t", oil), Vector: Vectorize(oil), At: now}

		Convey("The first article matches nothing", func() {
			So(ix.Match(fa), ShouldBeEmpty)
			So(ix.Record(fa, nil), ShouldBeEmpty)
		})

		Convey("A same-event article joins the cluster and membership is symmetric", func() {
			ix.Record(fa, ix.Match(fa))
			m := ix.Match(fb)
			So(m, ShouldResemble, []string{"a"})
			So(ix.Record(fb, m), ShouldResemble, []string{"a"})

			others, ok := ix.Cluster("a")
			So(ok, ShouldBeTrue)
			So(others, ShouldResemble, []string{"b"})
		})

		Convey("An exact content hash matches even with no vector", func() {
			ix.Record(Fingerprint{URL: "x", Hash: 42, At: now}, nil)
			So(ix.Match(Fingerprint{URL: "y", Hash: 42, At: now}), ShouldResemble, []string{"x"})
		})

		Convey("Articles outside the window are ignored", func() {
			ix.Record(fa, nil)
			late := fb
			late.At = now.Add(100 * time.Hour)
			So(ix.Match(late), ShouldBeEmpty)
		})

		Convey("Unrelated articles stay apart", func() {
			ix.Record(fa, nil)
			So(ix.Match(fc), ShouldBeEmpty)
		})

		Convey("Capacity evicts the oldest fingerprint but keeps clusters", func() {
			ix.Record(fa, nil)
			ix.Record(fb, []string{"a"})
			ix.Record(fc, nil)
			ix.Record(Fingerprint{URL: "d", Hash: 7, At: now}, nil)
			So(ix.Size(), ShouldEqual, 3)
			So(ix.Match(fa), ShouldResemble, []string{"b"})
			others, ok := ix.Cluster("a")
			So(ok, ShouldBeTrue)
			So(others, ShouldResemble, []string{"b"})
		})

		Convey("Expand reports whole clusters without recording", func() {
			ix.Link("p", "q")
			ix.Record(fc, nil)
			So(ix.Expand("new", []string{"q", "c"}), ShouldResemble, []string{"c", "p", "q"})
			So(ix.Expand("p", []string{"q"}), ShouldResemble, []string{"q"})
			_, ok := ix.Cluster("new")
			So(ok, ShouldBeFalse)
		})

		Convey("Link merges clusters and unknown urls report not ok", func() {
			ix.Link("p", "q")
			others, _ := ix.Cluster("q")
			So(others, ShouldResemble, []string{"p"})
			_, ok := ix.Cluster("zzz")
			So(ok, ShouldBeFalse)
		})
	})
}
