package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	dedupe "github.com/okian/finsight/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryDeduper(t *testing.T) {
	Convey("Given a new InMemoryDeduper", t, func() {
		ctx := context.Background()

		Convey("When recording a url for the first time", func() {
			d := dedupe.NewInMemoryDeduper()
			seen := d.SeenAndRecord(ctx, "https://ex.com/a")

			Convey("Then it should report unseen and count it", func() {
				So(seen, ShouldBeFalse)
				So(d.Size(), ShouldEqual, 1)
			})

			Convey("And recording it again reports seen", func() {
				So(d.SeenAndRecord(ctx, "https://ex.com/a"), ShouldBeTrue)
				So(d.Size(), ShouldEqual, 1)
			})

			Convey("And unrecording allows a retry", func() {
				d.Unrecord(ctx, "https://ex.com/a")
				So(d.Size(), ShouldEqual, 0)
				So(d.SeenAndRecord(ctx, "https://ex.com/a"), ShouldBeFalse)
			})
		})

		Convey("When the bound is reached", func() {
			d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(2))
			d.SeenAndRecord(ctx, "a")
			d.SeenAndRecord(ctx, "b")
			d.SeenAndRecord(ctx, "c")

			Convey("Then the oldest url is evicted", func() {
				So(d.Size(), ShouldEqual, 2)
				So(d.SeenAndRecord(ctx, "c"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "b"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "a"), ShouldBeFalse)
			})
		})

		Convey("When unbounded", func() {
			d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(0))
			for i := 0; i < 1000; i++ {
				d.SeenAndRecord(ctx, fmt.Sprintf("u-%d", i))
			}
			So(d.Size(), ShouldEqual, 1000)
		})

		Convey("When many goroutines race on the same url", func() {
			d := dedupe.NewInMemoryDeduper()
			var wg sync.WaitGroup
			var mu sync.Mutex
			fresh := 0
			for i := 0; i < 50; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if !d.SeenAndRecord(ctx, "same") {
						mu.Lock()
						fresh++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()

			Convey("Then exactly one caller wins", func() {
				So(fresh, ShouldEqual, 1)
			})
		})
	})
}
