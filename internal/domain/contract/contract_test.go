package contract

import (
	"errors"
	"testing"

	"github.com/okian/finsight/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

type sample struct {
	Title string `json:"title" validate:"required"`
	Short string `json:"short" validate:"required,maxwords=3"`
	Score *int   `json:"score" validate:"required,min=0,max=100"`
}

func TestDecode(t *testing.T) {
	Convey("Given model output", t, func() {
		Convey("Clean JSON decodes", func() {
			var s sample
			So(Decode(`{"title":"t","short":"a b c","score":0}`, &s), ShouldBeNil)
			So(*s.Score, ShouldEqual, 0)
		})

		Convey("Fenced JSON with a trailing comma is repaired", func() {
			var s sample
			err := Decode("```json\n{\"title\":\"t\",\"short\":\"a\",\"score\":7,}\n```", &s)
			So(err, ShouldBeNil)
			So(s.Title, ShouldEqual, "t")
		})

		Convey("A missing required pointer fails", func() {
			var s sample
			err := Decode(`{"title":"t","short":"a"}`, &s)
			So(errors.Is(err, model.ErrComposition), ShouldBeTrue)
		})

		Convey("Too many words fail", func() {
			var s sample
			err := Decode(`{"title":"t","short":"one two three four","score":1}`, &s)
			So(errors.Is(err, model.ErrComposition), ShouldBeTrue)
		})

		Convey("Out of range scores fail", func() {
			var s sample
			So(Decode(`{"title":"t","short":"a","score":101}`, &s), ShouldNotBeNil)
		})

		Convey("Unknown fields fail unless allowed", func() {
			raw := `{"title":"t","short":"a","score":1,"extra":true}`
			var s sample
			So(errors.Is(Decode(raw, &s), model.ErrComposition), ShouldBeTrue)
			var l sample
			So(Decode(raw, &l, AllowUnknownFields()), ShouldBeNil)
		})

		Convey("Empty output fails", func() {
			var s sample
			So(errors.Is(Decode("   ", &s), model.ErrComposition), ShouldBeTrue)
		})
	})
}
