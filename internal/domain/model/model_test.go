package model_test

import (
	"errors"
	"testing"
	"time"

	model "github.com/okian/finsight/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestArticleValidate(t *testing.T) {
	convey.Convey("Given an article", t, func() {
		a := model.Article{URL: "https://ex.com/a", Title: "Fed holds rates", RawText: "text"}

		convey.Convey("When all required fields are present", func() {
			convey.So(a.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("When the url is blank", func() {
			a.URL = "  "
			err := a.Validate()
			convey.So(errors.Is(err, model.ErrValidation), convey.ShouldBeTrue)
		})

		convey.Convey("When only a summary is present", func() {
			a.RawText = ""
			a.Summary = "short"
			convey.So(a.Validate(), convey.ShouldBeNil)
			convey.So(a.Body(), convey.ShouldEqual, "short")
		})

		convey.Convey("When neither text nor summary is present", func() {
			a.RawText = ""
			convey.So(a.Validate(), convey.ShouldNotBeNil)
		})
	})
}

func TestParseMode(t *testing.T) {
	convey.Convey("Given mode strings", t, func() {
		for _, s := range []string{"current", "status", "universe"} {
			m, err := model.ParseMode(s)
			convey.So(err, convey.ShouldBeNil)
			convey.So(string(m), convey.ShouldEqual, s)
		}
		_, err := model.ParseMode("all")
		convey.So(errors.Is(err, model.ErrValidation), convey.ShouldBeTrue)
	})
}

func TestWindowSpan(t *testing.T) {
	convey.Convey("Windows map to calendar spans", t, func() {
		convey.So(model.Window7D.Span(), convey.ShouldEqual, 7*24*time.Hour)
		convey.So(model.Window1M.Span(), convey.ShouldEqual, 30*24*time.Hour)
		convey.So(model.Window3M.Span(), convey.ShouldEqual, 90*24*time.Hour)
	})
}

func TestClampScore(t *testing.T) {
	convey.Convey("Scores are clamped to [0,100]", t, func() {
		convey.So(model.ClampScore(-4), convey.ShouldEqual, 0)
		convey.So(model.ClampScore(55), convey.ShouldEqual, 55)
		convey.So(model.ClampScore(140), convey.ShouldEqual, 100)
	})
}
