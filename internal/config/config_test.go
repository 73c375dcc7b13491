package config_test

import (
	"context"
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/okian/finsight/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.StorageDriver, convey.ShouldEqual, config.StorageMemory)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU())
			convey.So(cfg.SimilarityThreshold, convey.ShouldEqual, 0.92)
			convey.So(cfg.ChatContextArticles, convey.ShouldEqual, 7)
			convey.So(cfg.ChatMaxTokens, convey.ShouldEqual, 800)
			convey.So(cfg.InsightMaxTokens, convey.ShouldEqual, 400)
			convey.So(cfg.TopInsightsLimit, convey.ShouldEqual, 3)
			convey.So(cfg.Validate(context.Background()), convey.ShouldBeNil)
		})

		convey.Convey("Then duration helpers convert units", func() {
			convey.So(cfg.AssetTimeout(), convey.ShouldEqual, 10*time.Second)
			convey.So(cfg.DedupeWindow(), convey.ShouldEqual, 72*time.Hour)
			convey.So(cfg.SessionTTL(), convey.ShouldEqual, 30*time.Minute)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given a default config", t, func() {
		ctx := context.Background()
		cfg := config.New()

		convey.Convey("An unknown storage driver is rejected", func() {
			cfg.StorageDriver = "mongo"
			err := cfg.Validate(ctx)
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("Postgres requires a database url", func() {
			cfg.StorageDriver = config.StoragePostgres
			convey.So(cfg.Validate(ctx), convey.ShouldNotBeNil)
			cfg.DatabaseURL = "postgres://localhost/finsight"
			convey.So(cfg.Validate(ctx), convey.ShouldBeNil)
		})

		convey.Convey("A similarity threshold above 1 is rejected", func() {
			cfg.SimilarityThreshold = 1.5
			convey.So(cfg.Validate(ctx), convey.ShouldNotBeNil)
		})

		convey.Convey("An unknown provider or extractor is rejected", func() {
			cfg.LLMProvider = "openai"
			convey.So(cfg.Validate(ctx), convey.ShouldNotBeNil)
			cfg.LLMProvider = config.ProviderGemini
			cfg.Extractor = "regex"
			convey.So(cfg.Validate(ctx), convey.ShouldNotBeNil)
		})
	})
}
