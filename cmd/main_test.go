package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	app "github.com/okian/finsight/internal/app"
	"github.com/okian/finsight/internal/config"
	"github.com/okian/finsight/internal/domain/model"
	"github.com/okian/finsight/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func TestRootCommand(t *testing.T) {
	convey.Convey("Given the root command", t, func() {
		root := newRootCmd()

		convey.Convey("Then every subcommand is registered", func() {
			for _, name := range []string{"serve", "portfolio", "analyze"} {
				cmd, _, err := root.Find([]string{name})
				convey.So(err, convey.ShouldBeNil)
				convey.So(cmd.Name(), convey.ShouldEqual, name)
			}
		})

		convey.Convey("Then an unknown portfolio mode fails before startup", func() {
			root.SetArgs([]string{"portfolio", "--mode", "weekly"})
			root.SetOut(&bytes.Buffer{})
			err := root.ExecuteContext(context.Background())
			convey.So(errors.Is(err, model.ErrValidation), convey.ShouldBeTrue)
		})

		convey.Convey("Then the article insight profile is rejected for portfolios", func() {
			root.SetArgs([]string{"portfolio", "--insight", "article_insight"})
			err := root.ExecuteContext(context.Background())
			convey.So(errors.Is(err, model.ErrValidation), convey.ShouldBeTrue)
		})

		convey.Convey("Then analyze requires a file", func() {
			root.SetArgs([]string{"analyze"})
			convey.So(root.ExecuteContext(context.Background()), convey.ShouldNotBeNil)
		})
	})
}

func TestConfigFromEnv(t *testing.T) {
	convey.Convey("Given configuration in the environment", t, func() {
		t.Setenv("FINSIGHT_ADDR", ":8081")
		t.Setenv("FINSIGHT_QUEUE_SIZE", "1000")
		t.Setenv("FINSIGHT_WORKER_COUNT", "4")

		cfg, err := config.Load(context.Background())
		convey.So(err, convey.ShouldBeNil)
		convey.So(cfg.Addr, convey.ShouldEqual, ":8081")
		convey.So(cfg.QueueSize, convey.ShouldEqual, 1000)
		convey.So(cfg.WorkerCount, convey.ShouldEqual, 4)
	})
}

func TestAnalyzeFile(t *testing.T) {
	convey.Convey("Given an articles file", t, func() {
		published := time.Now().UTC().Add(-time.Hour).Format(time.RFC3339)
		in := []map[string]any{
			{"url": "https://n.example/a", "title": "Fed holds rates", "content": "The Federal Reserve held rates steady.", "published_at": published},
			{"url": "https://n.example/a", "title": "Fed holds rates", "content": "The Federal Reserve held rates steady.", "published_at": published},
			{"url": "https://n.example/b", "title": "", "content": "no title"},
		}
		raw, err := json.Marshal(in)
		convey.So(err, convey.ShouldBeNil)
		path := filepath.Join(t.TempDir(), "articles.json")
		convey.So(os.WriteFile(path, raw, 0o600), convey.ShouldBeNil)

		convey.Convey("When it is read", func() {
			articles, err := readArticles(path)
			convey.So(err, convey.ShouldBeNil)
			convey.So(articles, convey.ShouldHaveLength, 3)
			convey.So(articles[0].article().RawText, convey.ShouldEqual, "The Federal Reserve held rates steady.")

			convey.Convey("Then each article is analyzed once and failures are reported inline", func() {
				ctx, cancel := context.WithCancel(context.Background())
				defer cancel()
				svc := app.New(app.WithLogger(logger.Nop()), app.WithWorkerCount(1))
				convey.So(svc.Start(ctx), convey.ShouldBeNil)
				defer svc.Stop()

				res := analyzeAll(ctx, logger.Nop(), svc, articles)
				convey.So(res, convey.ShouldHaveLength, 3)
				convey.So(res[0].Packet, convey.ShouldNotBeNil)
				convey.So(res[0].Importance, convey.ShouldNotBeEmpty)
				convey.So(res[1].Error, convey.ShouldEqual, "already analyzed")
				convey.So(res[2].Packet, convey.ShouldBeNil)
				convey.So(res[2].Error, convey.ShouldNotBeEmpty)

				var out bytes.Buffer
				convey.So(printJSON(&out, res), convey.ShouldBeNil)
				convey.So(out.String(), convey.ShouldContainSubstring, `"url": "https://n.example/a"`)
			})
		})

		convey.Convey("When the file is missing", func() {
			_, err := readArticles(filepath.Join(t.TempDir(), "none.json"))
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}
