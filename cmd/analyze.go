package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	app "github.com/okian/finsight/internal/app"
	"github.com/okian/finsight/internal/domain/model"
	"github.com/okian/finsight/pkg/logger"
	"github.com/spf13/cobra"
)

// articleFile is one entry of an analyze input file, in the POST /articles shape.
type articleFile struct {
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Summary     string    `json:"summary"`
	Content     string    `json:"content"`
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"published_at"`
	ImageURL    string    `json:"image_url"`
	Lang        string    `json:"lang"`
	Embedding   []float32 `json:"embedding"`
}

func (f *articleFile) article() model.Article {
	return model.Article{
		URL:              f.URL,
		SourceDomain:     f.Source,
		Title:            f.Title,
		Summary:          f.Summary,
		RawText:          f.Content,
		PublishedAt:      f.PublishedAt,
		ImageURL:         f.ImageURL,
		Lang:             f.Lang,
		ContentEmbedding: f.Embedding,
	}
}

type analyzeResult struct {
	URL        string                `json:"url"`
	Importance string                `json:"importance,omitempty"`
	Packet     *model.AnalysisPacket `json:"packet,omitempty"`
	Error      string                `json:"error,omitempty"`
}

func newAnalyzeCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:     "analyze",
		Short:   "Analyze a JSON array of articles and print their packets",
		Example: `  finsight analyze --file articles.json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			articles, err := readArticles(path)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			_, log, svc, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer svc.Stop()

			return printJSON(cmd.OutOrStdout(), analyzeAll(ctx, log, svc, articles))
		},
	}
	cmd.Flags().StringVarP(&path, "file", "f", "", "JSON file with an array of articles (- for stdin)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func readArticles(path string) ([]articleFile, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path) //nolint:gosec // operator supplied path
		if err != nil {
			return nil, fmt.Errorf("open articles: %w", err)
		}
		defer f.Close()
		r = f
	}
	var out []articleFile
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode articles: %w", err)
	}
	return out, nil
}

// analyzeAll analyzes in input order so clustering sees earlier articles first.
// Per-article failures are reported in the result, not returned.
func analyzeAll(ctx context.Context, log logger.Logger, svc *app.Service, in []articleFile) []analyzeResult {
	out := make([]analyzeResult, 0, len(in))
	for i := range in {
		a := in[i].article()
		res := analyzeResult{URL: a.URL}
		p, err := svc.Analyze(ctx, a)
		switch {
		case err == nil:
			res.Packet = &p
			res.Importance = svc.ImportanceLabel(p.Impact.ImpactScore)
		case errors.Is(err, model.ErrConflict):
			res.Error = "already analyzed"
		default:
			log.Warn(ctx, "analysis failed", logger.String("url", a.URL), logger.Error(err))
			res.Error = err.Error()
		}
		out = append(out, res)
	}
	return out
}
