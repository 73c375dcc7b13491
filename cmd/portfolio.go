package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/okian/finsight/internal/domain/insight"
	"github.com/okian/finsight/internal/domain/model"
	"github.com/spf13/cobra"
)

type portfolioReport struct {
	Mode    model.Mode             `json:"mode"`
	Assets  []model.AssetAnalytics `json:"assets"`
	Insight *insight.Insight       `json:"insight,omitempty"`
}

func newPortfolioCmd() *cobra.Command {
	var (
		mode    string
		profile string
	)
	cmd := &cobra.Command{
		Use:   "portfolio",
		Short: "Print portfolio analytics as JSON",
		Example: `  finsight portfolio --mode current
  finsight portfolio --mode status --insight portfolio_recommendations`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := model.ParseMode(mode)
			if err != nil {
				return err
			}
			var p insight.Profile
			if profile != "" {
				if p, err = insight.ParseProfile(profile); err != nil {
					return err
				}
				if p == insight.ProfileArticle {
					return fmt.Errorf("%w: %s needs an article", model.ErrValidation, p)
				}
			}

			ctx := cmd.Context()
			_, _, svc, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer svc.Stop()

			assets, err := svc.Portfolio(ctx, m)
			if err != nil {
				return err
			}
			report := portfolioReport{Mode: m, Assets: assets}
			if p != "" {
				ins, err := svc.Compose(ctx, insight.Subject{Assets: assets}, p)
				if err != nil {
					return err
				}
				report.Insight = &ins
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().StringVarP(&mode, "mode", "m", string(model.ModeCurrent), "current, status or universe")
	cmd.Flags().StringVar(&profile, "insight", "", "also compose an insight: portfolio_status or portfolio_recommendations")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
