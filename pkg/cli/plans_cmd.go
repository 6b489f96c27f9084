package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"tenant-gate/internal/app"
	"tenant-gate/internal/config"
	"tenant-gate/internal/domain"
)

type planView struct {
	Code             string `json:"code"`
	Name             string `json:"name"`
	MonthlyUnitLimit *int64 `json:"monthly_unit_limit"`
}

func newPlansCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plans",
		Short: "Manage the plan catalog",
	}
	cmd.AddCommand(newPlansSeedCmd(opts), newPlansListCmd(opts))
	return cmd
}

func newPlansSeedCmd(opts *rootOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Upsert plans from a YAML catalog (default: PLANS_FILE or the embedded catalog)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withStores(cmd, func(ctx context.Context, cfg *config.Config, s *app.Stores) error {
				path := file
				if path == "" {
					path = cfg.Usage.PlansFile
				}
				n, err := app.SeedPlans(ctx, s.Plans, path, nil)
				if err != nil {
					return err
				}
				if getOutputFormat(cmd) == "json" {
					return printJSON(cmd.OutOrStdout(), map[string]int{"seeded": n})
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "seeded %d plans\n", n)
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML plan catalog")
	return cmd
}

func newPlansListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List plans",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withStores(cmd, func(ctx context.Context, _ *config.Config, s *app.Stores) error {
				plans, err := s.Plans.List(ctx)
				if err != nil {
					return err
				}
				views := make([]planView, len(plans))
				rows := make([][]string, len(plans))
				for i, p := range plans {
					views[i] = planToView(p)
					rows[i] = []string{p.Code, p.Name, p.MonthlyUnitLimit.String()}
				}
				return render(cmd, views, []string{"code", "name", "monthly_unit_limit"}, rows)
			})
		},
	}
}

func planToView(p domain.Plan) planView {
	return planView{Code: p.Code, Name: p.Name, MonthlyUnitLimit: p.MonthlyUnitLimit.Ptr()}
}
