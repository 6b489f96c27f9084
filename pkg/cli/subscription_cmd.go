package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"tenant-gate/internal/app"
	"tenant-gate/internal/config"
	"tenant-gate/internal/domain"
)

type subscriptionView struct {
	ID          string    `json:"id"`
	PrincipalID string    `json:"principal_id"`
	PlanCode    string    `json:"plan_code"`
	Status      string    `json:"status"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
}

func newSubscriptionCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subscription",
		Short: "Manage principal subscriptions",
	}
	cmd.AddCommand(newSubscriptionSetCmd(opts), newSubscriptionCancelCmd(opts))
	return cmd
}

func newSubscriptionSetCmd(opts *rootOptions) *cobra.Command {
	var (
		planCode string
		start    string
		months   int
	)
	cmd := &cobra.Command{
		Use:   "set <principal-id|external-id>",
		Short: "Replace the principal's active subscription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if months < 1 {
				return domain.ErrValidation("--months must be at least 1")
			}
			periodStart := time.Now().UTC().Truncate(time.Second)
			if start != "" {
				t, err := time.Parse(time.RFC3339, start)
				if err != nil {
					return domain.ErrValidation("--start must be RFC 3339: %v", err)
				}
				periodStart = t.UTC()
			}

			return opts.withStores(cmd, func(ctx context.Context, _ *config.Config, s *app.Stores) error {
				p, err := lookupPrincipal(ctx, s, args[0])
				if err != nil {
					return err
				}
				if _, err := s.Plans.Get(ctx, planCode); err != nil {
					return fmt.Errorf("plan %s: %w", planCode, err)
				}
				sub := &domain.Subscription{
					PrincipalID: p.ID,
					PlanCode:    planCode,
					PeriodStart: periodStart,
					PeriodEnd:   domain.AddMonths(periodStart, months),
				}
				if err := s.Subscriptions.Replace(ctx, sub); err != nil {
					return err
				}
				v := subscriptionView{
					ID: sub.ID, PrincipalID: sub.PrincipalID, PlanCode: sub.PlanCode, Status: sub.Status,
					PeriodStart: sub.PeriodStart, PeriodEnd: sub.PeriodEnd,
				}
				return render(cmd, v, []string{"id", "principal", "plan", "period_start", "period_end"},
					[][]string{{sub.ID, sub.PrincipalID, sub.PlanCode,
						sub.PeriodStart.Format(time.RFC3339), sub.PeriodEnd.Format(time.RFC3339)}})
			})
		},
	}
	cmd.Flags().StringVar(&planCode, "plan", "", "plan code")
	cmd.Flags().StringVar(&start, "start", "", "period start, RFC 3339 (default: now)")
	cmd.Flags().IntVar(&months, "months", 1, "length of the billing window in months")
	_ = cmd.MarkFlagRequired("plan")
	return cmd
}

func newSubscriptionCancelCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <principal-id|external-id>",
		Short: "Cancel the principal's active subscription; the default plan applies afterwards",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withStores(cmd, func(ctx context.Context, _ *config.Config, s *app.Stores) error {
				p, err := lookupPrincipal(ctx, s, args[0])
				if err != nil {
					return err
				}
				if err := s.Subscriptions.Cancel(ctx, p.ID); err != nil {
					return err
				}
				if getOutputFormat(cmd) == "json" {
					return printJSON(cmd.OutOrStdout(), map[string]string{"principal_id": p.ID, "status": domain.SubscriptionCanceled})
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "subscription of %s canceled\n", p.ID)
				return err
			})
		},
	}
}
