package cli

import (
	"context"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"tenant-gate/internal/app"
	"tenant-gate/internal/config"
	"tenant-gate/internal/service/usage"
)

type usageView struct {
	PrincipalID  string    `json:"principal_id"`
	PlanCode     string    `json:"plan_code"`
	CurrentUsage int64     `json:"current_usage"`
	Limit        *int64    `json:"limit"`
	Allowed      bool      `json:"allowed"`
	PeriodStart  time.Time `json:"period_start"`
	PeriodEnd    time.Time `json:"period_end"`
}

func newUsageCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "usage <principal-id|external-id>",
		Short: "Show a principal's usage in the current billing period",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withStores(cmd, func(ctx context.Context, cfg *config.Config, s *app.Stores) error {
				p, err := lookupPrincipal(ctx, s, args[0])
				if err != nil {
					return err
				}
				gate := usage.NewGate(s.Subscriptions, s.Plans, s.Usage, usage.Config{
					Timezone:    cfg.Usage.Timezone,
					IOTimeout:   cfg.IOTimeout,
					DefaultPlan: cfg.Usage.DefaultPlan,
				}, nil, opts.logger(cmd))
				d, err := gate.Snapshot(ctx, p)
				if err != nil {
					return err
				}
				v := usageView{
					PrincipalID:  p.ID,
					PlanCode:     d.PlanCode,
					CurrentUsage: d.CurrentUsage,
					Limit:        d.Limit.Ptr(),
					Allowed:      d.Allowed,
					PeriodStart:  d.Period.Start.UTC(),
					PeriodEnd:    d.Period.End.UTC(),
				}
				return render(cmd, v, []string{"principal", "plan", "usage", "limit", "allowed", "period_end"},
					[][]string{{p.ID, d.PlanCode, strconv.FormatInt(d.CurrentUsage, 10), d.Limit.String(),
						strconv.FormatBool(d.Allowed), v.PeriodEnd.Format(time.RFC3339)}})
			})
		},
	}
}
