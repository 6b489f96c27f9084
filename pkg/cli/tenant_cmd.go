package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"tenant-gate/internal/app"
	"tenant-gate/internal/config"
	"tenant-gate/internal/domain"
)

type tenantView struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

func newTenantCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenants",
	}
	cmd.AddCommand(newTenantCreateCmd(opts), newTenantGetCmd(opts), newTenantSetStatusCmd(opts))
	return cmd
}

func newTenantCreateCmd(opts *rootOptions) *cobra.Command {
	var req domain.CreateTenantRequest
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a tenant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := req.Validate(); err != nil {
				return err
			}
			return opts.withStores(cmd, func(ctx context.Context, _ *config.Config, s *app.Stores) error {
				t, err := s.Tenants.Create(ctx, &domain.Tenant{ID: req.ID, Name: req.Name, Status: domain.TenantActive})
				if err != nil {
					return err
				}
				return renderTenant(cmd, t)
			})
		},
	}
	cmd.Flags().StringVar(&req.ID, "id", "", "tenant id (generated when empty)")
	cmd.Flags().StringVar(&req.Name, "name", "", "tenant name")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newTenantGetCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <tenant-id>",
		Short: "Show a tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withStores(cmd, func(ctx context.Context, _ *config.Config, s *app.Stores) error {
				t, err := s.Tenants.GetByID(ctx, args[0])
				if err != nil {
					return err
				}
				return renderTenant(cmd, t)
			})
		},
	}
}

func newTenantSetStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "set-status <tenant-id> <active|suspended|deleted>",
		Short:     "Change a tenant's status",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{domain.TenantActive, domain.TenantSuspended, domain.TenantDeleted},
		RunE: func(cmd *cobra.Command, args []string) error {
			id, status := args[0], args[1]
			switch status {
			case domain.TenantActive, domain.TenantSuspended, domain.TenantDeleted:
			default:
				return domain.ErrValidation("invalid tenant status %q", status)
			}
			return opts.withStores(cmd, func(ctx context.Context, _ *config.Config, s *app.Stores) error {
				if err := s.Tenants.SetStatus(ctx, id, status); err != nil {
					return err
				}
				t, err := s.Tenants.GetByID(ctx, id)
				if err != nil {
					return err
				}
				return renderTenant(cmd, t)
			})
		},
	}
}

func renderTenant(cmd *cobra.Command, t *domain.Tenant) error {
	v := tenantView{ID: t.ID, Name: t.Name, Status: t.Status, CreatedAt: t.CreatedAt.UTC()}
	return render(cmd, v, []string{"id", "name", "status", "created_at"},
		[][]string{{t.ID, t.Name, t.Status, v.CreatedAt.Format(time.RFC3339)}})
}
