package cli

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"tenant-gate/internal/app"
	"tenant-gate/internal/config"
	"tenant-gate/internal/domain"
)

type principalView struct {
	ID                 string    `json:"id"`
	ExternalIdentityID string    `json:"external_identity_id"`
	Email              string    `json:"email"`
	DisplayName        string    `json:"display_name"`
	TenantID           *string   `json:"tenant_id"`
	Role               string    `json:"role"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func newPrincipalCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "principal",
		Short: "Inspect principals and assign roles",
	}
	cmd.AddCommand(newPrincipalGetCmd(opts), newPrincipalSetRoleCmd(opts))
	return cmd
}

// lookupPrincipal accepts either a principal id or an external identity id.
func lookupPrincipal(ctx context.Context, s *app.Stores, ref string) (*domain.Principal, error) {
	p, err := s.Principals.GetByID(ctx, ref)
	if err == nil {
		return p, nil
	}
	var notFound *domain.NotFoundError
	if !errors.As(err, &notFound) {
		return nil, err
	}
	p, err = s.Principals.GetByExternalID(ctx, ref)
	if errors.As(err, &notFound) {
		return nil, domain.ErrNotFound("principal %s not found", ref)
	}
	return p, err
}

func newPrincipalGetCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <principal-id|external-id>",
		Short: "Show a principal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withStores(cmd, func(ctx context.Context, _ *config.Config, s *app.Stores) error {
				p, err := lookupPrincipal(ctx, s, args[0])
				if err != nil {
					return err
				}
				return renderPrincipal(cmd, p)
			})
		},
	}
}

func newPrincipalSetRoleCmd(opts *rootOptions) *cobra.Command {
	var (
		role     string
		tenantID string
	)
	cmd := &cobra.Command{
		Use:   "set-role <principal-id|external-id>",
		Short: "Assign a platform role, or a tenant role within --tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var tenant *string
			switch {
			case domain.IsPlatformRole(role):
				if tenantID != "" {
					return domain.ErrValidation("platform role %s cannot be scoped to a tenant", role)
				}
			case domain.IsTenantRole(role):
				if tenantID == "" {
					return domain.ErrValidation("tenant role %s requires --tenant", role)
				}
				tenant = &tenantID
			default:
				return domain.ErrValidation("unknown role %q", role)
			}

			return opts.withStores(cmd, func(ctx context.Context, _ *config.Config, s *app.Stores) error {
				p, err := lookupPrincipal(ctx, s, args[0])
				if err != nil {
					return err
				}
				if tenant != nil {
					if _, err := s.Tenants.GetByID(ctx, *tenant); err != nil {
						return err
					}
				}
				if err := s.Principals.SetRole(ctx, p.ID, role, tenant); err != nil {
					return err
				}
				updated, err := s.Principals.GetByID(ctx, p.ID)
				if err != nil {
					return err
				}
				return renderPrincipal(cmd, updated)
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "platform_admin, platform_operator, owner, admin or member")
	cmd.Flags().StringVar(&tenantID, "tenant", "", "tenant for tenant roles")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func renderPrincipal(cmd *cobra.Command, p *domain.Principal) error {
	v := principalView{
		ID:                 p.ID,
		ExternalIdentityID: p.ExternalIdentityID,
		Email:              p.Email,
		DisplayName:        p.DisplayName,
		TenantID:           p.TenantID,
		Role:               p.Role,
		UpdatedAt:          p.UpdatedAt.UTC(),
	}
	return render(cmd, v, []string{"id", "external_id", "email", "tenant", "role"},
		[][]string{{p.ID, p.ExternalIdentityID, p.Email, valueOr(p.TenantID, "-"), p.Role}})
}
