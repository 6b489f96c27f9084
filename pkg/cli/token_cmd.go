package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"tenant-gate/internal/credential"
	"tenant-gate/internal/domain"
)

func newTokenCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint credentials signed with the gate's shared secret",
	}
	cmd.AddCommand(newTokenMintCmd(opts))
	return cmd
}

func newTokenMintCmd(opts *rootOptions) *cobra.Command {
	var (
		claims domain.Claims
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Mint an HS256 credential for local development",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if ttl <= 0 {
				return domain.ErrValidation("--ttl must be positive")
			}
			if claims.TenantRole != "" && !domain.IsTenantRole(claims.TenantRole) {
				return domain.ErrValidation("--tenant-role must be owner, admin or member")
			}
			issuer, err := credential.NewIssuer([]byte(cfg.Auth.JWTSecret), cfg.Auth.SymmetricIssuer)
			if err != nil {
				return err
			}
			claims.ExpiresAt = time.Now().Add(ttl).Truncate(time.Second)
			raw, err := issuer.Issue(cmd.Context(), claims)
			if err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"credential": raw,
					"expires_at": claims.ExpiresAt.UTC(),
				})
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), raw)
			return err
		},
	}
	cmd.Flags().StringVar(&claims.SubjectID, "sub", "", "subject (external identity id)")
	cmd.Flags().StringVar(&claims.Email, "email", "", "email claim")
	cmd.Flags().StringVar(&claims.DisplayName, "name", "", "display name claim")
	cmd.Flags().StringVar(&claims.TenantID, "tenant", "", "tenant claim, used when the principal is first provisioned")
	cmd.Flags().StringVar(&claims.TenantRole, "tenant-role", "", "tenant role claim")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "credential lifetime")
	_ = cmd.MarkFlagRequired("sub")
	return cmd
}
