package cli

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"tenant-gate/internal/app"
	"tenant-gate/internal/config"
	"tenant-gate/internal/domain"
)

type auditView struct {
	ID               string            `json:"id"`
	ActorPrincipalID string            `json:"actor_principal_id"`
	TargetTenantID   string            `json:"target_tenant_id"`
	Action           string            `json:"action"`
	Timestamp        time.Time         `json:"timestamp"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

func newAuditCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the audit trail",
	}
	cmd.AddCommand(newAuditListCmd(opts))
	return cmd
}

func newAuditListCmd(opts *rootOptions) *cobra.Command {
	var (
		tenantID, actorID, action string
		maxResults                int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List audit entries, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := domain.AuditFilter{
				TargetTenantID:   optFlag(tenantID),
				ActorPrincipalID: optFlag(actorID),
				Action:           optFlag(action),
				Page:             domain.PageRequest{MaxResults: maxResults},
			}
			return opts.withStores(cmd, func(ctx context.Context, _ *config.Config, s *app.Stores) error {
				entries, _, err := s.AuditReader.List(ctx, filter)
				if err != nil {
					return err
				}
				views := make([]auditView, len(entries))
				rows := make([][]string, len(entries))
				for i, e := range entries {
					views[i] = auditView{
						ID: e.ID, ActorPrincipalID: e.ActorPrincipalID, TargetTenantID: e.TargetTenantID,
						Action: e.Action, Timestamp: e.Timestamp.UTC(), Metadata: e.Metadata,
					}
					rows[i] = []string{
						e.Timestamp.UTC().Format(time.RFC3339), e.Action, e.ActorPrincipalID,
						e.TargetTenantID, formatMetadata(e.Metadata),
					}
				}
				return render(cmd, views, []string{"timestamp", "action", "actor", "tenant", "metadata"}, rows)
			})
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "filter by target tenant")
	cmd.Flags().StringVar(&actorID, "actor", "", "filter by acting principal")
	cmd.Flags().StringVar(&action, "action", "", "filter by action")
	cmd.Flags().IntVar(&maxResults, "max-results", domain.DefaultPageSize, "maximum entries to show")
	return cmd
}

func optFlag(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func formatMetadata(m map[string]string) string {
	if len(m) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + m[k]
	}
	return strings.Join(parts, ",")
}
