package api

import (
	"context"
	"net/http"
	"time"

	"tenant-gate/internal/domain"
)

// auditService defines the audit operations used by the API handler.
type auditService interface {
	List(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, int64, error)
}

// AuditEntry is the JSON view of an audit entry.
type AuditEntry struct {
	ID               string            `json:"id"`
	ActorPrincipalID string            `json:"actor_principal_id"`
	TargetTenantID   string            `json:"target_tenant_id,omitempty"`
	Action           string            `json:"action"`
	Timestamp        time.Time         `json:"timestamp"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// PaginatedAuditEntries is a page of audit entries.
type PaginatedAuditEntries struct {
	Data          []AuditEntry `json:"data"`
	NextPageToken *string      `json:"next_page_token,omitempty"`
}

// ListAuditLogs lists audit entries filtered by tenant_id, actor_id and action.
func (h *APIHandler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	page, err := pageFromQuery(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	filter := domain.AuditFilter{
		ActorPrincipalID: optQuery(r, "actor_id"),
		TargetTenantID:   optQuery(r, "tenant_id"),
		Action:           optQuery(r, "action"),
		Page:             page,
	}

	entries, total, err := h.audit.List(r.Context(), filter)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	data := make([]AuditEntry, len(entries))
	for i, e := range entries {
		data[i] = auditEntryToAPI(e)
	}
	npt := domain.NextPageToken(page.Offset(), page.Limit(), total)
	writeJSON(w, http.StatusOK, PaginatedAuditEntries{Data: data, NextPageToken: optStr(npt)})
}

func auditEntryToAPI(e domain.AuditEntry) AuditEntry {
	return AuditEntry{
		ID:               e.ID,
		ActorPrincipalID: e.ActorPrincipalID,
		TargetTenantID:   e.TargetTenantID,
		Action:           e.Action,
		Timestamp:        e.Timestamp.UTC(),
		Metadata:         e.Metadata,
	}
}
