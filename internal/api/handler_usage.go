package api

import (
	"net/http"
	"regexp"
	"time"

	"github.com/go-chi/chi/v5"

	"tenant-gate/internal/domain"
)

var operationName = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// Usage is the caller's consumption in the current billing period. Limit is
// null for unlimited plans.
type Usage struct {
	PlanCode     string    `json:"plan_code"`
	CurrentUsage int64     `json:"current_usage"`
	Limit        *int64    `json:"limit"`
	PeriodStart  time.Time `json:"period_start"`
	PeriodEnd    time.Time `json:"period_end"`
	Allowed      bool      `json:"allowed"`
}

// OperationResult acknowledges a metered operation.
type OperationResult struct {
	Operation   string    `json:"operation"`
	Status      string    `json:"status"`
	RequestID   string    `json:"request_id,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

// GetUsage reports the caller's usage against their plan.
func (h *APIHandler) GetUsage(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFrom(w, r)
	if !ok {
		return
	}
	d, err := h.usage.Snapshot(r.Context(), &sess.Principal)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, usageToAPI(d))
}

// RunOperation is the metered collaborator endpoint. Quota is enforced by
// the Metered middleware in front of it; the work itself belongs to the
// downstream collaborator and is acknowledged here.
func (h *APIHandler) RunOperation(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !operationName.MatchString(name) {
		WriteError(w, r, domain.ErrValidation("invalid operation name %q", name))
		return
	}
	writeJSON(w, http.StatusOK, OperationResult{
		Operation:   name,
		Status:      "completed",
		RequestID:   domain.RequestIDFromContext(r.Context()),
		CompletedAt: time.Now().UTC(),
	})
}

// OperationFromPath names usage records after the {name} route parameter.
func OperationFromPath(r *http.Request) string {
	if name := chi.URLParam(r, "name"); name != "" {
		return name
	}
	return r.URL.Path
}

func usageToAPI(d *domain.UsageDecision) Usage {
	return Usage{
		PlanCode:     d.PlanCode,
		CurrentUsage: d.CurrentUsage,
		Limit:        d.Limit.Ptr(),
		PeriodStart:  d.Period.Start.UTC(),
		PeriodEnd:    d.Period.End.UTC(),
		Allowed:      d.Allowed,
	}
}
