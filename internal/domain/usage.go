package domain

import (
	"fmt"
	"time"
)

// UsageRecord is an append-only record of consumed units. ActingPrincipalID
// is set when the units were consumed during impersonation.
type UsageRecord struct {
	ID                string
	PrincipalID       string
	ActingPrincipalID string
	Operation         string
	Timestamp         time.Time
	Units             int64
}

// BillingPeriod is the half-open window [Start, End) usage is counted in.
type BillingPeriod struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the period.
func (p BillingPeriod) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

// AddMonths adds n calendar months to t. The day is clamped to the last day
// of the target month, so 31 January plus one month is the end of February.
func AddMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, t.Location())
	if last := time.Date(first.Year(), first.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day(); d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// UsageDecision is the outcome of a quota check.
type UsageDecision struct {
	Allowed      bool
	Reason       string
	CurrentUsage int64
	Limit        UnitLimit
	PlanCode     string
	Period       BillingPeriod
}

// Err returns a *QuotaError for denied decisions and nil otherwise.
func (d *UsageDecision) Err() error {
	if d == nil || d.Allowed {
		return nil
	}
	return &QuotaError{Message: d.Reason, CurrentUsage: d.CurrentUsage, Limit: d.Limit.Units()}
}

// DenialReason renders the human-readable reason attached to a denial.
func DenialReason(planCode string, usage int64, limit UnitLimit) string {
	return fmt.Sprintf("monthly limit of %s units reached on plan %q (%d used); upgrade to continue", limit, planCode, usage)
}
