// Package usage enforces per-principal monthly unit quotas for metered
// operations.
package usage

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"tenant-gate/internal/domain"
	"tenant-gate/internal/metrics"
)

// Gate defaults.
const (
	DefaultIOTimeout = 5 * time.Second
	DefaultPlanCode  = "free"
)

// Config configures a Gate.
type Config struct {
	// Timezone anchors the calendar month used when a principal has no
	// active subscription. Defaults to UTC.
	Timezone    *time.Location
	IOTimeout   time.Duration
	DefaultPlan string
}

// Gate decides whether a principal may start a metered operation and
// records the units consumed once it completes.
//
// CheckAndReserve and Record are a read-then-later-write pair: concurrent
// callers near the limit may all pass the check, overshooting by the number
// of requests in flight. TryConsume closes that gap with a single
// conditional append.
type Gate struct {
	subscriptions domain.SubscriptionRepository
	plans         domain.PlanRepository
	usage         domain.UsageRepository
	cfg           Config
	metrics       *metrics.Gate
	logger        *slog.Logger
	now           func() time.Time
}

// NewGate creates a Gate.
func NewGate(
	subscriptions domain.SubscriptionRepository,
	plans domain.PlanRepository,
	usage domain.UsageRepository,
	cfg Config,
	m *metrics.Gate,
	logger *slog.Logger,
) *Gate {
	if cfg.Timezone == nil {
		cfg.Timezone = time.UTC
	}
	if cfg.IOTimeout <= 0 {
		cfg.IOTimeout = DefaultIOTimeout
	}
	if cfg.DefaultPlan == "" {
		cfg.DefaultPlan = DefaultPlanCode
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		subscriptions: subscriptions,
		plans:         plans,
		usage:         usage,
		cfg:           cfg,
		metrics:       m,
		logger:        logger.With("component", "usage-gate"),
		now:           time.Now,
	}
}

// entitlement is the plan and window a principal is currently billed under.
type entitlement struct {
	plan   *domain.Plan
	period domain.BillingPeriod
}

// CheckAndReserve authorizes or denies the next metered operation for p.
// Nothing is reserved: units are only consumed by a later Record. Storage
// failures deny by returning an error.
func (g *Gate) CheckAndReserve(ctx context.Context, p *domain.Principal) (*domain.UsageDecision, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.IOTimeout)
	defer cancel()

	ent, err := g.entitlement(ctx, p.ID)
	if err != nil {
		g.logFailure("usage check failed", p.ID, err)
		return nil, err
	}

	var current int64
	if !ent.plan.MonthlyUnitLimit.IsUnlimited() {
		current, err = g.usage.SumBetween(ctx, p.ID, ent.period.Start, ent.period.End)
		if err != nil {
			g.logFailure("usage check failed", p.ID, err)
			return nil, &domain.StoreError{Op: "sum usage", Err: err}
		}
	}

	d := decide(ent, current)
	g.metrics.UsageDecision(d.Allowed)
	if !d.Allowed {
		g.logger.Info("metered operation denied",
			"principal_id", p.ID, "plan", d.PlanCode, "usage", d.CurrentUsage, "limit", d.Limit.String())
	}
	return d, nil
}

// Record appends units consumed by a completed operation. Consumption during
// impersonation is attributed to the acting operator as well.
func (g *Gate) Record(ctx context.Context, sess domain.SessionContext, units int64, operation string) error {
	if units <= 0 {
		return domain.ErrValidation("units must be positive, got %d", units)
	}
	ctx, cancel := context.WithTimeout(ctx, g.cfg.IOTimeout)
	defer cancel()

	rec := g.newRecord(sess, units, operation)
	if err := g.usage.Append(ctx, rec); err != nil {
		g.logFailure("usage not recorded", sess.Principal.ID, err)
		return &domain.StoreError{Op: "append usage", Err: err}
	}
	g.metrics.UnitsAppended(units)
	return nil
}

// TryConsume checks the limit and records units in one conditional append,
// so concurrent callers can never push usage past the limit.
func (g *Gate) TryConsume(ctx context.Context, sess domain.SessionContext, units int64, operation string) (*domain.UsageDecision, error) {
	if units <= 0 {
		return nil, domain.ErrValidation("units must be positive, got %d", units)
	}
	ctx, cancel := context.WithTimeout(ctx, g.cfg.IOTimeout)
	defer cancel()

	pid := sess.Principal.ID
	ent, err := g.entitlement(ctx, pid)
	if err != nil {
		g.logFailure("usage check failed", pid, err)
		return nil, err
	}

	rec := g.newRecord(sess, units, operation)
	limit := ent.plan.MonthlyUnitLimit
	if limit.IsUnlimited() {
		if err := g.usage.Append(ctx, rec); err != nil {
			g.logFailure("usage not recorded", pid, err)
			return nil, &domain.StoreError{Op: "append usage", Err: err}
		}
		g.metrics.UsageDecision(true)
		g.metrics.UnitsAppended(units)
		return decide(ent, 0), nil
	}

	total, appended, err := g.usage.AppendIfWithinLimit(ctx, rec, ent.period.Start, ent.period.End, limit.Units())
	if err != nil {
		g.logFailure("usage check failed", pid, err)
		return nil, &domain.StoreError{Op: "conditional append usage", Err: err}
	}
	g.metrics.UsageDecision(appended)
	if !appended {
		g.logger.Info("metered operation denied",
			"principal_id", pid, "plan", ent.plan.Code, "usage", total, "limit", limit.String())
		return denied(ent, total), nil
	}
	g.metrics.UnitsAppended(units)
	return allowed(ent, total), nil
}

// Snapshot reports the current period, usage and limit for p without
// making a decision.
func (g *Gate) Snapshot(ctx context.Context, p *domain.Principal) (*domain.UsageDecision, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.IOTimeout)
	defer cancel()

	ent, err := g.entitlement(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	current, err := g.usage.SumBetween(ctx, p.ID, ent.period.Start, ent.period.End)
	if err != nil {
		return nil, &domain.StoreError{Op: "sum usage", Err: err}
	}
	return decide(ent, current), nil
}

func (g *Gate) entitlement(ctx context.Context, principalID string) (*entitlement, error) {
	now := g.now()
	planCode := g.cfg.DefaultPlan
	var period domain.BillingPeriod

	sub, err := g.subscriptions.GetActive(ctx, principalID)
	var notFound *domain.NotFoundError
	switch {
	case err == nil:
		planCode = sub.PlanCode
		period = RollingPeriod(sub.PeriodStart, sub.PeriodEnd, now)
	case errors.As(err, &notFound):
		period = CalendarMonth(now, g.cfg.Timezone)
	default:
		return nil, &domain.StoreError{Op: "load subscription", Err: err}
	}

	plan, err := g.plans.Get(ctx, planCode)
	if err != nil {
		if errors.As(err, &notFound) {
			return nil, domain.ErrReferenceDataMissing("plan %q does not exist", planCode)
		}
		return nil, &domain.StoreError{Op: "load plan", Err: err}
	}
	return &entitlement{plan: plan, period: period}, nil
}

func (g *Gate) newRecord(sess domain.SessionContext, units int64, operation string) *domain.UsageRecord {
	rec := &domain.UsageRecord{
		ID:          uuid.NewString(),
		PrincipalID: sess.Principal.ID,
		Operation:   operation,
		Timestamp:   g.now().UTC(),
		Units:       units,
	}
	if sess.Impersonating {
		rec.ActingPrincipalID = sess.ActingPrincipalID
	}
	return rec
}

func (g *Gate) logFailure(msg, principalID string, err error) {
	var serr *domain.StoreError
	if errors.As(err, &serr) {
		g.logger.Error(msg, "principal_id", principalID, "cause", "infrastructure", "error", err)
		return
	}
	g.logger.Error(msg, "principal_id", principalID, "cause", "configuration", "error", err)
}

func decide(ent *entitlement, current int64) *domain.UsageDecision {
	limit := ent.plan.MonthlyUnitLimit
	if !limit.Allows(current) {
		return denied(ent, current)
	}
	return allowed(ent, current)
}

func allowed(ent *entitlement, current int64) *domain.UsageDecision {
	return &domain.UsageDecision{
		Allowed:      true,
		CurrentUsage: current,
		Limit:        ent.plan.MonthlyUnitLimit,
		PlanCode:     ent.plan.Code,
		Period:       ent.period,
	}
}

func denied(ent *entitlement, current int64) *domain.UsageDecision {
	limit := ent.plan.MonthlyUnitLimit
	return &domain.UsageDecision{
		Reason:       domain.DenialReason(ent.plan.Code, current, limit),
		CurrentUsage: current,
		Limit:        limit,
		PlanCode:     ent.plan.Code,
		Period:       ent.period,
	}
}
