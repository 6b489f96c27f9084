package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// UnitLimit is a plan's monthly unit allowance. The zero value is a finite
// limit of 0; Unlimited() is represented distinctly and never as a sentinel
// number.
type UnitLimit struct {
	units     int64
	unlimited bool
}

// Unlimited returns a limit that always authorizes.
func Unlimited() UnitLimit { return UnitLimit{unlimited: true} }

// Limited returns a finite limit of n units.
func Limited(n int64) UnitLimit { return UnitLimit{units: n} }

// IsUnlimited reports whether the limit always authorizes.
func (l UnitLimit) IsUnlimited() bool { return l.unlimited }

// Units returns the finite limit. It is meaningless when IsUnlimited is true.
func (l UnitLimit) Units() int64 { return l.units }

// Allows reports whether a principal with currentUsage may start another
// metered operation.
func (l UnitLimit) Allows(currentUsage int64) bool {
	return l.unlimited || currentUsage < l.units
}

// Ptr returns the limit as a nullable integer (nil for unlimited), the shape
// used by storage and JSON.
func (l UnitLimit) Ptr() *int64 {
	if l.unlimited {
		return nil
	}
	n := l.units
	return &n
}

// LimitFromPtr is the inverse of Ptr.
func LimitFromPtr(n *int64) UnitLimit {
	if n == nil {
		return Unlimited()
	}
	return Limited(*n)
}

func (l UnitLimit) String() string {
	if l.unlimited {
		return "unlimited"
	}
	return strconv.FormatInt(l.units, 10)
}

// UnmarshalYAML accepts either an integer or the literal "unlimited".
func (l *UnitLimit) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("monthly_unit_limit: expected scalar, got kind %d", node.Kind)
	}
	v := strings.TrimSpace(node.Value)
	if strings.EqualFold(v, "unlimited") {
		*l = Unlimited()
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("monthly_unit_limit %q: %w", v, err)
	}
	if n < 0 {
		return fmt.Errorf("monthly_unit_limit must not be negative, got %d", n)
	}
	*l = Limited(n)
	return nil
}

// Plan is read-only reference data describing a subscription tier.
type Plan struct {
	Code             string    `yaml:"code"`
	Name             string    `yaml:"name"`
	MonthlyUnitLimit UnitLimit `yaml:"monthly_unit_limit"`
}

// Validate checks that the plan is well-formed.
func (p *Plan) Validate() error {
	if p.Code == "" {
		return ErrValidation("plan code is required")
	}
	if p.Name == "" {
		return ErrValidation("plan name is required")
	}
	return nil
}

// Subscription statuses.
const (
	SubscriptionActive   = "active"
	SubscriptionCanceled = "canceled"
)

// Subscription binds a principal to a plan and defines its billing window.
type Subscription struct {
	ID          string
	PrincipalID string
	PlanCode    string
	Status      string
	PeriodStart time.Time
	PeriodEnd   time.Time
}
