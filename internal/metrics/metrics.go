// Package metrics holds the Prometheus collectors for gate decisions. A nil
// *Gate is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Result label values.
const (
	ResultOK    = "ok"
	ResultError = "error"
	ResultStale = "stale"

	ResultAllowed = "allowed"
	ResultDenied  = "denied"
)

// Gate holds the gate's collectors.
type Gate struct {
	Verifications  *prometheus.CounterVec
	KeySetRefresh  *prometheus.CounterVec
	Impersonations *prometheus.CounterVec
	UsageDecisions *prometheus.CounterVec
	UnitsRecorded  prometheus.Counter
	AuditRetries   *prometheus.CounterVec
}

// New creates unregistered collectors.
func New() *Gate {
	const namespace = "gate"

	return &Gate{
		Verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credential_verifications_total",
			Help:      "Count of bearer credential verifications by outcome code",
		}, []string{"result"}),

		KeySetRefresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "keyset_refresh_total",
			Help:      "Count of signing key set fetches",
		}, []string{"result"}),

		Impersonations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "impersonations_total",
			Help:      "Count of impersonation start and end attempts",
		}, []string{"action", "result"}),

		UsageDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "usage_decisions_total",
			Help:      "Count of quota decisions",
		}, []string{"result"}),

		UnitsRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "usage_units_recorded_total",
			Help:      "Units appended to the usage log",
		}),

		AuditRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_retries_total",
			Help:      "Outcomes of deferred audit writes",
		}, []string{"result"}),
	}
}

// PrometheusCollectors returns every collector for registration.
func (g *Gate) PrometheusCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		g.Verifications,
		g.KeySetRefresh,
		g.Impersonations,
		g.UsageDecisions,
		g.UnitsRecorded,
		g.AuditRetries,
	}
}

// Register registers all collectors with reg.
func (g *Gate) Register(reg prometheus.Registerer) error {
	for _, c := range g.PrometheusCollectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Verification counts a credential verification. result is "ok" or the
// credential error code.
func (g *Gate) Verification(result string) {
	if g == nil {
		return
	}
	g.Verifications.WithLabelValues(result).Inc()
}

// KeySetFetch counts a key set fetch.
func (g *Gate) KeySetFetch(result string) {
	if g == nil {
		return
	}
	g.KeySetRefresh.WithLabelValues(result).Inc()
}

// Impersonation counts an impersonation start or end.
func (g *Gate) Impersonation(action, result string) {
	if g == nil {
		return
	}
	g.Impersonations.WithLabelValues(action, result).Inc()
}

// UsageDecision counts an allow or deny.
func (g *Gate) UsageDecision(allowed bool) {
	if g == nil {
		return
	}
	result := ResultDenied
	if allowed {
		result = ResultAllowed
	}
	g.UsageDecisions.WithLabelValues(result).Inc()
}

// UnitsAppended adds recorded units.
func (g *Gate) UnitsAppended(units int64) {
	if g == nil || units <= 0 {
		return
	}
	g.UnitsRecorded.Add(float64(units))
}

// AuditRetry counts a deferred audit write outcome.
func (g *Gate) AuditRetry(result string) {
	if g == nil {
		return
	}
	g.AuditRetries.WithLabelValues(result).Inc()
}
