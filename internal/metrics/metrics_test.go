package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGate_Counters(t *testing.T) {
	t.Parallel()
	g := New()
	reg := prometheus.NewRegistry()
	require.NoError(t, g.Register(reg))

	g.Verification(ResultOK)
	g.Verification("EXPIRED")
	g.Verification("EXPIRED")
	g.KeySetFetch(ResultError)
	g.Impersonation("start", ResultOK)
	g.UsageDecision(true)
	g.UsageDecision(false)
	g.UnitsAppended(3)
	g.UnitsAppended(0)
	g.AuditRetry(ResultOK)

	assert.Equal(t, 1.0, testutil.ToFloat64(g.Verifications.WithLabelValues(ResultOK)))
	assert.Equal(t, 2.0, testutil.ToFloat64(g.Verifications.WithLabelValues("EXPIRED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(g.KeySetRefresh.WithLabelValues(ResultError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(g.Impersonations.WithLabelValues("start", ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(g.UsageDecisions.WithLabelValues(ResultDenied)))
	assert.Equal(t, 3.0, testutil.ToFloat64(g.UnitsRecorded))
	assert.Equal(t, 1.0, testutil.ToFloat64(g.AuditRetries.WithLabelValues(ResultOK)))
}

func TestGate_DoubleRegisterFails(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	require.NoError(t, New().Register(reg))
	assert.Error(t, New().Register(reg))
}

func TestGate_NilIsNoop(t *testing.T) {
	t.Parallel()
	var g *Gate
	assert.NotPanics(t, func() {
		g.Verification(ResultOK)
		g.KeySetFetch(ResultOK)
		g.Impersonation("end", ResultError)
		g.UsageDecision(false)
		g.UnitsAppended(1)
		g.AuditRetry(ResultError)
	})
}
