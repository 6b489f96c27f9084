package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenant-gate/internal/domain"
)

type recordedUsage struct {
	principalID string
	units       int64
	operation   string
}

type stubGate struct {
	decision   *domain.UsageDecision
	err        error
	recordErr  error
	checks     int
	consumes   int
	recordings []recordedUsage
}

func (g *stubGate) CheckAndReserve(context.Context, *domain.Principal) (*domain.UsageDecision, error) {
	g.checks++
	return g.decision, g.err
}

func (g *stubGate) Record(_ context.Context, sess domain.SessionContext, units int64, op string) error {
	g.recordings = append(g.recordings, recordedUsage{sess.Principal.ID, units, op})
	return g.recordErr
}

func (g *stubGate) TryConsume(context.Context, domain.SessionContext, int64, string) (*domain.UsageDecision, error) {
	g.consumes++
	return g.decision, g.err
}

func allowedDecision() *domain.UsageDecision {
	return &domain.UsageDecision{Allowed: true, CurrentUsage: 9, Limit: domain.Limited(10), PlanCode: "free"}
}

func deniedDecision() *domain.UsageDecision {
	return &domain.UsageDecision{
		Reason: domain.DenialReason("free", 10, domain.Limited(10)), CurrentUsage: 10,
		Limit: domain.Limited(10), PlanCode: "free",
	}
}

func meteredRequest(ctx context.Context) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/v1/operations/generate", nil).WithContext(ctx)
	return req.WithContext(domain.WithSession(req.Context(), domain.SessionContext{
		Principal: domain.Principal{ID: "p-1"},
		Role:      domain.RoleMember,
	}))
}

func statusHandler(status int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
	})
}

func TestMetered_RecordsOnSuccess(t *testing.T) {
	gate := &stubGate{decision: allowedDecision()}
	h := Metered(gate, MeteredConfig{Units: 2}, nil, nil)(statusHandler(http.StatusCreated))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, meteredRequest(context.Background()))

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "9", w.Header().Get("X-Usage-Current"))
	assert.Equal(t, "10", w.Header().Get("X-Usage-Limit"))
	require.Len(t, gate.recordings, 1)
	assert.Equal(t, recordedUsage{"p-1", 2, "/v1/operations/generate"}, gate.recordings[0])
}

func TestMetered_ImplicitOKIsSuccess(t *testing.T) {
	gate := &stubGate{decision: allowedDecision()}
	h := Metered(gate, MeteredConfig{}, nil, nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	h.ServeHTTP(httptest.NewRecorder(), meteredRequest(context.Background()))
	require.Len(t, gate.recordings, 1)
	assert.Equal(t, int64(1), gate.recordings[0].units)
}

func TestMetered_NoRecordOnFailure(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusInternalServerError, http.StatusBadGateway} {
		gate := &stubGate{decision: allowedDecision()}
		h := Metered(gate, MeteredConfig{}, nil, nil)(statusHandler(status))

		w := httptest.NewRecorder()
		h.ServeHTTP(w, meteredRequest(context.Background()))
		assert.Equal(t, status, w.Code)
		assert.Empty(t, gate.recordings, "status %d consumes nothing", status)
	}
}

func TestMetered_NoRecordWhenClientGone(t *testing.T) {
	gate := &stubGate{decision: allowedDecision()}
	ctx, cancel := context.WithCancel(context.Background())
	h := Metered(gate, MeteredConfig{}, nil, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		cancel()
		w.WriteHeader(http.StatusOK)
	}))

	h.ServeHTTP(httptest.NewRecorder(), meteredRequest(ctx))
	assert.Empty(t, gate.recordings)
}

func TestMetered_Denied(t *testing.T) {
	gate := &stubGate{decision: deniedDecision()}
	var got error
	h := Metered(gate, MeteredConfig{}, func(w http.ResponseWriter, _ *http.Request, err error) {
		got = err
		w.WriteHeader(http.StatusTooManyRequests)
	}, nil)(mustNotRun(t))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, meteredRequest(context.Background()))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	var qerr *domain.QuotaError
	require.ErrorAs(t, got, &qerr)
	assert.Equal(t, int64(10), qerr.CurrentUsage)
	assert.Equal(t, int64(10), qerr.Limit)
	assert.Empty(t, gate.recordings)
}

func TestMetered_GateFailureDenies(t *testing.T) {
	storeErr := &domain.StoreError{Op: "sum usage", Err: errors.New("database is locked")}
	gate := &stubGate{err: storeErr}
	var got error
	h := Metered(gate, MeteredConfig{}, func(w http.ResponseWriter, _ *http.Request, err error) {
		got = err
		w.WriteHeader(http.StatusServiceUnavailable)
	}, nil)(mustNotRun(t))

	h.ServeHTTP(httptest.NewRecorder(), meteredRequest(context.Background()))
	assert.ErrorIs(t, got, storeErr)
}

func TestMetered_Strict(t *testing.T) {
	gate := &stubGate{decision: allowedDecision()}
	h := Metered(gate, MeteredConfig{Strict: true}, nil, nil)(statusHandler(http.StatusOK))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, meteredRequest(context.Background()))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, gate.consumes)
	assert.Zero(t, gate.checks)
	assert.Empty(t, gate.recordings, "strict mode records inside TryConsume")

	denied := &stubGate{decision: deniedDecision()}
	var got error
	h = Metered(denied, MeteredConfig{Strict: true}, func(w http.ResponseWriter, _ *http.Request, err error) {
		got = err
		w.WriteHeader(http.StatusTooManyRequests)
	}, nil)(mustNotRun(t))
	h.ServeHTTP(httptest.NewRecorder(), meteredRequest(context.Background()))
	var qerr *domain.QuotaError
	assert.ErrorAs(t, got, &qerr)
}

func TestMetered_RequiresSession(t *testing.T) {
	gate := &stubGate{decision: allowedDecision()}
	h := Metered(gate, MeteredConfig{}, nil, nil)(mustNotRun(t))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Zero(t, gate.checks)
}

func TestMetered_OperationName(t *testing.T) {
	gate := &stubGate{decision: allowedDecision()}
	h := Metered(gate, MeteredConfig{Operation: func(*http.Request) string { return "generate" }}, nil, nil)(statusHandler(http.StatusOK))

	h.ServeHTTP(httptest.NewRecorder(), meteredRequest(context.Background()))
	require.Len(t, gate.recordings, 1)
	assert.Equal(t, "generate", gate.recordings[0].operation)
}
