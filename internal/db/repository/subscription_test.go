package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internaldb "tenant-gate/internal/db"
	"tenant-gate/internal/domain"
)

func TestSubscriptionRepo_ReplaceAndCancel(t *testing.T) {
	writeDB, _ := internaldb.OpenTestSQLite(t)
	principals := NewPrincipalRepo(writeDB)
	plans := NewPlanRepo(writeDB)
	repo := NewSubscriptionRepo(writeDB)
	ctx := context.Background()

	seedPlan(t, plans, "free", domain.Limited(10))
	seedPlan(t, plans, "pro", domain.Limited(1000))
	p := createPrincipals(t, principals, 1)[0]

	_, err := repo.GetActive(ctx, p.ID)
	var notFound *domain.NotFoundError
	require.ErrorAs(t, err, &notFound)

	start, end := monthOf(time.Now())
	require.NoError(t, repo.Replace(ctx, &domain.Subscription{PrincipalID: p.ID, PlanCode: "free", PeriodStart: start, PeriodEnd: end}))
	require.NoError(t, repo.Replace(ctx, &domain.Subscription{PrincipalID: p.ID, PlanCode: "pro", PeriodStart: start, PeriodEnd: end}))

	active, err := repo.GetActive(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "pro", active.PlanCode)

	var count int
	require.NoError(t, writeDB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM subscriptions WHERE principal_id = ?`, p.ID).Scan(&count))
	assert.Equal(t, 2, count)

	require.NoError(t, repo.Cancel(ctx, p.ID))
	_, err = repo.GetActive(ctx, p.ID)
	assert.ErrorAs(t, err, &notFound)
}

func TestSubscriptionRepo_SecondActiveRejected(t *testing.T) {
	writeDB, _ := internaldb.OpenTestSQLite(t)
	plans := NewPlanRepo(writeDB)
	seedPlan(t, plans, "free", domain.Limited(10))
	p := createPrincipals(t, NewPrincipalRepo(writeDB), 1)[0]
	ctx := context.Background()

	start, end := monthOf(time.Now())
	sub := domain.Subscription{PrincipalID: p.ID, PlanCode: "free", PeriodStart: start, PeriodEnd: end}
	require.NoError(t, insertSubscription(ctx, writeDB, &sub))

	dup := domain.Subscription{PrincipalID: p.ID, PlanCode: "free", PeriodStart: start, PeriodEnd: end}
	err := insertSubscription(ctx, writeDB, &dup)
	var conflict *domain.ConflictError
	assert.ErrorAs(t, err, &conflict)
}
