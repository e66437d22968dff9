package surrealdb

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/accrue/internal/interfaces"
	"github.com/bobmcallan/accrue/internal/models"
)

var t0 = time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)

func testManager(t *testing.T) *Manager {
	t.Helper()
	db := testDB(t)
	require.NoError(t, defineTables(context.Background(), db))
	return newManager(db, testLogger())
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testInvestment(id string) *models.Investment {
	return &models.Investment{
		ID:              id,
		UserID:          "user-1",
		PlanID:          "plan-1",
		Principal:       d("10000"),
		Currency:        "USD",
		BaseRate:        d("6"),
		EffectiveRate:   d("6.25"),
		TermMonths:      12,
		TermBucket:      models.TermBucketFor(12),
		Status:          models.StatusActive,
		StartDate:       t0,
		MaturityDate:    models.AddMonths(t0, 12),
		TotalPaidOut:    decimal.Zero,
		MinimumBalance:  d("1000"),
		ProjectedReturn: d("625"),
		PayoutFrequency: models.FrequencyMonthly,
		SourceAccountID: "acct-src",
		CreatedAt:       t0,
		UpdatedAt:       t0,
	}
}

func TestPlanStoreRoundTrip(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	plan := &models.InvestmentPlan{
		ID:                     "plan-1",
		Name:                   "Fixed Deposit",
		Type:                   models.PlanTypeFixedDeposit,
		MinAmount:              d("1000"),
		MaxAmount:              d("100000"),
		BaseRate:               d("6"),
		MinTermMonths:          6,
		MaxTermMonths:          24,
		DefaultFrequency:       models.FrequencyMonthly,
		EarlyWithdrawalPenalty: d("2"),
		RiskLevel:              1,
		VolatilityIndex:        d("0.05"),
		Brackets: []models.RateBracket{
			{Min: d("1000"), Max: d("9999.99"), Rate: d("6")},
			{Min: d("10000"), Max: d("100000"), Rate: d("6.5")},
		},
		Currency:  "USD",
		Active:    true,
		CreatedAt: t0,
		UpdatedAt: t0,
	}
	require.NoError(t, m.PlanStore().SavePlan(ctx, plan))

	got, err := m.PlanStore().GetPlan(ctx, "plan-1")
	require.NoError(t, err)
	assert.Equal(t, "Fixed Deposit", got.Name)
	assert.True(t, got.MaxAmount.Equal(d("100000")))
	require.Len(t, got.Brackets, 2)
	assert.True(t, got.Brackets[1].Rate.Equal(d("6.5")))
	assert.True(t, got.CreatedAt.Equal(t0))

	_, err = m.PlanStore().GetPlan(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrPlanNotFound)

	inactive := *plan
	inactive.ID = "plan-2"
	inactive.Name = "Old Bond"
	inactive.Active = false
	require.NoError(t, m.PlanStore().SavePlan(ctx, &inactive))

	all, err := m.PlanStore().ListPlans(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	active, err := m.PlanStore().ListPlans(ctx, true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "plan-1", active[0].ID)
}

func TestInvestmentStoreVersionCheck(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()
	store := m.InvestmentStore()

	inv := testInvestment("inv-1")
	require.NoError(t, store.Create(ctx, &interfaces.InvestmentUpdate{Investment: inv}))
	assert.Equal(t, 1, inv.Version)

	err := store.Create(ctx, &interfaces.InvestmentUpdate{Investment: testInvestment("inv-1")})
	assert.ErrorIs(t, err, models.ErrVersionConflict)

	a, err := store.Get(ctx, "inv-1")
	require.NoError(t, err)
	b, err := store.Get(ctx, "inv-1")
	require.NoError(t, err)

	a.Principal = d("9000")
	require.NoError(t, store.Commit(ctx, &interfaces.InvestmentUpdate{Investment: a}))
	assert.Equal(t, 2, a.Version)

	b.Principal = d("8000")
	err = store.Commit(ctx, &interfaces.InvestmentUpdate{Investment: b})
	assert.ErrorIs(t, err, models.ErrVersionConflict)

	got, err := store.Get(ctx, "inv-1")
	require.NoError(t, err)
	assert.True(t, got.Principal.Equal(d("9000")))
	assert.Equal(t, 2, got.Version)
	assert.Nil(t, got.LastPayoutDate)

	err = store.Commit(ctx, &interfaces.InvestmentUpdate{Investment: testInvestment("ghost")})
	assert.ErrorIs(t, err, models.ErrInvestmentNotFound)

	_, err = store.Get(ctx, "ghost")
	assert.ErrorIs(t, err, models.ErrInvestmentNotFound)
}

func TestInvestmentCommitWritesChildrenAtomically(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	inv := testInvestment("inv-1")
	require.NoError(t, m.InvestmentStore().Create(ctx, &interfaces.InvestmentUpdate{Investment: inv}))

	due := models.AddMonths(t0, 1)
	rec := &models.PayoutRecord{
		ID:              "pay-1",
		InvestmentID:    inv.ID,
		PeriodKey:       models.PeriodKey(inv.ID, due),
		Amount:          d("52.08"),
		InterestPortion: d("52.08"),
		Type:            models.PayoutTypeInterest,
		ScheduledDate:   due,
		Status:          models.PayoutStatusCompleted,
		CreatedAt:       due,
	}
	change := &models.RateChange{
		ID: "rc-1", InvestmentID: inv.ID, OldRate: d("6.25"), NewRate: d("7"),
		ChangedBy: "admin", Reason: "retention", ChangedAt: due,
	}
	inv.LastPayoutDate = &due
	inv.TotalPaidOut = d("52.08")
	inv.TermPaidOut = d("52.08")
	inv.EffectiveRate = d("7")
	require.NoError(t, m.InvestmentStore().Commit(ctx, &interfaces.InvestmentUpdate{
		Investment:  inv,
		Payouts:     []*models.PayoutRecord{rec},
		RateChanges: []*models.RateChange{change},
	}))

	got, err := m.InvestmentStore().Get(ctx, inv.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastPayoutDate)
	assert.True(t, got.LastPayoutDate.Equal(due))
	assert.True(t, got.TotalPaidOut.Equal(d("52.08")))
	assert.True(t, got.TermPaidOut.Equal(d("52.08")))

	payouts, err := m.PayoutStore().ListByInvestment(ctx, inv.ID)
	require.NoError(t, err)
	require.Len(t, payouts, 1)
	assert.Equal(t, models.PayoutStatusCompleted, payouts[0].Status)

	changes, err := m.RateChangeStore().ListByInvestment(ctx, inv.ID)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, "retention", changes[0].Reason)

	// A stale commit must not leave a payout behind.
	stale := testInvestment("inv-1")
	stale.Version = 1
	later := models.AddMonths(t0, 2)
	err = m.InvestmentStore().Commit(ctx, &interfaces.InvestmentUpdate{
		Investment: stale,
		Payouts: []*models.PayoutRecord{{
			ID: "pay-2", InvestmentID: inv.ID, PeriodKey: models.PeriodKey(inv.ID, later),
			Amount: d("52.08"), Type: models.PayoutTypeInterest, ScheduledDate: later,
			Status: models.PayoutStatusCompleted, CreatedAt: later,
		}},
	})
	assert.ErrorIs(t, err, models.ErrVersionConflict)

	payouts, err = m.PayoutStore().ListByInvestment(ctx, inv.ID)
	require.NoError(t, err)
	assert.Len(t, payouts, 1)
}

func TestInvestmentListing(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	for i, id := range []string{"inv-a", "inv-b", "inv-c"} {
		inv := testInvestment(id)
		inv.CreatedAt = t0.Add(time.Duration(i) * time.Hour)
		if id == "inv-c" {
			inv.UserID = "user-2"
			inv.Status = models.StatusPending
		}
		require.NoError(t, m.InvestmentStore().Create(ctx, &interfaces.InvestmentUpdate{Investment: inv}))
	}

	mine, err := m.InvestmentStore().ListByUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "inv-a", mine[0].ID)
	assert.Equal(t, "inv-b", mine[1].ID)

	pending, err := m.InvestmentStore().ListByStatus(ctx, models.StatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "inv-c", pending[0].ID)
}

func TestPayoutReserveIsIdempotent(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	key := models.PeriodKey("inv-1", t0)
	rec := &models.PayoutRecord{
		ID: "pay-1", InvestmentID: "inv-1", PeriodKey: key, Amount: d("50"),
		Type: models.PayoutTypeInterest, ScheduledDate: t0,
		Status: models.PayoutStatusScheduled, CreatedAt: t0,
	}

	first, created, err := m.PayoutStore().Reserve(ctx, rec)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "pay-1", first.ID)

	dup := *rec
	dup.ID = "pay-2"
	again, created, err := m.PayoutStore().Reserve(ctx, &dup)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "pay-1", again.ID)

	got, err := m.PayoutStore().GetByPeriod(ctx, key)
	require.NoError(t, err)
	assert.True(t, got.Amount.Equal(d("50")))

	_, err = m.PayoutStore().GetByPeriod(ctx, "inv-1:2030-01-01")
	assert.ErrorIs(t, err, models.ErrPayoutNotFound)
}

func TestPayoutReserveConcurrent(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()
	key := models.PeriodKey("inv-1", t0)

	var wg sync.WaitGroup
	var mu sync.Mutex
	createdCount := 0
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, created, err := m.PayoutStore().Reserve(ctx, &models.PayoutRecord{
				ID: "pay-" + string(rune('a'+i)), InvestmentID: "inv-1", PeriodKey: key,
				Amount: d("50"), Type: models.PayoutTypeInterest, ScheduledDate: t0,
				Status: models.PayoutStatusScheduled, CreatedAt: t0,
			})
			if err == nil && created {
				mu.Lock()
				createdCount++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, createdCount)
}

func TestOverrideStore(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()
	store := m.RateOverrideStore()

	old := &models.RateOverride{
		ID: "ov-1", UserID: "user-1", PlanID: "plan-1", RateType: models.RateTypeBonus,
		Rate: d("0.5"), EffectiveFrom: t0, Active: true, CreatedBy: "admin", CreatedAt: t0,
	}
	closed, err := store.ReplaceActive(ctx, old)
	require.NoError(t, err)
	assert.Empty(t, closed)

	global := &models.RateOverride{
		ID: "ov-g", PlanID: "plan-1", RateType: models.RateTypeBonus,
		Rate: d("0.25"), EffectiveFrom: t0, Active: true, CreatedBy: "admin", CreatedAt: t0,
	}
	_, err = store.ReplaceActive(ctx, global)
	require.NoError(t, err)

	next := &models.RateOverride{
		ID: "ov-2", UserID: "user-1", PlanID: "plan-1", RateType: models.RateTypeBonus,
		Rate: d("1"), EffectiveFrom: t0.Add(24 * time.Hour), Active: true, CreatedBy: "admin", CreatedAt: t0,
	}
	closed, err = store.ReplaceActive(ctx, next)
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, "ov-1", closed[0].ID)

	got, err := store.Get(ctx, "ov-1")
	require.NoError(t, err)
	assert.False(t, got.Active)
	require.NotNil(t, got.EffectiveTo)
	assert.True(t, got.EffectiveTo.Equal(next.EffectiveFrom))

	active, err := store.QueryActive(ctx, "user-1", "plan-1", t0.Add(48*time.Hour))
	require.NoError(t, err)
	ids := map[string]bool{}
	for _, o := range active {
		ids[o.ID] = true
	}
	assert.Equal(t, map[string]bool{"ov-2": true, "ov-g": true}, ids)

	other, err := store.QueryActive(ctx, "user-9", "plan-1", t0.Add(48*time.Hour))
	require.NoError(t, err)
	require.Len(t, other, 1)
	assert.Equal(t, "ov-g", other[0].ID)

	require.NoError(t, store.Deactivate(ctx, "ov-2", t0.Add(72*time.Hour)))
	active, err = store.QueryActive(ctx, "user-1", "plan-1", t0.Add(96*time.Hour))
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "ov-g", active[0].ID)

	assert.ErrorIs(t, store.Deactivate(ctx, "missing", t0), models.ErrOverrideNotFound)
	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrOverrideNotFound)
}

func TestOverrideReplaceActiveConcurrentSameScope(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()
	store := m.RateOverrideStore()

	const writers = 4
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = store.ReplaceActive(ctx, &models.RateOverride{
				ID:            fmt.Sprintf("ov-race-%d", i),
				UserID:        "user-1",
				PlanID:        "plan-1",
				RateType:      models.RateTypeOverride,
				Rate:          d("7"),
				EffectiveFrom: t0,
				Active:        true,
				CreatedBy:     "admin",
				CreatedAt:     t0,
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, models.ErrVersionConflict)
	}
	assert.GreaterOrEqual(t, succeeded, 1)

	active, err := store.QueryActive(ctx, "user-1", "plan-1", t0.Add(time.Hour))
	require.NoError(t, err)
	inScope := 0
	for _, o := range active {
		if o.UserID == "user-1" && o.PlanID == "plan-1" && o.RateType == models.RateTypeOverride {
			inScope++
		}
	}
	assert.Equal(t, 1, inScope, "one active override per exact scope")
}

func TestRunStoreRecent(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		start := t0.Add(time.Duration(i) * time.Hour)
		require.NoError(t, m.RunStore().Record(ctx, &models.BatchResult{
			RunID:      "run-" + string(rune('1'+i)),
			AsOf:       start,
			StartedAt:  start,
			FinishedAt: start.Add(time.Second),
			Scanned:    i + 1,
			Paid:       i,
			TotalPaid:  d("50").Mul(decimal.NewFromInt(int64(i))),
			Errors:     []models.BatchItemError{{InvestmentID: "inv-x", Error: "ledger down"}},
		}))
	}

	recent, err := m.RunStore().Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "run-3", recent[0].RunID)
	assert.Equal(t, "run-2", recent[1].RunID)
	assert.True(t, recent[0].TotalPaid.Equal(d("100")))
	require.Len(t, recent[0].Errors, 1)
	assert.Equal(t, "ledger down", recent[0].Errors[0].Error)
}
