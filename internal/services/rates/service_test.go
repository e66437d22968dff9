package rates

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/accrue/internal/common"
	"github.com/bobmcallan/accrue/internal/models"
	"github.com/bobmcallan/accrue/internal/storage/memory"
)

func newTestService(t *testing.T) (*Service, *memory.Manager, *common.FixedClock) {
	t.Helper()
	store := memory.NewManager()
	require.NoError(t, store.PlanStore().SavePlan(context.Background(), tieredPlan()))
	clock := common.NewFixedClock(now)
	return NewService(store, clock, common.NewSilentLogger()), store, clock
}

func TestResolveRatePlanErrors(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.ResolveRate(ctx, "missing", "u1", d("100"))
	assert.ErrorIs(t, err, models.ErrPlanNotFound)

	inactive := tieredPlan()
	inactive.ID = "plan-old"
	inactive.Active = false
	require.NoError(t, store.PlanStore().SavePlan(ctx, inactive))

	_, err = svc.ResolveRate(ctx, "plan-old", "u1", d("100"))
	assert.ErrorIs(t, err, models.ErrPlanInactive)
}

func TestResolveRateUsesStoredOverrides(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.SetOverride(ctx, &models.RateOverride{
		UserID:        "u1",
		PlanID:        "plan-fd",
		RateType:      models.RateTypeBonus,
		Rate:          d("0.5"),
		EffectiveFrom: now.AddDate(0, 0, -1),
		CreatedBy:     "admin",
	})
	require.NoError(t, err)

	rate, err := svc.ResolveRate(ctx, "plan-fd", "u1", d("8000"))
	require.NoError(t, err)
	assert.True(t, rate.Equal(d("6.5")), "got %s", rate)

	// A different user only gets the tier rate
	rate, err = svc.ResolveRate(ctx, "plan-fd", "u2", d("8000"))
	require.NoError(t, err)
	assert.True(t, rate.Equal(d("6")), "got %s", rate)
}

func TestSetOverrideClosesPreviousInSameScope(t *testing.T) {
	svc, store, clock := newTestService(t)
	ctx := context.Background()

	first, err := svc.SetOverride(ctx, &models.RateOverride{PlanID: "plan-fd", RateType: models.RateTypeBonus, Rate: d("1"), CreatedBy: "admin"})
	require.NoError(t, err)

	clock.Advance(24 * time.Hour)
	second, err := svc.SetOverride(ctx, &models.RateOverride{PlanID: "plan-fd", RateType: models.RateTypeBonus, Rate: d("2"), CreatedBy: "admin"})
	require.NoError(t, err)

	old, err := store.RateOverrideStore().Get(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, old.Active)
	require.NotNil(t, old.EffectiveTo)
	assert.True(t, old.EffectiveTo.Equal(second.EffectiveFrom))

	active, err := store.RateOverrideStore().QueryActive(ctx, "anyone", "plan-fd", clock.Now())
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, second.ID, active[0].ID)
}

func TestSetOverrideValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	before := now.Add(-time.Hour)

	tests := []struct {
		name string
		o    *models.RateOverride
	}{
		{"bad type", &models.RateOverride{RateType: "DISCOUNT", Rate: d("1")}},
		{"negative override", &models.RateOverride{RateType: models.RateTypeOverride, Rate: d("-1")}},
		{"window reversed", &models.RateOverride{RateType: models.RateTypeBonus, Rate: d("1"), EffectiveFrom: now, EffectiveTo: &before}},
		{"unknown plan", &models.RateOverride{PlanID: "nope", RateType: models.RateTypeBonus, Rate: d("1")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.SetOverride(ctx, tt.o)
			assert.Error(t, err)
		})
	}
}

func TestDeactivateOverride(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	o, err := svc.SetOverride(ctx, &models.RateOverride{UserID: "u1", RateType: models.RateTypeOverride, Rate: d("9"), EffectiveFrom: now.Add(-time.Hour)})
	require.NoError(t, err)

	rate, err := svc.ResolveRate(ctx, "plan-fd", "u1", d("8000"))
	require.NoError(t, err)
	assert.True(t, rate.Equal(d("9")))

	require.NoError(t, svc.DeactivateOverride(ctx, o.ID))

	rate, err = svc.ResolveRate(ctx, "plan-fd", "u1", d("8000"))
	require.NoError(t, err)
	assert.True(t, rate.Equal(d("6")))

	assert.ErrorIs(t, svc.DeactivateOverride(ctx, "missing"), models.ErrOverrideNotFound)
}
