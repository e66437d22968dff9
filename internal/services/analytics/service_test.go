package analytics

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/accrue/internal/common"
	"github.com/bobmcallan/accrue/internal/interfaces"
	"github.com/bobmcallan/accrue/internal/models"
	"github.com/bobmcallan/accrue/internal/storage/memory"
)

type failingRate struct{}

func (failingRate) RiskFreeRate(context.Context) (decimal.Decimal, error) {
	return decimal.Zero, errors.New("feed down")
}

func seededStore(t *testing.T) *memory.Manager {
	t.Helper()
	ctx := context.Background()
	store := memory.NewManager()
	for _, p := range plans() {
		require.NoError(t, store.PlanStore().SavePlan(ctx, p))
	}
	for _, inv := range []*models.Investment{
		holding("a", "plan-fd", models.StatusActive, "10000", "6", 12),
		holding("b", "plan-bond", models.StatusActive, "30000", "8", 24),
		holding("x", "plan-fd", models.StatusActive, "99999", "9", 12),
	} {
		if inv.ID == "x" {
			inv.UserID = "u2"
		}
		require.NoError(t, store.InvestmentStore().Create(ctx, &interfaces.InvestmentUpdate{Investment: inv}))
	}
	return store
}

func TestServiceSummarize(t *testing.T) {
	store := seededStore(t)
	svc := NewService(store, StaticRiskFreeRate(d("2")), common.NewFixedClock(now), common.NewSilentLogger())

	s, err := svc.Summarize(context.Background(), "u1")
	require.NoError(t, err)

	assert.Equal(t, "u1", s.UserID)
	assert.Equal(t, 2, s.InvestmentCount)
	assert.True(t, s.TotalInvested.Equal(d("40000")))
	assert.True(t, s.RiskFreeRate.Equal(d("2")))
	assert.True(t, s.SharpeRatio.Equal(d("5.5")))
}

func TestServiceSummarizeWithoutRiskFreeRate(t *testing.T) {
	store := seededStore(t)
	svc := NewService(store, failingRate{}, common.NewFixedClock(now), common.NewSilentLogger())

	s, err := svc.Summarize(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, s.RiskFreeRate.IsZero())
	assert.True(t, s.SharpeRatio.Equal(d("7.5")))
}

func TestServiceSummarizeUnknownUser(t *testing.T) {
	svc := NewService(memory.NewManager(), nil, common.NewFixedClock(now), common.NewSilentLogger())

	s, err := svc.Summarize(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, models.RiskUnknown, s.RiskBand)
	assert.True(t, s.TotalInvested.IsZero())
}
