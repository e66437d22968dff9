package analytics

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/bobmcallan/accrue/internal/models"
)

var now = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func plans() map[string]*models.InvestmentPlan {
	return map[string]*models.InvestmentPlan{
		"plan-fd": {
			ID: "plan-fd", Type: models.PlanTypeFixedDeposit, RiskLevel: 1,
			VolatilityIndex: d("0.1"), EarlyWithdrawalPenalty: d("2"),
		},
		"plan-bond": {
			ID: "plan-bond", Type: models.PlanTypeBond, RiskLevel: 3,
			VolatilityIndex: d("0.3"), EarlyWithdrawalPenalty: d("4"),
		},
	}
}

func holding(id, planID string, status models.InvestmentStatus, principal, rate string, term int) *models.Investment {
	return &models.Investment{
		ID:              id,
		UserID:          "u1",
		PlanID:          planID,
		Principal:       d(principal),
		Currency:        "USD",
		EffectiveRate:   d(rate),
		TermMonths:      term,
		TermBucket:      models.TermBucketFor(term),
		Status:          status,
		ProjectedReturn: d(principal),
		TotalPaidOut:    decimal.Zero,
	}
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize("u1", nil, nil, d("2"), now)

	assert.Equal(t, 0, s.InvestmentCount)
	assert.True(t, s.TotalInvested.IsZero())
	assert.True(t, s.WeightedAverageRate.IsZero())
	assert.True(t, s.Returns.Yearly.IsZero())
	assert.True(t, s.SharpeRatio.IsZero())
	assert.True(t, s.DrawdownProxy.IsZero())
	assert.True(t, s.RiskScore.IsZero())
	assert.Equal(t, models.RiskUnknown, s.RiskBand)
	assert.Empty(t, s.ByPlanType)
	assert.Equal(t, now, s.GeneratedAt)
}

func TestSummarizeOnlyPendingIsEmptyHoldings(t *testing.T) {
	s := Summarize("u1", []*models.Investment{
		holding("p", "plan-fd", models.StatusPending, "5000", "6", 12),
	}, plans(), d("2"), now)

	assert.Equal(t, 1, s.PendingCount)
	assert.Equal(t, 0, s.ActiveCount)
	assert.True(t, s.TotalInvested.IsZero())
	assert.Equal(t, models.RiskUnknown, s.RiskBand)
}

func TestSummarizeMixedHoldings(t *testing.T) {
	withdrawn := holding("w", "plan-fd", models.StatusWithdrawn, "0", "6", 12)
	withdrawn.TotalPaidOut = d("120")

	s := Summarize("u1", []*models.Investment{
		holding("a", "plan-fd", models.StatusActive, "10000", "6", 12),
		holding("b", "plan-bond", models.StatusActive, "30000", "8", 24),
		holding("c", "plan-bond", models.StatusPending, "5000", "8", 24),
		withdrawn,
	}, plans(), d("2"), now)

	assert.Equal(t, 4, s.InvestmentCount)
	assert.Equal(t, 2, s.ActiveCount)
	assert.Equal(t, 1, s.PendingCount)
	assert.True(t, s.TotalInvested.Equal(d("40000")))
	assert.True(t, s.TotalPaidOut.Equal(d("120")))

	assert.True(t, s.WeightedAverageRate.Equal(d("7.5")), "weighted %s", s.WeightedAverageRate)
	assert.True(t, s.Returns.Yearly.Equal(d("3000")))
	assert.True(t, s.Returns.Quarterly.Equal(d("750")))
	assert.True(t, s.Returns.Monthly.Equal(d("250")))
	assert.True(t, s.Returns.Weekly.Equal(d("57.69")), "weekly %s", s.Returns.Weekly)
	assert.True(t, s.Returns.Daily.Equal(d("8.22")), "daily %s", s.Returns.Daily)

	assert.True(t, s.RiskScore.Equal(d("2")))
	assert.Equal(t, models.RiskLow, s.RiskBand)
	assert.True(t, s.Volatility.Equal(d("0.2")))
	assert.True(t, s.DrawdownProxy.Equal(d("3.5")), "drawdown %s", s.DrawdownProxy)
	assert.True(t, s.SharpeRatio.Equal(d("5.5")), "sharpe %s", s.SharpeRatio)

	assert.Equal(t, 1, s.ByPlanType[models.PlanTypeFixedDeposit].Count)
	assert.True(t, s.ByPlanType[models.PlanTypeFixedDeposit].Percentage.Equal(d("25")))
	assert.True(t, s.ByPlanType[models.PlanTypeBond].Percentage.Equal(d("75")))
	assert.True(t, s.ByRiskLevel[3].Amount.Equal(d("30000")))
	assert.True(t, s.ByTermBucket[models.TermLong].Percentage.Equal(d("75")))
	assert.True(t, s.ByCurrency["USD"].Percentage.Equal(d("100")))
}

func TestSummarizeSingleRateHasNoSharpe(t *testing.T) {
	s := Summarize("u1", []*models.Investment{
		holding("a", "plan-fd", models.StatusActive, "10000", "6", 12),
		holding("b", "plan-fd", models.StatusActive, "5000", "6", 6),
	}, plans(), d("2"), now)

	assert.True(t, s.SharpeRatio.IsZero())
	assert.Equal(t, models.RiskVeryLow, s.RiskBand)
}

func TestSummarizeMissingPlan(t *testing.T) {
	s := Summarize("u1", []*models.Investment{
		holding("a", "plan-gone", models.StatusActive, "10000", "6", 12),
	}, plans(), d("2"), now)

	assert.True(t, s.TotalInvested.Equal(d("10000")))
	assert.True(t, s.WeightedAverageRate.Equal(d("6")))
	assert.Equal(t, models.RiskUnknown, s.RiskBand)
	assert.Empty(t, s.ByPlanType)
}
