// Package analytics summarises a user's investments: totals, distributions,
// expected returns at the weighted rate and simple risk indicators.
package analytics

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bobmcallan/accrue/internal/models"
)

var (
	hundred = decimal.NewFromInt(100)

	daysPerYear     = decimal.NewFromInt(365)
	weeksPerYear    = decimal.NewFromInt(52)
	monthsPerYear   = decimal.NewFromInt(12)
	quartersPerYear = decimal.NewFromInt(4)
)

// Summarize aggregates a user's investments. Only active investments count
// toward holdings, rates and risk; pending ones are counted and nothing more.
// plans is keyed by plan ID; an investment whose plan is missing still counts
// toward totals but contributes no plan-derived figures.
func Summarize(userID string, investments []*models.Investment, plans map[string]*models.InvestmentPlan, riskFree decimal.Decimal, now time.Time) *models.PortfolioSummary {
	s := &models.PortfolioSummary{
		UserID:              userID,
		InvestmentCount:     len(investments),
		TotalInvested:       decimal.Zero,
		TotalPaidOut:        decimal.Zero,
		TotalProjectedValue: decimal.Zero,
		WeightedAverageRate: decimal.Zero,
		ByPlanType:          map[models.PlanType]models.Distribution{},
		ByRiskLevel:         map[int]models.Distribution{},
		ByTermBucket:        map[models.TermBucket]models.Distribution{},
		ByCurrency:          map[string]models.Distribution{},
		Returns: models.PeriodReturns{
			Daily: decimal.Zero, Weekly: decimal.Zero, Monthly: decimal.Zero,
			Quarterly: decimal.Zero, Yearly: decimal.Zero,
		},
		RiskScore:     decimal.Zero,
		RiskBand:      models.RiskUnknown,
		Volatility:    decimal.Zero,
		SharpeRatio:   decimal.Zero,
		DrawdownProxy: decimal.Zero,
		RiskFreeRate:  riskFree,
		GeneratedAt:   now,
	}

	var (
		rateAmount  = decimal.Zero // sum of rate x amount
		penaltyAmt  = decimal.Zero // sum of amount x penalty pct
		riskSum     = decimal.Zero
		volSum      = decimal.Zero
		withPlan    int
		activeRates []decimal.Decimal
	)

	for _, inv := range investments {
		s.TotalPaidOut = s.TotalPaidOut.Add(inv.TotalPaidOut)
		switch inv.Status {
		case models.StatusPending:
			s.PendingCount++
			continue
		case models.StatusActive:
			s.ActiveCount++
		default:
			continue
		}

		amount := inv.Principal
		s.TotalInvested = s.TotalInvested.Add(amount)
		s.TotalProjectedValue = s.TotalProjectedValue.Add(inv.ProjectedReturn)
		rateAmount = rateAmount.Add(inv.EffectiveRate.Mul(amount))
		activeRates = append(activeRates, inv.EffectiveRate)

		s.ByTermBucket[inv.TermBucket] = addTo(s.ByTermBucket[inv.TermBucket], amount)
		s.ByCurrency[inv.Currency] = addTo(s.ByCurrency[inv.Currency], amount)

		plan, ok := plans[inv.PlanID]
		if !ok {
			continue
		}
		withPlan++
		s.ByPlanType[plan.Type] = addTo(s.ByPlanType[plan.Type], amount)
		s.ByRiskLevel[plan.RiskLevel] = addTo(s.ByRiskLevel[plan.RiskLevel], amount)
		riskSum = riskSum.Add(decimal.NewFromInt(int64(plan.RiskLevel)))
		volSum = volSum.Add(plan.VolatilityIndex)
		penaltyAmt = penaltyAmt.Add(amount.Mul(plan.EarlyWithdrawalPenalty))
	}

	if !s.TotalInvested.IsPositive() {
		return s
	}

	total := s.TotalInvested
	s.WeightedAverageRate = rateAmount.Div(total).Round(4)
	s.DrawdownProxy = penaltyAmt.Div(total).Round(4)

	yearly := total.Mul(s.WeightedAverageRate).Div(hundred)
	s.Returns = models.PeriodReturns{
		Daily:     yearly.Div(daysPerYear).Round(2),
		Weekly:    yearly.Div(weeksPerYear).Round(2),
		Monthly:   yearly.Div(monthsPerYear).Round(2),
		Quarterly: yearly.Div(quartersPerYear).Round(2),
		Yearly:    yearly.Round(2),
	}

	if withPlan > 0 {
		n := decimal.NewFromInt(int64(withPlan))
		s.RiskScore = riskSum.Div(n).Round(2)
		s.RiskBand = models.RiskBandFor(s.RiskScore)
		s.Volatility = volSum.Div(n).Round(4)
	}

	if sd := stddev(activeRates); sd.IsPositive() {
		s.SharpeRatio = s.WeightedAverageRate.Sub(riskFree).Div(sd).Round(4)
	}

	percentages(s.ByPlanType, total)
	percentages(s.ByRiskLevel, total)
	percentages(s.ByTermBucket, total)
	percentages(s.ByCurrency, total)

	return s
}

func addTo(d models.Distribution, amount decimal.Decimal) models.Distribution {
	d.Count++
	d.Amount = d.Amount.Add(amount)
	return d
}

func percentages[K comparable](m map[K]models.Distribution, total decimal.Decimal) {
	for k, d := range m {
		d.Percentage = d.Amount.Div(total).Mul(hundred).Round(2)
		m[k] = d
	}
}

// stddev is the population standard deviation of rates.
func stddev(rates []decimal.Decimal) decimal.Decimal {
	if len(rates) < 2 {
		return decimal.Zero
	}
	n := decimal.NewFromInt(int64(len(rates)))
	mean := decimal.Sum(decimal.Zero, rates...).Div(n)
	variance := decimal.Zero
	for _, r := range rates {
		diff := r.Sub(mean)
		variance = variance.Add(diff.Mul(diff))
	}
	v, _ := variance.Div(n).Float64()
	return decimal.NewFromFloat(math.Sqrt(v))
}
