package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RiskBand is the qualitative label for an average risk level.
type RiskBand string

const (
	RiskUnknown  RiskBand = "unknown"
	RiskVeryLow  RiskBand = "very_low"
	RiskLow      RiskBand = "low"
	RiskModerate RiskBand = "moderate"
	RiskHigh     RiskBand = "high"
	RiskVeryHigh RiskBand = "very_high"
)

// RiskBandFor maps an average 1-5 risk level to its band.
func RiskBandFor(avg decimal.Decimal) RiskBand {
	switch {
	case avg.LessThanOrEqual(decimal.Zero):
		return RiskUnknown
	case avg.LessThan(decimal.NewFromFloat(1.5)):
		return RiskVeryLow
	case avg.LessThan(decimal.NewFromFloat(2.5)):
		return RiskLow
	case avg.LessThan(decimal.NewFromFloat(3.5)):
		return RiskModerate
	case avg.LessThan(decimal.NewFromFloat(4.5)):
		return RiskHigh
	default:
		return RiskVeryHigh
	}
}

// Distribution is one slice of a holdings breakdown.
type Distribution struct {
	Count      int             `json:"count"`
	Amount     decimal.Decimal `json:"amount"`
	Percentage decimal.Decimal `json:"percentage"` // share of total amount, 0-100
}

// PeriodReturns are expected earnings on current holdings at the weighted rate.
type PeriodReturns struct {
	Daily     decimal.Decimal `json:"daily"`
	Weekly    decimal.Decimal `json:"weekly"`
	Monthly   decimal.Decimal `json:"monthly"`
	Quarterly decimal.Decimal `json:"quarterly"`
	Yearly    decimal.Decimal `json:"yearly"`
}

// PortfolioSummary aggregates a user's investments. All ratios are zero and
// RiskBand is "unknown" when the user holds nothing active.
type PortfolioSummary struct {
	UserID          string `json:"user_id"`
	InvestmentCount int    `json:"investment_count"`
	ActiveCount     int    `json:"active_count"`
	PendingCount    int    `json:"pending_count"`

	TotalInvested       decimal.Decimal `json:"total_invested"`
	TotalPaidOut        decimal.Decimal `json:"total_paid_out"`
	TotalProjectedValue decimal.Decimal `json:"total_projected_value"`
	WeightedAverageRate decimal.Decimal `json:"weighted_average_rate"`

	ByPlanType   map[PlanType]Distribution   `json:"by_plan_type"`
	ByRiskLevel  map[int]Distribution        `json:"by_risk_level"`
	ByTermBucket map[TermBucket]Distribution `json:"by_term_bucket"`
	ByCurrency   map[string]Distribution     `json:"by_currency"`

	Returns PeriodReturns `json:"returns"`

	RiskScore     decimal.Decimal `json:"risk_score"`
	RiskBand      RiskBand        `json:"risk_band"`
	Volatility    decimal.Decimal `json:"volatility"`
	SharpeRatio   decimal.Decimal `json:"sharpe_ratio"`
	DrawdownProxy decimal.Decimal `json:"drawdown_proxy"`
	RiskFreeRate  decimal.Decimal `json:"risk_free_rate"`

	GeneratedAt time.Time `json:"generated_at"`
}
