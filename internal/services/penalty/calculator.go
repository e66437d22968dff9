// Package penalty prices early withdrawals from active investments.
package penalty

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/bobmcallan/accrue/internal/interfaces"
	"github.com/bobmcallan/accrue/internal/models"
)

var (
	hundred = decimal.NewFromInt(100)
	half    = decimal.NewFromFloat(0.5)
)

// Compile-time interface check
var _ interfaces.PenaltyCalculator = Calculator{}

// Calculator implements PenaltyCalculator with Calculate.
type Calculator struct{}

// Quote prices withdrawing amount from inv at now.
func (Calculator) Quote(plan *models.InvestmentPlan, inv *models.Investment, amount decimal.Decimal, now time.Time) models.PenaltyQuote {
	return Calculate(plan, inv, amount, now)
}

// CompletionFraction is elapsed term as a fraction of the full term, clamped to [0, 1].
func CompletionFraction(start, maturity, now time.Time) decimal.Decimal {
	total := maturity.Sub(start)
	if total <= 0 {
		return decimal.NewFromInt(1)
	}
	elapsed := now.Sub(start)
	if elapsed <= 0 {
		return decimal.Zero
	}
	if elapsed >= total {
		return decimal.NewFromInt(1)
	}
	return decimal.NewFromInt(int64(elapsed)).Div(decimal.NewFromInt(int64(total)))
}

// Calculate applies the time-decayed penalty percentage to amount and forfeits
// half of the projected interest not yet paid in the current term. Net is
// clamped at zero and flagged for review when the penalty exceeds the amount.
func Calculate(plan *models.InvestmentPlan, inv *models.Investment, amount decimal.Decimal, now time.Time) models.PenaltyQuote {
	cf := CompletionFraction(inv.StartDate, inv.MaturityDate, now)
	adjustedPct := plan.EarlyWithdrawalPenalty.Mul(decimal.NewFromInt(1).Sub(cf))
	penaltyAmount := amount.Mul(adjustedPct).Div(hundred).Round(2)

	unrealised := inv.ProjectedReturn.Sub(inv.Principal).Sub(inv.TermPaidOut)
	lost := decimal.Max(decimal.Zero, unrealised.Mul(half)).Round(2)

	total := penaltyAmount.Add(lost)
	net := amount.Sub(total)
	review := false
	if net.IsNegative() {
		net = decimal.Zero
		review = true
	}

	return models.PenaltyQuote{
		WithdrawalAmount:   amount,
		CompletionFraction: cf,
		AdjustedPenaltyPct: adjustedPct,
		PenaltyAmount:      penaltyAmount,
		LostInterest:       lost,
		TotalPenalty:       total,
		NetAmount:          net,
		NeedsReview:        review,
	}
}
