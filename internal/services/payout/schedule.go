// Package payout computes payout dates and amounts, quotes payout schedules
// and runs the recurring batch that pays due investments.
package payout

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bobmcallan/accrue/internal/models"
)

var (
	hundred = decimal.NewFromInt(100)
	twelve  = decimal.NewFromInt(12)
)

// NextPayoutDate returns the date the next payout falls due. It is defined only
// for active investments. Periodic dates are counted from StartDate so month-end
// clamping never drifts, and the final period is cut short at MaturityDate.
// Returns models.ErrNoPayoutDue once the maturity payout has been made.
func NextPayoutDate(inv *models.Investment) (time.Time, error) {
	if inv.Status != models.StatusActive {
		return time.Time{}, fmt.Errorf("next payout for %s investment: %w", inv.Status, models.ErrInvalidStateTransition)
	}
	if PaidThroughMaturity(inv) {
		return time.Time{}, models.ErrNoPayoutDue
	}

	step := inv.PayoutFrequency.MonthsPerPeriod()
	if step == 0 {
		return inv.MaturityDate, nil
	}

	anchor := inv.StartDate
	if inv.LastPayoutDate != nil {
		anchor = *inv.LastPayoutDate
	}
	for k := 1; ; k++ {
		next := models.AddMonths(inv.StartDate, k*step)
		if !next.Before(inv.MaturityDate) {
			return inv.MaturityDate, nil
		}
		if next.After(anchor) {
			return next, nil
		}
	}
}

// PaidThroughMaturity reports whether the last payout reached the maturity date.
func PaidThroughMaturity(inv *models.Investment) bool {
	return inv.LastPayoutDate != nil && !inv.LastPayoutDate.Before(inv.MaturityDate)
}

// PayoutAmount returns the interest due on the given date. Periodic payouts pay
// simple interest for the whole months since the previous payout (at least one).
// At-maturity payouts pay the compounded gain over the full term.
func PayoutAmount(inv *models.Investment, due time.Time) decimal.Decimal {
	if inv.PayoutFrequency == models.FrequencyAtMaturity {
		return CompoundReturn(inv.Principal, inv.EffectiveRate, inv.TermMonths).Sub(inv.Principal).Round(2)
	}

	anchor := inv.StartDate
	if inv.LastPayoutDate != nil {
		anchor = *inv.LastPayoutDate
	}
	months := MonthsBetween(anchor, due)
	if months < 1 {
		months = 1
	}
	return PeriodicInterest(inv.Principal, inv.EffectiveRate, months)
}

// PeriodicInterest is principal x rate/12/100 x months, rounded to cents.
func PeriodicInterest(principal, rate decimal.Decimal, months int) decimal.Decimal {
	return principal.Mul(rate).Div(twelve).Div(hundred).Mul(decimal.NewFromInt(int64(months))).Round(2)
}

// ProjectedReturn is the value at maturity under simple interest:
// principal x (1 + rate/100 x years). Used for the creation-time projection.
//
// NOTE: at-maturity payouts use CompoundReturn instead. The two disagree for
// terms over one year; which one is authoritative is a product decision.
func ProjectedReturn(principal, rate decimal.Decimal, months int) decimal.Decimal {
	years := decimal.NewFromInt(int64(months)).Div(twelve)
	return principal.Mul(decimal.NewFromInt(1).Add(rate.Div(hundred).Mul(years))).Round(2)
}

// CompoundReturn is the value at maturity with annual compounding:
// principal x (1 + rate/100)^years.
func CompoundReturn(principal, rate decimal.Decimal, months int) decimal.Decimal {
	base := decimal.NewFromInt(1).Add(rate.Div(hundred))
	whole := months / 12
	factor := base.Pow(decimal.NewFromInt(int64(whole)))

	if rem := months % 12; rem > 0 {
		// Fractional-year growth factor, same approach as a standard amortization factor.
		b, _ := base.Float64()
		frac := math.Pow(b, float64(rem)/12)
		factor = factor.Mul(decimal.NewFromFloat(frac))
	}
	return principal.Mul(factor).Round(2)
}

// MonthsBetween counts whole calendar months from a to b. A month ending on the
// last day of a shorter month counts as whole, so Jan 31 to Feb 28 is one month.
func MonthsBetween(a, b time.Time) int {
	if b.Before(a) {
		return 0
	}
	y1, m1, d1 := a.Date()
	y2, m2, d2 := b.Date()
	months := (y2-y1)*12 + int(m2-m1)
	if d2 < d1 && d2 != lastDayOfMonth(b) {
		months--
	}
	return months
}

func lastDayOfMonth(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
}
