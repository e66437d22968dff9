// Package rates resolves the effective annual rate for a placement from the
// plan base rate, its amount brackets and any time-windowed overrides.
package rates

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bobmcallan/accrue/internal/models"
)

// TierRate returns the rate of the first bracket containing amount, or the
// plan base rate when none does. Brackets are expected to be sorted and
// non-overlapping; when they overlap the first match still wins.
func TierRate(plan *models.InvestmentPlan, amount decimal.Decimal) decimal.Decimal {
	for _, b := range plan.Brackets {
		if b.Contains(amount) {
			return b.Rate
		}
	}
	return plan.BaseRate
}

// Resolve computes the effective rate for userID placing amount into plan at now.
// Overrides are filtered again here, so callers may pass an unfiltered list.
func Resolve(plan *models.InvestmentPlan, userID string, amount decimal.Decimal, overrides []*models.RateOverride, now time.Time) decimal.Decimal {
	rate := TierRate(plan, amount)

	winner := SelectOverride(overrides, userID, plan.ID, now)
	if winner == nil {
		return rate
	}
	if winner.RateType == models.RateTypeBonus {
		return rate.Add(winner.Rate)
	}
	return winner.Rate
}

// SelectOverride picks the applicable override: most specific scope first,
// then highest rate, then most recently created. Returns nil when none apply.
func SelectOverride(overrides []*models.RateOverride, userID, planID string, now time.Time) *models.RateOverride {
	var candidates []*models.RateOverride
	for _, o := range overrides {
		if o == nil || !o.Active || !o.Matches(userID, planID) || !o.EffectiveAt(now) {
			continue
		}
		candidates = append(candidates, o)
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Specificity() != b.Specificity() {
			return a.Specificity() > b.Specificity()
		}
		if !a.Rate.Equal(b.Rate) {
			return a.Rate.GreaterThan(b.Rate)
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
	return candidates[0]
}
