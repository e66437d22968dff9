package payout

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/bobmcallan/accrue/internal/models"
)

// GeneratePreviewSchedule quotes every payout of a prospective investment.
// It walks the same date and amount rules used for live payouts; the final
// entry also returns the principal, leaving a running balance of zero.
func GeneratePreviewSchedule(req models.PreviewRequest) ([]models.PreviewEntry, error) {
	if !req.Principal.IsPositive() {
		return nil, fmt.Errorf("%w: principal must be positive", models.ErrInvalidAmount)
	}
	if req.TermMonths <= 0 {
		return nil, fmt.Errorf("%w: term must be positive", models.ErrInvalidTerm)
	}
	if req.Rate.IsNegative() {
		return nil, fmt.Errorf("rate must not be negative")
	}
	if _, err := models.ParsePayoutFrequency(string(req.Frequency)); err != nil {
		return nil, err
	}

	inv := &models.Investment{
		Principal:       req.Principal,
		EffectiveRate:   req.Rate,
		TermMonths:      req.TermMonths,
		Status:          models.StatusActive,
		StartDate:       req.StartDate,
		MaturityDate:    models.AddMonths(req.StartDate, req.TermMonths),
		PayoutFrequency: req.Frequency,
	}

	var entries []models.PreviewEntry
	for period := 1; ; period++ {
		due, err := NextPayoutDate(inv)
		if err != nil {
			break
		}
		interest := PayoutAmount(inv, due)
		principal := decimal.Zero
		balance := req.Principal
		if !due.Before(inv.MaturityDate) {
			principal = req.Principal
			balance = decimal.Zero
		}

		entries = append(entries, models.PreviewEntry{
			Period:           period,
			Date:             due,
			PrincipalPortion: principal,
			InterestPortion:  interest,
			Total:            principal.Add(interest),
			RunningBalance:   balance,
		})

		d := due
		inv.LastPayoutDate = &d
	}
	return entries, nil
}

// TotalInterest sums the interest portions of a schedule.
func TotalInterest(entries []models.PreviewEntry) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.InterestPortion)
	}
	return total
}
