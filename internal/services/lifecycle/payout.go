package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bobmcallan/accrue/internal/interfaces"
	"github.com/bobmcallan/accrue/internal/models"
	"github.com/bobmcallan/accrue/internal/services/payout"
)

// systemActor is recorded as the author of rate changes made without an admin.
const systemActor = "system"

// ProcessPayout pays the next due period of an active investment.
//
// The period is reserved in the payout ledger before the credit, keyed by
// investment and due date, and the credit carries the same key. A run that
// dies between credit and commit leaves a scheduled reservation that the next
// attempt re-credits under the same key and then completes, so a period is
// never paid twice.
func (s *Service) ProcessPayout(ctx context.Context, id string) (*models.PayoutRecord, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	inv, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	due, err := payout.NextPayoutDate(inv)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if due.After(now) {
		return nil, fmt.Errorf("next payout %s: %w", due.Format("2006-01-02"), models.ErrPayoutNotDue)
	}

	periodKey := models.PeriodKey(inv.ID, due)
	amount := payout.PayoutAmount(inv, due)
	rec, created, err := s.storage.PayoutStore().Reserve(ctx, &models.PayoutRecord{
		ID:               uuid.New().String(),
		InvestmentID:     inv.ID,
		PeriodKey:        periodKey,
		Amount:           amount,
		PrincipalPortion: decimal.Zero,
		InterestPortion:  amount,
		Type:             models.PayoutTypeInterest,
		ScheduledDate:    due,
		Status:           models.PayoutStatusScheduled,
		CreatedAt:        now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to reserve payout %s: %w", periodKey, err)
	}
	if rec.Status == models.PayoutStatusCompleted {
		return rec, nil
	}
	if !created {
		s.logger.Info().
			Str("investment_id", inv.ID).
			Str("period", periodKey).
			Msg("Resuming scheduled payout")
	}

	ledgerCtx := interfaces.WithIdempotencyKey(ctx, periodKey)
	if rec.Amount.IsPositive() {
		if _, err := s.ledger.Credit(ledgerCtx, inv.PayoutAccount(), rec.Amount, inv.Currency); err != nil {
			s.metrics.LedgerFailure("credit")
			return nil, fmt.Errorf("%w: %w", models.ErrLedgerCreditFailed, err)
		}
	}

	processed := now
	rec.Status = models.PayoutStatusCompleted
	rec.ProcessedDate = &processed

	paidThrough := due
	inv.LastPayoutDate = &paidThrough
	inv.TotalPaidOut = inv.TotalPaidOut.Add(rec.Amount)
	inv.TermPaidOut = inv.TermPaidOut.Add(rec.Amount)
	inv.UpdatedAt = now

	if err := s.storage.InvestmentStore().Commit(ctx, &interfaces.InvestmentUpdate{
		Investment: inv,
		Payouts:    []*models.PayoutRecord{rec},
	}); err != nil {
		// The reservation stays scheduled and the retry reuses the ledger key.
		s.logger.Warn().
			Str("investment_id", inv.ID).
			Str("period", periodKey).
			Err(err).
			Msg("Payout credited but not committed, will resume on next attempt")
		return nil, fmt.Errorf("failed to commit payout: %w", err)
	}

	s.metrics.Transition("payout", inv.Status)
	s.logger.Info().
		Str("investment_id", inv.ID).
		Str("period", periodKey).
		Str("amount", rec.Amount.String()).
		Msg("Payout processed")
	s.notify(ctx, inv.UserID, "Payout received",
		fmt.Sprintf("%s %s interest was paid to your account.", rec.Amount.StringFixed(2), inv.Currency),
		models.NotifyPayout)

	return rec, nil
}

// Mature closes the term of an active investment whose final payout has been
// made. Auto-renewing investments start a new term at the old maturity date
// with a freshly resolved rate; others have their principal returned and move
// to matured.
func (s *Service) Mature(ctx context.Context, id string) (*models.Investment, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	inv, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.Status != models.StatusActive {
		return nil, fmt.Errorf("mature %s investment: %w", inv.Status, models.ErrInvalidStateTransition)
	}
	now := s.clock.Now()
	if now.Before(inv.MaturityDate) {
		return nil, fmt.Errorf("mature before %s: %w", inv.MaturityDate.Format("2006-01-02"), models.ErrInvalidStateTransition)
	}
	if !payout.PaidThroughMaturity(inv) {
		return nil, fmt.Errorf("mature before final payout: %w", models.ErrPayoutNotDue)
	}

	if inv.AutoRenew {
		renewed, err := s.renew(ctx, inv, now)
		if err == nil {
			return renewed, nil
		}
		if !errors.Is(err, models.ErrPlanInactive) && !errors.Is(err, models.ErrInvalidTerm) {
			return nil, err
		}
		s.logger.Info().
			Str("investment_id", inv.ID).
			Err(err).
			Msg("Auto-renew not possible, returning principal")
	}

	return s.closeTerm(ctx, inv, now)
}

// renew starts a new term. No money moves: the principal stays invested.
// TotalPaidOut carries across terms; TermPaidOut restarts.
func (s *Service) renew(ctx context.Context, inv *models.Investment, now time.Time) (*models.Investment, error) {
	plan, err := s.storage.PlanStore().GetPlan(ctx, inv.PlanID)
	if err != nil {
		return nil, fmt.Errorf("renew: %w", err)
	}
	if !plan.Active {
		return nil, fmt.Errorf("renew into plan %s: %w", plan.ID, models.ErrPlanInactive)
	}
	if !plan.AcceptsTerm(inv.TermMonths) {
		return nil, fmt.Errorf("renew for %d months: %w", inv.TermMonths, models.ErrInvalidTerm)
	}
	rate, err := s.rates.ResolveRate(ctx, plan.ID, inv.UserID, inv.Principal)
	if err != nil {
		return nil, fmt.Errorf("renew: %w", err)
	}

	update := &interfaces.InvestmentUpdate{Investment: inv}
	if !rate.Equal(inv.EffectiveRate) {
		update.RateChanges = append(update.RateChanges, &models.RateChange{
			ID:           uuid.New().String(),
			InvestmentID: inv.ID,
			OldRate:      inv.EffectiveRate,
			NewRate:      rate,
			ChangedBy:    systemActor,
			Reason:       "rate resolved at renewal",
			ChangedAt:    now,
		})
		inv.EffectiveRate = rate
	}

	inv.StartDate = inv.MaturityDate
	inv.MaturityDate = models.AddMonths(inv.StartDate, inv.TermMonths)
	inv.LastPayoutDate = nil
	inv.TermPaidOut = decimal.Zero
	inv.ProjectedReturn = payout.ProjectedReturn(inv.Principal, inv.EffectiveRate, inv.TermMonths)
	inv.Renewals++
	inv.UpdatedAt = now

	if err := s.storage.InvestmentStore().Commit(ctx, update); err != nil {
		return nil, fmt.Errorf("failed to commit renewal: %w", err)
	}

	s.metrics.Transition("renew", inv.Status)
	s.logger.Info().
		Str("investment_id", inv.ID).
		Int("renewals", inv.Renewals).
		Str("rate", inv.EffectiveRate.String()).
		Time("maturity_date", inv.MaturityDate).
		Msg("Investment renewed")
	s.notify(ctx, inv.UserID, "Investment renewed",
		fmt.Sprintf("Your investment renewed for %d months at %s%%.", inv.TermMonths, inv.EffectiveRate.String()),
		models.NotifyMatured)

	return inv.Clone(), nil
}

// closeTerm credits the principal back and moves the investment to matured.
func (s *Service) closeTerm(ctx context.Context, inv *models.Investment, now time.Time) (*models.Investment, error) {
	principal := inv.Principal
	account := inv.PayoutAccount()
	ledgerCtx := interfaces.WithIdempotencyKey(ctx, attemptKey(inv.ID, "principal"))
	if principal.IsPositive() {
		if _, err := s.ledger.Credit(ledgerCtx, account, principal, inv.Currency); err != nil {
			s.metrics.LedgerFailure("credit")
			return nil, fmt.Errorf("%w: %w", models.ErrLedgerCreditFailed, err)
		}
	}

	processed := now
	update := &interfaces.InvestmentUpdate{
		Investment: inv,
		Payouts: []*models.PayoutRecord{{
			ID:               uuid.New().String(),
			InvestmentID:     inv.ID,
			Amount:           principal,
			PrincipalPortion: principal,
			InterestPortion:  decimal.Zero,
			Type:             models.PayoutTypePrincipal,
			ScheduledDate:    inv.MaturityDate,
			ProcessedDate:    &processed,
			Status:           models.PayoutStatusCompleted,
			CreatedAt:        now,
		}},
	}

	inv.Principal = decimal.Zero
	inv.Status = models.StatusMatured
	inv.MaturedAt = &processed
	inv.UpdatedAt = now

	if err := s.storage.InvestmentStore().Commit(ctx, update); err != nil {
		s.compensate(ledgerCtx, "debit", inv, account, principal)
		return nil, fmt.Errorf("failed to commit maturity: %w", err)
	}

	s.metrics.Transition("mature", inv.Status)
	s.logger.Info().
		Str("investment_id", inv.ID).
		Str("principal", principal.String()).
		Str("total_paid_out", inv.TotalPaidOut.String()).
		Msg("Investment matured")
	s.notify(ctx, inv.UserID, "Investment matured",
		fmt.Sprintf("%s %s principal was returned to your account.", principal.StringFixed(2), inv.Currency),
		models.NotifyMatured)

	return inv.Clone(), nil
}
