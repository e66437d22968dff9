package lifecycle

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bobmcallan/accrue/internal/interfaces"
	"github.com/bobmcallan/accrue/internal/models"
	"github.com/bobmcallan/accrue/internal/services/payout"
)

// Approve activates a pending investment and debits the disbursement account.
// The term starts at approval. If the debit fails the investment stays pending.
func (s *Service) Approve(ctx context.Context, req models.ApproveRequest) (*models.Investment, error) {
	unlock := s.locks.Lock(req.InvestmentID)
	defer unlock()

	inv, err := s.load(ctx, req.InvestmentID)
	if err != nil {
		return nil, err
	}
	if inv.Status != models.StatusPending {
		return nil, fmt.Errorf("approve %s investment: %w", inv.Status, models.ErrInvalidStateTransition)
	}
	if req.ApprovedBy == "" {
		return nil, fmt.Errorf("approver is required")
	}

	now := s.clock.Now()
	update := &interfaces.InvestmentUpdate{Investment: inv}

	if req.RateOverride != nil {
		if req.RateOverride.IsNegative() {
			return nil, fmt.Errorf("override rate must not be negative")
		}
		if !req.RateOverride.Equal(inv.EffectiveRate) {
			update.RateChanges = append(update.RateChanges, &models.RateChange{
				ID:           uuid.New().String(),
				InvestmentID: inv.ID,
				OldRate:      inv.EffectiveRate,
				NewRate:      *req.RateOverride,
				ChangedBy:    req.ApprovedBy,
				Reason:       approvalReason(req.Reason),
				ChangedAt:    now,
			})
			inv.EffectiveRate = *req.RateOverride
		}
	}

	account := req.DisbursementAccountID
	if account == "" {
		account = inv.SourceAccountID
	}

	inv.Status = models.StatusActive
	inv.ApprovedBy = req.ApprovedBy
	inv.ApprovedAt = &now
	inv.DisbursementAccountID = account
	inv.StartDate = now
	inv.MaturityDate = models.AddMonths(now, inv.TermMonths)
	inv.ProjectedReturn = payout.ProjectedReturn(inv.Principal, inv.EffectiveRate, inv.TermMonths)
	inv.UpdatedAt = now

	ledgerCtx := interfaces.WithIdempotencyKey(ctx, attemptKey(inv.ID, "fund"))
	if _, err := s.ledger.Debit(ledgerCtx, account, inv.Principal, inv.Currency); err != nil {
		s.metrics.LedgerFailure("debit")
		s.logger.Warn().
			Str("investment_id", inv.ID).
			Str("account", account).
			Err(err).
			Msg("Approval debit failed, investment left pending")
		return nil, fmt.Errorf("%w: %w", models.ErrLedgerDebitFailed, err)
	}

	if err := s.storage.InvestmentStore().Commit(ctx, update); err != nil {
		s.compensate(ledgerCtx, "credit", inv, account, inv.Principal)
		return nil, fmt.Errorf("failed to commit approval: %w", err)
	}

	s.metrics.Transition("approve", inv.Status)
	s.logger.Info().
		Str("investment_id", inv.ID).
		Str("approved_by", req.ApprovedBy).
		Str("rate", inv.EffectiveRate.String()).
		Msg("Investment approved")
	s.notify(ctx, inv.UserID, "Investment approved",
		fmt.Sprintf("Your %s %s investment is now active at %s%%.", inv.Principal.StringFixed(2), inv.Currency, inv.EffectiveRate.String()),
		models.NotifyInvestmentApproved)

	return inv.Clone(), nil
}

func approvalReason(reason string) string {
	if reason == "" {
		return "rate set at approval"
	}
	return reason
}

// Reject closes a pending investment. No money moves.
func (s *Service) Reject(ctx context.Context, id, rejectedBy, reason string) (*models.Investment, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	inv, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.Status != models.StatusPending {
		return nil, fmt.Errorf("reject %s investment: %w", inv.Status, models.ErrInvalidStateTransition)
	}

	now := s.clock.Now()
	inv.Status = models.StatusRejected
	inv.RejectedBy = rejectedBy
	inv.RejectedAt = &now
	inv.RejectionReason = reason
	inv.UpdatedAt = now

	if err := s.storage.InvestmentStore().Commit(ctx, &interfaces.InvestmentUpdate{Investment: inv}); err != nil {
		return nil, fmt.Errorf("failed to commit rejection: %w", err)
	}

	s.metrics.Transition("reject", inv.Status)
	s.logger.Info().
		Str("investment_id", inv.ID).
		Str("rejected_by", rejectedBy).
		Str("reason", reason).
		Msg("Investment rejected")
	s.notify(ctx, inv.UserID, "Investment rejected", reason, models.NotifyInvestmentRejected)

	return inv.Clone(), nil
}

// Withdraw removes principal from an active investment. A partial amount may
// not exceed the margin above the minimum balance, and one that leaves the
// principal on the floor becomes a full exit. The penalty-adjusted net is
// credited first; a failed credit leaves the investment unchanged.
func (s *Service) Withdraw(ctx context.Context, req models.WithdrawRequest) (*models.WithdrawalResult, error) {
	unlock := s.locks.Lock(req.InvestmentID)
	defer unlock()

	inv, err := s.load(ctx, req.InvestmentID)
	if err != nil {
		return nil, err
	}
	if inv.Status != models.StatusActive {
		return nil, fmt.Errorf("withdraw from %s investment: %w", inv.Status, models.ErrInvalidStateTransition)
	}
	if inv.UserID != req.UserID {
		return nil, fmt.Errorf("withdraw from investment %s: %w", inv.ID, models.ErrUnauthorized)
	}

	full := req.Full
	gross := req.Amount
	if !full {
		if !gross.IsPositive() {
			return nil, fmt.Errorf("%w: withdrawal amount must be positive", models.ErrInvalidAmount)
		}
		if avail := inv.AvailableForWithdrawal(); gross.GreaterThan(avail) {
			return nil, fmt.Errorf("%w: requested %s, available above floor %s", models.ErrInsufficientPrincipal, gross, avail)
		}
		if inv.Principal.Sub(gross).LessThanOrEqual(inv.MinimumBalance) {
			full = true
		}
	}
	if full {
		gross = inv.Principal
	}

	plan, err := s.storage.PlanStore().GetPlan(ctx, inv.PlanID)
	if err != nil {
		return nil, fmt.Errorf("withdraw: %w", err)
	}

	now := s.clock.Now()
	quote := s.penalty.Quote(plan, inv, gross, now)

	dest := req.DestinationAccountID
	if dest == "" {
		dest = inv.PayoutAccount()
	}

	ledgerCtx := interfaces.WithIdempotencyKey(ctx, attemptKey(inv.ID, "withdraw"))
	if quote.NetAmount.IsPositive() {
		if _, err := s.ledger.Credit(ledgerCtx, dest, quote.NetAmount, inv.Currency); err != nil {
			s.metrics.LedgerFailure("credit")
			return nil, fmt.Errorf("%w: %w", models.ErrLedgerCreditFailed, err)
		}
	}

	// Only what was withheld from gross is charged; a clamped excess is left for review.
	charged := gross.Sub(quote.NetAmount)
	if quote.NeedsReview {
		s.metrics.NeedsReview()
		s.logger.Warn().
			Str("investment_id", inv.ID).
			Str("gross", gross.String()).
			Str("total_penalty", quote.TotalPenalty.String()).
			Str("charged", charged.String()).
			Str("uncharged", quote.TotalPenalty.Sub(charged).String()).
			Msg("Withdrawal penalty exceeds amount, net clamped to zero for review")
	}

	update := &interfaces.InvestmentUpdate{Investment: inv}
	var penaltyRec *models.PayoutRecord
	if charged.IsPositive() {
		processed := now
		principalPart := decimal.Min(quote.PenaltyAmount, charged)
		penaltyRec = &models.PayoutRecord{
			ID:               uuid.New().String(),
			InvestmentID:     inv.ID,
			Amount:           charged.Neg(),
			PrincipalPortion: principalPart.Neg(),
			InterestPortion:  charged.Sub(principalPart).Neg(),
			Type:             models.PayoutTypePenalty,
			ScheduledDate:    now,
			ProcessedDate:    &processed,
			Status:           models.PayoutStatusCompleted,
			CreatedAt:        now,
		}
		update.Payouts = append(update.Payouts, penaltyRec)
	}

	inv.Principal = inv.Principal.Sub(gross)
	if full {
		inv.Status = models.StatusWithdrawn
		inv.WithdrawnAt = &now
	}
	inv.UpdatedAt = now

	if err := s.storage.InvestmentStore().Commit(ctx, update); err != nil {
		if quote.NetAmount.IsPositive() {
			s.compensate(ledgerCtx, "debit", inv, dest, quote.NetAmount)
		}
		return nil, fmt.Errorf("failed to commit withdrawal: %w", err)
	}

	s.metrics.Transition("withdraw", inv.Status)
	s.logger.Info().
		Str("investment_id", inv.ID).
		Str("gross", gross.String()).
		Str("penalty", charged.String()).
		Str("net", quote.NetAmount.String()).
		Bool("full_exit", full).
		Msg("Withdrawal processed")
	s.notify(ctx, inv.UserID, "Withdrawal processed",
		fmt.Sprintf("%s %s was credited after a %s penalty.", quote.NetAmount.StringFixed(2), inv.Currency, charged.StringFixed(2)),
		models.NotifyWithdrawal)

	return &models.WithdrawalResult{
		Investment:    inv.Clone(),
		Gross:         gross,
		Quote:         quote,
		PenaltyRecord: penaltyRec,
		FullExit:      full,
		NeedsReview:   quote.NeedsReview,
		ProcessedAt:   now,
	}, nil
}

// AdjustRate changes the effective rate of a pending or active investment and
// records the change. The projected return is recomputed from the new rate.
func (s *Service) AdjustRate(ctx context.Context, id string, newRate decimal.Decimal, changedBy, reason string) (*models.Investment, error) {
	if newRate.IsNegative() {
		return nil, fmt.Errorf("rate must not be negative")
	}
	if changedBy == "" || reason == "" {
		return nil, fmt.Errorf("rate changes require an actor and a reason")
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	inv, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.Status.Terminal() {
		return nil, fmt.Errorf("adjust rate of %s investment: %w", inv.Status, models.ErrInvalidStateTransition)
	}
	if newRate.Equal(inv.EffectiveRate) {
		return inv, nil
	}

	now := s.clock.Now()
	change := &models.RateChange{
		ID:           uuid.New().String(),
		InvestmentID: inv.ID,
		OldRate:      inv.EffectiveRate,
		NewRate:      newRate,
		ChangedBy:    changedBy,
		Reason:       reason,
		ChangedAt:    now,
	}
	inv.EffectiveRate = newRate
	inv.ProjectedReturn = payout.ProjectedReturn(inv.Principal, newRate, inv.TermMonths)
	inv.UpdatedAt = now

	if err := s.storage.InvestmentStore().Commit(ctx, &interfaces.InvestmentUpdate{
		Investment:  inv,
		RateChanges: []*models.RateChange{change},
	}); err != nil {
		return nil, fmt.Errorf("failed to commit rate change: %w", err)
	}

	s.metrics.Transition("adjust_rate", inv.Status)
	s.logger.Info().
		Str("investment_id", inv.ID).
		Str("old_rate", change.OldRate.String()).
		Str("new_rate", change.NewRate.String()).
		Str("changed_by", changedBy).
		Msg("Effective rate changed")
	s.notify(ctx, inv.UserID, "Rate updated",
		fmt.Sprintf("Your investment rate changed from %s%% to %s%%.", change.OldRate, change.NewRate),
		models.NotifyRateChanged)

	return inv.Clone(), nil
}
