// Package lifecycle owns the investment state machine and every transition
// that moves money: creation, approval, withdrawal, payouts and maturity.
//
// Money-moving transitions call the ledger first and persist second. When the
// persist fails the ledger movement is reversed, so the investment and the
// owner's balance never disagree. Mutations are serialized per investment in
// process and guarded across processes by the stored version.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bobmcallan/accrue/internal/common"
	"github.com/bobmcallan/accrue/internal/interfaces"
	"github.com/bobmcallan/accrue/internal/metrics"
	"github.com/bobmcallan/accrue/internal/models"
	"github.com/bobmcallan/accrue/internal/services/payout"
)

// notifyTimeout bounds a single notification publish.
const notifyTimeout = 5 * time.Second

// Compile-time interface check
var _ interfaces.LifecycleService = (*Service)(nil)

// Service implements LifecycleService
type Service struct {
	storage  interfaces.StorageManager
	rates    interfaces.RateService
	ledger   interfaces.Ledger
	penalty  interfaces.PenaltyCalculator
	notifier interfaces.NotificationSink
	clock    interfaces.Clock
	metrics  *metrics.Metrics
	logger   *common.Logger

	locks *keyedMutex
}

// NewService creates a new lifecycle service. notifier and m may be nil.
func NewService(
	storage interfaces.StorageManager,
	rates interfaces.RateService,
	ledger interfaces.Ledger,
	penalty interfaces.PenaltyCalculator,
	notifier interfaces.NotificationSink,
	clock interfaces.Clock,
	m *metrics.Metrics,
	logger *common.Logger,
) *Service {
	return &Service{
		storage:  storage,
		rates:    rates,
		ledger:   ledger,
		penalty:  penalty,
		notifier: notifier,
		clock:    clock,
		metrics:  m,
		logger:   logger,
		locks:    newKeyedMutex(),
	}
}

// Create places money into a plan. Plans that require approval produce a
// pending investment with no money movement; otherwise the source account is
// debited and the investment is stored active.
func (s *Service) Create(ctx context.Context, req models.CreateInvestmentRequest) (*models.Investment, error) {
	if req.UserID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if req.SourceAccountID == "" {
		return nil, fmt.Errorf("source account is required")
	}

	plan, err := s.storage.PlanStore().GetPlan(ctx, req.PlanID)
	if err != nil {
		return nil, fmt.Errorf("create investment: %w", err)
	}
	if !plan.Active {
		return nil, fmt.Errorf("create investment in plan %s: %w", plan.ID, models.ErrPlanInactive)
	}

	if !req.Amount.IsPositive() || !plan.AcceptsAmount(req.Amount) {
		return nil, fmt.Errorf("%w: %s outside plan limits %s-%s", models.ErrInvalidAmount, req.Amount, plan.MinAmount, plan.MaxAmount)
	}

	term := req.TermMonths
	if term == 0 {
		term = plan.MinTermMonths
	}
	if !plan.AcceptsTerm(term) {
		return nil, fmt.Errorf("%w: %d months outside plan limits %d-%d", models.ErrInvalidTerm, term, plan.MinTermMonths, plan.MaxTermMonths)
	}

	freq := req.Frequency
	if freq == "" {
		freq = plan.DefaultFrequency
	}
	if _, err := models.ParsePayoutFrequency(string(freq)); err != nil {
		return nil, err
	}

	rate, err := s.rates.ResolveRate(ctx, plan.ID, req.UserID, req.Amount)
	if err != nil {
		return nil, fmt.Errorf("create investment: %w", err)
	}

	now := s.clock.Now()
	inv := &models.Investment{
		ID:              uuid.New().String(),
		UserID:          req.UserID,
		PlanID:          plan.ID,
		Principal:       req.Amount,
		Currency:        plan.Currency,
		BaseRate:        plan.BaseRate,
		EffectiveRate:   rate,
		TermMonths:      term,
		TermBucket:      models.TermBucketFor(term),
		StartDate:       now,
		MaturityDate:    models.AddMonths(now, term),
		TotalPaidOut:    decimal.Zero,
		TermPaidOut:     decimal.Zero,
		MinimumBalance:  req.Amount,
		ProjectedReturn: payout.ProjectedReturn(req.Amount, rate, term),
		PayoutFrequency: freq,
		AutoRenew:       req.AutoRenew,
		SourceAccountID: req.SourceAccountID,
		PayoutAccountID: req.PayoutAccountID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if plan.RequiresApproval {
		inv.Status = models.StatusPending
		if err := s.storage.InvestmentStore().Create(ctx, &interfaces.InvestmentUpdate{Investment: inv}); err != nil {
			return nil, fmt.Errorf("failed to store investment: %w", err)
		}
		s.metrics.Transition("create", inv.Status)
		s.logger.Info().
			Str("investment_id", inv.ID).
			Str("user_id", inv.UserID).
			Str("plan_id", inv.PlanID).
			Str("amount", inv.Principal.String()).
			Msg("Investment created, awaiting approval")
		s.notify(ctx, inv.UserID, "Investment submitted",
			fmt.Sprintf("Your %s %s investment is awaiting approval.", inv.Principal.StringFixed(2), inv.Currency),
			models.NotifyInvestmentCreated)
		return inv.Clone(), nil
	}

	inv.Status = models.StatusActive
	ledgerCtx := interfaces.WithIdempotencyKey(ctx, inv.ID+":fund")
	if _, err := s.ledger.Debit(ledgerCtx, inv.SourceAccountID, inv.Principal, inv.Currency); err != nil {
		s.metrics.LedgerFailure("debit")
		return nil, fmt.Errorf("%w: %w", models.ErrLedgerDebitFailed, err)
	}

	if err := s.storage.InvestmentStore().Create(ctx, &interfaces.InvestmentUpdate{Investment: inv}); err != nil {
		s.compensate(ledgerCtx, "credit", inv, inv.SourceAccountID, inv.Principal)
		return nil, fmt.Errorf("failed to store investment: %w", err)
	}

	s.metrics.Transition("create", inv.Status)
	s.logger.Info().
		Str("investment_id", inv.ID).
		Str("user_id", inv.UserID).
		Str("plan_id", inv.PlanID).
		Str("amount", inv.Principal.String()).
		Str("rate", inv.EffectiveRate.String()).
		Msg("Investment created and funded")
	s.notify(ctx, inv.UserID, "Investment active",
		fmt.Sprintf("Your %s %s investment is active at %s%%.", inv.Principal.StringFixed(2), inv.Currency, inv.EffectiveRate.String()),
		models.NotifyInvestmentCreated)

	return inv.Clone(), nil
}

// Get returns a snapshot of one investment.
func (s *Service) Get(ctx context.Context, id string) (*models.Investment, error) {
	inv, err := s.storage.InvestmentStore().Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get investment %s: %w", id, err)
	}
	return inv, nil
}

// ListByUser returns snapshots of all of a user's investments.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]*models.Investment, error) {
	list, err := s.storage.InvestmentStore().ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list investments: %w", err)
	}
	return list, nil
}

// Payouts returns the payout ledger of one investment.
func (s *Service) Payouts(ctx context.Context, id string) ([]*models.PayoutRecord, error) {
	if _, err := s.storage.InvestmentStore().Get(ctx, id); err != nil {
		return nil, fmt.Errorf("payouts for %s: %w", id, err)
	}
	recs, err := s.storage.PayoutStore().ListByInvestment(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list payouts: %w", err)
	}
	return recs, nil
}

// load fetches an investment for mutation. Caller holds the investment lock.
func (s *Service) load(ctx context.Context, id string) (*models.Investment, error) {
	inv, err := s.storage.InvestmentStore().Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load investment %s: %w", id, err)
	}
	return inv, nil
}

// attemptKey builds the ledger idempotency key of one attempt at a transition.
// A failed persist reverses the movement under the same key plus ":reversal",
// so every attempt needs its own key for a retry to move money again.
// Interest payouts are the exception: they resume a reserved period under
// the period key instead of reversing.
func attemptKey(investmentID, op string) string {
	return fmt.Sprintf("%s:%s:%s", investmentID, op, uuid.New().String())
}

// compensate reverses a ledger movement after a failed persist. direction is
// the reversing operation. A failed reversal is logged at error level for
// manual reconciliation.
func (s *Service) compensate(ctx context.Context, direction string, inv *models.Investment, account string, amount decimal.Decimal) {
	if amount.IsZero() {
		return
	}
	if key := interfaces.IdempotencyKey(ctx); key != "" {
		ctx = interfaces.WithIdempotencyKey(ctx, key+":reversal")
	}
	var err error
	if direction == "credit" {
		_, err = s.ledger.Credit(ctx, account, amount, inv.Currency)
	} else {
		_, err = s.ledger.Debit(ctx, account, amount, inv.Currency)
	}
	if err != nil {
		s.logger.Error().
			Str("investment_id", inv.ID).
			Str("account", account).
			Str("amount", amount.String()).
			Str("direction", direction).
			Err(err).
			Msg("Ledger compensation failed, manual reconciliation required")
		return
	}
	s.metrics.Compensated()
	s.logger.Warn().
		Str("investment_id", inv.ID).
		Str("account", account).
		Str("amount", amount.String()).
		Str("direction", direction).
		Msg("Ledger movement reversed after failed persist")
}

// notify publishes a user notification. Failures are logged and never returned.
func (s *Service) notify(ctx context.Context, userID, title, message string, category models.NotificationCategory) {
	if s.notifier == nil {
		return
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := s.notifier.Notify(nctx, userID, title, message, category); err != nil {
		s.logger.Warn().
			Str("user_id", userID).
			Str("category", string(category)).
			Err(err).
			Msg("Notification delivery failed")
	}
}
