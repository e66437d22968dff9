package analytics

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/bobmcallan/accrue/internal/common"
	"github.com/bobmcallan/accrue/internal/interfaces"
	"github.com/bobmcallan/accrue/internal/models"
)

// Compile-time interface check
var _ interfaces.AnalyticsService = (*Service)(nil)

// Service implements AnalyticsService
type Service struct {
	storage  interfaces.StorageManager
	riskFree interfaces.RiskFreeRateSource
	clock    interfaces.Clock
	logger   *common.Logger
}

// NewService creates a new analytics service
func NewService(storage interfaces.StorageManager, riskFree interfaces.RiskFreeRateSource, clock interfaces.Clock, logger *common.Logger) *Service {
	return &Service{
		storage:  storage,
		riskFree: riskFree,
		clock:    clock,
		logger:   logger,
	}
}

// Summarize loads a user's investments and their plans and aggregates them.
// An unavailable risk-free rate degrades to zero rather than failing.
func (s *Service) Summarize(ctx context.Context, userID string) (*models.PortfolioSummary, error) {
	investments, err := s.storage.InvestmentStore().ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list investments: %w", err)
	}

	plans := make(map[string]*models.InvestmentPlan)
	for _, inv := range investments {
		if _, seen := plans[inv.PlanID]; seen {
			continue
		}
		plan, err := s.storage.PlanStore().GetPlan(ctx, inv.PlanID)
		if errors.Is(err, models.ErrPlanNotFound) {
			s.logger.Warn().Str("plan_id", inv.PlanID).Str("investment_id", inv.ID).Msg("Investment references missing plan")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load plan %s: %w", inv.PlanID, err)
		}
		plans[plan.ID] = plan
	}

	rf := decimal.Zero
	if s.riskFree != nil {
		if rf, err = s.riskFree.RiskFreeRate(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("Risk-free rate unavailable, using zero")
			rf = decimal.Zero
		}
	}

	summary := Summarize(userID, investments, plans, rf, s.clock.Now())

	s.logger.Debug().
		Str("user_id", userID).
		Int("investments", summary.InvestmentCount).
		Str("total_invested", summary.TotalInvested.String()).
		Msg("Portfolio summarised")

	return summary, nil
}

// StaticRiskFreeRate serves a fixed configured rate.
type StaticRiskFreeRate decimal.Decimal

// RiskFreeRate returns the configured rate.
func (r StaticRiskFreeRate) RiskFreeRate(context.Context) (decimal.Decimal, error) {
	return decimal.Decimal(r), nil
}
