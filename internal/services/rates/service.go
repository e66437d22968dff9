package rates

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bobmcallan/accrue/internal/common"
	"github.com/bobmcallan/accrue/internal/interfaces"
	"github.com/bobmcallan/accrue/internal/models"
)

// Compile-time interface check
var _ interfaces.RateService = (*Service)(nil)

// Service implements RateService
type Service struct {
	storage interfaces.StorageManager
	clock   interfaces.Clock
	logger  *common.Logger
}

// NewService creates a new rate service
func NewService(storage interfaces.StorageManager, clock interfaces.Clock, logger *common.Logger) *Service {
	return &Service{
		storage: storage,
		clock:   clock,
		logger:  logger,
	}
}

// ResolveRate loads the plan and its active overrides and resolves the rate.
func (s *Service) ResolveRate(ctx context.Context, planID, userID string, amount decimal.Decimal) (decimal.Decimal, error) {
	plan, err := s.storage.PlanStore().GetPlan(ctx, planID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("resolve rate: %w", err)
	}
	if !plan.Active {
		return decimal.Zero, fmt.Errorf("resolve rate for plan %s: %w", planID, models.ErrPlanInactive)
	}
	return s.ResolveForPlan(ctx, plan, userID, amount)
}

// ResolveForPlan resolves the rate against an already loaded plan.
func (s *Service) ResolveForPlan(ctx context.Context, plan *models.InvestmentPlan, userID string, amount decimal.Decimal) (decimal.Decimal, error) {
	now := s.clock.Now()
	overrides, err := s.storage.RateOverrideStore().QueryActive(ctx, userID, plan.ID, now)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to query rate overrides: %w", err)
	}

	rate := Resolve(plan, userID, amount, overrides, now)

	s.logger.Debug().
		Str("plan_id", plan.ID).
		Str("user_id", userID).
		Str("amount", amount.String()).
		Str("rate", rate.String()).
		Int("overrides", len(overrides)).
		Msg("Rate resolved")

	return rate, nil
}

// SetOverride validates and stores an override. Any active override in the
// exact same (user, plan, type) scope is closed at the new EffectiveFrom.
func (s *Service) SetOverride(ctx context.Context, o *models.RateOverride) (*models.RateOverride, error) {
	if _, err := models.ParseRateType(string(o.RateType)); err != nil {
		return nil, err
	}
	if o.RateType == models.RateTypeOverride && o.Rate.IsNegative() {
		return nil, fmt.Errorf("override rate must not be negative")
	}
	if o.EffectiveTo != nil && o.EffectiveTo.Before(o.EffectiveFrom) {
		return nil, fmt.Errorf("override effective_to is before effective_from")
	}
	if o.PlanID != "" {
		if _, err := s.storage.PlanStore().GetPlan(ctx, o.PlanID); err != nil {
			return nil, fmt.Errorf("set override: %w", err)
		}
	}

	now := s.clock.Now()
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	if o.EffectiveFrom.IsZero() {
		o.EffectiveFrom = now
	}
	o.CreatedAt = now
	o.Active = true

	closed, err := s.storage.RateOverrideStore().ReplaceActive(ctx, o)
	if err != nil {
		return nil, fmt.Errorf("failed to store override: %w", err)
	}

	for _, c := range closed {
		s.logger.Info().
			Str("override_id", c.ID).
			Str("replaced_by", o.ID).
			Msg("Rate override closed out")
	}
	s.logger.Info().
		Str("override_id", o.ID).
		Str("user_id", o.UserID).
		Str("plan_id", o.PlanID).
		Str("rate_type", string(o.RateType)).
		Str("rate", o.Rate.String()).
		Str("created_by", o.CreatedBy).
		Msg("Rate override set")

	return o, nil
}

// DeactivateOverride ends an override at the current time.
func (s *Service) DeactivateOverride(ctx context.Context, id string) error {
	if err := s.storage.RateOverrideStore().Deactivate(ctx, id, s.clock.Now()); err != nil {
		return fmt.Errorf("deactivate override %s: %w", id, err)
	}
	s.logger.Info().Str("override_id", id).Msg("Rate override deactivated")
	return nil
}
