// Package plan manages the catalogue of investment plans
package plan

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/bobmcallan/accrue/internal/common"
	"github.com/bobmcallan/accrue/internal/interfaces"
	"github.com/bobmcallan/accrue/internal/models"
)

// Compile-time interface check
var _ interfaces.PlanService = (*Service)(nil)

// Service implements PlanService
type Service struct {
	storage interfaces.StorageManager
	clock   interfaces.Clock
	logger  *common.Logger
}

// NewService creates a new plan service
func NewService(storage interfaces.StorageManager, clock interfaces.Clock, logger *common.Logger) *Service {
	return &Service{
		storage: storage,
		clock:   clock,
		logger:  logger,
	}
}

// GetPlan retrieves a plan by ID
func (s *Service) GetPlan(ctx context.Context, id string) (*models.InvestmentPlan, error) {
	plan, err := s.storage.PlanStore().GetPlan(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	return plan, nil
}

// SavePlan validates and stores a plan. New plans get an ID and start active.
// Currency is normalised to upper case.
func (s *Service) SavePlan(ctx context.Context, plan *models.InvestmentPlan) (*models.InvestmentPlan, error) {
	plan.Currency = strings.ToUpper(strings.TrimSpace(plan.Currency))
	if plan.DefaultFrequency == "" {
		plan.DefaultFrequency = models.FrequencyMonthly
	}
	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("invalid plan: %w", err)
	}

	now := s.clock.Now()
	if plan.ID == "" {
		plan.ID = "plan_" + uuid.New().String()[:8]
		plan.Active = true
		plan.CreatedAt = now
	} else if existing, err := s.storage.PlanStore().GetPlan(ctx, plan.ID); err == nil {
		plan.CreatedAt = existing.CreatedAt
	} else {
		plan.CreatedAt = now
	}
	plan.UpdatedAt = now

	if err := s.storage.PlanStore().SavePlan(ctx, plan); err != nil {
		return nil, fmt.Errorf("failed to save plan: %w", err)
	}
	s.logger.Info().Str("plan_id", plan.ID).Str("name", plan.Name).Bool("active", plan.Active).Msg("Plan saved")
	return plan, nil
}

// DeactivatePlan closes a plan to new investments. Existing investments
// keep running; plans are never deleted once referenced.
func (s *Service) DeactivatePlan(ctx context.Context, id string) error {
	plan, err := s.storage.PlanStore().GetPlan(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get plan: %w", err)
	}
	if !plan.Active {
		return nil
	}
	plan.Active = false
	plan.UpdatedAt = s.clock.Now()
	if err := s.storage.PlanStore().SavePlan(ctx, plan); err != nil {
		return fmt.Errorf("failed to save plan: %w", err)
	}
	s.logger.Info().Str("plan_id", id).Msg("Plan deactivated")
	return nil
}

// ListPlans returns all plans, or only active ones
func (s *Service) ListPlans(ctx context.Context, activeOnly bool) ([]*models.InvestmentPlan, error) {
	plans, err := s.storage.PlanStore().ListPlans(ctx, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	return plans, nil
}
