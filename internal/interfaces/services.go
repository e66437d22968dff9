// Package interfaces defines service contracts for accrue
package interfaces

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bobmcallan/accrue/internal/models"
)

// PlanService manages the plan catalogue
type PlanService interface {
	GetPlan(ctx context.Context, id string) (*models.InvestmentPlan, error)
	SavePlan(ctx context.Context, plan *models.InvestmentPlan) (*models.InvestmentPlan, error)
	DeactivatePlan(ctx context.Context, id string) error
	ListPlans(ctx context.Context, activeOnly bool) ([]*models.InvestmentPlan, error)
}

// RateService resolves effective rates and manages overrides
type RateService interface {
	// ResolveRate returns the annual rate for amount placed into planID by userID.
	ResolveRate(ctx context.Context, planID, userID string, amount decimal.Decimal) (decimal.Decimal, error)

	// SetOverride stores an override, closing out the active one in the same scope.
	SetOverride(ctx context.Context, o *models.RateOverride) (*models.RateOverride, error)

	// DeactivateOverride ends an override now.
	DeactivateOverride(ctx context.Context, id string) error
}

// LifecycleService owns investment state transitions and their money movement
type LifecycleService interface {
	Create(ctx context.Context, req models.CreateInvestmentRequest) (*models.Investment, error)
	Approve(ctx context.Context, req models.ApproveRequest) (*models.Investment, error)
	Reject(ctx context.Context, id, rejectedBy, reason string) (*models.Investment, error)
	Withdraw(ctx context.Context, req models.WithdrawRequest) (*models.WithdrawalResult, error)

	// ProcessPayout pays the next due period. Returns models.ErrPayoutNotDue
	// before the due date and the existing record when the period is already paid.
	ProcessPayout(ctx context.Context, id string) (*models.PayoutRecord, error)

	AdjustRate(ctx context.Context, id string, newRate decimal.Decimal, changedBy, reason string) (*models.Investment, error)
	Mature(ctx context.Context, id string) (*models.Investment, error)

	Get(ctx context.Context, id string) (*models.Investment, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Investment, error)
	Payouts(ctx context.Context, id string) ([]*models.PayoutRecord, error)
}

// PenaltyCalculator prices early withdrawals
type PenaltyCalculator interface {
	Quote(plan *models.InvestmentPlan, inv *models.Investment, amount decimal.Decimal, now time.Time) models.PenaltyQuote
}

// PayoutRunner processes all due payouts in one pass
type PayoutRunner interface {
	Run(ctx context.Context, now time.Time) (*models.BatchResult, error)
}

// AnalyticsService summarises a user's holdings
type AnalyticsService interface {
	Summarize(ctx context.Context, userID string) (*models.PortfolioSummary, error)
}
