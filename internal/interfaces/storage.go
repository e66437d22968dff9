// Package interfaces defines service contracts for accrue
package interfaces

import (
	"context"
	"time"

	"github.com/bobmcallan/accrue/internal/models"
)

// StorageManager coordinates all storage backends
type StorageManager interface {
	PlanStore() PlanStore
	RateOverrideStore() RateOverrideStore
	InvestmentStore() InvestmentStore
	PayoutStore() PayoutStore
	RateChangeStore() RateChangeStore
	RunStore() RunStore

	// Lifecycle
	Close() error
}

// PlanStore persists investment plans. Plans are deactivated, never deleted.
type PlanStore interface {
	// GetPlan returns models.ErrPlanNotFound when no plan has the id.
	GetPlan(ctx context.Context, id string) (*models.InvestmentPlan, error)
	SavePlan(ctx context.Context, plan *models.InvestmentPlan) error
	ListPlans(ctx context.Context, activeOnly bool) ([]*models.InvestmentPlan, error)
}

// RateOverrideStore persists time-windowed rate overrides.
type RateOverrideStore interface {
	// QueryActive returns active overrides whose scope covers (userID, planID)
	// and whose window contains now.
	QueryActive(ctx context.Context, userID, planID string, now time.Time) ([]*models.RateOverride, error)

	// ReplaceActive closes out any active override in the exact same scope
	// (Active=false, EffectiveTo=o.EffectiveFrom) and stores o, atomically.
	// Returns the overrides that were closed.
	ReplaceActive(ctx context.Context, o *models.RateOverride) ([]*models.RateOverride, error)

	Get(ctx context.Context, id string) (*models.RateOverride, error)

	// Deactivate ends an override at the given time.
	Deactivate(ctx context.Context, id string, at time.Time) error
}

// InvestmentUpdate is a set of writes committed atomically against one investment.
type InvestmentUpdate struct {
	Investment  *models.Investment
	Payouts     []*models.PayoutRecord
	RateChanges []*models.RateChange
}

// InvestmentStore persists investments with optimistic concurrency.
type InvestmentStore interface {
	// Get returns models.ErrInvestmentNotFound when no investment has the id.
	Get(ctx context.Context, id string) (*models.Investment, error)

	// Create stores a new investment at version 1.
	Create(ctx context.Context, u *InvestmentUpdate) error

	// Commit writes the update if the stored version still equals
	// u.Investment.Version, then bumps the version. Returns
	// models.ErrVersionConflict when another writer got there first.
	Commit(ctx context.Context, u *InvestmentUpdate) error

	ListByUser(ctx context.Context, userID string) ([]*models.Investment, error)
	ListByStatus(ctx context.Context, status models.InvestmentStatus) ([]*models.Investment, error)
}

// PayoutStore holds the append-only payout ledger.
type PayoutStore interface {
	// Reserve stores rec as scheduled unless a record with the same PeriodKey
	// already exists, in which case the existing record is returned and
	// created is false.
	Reserve(ctx context.Context, rec *models.PayoutRecord) (existing *models.PayoutRecord, created bool, err error)

	// GetByPeriod returns models.ErrPayoutNotFound when the period has no record.
	GetByPeriod(ctx context.Context, periodKey string) (*models.PayoutRecord, error)

	// ListByInvestment returns records ordered by scheduled date.
	ListByInvestment(ctx context.Context, investmentID string) ([]*models.PayoutRecord, error)
}

// RateChangeStore reads the effective-rate audit trail. Rows are written
// through InvestmentStore.Commit.
type RateChangeStore interface {
	ListByInvestment(ctx context.Context, investmentID string) ([]*models.RateChange, error)
}

// RunStore keeps a history of payout batch runs.
type RunStore interface {
	Record(ctx context.Context, result *models.BatchResult) error
	Recent(ctx context.Context, limit int) ([]*models.BatchResult, error)
}
