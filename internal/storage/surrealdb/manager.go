// Package surrealdb implements interfaces.StorageManager on SurrealDB.
package surrealdb

import (
	"context"
	"fmt"

	"github.com/surrealdb/surrealdb.go"

	"github.com/bobmcallan/accrue/internal/common"
	"github.com/bobmcallan/accrue/internal/interfaces"
)

// Table names.
const (
	tablePlan          = "plan"
	tableOverride      = "rate_override"
	tableOverrideScope = "override_scope"
	tableInvestment    = "investment"
	tablePayout        = "payout"
	tableRateChange    = "rate_change"
	tableRun           = "payout_run"
)

// Manager implements interfaces.StorageManager using SurrealDB.
type Manager struct {
	db     *surrealdb.DB
	logger *common.Logger

	planStore       *PlanStore
	overrideStore   *OverrideStore
	investmentStore *InvestmentStore
	payoutStore     *PayoutStore
	rateChangeStore *RateChangeStore
	runStore        *RunStore
}

// NewManager creates a new StorageManager connected to SurrealDB.
func NewManager(logger *common.Logger, config *common.Config) (*Manager, error) {
	ctx := context.Background()

	db, err := surrealdb.New(config.Storage.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SurrealDB: %w", err)
	}

	if _, err := db.SignIn(ctx, map[string]interface{}{
		"user": config.Storage.Username,
		"pass": config.Storage.Password,
	}); err != nil {
		return nil, fmt.Errorf("failed to sign in to SurrealDB: %w", err)
	}

	if err := db.Use(ctx, config.Storage.Namespace, config.Storage.Database); err != nil {
		return nil, fmt.Errorf("failed to select namespace/database: %w", err)
	}

	if err := defineTables(ctx, db); err != nil {
		return nil, err
	}

	m := newManager(db, logger)

	logger.Info().
		Str("address", config.Storage.Address).
		Str("namespace", config.Storage.Namespace).
		Str("database", config.Storage.Database).
		Msg("SurrealDB storage manager initialized")

	return m, nil
}

func newManager(db *surrealdb.DB, logger *common.Logger) *Manager {
	return &Manager{
		db:              db,
		logger:          logger,
		planStore:       NewPlanStore(db, logger),
		overrideStore:   NewOverrideStore(db, logger),
		investmentStore: NewInvestmentStore(db, logger),
		payoutStore:     NewPayoutStore(db, logger),
		rateChangeStore: NewRateChangeStore(db, logger),
		runStore:        NewRunStore(db, logger),
	}
}

// defineTables ensures every table exists; SurrealDB v3 errors on querying
// tables that were never defined.
func defineTables(ctx context.Context, db *surrealdb.DB) error {
	tables := []string{tablePlan, tableOverride, tableOverrideScope, tableInvestment, tablePayout, tableRateChange, tableRun}
	for _, table := range tables {
		sql := fmt.Sprintf("DEFINE TABLE IF NOT EXISTS %s SCHEMALESS", table)
		if _, err := surrealdb.Query[any](ctx, db, sql, nil); err != nil {
			return fmt.Errorf("failed to define table %s: %w", table, err)
		}
	}
	indexes := []string{
		"DEFINE INDEX IF NOT EXISTS rate_override_scope ON rate_override FIELDS user_id, plan_id, rate_type",
		"DEFINE INDEX IF NOT EXISTS investment_user ON investment FIELDS user_id",
		"DEFINE INDEX IF NOT EXISTS investment_status ON investment FIELDS status",
		"DEFINE INDEX IF NOT EXISTS payout_investment ON payout FIELDS investment_id",
		"DEFINE INDEX IF NOT EXISTS rate_change_investment ON rate_change FIELDS investment_id",
	}
	for _, sql := range indexes {
		if _, err := surrealdb.Query[any](ctx, db, sql, nil); err != nil {
			return fmt.Errorf("failed to define index: %w", err)
		}
	}
	return nil
}

func (m *Manager) PlanStore() interfaces.PlanStore {
	return m.planStore
}

func (m *Manager) RateOverrideStore() interfaces.RateOverrideStore {
	return m.overrideStore
}

func (m *Manager) InvestmentStore() interfaces.InvestmentStore {
	return m.investmentStore
}

func (m *Manager) PayoutStore() interfaces.PayoutStore {
	return m.payoutStore
}

func (m *Manager) RateChangeStore() interfaces.RateChangeStore {
	return m.rateChangeStore
}

func (m *Manager) RunStore() interfaces.RunStore {
	return m.runStore
}

func (m *Manager) Close() error {
	m.db.Close(context.Background())
	return nil
}

// Compile-time check
var _ interfaces.StorageManager = (*Manager)(nil)

// rows returns the first statement's result set.
func rows[T any](res *[]surrealdb.QueryResult[[]T]) []T {
	if res == nil || len(*res) == 0 {
		return nil
	}
	return (*res)[0].Result
}

// allRows concatenates the result sets of every statement in a multi-statement query.
func allRows[T any](res *[]surrealdb.QueryResult[[]T]) []T {
	if res == nil {
		return nil
	}
	var out []T
	for _, r := range *res {
		out = append(out, r.Result...)
	}
	return out
}
