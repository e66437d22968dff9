package surrealdb

import (
	"context"
	"errors"
	"fmt"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/bobmcallan/accrue/internal/common"
	"github.com/bobmcallan/accrue/internal/interfaces"
	"github.com/bobmcallan/accrue/internal/models"
)

var _ interfaces.PayoutStore = (*PayoutStore)(nil)

// PayoutStore keys period payouts by their period key, so a second
// reservation of the same period collides on the record id.
type PayoutStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

func NewPayoutStore(db *surrealdb.DB, logger *common.Logger) *PayoutStore {
	return &PayoutStore{db: db, logger: logger}
}

func (s *PayoutStore) Reserve(ctx context.Context, rec *models.PayoutRecord) (*models.PayoutRecord, bool, error) {
	if rec.PeriodKey == "" {
		return nil, false, fmt.Errorf("payout reservation requires a period key")
	}
	if existing, err := s.GetByPeriod(ctx, rec.PeriodKey); err == nil {
		return existing, false, nil
	} else if !errors.Is(err, models.ErrPayoutNotFound) {
		return nil, false, err
	}

	sql := "CREATE $rid CONTENT $payout"
	vars := map[string]any{
		"rid":    surrealmodels.NewRecordID(tablePayout, rec.PeriodKey),
		"payout": toPayoutRow(rec),
	}
	if _, err := surrealdb.Query[[]payoutRow](ctx, s.db, sql, vars); err != nil {
		// Lost the race to another reservation of the same period.
		if existing, getErr := s.GetByPeriod(ctx, rec.PeriodKey); getErr == nil {
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("failed to reserve payout: %w", err)
	}

	cp := *rec
	return &cp, true, nil
}

func (s *PayoutStore) GetByPeriod(ctx context.Context, periodKey string) (*models.PayoutRecord, error) {
	row, err := surrealdb.Select[payoutRow](ctx, s.db, surrealmodels.NewRecordID(tablePayout, periodKey))
	if err != nil {
		if isNotFoundError(err) {
			return nil, models.ErrPayoutNotFound
		}
		return nil, fmt.Errorf("failed to select payout: %w", err)
	}
	if row == nil || row.PayoutID == "" {
		return nil, models.ErrPayoutNotFound
	}
	return row.model(), nil
}

func (s *PayoutStore) ListByInvestment(ctx context.Context, investmentID string) ([]*models.PayoutRecord, error) {
	sql := "SELECT * FROM payout WHERE investment_id = $id ORDER BY scheduled_date ASC, created_at ASC"
	res, err := surrealdb.Query[[]payoutRow](ctx, s.db, sql, map[string]any{"id": investmentID})
	if err != nil {
		return nil, fmt.Errorf("failed to list payouts: %w", err)
	}
	var out []*models.PayoutRecord
	for _, r := range rows(res) {
		out = append(out, r.model())
	}
	return out, nil
}

var _ interfaces.RateChangeStore = (*RateChangeStore)(nil)

type RateChangeStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

func NewRateChangeStore(db *surrealdb.DB, logger *common.Logger) *RateChangeStore {
	return &RateChangeStore{db: db, logger: logger}
}

func (s *RateChangeStore) ListByInvestment(ctx context.Context, investmentID string) ([]*models.RateChange, error) {
	sql := "SELECT * FROM rate_change WHERE investment_id = $id ORDER BY changed_at ASC"
	res, err := surrealdb.Query[[]rateChangeRow](ctx, s.db, sql, map[string]any{"id": investmentID})
	if err != nil {
		return nil, fmt.Errorf("failed to list rate changes: %w", err)
	}
	var out []*models.RateChange
	for _, r := range rows(res) {
		out = append(out, r.model())
	}
	return out, nil
}

var _ interfaces.RunStore = (*RunStore)(nil)

type RunStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

func NewRunStore(db *surrealdb.DB, logger *common.Logger) *RunStore {
	return &RunStore{db: db, logger: logger}
}

func (s *RunStore) Record(ctx context.Context, result *models.BatchResult) error {
	sql := "UPSERT $rid CONTENT $run"
	vars := map[string]any{
		"rid": surrealmodels.NewRecordID(tableRun, result.RunID),
		"run": toRunRow(result),
	}
	for attempt := 1; attempt <= 3; attempt++ {
		_, err := surrealdb.Query[[]runRow](ctx, s.db, sql, vars)
		if err == nil {
			return nil
		}
		if attempt == 3 {
			return fmt.Errorf("failed to record payout run after retries: %w", err)
		}
	}
	return nil
}

func (s *RunStore) Recent(ctx context.Context, limit int) ([]*models.BatchResult, error) {
	sql := "SELECT * FROM payout_run ORDER BY started_at DESC"
	vars := map[string]any{}
	if limit > 0 {
		sql += " LIMIT $limit"
		vars["limit"] = limit
	}
	res, err := surrealdb.Query[[]runRow](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to list payout runs: %w", err)
	}
	var out []*models.BatchResult
	for _, r := range rows(res) {
		out = append(out, r.model())
	}
	return out, nil
}
