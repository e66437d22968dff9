package surrealdb

import (
	"context"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/bobmcallan/accrue/internal/common"
	"github.com/bobmcallan/accrue/internal/interfaces"
	"github.com/bobmcallan/accrue/internal/models"
)

var _ interfaces.PlanStore = (*PlanStore)(nil)

type PlanStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

func NewPlanStore(db *surrealdb.DB, logger *common.Logger) *PlanStore {
	return &PlanStore{db: db, logger: logger}
}

func (s *PlanStore) GetPlan(ctx context.Context, id string) (*models.InvestmentPlan, error) {
	row, err := surrealdb.Select[planRow](ctx, s.db, surrealmodels.NewRecordID(tablePlan, id))
	if err != nil {
		if isNotFoundError(err) {
			return nil, models.ErrPlanNotFound
		}
		return nil, fmt.Errorf("failed to select plan: %w", err)
	}
	if row == nil || row.PlanID == "" {
		return nil, models.ErrPlanNotFound
	}
	return row.model(), nil
}

func (s *PlanStore) SavePlan(ctx context.Context, plan *models.InvestmentPlan) error {
	sql := "UPSERT $rid CONTENT $plan"
	vars := map[string]any{
		"rid":  surrealmodels.NewRecordID(tablePlan, plan.ID),
		"plan": toPlanRow(plan),
	}

	for attempt := 1; attempt <= 3; attempt++ {
		_, err := surrealdb.Query[[]planRow](ctx, s.db, sql, vars)
		if err == nil {
			return nil
		}
		if attempt == 3 {
			return fmt.Errorf("failed to save plan after retries: %w", err)
		}
	}
	return nil
}

func (s *PlanStore) ListPlans(ctx context.Context, activeOnly bool) ([]*models.InvestmentPlan, error) {
	sql := "SELECT * FROM plan ORDER BY name ASC"
	if activeOnly {
		sql = "SELECT * FROM plan WHERE active = true ORDER BY name ASC"
	}
	res, err := surrealdb.Query[[]planRow](ctx, s.db, sql, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	var out []*models.InvestmentPlan
	for _, r := range rows(res) {
		out = append(out, r.model())
	}
	return out, nil
}

var _ interfaces.RateOverrideStore = (*OverrideStore)(nil)

type OverrideStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

func NewOverrideStore(db *surrealdb.DB, logger *common.Logger) *OverrideStore {
	return &OverrideStore{db: db, logger: logger}
}

// QueryActive narrows by scope in SurrealQL and applies the effective window
// in Go, where open-ended windows are simpler to express.
func (s *OverrideStore) QueryActive(ctx context.Context, userID, planID string, now time.Time) ([]*models.RateOverride, error) {
	sql := `SELECT * FROM rate_override
		WHERE active = true
		AND (user_id = '' OR user_id = $user)
		AND (plan_id = '' OR plan_id = $plan)
		AND effective_from <= $now`
	vars := map[string]any{"user": userID, "plan": planID, "now": now}

	res, err := surrealdb.Query[[]overrideRow](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to query overrides: %w", err)
	}
	var out []*models.RateOverride
	for _, r := range rows(res) {
		o := r.model()
		if o.Matches(userID, planID) && o.EffectiveAt(now) {
			out = append(out, o)
		}
	}
	return out, nil
}

// replaceAttempts bounds retries of a ReplaceActive transaction that lost a
// write conflict on the scope record.
const replaceAttempts = 5

// ReplaceActive closes the active overrides of the same scope at the new
// override's start and stores the new one in a single transaction. Every
// writer to a scope also writes its override_scope record, so two concurrent
// replacements conflict at commit and the loser retries against the winner's row.
func (s *OverrideStore) ReplaceActive(ctx context.Context, o *models.RateOverride) ([]*models.RateOverride, error) {
	sql := `BEGIN TRANSACTION;
		UPDATE rate_override SET active = false, effective_to = $end
			WHERE active = true AND user_id = $user AND plan_id = $plan AND rate_type = $type AND override_id != $id
			RETURN BEFORE;
		UPSERT $scope SET override_id = $id, updated_at = time::now() RETURN NONE;
		UPSERT $rid CONTENT $override RETURN NONE;
		COMMIT TRANSACTION;`
	end := o.EffectiveFrom
	vars := map[string]any{
		"user":     o.UserID,
		"plan":     o.PlanID,
		"type":     string(o.RateType),
		"id":       o.ID,
		"end":      end,
		"scope":    surrealmodels.NewRecordID(tableOverrideScope, scopeKey(o)),
		"rid":      surrealmodels.NewRecordID(tableOverride, o.ID),
		"override": toOverrideRow(o),
	}

	var lastErr error
	for attempt := 1; attempt <= replaceAttempts; attempt++ {
		res, err := surrealdb.Query[[]overrideRow](ctx, s.db, sql, vars)
		if err == nil {
			var closed []*models.RateOverride
			for _, r := range allRows(res) {
				cur := r.model()
				cur.Active = false
				cur.EffectiveTo = &end
				closed = append(closed, cur)
			}
			return closed, nil
		}
		if !isConflictError(err) {
			return nil, fmt.Errorf("failed to replace override: %w", err)
		}
		lastErr = err
		s.logger.Debug().
			Str("override_id", o.ID).
			Int("attempt", attempt).
			Msg("Override scope write conflict, retrying")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * 20 * time.Millisecond):
		}
	}
	return nil, fmt.Errorf("failed to replace override %s: %w: %v", o.ID, models.ErrVersionConflict, lastErr)
}

// scopeKey identifies the exact (user, plan, type) scope of an override.
func scopeKey(o *models.RateOverride) string {
	return fmt.Sprintf("%s|%s|%s", o.UserID, o.PlanID, o.RateType)
}

func (s *OverrideStore) Get(ctx context.Context, id string) (*models.RateOverride, error) {
	row, err := surrealdb.Select[overrideRow](ctx, s.db, surrealmodels.NewRecordID(tableOverride, id))
	if err != nil {
		if isNotFoundError(err) {
			return nil, models.ErrOverrideNotFound
		}
		return nil, fmt.Errorf("failed to select override: %w", err)
	}
	if row == nil || row.OverrideID == "" {
		return nil, models.ErrOverrideNotFound
	}
	return row.model(), nil
}

func (s *OverrideStore) Deactivate(ctx context.Context, id string, at time.Time) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	sql := "UPDATE $rid SET active = false, effective_to = $at"
	vars := map[string]any{
		"rid": surrealmodels.NewRecordID(tableOverride, id),
		"at":  at,
	}
	if _, err := surrealdb.Query[[]overrideRow](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to deactivate override: %w", err)
	}
	return nil
}
