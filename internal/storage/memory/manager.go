// Package memory provides an in-process StorageManager used for development
// and service tests. All stores share one lock so InvestmentStore.Commit is
// atomic across investments, payouts and rate changes.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bobmcallan/accrue/internal/interfaces"
	"github.com/bobmcallan/accrue/internal/models"
)

// Manager implements interfaces.StorageManager in memory.
type Manager struct {
	mu sync.RWMutex

	plans       map[string]*models.InvestmentPlan
	overrides   map[string]*models.RateOverride
	investments map[string]*models.Investment
	payouts     map[string]*models.PayoutRecord // by record ID
	periods     map[string]string               // period key -> record ID
	rateChanges map[string][]*models.RateChange // by investment ID
	runs        []*models.BatchResult

	// failCommit, when set, is returned by the next Commit. Test hook.
	failCommit error
}

// NewManager creates an empty in-memory storage manager.
func NewManager() *Manager {
	return &Manager{
		plans:       make(map[string]*models.InvestmentPlan),
		overrides:   make(map[string]*models.RateOverride),
		investments: make(map[string]*models.Investment),
		payouts:     make(map[string]*models.PayoutRecord),
		periods:     make(map[string]string),
		rateChanges: make(map[string][]*models.RateChange),
	}
}

func (m *Manager) PlanStore() interfaces.PlanStore                 { return (*planStore)(m) }
func (m *Manager) RateOverrideStore() interfaces.RateOverrideStore { return (*overrideStore)(m) }
func (m *Manager) InvestmentStore() interfaces.InvestmentStore     { return (*investmentStore)(m) }
func (m *Manager) PayoutStore() interfaces.PayoutStore             { return (*payoutStore)(m) }
func (m *Manager) RateChangeStore() interfaces.RateChangeStore     { return (*rateChangeStore)(m) }
func (m *Manager) RunStore() interfaces.RunStore                   { return (*runStore)(m) }

// FailNextCommit makes the next InvestmentStore.Commit or Create return err.
func (m *Manager) FailNextCommit(err error) {
	m.mu.Lock()
	m.failCommit = err
	m.mu.Unlock()
}

func (m *Manager) Close() error { return nil }

// --- plans ---

type planStore Manager

func (s *planStore) GetPlan(_ context.Context, id string) (*models.InvestmentPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.plans[id]
	if !ok {
		return nil, models.ErrPlanNotFound
	}
	return clonePlan(p), nil
}

func (s *planStore) SavePlan(_ context.Context, plan *models.InvestmentPlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans[plan.ID] = clonePlan(plan)
	return nil
}

func (s *planStore) ListPlans(_ context.Context, activeOnly bool) ([]*models.InvestmentPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.InvestmentPlan
	for _, p := range s.plans {
		if activeOnly && !p.Active {
			continue
		}
		out = append(out, clonePlan(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// --- overrides ---

type overrideStore Manager

func (s *overrideStore) QueryActive(_ context.Context, userID, planID string, now time.Time) ([]*models.RateOverride, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.RateOverride
	for _, o := range s.overrides {
		if o.Active && o.Matches(userID, planID) && o.EffectiveAt(now) {
			out = append(out, cloneOverride(o))
		}
	}
	return out, nil
}

func (s *overrideStore) ReplaceActive(_ context.Context, o *models.RateOverride) ([]*models.RateOverride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var closed []*models.RateOverride
	for _, cur := range s.overrides {
		if cur.Active && cur.SameScope(o) && cur.ID != o.ID {
			cur.Active = false
			end := o.EffectiveFrom
			cur.EffectiveTo = &end
			closed = append(closed, cloneOverride(cur))
		}
	}
	s.overrides[o.ID] = cloneOverride(o)
	return closed, nil
}

func (s *overrideStore) Get(_ context.Context, id string) (*models.RateOverride, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.overrides[id]
	if !ok {
		return nil, models.ErrOverrideNotFound
	}
	return cloneOverride(o), nil
}

func (s *overrideStore) Deactivate(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.overrides[id]
	if !ok {
		return models.ErrOverrideNotFound
	}
	o.Active = false
	o.EffectiveTo = &at
	return nil
}

// --- investments ---

type investmentStore Manager

func (s *investmentStore) Get(_ context.Context, id string) (*models.Investment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.investments[id]
	if !ok {
		return nil, models.ErrInvestmentNotFound
	}
	return inv.Clone(), nil
}

func (s *investmentStore) Create(_ context.Context, u *interfaces.InvestmentUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return err
	}
	if _, exists := s.investments[u.Investment.ID]; exists {
		return models.ErrVersionConflict
	}
	u.Investment.Version = 1
	s.apply(u)
	return nil
}

func (s *investmentStore) Commit(_ context.Context, u *interfaces.InvestmentUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return err
	}
	cur, ok := s.investments[u.Investment.ID]
	if !ok {
		return models.ErrInvestmentNotFound
	}
	if cur.Version != u.Investment.Version {
		return models.ErrVersionConflict
	}
	u.Investment.Version++
	s.apply(u)
	return nil
}

func (s *investmentStore) takeFailure() error {
	err := s.failCommit
	s.failCommit = nil
	return err
}

// apply writes all parts of u. Caller holds the write lock.
func (s *investmentStore) apply(u *interfaces.InvestmentUpdate) {
	s.investments[u.Investment.ID] = u.Investment.Clone()
	for _, rec := range u.Payouts {
		s.payouts[rec.ID] = clonePayout(rec)
		if rec.PeriodKey != "" {
			s.periods[rec.PeriodKey] = rec.ID
		}
	}
	for _, rc := range u.RateChanges {
		cp := *rc
		s.rateChanges[rc.InvestmentID] = append(s.rateChanges[rc.InvestmentID], &cp)
	}
}

func (s *investmentStore) ListByUser(_ context.Context, userID string) ([]*models.Investment, error) {
	return s.list(func(inv *models.Investment) bool { return inv.UserID == userID }), nil
}

func (s *investmentStore) ListByStatus(_ context.Context, status models.InvestmentStatus) ([]*models.Investment, error) {
	return s.list(func(inv *models.Investment) bool { return inv.Status == status }), nil
}

func (s *investmentStore) list(keep func(*models.Investment) bool) []*models.Investment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Investment
	for _, inv := range s.investments {
		if keep(inv) {
			out = append(out, inv.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// --- payouts ---

type payoutStore Manager

func (s *payoutStore) Reserve(_ context.Context, rec *models.PayoutRecord) (*models.PayoutRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.periods[rec.PeriodKey]; ok {
		return clonePayout(s.payouts[id]), false, nil
	}
	s.payouts[rec.ID] = clonePayout(rec)
	s.periods[rec.PeriodKey] = rec.ID
	return clonePayout(rec), true, nil
}

func (s *payoutStore) GetByPeriod(_ context.Context, periodKey string) (*models.PayoutRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.periods[periodKey]
	if !ok {
		return nil, models.ErrPayoutNotFound
	}
	return clonePayout(s.payouts[id]), nil
}

func (s *payoutStore) ListByInvestment(_ context.Context, investmentID string) ([]*models.PayoutRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.PayoutRecord
	for _, rec := range s.payouts {
		if rec.InvestmentID == investmentID {
			out = append(out, clonePayout(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScheduledDate.Equal(out[j].ScheduledDate) {
			return out[i].ScheduledDate.Before(out[j].ScheduledDate)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// --- rate changes ---

type rateChangeStore Manager

func (s *rateChangeStore) ListByInvestment(_ context.Context, investmentID string) ([]*models.RateChange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.rateChanges[investmentID]
	out := make([]*models.RateChange, len(src))
	for i, rc := range src {
		cp := *rc
		out[i] = &cp
	}
	return out, nil
}

// --- runs ---

type runStore Manager

func (s *runStore) Record(_ context.Context, result *models.BatchResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *result
	cp.Errors = append([]models.BatchItemError(nil), result.Errors...)
	s.runs = append(s.runs, &cp)
	return nil
}

func (s *runStore) Recent(_ context.Context, limit int) ([]*models.BatchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.BatchResult
	for i := len(s.runs) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		cp := *s.runs[i]
		out = append(out, &cp)
	}
	return out, nil
}

func clonePlan(p *models.InvestmentPlan) *models.InvestmentPlan {
	cp := *p
	cp.Brackets = append([]models.RateBracket(nil), p.Brackets...)
	return &cp
}

func cloneOverride(o *models.RateOverride) *models.RateOverride {
	cp := *o
	if o.EffectiveTo != nil {
		end := *o.EffectiveTo
		cp.EffectiveTo = &end
	}
	return &cp
}

func clonePayout(r *models.PayoutRecord) *models.PayoutRecord {
	cp := *r
	if r.ProcessedDate != nil {
		d := *r.ProcessedDate
		cp.ProcessedDate = &d
	}
	return &cp
}

// Compile-time check
var _ interfaces.StorageManager = (*Manager)(nil)
