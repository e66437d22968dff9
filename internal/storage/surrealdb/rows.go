package surrealdb

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bobmcallan/accrue/internal/models"
)

// Rows mirror the domain models with decimals stored as strings so amounts
// survive the round trip exactly and stay filterable in SurrealQL. Each row
// carries its own <entity>_id field; the record id is never decoded.

func dec(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

type bracketRow struct {
	Min  string `json:"min"`
	Max  string `json:"max"`
	Rate string `json:"rate"`
}

type planRow struct {
	PlanID                 string       `json:"plan_id"`
	Name                   string       `json:"name"`
	Type                   string       `json:"type"`
	MinAmount              string       `json:"min_amount"`
	MaxAmount              string       `json:"max_amount"`
	BaseRate               string       `json:"base_rate"`
	MinTermMonths          int          `json:"min_term_months"`
	MaxTermMonths          int          `json:"max_term_months"`
	DefaultFrequency       string       `json:"default_frequency"`
	RequiresApproval       bool         `json:"requires_approval"`
	EarlyWithdrawalPenalty string       `json:"early_withdrawal_penalty"`
	RiskLevel              int          `json:"risk_level"`
	VolatilityIndex        string       `json:"volatility_index"`
	Brackets               []bracketRow `json:"brackets"`
	Currency               string       `json:"currency"`
	Active                 bool         `json:"active"`
	CreatedAt              time.Time    `json:"created_at"`
	UpdatedAt              time.Time    `json:"updated_at"`
}

func toPlanRow(p *models.InvestmentPlan) planRow {
	brackets := make([]bracketRow, len(p.Brackets))
	for i, b := range p.Brackets {
		brackets[i] = bracketRow{Min: b.Min.String(), Max: b.Max.String(), Rate: b.Rate.String()}
	}
	return planRow{
		PlanID:                 p.ID,
		Name:                   p.Name,
		Type:                   string(p.Type),
		MinAmount:              p.MinAmount.String(),
		MaxAmount:              p.MaxAmount.String(),
		BaseRate:               p.BaseRate.String(),
		MinTermMonths:          p.MinTermMonths,
		MaxTermMonths:          p.MaxTermMonths,
		DefaultFrequency:       string(p.DefaultFrequency),
		RequiresApproval:       p.RequiresApproval,
		EarlyWithdrawalPenalty: p.EarlyWithdrawalPenalty.String(),
		RiskLevel:              p.RiskLevel,
		VolatilityIndex:        p.VolatilityIndex.String(),
		Brackets:               brackets,
		Currency:               p.Currency,
		Active:                 p.Active,
		CreatedAt:              p.CreatedAt,
		UpdatedAt:              p.UpdatedAt,
	}
}

func (r planRow) model() *models.InvestmentPlan {
	brackets := make([]models.RateBracket, len(r.Brackets))
	for i, b := range r.Brackets {
		brackets[i] = models.RateBracket{Min: dec(b.Min), Max: dec(b.Max), Rate: dec(b.Rate)}
	}
	return &models.InvestmentPlan{
		ID:                     r.PlanID,
		Name:                   r.Name,
		Type:                   models.PlanType(r.Type),
		MinAmount:              dec(r.MinAmount),
		MaxAmount:              dec(r.MaxAmount),
		BaseRate:               dec(r.BaseRate),
		MinTermMonths:          r.MinTermMonths,
		MaxTermMonths:          r.MaxTermMonths,
		DefaultFrequency:       models.PayoutFrequency(r.DefaultFrequency),
		RequiresApproval:       r.RequiresApproval,
		EarlyWithdrawalPenalty: dec(r.EarlyWithdrawalPenalty),
		RiskLevel:              r.RiskLevel,
		VolatilityIndex:        dec(r.VolatilityIndex),
		Brackets:               brackets,
		Currency:               r.Currency,
		Active:                 r.Active,
		CreatedAt:              r.CreatedAt,
		UpdatedAt:              r.UpdatedAt,
	}
}

type overrideRow struct {
	OverrideID    string     `json:"override_id"`
	UserID        string     `json:"user_id"`
	PlanID        string     `json:"plan_id"`
	RateType      string     `json:"rate_type"`
	Rate          string     `json:"rate"`
	EffectiveFrom time.Time  `json:"effective_from"`
	EffectiveTo   *time.Time `json:"effective_to"`
	Active        bool       `json:"active"`
	Reason        string     `json:"reason"`
	CreatedBy     string     `json:"created_by"`
	CreatedAt     time.Time  `json:"created_at"`
}

func toOverrideRow(o *models.RateOverride) overrideRow {
	return overrideRow{
		OverrideID:    o.ID,
		UserID:        o.UserID,
		PlanID:        o.PlanID,
		RateType:      string(o.RateType),
		Rate:          o.Rate.String(),
		EffectiveFrom: o.EffectiveFrom,
		EffectiveTo:   o.EffectiveTo,
		Active:        o.Active,
		Reason:        o.Reason,
		CreatedBy:     o.CreatedBy,
		CreatedAt:     o.CreatedAt,
	}
}

func (r overrideRow) model() *models.RateOverride {
	return &models.RateOverride{
		ID:            r.OverrideID,
		UserID:        r.UserID,
		PlanID:        r.PlanID,
		RateType:      models.RateType(r.RateType),
		Rate:          dec(r.Rate),
		EffectiveFrom: r.EffectiveFrom,
		EffectiveTo:   r.EffectiveTo,
		Active:        r.Active,
		Reason:        r.Reason,
		CreatedBy:     r.CreatedBy,
		CreatedAt:     r.CreatedAt,
	}
}

type investmentRow struct {
	InvestmentID    string     `json:"investment_id"`
	UserID          string     `json:"user_id"`
	PlanID          string     `json:"plan_id"`
	Principal       string     `json:"principal"`
	Currency        string     `json:"currency"`
	BaseRate        string     `json:"base_rate"`
	EffectiveRate   string     `json:"effective_rate"`
	TermMonths      int        `json:"term_months"`
	TermBucket      string     `json:"term_bucket"`
	Status          string     `json:"status"`
	StartDate       time.Time  `json:"start_date"`
	MaturityDate    time.Time  `json:"maturity_date"`
	LastPayoutDate  *time.Time `json:"last_payout_date"`
	TotalPaidOut    string     `json:"total_paid_out"`
	TermPaidOut     string     `json:"term_paid_out"`
	MinimumBalance  string     `json:"minimum_balance"`
	ProjectedReturn string     `json:"projected_return"`
	PayoutFrequency string     `json:"payout_frequency"`
	AutoRenew       bool       `json:"auto_renew"`

	SourceAccountID string `json:"source_account_id"`
	PayoutAccountID string `json:"payout_account_id"`

	ApprovedBy            string     `json:"approved_by"`
	ApprovedAt            *time.Time `json:"approved_at"`
	DisbursementAccountID string     `json:"disbursement_account_id"`
	RejectedBy            string     `json:"rejected_by"`
	RejectedAt            *time.Time `json:"rejected_at"`
	RejectionReason       string     `json:"rejection_reason"`
	WithdrawnAt           *time.Time `json:"withdrawn_at"`
	MaturedAt             *time.Time `json:"matured_at"`
	Renewals              int        `json:"renewals"`

	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toInvestmentRow(inv *models.Investment) investmentRow {
	return investmentRow{
		InvestmentID:          inv.ID,
		UserID:                inv.UserID,
		PlanID:                inv.PlanID,
		Principal:             inv.Principal.String(),
		Currency:              inv.Currency,
		BaseRate:              inv.BaseRate.String(),
		EffectiveRate:         inv.EffectiveRate.String(),
		TermMonths:            inv.TermMonths,
		TermBucket:            string(inv.TermBucket),
		Status:                string(inv.Status),
		StartDate:             inv.StartDate,
		MaturityDate:          inv.MaturityDate,
		LastPayoutDate:        inv.LastPayoutDate,
		TotalPaidOut:          inv.TotalPaidOut.String(),
		TermPaidOut:           inv.TermPaidOut.String(),
		MinimumBalance:        inv.MinimumBalance.String(),
		ProjectedReturn:       inv.ProjectedReturn.String(),
		PayoutFrequency:       string(inv.PayoutFrequency),
		AutoRenew:             inv.AutoRenew,
		SourceAccountID:       inv.SourceAccountID,
		PayoutAccountID:       inv.PayoutAccountID,
		ApprovedBy:            inv.ApprovedBy,
		ApprovedAt:            inv.ApprovedAt,
		DisbursementAccountID: inv.DisbursementAccountID,
		RejectedBy:            inv.RejectedBy,
		RejectedAt:            inv.RejectedAt,
		RejectionReason:       inv.RejectionReason,
		WithdrawnAt:           inv.WithdrawnAt,
		MaturedAt:             inv.MaturedAt,
		Renewals:              inv.Renewals,
		Version:               inv.Version,
		CreatedAt:             inv.CreatedAt,
		UpdatedAt:             inv.UpdatedAt,
	}
}

func (r investmentRow) model() *models.Investment {
	return &models.Investment{
		ID:                    r.InvestmentID,
		UserID:                r.UserID,
		PlanID:                r.PlanID,
		Principal:             dec(r.Principal),
		Currency:              r.Currency,
		BaseRate:              dec(r.BaseRate),
		EffectiveRate:         dec(r.EffectiveRate),
		TermMonths:            r.TermMonths,
		TermBucket:            models.TermBucket(r.TermBucket),
		Status:                models.InvestmentStatus(r.Status),
		StartDate:             r.StartDate,
		MaturityDate:          r.MaturityDate,
		LastPayoutDate:        r.LastPayoutDate,
		TotalPaidOut:          dec(r.TotalPaidOut),
		TermPaidOut:           dec(r.TermPaidOut),
		MinimumBalance:        dec(r.MinimumBalance),
		ProjectedReturn:       dec(r.ProjectedReturn),
		PayoutFrequency:       models.PayoutFrequency(r.PayoutFrequency),
		AutoRenew:             r.AutoRenew,
		SourceAccountID:       r.SourceAccountID,
		PayoutAccountID:       r.PayoutAccountID,
		ApprovedBy:            r.ApprovedBy,
		ApprovedAt:            r.ApprovedAt,
		DisbursementAccountID: r.DisbursementAccountID,
		RejectedBy:            r.RejectedBy,
		RejectedAt:            r.RejectedAt,
		RejectionReason:       r.RejectionReason,
		WithdrawnAt:           r.WithdrawnAt,
		MaturedAt:             r.MaturedAt,
		Renewals:              r.Renewals,
		Version:               r.Version,
		CreatedAt:             r.CreatedAt,
		UpdatedAt:             r.UpdatedAt,
	}
}

type payoutRow struct {
	PayoutID         string     `json:"payout_id"`
	InvestmentID     string     `json:"investment_id"`
	PeriodKey        string     `json:"period_key"`
	Amount           string     `json:"amount"`
	PrincipalPortion string     `json:"principal_portion"`
	InterestPortion  string     `json:"interest_portion"`
	Type             string     `json:"type"`
	ScheduledDate    time.Time  `json:"scheduled_date"`
	ProcessedDate    *time.Time `json:"processed_date"`
	Status           string     `json:"status"`
	CreatedAt        time.Time  `json:"created_at"`
}

// payoutKey is the record key of a payout: its period key when it has one,
// so a period can only ever be reserved once.
func payoutKey(rec *models.PayoutRecord) string {
	if rec.PeriodKey != "" {
		return rec.PeriodKey
	}
	return rec.ID
}

func toPayoutRow(rec *models.PayoutRecord) payoutRow {
	return payoutRow{
		PayoutID:         rec.ID,
		InvestmentID:     rec.InvestmentID,
		PeriodKey:        rec.PeriodKey,
		Amount:           rec.Amount.String(),
		PrincipalPortion: rec.PrincipalPortion.String(),
		InterestPortion:  rec.InterestPortion.String(),
		Type:             string(rec.Type),
		ScheduledDate:    rec.ScheduledDate,
		ProcessedDate:    rec.ProcessedDate,
		Status:           string(rec.Status),
		CreatedAt:        rec.CreatedAt,
	}
}

func (r payoutRow) model() *models.PayoutRecord {
	return &models.PayoutRecord{
		ID:               r.PayoutID,
		InvestmentID:     r.InvestmentID,
		PeriodKey:        r.PeriodKey,
		Amount:           dec(r.Amount),
		PrincipalPortion: dec(r.PrincipalPortion),
		InterestPortion:  dec(r.InterestPortion),
		Type:             models.PayoutType(r.Type),
		ScheduledDate:    r.ScheduledDate,
		ProcessedDate:    r.ProcessedDate,
		Status:           models.PayoutStatus(r.Status),
		CreatedAt:        r.CreatedAt,
	}
}

type rateChangeRow struct {
	ChangeID     string    `json:"change_id"`
	InvestmentID string    `json:"investment_id"`
	OldRate      string    `json:"old_rate"`
	NewRate      string    `json:"new_rate"`
	ChangedBy    string    `json:"changed_by"`
	Reason       string    `json:"reason"`
	ChangedAt    time.Time `json:"changed_at"`
}

func toRateChangeRow(rc *models.RateChange) rateChangeRow {
	return rateChangeRow{
		ChangeID:     rc.ID,
		InvestmentID: rc.InvestmentID,
		OldRate:      rc.OldRate.String(),
		NewRate:      rc.NewRate.String(),
		ChangedBy:    rc.ChangedBy,
		Reason:       rc.Reason,
		ChangedAt:    rc.ChangedAt,
	}
}

func (r rateChangeRow) model() *models.RateChange {
	return &models.RateChange{
		ID:           r.ChangeID,
		InvestmentID: r.InvestmentID,
		OldRate:      dec(r.OldRate),
		NewRate:      dec(r.NewRate),
		ChangedBy:    r.ChangedBy,
		Reason:       r.Reason,
		ChangedAt:    r.ChangedAt,
	}
}

type runRow struct {
	RunID      string                  `json:"run_id"`
	AsOf       time.Time               `json:"as_of"`
	StartedAt  time.Time               `json:"started_at"`
	FinishedAt time.Time               `json:"finished_at"`
	Scanned    int                     `json:"scanned"`
	Paid       int                     `json:"paid"`
	Matured    int                     `json:"matured"`
	Skipped    int                     `json:"skipped"`
	Failed     int                     `json:"failed"`
	TotalPaid  string                  `json:"total_paid"`
	Errors     []models.BatchItemError `json:"errors"`
	DurationMS int64                   `json:"duration_ms"`
}

func toRunRow(r *models.BatchResult) runRow {
	return runRow{
		RunID:      r.RunID,
		AsOf:       r.AsOf,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Scanned:    r.Scanned,
		Paid:       r.Paid,
		Matured:    r.Matured,
		Skipped:    r.Skipped,
		Failed:     r.Failed,
		TotalPaid:  r.TotalPaid.String(),
		Errors:     r.Errors,
		DurationMS: r.DurationMS,
	}
}

func (r runRow) model() *models.BatchResult {
	return &models.BatchResult{
		RunID:      r.RunID,
		AsOf:       r.AsOf,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Scanned:    r.Scanned,
		Paid:       r.Paid,
		Matured:    r.Matured,
		Skipped:    r.Skipped,
		Failed:     r.Failed,
		TotalPaid:  dec(r.TotalPaid),
		Errors:     r.Errors,
		DurationMS: r.DurationMS,
	}
}

// isNotFoundError reports whether a SurrealDB error means the record is absent.
func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "does not exist")
}

// isConflictError reports a transaction that lost a read or write conflict
// and can be retried.
func isConflictError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "conflict") || strings.Contains(msg, "can be retried")
}
