package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PlanType classifies an investment plan for distribution reporting.
type PlanType string

const (
	PlanTypeFixedDeposit PlanType = "fixed_deposit"
	PlanTypeBond         PlanType = "bond"
	PlanTypeMoneyMarket  PlanType = "money_market"
	PlanTypeEquityFund   PlanType = "equity_fund"
	PlanTypeBalancedFund PlanType = "balanced_fund"
	PlanTypeRealEstate   PlanType = "real_estate"
)

// ParsePlanType converts a stored or user-supplied string to a PlanType.
func ParsePlanType(s string) (PlanType, error) {
	switch PlanType(s) {
	case PlanTypeFixedDeposit, PlanTypeBond, PlanTypeMoneyMarket,
		PlanTypeEquityFund, PlanTypeBalancedFund, PlanTypeRealEstate:
		return PlanType(s), nil
	default:
		return "", fmt.Errorf("invalid plan type %q", s)
	}
}

// PayoutFrequency is the cadence at which interest is distributed.
type PayoutFrequency string

const (
	FrequencyMonthly    PayoutFrequency = "monthly"
	FrequencyQuarterly  PayoutFrequency = "quarterly"
	FrequencySemiAnnual PayoutFrequency = "semi_annual"
	FrequencyAnnual     PayoutFrequency = "annual"
	FrequencyAtMaturity PayoutFrequency = "at_maturity"
)

// ParsePayoutFrequency converts a string to a PayoutFrequency.
func ParsePayoutFrequency(s string) (PayoutFrequency, error) {
	switch PayoutFrequency(s) {
	case FrequencyMonthly, FrequencyQuarterly, FrequencySemiAnnual, FrequencyAnnual, FrequencyAtMaturity:
		return PayoutFrequency(s), nil
	default:
		return "", fmt.Errorf("invalid payout frequency %q", s)
	}
}

// MonthsPerPeriod returns the period length in months for periodic frequencies,
// and 0 for at-maturity.
func (f PayoutFrequency) MonthsPerPeriod() int {
	switch f {
	case FrequencyMonthly:
		return 1
	case FrequencyQuarterly:
		return 3
	case FrequencySemiAnnual:
		return 6
	case FrequencyAnnual:
		return 12
	default:
		return 0
	}
}

// RateBracket maps an inclusive amount range to an annual rate.
type RateBracket struct {
	Min  decimal.Decimal `json:"min"`
	Max  decimal.Decimal `json:"max"`
	Rate decimal.Decimal `json:"rate"`
}

// Contains reports whether amount falls inside [Min, Max].
func (b RateBracket) Contains(amount decimal.Decimal) bool {
	return amount.GreaterThanOrEqual(b.Min) && amount.LessThanOrEqual(b.Max)
}

// InvestmentPlan is a product users can place money into.
// Plans are deactivated rather than deleted once referenced.
type InvestmentPlan struct {
	ID                     string          `json:"id"`
	Name                   string          `json:"name"`
	Type                   PlanType        `json:"type"`
	MinAmount              decimal.Decimal `json:"min_amount"`
	MaxAmount              decimal.Decimal `json:"max_amount"`
	BaseRate               decimal.Decimal `json:"base_rate"` // annual, percent
	MinTermMonths          int             `json:"min_term_months"`
	MaxTermMonths          int             `json:"max_term_months"`
	DefaultFrequency       PayoutFrequency `json:"default_frequency"`
	RequiresApproval       bool            `json:"requires_approval"`
	EarlyWithdrawalPenalty decimal.Decimal `json:"early_withdrawal_penalty"` // percent
	RiskLevel              int             `json:"risk_level"`               // 1-5
	VolatilityIndex        decimal.Decimal `json:"volatility_index"`
	Brackets               []RateBracket   `json:"brackets"` // ordered, first match wins
	Currency               string          `json:"currency"`
	Active                 bool            `json:"active"`
	CreatedAt              time.Time       `json:"created_at"`
	UpdatedAt              time.Time       `json:"updated_at"`
}

// AcceptsAmount reports whether amount is within the plan limits.
// A zero MaxAmount means no upper limit.
func (p *InvestmentPlan) AcceptsAmount(amount decimal.Decimal) bool {
	if amount.LessThan(p.MinAmount) {
		return false
	}
	if !p.MaxAmount.IsZero() && amount.GreaterThan(p.MaxAmount) {
		return false
	}
	return true
}

// AcceptsTerm reports whether months is within the plan term limits.
// A zero MaxTermMonths means no upper limit.
func (p *InvestmentPlan) AcceptsTerm(months int) bool {
	if months <= 0 || months < p.MinTermMonths {
		return false
	}
	if p.MaxTermMonths > 0 && months > p.MaxTermMonths {
		return false
	}
	return true
}

// Validate checks the plan definition before it is stored.
func (p *InvestmentPlan) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("plan name is required")
	}
	if _, err := ParsePlanType(string(p.Type)); err != nil {
		return err
	}
	if _, err := ParsePayoutFrequency(string(p.DefaultFrequency)); err != nil {
		return err
	}
	if p.MinAmount.IsNegative() || (!p.MaxAmount.IsZero() && p.MaxAmount.LessThan(p.MinAmount)) {
		return fmt.Errorf("%w: plan amount limits", ErrInvalidAmount)
	}
	if p.MinTermMonths <= 0 || (p.MaxTermMonths > 0 && p.MaxTermMonths < p.MinTermMonths) {
		return fmt.Errorf("%w: plan term limits", ErrInvalidTerm)
	}
	if p.RiskLevel < 1 || p.RiskLevel > 5 {
		return fmt.Errorf("risk level must be 1-5, got %d", p.RiskLevel)
	}
	if p.BaseRate.IsNegative() || p.EarlyWithdrawalPenalty.IsNegative() {
		return fmt.Errorf("rates must not be negative")
	}
	for i, b := range p.Brackets {
		if b.Max.LessThan(b.Min) {
			return fmt.Errorf("bracket %d: max below min", i)
		}
	}
	if p.Currency == "" {
		return fmt.Errorf("plan currency is required")
	}
	return nil
}
