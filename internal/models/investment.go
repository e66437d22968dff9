package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// InvestmentStatus is the lifecycle state of an investment.
type InvestmentStatus string

const (
	StatusPending   InvestmentStatus = "pending"
	StatusActive    InvestmentStatus = "active"
	StatusRejected  InvestmentStatus = "rejected"
	StatusWithdrawn InvestmentStatus = "withdrawn"
	StatusMatured   InvestmentStatus = "matured"
)

// ParseInvestmentStatus converts a string to an InvestmentStatus.
func ParseInvestmentStatus(s string) (InvestmentStatus, error) {
	switch InvestmentStatus(s) {
	case StatusPending, StatusActive, StatusRejected, StatusWithdrawn, StatusMatured:
		return InvestmentStatus(s), nil
	default:
		return "", fmt.Errorf("invalid investment status %q", s)
	}
}

// Terminal reports whether no further transition is possible from s.
func (s InvestmentStatus) Terminal() bool {
	return s == StatusRejected || s == StatusWithdrawn || s == StatusMatured
}

// validTransitions lists the permitted status moves.
var validTransitions = map[InvestmentStatus][]InvestmentStatus{
	StatusPending: {StatusActive, StatusRejected},
	StatusActive:  {StatusActive, StatusWithdrawn, StatusMatured},
}

// CanTransition reports whether moving from s to next is permitted.
func (s InvestmentStatus) CanTransition(next InvestmentStatus) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// TermBucket groups investments by term length.
type TermBucket string

const (
	TermShort  TermBucket = "short"  // <= 6 months
	TermMedium TermBucket = "medium" // <= 12 months
	TermLong   TermBucket = "long"   // > 12 months
)

// TermBucketFor derives the bucket for a term in months.
func TermBucketFor(months int) TermBucket {
	switch {
	case months <= 6:
		return TermShort
	case months <= 12:
		return TermMedium
	default:
		return TermLong
	}
}

// Investment is a user's placement into a plan. It is mutated in place through
// the lifecycle and never deleted; Version guards concurrent writers.
type Investment struct {
	ID              string           `json:"id"`
	UserID          string           `json:"user_id"`
	PlanID          string           `json:"plan_id"`
	Principal       decimal.Decimal  `json:"principal"`
	Currency        string           `json:"currency"`
	BaseRate        decimal.Decimal  `json:"base_rate"`
	EffectiveRate   decimal.Decimal  `json:"effective_rate"`
	TermMonths      int              `json:"term_months"`
	TermBucket      TermBucket       `json:"term_bucket"`
	Status          InvestmentStatus `json:"status"`
	StartDate       time.Time        `json:"start_date"`
	MaturityDate    time.Time        `json:"maturity_date"`
	LastPayoutDate  *time.Time       `json:"last_payout_date,omitempty"`
	TotalPaidOut    decimal.Decimal  `json:"total_paid_out"` // interest paid over every term
	TermPaidOut     decimal.Decimal  `json:"term_paid_out"`  // interest paid in the current term
	MinimumBalance  decimal.Decimal  `json:"minimum_balance"`
	ProjectedReturn decimal.Decimal  `json:"projected_return"`
	PayoutFrequency PayoutFrequency  `json:"payout_frequency"`
	AutoRenew       bool             `json:"auto_renew"`

	SourceAccountID string `json:"source_account_id"`
	PayoutAccountID string `json:"payout_account_id"`

	ApprovedBy            string     `json:"approved_by,omitempty"`
	ApprovedAt            *time.Time `json:"approved_at,omitempty"`
	DisbursementAccountID string     `json:"disbursement_account_id,omitempty"`
	RejectedBy            string     `json:"rejected_by,omitempty"`
	RejectedAt            *time.Time `json:"rejected_at,omitempty"`
	RejectionReason       string     `json:"rejection_reason,omitempty"`
	WithdrawnAt           *time.Time `json:"withdrawn_at,omitempty"`
	MaturedAt             *time.Time `json:"matured_at,omitempty"`
	Renewals              int        `json:"renewals"`

	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy so callers never mutate a stored snapshot through a shared pointer.
func (inv *Investment) Clone() *Investment {
	cp := *inv
	cp.LastPayoutDate = cloneTime(inv.LastPayoutDate)
	cp.ApprovedAt = cloneTime(inv.ApprovedAt)
	cp.RejectedAt = cloneTime(inv.RejectedAt)
	cp.WithdrawnAt = cloneTime(inv.WithdrawnAt)
	cp.MaturedAt = cloneTime(inv.MaturedAt)
	return &cp
}

// AvailableForWithdrawal is the principal above the minimum-balance floor.
func (inv *Investment) AvailableForWithdrawal() decimal.Decimal {
	avail := inv.Principal.Sub(inv.MinimumBalance)
	if avail.IsNegative() {
		return decimal.Zero
	}
	return avail
}

// PayoutAccount returns the account that receives payouts and withdrawals by default.
func (inv *Investment) PayoutAccount() string {
	if inv.PayoutAccountID != "" {
		return inv.PayoutAccountID
	}
	return inv.SourceAccountID
}

// AddMonths adds calendar months to t, clamping to the last day of the target
// month so Jan 31 + 1 month is Feb 28/29 rather than Mar 2/3.
func AddMonths(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(months), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	last := first.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
