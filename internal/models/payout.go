package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PayoutType classifies a ledger entry against an investment.
type PayoutType string

const (
	PayoutTypeInterest  PayoutType = "interest"
	PayoutTypeBonus     PayoutType = "bonus"
	PayoutTypePenalty   PayoutType = "penalty"
	PayoutTypePrincipal PayoutType = "principal"
)

// PayoutStatus tracks whether the money movement for a record has been confirmed.
type PayoutStatus string

const (
	PayoutStatusScheduled PayoutStatus = "scheduled"
	PayoutStatusCompleted PayoutStatus = "completed"
)

// PayoutRecord is an append-only entry of money paid or charged against an investment.
// Amount is signed: positive is paid to the owner, negative is a penalty charge.
type PayoutRecord struct {
	ID               string          `json:"id"`
	InvestmentID     string          `json:"investment_id"`
	PeriodKey        string          `json:"period_key,omitempty"`
	Amount           decimal.Decimal `json:"amount"`
	PrincipalPortion decimal.Decimal `json:"principal_portion"`
	InterestPortion  decimal.Decimal `json:"interest_portion"`
	Type             PayoutType      `json:"type"`
	ScheduledDate    time.Time       `json:"scheduled_date"`
	ProcessedDate    *time.Time      `json:"processed_date,omitempty"`
	Status           PayoutStatus    `json:"status"`
	CreatedAt        time.Time       `json:"created_at"`
}

// PeriodKey builds the idempotency key for a payout due on the given date.
func PeriodKey(investmentID string, due time.Time) string {
	return fmt.Sprintf("%s:%s", investmentID, due.UTC().Format("2006-01-02"))
}

// PreviewEntry is one row of a quoted payout schedule.
type PreviewEntry struct {
	Period           int             `json:"period"`
	Date             time.Time       `json:"date"`
	PrincipalPortion decimal.Decimal `json:"principal_portion"`
	InterestPortion  decimal.Decimal `json:"interest_portion"`
	Total            decimal.Decimal `json:"total"`
	RunningBalance   decimal.Decimal `json:"running_balance"`
}

// RateChange is the audit entry for an explicit effective-rate change.
type RateChange struct {
	ID           string          `json:"id"`
	InvestmentID string          `json:"investment_id"`
	OldRate      decimal.Decimal `json:"old_rate"`
	NewRate      decimal.Decimal `json:"new_rate"`
	ChangedBy    string          `json:"changed_by"`
	Reason       string          `json:"reason"`
	ChangedAt    time.Time       `json:"changed_at"`
}
