package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreateInvestmentRequest places money into a plan.
// Zero TermMonths and empty Frequency fall back to the plan defaults.
type CreateInvestmentRequest struct {
	UserID          string
	PlanID          string
	Amount          decimal.Decimal
	TermMonths      int
	Frequency       PayoutFrequency
	AutoRenew       bool
	SourceAccountID string
	PayoutAccountID string
}

// ApproveRequest moves a pending investment to active.
// A nil RateOverride keeps the rate resolved at creation.
type ApproveRequest struct {
	InvestmentID          string
	ApprovedBy            string
	DisbursementAccountID string
	RateOverride          *decimal.Decimal
	Reason                string
}

// WithdrawRequest removes principal from an active investment.
// Full forces withdrawal of the entire principal regardless of Amount.
type WithdrawRequest struct {
	InvestmentID         string
	UserID               string
	Amount               decimal.Decimal
	Full                 bool
	DestinationAccountID string
}

// PenaltyQuote is the price of an early withdrawal.
type PenaltyQuote struct {
	WithdrawalAmount   decimal.Decimal `json:"withdrawal_amount"`
	CompletionFraction decimal.Decimal `json:"completion_fraction"`
	AdjustedPenaltyPct decimal.Decimal `json:"adjusted_penalty_pct"`
	PenaltyAmount      decimal.Decimal `json:"penalty_amount"`
	LostInterest       decimal.Decimal `json:"lost_interest"`
	TotalPenalty       decimal.Decimal `json:"total_penalty"`
	NetAmount          decimal.Decimal `json:"net_amount"`
	NeedsReview        bool            `json:"needs_review"` // penalty exceeded the amount and net was clamped to zero
}

// WithdrawalResult describes a completed withdrawal.
type WithdrawalResult struct {
	Investment    *Investment     `json:"investment"`
	Gross         decimal.Decimal `json:"gross"`
	Quote         PenaltyQuote    `json:"quote"`
	PenaltyRecord *PayoutRecord   `json:"penalty_record,omitempty"`
	FullExit      bool            `json:"full_exit"`
	NeedsReview   bool            `json:"needs_review"`
	ProcessedAt   time.Time       `json:"processed_at"`
}

// PreviewRequest quotes a payout schedule before an investment exists.
type PreviewRequest struct {
	Principal  decimal.Decimal
	Rate       decimal.Decimal // annual, percent
	TermMonths int
	Frequency  PayoutFrequency
	StartDate  time.Time
}
