package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Outcome of one investment within a batch run.
const (
	ItemPaid    = "paid"
	ItemMatured = "matured"
	ItemSkipped = "skipped"
	ItemFailed  = "failed"
)

// BatchItemError records an investment that failed during a batch run.
// It will be picked up again on the next run.
type BatchItemError struct {
	InvestmentID string `json:"investment_id"`
	Error        string `json:"error"`
}

// BatchResult summarises one pass of the payout runner.
type BatchResult struct {
	RunID      string           `json:"run_id"`
	AsOf       time.Time        `json:"as_of"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Scanned    int              `json:"scanned"`
	Paid       int              `json:"paid"`
	Matured    int              `json:"matured"`
	Skipped    int              `json:"skipped"`
	Failed     int              `json:"failed"`
	TotalPaid  decimal.Decimal  `json:"total_paid"`
	Errors     []BatchItemError `json:"errors,omitempty"`
	DurationMS int64            `json:"duration_ms"`
}
