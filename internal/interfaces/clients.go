// Package interfaces defines service contracts for accrue
package interfaces

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bobmcallan/accrue/internal/models"
)

// Ledger is the external account balance authority.
// Debit returns models.ErrInsufficientFunds when the account cannot cover amount.
type Ledger interface {
	Debit(ctx context.Context, accountID string, amount decimal.Decimal, currency string) (decimal.Decimal, error)
	Credit(ctx context.Context, accountID string, amount decimal.Decimal, currency string) (decimal.Decimal, error)
}

// NotificationSink delivers user notifications. Delivery is best effort.
type NotificationSink interface {
	Notify(ctx context.Context, userID, title, message string, category models.NotificationCategory) error
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// RiskFreeRateSource supplies the annual risk-free rate in percent.
type RiskFreeRateSource interface {
	RiskFreeRate(ctx context.Context) (decimal.Decimal, error)
}
