package models

import "time"

// NotificationCategory groups user notifications for routing.
type NotificationCategory string

const (
	NotifyInvestmentCreated  NotificationCategory = "investment_created"
	NotifyInvestmentApproved NotificationCategory = "investment_approved"
	NotifyInvestmentRejected NotificationCategory = "investment_rejected"
	NotifyWithdrawal         NotificationCategory = "withdrawal"
	NotifyPayout             NotificationCategory = "payout"
	NotifyMatured            NotificationCategory = "matured"
	NotifyRateChanged        NotificationCategory = "rate_changed"
)

// Notification is the message published to the notification exchange.
type Notification struct {
	UserID    string               `json:"user_id"`
	Title     string               `json:"title"`
	Message   string               `json:"message"`
	Category  NotificationCategory `json:"category"`
	CreatedAt time.Time            `json:"created_at"`
}
