package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// RateType says how an override combines with the tier rate.
type RateType string

const (
	RateTypeOverride RateType = "OVERRIDE" // replaces the tier rate
	RateTypeBonus    RateType = "BONUS"    // added to the tier rate
)

// ParseRateType converts a string to a RateType.
func ParseRateType(s string) (RateType, error) {
	switch RateType(s) {
	case RateTypeOverride, RateTypeBonus:
		return RateType(s), nil
	default:
		return "", fmt.Errorf("invalid rate type %q", s)
	}
}

// RateOverride is a time-windowed rate exception. An empty UserID or PlanID
// means the override applies to all users or all plans respectively.
type RateOverride struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	PlanID        string          `json:"plan_id"`
	RateType      RateType        `json:"rate_type"`
	Rate          decimal.Decimal `json:"rate"`
	EffectiveFrom time.Time       `json:"effective_from"`
	EffectiveTo   *time.Time      `json:"effective_to,omitempty"`
	Active        bool            `json:"active"`
	Reason        string          `json:"reason,omitempty"`
	CreatedBy     string          `json:"created_by"`
	CreatedAt     time.Time       `json:"created_at"`
}

// SameScope reports whether o and other target the exact same (user, plan, type) scope.
func (o *RateOverride) SameScope(other *RateOverride) bool {
	return o.UserID == other.UserID && o.PlanID == other.PlanID && o.RateType == other.RateType
}

// EffectiveAt reports whether the override window covers t.
func (o *RateOverride) EffectiveAt(t time.Time) bool {
	if t.Before(o.EffectiveFrom) {
		return false
	}
	return o.EffectiveTo == nil || !t.After(*o.EffectiveTo)
}

// Matches reports whether the override scope applies to the given user and plan.
func (o *RateOverride) Matches(userID, planID string) bool {
	return (o.UserID == "" || o.UserID == userID) && (o.PlanID == "" || o.PlanID == planID)
}

// Specificity ranks scopes: user+plan 3, user-only 2, plan-only 1, global 0.
func (o *RateOverride) Specificity() int {
	switch {
	case o.UserID != "" && o.PlanID != "":
		return 3
	case o.UserID != "":
		return 2
	case o.PlanID != "":
		return 1
	default:
		return 0
	}
}
