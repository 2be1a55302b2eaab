// Package models defines subscription tiers, accounts, and usage tracking fields.
package models

import "time"

type TierID string

const (
	TierFree       TierID = "free"
	TierPro        TierID = "pro"
	TierEnterprise TierID = "enterprise"
)

// Account identifies the caller of a metered action.
type Account struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}

type SubscriptionStatus string

const (
	StatusActive     SubscriptionStatus = "active"
	StatusTrialing   SubscriptionStatus = "trialing"
	StatusIncomplete SubscriptionStatus = "incomplete"
	StatusPastDue    SubscriptionStatus = "past_due"
	StatusUnpaid     SubscriptionStatus = "unpaid"
	StatusCanceled   SubscriptionStatus = "canceled"
)

// Entitled reports whether a subscription in this status grants its tier.
func (s SubscriptionStatus) Entitled() bool {
	return s == StatusActive || s == StatusTrialing
}

type Subscription struct {
	UserID               string             `db:"user_id" json:"userId"`
	Tier                 TierID             `db:"tier" json:"tier"`
	Status               SubscriptionStatus `db:"status" json:"status"`
	StripeCustomerID     string             `db:"stripe_customer_id" json:"-"`
	StripeSubscriptionID string             `db:"stripe_subscription_id" json:"-"`
	CurrentPeriodStart   time.Time          `db:"current_period_start" json:"currentPeriodStart"`
	CurrentPeriodEnd     time.Time          `db:"current_period_end" json:"currentPeriodEnd"`
}
