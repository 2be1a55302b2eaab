// Package store persists usage counters, subscriptions and billing customers.
package store

import (
	"context"
	"errors"

	"github.com/aloewind/exportremix-sub001/app/models"
)

// ErrNotFound is returned when a keyed read finds no row.
var ErrNotFound = errors.New("store: not found")

// UsageStore reads and atomically increments monthly usage counters.
type UsageStore interface {
	ReadUsage(ctx context.Context, userID string, action models.ActionType, month string) (int, error)
	// IncrementUsage adds delta to the counter, creating it when absent,
	// and returns the new count. Implementations must not read-modify-write.
	IncrementUsage(ctx context.Context, userID string, action models.ActionType, month string, delta int) (int, error)
}

// SubscriptionReader resolves the tier a user is currently entitled to.
// Only active or trialing subscriptions count; anything else is ErrNotFound.
type SubscriptionReader interface {
	ReadSubscriptionTier(ctx context.Context, userID string) (models.TierID, error)
}

// BillingStore is written by the Stripe webhook and checkout handlers.
type BillingStore interface {
	SubscriptionReader
	UpsertSubscription(ctx context.Context, sub models.Subscription) error
	StripeCustomerID(ctx context.Context, userID string) (string, error)
	SaveStripeCustomer(ctx context.Context, userID, customerID string) error
	UserForStripeCustomer(ctx context.Context, customerID string) (string, error)
}

type Store interface {
	UsageStore
	BillingStore
}
