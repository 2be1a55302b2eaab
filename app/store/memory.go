package store

import (
	"context"
	"sync"

	"github.com/aloewind/exportremix-sub001/app/models"
)

type usageKeyT struct {
	user   string
	action models.ActionType
	month  string
}

// Memory is an in-process Store for local runs and tests.
type Memory struct {
	mu        sync.Mutex
	usage     map[usageKeyT]int
	subs      map[string]models.Subscription
	customers map[string]string
}

func NewMemory() *Memory {
	return &Memory{
		usage:     make(map[usageKeyT]int),
		subs:      make(map[string]models.Subscription),
		customers: make(map[string]string),
	}
}

func (m *Memory) ReadUsage(_ context.Context, userID string, action models.ActionType, month string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.usage[usageKeyT{userID, action, month}]
	if !ok {
		return 0, ErrNotFound
	}
	return n, nil
}

func (m *Memory) IncrementUsage(_ context.Context, userID string, action models.ActionType, month string, delta int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := usageKeyT{userID, action, month}
	m.usage[k] += delta
	return m.usage[k], nil
}

func (m *Memory) ReadSubscriptionTier(_ context.Context, userID string) (models.TierID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[userID]
	if !ok || !sub.Status.Entitled() {
		return "", ErrNotFound
	}
	return sub.Tier, nil
}

func (m *Memory) UpsertSubscription(_ context.Context, sub models.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[sub.UserID] = sub
	return nil
}

func (m *Memory) StripeCustomerID(_ context.Context, userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.customers[userID]
	if !ok {
		return "", ErrNotFound
	}
	return id, nil
}

func (m *Memory) SaveStripeCustomer(_ context.Context, userID, customerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.customers[userID] = customerID
	return nil
}

func (m *Memory) UserForStripeCustomer(_ context.Context, customerID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for user, id := range m.customers {
		if id == customerID {
			return user, nil
		}
	}
	return "", ErrNotFound
}
