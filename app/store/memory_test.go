package store

import (
	"context"
	"sync"
	"testing"

	"github.com/aloewind/exportremix-sub001/app/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryConcurrentIncrementsAreNotLost(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = m.IncrementUsage(ctx, "u1", models.ActionRemix, "2026-10", 1)
		}()
	}
	wg.Wait()

	got, err := m.ReadUsage(ctx, "u1", models.ActionRemix, "2026-10")
	require.NoError(t, err)
	assert.Equal(t, n, got)
}

func TestMemorySubscriptionEntitlement(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.UpsertSubscription(ctx, models.Subscription{UserID: "u1", Tier: models.TierEnterprise, Status: models.StatusIncomplete}))
	_, err := m.ReadSubscriptionTier(ctx, "u1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.UpsertSubscription(ctx, models.Subscription{UserID: "u1", Tier: models.TierEnterprise, Status: models.StatusTrialing}))
	tier, err := m.ReadSubscriptionTier(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.TierEnterprise, tier)
}
