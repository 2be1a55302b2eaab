package quota

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aloewind/exportremix-sub001/app/models"
	"github.com/aloewind/exportremix-sub001/app/store"
	"github.com/aloewind/exportremix-sub001/app/tiers"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, time.March, 14, 9, 30, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

type failingStore struct{}

func (failingStore) ReadUsage(context.Context, string, models.ActionType, string) (int, error) {
	return 0, errors.New("connection refused")
}

func (failingStore) IncrementUsage(context.Context, string, models.ActionType, string, int) (int, error) {
	return 0, errors.New("connection refused")
}

func (failingStore) ReadSubscriptionTier(context.Context, string) (models.TierID, error) {
	return "", errors.New("connection refused")
}

// countingStore records how many writes reach storage.
type countingStore struct {
	*store.Memory
	mu     sync.Mutex
	writes int
}

func (c *countingStore) IncrementUsage(ctx context.Context, user string, action models.ActionType, month string, delta int) (int, error) {
	c.mu.Lock()
	c.writes++
	c.mu.Unlock()
	return c.Memory.IncrementUsage(ctx, user, action, month, delta)
}

func seed(t *testing.T, m *store.Memory, user string, action models.ActionType, n int) {
	t.Helper()
	if n == 0 {
		return
	}
	_, err := m.IncrementUsage(context.Background(), user, action, models.MonthKey(fixedNow), n)
	require.NoError(t, err)
}

func subscribe(t *testing.T, m *store.Memory, user string, tier models.TierID, status models.SubscriptionStatus) {
	t.Helper()
	require.NoError(t, m.UpsertSubscription(context.Background(), models.Subscription{
		UserID: user, Tier: tier, Status: status,
	}))
}

func TestFreeTierAtLimitIsDenied(t *testing.T) {
	m := store.NewMemory()
	seed(t, m, "u1", models.ActionAIAnalysis, 100)
	g := NewGate(tiers.Default(), m, m, WithClock(clock))

	d, err := g.CheckUsageLimit(context.Background(), models.Account{ID: "u1"}, models.ActionAIAnalysis)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Equal(t, 100, d.Limit)
	assert.Equal(t, models.TierFree, d.Tier)

	var exceeded *ExceededError
	require.ErrorAs(t, d.Err(models.ActionAIAnalysis), &exceeded)
	assert.ErrorIs(t, exceeded, ErrQuotaExceeded)
	assert.Equal(t, 100, exceeded.Limit)
}

func TestCheckIsReadOnly(t *testing.T) {
	m := &countingStore{Memory: store.NewMemory()}
	g := NewGate(tiers.Default(), m, m, WithClock(clock))

	for i := 0; i < 5; i++ {
		d, err := g.CheckUsageLimit(context.Background(), models.Account{ID: "u1"}, models.ActionRemix)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, 100, d.Remaining)
	}
	assert.Zero(t, m.writes)
}

func TestPerActionOverride(t *testing.T) {
	m := store.NewMemory()
	seed(t, m, "u1", models.ActionExport, 19)
	g := NewGate(tiers.Default(), m, m, WithClock(clock))

	d, err := g.CheckUsageLimit(context.Background(), models.Account{ID: "u1"}, models.ActionExport)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Remaining)
	assert.Equal(t, 20, d.Limit)
}

func TestUnlimitedTierAlwaysAllowed(t *testing.T) {
	m := store.NewMemory()
	subscribe(t, m, "corp", models.TierEnterprise, models.StatusActive)
	seed(t, m, "corp", models.ActionAIAnalysis, 1_000_000)
	g := NewGate(tiers.Default(), m, m, WithClock(clock))

	for _, action := range models.ActionTypes {
		d, err := g.CheckUsageLimit(context.Background(), models.Account{ID: "corp"}, action)
		require.NoError(t, err)
		assert.True(t, d.Allowed, action)
		assert.True(t, d.Unlimited, action)
		assert.Equal(t, models.TierEnterprise, d.Tier)
	}
}

func TestLapsedSubscriptionFallsBackToFree(t *testing.T) {
	m := store.NewMemory()
	subscribe(t, m, "u1", models.TierPro, models.StatusPastDue)
	seed(t, m, "u1", models.ActionAIAnalysis, 150)
	g := NewGate(tiers.Default(), m, m, WithClock(clock))

	d, err := g.CheckUsageLimit(context.Background(), models.Account{ID: "u1"}, models.ActionAIAnalysis)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, models.TierFree, d.Tier)
}

func TestProTierUsesItsLimit(t *testing.T) {
	m := store.NewMemory()
	subscribe(t, m, "u1", models.TierPro, models.StatusTrialing)
	seed(t, m, "u1", models.ActionAIAnalysis, 150)
	g := NewGate(tiers.Default(), m, m, WithClock(clock))

	d, err := g.CheckUsageLimit(context.Background(), models.Account{ID: "u1"}, models.ActionAIAnalysis)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 850, d.Remaining)
	assert.Equal(t, 1000, d.Limit)
}

func TestBypassAccountAllowedAndNeverTracked(t *testing.T) {
	m := &countingStore{Memory: store.NewMemory()}
	g := NewGate(tiers.Default(), m, m, WithClock(clock), WithUnlimitedAccounts("Owner@Example.com", "qa-user"))

	for _, acct := range []models.Account{
		{ID: "abc", Email: "owner@example.com"},
		{ID: "qa-user"},
	} {
		for i := 0; i < 3; i++ {
			d, err := g.CheckUsageLimit(context.Background(), acct, models.ActionAIAnalysis)
			require.NoError(t, err)
			assert.True(t, d.Allowed)
			assert.True(t, d.Unlimited)
			require.NoError(t, g.TrackUsage(context.Background(), acct, models.ActionAIAnalysis))
		}
	}
	assert.Zero(t, m.writes)
}

func TestStorageErrorsDegradeToFreeAndZero(t *testing.T) {
	g := NewGate(tiers.Default(), failingStore{}, failingStore{}, WithClock(clock))

	d, err := g.CheckUsageLimit(context.Background(), models.Account{ID: "u1"}, models.ActionPolicyCheck)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, models.TierFree, d.Tier)
	assert.Equal(t, 100, d.Remaining)

	err = g.TrackUsage(context.Background(), models.Account{ID: "u1"}, models.ActionPolicyCheck)
	assert.Error(t, err)
}

func TestInvalidAction(t *testing.T) {
	m := store.NewMemory()
	g := NewGate(tiers.Default(), m, m)

	_, err := g.CheckUsageLimit(context.Background(), models.Account{ID: "u1"}, "mining")
	assert.ErrorIs(t, err, ErrInvalidAction)
	assert.ErrorIs(t, g.TrackUsage(context.Background(), models.Account{ID: "u1"}, "mining"), ErrInvalidAction)
}

func TestConcurrentTracksAreAllCounted(t *testing.T) {
	m := store.NewMemory()
	g := NewGate(tiers.Default(), m, m, WithClock(clock))
	acct := models.Account{ID: "u1"}

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, g.TrackUsage(context.Background(), acct, models.ActionRemix))
		}()
	}
	wg.Wait()

	n, err := m.ReadUsage(context.Background(), "u1", models.ActionRemix, "2025-03")
	require.NoError(t, err)
	assert.Equal(t, 40, n)
}

func TestUsageSummary(t *testing.T) {
	m := store.NewMemory()
	seed(t, m, "u1", models.ActionAIAnalysis, 7)
	seed(t, m, "u1", models.ActionExport, 25)
	g := NewGate(tiers.Default(), m, m, WithClock(clock))

	s := g.Usage(context.Background(), models.Account{ID: "u1"})
	assert.Equal(t, models.TierFree, s.Tier)
	assert.Equal(t, "2025-03", s.Month)
	require.Len(t, s.Actions, len(models.ActionTypes))

	byAction := map[models.ActionType]ActionUsage{}
	for _, a := range s.Actions {
		byAction[a.Action] = a
	}
	assert.Equal(t, ActionUsage{Action: models.ActionAIAnalysis, Used: 7, Limit: 100, Remaining: 93}, byAction[models.ActionAIAnalysis])
	assert.Equal(t, ActionUsage{Action: models.ActionExport, Used: 25, Limit: 20, Remaining: 0}, byAction[models.ActionExport])
}

func TestMonthRollover(t *testing.T) {
	m := store.NewMemory()
	seed(t, m, "u1", models.ActionAIAnalysis, 100)
	next := func() time.Time { return fixedNow.AddDate(0, 1, 0) }
	g := NewGate(tiers.Default(), m, m, WithClock(next))

	d, err := g.CheckUsageLimit(context.Background(), models.Account{ID: "u1"}, models.ActionAIAnalysis)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 100, d.Remaining)
}

func TestQuotaProperties(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200
	properties := gopter.NewProperties(params)

	properties.Property("remaining is never negative and allowed iff count < limit", prop.ForAll(
		func(limit, count int) bool {
			catalog, err := tiers.Parse([]byte(fmt.Sprintf("tiers:\n  - id: free\n    monthlyRequests: %d\n", limit)))
			if err != nil {
				return false
			}
			m := store.NewMemory()
			if count > 0 {
				_, _ = m.IncrementUsage(context.Background(), "u", models.ActionAIAnalysis, models.MonthKey(fixedNow), count)
			}
			g := NewGate(catalog, m, m, WithClock(clock))
			d, err := g.CheckUsageLimit(context.Background(), models.Account{ID: "u"}, models.ActionAIAnalysis)
			if err != nil {
				return false
			}
			return d.Remaining >= 0 && d.Allowed == (count < limit) && d.Remaining <= limit
		},
		gen.IntRange(0, 500),
		gen.IntRange(0, 1000),
	))

	properties.Property("n tracks produce a count of n", prop.ForAll(
		func(n int) bool {
			m := store.NewMemory()
			g := NewGate(tiers.Default(), m, m, WithClock(clock))
			for i := 0; i < n; i++ {
				if err := g.TrackUsage(context.Background(), models.Account{ID: "u"}, models.ActionPolicyCheck); err != nil {
					return false
				}
			}
			got, err := m.ReadUsage(context.Background(), "u", models.ActionPolicyCheck, models.MonthKey(fixedNow))
			if n == 0 {
				return errors.Is(err, store.ErrNotFound)
			}
			return err == nil && got == n
		},
		gen.IntRange(0, 60),
	))

	properties.TestingRun(t)
}
