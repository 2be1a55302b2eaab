// Package quota enforces monthly per-action allowances for authenticated users.
//
// CheckUsageLimit is read-only and runs before a metered action; TrackUsage runs
// once after the action succeeded. Storage failures during the check degrade to
// the free tier and a zero count rather than failing the request.
package quota

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/aloewind/exportremix-sub001/app/models"
	"github.com/aloewind/exportremix-sub001/app/store"
	"github.com/aloewind/exportremix-sub001/app/tiers"

	"go.uber.org/zap"
)

// ErrQuotaExceeded is matched by ExceededError.
var ErrQuotaExceeded = errors.New("monthly quota exceeded")

// ErrInvalidAction is returned for an action outside models.ActionTypes.
var ErrInvalidAction = errors.New("invalid action type")

// ExceededError carries the values a caller needs to render an upgrade prompt.
type ExceededError struct {
	Action    models.ActionType
	Limit     int
	Remaining int
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("monthly %s quota exceeded (limit %d)", e.Action, e.Limit)
}

func (e *ExceededError) Is(target error) bool {
	return target == ErrQuotaExceeded
}

// Decision is the result of a quota check.
type Decision struct {
	Allowed   bool          `json:"allowed"`
	Remaining int           `json:"remaining"`
	Limit     int           `json:"limit"`
	Unlimited bool          `json:"unlimited"`
	Tier      models.TierID `json:"tier"`
}

// Err returns an *ExceededError when the decision denies the action.
func (d Decision) Err(action models.ActionType) error {
	if d.Allowed {
		return nil
	}
	return &ExceededError{Action: action, Limit: d.Limit, Remaining: d.Remaining}
}

type Gate struct {
	catalog        *tiers.Catalog
	usage          store.UsageStore
	subs           store.SubscriptionReader
	unlimited      map[string]struct{}
	now            func() time.Time
	logger         *zap.Logger
	storageTimeout time.Duration
}

type Option func(*Gate)

// WithUnlimitedAccounts exempts the given user ids or emails from metering.
func WithUnlimitedAccounts(ids ...string) Option {
	return func(g *Gate) {
		for _, id := range ids {
			if id = strings.ToLower(strings.TrimSpace(id)); id != "" {
				g.unlimited[id] = struct{}{}
			}
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

func WithLogger(logger *zap.Logger) Option {
	return func(g *Gate) { g.logger = logger }
}

// WithStorageTimeout bounds every storage call made by the gate.
func WithStorageTimeout(d time.Duration) Option {
	return func(g *Gate) { g.storageTimeout = d }
}

func NewGate(catalog *tiers.Catalog, usage store.UsageStore, subs store.SubscriptionReader, opts ...Option) *Gate {
	g := &Gate{
		catalog:        catalog,
		usage:          usage,
		subs:           subs,
		unlimited:      make(map[string]struct{}),
		now:            time.Now,
		logger:         zap.NewNop(),
		storageTimeout: 3 * time.Second,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// IsUnlimitedAccount reports whether acct bypasses metering entirely.
func (g *Gate) IsUnlimitedAccount(acct models.Account) bool {
	if _, ok := g.unlimited[strings.ToLower(acct.ID)]; ok && acct.ID != "" {
		return true
	}
	if _, ok := g.unlimited[strings.ToLower(acct.Email)]; ok && acct.Email != "" {
		return true
	}
	return false
}

// CheckUsageLimit decides whether acct may perform action this month. It never
// writes.
func (g *Gate) CheckUsageLimit(ctx context.Context, acct models.Account, action models.ActionType) (Decision, error) {
	if !action.Valid() {
		return Decision{}, fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}
	if g.IsUnlimitedAccount(acct) {
		return Decision{Allowed: true, Remaining: math.MaxInt32, Unlimited: true, Tier: models.TierEnterprise}, nil
	}

	tier := g.tierFor(ctx, acct.ID)
	allowance := tier.Allowance(action)
	if allowance.Unlimited {
		return Decision{Allowed: true, Remaining: math.MaxInt32, Unlimited: true, Tier: tier.ID}, nil
	}

	count := g.countFor(ctx, acct.ID, action)
	return Decision{
		Allowed:   count < allowance.Limit,
		Remaining: max(0, allowance.Limit-count),
		Limit:     allowance.Limit,
		Tier:      tier.ID,
	}, nil
}

// TrackUsage records one successful action. It is not idempotent: callers
// invoke it exactly once per billable action.
func (g *Gate) TrackUsage(ctx context.Context, acct models.Account, action models.ActionType) error {
	if !action.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}
	if g.IsUnlimitedAccount(acct) {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, g.storageTimeout)
	defer cancel()

	month := models.MonthKey(g.now())
	if _, err := g.usage.IncrementUsage(ctx, acct.ID, action, month, 1); err != nil {
		g.logger.Error("track usage failed",
			zap.String("user", acct.ID),
			zap.String("action", string(action)),
			zap.String("month", month),
			zap.Error(err))
		return fmt.Errorf("track usage: %w", err)
	}
	return nil
}

// ActionUsage is one line of a usage summary.
type ActionUsage struct {
	Action    models.ActionType `json:"action"`
	Used      int               `json:"used"`
	Limit     int               `json:"limit"`
	Remaining int               `json:"remaining"`
	Unlimited bool              `json:"unlimited"`
}

type Summary struct {
	Tier    models.TierID  `json:"tier"`
	Month   string         `json:"month"`
	Actions []ActionUsage  `json:"actions"`
	Feature tiers.Features `json:"features"`
}

// Usage reports the current month's consumption for every action type.
func (g *Gate) Usage(ctx context.Context, acct models.Account) Summary {
	month := models.MonthKey(g.now())
	if g.IsUnlimitedAccount(acct) {
		ent, ok := g.catalog.Get(models.TierEnterprise)
		if !ok {
			ent = g.catalog.Free()
		}
		s := Summary{Tier: models.TierEnterprise, Month: month, Feature: ent.Features}
		for _, action := range models.ActionTypes {
			s.Actions = append(s.Actions, ActionUsage{Action: action, Remaining: math.MaxInt32, Unlimited: true})
		}
		return s
	}

	tier := g.tierFor(ctx, acct.ID)
	s := Summary{Tier: tier.ID, Month: month, Feature: tier.Features}
	for _, action := range models.ActionTypes {
		used := g.countFor(ctx, acct.ID, action)
		allowance := tier.Allowance(action)
		line := ActionUsage{Action: action, Used: used, Unlimited: allowance.Unlimited}
		if allowance.Unlimited {
			line.Remaining = math.MaxInt32
		} else {
			line.Limit = allowance.Limit
			line.Remaining = max(0, allowance.Limit-used)
		}
		s.Actions = append(s.Actions, line)
	}
	return s
}

// tierFor falls back to the free tier on a missing row, a lookup error, or an
// id absent from the catalog.
func (g *Gate) tierFor(ctx context.Context, userID string) tiers.Tier {
	ctx, cancel := context.WithTimeout(ctx, g.storageTimeout)
	defer cancel()

	id, err := g.subs.ReadSubscriptionTier(ctx, userID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			g.logger.Warn("subscription lookup failed, using free tier",
				zap.String("user", userID), zap.Error(err))
		}
		return g.catalog.Free()
	}
	tier, ok := g.catalog.Get(id)
	if !ok {
		g.logger.Warn("unknown tier on subscription, using free tier",
			zap.String("user", userID), zap.String("tier", string(id)))
		return g.catalog.Free()
	}
	return tier
}

// countFor treats a missing record and a lookup error alike as zero usage.
func (g *Gate) countFor(ctx context.Context, userID string, action models.ActionType) int {
	ctx, cancel := context.WithTimeout(ctx, g.storageTimeout)
	defer cancel()

	month := models.MonthKey(g.now())
	n, err := g.usage.ReadUsage(ctx, userID, action, month)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			g.logger.Warn("usage lookup failed, treating as zero",
				zap.String("user", userID),
				zap.String("action", string(action)),
				zap.Error(err))
		}
		return 0
	}
	return n
}
