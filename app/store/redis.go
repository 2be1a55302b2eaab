package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aloewind/exportremix-sub001/app/models"

	"github.com/redis/go-redis/v9"
)

// usageTTL keeps a month's counters a little past the month boundary.
const usageTTL = 40 * 24 * time.Hour

// Redis is a Store backed by Redis hashes. Counters use HINCRBY, which is atomic.
type Redis struct {
	client *redis.Client
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// DialRedis creates a client and verifies it with PING.
func DialRedis(ctx context.Context, addr, password string, db int) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Redis{client: rdb}, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func usageKey(userID, month string) string {
	return fmt.Sprintf("usage:%s:%s", userID, month)
}

func subscriptionKey(userID string) string {
	return "subscription:" + userID
}

func (r *Redis) ReadUsage(ctx context.Context, userID string, action models.ActionType, month string) (int, error) {
	n, err := r.client.HGet(ctx, usageKey(userID, month), string(action)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (r *Redis) IncrementUsage(ctx context.Context, userID string, action models.ActionType, month string, delta int) (int, error) {
	key := usageKey(userID, month)
	var incr *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.HIncrBy(ctx, key, string(action), int64(delta))
		pipe.Expire(ctx, key, usageTTL)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int(incr.Val()), nil
}

func (r *Redis) ReadSubscriptionTier(ctx context.Context, userID string) (models.TierID, error) {
	vals, err := r.client.HMGet(ctx, subscriptionKey(userID), "tier", "status").Result()
	if err != nil {
		return "", err
	}
	tier, _ := vals[0].(string)
	status, _ := vals[1].(string)
	if tier == "" || !models.SubscriptionStatus(status).Entitled() {
		return "", ErrNotFound
	}
	return models.TierID(tier), nil
}

func (r *Redis) UpsertSubscription(ctx context.Context, sub models.Subscription) error {
	fields := map[string]any{
		"tier":                   string(sub.Tier),
		"status":                 string(sub.Status),
		"stripe_customer_id":     sub.StripeCustomerID,
		"stripe_subscription_id": sub.StripeSubscriptionID,
	}
	// Zero period bounds are left unset, like NULL columns in Postgres.
	var unset []string
	for name, t := range map[string]time.Time{
		"current_period_start": sub.CurrentPeriodStart,
		"current_period_end":   sub.CurrentPeriodEnd,
	} {
		if t.IsZero() {
			unset = append(unset, name)
			continue
		}
		fields[name] = t.Unix()
	}

	key := subscriptionKey(sub.UserID)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fields)
		if len(unset) > 0 {
			pipe.HDel(ctx, key, unset...)
		}
		return nil
	})
	return err
}

func (r *Redis) StripeCustomerID(ctx context.Context, userID string) (string, error) {
	id, err := r.client.Get(ctx, "stripe:customer:"+userID).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	return id, err
}

func (r *Redis) SaveStripeCustomer(ctx context.Context, userID, customerID string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, "stripe:customer:"+userID, customerID, 0)
		pipe.Set(ctx, "stripe:user:"+customerID, userID, 0)
		return nil
	})
	return err
}

func (r *Redis) UserForStripeCustomer(ctx context.Context, customerID string) (string, error) {
	id, err := r.client.Get(ctx, "stripe:user:"+customerID).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	return id, err
}
