package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/aloewind/exportremix-sub001/app/models"

	"github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS usage_records (
	user_id     TEXT        NOT NULL,
	action_type TEXT        NOT NULL,
	month       CHAR(7)     NOT NULL,
	count       INT         NOT NULL DEFAULT 0,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (user_id, action_type, month)
);
CREATE TABLE IF NOT EXISTS subscriptions (
	user_id                TEXT PRIMARY KEY,
	tier                   TEXT        NOT NULL DEFAULT 'free',
	status                 TEXT        NOT NULL,
	stripe_customer_id     TEXT,
	stripe_subscription_id TEXT,
	current_period_start   TIMESTAMPTZ,
	current_period_end     TIMESTAMPTZ,
	updated_at             TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS billing_customers (
	user_id            TEXT PRIMARY KEY,
	stripe_customer_id TEXT NOT NULL UNIQUE
);
`

// Postgres is the lib/pq backed Store.
type Postgres struct {
	db *sql.DB
}

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	d, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	if err := d.PingContext(ctx); err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("db.Ping: %w", err)
	}
	return d, nil
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Migrate creates the tables when they do not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, schema)
	return err
}

func (p *Postgres) ReadUsage(ctx context.Context, userID string, action models.ActionType, month string) (int, error) {
	var count int
	err := p.db.QueryRowContext(ctx, `
		SELECT count
		FROM usage_records
		WHERE user_id = $1 AND action_type = $2 AND month = $3;
	`, userID, action, month).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return count, nil
}

// IncrementUsage upserts the counter in a single statement so concurrent
// requests cannot lose an update.
func (p *Postgres) IncrementUsage(ctx context.Context, userID string, action models.ActionType, month string, delta int) (int, error) {
	var count int
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO usage_records (user_id, action_type, month, count)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, action_type, month)
		DO UPDATE SET count = usage_records.count + EXCLUDED.count, updated_at = now()
		RETURNING count;
	`, userID, action, month, delta).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (p *Postgres) ReadSubscriptionTier(ctx context.Context, userID string) (models.TierID, error) {
	var tier models.TierID
	err := p.db.QueryRowContext(ctx, `
		SELECT tier
		FROM subscriptions
		WHERE user_id = $1 AND status = ANY($2);
	`, userID, pq.Array([]string{string(models.StatusActive), string(models.StatusTrialing)})).Scan(&tier)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return tier, nil
}

func (p *Postgres) UpsertSubscription(ctx context.Context, sub models.Subscription) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO subscriptions (
			user_id, tier, status, stripe_customer_id, stripe_subscription_id,
			current_period_start, current_period_end
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE SET
			tier = EXCLUDED.tier,
			status = EXCLUDED.status,
			stripe_customer_id = EXCLUDED.stripe_customer_id,
			stripe_subscription_id = EXCLUDED.stripe_subscription_id,
			current_period_start = EXCLUDED.current_period_start,
			current_period_end = EXCLUDED.current_period_end,
			updated_at = now();
	`,
		sub.UserID,
		sub.Tier,
		sub.Status,
		nullIfEmpty(sub.StripeCustomerID),
		nullIfEmpty(sub.StripeSubscriptionID),
		nullIfZero(sub.CurrentPeriodStart),
		nullIfZero(sub.CurrentPeriodEnd),
	)
	return err
}

func (p *Postgres) StripeCustomerID(ctx context.Context, userID string) (string, error) {
	var id string
	err := p.db.QueryRowContext(ctx, `
		SELECT stripe_customer_id
		FROM billing_customers
		WHERE user_id = $1;
	`, userID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return id, err
}

func (p *Postgres) SaveStripeCustomer(ctx context.Context, userID, customerID string) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO billing_customers (user_id, stripe_customer_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET stripe_customer_id = EXCLUDED.stripe_customer_id;
	`, userID, customerID)
	return err
}

func (p *Postgres) UserForStripeCustomer(ctx context.Context, customerID string) (string, error) {
	var userID string
	err := p.db.QueryRowContext(ctx, `
		SELECT user_id
		FROM billing_customers
		WHERE stripe_customer_id = $1;
	`, customerID).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return userID, err
}
