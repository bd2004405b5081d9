package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/learnhub-api/internal/models"
)

const subscriptionColumns = `id, user_id, stripe_customer_id, stripe_subscription_id, status, current_period_end, cancel_at_period_end, created_at, updated_at`

// SubscriptionRepository persists platform subscriptions.
type SubscriptionRepository struct {
	db *sqlx.DB
}

// NewSubscriptionRepository constructs the repository.
func NewSubscriptionRepository(db *sqlx.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

func (r *SubscriptionRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByUser returns the user's subscription.
func (r *SubscriptionRepository) FindByUser(ctx context.Context, userID string) (*models.Subscription, error) {
	var sub models.Subscription
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE user_id = $1`
	if err := r.db.GetContext(ctx, &sub, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find subscription: %w", err)
	}
	return &sub, nil
}

// FindByStripeID returns a subscription by provider id.
func (r *SubscriptionRepository) FindByStripeID(ctx context.Context, exec sqlx.ExtContext, stripeID string) (*models.Subscription, error) {
	var sub models.Subscription
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE stripe_subscription_id = $1`
	if err := sqlx.GetContext(ctx, r.exec(exec), &sub, query, stripeID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find subscription by stripe id: %w", err)
	}
	return &sub, nil
}

// Upsert creates or replaces the user's subscription. A new provider
// subscription id discards the previous billing period.
func (r *SubscriptionRepository) Upsert(ctx context.Context, exec sqlx.ExtContext, sub *models.Subscription) error {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	sub.CreatedAt = now
	sub.UpdatedAt = now
	const query = `INSERT INTO subscriptions (id, user_id, stripe_customer_id, stripe_subscription_id, status, current_period_end, cancel_at_period_end, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
ON CONFLICT (user_id) DO UPDATE SET
	stripe_customer_id = EXCLUDED.stripe_customer_id,
	stripe_subscription_id = EXCLUDED.stripe_subscription_id,
	status = EXCLUDED.status,
	current_period_end = CASE
		WHEN subscriptions.stripe_subscription_id IS DISTINCT FROM EXCLUDED.stripe_subscription_id THEN EXCLUDED.current_period_end
		ELSE COALESCE(EXCLUDED.current_period_end, subscriptions.current_period_end)
	END,
	cancel_at_period_end = EXCLUDED.cancel_at_period_end,
	updated_at = EXCLUDED.updated_at
RETURNING id`
	row := r.exec(exec).QueryRowxContext(ctx, query, sub.ID, sub.UserID, sub.StripeCustomerID, sub.StripeSubscriptionID, sub.Status, sub.CurrentPeriodEnd, sub.CancelAtPeriodEnd, now)
	if err := row.Scan(&sub.ID); err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}

// UpdateState syncs status and billing period from the provider.
func (r *SubscriptionRepository) UpdateState(ctx context.Context, exec sqlx.ExtContext, id string, status models.SubscriptionStatus, periodEnd *time.Time, cancelAtPeriodEnd bool) error {
	const query = `UPDATE subscriptions SET status = $2, current_period_end = COALESCE($3, current_period_end), cancel_at_period_end = $4, updated_at = $5 WHERE id = $1`
	if _, err := r.exec(exec).ExecContext(ctx, query, id, status, periodEnd, cancelAtPeriodEnd, time.Now().UTC()); err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	return nil
}

// ExpireLapsed marks subscriptions whose period ended as expired.
func (r *SubscriptionRepository) ExpireLapsed(ctx context.Context, now time.Time) (int64, error) {
	const query = `UPDATE subscriptions SET status = 'EXPIRED', updated_at = $1 WHERE status IN ('ACTIVE', 'PAST_DUE', 'CANCELLED') AND current_period_end IS NOT NULL AND current_period_end < $1`
	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("expire lapsed subscriptions: %w", err)
	}
	return res.RowsAffected()
}

// CountActive returns the number of currently active subscriptions.
func (r *SubscriptionRepository) CountActive(ctx context.Context) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM subscriptions WHERE status IN ('ACTIVE', 'PAST_DUE')`); err != nil {
		return 0, fmt.Errorf("count active subscriptions: %w", err)
	}
	return total, nil
}
