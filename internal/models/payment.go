package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus tracks a checkout attempt.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusExpired   PaymentStatus = "EXPIRED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
)

// PaymentMode distinguishes course purchases from subscriptions.
type PaymentMode string

const (
	PaymentModeCourse       PaymentMode = "course"
	PaymentModeSubscription PaymentMode = "subscription"
)

// Payment mirrors a Stripe checkout session.
type Payment struct {
	ID                    string        `db:"id" json:"id"`
	UserID                string        `db:"user_id" json:"user_id"`
	CourseID              *string       `db:"course_id" json:"course_id,omitempty"`
	Mode                  PaymentMode   `db:"mode" json:"mode"`
	AmountCents           int64         `db:"amount_cents" json:"amount_cents"`
	Currency              string        `db:"currency" json:"currency"`
	Status                PaymentStatus `db:"status" json:"status"`
	StripeSessionID       string        `db:"stripe_session_id" json:"stripe_session_id"`
	StripePaymentIntentID *string       `db:"stripe_payment_intent_id" json:"-"`
	CreatedAt             time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time     `db:"updated_at" json:"updated_at"`
	CompletedAt           *time.Time    `db:"completed_at" json:"completed_at,omitempty"`
}

// Amount returns the amount in major currency units.
func (p Payment) Amount() decimal.Decimal {
	return decimal.New(p.AmountCents, -2)
}

// CheckoutSessionRequest starts a Stripe checkout.
type CheckoutSessionRequest struct {
	Mode     PaymentMode `json:"mode" validate:"required,oneof=course subscription"`
	CourseID string      `json:"course_id" validate:"omitempty,uuid"`
}

// CheckoutSessionResponse returns the hosted checkout location.
type CheckoutSessionResponse struct {
	SessionID string    `json:"session_id"`
	URL       string    `json:"url"`
	PaymentID string    `json:"payment_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SubscriptionStatus mirrors the provider subscription lifecycle.
type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "ACTIVE"
	SubscriptionStatusPastDue   SubscriptionStatus = "PAST_DUE"
	SubscriptionStatusCancelled SubscriptionStatus = "CANCELLED"
	SubscriptionStatusExpired   SubscriptionStatus = "EXPIRED"
)

// Subscription is a user's platform-wide plan.
type Subscription struct {
	ID                   string             `db:"id" json:"id"`
	UserID               string             `db:"user_id" json:"user_id"`
	StripeCustomerID     string             `db:"stripe_customer_id" json:"-"`
	StripeSubscriptionID string             `db:"stripe_subscription_id" json:"stripe_subscription_id"`
	Status               SubscriptionStatus `db:"status" json:"status"`
	CurrentPeriodEnd     *time.Time         `db:"current_period_end" json:"current_period_end,omitempty"`
	CancelAtPeriodEnd    bool               `db:"cancel_at_period_end" json:"cancel_at_period_end"`
	CreatedAt            time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time          `db:"updated_at" json:"updated_at"`
}

// IsActive reports whether the subscription currently grants access.
func (s *Subscription) IsActive(now time.Time) bool {
	if s == nil {
		return false
	}
	if s.Status != SubscriptionStatusActive && s.Status != SubscriptionStatusPastDue {
		return false
	}
	return s.CurrentPeriodEnd == nil || now.Before(*s.CurrentPeriodEnd)
}

// WebhookEvent records a processed provider event id.
type WebhookEvent struct {
	ID         string    `db:"id"`
	Type       string    `db:"type"`
	ReceivedAt time.Time `db:"received_at"`
}
