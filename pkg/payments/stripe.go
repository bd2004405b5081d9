package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v75"
	"github.com/stripe/stripe-go/v75/balance"
	"github.com/stripe/stripe-go/v75/checkout/session"
	"github.com/stripe/stripe-go/v75/webhook"

	"github.com/noah-isme/learnhub-api/pkg/config"
)

// Checkout modes.
const (
	ModeCourse       = "course"
	ModeSubscription = "subscription"
)

// Webhook event types handled by the platform.
const (
	EventCheckoutCompleted = "checkout.session.completed"
	EventCheckoutExpired   = "checkout.session.expired"
	// Delayed payment methods report settlement after checkout completes.
	EventCheckoutAsyncSucceeded = "checkout.session.async_payment_succeeded"
	EventCheckoutAsyncFailed    = "checkout.session.async_payment_failed"
	EventSubscriptionUpdated    = "customer.subscription.updated"
	EventSubscriptionDeleted    = "customer.subscription.deleted"
)

// CheckoutPaid reports whether a checkout session's payment_status means funds
// are settled.
func CheckoutPaid(paymentStatus string) bool {
	switch paymentStatus {
	case string(stripe.CheckoutSessionPaymentStatusPaid), string(stripe.CheckoutSessionPaymentStatusNoPaymentRequired):
		return true
	}
	return false
}

// ErrInvalidSignature is returned when a webhook payload cannot be verified.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// CheckoutRequest describes a hosted checkout session to create.
type CheckoutRequest struct {
	Mode           string
	UserID         string
	Email          string
	CustomerID     string
	Title          string
	AmountCents    int64
	Currency       string
	PriceID        string
	SuccessURL     string
	CancelURL      string
	ExpiresAt      time.Time
	IdempotencyKey string
	Metadata       map[string]string
}

// CheckoutSession is the provider's response to a checkout request.
type CheckoutSession struct {
	ID        string
	URL       string
	ExpiresAt time.Time
}

// CheckoutEvent carries checkout.session.* payload fields.
type CheckoutEvent struct {
	SessionID       string
	Mode            string
	PaymentStatus   string
	CustomerID      string
	SubscriptionID  string
	PaymentIntentID string
	AmountTotal     int64
	Currency        string
	Metadata        map[string]string
}

// SubscriptionEvent carries customer.subscription.* payload fields.
type SubscriptionEvent struct {
	ID                string
	CustomerID        string
	Status            string
	CurrentPeriodEnd  time.Time
	CancelAtPeriodEnd bool
	Metadata          map[string]string
}

// Event is a verified webhook notification.
type Event struct {
	ID           string
	Type         string
	Checkout     *CheckoutEvent
	Subscription *SubscriptionEvent
}

// Gateway abstracts the payment provider.
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	ParseWebhook(payload []byte, signature string) (*Event, error)
}

// StripeGateway talks to Stripe Checkout.
type StripeGateway struct {
	sessions      *session.Client
	balance       *balance.Client
	webhookSecret string
}

// NewStripeGateway constructs a gateway from configuration.
func NewStripeGateway(cfg config.StripeConfig) *StripeGateway {
	return &StripeGateway{
		sessions:      &session.Client{B: stripe.GetBackend(stripe.APIBackend), Key: cfg.SecretKey},
		balance:       &balance.Client{B: stripe.GetBackend(stripe.APIBackend), Key: cfg.SecretKey},
		webhookSecret: cfg.WebhookSecret,
	}
}

// CreateCheckoutSession creates a hosted checkout page for a course purchase or subscription.
func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	if g.sessions.Key == "" {
		return nil, fmt.Errorf("stripe secret key not configured")
	}
	params, err := buildSessionParams(req)
	if err != nil {
		return nil, err
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	sess, err := g.sessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return &CheckoutSession{ID: sess.ID, URL: sess.URL, ExpiresAt: time.Unix(sess.ExpiresAt, 0).UTC()}, nil
}

// Verify checks the secret key by reading the account balance.
func (g *StripeGateway) Verify(ctx context.Context) error {
	if g.balance.Key == "" {
		return fmt.Errorf("stripe secret key not configured")
	}
	params := &stripe.BalanceParams{}
	params.Context = ctx
	if _, err := g.balance.Get(params); err != nil {
		return fmt.Errorf("verify stripe key: %w", err)
	}
	return nil
}

// ParseWebhook verifies the Stripe-Signature header and decodes the event.
func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (*Event, error) {
	if g.webhookSecret == "" {
		return nil, fmt.Errorf("stripe webhook secret not configured")
	}
	evt, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return decodeEvent(evt)
}

func buildSessionParams(req CheckoutRequest) (*stripe.CheckoutSessionParams, error) {
	params := &stripe.CheckoutSessionParams{
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.UserID),
	}
	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	} else if req.Email != "" {
		params.CustomerEmail = stripe.String(req.Email)
	}
	if !req.ExpiresAt.IsZero() {
		params.ExpiresAt = stripe.Int64(req.ExpiresAt.Unix())
	}

	metadata := map[string]string{"user_id": req.UserID, "mode": req.Mode}
	for k, v := range req.Metadata {
		metadata[k] = v
	}

	switch req.Mode {
	case ModeCourse:
		if req.AmountCents <= 0 {
			return nil, fmt.Errorf("course checkout requires a positive amount")
		}
		currency := strings.ToLower(req.Currency)
		if currency == "" {
			currency = string(stripe.CurrencyUSD)
		}
		params.Mode = stripe.String(string(stripe.CheckoutSessionModePayment))
		params.LineItems = []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(currency),
				UnitAmount: stripe.Int64(req.AmountCents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(req.Title),
				},
			},
			Quantity: stripe.Int64(1),
		}}
		params.PaymentIntentData = &stripe.CheckoutSessionPaymentIntentDataParams{Metadata: metadata}
	case ModeSubscription:
		if req.PriceID == "" {
			return nil, fmt.Errorf("subscription checkout requires a price id")
		}
		params.Mode = stripe.String(string(stripe.CheckoutSessionModeSubscription))
		params.LineItems = []*stripe.CheckoutSessionLineItemParams{{
			Price:    stripe.String(req.PriceID),
			Quantity: stripe.Int64(1),
		}}
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{Metadata: metadata}
	default:
		return nil, fmt.Errorf("unsupported checkout mode %q", req.Mode)
	}

	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	return params, nil
}

func decodeEvent(evt stripe.Event) (*Event, error) {
	out := &Event{ID: evt.ID, Type: string(evt.Type)}
	if evt.Data == nil {
		return out, nil
	}
	switch out.Type {
	case EventCheckoutCompleted, EventCheckoutExpired, EventCheckoutAsyncSucceeded, EventCheckoutAsyncFailed:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(evt.Data.Raw, &sess); err != nil {
			return nil, fmt.Errorf("decode checkout session: %w", err)
		}
		checkout := &CheckoutEvent{
			SessionID:     sess.ID,
			Mode:          string(sess.Mode),
			PaymentStatus: string(sess.PaymentStatus),
			AmountTotal:   sess.AmountTotal,
			Currency:      string(sess.Currency),
			Metadata:      sess.Metadata,
		}
		if sess.Customer != nil {
			checkout.CustomerID = sess.Customer.ID
		}
		if sess.Subscription != nil {
			checkout.SubscriptionID = sess.Subscription.ID
		}
		if sess.PaymentIntent != nil {
			checkout.PaymentIntentID = sess.PaymentIntent.ID
		}
		out.Checkout = checkout
	case EventSubscriptionUpdated, EventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(evt.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("decode subscription: %w", err)
		}
		subscription := &SubscriptionEvent{
			ID:                sub.ID,
			Status:            string(sub.Status),
			CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
			Metadata:          sub.Metadata,
		}
		if sub.CurrentPeriodEnd > 0 {
			subscription.CurrentPeriodEnd = time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		}
		if sub.Customer != nil {
			subscription.CustomerID = sub.Customer.ID
		}
		out.Subscription = subscription
	}
	return out, nil
}
