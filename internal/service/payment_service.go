package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/learnhub-api/internal/models"
	appErrors "github.com/noah-isme/learnhub-api/pkg/errors"
	"github.com/noah-isme/learnhub-api/pkg/payments"
)

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type paymentRepository interface {
	Create(ctx context.Context, payment *models.Payment) error
	FindBySessionID(ctx context.Context, exec sqlx.ExtContext, sessionID string) (*models.Payment, error)
	FindPendingCourse(ctx context.Context, userID, courseID string, since time.Time) (*models.Payment, error)
	ListByUser(ctx context.Context, userID string, page, size int) ([]models.Payment, int, error)
	MarkCompleted(ctx context.Context, exec sqlx.ExtContext, id string, amountCents int64, paymentIntentID *string, at time.Time) error
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.PaymentStatus) error
	RecordWebhookEvent(ctx context.Context, exec sqlx.ExtContext, event *models.WebhookEvent) (bool, error)
}

type subscriptionRepository interface {
	FindByUser(ctx context.Context, userID string) (*models.Subscription, error)
	FindByStripeID(ctx context.Context, exec sqlx.ExtContext, stripeID string) (*models.Subscription, error)
	Upsert(ctx context.Context, exec sqlx.ExtContext, sub *models.Subscription) error
	UpdateState(ctx context.Context, exec sqlx.ExtContext, id string, status models.SubscriptionStatus, periodEnd *time.Time, cancelAtPeriodEnd bool) error
}

type purchaseEnrollments interface {
	FindByUserCourse(ctx context.Context, userID, courseID string) (*models.Enrollment, error)
	Upsert(ctx context.Context, exec sqlx.ExtContext, item *models.Enrollment) error
}

// PaymentConfig configures hosted checkout.
type PaymentConfig struct {
	Currency            string
	SubscriptionPriceID string
	SuccessURL          string
	CancelURL           string
	CheckoutSessionTTL  time.Duration
}

const (
	minCheckoutTTL = 30 * time.Minute
	maxCheckoutTTL = 23*time.Hour + 55*time.Minute
)

// PaymentService runs checkout and applies provider webhooks.
type PaymentService struct {
	tx            txProvider
	payments      paymentRepository
	subscriptions subscriptionRepository
	enrollments   purchaseEnrollments
	courses       courseFinder
	gateway       payments.Gateway
	cache         *CacheService
	validator     *validator.Validate
	logger        *zap.Logger
	cfg           PaymentConfig
	now           func() time.Time
}

// NewPaymentService constructs the service.
func NewPaymentService(tx txProvider, paymentRepo paymentRepository, subscriptions subscriptionRepository, enrollments purchaseEnrollments, courses courseFinder, gateway payments.Gateway, cache *CacheService, validate *validator.Validate, logger *zap.Logger, cfg PaymentConfig) *PaymentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Currency == "" {
		cfg.Currency = "usd"
	}
	return &PaymentService{
		tx:            tx,
		payments:      paymentRepo,
		subscriptions: subscriptions,
		enrollments:   enrollments,
		courses:       courses,
		gateway:       gateway,
		cache:         cache,
		validator:     validate,
		logger:        logger,
		cfg:           cfg,
		now:           time.Now,
	}
}

// CheckoutTTL returns the configured session lifetime clamped by ClampCheckoutTTL.
func (s *PaymentService) CheckoutTTL() time.Duration {
	return ClampCheckoutTTL(s.cfg.CheckoutSessionTTL)
}

// ClampCheckoutTTL bounds a checkout session lifetime to what the provider accepts.
func ClampCheckoutTTL(ttl time.Duration) time.Duration {
	if ttl < minCheckoutTTL {
		return minCheckoutTTL
	}
	if ttl > maxCheckoutTTL {
		return maxCheckoutTTL
	}
	return ttl
}

// CreateCheckoutSession starts a hosted checkout and records a pending payment.
func (s *PaymentService) CreateCheckoutSession(ctx context.Context, actor *models.JWTClaims, req models.CheckoutSessionRequest) (*models.CheckoutSessionResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid checkout payload")
	}

	now := s.now().UTC()
	payment := &models.Payment{
		ID:       uuid.NewString(),
		UserID:   actor.UserID,
		Mode:     req.Mode,
		Currency: s.cfg.Currency,
		Status:   models.PaymentStatusPending,
	}
	checkout := payments.CheckoutRequest{
		Mode:       string(req.Mode),
		UserID:     actor.UserID,
		Email:      actor.Email,
		SuccessURL: s.cfg.SuccessURL,
		CancelURL:  s.cfg.CancelURL,
		ExpiresAt:  now.Add(s.CheckoutTTL()),
		Metadata:   map[string]string{"payment_id": payment.ID},
	}
	checkout.IdempotencyKey = "checkout-" + payment.ID

	switch req.Mode {
	case models.PaymentModeCourse:
		course, err := s.purchasableCourse(ctx, actor, req.CourseID)
		if err != nil {
			return nil, err
		}
		payment.CourseID = &course.ID
		payment.AmountCents = course.PriceCents
		if course.Currency != "" {
			payment.Currency = course.Currency
		}
		checkout.Title = course.Title
		checkout.AmountCents = course.PriceCents
		checkout.Currency = payment.Currency
		checkout.Metadata["course_id"] = course.ID
		s.supersedePending(ctx, actor.UserID, course.ID, now)
	case models.PaymentModeSubscription:
		if s.cfg.SubscriptionPriceID == "" {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "subscriptions are not available")
		}
		existing, err := s.subscriptions.FindByUser(ctx, actor.UserID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subscription")
		}
		if existing.IsActive(now) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "subscription already active")
		}
		if existing != nil {
			checkout.CustomerID = existing.StripeCustomerID
		}
		checkout.PriceID = s.cfg.SubscriptionPriceID
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, checkout)
	if err != nil {
		s.logger.Error("checkout session failed", zap.String("user_id", actor.UserID), zap.String("mode", string(req.Mode)), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrProviderFailure.Code, appErrors.ErrProviderFailure.Status, "payment provider unavailable")
	}
	payment.StripeSessionID = session.ID
	if err := s.payments.Create(ctx, payment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record payment")
	}

	expiresAt := session.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = checkout.ExpiresAt
	}
	return &models.CheckoutSessionResponse{SessionID: session.ID, URL: session.URL, PaymentID: payment.ID, ExpiresAt: expiresAt}, nil
}

// HandleWebhook verifies and applies a provider event exactly once. It reports
// false when the event id was already processed.
func (s *PaymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) (processed bool, err error) {
	event, err := s.gateway.ParseWebhook(payload, signature)
	if err != nil {
		if errors.Is(err, payments.ErrInvalidSignature) {
			return false, appErrors.Clone(appErrors.ErrValidation, "invalid webhook signature")
		}
		return false, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid webhook payload")
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil || !processed {
			_ = tx.Rollback()
		}
	}()

	fresh, err := s.payments.RecordWebhookEvent(ctx, tx, &models.WebhookEvent{ID: event.ID, Type: event.Type})
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record webhook event")
	}
	if !fresh {
		s.logger.Info("duplicate webhook event ignored", zap.String("event_id", event.ID), zap.String("type", event.Type))
		return false, nil
	}

	switch event.Type {
	case payments.EventCheckoutCompleted, payments.EventCheckoutAsyncSucceeded:
		err = s.applyCheckoutCompleted(ctx, tx, event.Checkout)
	case payments.EventCheckoutAsyncFailed:
		err = s.applyCheckoutClosed(ctx, tx, event.Checkout, models.PaymentStatusFailed)
	case payments.EventCheckoutExpired:
		err = s.applyCheckoutClosed(ctx, tx, event.Checkout, models.PaymentStatusExpired)
	case payments.EventSubscriptionUpdated, payments.EventSubscriptionDeleted:
		err = s.applySubscriptionChange(ctx, tx, event.Type, event.Subscription)
	default:
		s.logger.Debug("webhook event type not handled", zap.String("type", event.Type))
	}
	if err != nil {
		return false, err
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit webhook transaction")
		return false, err
	}
	processed = true
	_ = s.cache.Invalidate(ctx, StatsCacheKey)
	s.logger.Info("webhook event applied", zap.String("event_id", event.ID), zap.String("type", event.Type))
	return true, nil
}

// History returns the actor's payments.
func (s *PaymentService) History(ctx context.Context, actor *models.JWTClaims, page, size int) ([]models.Payment, *models.Pagination, error) {
	items, total, err := s.payments.ListByUser(ctx, actor.UserID, page, size)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list payments")
	}
	if items == nil {
		items = []models.Payment{}
	}
	return items, models.NewPagination(page, size, total), nil
}

// CurrentSubscription returns the actor's subscription.
func (s *PaymentService) CurrentSubscription(ctx context.Context, actor *models.JWTClaims) (*models.Subscription, error) {
	sub, err := s.subscriptions.FindByUser(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no subscription found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subscription")
	}
	return sub, nil
}

func (s *PaymentService) purchasableCourse(ctx context.Context, actor *models.JWTClaims, courseID string) (*models.Course, error) {
	if courseID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "course_id is required for course checkout")
	}
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if course.Status != models.CourseStatusPublished {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
	}
	if course.IsFree() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "free courses do not require checkout")
	}
	enrollment, err := s.enrollments.FindByUserCourse(ctx, actor.UserID, course.ID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if enrollment.Grants() {
		return nil, appErrors.Clone(appErrors.ErrConflict, "already enrolled in this course")
	}
	return course, nil
}

// supersedePending expires an earlier open checkout for the same course.
func (s *PaymentService) supersedePending(ctx context.Context, userID, courseID string, now time.Time) {
	pending, err := s.payments.FindPendingCourse(ctx, userID, courseID, now.Add(-s.CheckoutTTL()))
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("failed to look up pending checkout", zap.String("user_id", userID), zap.Error(err))
		}
		return
	}
	if err := s.payments.UpdateStatus(ctx, nil, pending.ID, models.PaymentStatusExpired); err != nil {
		s.logger.Warn("failed to expire superseded checkout", zap.String("payment_id", pending.ID), zap.Error(err))
	}
}

func (s *PaymentService) applyCheckoutCompleted(ctx context.Context, tx *sqlx.Tx, checkout *payments.CheckoutEvent) error {
	if checkout == nil {
		return nil
	}
	payment, err := s.payments.FindBySessionID(ctx, tx, checkout.SessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("checkout completed for unknown session", zap.String("session_id", checkout.SessionID))
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}
	if payment.Status == models.PaymentStatusCompleted {
		return nil
	}
	if !payments.CheckoutPaid(checkout.PaymentStatus) {
		// Delayed methods settle later via async_payment_succeeded or _failed.
		s.logger.Info("checkout completed without settled payment",
			zap.String("session_id", checkout.SessionID), zap.String("payment_status", checkout.PaymentStatus))
		return nil
	}

	now := s.now().UTC()
	var intentID *string
	if checkout.PaymentIntentID != "" {
		intentID = &checkout.PaymentIntentID
	}
	if err := s.payments.MarkCompleted(ctx, tx, payment.ID, checkout.AmountTotal, intentID, now); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to complete payment")
	}

	switch payment.Mode {
	case models.PaymentModeCourse:
		if payment.CourseID == nil {
			return nil
		}
		enrollment := &models.Enrollment{
			UserID:    payment.UserID,
			CourseID:  *payment.CourseID,
			Status:    models.EnrollmentStatusActive,
			Source:    models.EnrollmentSourcePurchase,
			PaymentID: &payment.ID,
		}
		if err := s.enrollments.Upsert(ctx, tx, enrollment); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to grant course access")
		}
	case models.PaymentModeSubscription:
		sub := &models.Subscription{
			UserID:               payment.UserID,
			StripeCustomerID:     checkout.CustomerID,
			StripeSubscriptionID: checkout.SubscriptionID,
			Status:               models.SubscriptionStatusActive,
		}
		if err := s.subscriptions.Upsert(ctx, tx, sub); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to activate subscription")
		}
	}
	return nil
}

func (s *PaymentService) applyCheckoutClosed(ctx context.Context, tx *sqlx.Tx, checkout *payments.CheckoutEvent, status models.PaymentStatus) error {
	if checkout == nil {
		return nil
	}
	payment, err := s.payments.FindBySessionID(ctx, tx, checkout.SessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}
	if payment.Status == models.PaymentStatusCompleted {
		return nil
	}
	if err := s.payments.UpdateStatus(ctx, tx, payment.ID, status); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to close payment")
	}
	return nil
}

func (s *PaymentService) applySubscriptionChange(ctx context.Context, tx *sqlx.Tx, eventType string, change *payments.SubscriptionEvent) error {
	if change == nil {
		return nil
	}
	status := SubscriptionStatusFromProvider(change.Status)
	if eventType == payments.EventSubscriptionDeleted {
		status = models.SubscriptionStatusCancelled
	}
	var periodEnd *time.Time
	if !change.CurrentPeriodEnd.IsZero() {
		periodEnd = &change.CurrentPeriodEnd
	}

	sub, err := s.subscriptions.FindByStripeID(ctx, tx, change.ID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subscription")
		}
		// The subscription event can overtake checkout.session.completed.
		userID := change.Metadata["user_id"]
		if userID == "" {
			s.logger.Warn("subscription event for unknown subscription", zap.String("subscription_id", change.ID))
			return appErrors.Clone(appErrors.ErrNotFound, "subscription not linked to a user yet")
		}
		created := &models.Subscription{
			UserID:               userID,
			StripeCustomerID:     change.CustomerID,
			StripeSubscriptionID: change.ID,
			Status:               status,
			CurrentPeriodEnd:     periodEnd,
			CancelAtPeriodEnd:    change.CancelAtPeriodEnd,
		}
		if err := s.subscriptions.Upsert(ctx, tx, created); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sync subscription")
		}
		return nil
	}
	if err := s.subscriptions.UpdateState(ctx, tx, sub.ID, status, periodEnd, change.CancelAtPeriodEnd); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sync subscription")
	}
	return nil
}

// SubscriptionStatusFromProvider maps provider subscription states.
func SubscriptionStatusFromProvider(status string) models.SubscriptionStatus {
	switch status {
	case "active", "trialing":
		return models.SubscriptionStatusActive
	case "past_due", "unpaid", "incomplete":
		return models.SubscriptionStatusPastDue
	case "canceled":
		return models.SubscriptionStatusCancelled
	default:
		return models.SubscriptionStatusExpired
	}
}
