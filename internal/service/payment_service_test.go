package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/learnhub-api/internal/models"
	appErrors "github.com/noah-isme/learnhub-api/pkg/errors"
	"github.com/noah-isme/learnhub-api/pkg/payments"
)

type txProviderMock struct {
	db *sqlx.DB
}

func newTxProviderMock(t *testing.T) (txProvider, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &txProviderMock{db: sqlx.NewDb(db, "sqlmock")}, mock
}

func (t *txProviderMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return t.db.BeginTxx(ctx, opts)
}

type fakeGateway struct {
	requests []payments.CheckoutRequest
	event    *payments.Event
	err      error
}

func (g *fakeGateway) CreateCheckoutSession(ctx context.Context, req payments.CheckoutRequest) (*payments.CheckoutSession, error) {
	if g.err != nil {
		return nil, g.err
	}
	g.requests = append(g.requests, req)
	return &payments.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.test/cs_test_1"}, nil
}

func (g *fakeGateway) ParseWebhook(payload []byte, signature string) (*payments.Event, error) {
	if signature != "valid" {
		return nil, payments.ErrInvalidSignature
	}
	return g.event, nil
}

type mockPaymentRepo struct {
	items    map[string]*models.Payment
	events   map[string]bool
	statuses map[string]models.PaymentStatus
}

func newMockPaymentRepo(items ...models.Payment) *mockPaymentRepo {
	repo := &mockPaymentRepo{items: map[string]*models.Payment{}, events: map[string]bool{}, statuses: map[string]models.PaymentStatus{}}
	for i := range items {
		item := items[i]
		repo.items[item.ID] = &item
	}
	return repo
}

func (m *mockPaymentRepo) Create(ctx context.Context, payment *models.Payment) error {
	copy := *payment
	m.items[payment.ID] = &copy
	return nil
}

func (m *mockPaymentRepo) FindBySessionID(ctx context.Context, exec sqlx.ExtContext, sessionID string) (*models.Payment, error) {
	for _, item := range m.items {
		if item.StripeSessionID == sessionID {
			copy := *item
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockPaymentRepo) FindPendingCourse(ctx context.Context, userID, courseID string, since time.Time) (*models.Payment, error) {
	for _, item := range m.items {
		if item.UserID == userID && item.CourseID != nil && *item.CourseID == courseID && item.Status == models.PaymentStatusPending {
			copy := *item
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockPaymentRepo) ListByUser(ctx context.Context, userID string, page, size int) ([]models.Payment, int, error) {
	var out []models.Payment
	for _, item := range m.items {
		if item.UserID == userID {
			out = append(out, *item)
		}
	}
	return out, len(out), nil
}

func (m *mockPaymentRepo) MarkCompleted(ctx context.Context, exec sqlx.ExtContext, id string, amountCents int64, paymentIntentID *string, at time.Time) error {
	m.items[id].Status = models.PaymentStatusCompleted
	m.items[id].AmountCents = amountCents
	m.items[id].CompletedAt = &at
	return nil
}

func (m *mockPaymentRepo) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.PaymentStatus) error {
	m.items[id].Status = status
	m.statuses[id] = status
	return nil
}

func (m *mockPaymentRepo) RecordWebhookEvent(ctx context.Context, exec sqlx.ExtContext, event *models.WebhookEvent) (bool, error) {
	if m.events[event.ID] {
		return false, nil
	}
	m.events[event.ID] = true
	return true, nil
}

type mockSubscriptionRepo struct {
	byUser  map[string]*models.Subscription
	updated []models.SubscriptionStatus
}

func (m *mockSubscriptionRepo) FindByUser(ctx context.Context, userID string) (*models.Subscription, error) {
	if sub, ok := m.byUser[userID]; ok {
		return sub, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSubscriptionRepo) FindByStripeID(ctx context.Context, exec sqlx.ExtContext, stripeID string) (*models.Subscription, error) {
	for _, sub := range m.byUser {
		if sub.StripeSubscriptionID == stripeID {
			return sub, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockSubscriptionRepo) Upsert(ctx context.Context, exec sqlx.ExtContext, sub *models.Subscription) error {
	if sub.ID == "" {
		sub.ID = "sub-" + sub.UserID
	}
	if prev, ok := m.byUser[sub.UserID]; ok {
		sub.ID = prev.ID
		if sub.CurrentPeriodEnd == nil && prev.StripeSubscriptionID == sub.StripeSubscriptionID {
			sub.CurrentPeriodEnd = prev.CurrentPeriodEnd
		}
	}
	stored := *sub
	m.byUser[sub.UserID] = &stored
	return nil
}

func (m *mockSubscriptionRepo) UpdateState(ctx context.Context, exec sqlx.ExtContext, id string, status models.SubscriptionStatus, periodEnd *time.Time, cancelAtPeriodEnd bool) error {
	for _, sub := range m.byUser {
		if sub.ID == id {
			sub.Status = status
			sub.CurrentPeriodEnd = periodEnd
			sub.CancelAtPeriodEnd = cancelAtPeriodEnd
		}
	}
	m.updated = append(m.updated, status)
	return nil
}

type paymentFixture struct {
	svc         *PaymentService
	payments    *mockPaymentRepo
	subs        *mockSubscriptionRepo
	enrollments *mockEnrollmentRepo
	gateway     *fakeGateway
	sqlMock     sqlmock.Sqlmock
}

func newPaymentFixture(t *testing.T, priceID string, existing ...models.Payment) *paymentFixture {
	tx, mock := newTxProviderMock(t)
	paid := models.Course{ID: paidCourseID, InstructorID: "inst-1", Title: "Paid", Status: models.CourseStatusPublished, PriceCents: 1500, Currency: "eur"}
	free := models.Course{ID: freeCourseID, InstructorID: "inst-1", Title: "Free", Status: models.CourseStatusPublished}
	f := &paymentFixture{
		payments:    newMockPaymentRepo(existing...),
		subs:        &mockSubscriptionRepo{byUser: map[string]*models.Subscription{}},
		enrollments: newMockEnrollmentRepo(),
		gateway:     &fakeGateway{},
		sqlMock:     mock,
	}
	f.svc = NewPaymentService(tx, f.payments, f.subs, f.enrollments, newMockCourseRepo(paid, free), f.gateway, nil, validator.New(), zap.NewNop(), PaymentConfig{
		Currency:            "usd",
		SubscriptionPriceID: priceID,
		SuccessURL:          "https://app.test/success",
		CancelURL:           "https://app.test/cancel",
		CheckoutSessionTTL:  48 * time.Hour,
	})
	return f
}

func TestPaymentServiceCourseCheckout(t *testing.T) {
	f := newPaymentFixture(t, "")
	actor := &models.JWTClaims{UserID: "stu-1", Email: "stu@example.com", Role: models.RoleStudent}

	resp, err := f.svc.CreateCheckoutSession(context.Background(), actor, models.CheckoutSessionRequest{Mode: models.PaymentModeCourse, CourseID: paidCourseID})
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", resp.SessionID)
	assert.Equal(t, "https://checkout.test/cs_test_1", resp.URL)

	require.Len(t, f.gateway.requests, 1)
	req := f.gateway.requests[0]
	assert.Equal(t, int64(1500), req.AmountCents)
	assert.Equal(t, "eur", req.Currency)
	assert.Equal(t, paidCourseID, req.Metadata["course_id"])
	assert.Equal(t, "checkout-"+resp.PaymentID, req.IdempotencyKey)
	assert.True(t, time.Until(req.ExpiresAt) < 24*time.Hour)

	stored := f.payments.items[resp.PaymentID]
	require.NotNil(t, stored)
	assert.Equal(t, models.PaymentStatusPending, stored.Status)
	assert.Equal(t, "cs_test_1", stored.StripeSessionID)
}

func TestPaymentServiceCheckoutSupersedesPending(t *testing.T) {
	course := paidCourseID
	f := newPaymentFixture(t, "", models.Payment{ID: "pay-old", UserID: "stu-1", CourseID: &course, Mode: models.PaymentModeCourse, Status: models.PaymentStatusPending, StripeSessionID: "cs_old"})
	actor := &models.JWTClaims{UserID: "stu-1", Role: models.RoleStudent}

	_, err := f.svc.CreateCheckoutSession(context.Background(), actor, models.CheckoutSessionRequest{Mode: models.PaymentModeCourse, CourseID: paidCourseID})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusExpired, f.payments.statuses["pay-old"])
}

func TestPaymentServiceCheckoutRejections(t *testing.T) {
	actor := &models.JWTClaims{UserID: "stu-1", Role: models.RoleStudent}

	f := newPaymentFixture(t, "")
	_, err := f.svc.CreateCheckoutSession(context.Background(), actor, models.CheckoutSessionRequest{Mode: models.PaymentModeCourse, CourseID: freeCourseID})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = f.svc.CreateCheckoutSession(context.Background(), actor, models.CheckoutSessionRequest{Mode: models.PaymentModeCourse})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = f.svc.CreateCheckoutSession(context.Background(), actor, models.CheckoutSessionRequest{Mode: models.PaymentModeSubscription})
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)

	require.NoError(t, f.enrollments.Upsert(context.Background(), nil, &models.Enrollment{UserID: "stu-1", CourseID: paidCourseID, Status: models.EnrollmentStatusActive}))
	_, err = f.svc.CreateCheckoutSession(context.Background(), actor, models.CheckoutSessionRequest{Mode: models.PaymentModeCourse, CourseID: paidCourseID})
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	f.gateway.err = errors.New("boom")
	_, err = f.svc.CreateCheckoutSession(context.Background(), &models.JWTClaims{UserID: "stu-2"}, models.CheckoutSessionRequest{Mode: models.PaymentModeCourse, CourseID: paidCourseID})
	assert.Equal(t, appErrors.ErrProviderFailure.Code, appErrors.FromError(err).Code)
	assert.Empty(t, f.payments.items)
}

func TestPaymentServiceSubscriptionCheckout(t *testing.T) {
	f := newPaymentFixture(t, "price_123")
	actor := &models.JWTClaims{UserID: "stu-1", Role: models.RoleStudent}

	_, err := f.svc.CreateCheckoutSession(context.Background(), actor, models.CheckoutSessionRequest{Mode: models.PaymentModeSubscription})
	require.NoError(t, err)
	assert.Equal(t, "price_123", f.gateway.requests[0].PriceID)

	f.subs.byUser["stu-1"] = &models.Subscription{ID: "sub-1", UserID: "stu-1", Status: models.SubscriptionStatusActive}
	_, err = f.svc.CreateCheckoutSession(context.Background(), actor, models.CheckoutSessionRequest{Mode: models.PaymentModeSubscription})
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestPaymentServiceWebhookCompletesCourse(t *testing.T) {
	course := paidCourseID
	f := newPaymentFixture(t, "", models.Payment{ID: "pay-1", UserID: "stu-1", CourseID: &course, Mode: models.PaymentModeCourse, Status: models.PaymentStatusPending, StripeSessionID: "cs_1"})
	f.gateway.event = &payments.Event{ID: "evt_1", Type: payments.EventCheckoutCompleted, Checkout: &payments.CheckoutEvent{SessionID: "cs_1", PaymentStatus: "paid", AmountTotal: 1500, PaymentIntentID: "pi_1"}}

	f.sqlMock.ExpectBegin()
	f.sqlMock.ExpectCommit()
	processed, err := f.svc.HandleWebhook(context.Background(), []byte(`{}`), "valid")
	require.NoError(t, err)
	assert.True(t, processed)
	assert.Equal(t, models.PaymentStatusCompleted, f.payments.items["pay-1"].Status)

	enrollment, err := f.enrollments.FindByUserCourse(context.Background(), "stu-1", paidCourseID)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentSourcePurchase, enrollment.Source)
	require.NotNil(t, enrollment.PaymentID)
	assert.Equal(t, "pay-1", *enrollment.PaymentID)

	f.sqlMock.ExpectBegin()
	f.sqlMock.ExpectRollback()
	processed, err = f.svc.HandleWebhook(context.Background(), []byte(`{}`), "valid")
	require.NoError(t, err)
	assert.False(t, processed)
	require.NoError(t, f.sqlMock.ExpectationsWereMet())
}

func TestPaymentServiceWebhookInvalidSignature(t *testing.T) {
	f := newPaymentFixture(t, "")
	_, err := f.svc.HandleWebhook(context.Background(), []byte(`{}`), "forged")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	require.NoError(t, f.sqlMock.ExpectationsWereMet())
}

func TestPaymentServiceWebhookSubscriptionLifecycle(t *testing.T) {
	f := newPaymentFixture(t, "price_123", models.Payment{ID: "pay-s", UserID: "stu-1", Mode: models.PaymentModeSubscription, Status: models.PaymentStatusPending, StripeSessionID: "cs_s"})

	f.gateway.event = &payments.Event{ID: "evt_a", Type: payments.EventCheckoutCompleted, Checkout: &payments.CheckoutEvent{SessionID: "cs_s", PaymentStatus: "paid", CustomerID: "cus_1", SubscriptionID: "sub_stripe"}}
	f.sqlMock.ExpectBegin()
	f.sqlMock.ExpectCommit()
	_, err := f.svc.HandleWebhook(context.Background(), nil, "valid")
	require.NoError(t, err)
	require.Contains(t, f.subs.byUser, "stu-1")
	assert.Equal(t, models.SubscriptionStatusActive, f.subs.byUser["stu-1"].Status)

	periodEnd := time.Now().Add(30 * 24 * time.Hour).UTC()
	f.gateway.event = &payments.Event{ID: "evt_b", Type: payments.EventSubscriptionUpdated, Subscription: &payments.SubscriptionEvent{ID: "sub_stripe", Status: "past_due", CurrentPeriodEnd: periodEnd}}
	f.sqlMock.ExpectBegin()
	f.sqlMock.ExpectCommit()
	_, err = f.svc.HandleWebhook(context.Background(), nil, "valid")
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusPastDue, f.subs.byUser["stu-1"].Status)

	f.gateway.event = &payments.Event{ID: "evt_c", Type: payments.EventSubscriptionDeleted, Subscription: &payments.SubscriptionEvent{ID: "sub_stripe", Status: "active"}}
	f.sqlMock.ExpectBegin()
	f.sqlMock.ExpectCommit()
	_, err = f.svc.HandleWebhook(context.Background(), nil, "valid")
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusCancelled, f.subs.byUser["stu-1"].Status)
	require.NoError(t, f.sqlMock.ExpectationsWereMet())
}

func TestPaymentServiceWebhookExpired(t *testing.T) {
	course := paidCourseID
	f := newPaymentFixture(t, "", models.Payment{ID: "pay-1", UserID: "stu-1", CourseID: &course, Mode: models.PaymentModeCourse, Status: models.PaymentStatusPending, StripeSessionID: "cs_1"})
	f.gateway.event = &payments.Event{ID: "evt_x", Type: payments.EventCheckoutExpired, Checkout: &payments.CheckoutEvent{SessionID: "cs_1"}}

	f.sqlMock.ExpectBegin()
	f.sqlMock.ExpectCommit()
	_, err := f.svc.HandleWebhook(context.Background(), nil, "valid")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusExpired, f.payments.items["pay-1"].Status)
}

func TestPaymentServiceWebhookDelayedPayment(t *testing.T) {
	course := paidCourseID
	f := newPaymentFixture(t, "",
		models.Payment{ID: "pay-1", UserID: "stu-1", CourseID: &course, Mode: models.PaymentModeCourse, Status: models.PaymentStatusPending, StripeSessionID: "cs_1"},
		models.Payment{ID: "pay-2", UserID: "stu-2", CourseID: &course, Mode: models.PaymentModeCourse, Status: models.PaymentStatusPending, StripeSessionID: "cs_2"},
	)
	ctx := context.Background()

	f.gateway.event = &payments.Event{ID: "evt_1", Type: payments.EventCheckoutCompleted, Checkout: &payments.CheckoutEvent{SessionID: "cs_1", PaymentStatus: "unpaid", AmountTotal: 1500}}
	f.sqlMock.ExpectBegin()
	f.sqlMock.ExpectCommit()
	_, err := f.svc.HandleWebhook(ctx, nil, "valid")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, f.payments.items["pay-1"].Status)
	_, err = f.enrollments.FindByUserCourse(ctx, "stu-1", paidCourseID)
	assert.ErrorIs(t, err, sql.ErrNoRows)

	f.gateway.event = &payments.Event{ID: "evt_2", Type: payments.EventCheckoutAsyncSucceeded, Checkout: &payments.CheckoutEvent{SessionID: "cs_1", PaymentStatus: "paid", AmountTotal: 1500}}
	f.sqlMock.ExpectBegin()
	f.sqlMock.ExpectCommit()
	_, err = f.svc.HandleWebhook(ctx, nil, "valid")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, f.payments.items["pay-1"].Status)
	enrollment, err := f.enrollments.FindByUserCourse(ctx, "stu-1", paidCourseID)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentSourcePurchase, enrollment.Source)

	f.gateway.event = &payments.Event{ID: "evt_3", Type: payments.EventCheckoutAsyncFailed, Checkout: &payments.CheckoutEvent{SessionID: "cs_2", PaymentStatus: "unpaid"}}
	f.sqlMock.ExpectBegin()
	f.sqlMock.ExpectCommit()
	_, err = f.svc.HandleWebhook(ctx, nil, "valid")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, f.payments.items["pay-2"].Status)
	_, err = f.enrollments.FindByUserCourse(ctx, "stu-2", paidCourseID)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, f.sqlMock.ExpectationsWereMet())
}

func TestPaymentServiceResubscribeAfterExpiry(t *testing.T) {
	f := newPaymentFixture(t, "price_123", models.Payment{ID: "pay-new", UserID: "stu-1", Mode: models.PaymentModeSubscription, Status: models.PaymentStatusPending, StripeSessionID: "cs_new"})
	lapsed := time.Now().Add(-60 * 24 * time.Hour).UTC()
	f.subs.byUser["stu-1"] = &models.Subscription{ID: "sub-stu-1", UserID: "stu-1", StripeCustomerID: "cus_1", StripeSubscriptionID: "sub_old", Status: models.SubscriptionStatusExpired, CurrentPeriodEnd: &lapsed}

	f.gateway.event = &payments.Event{ID: "evt_new", Type: payments.EventCheckoutCompleted, Checkout: &payments.CheckoutEvent{SessionID: "cs_new", PaymentStatus: "paid", CustomerID: "cus_1", SubscriptionID: "sub_new"}}
	f.sqlMock.ExpectBegin()
	f.sqlMock.ExpectCommit()
	_, err := f.svc.HandleWebhook(context.Background(), nil, "valid")
	require.NoError(t, err)

	sub := f.subs.byUser["stu-1"]
	assert.Equal(t, "sub_new", sub.StripeSubscriptionID)
	assert.Nil(t, sub.CurrentPeriodEnd)
	assert.True(t, sub.IsActive(time.Now()))

	paid := models.Course{ID: paidCourseID, InstructorID: "inst-1", Title: "Paid", Status: models.CourseStatusPublished, PriceCents: 1500}
	enrollments := NewEnrollmentService(newMockEnrollmentRepo(), newMockCourseRepo(paid), &mockLessonRepo{lessons: map[string]*models.Lesson{}}, f.subs, nil, &recordingQueue{}, &recordingSender{}, validator.New(), zap.NewNop(), EnrollmentConfig{SubscriptionsGrantAll: true})
	enrollment, err := enrollments.Enroll(context.Background(), &models.JWTClaims{UserID: "stu-1", Role: models.RoleStudent}, models.CreateEnrollmentRequest{CourseID: paidCourseID})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentSourceSubscription, enrollment.Source)
	require.NoError(t, f.sqlMock.ExpectationsWereMet())
}

func TestPaymentServiceSubscriptionUpdateBeforeCheckout(t *testing.T) {
	f := newPaymentFixture(t, "price_123", models.Payment{ID: "pay-s", UserID: "stu-1", Mode: models.PaymentModeSubscription, Status: models.PaymentStatusPending, StripeSessionID: "cs_s"})
	periodEnd := time.Now().Add(30 * 24 * time.Hour).UTC()

	f.gateway.event = &payments.Event{ID: "evt_early", Type: payments.EventSubscriptionUpdated, Subscription: &payments.SubscriptionEvent{
		ID: "sub_stripe", CustomerID: "cus_1", Status: "active", CurrentPeriodEnd: periodEnd, Metadata: map[string]string{"user_id": "stu-1"},
	}}
	f.sqlMock.ExpectBegin()
	f.sqlMock.ExpectCommit()
	_, err := f.svc.HandleWebhook(context.Background(), nil, "valid")
	require.NoError(t, err)
	require.Contains(t, f.subs.byUser, "stu-1")
	sub := f.subs.byUser["stu-1"]
	assert.Equal(t, "sub_stripe", sub.StripeSubscriptionID)
	assert.Equal(t, models.SubscriptionStatusActive, sub.Status)
	require.NotNil(t, sub.CurrentPeriodEnd)
	assert.True(t, periodEnd.Equal(*sub.CurrentPeriodEnd))

	f.gateway.event = &payments.Event{ID: "evt_done", Type: payments.EventCheckoutCompleted, Checkout: &payments.CheckoutEvent{SessionID: "cs_s", PaymentStatus: "paid", CustomerID: "cus_1", SubscriptionID: "sub_stripe"}}
	f.sqlMock.ExpectBegin()
	f.sqlMock.ExpectCommit()
	_, err = f.svc.HandleWebhook(context.Background(), nil, "valid")
	require.NoError(t, err)
	sub = f.subs.byUser["stu-1"]
	require.NotNil(t, sub.CurrentPeriodEnd)
	assert.True(t, periodEnd.Equal(*sub.CurrentPeriodEnd))
	require.NoError(t, f.sqlMock.ExpectationsWereMet())
}

func TestPaymentServiceSubscriptionUpdateWithoutOwnerRetries(t *testing.T) {
	f := newPaymentFixture(t, "price_123")
	f.gateway.event = &payments.Event{ID: "evt_orphan", Type: payments.EventSubscriptionUpdated, Subscription: &payments.SubscriptionEvent{ID: "sub_unknown", Status: "active"}}

	f.sqlMock.ExpectBegin()
	f.sqlMock.ExpectRollback()
	processed, err := f.svc.HandleWebhook(context.Background(), nil, "valid")
	require.Error(t, err)
	assert.False(t, processed)
	assert.Empty(t, f.subs.byUser)
	require.NoError(t, f.sqlMock.ExpectationsWereMet())
}

func TestPaymentServiceHistoryAndSubscription(t *testing.T) {
	f := newPaymentFixture(t, "", models.Payment{ID: "pay-1", UserID: "stu-1"}, models.Payment{ID: "pay-2", UserID: "stu-2"})
	actor := &models.JWTClaims{UserID: "stu-1"}

	items, pagination, err := f.svc.History(context.Background(), actor, 1, 20)
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, 1, pagination.TotalCount)

	_, err = f.svc.CurrentSubscription(context.Background(), actor)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestCheckoutTTLClamp(t *testing.T) {
	svc := NewPaymentService(nil, nil, nil, nil, nil, nil, nil, nil, nil, PaymentConfig{})
	assert.Equal(t, 30*time.Minute, svc.CheckoutTTL())
	svc.cfg.CheckoutSessionTTL = time.Hour
	assert.Equal(t, time.Hour, svc.CheckoutTTL())
	assert.Equal(t, maxCheckoutTTL, ClampCheckoutTTL(48*time.Hour))
}

func TestSubscriptionStatusFromProvider(t *testing.T) {
	assert.Equal(t, models.SubscriptionStatusActive, SubscriptionStatusFromProvider("trialing"))
	assert.Equal(t, models.SubscriptionStatusPastDue, SubscriptionStatusFromProvider("unpaid"))
	assert.Equal(t, models.SubscriptionStatusCancelled, SubscriptionStatusFromProvider("canceled"))
	assert.Equal(t, models.SubscriptionStatusExpired, SubscriptionStatusFromProvider("incomplete_expired"))
}
