package router

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/learnhub-api/internal/handler"
	"github.com/noah-isme/learnhub-api/internal/middleware"
	"github.com/noah-isme/learnhub-api/internal/models"
	"github.com/noah-isme/learnhub-api/internal/service"
)

type stubTokens map[string]*models.JWTClaims

func (s stubTokens) ValidateToken(token string) (*models.JWTClaims, error) {
	if claims, ok := s[token]; ok {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}

type stubAuth struct{}

func (stubAuth) Register(context.Context, models.RegisterRequest) (*models.LoginResponse, error) {
	return &models.LoginResponse{}, nil
}

func (stubAuth) Login(context.Context, models.LoginRequest) (*models.LoginResponse, error) {
	return &models.LoginResponse{AccessToken: "a"}, nil
}

func (stubAuth) RefreshToken(context.Context, models.RefreshTokenRequest) (*models.RefreshTokenResponse, error) {
	return &models.RefreshTokenResponse{}, nil
}

func (stubAuth) Logout(context.Context, string, string, models.LoginRequest) error { return nil }

func (stubAuth) ChangePassword(context.Context, string, models.ChangePasswordRequest) error {
	return nil
}

func (stubAuth) ForgotPassword(context.Context, models.ForgotPasswordRequest) error { return nil }

func (stubAuth) ResetPassword(context.Context, models.ResetPasswordRequest) error { return nil }

func (stubAuth) Me(_ context.Context, userID string) (*models.UserInfo, error) {
	return &models.UserInfo{ID: userID}, nil
}

type stubMessages struct{}

func (stubMessages) Send(context.Context, *models.JWTClaims, models.SendMessageRequest) (*models.Message, error) {
	return &models.Message{}, nil
}

func (stubMessages) Conversations(context.Context, *models.JWTClaims) ([]models.Conversation, error) {
	return []models.Conversation{{PartnerID: "from-conversations"}}, nil
}

func (stubMessages) Thread(_ context.Context, _ *models.JWTClaims, partnerID string, page, size int) ([]models.Message, *models.Pagination, error) {
	return []models.Message{{RecipientID: partnerID}}, models.NewPagination(page, size, 1), nil
}

type stubPayments struct {
	webhooks int
}

func (s *stubPayments) CreateCheckoutSession(context.Context, *models.JWTClaims, models.CheckoutSessionRequest) (*models.CheckoutSessionResponse, error) {
	return &models.CheckoutSessionResponse{}, nil
}

func (s *stubPayments) HandleWebhook(context.Context, []byte, string) (bool, error) {
	s.webhooks++
	return true, nil
}

func (s *stubPayments) History(_ context.Context, _ *models.JWTClaims, page, size int) ([]models.Payment, *models.Pagination, error) {
	return []models.Payment{}, models.NewPagination(page, size, 0), nil
}

func (s *stubPayments) CurrentSubscription(context.Context, *models.JWTClaims) (*models.Subscription, error) {
	return &models.Subscription{}, nil
}

func newTestEngine(authLimiter *middleware.IPRateLimiter) *gin.Engine {
	return newTestEngineWith(Options{AuthLimiter: authLimiter}, handler.NewPaymentHandler(nil))
}

func newTestEngineWith(opts Options, payments *handler.PaymentHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	opts.APIPrefix = "/api"
	opts.Metrics = service.NewMetricsService()
	opts.Tokens = stubTokens{
		"student": {UserID: "stu-1", Role: models.RoleStudent},
		"admin":   {UserID: "adm-1", Role: models.RoleAdmin},
	}
	return New(opts, Handlers{
		Auth:        handler.NewAuthHandler(stubAuth{}),
		MFA:         handler.NewMFAHandler(nil),
		OAuth:       handler.NewOAuthHandler(nil, false),
		Users:       handler.NewUserHandler(nil),
		Courses:     handler.NewCourseHandler(nil),
		Assessments: handler.NewAssessmentHandler(nil),
		Enrollments: handler.NewEnrollmentHandler(nil, nil),
		Payments:    payments,
		QnA:         handler.NewQnAHandler(nil),
		Messages:    handler.NewMessageHandler(stubMessages{}),
		Admin:       handler.NewAdminHandler(nil, nil),
		System:      handler.NewMetricsHandler(nil, nil),
	})
}

func do(r http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRouterHealth(t *testing.T) {
	r := newTestEngine(nil)

	w := do(r, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/ready", "", "").Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/docs/index.html", "", "").Code)
}

func TestRouterAuthGuards(t *testing.T) {
	r := newTestEngine(nil)

	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/api/auth/me", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/api/auth/me", "forged", "").Code)

	w := do(r, http.MethodGet, "/api/auth/me", "student", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"id":"stu-1"`)
}

func TestRouterRoleGuards(t *testing.T) {
	r := newTestEngine(nil)

	assert.Equal(t, http.StatusForbidden, do(r, http.MethodGet, "/api/admin/users", "student", "").Code)
	assert.Equal(t, http.StatusForbidden, do(r, http.MethodGet, "/api/admin/stats", "student", "").Code)
	assert.Equal(t, http.StatusForbidden, do(r, http.MethodGet, "/api/admin/qna", "student", "").Code)
	assert.Equal(t, http.StatusForbidden, do(r, http.MethodPost, "/api/courses", "student", `{}`).Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodPost, "/api/payments/create-checkout-session", "", `{}`).Code)
}

func TestRouterMessagesStaticBeforeParam(t *testing.T) {
	r := newTestEngine(nil)

	w := do(r, http.MethodGet, "/api/messages/conversations", "student", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "from-conversations")

	w = do(r, http.MethodGet, "/api/messages/ins-9", "student", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"recipient_id":"ins-9"`)
}

func TestRouterAuthRateLimit(t *testing.T) {
	r := newTestEngine(middleware.NewIPRateLimiter(0.001, 1))

	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/api/auth/login", "", `{"email":"a@example.com","password":"x"}`).Code)
	w := do(r, http.MethodPost, "/api/auth/login", "", `{"email":"a@example.com","password":"x"}`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/api/auth/me", "student", "").Code)
}

func TestRouterWebhookBypassesIPRateLimit(t *testing.T) {
	payments := &stubPayments{}
	r := newTestEngineWith(Options{Limiter: middleware.NewIPRateLimiter(0.001, 1)}, handler.NewPaymentHandler(payments))

	for i := 0; i < 3; i++ {
		w := do(r, http.MethodPost, "/api/payments/webhook", "", `{"id":"evt"}`)
		require.Equal(t, http.StatusOK, w.Code)
	}
	assert.Equal(t, 3, payments.webhooks)

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/api/payments", "student", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(r, http.MethodGet, "/api/payments", "student", "").Code)
}
