package handler

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/learnhub-api/internal/models"
	"github.com/noah-isme/learnhub-api/internal/service"
	appErrors "github.com/noah-isme/learnhub-api/pkg/errors"
)

type authServiceMock struct {
	registered  models.RegisterRequest
	loginErr    error
	loggedOut   string
	forgotCalls int
}

func (m *authServiceMock) Register(ctx context.Context, req models.RegisterRequest) (*models.LoginResponse, error) {
	m.registered = req
	return &models.LoginResponse{AccessToken: "access", RefreshToken: "refresh"}, nil
}

func (m *authServiceMock) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if m.loginErr != nil {
		return nil, m.loginErr
	}
	return &models.LoginResponse{MFARequired: true, MFAToken: "challenge"}, nil
}

func (m *authServiceMock) RefreshToken(ctx context.Context, req models.RefreshTokenRequest) (*models.RefreshTokenResponse, error) {
	return &models.RefreshTokenResponse{AccessToken: "a2", RefreshToken: "r2"}, nil
}

func (m *authServiceMock) Logout(ctx context.Context, refreshToken string, userID string, meta models.LoginRequest) error {
	m.loggedOut = userID + ":" + refreshToken
	return nil
}

func (m *authServiceMock) ChangePassword(ctx context.Context, userID string, req models.ChangePasswordRequest) error {
	return nil
}

func (m *authServiceMock) ForgotPassword(ctx context.Context, req models.ForgotPasswordRequest) error {
	m.forgotCalls++
	return nil
}

func (m *authServiceMock) ResetPassword(ctx context.Context, req models.ResetPasswordRequest) error {
	return appErrors.Clone(appErrors.ErrValidation, "reset token is invalid or expired")
}

func (m *authServiceMock) Me(ctx context.Context, userID string) (*models.UserInfo, error) {
	return &models.UserInfo{ID: userID, Role: models.RoleStudent}, nil
}

func TestAuthHandlerRegisterCapturesClientMeta(t *testing.T) {
	svc := &authServiceMock{}
	h := NewAuthHandler(svc)
	c, w := newTestContext(t, http.MethodPost, "/auth/register", models.RegisterRequest{Email: "new@example.com", Password: "password1", FullName: "New"}, nil)
	c.Request.Header.Set("User-Agent", "test-agent")

	h.Register(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "new@example.com", svc.registered.Email)
	assert.Equal(t, "test-agent", svc.registered.UserAgent)
}

func TestAuthHandlerLoginMFAChallenge(t *testing.T) {
	h := NewAuthHandler(&authServiceMock{})
	c, w := newTestContext(t, http.MethodPost, "/auth/login", models.LoginRequest{Email: "a@example.com", Password: "x"}, nil)

	h.Login(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"mfa_required":true`)
	assert.NotContains(t, w.Body.String(), "access_token")
}

func TestAuthHandlerLoginErrors(t *testing.T) {
	h := NewAuthHandler(&authServiceMock{loginErr: appErrors.ErrInactiveAccount})

	c, w := newTestContext(t, http.MethodPost, "/auth/login", "{bad", nil)
	h.Login(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	c, w = newTestContext(t, http.MethodPost, "/auth/login", models.LoginRequest{Email: "a@example.com", Password: "x"}, nil)
	h.Login(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAuthHandlerLogoutRequiresClaims(t *testing.T) {
	svc := &authServiceMock{}
	h := NewAuthHandler(svc)

	c, w := newTestContext(t, http.MethodPost, "/auth/logout", models.LogoutRequest{RefreshToken: "rt"}, nil)
	h.Logout(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	c, w = newTestContext(t, http.MethodPost, "/auth/logout", models.LogoutRequest{RefreshToken: "rt"}, studentClaims)
	h.Logout(c)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "stu-1:rt", svc.loggedOut)
}

func TestAuthHandlerForgotPasswordAlwaysAccepted(t *testing.T) {
	svc := &authServiceMock{}
	h := NewAuthHandler(svc)
	c, w := newTestContext(t, http.MethodPost, "/auth/forgot-password", models.ForgotPasswordRequest{Email: "ghost@example.com"}, nil)

	h.ForgotPassword(c)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, 1, svc.forgotCalls)
	assert.True(t, decodeEnvelope(t, w).Success)
}

func TestAuthHandlerResetPasswordPropagatesError(t *testing.T) {
	h := NewAuthHandler(&authServiceMock{})
	c, w := newTestContext(t, http.MethodPost, "/auth/reset-password", models.ResetPasswordRequest{Token: "t", NewPassword: "password1"}, nil)

	h.ResetPassword(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthHandlerMe(t *testing.T) {
	h := NewAuthHandler(&authServiceMock{})
	c, w := newTestContext(t, http.MethodGet, "/auth/me", nil, studentClaims)

	h.Me(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"id":"stu-1"`)
}

type oauthServiceMock struct {
	beginErr    error
	completeErr error
	callback    service.OAuthCallback
}

func (m *oauthServiceMock) Begin(provider string) (*service.OAuthRedirect, error) {
	if m.beginErr != nil {
		return nil, m.beginErr
	}
	return &service.OAuthRedirect{URL: "https://accounts.example.com/auth?state=s", Nonce: "nonce-1"}, nil
}

func (m *oauthServiceMock) Complete(ctx context.Context, cb service.OAuthCallback) (*models.LoginResponse, error) {
	m.callback = cb
	if m.completeErr != nil {
		return nil, m.completeErr
	}
	return &models.LoginResponse{AccessToken: "a"}, nil
}

func (m *oauthServiceMock) SuccessRedirect(res *models.LoginResponse) string {
	return "https://app.example.com/auth/callback#access_token=" + res.AccessToken
}

func (m *oauthServiceMock) ErrorRedirect(err error) string {
	return "https://app.example.com/auth/callback#error=" + strings.ToLower(appErrors.FromError(err).Code)
}

func TestOAuthHandlerBeginSetsNonceCookie(t *testing.T) {
	h := NewOAuthHandler(&oauthServiceMock{}, true)
	c, w := newTestContext(t, http.MethodGet, "/auth/oauth/google", nil, nil)
	c.Params = gin.Params{{Key: "provider", Value: "google"}}

	h.Begin(c)

	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://accounts.example.com/auth?state=s", w.Header().Get("Location"))
	cookie := w.Header().Get("Set-Cookie")
	assert.Contains(t, cookie, OAuthNonceCookie+"=nonce-1")
	assert.Contains(t, cookie, "HttpOnly")
	assert.Contains(t, cookie, "Secure")
}

func TestOAuthHandlerBeginUnknownProvider(t *testing.T) {
	h := NewOAuthHandler(&oauthServiceMock{beginErr: appErrors.Clone(appErrors.ErrNotFound, "oauth provider not available")}, false)
	c, w := newTestContext(t, http.MethodGet, "/auth/oauth/myspace", nil, nil)

	h.Begin(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestOAuthHandlerCallbackPassesCookieNonce(t *testing.T) {
	svc := &oauthServiceMock{}
	h := NewOAuthHandler(svc, false)
	c, w := newTestContext(t, http.MethodGet, "/auth/oauth/github/callback?code=abc&state=xyz", nil, nil)
	c.Request.AddCookie(&http.Cookie{Name: OAuthNonceCookie, Value: "nonce-1"})
	c.Params = gin.Params{{Key: "provider", Value: "github"}}

	h.Callback(c)

	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://app.example.com/auth/callback#access_token=a", w.Header().Get("Location"))
	assert.Equal(t, service.OAuthCallback{Provider: "github", Code: "abc", State: "xyz", Nonce: "nonce-1", IP: svc.callback.IP, UserAgent: svc.callback.UserAgent}, svc.callback)
}

func TestOAuthHandlerCallbackFailureRedirects(t *testing.T) {
	h := NewOAuthHandler(&oauthServiceMock{completeErr: appErrors.ErrUnauthorized}, false)
	c, w := newTestContext(t, http.MethodGet, "/auth/oauth/google/callback?state=bad", nil, nil)
	c.Params = gin.Params{{Key: "provider", Value: "google"}}

	h.Callback(c)

	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://app.example.com/auth/callback#error=unauthorized", w.Header().Get("Location"))
}
