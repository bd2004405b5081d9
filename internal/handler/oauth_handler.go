package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/learnhub-api/internal/models"
	"github.com/noah-isme/learnhub-api/internal/service"
	"github.com/noah-isme/learnhub-api/pkg/response"
)

// OAuthNonceCookie pins the state nonce to the browser that started the flow.
const OAuthNonceCookie = "oauth_nonce"

const oauthCookieMaxAge = 600

type oauthService interface {
	Begin(provider string) (*service.OAuthRedirect, error)
	Complete(ctx context.Context, cb service.OAuthCallback) (*models.LoginResponse, error)
	SuccessRedirect(res *models.LoginResponse) string
	ErrorRedirect(err error) string
}

// OAuthHandler runs the authorization code flow for SSO providers.
type OAuthHandler struct {
	service      oauthService
	secureCookie bool
}

// NewOAuthHandler creates a new handler. secureCookie should be true behind TLS.
func NewOAuthHandler(svc oauthService, secureCookie bool) *OAuthHandler {
	return &OAuthHandler{service: svc, secureCookie: secureCookie}
}

// Begin godoc
// @Summary Start SSO sign in
// @Tags Authentication
// @Param provider path string true "google or github"
// @Success 302
// @Failure 404 {object} response.Envelope
// @Router /auth/oauth/{provider} [get]
func (h *OAuthHandler) Begin(c *gin.Context) {
	redirect, err := h.service.Begin(c.Param("provider"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(OAuthNonceCookie, redirect.Nonce, oauthCookieMaxAge, "/", "", h.secureCookie, true)
	c.Redirect(http.StatusFound, redirect.URL)
}

// Callback godoc
// @Summary Finish SSO sign in
// @Description Redirects to the frontend with tokens (or an error code) in the URL fragment
// @Tags Authentication
// @Param provider path string true "google or github"
// @Param code query string true "Authorization code"
// @Param state query string true "Signed state"
// @Success 302
// @Router /auth/oauth/{provider}/callback [get]
func (h *OAuthHandler) Callback(c *gin.Context) {
	nonce, _ := c.Cookie(OAuthNonceCookie)
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(OAuthNonceCookie, "", -1, "/", "", h.secureCookie, true)

	res, err := h.service.Complete(c.Request.Context(), service.OAuthCallback{
		Provider:  c.Param("provider"),
		Code:      c.Query("code"),
		State:     c.Query("state"),
		Nonce:     nonce,
		IP:        c.ClientIP(),
		UserAgent: c.GetHeader("User-Agent"),
	})
	if err != nil {
		_ = c.Error(err)
		c.Redirect(http.StatusFound, h.service.ErrorRedirect(err))
		return
	}
	c.Redirect(http.StatusFound, h.service.SuccessRedirect(res))
}
