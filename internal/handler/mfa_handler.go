package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/learnhub-api/internal/models"
	"github.com/noah-isme/learnhub-api/pkg/response"
)

type mfaService interface {
	Setup(ctx context.Context, userID string) (*models.MFASetupResponse, error)
	Enable(ctx context.Context, userID string, req models.MFAEnableRequest) (*models.MFAEnableResponse, error)
	Disable(ctx context.Context, userID string, req models.MFADisableRequest) error
	Verify(ctx context.Context, req models.MFAVerifyRequest) (*models.LoginResponse, error)
}

// MFAHandler exposes TOTP enrolment and the login challenge.
type MFAHandler struct {
	service mfaService
}

// NewMFAHandler creates a new handler.
func NewMFAHandler(svc mfaService) *MFAHandler {
	return &MFAHandler{service: svc}
}

// Setup godoc
// @Summary Start TOTP enrolment
// @Tags MFA
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /auth/mfa/setup [post]
func (h *MFAHandler) Setup(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	res, err := h.service.Setup(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Enable godoc
// @Summary Confirm TOTP enrolment
// @Tags MFA
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.MFAEnableRequest true "Authenticator code"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /auth/mfa/enable [post]
func (h *MFAHandler) Enable(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req models.MFAEnableRequest
	if !bindJSON(c, &req, "invalid mfa payload") {
		return
	}
	res, err := h.service.Enable(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Disable godoc
// @Summary Disable MFA
// @Tags MFA
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.MFADisableRequest true "Password and code"
// @Success 204
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/mfa/disable [post]
func (h *MFAHandler) Disable(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req models.MFADisableRequest
	if !bindJSON(c, &req, "invalid mfa payload") {
		return
	}
	if err := h.service.Disable(c.Request.Context(), claims.UserID, req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Verify godoc
// @Summary Complete an MFA login challenge
// @Description Exchanges an mfa_token and a TOTP or recovery code for a token pair
// @Tags MFA
// @Accept json
// @Produce json
// @Param payload body models.MFAVerifyRequest true "Challenge"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/mfa/verify [post]
func (h *MFAHandler) Verify(c *gin.Context) {
	var req models.MFAVerifyRequest
	if !bindJSON(c, &req, "invalid mfa payload") {
		return
	}
	req.IP = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")

	res, err := h.service.Verify(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}
