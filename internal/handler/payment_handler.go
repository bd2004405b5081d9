package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/learnhub-api/internal/models"
	appErrors "github.com/noah-isme/learnhub-api/pkg/errors"
	"github.com/noah-isme/learnhub-api/pkg/response"
)

const maxWebhookBody = 64 << 10

type paymentService interface {
	CreateCheckoutSession(ctx context.Context, actor *models.JWTClaims, req models.CheckoutSessionRequest) (*models.CheckoutSessionResponse, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) (bool, error)
	History(ctx context.Context, actor *models.JWTClaims, page, size int) ([]models.Payment, *models.Pagination, error)
	CurrentSubscription(ctx context.Context, actor *models.JWTClaims) (*models.Subscription, error)
}

// PaymentHandler exposes Stripe checkout, webhooks and billing history.
type PaymentHandler struct {
	service paymentService
}

// NewPaymentHandler creates a new handler.
func NewPaymentHandler(svc paymentService) *PaymentHandler {
	return &PaymentHandler{service: svc}
}

// CreateCheckoutSession godoc
// @Summary Start a Stripe checkout
// @Tags Payments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.CheckoutSessionRequest true "Checkout payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /payments/create-checkout-session [post]
func (h *PaymentHandler) CreateCheckoutSession(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req models.CheckoutSessionRequest
	if !bindJSON(c, &req, "invalid checkout payload") {
		return
	}
	res, err := h.service.CreateCheckoutSession(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}

// Webhook godoc
// @Summary Stripe webhook receiver
// @Tags Payments
// @Accept json
// @Produce json
// @Param Stripe-Signature header string true "Webhook signature"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /payments/webhook [post]
func (h *PaymentHandler) Webhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "failed to read webhook body"))
		return
	}
	processed, err := h.service.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"received": true, "processed": processed}, nil)
}

// History godoc
// @Summary Payment history
// @Tags Payments
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /payments [get]
func (h *PaymentHandler) History(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	page, size := pageParams(c)
	items, pagination, err := h.service.History(c.Request.Context(), claims, page, size)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// CurrentSubscription godoc
// @Summary Current subscription
// @Tags Payments
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /subscriptions/me [get]
func (h *PaymentHandler) CurrentSubscription(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	sub, err := h.service.CurrentSubscription(c.Request.Context(), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sub, nil)
}
