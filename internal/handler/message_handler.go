package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/learnhub-api/internal/models"
	"github.com/noah-isme/learnhub-api/pkg/response"
)

type messageService interface {
	Send(ctx context.Context, actor *models.JWTClaims, req models.SendMessageRequest) (*models.Message, error)
	Conversations(ctx context.Context, actor *models.JWTClaims) ([]models.Conversation, error)
	Thread(ctx context.Context, actor *models.JWTClaims, partnerID string, page, size int) ([]models.Message, *models.Pagination, error)
}

// MessageHandler exposes direct messaging.
type MessageHandler struct {
	service messageService
}

// NewMessageHandler creates a new handler.
func NewMessageHandler(svc messageService) *MessageHandler {
	return &MessageHandler{service: svc}
}

// Send godoc
// @Summary Send a direct message
// @Tags Messages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.SendMessageRequest true "Message"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /messages [post]
func (h *MessageHandler) Send(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req models.SendMessageRequest
	if !bindJSON(c, &req, "invalid message payload") {
		return
	}
	msg, err := h.service.Send(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, msg)
}

// Conversations godoc
// @Summary List conversations
// @Tags Messages
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /messages/conversations [get]
func (h *MessageHandler) Conversations(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	items, err := h.service.Conversations(c.Request.Context(), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Thread godoc
// @Summary Read a thread
// @Description Newest first; inbound messages are marked read
// @Tags Messages
// @Produce json
// @Security BearerAuth
// @Param userId path string true "Partner user ID"
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /messages/{userId} [get]
func (h *MessageHandler) Thread(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	page, size := pageParams(c)
	items, pagination, err := h.service.Thread(c.Request.Context(), claims, c.Param("userId"), page, size)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}
