package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/learnhub-api/internal/models"
	"github.com/noah-isme/learnhub-api/pkg/response"
)

type qnaService interface {
	Ask(ctx context.Context, actor *models.JWTClaims, req models.CreateQuestionRequest) (*models.Question, error)
	List(ctx context.Context, actor *models.JWTClaims, filter models.QuestionFilter) ([]models.Question, *models.Pagination, error)
	Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.QuestionDetail, error)
	Reply(ctx context.Context, actor *models.JWTClaims, id string, req models.CreateReplyRequest) (*models.QuestionReply, error)
	AdminList(ctx context.Context, actor *models.JWTClaims, filter models.QuestionFilter) ([]models.Question, *models.Pagination, error)
	AdminGet(ctx context.Context, actor *models.JWTClaims, id string) (*models.QuestionDetail, error)
	Moderate(ctx context.Context, actor *models.JWTClaims, id string, req models.UpdateQnARequest) (*models.QuestionDetail, error)
}

// QnAHandler serves course questions and the moderation queue.
type QnAHandler struct {
	service qnaService
}

// NewQnAHandler creates a new handler.
func NewQnAHandler(svc qnaService) *QnAHandler {
	return &QnAHandler{service: svc}
}

// Ask godoc
// @Summary Ask a question
// @Tags Q&A
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.CreateQuestionRequest true "Question"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /questions [post]
func (h *QnAHandler) Ask(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req models.CreateQuestionRequest
	if !bindJSON(c, &req, "invalid question payload") {
		return
	}
	question, err := h.service.Ask(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, question)
}

// List godoc
// @Summary List questions
// @Tags Q&A
// @Produce json
// @Security BearerAuth
// @Param course_id query string false "Course ID"
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /questions [get]
func (h *QnAHandler) List(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	items, pagination, err := h.service.List(c.Request.Context(), claims, questionFilter(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get question with replies
// @Tags Q&A
// @Produce json
// @Security BearerAuth
// @Param id path string true "Question ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /questions/{id} [get]
func (h *QnAHandler) Get(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	detail, err := h.service.Get(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Reply godoc
// @Summary Reply to a question
// @Tags Q&A
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Question ID"
// @Param payload body models.CreateReplyRequest true "Reply"
// @Success 201 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /questions/{id}/replies [post]
func (h *QnAHandler) Reply(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req models.CreateReplyRequest
	if !bindJSON(c, &req, "invalid reply payload") {
		return
	}
	reply, err := h.service.Reply(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, reply)
}

// AdminList godoc
// @Summary Moderation queue
// @Tags Admin Q&A
// @Produce json
// @Security BearerAuth
// @Param status query string false "OPEN, ANSWERED or CLOSED"
// @Param course_id query string false "Course ID"
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /admin/qna [get]
func (h *QnAHandler) AdminList(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	items, pagination, err := h.service.AdminList(c.Request.Context(), claims, questionFilter(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// AdminGet godoc
// @Summary Moderation detail
// @Tags Admin Q&A
// @Produce json
// @Security BearerAuth
// @Param id path string true "Question ID"
// @Success 200 {object} response.Envelope
// @Router /admin/qna/{id} [get]
func (h *QnAHandler) AdminGet(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	detail, err := h.service.AdminGet(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Moderate godoc
// @Summary Update status, priority or answer
// @Tags Admin Q&A
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Question ID"
// @Param payload body models.UpdateQnARequest true "Moderation payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /admin/qna/{id} [patch]
func (h *QnAHandler) Moderate(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req models.UpdateQnARequest
	if !bindJSON(c, &req, "invalid moderation payload") {
		return
	}
	detail, err := h.service.Moderate(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

func questionFilter(c *gin.Context) models.QuestionFilter {
	filter := models.QuestionFilter{CourseID: c.Query("course_id")}
	filter.Page, filter.PageSize = pageParams(c)
	if status := c.Query("status"); status != "" {
		st := models.QuestionStatus(status)
		filter.Status = &st
	}
	return filter
}
