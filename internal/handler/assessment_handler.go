package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/learnhub-api/internal/models"
	appErrors "github.com/noah-isme/learnhub-api/pkg/errors"
	"github.com/noah-isme/learnhub-api/pkg/response"
)

type assessmentService interface {
	List(ctx context.Context, actor *models.JWTClaims, courseID string) ([]models.Assessment, error)
	Create(ctx context.Context, actor *models.JWTClaims, req models.CreateAssessmentRequest) (*models.Assessment, error)
	Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.Assessment, error)
	Submit(ctx context.Context, actor *models.JWTClaims, id string, req models.SubmitAssessmentRequest) (*models.AssessmentSubmission, error)
	ListSubmissions(ctx context.Context, actor *models.JWTClaims, id string, page, size int) ([]models.AssessmentSubmission, *models.Pagination, error)
}

// AssessmentHandler exposes quizzes and graded submissions.
type AssessmentHandler struct {
	service assessmentService
}

// NewAssessmentHandler creates a new handler.
func NewAssessmentHandler(svc assessmentService) *AssessmentHandler {
	return &AssessmentHandler{service: svc}
}

// List godoc
// @Summary List course assessments
// @Tags Assessments
// @Produce json
// @Security BearerAuth
// @Param course_id query string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /assessments [get]
func (h *AssessmentHandler) List(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	courseID := c.Query("course_id")
	if courseID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "course_id is required"))
		return
	}
	items, err := h.service.List(c.Request.Context(), claims, courseID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Create godoc
// @Summary Create assessment
// @Tags Assessments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.CreateAssessmentRequest true "Assessment payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /assessments [post]
func (h *AssessmentHandler) Create(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req models.CreateAssessmentRequest
	if !bindJSON(c, &req, "invalid assessment payload") {
		return
	}
	assessment, err := h.service.Create(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, assessment)
}

// Get godoc
// @Summary Get assessment
// @Description Correct answers are hidden from students
// @Tags Assessments
// @Produce json
// @Security BearerAuth
// @Param id path string true "Assessment ID"
// @Success 200 {object} response.Envelope
// @Router /assessments/{id} [get]
func (h *AssessmentHandler) Get(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	assessment, err := h.service.Get(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assessment, nil)
}

// Submit godoc
// @Summary Submit answers
// @Tags Assessments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Assessment ID"
// @Param payload body models.SubmitAssessmentRequest true "Answers"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /assessments/{id}/submissions [post]
func (h *AssessmentHandler) Submit(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req models.SubmitAssessmentRequest
	if !bindJSON(c, &req, "invalid submission payload") {
		return
	}
	submission, err := h.service.Submit(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, submission)
}

// ListSubmissions godoc
// @Summary List submissions
// @Tags Assessments
// @Produce json
// @Security BearerAuth
// @Param id path string true "Assessment ID"
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /assessments/{id}/submissions [get]
func (h *AssessmentHandler) ListSubmissions(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	page, size := pageParams(c)
	items, pagination, err := h.service.ListSubmissions(c.Request.Context(), claims, c.Param("id"), page, size)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}
