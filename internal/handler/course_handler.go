package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/learnhub-api/internal/middleware"
	"github.com/noah-isme/learnhub-api/internal/models"
	"github.com/noah-isme/learnhub-api/internal/service"
	"github.com/noah-isme/learnhub-api/pkg/response"
)

type courseService interface {
	List(ctx context.Context, actor *models.JWTClaims, query service.CourseQuery) ([]models.Course, *models.Pagination, bool, error)
	Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.CourseDetail, error)
	Create(ctx context.Context, actor *models.JWTClaims, req models.CreateCourseRequest, meta service.RequestMeta) (*models.Course, error)
	Update(ctx context.Context, actor *models.JWTClaims, id string, req models.UpdateCourseRequest, meta service.RequestMeta) (*models.Course, error)
	Publish(ctx context.Context, actor *models.JWTClaims, id string, meta service.RequestMeta) (*models.Course, error)
	Archive(ctx context.Context, actor *models.JWTClaims, id string, meta service.RequestMeta) error
	ExportEnrollments(ctx context.Context, actor *models.JWTClaims, id string) ([]byte, string, error)
	CreateModule(ctx context.Context, actor *models.JWTClaims, courseID string, req models.CreateModuleRequest) (*models.CourseModule, error)
	UpdateModule(ctx context.Context, actor *models.JWTClaims, moduleID string, req models.UpdateModuleRequest) (*models.CourseModule, error)
	DeleteModule(ctx context.Context, actor *models.JWTClaims, moduleID string) error
	CreateLesson(ctx context.Context, actor *models.JWTClaims, moduleID string, req models.CreateLessonRequest) (*models.Lesson, error)
	GetLesson(ctx context.Context, actor *models.JWTClaims, lessonID string) (*models.Lesson, error)
	UpdateLesson(ctx context.Context, actor *models.JWTClaims, lessonID string, req models.UpdateLessonRequest) (*models.Lesson, error)
	DeleteLesson(ctx context.Context, actor *models.JWTClaims, lessonID string) error
}

// CourseHandler serves the catalog and course authoring endpoints.
type CourseHandler struct {
	service courseService
}

// NewCourseHandler creates a new handler.
func NewCourseHandler(svc courseService) *CourseHandler {
	return &CourseHandler{service: svc}
}

// List godoc
// @Summary List courses
// @Description Public catalog. Instructors may pass mine=true to include their drafts; admins may filter by status.
// @Tags Courses
// @Produce json
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Param search query string false "Search in title and description"
// @Param category query string false "Category"
// @Param level query string false "beginner, intermediate or advanced"
// @Param status query string false "Status filter (admin)"
// @Param mine query bool false "Only courses owned by the caller"
// @Success 200 {object} response.Envelope
// @Router /courses [get]
func (h *CourseHandler) List(c *gin.Context) {
	var query service.CourseQuery
	query.Page, query.PageSize = pageParams(c)
	query.Search = c.Query("search")
	query.Category = c.Query("category")
	query.Level = c.Query("level")
	query.SortBy = c.Query("sort_by")
	query.SortOrder = c.Query("sort_order")
	if status := c.Query("status"); status != "" {
		st := models.CourseStatus(status)
		query.Status = &st
	}
	if mine, err := strconv.ParseBool(c.DefaultQuery("mine", "false")); err == nil {
		query.Mine = mine
	}

	items, pagination, hit, err := h.service.List(c.Request.Context(), claimsFromContext(c), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	respondWithMeta(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get course outline
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{id} [get]
func (h *CourseHandler) Get(c *gin.Context) {
	course, err := h.service.Get(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// Create godoc
// @Summary Create course
// @Tags Courses
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.CreateCourseRequest true "Course payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /courses [post]
func (h *CourseHandler) Create(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req models.CreateCourseRequest
	if !bindJSON(c, &req, "invalid course payload") {
		return
	}
	course, err := h.service.Create(c.Request.Context(), claims, req, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, course)
}

// Update godoc
// @Summary Update course
// @Tags Courses
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Param payload body models.UpdateCourseRequest true "Course payload"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /courses/{id} [put]
func (h *CourseHandler) Update(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req models.UpdateCourseRequest
	if !bindJSON(c, &req, "invalid course payload") {
		return
	}
	course, err := h.service.Update(c.Request.Context(), claims, c.Param("id"), req, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// Publish godoc
// @Summary Publish course
// @Tags Courses
// @Produce json
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /courses/{id}/publish [post]
func (h *CourseHandler) Publish(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	course, err := h.service.Publish(c.Request.Context(), claims, c.Param("id"), requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// Archive godoc
// @Summary Archive course
// @Tags Courses
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Success 204
// @Failure 403 {object} response.Envelope
// @Router /courses/{id} [delete]
func (h *CourseHandler) Archive(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	if err := h.service.Archive(c.Request.Context(), claims, c.Param("id"), requestMeta(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ExportEnrollments godoc
// @Summary Export course enrollments
// @Tags Courses
// @Produce text/csv
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Router /courses/{id}/enrollments/export [get]
func (h *CourseHandler) ExportEnrollments(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	data, filename, err := h.service.ExportEnrollments(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "text/csv; charset=utf-8", data)
}

// CreateModule godoc
// @Summary Add module
// @Tags Courses
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Param payload body models.CreateModuleRequest true "Module payload"
// @Success 201 {object} response.Envelope
// @Router /courses/{id}/modules [post]
func (h *CourseHandler) CreateModule(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req models.CreateModuleRequest
	if !bindJSON(c, &req, "invalid module payload") {
		return
	}
	module, err := h.service.CreateModule(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, module)
}

// UpdateModule godoc
// @Summary Update module
// @Tags Courses
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Module ID"
// @Param payload body models.UpdateModuleRequest true "Module payload"
// @Success 200 {object} response.Envelope
// @Router /modules/{id} [put]
func (h *CourseHandler) UpdateModule(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req models.UpdateModuleRequest
	if !bindJSON(c, &req, "invalid module payload") {
		return
	}
	module, err := h.service.UpdateModule(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, module, nil)
}

// DeleteModule godoc
// @Summary Delete module
// @Tags Courses
// @Security BearerAuth
// @Param id path string true "Module ID"
// @Success 204
// @Router /modules/{id} [delete]
func (h *CourseHandler) DeleteModule(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	if err := h.service.DeleteModule(c.Request.Context(), claims, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// CreateLesson godoc
// @Summary Add lesson
// @Tags Lessons
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Module ID"
// @Param payload body models.CreateLessonRequest true "Lesson payload"
// @Success 201 {object} response.Envelope
// @Router /modules/{id}/lessons [post]
func (h *CourseHandler) CreateLesson(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req models.CreateLessonRequest
	if !bindJSON(c, &req, "invalid lesson payload") {
		return
	}
	lesson, err := h.service.CreateLesson(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, lesson)
}

// GetLesson godoc
// @Summary Get lesson content
// @Tags Lessons
// @Produce json
// @Security BearerAuth
// @Param id path string true "Lesson ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /lessons/{id} [get]
func (h *CourseHandler) GetLesson(c *gin.Context) {
	lesson, err := h.service.GetLesson(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lesson, nil)
}

// UpdateLesson godoc
// @Summary Update lesson
// @Tags Lessons
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Lesson ID"
// @Param payload body models.UpdateLessonRequest true "Lesson payload"
// @Success 200 {object} response.Envelope
// @Router /lessons/{id} [put]
func (h *CourseHandler) UpdateLesson(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req models.UpdateLessonRequest
	if !bindJSON(c, &req, "invalid lesson payload") {
		return
	}
	lesson, err := h.service.UpdateLesson(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lesson, nil)
}

// DeleteLesson godoc
// @Summary Delete lesson
// @Tags Lessons
// @Security BearerAuth
// @Param id path string true "Lesson ID"
// @Success 204
// @Router /lessons/{id} [delete]
func (h *CourseHandler) DeleteLesson(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	if err := h.service.DeleteLesson(c.Request.Context(), claims, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
