package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/learnhub-api/internal/middleware"
	"github.com/noah-isme/learnhub-api/internal/models"
	"github.com/noah-isme/learnhub-api/pkg/response"
)

type statsService interface {
	Summary(ctx context.Context) (*models.AdminStats, bool, error)
}

type metricsSnapshotter interface {
	Snapshot() models.SystemMetrics
}

// AdminHandler serves the dashboard endpoints.
type AdminHandler struct {
	stats   statsService
	metrics metricsSnapshotter
}

// NewAdminHandler creates a new handler.
func NewAdminHandler(stats statsService, metrics metricsSnapshotter) *AdminHandler {
	return &AdminHandler{stats: stats, metrics: metrics}
}

// Stats godoc
// @Summary Platform statistics
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /admin/stats [get]
func (h *AdminHandler) Stats(c *gin.Context) {
	stats, hit, err := h.stats.Summary(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	respondWithMeta(c, http.StatusOK, stats, nil)
}

// Metrics godoc
// @Summary In-process request and cache metrics
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /admin/metrics [get]
func (h *AdminHandler) Metrics(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.metrics.Snapshot(), nil)
}
