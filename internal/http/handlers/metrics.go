package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/civicdesk/backend/internal/apperr"
	"github.com/civicdesk/backend/internal/models"
)

// @Summary Complaint overview
// @Tags metrics
// @Produce json
// @Success 200 {object} service.Overview
// @Router /api/metrics/overview [get]
func (h *Handler) MetricsOverview(c *gin.Context) {
	out, err := h.Metrics.Overview(c.Request.Context())
	if err != nil {
		h.respondError(c, err, "Failed to compute overview")
		return
	}
	c.JSON(http.StatusOK, out)
}

// @Summary Category breakdown
// @Tags metrics
// @Produce json
// @Success 200 {object} map[string]any
// @Router /api/metrics/categories [get]
func (h *Handler) MetricsCategories(c *gin.Context) {
	items, err := h.Metrics.Categories(c.Request.Context())
	if err != nil {
		h.respondError(c, err, "Failed to compute category breakdown")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *Handler) MetricsDepartments(c *gin.Context) {
	items, err := h.Metrics.Departments(c.Request.Context())
	if err != nil {
		h.respondError(c, err, "Failed to compute department stats")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *Handler) MetricsOverdue(c *gin.Context) {
	var asOf *time.Time
	if raw := strings.TrimSpace(c.Query("asOf")); raw != "" {
		d, err := time.Parse("2006-01-02", raw)
		if err != nil {
			h.respondError(c, apperr.Validation("asOf", "must be YYYY-MM-DD"), "Invalid date")
			return
		}
		asOf = &d
	}
	ids, day, err := h.Metrics.Overdue(c.Request.Context(), asOf)
	if err != nil {
		h.respondError(c, err, "Failed to compute overdue complaints")
		return
	}
	c.JSON(http.StatusOK, gin.H{"asOf": day.Format("2006-01-02"), "items": ids})
}

func (h *Handler) MetricsRecent(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "5"))
	if err != nil || limit < 0 {
		h.respondError(c, apperr.Validation("limit", "must be a non-negative integer"), "Invalid limit")
		return
	}
	if limit > models.MaxListLimit {
		limit = models.MaxListLimit
	}
	items, err := h.Metrics.Recent(c.Request.Context(), limit)
	if err != nil {
		h.respondError(c, err, "Failed to load recent complaints")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}
