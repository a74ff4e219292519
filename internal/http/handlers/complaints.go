package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/civicdesk/backend/internal/apperr"
	"github.com/civicdesk/backend/internal/http/middleware"
	"github.com/civicdesk/backend/internal/models"
	"github.com/civicdesk/backend/internal/service"
)

type CreateComplaintRequest struct {
	Title       string   `json:"title" validate:"required,max=200"`
	Description string   `json:"description" validate:"required,max=5000"`
	Category    string   `json:"category" validate:"required"`
	Priority    string   `json:"priority"`
	Location    string   `json:"location" validate:"max=500"`
	Latitude    *float64 `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude   *float64 `json:"longitude" validate:"omitempty,gte=-180,lte=180"`
}

type StatusRequest struct {
	NewStatus string  `json:"newStatus" validate:"required"`
	Notes     *string `json:"notes" validate:"omitempty,max=2000"`
}

type AssignRequest struct {
	DepartmentID string  `json:"departmentId" validate:"required"`
	UserID       *string `json:"userId"`
}

// EstimateRequest clears the estimate when date is null.
type EstimateRequest struct {
	Date *string `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

type UpdateComplaintRequest struct {
	Title             *string    `json:"title" validate:"omitempty,min=1,max=200"`
	Description       *string    `json:"description" validate:"omitempty,min=1,max=5000"`
	Category          *string    `json:"category"`
	Priority          *string    `json:"priority"`
	Location          *string    `json:"location" validate:"omitempty,max=500"`
	AdminNotes        *string    `json:"admin_notes"`
	ResolutionNotes   *string    `json:"resolution_notes"`
	ExpectedUpdatedAt *time.Time `json:"expected_updated_at"`
}

// @Summary Submit a complaint
// @Tags complaints
// @Accept json
// @Produce json
// @Param body body CreateComplaintRequest true "complaint"
// @Success 201 {object} models.Complaint
// @Failure 400 {object} map[string]any
// @Failure 429 {object} map[string]any
// @Router /api/complaints [post]
func (h *Handler) CreateComplaint(c *gin.Context) {
	var req CreateComplaintRequest
	if !h.bind(c, &req) {
		return
	}
	created, err := h.Complaints.Create(c.Request.Context(), models.NewComplaint{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Priority:    req.Priority,
		Location:    req.Location,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
	})
	if err != nil {
		h.respondError(c, err, "Failed to create complaint")
		return
	}
	c.JSON(http.StatusCreated, created)
}

func parseListFilter(c *gin.Context) (models.ComplaintFilter, error) {
	v := &apperr.ValidationError{}
	f := models.ComplaintFilter{
		DepartmentID: strings.TrimSpace(c.Query("department")),
		Query:        strings.TrimSpace(c.Query("q")),
		Sort:         models.SortOrder(strings.ToLower(strings.TrimSpace(c.Query("sort")))),
	}
	if raw := strings.TrimSpace(c.Query("category")); raw != "" {
		cat, ok := models.ParseCategory(raw)
		if !ok {
			v.Add("category", "invalid category")
		}
		f.Category = cat
	}
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		st, ok := models.ParseStatus(raw)
		if !ok {
			v.Add("status", "invalid status")
		}
		f.Status = st
	}
	if raw := strings.TrimSpace(c.Query("priority")); raw != "" {
		p, ok := models.ParsePriority(raw)
		if !ok {
			v.Add("priority", "invalid priority")
		}
		f.Priority = p
	}
	var err error
	if f.Limit, err = strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(models.DefaultListLimit))); err != nil {
		v.Add("limit", "must be an integer")
	}
	if f.Offset, err = strconv.Atoi(c.DefaultQuery("offset", "0")); err != nil {
		v.Add("offset", "must be an integer")
	}
	return f.Normalize(), v.OrNil()
}

// @Summary List complaints
// @Tags complaints
// @Produce json
// @Param category query string false "category"
// @Param status query string false "status"
// @Param priority query string false "High|Medium|Low"
// @Param department query string false "department id"
// @Param q query string false "text search over title and description"
// @Param sort query string false "newest|oldest|upvotes|priority"
// @Param limit query int false "page size"
// @Param offset query int false "page offset"
// @Success 200 {object} map[string]any
// @Router /api/complaints [get]
func (h *Handler) ListComplaints(c *gin.Context) {
	f, err := parseListFilter(c)
	if err != nil {
		h.respondError(c, err, "Invalid filter")
		return
	}
	items, err := h.Complaints.List(c.Request.Context(), f)
	if err != nil {
		h.respondError(c, err, "Failed to list complaints")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "limit": f.Limit, "offset": f.Offset})
}

func (h *Handler) UnassignedComplaints(c *gin.Context) {
	f, err := parseListFilter(c)
	if err != nil {
		h.respondError(c, err, "Invalid filter")
		return
	}
	f.Unassigned = true
	items, err := h.Complaints.List(c.Request.Context(), f)
	if err != nil {
		h.respondError(c, err, "Failed to list complaints")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "limit": f.Limit, "offset": f.Offset})
}

func parseFloatQuery(c *gin.Context, v *apperr.ValidationError, name string) float64 {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		v.Add(name, "required")
		return 0
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		v.Add(name, "must be a number")
	}
	return f
}

// @Summary Complaints near a point
// @Tags complaints
// @Produce json
// @Param lat query number true "latitude"
// @Param lon query number true "longitude"
// @Param radiusKm query number true "radius in kilometres"
// @Success 200 {object} map[string]any
// @Router /api/complaints/nearby [get]
func (h *Handler) NearbyComplaints(c *gin.Context) {
	v := &apperr.ValidationError{}
	lat := parseFloatQuery(c, v, "lat")
	lon := parseFloatQuery(c, v, "lon")
	radius := parseFloatQuery(c, v, "radiusKm")
	if err := v.OrNil(); err != nil {
		h.respondError(c, err, "Invalid query")
		return
	}
	items, err := h.Complaints.Nearby(c.Request.Context(), lat, lon, radius)
	if err != nil {
		h.respondError(c, err, "Failed to search complaints")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *Handler) GetComplaint(c *gin.Context) {
	item, err := h.Complaints.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err, "Failed to get complaint")
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *Handler) ComplaintHistory(c *gin.Context) {
	items, err := h.Complaints.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err, "Failed to load history")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *Handler) ComplaintSuggestion(c *gin.Context) {
	dept, err := h.Complaints.Suggest(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err, "Failed to suggest department")
		return
	}
	c.JSON(http.StatusOK, gin.H{"department": dept})
}

// @Summary Upvote a complaint
// @Tags complaints
// @Produce json
// @Param id path string true "complaint id"
// @Success 200 {object} models.Complaint
// @Failure 404 {object} map[string]any
// @Router /api/complaints/{id}/upvote [post]
func (h *Handler) UpvoteComplaint(c *gin.Context) {
	item, err := h.Complaints.Upvote(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err, "Failed to upvote")
		return
	}
	c.JSON(http.StatusOK, item)
}

// @Summary Change complaint status
// @Description Admins and departments only; the change is recorded in the status history.
// @Tags complaints
// @Accept json
// @Produce json
// @Param id path string true "complaint id"
// @Param X-Actor-Role header string true "admin or department"
// @Param body body StatusRequest true "status change"
// @Success 200 {object} models.Complaint
// @Failure 400 {object} map[string]any
// @Failure 403 {object} map[string]any
// @Router /api/complaints/{id}/status [post]
func (h *Handler) ChangeStatus(c *gin.Context) {
	actor := middleware.ActorRole(c)
	if actor != models.ActorAdmin && actor != models.ActorDepartment {
		writeError(c, http.StatusForbidden, "FORBIDDEN", "Only admins and departments can change status", nil)
		return
	}
	var req StatusRequest
	if !h.bind(c, &req) {
		return
	}
	status, ok := models.ParseStatus(req.NewStatus)
	if !ok {
		h.respondError(c, apperr.Validation("newStatus", "invalid status"), "Invalid status")
		return
	}
	item, err := h.Complaints.Transition(c.Request.Context(), service.TransitionRequest{
		ComplaintID: c.Param("id"),
		Status:      status,
		Notes:       req.Notes,
		Actor:       actor,
	})
	if err != nil {
		h.respondError(c, err, "Failed to change status")
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *Handler) SetEstimate(c *gin.Context) {
	actor := middleware.ActorRole(c)
	if actor != models.ActorAdmin && actor != models.ActorDepartment {
		writeError(c, http.StatusForbidden, "FORBIDDEN", "Only admins and departments can set estimates", nil)
		return
	}
	var req EstimateRequest
	if !h.bind(c, &req) {
		return
	}
	var date *time.Time
	if req.Date != nil {
		d, err := time.Parse("2006-01-02", *req.Date)
		if err != nil {
			h.respondError(c, apperr.Validation("date", "must be YYYY-MM-DD"), "Invalid date")
			return
		}
		date = &d
	}
	item, err := h.Complaints.SetEstimate(c.Request.Context(), c.Param("id"), date)
	if err != nil {
		h.respondError(c, err, "Failed to set estimate")
		return
	}
	c.JSON(http.StatusOK, item)
}

// @Summary Assign a complaint to a department
// @Tags complaints
// @Accept json
// @Produce json
// @Param id path string true "complaint id"
// @Param body body AssignRequest true "assignment"
// @Success 200 {object} models.Complaint
// @Failure 404 {object} map[string]any
// @Router /api/complaints/{id}/assign [post]
func (h *Handler) AssignComplaint(c *gin.Context) {
	var req AssignRequest
	if !h.bind(c, &req) {
		return
	}
	item, err := h.Complaints.Assign(c.Request.Context(), service.AssignRequest{
		ComplaintID:  c.Param("id"),
		DepartmentID: req.DepartmentID,
		UserID:       req.UserID,
		Actor:        models.ActorAdmin,
	})
	if err != nil {
		h.respondError(c, err, "Failed to assign complaint")
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *Handler) UnassignComplaint(c *gin.Context) {
	item, err := h.Complaints.Unassign(c.Request.Context(), c.Param("id"), models.ActorAdmin)
	if err != nil {
		h.respondError(c, err, "Failed to unassign complaint")
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *Handler) UpdateComplaint(c *gin.Context) {
	var req UpdateComplaintRequest
	if !h.bind(c, &req) {
		return
	}
	patch := models.ComplaintPatch{
		Title:             req.Title,
		Description:       req.Description,
		Location:          req.Location,
		AdminNotes:        req.AdminNotes,
		ResolutionNotes:   req.ResolutionNotes,
		ExpectedUpdatedAt: req.ExpectedUpdatedAt,
	}
	v := &apperr.ValidationError{}
	if req.Category != nil {
		cat, ok := models.ParseCategory(*req.Category)
		if !ok {
			v.Add("category", "invalid category")
		}
		patch.Category = &cat
	}
	if req.Priority != nil {
		p, ok := models.ParsePriority(*req.Priority)
		if !ok {
			v.Add("priority", "invalid priority")
		}
		patch.Priority = &p
	}
	if err := v.OrNil(); err != nil {
		h.respondError(c, err, "Invalid update")
		return
	}
	item, err := h.Complaints.Update(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		h.respondError(c, err, "Failed to update complaint")
		return
	}
	c.JSON(http.StatusOK, item)
}
