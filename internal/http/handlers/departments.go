package handlers

import (
	"encoding/csv"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/civicdesk/backend/internal/models"
)

type DepartmentRequest struct {
	Name         string  `json:"name" validate:"required,max=200"`
	Description  string  `json:"description" validate:"max=2000"`
	ContactEmail string  `json:"contact_email" validate:"omitempty,email"`
	ContactPhone *string `json:"contact_phone" validate:"omitempty,max=50"`
}

type ImportSummary struct {
	Parsed   int      `json:"parsed"`
	Upserted int64    `json:"upserted"`
	Errors   []string `json:"errors"`
}

func (h *Handler) ListDepartments(c *gin.Context) {
	items, err := h.Registry.List(c.Request.Context())
	if err != nil {
		h.respondError(c, err, "Failed to list departments")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *Handler) GetDepartment(c *gin.Context) {
	item, err := h.Registry.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err, "Failed to get department")
		return
	}
	c.JSON(http.StatusOK, item)
}

// @Summary Department statistics
// @Tags departments
// @Produce json
// @Param id path string true "department id"
// @Success 200 {object} service.DepartmentStat
// @Failure 404 {object} map[string]any
// @Router /api/departments/{id}/stats [get]
func (h *Handler) DepartmentStats(c *gin.Context) {
	stat, err := h.Metrics.Department(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err, "Failed to compute department stats")
		return
	}
	c.JSON(http.StatusOK, stat)
}

func (h *Handler) DepartmentOverview(c *gin.Context) {
	out, err := h.Metrics.DepartmentOverview(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err, "Failed to compute department overview")
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) PutDepartment(c *gin.Context) {
	var req DepartmentRequest
	if !h.bind(c, &req) {
		return
	}
	dept := models.Department{
		ID:           c.Param("id"),
		Name:         req.Name,
		Description:  strings.TrimSpace(req.Description),
		ContactEmail: strings.TrimSpace(req.ContactEmail),
		ContactPhone: req.ContactPhone,
	}
	if _, err := h.Registry.Save(c.Request.Context(), []models.Department{dept}); err != nil {
		h.respondError(c, err, "Failed to save department")
		return
	}
	saved, err := h.Registry.Get(c.Request.Context(), dept.ID)
	if err != nil {
		h.respondError(c, err, "Failed to load department")
		return
	}
	c.JSON(http.StatusOK, saved)
}

// @Summary Import departments CSV
// @Description Upserts departments by id from columns id,name,description,contact_email,contact_phone
// @Tags departments
// @Accept multipart/form-data
// @Produce json
// @Param departments formData file true "departments.csv"
// @Success 200 {object} ImportSummary
// @Failure 400 {object} map[string]any
// @Router /api/departments/import [post]
func (h *Handler) ImportDepartments(c *gin.Context) {
	file, err := c.FormFile("departments")
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "departments file required", nil)
		return
	}
	if !validateExt(file.Filename) {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "file must be .csv", nil)
		return
	}

	departments, errs := parseDepartmentsCSV(file)
	summary := ImportSummary{Parsed: len(departments), Errors: errs}
	if summary.Errors == nil {
		summary.Errors = []string{}
	}
	if len(errs) > 0 {
		writeError(c, http.StatusBadRequest, "CSV_PARSE_ERROR", "CSV validation errors", errs)
		return
	}

	n, err := h.Registry.Save(c.Request.Context(), departments)
	if err != nil {
		h.respondError(c, err, "Failed to import departments")
		return
	}
	summary.Upserted = n
	c.JSON(http.StatusOK, summary)
}

func parseDepartmentsCSV(file *multipart.FileHeader) ([]models.Department, []string) {
	f, err := file.Open()
	if err != nil {
		return nil, []string{err.Error()}
	}
	defer f.Close()
	return readDepartmentsCSV(f)
}

func readDepartmentsCSV(r io.Reader) ([]models.Department, []string) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	headers, err := reader.Read()
	if err != nil {
		return nil, []string{"failed to read header"}
	}
	index := headerIndex(headers)
	if !hasColumn(index, "id", "department_id") {
		return nil, []string{"missing id column"}
	}
	if !hasColumn(index, "name", "department_name") {
		return nil, []string{"missing name column"}
	}

	var errs []string
	var out []models.Department
	line := 1
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		if isBlankRecord(rec) {
			continue
		}

		d := models.Department{
			ID:           getFieldAny(rec, index, "id", "department_id"),
			Name:         getFieldAny(rec, index, "name", "department_name"),
			Description:  getFieldAny(rec, index, "description"),
			ContactEmail: getFieldAny(rec, index, "contact_email", "email"),
		}
		if phone := getFieldAny(rec, index, "contact_phone", "phone"); phone != "" {
			d.ContactPhone = models.StringPtr(phone)
		}
		if d.ID == "" || d.Name == "" {
			errs = append(errs, fmt.Sprintf("line %d: department id/name required", line))
			continue
		}
		out = append(out, d)
	}
	return out, errs
}

func isBlankRecord(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func headerIndex(headers []string) map[string]int {
	idx := map[string]int{}
	for i, h := range headers {
		idx[normalizeHeader(h)] = i
	}
	return idx
}

func hasColumn(idx map[string]int, names ...string) bool {
	for _, name := range names {
		if _, ok := idx[normalizeHeader(name)]; ok {
			return true
		}
	}
	return false
}

func getField(rec []string, idx map[string]int, name string) string {
	i, ok := idx[name]
	if !ok || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func getFieldAny(rec []string, idx map[string]int, names ...string) string {
	for _, name := range names {
		if v := getField(rec, idx, normalizeHeader(name)); v != "" {
			return v
		}
	}
	return ""
}

func normalizeHeader(h string) string {
	h = strings.ReplaceAll(h, "\ufeff", "")
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.ReplaceAll(h, " ", "_")
}

func validateExt(name string) bool {
	return strings.ToLower(filepath.Ext(name)) == ".csv"
}
