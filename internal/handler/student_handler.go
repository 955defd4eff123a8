package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/madrasa-adp/intake-api/internal/models"
	"github.com/madrasa-adp/intake-api/internal/service"
	"github.com/madrasa-adp/intake-api/pkg/response"
)

// StudentHandler exposes the student roster read endpoints.
type StudentHandler struct {
	students *service.StudentService
}

// NewStudentHandler constructs StudentHandler.
func NewStudentHandler(students *service.StudentService) *StudentHandler {
	return &StudentHandler{students: students}
}

// List godoc
// @Summary List students
// @Tags Students
// @Produce json
// @Param departmentId query string false "Filter by department"
// @Param classId query string false "Filter by class"
// @Param sectionId query string false "Filter by section"
// @Param halaqahId query string false "Filter by halaqah"
// @Param status query string false "Filter by status"
// @Param search query string false "Search name or admission number"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /students [get]
func (h *StudentHandler) List(c *gin.Context) {
	var filter models.StudentFilter
	filter.DepartmentID = c.Query("departmentId")
	filter.ClassID = c.Query("classId")
	filter.SectionID = c.Query("sectionId")
	filter.HalaqahID = c.Query("halaqahId")
	filter.Status = models.StudentStatus(strings.ToUpper(c.Query("status")))
	filter.Search = c.Query("search")
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	students, pagination, err := h.students.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students, pagination)
}

// Get godoc
// @Summary Get a student with catalog names
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id} [get]
func (h *StudentHandler) Get(c *gin.Context) {
	student, err := h.students.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}

// AuditTrail godoc
// @Summary Get the audit history of a student
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Param limit query int false "Max entries"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/audit [get]
func (h *StudentHandler) AuditTrail(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	logs, err := h.students.AuditTrail(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, logs, nil)
}
