package handler

import (
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/madrasa-adp/intake-api/internal/models"
	"github.com/madrasa-adp/intake-api/internal/service"
	appErrors "github.com/madrasa-adp/intake-api/pkg/errors"
	"github.com/madrasa-adp/intake-api/pkg/response"
)

// ExportHandler exposes register/roster export endpoints and signed downloads.
type ExportHandler struct {
	exports *service.ExportService
}

// NewExportHandler constructs ExportHandler.
func NewExportHandler(exports *service.ExportService) *ExportHandler {
	return &ExportHandler{exports: exports}
}

// AdmissionRegister godoc
// @Summary Queue an export of the admission register
// @Tags Exports
// @Produce json
// @Param stage query string false "Filter by stage"
// @Param format query string false "csv (default) or pdf"
// @Success 202 {object} response.Envelope
// @Router /exports/admissions [post]
func (h *ExportHandler) AdmissionRegister(c *gin.Context) {
	var filter models.AdmissionFilter
	filter.Stage = models.AdmissionStage(strings.ToUpper(c.Query("stage")))
	filter.Search = c.Query("search")

	job, err := h.exports.QueueAdmissionRegister(filter, c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, job, nil)
}

// StudentRoster godoc
// @Summary Queue an export of the student roster
// @Tags Exports
// @Produce json
// @Param departmentId query string false "Filter by department"
// @Param status query string false "Filter by status"
// @Param format query string false "csv (default) or pdf"
// @Success 202 {object} response.Envelope
// @Router /exports/students [post]
func (h *ExportHandler) StudentRoster(c *gin.Context) {
	var filter models.StudentFilter
	filter.DepartmentID = c.Query("departmentId")
	filter.ClassID = c.Query("classId")
	filter.Status = models.StudentStatus(strings.ToUpper(c.Query("status")))

	job, err := h.exports.QueueStudentRoster(filter, c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, job, nil)
}

// Status godoc
// @Summary Get the status of a queued export
// @Tags Exports
// @Produce json
// @Param id path string true "Export job ID"
// @Success 200 {object} response.Envelope
// @Router /exports/{id} [get]
func (h *ExportHandler) Status(c *gin.Context) {
	job, err := h.exports.Job(c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, job, nil)
}

// Download godoc
// @Summary Download an exported file via signed token
// @Tags Exports
// @Produce octet-stream
// @Param token query string true "Signed download token"
// @Success 200 {file} binary
// @Router /exports/download [get]
func (h *ExportHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	file, relPath, err := h.exports.Download(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck

	name := filepath.Base(relPath)
	c.Header("Content-Disposition", "attachment; filename="+strconv.Quote(name))
	contentType := "application/octet-stream"
	switch filepath.Ext(name) {
	case ".csv":
		contentType = "text/csv"
	case ".pdf":
		contentType = "application/pdf"
	}
	c.Header("Content-Type", contentType)
	c.File(file.Name())
}
