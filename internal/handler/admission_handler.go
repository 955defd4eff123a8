package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/madrasa-adp/intake-api/internal/dto"
	"github.com/madrasa-adp/intake-api/internal/models"
	"github.com/madrasa-adp/intake-api/internal/service"
	appErrors "github.com/madrasa-adp/intake-api/pkg/errors"
	"github.com/madrasa-adp/intake-api/pkg/response"
)

// AdmissionHandler exposes the admission intake endpoints.
type AdmissionHandler struct {
	admissions *service.AdmissionService
	allocator  *service.AllocatorService
}

// NewAdmissionHandler constructs AdmissionHandler.
func NewAdmissionHandler(admissions *service.AdmissionService, allocator *service.AllocatorService) *AdmissionHandler {
	return &AdmissionHandler{admissions: admissions, allocator: allocator}
}

// List godoc
// @Summary List admissions
// @Tags Admissions
// @Produce json
// @Param stage query string false "Filter by stage"
// @Param search query string false "Search applicant, father, or CNIC"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /admissions [get]
func (h *AdmissionHandler) List(c *gin.Context) {
	var filter models.AdmissionFilter
	filter.Stage = models.AdmissionStage(strings.ToUpper(c.Query("stage")))
	filter.Search = c.Query("search")
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	admissions, pagination, err := h.admissions.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, admissions, pagination)
}

// Create godoc
// @Summary Open an admission at the inquiry stage
// @Tags Admissions
// @Accept json
// @Produce json
// @Param payload body dto.CreateAdmissionRequest true "Admission payload"
// @Success 201 {object} response.Envelope
// @Router /admissions [post]
func (h *AdmissionHandler) Create(c *gin.Context) {
	var req dto.CreateAdmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	admission, err := h.admissions.Create(c.Request.Context(), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, admission)
}

// Get godoc
// @Summary Get an admission with documents and stage history
// @Tags Admissions
// @Produce json
// @Param id path string true "Admission ID"
// @Success 200 {object} response.Envelope
// @Router /admissions/{id} [get]
func (h *AdmissionHandler) Get(c *gin.Context) {
	detail, err := h.admissions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Patch godoc
// @Summary Update non-state admission fields
// @Tags Admissions
// @Accept json
// @Produce json
// @Param id path string true "Admission ID"
// @Param payload body dto.PatchAdmissionRequest true "Fields to update"
// @Success 200 {object} response.Envelope
// @Router /admissions/{id} [patch]
func (h *AdmissionHandler) Patch(c *gin.Context) {
	var req dto.PatchAdmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	admission, err := h.admissions.Patch(c.Request.Context(), c.Param("id"), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, admission, nil)
}

// Advance godoc
// @Summary Advance the admission one stage forward
// @Tags Admissions
// @Accept json
// @Produce json
// @Param id path string true "Admission ID"
// @Param payload body dto.AdvanceAdmissionRequest false "Expected version"
// @Success 200 {object} response.Envelope
// @Router /admissions/{id}/advance [post]
func (h *AdmissionHandler) Advance(c *gin.Context) {
	var req dto.AdvanceAdmissionRequest
	// The payload is optional; an absent or empty body advances against the
	// current version.
	if c.Request.Body != nil && c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
			return
		}
	}
	admission, err := h.admissions.Advance(c.Request.Context(), c.Param("id"), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, admission, nil)
}

// Decide godoc
// @Summary Approve or reject an admission
// @Tags Admissions
// @Accept json
// @Produce json
// @Param id path string true "Admission ID"
// @Param X-Idempotency-Key header string false "Replay protection key"
// @Param payload body dto.DecideAdmissionRequest true "Decision payload"
// @Success 200 {object} response.Envelope
// @Router /admissions/{id}/decision [post]
func (h *AdmissionHandler) Decide(c *gin.Context) {
	var req dto.DecideAdmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.admissions.Decide(c.Request.Context(), c.Param("id"), req, actorFromContext(c), idempotencyKey(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// SuggestNumber godoc
// @Summary Suggest the next free admission number for a department
// @Tags Admissions
// @Produce json
// @Param departmentId query string true "Department ID"
// @Param year query int false "Intake year, defaults to current"
// @Success 200 {object} response.Envelope
// @Router /admissions/number-suggestion [get]
func (h *AdmissionHandler) SuggestNumber(c *gin.Context) {
	departmentID := c.Query("departmentId")
	if departmentID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "departmentId is required"))
		return
	}
	year, _ := strconv.Atoi(c.Query("year"))
	number, err := h.allocator.Generate(c.Request.Context(), departmentID, year)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"admission_number": number}, nil)
}
