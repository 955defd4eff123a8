package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/madrasa-adp/intake-api/internal/service"
	"github.com/madrasa-adp/intake-api/pkg/response"
)

// CatalogHandler exposes the read-only reference catalog.
type CatalogHandler struct {
	catalog *service.CatalogService
}

// NewCatalogHandler constructs CatalogHandler.
func NewCatalogHandler(catalog *service.CatalogService) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

// Departments godoc
// @Summary List departments
// @Tags Catalog
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /catalog/departments [get]
func (h *CatalogHandler) Departments(c *gin.Context) {
	departments, err := h.catalog.Departments(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, departments, nil)
}

// Classes godoc
// @Summary List classes
// @Tags Catalog
// @Produce json
// @Param departmentId query string false "Scope to department"
// @Success 200 {object} response.Envelope
// @Router /catalog/classes [get]
func (h *CatalogHandler) Classes(c *gin.Context) {
	classes, err := h.catalog.Classes(c.Request.Context(), c.Query("departmentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, classes, nil)
}

// Sections godoc
// @Summary List sections
// @Tags Catalog
// @Produce json
// @Param classId query string false "Scope to class"
// @Success 200 {object} response.Envelope
// @Router /catalog/sections [get]
func (h *CatalogHandler) Sections(c *gin.Context) {
	sections, err := h.catalog.Sections(c.Request.Context(), c.Query("classId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sections, nil)
}

// Halaqahs godoc
// @Summary List halaqahs
// @Tags Catalog
// @Produce json
// @Param departmentId query string false "Scope to department"
// @Success 200 {object} response.Envelope
// @Router /catalog/halaqahs [get]
func (h *CatalogHandler) Halaqahs(c *gin.Context) {
	halaqahs, err := h.catalog.Halaqahs(c.Request.Context(), c.Query("departmentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, halaqahs, nil)
}
