package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/madrasa-adp/intake-api/internal/dto"
	"github.com/madrasa-adp/intake-api/internal/service"
	appErrors "github.com/madrasa-adp/intake-api/pkg/errors"
	"github.com/madrasa-adp/intake-api/pkg/response"
)

// DocumentHandler exposes admission attachment endpoints.
type DocumentHandler struct {
	documents *service.DocumentService
}

// NewDocumentHandler constructs DocumentHandler.
func NewDocumentHandler(documents *service.DocumentService) *DocumentHandler {
	return &DocumentHandler{documents: documents}
}

// List godoc
// @Summary List admission documents in insertion order
// @Tags Documents
// @Produce json
// @Param id path string true "Admission ID"
// @Success 200 {object} response.Envelope
// @Router /admissions/{id}/documents [get]
func (h *DocumentHandler) List(c *gin.Context) {
	docs, err := h.documents.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, docs, nil)
}

// Add godoc
// @Summary Attach a document to an admission
// @Tags Documents
// @Accept json
// @Produce json
// @Param id path string true "Admission ID"
// @Param payload body dto.AddDocumentRequest true "Document payload"
// @Success 201 {object} response.Envelope
// @Router /admissions/{id}/documents [post]
func (h *DocumentHandler) Add(c *gin.Context) {
	var req dto.AddDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	doc, err := h.documents.Add(c.Request.Context(), c.Param("id"), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, doc)
}

// Update godoc
// @Summary Update a document by key
// @Tags Documents
// @Accept json
// @Produce json
// @Param id path string true "Admission ID"
// @Param docId path string true "Document key"
// @Param payload body dto.UpdateDocumentRequest true "Fields to update"
// @Success 200 {object} response.Envelope
// @Router /admissions/{id}/documents/{docId} [patch]
func (h *DocumentHandler) Update(c *gin.Context) {
	var req dto.UpdateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	doc, err := h.documents.Update(c.Request.Context(), c.Param("docId"), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, doc, nil)
}

// Remove godoc
// @Summary Remove a document by key
// @Tags Documents
// @Produce json
// @Param id path string true "Admission ID"
// @Param docId path string true "Document key"
// @Success 204
// @Router /admissions/{id}/documents/{docId} [delete]
func (h *DocumentHandler) Remove(c *gin.Context) {
	if err := h.documents.Remove(c.Request.Context(), c.Param("docId"), actorFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
