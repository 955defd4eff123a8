package handler

import (
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

// TransferHandler exposes enrollment transition endpoints.
type TransferHandler struct {
	transfers *service.TransferService
	exports   *service.ExportService
}

// NewTransferHandler constructs TransferHandler.
func NewTransferHandler(transfers *service.TransferService, exports *service.ExportService) *TransferHandler {
	return &TransferHandler{transfers: transfers, exports: exports}
}

// Apply godoc
// @Summary Apply an enrollment transition to a student
// @Tags Transfers
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param X-Idempotency-Key header string false "Replay protection key"
// @Param payload body dto.ApplyTransferRequest true "Transfer payload"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/transfers [post]
func (h *TransferHandler) Apply(c *gin.Context) {
	var req dto.ApplyTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	req.Type = models.TransferType(strings.ToUpper(string(req.Type)))
	result, err := h.transfers.Apply(c.Request.Context(), c.Param("id"), req, actorFromContext(c), idempotencyKey(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// List godoc
// @Summary List a student's transfers, most recent first
// @Tags Transfers
// @Produce json
// @Param id path string true "Student ID"
// @Param type query string false "Filter by transfer type"
// @Param limit query int false "Max records"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/transfers [get]
func (h *TransferHandler) List(c *gin.Context) {
	var query dto.TransferQuery
	query.Type = models.TransferType(strings.ToUpper(c.Query("type")))
	query.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	query.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))

	records, err := h.transfers.List(c.Request.Context(), c.Param("id"), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// Certificate godoc
// @Summary Render the leaving certificate for a TC transfer
// @Tags Transfers
// @Produce json
// @Param id path string true "Student ID"
// @Param transferId path string true "Transfer ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/transfers/{transferId}/certificate [get]
func (h *TransferHandler) Certificate(c *gin.Context) {
	result, err := h.exports.LeavingCertificate(c.Request.Context(), c.Param("id"), c.Param("transferId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
