package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/formcraft/formcraft-backend/internal/model"
	"github.com/formcraft/formcraft-backend/internal/response"
	"github.com/formcraft/formcraft-backend/internal/service"
	"github.com/formcraft/formcraft-backend/internal/validator"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ResponseHandler handles response endpoints.
type ResponseHandler struct {
	responses ResponseService
	exporter  Exporter
	log       zerolog.Logger
}

// NewResponseHandler creates a new ResponseHandler.
func NewResponseHandler(responses ResponseService, exporter Exporter, log zerolog.Logger) *ResponseHandler {
	return &ResponseHandler{
		responses: responses,
		exporter:  exporter,
		log:       log.With().Str("component", "response_handler").Logger(),
	}
}

// SubmitResponse godoc
// POST /api/responses
func (h *ResponseHandler) SubmitResponse(c *gin.Context) {
	var req model.SubmitResponseRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	resp, err := h.responses.Submit(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"response": resp})
}

// ListFormResponses godoc
// GET /api/responses/form/:formId
func (h *ResponseHandler) ListFormResponses(c *gin.Context) {
	id, ok := uuidParam(c, "formId")
	if !ok {
		return
	}

	list, err := h.responses.ListByForm(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.SuccessList(c, http.StatusOK, gin.H{"responses": list}, len(list))
}

// ExportFormResponses godoc
// GET /api/responses/form/:formId/export
// Replies with an xlsx workbook.
func (h *ResponseHandler) ExportFormResponses(c *gin.Context) {
	id, ok := uuidParam(c, "formId")
	if !ok {
		return
	}

	data, err := h.exporter.Export(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="responses-%s.xlsx"`, id))
	c.Data(http.StatusOK, xlsxContentType, data)
}

// GetResponse godoc
// GET /api/responses/:id
func (h *ResponseHandler) GetResponse(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	resp, err := h.responses.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"response": resp})
}

func (h *ResponseHandler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrFormNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrFormNotFound)
	case errors.Is(err, service.ErrResponseNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrResponseNotFound)
	default:
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("Response request failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
