package handler

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/formcraft/formcraft-backend/internal/media"
	"github.com/formcraft/formcraft-backend/internal/response"
	"github.com/formcraft/formcraft-backend/internal/service"
)

// Multipart field names of a form payload.
const (
	fieldTitle          = "title"
	fieldQuestions      = "questions"
	fieldQuestionImages = "questionImages"
	fieldHeaderImage    = "headerImage"
)

// FormHandler handles form endpoints.
type FormHandler struct {
	forms FormService
	log   zerolog.Logger
}

// NewFormHandler creates a new FormHandler.
func NewFormHandler(forms FormService, log zerolog.Logger) *FormHandler {
	return &FormHandler{
		forms: forms,
		log:   log.With().Str("component", "form_handler").Logger(),
	}
}

// CreateForm godoc
// POST /api/forms
// Multipart: title, questions (JSON array), questionImages[], headerImage.
func (h *FormHandler) CreateForm(c *gin.Context) {
	in, ok := h.bindFormInput(c)
	if !ok {
		return
	}

	f, err := h.forms.Create(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"form": f})
}

// ListForms godoc
// GET /api/forms
func (h *FormHandler) ListForms(c *gin.Context) {
	forms, err := h.forms.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	response.SuccessList(c, http.StatusOK, gin.H{"forms": forms}, len(forms))
}

// GetForm godoc
// GET /api/forms/:id
func (h *FormHandler) GetForm(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	f, err := h.forms.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"form": f})
}

// UpdateForm godoc
// PUT /api/forms/:id
func (h *FormHandler) UpdateForm(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	in, ok := h.bindFormInput(c)
	if !ok {
		return
	}

	f, err := h.forms.Update(c.Request.Context(), id, in)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"form": f})
}

// DeleteForm godoc
// DELETE /api/forms/:id
func (h *FormHandler) DeleteForm(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	if err := h.forms.Delete(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"message": "Form removed"})
}

// GetFormStats godoc
// GET /api/forms/:id/stats
func (h *FormHandler) GetFormStats(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	n, err := h.forms.ResponseCount(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"responseCount": n})
}

func (h *FormHandler) bindFormInput(c *gin.Context) (service.FormInput, bool) {
	mf, err := c.MultipartForm()
	if err != nil {
		response.FailWithMessage(c, http.StatusBadRequest, response.ErrInvalidPayload,
			"Expected a multipart/form-data body.")
		return service.FormInput{}, false
	}

	in := service.FormInput{
		Title:     c.PostForm(fieldTitle),
		Questions: c.PostForm(fieldQuestions),
	}
	for _, field := range []string{fieldQuestionImages, fieldQuestionImages + "[]"} {
		for _, fh := range mf.File[field] {
			in.Images = append(in.Images, upload(fh))
		}
	}
	if files := mf.File[fieldHeaderImage]; len(files) > 0 {
		header := upload(files[0])
		in.HeaderImage = &header
	}
	return in, true
}

func upload(fh *multipart.FileHeader) service.Upload {
	return service.Upload{
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}

// uuidParam reads a UUID path parameter, replying 400 when it is malformed.
func uuidParam(c *gin.Context, param string) (string, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return "", false
	}
	return id.String(), true
}

func (h *FormHandler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrFormNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrFormNotFound)
	case errors.Is(err, service.ErrInvalidQuestions):
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidQuestions)
	case errors.Is(err, service.ErrInvalidQuestion):
		response.FailWithMessage(c, http.StatusBadRequest, response.ErrValidation, err.Error())
	case errors.Is(err, service.ErrTitleRequired):
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation,
			map[string]string{fieldTitle: "title is a required field"})
	case errors.Is(err, media.ErrUnsupportedFileType):
		response.FailWithMessage(c, http.StatusBadRequest, response.ErrUnsupportedFile, err.Error())
	case errors.Is(err, media.ErrFileTooLarge):
		response.FailWithMessage(c, http.StatusBadRequest, response.ErrFileTooLarge, err.Error())
	default:
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("Form request failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
