package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/formcraft/formcraft-backend/internal/events"
	"github.com/formcraft/formcraft-backend/internal/model"
	"github.com/formcraft/formcraft-backend/internal/repository"
)

// ResponseService handles response submission and retrieval.
type ResponseService struct {
	responses ResponseStore
	events    events.Publisher
	log       zerolog.Logger
	now       func() time.Time
}

// NewResponseService creates a new ResponseService.
func NewResponseService(responses ResponseStore, publisher events.Publisher, log zerolog.Logger) *ResponseService {
	return &ResponseService{
		responses: responses,
		events:    publisher,
		log:       log.With().Str("component", "response_service").Logger(),
		now:       time.Now,
	}
}

// Submit stores a response to an existing form and announces it. A failed
// announcement is logged; the response stays stored.
func (s *ResponseService) Submit(ctx context.Context, req model.SubmitResponseRequest) (*model.Response, error) {
	entries := req.Responses
	if entries == nil {
		entries = []model.Entry{}
	}

	resp := &model.Response{
		ID:          uuid.NewString(),
		FormID:      req.FormID,
		Responses:   entries,
		SubmittedAt: s.now().UTC().Truncate(time.Millisecond),
	}
	if err := s.responses.Create(ctx, resp); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrFormNotFound
		}
		return nil, fmt.Errorf("create response: %w", err)
	}

	s.log.Info().Str("form_id", resp.FormID).Str("response_id", resp.ID).Int("entries", len(entries)).Msg("Response submitted")

	if err := s.events.Publish(ctx, events.ResponseSubmitted(resp.FormID, resp.ID, resp.SubmittedAt)); err != nil {
		s.log.Error().Err(err).Str("response_id", resp.ID).Msg("Failed to publish response event")
	}
	return resp, nil
}

// Get returns a response by id.
func (s *ResponseService) Get(ctx context.Context, id string) (*model.Response, error) {
	resp, err := s.responses.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrResponseNotFound
	}
	return resp, err
}

// ListByForm returns a form's responses, newest first.
func (s *ResponseService) ListByForm(ctx context.Context, formID string) ([]model.Response, error) {
	return s.responses.ListByForm(ctx, formID)
}
