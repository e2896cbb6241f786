package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/formcraft/formcraft-backend/internal/cache"
	"github.com/formcraft/formcraft-backend/internal/events"
	"github.com/formcraft/formcraft-backend/internal/media"
	"github.com/formcraft/formcraft-backend/internal/model"
	"github.com/formcraft/formcraft-backend/internal/repository"
)

// FormOptions tunes image handling.
type FormOptions struct {
	MaxUploadBytes    int64
	UploadConcurrency int
}

// FormInput is the multipart payload of a form create or update.
type FormInput struct {
	Title string
	// Questions is the raw JSON array sent in the questions field.
	Questions   string
	Images      []Upload
	HeaderImage *Upload
}

// FormService handles form business logic.
type FormService struct {
	forms     FormStore
	responses ResponseStore
	cache     FormCache
	uploader  media.Uploader
	events    events.Publisher
	opts      FormOptions
	log       zerolog.Logger
}

// NewFormService creates a new FormService.
func NewFormService(
	forms FormStore,
	responses ResponseStore,
	cache FormCache,
	uploader media.Uploader,
	publisher events.Publisher,
	opts FormOptions,
	log zerolog.Logger,
) *FormService {
	if opts.UploadConcurrency < 1 {
		opts.UploadConcurrency = 1
	}
	return &FormService{
		forms:     forms,
		responses: responses,
		cache:     cache,
		uploader:  uploader,
		events:    publisher,
		opts:      opts,
		log:       log.With().Str("component", "form_service").Logger(),
	}
}

// DecodeQuestions parses the questions field of a form payload and checks
// every question. Questions without an id, or repeating an earlier id, get a
// fresh one.
func DecodeQuestions(raw string) ([]model.Question, error) {
	var questions []model.Question
	if err := json.Unmarshal([]byte(raw), &questions); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuestions, err)
	}
	if questions == nil {
		return nil, ErrInvalidQuestions
	}
	if err := model.ValidateQuestions(questions); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(questions))
	for i := range questions {
		if _, dup := seen[questions[i].ID]; questions[i].ID == "" || dup {
			questions[i].ID = uuid.NewString()
		}
		seen[questions[i].ID] = struct{}{}
	}
	return questions, nil
}

func (s *FormService) decode(in FormInput) (string, []model.Question, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return "", nil, ErrTitleRequired
	}
	questions, err := DecodeQuestions(in.Questions)
	if err != nil {
		return "", nil, err
	}
	if err := validateUploads(in.Images, in.HeaderImage, s.opts.MaxUploadBytes); err != nil {
		return "", nil, err
	}
	return title, questions, nil
}

// Create stores a new form. Images are uploaded first; a failed upload leaves
// its question without an image instead of failing the form.
func (s *FormService) Create(ctx context.Context, in FormInput) (*model.Form, error) {
	title, questions, err := s.decode(in)
	if err != nil {
		return nil, err
	}

	// image ids are only ever issued by the server
	for i := range questions {
		questions[i].Content.ImagePublicID = ""
	}

	f := &model.Form{ID: uuid.NewString(), Title: title, Questions: questions}

	for i, up := range s.uploadQuestionImages(ctx, f.Questions, in.Images) {
		if up != nil {
			f.Questions[i].Content.ImageURL = up.URL
			f.Questions[i].Content.ImagePublicID = up.PublicID
		}
	}
	if in.HeaderImage != nil {
		if up, err := s.upload(ctx, *in.HeaderImage); err != nil {
			s.log.Warn().Err(err).Msg("Header image upload failed, creating form without it")
		} else {
			f.HeaderImage, f.HeaderImagePublicID = up.URL, up.PublicID
		}
	}

	if err := s.forms.Create(ctx, f); err != nil {
		s.destroyImages(context.WithoutCancel(ctx), imageIDs(f))
		return nil, fmt.Errorf("create form: %w", err)
	}

	s.log.Info().Str("form_id", f.ID).Int("questions", len(f.Questions)).Msg("Form created")
	s.cacheForm(ctx, f)
	s.publish(ctx, events.FormCreated(f.ID))
	return f, nil
}

// Update overwrites a form's title, questions and images. A question keeps
// its stored image while it carries the same image URL; images that end up
// unused are destroyed once the update is stored.
func (s *FormService) Update(ctx context.Context, id string, in FormInput) (*model.Form, error) {
	title, questions, err := s.decode(in)
	if err != nil {
		return nil, err
	}

	existing, err := s.forms.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrFormNotFound
		}
		return nil, err
	}

	for i := range questions {
		c := &questions[i].Content
		c.ImagePublicID = ""
		if prev, ok := existing.Question(questions[i].ID); ok && prev.Content.ImageURL != "" && prev.Content.ImageURL == c.ImageURL {
			c.ImagePublicID = prev.Content.ImagePublicID
		}
	}

	f := &model.Form{
		ID:                  existing.ID,
		Title:               title,
		HeaderImage:         existing.HeaderImage,
		HeaderImagePublicID: existing.HeaderImagePublicID,
		Questions:           questions,
	}

	for i, up := range s.uploadQuestionImages(ctx, f.Questions, in.Images) {
		if up != nil {
			f.Questions[i].Content.ImageURL = up.URL
			f.Questions[i].Content.ImagePublicID = up.PublicID
		}
	}
	if in.HeaderImage != nil {
		if up, err := s.upload(ctx, *in.HeaderImage); err != nil {
			s.log.Warn().Err(err).Str("form_id", id).Msg("Header image upload failed, keeping previous header")
		} else {
			f.HeaderImage, f.HeaderImagePublicID = up.URL, up.PublicID
		}
	}

	if err := s.forms.Update(ctx, f); err != nil {
		s.destroyImages(context.WithoutCancel(ctx), unusedImages(f, existing))
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrFormNotFound
		}
		return nil, fmt.Errorf("update form: %w", err)
	}

	s.destroyImages(ctx, unusedImages(existing, f))
	s.log.Info().Str("form_id", f.ID).Int("questions", len(f.Questions)).Msg("Form updated")
	s.evict(ctx, f.ID)
	s.publish(ctx, events.FormUpdated(f.ID))
	return f, nil
}

// Delete removes a form, its responses and its images.
func (s *FormService) Delete(ctx context.Context, id string) error {
	f, err := s.forms.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrFormNotFound
		}
		return err
	}

	if err := s.forms.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrFormNotFound
		}
		return fmt.Errorf("delete form: %w", err)
	}

	s.destroyImages(ctx, imageIDs(f))
	s.evict(ctx, id)
	if err := s.cache.DropCounter(ctx, id); err != nil {
		s.log.Warn().Err(err).Str("form_id", id).Msg("Failed to drop response counter")
	}
	s.log.Info().Str("form_id", id).Msg("Form deleted")
	s.publish(ctx, events.FormDeleted(id))
	return nil
}

// Get returns a form, reading through the cache.
func (s *FormService) Get(ctx context.Context, id string) (*model.Form, error) {
	f, err := s.cache.GetForm(ctx, id)
	if err == nil {
		return f, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		s.log.Warn().Err(err).Str("form_id", id).Msg("Form cache read failed")
	}

	f, err = s.forms.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrFormNotFound
		}
		return nil, err
	}
	s.cacheForm(ctx, f)
	return f, nil
}

// List returns all forms, newest first.
func (s *FormService) List(ctx context.Context) ([]model.Form, error) {
	return s.forms.List(ctx)
}

// ResponseCount returns the number of responses a form has received. The
// counter is seeded from the store when it is not cached yet.
func (s *FormService) ResponseCount(ctx context.Context, id string) (int64, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return 0, err
	}

	n, err := s.cache.ResponseCount(ctx, id)
	if err == nil {
		return n, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		s.log.Warn().Err(err).Str("form_id", id).Msg("Response counter read failed")
	}

	n, err = s.responses.CountByForm(ctx, id)
	if err != nil {
		return 0, err
	}
	if err := s.cache.SeedResponseCount(ctx, id, n); err != nil {
		s.log.Warn().Err(err).Str("form_id", id).Msg("Failed to seed response counter")
	}
	return n, nil
}

func (s *FormService) cacheForm(ctx context.Context, f *model.Form) {
	if err := s.cache.SetForm(ctx, f); err != nil {
		s.log.Warn().Err(err).Str("form_id", f.ID).Msg("Failed to cache form")
	}
}

func (s *FormService) evict(ctx context.Context, id string) {
	if err := s.cache.InvalidateForm(ctx, id); err != nil {
		s.log.Warn().Err(err).Str("form_id", id).Msg("Failed to evict cached form")
	}
}

func (s *FormService) publish(ctx context.Context, e events.Event) {
	if err := s.events.Publish(ctx, e); err != nil {
		s.log.Error().Err(err).Str("event_type", string(e.Type)).Str("form_id", e.FormID).Msg("Failed to publish event")
	}
}

// imageIDs lists every hosted image of f.
func imageIDs(f *model.Form) []string {
	ids := make([]string, 0, len(f.Questions)+1)
	if f.HeaderImagePublicID != "" {
		ids = append(ids, f.HeaderImagePublicID)
	}
	for _, q := range f.Questions {
		if q.Content.ImagePublicID != "" {
			ids = append(ids, q.Content.ImagePublicID)
		}
	}
	return ids
}

// unusedImages lists the images of from that to no longer references.
func unusedImages(from, to *model.Form) []string {
	keep := make(map[string]struct{})
	for _, id := range imageIDs(to) {
		keep[id] = struct{}{}
	}
	var out []string
	for _, id := range imageIDs(from) {
		if _, ok := keep[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}
