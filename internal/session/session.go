// Package session holds the client-side state of one authoring and filling
// session: the questions under authoring, the forms known to the user and
// the form currently open.
package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/rs/zerolog"

	"github.com/formcraft/formcraft-backend/internal/client"
	"github.com/formcraft/formcraft-backend/internal/model"
)

var (
	// ErrIndexOutOfRange means a question position does not exist, usually
	// because the caller is holding an index from before an add or remove.
	ErrIndexOutOfRange = errors.New("question index out of range")
	// ErrStaleLoad means a form load finished after a newer load started; its
	// result was discarded.
	ErrStaleLoad = errors.New("form load superseded")
	// ErrNoCurrentForm is returned when filling is requested before a form is loaded.
	ErrNoCurrentForm = errors.New("no form loaded")
)

// Transport is the remote side of the session.
type Transport interface {
	CreateForm(ctx context.Context, p client.FormPayload) (*model.Form, error)
	UpdateForm(ctx context.Context, id string, p client.FormPayload) (*model.Form, error)
	GetForm(ctx context.Context, id string) (*model.Form, error)
	ListForms(ctx context.Context) ([]model.Form, error)
	SubmitResponse(ctx context.Context, formID string, entries []model.Entry) (*model.Response, error)
}

// Session is safe for concurrent use. Only Transport calls block.
type Session struct {
	transport Transport
	log       zerolog.Logger

	mu        sync.Mutex
	questions []model.Question
	images    []*client.File
	editingID string
	forms     []model.Form
	current   *model.Form
	loadGen   uint64
}

// New returns an empty session.
func New(t Transport, log zerolog.Logger) *Session {
	return &Session{
		transport: t,
		log:       log.With().Str("component", "session").Logger(),
	}
}

// Questions returns a copy of the questions under authoring.
func (s *Session) Questions() []model.Question {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.questions)
}

// AddQuestion appends an empty question of the given type and returns it
// with its position-derived title.
func (s *Session) AddQuestion(t model.QuestionType) (model.Question, error) {
	if !t.Valid() {
		return model.Question{}, fmt.Errorf("%w: unknown type %q", model.ErrInvalidQuestion, t)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.questions = append(slices.Clone(s.questions), model.NewQuestion(t))
	s.images = append(slices.Clone(s.images), nil)
	s.renumber()
	return s.questions[len(s.questions)-1], nil
}

// RemoveQuestion removes the question at i.
func (s *Session) RemoveQuestion(i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkIndex(i); err != nil {
		return err
	}
	s.questions = slices.Delete(slices.Clone(s.questions), i, i+1)
	s.images = slices.Delete(slices.Clone(s.images), i, i+1)
	s.renumber()
	return nil
}

// MoveQuestion relocates the question at from to position to.
func (s *Session) MoveQuestion(from, to int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkIndex(from); err != nil {
		return err
	}
	if err := s.checkIndex(to); err != nil {
		return err
	}
	q, img := s.questions[from], s.images[from]
	qs := slices.Delete(slices.Clone(s.questions), from, from+1)
	imgs := slices.Delete(slices.Clone(s.images), from, from+1)
	s.questions = slices.Insert(qs, to, q)
	s.images = slices.Insert(imgs, to, img)
	s.renumber()
	return nil
}

// SetQuestionAt replaces the question at i with q.
func (s *Session) SetQuestionAt(i int, q model.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkIndex(i); err != nil {
		return err
	}
	s.questions = slices.Clone(s.questions)
	s.questions[i] = q
	return nil
}

// SetQuestionImage attaches an image to upload with the question at i on
// the next Save. A nil file clears it.
func (s *Session) SetQuestionImage(i int, f *client.File) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkIndex(i); err != nil {
		return err
	}
	s.images = slices.Clone(s.images)
	s.images[i] = f
	return nil
}

// Edit replaces the authoring list with the questions of an existing form.
// The next Save updates that form instead of creating a new one.
func (s *Session) Edit(f model.Form) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.questions = slices.Clone(f.Questions)
	s.images = make([]*client.File, len(f.Questions))
	s.editingID = f.ID
}

// Reset clears the authoring list.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.questions = nil
	s.images = nil
	s.editingID = ""
}

// Save sends the authoring list to the server, creating a form or updating
// the one opened with Edit. Each pending image travels under the name
// question_<Type>_<index>_image. Transport errors are returned unmodified.
func (s *Session) Save(ctx context.Context, title string, header *client.File) (*model.Form, error) {
	s.mu.Lock()
	p := client.FormPayload{
		Title:       title,
		Questions:   slices.Clone(s.questions),
		HeaderImage: header,
	}
	for i, img := range s.images {
		if img == nil {
			continue
		}
		f := *img
		f.Name = client.QuestionImageName(s.questions[i].Type, i)
		p.Images = append(p.Images, f)
	}
	editingID := s.editingID
	s.mu.Unlock()

	var (
		form *model.Form
		err  error
	)
	if editingID != "" {
		form, err = s.transport.UpdateForm(ctx, editingID, p)
	} else {
		form, err = s.transport.CreateForm(ctx, p)
	}
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.forms = upsertForm(s.forms, *form)
	s.current = form
	s.editingID = form.ID
	// the stored questions carry the server's ids and image URLs, which the
	// next update must send back
	s.questions = slices.Clone(form.Questions)
	s.images = make([]*client.File, len(s.questions))
	s.log.Info().Str("form_id", form.ID).Int("questions", len(form.Questions)).Msg("Form saved")
	return form, nil
}

// FetchForms refreshes the list of known forms.
func (s *Session) FetchForms(ctx context.Context) ([]model.Form, error) {
	forms, err := s.transport.ListForms(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forms = forms
	return slices.Clone(forms), nil
}

// Forms returns the forms known to the session.
func (s *Session) Forms() []model.Form {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.forms)
}

// Current returns the open form, or nil.
func (s *Session) Current() *model.Form {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// LoadForm fetches a form and makes it current. If another LoadForm starts
// before this one completes, this result is dropped and ErrStaleLoad returned.
func (s *Session) LoadForm(ctx context.Context, id string) (*model.Form, error) {
	s.mu.Lock()
	s.loadGen++
	gen := s.loadGen
	s.mu.Unlock()

	form, err := s.transport.GetForm(ctx, id)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.loadGen {
		s.log.Debug().Str("form_id", id).Msg("Discarding superseded form load")
		return nil, ErrStaleLoad
	}
	if err != nil {
		return nil, err
	}
	s.current = form
	return form, nil
}

// Fill starts a filling sheet for the current form.
func (s *Session) Fill() (*Sheet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil, ErrNoCurrentForm
	}
	return NewSheet(*s.current, s.transport)
}

func (s *Session) checkIndex(i int) error {
	if i < 0 || i >= len(s.questions) {
		return fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, i, len(s.questions))
	}
	return nil
}

func (s *Session) renumber() {
	for i := range s.questions {
		s.questions[i].Content.Title = model.QuestionTitle(i)
	}
}

func upsertForm(forms []model.Form, f model.Form) []model.Form {
	out := slices.Clone(forms)
	for i := range out {
		if out[i].ID == f.ID {
			out[i] = f
			return out
		}
	}
	return append(out, f)
}
