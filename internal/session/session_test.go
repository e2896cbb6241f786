package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formcraft/formcraft-backend/internal/client"
	"github.com/formcraft/formcraft-backend/internal/model"
	"github.com/formcraft/formcraft-backend/internal/reconcile"
)

type fakeTransport struct {
	mu        sync.Mutex
	forms     map[string]*model.Form
	created   []client.FormPayload
	updated   map[string]client.FormPayload
	submitted [][]model.Entry
	submitErr error
	// gate, when set, blocks GetForm for the named id until closed.
	gate map[string]chan struct{}
	// assignIDs stamps question ids and image URLs the way the server does.
	assignIDs bool
	nextID    int
}

// store records questions as the server would return them.
func (f *fakeTransport) store(p client.FormPayload) []model.Question {
	qs := append([]model.Question(nil), p.Questions...)
	if !f.assignIDs {
		return qs
	}
	for i := range qs {
		if qs[i].ID == "" {
			f.nextID++
			qs[i].ID = fmt.Sprintf("q-srv-%d", f.nextID)
		}
		for _, img := range p.Images {
			if img.Name == client.QuestionImageName(qs[i].Type, i) {
				qs[i].Content.ImageURL = "https://img.host/" + qs[i].ID + ".png"
			}
		}
	}
	return qs
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		forms:   map[string]*model.Form{},
		updated: map[string]client.FormPayload{},
		gate:    map[string]chan struct{}{},
	}
}

func (f *fakeTransport) CreateForm(_ context.Context, p client.FormPayload) (*model.Form, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, p)
	form := &model.Form{ID: "f1", Title: p.Title, Questions: f.store(p)}
	f.forms[form.ID] = form
	return form, nil
}

func (f *fakeTransport) UpdateForm(_ context.Context, id string, p client.FormPayload) (*model.Form, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated[id] = p
	form := &model.Form{ID: id, Title: p.Title, Questions: f.store(p)}
	f.forms[id] = form
	return form, nil
}

func (f *fakeTransport) GetForm(_ context.Context, id string) (*model.Form, error) {
	f.mu.Lock()
	gate := f.gate[id]
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	form, ok := f.forms[id]
	if !ok {
		return nil, &client.APIError{Status: 404, Code: "FORM_NOT_FOUND"}
	}
	return form, nil
}

func (f *fakeTransport) ListForms(context.Context) ([]model.Form, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Form, 0, len(f.forms))
	for _, form := range f.forms {
		out = append(out, *form)
	}
	return out, nil
}

func (f *fakeTransport) SubmitResponse(_ context.Context, formID string, entries []model.Entry) (*model.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.submitted = append(f.submitted, entries)
	return &model.Response{ID: "r1", FormID: formID, Responses: entries}, nil
}

func titles(qs []model.Question) []string {
	out := make([]string, len(qs))
	for i, q := range qs {
		out[i] = q.Content.Title
	}
	return out
}

func TestAddRemoveRenumbers(t *testing.T) {
	s := New(newFakeTransport(), zerolog.Nop())

	q, err := s.AddQuestion(model.QuestionTypeCloze)
	require.NoError(t, err)
	assert.Equal(t, "Question 1", q.Content.Title)

	_, _ = s.AddQuestion(model.QuestionTypeCategorize)
	_, _ = s.AddQuestion(model.QuestionTypeComprehension)
	assert.Equal(t, []string{"Question 1", "Question 2", "Question 3"}, titles(s.Questions()))

	require.NoError(t, s.RemoveQuestion(0))
	qs := s.Questions()
	assert.Equal(t, []string{"Question 1", "Question 2"}, titles(qs))
	assert.Equal(t, model.QuestionTypeCategorize, qs[0].Type)

	require.NoError(t, s.MoveQuestion(1, 0))
	qs = s.Questions()
	assert.Equal(t, model.QuestionTypeComprehension, qs[0].Type)
	assert.Equal(t, []string{"Question 1", "Question 2"}, titles(qs))

	_, err = s.AddQuestion("Essay")
	assert.ErrorIs(t, err, model.ErrInvalidQuestion)
}

func TestSetQuestionAt_OutOfRange(t *testing.T) {
	s := New(newFakeTransport(), zerolog.Nop())
	_, _ = s.AddQuestion(model.QuestionTypeCloze)

	q := s.Questions()[0]
	q.Content.Sentence = "The [BLANK] sat"
	q.Content.Blanks = []string{"cat"}
	require.NoError(t, s.SetQuestionAt(0, q))
	assert.Equal(t, "The [BLANK] sat", s.Questions()[0].Content.Sentence)

	assert.ErrorIs(t, s.SetQuestionAt(1, q), ErrIndexOutOfRange)
	assert.ErrorIs(t, s.SetQuestionAt(-1, q), ErrIndexOutOfRange)
	assert.ErrorIs(t, s.RemoveQuestion(5), ErrIndexOutOfRange)
	assert.ErrorIs(t, s.SetQuestionImage(3, nil), ErrIndexOutOfRange)
}

func TestQuestionsReturnsCopy(t *testing.T) {
	s := New(newFakeTransport(), zerolog.Nop())
	_, _ = s.AddQuestion(model.QuestionTypeCloze)

	qs := s.Questions()
	qs[0].Content.Title = "mutated"
	assert.Equal(t, "Question 1", s.Questions()[0].Content.Title)
}

func TestSave_NamesImagesByTypeAndIndex(t *testing.T) {
	tr := newFakeTransport()
	s := New(tr, zerolog.Nop())
	_, _ = s.AddQuestion(model.QuestionTypeCategorize)
	_, _ = s.AddQuestion(model.QuestionTypeCloze)
	require.NoError(t, s.SetQuestionImage(1, &client.File{Name: "cat.png", Data: []byte("x")}))

	form, err := s.Save(context.Background(), "Animals", nil)
	require.NoError(t, err)
	assert.Equal(t, "f1", form.ID)
	assert.Same(t, form, s.Current())

	require.Len(t, tr.created, 1)
	require.Len(t, tr.created[0].Images, 1)
	assert.Equal(t, "question_Cloze_1_image", tr.created[0].Images[0].Name)
	assert.Len(t, s.Forms(), 1)

	// Saving again updates the same form.
	_, err = s.Save(context.Background(), "Animals v2", nil)
	require.NoError(t, err)
	assert.Len(t, tr.created, 1)
	assert.Equal(t, "Animals v2", tr.updated["f1"].Title)
	assert.Empty(t, tr.updated["f1"].Images, "pending images are cleared after a save")
	assert.Len(t, s.Forms(), 1)
}

func TestSave_UpdateSendsStoredQuestions(t *testing.T) {
	tr := newFakeTransport()
	tr.assignIDs = true
	s := New(tr, zerolog.Nop())
	_, _ = s.AddQuestion(model.QuestionTypeCategorize)
	require.NoError(t, s.SetQuestionImage(0, &client.File{Name: "q.png", Data: []byte("x")}))

	created, err := s.Save(context.Background(), "Animals", nil)
	require.NoError(t, err)
	stored := created.Questions[0]
	require.Equal(t, "q-srv-1", stored.ID)
	require.NotEmpty(t, stored.Content.ImageURL)
	assert.Equal(t, created.Questions, s.Questions())

	_, err = s.Save(context.Background(), "Animals v2", nil)
	require.NoError(t, err)

	sent := tr.updated["f1"].Questions
	require.Len(t, sent, 1)
	assert.Equal(t, stored.ID, sent[0].ID)
	assert.Equal(t, stored.Content.ImageURL, sent[0].Content.ImageURL)
	assert.Equal(t, 1, tr.nextID, "no question was re-identified")
}

func TestLoadForm_DiscardsSupersededResult(t *testing.T) {
	tr := newFakeTransport()
	tr.forms["slow"] = &model.Form{ID: "slow"}
	tr.forms["fast"] = &model.Form{ID: "fast"}
	gate := make(chan struct{})
	tr.gate["slow"] = gate

	s := New(tr, zerolog.Nop())

	slowDone := make(chan error, 1)
	go func() {
		_, err := s.LoadForm(context.Background(), "slow")
		slowDone <- err
	}()
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.loadGen == 1
	}, time.Second, time.Millisecond)

	form, err := s.LoadForm(context.Background(), "fast")
	require.NoError(t, err)
	assert.Equal(t, "fast", form.ID)

	close(gate)
	assert.ErrorIs(t, <-slowDone, ErrStaleLoad)
	assert.Equal(t, "fast", s.Current().ID)
}

func TestLoadForm_SurfacesTransportError(t *testing.T) {
	s := New(newFakeTransport(), zerolog.Nop())
	_, err := s.LoadForm(context.Background(), "nope")
	assert.True(t, client.IsNotFound(err))
	assert.Nil(t, s.Current())

	_, err = s.Fill()
	assert.ErrorIs(t, err, ErrNoCurrentForm)
}

func fillForm() *model.Form {
	cat := model.NewQuestion(model.QuestionTypeCategorize)
	cat.ID = "q1"
	cat.Content.Categories = []string{"Fruit", "Veg"}
	cat.Content.Items = []model.CategorizeItem{{ID: "i1", Text: "Apple"}, {ID: "i2", Text: "Carrot"}}

	cloze := model.NewQuestion(model.QuestionTypeCloze)
	cloze.ID = "q2"
	cloze.Content.Sentence = "The [BLANK] sat on the [BLANK]"
	cloze.Content.Blanks = []string{"cat", "mat"}
	cloze.Content.Options = []string{"cat", "mat"}

	comp := model.NewQuestion(model.QuestionTypeComprehension)
	comp.ID = "q3"
	comp.Content.Questions = []model.SubQuestion{{Question: "?", Options: []string{"yes", "no"}}}

	return &model.Form{ID: "f1", Title: "Mixed", Questions: []model.Question{cat, cloze, comp}}
}

func TestSheet_FillAndSubmitOnce(t *testing.T) {
	tr := newFakeTransport()
	tr.forms["f1"] = fillForm()
	s := New(tr, zerolog.Nop())
	_, err := s.LoadForm(context.Background(), "f1")
	require.NoError(t, err)

	sh, err := s.Fill()
	require.NoError(t, err)

	entries := sh.Entries()
	require.Len(t, entries, 3)
	assert.JSONEq(t, `{"Fruit":[],"Veg":[]}`, string(entries[0].Answer))
	assert.JSONEq(t, `[null,null]`, string(entries[1].Answer))
	assert.JSONEq(t, `[null]`, string(entries[2].Answer))

	require.NoError(t, sh.Drop("q1", reconcile.DragEvent{Active: "i1", Over: "Fruit"}))
	items, err := sh.UnassignedItems("q1")
	require.NoError(t, err)
	assert.Equal(t, []model.CategorizeItem{{ID: "i2", Text: "Carrot"}}, items)

	require.NoError(t, sh.Drop("q2", reconcile.DragEvent{Active: "mat", Over: "blank_1"}))
	opts, err := sh.UnusedOptions("q2")
	require.NoError(t, err)
	assert.Equal(t, []string{"cat"}, opts)

	require.NoError(t, sh.Drop("q2", reconcile.DragEvent{Over: "blank_0"}), "incomplete gesture is a no-op")
	assert.ErrorIs(t, sh.Drop("q3", reconcile.DragEvent{Active: "yes", Over: "blank_0"}), ErrWrongQuestionType)
	assert.ErrorIs(t, sh.Drop("q9", reconcile.DragEvent{Active: "x", Over: "y"}), ErrUnknownQuestion)

	require.NoError(t, sh.Choose("q3", 0, "yes"))

	resp, err := sh.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "r1", resp.ID)
	require.Len(t, tr.submitted, 1)
	sent := tr.submitted[0]
	assert.JSONEq(t, `{"Fruit":["i1"],"Veg":[]}`, string(sent[0].Answer))
	assert.JSONEq(t, `[null,"mat"]`, string(sent[1].Answer))
	assert.JSONEq(t, `["yes"]`, string(sent[2].Answer))

	_, err = sh.Submit(context.Background())
	assert.ErrorIs(t, err, ErrAlreadySubmitted)
	assert.ErrorIs(t, sh.Choose("q3", 0, "no"), ErrAlreadySubmitted)
}

func TestSheet_FailedSubmitCanBeRetried(t *testing.T) {
	tr := newFakeTransport()
	tr.submitErr = errors.New("network down")
	sh, err := NewSheet(*fillForm(), tr)
	require.NoError(t, err)

	_, err = sh.Submit(context.Background())
	assert.EqualError(t, err, "network down")

	tr.submitErr = nil
	_, err = sh.Submit(context.Background())
	assert.NoError(t, err)
}

func TestSheet_RefreshReshapesAnswers(t *testing.T) {
	form := fillForm()
	sh, err := NewSheet(*form, newFakeTransport())
	require.NoError(t, err)
	require.NoError(t, sh.Drop("q2", reconcile.DragEvent{Active: "cat", Over: "blank_0"}))

	updated := *form
	updated.Questions = append([]model.Question(nil), form.Questions[1:]...)
	updated.Questions[0].Content.Sentence = "The [BLANK] sat on the [BLANK] by the [BLANK]"
	updated.Questions[0].Content.Blanks = []string{"cat", "mat", "door"}
	extra := model.NewQuestion(model.QuestionTypeCloze)
	extra.ID = "q4"
	updated.Questions = append(updated.Questions, extra)

	require.NoError(t, sh.Refresh(updated))
	entries := sh.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "q2", entries[0].QuestionID)
	assert.JSONEq(t, `["cat",null,null]`, string(entries[0].Answer))
	assert.Equal(t, "q4", entries[2].QuestionID)
	assert.JSONEq(t, `[]`, string(entries[2].Answer))
}
