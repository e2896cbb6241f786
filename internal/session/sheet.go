package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/formcraft/formcraft-backend/internal/model"
	"github.com/formcraft/formcraft-backend/internal/reconcile"
)

var (
	// ErrAlreadySubmitted is returned by every mutation after a successful Submit.
	ErrAlreadySubmitted = errors.New("response already submitted")
	// ErrUnknownQuestion means the question id is not part of the form.
	ErrUnknownQuestion = errors.New("unknown question")
	// ErrWrongQuestionType means the interaction does not apply to the question's type.
	ErrWrongQuestionType = errors.New("interaction not supported by question type")
)

// Sheet is the filling state of one form: one entry per question, each
// starting from the question's initial answer.
type Sheet struct {
	transport Transport
	submitMu  sync.Mutex

	mu        sync.Mutex
	form      model.Form
	entries   []model.Entry
	submitted *model.Response
}

// NewSheet builds a sheet with an initial answer for every question of f.
func NewSheet(f model.Form, t Transport) (*Sheet, error) {
	sh := &Sheet{transport: t, form: f, entries: make([]model.Entry, len(f.Questions))}
	for i, q := range f.Questions {
		e, err := model.NewEntry(q, reconcile.InitialAnswer(q))
		if err != nil {
			return nil, err
		}
		sh.entries[i] = e
	}
	return sh, nil
}

// Form returns the form being filled.
func (sh *Sheet) Form() model.Form {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.form
}

// Entries returns a copy of the current entries, in question order.
func (sh *Sheet) Entries() []model.Entry {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return slices.Clone(sh.entries)
}

// Drop applies a drag gesture to a Categorize or Cloze question.
func (sh *Sheet) Drop(questionID string, ev reconcile.DragEvent) error {
	sh.mu.Lock()
	defer sh.mu.Unlock()

	i, q, err := sh.lookup(questionID)
	if err != nil {
		return err
	}

	var answer any
	switch q.Type {
	case model.QuestionTypeCategorize:
		cur, err := sh.entries[i].Categorize()
		if err != nil {
			return err
		}
		answer = reconcile.AssignCategory(cur, ev)
	case model.QuestionTypeCloze:
		cur, err := sh.entries[i].Cloze()
		if err != nil {
			return err
		}
		next, err := reconcile.AssignBlank(cur, q.BlankCount(), ev)
		if err != nil {
			return fmt.Errorf("question %s: %w", questionID, err)
		}
		answer = next
	default:
		return fmt.Errorf("%w: drop on %s", ErrWrongQuestionType, q.Type)
	}
	return sh.store(i, q, answer)
}

// Choose selects option for the index-th sub-question of a Comprehension question.
func (sh *Sheet) Choose(questionID string, index int, option string) error {
	sh.mu.Lock()
	defer sh.mu.Unlock()

	i, q, err := sh.lookup(questionID)
	if err != nil {
		return err
	}
	if q.Type != model.QuestionTypeComprehension {
		return fmt.Errorf("%w: choose on %s", ErrWrongQuestionType, q.Type)
	}
	cur, err := sh.entries[i].Comprehension()
	if err != nil {
		return err
	}
	next, err := reconcile.Select(q, cur, index, option)
	if err != nil {
		return fmt.Errorf("question %s: %w", questionID, err)
	}
	return sh.store(i, q, next)
}

// UnassignedItems returns the items of a Categorize question not yet dropped
// into any category.
func (sh *Sheet) UnassignedItems(questionID string) ([]model.CategorizeItem, error) {
	sh.mu.Lock()
	defer sh.mu.Unlock()

	i, q, err := sh.find(questionID)
	if err != nil {
		return nil, err
	}
	if q.Type != model.QuestionTypeCategorize {
		return nil, fmt.Errorf("%w: items of %s", ErrWrongQuestionType, q.Type)
	}
	cur, err := sh.entries[i].Categorize()
	if err != nil {
		return nil, err
	}
	return reconcile.UnassignedItems(q, cur), nil
}

// UnusedOptions returns the options of a Cloze question not placed in any blank.
func (sh *Sheet) UnusedOptions(questionID string) ([]string, error) {
	sh.mu.Lock()
	defer sh.mu.Unlock()

	i, q, err := sh.find(questionID)
	if err != nil {
		return nil, err
	}
	if q.Type != model.QuestionTypeCloze {
		return nil, fmt.Errorf("%w: options of %s", ErrWrongQuestionType, q.Type)
	}
	cur, err := sh.entries[i].Cloze()
	if err != nil {
		return nil, err
	}
	return reconcile.UnusedOptions(q, cur), nil
}

// Refresh switches the sheet to an updated definition of the same form.
// Entries are re-derived against the new questions: answers to removed
// questions are dropped, new questions start empty and surviving answers
// are reshaped to the new arity.
func (sh *Sheet) Refresh(f model.Form) error {
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if sh.submitted != nil {
		return ErrAlreadySubmitted
	}
	prev := make(map[string]model.Entry, len(sh.entries))
	for _, e := range sh.entries {
		prev[e.QuestionID] = e
	}
	entries := make([]model.Entry, len(f.Questions))
	for i, q := range f.Questions {
		var (
			e   model.Entry
			err error
		)
		if old, ok := prev[q.ID]; ok {
			e, err = reconcile.Reshape(q, old)
		} else {
			e, err = model.NewEntry(q, reconcile.InitialAnswer(q))
		}
		if err != nil {
			return err
		}
		entries[i] = e
	}
	sh.form = f
	sh.entries = entries
	return nil
}

// Submit sends the entries. A sheet is submitted at most once; after a
// failed attempt the caller may call Submit again.
func (sh *Sheet) Submit(ctx context.Context) (*model.Response, error) {
	sh.submitMu.Lock()
	defer sh.submitMu.Unlock()

	sh.mu.Lock()
	if sh.submitted != nil {
		sh.mu.Unlock()
		return nil, ErrAlreadySubmitted
	}
	formID := sh.form.ID
	entries := slices.Clone(sh.entries)
	sh.mu.Unlock()

	resp, err := sh.transport.SubmitResponse(ctx, formID, entries)
	if err != nil {
		return nil, err
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.submitted = resp
	return resp, nil
}

// lookup is find for mutations.
func (sh *Sheet) lookup(questionID string) (int, model.Question, error) {
	if sh.submitted != nil {
		return 0, model.Question{}, ErrAlreadySubmitted
	}
	return sh.find(questionID)
}

func (sh *Sheet) find(questionID string) (int, model.Question, error) {
	for i, q := range sh.form.Questions {
		if q.ID == questionID {
			return i, q, nil
		}
	}
	return 0, model.Question{}, fmt.Errorf("%w: %s", ErrUnknownQuestion, questionID)
}

func (sh *Sheet) store(i int, q model.Question, answer any) error {
	e, err := model.NewEntry(q, answer)
	if err != nil {
		return err
	}
	entries := slices.Clone(sh.entries)
	entries[i] = e
	sh.entries = entries
	return nil
}
