package model

import (
	"errors"
	"fmt"
	"strings"
)

// QuestionType is the discriminant of the Question tagged union.
type QuestionType string

const (
	QuestionTypeCategorize    QuestionType = "Categorize"
	QuestionTypeCloze         QuestionType = "Cloze"
	QuestionTypeComprehension QuestionType = "Comprehension"
)

// QuestionTypes lists every supported variant in display order.
var QuestionTypes = []QuestionType{
	QuestionTypeCategorize,
	QuestionTypeCloze,
	QuestionTypeComprehension,
}

// Valid reports whether t names a known variant.
func (t QuestionType) Valid() bool {
	switch t {
	case QuestionTypeCategorize, QuestionTypeCloze, QuestionTypeComprehension:
		return true
	}
	return false
}

// Placeholder is the literal token substituted into a stored Cloze sentence
// at the position of every blank.
const Placeholder = "[BLANK]"

// ErrInvalidQuestion is returned by Question.Validate.
var ErrInvalidQuestion = errors.New("invalid question")

// CategorizeItem is a draggable item of a Categorize question. Category holds
// the author's intended category and is empty when unassigned.
type CategorizeItem struct {
	ID       string `json:"id" bson:"id"`
	Text     string `json:"text" bson:"text"`
	Category string `json:"category,omitempty" bson:"category,omitempty"`
}

// SubQuestion is one multiple-choice question attached to a Comprehension passage.
type SubQuestion struct {
	Question string   `json:"question" bson:"question"`
	Options  []string `json:"options" bson:"options"`
}

// Content is the open-ended payload of a question. Which fields are
// meaningful depends on the owning Question's Type.
type Content struct {
	Title         string `json:"title" bson:"title"`
	Description   string `json:"description,omitempty" bson:"description,omitempty"`
	ImageURL      string `json:"imageUrl,omitempty" bson:"imageUrl,omitempty"`
	ImagePublicID string `json:"imagePublicId,omitempty" bson:"imagePublicId,omitempty"`

	// Categorize
	Categories []string         `json:"categories,omitempty" bson:"categories,omitempty"`
	Items      []CategorizeItem `json:"items,omitempty" bson:"items,omitempty"`

	// Cloze
	Sentence string   `json:"sentence,omitempty" bson:"sentence,omitempty"`
	Blanks   []string `json:"blanks,omitempty" bson:"blanks,omitempty"`
	Options  []string `json:"options,omitempty" bson:"options,omitempty"`

	// Comprehension
	Passage   string        `json:"passage,omitempty" bson:"passage,omitempty"`
	Questions []SubQuestion `json:"questions,omitempty" bson:"questions,omitempty"`
}

// Question is a single Categorize, Cloze or Comprehension question.
type Question struct {
	ID      string       `json:"_id,omitempty" bson:"_id,omitempty"`
	Type    QuestionType `json:"type" bson:"type"`
	Content Content      `json:"content" bson:"content"`
}

// NewQuestion returns an empty question of the given variant with the
// variant-specific default content.
func NewQuestion(t QuestionType) Question {
	q := Question{
		Type:    t,
		Content: Content{Title: fmt.Sprintf("New %s Question", t)},
	}
	switch t {
	case QuestionTypeCategorize:
		q.Content.Categories = []string{}
		q.Content.Items = []CategorizeItem{}
	case QuestionTypeCloze:
		q.Content.Blanks = []string{}
		q.Content.Options = []string{}
	case QuestionTypeComprehension:
		q.Content.Questions = []SubQuestion{}
	}
	return q
}

// BlankCount returns the number of placeholder tokens in the Cloze sentence.
func (q Question) BlankCount() int {
	if q.Content.Sentence == "" {
		return 0
	}
	return strings.Count(q.Content.Sentence, Placeholder)
}

// Arity is the length of an index-aligned answer for this question: the blank
// count for Cloze, the sub-question count for Comprehension, and the category
// count for Categorize.
func (q Question) Arity() int {
	switch q.Type {
	case QuestionTypeCloze:
		return q.BlankCount()
	case QuestionTypeComprehension:
		return len(q.Content.Questions)
	case QuestionTypeCategorize:
		return len(q.Content.Categories)
	}
	return 0
}

// Item looks up a Categorize item by id.
func (q Question) Item(id string) (CategorizeItem, bool) {
	for _, it := range q.Content.Items {
		if it.ID == id {
			return it, true
		}
	}
	return CategorizeItem{}, false
}

// Validate checks the structural invariants of the question's variant.
func (q Question) Validate() error {
	if !q.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidQuestion, q.Type)
	}

	switch q.Type {
	case QuestionTypeCategorize:
		seen := make(map[string]struct{}, len(q.Content.Categories))
		for _, c := range q.Content.Categories {
			if strings.TrimSpace(c) == "" {
				return fmt.Errorf("%w: empty category name", ErrInvalidQuestion)
			}
			if _, dup := seen[c]; dup {
				return fmt.Errorf("%w: duplicate category %q", ErrInvalidQuestion, c)
			}
			seen[c] = struct{}{}
		}
		ids := make(map[string]struct{}, len(q.Content.Items))
		for _, it := range q.Content.Items {
			if it.ID == "" {
				return fmt.Errorf("%w: item %q has no id", ErrInvalidQuestion, it.Text)
			}
			if _, dup := ids[it.ID]; dup {
				return fmt.Errorf("%w: duplicate item id %q", ErrInvalidQuestion, it.ID)
			}
			ids[it.ID] = struct{}{}
		}

	case QuestionTypeCloze:
		if n := q.BlankCount(); n != len(q.Content.Blanks) {
			return fmt.Errorf("%w: sentence has %d placeholders but %d blanks",
				ErrInvalidQuestion, n, len(q.Content.Blanks))
		}

	case QuestionTypeComprehension:
		for i, sq := range q.Content.Questions {
			if len(sq.Options) < 2 {
				return fmt.Errorf("%w: sub-question %d needs at least 2 options", ErrInvalidQuestion, i)
			}
		}
	}
	return nil
}
