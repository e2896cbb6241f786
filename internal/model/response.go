package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// CategorizeAnswer maps a category name to the ids of the items dropped into it.
type CategorizeAnswer map[string][]string

// ClozeAnswer holds, per placeholder, the option placed there or nil.
type ClozeAnswer []*string

// ComprehensionAnswer holds, per sub-question, the selected option or nil.
type ComprehensionAnswer []*string

// Entry is one per-question record of a Response. Answer's shape depends on
// QuestionType.
type Entry struct {
	QuestionID   string          `json:"questionId" binding:"required"`
	QuestionType QuestionType    `json:"questionType" binding:"required,question_type"`
	Answer       json.RawMessage `json:"answer" binding:"required"`
}

// NewEntry encodes answer into an Entry for q.
func NewEntry(q Question, answer any) (Entry, error) {
	raw, err := json.Marshal(answer)
	if err != nil {
		return Entry{}, fmt.Errorf("encode %s answer: %w", q.Type, err)
	}
	return Entry{QuestionID: q.ID, QuestionType: q.Type, Answer: raw}, nil
}

// Categorize decodes a Categorize answer. A JSON null yields nil.
func (e Entry) Categorize() (CategorizeAnswer, error) {
	var a CategorizeAnswer
	if err := e.decode(QuestionTypeCategorize, &a); err != nil {
		return nil, err
	}
	return a, nil
}

// Cloze decodes a Cloze answer.
func (e Entry) Cloze() (ClozeAnswer, error) {
	var a ClozeAnswer
	if err := e.decode(QuestionTypeCloze, &a); err != nil {
		return nil, err
	}
	return a, nil
}

// Comprehension decodes a Comprehension answer.
func (e Entry) Comprehension() (ComprehensionAnswer, error) {
	var a ComprehensionAnswer
	if err := e.decode(QuestionTypeComprehension, &a); err != nil {
		return nil, err
	}
	return a, nil
}

func (e Entry) decode(want QuestionType, dst any) error {
	if e.QuestionType != want {
		return fmt.Errorf("entry %s is %s, not %s", e.QuestionID, e.QuestionType, want)
	}
	if len(e.Answer) == 0 {
		return nil
	}
	if err := json.Unmarshal(e.Answer, dst); err != nil {
		return fmt.Errorf("decode %s answer: %w", want, err)
	}
	return nil
}

// Response is a respondent's submitted answers to a form.
type Response struct {
	ID          string    `json:"_id"`
	FormID      string    `json:"formId"`
	Responses   []Entry   `json:"responses"`
	SubmittedAt time.Time `json:"submittedAt"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// SubmitResponseRequest is the payload of POST /api/responses.
type SubmitResponseRequest struct {
	FormID    string  `json:"formId" binding:"required,uuid"`
	Responses []Entry `json:"responses" binding:"dive"`
}

// StringPtr returns a pointer to s, for building answers.
func StringPtr(s string) *string { return &s }
