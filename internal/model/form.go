package model

import (
	"fmt"
	"time"
)

// Form is a titled, ordered collection of questions.
type Form struct {
	ID                  string     `json:"_id" bson:"_id"`
	Title               string     `json:"title" bson:"title"`
	HeaderImage         string     `json:"headerImage,omitempty" bson:"headerImage,omitempty"`
	HeaderImagePublicID string     `json:"headerImagePublicId,omitempty" bson:"headerImagePublicId,omitempty"`
	Questions           []Question `json:"questions" bson:"questions"`
	CreatedAt           time.Time  `json:"createdAt" bson:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt" bson:"updatedAt"`
}

// Question returns the question with the given id.
func (f *Form) Question(id string) (Question, bool) {
	for _, q := range f.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// ValidateQuestions validates every question, reporting the first failure
// with its position.
func ValidateQuestions(questions []Question) error {
	for i, q := range questions {
		if err := q.Validate(); err != nil {
			return fmt.Errorf("question %d: %w", i+1, err)
		}
	}
	return nil
}

// QuestionTitle is the display title of the question at a 0-based position.
func QuestionTitle(index int) string {
	return fmt.Sprintf("Question %d", index+1)
}
