package model

import (
	"github.com/google/uuid"
)

// QuestionType distinguishes auto-gradable questions from those that need
// examiner judgment.
type QuestionType string

const (
	QuestionTypeObjective QuestionType = "OBJECTIVE"
	QuestionTypeOpenEnded QuestionType = "OPEN_ENDED"
)

// Question represents a single exam question. Points is always positive.
type Question struct {
	ID       uuid.UUID    `json:"id"`
	ExamID   uuid.UUID    `json:"exam_id"`
	Text     string       `json:"text"`
	Type     QuestionType `json:"type"`
	Points   float64      `json:"points"`
	OrderNum int          `json:"order_num"`
	Options  []Option     `json:"options,omitempty"`
}

// CorrectOptionID returns the ID of the first option flagged correct.
// Single-correct-option policy: additional correct flags are ignored.
func (q *Question) CorrectOptionID() (uuid.UUID, bool) {
	for _, o := range q.Options {
		if o.IsCorrect {
			return o.ID, true
		}
	}
	return uuid.Nil, false
}

// Option belongs to exactly one objective question.
type Option struct {
	ID         uuid.UUID `json:"id"`
	QuestionID uuid.UUID `json:"question_id"`
	Text       string    `json:"text"`
	IsCorrect  bool      `json:"is_correct"`
}
