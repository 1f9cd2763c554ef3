package model

import (
	"github.com/google/uuid"
)

// StudentAnswer is a candidate's response to one question within one session.
// Unique per (session, question) — a candidate answers each question at most
// once per attempt. AwardedMarks is bounded above by the question's points.
type StudentAnswer struct {
	ID               uuid.UUID  `json:"id"`
	SessionID        uuid.UUID  `json:"session_id"`
	QuestionID       uuid.UUID  `json:"question_id"`
	SelectedOptionID *uuid.UUID `json:"selected_option_id,omitempty"`
	TextAnswer       string     `json:"text_answer,omitempty"`
	AwardedMarks     float64    `json:"awarded_marks"`
	GraderComment    string     `json:"grader_comment,omitempty"`
}

// AnswerGrade is a validated examiner mark ready to be applied to the
// matching StudentAnswer.
type AnswerGrade struct {
	QuestionID uuid.UUID `json:"question_id"`
	Marks      float64   `json:"marks"`
	Comment    string    `json:"comment,omitempty"`
}

// GradeInput is one examiner-entered mark for an open-ended answer.
type GradeInput struct {
	QuestionID string  `json:"question_id" binding:"required"`
	Marks      float64 `json:"marks" binding:"min=0"`
	Comment    string  `json:"comment" binding:"omitempty,max=5000"`
}

// SubmitGradesRequest is the payload for an examiner grading a session.
type SubmitGradesRequest struct {
	Grades []GradeInput `json:"grades" binding:"required,min=1,dive"`
}
