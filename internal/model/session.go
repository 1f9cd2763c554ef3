package model

import (
	"time"

	"github.com/google/uuid"
)

// ExamSession represents one candidate's attempt at an exam.
//
// Lifecycle: created at start (EndTime nil, Score nil, Passed nil), finalized
// exactly once at submission (EndTime set), optionally updated by manual
// grading until IsGraded is true.
type ExamSession struct {
	ID          uuid.UUID  `json:"id"`
	ExamID      uuid.UUID  `json:"exam_id"`
	CandidateID int        `json:"candidate_id"`
	StartTime   time.Time  `json:"start_time"`
	EndTime     *time.Time `json:"end_time,omitempty"`
	Score       *float64   `json:"score,omitempty"`
	Passed      *bool      `json:"passed,omitempty"`
	IsGraded    bool       `json:"is_graded"`
	// QuestionOrder holds the per-session shuffled presentation order when
	// the exam randomizes questions. Presentation only — never consulted by
	// the scoring engine.
	QuestionOrder []uuid.UUID `json:"question_order,omitempty"`
}

// InProgress reports whether the session has not yet been submitted.
func (s *ExamSession) InProgress() bool {
	return s.EndTime == nil
}

// TimeRemaining computes the advisory seconds left for the attempt.
// The limit is not enforced server-side; late submissions are accepted.
func (s *ExamSession) TimeRemaining(durationMinutes int, now time.Time) float64 {
	deadline := s.StartTime.Add(time.Duration(durationMinutes) * time.Minute)
	remaining := deadline.Sub(now).Seconds()
	if remaining < 0 {
		return 0
	}
	return remaining
}

// SubmitAnswerInput is one (question, response) pair in a submission.
// Unknown question IDs and unparsable option references are skipped, not fatal.
type SubmitAnswerInput struct {
	QuestionID       string `json:"question_id" binding:"required"`
	SelectedOptionID string `json:"selected_option_id" binding:"omitempty"`
	TextAnswer       string `json:"text_answer" binding:"omitempty,max=20000"`
}

// SubmitExamRequest is the payload for submitting a session.
type SubmitExamRequest struct {
	Answers []SubmitAnswerInput `json:"answers" binding:"dive"`
}
