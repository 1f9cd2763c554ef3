package model

import (
	"time"

	"github.com/google/uuid"
)

// GradingMode enumerates how an exam is graded after submission.
type GradingMode string

const (
	// GradingModeAuto means every question is objective and the final score
	// is known at submission time.
	GradingModeAuto GradingMode = "AUTO"
	// GradingModeManualHybrid means open-ended answers require examiner
	// marks before the session is fully graded.
	GradingModeManualHybrid GradingMode = "MANUAL_HYBRID"
)

// Exam represents an exam entity. Exams are read-only from the session's
// perspective; administrative edits happen outside the attempt lifecycle.
type Exam struct {
	ID                 uuid.UUID   `json:"id"`
	Title              string      `json:"title"`
	Description        string      `json:"description"`
	Price              float64     `json:"price"`
	Currency           string      `json:"currency"`
	DurationMinutes    int         `json:"duration_minutes"`
	PassMarkPercentage float64     `json:"pass_mark_percentage"`
	GradingMode        GradingMode `json:"grading_mode"`
	RandomizeQuestions bool        `json:"randomize_questions"`
	IsActive           bool        `json:"is_active"`
	CreatedAt          time.Time   `json:"created_at"`
}

// IsFree reports whether the exam can be started without an entitlement.
func (e *Exam) IsFree() bool {
	return e.Price <= 0
}

// ExamPaper is the Redis-cached payload sent to candidates (no correct answers).
type ExamPaper struct {
	ExamID          uuid.UUID              `json:"exam_id"`
	Title           string                 `json:"title"`
	DurationMinutes int                    `json:"duration_minutes"`
	Questions       []QuestionForCandidate `json:"questions"`
}

// QuestionForCandidate is a question stripped of correctness flags.
type QuestionForCandidate struct {
	ID       uuid.UUID            `json:"id"`
	Text     string               `json:"text"`
	Type     QuestionType         `json:"type"`
	Points   float64              `json:"points"`
	OrderNum int                  `json:"order_num"`
	Options  []OptionForCandidate `json:"options,omitempty"`
}

// OptionForCandidate is an option without its is_correct flag.
type OptionForCandidate struct {
	ID   uuid.UUID `json:"id"`
	Text string    `json:"text"`
}
